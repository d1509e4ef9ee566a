// Package migration はSQLiteデータベースのスキーマを前進方向にのみ移行する。
//
// マイグレーションは fs.FS 上の "<6桁のバージョン>_<名前>.up.sql" ファイルで、
// 適用時に内容のSHA-256をschema_migrationsへ記録する。
// 適用済みのファイルが後から書き換えられていた場合は、何も適用せずにエラーを返す。
package migration

import (
	"cmp"
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strconv"
	"strings"
)

const upSuffix = ".up.sql"

// ErrChecksumMismatch は適用済みのマイグレーションの内容が変わっていることを表す。
var ErrChecksumMismatch = errors.New("適用済みのマイグレーションが変更されています")

// Migration は1つのupマイグレーション。
type Migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

// Set はバージョン順に並んだマイグレーションの集合。
type Set struct {
	migrations []Migration
}

// Load はfsysのdir直下からupマイグレーションを読み込む。
// .up.sqlで終わるのに名前の形式が不正なファイルや、バージョンの重複はエラーにする。
func Load(fsys fs.FS, dir string) (*Set, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("ディレクトリ %s の読み込みに失敗: %w", dir, err)
	}

	set := &Set{}
	byVersion := make(map[int]string)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), upSuffix) {
			continue
		}
		version, name, err := parseFilename(entry.Name())
		if err != nil {
			return nil, err
		}
		if prev, ok := byVersion[version]; ok {
			return nil, fmt.Errorf("バージョン %06d が重複しています: %s, %s", version, prev, entry.Name())
		}
		byVersion[version] = entry.Name()

		content, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("%s の読み込みに失敗: %w", entry.Name(), err)
		}
		sum := sha256.Sum256(content)
		set.migrations = append(set.migrations, Migration{
			Version:  version,
			Name:     name,
			SQL:      string(content),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}

	slices.SortFunc(set.migrations, func(a, b Migration) int {
		return cmp.Compare(a.Version, b.Version)
	})
	return set, nil
}

// parseFilename は "000001_create_events.up.sql" をバージョンと名前に分ける。
func parseFilename(filename string) (int, string, error) {
	prefix, name, ok := strings.Cut(strings.TrimSuffix(filename, upSuffix), "_")
	if !ok || name == "" {
		return 0, "", fmt.Errorf("マイグレーションのファイル名が不正です: %s", filename)
	}
	version, err := strconv.Atoi(prefix)
	if err != nil || version <= 0 {
		return 0, "", fmt.Errorf("マイグレーションのバージョンが不正です: %s", filename)
	}
	return version, name, nil
}

// Migrations は読み込んだマイグレーションをバージョン順に返す。
func (s *Set) Migrations() []Migration {
	return slices.Clone(s.migrations)
}

// Pending は未適用のマイグレーションを返す。
// 適用済みのマイグレーションのチェックサムが一致しない場合はErrChecksumMismatchを返す。
func (s *Set) Pending(ctx context.Context, db *sql.DB) ([]Migration, error) {
	if err := createTable(ctx, db); err != nil {
		return nil, err
	}
	applied, err := appliedChecksums(ctx, db)
	if err != nil {
		return nil, err
	}

	var pending []Migration
	for _, m := range s.migrations {
		sum, ok := applied[m.Version]
		switch {
		case !ok:
			pending = append(pending, m)
		case sum != m.Checksum:
			return nil, fmt.Errorf("%w: %06d_%s", ErrChecksumMismatch, m.Version, m.Name)
		}
	}
	return pending, nil
}

// Apply は未適用のマイグレーションを1つずつトランザクション内で適用し、適用した数を返す。
// 途中で失敗した場合、それ以前に適用したものは残る。
func (s *Set) Apply(ctx context.Context, db *sql.DB) (int, error) {
	pending, err := s.Pending(ctx, db)
	if err != nil {
		return 0, err
	}
	for i, m := range pending {
		if err := apply(ctx, db, m); err != nil {
			return i, fmt.Errorf("マイグレーション %06d_%s の適用に失敗: %w", m.Version, m.Name, err)
		}
		slog.InfoContext(ctx, "マイグレーションを適用しました", "version", m.Version, "name", m.Name)
	}
	return len(pending), nil
}

// Run はfsysのdirからマイグレーションを読み込み、未適用のものを適用する。
func Run(ctx context.Context, db *sql.DB, fsys fs.FS, dir string) error {
	set, err := Load(fsys, dir)
	if err != nil {
		return err
	}
	_, err = set.Apply(ctx, db)
	return err
}

func createTable(ctx context.Context, db *sql.DB) error {
	const ddl = `CREATE TABLE IF NOT EXISTS schema_migrations (
	version    INTEGER PRIMARY KEY,
	name       TEXT NOT NULL,
	checksum   TEXT NOT NULL,
	applied_at TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("schema_migrations の作成に失敗: %w", err)
	}
	return nil
}

// appliedChecksums は適用済みバージョンごとのチェックサムを返す。
func appliedChecksums(ctx context.Context, db *sql.DB) (map[int]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT version, checksum FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("適用済みバージョンの取得に失敗: %w", err)
	}
	defer func() { _ = rows.Close() }()

	applied := make(map[int]string)
	for rows.Next() {
		var (
			version int
			sum     string
		)
		if err := rows.Scan(&version, &sum); err != nil {
			return nil, fmt.Errorf("適用済みバージョンの読み込みに失敗: %w", err)
		}
		applied[version] = sum
	}
	return applied, rows.Err()
}

func apply(ctx context.Context, db *sql.DB, m Migration) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, m.SQL); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, checksum) VALUES (?, ?, ?)`,
		m.Version, m.Name, m.Checksum,
	); err != nil {
		return err
	}
	return tx.Commit()
}
