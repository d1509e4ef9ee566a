package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/nao1215/imagegate/pkg/event"
	"github.com/nao1215/imagegate/pkg/migration"

	// SQLiteドライバ
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// ErrNotFound は履歴が存在しない、または他の利用者のものであることを表す。
var ErrNotFound = errors.New("history: event not found")

// 一覧取得件数の既定値と上限。
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// dsnOptions は接続時に適用するSQLiteのプラグマ。
const dsnOptions = "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// timeLayout はcreated_atの保存形式。文字列の大小が時刻の前後と一致するよう固定長にする。
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// Store はSQLiteに履歴を保存する。
type Store struct {
	db *sql.DB
}

// Open はpathのSQLiteデータベースを開き、マイグレーションを適用する。
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("履歴データベースのオープンに失敗: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("履歴データベースへの接続に失敗: %w", err)
	}
	if err := migration.Run(ctx, db, migrations, "migrations"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close はデータベース接続を閉じる。
func (s *Store) Close() error {
	return s.db.Close()
}

// Record はイベントを保存する。
func (s *Store) Record(ctx context.Context, e *event.Event) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (id, user_id, event_type, data, created_at) VALUES (?, ?, ?, ?, ?)`,
		e.ID, e.UserID, string(e.EventType), string(e.Data), e.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("イベントの保存に失敗: %w", err)
	}
	return nil
}

// ListOptions は一覧取得の条件。
type ListOptions struct {
	// Type が空でなければその種類のイベントのみを返す。
	Type event.Type
	// Limit は最大件数。0以下なら既定値、上限を超える場合は上限に丸める。
	Limit int
}

// List は利用者のイベントを新しい順に返す。
func (s *Store) List(ctx context.Context, userID string, opts ListOptions) ([]*event.Event, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	limit = min(limit, MaxLimit)

	query := `SELECT id, user_id, event_type, data, created_at FROM events WHERE user_id = ?`
	args := []any{userID}
	if opts.Type != "" {
		query += ` AND event_type = ?`
		args = append(args, string(opts.Type))
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗: %w", err)
	}
	defer rows.Close()

	events := make([]*event.Event, 0, limit)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("イベントの読み込みに失敗: %w", err)
	}
	return events, nil
}

// Get は利用者のイベントを1件返す。存在しない場合はErrNotFoundを返す。
func (s *Store) Get(ctx context.Context, userID, id string) (*event.Event, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, event_type, data, created_at FROM events WHERE id = ? AND user_id = ?`,
		id, userID,
	)
	e, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return e, err
}

// Delete は利用者のイベントを削除する。存在しない場合はErrNotFoundを返す。
func (s *Store) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM events WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("イベントの削除に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*event.Event, error) {
	var (
		e         event.Event
		eventType string
		data      string
		createdAt string
	)
	if err := row.Scan(&e.ID, &e.UserID, &eventType, &data, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("イベントの読み込みに失敗: %w", err)
	}
	t, err := time.Parse(timeLayout, createdAt)
	if err != nil {
		return nil, fmt.Errorf("作成日時の解析に失敗: %w", err)
	}
	e.EventType = event.Type(eventType)
	e.Data = []byte(data)
	e.CreatedAt = t
	return &e, nil
}
