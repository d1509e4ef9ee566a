package vision

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/nao1215/imagegate/pkg/apperror"
)

// FormField はファイルを受け取るフォームフィールド名。
const FormField = "file"

// MaxUploadSize はアップロード可能なファイルの最大サイズ（4MB）。
const MaxUploadSize int64 = 4 << 20

// AllowedContentTypes はアップロード可能な画像のMIMEタイプ。
var AllowedContentTypes = []string{"image/jpeg", "image/png", "image/gif", "image/bmp", "image/webp"}

// 検証エラーのメッセージ。
const (
	MessageNoFile    = "No file uploaded. Please send a file in the form field named 'file'."
	MessageEmptyFile = "empty file"
)

// Upload は検証済みのアップロードファイル。ReadUploadでのみ生成する。
type Upload struct {
	// Filename はパスを除いたファイル名。
	Filename string
	// ContentType はパラメータを除いたMIMEタイプ。
	ContentType string
	// Data はファイルの内容。
	Data []byte
}

// tooLargeMessage はサイズ超過時のメッセージを返す。上限がMB単位で割り切れない場合はKBかバイトで表す。
func tooLargeMessage(maxSize int64) string {
	switch {
	case maxSize%(1<<20) == 0:
		return fmt.Sprintf("file too large: maximum size is %d MB", maxSize>>20)
	case maxSize%(1<<10) == 0:
		return fmt.Sprintf("file too large: maximum size is %d KB", maxSize>>10)
	default:
		return fmt.Sprintf("file too large: maximum size is %d bytes", maxSize)
	}
}

// unsupportedTypeMessage は許可されていないMIMEタイプのメッセージを返す。
func unsupportedTypeMessage(contentType string) string {
	if contentType == "" {
		contentType = "unknown"
	}
	return fmt.Sprintf("unsupported file type: %s. Allowed types: %s", contentType, strings.Join(AllowedContentTypes, ", "))
}

// FormFile はリクエストからアップロードファイルを取り出す。
// ファイルが無い場合や、ボディがmaxSizeを大きく超える場合は検証エラーを返す。
// maxSizeはエラーメッセージに示す上限で、ボディの制限は呼び出し側がhttp.MaxBytesReaderで行う。
func FormFile(r *http.Request, maxSize int64) (*multipart.FileHeader, error) {
	_, fh, err := r.FormFile(FormField)
	if err == nil {
		return fh, nil
	}
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return nil, apperror.Validation(tooLargeMessage(maxSize))
	case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
		return nil, apperror.Validation(MessageNoFile)
	default:
		return nil, apperror.Wrap(apperror.KindValidation, "Invalid multipart form data.", err)
	}
}

// ReadUpload はファイルを検証して読み込む。
// サイズはクライアントが申告した値ではなく、実際に読み込んだバイト数で判定する。
// 読み込むのは最大でmaxSize+1バイトまで。
func ReadUpload(fh *multipart.FileHeader, maxSize int64) (*Upload, error) {
	if fh == nil {
		return nil, apperror.Validation(MessageNoFile)
	}

	contentType := normalizeContentType(fh.Header.Get("Content-Type"))
	if !slices.Contains(AllowedContentTypes, contentType) {
		return nil, apperror.Validation(unsupportedTypeMessage(contentType))
	}

	f, err := fh.Open()
	if err != nil {
		return nil, apperror.Wrap(apperror.KindValidation, "Failed to read the uploaded file.", err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return nil, apperror.Wrap(apperror.KindValidation, "Failed to read the uploaded file.", err)
	}
	switch {
	case len(data) == 0:
		return nil, apperror.Validation(MessageEmptyFile)
	case int64(len(data)) > maxSize:
		return nil, apperror.Validation(tooLargeMessage(maxSize))
	}

	return &Upload{
		Filename:    filepath.Base(fh.Filename),
		ContentType: contentType,
		Data:        data,
	}, nil
}

// normalizeContentType はMIMEタイプからパラメータを除き小文字にする。解釈できない場合は空文字列。
func normalizeContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	return strings.ToLower(mediaType)
}
