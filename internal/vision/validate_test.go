package vision

import (
	"bytes"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nao1215/imagegate/pkg/apperror"
)

// assertValidation はerrが指定メッセージの検証エラーであることを確認する。
func assertValidation(t *testing.T, err error, want string) {
	t.Helper()
	var appErr *apperror.Error
	if !errors.As(err, &appErr) {
		t.Fatalf("error = %v, want *apperror.Error", err)
	}
	if appErr.Kind != apperror.KindValidation {
		t.Errorf("Kind = %v, want validation", appErr.Kind)
	}
	if want != "" && appErr.Message != want {
		t.Errorf("Message = %q, want %q", appErr.Message, want)
	}
}

// TestFormFile はフォームからのファイル取得を検証する。
func TestFormFile(t *testing.T) {
	t.Parallel()

	t.Run("別のフィールド名ではファイル無しになること", func(t *testing.T) {
		t.Parallel()
		req := uploadRequest(t, "image", "a.jpg", "image/jpeg", []byte("data"))
		_, err := FormFile(req, MaxUploadSize)
		assertValidation(t, err, MessageNoFile)
	})

	t.Run("マルチパートでないリクエストはファイル無しになること", func(t *testing.T) {
		t.Parallel()
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		req.Header.Set("Content-Type", "application/json")
		_, err := FormFile(req, MaxUploadSize)
		assertValidation(t, err, MessageNoFile)
	})

	t.Run("ボディの上限を超えるとサイズ超過になること", func(t *testing.T) {
		t.Parallel()
		req := uploadRequest(t, FormField, "big.jpg", "image/jpeg", bytes.Repeat([]byte{0xFF}, 2048))
		req.Body = http.MaxBytesReader(httptest.NewRecorder(), req.Body, 512)
		_, err := FormFile(req, MaxUploadSize)
		assertValidation(t, err, "file too large: maximum size is 4 MB")
	})

	t.Run("サイズ超過のメッセージには指定した上限を示すこと", func(t *testing.T) {
		t.Parallel()
		req := uploadRequest(t, FormField, "big.jpg", "image/jpeg", bytes.Repeat([]byte{0xFF}, 2048))
		req.Body = http.MaxBytesReader(httptest.NewRecorder(), req.Body, 512)
		_, err := FormFile(req, 2<<20)
		assertValidation(t, err, "file too large: maximum size is 2 MB")
	})
}

// TestTooLargeMessage はサイズ超過メッセージの単位を検証する。
func TestTooLargeMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		maxSize int64
		want    string
	}{
		{name: "MB単位", maxSize: 4 << 20, want: "file too large: maximum size is 4 MB"},
		{name: "KB単位", maxSize: 1536 << 10, want: "file too large: maximum size is 1536 KB"},
		{name: "バイト単位", maxSize: 1000, want: "file too large: maximum size is 1000 bytes"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := tooLargeMessage(tt.maxSize); got != tt.want {
				t.Errorf("tooLargeMessage(%d) = %q, want %q", tt.maxSize, got, tt.want)
			}
		})
	}
}

// TestReadUpload はアップロードファイルの検証を検証する。
func TestReadUpload(t *testing.T) {
	t.Parallel()

	t.Run("許可されたMIMEタイプのファイルを読み込めること", func(t *testing.T) {
		t.Parallel()
		for _, ct := range AllowedContentTypes {
			t.Run(ct, func(t *testing.T) {
				t.Parallel()
				data := []byte("image-bytes")
				upload, err := ReadUpload(fileHeader(t, "dir/photo.img", ct, data), MaxUploadSize)
				if err != nil {
					t.Fatalf("ReadUpload() error = %v", err)
				}
				if upload.ContentType != ct {
					t.Errorf("ContentType = %q, want %q", upload.ContentType, ct)
				}
				if upload.Filename != "photo.img" {
					t.Errorf("Filename = %q, want %q", upload.Filename, "photo.img")
				}
				if !bytes.Equal(upload.Data, data) {
					t.Errorf("Data = %q, want %q", upload.Data, data)
				}
			})
		}
	})

	t.Run("MIMEタイプのパラメータと大文字を正規化すること", func(t *testing.T) {
		t.Parallel()
		upload, err := ReadUpload(fileHeader(t, "a.png", "Image/PNG; charset=binary", []byte("x")), MaxUploadSize)
		if err != nil {
			t.Fatalf("ReadUpload() error = %v", err)
		}
		if upload.ContentType != "image/png" {
			t.Errorf("ContentType = %q, want image/png", upload.ContentType)
		}
	})

	t.Run("許可されていないMIMEタイプは拒否し許可リストを示すこと", func(t *testing.T) {
		t.Parallel()
		_, err := ReadUpload(fileHeader(t, "a.pdf", "application/pdf", []byte("x")), MaxUploadSize)
		assertValidation(t, err, "")
		if !strings.Contains(err.Error(), "image/jpeg, image/png, image/gif, image/bmp, image/webp") {
			t.Errorf("メッセージに許可リストが含まれない: %v", err)
		}
	})

	t.Run("MIMEタイプが無いファイルは拒否すること", func(t *testing.T) {
		t.Parallel()
		fh := fileHeader(t, "a.jpg", "", []byte("x"))
		fh.Header.Del("Content-Type")
		_, err := ReadUpload(fh, MaxUploadSize)
		assertValidation(t, err, unsupportedTypeMessage(""))
	})

	t.Run("空のファイルは拒否すること", func(t *testing.T) {
		t.Parallel()
		_, err := ReadUpload(fileHeader(t, "a.jpg", "image/jpeg", nil), MaxUploadSize)
		assertValidation(t, err, MessageEmptyFile)
	})

	t.Run("申告サイズではなく実際のサイズで判定すること", func(t *testing.T) {
		t.Parallel()
		fh := fileHeader(t, "a.jpg", "image/jpeg", bytes.Repeat([]byte{1}, 3<<20))
		fh.Size = 10
		_, err := ReadUpload(fh, 2<<20)
		assertValidation(t, err, "file too large: maximum size is 2 MB")
	})

	t.Run("上限ちょうどのファイルは許可すること", func(t *testing.T) {
		t.Parallel()
		const limit = 1 << 20
		upload, err := ReadUpload(fileHeader(t, "a.jpg", "image/jpeg", bytes.Repeat([]byte{1}, limit)), limit)
		if err != nil {
			t.Fatalf("ReadUpload() error = %v", err)
		}
		if len(upload.Data) != limit {
			t.Errorf("len(Data) = %d, want %d", len(upload.Data), limit)
		}
	})

	t.Run("上限を1バイト超えるファイルは拒否すること", func(t *testing.T) {
		t.Parallel()
		const limit = 1 << 20
		_, err := ReadUpload(fileHeader(t, "a.jpg", "image/jpeg", bytes.Repeat([]byte{1}, limit+1)), limit)
		assertValidation(t, err, "file too large: maximum size is 1 MB")
	})

	t.Run("nilのFileHeaderはファイル無しになること", func(t *testing.T) {
		t.Parallel()
		_, err := ReadUpload(nil, MaxUploadSize)
		assertValidation(t, err, MessageNoFile)
	})
}
