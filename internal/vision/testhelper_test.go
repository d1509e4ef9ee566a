package vision

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// multipartBody はfieldに1ファイルを含むマルチパートボディを作成する。
func multipartBody(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	if contentType != "" {
		header.Set("Content-Type", contentType)
	}
	part, err := w.CreatePart(header)
	if err != nil {
		t.Fatalf("パートの作成に失敗: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("パートの書き込みに失敗: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("マルチパートのクローズに失敗: %v", err)
	}
	return &buf, w.FormDataContentType()
}

// uploadRequest はマルチパートのアップロードリクエストを作成する。
func uploadRequest(t *testing.T, field, filename, contentType string, data []byte) *http.Request {
	t.Helper()
	body, formType := multipartBody(t, field, filename, contentType, data)
	req := httptest.NewRequest(http.MethodPost, "/api/AnalyzeImage", body)
	req.Header.Set("Content-Type", formType)
	return req
}

// fileHeader はReadUploadに渡すFileHeaderを作成する。
func fileHeader(t *testing.T, filename, contentType string, data []byte) *multipart.FileHeader {
	t.Helper()
	req := uploadRequest(t, FormField, filename, contentType, data)
	fh, err := FormFile(req, MaxUploadSize)
	if err != nil {
		t.Fatalf("FormFile() error = %v", err)
	}
	return fh
}
