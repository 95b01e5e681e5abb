package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finsighthq/finsight/internal/analysis"
	"github.com/finsighthq/finsight/internal/api/handler"
	"github.com/finsighthq/finsight/internal/document"
)

type stubSubmitter struct {
	jobID uuid.UUID
	err   error
	got   analysis.Upload
}

func (s *stubSubmitter) Submit(_ context.Context, up analysis.Upload) (uuid.UUID, error) {
	s.got = up
	if s.err != nil {
		return uuid.Nil, s.err
	}
	return s.jobID, nil
}

const testMaxUpload = 10 << 20

// multipartBody builds a multipart form with a file part and optional query
// field, returning the body and its content type.
func multipartBody(t *testing.T, filename, contentType string, content []byte, query string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	h.Set("Content-Type", contentType)
	part, err := w.CreatePart(h)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)

	if query != "" {
		require.NoError(t, w.WriteField("query", query))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestAnalyzeHandler_Accepts(t *testing.T) {
	jobID := uuid.New()
	svc := &stubSubmitter{jobID: jobID}
	h := handler.NewAnalyzeHandler(svc, testMaxUpload)

	body, ct := multipartBody(t, "q3.pdf", "application/pdf", []byte("%PDF-1.7 body"), "outlook?")
	req := httptest.NewRequest("POST", "/analyze", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusAccepted, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, jobID.String(), resp["analysis_id"])

	assert.Equal(t, "q3.pdf", svc.got.Filename)
	assert.Equal(t, "application/pdf", svc.got.ContentType)
	assert.Equal(t, "outlook?", svc.got.Query)
	assert.Equal(t, []byte("%PDF-1.7 body"), svc.got.Raw)
}

func TestAnalyzeHandler_MissingFile(t *testing.T) {
	h := handler.NewAnalyzeHandler(&stubSubmitter{jobID: uuid.New()}, testMaxUpload)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	require.NoError(t, w.WriteField("query", "no file attached"))
	require.NoError(t, w.Close())

	req := httptest.NewRequest("POST", "/analyze", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "INVALID_REQUEST")
}

func TestAnalyzeHandler_NotMultipart(t *testing.T) {
	h := handler.NewAnalyzeHandler(&stubSubmitter{jobID: uuid.New()}, testMaxUpload)

	req := httptest.NewRequest("POST", "/analyze", bytes.NewBufferString(`{"file":"x"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAnalyzeHandler_ValidationErrorCode(t *testing.T) {
	tests := []struct {
		name string
		kind document.ErrorKind
	}{
		{"too large", document.KindTooLarge},
		{"unsupported type", document.KindUnsupportedType},
		{"corrupt content", document.KindCorruptContent},
		{"unreadable content", document.KindUnreadableContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubSubmitter{err: &document.ValidationError{Kind: tt.kind, Message: "rejected"}}
			h := handler.NewAnalyzeHandler(svc, testMaxUpload)

			body, ct := multipartBody(t, "x.pdf", "application/pdf", []byte("%PDF-"), "")
			req := httptest.NewRequest("POST", "/analyze", body)
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp map[string]map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, string(tt.kind), resp["error"]["code"])
		})
	}
}

func TestAnalyzeHandler_OversizedBody(t *testing.T) {
	h := handler.NewAnalyzeHandler(&stubSubmitter{jobID: uuid.New()}, 64)

	body, ct := multipartBody(t, "big.pdf", "application/pdf", bytes.Repeat([]byte("a"), 2<<20), "")
	req := httptest.NewRequest("POST", "/analyze", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), string(document.KindTooLarge))
}

func TestAnalyzeHandler_InternalError(t *testing.T) {
	svc := &stubSubmitter{err: errors.New("pg down")}
	h := handler.NewAnalyzeHandler(svc, testMaxUpload)

	body, ct := multipartBody(t, "x.pdf", "application/pdf", []byte("%PDF-"), "")
	req := httptest.NewRequest("POST", "/analyze", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "INTERNAL_ERROR")
}
