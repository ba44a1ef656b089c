package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnwmail/haste/internal/config"
	"github.com/johnwmail/haste/internal/keygen"
	"github.com/johnwmail/haste/internal/services"
	"github.com/johnwmail/haste/internal/storage"
)

type testEnv struct {
	router  *gin.Engine
	service *services.DocumentService
	store   storage.Store
	config  *config.Config
}

func newTestEnv(t *testing.T, opts services.Options) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.DefaultConfig()
	cfg.Documents = map[string]string{"about": "about.md"}
	cfg.BaseURL = "https://haste.example"

	store := storage.NewMemoryStore()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := services.NewDocumentService(store, keygen.NewRandom(8), opts, logger, nil)
	h := NewDocumentHandler(svc, cfg, logger)

	r := gin.New()
	r.POST("/documents", h.Create)
	r.POST("/public/documents", h.CreatePublic)
	r.GET("/documents/:id", h.Get)
	r.HEAD("/documents/:id", h.Head)
	r.DELETE("/documents/:id", h.Delete)
	r.GET("/public/:id", h.Public)
	r.GET("/raw/:id", h.Raw)
	r.GET("/recent", h.Recent)
	r.GET("/keys/:keys", h.Keys)

	return &testEnv{router: r, service: svc, store: store, config: cfg}
}

func (e *testEnv) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) post(t *testing.T, body string, headers map[string]string) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(body))
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := e.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	key, _ := resp["key"].(string)
	require.NotEmpty(t, key)
	return key
}

func TestCreateAndGet(t *testing.T) {
	env := newTestEnv(t, services.Options{})
	key := env.post(t, "package main\n", map[string]string{"X-Filename": "main.go"})

	w := env.do(httptest.NewRequest(http.MethodGet, "/documents/"+key, nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, key, resp["key"])
	assert.Equal(t, "package main\n", resp["data"])
	assert.Equal(t, float64(len("package main\n")), resp["size"])
	assert.Equal(t, "go", resp["syntax"])
}

func TestGetIgnoresExtension(t *testing.T) {
	env := newTestEnv(t, services.Options{})
	key := env.post(t, "x = 1", nil)

	w := env.do(httptest.NewRequest(http.MethodGet, "/documents/"+key+".py", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetMissing(t *testing.T) {
	env := newTestEnv(t, services.Options{})

	w := env.do(httptest.NewRequest(http.MethodGet, "/documents/nothere", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Document not found.", resp["message"])
}

func TestCreateRejections(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		headers map[string]string
		want    int
	}{
		{"empty", "", nil, http.StatusBadRequest},
		{"too large", strings.Repeat("a", 65), nil, http.StatusRequestEntityTooLarge},
		{"bad ttl", "hello", map[string]string{"X-TTL": "tomorrow"}, http.StatusBadRequest},
		{"bad burn flag", "hello", map[string]string{"X-Burn-After-Read": "maybe"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, services.Options{MaxLength: 64})
			req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader(tt.body))
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			w := env.do(req)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestCreateAtLimit(t *testing.T) {
	env := newTestEnv(t, services.Options{MaxLength: 64})
	env.post(t, strings.Repeat("a", 64), nil)
}

func TestCreateMultipart(t *testing.T) {
	env := newTestEnv(t, services.Options{})

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", "notes.md")
	require.NoError(t, err)
	_, err = fw.Write([]byte("# notes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := env.do(req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	meta, err := env.service.ReadMetadata(context.Background(), resp["key"], false)
	require.NoError(t, err)
	assert.Equal(t, "md", meta.Syntax)
	assert.Equal(t, int64(len("# notes")), meta.Size)
}

func TestCreateWithTTL(t *testing.T) {
	env := newTestEnv(t, services.Options{})
	req := httptest.NewRequest(http.MethodPost, "/documents", strings.NewReader("short lived"))
	req.Header.Set("X-TTL", "1h")
	w := env.do(req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Key       string     `json:"key"`
		ExpiresAt *time.Time `json:"expires_at"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.ExpiresAt)
	assert.WithinDuration(t, time.Now().Add(time.Hour), *resp.ExpiresAt, time.Minute)
}

func TestCreatePublicReturnsURL(t *testing.T) {
	env := newTestEnv(t, services.Options{})
	w := env.do(httptest.NewRequest(http.MethodPost, "/public/documents", strings.NewReader("hello")))
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "https://haste.example/"+resp["key"], resp["url"])
}

func TestHead(t *testing.T) {
	env := newTestEnv(t, services.Options{})
	key := env.post(t, "body", map[string]string{"X-Syntax": "txt"})

	w := env.do(httptest.NewRequest(http.MethodHead, "/documents/"+key, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "4", w.Header().Get("Content-Length"))
	assert.Equal(t, "text/plain", w.Header().Get("X-Mimetype"))
	assert.Equal(t, "txt", w.Header().Get("X-Syntax"))
	assert.Empty(t, w.Body.String())

	w = env.do(httptest.NewRequest(http.MethodHead, "/documents/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPublicAndRaw(t *testing.T) {
	env := newTestEnv(t, services.Options{})
	key := env.post(t, "<script>alert(1)</script>", map[string]string{"Content-Type": "text/html"})

	w := env.do(httptest.NewRequest(http.MethodGet, "/public/"+key, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "<script>alert(1)</script>", w.Body.String())

	w = env.do(httptest.NewRequest(http.MethodGet, "/raw/"+key, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "text/html", w.Header().Get("X-Mimetype"))
}

func TestRawContentTypes(t *testing.T) {
	tests := []struct {
		name           string
		contentType    string
		wantType       string
		wantAttachment bool
	}{
		{"png served inline", "image/png", "image/png", false},
		{"svg offered as download", "image/svg+xml", "image/svg+xml", true},
		{"xhtml offered as download", "application/xhtml+xml", "application/xhtml+xml", true},
		{"pdf offered as download", "application/pdf", "application/pdf", true},
		{"json becomes text", "application/json", "text/plain; charset=utf-8", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, services.Options{})
			key := env.post(t, "payload", map[string]string{"Content-Type": tt.contentType})

			w := env.do(httptest.NewRequest(http.MethodGet, "/raw/"+key, nil))
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.wantType, w.Header().Get("Content-Type"))
			disposition := w.Header().Get("Content-Disposition")
			if tt.wantAttachment {
				assert.True(t, strings.HasPrefix(disposition, "attachment"), disposition)
			} else {
				assert.Empty(t, disposition)
			}

			w = env.do(httptest.NewRequest(http.MethodGet, "/public/"+key, nil))
			assert.Equal(t, "text/plain; charset=utf-8", w.Header().Get("Content-Type"))
		})
	}
}

func TestBurnAfterRead(t *testing.T) {
	env := newTestEnv(t, services.Options{})
	key := env.post(t, "secret", map[string]string{"X-Burn-After-Read": "true"})

	// metadata lookups do not consume the document
	w := env.do(httptest.NewRequest(http.MethodHead, "/documents/"+key, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "true", w.Header().Get("X-Burn-After-Read"))

	w = env.do(httptest.NewRequest(http.MethodGet, "/raw/"+key, nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "secret", w.Body.String())

	w = env.do(httptest.NewRequest(http.MethodGet, "/raw/"+key, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDelete(t *testing.T) {
	env := newTestEnv(t, services.Options{})
	key := env.post(t, "to remove", nil)

	w := env.do(httptest.NewRequest(http.MethodDelete, "/documents/"+key, nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(httptest.NewRequest(http.MethodGet, "/documents/"+key, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(httptest.NewRequest(http.MethodDelete, "/documents/"+key, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStaticDocumentSkipsExpiry(t *testing.T) {
	env := newTestEnv(t, services.Options{})
	ctx := context.Background()

	// an expired document under a configured static name
	past := time.Now().Add(-time.Hour)
	require.NoError(t, env.store.Set(ctx, &storage.Document{
		Key:       "about",
		Content:   []byte("about haste"),
		CreatedAt: past.Add(-time.Hour),
		ExpiresAt: &past,
	}))

	w := env.do(httptest.NewRequest(http.MethodGet, "/documents/about.md", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRecent(t *testing.T) {
	env := newTestEnv(t, services.Options{})

	w := env.do(httptest.NewRequest(http.MethodGet, "/recent", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	first := env.post(t, "one", nil)
	time.Sleep(2 * time.Millisecond)
	second := env.post(t, "two", nil)

	w = env.do(httptest.NewRequest(http.MethodGet, "/recent", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var list []storage.Summary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, second, list[0].Key)
	assert.Equal(t, first, list[1].Key)
}

func TestKeys(t *testing.T) {
	env := newTestEnv(t, services.Options{})
	key := env.post(t, "known", nil)

	w := env.do(httptest.NewRequest(http.MethodGet, "/keys/"+key+",unknown", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]*services.Metadata
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Contains(t, resp, key)
	require.Contains(t, resp, "unknown")
	assert.Equal(t, int64(5), resp[key].Size)
	assert.Nil(t, resp["unknown"])

	w = env.do(httptest.NewRequest(http.MethodGet, "/keys/,", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{nil, http.StatusOK},
		{services.ErrNotFound, http.StatusNotFound},
		{services.ErrKeyExists, http.StatusConflict},
		{services.ErrTooLarge, http.StatusRequestEntityTooLarge},
		{services.ErrEmptyContent, http.StatusBadRequest},
		{services.ErrKeyGenerationExhausted, http.StatusServiceUnavailable},
		{services.ErrFailure, http.StatusInternalServerError},
		{io.ErrUnexpectedEOF, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
