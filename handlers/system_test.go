package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/johnwmail/haste/internal/settings"
)

func TestHealthReportsBackend(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		storage string
		version string
	}{
		{"memory", "dev"},
		{"dynamodb", "1.2.3"},
		{"s3", "v0.4.0-rc1"},
	}

	for _, tt := range tests {
		t.Run(tt.storage, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			NewSystemHandler(tt.storage, tt.version).Health(c)

			if w.Code != http.StatusOK {
				t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
			}
			var response map[string]string
			if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
				t.Fatalf("Failed to unmarshal response: %v", err)
			}
			want := map[string]string{"status": "ok", "service": "haste", "storage": tt.storage, "version": tt.version}
			for field, value := range want {
				if response[field] != value {
					t.Errorf("Expected %s %q, got %q", field, value, response[field])
				}
			}
		})
	}
}

func newPassRouter(t *testing.T, st *settings.Store) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	h := NewPassHandler(st, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := gin.New()
	r.GET("/pass", h.Get)
	r.POST("/pass", h.Rotate)
	return r
}

func passFrom(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var response map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &response); err != nil {
		t.Fatalf("Failed to unmarshal response: %v", err)
	}
	return response["password"]
}

func TestPassRotatePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".settings.json")
	st, err := settings.Open(path)
	if err != nil {
		t.Fatalf("Failed to open settings: %v", err)
	}
	r := newPassRouter(t, st)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/pass", nil))
	if got := passFrom(t, w); got != st.Password() {
		t.Fatalf("Expected current password %q, got %q", st.Password(), got)
	}
	old := st.Password()

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/pass", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status %d, got %d", http.StatusOK, w.Code)
	}
	rotated := passFrom(t, w)
	if rotated == old || len(rotated) != settings.PasswordLength {
		t.Fatalf("Expected a fresh %d-char password, got %q", settings.PasswordLength, rotated)
	}

	reopened, err := settings.Open(path)
	if err != nil {
		t.Fatalf("Failed to reopen settings: %v", err)
	}
	if reopened.Password() != rotated {
		t.Errorf("Expected rotated password to survive a restart, got %q", reopened.Password())
	}
}

func TestPassRotateFailureKeepsPassword(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "conf")
	st, err := settings.Open(filepath.Join(dir, ".settings.json"))
	if err != nil {
		t.Fatalf("Failed to open settings: %v", err)
	}
	old := st.Password()

	// a regular file where the settings directory was makes saving fail
	if err := os.RemoveAll(dir); err != nil {
		t.Fatalf("Failed to remove settings dir: %v", err)
	}
	if err := os.WriteFile(dir, nil, 0o644); err != nil {
		t.Fatalf("Failed to replace settings dir: %v", err)
	}

	w := httptest.NewRecorder()
	newPassRouter(t, st).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/pass", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected status %d, got %d", http.StatusInternalServerError, w.Code)
	}
	if st.Password() != old {
		t.Errorf("Expected password to stay %q after a failed rotation, got %q", old, st.Password())
	}
}
