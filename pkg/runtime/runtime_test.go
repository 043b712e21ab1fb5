package runtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	appconfig "github.com/saker-ai/assistant-bridge/internal/config"
)

func TestNewWithConfigServesHealth(t *testing.T) {
	cfg := appconfig.Config{
		HTTPAddr:   "127.0.0.1:0",
		AudioDir:   t.TempDir(),
		StateStore: appconfig.StateStoreConfig{Backend: "memory"},
	}
	srv, err := NewWithConfig(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewWithConfig error: %v", err)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status=%d, want 200", rec.Code)
	}
	if srv.Addr() != "127.0.0.1:0" {
		t.Fatalf("Addr=%q", srv.Addr())
	}
	if err := srv.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown error: %v", err)
	}
}

func TestNewWithConfigRejectsBadStore(t *testing.T) {
	cfg := appconfig.Config{StateStore: appconfig.StateStoreConfig{Backend: "file", Dir: ""}}
	if _, err := NewWithConfig(context.Background(), cfg, nil); err == nil {
		t.Fatalf("NewWithConfig with empty file dir succeeded")
	}
}

func TestRunReportsMissingTLSFiles(t *testing.T) {
	dir := t.TempDir()
	cfg := appconfig.Config{
		HTTPAddr:    "127.0.0.1:0",
		TLSCertPath: filepath.Join(dir, "missing.crt"),
		TLSKeyPath:  filepath.Join(dir, "missing.key"),
		StateStore:  appconfig.StateStoreConfig{Backend: "memory"},
	}
	srv, err := NewWithConfig(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewWithConfig error: %v", err)
	}
	if err := srv.Run(); err == nil {
		t.Fatalf("Run with missing tls files succeeded")
	}
}
