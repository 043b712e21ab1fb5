// Package runtime wires configuration, storage and the HTTP API into a
// runnable server.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	appconfig "github.com/saker-ai/assistant-bridge/internal/config"
	apphttp "github.com/saker-ai/assistant-bridge/internal/http"
	applogger "github.com/saker-ai/assistant-bridge/internal/logger"
	"github.com/saker-ai/assistant-bridge/internal/metrics"
	"github.com/saker-ai/assistant-bridge/internal/storage"
	"github.com/saker-ai/assistant-bridge/internal/turn"
	"github.com/saker-ai/assistant-bridge/internal/ws"
	"github.com/saker-ai/assistant-bridge/pkg/assistant"
)

// Server is the assembled bridge server.
type Server struct {
	cfg    appconfig.Config
	logger *zap.Logger
	store  storage.StateStore
	server *http.Server
}

// New loads configPath (embedded defaults when empty) and builds a server.
func New(configPath string) (*Server, error) {
	cfg, err := appconfig.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := applogger.New(cfg.Log)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	logger.Info("logger configured",
		zap.String("level", cfg.Log.Level),
		zap.Bool("stdout", cfg.Log.Stdout),
		zap.Bool("file_enabled", cfg.Log.File.Enabled),
		zap.String("file_path", cfg.Log.File.Path),
	)

	return NewWithConfig(context.Background(), cfg, logger)
}

// NewWithConfig builds a server from an already loaded configuration.
func NewWithConfig(ctx context.Context, cfg appconfig.Config, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := storage.Open(ctx, cfg.StateStore)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	assistantCfg := cfg.Assistant()
	dialer := assistant.NewWebsocketDialer(assistantCfg, assistant.StaticToken(cfg.AccessToken), logger)
	m := metrics.New(cfg.MetricsNamespace)
	svc := turn.NewService(assistantCfg, dialer, store, m, logger)
	router := apphttp.NewRouter(svc, ws.NewHandler(svc, logger), m, logger)

	logger.Info("config loaded",
		zap.String("root_dir", cfg.RootDir),
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("assistant_url", assistantCfg.StreamURL()),
		zap.String("state_store", cfg.StateStore.Backend),
		zap.String("audio_dir", assistantCfg.AudioDir),
	)

	return &Server{
		cfg:    cfg,
		logger: logger,
		store:  store,
		server: &http.Server{
			Addr:    cfg.HTTPAddr,
			Handler: router,
		},
	}, nil
}

// Run serves until Shutdown. It returns nil after a graceful shutdown.
func (s *Server) Run() error {
	if s == nil || s.server == nil {
		return nil
	}
	return ignoreServerClosed(s.listen())
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	if s == nil || s.server == nil {
		return ""
	}
	return s.server.Addr
}

// Handler returns the HTTP handler, for embedding in another server.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Shutdown stops accepting requests, waits for running ones and closes the
// state store.
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil || s.server == nil {
		return nil
	}
	shutdownErr := ignoreServerClosed(s.server.Shutdown(ctx))
	return errors.Join(shutdownErr, s.store.Close())
}

// Logger returns the server logger.
func (s *Server) Logger() *zap.Logger {
	return s.logger
}

func ignoreServerClosed(err error) error {
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) listen() error {
	certPath := filepath.Clean(s.cfg.TLSCertPath)
	keyPath := filepath.Clean(s.cfg.TLSKeyPath)
	if s.cfg.TLSCertPath != "" && s.cfg.TLSKeyPath != "" {
		if !fileExists(certPath) || !fileExists(keyPath) {
			return fmt.Errorf("tls files missing: cert=%s key=%s", certPath, keyPath)
		}
		s.logger.Info("starting https server", zap.String("addr", s.cfg.HTTPAddr))
		return s.server.ListenAndServeTLS(certPath, keyPath)
	}
	s.logger.Info("starting http server", zap.String("addr", s.cfg.HTTPAddr))
	return s.server.ListenAndServe()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
