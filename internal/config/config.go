package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	appdefaults "github.com/saker-ai/assistant-bridge/config"
	"github.com/saker-ai/assistant-bridge/internal/logger"
	"github.com/saker-ai/assistant-bridge/internal/transport/assistant/codec"
	"github.com/saker-ai/assistant-bridge/pkg/assistant"
)

const (
	envPrefix  = "assistant"
	rootDirEnv = "ASSISTANT_ROOT_DIR"
)

// StateStoreConfig selects where conversation state is kept between turns.
type StateStoreConfig struct {
	Backend       string        `mapstructure:"backend" yaml:"backend"`
	Dir           string        `mapstructure:"dir" yaml:"dir"`
	RedisAddr     string        `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password" yaml:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db" yaml:"redis_db"`
	TTL           time.Duration `mapstructure:"ttl" yaml:"ttl"`
}

// Config is the application configuration.
type Config struct {
	RootDir string `mapstructure:"-" yaml:"-"`

	HTTPAddr    string `mapstructure:"http_addr" yaml:"http_addr"`
	TLSCertPath string `mapstructure:"tls_cert_path" yaml:"tls_cert_path"`
	TLSKeyPath  string `mapstructure:"tls_key_path" yaml:"tls_key_path"`

	AssistantAPIEndpoint string        `mapstructure:"assistant_api_endpoint" yaml:"assistant_api_endpoint"`
	AssistantAPIPath     string        `mapstructure:"assistant_api_path" yaml:"assistant_api_path"`
	ProtocolVersion      int           `mapstructure:"protocol_version" yaml:"protocol_version"`
	AccessToken          string        `mapstructure:"access_token" yaml:"access_token"`
	DialTimeout          time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	StreamTimeout        time.Duration `mapstructure:"stream_timeout" yaml:"stream_timeout"`

	AudioSampleRate    int    `mapstructure:"audio_sample_rate" yaml:"audio_sample_rate"`
	ChunkSize          int    `mapstructure:"chunk_size" yaml:"chunk_size"`
	VolumePercent      int    `mapstructure:"volume_percent" yaml:"volume_percent"`
	AudioOutEncoding   string `mapstructure:"audio_out_encoding" yaml:"audio_out_encoding"`
	AudioOutSampleRate int    `mapstructure:"audio_out_sample_rate" yaml:"audio_out_sample_rate"`
	AudioDir           string `mapstructure:"audio_dir" yaml:"audio_dir"`

	StateStore       StateStoreConfig `mapstructure:"state_store" yaml:"state_store"`
	MetricsNamespace string           `mapstructure:"metrics_namespace" yaml:"metrics_namespace"`
	Log              logger.Config    `mapstructure:"log" yaml:"log"`
}

// Assistant returns the client settings derived from c.
func (c Config) Assistant() assistant.Config {
	return assistant.Config{
		Endpoint:           c.AssistantAPIEndpoint,
		Path:               c.AssistantAPIPath,
		ProtocolVersion:    c.ProtocolVersion,
		AudioSampleRate:    c.AudioSampleRate,
		ChunkSize:          c.ChunkSize,
		VolumePercent:      c.VolumePercent,
		AudioOutEncoding:   assistant.AudioOutEncoding(c.AudioOutEncoding),
		AudioOutSampleRate: c.AudioOutSampleRate,
		DialTimeout:        c.DialTimeout,
		StreamTimeout:      c.StreamTimeout,
		AudioDir:           c.AudioDir,
	}.Normalize()
}

// Load reads the embedded defaults, then conf.yaml from the root directory
// when present, then ASSISTANT_* environment variables.
func Load() (Config, error) {
	rootDir, err := resolveRootDir()
	if err != nil {
		return Config{}, err
	}
	if err := loadDotEnv(rootDir); err != nil {
		return Config{}, err
	}

	v, err := newViper()
	if err != nil {
		return Config{}, err
	}
	v.SetConfigName("conf")
	v.AddConfigPath(rootDir)
	if err := v.MergeInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, err
		}
	}
	return decode(v, rootDir)
}

// LoadConfig reads configPath on top of the embedded defaults. An empty path
// behaves like Load.
func LoadConfig(configPath string) (Config, error) {
	path := strings.TrimSpace(configPath)
	if path == "" {
		return Load()
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return Config{}, err
	}

	rootDir := strings.TrimSpace(os.Getenv(rootDirEnv))
	if rootDir == "" {
		rootDir = filepath.Dir(absPath)
		if filepath.Base(rootDir) == "config" {
			rootDir = filepath.Dir(rootDir)
		}
	}
	if err := loadDotEnv(rootDir); err != nil {
		return Config{}, err
	}

	v, err := newViper()
	if err != nil {
		return Config{}, err
	}
	v.SetConfigFile(absPath)
	if err := v.MergeInConfig(); err != nil {
		return Config{}, err
	}
	return decode(v, rootDir)
}

func newViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if err := v.ReadConfig(bytes.NewReader(appdefaults.Default)); err != nil {
		return nil, fmt.Errorf("load embedded config: %w", err)
	}

	v.SetDefault("http_addr", ":8101")
	v.SetDefault("assistant_api_endpoint", assistant.DefaultEndpoint)
	v.SetDefault("assistant_api_path", assistant.DefaultPath)
	v.SetDefault("protocol_version", 1)
	v.SetDefault("audio_sample_rate", assistant.DefaultSampleRate)
	v.SetDefault("chunk_size", assistant.DefaultChunkSize)
	v.SetDefault("volume_percent", assistant.DefaultVolumePercent)
	v.SetDefault("audio_out_encoding", string(assistant.OutputMP3))
	v.SetDefault("audio_out_sample_rate", assistant.DefaultAudioOutSampleRate)
	v.SetDefault("state_store.backend", "file")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.stdout", true)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v, nil
}

func decode(v *viper.Viper, rootDir string) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	cfg.RootDir = rootDir
	derivePaths(&cfg)
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validate(cfg Config) error {
	switch strings.ToLower(cfg.StateStore.Backend) {
	case "memory", "file", "redis":
	default:
		return fmt.Errorf("unknown state_store.backend %q", cfg.StateStore.Backend)
	}
	if cfg.VolumePercent < 0 || cfg.VolumePercent > 100 {
		return fmt.Errorf("volume_percent %d out of range 0..100", cfg.VolumePercent)
	}
	if cfg.ChunkSize < 0 {
		return fmt.Errorf("chunk_size %d must not be negative", cfg.ChunkSize)
	}
	if limit := codec.MaxPayload(cfg.ProtocolVersion); cfg.ChunkSize > limit {
		return fmt.Errorf("chunk_size %d exceeds %d bytes allowed by protocol_version %d", cfg.ChunkSize, limit, cfg.ProtocolVersion)
	}
	return nil
}

func loadDotEnv(rootDir string) error {
	err := godotenv.Load(filepath.Join(rootDir, ".env"))
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("load .env: %w", err)
}

func resolveRootDir() (string, error) {
	if root := strings.TrimSpace(os.Getenv(rootDirEnv)); root != "" {
		return filepath.Abs(root)
	}

	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}

	dir := wd
	for i := 0; i < 6; i++ {
		if fileExists(filepath.Join(dir, "conf.yaml")) {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return wd, nil
}

func derivePaths(cfg *Config) {
	cfg.AudioDir = resolvePath(cfg.RootDir, cfg.AudioDir, filepath.Join("data", "audio"))
	cfg.StateStore.Dir = resolvePath(cfg.RootDir, cfg.StateStore.Dir, filepath.Join("data", "conversations"))
	cfg.StateStore.Backend = strings.ToLower(strings.TrimSpace(cfg.StateStore.Backend))
	if cfg.TLSCertPath != "" {
		cfg.TLSCertPath = resolvePath(cfg.RootDir, cfg.TLSCertPath, "")
	}
	if cfg.TLSKeyPath != "" {
		cfg.TLSKeyPath = resolvePath(cfg.RootDir, cfg.TLSKeyPath, "")
	}
	if !filepath.IsAbs(cfg.Log.File.Path) && cfg.Log.File.Path != "" {
		cfg.Log.File.Path = filepath.Join(cfg.RootDir, cfg.Log.File.Path)
	}
}

func resolvePath(rootDir string, configured string, fallback string) string {
	path := strings.TrimSpace(configured)
	if path == "" {
		path = fallback
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(rootDir, path)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
