package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "semplan.yaml"
	// UserConfigDir is the directory for user-level config
	UserConfigDir = ".config/semplan"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "SEMPLAN_"
)

// Loader handles configuration loading with layered precedence
type Loader struct {
	logger       *slog.Logger
	explicitPath string
	getenv       func(string) string
	homeDir      func() (string, error)
	workDir      func() (string, error)
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithConfigFile replaces the project config search with an explicit file,
// which must exist.
func WithConfigFile(path string) LoaderOption {
	return func(l *Loader) { l.explicitPath = path }
}

// WithEnv replaces os.Getenv for environment overrides.
func WithEnv(getenv func(string) string) LoaderOption {
	return func(l *Loader) { l.getenv = getenv }
}

// WithDirs replaces the home and working directory used for file discovery.
func WithDirs(home, work string) LoaderOption {
	return func(l *Loader) {
		l.homeDir = func() (string, error) { return home, nil }
		l.workDir = func() (string, error) { return work, nil }
	}
}

// NewLoader creates a new configuration loader
func NewLoader(logger *slog.Logger, opts ...LoaderOption) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Loader{
		logger:  logger,
		getenv:  os.Getenv,
		homeDir: os.UserHomeDir,
		workDir: os.Getwd,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load loads configuration with layered precedence:
//  1. Default config
//  2. User config (~/.config/semplan/config.yaml)
//  3. Project config (semplan.yaml in current or parent directories), or the
//     explicit file given with WithConfigFile
//  4. SEMPLAN_* environment variables
func (l *Loader) Load() (*Config, error) {
	config := DefaultConfig()

	if userConfigPath := l.userConfigPath(); userConfigPath != "" {
		if overlay, err := loadOverlay(userConfigPath); err == nil {
			l.logger.Debug("Loaded user config", slog.String("path", userConfigPath))
			config.Merge(overlay)
		} else if !os.IsNotExist(err) {
			l.logger.Warn("Failed to load user config", slog.String("path", userConfigPath), slog.String("error", err.Error()))
		}
	}

	if l.explicitPath != "" {
		overlay, err := loadOverlay(l.explicitPath)
		if err != nil {
			return nil, fmt.Errorf("load config %s: %w", l.explicitPath, err)
		}
		l.logger.Debug("Loaded config file", slog.String("path", l.explicitPath))
		config.Merge(overlay)
	} else if projectConfigPath := l.findProjectConfig(); projectConfigPath != "" {
		if overlay, err := loadOverlay(projectConfigPath); err == nil {
			l.logger.Debug("Loaded project config", slog.String("path", projectConfigPath))
			config.Merge(overlay)
		} else {
			l.logger.Warn("Failed to load project config", slog.String("path", projectConfigPath), slog.String("error", err.Error()))
		}
	} else {
		l.logger.Debug("No project config found")
	}

	if err := l.applyEnv(config); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// EnsureUserConfig creates the user config file with defaults if it doesn't exist
func (l *Loader) EnsureUserConfig() error {
	userConfigPath := l.userConfigPath()
	if userConfigPath == "" {
		return fmt.Errorf("cannot determine home directory")
	}

	if _, err := os.Stat(userConfigPath); err == nil {
		return nil
	}

	if err := DefaultConfig().SaveToFile(userConfigPath); err != nil {
		return err
	}

	l.logger.Info("Created default user config", slog.String("path", userConfigPath))
	return nil
}

// loadOverlay parses a file into a zero Config so that Merge only applies the
// keys the file actually sets.
func loadOverlay(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var overlay Config
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &overlay, nil
}

// applyEnv applies SEMPLAN_* overrides.
func (l *Loader) applyEnv(c *Config) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(l.getenv(EnvPrefix + key)); v != "" {
			*dst = v
		}
	}
	var errs []string
	dur := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(l.getenv(EnvPrefix + key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, key, err))
				return
			}
			*dst = d
		}
	}
	num := func(key string, dst *int) {
		if v := strings.TrimSpace(l.getenv(EnvPrefix + key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, key, err))
				return
			}
			*dst = n
		}
	}
	flag := func(key string, dst *bool) {
		if v := strings.TrimSpace(l.getenv(EnvPrefix + key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Sprintf("%s%s: %v", EnvPrefix, key, err))
				return
			}
			*dst = b
		}
	}

	str("MODEL_REGISTRY", &c.Model.Registry)
	flag("MODEL_WATCH", &c.Model.Watch)
	num("MAX_TOKENS", &c.Model.MaxTokens)
	dur("MODEL_TIMEOUT", &c.Model.Timeout)
	str("EXTRACTION", &c.Pipeline.Extraction)
	dur("STAGE_TIMEOUT", &c.Pipeline.StageTimeout)
	str("FAILURE_POLICY", &c.Pipeline.FailurePolicy)
	num("MAX_CONCURRENT_CALLS", &c.Pipeline.MaxConcurrentCalls)
	num("RETRY_ATTEMPTS", &c.Pipeline.RetryAttempts)
	flag("JSON_MODE", &c.Pipeline.JSONMode)
	str("ADDR", &c.Server.Addr)
	str("STORAGE_DRIVER", &c.Storage.Driver)
	str("STORAGE_PATH", &c.Storage.Path)
	str("NATS_URL", &c.NATS.URL)
	str("NATS_SUBJECT", &c.NATS.Subject)

	if v := strings.TrimSpace(l.getenv(EnvPrefix + "CORS_ORIGINS")); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid environment override: %s", strings.Join(errs, "; "))
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// userConfigPath returns the path to the user config file
func (l *Loader) userConfigPath() string {
	home, err := l.homeDir()
	if err != nil || home == "" {
		return ""
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches for semplan.yaml in current and parent directories
func (l *Loader) findProjectConfig() string {
	dir, err := l.workDir()
	if err != nil {
		return ""
	}

	for {
		configPath := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}
