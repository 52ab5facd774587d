package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds every setting the assistant reads. It mirrors the settings
// namespace of the editor integration.
type Config struct {
	Model              string        `yaml:"model"`
	BaseURL            string        `yaml:"base_url"`
	Timeout            int           `yaml:"timeout"` // seconds
	MaxLines           int           `yaml:"max_lines"`
	SupportedLanguages []string      `yaml:"supported_languages"`
	AutoAnalyze        bool          `yaml:"auto_analyze"`
	OutputLanguage     string        `yaml:"output_language"`
	Files              FilesConfig   `yaml:"files"`
	Cache              CacheConfig   `yaml:"cache"`
	Gitea              GiteaConfig   `yaml:"gitea"`
	Logging            LoggingConfig `yaml:"logging"`
}

// FilesConfig holds the host's own file-exclusion setting.
type FilesConfig struct {
	Exclude []string `yaml:"exclude"`
}

type CacheConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

// GiteaConfig holds the forge connection.
type GiteaConfig struct {
	BaseURL           string  `yaml:"base_url"`
	Token             string  `yaml:"token"`
	Organization      string  `yaml:"organization"`
	Repository        string  `yaml:"repository"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// Configured reports whether both the base URL and the token are set.
func (g GiteaConfig) Configured() bool {
	return strings.TrimSpace(g.BaseURL) != "" && strings.TrimSpace(g.Token) != ""
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Model:              "llama3.1:8b",
		BaseURL:            "http://localhost:11434",
		Timeout:            60,
		MaxLines:           1000,
		SupportedLanguages: []string{"javascript", "typescript", "python", "go", "java", "csharp", "cpp", "c", "rust", "php", "ruby"},
		AutoAnalyze:        false,
		OutputLanguage:     "en",
		Files: FilesConfig{
			Exclude: []string{"**/.vscode/**", "**/*.min.js"},
		},
		Cache: CacheConfig{
			MaxEntries: 256,
		},
		Gitea: GiteaConfig{
			RequestsPerSecond: 10,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// RequestTimeout returns the per-call inference timeout.
func (c *Config) RequestTimeout() time.Duration {
	if c.Timeout <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

// Clone returns a deep copy so snapshots handed out by Store stay immutable.
func (c *Config) Clone() *Config {
	cp := *c
	cp.SupportedLanguages = append([]string(nil), c.SupportedLanguages...)
	cp.Files.Exclude = append([]string(nil), c.Files.Exclude...)
	return &cp
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			applyEnv(cfg, filepath.Dir(path))
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	applyEnv(cfg, filepath.Dir(path))
	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for codepilot.yaml).
func LoadFromDir(dir string) (*Config, error) {
	return Load(PathInDir(dir))
}

// PathInDir returns the config file that LoadFromDir would read, preferring
// codepilot.yaml over .codepilot/config.yaml.
func PathInDir(dir string) string {
	path := filepath.Join(dir, "codepilot.yaml")
	if _, err := os.Stat(path); err == nil {
		return path
	}

	alt := filepath.Join(dir, ".codepilot", "config.yaml")
	if _, err := os.Stat(alt); err == nil {
		return alt
	}

	return path
}

// applyEnv overlays secrets from the environment (and an optional .env file
// next to the config) so tokens need not live in the YAML file.
func applyEnv(cfg *Config, dir string) {
	env, err := godotenv.Read(filepath.Join(dir, ".env"))
	if err != nil {
		env = map[string]string{}
	}
	lookup := func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return env[key]
	}

	if v := lookup("CODEPILOT_GITEA_TOKEN"); v != "" {
		cfg.Gitea.Token = v
	}
	if v := lookup("CODEPILOT_BASE_URL"); v != "" {
		cfg.BaseURL = v
	}
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// ArchivePath returns the path to the artifact archive.
func ArchivePath(dir string) string {
	return filepath.Join(dir, ".codepilot", "artifacts.db")
}

// EnsureDir ensures the .codepilot directory exists.
func EnsureDir(dir string) error {
	return os.MkdirAll(filepath.Join(dir, ".codepilot"), 0755)
}
