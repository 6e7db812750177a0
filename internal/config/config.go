package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"kb-assistant/internal/chat"
)

// DefaultAPIURL is used when neither the build nor the environment names
// a backend
const DefaultAPIURL = "https://language-agnostic-chatbot-1.onrender.com"

// APIURLEnv is the runtime environment variable naming the backend
const APIURLEnv = "KB_API_URL"

// BuildAPIURL is set at build time:
//
//	go build -ldflags "-X kb-assistant/internal/config.BuildAPIURL=https://kb.example.edu"
var BuildAPIURL string

// Config holds all application configuration
type Config struct {
	// Backend settings
	APIURL         string
	RequestTimeout time.Duration
	UploadTimeout  time.Duration
	UserAgent      string

	// Chat settings
	Language string

	// Upload settings
	Extensions  []string
	MaxFileSize int64
	WatchDir    string

	// Harvest settings
	HarvestWorkers int
	HarvestTimeout time.Duration
	MaxPDFSize     int64

	// Transcript settings
	TranscriptPath string
	MaxSessions    int

	// Logging settings
	LogFile  string
	LogLevel string

	// Feature flags
	Markdown bool
	Verbose  bool
}

// NewConfig creates a new configuration with default values. getenv is
// consulted for the backend URL and the home directory.
func NewConfig(getenv func(string) string) *Config {
	if getenv == nil {
		getenv = func(string) string { return "" }
	}
	home := homeDir(getenv)

	return &Config{
		// Backend defaults
		APIURL:         ResolveAPIURL(getenv),
		RequestTimeout: 60 * time.Second,
		UploadTimeout:  5 * time.Minute,
		UserAgent:      "kb-assistant/1.0",

		// Chat defaults
		Language: "auto",

		// Upload defaults
		Extensions:  []string{".pdf"},
		MaxFileSize: 50 * 1024 * 1024, // 50 MB

		// Harvest defaults
		HarvestWorkers: 4,
		HarvestTimeout: 30 * time.Second,
		MaxPDFSize:     25 * 1024 * 1024, // 25 MB

		// Transcript defaults
		TranscriptPath: expandHome("~/.kb-assistant/transcripts.json", home),
		MaxSessions:    20,

		// Logging defaults
		LogFile:  expandHome("~/.kb-assistant/client.log", home),
		LogLevel: "info",

		// Feature flags
		Markdown: true,
		Verbose:  false,
	}
}

// ResolveAPIURL picks the backend base URL: the build-time value first,
// then the runtime environment, then DefaultAPIURL.
func ResolveAPIURL(getenv func(string) string) string {
	if u := strings.TrimSpace(BuildAPIURL); u != "" {
		return u
	}
	if getenv != nil {
		if u := strings.TrimSpace(getenv(APIURLEnv)); u != "" {
			return u
		}
	}
	return DefaultAPIURL
}

// fileConfig mirrors the YAML layout. Durations are kept raw and parsed
// after unmarshalling.
type fileConfig struct {
	API struct {
		URL              string `yaml:"url"`
		TimeoutRaw       string `yaml:"timeout"`
		UploadTimeoutRaw string `yaml:"upload_timeout"`
		UserAgent        string `yaml:"user_agent"`
	} `yaml:"api"`
	Chat struct {
		Language string `yaml:"language"`
	} `yaml:"chat"`
	Upload struct {
		Extensions  []string `yaml:"extensions"`
		MaxFileSize int64    `yaml:"max_file_size"`
		WatchDir    string   `yaml:"watch_dir"`
	} `yaml:"upload"`
	Harvest struct {
		Workers    int    `yaml:"workers"`
		TimeoutRaw string `yaml:"timeout"`
		MaxPDFSize int64  `yaml:"max_pdf_size"`
	} `yaml:"harvest"`
	Transcript struct {
		Path        string `yaml:"path"`
		MaxSessions int    `yaml:"max_sessions"`
	} `yaml:"transcript"`
	Logging struct {
		File  *string `yaml:"file"`
		Level string  `yaml:"level"`
	} `yaml:"logging"`
	UI struct {
		Markdown *bool `yaml:"markdown"`
	} `yaml:"ui"`
}

// Load builds the configuration from defaults and, if path is not empty,
// a YAML file. ${VAR} references in the file are expanded with getenv.
// The result is not validated; callers apply flag overrides first.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := NewConfig(getenv)
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal([]byte(expandEnvVars(string(data), getenv)), &fc); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.apply(&fc, homeDir(getenv)); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) apply(fc *fileConfig, home string) error {
	if fc.API.URL != "" {
		c.APIURL = fc.API.URL
	}
	if fc.API.UserAgent != "" {
		c.UserAgent = fc.API.UserAgent
	}
	if fc.Chat.Language != "" {
		c.Language = fc.Chat.Language
	}
	if len(fc.Upload.Extensions) > 0 {
		c.Extensions = fc.Upload.Extensions
	}
	if fc.Upload.MaxFileSize > 0 {
		c.MaxFileSize = fc.Upload.MaxFileSize
	}
	if fc.Upload.WatchDir != "" {
		c.WatchDir = expandHome(fc.Upload.WatchDir, home)
	}
	if fc.Harvest.Workers > 0 {
		c.HarvestWorkers = fc.Harvest.Workers
	}
	if fc.Harvest.MaxPDFSize > 0 {
		c.MaxPDFSize = fc.Harvest.MaxPDFSize
	}
	if fc.Transcript.Path != "" {
		c.TranscriptPath = expandHome(fc.Transcript.Path, home)
	}
	if fc.Transcript.MaxSessions > 0 {
		c.MaxSessions = fc.Transcript.MaxSessions
	}
	// an explicit empty string disables file logging
	if fc.Logging.File != nil {
		c.LogFile = expandHome(*fc.Logging.File, home)
	}
	if fc.Logging.Level != "" {
		c.LogLevel = fc.Logging.Level
	}
	if fc.UI.Markdown != nil {
		c.Markdown = *fc.UI.Markdown
	}

	return parseDurations(c, fc)
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(c *Config, fc *fileConfig) error {
	fields := []struct {
		name string
		raw  string
		dst  *time.Duration
	}{
		{"api.timeout", fc.API.TimeoutRaw, &c.RequestTimeout},
		{"api.upload_timeout", fc.API.UploadTimeoutRaw, &c.UploadTimeout},
		{"harvest.timeout", fc.Harvest.TimeoutRaw, &c.HarvestTimeout},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.name, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.APIURL == "" {
		return fmt.Errorf("api url cannot be empty")
	}
	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("api url must be an absolute http(s) URL, got %q", c.APIURL)
	}
	if c.RequestTimeout <= 0 || c.UploadTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if _, ok := chat.NormalizeLanguage(c.Language); !ok {
		return fmt.Errorf("unsupported language %q (supported: %s)", c.Language, strings.Join(chat.Languages(), ", "))
	}
	if len(c.Extensions) == 0 {
		return fmt.Errorf("at least one upload extension is required")
	}
	if c.HarvestWorkers < 1 {
		return fmt.Errorf("harvest workers must be at least 1")
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("max sessions must be at least 1")
	}
	return nil
}

// LoadDotEnv loads KEY=value pairs from the given files into the process
// environment. Missing files are skipped; variables already set win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns using getenv. Unset
// variables expand to the empty string.
func expandEnvVars(s string, getenv func(string) string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if getenv == nil {
			return ""
		}
		return getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

// expandHome expands the ~ in file paths to the user's home directory
func expandHome(path, home string) string {
	if len(path) > 0 && path[0] == '~' {
		return home + path[1:]
	}
	return path
}

// homeDir returns the user's home directory
func homeDir(getenv func(string) string) string {
	if getenv == nil {
		return "."
	}
	if home := getenv("HOME"); home != "" {
		return home
	}
	// Fallback for Windows
	if home := getenv("USERPROFILE"); home != "" {
		return home
	}
	return "."
}
