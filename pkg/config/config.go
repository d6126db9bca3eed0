package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	v "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Credential sources understood by the auth package
const (
	CredentialSourceEnv     = "env"
	CredentialSourceKeyring = "keyring"
	CredentialSourceFile    = "file"
)

// Config holds all configuration options for the parser
type Config struct {
	// Instagram login and browser identity
	Instagram InstagramConfig `yaml:"instagram" json:"instagram"`

	// Backend the metrics are submitted to
	Backend BackendConfig `yaml:"backend" json:"backend"`

	// Headless browser settings
	Browser BrowserConfig `yaml:"browser" json:"browser"`

	// Per-run scraping behaviour
	Scrape ScrapeConfig `yaml:"scrape" json:"scrape"`

	// Navigation rate limiting
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`

	// Screenshots and HTML dumps
	Diagnostics DiagnosticsConfig `yaml:"diagnostics" json:"diagnostics"`

	// Daemon mode
	Schedule ScheduleConfig `yaml:"schedule" json:"schedule"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging" json:"logging"`
}

// InstagramConfig holds Instagram-specific configuration
type InstagramConfig struct {
	Username         string `yaml:"username" json:"username"`
	Password         string `yaml:"password,omitempty" json:"-"`
	CredentialSource string `yaml:"credential_source" json:"credential_source"`
	UserAgent        string `yaml:"user_agent" json:"user_agent"`
	BaseURL          string `yaml:"base_url" json:"base_url"`

	// CredentialsFile is the encrypted store used by the file source;
	// empty means the default under the user config dir
	CredentialsFile string `yaml:"credentials_file,omitempty" json:"credentials_file,omitempty"`
	Passphrase      string `yaml:"-" json:"-"`
}

// BackendConfig holds the submission client configuration
type BackendConfig struct {
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`

	// Retries applies to the account listing only
	Retries    int           `yaml:"retries" json:"retries"`
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
}

// BrowserConfig holds headless browser configuration
type BrowserConfig struct {
	Headless          bool          `yaml:"headless" json:"headless"`
	ExecPath          string        `yaml:"exec_path" json:"exec_path"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout" json:"navigation_timeout"`
	SelectorTimeout   time.Duration `yaml:"selector_timeout" json:"selector_timeout"`
	LoginTimeout      time.Duration `yaml:"login_timeout" json:"login_timeout"`
	LoginSettleDelay  time.Duration `yaml:"login_settle_delay" json:"login_settle_delay"`
	PopupDelay        time.Duration `yaml:"popup_delay" json:"popup_delay"`
}

// ScrapeConfig holds the account loop configuration
type ScrapeConfig struct {
	NetworkID          string        `yaml:"network_id" json:"network_id"`
	MaxPostsPerAccount int           `yaml:"max_posts_per_account" json:"max_posts_per_account"`
	MaxPostAge         time.Duration `yaml:"max_post_age" json:"max_post_age"`
	ProfileSettleDelay time.Duration `yaml:"profile_settle_delay" json:"profile_settle_delay"`
	PostSettleDelay    time.Duration `yaml:"post_settle_delay" json:"post_settle_delay"`
	PostDelay          time.Duration `yaml:"post_delay" json:"post_delay"`
	AccountDelay       time.Duration `yaml:"account_delay" json:"account_delay"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute" json:"requests_per_minute"`
	BurstSize         int `yaml:"burst_size" json:"burst_size"`
}

// DiagnosticsConfig holds debug capture configuration
type DiagnosticsConfig struct {
	Directory        string `yaml:"directory" json:"directory"`
	CaptureOnSuccess bool   `yaml:"capture_on_success" json:"capture_on_success"`
}

// ScheduleConfig holds serve mode configuration
type ScheduleConfig struct {
	Cron   string `yaml:"cron" json:"cron"`
	Listen string `yaml:"listen" json:"listen"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	Directory string `yaml:"directory" json:"directory"`
	File      string `yaml:"file" json:"file"`
	Console   bool   `yaml:"console" json:"console"`
}

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Instagram: InstagramConfig{
			CredentialSource: CredentialSourceEnv,
			UserAgent:        "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36",
			BaseURL:          "https://www.instagram.com",
		},
		Backend: BackendConfig{
			BaseURL:    "http://backend:8000",
			Timeout:    30 * time.Second,
			Retries:    2,
			RetryDelay: time.Second,
		},
		Browser: BrowserConfig{
			Headless:          true,
			NavigationTimeout: 60 * time.Second,
			SelectorTimeout:   30 * time.Second,
			LoginTimeout:      30 * time.Second,
			LoginSettleDelay:  2 * time.Second,
			PopupDelay:        2 * time.Second,
		},
		Scrape: ScrapeConfig{
			MaxPostsPerAccount: 10,
			MaxPostAge:         7 * 24 * time.Hour,
			ProfileSettleDelay: 5 * time.Second,
			PostSettleDelay:    3 * time.Second,
			PostDelay:          3 * time.Second,
			AccountDelay:       10 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 20,
			BurstSize:         1,
		},
		Diagnostics: DiagnosticsConfig{
			Directory:        "/app/logs",
			CaptureOnSuccess: true,
		},
		Schedule: ScheduleConfig{
			Cron:   "0 0 * * *",
			Listen: ":8080",
		},
		Logging: LoggingConfig{
			Level:     "info",
			Directory: "/app/logs",
			File:      "parser.log",
			Console:   true,
		},
	}
}

// LoadFromEnv loads configuration from environment variables
func (c *Config) LoadFromEnv() error {
	if username := os.Getenv("INSTAGRAM_USERNAME"); username != "" {
		c.Instagram.Username = username
	}
	if password := os.Getenv("INSTAGRAM_PASSWORD"); password != "" {
		c.Instagram.Password = password
	}
	if passphrase := os.Getenv("IGPARSER_PASSPHRASE"); passphrase != "" {
		c.Instagram.Passphrase = passphrase
	}
	if source := os.Getenv("IGPARSER_CREDENTIAL_SOURCE"); source != "" {
		c.Instagram.CredentialSource = strings.ToLower(source)
	}
	if userAgent := os.Getenv("IGPARSER_USER_AGENT"); userAgent != "" {
		c.Instagram.UserAgent = userAgent
	}

	if backendURL := os.Getenv("BACKEND_URL"); backendURL != "" {
		c.Backend.BaseURL = strings.TrimRight(backendURL, "/")
	}

	if networkID := os.Getenv("NETWORK_ID"); networkID != "" {
		c.Scrape.NetworkID = networkID
	}

	if chrome := os.Getenv("CHROME_PATH"); chrome != "" {
		c.Browser.ExecPath = chrome
	}
	if headless := os.Getenv("IGPARSER_HEADLESS"); headless != "" {
		c.Browser.Headless = strings.ToLower(headless) != "false"
	}

	if rpm := os.Getenv("IGPARSER_REQUESTS_PER_MINUTE"); rpm != "" {
		val, err := strconv.Atoi(rpm)
		if err != nil {
			return fmt.Errorf("invalid IGPARSER_REQUESTS_PER_MINUTE: %w", err)
		}
		if val > 0 {
			c.RateLimit.RequestsPerMinute = val
		}
	}

	// Diagnostics share the log directory unless configured otherwise
	if logDir := os.Getenv("LOG_DIR"); logDir != "" {
		c.Logging.Directory = logDir
		c.Diagnostics.Directory = logDir
	}

	if strings.ToLower(os.Getenv("DEBUG")) == "true" {
		c.Logging.Level = "debug"
	}
	if logLevel := os.Getenv("IGPARSER_LOG_LEVEL"); logLevel != "" {
		c.Logging.Level = logLevel
	}

	if cronSpec := os.Getenv("IGPARSER_CRON"); cronSpec != "" {
		c.Schedule.Cron = cronSpec
	}
	if listen := os.Getenv("IGPARSER_LISTEN"); listen != "" {
		c.Schedule.Listen = listen
	}

	return nil
}

// LoadFromFile loads configuration from a YAML file
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil // No config file found, not an error
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".igparser.yaml",
		".igparser.yml",
		filepath.Join(home, ".config", "igparser", "config.yaml"),
		filepath.Join(home, ".config", "igparser", "config.yml"),
		filepath.Join(home, ".igparser.yaml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}

	return ""
}

// Validate checks if the configuration is valid. Credentials are not
// checked here, see RequireCredentials.
func (c *Config) Validate() error {
	return v.ValidateStruct(c,
		v.Field(&c.Instagram),
		v.Field(&c.Backend),
		v.Field(&c.Browser),
		v.Field(&c.Scrape),
		v.Field(&c.RateLimit),
		v.Field(&c.Diagnostics),
		v.Field(&c.Schedule),
		v.Field(&c.Logging),
	)
}

func (i InstagramConfig) Validate() error {
	return v.ValidateStruct(&i,
		v.Field(&i.CredentialSource, v.Required, v.In(CredentialSourceEnv, CredentialSourceKeyring, CredentialSourceFile)),
		v.Field(&i.UserAgent, v.Required),
		v.Field(&i.BaseURL, v.Required, is.URL),
	)
}

func (b BackendConfig) Validate() error {
	return v.ValidateStruct(&b,
		v.Field(&b.BaseURL, v.Required, is.URL),
		v.Field(&b.Timeout, v.Required, v.Min(time.Second)),
		v.Field(&b.Retries, v.Min(0), v.Max(10)),
		v.Field(&b.RetryDelay, v.Min(time.Duration(0))),
	)
}

func (b BrowserConfig) Validate() error {
	return v.ValidateStruct(&b,
		v.Field(&b.NavigationTimeout, v.Required, v.Min(time.Second)),
		v.Field(&b.SelectorTimeout, v.Required, v.Min(time.Second)),
		v.Field(&b.LoginTimeout, v.Required, v.Min(time.Second)),
		v.Field(&b.LoginSettleDelay, v.Min(time.Duration(0))),
		v.Field(&b.PopupDelay, v.Min(time.Duration(0))),
	)
}

func (s ScrapeConfig) Validate() error {
	return v.ValidateStruct(&s,
		v.Field(&s.NetworkID, is.Digit),
		v.Field(&s.MaxPostsPerAccount, v.Required, v.Min(1)),
		v.Field(&s.MaxPostAge, v.Required, v.Min(time.Hour)),
		v.Field(&s.ProfileSettleDelay, v.Min(time.Duration(0))),
		v.Field(&s.PostSettleDelay, v.Min(time.Duration(0))),
		v.Field(&s.PostDelay, v.Min(time.Duration(0))),
		v.Field(&s.AccountDelay, v.Min(time.Duration(0))),
	)
}

func (r RateLimitConfig) Validate() error {
	return v.ValidateStruct(&r,
		v.Field(&r.RequestsPerMinute, v.Required, v.Min(1)),
		v.Field(&r.BurstSize, v.Required, v.Min(1)),
	)
}

func (d DiagnosticsConfig) Validate() error {
	return v.ValidateStruct(&d,
		v.Field(&d.Directory, v.Required),
	)
}

func (s ScheduleConfig) Validate() error {
	return v.ValidateStruct(&s,
		v.Field(&s.Cron, v.Required),
		v.Field(&s.Listen, v.Required),
	)
}

func (l LoggingConfig) Validate() error {
	return v.ValidateStruct(&l,
		v.Field(&l.Level, v.Required, v.By(func(value interface{}) error {
			switch strings.ToLower(value.(string)) {
			case "debug", "info", "warn", "warning", "error":
				return nil
			}
			return fmt.Errorf("invalid log level %q", value)
		})),
	)
}

// RequireCredentials reports whether a login is possible with the env
// credential source. Other sources are resolved by the auth package.
func (c *Config) RequireCredentials() error {
	if c.Instagram.CredentialSource != CredentialSourceEnv {
		return nil
	}
	return v.ValidateStruct(&c.Instagram,
		v.Field(&c.Instagram.Username, v.Required.Error("INSTAGRAM_USERNAME must be set")),
		v.Field(&c.Instagram.Password, v.Required.Error("INSTAGRAM_PASSWORD must be set")),
	)
}

// LogFilePath returns the absolute path of the JSON log file, or "" when
// file logging is disabled.
func (l LoggingConfig) LogFilePath() string {
	if l.File == "" {
		return ""
	}
	if filepath.IsAbs(l.File) || l.Directory == "" {
		return l.File
	}
	return filepath.Join(l.Directory, l.File)
}

// Save saves the configuration to a file
func (c *Config) Save(path string) error {
	out := *c
	out.Instagram.Password = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// MergeCommandLineFlags merges command line flags into the configuration
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if networkID, ok := flags["network-id"].(string); ok && networkID != "" {
		c.Scrape.NetworkID = networkID
	}
	if backend, ok := flags["backend-url"].(string); ok && backend != "" {
		c.Backend.BaseURL = strings.TrimRight(backend, "/")
	}
	if maxPosts, ok := flags["max-posts"].(int); ok && maxPosts > 0 {
		c.Scrape.MaxPostsPerAccount = maxPosts
	}
	if logLevel, ok := flags["log-level"].(string); ok && logLevel != "" {
		c.Logging.Level = logLevel
	}
	if logDir, ok := flags["log-dir"].(string); ok && logDir != "" {
		c.Logging.Directory = logDir
		c.Diagnostics.Directory = logDir
	}
	if headless, ok := flags["headless"].(bool); ok {
		c.Browser.Headless = headless
	}
	if source, ok := flags["credential-source"].(string); ok && source != "" {
		c.Instagram.CredentialSource = strings.ToLower(source)
	}
	if cronSpec, ok := flags["cron"].(string); ok && cronSpec != "" {
		c.Schedule.Cron = cronSpec
	}
	if listen, ok := flags["listen"].(string); ok && listen != "" {
		c.Schedule.Listen = listen
	}
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".igparser.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
