package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/julianbeese/tennis_bot/internal/domain"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	LogLevel     string `yaml:"log_level"`
	LogFile      string `yaml:"log_file"`
	DatabasePath string `yaml:"database_path"`
	ArtifactsDir string `yaml:"artifacts_dir"`

	Account     AccountConfig  `yaml:"account"`
	Credentials *AccountConfig `yaml:"credentials,omitempty"`

	Locations Locations            `yaml:"locations"`
	Date      string               `yaml:"date,omitempty"`
	Hours     []string             `yaml:"hours"`
	PriceType []string             `yaml:"priceType"`
	CourtType []string             `yaml:"courtType"`
	Players   []domain.Participant `yaml:"players"`

	Ntfy         NtfyConfig          `yaml:"ntfy"`
	Notification *NotificationConfig `yaml:"notification,omitempty"`
	Telegram     TelegramConfig      `yaml:"telegram"`

	Portal   PortalConfig   `yaml:"portal"`
	Browser  BrowserConfig  `yaml:"browser"`
	Captcha  CaptchaConfig  `yaml:"captcha"`
	Retry    RetryConfig    `yaml:"retry"`
	Server   ServerConfig   `yaml:"server"`
	Behavior BehaviorConfig `yaml:"behavior"`
}

// AccountConfig holds portal credentials
type AccountConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// NtfyConfig for push notifications through an ntfy server
type NtfyConfig struct {
	Enable bool   `yaml:"enable"`
	Topic  string `yaml:"topic"`
	Server string `yaml:"server"`
}

// NotificationConfig is the generic {enable, target} form, mapped onto ntfy
type NotificationConfig struct {
	Enable bool   `yaml:"enable"`
	Target string `yaml:"target"`
}

// TelegramConfig for Telegram bot settings
type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   int64  `yaml:"chat_id"`
	Enabled  bool   `yaml:"enabled"`
	Template string `yaml:"template"` // optional booking message template file
}

// PortalConfig points at the booking portal
type PortalConfig struct {
	BaseURL string `yaml:"base_url"`
}

// BrowserConfig selects and tunes the browser engine
type BrowserConfig struct {
	Engine     string   `yaml:"engine"` // chromedp or rod
	Headless   bool     `yaml:"headless"`
	ChromePath string   `yaml:"chrome_path"`
	UserAgents []string `yaml:"user_agents"`

	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	ElementTimeout    time.Duration `yaml:"element_timeout"`
	ShortTimeout      time.Duration `yaml:"short_timeout"`
	LongTimeout       time.Duration `yaml:"long_timeout"`
	SettleDelay       time.Duration `yaml:"settle_delay"`
}

// CaptchaConfig for the external recognizer and the solving loop
type CaptchaConfig struct {
	Engine               string        `yaml:"engine"` // gradio or tesseract
	Space                string        `yaml:"space"`
	Endpoint             string        `yaml:"endpoint"`
	MaxAttempts          int           `yaml:"max_attempts"`
	RefreshDelay         time.Duration `yaml:"refresh_delay"`
	VerifyDelay          time.Duration `yaml:"verify_delay"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
	MaxRequestsPerMinute int           `yaml:"max_requests_per_minute"`
}

// RetryConfig for whole-run retries
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries"`
	Backoff    time.Duration `yaml:"backoff"`
}

// ServerConfig for the HTTP trigger
type ServerConfig struct {
	Addr          string `yaml:"addr"`
	WebhookSecret string `yaml:"webhook_secret"`
}

// BehaviorConfig for human-like pauses
type BehaviorConfig struct {
	TypeDelay   time.Duration `yaml:"type_delay"`
	ActionDelay time.Duration `yaml:"action_delay"`
}

// Locations is an ordered list of candidate locations. It decodes from either a
// list of names or a mapping of name to allowed court numbers; mapping order is kept.
type Locations []domain.Location

// UnmarshalYAML accepts both location forms
func (l *Locations) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return fmt.Errorf("locations: %w", err)
		}
		out := make(Locations, 0, len(names))
		for _, n := range names {
			out = append(out, domain.Location{Name: strings.TrimSpace(n)})
		}
		*l = out
		return nil
	case yaml.MappingNode:
		out := make(Locations, 0, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			name := strings.TrimSpace(node.Content[i].Value)
			var raw []string
			if err := node.Content[i+1].Decode(&raw); err != nil {
				return fmt.Errorf("locations[%s]: %w", name, err)
			}
			courts := make([]int, 0, len(raw))
			for _, r := range raw {
				n, err := strconv.Atoi(strings.TrimSpace(r))
				if err != nil {
					return fmt.Errorf("locations[%s]: invalid court number %q", name, r)
				}
				courts = append(courts, n)
			}
			out = append(out, domain.Location{Name: name, Courts: courts})
		}
		*l = out
		return nil
	}
	return fmt.Errorf("locations: expected list or mapping")
}

// DefaultConfig returns configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		LogLevel:     "info",
		DatabasePath: "data/tennisbot.db",
		ArtifactsDir: "img",
		Hours:        []string{"21", "20", "19", "18", "17", "16", "15", "14", "13", "12", "11", "10", "09", "08"},
		PriceType:    []string{"Tarif plein", "Tarif réduit"},
		CourtType:    []string{"Découvert", "Couvert"},
		Ntfy: NtfyConfig{
			Server: "https://ntfy.sh",
		},
		Portal: PortalConfig{
			BaseURL: "https://tennis.paris.fr",
		},
		Browser: BrowserConfig{
			Engine:            "chromedp",
			Headless:          true,
			NavigationTimeout: 10 * time.Second,
			ElementTimeout:    5 * time.Second,
			ShortTimeout:      3 * time.Second,
			LongTimeout:       15 * time.Second,
			SettleDelay:       300 * time.Millisecond,
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
				"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36",
			},
		},
		Captcha: CaptchaConfig{
			Engine:               "gradio",
			Space:                "docparser/Text_Captcha_breaker",
			MaxAttempts:          5,
			RefreshDelay:         1 * time.Second,
			VerifyDelay:          1 * time.Second,
			RequestTimeout:       20 * time.Second,
			MaxRequestsPerMinute: 30,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			Backoff:    2 * time.Second,
		},
		Server: ServerConfig{
			Addr: ":3000",
		},
	}
}

// Load reads configuration from YAML (or JSON) file and environment variables.
// A missing file is not an error; the environment may carry everything.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.normalize()

	if cfg.Account.Password == "" && cfg.Account.Email != "" {
		if pw, err := PasswordFromKeyring(cfg.Account.Email); err == nil {
			cfg.Account.Password = pw
		}
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("TENNIS_EMAIL"); v != "" {
		c.Account.Email = v
	}
	if v := os.Getenv("TENNIS_PASSWORD"); v != "" {
		c.Account.Password = v
	}
	if v := os.Getenv("TENNIS_DATE"); v != "" {
		c.Date = v
	}

	// List-valued variables are JSON, which yaml.v3 parses as flow YAML
	jsonVars := []struct {
		key    string
		target interface{}
	}{
		{"TENNIS_LOCATIONS", &c.Locations},
		{"TENNIS_HOURS", &c.Hours},
		{"TENNIS_PRICE_TYPE", &c.PriceType},
		{"TENNIS_COURT_TYPE", &c.CourtType},
		{"TENNIS_PLAYERS", &c.Players},
	}
	for _, jv := range jsonVars {
		v := os.Getenv(jv.key)
		if v == "" {
			continue
		}
		if err := yaml.Unmarshal([]byte(v), jv.target); err != nil {
			return fmt.Errorf("parse %s: %w", jv.key, err)
		}
	}

	if v := os.Getenv("NTFY_ENABLE"); v != "" {
		c.Ntfy.Enable = v == "true"
	}
	if v := os.Getenv("NTFY_TOPIC"); v != "" {
		c.Ntfy.Topic = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		chatID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parse TELEGRAM_CHAT_ID: %w", err)
		}
		c.Telegram.ChatID = chatID
	}
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		c.Server.WebhookSecret = v
	}
	if v := os.Getenv("PORT"); v != "" {
		c.Server.Addr = ":" + v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	return nil
}

// normalize folds the alternate config spellings into the canonical fields
func (c *Config) normalize() {
	if c.Credentials != nil {
		if c.Account.Email == "" {
			c.Account.Email = c.Credentials.Email
		}
		if c.Account.Password == "" {
			c.Account.Password = c.Credentials.Password
		}
		c.Credentials = nil
	}
	if c.Notification != nil {
		c.Ntfy.Enable = c.Ntfy.Enable || c.Notification.Enable
		if c.Ntfy.Topic == "" {
			c.Ntfy.Topic = c.Notification.Target
		}
		c.Notification = nil
	}
	for i, h := range c.Hours {
		h = strings.TrimSpace(h)
		if n, err := strconv.Atoi(h); err == nil {
			h = fmt.Sprintf("%02d", n)
		}
		c.Hours[i] = h
	}
	c.Portal.BaseURL = strings.TrimRight(c.Portal.BaseURL, "/")
}

// Validate checks if required configuration is present
func (c *Config) Validate() error {
	var problems []string

	if c.Account.Email == "" {
		problems = append(problems, "account.email is required")
	}
	if c.Account.Password == "" {
		problems = append(problems, "account.password is required (config, TENNIS_PASSWORD or keyring)")
	}
	if len(c.Locations) == 0 {
		problems = append(problems, "at least one location is required")
	}
	for _, loc := range c.Locations {
		if loc.Name == "" {
			problems = append(problems, "location names must not be empty")
			break
		}
	}
	if len(c.Hours) == 0 {
		problems = append(problems, "at least one hour is required")
	}
	for _, h := range c.Hours {
		n, err := strconv.Atoi(h)
		if err != nil || n < 0 || n > 23 {
			problems = append(problems, fmt.Sprintf("invalid hour %q", h))
		}
	}
	if len(c.PriceType) == 0 {
		problems = append(problems, "at least one priceType is required")
	}
	if len(c.CourtType) == 0 {
		problems = append(problems, "at least one courtType is required")
	}
	if len(c.Players) == 0 {
		problems = append(problems, "at least one player is required")
	}
	if c.Date != "" {
		if _, err := ParseDate(c.Date, time.Local); err != nil {
			problems = append(problems, err.Error())
		}
	}
	if c.Ntfy.Enable && c.Ntfy.Topic == "" {
		problems = append(problems, "ntfy.topic is required when ntfy is enabled")
	}
	switch c.Browser.Engine {
	case "chromedp", "rod":
	default:
		problems = append(problems, fmt.Sprintf("unknown browser engine %q", c.Browser.Engine))
	}
	if c.Retry.MaxRetries < 0 {
		problems = append(problems, "retry.max_retries must not be negative")
	}
	if c.Captcha.MaxAttempts < 1 {
		problems = append(problems, "captcha.max_attempts must be at least 1")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
