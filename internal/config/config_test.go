package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/julianbeese/tennis_bot/internal/domain"
	gokeyring "github.com/zalando/go-keyring"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Retry.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", cfg.Retry.MaxRetries)
	}
	if cfg.Captcha.MaxAttempts != 5 {
		t.Errorf("Captcha.MaxAttempts = %d, want 5", cfg.Captcha.MaxAttempts)
	}
	if cfg.Browser.Engine != "chromedp" {
		t.Errorf("Browser.Engine = %q, want chromedp", cfg.Browser.Engine)
	}
	if cfg.Hours[0] != "21" {
		t.Errorf("first default hour = %q, want 21", cfg.Hours[0])
	}
}

func TestLoadJSONWithCourtMapping(t *testing.T) {
	gokeyring.MockInit()

	path := writeConfig(t, "config.json", `{
  "account": {"email": "a@b.c", "password": "pw"},
  "locations": {"Poliveau": [1, 4], "Tennis Candie": [], "Alain Mimoun": ["2"]},
  "date": "5/11/2026",
  "hours": ["18", 9],
  "priceType": ["Tarif plein"],
  "courtType": ["Couvert"],
  "players": [{"lastName": "Moerke", "firstName": "Oscar"}],
  "ntfy": {"enable": true, "topic": "courts"}
}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	wantNames := []string{"Poliveau", "Tennis Candie", "Alain Mimoun"}
	if len(cfg.Locations) != len(wantNames) {
		t.Fatalf("got %d locations, want %d", len(cfg.Locations), len(wantNames))
	}
	for i, name := range wantNames {
		if cfg.Locations[i].Name != name {
			t.Errorf("location %d = %q, want %q", i, cfg.Locations[i].Name, name)
		}
	}
	if got := cfg.Locations[0].Courts; len(got) != 2 || got[0] != 1 || got[1] != 4 {
		t.Errorf("Poliveau courts = %v", got)
	}
	if len(cfg.Locations[1].Courts) != 0 {
		t.Errorf("Tennis Candie courts = %v, want none", cfg.Locations[1].Courts)
	}
	if got := cfg.Locations[2].Courts; len(got) != 1 || got[0] != 2 {
		t.Errorf("Alain Mimoun courts = %v", got)
	}
	if cfg.Hours[1] != "09" {
		t.Errorf("hour normalisation: got %q, want 09", cfg.Hours[1])
	}
	if cfg.Players[0].LastName != "Moerke" || cfg.Players[0].FirstName != "Oscar" {
		t.Errorf("players = %+v", cfg.Players)
	}
}

func TestLoadYAMLListAndAliases(t *testing.T) {
	gokeyring.MockInit()

	path := writeConfig(t, "config.yaml", `
credentials:
  email: a@b.c
  password: secret
locations:
  - Poliveau
  - Tennis Candie
hours: ["20"]
players:
  - lastName: Grabowski
    firstName: Bean
notification:
  enable: true
  target: my-topic
retry:
  backoff: 5s
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Account.Email != "a@b.c" || cfg.Account.Password != "secret" {
		t.Errorf("credentials not folded into account: %+v", cfg.Account)
	}
	if !cfg.Ntfy.Enable || cfg.Ntfy.Topic != "my-topic" {
		t.Errorf("notification not folded into ntfy: %+v", cfg.Ntfy)
	}
	if cfg.Retry.Backoff != 5*time.Second {
		t.Errorf("Backoff = %v, want 5s", cfg.Retry.Backoff)
	}
	if len(cfg.Locations) != 2 || cfg.Locations[1].Name != "Tennis Candie" {
		t.Errorf("locations = %+v", cfg.Locations)
	}
	// Defaults survive a partial file
	if len(cfg.PriceType) != 2 {
		t.Errorf("PriceType defaults lost: %v", cfg.PriceType)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	gokeyring.MockInit()

	t.Setenv("TENNIS_EMAIL", "env@b.c")
	t.Setenv("TENNIS_PASSWORD", "envpw")
	t.Setenv("TENNIS_LOCATIONS", `{"B": [3], "A": []}`)
	t.Setenv("TENNIS_HOURS", `["17","18"]`)
	t.Setenv("TENNIS_PLAYERS", `[{"lastName":"X","firstName":"Y"}]`)
	t.Setenv("TELEGRAM_CHAT_ID", "-1001")
	t.Setenv("PORT", "8081")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Account.Email != "env@b.c" || cfg.Account.Password != "envpw" {
		t.Errorf("account = %+v", cfg.Account)
	}
	if len(cfg.Locations) != 2 || cfg.Locations[0].Name != "B" || cfg.Locations[0].Courts[0] != 3 {
		t.Errorf("locations = %+v", cfg.Locations)
	}
	if cfg.Hours[0] != "17" {
		t.Errorf("hours = %v", cfg.Hours)
	}
	if cfg.Telegram.ChatID != -1001 {
		t.Errorf("ChatID = %d", cfg.Telegram.ChatID)
	}
	if cfg.Server.Addr != ":8081" {
		t.Errorf("Addr = %q", cfg.Server.Addr)
	}
}

func TestLoadPasswordFromKeyring(t *testing.T) {
	gokeyring.MockInit()
	if err := SetPassword("k@b.c", "from-keyring"); err != nil {
		t.Fatalf("SetPassword: %v", err)
	}

	path := writeConfig(t, "config.yaml", "account:\n  email: k@b.c\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Account.Password != "from-keyring" {
		t.Errorf("Password = %q, want keyring value", cfg.Account.Password)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := DefaultConfig()
		cfg.Account = AccountConfig{Email: "a@b.c", Password: "pw"}
		cfg.Locations = Locations{{Name: "A"}}
		cfg.Players = []domain.Participant{{LastName: "L", FirstName: "F"}}
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"no email", func(c *Config) { c.Account.Email = "" }, "account.email"},
		{"no locations", func(c *Config) { c.Locations = nil }, "location"},
		{"bad hour", func(c *Config) { c.Hours = []string{"25"} }, "invalid hour"},
		{"bad date", func(c *Config) { c.Date = "2026-10-22" }, "invalid date"},
		{"no players", func(c *Config) { c.Players = nil }, "player"},
		{"bad engine", func(c *Config) { c.Browser.Engine = "lynx" }, "browser engine"},
		{"ntfy without topic", func(c *Config) { c.Ntfy.Enable = true }, "ntfy.topic"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
