package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config is the root configuration for floorbot.
type Config struct {
	General  GeneralConfig  `json:"general"`
	Server   ServerConfig   `json:"server"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`
	Store    StoreConfig    `json:"store"`
	Notify   NotifyConfig   `json:"notify"`
	Content  ContentConfig  `json:"content"`
	Metrics  MetricsConfig  `json:"metrics"`
	AWS      AWSConfig      `json:"aws"`
}

type GeneralConfig struct {
	LogLevel  string `json:"logLevel"`
	LogFormat string `json:"logFormat"` // "text" | "json"
	LogFile   string `json:"logFile"`   // optional, written in addition to stderr
	Workers   int    `json:"workers"`
	BusBuffer int    `json:"busBuffer"`
}

type ServerConfig struct {
	Host  string      `json:"host"`
	Port  int         `json:"port"`
	Admin AdminConfig `json:"admin"`
}

// AdminConfig protects the /api/admin routes with HTTP basic auth.
type AdminConfig struct {
	Enabled      bool   `json:"enabled"`
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"` // bcrypt
}

type WhatsAppConfig struct {
	Enabled           bool    `json:"enabled"`
	APIBase           string  `json:"apiBase"`
	APIVersion        string  `json:"apiVersion"`
	AppSecret         string  `json:"appSecret"`
	AccessToken       string  `json:"accessToken"`
	VerifyToken       string  `json:"verifyToken"`
	PhoneNumberID     string  `json:"phoneNumberId"`
	WebhookPath       string  `json:"webhookPath"`
	SendRatePerSecond float64 `json:"sendRatePerSecond"` // 0 disables throttling
	SendBurst         int     `json:"sendBurst"`
	TimeoutSeconds    int     `json:"timeoutSeconds"`
}

type StoreConfig struct {
	Driver      string `json:"driver"` // "sqlite" | "dynamodb"
	DBPath      string `json:"dbPath"`
	DynamoTable string `json:"dynamoTable"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `json:"telegram"`
}

type TelegramConfig struct {
	Enabled bool           `json:"enabled"`
	Token   string         `json:"token"`
	ChatIDs FlexStringList `json:"chatIds"`
}

// ContentConfig points at a YAML catalog overriding the embedded texts.
type ContentConfig struct {
	Path string `json:"path"`
}

type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

type AWSConfig struct {
	Region   string `json:"region"`
	Endpoint string `json:"endpoint"` // e.g. DynamoDB Local
}

// FlexStringList is a []string that can unmarshal from JSON arrays containing
// both strings and numbers (e.g. ["123", 456] both become "123", "456").
type FlexStringList []string

func (f *FlexStringList) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			result = append(result, s)
			continue
		}
		var n float64
		if err := json.Unmarshal(item, &n); err == nil {
			result = append(result, strconv.FormatInt(int64(n), 10))
			continue
		}
		result = append(result, string(item))
	}
	*f = result
	return nil
}

// DefaultConfigDir returns the default config directory (~/.floorbot).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".floorbot"
	}
	return filepath.Join(home, ".floorbot")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

// Load reads the config file, after loading a .env next to it and one in the
// working directory. Variables already set in the environment win.
func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	if err := LoadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env"); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}

	cfg.Store.DBPath = ExpandPath(cfg.Store.DBPath)
	cfg.General.LogFile = ExpandPath(cfg.General.LogFile)
	cfg.Content.Path = ExpandPath(cfg.Content.Path)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	return cfg, nil
}

// LoadRaw parses the file without env expansion or validation, so that
// edits can be saved back without inlining ${VAR} references.
func LoadRaw(path string) (*Config, error) {
	path = ExpandPath(path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}
	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDotEnv loads each existing file into the process environment.
// Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset
// variable without default is left as written.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name := groups[1]
		def, hasDefault := groups[2], strings.Contains(match, ":-")

		if val, ok := os.LookupEnv(name); ok && val != "" {
			return val
		}
		if hasDefault {
			return def
		}
		return match
	})
}

func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}
	// Secrets may be stored inline.
	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the config has usable values and reports every problem at once.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}
	switch cfg.General.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, "general.logFormat must be one of: text, json")
	}
	if cfg.General.Workers < 1 || cfg.General.Workers > 64 {
		errs = append(errs, "general.workers must be between 1 and 64")
	}
	if cfg.General.BusBuffer < 1 {
		errs = append(errs, "general.busBuffer must be >= 1")
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if a := cfg.Server.Admin; a.Enabled && (a.Username == "" || a.PasswordHash == "") {
		errs = append(errs, "server.admin: username and passwordHash are required when enabled")
	}

	if w := cfg.WhatsApp; w.Enabled {
		for _, f := range []struct{ name, val string }{
			{"appSecret", w.AppSecret},
			{"accessToken", w.AccessToken},
			{"verifyToken", w.VerifyToken},
			{"phoneNumberId", w.PhoneNumberID},
		} {
			if strings.TrimSpace(f.val) == "" {
				errs = append(errs, fmt.Sprintf("whatsapp.%s is required when whatsapp is enabled", f.name))
			}
		}
	}
	if !strings.HasPrefix(cfg.WhatsApp.WebhookPath, "/") {
		errs = append(errs, "whatsapp.webhookPath must start with /")
	}
	if cfg.WhatsApp.SendRatePerSecond < 0 {
		errs = append(errs, "whatsapp.sendRatePerSecond must be >= 0")
	}
	if cfg.WhatsApp.TimeoutSeconds < 1 {
		errs = append(errs, "whatsapp.timeoutSeconds must be >= 1")
	}

	switch cfg.Store.Driver {
	case "sqlite":
		if cfg.Store.DBPath == "" {
			errs = append(errs, "store.dbPath is required for the sqlite driver")
		}
	case "dynamodb":
		if cfg.Store.DynamoTable == "" {
			errs = append(errs, "store.dynamoTable is required for the dynamodb driver")
		}
	default:
		errs = append(errs, "store.driver must be one of: sqlite, dynamodb")
	}

	if t := cfg.Notify.Telegram; t.Enabled && (t.Token == "" || len(t.ChatIDs) == 0) {
		errs = append(errs, "notify.telegram: token and chatIds are required when enabled")
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with /")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
