// Package config holds the coordinator's runtime configuration: a JSON
// file with defaults, overridable per field from the environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/caarlos0/env/v11"
	logging "github.com/ipfs/go-log/v2"

	"github.com/Yashraj-Coll/mediconnect-sessiond/internal/util"
)

type Config struct {
	HTTP      HTTP      `json:"http"`
	Directory Directory `json:"directory"`
	Broker    Broker    `json:"broker"`
	Provider  Provider  `json:"provider"`
	Gate      Gate      `json:"gate"`
	Log       Log       `json:"log"`
}

type HTTP struct {
	Addr string `json:"addr" env:"SESSIOND_HTTP_ADDR"`
}

type Directory struct {
	// Mode selects the appointment directory backend: "http" talks to the
	// directory service, "sqlite" runs the local store.
	Mode string `json:"mode" env:"SESSIOND_DIRECTORY_MODE"`

	// URL of the directory service. Required in http mode.
	URL string `json:"url" env:"SESSIOND_DIRECTORY_URL"`

	// DataDir holds the local store. Required in sqlite mode. Relative to
	// the working directory.
	DataDir string `json:"data_dir" env:"SESSIOND_DIRECTORY_DATA_DIR"`
}

type Broker struct {
	// URL is the chat broker websocket endpoint (ws:// or wss://).
	URL string `json:"url" env:"SESSIOND_BROKER_URL"`
}

type Provider struct {
	// ScriptURL is where the video provider's bootstrap script is fetched
	// from, once per process.
	ScriptURL string `json:"script_url" env:"SESSIOND_PROVIDER_SCRIPT_URL"`
}

type Gate struct {
	// GraceMinutes is how many minutes before the scheduled start a
	// participant may enter.
	GraceMinutes int `json:"grace_minutes" env:"SESSIOND_GATE_GRACE_MINUTES"`
}

type Log struct {
	// Level is the default level for all subsystems.
	Level string `json:"level" env:"SESSIOND_LOG_LEVEL"`

	// Subsystems overrides the level per logger name ("session": "debug").
	Subsystems map[string]string `json:"subsystems"`
}

func Default() Config {
	return Config{
		HTTP: HTTP{
			Addr: "127.0.0.1:8980",
		},
		Directory: Directory{
			Mode:    "sqlite",
			DataDir: "data",
		},
		Broker: Broker{
			URL: "ws://127.0.0.1:61614/ws",
		},
		Provider: Provider{
			ScriptURL: "https://meet.mediconnect.example/external_api.js",
		},
		Gate: Gate{
			GraceMinutes: 5,
		},
		Log: Log{
			Level: "info",
		},
	}
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return errors.New("http.addr is required")
	}

	switch c.Directory.Mode {
	case "http":
		if err := validateHTTPURL(c.Directory.URL); err != nil {
			return fmt.Errorf("directory.url: %w", err)
		}
	case "sqlite":
		if strings.TrimSpace(c.Directory.DataDir) == "" {
			return errors.New("directory.data_dir is required in sqlite mode")
		}
	default:
		return errors.New(`directory.mode must be "http" or "sqlite"`)
	}

	if err := validateWSURL(c.Broker.URL); err != nil {
		return fmt.Errorf("broker.url: %w", err)
	}
	if err := validateHTTPURL(c.Provider.ScriptURL); err != nil {
		return fmt.Errorf("provider.script_url: %w", err)
	}

	if c.Gate.GraceMinutes < 0 || c.Gate.GraceMinutes > 120 {
		return errors.New("gate.grace_minutes must be 0..120")
	}

	if _, err := logging.LevelFromString(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	for name, lvl := range c.Log.Subsystems {
		if _, err := logging.LevelFromString(lvl); err != nil {
			return fmt.Errorf("log.subsystems[%s]: %w", name, err)
		}
	}

	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid url: %v", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("scheme must be http or https")
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func validateWSURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid url: %v", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return errors.New("scheme must be ws or wss")
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// Load reads a config file, overlays environment variables, and validates.
func Load(path string) (Config, error) {
	cfg, err := LoadPartial(path)
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadPartial reads a config file without validation. Useful for reading
// individual fields when full validation may fail.
func LoadPartial(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}

	// Strip UTF-8 BOM if present (common when editing JSON on Windows).
	b = stripBOM(b)

	// Start from defaults so missing JSON fields remain initialized.
	cfg := Default()
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Config{}, err
	}

	// Environment wins over the file.
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}

	return cfg, nil
}

// stripBOM removes a UTF-8 byte order mark if present.
func stripBOM(b []byte) []byte {
	if len(b) >= 3 && b[0] == 0xEF && b[1] == 0xBB && b[2] == 0xBF {
		return b[3:]
	}
	return b
}

func Save(path string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	return util.WriteJSONFile(path, cfg)
}

// Ensure loads config if it exists; otherwise creates a default config file.
// Returns (cfg, createdNew, err).
func Ensure(path string) (Config, bool, error) {
	if _, err := os.Stat(path); err == nil {
		cfg, err := Load(path)
		return cfg, false, err
	} else if !os.IsNotExist(err) {
		return Config{}, false, err
	}

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, false, fmt.Errorf("create default config: %w", err)
	}
	// Environment still applies on the first run.
	if err := env.Parse(&cfg); err != nil {
		return Config{}, false, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, true, nil
}

// ApplyLogLevels pushes the configured levels into the logging subsystem.
func (c *Config) ApplyLogLevels() error {
	lvl, err := logging.LevelFromString(c.Log.Level)
	if err != nil {
		return err
	}
	logging.SetAllLoggers(lvl)
	for name, s := range c.Log.Subsystems {
		if err := logging.SetLogLevel(name, s); err != nil {
			return fmt.Errorf("set level for %s: %w", name, err)
		}
	}
	return nil
}
