// Runtime configuration shared by the desktop app and the matting server
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Backend names accepted in Config.Backend.
const (
	BackendHTTP     = "http"
	BackendCommand  = "command"
	BackendONNX     = "onnx"
	BackendColorKey = "colorkey"
)

// envPrefix is prepended to the upper-cased JSON key for environment overrides.
const envPrefix = "BGREMOVER_"

// Config holds runtime configuration. It is read from an optional JSON file
// and overridden by environment variables and command-line flags. The
// application never writes it back.
type Config struct {
	Debug bool `json:"debug"`

	// Matting backend selection
	Backend        string   `json:"backend"`
	Endpoint       string   `json:"endpoint"`         // http: base URL of a rembg-compatible server
	ModelName      string   `json:"model_name"`       // http: model requested from the server
	Command        []string `json:"command"`          // command: argv, PNG on stdin, PNG on stdout
	ModelPath      string   `json:"model_path"`       // onnx: path to a U2-Net style network
	ModelInputSize int      `json:"model_input_size"` // onnx: square network input side

	// Invoker behaviour
	MaxInputSide      int     `json:"max_input_side"` // 0 = send full resolution
	Feather           float64 `json:"feather"`        // gaussian sigma on the alpha edge, 0 = off
	AlphaThreshold    uint8   `json:"alpha_threshold"`
	ColorKeyTolerance float64 `json:"colorkey_tolerance"`
	RequestTimeout    int     `json:"request_timeout_seconds"` // 0 = no limit

	// UI
	Formats         []string `json:"formats"`
	PreviewFallback int      `json:"preview_fallback"`
	StartDir        string   `json:"start_dir"`

	// matting-server
	ListenAddr string `json:"listen_addr"`
}

// Default returns a Config populated with standard defaults.
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return &Config{
		Debug:             false,
		Backend:           BackendCommand,
		Endpoint:          "http://127.0.0.1:7000",
		ModelName:         "u2net",
		Command:           []string{"rembg", "i"},
		ModelPath:         "u2net.onnx",
		ModelInputSize:    320,
		MaxInputSide:      0,
		Feather:           0,
		AlphaThreshold:    128,
		ColorKeyTolerance: 0.12,
		RequestTimeout:    0,
		Formats:           []string{"png", "jpg", "jpeg", "bmp", "webp", "tif", "tiff", "gif", "svg", "avif"},
		PreviewFallback:   400,
		StartDir:          filepath.Join(home, "Pictures"),
		ListenAddr:        "127.0.0.1:7000",
	}
}

// Validate clamps/normalizes values to safe ranges and rejects values that
// cannot be repaired.
func (c *Config) Validate() error {
	c.Backend = strings.ToLower(strings.TrimSpace(c.Backend))
	switch c.Backend {
	case BackendHTTP, BackendCommand, BackendONNX, BackendColorKey:
	case "":
		c.Backend = BackendCommand
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Backend == BackendCommand && len(c.Command) == 0 {
		return fmt.Errorf("backend %q needs a command", c.Backend)
	}
	c.Endpoint = strings.TrimRight(c.Endpoint, "/")
	if c.ModelInputSize <= 0 {
		c.ModelInputSize = 320
	}
	if c.MaxInputSide < 0 {
		c.MaxInputSide = 0
	}
	if c.Feather < 0 {
		c.Feather = 0
	}
	if c.AlphaThreshold == 0 {
		c.AlphaThreshold = 128
	}
	if c.ColorKeyTolerance <= 0 || c.ColorKeyTolerance > 1 {
		c.ColorKeyTolerance = 0.12
	}
	if c.RequestTimeout < 0 {
		c.RequestTimeout = 0
	}
	if c.PreviewFallback < 10 {
		c.PreviewFallback = 400
	}
	c.Formats = normalizeFormats(c.Formats)
	if len(c.Formats) == 0 {
		c.Formats = Default().Formats
	}
	return nil
}

// Timeout returns RequestTimeout as a duration; zero means no limit.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Second
}

// Load reads configuration from the given JSON file path. If path is empty or
// the file does not exist it returns Default(). On JSON error it returns the
// defaults together with the error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	if err := dec.Decode(cfg); err != nil {
		return Default(), fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Default(), fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from BGREMOVER_* environment variables, e.g.
// BGREMOVER_BACKEND=http or BGREMOVER_FEATHER=1.5. Lists are comma separated.
func (c *Config) ApplyEnv() error {
	lookup := func(key string) (string, bool) {
		v, ok := os.LookupEnv(envPrefix + key)
		return strings.TrimSpace(v), ok && strings.TrimSpace(v) != ""
	}

	if v, ok := lookup("DEBUG"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sDEBUG: %w", envPrefix, err)
		}
		c.Debug = b
	}
	if v, ok := lookup("BACKEND"); ok {
		c.Backend = v
	}
	if v, ok := lookup("ENDPOINT"); ok {
		c.Endpoint = v
	}
	if v, ok := lookup("MODEL_NAME"); ok {
		c.ModelName = v
	}
	if v, ok := lookup("COMMAND"); ok {
		c.Command = strings.Fields(v)
	}
	if v, ok := lookup("MODEL_PATH"); ok {
		c.ModelPath = v
	}
	if v, ok := lookup("MAX_INPUT_SIDE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sMAX_INPUT_SIDE: %w", envPrefix, err)
		}
		c.MaxInputSide = n
	}
	if v, ok := lookup("FEATHER"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("%sFEATHER: %w", envPrefix, err)
		}
		c.Feather = f
	}
	if v, ok := lookup("REQUEST_TIMEOUT_SECONDS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sREQUEST_TIMEOUT_SECONDS: %w", envPrefix, err)
		}
		c.RequestTimeout = n
	}
	if v, ok := lookup("FORMATS"); ok {
		c.Formats = strings.Split(v, ",")
	}
	if v, ok := lookup("LISTEN_ADDR"); ok {
		c.ListenAddr = v
	}
	return c.Validate()
}

// normalizeFormats lower-cases, strips leading dots and de-duplicates.
func normalizeFormats(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, f := range in {
		f = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(f), "."))
		if f == "" || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
