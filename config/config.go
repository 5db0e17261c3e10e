// Package config exposes the user-level symflow settings stored in a small
// JSON file under the OS config directory. The file is created with defaults
// on first access, and every accessor falls back to those defaults when the
// file is missing or unreadable, so callers never handle configuration
// errors.
package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/hupe1980/symflow/logging"
)

// Defaults applied when the configuration file is absent or unreadable.
const (
	DefaultBackend = "openai"
	DefaultFloatX  = "float32"
	DefaultEpsilon = 1e-7
)

type settings struct {
	Backend string  `json:"backend"`
	FloatX  string  `json:"floatx"`
	Epsilon float64 `json:"epsilon"`
}

var (
	mu     sync.Mutex
	loaded bool
	cfg    settings

	logger logging.Logger = logging.NoOpLogger{}

	// Stubbed in tests.
	userConfigDir = os.UserConfigDir
)

// SetLogger routes configuration warnings to the given logger. The default
// discards them.
func SetLogger(l logging.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l != nil {
		logger = l
	}
}

// Path returns the location of the configuration file, normally
// $XDG_CONFIG_HOME/symflow/symflow.json or the platform equivalent.
func Path() (string, error) {
	dir, err := userConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "symflow", "symflow.json"), nil
}

// Backend returns the default model provider.
func Backend() string {
	mu.Lock()
	defer mu.Unlock()
	load()
	return cfg.Backend
}

// FloatX returns the preferred float precision label.
func FloatX() string {
	mu.Lock()
	defer mu.Unlock()
	load()
	return cfg.FloatX
}

// Epsilon returns the small constant guarding divisions in rewards and
// metrics.
func Epsilon() float64 {
	mu.Lock()
	defer mu.Unlock()
	load()
	return cfg.Epsilon
}

// SetBackend overrides the default model provider for the current process.
func SetBackend(v string) { set(func(s *settings) { s.Backend = v }) }

// SetFloatX overrides the float precision label for the current process.
func SetFloatX(v string) { set(func(s *settings) { s.FloatX = v }) }

// SetEpsilon overrides the numeric guard constant for the current process.
func SetEpsilon(v float64) { set(func(s *settings) { s.Epsilon = v }) }

func set(fn func(*settings)) {
	mu.Lock()
	defer mu.Unlock()
	load()
	fn(&cfg)
}

func defaults() settings {
	return settings{Backend: DefaultBackend, FloatX: DefaultFloatX, Epsilon: DefaultEpsilon}
}

// load reads the configuration file exactly once per process. A missing file
// is materialized with defaults; a malformed one is kept on disk untouched
// and the defaults win for the session.
func load() {
	if loaded {
		return
	}
	loaded = true
	cfg = defaults()

	path, err := Path()
	if err != nil {
		logger.Warn("config.dir_unavailable", "error", err)
		return
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		writeDefaults(path)
		return
	}
	if err != nil {
		logger.Warn("config.read_failed", "path", path, "error", err)
		return
	}

	var parsed settings
	if err := json.Unmarshal(raw, &parsed); err != nil {
		logger.Warn("config.malformed", "path", path, "error", err)
		return
	}
	if parsed.Backend != "" {
		cfg.Backend = parsed.Backend
	}
	if parsed.FloatX != "" {
		cfg.FloatX = parsed.FloatX
	}
	if parsed.Epsilon > 0 {
		cfg.Epsilon = parsed.Epsilon
	}
}

func writeDefaults(path string) {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		logger.Warn("config.init_failed", "path", path, "error", err)
		return
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		logger.Warn("config.init_failed", "path", path, "error", err)
	}
}

// reset clears the cached settings so the next accessor reloads the file.
func reset() {
	mu.Lock()
	defer mu.Unlock()
	loaded = false
}
