package config

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"
)

// Manager holds the live configuration and handles updates from the
// dashboard and explicit reloads.
type Manager struct {
	path string

	mu        sync.RWMutex
	config    Config
	listeners []func(Config) error
}

// NewManager wraps cfg. path is where Save writes; empty disables
// persistence.
func NewManager(cfg Config, path string) *Manager {
	return &Manager{config: cfg, path: path}
}

// Get returns the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// Path returns the persistence path.
func (m *Manager) Path() string { return m.path }

// OnChange subscribes fn to every accepted configuration.
func (m *Manager) OnChange(fn func(Config) error) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Set validates cfg, stores it and notifies subscribers. Every
// subscriber runs even if an earlier one fails.
func (m *Manager) Set(cfg Config) error {
	if problems := cfg.Validate(); len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}

	m.mu.Lock()
	m.config = cfg
	listeners := append([]func(Config) error(nil), m.listeners...)
	m.mu.Unlock()

	var errs []error
	for _, fn := range listeners {
		if err := fn(cfg); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("failed to apply config: %w", errors.Join(errs...))
	}
	return nil
}

// Update overlays params (flat keys, JSON-ish values) on the current
// configuration. Unknown keys are rejected before anything changes.
func (m *Manager) Update(params map[string]any) error {
	cur := m.Get()
	flat, err := cur.Map()
	if err != nil {
		return err
	}

	var unknown []string
	for key := range params {
		if _, ok := flat[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: %v", ErrUnknownKey, unknown)
	}

	k := koanf.New(".")
	for key, v := range flat {
		_ = k.Set(key, v)
	}
	for key, v := range params {
		if s, ok := v.(string); ok && s == Mask && secretKeys[key] {
			// masked value echoed back from the dashboard: keep existing
			continue
		}
		_ = k.Set(key, v)
	}

	var next Config
	if err := decode(k, &next); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return m.Set(next)
}

// Reload re-reads the file and environment.
func (m *Manager) Reload() error {
	cfg, err := Load(m.path)
	if err != nil {
		return err
	}
	return m.Set(*cfg)
}

// Save writes the current configuration to the manager's path as YAML.
func (m *Manager) Save() error {
	if m.path == "" {
		return nil
	}
	cfg := m.Get()
	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Mask replaces secrets in Public output.
const Mask = "********"

// Map flattens c to key -> value with durations as strings.
func (c *Config) Map() (map[string]any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	out := make(map[string]any)
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("flatten config: %w", err)
	}
	return out, nil
}

// Public is Map with secrets masked, for the dashboard.
func (c *Config) Public() map[string]any {
	out, err := c.Map()
	if err != nil {
		return map[string]any{}
	}
	for key := range secretKeys {
		if s, ok := out[key].(string); ok && s != "" {
			out[key] = Mask
		}
	}
	return out
}
