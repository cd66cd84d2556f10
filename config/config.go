// Package config loads trap receiver settings from YAML or JSON files
// validated against a CUE schema.
//
// Defaults live in the schema, so an empty or absent configuration file
// yields a complete configuration:
//
//	manager, err := config.NewManager(config.Options{
//		SchemaContent: `
//			listener: {
//				port:      int & >=1 & <=65535 | *1062
//				community: string | *"public"
//			}
//		`,
//		ConfigPath:            "/etc/traplistener/config.yaml",
//		EnableConfigHotReload: true,
//	})
//	if err != nil {
//		return err
//	}
//	defer manager.Close()
//
//	port, _ := manager.GetInt("listener.port")
//
// Configuration files may reference environment variables as $VAR, ${VAR}
// or ${VAR:-default}.
package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"
)

// ErrNotFound is returned by getters when a path is absent and no default
// was supplied.
var ErrNotFound = errors.New("config path not found")

// Provider gives typed access to configuration values by dot-separated
// path. The optional defaultValue is returned when the path is absent.
type Provider interface {
	GetString(path string, defaultValue ...string) (string, error)
	GetInt(path string, defaultValue ...int) (int, error)
	GetFloat(path string, defaultValue ...float64) (float64, error)
	GetBool(path string, defaultValue ...bool) (bool, error)
	GetDuration(path string, defaultValue ...time.Duration) (time.Duration, error)
	GetStringSlice(path string, defaultValue ...[]string) ([]string, error)
	GetMap(path string) (map[string]any, error)
	Exists(path string) bool
}

// Manager is a Provider that can be reloaded from disk.
type Manager interface {
	Provider

	// Validate re-checks the current values against the schema.
	Validate() error

	// Reload re-reads the schema and configuration file. The previous
	// configuration stays in effect if the new one fails to load.
	Reload() error

	// StartHotReload watches the configuration file until ctx is done.
	StartHotReload(ctx context.Context) error
	StopHotReload()

	// OnConfigChange registers a callback run after every hot reload
	// attempt with its error, nil on success.
	OnConfigChange(callback func(error))

	Close() error
}

// Options configures NewManager. Exactly one of SchemaPath and
// SchemaContent must be set.
type Options struct {
	SchemaPath    string
	SchemaContent string

	// ConfigPath may be empty, in which case only schema defaults apply.
	ConfigPath string

	EnableConfigHotReload bool
	EnableSchemaHotReload bool

	// HotReloadContext bounds hot reload; context.Background() when nil.
	HotReloadContext context.Context

	// ReloadDebounce coalesces bursts of file events. Default 100ms.
	ReloadDebounce time.Duration
}

type configManager struct {
	options Options
	schema  *schemaLoader

	mu     sync.RWMutex
	values map[string]any

	reloadMu sync.Mutex
	reloader *hotReloader
	notifier changeNotifier
}

func validateOptions(options Options) error {
	if options.SchemaPath == "" && options.SchemaContent == "" {
		return errors.New("either schema path or schema content is required")
	}
	if options.SchemaPath != "" && options.SchemaContent != "" {
		return errors.New("cannot specify both schema path and schema content")
	}
	if options.EnableSchemaHotReload && options.SchemaContent != "" {
		return errors.New("schema hot reload requires a schema path")
	}
	if options.EnableConfigHotReload && options.ConfigPath == "" {
		return errors.New("config hot reload requires a config path")
	}
	return nil
}

// NewManager loads the schema and configuration described by options and
// starts hot reload when enabled.
func NewManager(options Options) (Manager, error) {
	if err := validateOptions(options); err != nil {
		return nil, err
	}
	if options.ReloadDebounce <= 0 {
		options.ReloadDebounce = 100 * time.Millisecond
	}

	m := &configManager{
		options: options,
		schema:  newSchemaLoader(),
	}

	if err := m.load(); err != nil {
		return nil, err
	}

	if options.EnableConfigHotReload || options.EnableSchemaHotReload {
		ctx := options.HotReloadContext
		if ctx == nil {
			ctx = context.Background()
		}
		if err := m.StartHotReload(ctx); err != nil {
			return nil, fmt.Errorf("failed to start hot reload: %w", err)
		}
	}

	return m, nil
}

// load builds a fresh schema and value set and swaps them in on success.
func (m *configManager) load() error {
	schema := newSchemaLoader()
	var err error
	if m.options.SchemaContent != "" {
		err = schema.LoadContent(m.options.SchemaContent)
	} else {
		err = schema.LoadFile(m.options.SchemaPath)
	}
	if err != nil {
		return fmt.Errorf("failed to load schema: %w", err)
	}

	values, err := loadValues(schema, m.options.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	m.mu.Lock()
	m.schema = schema
	m.values = values
	m.mu.Unlock()
	return nil
}

func (m *configManager) lookup(path string) (any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return valueAtPath(m.values, path)
}

// GetString returns the string at path.
func (m *configManager) GetString(path string, defaultValue ...string) (string, error) {
	value, err := m.lookup(path)
	if err != nil {
		if len(defaultValue) > 0 {
			return defaultValue[0], nil
		}
		return "", err
	}
	if s, ok := value.(string); ok {
		return s, nil
	}
	return "", fmt.Errorf("value at path %s is not a string: %T", path, value)
}

// GetInt returns the integer at path.
func (m *configManager) GetInt(path string, defaultValue ...int) (int, error) {
	value, err := m.lookup(path)
	if err != nil {
		if len(defaultValue) > 0 {
			return defaultValue[0], nil
		}
		return 0, err
	}
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("value at path %s is not an integer: %v", path, v)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("value at path %s is not an integer: %T", path, value)
	}
}

// GetFloat returns the number at path.
func (m *configManager) GetFloat(path string, defaultValue ...float64) (float64, error) {
	value, err := m.lookup(path)
	if err != nil {
		if len(defaultValue) > 0 {
			return defaultValue[0], nil
		}
		return 0, err
	}
	switch v := value.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("value at path %s is not a number: %T", path, value)
	}
}

// GetBool returns the boolean at path.
func (m *configManager) GetBool(path string, defaultValue ...bool) (bool, error) {
	value, err := m.lookup(path)
	if err != nil {
		if len(defaultValue) > 0 {
			return defaultValue[0], nil
		}
		return false, err
	}
	if b, ok := value.(bool); ok {
		return b, nil
	}
	return false, fmt.Errorf("value at path %s is not a boolean: %T", path, value)
}

// GetDuration parses the duration string at path ("1s", "250ms").
func (m *configManager) GetDuration(path string, defaultValue ...time.Duration) (time.Duration, error) {
	value, err := m.lookup(path)
	if err != nil {
		if len(defaultValue) > 0 {
			return defaultValue[0], nil
		}
		return 0, err
	}
	s, ok := value.(string)
	if !ok {
		return 0, fmt.Errorf("value at path %s is not a duration string: %T", path, value)
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration at path %s: %w", path, err)
	}
	return d, nil
}

// GetStringSlice returns the list of strings at path.
func (m *configManager) GetStringSlice(path string, defaultValue ...[]string) ([]string, error) {
	value, err := m.lookup(path)
	if err != nil {
		if len(defaultValue) > 0 {
			return defaultValue[0], nil
		}
		return nil, err
	}
	switch v := value.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("item %d at path %s is not a string: %T", i, path, item)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value at path %s is not a string list: %T", path, value)
	}
}

// GetMap returns a copy of the object at path.
func (m *configManager) GetMap(path string) (map[string]any, error) {
	value, err := m.lookup(path)
	if err != nil {
		return nil, err
	}
	if mv, ok := value.(map[string]any); ok {
		return copyMap(mv), nil
	}
	return nil, fmt.Errorf("value at path %s is not a map: %T", path, value)
}

// Exists reports whether path is set, by the file or by a schema default.
func (m *configManager) Exists(path string) bool {
	_, err := m.lookup(path)
	return err == nil
}

func (m *configManager) Validate() error {
	m.mu.RLock()
	schema, values := m.schema, m.values
	m.mu.RUnlock()
	return schema.Validate(values)
}

func (m *configManager) Reload() error {
	return m.load()
}

func (m *configManager) StartHotReload(ctx context.Context) error {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	if m.reloader != nil {
		return errors.New("hot reload already started")
	}

	var paths []string
	if m.options.EnableConfigHotReload && m.options.ConfigPath != "" {
		paths = append(paths, m.options.ConfigPath)
	}
	if m.options.EnableSchemaHotReload && m.options.SchemaPath != "" {
		paths = append(paths, m.options.SchemaPath)
	}
	if len(paths) == 0 {
		return errors.New("no files to watch")
	}

	r, err := newHotReloader(paths, m.options.ReloadDebounce,
		func() { m.notifier.notify(m.load()) },
		m.notifier.notify,
	)
	if err != nil {
		return err
	}
	if err := r.start(ctx); err != nil {
		return err
	}
	m.reloader = r
	return nil
}

func (m *configManager) StopHotReload() {
	m.reloadMu.Lock()
	defer m.reloadMu.Unlock()

	if m.reloader != nil {
		m.reloader.stop()
		m.reloader = nil
	}
}

func (m *configManager) OnConfigChange(callback func(error)) {
	m.notifier.add(callback)
}

func (m *configManager) Close() error {
	m.StopHotReload()
	return nil
}

// changeNotifier fans reload results out to registered callbacks.
type changeNotifier struct {
	mu        sync.RWMutex
	callbacks []func(error)
}

func (n *changeNotifier) add(callback func(error)) {
	if callback == nil {
		return
	}
	n.mu.Lock()
	n.callbacks = append(n.callbacks, callback)
	n.mu.Unlock()
}

func (n *changeNotifier) notify(err error) {
	n.mu.RLock()
	callbacks := slices.Clone(n.callbacks)
	n.mu.RUnlock()

	for _, cb := range callbacks {
		cb(err)
	}
}
