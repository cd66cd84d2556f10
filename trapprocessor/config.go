package trapprocessor

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"time"

	"github.com/rexpark/Arduino-SNMP/config"
	"github.com/rexpark/Arduino-SNMP/snmppdu"
)

// Defaults applied by DefaultConfig and ParseConfig.
const (
	DefaultPort           = 1062
	DefaultBindAddress    = "0.0.0.0"
	DefaultCommunity      = "public"
	DefaultReadTimeout    = time.Second
	DefaultBufferSize     = 65535
	DefaultWorkerPoolSize = 4

	// minBufferSize is the smallest message every SNMP entity must accept
	// (RFC 3417).
	minBufferSize = 484
	maxPoolSize   = 1000
)

// ListenerConfig is the resolved listener configuration. It is copied into
// the Listener at construction and never changes afterwards.
type ListenerConfig struct {
	// Port 0 binds an ephemeral port; see Listener.Addr.
	Port        int
	BindAddress string
	Community   string
	Versions    []snmppdu.Version

	// ReadTimeout bounds each blocking receive, and so how long Join waits
	// after Stop.
	ReadTimeout time.Duration
	BufferSize  int
	ReusePort   bool

	WorkerPool WorkerPoolConfig
}

// WorkerPoolConfig enables asynchronous dispatch. Arrival order is only
// preserved when the pool is disabled.
type WorkerPoolConfig struct {
	Enabled bool
	Size    int
}

// DefaultConfig returns the configuration used for absent keys.
func DefaultConfig() ListenerConfig {
	return ListenerConfig{
		Port:        DefaultPort,
		BindAddress: DefaultBindAddress,
		Community:   DefaultCommunity,
		Versions:    []snmppdu.Version{snmppdu.V1, snmppdu.V2c},
		ReadTimeout: DefaultReadTimeout,
		BufferSize:  DefaultBufferSize,
		WorkerPool: WorkerPoolConfig{
			Size: DefaultWorkerPoolSize,
		},
	}
}

// Accepts reports whether v is one of the configured versions.
func (c ListenerConfig) Accepts(v snmppdu.Version) bool {
	return slices.Contains(c.Versions, v)
}

// Address returns the bind address in host:port form. BindAddress must be
// an IP literal (see Validate); an empty one binds every IPv4 interface.
func (c ListenerConfig) Address() string {
	addr, err := netip.ParseAddr(c.BindAddress)
	if err != nil {
		addr = netip.IPv4Unspecified()
	}
	return netip.AddrPortFrom(addr, uint16(c.Port)).String()
}

// Validate checks ranges and required fields.
func (c ListenerConfig) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535 (0 for ephemeral), got %d", c.Port)
	}
	if c.BindAddress != "" {
		if _, err := netip.ParseAddr(c.BindAddress); err != nil {
			return fmt.Errorf("invalid bind address %q: %w", c.BindAddress, err)
		}
	}
	if len(c.Versions) == 0 {
		return errors.New("at least one SNMP version must be accepted")
	}
	for _, v := range c.Versions {
		if v != snmppdu.V1 && v != snmppdu.V2c {
			return fmt.Errorf("unsupported SNMP version %s", v)
		}
	}
	if c.ReadTimeout <= 0 {
		return fmt.Errorf("read timeout must be positive, got %s", c.ReadTimeout)
	}
	if c.BufferSize < minBufferSize || c.BufferSize > 65535 {
		return fmt.Errorf("buffer size must be between %d and 65535, got %d", minBufferSize, c.BufferSize)
	}
	if c.WorkerPool.Enabled && (c.WorkerPool.Size < 1 || c.WorkerPool.Size > maxPoolSize) {
		return fmt.Errorf("worker pool size must be between 1 and %d, got %d", maxPoolSize, c.WorkerPool.Size)
	}
	return nil
}

// ParseConfig resolves a ListenerConfig from one of:
//
//   - a ListenerConfig or *ListenerConfig, validated as is
//   - a config.Provider, read from the listener.* keys
//   - a map with a nested "listener" section
//   - a flat map holding the listener keys directly
//
// Absent keys take the DefaultConfig values:
//
//	cfg, err := trapprocessor.ParseConfig(map[string]any{
//		"listener": map[string]any{
//			"port":      1162,
//			"community": "private",
//			"versions":  []string{"2c"},
//			"worker_pool": map[string]any{
//				"enabled": true,
//				"size":    8,
//			},
//		},
//	})
func ParseConfig(configObj any) (ListenerConfig, error) {
	var (
		cfg ListenerConfig
		err error
	)

	switch c := configObj.(type) {
	case ListenerConfig:
		cfg = c
	case *ListenerConfig:
		if c == nil {
			return ListenerConfig{}, errors.New("configuration cannot be nil")
		}
		cfg = *c
	case config.Provider:
		cfg, err = parseProviderConfig(c)
	case map[string]any:
		cfg, err = parseMapConfig(c)
	case nil:
		cfg = DefaultConfig()
	default:
		return ListenerConfig{}, fmt.Errorf("unsupported configuration type: %T", configObj)
	}
	if err != nil {
		return ListenerConfig{}, err
	}

	if err := cfg.Validate(); err != nil {
		return ListenerConfig{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func parseMapConfig(m map[string]any) (ListenerConfig, error) {
	section := m
	if nested, ok := m["listener"].(map[string]any); ok {
		section = nested
	}

	cfg := DefaultConfig()
	if port, ok := getIntValue(section, "port"); ok {
		cfg.Port = port
	}
	if addr := getStringValue(section, "bind_address"); addr != "" {
		cfg.BindAddress = addr
	}
	if community, ok := section["community"].(string); ok {
		cfg.Community = community
	}
	if versions := getStringSliceValue(section, "versions"); versions != nil {
		parsed, err := parseVersions(versions)
		if err != nil {
			return ListenerConfig{}, err
		}
		cfg.Versions = parsed
	}
	if timeout, ok, err := getDurationValue(section, "read_timeout"); err != nil {
		return ListenerConfig{}, err
	} else if ok {
		cfg.ReadTimeout = timeout
	}
	if size, ok := getIntValue(section, "buffer_size"); ok {
		cfg.BufferSize = size
	}
	if reuse := getBoolValue(section, "reuse_port"); reuse != nil {
		cfg.ReusePort = *reuse
	}

	if poolCfg, ok := section["worker_pool"].(map[string]any); ok {
		if enabled := getBoolValue(poolCfg, "enabled"); enabled != nil {
			cfg.WorkerPool.Enabled = *enabled
		}
		if size, ok := getIntValue(poolCfg, "size"); ok {
			cfg.WorkerPool.Size = size
		}
	}
	return cfg, nil
}

func parseProviderConfig(p config.Provider) (ListenerConfig, error) {
	def := DefaultConfig()
	cfg := def

	var err error
	if cfg.Port, err = p.GetInt("listener.port", def.Port); err != nil {
		return ListenerConfig{}, err
	}
	if cfg.BindAddress, err = p.GetString("listener.bind_address", def.BindAddress); err != nil {
		return ListenerConfig{}, err
	}
	if cfg.Community, err = p.GetString("listener.community", def.Community); err != nil {
		return ListenerConfig{}, err
	}
	versions, err := p.GetStringSlice("listener.versions", []string{"1", "2c"})
	if err != nil {
		return ListenerConfig{}, err
	}
	if cfg.Versions, err = parseVersions(versions); err != nil {
		return ListenerConfig{}, err
	}
	if cfg.ReadTimeout, err = p.GetDuration("listener.read_timeout", def.ReadTimeout); err != nil {
		return ListenerConfig{}, err
	}
	if cfg.BufferSize, err = p.GetInt("listener.buffer_size", def.BufferSize); err != nil {
		return ListenerConfig{}, err
	}
	if cfg.ReusePort, err = p.GetBool("listener.reuse_port", def.ReusePort); err != nil {
		return ListenerConfig{}, err
	}
	if cfg.WorkerPool.Enabled, err = p.GetBool("listener.worker_pool.enabled", false); err != nil {
		return ListenerConfig{}, err
	}
	if cfg.WorkerPool.Size, err = p.GetInt("listener.worker_pool.size", def.WorkerPool.Size); err != nil {
		return ListenerConfig{}, err
	}
	return cfg, nil
}

func parseVersions(values []string) ([]snmppdu.Version, error) {
	out := make([]snmppdu.Version, 0, len(values))
	for _, s := range values {
		v, err := snmppdu.ParseVersion(s)
		if err != nil {
			return nil, fmt.Errorf("listener versions: %w (must be 1 or 2c)", err)
		}
		if !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out, nil
}

// getStringValue safely extracts a string value from a map.
func getStringValue(m map[string]any, key string) string {
	if str, ok := m[key].(string); ok {
		return str
	}
	return ""
}

// getIntValue extracts an integer, reporting whether the key held one.
func getIntValue(m map[string]any, key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// getBoolValue safely extracts a bool value from a map.
func getBoolValue(m map[string]any, key string) *bool {
	if b, ok := m[key].(bool); ok {
		return &b
	}
	return nil
}

// getDurationValue accepts a time.Duration or a duration string.
func getDurationValue(m map[string]any, key string) (time.Duration, bool, error) {
	switch v := m[key].(type) {
	case time.Duration:
		return v, true, nil
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, false, fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		return d, true, nil
	}
	return 0, false, nil
}

// getStringSliceValue safely extracts a []string value from a map.
func getStringSliceValue(m map[string]any, key string) []string {
	switch v := m[key].(type) {
	case []string:
		return v
	case []any:
		result := make([]string, 0, len(v))
		for _, item := range v {
			if str, ok := item.(string); ok {
				result = append(result, str)
			}
		}
		return result
	}
	return nil
}
