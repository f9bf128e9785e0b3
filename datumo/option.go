package datumo

import (
	"fmt"
	"maps"
	"strconv"
)

// -----------------------------------------------------------------------------
// Plugin options
// -----------------------------------------------------------------------------

// Options holds the extra keyword options passed to plugin constructors.
//
// Values typically come from YAML or CLI flags, so accessors accept the
// loosely typed forms those produce.
type Options map[string]any

// Recognized option keys.
const (
	OptSaveImages = "save_images"
	OptWorkers    = "workers"
)

// Clone returns a shallow copy. A nil receiver yields an empty map.
func (o Options) Clone() Options {
	out := make(Options, len(o))
	maps.Copy(out, o)
	return out
}

// With returns a copy of o with key set to value.
func (o Options) With(key string, value any) Options {
	out := o.Clone()
	out[key] = value
	return out
}

// Bool returns the boolean value for key, or def when absent.
func (o Options) Bool(key string, def bool) (bool, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return def, nil
	}
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		b, err := strconv.ParseBool(val)
		if err != nil {
			return def, fmt.Errorf("option %q: %w", key, err)
		}
		return b, nil
	default:
		return def, fmt.Errorf("option %q: want bool, got %T", key, v)
	}
}

// Int returns the integer value for key, or def when absent.
func (o Options) Int(key string, def int) (int, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return def, nil
	}
	switch val := v.(type) {
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case float64:
		return int(val), nil
	case string:
		n, err := strconv.Atoi(val)
		if err != nil {
			return def, fmt.Errorf("option %q: %w", key, err)
		}
		return n, nil
	default:
		return def, fmt.Errorf("option %q: want int, got %T", key, v)
	}
}

// String returns the string value for key, or def when absent.
func (o Options) String(key, def string) (string, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return def, nil
	}
	s, ok := v.(string)
	if !ok {
		return def, fmt.Errorf("option %q: want string, got %T", key, v)
	}
	return s, nil
}

// Ints returns an integer list for key, or nil when absent.
func (o Options) Ints(key string) ([]int, error) {
	v, ok := o[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case []int:
		return val, nil
	case []any:
		out := make([]int, len(val))
		for i, e := range val {
			n, err := Options{key: e}.Int(key, 0)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("option %q: want list of int, got %T", key, v)
	}
}

// SaveImages reports the "save_images" option (default false).
func (o Options) SaveImages() (bool, error) {
	return o.Bool(OptSaveImages, false)
}

// -----------------------------------------------------------------------------
// Environment options
// -----------------------------------------------------------------------------

// envConfig holds the resolved configuration for an Environment.
type envConfig struct {
	logger  *Logger
	modules []Module
	schemes map[string]StoreFactory
	hooks   []SaveHook
}

// Option configures NewEnvironment.
type Option interface {
	applyEnv(*envConfig) error
}

type loggerOption struct {
	logger *Logger
}

// WithLogger sets the logger used by merges, saves and converters.
// Default: NoopLogger().
func WithLogger(l *Logger) Option {
	return &loggerOption{logger: l}
}

func (o *loggerOption) applyEnv(cfg *envConfig) error {
	if o.logger == nil {
		return fmt.Errorf("WithLogger: logger must not be nil")
	}
	cfg.logger = o.logger
	return nil
}

type modulesOption struct {
	modules []Module
}

// WithModules registers built-in plugin modules at construction.
// Later modules override earlier ones on name collisions.
func WithModules(mods ...Module) Option {
	return &modulesOption{modules: mods}
}

func (o *modulesOption) applyEnv(cfg *envConfig) error {
	cfg.modules = append(cfg.modules, o.modules...)
	return nil
}

type schemeOption struct {
	scheme  string
	factory StoreFactory
}

// WithStoreScheme maps a URL scheme (for example "s3") to a Store factory.
// Plain paths and "file" URLs always resolve to the filesystem store.
func WithStoreScheme(scheme string, f StoreFactory) Option {
	return &schemeOption{scheme: scheme, factory: f}
}

func (o *schemeOption) applyEnv(cfg *envConfig) error {
	if o.scheme == "" || o.factory == nil {
		return fmt.Errorf("WithStoreScheme: scheme and factory are required")
	}
	cfg.schemes[o.scheme] = o.factory
	return nil
}

type saveHookOption struct {
	hook SaveHook
}

// WithSaveHook adds a hook run after every successful project save, in
// registration order.
func WithSaveHook(h SaveHook) Option {
	return &saveHookOption{hook: h}
}

func (o *saveHookOption) applyEnv(cfg *envConfig) error {
	if o.hook == nil {
		return fmt.Errorf("WithSaveHook: hook must not be nil")
	}
	cfg.hooks = append(cfg.hooks, o.hook)
	return nil
}
