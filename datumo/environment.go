package datumo

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net/url"
	"slices"
	"sync"
)

// Environment owns the plugin registries and store schemes shared by every
// project opened with it.
type Environment struct {
	Extractors *Registry[ExtractorFactory]
	Importers  *Registry[ImporterFactory]
	Converters *Registry[ConverterFactory]
	Launchers  *Registry[LauncherFactory]

	logger *Logger
	hooks  []SaveHook

	mu      sync.RWMutex
	schemes map[string]StoreFactory
}

// NewEnvironment creates an environment and registers the modules supplied
// with WithModules.
func NewEnvironment(opts ...Option) (*Environment, error) {
	cfg := &envConfig{
		logger:  NoopLogger(),
		schemes: make(map[string]StoreFactory),
	}
	for _, opt := range opts {
		if err := opt.applyEnv(cfg); err != nil {
			return nil, err
		}
	}
	env := &Environment{
		Extractors: NewRegistry[ExtractorFactory](PluginExtractor),
		Importers:  NewRegistry[ImporterFactory](PluginImporter),
		Converters: NewRegistry[ConverterFactory](PluginConverter),
		Launchers:  NewRegistry[LauncherFactory](PluginLauncher),
		logger:     cfg.logger,
		hooks:      cfg.hooks,
		schemes:    cfg.schemes,
	}
	if err := env.Load(cfg.modules...); err != nil {
		return nil, err
	}
	return env, nil
}

// Logger returns the environment logger.
func (e *Environment) Logger() *Logger { return e.logger }

// Load registers the plugins of mods in order. A later registration under an
// existing name replaces the earlier one.
func (e *Environment) Load(mods ...Module) error {
	for _, m := range mods {
		plugins, err := m.Plugins()
		if err != nil {
			return err
		}
		for _, p := range plugins {
			if err := e.register(p); err != nil {
				return fmt.Errorf("datumo: module %q: %w", m.Name, err)
			}
		}
	}
	return nil
}

func (e *Environment) register(p Plugin) error {
	var ok bool
	switch p.Kind {
	case PluginExtractor:
		var f ExtractorFactory
		if f, ok = p.Factory.(ExtractorFactory); ok {
			e.Extractors.Register(p.Name, f)
		}
	case PluginImporter:
		var f ImporterFactory
		if f, ok = p.Factory.(ImporterFactory); ok {
			e.Importers.Register(p.Name, f)
		}
	case PluginConverter:
		var f ConverterFactory
		if f, ok = p.Factory.(ConverterFactory); ok {
			e.Converters.Register(p.Name, f)
		}
	case PluginLauncher:
		var f LauncherFactory
		if f, ok = p.Factory.(LauncherFactory); ok {
			e.Launchers.Register(p.Name, f)
		}
	}
	if !ok {
		return fmt.Errorf("%s %q: factory has type %T", p.Kind, p.Name, p.Factory)
	}
	return nil
}

// RegisterStoreScheme maps a URL scheme to a Store factory.
func (e *Environment) RegisterStoreScheme(scheme string, f StoreFactory) {
	e.mu.Lock()
	e.schemes[scheme] = f
	e.mu.Unlock()
}

// StoreSchemes returns the registered URL schemes in sorted order.
func (e *Environment) StoreSchemes() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Sorted(maps.Keys(e.schemes))
}

// -----------------------------------------------------------------------------
// Construction
// -----------------------------------------------------------------------------

// MakeExtractor constructs the named extractor over store.
func (e *Environment) MakeExtractor(ctx context.Context, name string, store Store, opts Options) (Extractor, error) {
	f, err := e.Extractors.Get(name)
	if err != nil {
		return nil, err
	}
	ex, err := f(ctx, store, opts)
	if err != nil {
		return nil, &ConstructionError{Kind: PluginExtractor, Name: name, Err: err}
	}
	return ex, nil
}

// MakeImporter constructs the named importer.
func (e *Environment) MakeImporter(name string, opts Options) (Importer, error) {
	f, err := e.Importers.Get(name)
	if err != nil {
		return nil, err
	}
	im, err := f(opts)
	if err != nil {
		return nil, &ConstructionError{Kind: PluginImporter, Name: name, Err: err}
	}
	return im, nil
}

// MakeConverter constructs the named converter.
func (e *Environment) MakeConverter(name string, opts Options) (Converter, error) {
	f, err := e.Converters.Get(name)
	if err != nil {
		return nil, err
	}
	c, err := f(opts)
	if err != nil {
		return nil, &ConstructionError{Kind: PluginConverter, Name: name, Err: err}
	}
	return c, nil
}

// MakeLauncher constructs the named launcher.
func (e *Environment) MakeLauncher(name string, opts Options) (Launcher, error) {
	f, err := e.Launchers.Get(name)
	if err != nil {
		return nil, err
	}
	l, err := f(opts)
	if err != nil {
		return nil, &ConstructionError{Kind: PluginLauncher, Name: name, Err: err}
	}
	return l, nil
}

// -----------------------------------------------------------------------------
// Stores and codecs
// -----------------------------------------------------------------------------

// OpenStore resolves a location to a Store. Plain paths and file:// URLs map
// to the filesystem; other schemes use registered factories.
func (e *Environment) OpenStore(ctx context.Context, location string) (Store, error) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		return NewFS(location)
	}
	if u.Scheme == "file" {
		return NewFS(u.Path)
	}
	e.mu.RLock()
	f, ok := e.schemes[u.Scheme]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("store scheme %q: %w", u.Scheme, ErrNotFound)
	}
	return f(ctx, u)
}

// Extract opens location and reads it with the named extractor.
func (e *Environment) Extract(ctx context.Context, location, format string, opts Options) (Extractor, error) {
	store, err := e.OpenStore(ctx, location)
	if err != nil {
		return nil, err
	}
	return e.MakeExtractor(ctx, format, store, opts)
}

// Convert writes src to dst with the named converter.
func (e *Environment) Convert(ctx context.Context, src Extractor, format string, opts Options, dst Store) error {
	c, err := e.MakeConverter(format, opts)
	if err != nil {
		return err
	}
	return c.Convert(ContextWithLogger(ctx, e.logger), src, dst)
}

// Export converts src into a scratch memory store and streams it to w as an
// archive. This is the entry point used by request handlers.
func (e *Environment) Export(ctx context.Context, src Extractor, format string, opts Options, w io.Writer, archive ArchiveFormat) error {
	scratch := NewMemory()
	if err := e.Convert(ctx, src, format, opts, scratch); err != nil {
		return err
	}
	return Pack(ctx, scratch, w, archive)
}

// Detector is implemented by importers that can recognize their layout.
type Detector interface {
	Detect(ctx context.Context, store Store) (bool, error)
}

// DetectFormats returns the names of importers whose Detect accepts store.
func (e *Environment) DetectFormats(ctx context.Context, store Store) ([]string, error) {
	var found []string
	for _, name := range e.Importers.Names() {
		im, err := e.MakeImporter(name, nil)
		if err != nil {
			return nil, err
		}
		d, ok := im.(Detector)
		if !ok {
			continue
		}
		match, err := d.Detect(ctx, store)
		if err != nil {
			return nil, fmt.Errorf("detect %s: %w", name, err)
		}
		if match {
			found = append(found, name)
		}
	}
	return found, nil
}
