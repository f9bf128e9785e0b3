package datumo

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// PluginKind identifies which registry a plugin belongs to.
type PluginKind int

// Plugin kinds.
const (
	PluginExtractor PluginKind = iota
	PluginImporter
	PluginConverter
	PluginLauncher
)

func (k PluginKind) String() string {
	switch k {
	case PluginExtractor:
		return "extractor"
	case PluginImporter:
		return "importer"
	case PluginConverter:
		return "converter"
	case PluginLauncher:
		return "launcher"
	default:
		return fmt.Sprintf("plugin(%d)", int(k))
	}
}

// FormatKind distinguishes nested projects from registry-backed formats.
type FormatKind int

// Format kinds.
const (
	// FormatForeign is any format resolved through the extractor registry.
	FormatForeign FormatKind = iota
	// FormatNative marks a source that is itself a project.
	FormatNative
)

// FormatNativeName is the source format string naming a nested project.
const FormatNativeName = "native"

// FormatKindOf classifies a source format string. Empty and "native" name a
// nested project.
func FormatKindOf(format string) FormatKind {
	if format == "" || format == FormatNativeName {
		return FormatNative
	}
	return FormatForeign
}

// -----------------------------------------------------------------------------
// Registry
// -----------------------------------------------------------------------------

// Registry maps names to factories of one plugin kind.
//
// Registration is last-write-wins. Registry is safe for concurrent use.
type Registry[F any] struct {
	kind  PluginKind
	mu    sync.RWMutex
	items map[string]F
}

// NewRegistry creates an empty registry for kind.
func NewRegistry[F any](kind PluginKind) *Registry[F] {
	return &Registry[F]{kind: kind, items: make(map[string]F)}
}

// Register adds or replaces the factory under name.
func (r *Registry[F]) Register(name string, f F) {
	r.mu.Lock()
	r.items[name] = f
	r.mu.Unlock()
}

// Unregister removes name if present.
func (r *Registry[F]) Unregister(name string) {
	r.mu.Lock()
	delete(r.items, name)
	r.mu.Unlock()
}

// Get returns the factory for name, or ErrNotFound.
func (r *Registry[F]) Get(name string) (F, error) {
	r.mu.RLock()
	f, ok := r.items[name]
	r.mu.RUnlock()
	if !ok {
		var zero F
		return zero, fmt.Errorf("%s %q: %w", r.kind, name, ErrNotFound)
	}
	return f, nil
}

// Names returns the registered names in sorted order.
func (r *Registry[F]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.items))
}

// -----------------------------------------------------------------------------
// Modules
// -----------------------------------------------------------------------------

// Plugin is one named factory exposed by a Module. Factory must be an
// ExtractorFactory, ImporterFactory, ConverterFactory or LauncherFactory
// matching Kind.
type Plugin struct {
	Kind    PluginKind
	Name    string
	Factory any
}

// Module is a unit of plugin discovery. It exposes either a list of Items or
// a single Export registered under the module's own Name.
type Module struct {
	Name   string
	Items  []Plugin
	Export any
}

// Plugins returns the module's plugins, deriving the kind of a single Export
// from its factory type.
func (m Module) Plugins() ([]Plugin, error) {
	if len(m.Items) > 0 {
		return m.Items, nil
	}
	if m.Export == nil {
		return nil, nil
	}
	kind, ok := factoryKind(m.Export)
	if !ok {
		return nil, fmt.Errorf("datumo: module %q exports unsupported %T", m.Name, m.Export)
	}
	return []Plugin{{Kind: kind, Name: m.Name, Factory: m.Export}}, nil
}

func factoryKind(f any) (PluginKind, bool) {
	switch f.(type) {
	case ExtractorFactory:
		return PluginExtractor, true
	case ImporterFactory:
		return PluginImporter, true
	case ConverterFactory:
		return PluginConverter, true
	case LauncherFactory:
		return PluginLauncher, true
	default:
		return 0, false
	}
}
