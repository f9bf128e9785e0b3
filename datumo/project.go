package datumo

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
)

// Project binds a configuration to an environment and, once saved or loaded,
// to a directory.
type Project struct {
	Config Config

	env *Environment
	dir string
}

// NewProject creates a project that has no directory yet.
func NewProject(env *Environment, cfg Config) *Project {
	return &Project{Config: cfg.withDefaults(), env: env}
}

// LoadProject reads "<dir>/.datumo/config.yaml".
func LoadProject(ctx context.Context, env *Environment, dir string) (*Project, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("load project %s: %w", dir, ErrNotFound)
	}
	store, err := NewFS(dir)
	if err != nil {
		return nil, err
	}
	rc, err := store.Get(ctx, path.Join(DefaultEnvDir, ConfigFilename))
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", dir, err)
	}
	defer closer(rc)()
	cfg, err := ParseConfig(rc)
	if err != nil {
		return nil, fmt.Errorf("load project %s: %w", dir, err)
	}
	return &Project{Config: cfg, env: env, dir: dir}, nil
}

// GenerateProject writes cfg as a new project in dir and returns it.
func GenerateProject(ctx context.Context, env *Environment, dir string, cfg Config) (*Project, error) {
	p := NewProject(env, cfg)
	if err := p.Save(ctx, dir); err != nil {
		return nil, err
	}
	return p, nil
}

// ImportProject creates an in-memory project whose sources are discovered by
// the named importer at location. An empty format asks every detecting
// importer; exactly one must match.
func ImportProject(ctx context.Context, env *Environment, location, format string, opts Options) (*Project, error) {
	store, err := env.OpenStore(ctx, location)
	if err != nil {
		return nil, err
	}
	if format == "" {
		found, err := env.DetectFormats(ctx, store)
		if err != nil {
			return nil, err
		}
		switch len(found) {
		case 0:
			return nil, fmt.Errorf("detect format of %s: %w", location, ErrNotFound)
		case 1:
			format = found[0]
		default:
			return nil, fmt.Errorf("detect format of %s: %w: %v", location, ErrAmbiguous, found)
		}
	}
	im, err := env.MakeImporter(format, opts)
	if err != nil {
		return nil, err
	}
	p := NewProject(env, DefaultConfig())
	if err := im.Import(ctx, store, location, opts, p); err != nil {
		return nil, fmt.Errorf("import %s as %s: %w", location, format, err)
	}
	return p, nil
}

// Env returns the project environment.
func (p *Project) Env() *Environment { return p.env }

// Dir returns the project directory, or "" for unsaved projects.
func (p *Project) Dir() string { return p.dir }

// Save writes the configuration to "<dir>/.datumo/config.yaml". An empty
// dir saves in place. Saving an unsaved project binds it to dir.
func (p *Project) Save(ctx context.Context, dir string) error {
	if dir == "" {
		dir = p.dir
	}
	if dir == "" {
		return fmt.Errorf("datumo: project has no directory")
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}
	if err := p.Config.Validate(); err != nil {
		return err
	}
	data, err := p.Config.Marshal()
	if err != nil {
		return err
	}
	store, err := NewFS(dir)
	if err != nil {
		return err
	}
	if err := store.Put(ctx, path.Join(DefaultEnvDir, ConfigFilename), bytes.NewReader(data)); err != nil {
		return err
	}
	if p.dir == "" {
		p.dir = dir
	}
	return nil
}

// -----------------------------------------------------------------------------
// Sources
// -----------------------------------------------------------------------------

// AddSource implements SourceRegistry. The name must be unique.
func (p *Project) AddSource(name string, src Source) error {
	if err := validateName("source", name); err != nil {
		return err
	}
	if _, ok := p.GetSource(name); ok {
		return fmt.Errorf("%w: source %q already exists", ErrAmbiguous, name)
	}
	src.Name = name
	p.Config.Sources = append(p.Config.Sources, src)
	return nil
}

// RemoveSource drops the named source from the configuration.
func (p *Project) RemoveSource(name string) error {
	i := slices.IndexFunc(p.Config.Sources, func(s Source) bool { return s.Name == name })
	if i < 0 {
		return fmt.Errorf("source %q: %w", name, ErrNotFound)
	}
	p.Config.Sources = slices.Delete(p.Config.Sources, i, i+1)
	return nil
}

// GetSource returns the named source.
func (p *Project) GetSource(name string) (Source, bool) {
	i := slices.IndexFunc(p.Config.Sources, func(s Source) bool { return s.Name == name })
	if i < 0 {
		return Source{}, false
	}
	return p.Config.Sources[i], true
}

// Subsets returns the subset allow-list; empty means all subsets.
func (p *Project) Subsets() []string { return p.Config.Subsets }

// SetSubsets replaces the subset allow-list.
func (p *Project) SetSubsets(names []string) {
	if len(names) == 0 {
		p.Config.Subsets = nil
		return
	}
	p.Config.Subsets = slices.Clone(names)
}

// LocalSourceDir returns the directory holding a source without a URL.
func (p *Project) LocalSourceDir(name string) string {
	return filepath.Join(p.dir, p.Config.SourcesDir, name)
}

// LocalModelDir returns the directory holding a model's files.
func (p *Project) LocalModelDir(name string) string {
	return filepath.Join(p.dir, p.Config.EnvDir, p.Config.ModelsDir, name)
}

// MakeSourceProject returns an unsaved project with the same layout whose
// only source is the named one.
func (p *Project) MakeSourceProject(name string) (*Project, error) {
	src, ok := p.GetSource(name)
	if !ok {
		return nil, fmt.Errorf("source %q: %w", name, ErrNotFound)
	}
	cfg := p.Config.Clone()
	cfg.Sources = nil
	cfg.Subsets = nil
	cfg.ProjectName = name
	if src.URL == "" && FormatKindOf(src.Format) == FormatForeign && p.dir != "" {
		src.URL = p.LocalSourceDir(name)
	}
	sp := NewProject(p.env, cfg)
	if err := sp.AddSource(name, src); err != nil {
		return nil, err
	}
	return sp, nil
}

// -----------------------------------------------------------------------------
// Models
// -----------------------------------------------------------------------------

// AddModel registers a model, replacing one with the same name.
func (p *Project) AddModel(m Model) error {
	if err := validateName("model", m.Name); err != nil {
		return err
	}
	if i := slices.IndexFunc(p.Config.Models, func(x Model) bool { return x.Name == m.Name }); i >= 0 {
		p.Config.Models[i] = m
		return nil
	}
	p.Config.Models = append(p.Config.Models, m)
	return nil
}

// GetModel returns the named model.
func (p *Project) GetModel(name string) (Model, bool) {
	i := slices.IndexFunc(p.Config.Models, func(m Model) bool { return m.Name == name })
	if i < 0 {
		return Model{}, false
	}
	return p.Config.Models[i], true
}

// RemoveModel drops the named model.
func (p *Project) RemoveModel(name string) error {
	i := slices.IndexFunc(p.Config.Models, func(m Model) bool { return m.Name == name })
	if i < 0 {
		return fmt.Errorf("model %q: %w", name, ErrNotFound)
	}
	p.Config.Models = slices.Delete(p.Config.Models, i, i+1)
	return nil
}

// MakeExecutableModel constructs the launcher of the named model. The
// launcher receives the model options plus "model_dir".
func (p *Project) MakeExecutableModel(name string) (Launcher, error) {
	m, ok := p.GetModel(name)
	if !ok {
		return nil, fmt.Errorf("model %q: %w", name, ErrNotFound)
	}
	return p.env.MakeLauncher(m.Launcher, m.Options.With("model_dir", p.LocalModelDir(name)))
}
