package datumo

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Project layout defaults.
const (
	DefaultEnvDir     = ".datumo"
	DefaultSourcesDir = "sources"
	DefaultDatasetDir = "dataset"
	DefaultModelsDir  = "models"
	ConfigFilename    = "config.yaml"
	FormatVersion     = 1
)

// Config is the persisted project configuration, stored as YAML under
// "<project>/<env_dir>/config.yaml".
type Config struct {
	ProjectName   string   `yaml:"project_name"`
	FormatVersion int      `yaml:"format_version"`
	SourcesDir    string   `yaml:"sources_dir"`
	DatasetDir    string   `yaml:"dataset_dir"`
	EnvDir        string   `yaml:"env_dir"`
	ModelsDir     string   `yaml:"models_dir"`
	Subsets       []string `yaml:"subsets,omitempty"`
	Sources       []Source `yaml:"sources,omitempty"`
	Models        []Model  `yaml:"models,omitempty"`
}

// DefaultConfig returns the configuration of a new, empty project.
func DefaultConfig() Config {
	return Config{
		ProjectName:   "undefined",
		FormatVersion: FormatVersion,
		SourcesDir:    DefaultSourcesDir,
		DatasetDir:    DefaultDatasetDir,
		EnvDir:        DefaultEnvDir,
		ModelsDir:     DefaultModelsDir,
	}
}

// withDefaults fills unset layout fields.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ProjectName == "" {
		c.ProjectName = d.ProjectName
	}
	if c.FormatVersion == 0 {
		c.FormatVersion = d.FormatVersion
	}
	if c.SourcesDir == "" {
		c.SourcesDir = d.SourcesDir
	}
	if c.DatasetDir == "" {
		c.DatasetDir = d.DatasetDir
	}
	if c.EnvDir == "" {
		c.EnvDir = d.EnvDir
	}
	if c.ModelsDir == "" {
		c.ModelsDir = d.ModelsDir
	}
	return c
}

// Clone returns a deep copy of the lists and option maps.
func (c Config) Clone() Config {
	c.Subsets = slices.Clone(c.Subsets)
	c.Sources = slices.Clone(c.Sources)
	for i := range c.Sources {
		c.Sources[i].Options = c.Sources[i].Options.Clone()
	}
	c.Models = slices.Clone(c.Models)
	for i := range c.Models {
		c.Models[i].Options = c.Models[i].Options.Clone()
	}
	return c
}

// Validate checks source and model names.
func (c Config) Validate() error {
	if c.FormatVersion > FormatVersion {
		return fmt.Errorf("%w: project format version %d is newer than %d",
			ErrMalformedInput, c.FormatVersion, FormatVersion)
	}
	seen := make(map[string]bool, len(c.Sources))
	for _, s := range c.Sources {
		if err := validateName("source", s.Name); err != nil {
			return err
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: duplicate source %q", ErrMalformedInput, s.Name)
		}
		seen[s.Name] = true
	}
	clear(seen)
	for _, m := range c.Models {
		if err := validateName("model", m.Name); err != nil {
			return err
		}
		if m.Launcher == "" {
			return fmt.Errorf("%w: model %q has no launcher", ErrMalformedInput, m.Name)
		}
		if seen[m.Name] {
			return fmt.Errorf("%w: duplicate model %q", ErrMalformedInput, m.Name)
		}
		seen[m.Name] = true
	}
	return nil
}

func validateName(kind, name string) error {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: invalid %s name %q", ErrMalformedInput, kind, name)
	}
	return nil
}

// ParseConfig decodes a YAML project configuration. Unknown keys are
// rejected.
func ParseConfig(r io.Reader) (Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, Malformed(ConfigFilename, err)
	}
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Marshal encodes the configuration as YAML.
func (c Config) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
