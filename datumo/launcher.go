package datumo

import (
	"context"
	"image"
)

// CategoryLauncher is a Launcher whose predictions index its own categories.
type CategoryLauncher interface {
	Launcher
	Categories() Categories
}

// LauncherFunc adapts a plain function to Launcher.
type LauncherFunc func(ctx context.Context, img image.Image) ([]Annotation, error)

// Launch calls f.
func (f LauncherFunc) Launch(ctx context.Context, img image.Image) ([]Annotation, error) {
	return f(ctx, img)
}

// Model binds a configured launcher to its options.
type Model struct {
	Name     string  `yaml:"name"`
	Launcher string  `yaml:"launcher"`
	Options  Options `yaml:"options,omitempty"`
}
