// Package builtin bundles the formats and store schemes shipped with datumo.
package builtin

import (
	"github.com/justapithecus/datumo/datumo"
	"github.com/justapithecus/datumo/datumo/formats/native"
	"github.com/justapithecus/datumo/datumo/formats/tabular"
	"github.com/justapithecus/datumo/datumo/formats/voc"
	"github.com/justapithecus/datumo/datumo/formats/yolo"
	"github.com/justapithecus/datumo/datumo/minio"
	"github.com/justapithecus/datumo/datumo/s3"
)

// Modules returns every built-in format module.
func Modules() []datumo.Module {
	return []datumo.Module{
		native.Module(),
		yolo.Module(),
		voc.Module(),
		tabular.Module(),
	}
}

// StoreConfig configures the remote store schemes.
type StoreConfig struct {
	S3    s3.ClientConfig
	MinIO minio.Credentials
}

// Options returns environment options registering Modules and the s3:// and
// minio:// store schemes.
func Options(cfg StoreConfig) []datumo.Option {
	return []datumo.Option{
		datumo.WithModules(Modules()...),
		datumo.WithStoreScheme(s3.Scheme, s3.Factory(cfg.S3)),
		datumo.WithStoreScheme(minio.Scheme, minio.Factory(cfg.MinIO)),
	}
}

// NewEnvironment creates an environment with every built-in plugin. extra
// options apply after the built-ins, so their modules override by name.
func NewEnvironment(cfg StoreConfig, extra ...datumo.Option) (*datumo.Environment, error) {
	return datumo.NewEnvironment(append(Options(cfg), extra...)...)
}
