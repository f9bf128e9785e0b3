package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/justapithecus/datumo/datumo"
	"github.com/justapithecus/datumo/datumo/formats/builtin"
	"github.com/justapithecus/datumo/datumo/minio"
	"github.com/justapithecus/datumo/datumo/s3"
)

const (
	configFileName = "datumo"
	configFileType = "yaml"
	envPrefix      = "DATUMO"

	cfgKeyLogLevel  = "log_level"
	cfgKeyLogFormat = "log_format"
	cfgKeyArchive   = "archive"
	cfgKeyAliases   = "aliases"
	cfgKeySnapshots = "snapshots"

	cfgKeyS3Region    = "s3.region"
	cfgKeyS3Endpoint  = "s3.endpoint"
	cfgKeyS3PathStyle = "s3.path_style"
	cfgKeyS3AccessKey = "s3.access_key"
	cfgKeyS3SecretKey = "s3.secret_key"

	cfgKeyMinIOAccessKey = "minio.access_key"
	cfgKeyMinIOSecretKey = "minio.secret_key"
)

// settings is the resolved CLI configuration.
type settings struct {
	LogLevel  slog.Level
	LogJSON   bool
	Archive   datumo.ArchiveFormat
	Aliases   map[string]string
	Snapshots bool
	Stores    builtin.StoreConfig
}

// loadSettings reads datumo.yaml with viper. An explicit configFile must
// exist; otherwise the working directory and ~/.config/datumo are searched
// and a missing file is not an error. DATUMO_* environment variables
// override the file (DATUMO_S3_REGION for s3.region).
func loadSettings(configFile string, bind func(*viper.Viper) error) (settings, error) {
	v := viper.New()
	v.SetDefault(cfgKeyLogLevel, "info")
	v.SetDefault(cfgKeyLogFormat, "text")
	v.SetDefault(cfgKeyArchive, string(datumo.ArchiveZip))
	v.SetDefault(cfgKeySnapshots, true)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "datumo"))
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return settings{}, fmt.Errorf("read config: %w", err)
		}
	}
	if bind != nil {
		if err := bind(v); err != nil {
			return settings{}, err
		}
	}

	level, err := datumo.ParseLevel(v.GetString(cfgKeyLogLevel))
	if err != nil {
		return settings{}, err
	}
	var logJSON bool
	switch f := v.GetString(cfgKeyLogFormat); f {
	case "text":
	case "json":
		logJSON = true
	default:
		return settings{}, fmt.Errorf("unknown log format %q", f)
	}
	archive, err := datumo.ParseArchiveFormat(v.GetString(cfgKeyArchive))
	if err != nil {
		return settings{}, err
	}

	return settings{
		LogLevel:  level,
		LogJSON:   logJSON,
		Archive:   archive,
		Aliases:   v.GetStringMapString(cfgKeyAliases),
		Snapshots: v.GetBool(cfgKeySnapshots),
		Stores: builtin.StoreConfig{
			S3: s3.ClientConfig{
				Region:       v.GetString(cfgKeyS3Region),
				Endpoint:     v.GetString(cfgKeyS3Endpoint),
				UsePathStyle: v.GetBool(cfgKeyS3PathStyle),
				AccessKey:    v.GetString(cfgKeyS3AccessKey),
				SecretKey:    v.GetString(cfgKeyS3SecretKey),
			},
			MinIO: minio.Credentials{
				AccessKey: v.GetString(cfgKeyMinIOAccessKey),
				SecretKey: v.GetString(cfgKeyMinIOSecretKey),
			},
		},
	}, nil
}

// logger builds the environment logger.
func (s settings) logger() *datumo.Logger {
	if s.LogJSON {
		return datumo.NewJSONLogger(s.LogLevel)
	}
	return datumo.NewTextLogger(s.LogLevel)
}

// resolveFormat maps a user-facing alias to a plugin name.
func (s settings) resolveFormat(name string) string {
	if to, ok := s.Aliases[strings.ToLower(name)]; ok {
		return to
	}
	return name
}
