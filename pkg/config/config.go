// Package config loads photolog settings from defaults, an optional YAML
// file, and PHOTOLOG_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/mplewis/photolog/pkg/optimize"
	"github.com/mplewis/photolog/pkg/pipeline"
)

// EnvPrefix is the prefix of every environment variable read.
const EnvPrefix = "PHOTOLOG_"

// PathEnvVar names a config file when none is passed to Load.
const PathEnvVar = EnvPrefix + "CONFIG"

// maxHashLen is the length of a full base-36 SHA-256 digest.
const maxHashLen = 50

// ErrMissingValue is returned when a required setting is empty.
var ErrMissingValue = errors.New("missing required value")

// Backends
const (
	BackendNative = "native"
	BackendJpegli = "jpegli"
)

// Profile is one output variant.
type Profile struct {
	Name      string  `koanf:"name"`
	MaxWidth  int     `koanf:"max_width"`
	MaxHeight int     `koanf:"max_height"`
	Quality   float64 `koanf:"quality"`
}

// Config holds all photolog settings.
type Config struct {
	SourceDir          string    `koanf:"source_dir"`
	OutputDir          string    `koanf:"output_dir"`
	ReportPath         string    `koanf:"report_path"`
	PublicPathPrefix   string    `koanf:"public_path_prefix"`
	FileHashLen        int       `koanf:"file_hash_len"`
	QualityButteraugli float64   `koanf:"quality_butteraugli"`
	ChromaSubsampling  string    `koanf:"chroma_subsampling"`
	Progressive        bool      `koanf:"progressive"`
	PreserveMetadata   bool      `koanf:"preserve_metadata"`
	DeleteUnknown      bool      `koanf:"delete_unknown"`
	ReprocessExisting  bool      `koanf:"reprocess_existing"`
	BackupReport       bool      `koanf:"backup_report"`
	Backend            string    `koanf:"backend"`
	Workers            int       `koanf:"workers"`
	ThumbnailMaxWidth  int       `koanf:"thumbnail_max_width"`
	Extensions         []string  `koanf:"extensions"`
	Profiles           []Profile `koanf:"profiles"`
}

func defaultConfig() *Config {
	return &Config{
		PublicPathPrefix:   "photos",
		FileHashLen:        8,
		QualityButteraugli: 1.0,
		ChromaSubsampling:  "420",
		Progressive:        true,
		DeleteUnknown:      true,
		BackupReport:       true,
		Backend:            BackendNative,
		ThumbnailMaxWidth:  800,
		Extensions:         []string{"jpg", "jpeg", "png"},
	}
}

// legacy variable names from earlier deployments
var envAliases = map[string]string{
	"originals_dir": "source_dir",
}

// envKey maps PHOTOLOG_SOURCE_DIR to source_dir.
func envKey(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if key == "config" {
		return ""
	}
	if alias, ok := envAliases[key]; ok {
		return alias
	}
	return key
}

// Load reads configuration. path may be empty, in which case PHOTOLOG_CONFIG
// is consulted; with neither set only defaults and the environment apply.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(PathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	if err := splitList(k, "extensions"); err != nil {
		return nil, err
	}

	c := &Config{}
	if err := k.Unmarshal("", c); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}
	return c, nil
}

// splitList turns a comma-separated string value at key into a list.
func splitList(k *koanf.Koanf, key string) error {
	s, ok := k.Get(key).(string)
	if !ok {
		return nil
	}
	parts := []string{}
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if err := k.Set(key, parts); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Validate checks settings that would otherwise fail mid-run.
func (c *Config) Validate() error {
	if c.SourceDir == "" {
		return fmt.Errorf("source_dir: %w", ErrMissingValue)
	}
	if c.OutputDir == "" {
		return fmt.Errorf("output_dir: %w", ErrMissingValue)
	}
	if c.FileHashLen < 1 || c.FileHashLen > maxHashLen {
		return fmt.Errorf("file_hash_len must be between 1 and %d, got %d", maxHashLen, c.FileHashLen)
	}
	if c.QualityButteraugli <= 0 {
		return fmt.Errorf("quality_butteraugli must be positive, got %v", c.QualityButteraugli)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	switch c.Backend {
	case BackendNative, BackendJpegli:
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	for i, p := range c.Profiles {
		if p.MaxWidth <= 0 && p.MaxHeight <= 0 {
			return fmt.Errorf("profile %d (%s): %w", i, p.Name, optimize.ErrNoTarget)
		}
	}
	return nil
}

// Pipeline returns the pipeline settings. With no profiles configured the
// default screen sizes are used.
func (c *Config) Pipeline() pipeline.Config {
	profiles := pipeline.DefaultProfiles()
	if len(c.Profiles) > 0 {
		profiles = make([]pipeline.Profile, 0, len(c.Profiles))
		for _, p := range c.Profiles {
			profiles = append(profiles, pipeline.Profile(p))
		}
	}
	return pipeline.Config{
		SourceDir:         c.SourceDir,
		OutputDir:         c.OutputDir,
		ReportPath:        c.ReportPath,
		PublicPrefix:      c.PublicPathPrefix,
		HashLen:           c.FileHashLen,
		Quality:           c.QualityButteraugli,
		ThumbnailMaxWidth: c.ThumbnailMaxWidth,
		Extensions:        c.Extensions,
		Profiles:          profiles,
		DeleteUnknown:     c.DeleteUnknown,
		BackupReport:      c.BackupReport,
	}
}

// Optimize returns the options shared by optimizer backends.
func (c *Config) Optimize() optimize.Options {
	return optimize.Options{
		Reprocess:         c.ReprocessExisting,
		PreserveMetadata:  c.PreserveMetadata,
		ChromaSubsampling: c.ChromaSubsampling,
		Progressive:       c.Progressive,
	}
}
