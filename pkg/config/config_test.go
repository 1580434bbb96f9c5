package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mplewis/photolog/pkg/optimize"
	"github.com/mplewis/photolog/pkg/pipeline"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "photolog.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv(PathEnvVar, "")
	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	want := defaultConfig()
	if diff := cmp.Diff(want, c, cmp.FilterPath(func(p cmp.Path) bool {
		return p.String() == "Profiles"
	}, cmp.Ignore())); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
	if len(c.Profiles) != 0 {
		t.Errorf("Profiles = %v, want none", c.Profiles)
	}
	if err := c.Validate(); !errors.Is(err, ErrMissingValue) {
		t.Errorf("Validate error = %v, want ErrMissingValue", err)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv(PathEnvVar, "")
	t.Setenv("PHOTOLOG_SOURCE_DIR", "/src")
	t.Setenv("PHOTOLOG_OUTPUT_DIR", "/out")
	t.Setenv("PHOTOLOG_FILE_HASH_LEN", "12")
	t.Setenv("PHOTOLOG_DELETE_UNKNOWN", "false")
	t.Setenv("PHOTOLOG_EXTENSIONS", "jpg, heic")
	t.Setenv("PHOTOLOG_BACKEND", "jpegli")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if c.SourceDir != "/src" || c.OutputDir != "/out" || c.FileHashLen != 12 || c.DeleteUnknown || c.Backend != BackendJpegli {
		t.Errorf("unexpected config: %+v", c)
	}
	if diff := cmp.Diff([]string{"jpg", "heic"}, c.Extensions); diff != "" {
		t.Errorf("Extensions mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadLegacyEnv(t *testing.T) {
	t.Setenv(PathEnvVar, "")
	t.Setenv("PHOTOLOG_ORIGINALS_DIR", "/originals")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.SourceDir != "/originals" {
		t.Errorf("SourceDir = %q, want /originals", c.SourceDir)
	}
}

func TestLoadFile(t *testing.T) {
	p := writeConfig(t, `
source_dir: /from-file
output_dir: /out
quality_butteraugli: 1.5
progressive: false
profiles:
  - name: thumb
    max_width: 400
  - name: tall
    max_height: 900
    quality: 0.8
`)
	t.Setenv("PHOTOLOG_OUTPUT_DIR", "/from-env")

	c, err := Load(p)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if c.SourceDir != "/from-file" {
		t.Errorf("SourceDir = %q", c.SourceDir)
	}
	if c.OutputDir != "/from-env" {
		t.Errorf("OutputDir = %q, environment should win", c.OutputDir)
	}
	if c.QualityButteraugli != 1.5 || c.Progressive {
		t.Errorf("file values not applied: %+v", c)
	}

	wantProfiles := []pipeline.Profile{
		{Name: "thumb", MaxWidth: 400},
		{Name: "tall", MaxHeight: 900, Quality: 0.8},
	}
	pc := c.Pipeline()
	if diff := cmp.Diff(wantProfiles, pc.Profiles); diff != "" {
		t.Errorf("profiles mismatch (-want +got):\n%s", diff)
	}
	if pc.HashLen != 8 || pc.PublicPrefix != "photos" || pc.Quality != 1.5 || !pc.DeleteUnknown {
		t.Errorf("unexpected pipeline config: %+v", pc)
	}
}

func TestLoadFileFromEnv(t *testing.T) {
	p := writeConfig(t, "source_dir: /via-env-path\n")
	t.Setenv(PathEnvVar, p)

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.SourceDir != "/via-env-path" {
		t.Errorf("SourceDir = %q", c.SourceDir)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("Load accepted a missing file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := defaultConfig()
		c.SourceDir = "/src"
		c.OutputDir = "/out"
		return c
	}
	if err := valid().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		is     error
	}{
		{"no source", func(c *Config) { c.SourceDir = "" }, ErrMissingValue},
		{"no output", func(c *Config) { c.OutputDir = "" }, ErrMissingValue},
		{"zero hash", func(c *Config) { c.FileHashLen = 0 }, nil},
		{"long hash", func(c *Config) { c.FileHashLen = 51 }, nil},
		{"zero quality", func(c *Config) { c.QualityButteraugli = 0 }, nil},
		{"negative workers", func(c *Config) { c.Workers = -1 }, nil},
		{"bad backend", func(c *Config) { c.Backend = "gimp" }, nil},
		{"empty profile", func(c *Config) { c.Profiles = []Profile{{Name: "x"}} }, optimize.ErrNoTarget},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if err == nil {
				t.Fatalf("Validate accepted %+v", c)
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("Validate error = %v, want %v", err, tt.is)
			}
		})
	}
}

func TestPipelineDefaults(t *testing.T) {
	c := defaultConfig()
	c.SourceDir = "/src"
	c.OutputDir = "/out"
	pc := c.Pipeline()
	if diff := cmp.Diff(pipeline.DefaultProfiles(), pc.Profiles); diff != "" {
		t.Errorf("profiles mismatch (-want +got):\n%s", diff)
	}
	if err := pc.Validate(); err != nil {
		t.Errorf("pipeline Validate: %v", err)
	}
	if pc.ReportPath != filepath.Join("/out", "photos.json") {
		t.Errorf("ReportPath = %q", pc.ReportPath)
	}

	want := optimize.Options{ChromaSubsampling: "420", Progressive: true}
	if diff := cmp.Diff(want, c.Optimize()); diff != "" {
		t.Errorf("Optimize() mismatch (-want +got):\n%s", diff)
	}
}
