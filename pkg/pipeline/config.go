package pipeline

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mplewis/photolog/pkg/optimize"
)

// Profile is one output variant rendered for every source photo.
type Profile struct {
	Name      string
	MaxWidth  int
	MaxHeight int
	// Quality is a butteraugli distance. 0 uses Config.Quality.
	Quality float64
}

// Target returns the resize box for the profile.
func (p Profile) Target() optimize.TargetSize {
	return optimize.TargetSize{MaxWidth: p.MaxWidth, MaxHeight: p.MaxHeight}
}

// DefaultProfiles is the screen-size table: widths 450 through 1800 in steps of 150.
func DefaultProfiles() []Profile {
	ps := []Profile{}
	for i := 3; i <= 12; i++ {
		ps = append(ps, Profile{Name: fmt.Sprintf("s%d", i), MaxWidth: i * 150})
	}
	return ps
}

// Config holds everything a Pipeline needs to know about its inputs and outputs.
type Config struct {
	SourceDir string
	OutputDir string
	// ReportPath defaults to <OutputDir>/photos.json.
	ReportPath string
	// PublicPrefix is the URL path the output directory is served under.
	PublicPrefix string
	HashLen      int
	Quality      float64
	// Variants at most this wide are classified as thumbnails.
	ThumbnailMaxWidth int
	Extensions        []string
	Profiles          []Profile
	// DeleteUnknown removes output images that no current photo produces.
	DeleteUnknown bool
	BackupReport  bool
}

// Validate fills defaults and checks the values the pipeline depends on.
func (c *Config) Validate() error {
	if c.SourceDir == "" {
		return errors.New("source dir is required")
	}
	if c.OutputDir == "" {
		return errors.New("output dir is required")
	}
	if c.ReportPath == "" {
		c.ReportPath = filepath.Join(c.OutputDir, "photos.json")
	}
	if c.HashLen <= 0 {
		return fmt.Errorf("invalid hash length %d", c.HashLen)
	}
	if len(c.Extensions) == 0 {
		c.Extensions = []string{"jpg", "jpeg", "png"}
	}
	if len(c.Profiles) == 0 {
		return errors.New("at least one profile is required")
	}

	seen := map[string]bool{}
	for i, p := range c.Profiles {
		if err := p.Target().Validate(); err != nil {
			return fmt.Errorf("profile %d (%s): %w", i, p.Name, err)
		}
		name := outputSuffix(p)
		if seen[name] {
			return fmt.Errorf("profile %d (%s): duplicate target %s", i, p.Name, name)
		}
		seen[name] = true
	}
	c.PublicPrefix = strings.Trim(c.PublicPrefix, "/")
	return nil
}

// quality returns the butteraugli distance used for p.
func (c *Config) quality(p Profile) float64 {
	if p.Quality > 0 {
		return p.Quality
	}
	return c.Quality
}
