package pipeline

import (
	"fmt"
	"path"
	"sort"

	"github.com/mplewis/photolog/pkg/album"
	"github.com/mplewis/photolog/pkg/exif"
	"github.com/mplewis/photolog/pkg/report"
)

// Variant is one rendered output of a photo.
type Variant struct {
	Profile string
	// Path is relative to the output root.
	Path       string
	PublicPath string
	Width      int
	Height     int
	Thumbnail  bool
}

// Photo is a source image with its metadata and rendered variants.
type Photo struct {
	RelPath  string
	AbsPath  string
	Hash     string
	Album    string
	Metadata *exif.Metadata
	Variants []Variant
}

// Result is the outcome of a Process call.
type Result struct {
	Fingerprint string
	// Photos are ordered newest first.
	Photos []*Photo
	Albums []album.Album
	Report *report.Report
	// Pruned lists the rows dropped from the previously persisted report.
	Pruned []report.Deletion
}

// isThumbnail classifies a profile by its width bound. Height-only profiles
// have no width bound and are never thumbnails.
func isThumbnail(p Profile, maxWidth int) bool {
	return p.MaxWidth > 0 && p.MaxWidth <= maxWidth
}

// outputSuffix is the profile-specific part of an output filename.
func outputSuffix(p Profile) string {
	switch {
	case p.MaxWidth > 0 && p.MaxHeight > 0:
		return fmt.Sprintf("%dx%d", p.MaxWidth, p.MaxHeight)
	case p.MaxHeight > 0:
		return fmt.Sprintf("h%d", p.MaxHeight)
	default:
		return fmt.Sprintf("%d", p.MaxWidth)
	}
}

// OutputName is the content-addressed filename of a variant.
func OutputName(contentHash string, p Profile) string {
	return fmt.Sprintf("%s-%s.jpg", contentHash, outputSuffix(p))
}

// publicPath joins the public prefix and an output-relative path into a URL path.
func publicPath(prefix string, rel string) string {
	return path.Join("/", prefix, rel)
}

// entry converts a photo into its report record.
func (p *Photo) entry() (*report.Entry, error) {
	if p.Metadata == nil || !p.Metadata.HasDate() {
		return nil, fmt.Errorf("%s: %w", p.RelPath, ErrMissingDate)
	}
	e := &report.Entry{Metadata: *p.Metadata, Albums: []string{}, Sizes: []report.Size{}}
	if p.Album != "" {
		e.Albums = append(e.Albums, p.Album)
	}
	for _, v := range p.Variants {
		e.Sizes = append(e.Sizes, report.Size{Path: v.Path, Width: v.Width, Height: v.Height})
	}
	return e, nil
}

// buildReport assembles the report for this run's photos and albums.
func buildReport(photos []*Photo, albums []album.Album) (*report.Report, error) {
	r := report.New()
	for _, p := range photos {
		e, err := p.entry()
		if err != nil {
			return nil, err
		}
		r.Photos[p.RelPath] = e
	}
	for _, a := range albums {
		r.Albums = append(r.Albums, report.Album{Key: a.Key, Name: a.Name, Desc: a.Desc})
	}
	return r, nil
}

// sortPhotos orders photos by capture date, newest first, then by path.
func sortPhotos(photos []*Photo) {
	sort.SliceStable(photos, func(i, j int) bool {
		di, dj := photos[i].Metadata.Date, photos[j].Metadata.Date
		if !di.Equal(dj) {
			return di.After(dj)
		}
		return photos[i].RelPath < photos[j].RelPath
	})
}
