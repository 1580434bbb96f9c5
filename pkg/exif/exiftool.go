package exif

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/barasher/go-exiftool"
	"k8s.io/klog/v2"
)

var (
	exifDate   = "2006:01:02 15:04:05"
	exifOffset = "-07:00"
	leadingNum = regexp.MustCompile(`^\d+(\.\d+)?`)
)

// Exiftool reads metadata through a long-running exiftool process.
// go-exiftool serializes requests internally, so one instance may be shared
// by concurrent callers.
type Exiftool struct {
	et *exiftool.Exiftool
}

// NewExiftool starts exiftool.
func NewExiftool() (*Exiftool, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return nil, fmt.Errorf("exiftool: %w", err)
	}
	return &Exiftool{et: et}, nil
}

// Close stops the exiftool process.
func (e *Exiftool) Close() error {
	return e.et.Close()
}

// Tool exposes the underlying exiftool handle for writers that share the process.
func (e *Exiftool) Tool() *exiftool.Exiftool {
	return e.et
}

// Read extracts metadata for path.
func (e *Exiftool) Read(ctx context.Context, path string) (*Metadata, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	fis := e.et.ExtractMetadata(path)
	if len(fis) == 0 {
		return nil, fmt.Errorf("extract %q: no result", path)
	}
	fi := fis[0]
	if fi.Err != nil {
		return nil, fmt.Errorf("extract fail for %q: %w", path, fi.Err)
	}

	for k, v := range fi.Fields {
		klog.V(2).Infof("%s: %q=%v", path, k, v)
	}

	return fromFields(path, fi)
}

// fromFields maps exiftool's print-converted fields onto Metadata.
func fromFields(path string, fi exiftool.FileMetadata) (*Metadata, error) {
	m := &Metadata{}
	var err error

	m.CameraMake = optString(fi, "Make")
	m.CameraModel = optString(fi, "Model")
	m.CameraProfile = optString(fi, "FilmMode", "PictureMode", "ProfileName")
	m.LensMake = optString(fi, "LensMake")
	m.LensModel = optString(fi, "LensModel")
	m.ExposureTime = optString(fi, "ExposureTime", "ShutterSpeed")
	m.FNumber = optString(fi, "FNumber", "Aperture")
	m.ISO = optString(fi, "ISO")
	m.Title = optString(fi, "Title", "Headline", "ObjectName")
	m.Description = optString(fi, "ImageDescription", "Description", "Caption-Abstract")
	m.Location = location(fi)

	if fl := optString(fi, "FocalLength"); fl != "" {
		m.FocalLength = parseLeadingFloat(fl)
	}

	w, err := fi.GetInt("ImageWidth")
	if err != nil {
		return nil, fmt.Errorf("get ImageWidth for %s: %w", path, err)
	}
	h, err := fi.GetInt("ImageHeight")
	if err != nil {
		return nil, fmt.Errorf("get ImageHeight for %s: %w", path, err)
	}
	m.Width = int(w)
	m.Height = int(h)

	ds := optString(fi, "DateTimeOriginal", "CreateDate")
	if ds == "" {
		klog.V(1).Infof("no capture date for %s", path)
		return m, nil
	}
	m.Date, m.LocalDate, err = parseDate(ds, optString(fi, "OffsetTimeOriginal", "OffsetTime"))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// optString returns the first non-empty value among keys.
func optString(fi exiftool.FileMetadata, keys ...string) string {
	for _, k := range keys {
		v, err := fi.GetString(k)
		if err != nil {
			continue
		}
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func location(fi exiftool.FileMetadata) string {
	parts := []string{}
	for _, p := range []string{
		optString(fi, "City"),
		optString(fi, "State", "Province-State"),
	} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, ", ")
}

// parseLeadingFloat parses values like "27.0 mm".
func parseLeadingFloat(s string) float64 {
	n := leadingNum.FindString(s)
	if n == "" {
		return 0
	}
	f, err := strconv.ParseFloat(n, 64)
	if err != nil {
		return 0
	}
	return f
}

// parseDate returns the capture instant and its wall-clock components.
// Without an offset the wall clock is taken as UTC.
func parseDate(ds string, offset string) (time.Time, []int, error) {
	// sub-second and zone suffixes are sometimes appended
	if len(ds) > len(exifDate) {
		ds = ds[:len(exifDate)]
	}
	local, err := time.Parse(exifDate, ds)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("parse time %q: %w", ds, err)
	}
	parts := []int{local.Year(), int(local.Month()), local.Day(), local.Hour(), local.Minute(), local.Second()}

	if offset == "" {
		return local, parts, nil
	}
	zoned, err := time.Parse(exifDate+exifOffset, ds+offset)
	if err != nil {
		return time.Time{}, nil, fmt.Errorf("parse offset %q: %w", offset, err)
	}
	return zoned.UTC(), parts, nil
}
