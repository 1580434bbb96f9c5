// Package exif reads camera and capture metadata from image files.
package exif

import (
	"context"
	"time"
)

// Metadata is the per-photo record carried into the report.
type Metadata struct {
	CameraMake    string    `json:"cameraMake,omitempty"`
	CameraModel   string    `json:"cameraModel,omitempty"`
	CameraProfile string    `json:"cameraProfile,omitempty"`
	Date          time.Time `json:"date"`
	LocalDate     []int     `json:"localDate,omitempty"`
	Description   string    `json:"description,omitempty"`
	ExposureTime  string    `json:"exposureTime,omitempty"`
	FNumber       string    `json:"fNumber,omitempty"`
	FocalLength   float64   `json:"focalLength,omitempty"`
	ISO           string    `json:"iso,omitempty"`
	LensMake      string    `json:"lensMake,omitempty"`
	LensModel     string    `json:"lensModel,omitempty"`
	Location      string    `json:"location,omitempty"`
	Title         string    `json:"title,omitempty"`
	Width         int       `json:"width"`
	Height        int       `json:"height"`
}

// HasDate reports whether a capture date was found.
func (m *Metadata) HasDate() bool {
	return !m.Date.IsZero()
}

// Reader extracts metadata from a single file.
type Reader interface {
	Read(ctx context.Context, path string) (*Metadata, error)
}
