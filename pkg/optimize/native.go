package optimize

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/anthonynsimon/bild/imgio"
	"github.com/anthonynsimon/bild/transform"
	"github.com/barasher/go-exiftool"
	"github.com/disintegration/imaging"
	"k8s.io/klog/v2"
)

// tags that describe the container or pixels rather than the photo
var skipTags = map[string]bool{
	"SourceFile":          true,
	"FileName":            true,
	"Directory":           true,
	"FileSize":            true,
	"FileModifyDate":      true,
	"FileAccessDate":      true,
	"FileInodeChangeDate": true,
	"FilePermissions":     true,
	"FileType":            true,
	"FileTypeExtension":   true,
	"MIMEType":            true,
	"ExifToolVersion":     true,
	"ImageWidth":          true,
	"ImageHeight":         true,
	"ExifImageWidth":      true,
	"ExifImageHeight":     true,
	"ImageSize":           true,
	"Megapixels":          true,
	"Orientation":         true,
	"ThumbnailImage":      true,
	"ThumbnailOffset":     true,
	"ThumbnailLength":     true,
	"EncodingProcess":     true,
	"BitsPerSample":       true,
	"ColorComponents":     true,
	"YCbCrSubSampling":    true,
}

// Native resizes and encodes in-process. Output is baseline 4:2:0 JPEG with
// no metadata unless PreserveMetadata is set, in which case Tags copies the
// source's tags onto the result.
type Native struct {
	Options
	Tags *exiftool.Exiftool

	warnOnce sync.Once
}

// NewNative returns a Native optimizer.
func NewNative(o Options, tags *exiftool.Exiftool) *Native {
	return &Native{Options: o, Tags: tags}
}

// Optimize renders j unless its destination already exists.
func (n *Native) Optimize(ctx context.Context, j Job) (*Result, error) {
	if err := j.Size.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	if !n.needsWork(j.Dst) {
		klog.V(1).Infof("%s exists, skipping", j.Dst)
		return finish(j, start, true)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	n.warnOnce.Do(func() {
		if n.Progressive || (n.ChromaSubsampling != "" && n.ChromaSubsampling != "420") {
			klog.V(1).Infof("native encoder writes baseline 4:2:0; chroma=%q progressive=%v ignored", n.ChromaSubsampling, n.Progressive)
		}
	})

	if err := n.encode(j); err != nil {
		return nil, err
	}
	return finish(j, start, false)
}

func (n *Native) encode(j Job) error {
	img, err := imaging.Open(j.Src, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("open %s: %w", j.Src, err)
	}

	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return fmt.Errorf("empty image %s: %+v", j.Src, b)
	}

	w, h := Fit(b.Dx(), b.Dy(), j.Size)
	if w != b.Dx() || h != b.Dy() {
		klog.V(1).Infof("resizing %s %dx%d -> %dx%d", j.Src, b.Dx(), b.Dy(), w, h)
		img = transform.Resize(img, w, h, transform.Lanczos)
	}

	if err := os.MkdirAll(filepath.Dir(j.Dst), 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}

	// hidden temp name keeps half-written files out of the gallery and cleanup
	tmp := filepath.Join(filepath.Dir(j.Dst), ".tmp-"+filepath.Base(j.Dst))
	defer os.Remove(tmp)

	if err := imgio.Save(tmp, img, imgio.JPEGEncoder(JPEGQuality(j.Quality))); err != nil {
		return fmt.Errorf("save: %w", err)
	}

	if n.PreserveMetadata {
		if err := n.copyTags(j.Src, tmp); err != nil {
			return err
		}
	}

	if err := os.Rename(tmp, j.Dst); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}

func (n *Native) copyTags(src string, dst string) error {
	if n.Tags == nil {
		return fmt.Errorf("preserve metadata requested without exiftool")
	}
	fms := n.Tags.ExtractMetadata(src)
	if len(fms) == 0 {
		return fmt.Errorf("extract %s: no result", src)
	}
	if fms[0].Err != nil {
		return fmt.Errorf("extract %s: %w", src, fms[0].Err)
	}

	out := exiftool.FileMetadata{File: dst, Fields: map[string]interface{}{}}
	for k, v := range fms[0].Fields {
		if skipTags[k] {
			continue
		}
		out.Fields[k] = v
	}

	outs := []exiftool.FileMetadata{out}
	n.Tags.WriteMetadata(outs)
	if outs[0].Err != nil {
		return fmt.Errorf("write tags to %s: %w", dst, outs[0].Err)
	}
	return nil
}
