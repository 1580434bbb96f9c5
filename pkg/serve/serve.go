// Package serve provides the read-only HTTP surface for gallery readers.
package serve

import (
	"context"
	"net/http"
	"path"
	"strings"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"github.com/mplewis/photolog/pkg/pipeline"
)

// ReportPath is where the metadata report is served.
const ReportPath = "/photos.json"

// Processor produces the current pipeline result.
type Processor interface {
	Process(ctx context.Context) (*pipeline.Result, error)
}

// Server serves the report and the optimized images.
type Server struct {
	p      Processor
	outDir string
	prefix string
}

// New creates a new server for output files in outDir, published under prefix.
// An empty prefix publishes the files at the site root.
func New(p Processor, outDir string, prefix string) *Server {
	root := "/"
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		root = "/" + prefix + "/"
	}
	return &Server{
		p:      p,
		outDir: outDir,
		prefix: root,
	}
}

// ReportHandler returns the metadata report, reprocessing first if the
// source tree changed.
func (s *Server) ReportHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := s.p.Process(r.Context())
		if err != nil {
			klog.Errorf("process: %v", err)
			http.Error(w, "unable to build report", http.StatusInternalServerError)
			return
		}

		data, err := json.Marshal(res.Report)
		if err != nil {
			klog.Errorf("encode report: %v", err)
			http.Error(w, "unable to encode report", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		if _, err := w.Write(data); err != nil {
			klog.V(1).Infof("write report: %v", err)
		}
	}
}

// FilesHandler serves optimized images from the output directory.
func (s *Server) FilesHandler() http.Handler {
	fs := http.FileServer(http.Dir(s.outDir))
	return http.StripPrefix(s.prefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// hidden files are in-flight temporaries
		if strings.HasPrefix(path.Base(r.URL.Path), ".") || strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		fs.ServeHTTP(w, r)
	}))
}

// Routes registers every handler on a new mux. The report and metrics
// patterns are more specific than the file tree, so they win even when files
// are served from the root.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET "+ReportPath, s.ReportHandler())
	mux.Handle("GET "+s.prefix, s.FilesHandler())
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}
