package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/karrick/godirwalk"
	"k8s.io/klog/v2"

	"github.com/mplewis/photolog/pkg/config"
	"github.com/mplewis/photolog/pkg/conc"
	"github.com/mplewis/photolog/pkg/exif"
	"github.com/mplewis/photolog/pkg/optimize"
	"github.com/mplewis/photolog/pkg/pipeline"
	"github.com/mplewis/photolog/pkg/serve"
)

var (
	configPath = flag.String("config", "", "Path to YAML config file (default $PHOTOLOG_CONFIG)")
	inDir      = flag.String("in", "", "Location of original photos (overrides source_dir)")
	outDir     = flag.String("out", "", "Location of optimized output (overrides output_dir)")
	backend    = flag.String("backend", "", "Optimizer backend: native or jpegli (overrides backend)")
	workers    = flag.Int("workers", -1, "Concurrent workers, 0 for one per CPU (overrides workers)")
	reprocess  = flag.Bool("reprocess", false, "Re-encode outputs that already exist")
	listen     = flag.Bool("listen", false, "serve the report and photos via HTTP")
	addr       = flag.String("addr", "localhost:12800", "host:port to bind to in listen mode")
	watchFlag  = flag.Bool("watch", false, "watch for changes to the source directory and reprocess")
	settle     = flag.Duration("settle", 2*time.Second, "quiet period after a change before reprocessing")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	c, err := config.Load(*configPath)
	if err != nil {
		klog.Exitf("config: %v", err)
	}
	applyFlags(c)
	if err := c.Validate(); err != nil {
		klog.Exitf("config: %v", err)
	}

	et, err := exif.NewExiftool()
	if err != nil {
		klog.Exitf("exiftool failed: %v", err)
	}
	defer et.Close()

	opt, err := newOptimizer(c, et)
	if err != nil {
		klog.Exitf("optimizer: %v", err)
	}

	p, err := pipeline.New(c.Pipeline(), et, opt, conc.NewRunner(c.Workers))
	if err != nil {
		klog.Exitf("pipeline: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := p.Process(ctx)
	if err != nil {
		klog.Exitf("process failed: %v", err)
	}
	klog.Infof("%d photos in %d albums", len(res.Photos), len(res.Albums))

	var wg sync.WaitGroup
	if *watchFlag {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := watch(ctx, p, c.SourceDir); err != nil {
				klog.Exitf("watch failed: %v", err)
			}
		}()
	}

	if *listen {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s := serve.New(p, p.Config().OutputDir, p.Config().PublicPrefix)
			if err := listenAndServe(ctx, *addr, s.Routes()); err != nil {
				klog.Exitf("listen failed: %v", err)
			}
		}()
	}

	wg.Wait()
}

// applyFlags overrides loaded settings with any flags given on the command line.
func applyFlags(c *config.Config) {
	if *inDir != "" {
		c.SourceDir = *inDir
	}
	if *outDir != "" {
		c.OutputDir = *outDir
	}
	if *backend != "" {
		c.Backend = *backend
	}
	if *workers >= 0 {
		c.Workers = *workers
	}
	if *reprocess {
		c.ReprocessExisting = true
	}
}

func newOptimizer(c *config.Config, et *exif.Exiftool) (optimize.Optimizer, error) {
	switch c.Backend {
	case config.BackendJpegli:
		jl := optimize.NewJpegli(c.Optimize())
		if err := jl.Check(); err != nil {
			return nil, err
		}
		return jl, nil
	case config.BackendNative:
		return optimize.NewNative(c.Optimize(), et.Tool()), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", c.Backend)
	}
}

// listenAndServe serves handler until ctx is cancelled.
func listenAndServe(ctx context.Context, addr string, handler http.Handler) error {
	srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(sctx); err != nil {
			klog.Warningf("shutdown: %v", err)
		}
	}()

	klog.Infof("Listening on %s...", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// watchDirs lists root and every non-hidden directory below it.
func watchDirs(root string) ([]string, error) {
	dirs := []string{}
	err := godirwalk.Walk(root, &godirwalk.Options{
		Callback: func(path string, de *godirwalk.Dirent) error {
			if path != root && strings.HasPrefix(filepath.Base(path), ".") {
				return godirwalk.SkipThis
			}
			if de.IsDir() {
				dirs = append(dirs, path)
			}
			return nil
		},
	})
	return dirs, err
}

// watch reprocesses whenever the source tree changes. Bursts of events are
// coalesced into one run after the settle period.
func watch(ctx context.Context, p *pipeline.Pipeline, root string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("new watcher: %w", err)
	}
	defer w.Close()

	dirs, err := watchDirs(root)
	if err != nil {
		return fmt.Errorf("list dirs: %w", err)
	}
	klog.Infof("watching %d dirs ...", len(dirs))
	for _, d := range dirs {
		if err := w.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}

	timer := time.NewTimer(*settle)
	timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			klog.V(1).Infof("event: %s", event)
			if event.Has(fsnotify.Create) {
				if fi, err := os.Stat(event.Name); err == nil && fi.IsDir() {
					if err := w.Add(event.Name); err != nil {
						klog.Warningf("watch %s: %v", event.Name, err)
					}
				}
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				timer.Reset(*settle)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			klog.Errorf("watch error: %v", err)
		case <-timer.C:
			res, err := p.Process(ctx)
			if err != nil {
				klog.Errorf("process failed: %v", err)
				continue
			}
			klog.Infof("%d photos in %d albums", len(res.Photos), len(res.Albums))
		}
	}
}
