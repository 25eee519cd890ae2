// Package watch reports report templates that change on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/IGLOU-EU/go-wildcard/v2"
	"github.com/fsnotify/fsnotify"
	"github.com/rcourtman/pulse-reports/pkg/reporting/template"
	"github.com/rs/zerolog/log"
)

// Config controls what a Watcher follows.
type Config struct {
	// Paths are template files or directories of templates.
	Paths []string
	// Pattern filters file names inside watched directories, e.g. "weekly-*".
	// Empty matches every template format.
	Pattern string
	// Debounce is how long a file must stay quiet before it is reported.
	Debounce time.Duration
	// PollInterval is used when filesystem notifications are unavailable.
	PollInterval time.Duration
}

// Watcher reports changed templates once writes to them settle.
type Watcher struct {
	cfg Config

	files map[string]bool // named explicitly
	trees map[string]bool // directories whose matching files are followed
	dirs  map[string]bool // everything handed to fsnotify

	mu     sync.Mutex
	timers map[string]*time.Timer
	ready  chan string

	lastModTimes map[string]time.Time
}

// New resolves cfg.Paths and prepares a Watcher.
func New(cfg Config) (*Watcher, error) {
	if len(cfg.Paths) == 0 {
		return nil, errors.New("no paths to watch")
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 250 * time.Millisecond
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}

	w := &Watcher{
		cfg:          cfg,
		files:        make(map[string]bool),
		trees:        make(map[string]bool),
		dirs:         make(map[string]bool),
		timers:       make(map[string]*time.Timer),
		ready:        make(chan string),
		lastModTimes: make(map[string]time.Time),
	}
	for _, p := range cfg.Paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", p, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, fmt.Errorf("watch %s: %w", p, err)
		}
		if info.IsDir() {
			w.trees[abs] = true
			w.dirs[abs] = true
		} else {
			w.files[abs] = true
			w.dirs[filepath.Dir(abs)] = true
		}
	}
	return w, nil
}

// Templates lists the templates currently matched by the watcher.
func (w *Watcher) Templates() []string {
	var out []string
	for file := range w.files {
		out = append(out, file)
	}
	for dir := range w.trees {
		entries, err := os.ReadDir(dir)
		if err != nil {
			log.Warn().Err(err).Str("path", dir).Msg("Failed to list template directory")
			continue
		}
		for _, e := range entries {
			path := filepath.Join(dir, e.Name())
			if !e.IsDir() && !w.files[path] && w.Matches(path) {
				out = append(out, path)
			}
		}
	}
	return out
}

// Matches reports whether path is a template this watcher follows.
func (w *Watcher) Matches(path string) bool {
	path = filepath.Clean(path)
	if w.files[path] {
		return true
	}
	if !w.trees[filepath.Dir(path)] {
		return false
	}
	name := filepath.Base(path)
	// Editor swap files and our own temp outputs.
	if strings.HasPrefix(name, ".") || strings.HasSuffix(name, "~") {
		return false
	}
	if _, err := template.FormatFromPath(name); err != nil {
		return false
	}
	if w.cfg.Pattern != "" {
		return wildcard.Match(w.cfg.Pattern, name)
	}
	return true
}

// Run watches until ctx is done, calling onChange with the absolute path of
// each changed template. Calls are sequential.
func (w *Watcher) Run(ctx context.Context, onChange func(context.Context, string)) error {
	fsw, err := fsnotify.NewWatcher()
	if err == nil {
		defer fsw.Close()
		for dir := range w.dirs {
			if addErr := fsw.Add(dir); addErr != nil {
				log.Warn().Err(addErr).Str("path", dir).Msg("Failed to watch template directory")
				err = addErr
			}
		}
	}

	if err != nil {
		log.Warn().Err(err).Msg("Falling back to polling for template changes")
		go w.pollForChanges(ctx)
	} else {
		go w.handleEvents(ctx, fsw.Events, fsw.Errors)
		log.Info().
			Int("directories", len(w.dirs)).
			Str("pattern", w.cfg.Pattern).
			Msg("Started watching templates for changes")
	}

	for {
		select {
		case <-ctx.Done():
			w.stopTimers()
			return nil
		case path := <-w.ready:
			onChange(ctx, path)
		}
	}
}

// handleEvents turns fsnotify events into debounced changes.
func (w *Watcher) handleEvents(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) {
	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !w.Matches(event.Name) {
				continue
			}
			log.Debug().Str("path", event.Name).Str("event", event.Op.String()).Msg("Detected template change")
			w.schedule(ctx, filepath.Clean(event.Name))

		case err, ok := <-errs:
			if !ok {
				return
			}
			log.Error().Err(err).Msg("Template watcher error")

		case <-ctx.Done():
			return
		}
	}
}

// pollForChanges is a fallback that polls modification times.
func (w *Watcher) pollForChanges(ctx context.Context) {
	w.scan(ctx, false)

	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			w.scan(ctx, true)
		case <-ctx.Done():
			return
		}
	}
}

func (w *Watcher) scan(ctx context.Context, notify bool) {
	for _, path := range w.Templates() {
		stat, err := os.Stat(path)
		if err != nil {
			continue
		}
		last, seen := w.lastModTimes[path]
		if seen && !stat.ModTime().After(last) {
			continue
		}
		w.lastModTimes[path] = stat.ModTime()
		if notify {
			log.Debug().Str("path", path).Msg("Detected template change via polling")
			w.schedule(ctx, path)
		}
	}
}

// schedule reports path once it has been quiet for the debounce period.
func (w *Watcher) schedule(ctx context.Context, path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if t, ok := w.timers[path]; ok {
		t.Reset(w.cfg.Debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.cfg.Debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		w.mu.Unlock()

		select {
		case w.ready <- path:
		case <-ctx.Done():
		}
	})
}

func (w *Watcher) stopTimers() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for path, t := range w.timers {
		t.Stop()
		delete(w.timers, path)
	}
}
