// SPDX-License-Identifier: MPL-2.0

// Package watch re-runs provisioning when manifest files change.
//
// The watcher registers the directories that can hold manifests (the parent
// of each literal path, and the static prefix of each doublestar pattern,
// recursively when the pattern spans directories) and fires a debounced
// callback with the changed manifest paths. A change that arrives while the
// callback is running schedules exactly one follow-up run.
package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/provisio/provisio/pkg/manifest"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period after the last event before the
// callback fires. Editors commonly write a temp file and rename it, which
// produces several events per save.
const DefaultDebounce = 300 * time.Millisecond

// ErrAlreadyRunning is returned by a second call to Run.
var ErrAlreadyRunning = errors.New("watch: Run called more than once")

// skipDirs are never descended into when registering recursive roots.
var skipDirs = []string{"**/.git", "**/node_modules", "**/.venv", "**/__pycache__"}

type (
	// Config holds the parameters for a Watcher.
	Config struct {
		// Manifests are the literal manifest paths and doublestar patterns
		// of the run.
		Manifests []string
		// Debounce defaults to DefaultDebounce when zero or negative.
		Debounce time.Duration
		// OnChange receives the changed manifest paths, sorted. Its error is
		// logged and does not stop the watcher.
		OnChange func(ctx context.Context, changed []string) error
		Logger   *slog.Logger
	}

	// matcher decides whether an absolute path belongs to the manifest set.
	matcher struct {
		literals map[string]bool
		patterns []string
	}

	// Watcher monitors manifest files. Run must be called exactly once.
	Watcher struct {
		cfg      Config
		fsw      *fsnotify.Watcher
		match    matcher
		roots    map[string]bool // recursive roots
		debounce time.Duration
		logger   *slog.Logger
		started  atomic.Bool
	}
)

// New validates the manifest patterns and registers every directory that can
// contain a matching file.
func New(cfg Config) (*Watcher, error) {
	if len(cfg.Manifests) == 0 {
		return nil, errors.New("watch: no manifest paths to watch")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	debounce := cfg.Debounce
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	w := &Watcher{
		cfg:      cfg,
		match:    matcher{literals: make(map[string]bool)},
		roots:    make(map[string]bool),
		debounce: debounce,
		logger:   logger,
	}

	dirs := make(map[string]bool)
	for _, m := range cfg.Manifests {
		abs, err := filepath.Abs(m)
		if err != nil {
			return nil, fmt.Errorf("watch: resolve %q: %w", m, err)
		}
		if !doublestar.ValidatePathPattern(abs) {
			return nil, fmt.Errorf("watch: invalid manifest pattern %q: %w", m, doublestar.ErrBadPattern)
		}
		if !hasMeta(abs) {
			w.match.literals[abs] = true
			if _, seen := dirs[filepath.Dir(abs)]; !seen {
				dirs[filepath.Dir(abs)] = false
			}
			continue
		}
		w.match.patterns = append(w.match.patterns, abs)
		base, rest := doublestar.SplitPattern(filepath.ToSlash(abs))
		base = filepath.FromSlash(base)
		if strings.Contains(rest, "/") || strings.Contains(rest, "**") {
			dirs[base] = true
		} else if _, seen := dirs[base]; !seen {
			dirs[base] = false
		}
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("watch: create fsnotify watcher: %w", err)
	}
	w.fsw = fsw

	for _, dir := range slices.Sorted(maps.Keys(dirs)) {
		if err := w.register(dir, dirs[dir]); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	return w, nil
}

// register adds dir, and every subdirectory when recursive is set.
func (w *Watcher) register(dir string, recursive bool) error {
	if !recursive {
		if err := w.fsw.Add(dir); err != nil {
			return fmt.Errorf("watch: add directory %q: %w", dir, err)
		}
		return nil
	}
	w.roots[dir] = true
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			w.logger.Warn("not watching inaccessible path", "path", path, "error", err)
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && skipped(path) {
			return filepath.SkipDir
		}
		if addErr := w.fsw.Add(path); addErr != nil {
			return fmt.Errorf("watch: add directory %q: %w", path, addErr)
		}
		return nil
	})
}

func skipped(path string) bool {
	slash := filepath.ToSlash(path)
	for _, pat := range skipDirs {
		if ok, _ := doublestar.Match(pat, slash); ok {
			return true
		}
	}
	return false
}

// matches reports whether the absolute path is one of the watched manifests.
func (m matcher) matches(path string) bool {
	if m.literals[path] {
		return true
	}
	if _, err := manifest.FormatFor(path); err != nil {
		return false
	}
	for _, pat := range m.patterns {
		if ok, _ := doublestar.PathMatch(pat, path); ok {
			return true
		}
	}
	return false
}

// underRoot reports whether a newly created directory should be watched.
func (w *Watcher) underRoot(path string) bool {
	for root := range w.roots {
		if rel, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(rel, "..") {
			return !skipped(path)
		}
	}
	return false
}

// Run processes events until ctx is cancelled. It returns nil on
// cancellation and an error when the underlying watcher breaks.
func (w *Watcher) Run(ctx context.Context) error {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer func() {
		if err := w.fsw.Close(); err != nil {
			w.logger.Warn("closing watcher", "error", err)
		}
	}()

	runCtx, stop := context.WithCancel(ctx)

	var (
		mu      sync.Mutex
		pending = make(map[string]struct{})
		timer   *time.Timer
		// fireCh holds at most one queued run, so changes that arrive while
		// OnChange is busy coalesce into a single follow-up.
		fireCh = make(chan struct{}, 1)
		done   = make(chan struct{})
	)

	go func() {
		defer close(done)
		for {
			select {
			case <-runCtx.Done():
				return
			case <-fireCh:
			}
			mu.Lock()
			changed := slices.Sorted(maps.Keys(pending))
			clear(pending)
			mu.Unlock()
			if len(changed) == 0 || runCtx.Err() != nil {
				continue
			}
			w.logger.Info("manifests changed", "files", changed)
			if w.cfg.OnChange != nil {
				if err := w.cfg.OnChange(runCtx, changed); err != nil {
					w.logger.Error("re-run failed", "error", err)
				}
			}
		}
	}()

	defer func() {
		stop()
		mu.Lock()
		if timer != nil {
			timer.Stop()
		}
		mu.Unlock()
		<-done
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-w.fsw.Events:
			if !ok {
				return errors.New("watch: event channel closed")
			}
			if evt.Has(fsnotify.Create) && w.underRoot(evt.Name) {
				if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
					if err := w.register(evt.Name, true); err != nil {
						w.logger.Warn("watching new directory", "path", evt.Name, "error", err)
					}
					continue
				}
			}
			if evt.Op == fsnotify.Chmod || !w.match.matches(evt.Name) {
				continue
			}
			w.logger.Debug("manifest event", "path", evt.Name, "op", evt.Op.String())

			mu.Lock()
			pending[evt.Name] = struct{}{}
			if timer == nil {
				timer = time.AfterFunc(w.debounce, func() {
					select {
					case fireCh <- struct{}{}:
					default:
					}
				})
			} else {
				timer.Reset(w.debounce)
			}
			mu.Unlock()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return errors.New("watch: error channel closed")
			}
			if watchBroken(err) {
				return fmt.Errorf("watch: %w", err)
			}
			w.logger.Warn("watcher error", "error", err)
		}
	}
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}
