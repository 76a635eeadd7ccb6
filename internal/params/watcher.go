package params

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// LoadPreset reads a flat YAML map of parameter names to values.
func LoadPreset(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse preset %s: %w", path, err)
	}
	values := make(map[string]string, len(raw))
	for k, v := range raw {
		values[k] = fmt.Sprint(v)
	}
	return values, nil
}

// Watcher re-applies a preset file to the store whenever it is written.
type Watcher struct {
	path     string
	store    *Store
	logger   *zap.Logger
	debounce time.Duration

	mu      sync.Mutex
	applied int
}

func NewWatcher(path string, store *Store, logger *zap.Logger) *Watcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{path: path, store: store, logger: logger, debounce: 200 * time.Millisecond}
}

// Applied counts successful reloads, including the initial one.
func (w *Watcher) Applied() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.applied
}

// Reload reads the preset once and applies it.
func (w *Watcher) Reload() error {
	values, err := LoadPreset(w.path)
	if err != nil {
		return err
	}
	if err := w.store.ApplyText(values); err != nil {
		return err
	}
	w.mu.Lock()
	w.applied++
	w.mu.Unlock()
	w.logger.Info("Preset applied", zap.String("file", w.path), zap.Int("keys", len(values)))
	return nil
}

// Run applies the preset, then watches its directory until ctx is done.
// Editors often replace the file, so the directory is watched, not the file.
func (w *Watcher) Run(ctx context.Context) error {
	if err := w.Reload(); err != nil {
		w.logger.Warn("Initial preset load failed", zap.String("file", w.path), zap.Error(err))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify: %w", err)
	}
	defer watcher.Close()

	abs, err := filepath.Abs(w.path)
	if err != nil {
		return err
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			// one save usually fires several writes
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, func() {
				if err := w.Reload(); err != nil {
					w.logger.Warn("Preset reload failed", zap.String("file", w.path), zap.Error(err))
				}
			})

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Preset watcher error", zap.Error(err))
		}
	}
}
