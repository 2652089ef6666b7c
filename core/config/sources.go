package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

// SourcesFile is the optional YAML document overriding per-adapter settings.
//
//	sources:
//	  github.commits:
//	    scopes: [acme/api, acme/web]
//	    interval: 2m
//	  slack.messages:
//	    scopes: [C0123456]
//	    lookback: 6h
type SourcesFile struct {
	Sources map[string]SourceOverride `yaml:"sources"`
}

type SourceOverride struct {
	Scopes   []string      `yaml:"scopes"`
	Interval time.Duration `yaml:"interval"`
	Lookback time.Duration `yaml:"lookback"`
	Disabled bool          `yaml:"disabled"`
}

// Override returns the override for an adapter, if the file names it.
func (f *SourcesFile) Override(adapter string) (SourceOverride, bool) {
	if f == nil {
		return SourceOverride{}, false
	}
	o, ok := f.Sources[adapter]
	return o, ok
}

// SourcesLoader reads the sources file and hot-reloads it on change.
// Only scope lists are applied live; intervals and lookbacks take effect on restart.
type SourcesLoader struct {
	path     string
	mu       sync.RWMutex
	current  *SourcesFile
	onChange []func(*SourcesFile)
}

func NewSourcesLoader(path string) (*SourcesLoader, error) {
	l := &SourcesLoader{path: path}
	f, err := l.load()
	if err != nil {
		return nil, err
	}
	l.current = f
	return l, nil
}

func (l *SourcesLoader) Current() *SourcesFile {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked after every successful reload.
func (l *SourcesLoader) OnChange(fn func(*SourcesFile)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Watch reloads the file when it is written or replaced. The parent directory is
// watched so editors that save via rename are seen. Call stop to end watching.
func (l *SourcesLoader) Watch() (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("sources watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(l.path)); err != nil {
		w.Close()
		return nil, fmt.Errorf("sources watcher add %s: %w", l.path, err)
	}

	target := filepath.Clean(l.path)
	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != target {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename) {
					if _, err := l.Reload(); err != nil {
						slog.Warn("sources file reload failed, keeping previous", "path", l.path, "error", err)
					}
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("sources watcher error", "error", err)
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }, nil
}

// Reload forces an immediate re-read of the file.
func (l *SourcesLoader) Reload() (*SourcesFile, error) {
	f, err := l.load()
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = f
	callbacks := make([]func(*SourcesFile), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()

	for _, fn := range callbacks {
		fn(f)
	}
	return f, nil
}

func (l *SourcesLoader) load() (*SourcesFile, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("read sources %s: %w", l.path, err)
	}
	var f SourcesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse sources %s: %w", l.path, err)
	}
	if f.Sources == nil {
		f.Sources = map[string]SourceOverride{}
	}
	return &f, nil
}
