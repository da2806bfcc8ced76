package config

import (
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads the config file on change and reports language switches.
// The active language is host-owned state; a site-side selector rewrites the
// config file and this watcher propagates the change to the voice controllers.
type Watcher struct {
	watcher  *fsnotify.Watcher
	logger   zerolog.Logger
	path     string
	current  string
	onChange func(language string)
	done     chan struct{}
}

// Watch starts watching the config file. onChange fires only when the
// language value actually differs from the last seen one.
func Watch(cfg *Config, logger zerolog.Logger, onChange func(language string)) (*Watcher, error) {
	path, err := Path()
	if err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	// Watch the directory, not the file: editors and atomic writes replace
	// the inode and a file watch would go stale.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	w := &Watcher{
		watcher:  fw,
		logger:   logger.With().Str("component", "config-watcher").Logger(),
		path:     path,
		current:  cfg.Language,
		onChange: onChange,
		done:     make(chan struct{}),
	}

	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn().Err(err).Msg("Config watcher error")
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load()
	if err != nil {
		w.logger.Warn().Err(err).Msg("Failed to reload config")
		return
	}
	if cfg.Language == w.current {
		return
	}

	w.logger.Info().
		Str("old", w.current).
		Str("new", cfg.Language).
		Msg("Active language changed")
	w.current = cfg.Language

	if w.onChange != nil {
		w.onChange(cfg.Language)
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
