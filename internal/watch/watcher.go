// Package watch observes a drop directory and hands newly created
// indicator files to the pipeline, so batch producers can deliver by
// file copy instead of HTTP.
package watch

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Handler processes one dropped file.
type Handler func(path string)

// Watcher picks up .csv and .json files created in a directory.
type Watcher struct {
	dir     string
	handler Handler
	logger  *zap.Logger
	fw      *fsnotify.Watcher
}

// New creates a watcher over dir.
func New(dir string, handler Handler, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, err
	}

	return &Watcher{
		dir:     dir,
		handler: handler,
		logger:  logger,
		fw:      fw,
	}, nil
}

// Run consumes filesystem events until the context is cancelled or the
// event stream closes. It blocks; callers run it on its own goroutine.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("watching drop directory", zap.String("dir", w.dir))
	defer w.fw.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-w.fw.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Create) {
				continue
			}
			if !watchedExt(event.Name) {
				continue
			}
			w.logger.Info("indicator file dropped", zap.String("path", event.Name))
			w.handler(event.Name)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		}
	}
}

func watchedExt(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".json":
		return true
	}
	return false
}
