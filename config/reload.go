package config

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// hotReloader watches the directories holding the configured files, so
// editors that replace files by rename are seen as well as in-place writes.
type hotReloader struct {
	watcher  *fsnotify.Watcher
	files    map[string]struct{}
	debounce time.Duration
	reload   func()
	onError  func(error)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newHotReloader(paths []string, debounce time.Duration, reload func(), onError func(error)) (*hotReloader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	r := &hotReloader{
		watcher:  watcher,
		files:    make(map[string]struct{}, len(paths)),
		debounce: debounce,
		reload:   reload,
		onError:  onError,
	}

	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		r.files[abs] = struct{}{}
		dirs[filepath.Dir(abs)] = struct{}{}
	}
	for dir := range dirs {
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}
	return r, nil
}

func (r *hotReloader) start(ctx context.Context) error {
	if r.cancel != nil {
		return errors.New("hot reload already started")
	}
	ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.run(ctx)
	return nil
}

func (r *hotReloader) stop() {
	if r.cancel != nil {
		r.cancel()
	}
	_ = r.watcher.Close()
	r.wg.Wait()
}

func (r *hotReloader) run(ctx context.Context) {
	defer r.wg.Done()

	timer := time.NewTimer(r.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if !r.relevant(event) {
				continue
			}
			timer.Reset(r.debounce)

		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.onError(fmt.Errorf("file watcher error: %w", err))

		case <-timer.C:
			r.reload()
		}
	}
}

func (r *hotReloader) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return false
	}
	name, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	_, ok := r.files[name]
	return ok
}
