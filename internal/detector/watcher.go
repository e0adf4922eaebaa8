package detector

import (
	"context"
	"log"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Store holds the active Detector and swaps it out when the model
// directory changes, so a hot-reloaded tuning file (tile grid, NMS
// threshold) takes effect without restarting the worker. current is an
// atomic pointer so the watcher goroutine's swap and the frame loop's reads
// never race.
type Store struct {
	current atomic.Pointer[Detector]
	reload  func() Config
}

func NewStore(initial Config, reload func() Config) *Store {
	s := &Store{reload: reload}
	s.current.Store(New(initial))
	return s
}

func (s *Store) Get() *Detector {
	return s.current.Load()
}

// WatchDir monitors dir for config changes and falls back to a 60-second
// poll if fsnotify cannot be established, matching the two-tier strategy
// used for the license file elsewhere in this codebase.
func (s *Store) WatchDir(ctx context.Context, dir string) {
	watcher, err := fsnotify.NewWatcher()
	usePolling := false

	if err != nil {
		log.Printf("[Detector] fsnotify unavailable (%v), falling back to polling", err)
		usePolling = true
	} else if err := watcher.Add(dir); err != nil {
		log.Printf("[Detector] failed to watch model dir %s (%v), falling back to polling", dir, err)
		usePolling = true
		watcher.Close()
	}

	if !usePolling {
		go func() {
			defer watcher.Close()
			for {
				select {
				case <-ctx.Done():
					return
				case event, ok := <-watcher.Events:
					if !ok {
						return
					}
					if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
						time.Sleep(100 * time.Millisecond)
						s.reloadNow()
					}
				case err, ok := <-watcher.Errors:
					if !ok {
						return
					}
					log.Printf("[Detector] watcher error: %v", err)
				}
			}
		}()
	}

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if usePolling {
					s.reloadNow()
				}
			}
		}
	}()
}

func (s *Store) reloadNow() {
	if s.reload == nil {
		return
	}
	cfg := s.reload()
	log.Printf("[Detector] reloading detector config from model dir")
	s.current.Store(New(cfg))
}
