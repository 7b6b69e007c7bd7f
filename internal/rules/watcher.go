package rules

import (
	"context"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/tracymacding/starrocks-diag-engine/internal/config"
	"github.com/tracymacding/starrocks-diag-engine/internal/logging"
)

// Watcher reloads a Library's RuleOverrides from a YAML file whenever it
// changes on disk, swapping the Holder's pointer rather than mutating any
// shared state in place.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	path        string
	holder      *Holder
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewWatcher builds a Watcher for path, reloading into holder on change.
// path is typically the same file config.LoadConfig read at startup.
func NewWatcher(path string, holder *Holder) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		watcher:     fw,
		path:        path,
		holder:      holder,
		debounceDur: 500 * time.Millisecond,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching in a background goroutine. Non-blocking.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	if err := w.watcher.Add(w.path); err != nil {
		logging.RulesWarn("watcher: failed to watch %s: %v (rule overrides will not hot-reload)", w.path, err)
		return nil
	}
	logging.Rules("watcher: watching %s for rule-override changes", w.path)

	go w.run(ctx)
	return nil
}

func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	var pending bool
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			pending = true
			timer.Reset(w.debounceDur)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.RulesError("watcher: %v", err)
		case <-timer.C:
			if pending {
				pending = false
				w.reload()
			}
		}
	}
}

func (w *Watcher) reload() {
	overrides, err := config.LoadRuleOverrides(w.path)
	if err != nil {
		logging.RulesWarn("watcher: reload of %s failed, keeping previous rule table: %v", w.path, err)
		return
	}
	w.holder.Set(New(overrides))
	logging.Rules("watcher: rule overrides reloaded from %s", w.path)
}
