package coordinator

import (
	"context"
	"sync"

	"github.com/roach88/skirmish/internal/model"
)

// Snapshot is an immutable view handed to presentation.
type Snapshot struct {
	Session    model.GameSession
	Statistics model.StatisticsSnapshot
	// Notice is a session-level status line such as "reconnecting...".
	// Empty when there is nothing to report.
	Notice string
}

// watcher coalesces snapshots per session so a slow consumer only ever
// misses intermediate states, never the latest one.
type watcher struct {
	mu      sync.Mutex
	pending map[model.SessionID]Snapshot
	order   []model.SessionID
	signal  chan struct{}
	out     chan Snapshot
}

func newWatcher() *watcher {
	return &watcher{
		pending: make(map[model.SessionID]Snapshot),
		signal:  make(chan struct{}, 1),
		out:     make(chan Snapshot),
	}
}

func (w *watcher) offer(s Snapshot) {
	w.mu.Lock()
	if _, queued := w.pending[s.Session.ID]; !queued {
		w.order = append(w.order, s.Session.ID)
	}
	w.pending[s.Session.ID] = s
	w.mu.Unlock()

	select {
	case w.signal <- struct{}{}:
	default:
	}
}

func (w *watcher) take() (Snapshot, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.order) == 0 {
		return Snapshot{}, false
	}
	id := w.order[0]
	w.order = w.order[1:]
	s := w.pending[id]
	delete(w.pending, id)
	return s, true
}

// run forwards snapshots to out until ctx ends, then closes out.
func (w *watcher) run(ctx context.Context) {
	defer close(w.out)
	for {
		s, ok := w.take()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-w.signal:
				continue
			}
		}
		select {
		case <-ctx.Done():
			return
		case w.out <- s:
		}
	}
}

// broadcaster fans snapshots out to every registered watcher.
type broadcaster struct {
	mu       sync.Mutex
	watchers map[*watcher]struct{}
}

func newBroadcaster() *broadcaster {
	return &broadcaster{watchers: make(map[*watcher]struct{})}
}

// subscribe registers a watcher until ctx ends.
func (b *broadcaster) subscribe(ctx context.Context) <-chan Snapshot {
	w := newWatcher()
	b.mu.Lock()
	b.watchers[w] = struct{}{}
	b.mu.Unlock()

	go func() {
		w.run(ctx)
		b.mu.Lock()
		delete(b.watchers, w)
		b.mu.Unlock()
	}()
	return w.out
}

func (b *broadcaster) publish(s Snapshot) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for w := range b.watchers {
		w.offer(s)
	}
}
