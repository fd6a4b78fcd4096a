package arbiter

// Lifecycle notifier
// ------------------
// Turns detected transitions into calls on externally supplied handlers.
// Transitions are appended to a FIFO queue while the arbiter still holds its
// registry lock, so queue order always matches mutation order (and therefore
// per-path order). A single dispatcher goroutine drains the queue and invokes
// the callbacks with no lock held, so slow external work never stalls
// unrelated events.

import (
	"log/slog"
	"sync"
)

// Callbacks holds the externally supplied lifecycle handlers. Any field may
// be nil; the corresponding transition is then dropped silently.
type Callbacks struct {
	OnFirstSubscriber       func(user, path string)
	OnLastSubscriber        func(path string)
	OnPublisherConnected    func(user, path string)
	OnPublisherDisconnected func(path string)
}

type transitionKind int

const (
	transitionFirstSubscriber transitionKind = iota
	transitionLastSubscriber
	transitionPublisherConnected
	transitionPublisherDisconnected
)

func (k transitionKind) String() string {
	switch k {
	case transitionFirstSubscriber:
		return "first_subscriber"
	case transitionLastSubscriber:
		return "last_subscriber"
	case transitionPublisherConnected:
		return "publisher_connected"
	case transitionPublisherDisconnected:
		return "publisher_disconnected"
	}
	return "unknown"
}

type transition struct {
	kind transitionKind
	user string // only set for first_subscriber / publisher_connected
	path string
}

// Notifier dispatches transitions to Callbacks in the order they occurred.
type Notifier struct {
	cb  Callbacks
	log *slog.Logger

	mu      sync.Mutex
	queue   []transition
	wake    chan struct{}
	closing bool
	done    chan struct{}
}

// NewNotifier creates a notifier and starts its dispatcher goroutine.
func NewNotifier(cb Callbacks, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	n := &Notifier{
		cb:   cb,
		log:  log,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go n.dispatchLoop()
	return n
}

// enqueue appends a transition. Safe to call while the arbiter lock is held:
// it only touches the notifier's own short-lived mutex and never blocks.
func (n *Notifier) enqueue(t transition) {
	n.mu.Lock()
	if n.closing {
		n.mu.Unlock()
		n.log.Warn("transition dropped, notifier closing", "kind", t.kind.String(), "path", t.path)
		return
	}
	n.queue = append(n.queue, t)
	n.mu.Unlock()
	select {
	case n.wake <- struct{}{}:
	default:
	}
}

func (n *Notifier) dispatchLoop() {
	defer close(n.done)
	for {
		n.mu.Lock()
		batch := n.queue
		n.queue = nil
		closing := n.closing
		n.mu.Unlock()

		for _, t := range batch {
			n.dispatch(t)
		}
		if closing && len(batch) == 0 {
			return
		}
		if len(batch) > 0 {
			continue // re-check for work queued while dispatching
		}
		<-n.wake
	}
}

func (n *Notifier) dispatch(t transition) {
	n.log.Debug("lifecycle transition", "kind", t.kind.String(), "path", t.path, "user", t.user)
	switch t.kind {
	case transitionFirstSubscriber:
		if n.cb.OnFirstSubscriber != nil {
			n.cb.OnFirstSubscriber(t.user, t.path)
		}
	case transitionLastSubscriber:
		if n.cb.OnLastSubscriber != nil {
			n.cb.OnLastSubscriber(t.path)
		}
	case transitionPublisherConnected:
		if n.cb.OnPublisherConnected != nil {
			n.cb.OnPublisherConnected(t.user, t.path)
		}
	case transitionPublisherDisconnected:
		if n.cb.OnPublisherDisconnected != nil {
			n.cb.OnPublisherDisconnected(t.path)
		}
	}
}

// Close drains already-queued transitions, then stops the dispatcher.
// Transitions enqueued after Close are dropped.
func (n *Notifier) Close() {
	n.mu.Lock()
	if n.closing {
		n.mu.Unlock()
		<-n.done
		return
	}
	n.closing = true
	n.mu.Unlock()
	select {
	case n.wake <- struct{}{}:
	default:
	}
	<-n.done
}
