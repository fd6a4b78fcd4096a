package arbiter

// Session arbiter
// ---------------
// Decides who may publish and who may subscribe to each path, keeps the
// client/path registries consistent across an unordered stream of protocol
// events, and derives lifecycle transitions (first subscriber, last
// subscriber, publisher connected/disconnected).
//
// Concurrency model: one mutex guards the combined registries. The protocol
// engine may deliver events for different clients from different goroutines;
// every handler takes the lock for the whole event so admission checks and
// transitions on the same path never interleave. Transitions are enqueued on
// the notifier while the lock is held (preserving order) and delivered by
// the notifier's own goroutine after the mutation, so external callbacks run
// without the lock.

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	rserrors "github.com/grzechuj/RtspRestreamServer/internal/errors"
	"github.com/grzechuj/RtspRestreamServer/internal/logger"
)

// Config holds the arbiter's admission knobs.
type Config struct {
	// MaxSubscribersPerPath limits concurrently active subscribers on a
	// single path. 0 = unlimited. The registry-wide path limit is enforced
	// by the protocol engine, not here.
	MaxSubscribersPerPath uint
}

// Arbiter is the admission and reference-tracking engine. Create with New,
// release with Close.
type Arbiter struct {
	cfg      Config
	log      *slog.Logger
	notifier *Notifier

	mu  sync.Mutex
	reg *registry
}

// New creates an Arbiter delivering lifecycle transitions to cb.
func New(cfg Config, cb Callbacks) *Arbiter {
	log := logger.Logger().With("component", "arbiter")
	return &Arbiter{
		cfg:      cfg,
		log:      log,
		notifier: NewNotifier(cb, log),
		reg:      newRegistry(),
	}
}

// Close drains pending lifecycle notifications and stops the dispatcher.
func (a *Arbiter) Close() {
	a.notifier.Close()
}

// ConnectionOpened records a new protocol-level connection. Registry entries
// are created lazily on first subscribe/publish, so this only logs.
func (a *Arbiter) ConnectionOpened(client ClientID) {
	a.log.Debug("connection opened", "client_id", string(client))
}

// PreSubscribe is the advisory admission check run before a subscribe is
// allowed to proceed. It mutates no state. Returns nil to accept, or a
// LimitExceededError when admitting the client would exceed the configured
// per-path subscriber limit.
func (a *Arbiter) PreSubscribe(client ClientID, path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.cfg.MaxSubscribersPerPath == 0 {
		return nil
	}
	count := 0
	if ps, ok := a.reg.paths[path]; ok {
		count = ps.subscribers
	}
	if count >= int(a.cfg.MaxSubscribersPerPath) {
		a.log.Warn("subscribe rejected, limit reached",
			"client_id", string(client), "path", path,
			"count", count, "limit", a.cfg.MaxSubscribersPerPath)
		return rserrors.NewLimitExceeded(path, a.cfg.MaxSubscribersPerPath, count)
	}
	return nil
}

// PreStartPublish is the advisory admission check run before a publish is
// allowed to proceed. Returns nil to accept, or a PublisherConflictError when
// the path already has an active publisher, regardless of which client.
func (a *Arbiter) PreStartPublish(client ClientID, path string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ps, ok := a.reg.paths[path]; ok && ps.hasPublisher() {
		a.log.Warn("publish rejected, path already published",
			"client_id", string(client), "path", path)
		return rserrors.NewPublisherConflict(path)
	}
	return nil
}

// SubscribeStarted records that the client began subscribing to path. user is
// the identity string from the client's authorization context; it is carried
// on the first-subscriber transition.
func (a *Arbiter) SubscribeStarted(client ClientID, user, path string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ps := a.reg.attach(client, path)
	ps.subscribers++
	a.log.Debug("subscribe started",
		"client_id", string(client), "path", path, "subscribers", ps.subscribers)
	if ps.subscribers == 1 {
		a.notifier.enqueue(transition{kind: transitionFirstSubscriber, user: user, path: path})
	}
}

// PublishStarted records that the client began publishing to path under the
// given session id. The conflict check runs in the same critical section as
// the record update, so two publishers racing through admission cannot both
// start: the loser gets a PublisherConflictError, leaves no trace in the
// registry, and the caller must refuse its request.
func (a *Arbiter) PublishStarted(client ClientID, user, path, sessionID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if ps, ok := a.reg.paths[path]; ok && ps.hasPublisher() {
		a.log.Error("second publish on published path",
			"client_id", string(client), "path", path, "publisher", string(ps.publisher))
		return rserrors.NewPublisherConflict(path)
	}
	ps := a.reg.attach(client, path)
	ps.publisher = client
	ps.publisherSession = sessionID
	a.log.Debug("publish started",
		"client_id", string(client), "path", path, "session_id", sessionID)
	a.notifier.enqueue(transition{kind: transitionPublisherConnected, user: user, path: path})
	return nil
}

// Teardown processes an explicit teardown for (client, path, sessionID). It
// clears the matching role (publisher record, or one subscriber slot) but
// deliberately leaves the client attached to the path; the association is
// removed uniformly on connection close.
func (a *Arbiter) Teardown(client ClientID, path, sessionID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ps, ok := a.reg.paths[path]
	if !ok {
		err := rserrors.NewConsistency("teardown", fmt.Errorf("path %q not registered", path))
		a.log.Error("teardown of unregistered path",
			"client_id", string(client), "path", path, "error", err)
		return
	}

	if ps.publisher == client && ps.publisherSession == sessionID {
		ps.publisher = ""
		ps.publisherSession = ""
		a.log.Debug("publisher teardown", "client_id", string(client), "path", path)
		a.notifier.enqueue(transition{kind: transitionPublisherDisconnected, path: path})
		return
	}

	if ps.subscribers > 0 {
		ps.subscribers--
		a.log.Debug("subscriber teardown",
			"client_id", string(client), "path", path, "subscribers", ps.subscribers)
		if ps.subscribers == 0 {
			a.notifier.enqueue(transition{kind: transitionLastSubscriber, path: path})
		}
		return
	}

	err := rserrors.NewConsistency("teardown", fmt.Errorf("no matching reference on path %q", path))
	a.log.Error("teardown without registered reference",
		"client_id", string(client), "path", path, "error", err)
}

// ConnectionClosed processes an abrupt (or normal) connection close: every
// path the client referenced is cleaned up independently, firing whatever
// transitions the departure implies, then the client entry is deleted.
// Closing an unknown client is a reported no-op.
func (a *Arbiter) ConnectionClosed(client ClientID) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cs, ok := a.reg.clients[client]
	if !ok {
		a.log.Debug("close for unknown client", "client_id", string(client))
		return
	}

	// Resolve each path's lifecycle transition first, then hand the
	// association removal to detach, which owns empty-path deletion.
	for path := range cs.paths {
		ps, ok := a.reg.paths[path]
		if !ok {
			err := rserrors.NewConsistency("close.cascade",
				fmt.Errorf("client %s references unknown path %q", client, path))
			a.log.Error("registries out of sync", "client_id", string(client), "path", path, "error", err)
			continue
		}

		remaining := len(ps.clients) - 1

		if remaining == 0 {
			// Path fully vacated: resolve the departing client's role.
			if ps.hasPublisher() {
				if ps.publisher != client {
					err := rserrors.NewConsistency("close.cascade",
						fmt.Errorf("vacated path %q publisher is %s, not closing client", path, ps.publisher))
					a.log.Error("publisher record survived its client", "path", path, "error", err)
				}
				ps.publisher = ""
				ps.publisherSession = ""
				a.notifier.enqueue(transition{kind: transitionPublisherDisconnected, path: path})
			} else if ps.subscribers > 0 {
				// An about-to-be-empty path has at most one active subscriber.
				if ps.subscribers > 1 {
					err := rserrors.NewConsistency("close.cascade",
						fmt.Errorf("vacated path %q had %d subscribers", path, ps.subscribers))
					a.log.Error("subscriber count out of sync", "path", path, "error", err)
				}
				ps.subscribers = 0
				a.notifier.enqueue(transition{kind: transitionLastSubscriber, path: path})
			}
		} else {
			// Other clients remain on the path.
			if ps.publisher == client {
				ps.publisher = ""
				ps.publisherSession = ""
				a.notifier.enqueue(transition{kind: transitionPublisherDisconnected, path: path})
			}

			// The departing client was a subscriber and the sole remaining
			// client is the publisher: the path just lost its last active
			// viewer even though it stays alive. Mutually exclusive with the
			// branch above, since that one clears the publisher record first.
			if remaining == 1 && ps.hasPublisher() && ps.subscribers > 0 {
				if ps.subscribers > 1 {
					err := rserrors.NewConsistency("close.cascade",
						fmt.Errorf("publisher-only path %q had %d subscribers", path, ps.subscribers))
					a.log.Error("subscriber count out of sync", "path", path, "error", err)
				}
				ps.subscribers = 0
				a.notifier.enqueue(transition{kind: transitionLastSubscriber, path: path})
			}
		}

		a.reg.detach(client, path)
	}

	delete(a.reg.clients, client)
	a.log.Debug("connection closed", "client_id", string(client))
}

// PathSnapshot is a point-in-time view of one path, served by the status API.
type PathSnapshot struct {
	Name             string   `json:"name"`
	Clients          []string `json:"clients"`
	Subscribers      int      `json:"subscribers"`
	Publisher        string   `json:"publisher,omitempty"`
	PublisherSession string   `json:"publisherSession,omitempty"`
}

// ClientSnapshot is a point-in-time view of one client.
type ClientSnapshot struct {
	ID    string   `json:"id"`
	Paths []string `json:"paths"`
}

// Stats summarizes registry occupancy.
type Stats struct {
	Paths       int `json:"paths"`
	Clients     int `json:"clients"`
	Subscribers int `json:"subscribers"`
	Publishers  int `json:"publishers"`
}

// Paths returns snapshots of all registered paths, sorted by name.
func (a *Arbiter) Paths() []PathSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]PathSnapshot, 0, len(a.reg.paths))
	for _, ps := range a.reg.paths {
		out = append(out, snapshotPath(ps))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Path returns a snapshot of one path, reporting whether it exists.
func (a *Arbiter) Path(name string) (PathSnapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ps, ok := a.reg.paths[name]
	if !ok {
		return PathSnapshot{}, false
	}
	return snapshotPath(ps), true
}

// Clients returns snapshots of all tracked clients, sorted by id.
func (a *Arbiter) Clients() []ClientSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]ClientSnapshot, 0, len(a.reg.clients))
	for _, cs := range a.reg.clients {
		snap := ClientSnapshot{ID: string(cs.id), Paths: make([]string, 0, len(cs.paths))}
		for p := range cs.paths {
			snap.Paths = append(snap.Paths, p)
		}
		sort.Strings(snap.Paths)
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Stats returns registry occupancy counters.
func (a *Arbiter) Stats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()

	st := Stats{Paths: len(a.reg.paths), Clients: len(a.reg.clients)}
	for _, ps := range a.reg.paths {
		st.Subscribers += ps.subscribers
		if ps.hasPublisher() {
			st.Publishers++
		}
	}
	return st
}

func snapshotPath(ps *pathState) PathSnapshot {
	snap := PathSnapshot{
		Name:             ps.name,
		Clients:          make([]string, 0, len(ps.clients)),
		Subscribers:      ps.subscribers,
		Publisher:        string(ps.publisher),
		PublisherSession: ps.publisherSession,
	}
	for id := range ps.clients {
		snap.Clients = append(snap.Clients, string(id))
	}
	sort.Strings(snap.Clients)
	return snap
}
