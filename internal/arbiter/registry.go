package arbiter

// Path/client registries
// ----------------------
// Two indexes over the same set of (client, path) associations: paths keyed
// by name holding the clients that reference them, and clients keyed by id
// holding the paths they reference. The reverse index exists so that an
// abrupt connection close can visit every path the client touched in O(refs)
// instead of scanning the whole path table.
//
// Every mutation of the association goes through attach/detach so the
// bidirectional invariant (client listed on path ⇔ path listed on client)
// is enforced in exactly one place. The registry itself is not safe for
// concurrent use; the owning Arbiter serializes all access behind its mutex.

import (
	"fmt"

	rserrors "github.com/grzechuj/RtspRestreamServer/internal/errors"
)

// ClientID is an opaque identifier for a protocol-level connection. It is
// generated by the protocol engine (a UUID in practice), never derived from
// a connection pointer or socket address.
type ClientID string

// pathState aggregates everything the arbiter tracks per stream path.
type pathState struct {
	name             string
	clients          map[ClientID]struct{}
	subscribers      int
	publisher        ClientID // zero value when no publisher is active
	publisherSession string
}

func (p *pathState) hasPublisher() bool {
	return p.publisher != "" || p.publisherSession != ""
}

// clientState is the reverse index entry: the paths a client references.
type clientState struct {
	id    ClientID
	paths map[string]struct{}
}

type registry struct {
	clients map[ClientID]*clientState
	paths   map[string]*pathState
}

func newRegistry() *registry {
	return &registry{
		clients: make(map[ClientID]*clientState),
		paths:   make(map[string]*pathState),
	}
}

// attach ensures both indexes contain the (client, path) association,
// creating entries lazily. Idempotent. Returns the path state.
func (r *registry) attach(client ClientID, path string) *pathState {
	cs, ok := r.clients[client]
	if !ok {
		cs = &clientState{id: client, paths: make(map[string]struct{})}
		r.clients[client] = cs
	}
	cs.paths[path] = struct{}{}

	ps, ok := r.paths[path]
	if !ok {
		ps = &pathState{name: path, clients: make(map[ClientID]struct{})}
		r.paths[path] = ps
	}
	ps.clients[client] = struct{}{}
	return ps
}

// detach removes the association from both indexes. If the path's client set
// becomes empty the path entry is deleted in the same operation; the caller
// must have already resolved any pending lifecycle transition for it. The
// client entry is kept even when its path set empties: clients are destroyed
// only on connection close.
func (r *registry) detach(client ClientID, path string) {
	if cs, ok := r.clients[client]; ok {
		delete(cs.paths, path)
	}
	ps, ok := r.paths[path]
	if !ok {
		return
	}
	delete(ps.clients, client)
	if len(ps.clients) == 0 {
		delete(r.paths, path)
	}
}

// checkConsistent verifies the bidirectional invariant and the "no empty
// path" rule. Intended for tests and debug assertions.
func (r *registry) checkConsistent() error {
	for name, ps := range r.paths {
		if len(ps.clients) == 0 {
			return rserrors.NewConsistency("registry.check", fmt.Errorf("path %q has empty client set", name))
		}
		for id := range ps.clients {
			cs, ok := r.clients[id]
			if !ok {
				return rserrors.NewConsistency("registry.check", fmt.Errorf("path %q references unknown client %s", name, id))
			}
			if _, ok := cs.paths[name]; !ok {
				return rserrors.NewConsistency("registry.check", fmt.Errorf("client %s missing reverse reference to path %q", id, name))
			}
		}
		if ps.hasPublisher() {
			if _, ok := ps.clients[ps.publisher]; !ok {
				return rserrors.NewConsistency("registry.check", fmt.Errorf("path %q publisher %s not in client set", name, ps.publisher))
			}
		}
		if ps.subscribers < 0 {
			return rserrors.NewConsistency("registry.check", fmt.Errorf("path %q has negative subscriber count", name))
		}
	}
	for id, cs := range r.clients {
		for name := range cs.paths {
			ps, ok := r.paths[name]
			if !ok {
				return rserrors.NewConsistency("registry.check", fmt.Errorf("client %s references unknown path %q", id, name))
			}
			if _, ok := ps.clients[id]; !ok {
				return rserrors.NewConsistency("registry.check", fmt.Errorf("path %q missing reverse reference to client %s", name, id))
			}
		}
	}
	return nil
}
