// Package auth implements the authorization service consulted by the
// protocol engine. The arbitration core never calls it directly; the engine
// authenticates a connection, derives a user identity string and asks for a
// per-action decision before letting a request proceed.
package auth

import (
	"errors"

	"github.com/grzechuj/RtspRestreamServer/internal/config"
)

// Action is what a client asks to do with a path.
type Action int

const (
	// ActionAccess covers DESCRIBE/OPTIONS style discovery of a path.
	ActionAccess Action = iota
	// ActionRead covers subscribing (playing) a path.
	ActionRead
	// ActionWrite covers publishing (recording) to a path.
	ActionWrite
)

func (a Action) String() string {
	switch a {
	case ActionAccess:
		return "access"
	case ActionRead:
		return "read"
	case ActionWrite:
		return "write"
	}
	return "unknown"
}

// AnonymousUser is the identity assigned to unauthenticated clients.
const AnonymousUser = ""

var (
	// ErrInvalidCredentials rejects an authentication attempt.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUnauthorized rejects an action on a path.
	ErrUnauthorized = errors.New("unauthorized")
)

// Authorizer makes per-connection and per-action decisions.
type Authorizer interface {
	// Authenticate verifies the user/password pair. The anonymous pair
	// ("", "") is acceptable when the implementation permits it.
	Authenticate(user, pass string) error
	// Authorize decides whether user may perform action on path.
	Authorize(user string, action Action, path string) error
}

// AllowAll authorizes everything. Used when no auth section is configured.
type AllowAll struct{}

func (AllowAll) Authenticate(string, string) error      { return nil }
func (AllowAll) Authorize(string, Action, string) error { return nil }

type userEntry struct {
	password string
	publish  []string
	read     []string
}

// Static is a fixed user table from the configuration file.
type Static struct {
	allowAnonymous bool
	users          map[string]*userEntry
}

// NewStatic builds a Static authorizer from the auth configuration section.
func NewStatic(cfg config.AuthConfig) *Static {
	s := &Static{
		allowAnonymous: cfg.AllowAnonymous,
		users:          make(map[string]*userEntry, len(cfg.Users)),
	}
	for _, u := range cfg.Users {
		s.users[u.Name] = &userEntry{password: u.Password, publish: u.Publish, read: u.Read}
	}
	return s
}

func (s *Static) Authenticate(user, pass string) error {
	if user == AnonymousUser {
		if s.allowAnonymous && pass == "" {
			return nil
		}
		return ErrInvalidCredentials
	}
	e, ok := s.users[user]
	if !ok || e.password != pass {
		return ErrInvalidCredentials
	}
	return nil
}

func (s *Static) Authorize(user string, action Action, path string) error {
	if user == AnonymousUser {
		// Anonymous clients may only view, and only when permitted.
		if s.allowAnonymous && (action == ActionAccess || action == ActionRead) {
			return nil
		}
		return ErrUnauthorized
	}
	e, ok := s.users[user]
	if !ok {
		return ErrUnauthorized
	}
	switch action {
	case ActionWrite:
		if matchPath(e.publish, path) {
			return nil
		}
	case ActionRead, ActionAccess:
		// Publish rights imply visibility of the user's own paths.
		if matchPath(e.read, path) || matchPath(e.publish, path) {
			return nil
		}
	}
	return ErrUnauthorized
}

// matchPath reports whether list permits path. "*" matches everything;
// other entries are exact names.
func matchPath(list []string, path string) bool {
	for _, entry := range list {
		if entry == "*" || entry == path {
			return true
		}
	}
	return false
}
