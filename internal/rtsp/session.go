package rtsp

import (
	"sync"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/google/uuid"

	"github.com/grzechuj/RtspRestreamServer/internal/arbiter"
)

// conn is the server-side identity of one protocol connection. The client id
// is opaque and minted at accept time, never derived from anything the peer
// sends.
type conn struct {
	id         arbiter.ClientID
	remoteAddr string
}

func newConn(remoteAddr string) *conn {
	return &conn{
		id:         arbiter.ClientID(uuid.NewString()),
		remoteAddr: remoteAddr,
	}
}

// session tracks one RTSP session (SETUP..TEARDOWN) on a connection.
type session struct {
	conn *conn
	id   string

	mu         sync.Mutex
	path       string
	user       string
	playing    bool
	publishing bool
	stream     *gortsplib.ServerStream
}

func newSession(c *conn) *session {
	return &session{
		conn: c,
		id:   uuid.NewString(),
	}
}

func (se *session) bind(path, user string) {
	se.mu.Lock()
	se.path = path
	se.user = user
	se.mu.Unlock()
}

func (se *session) snapshot() (path, user string, playing, publishing bool) {
	se.mu.Lock()
	defer se.mu.Unlock()
	return se.path, se.user, se.playing, se.publishing
}
