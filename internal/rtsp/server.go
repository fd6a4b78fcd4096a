// Package rtsp runs the RTSP front end: it accepts connections, enforces
// authentication and admission, and relays RTP from each publisher to the
// subscribers of its path.
package rtsp

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/pion/rtp"

	"github.com/grzechuj/RtspRestreamServer/internal/arbiter"
	"github.com/grzechuj/RtspRestreamServer/internal/auth"
	"github.com/grzechuj/RtspRestreamServer/internal/errors"
	"github.com/grzechuj/RtspRestreamServer/internal/logger"
)

// Config holds the RTSP front end settings.
type Config struct {
	// Listen is the RTSP listen address, e.g. ":8554".
	Listen string
	// MaxPaths caps the number of concurrently published paths.
	// Zero means unlimited.
	MaxPaths uint
}

// Server is the RTSP front end. It translates protocol callbacks into
// arbiter events and serves published streams to subscribers.
type Server struct {
	cfg   Config
	arb   *arbiter.Arbiter
	authz auth.Authorizer
	log   *slog.Logger
	srv   *gortsplib.Server

	mu       sync.Mutex
	conns    map[*gortsplib.ServerConn]*conn
	sessions map[*gortsplib.ServerSession]*session
	streams  map[string]*gortsplib.ServerStream
}

// New creates an unstarted RTSP server.
func New(cfg Config, arb *arbiter.Arbiter, authz auth.Authorizer) *Server {
	s := &Server{
		cfg:      cfg,
		arb:      arb,
		authz:    authz,
		log:      logger.Logger().With("component", "rtsp"),
		conns:    make(map[*gortsplib.ServerConn]*conn),
		sessions: make(map[*gortsplib.ServerSession]*session),
		streams:  make(map[string]*gortsplib.ServerStream),
	}
	s.srv = &gortsplib.Server{
		Handler:     s,
		RTSPAddress: cfg.Listen,
	}
	return s
}

// Start begins accepting RTSP connections.
func (s *Server) Start() error {
	if err := s.srv.Start(); err != nil {
		return fmt.Errorf("rtsp listen %s: %w", s.cfg.Listen, err)
	}
	s.log.Info("RTSP server listening", "addr", s.cfg.Listen)
	return nil
}

// Close stops the server and drops all connections.
func (s *Server) Close() {
	s.srv.Close()
}

// OnConnOpen implements gortsplib.ServerHandlerOnConnOpen.
func (s *Server) OnConnOpen(ctx *gortsplib.ServerHandlerOnConnOpenCtx) {
	c := newConn(ctx.Conn.NetConn().RemoteAddr().String())

	s.mu.Lock()
	s.conns[ctx.Conn] = c
	s.mu.Unlock()

	s.arb.ConnectionOpened(c.id)
	logger.WithClient(s.log, string(c.id), c.remoteAddr).Info("connection opened")
}

// OnConnClose implements gortsplib.ServerHandlerOnConnClose.
func (s *Server) OnConnClose(ctx *gortsplib.ServerHandlerOnConnCloseCtx) {
	s.mu.Lock()
	c, ok := s.conns[ctx.Conn]
	delete(s.conns, ctx.Conn)
	s.mu.Unlock()
	if !ok {
		return
	}

	s.arb.ConnectionClosed(c.id)
	logger.WithClient(s.log, string(c.id), c.remoteAddr).Info("connection closed",
		"reason", fmt.Sprint(ctx.Error))
}

// OnSessionOpen implements gortsplib.ServerHandlerOnSessionOpen.
func (s *Server) OnSessionOpen(ctx *gortsplib.ServerHandlerOnSessionOpenCtx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.conns[ctx.Conn]
	if !ok {
		return
	}
	s.sessions[ctx.Session] = newSession(c)
}

// OnSessionClose implements gortsplib.ServerHandlerOnSessionClose.
// It covers both explicit TEARDOWN and sessions reaped with their connection;
// either way the session's role on its path must be released. Path
// detachment itself happens when the owning connection closes.
func (s *Server) OnSessionClose(ctx *gortsplib.ServerHandlerOnSessionCloseCtx) {
	s.mu.Lock()
	se, ok := s.sessions[ctx.Session]
	delete(s.sessions, ctx.Session)
	s.mu.Unlock()
	if !ok {
		return
	}

	path, _, playing, publishing := se.snapshot()
	if !playing && !publishing {
		return
	}

	s.arb.Teardown(se.conn.id, path, se.id)

	if publishing {
		s.dropStream(path)
	}
}

// OnDescribe implements gortsplib.ServerHandlerOnDescribe.
func (s *Server) OnDescribe(ctx *gortsplib.ServerHandlerOnDescribeCtx,
) (*base.Response, *gortsplib.ServerStream, error) {
	c := s.lookupConn(ctx.Conn)
	if c == nil {
		return &base.Response{StatusCode: base.StatusInternalServerError}, nil, fmt.Errorf("unknown connection")
	}
	log := logger.WithPath(logger.WithClient(s.log, string(c.id), c.remoteAddr), ctx.Path)

	if res, err := s.checkAuth(ctx.Request, auth.ActionRead, ctx.Path); res != nil {
		log.Info("describe denied", "error", err)
		return res, nil, err
	}

	if err := s.arb.PreSubscribe(c.id, ctx.Path); err != nil {
		log.Info("describe rejected", "error", err)
		return admissionResponse(err), nil, err
	}

	stream := s.lookupStream(ctx.Path)
	if stream == nil {
		return &base.Response{StatusCode: base.StatusNotFound}, nil, nil
	}
	return &base.Response{StatusCode: base.StatusOK}, stream, nil
}

// OnAnnounce implements gortsplib.ServerHandlerOnAnnounce.
func (s *Server) OnAnnounce(ctx *gortsplib.ServerHandlerOnAnnounceCtx) (*base.Response, error) {
	c := s.lookupConn(ctx.Conn)
	se := s.lookupSession(ctx.Session)
	if c == nil || se == nil {
		return &base.Response{StatusCode: base.StatusInternalServerError}, fmt.Errorf("unknown connection")
	}
	log := logger.WithPath(logger.WithClient(s.log, string(c.id), c.remoteAddr), ctx.Path)

	user, _ := credentials(ctx.Request)
	if res, err := s.checkAuth(ctx.Request, auth.ActionWrite, ctx.Path); res != nil {
		log.Info("announce denied", "user", user, "error", err)
		return res, err
	}

	if err := s.checkPathBudget(ctx.Path); err != nil {
		log.Info("announce rejected", "error", err)
		return &base.Response{StatusCode: base.StatusNotEnoughBandwidth}, err
	}

	if err := s.arb.PreStartPublish(c.id, ctx.Path); err != nil {
		log.Info("announce rejected", "error", err)
		return admissionResponse(err), err
	}

	se.bind(ctx.Path, user)
	log.Info("announce accepted", "user", user)
	return &base.Response{StatusCode: base.StatusOK}, nil
}

// OnSetup implements gortsplib.ServerHandlerOnSetup.
func (s *Server) OnSetup(ctx *gortsplib.ServerHandlerOnSetupCtx,
) (*base.Response, *gortsplib.ServerStream, error) {
	c := s.lookupConn(ctx.Conn)
	se := s.lookupSession(ctx.Session)
	if c == nil || se == nil {
		return &base.Response{StatusCode: base.StatusInternalServerError}, nil, fmt.Errorf("unknown connection")
	}

	// Record-side SETUP: the path was validated at ANNOUNCE.
	switch ctx.Session.State() {
	case gortsplib.ServerSessionStateInitial, gortsplib.ServerSessionStatePrePlay:
	default:
		return &base.Response{StatusCode: base.StatusOK}, nil, nil
	}

	log := logger.WithPath(logger.WithClient(s.log, string(c.id), c.remoteAddr), ctx.Path)

	user, _ := credentials(ctx.Request)
	if res, err := s.checkAuth(ctx.Request, auth.ActionRead, ctx.Path); res != nil {
		log.Info("setup denied", "user", user, "error", err)
		return res, nil, err
	}

	if err := s.arb.PreSubscribe(c.id, ctx.Path); err != nil {
		log.Info("setup rejected", "error", err)
		return admissionResponse(err), nil, err
	}

	stream := s.lookupStream(ctx.Path)
	if stream == nil {
		return &base.Response{StatusCode: base.StatusNotFound}, nil, nil
	}

	se.bind(ctx.Path, user)
	return &base.Response{StatusCode: base.StatusOK}, stream, nil
}

// OnPlay implements gortsplib.ServerHandlerOnPlay.
func (s *Server) OnPlay(ctx *gortsplib.ServerHandlerOnPlayCtx) (*base.Response, error) {
	se := s.lookupSession(ctx.Session)
	if se == nil {
		return &base.Response{StatusCode: base.StatusInternalServerError}, fmt.Errorf("unknown session")
	}

	se.mu.Lock()
	first := !se.playing
	se.playing = true
	path, user := se.path, se.user
	se.mu.Unlock()

	// PLAY after PAUSE re-enters the play state without a new subscription.
	if first {
		s.arb.SubscribeStarted(se.conn.id, user, path)
		logger.WithPath(logger.WithClient(s.log, string(se.conn.id), se.conn.remoteAddr), path).
			Info("subscriber started", "user", user)
	}
	return &base.Response{StatusCode: base.StatusOK}, nil
}

// OnRecord implements gortsplib.ServerHandlerOnRecord.
func (s *Server) OnRecord(ctx *gortsplib.ServerHandlerOnRecordCtx) (*base.Response, error) {
	se := s.lookupSession(ctx.Session)
	if se == nil {
		return &base.Response{StatusCode: base.StatusInternalServerError}, fmt.Errorf("unknown session")
	}

	path, user, _, publishing := se.snapshot()
	log := logger.WithPath(logger.WithClient(s.log, string(se.conn.id), se.conn.remoteAddr), path)

	if !publishing {
		// The arbiter decides the race between publishers that both passed
		// the ANNOUNCE admission check. A loser must not touch the stream
		// map or mark its session publishing.
		if err := s.arb.PublishStarted(se.conn.id, user, path, se.id); err != nil {
			log.Info("record rejected", "error", err)
			return admissionResponse(err), err
		}

		se.mu.Lock()
		se.publishing = true
		se.mu.Unlock()

		stream := &gortsplib.ServerStream{
			Server: s.srv,
			Desc:   ctx.Session.AnnouncedDescription(),
		}
		if err := stream.Initialize(); err != nil {
			// The session close that follows this refusal tears the
			// publisher record back down.
			log.Error("stream setup failed", "error", err)
			return &base.Response{StatusCode: base.StatusInternalServerError}, err
		}

		s.mu.Lock()
		s.streams[path] = stream
		s.mu.Unlock()

		se.mu.Lock()
		se.stream = stream
		se.mu.Unlock()

		log.Info("publisher started", "user", user)

		ctx.Session.OnPacketRTPAny(func(medi *description.Media, _ format.Format, pkt *rtp.Packet) {
			stream.WritePacketRTP(medi, pkt)
		})
	}

	return &base.Response{StatusCode: base.StatusOK}, nil
}

func (s *Server) lookupConn(rc *gortsplib.ServerConn) *conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns[rc]
}

func (s *Server) lookupSession(rs *gortsplib.ServerSession) *session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[rs]
}

func (s *Server) lookupStream(path string) *gortsplib.ServerStream {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streams[path]
}

func (s *Server) dropStream(path string) {
	s.mu.Lock()
	stream, ok := s.streams[path]
	delete(s.streams, path)
	s.mu.Unlock()
	if ok {
		stream.Close()
	}
}

// checkPathBudget rejects publishing a new path once MaxPaths is reached.
func (s *Server) checkPathBudget(path string) error {
	if s.cfg.MaxPaths == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.streams[path]; ok {
		return nil
	}
	if uint(len(s.streams)) >= s.cfg.MaxPaths {
		return fmt.Errorf("path budget exhausted (%d)", s.cfg.MaxPaths)
	}
	return nil
}

// checkAuth authenticates the request's credentials and authorizes action on
// path. Returns a non-nil response when the request must be refused.
func (s *Server) checkAuth(req *base.Request, action auth.Action, path string) (*base.Response, error) {
	user, pass := credentials(req)
	if err := s.authz.Authenticate(user, pass); err != nil {
		return unauthorizedResponse(), err
	}
	if err := s.authz.Authorize(user, action, path); err != nil {
		return unauthorizedResponse(), err
	}
	return nil, nil
}

func unauthorizedResponse() *base.Response {
	return &base.Response{
		StatusCode: base.StatusUnauthorized,
		Header: base.Header{
			"WWW-Authenticate": base.HeaderValue{`Basic realm="restream"`},
		},
	}
}

// admissionResponse maps an arbiter rejection to an RTSP status.
func admissionResponse(err error) *base.Response {
	switch {
	case errors.IsLimitExceeded(err):
		return &base.Response{StatusCode: base.StatusNotEnoughBandwidth}
	case errors.IsPublisherConflict(err):
		return &base.Response{StatusCode: base.StatusServiceUnavailable}
	default:
		return &base.Response{StatusCode: base.StatusBadRequest}
	}
}
