package hostws

import (
	"context"
	"errors"
	"fmt"
	"mediabridge/internal/media"
	"mediabridge/internal/platform"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	DefaultQueryTimeout = 2 * time.Second

	readLimit     = 64 * 1024
	readTimeout   = 60 * time.Second
	writeTimeout  = 5 * time.Second
	pingInterval  = 30 * time.Second
	commandWindow = 5 * time.Second
)

var ErrMissingField = errors.New("frame is missing a required field")

// Commander receives host commands. Unknown frame types go to Forward.
type Commander interface {
	RefreshSessions(ctx context.Context) error
	Skip(ctx context.Context, appID string) error
	Mute(ctx context.Context, appID string) error
	Unmute(ctx context.Context, appID string) error
	Shutdown(ctx context.Context) error
	SetAllowList(ctx context.Context, appIDs []string) error
	SetAlbumArt(ctx context.Context, enabled bool) error
	Notify(ctx context.Context, title string, body string) error
	LaunchFilePicker(ctx context.Context, requestID string, req platform.FileRequest) error
	Forward(command string, arg string)
}

// Server is the host boundary over WebSocket. It implements session.Sink:
// outbound events are broadcast to every connected host.
type Server struct {
	commands     Commander
	queryTimeout time.Duration
	upgrader     websocket.Upgrader

	mu       sync.Mutex
	clients  map[*client]struct{}
	sessions []media.SessionInfo
	dark     *bool

	pendingMu sync.Mutex
	pending   map[string]chan bool
}

type client struct {
	conn      *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

func NewServer(commands Commander, queryTimeout time.Duration) *Server {
	if queryTimeout <= 0 {
		queryTimeout = DefaultQueryTimeout
	}
	return &Server{
		commands:     commands,
		queryTimeout: queryTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		clients: make(map[*client]struct{}),
		pending: make(map[string]chan bool),
	}
}

// checkOrigin admits native hosts (no Origin) and pages served from the
// same host or from localhost.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		log.Debug().Str("origin", origin).Err(err).Msg("hostws: invalid origin")
		return false
	}
	if originURL.Host == r.Host {
		return true
	}
	host := originURL.Hostname()
	if host == "localhost" || host == "127.0.0.1" || host == "::1" {
		return true
	}

	log.Warn().Str("origin", origin).Msg("hostws: rejected connection")
	return false
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

// ListenAndServe serves until ctx is done, then closes every connection.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		errs <- httpServer.Serve(listener)
	}()
	log.Info().Str("addr", listener.Addr().String()).Msg("hostws: listening")

	select {
	case err := <-errs:
		s.closeClients()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve host bridge: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	s.closeClients()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown host bridge: %w", err)
	}
	return nil
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("hostws: upgrade failed")
		return
	}

	c := &client{conn: conn}
	conn.SetReadLimit(readLimit)
	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	s.mu.Lock()
	sessions := append([]media.SessionInfo{}, s.sessions...)
	dark := s.dark
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	log.Info().Str("remote", r.RemoteAddr).Msg("hostws: host connected")

	stopPing := make(chan struct{})
	defer func() {
		close(stopPing)
		s.removeClient(c)
		log.Info().Str("remote", r.RemoteAddr).Msg("hostws: host disconnected")
	}()
	go c.keepAlive(stopPing)

	if err := c.writeJSON(sessionsFrame{Type: frameSessionsChanged, Sessions: sessions}); err != nil {
		log.Debug().Err(err).Msg("hostws: initial write failed")
		return
	}
	if dark != nil {
		if err := c.writeJSON(darkModeFrame{Type: frameDarkModeChanged, Dark: *dark}); err != nil {
			log.Debug().Err(err).Msg("hostws: initial write failed")
			return
		}
	}

	for {
		var frame hostFrame
		if err := conn.ReadJSON(&frame); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("hostws: read failed")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(readTimeout))

		if err := s.handleFrame(r.Context(), frame); err != nil {
			log.Warn().Err(err).Str("frame", frame.Type).Msg("hostws: command failed")
			_ = c.writeJSON(errorFrame{Type: frameError, Command: frame.Type, Message: err.Error()})
		}
	}
}

func (s *Server) handleFrame(parent context.Context, frame hostFrame) error {
	ctx, cancel := context.WithTimeout(parent, commandWindow)
	defer cancel()

	switch frame.Type {
	case frameSkip, frameMute, frameUnmute:
		if frame.AppID == "" {
			return fmt.Errorf("%s: %w: appId", frame.Type, ErrMissingField)
		}
		switch frame.Type {
		case frameSkip:
			return s.commands.Skip(ctx, frame.AppID)
		case frameMute:
			return s.commands.Mute(ctx, frame.AppID)
		default:
			return s.commands.Unmute(ctx, frame.AppID)
		}
	case frameRefreshSessions:
		return s.commands.RefreshSessions(ctx)
	case frameShutdown:
		return s.commands.Shutdown(ctx)
	case frameSetAllowList:
		return s.commands.SetAllowList(ctx, frame.AppIDs)
	case frameSetAlbumArt:
		if frame.Enabled == nil {
			return fmt.Errorf("%s: %w: enabled", frame.Type, ErrMissingField)
		}
		return s.commands.SetAlbumArt(ctx, *frame.Enabled)
	case frameNotify:
		return s.commands.Notify(ctx, frame.Title, frame.Body)
	case frameLaunchFilePicker:
		if frame.RequestID == "" {
			return fmt.Errorf("%s: %w: requestId", frame.Type, ErrMissingField)
		}
		return s.commands.LaunchFilePicker(ctx, frame.RequestID, platform.FileRequest{
			Save:     frame.Save,
			Title:    frame.Title,
			FileName: frame.FileName,
			Filters:  frame.Filters,
		})
	case frameAllowedReply:
		s.resolve(frame.RequestID, frame.Allowed)
		return nil
	default:
		s.commands.Forward(frame.Type, frame.Arg)
		return nil
	}
}

func (s *Server) SessionsChanged(sessions []media.SessionInfo) {
	snapshot := append([]media.SessionInfo{}, sessions...)

	s.mu.Lock()
	s.sessions = snapshot
	s.mu.Unlock()

	s.broadcast(sessionsFrame{Type: frameSessionsChanged, Sessions: snapshot})
}

func (s *Server) MetadataChanged(identity string, metadata media.MetadataInfo) {
	s.broadcast(metadataFrame{Type: frameMetadataChanged, AppID: identity, Metadata: metadata})
}

func (s *Server) PlaybackStateChanged(identity string, playback media.PlaybackInfo) {
	s.broadcast(playbackFrame{Type: framePlaybackStateChanged, AppID: identity, Playback: playback})
}

func (s *Server) IPCCallback(command string, arg string) {
	s.broadcast(ipcFrame{Type: frameIPC, Command: command, Arg: arg})
}

func (s *Server) FilePicked(requestID string, uri string) {
	s.broadcast(filePickedFrame{Type: frameFilePicked, RequestID: requestID, URI: uri})
}

// DarkModeChanged is remembered so hosts connecting later learn the theme.
func (s *Server) DarkModeChanged(dark bool) {
	s.mu.Lock()
	s.dark = &dark
	s.mu.Unlock()

	s.broadcast(darkModeFrame{Type: frameDarkModeChanged, Dark: dark})
}

// IsAppIDAllowed asks the connected hosts and takes the first answer. No
// host, no answer in time, or a failed write all mean false.
func (s *Server) IsAppIDAllowed(ctx context.Context, identity string) bool {
	if s.clientCount() == 0 {
		return false
	}

	requestID := uuid.NewString()
	reply := make(chan bool, 1)
	s.pendingMu.Lock()
	s.pending[requestID] = reply
	s.pendingMu.Unlock()
	defer func() {
		s.pendingMu.Lock()
		delete(s.pending, requestID)
		s.pendingMu.Unlock()
	}()

	if s.broadcast(queryFrame{Type: frameIsAppIDAllowed, RequestID: requestID, AppID: identity}) == 0 {
		return false
	}

	timer := time.NewTimer(s.queryTimeout)
	defer timer.Stop()

	select {
	case allowed := <-reply:
		return allowed
	case <-timer.C:
		log.Debug().Str("player", identity).Msg("hostws: allow query timed out")
		return false
	case <-ctx.Done():
		return false
	}
}

func (s *Server) resolve(requestID string, allowed bool) {
	s.pendingMu.Lock()
	reply, ok := s.pending[requestID]
	delete(s.pending, requestID)
	s.pendingMu.Unlock()

	if !ok {
		log.Debug().Str("request", requestID).Msg("hostws: reply for unknown query")
		return
	}
	reply <- allowed
}

// broadcast writes frame to every client and reports how many took it.
// Clients that fail a write are dropped.
func (s *Server) broadcast(frame any) int {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	sent := 0
	for _, c := range clients {
		if err := c.writeJSON(frame); err != nil {
			log.Debug().Err(err).Msg("hostws: write failed, dropping host")
			s.removeClient(c)
			continue
		}
		sent++
	}
	return sent
}

func (s *Server) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	c.close()
}

func (s *Server) closeClients() {
	s.mu.Lock()
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clients = make(map[*client]struct{})
	s.mu.Unlock()

	for _, c := range clients {
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"), deadline)
		c.close()
	}
}

func (c *client) writeJSON(frame any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteJSON(frame)
}

func (c *client) keepAlive(stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				log.Debug().Err(err).Msg("hostws: ping failed")
				c.close()
				return
			}
		}
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		_ = c.conn.Close()
	})
}
