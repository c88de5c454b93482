// Package terminal serves the BASIC console over websockets. Every
// connection owns its own program, supervisor and break flag.
package terminal

import (
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/antibyte/picobasic/pkg/auth"
	"github.com/antibyte/picobasic/pkg/logger"
	"github.com/antibyte/picobasic/pkg/program"
	"github.com/antibyte/picobasic/pkg/runner"
	"github.com/antibyte/picobasic/pkg/shared"
	"github.com/antibyte/picobasic/pkg/shell"
	"github.com/antibyte/picobasic/pkg/storage"
	"github.com/antibyte/picobasic/pkg/tinybasic"

	"github.com/gorilla/websocket"
)

// Session is the console state of one connection.
type Session struct {
	Shell  *shell.Shell
	Cancel *runner.CancelToken
}

// SessionFactory builds the Session of a new connection writing to out.
type SessionFactory func(out io.Writer) Session

// NewSessionFactory returns a factory for sessions that share resolver but
// nothing else. Input arrives on the read pump, so the supervisor does not
// poll.
func NewSessionFactory(resolver *storage.Resolver, maxLines int, opts runner.Options) SessionFactory {
	return func(out io.Writer) Session {
		cancel := &runner.CancelToken{}
		supervisor := runner.NewSupervisor(tinybasic.New(out), runner.NopPoller{}, cancel, opts)
		return Session{
			Shell:  shell.New(program.NewTable(maxLines), resolver, supervisor, out),
			Cancel: cancel,
		}
	}
}

// Handler upgrades HTTP requests to console connections.
type Handler struct {
	upgrader   websocket.Upgrader
	newSession SessionFactory
	clients    *ClientManager
}

// NewHandler returns a Handler creating sessions with factory.
func NewHandler(factory SessionFactory) *Handler {
	return &Handler{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		newSession: factory,
		clients:    NewClientManager(),
	}
}

// ClientCount returns the number of attached consoles.
func (h *Handler) ClientCount() int { return h.clients.GetClientCount() }

// HandleWebSocket attaches a console. The session ID comes from the request
// context when the request was authenticated.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ipAddress := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ipAddress); err == nil {
		ipAddress = host
	}
	if forwardedFor := r.Header.Get("X-Forwarded-For"); forwardedFor != "" {
		ipAddress = strings.TrimSpace(strings.Split(forwardedFor, ",")[0])
	}

	if err := h.clients.CheckRateLimit(ipAddress); err != nil {
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return
	}

	client := newClient(h, ipAddress, auth.SessionIDFromContext(r.Context()))
	if err := h.clients.AddClient(client.sessionID, client); err != nil {
		logger.Warn(logger.AreaConsole, "Console for %s rejected: %v", ipAddress, err)
		http.Error(w, "Server overloaded", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.clients.RemoveClient(client.sessionID)
		logger.Error(logger.AreaConsole, "WebSocket upgrade failed for %s: %v", ipAddress, err)
		return
	}
	client.conn = conn
	client.session = h.newSession(client.out)

	logger.Info(logger.AreaConsole, "Console attached from %s, session %s (%d active)",
		ipAddress, client.sessionID, h.clients.GetClientCount())

	go client.writePump()
	go client.readPump()
	go client.runCommands()
}

// ServeHTTP makes h usable as an http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.HandleWebSocket(w, r)
}

// Close detaches every console.
func (h *Handler) Close() {
	for _, c := range h.clients.Clients() {
		c.close()
	}
}

// splitLines turns one client frame into console lines. A pasted program
// arrives as a single frame.
func splitLines(content string) []string {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}
	return lines
}

func isBreak(msg shared.Message) bool {
	return strings.TrimSpace(msg.Content) == shared.BreakRequest
}
