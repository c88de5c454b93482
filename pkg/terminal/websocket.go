package terminal

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"

	"github.com/antibyte/picobasic/pkg/configuration"
	"github.com/antibyte/picobasic/pkg/logger"
	"github.com/antibyte/picobasic/pkg/shared"

	"github.com/gorilla/websocket"
)

// See the [Network] section of settings.cfg.
func getWriteWait() time.Duration {
	return configuration.GetDuration("Network", "write_wait_timeout", 10*time.Second)
}

func getPongWait() time.Duration {
	return configuration.GetDuration("Network", "pong_timeout", 90*time.Second)
}

func getPingPeriod() time.Duration {
	return (getPongWait() * 9) / 10
}

func getMaxMessageSize() int64 {
	return int64(configuration.GetInt("Network", "max_message_size_kb", 64) * 1024)
}

const (
	sendBuffer  = 256
	inputBuffer = 1024

	// Program output is sent once this much is pending or this much time has
	// passed since the last frame.
	outputChunk    = 4096
	outputInterval = 50 * time.Millisecond
)

// Client is one attached console.
type Client struct {
	conn      *websocket.Conn
	send      chan []byte
	input     chan string
	handler   *Handler
	ipAddress string
	sessionID string
	session   Session
	out       *outputWriter
	shutdown  chan struct{}
	closeOnce sync.Once
}

func newClient(h *Handler, ipAddress, sessionID string) *Client {
	c := &Client{
		send:      make(chan []byte, sendBuffer),
		input:     make(chan string, inputBuffer),
		handler:   h,
		ipAddress: ipAddress,
		sessionID: sessionID,
		shutdown:  make(chan struct{}),
	}
	c.out = &outputWriter{client: c}
	return c
}

// close stops a running program and tears the connection down. It is safe
// to call from every goroutine of the client.
func (c *Client) close() {
	c.closeOnce.Do(func() {
		if c.session.Cancel != nil {
			c.session.Cancel.Cancel()
		}
		close(c.shutdown)
		c.handler.clients.RemoveClient(c.sessionID)
		if c.conn != nil {
			c.conn.Close()
		}
		logger.Info(logger.AreaConsole, "Console detached from %s, session %s", c.ipAddress, c.sessionID)
	})
}

// sendMessage queues msg and waits for room unless the client is gone.
func (c *Client) sendMessage(msg shared.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error(logger.AreaConsole, "Error marshalling message: %v", err)
		return
	}
	select {
	case c.send <- data:
	case <-c.shutdown:
	}
}

// trySendMessage queues msg only when there is room. The read pump uses it
// so that a slow client never delays a break request.
func (c *Client) trySendMessage(msg shared.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

// runCommands executes queued input lines one at a time.
func (c *Client) runCommands() {
	c.sendMessage(shared.Message{Type: shared.MessageTypeSession, SessionID: c.sessionID})
	c.sendMessage(shared.Prompt(configuration.GetString("Console", "prompt", "> ")))
	c.session.Shell.Banner()
	c.out.Flush()

	for {
		select {
		case line := <-c.input:
			select {
			case <-c.shutdown:
				return
			default:
			}
			// Input stays disabled in the frontend while the command runs;
			// the read pump still accepts break requests. A break arriving
			// from here on applies to this line.
			c.session.Cancel.Reset()
			c.sendMessage(shared.InputControl(false))
			c.session.Shell.Execute(line)
			c.out.Flush()
			c.sendMessage(shared.InputControl(true))
		case <-c.shutdown:
			return
		}
	}
}

// readPump turns frames into console lines. A break request is acted on
// here, so it takes effect while a program is running.
func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(getMaxMessageSize())
	c.conn.SetReadDeadline(time.Now().Add(getPongWait()))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(getPongWait()))
		return nil
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				logger.Warn(logger.AreaConsole, "Unexpected close for client %s: %v", c.ipAddress, err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		msg := shared.ParseMessage(data)
		if msg.Type != shared.MessageTypeText {
			continue
		}
		if isBreak(msg) {
			logger.Debug(logger.AreaConsole, "Break requested by session %s", c.sessionID)
			c.session.Cancel.Cancel()
			continue
		}

		for _, line := range splitLines(msg.Content) {
			select {
			case c.input <- line:
			default:
				logger.Warn(logger.AreaConsole, "Input queue full for session %s", c.sessionID)
				c.trySendMessage(shared.Message{Type: shared.MessageTypeText, Content: "ERROR: input queue full"})
			}
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(getPingPeriod())
	defer func() {
		ticker.Stop()
		c.close()
	}()
	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				logger.Debug(logger.AreaConsole, "Failed to send ping to client %s: %v", c.ipAddress, err)
				return
			}
		case <-c.shutdown:
			c.conn.SetWriteDeadline(time.Now().Add(getWriteWait()))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// outputWriter is the console output of a session. It batches the small
// writes of a running program into text frames.
type outputWriter struct {
	client    *Client
	mu        sync.Mutex
	buf       bytes.Buffer
	lastFlush time.Time
}

func (w *outputWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf.Write(p)
	if w.buf.Len() >= outputChunk || time.Since(w.lastFlush) >= outputInterval {
		w.flushLocked()
	}
	return len(p), nil
}

// Flush sends pending output.
func (w *outputWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushLocked()
}

func (w *outputWriter) flushLocked() {
	w.lastFlush = time.Now()
	if w.buf.Len() == 0 {
		return
	}
	w.client.sendMessage(shared.Message{
		Type:      shared.MessageTypeText,
		Content:   w.buf.String(),
		NoNewline: true,
	})
	w.buf.Reset()
}
