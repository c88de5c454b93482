package runner

import (
	"os"
	"os/signal"
	"sync/atomic"
)

// CancelToken is the break flag of a session. Cancel is called by the input
// side (SignalPoller, the connection's read pump, or the connection closing).
// Reset is called only by the code that accepts the next input line, before
// handing it to the shell, so a break requested after that point is never
// lost. The Supervisor only reads the token, once per step.
type CancelToken struct {
	flag atomic.Bool
}

// Cancel requests a break of the current run.
func (c *CancelToken) Cancel() { c.flag.Store(true) }

// Reset clears a pending break.
func (c *CancelToken) Reset() { c.flag.Store(false) }

// Cancelled reports whether a break was requested.
func (c *CancelToken) Cancelled() bool { return c.flag.Load() }

// Poller services input between interpreter steps.
type Poller interface {
	Poll()
}

// NopPoller is used when input arrives on its own goroutine.
type NopPoller struct{}

func (NopPoller) Poll() {}

// SignalPoller turns pending interrupt signals into a cancelled token. Poll
// never blocks.
type SignalPoller struct {
	token   *CancelToken
	signals chan os.Signal
}

// NewSignalPoller starts relaying os.Interrupt to token. Call Stop to
// restore the default signal handling.
func NewSignalPoller(token *CancelToken) *SignalPoller {
	p := &SignalPoller{
		token:   token,
		signals: make(chan os.Signal, 1),
	}
	signal.Notify(p.signals, os.Interrupt)
	return p
}

func (p *SignalPoller) Poll() {
	select {
	case <-p.signals:
		p.token.Cancel()
	default:
	}
}

// Drain discards interrupts that arrived while no program was running and
// clears the token.
func (p *SignalPoller) Drain() {
	defer p.token.Reset()
	for {
		select {
		case <-p.signals:
		default:
			return
		}
	}
}

// Stop stops relaying signals.
func (p *SignalPoller) Stop() {
	signal.Stop(p.signals)
}
