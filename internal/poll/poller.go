// Package poll implements the unread-count fallback poller. It exists as
// a correctness backstop for pushes missed while the realtime channel is
// down: each tick fetches only the server's unread counter and triggers a
// full reconciliation when that counter exceeds the locally tracked one.
// Ticks are skipped entirely while the terminal is not focused.
package poll

import (
	"context"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"
)

// State represents the poller lifecycle.
type State int

const (
	Idle State = iota
	Armed
)

// Visibility reports whether the presentation surface is currently
// visible. The app backs this with terminal focus reporting; tests back
// it with a fixed value.
type Visibility interface {
	Visible() bool
}

// VisibleFunc adapts a func to the Visibility interface.
type VisibleFunc func() bool

func (f VisibleFunc) Visible() bool { return f() }

// Counter fetches the server's authoritative unread count.
type Counter interface {
	UnreadCount(ctx context.Context) (int, error)
}

// Target is the slice of the notification center the poller drives.
type Target interface {
	UnreadCount() int
	RecordServerCount(n int)
	Reconcile(ctx context.Context) error
}

// TickResultMsg is a tea.Msg describing the outcome of one poll tick.
type TickResultMsg struct {
	// Skipped is true when the tick did no work (surface not visible).
	Skipped bool

	// ServerCount is the fetched unread counter (when not skipped).
	ServerCount int

	// Reconciled is true when drift was detected and a reconciliation
	// ran successfully; NewArrivals is the observed growth.
	Reconciled  bool
	NewArrivals int

	// Err holds the tick's failure, if any. FirstFailure marks the
	// first error of a consecutive run so the UI can mention it once
	// and stay silent until recovery.
	Err          error
	FirstFailure bool
}

// tickTimeout bounds a single count fetch plus reconciliation.
const tickTimeout = 30 * time.Second

// Poller periodically compares the server's unread count against local
// state while visible, reconciling on growth. The `>` comparison means a
// shrinking server count (caused by this client's own mark-read calls)
// never triggers work; only genuine new arrivals do.
type Poller struct {
	counter  Counter
	target   Target
	vis      Visibility
	interval time.Duration
	log      *zap.SugaredLogger

	resultCh  chan TickResultMsg
	triggerCh chan struct{}
	stopCh    chan struct{}

	mu      sync.Mutex
	state   State
	failing bool
}

// New creates a Poller. A non-positive interval defaults to 12s.
func New(counter Counter, target Target, vis Visibility, interval time.Duration, log *zap.SugaredLogger) *Poller {
	if interval <= 0 {
		interval = 12 * time.Second
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Poller{
		counter:   counter,
		target:    target,
		vis:       vis,
		interval:  interval,
		log:       log,
		resultCh:  make(chan TickResultMsg, 16),
		triggerCh: make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
	}
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Start arms the poller and returns a command that subscribes to tick
// results. Starting an armed poller is a no-op.
func (p *Poller) Start() tea.Cmd {
	p.mu.Lock()
	if p.state == Armed {
		p.mu.Unlock()
		return nil
	}
	p.state = Armed
	p.stopCh = make(chan struct{})
	stopCh := p.stopCh
	p.mu.Unlock()

	go p.loop(stopCh)

	return p.waitForResult()
}

// Stop disarms the poller. Idempotent: stopping an idle poller is safe.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state == Idle {
		return
	}
	close(p.stopCh)
	p.state = Idle
}

// TickNow requests an immediate out-of-band tick, used when the terminal
// regains focus so a long-backgrounded session catches up without
// waiting for the next interval boundary.
func (p *Poller) TickNow() {
	select {
	case p.triggerCh <- struct{}{}:
	default:
	}
}

// loop runs ticks on the fixed interval and on out-of-band triggers.
func (p *Poller) loop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			p.tick()
		case <-p.triggerCh:
			p.tick()
		}
	}
}

// tick performs one poll cycle per the drift-detection contract:
// skip when hidden, fetch count, reconcile only on strict growth,
// record the server count regardless of branch.
func (p *Poller) tick() {
	if !p.vis.Visible() {
		p.sendResult(TickResultMsg{Skipped: true})
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), tickTimeout)
	defer cancel()

	serverCount, err := p.counter.UnreadCount(ctx)
	if err != nil {
		p.log.Debugw("poll tick failed", "err", err)
		p.sendResult(TickResultMsg{Err: err, FirstFailure: p.markFailed()})
		return
	}

	local := p.target.UnreadCount()
	msg := TickResultMsg{ServerCount: serverCount}

	if serverCount > local {
		if rerr := p.target.Reconcile(ctx); rerr != nil {
			p.log.Warnw("poll-triggered reconcile failed", "err", rerr)
			p.sendResult(TickResultMsg{
				ServerCount:  serverCount,
				Err:          rerr,
				FirstFailure: p.markFailed(),
			})
			return
		}
		msg.Reconciled = true
		msg.NewArrivals = serverCount - local
	}

	p.target.RecordServerCount(serverCount)
	p.markRecovered()
	p.sendResult(msg)
}

// markFailed records a failure and reports whether it began a new
// consecutive failure run.
func (p *Poller) markFailed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	first := !p.failing
	p.failing = true
	return first
}

func (p *Poller) markRecovered() {
	p.mu.Lock()
	p.failing = false
	p.mu.Unlock()
}

// sendResult delivers a tick result without blocking the poll loop.
func (p *Poller) sendResult(msg TickResultMsg) {
	select {
	case p.resultCh <- msg:
	default:
	}
}

// waitForResult returns a tea.Cmd that yields the next TickResultMsg.
func (p *Poller) waitForResult() tea.Cmd {
	return func() tea.Msg {
		result, ok := <-p.resultCh
		if !ok {
			return nil
		}
		return result
	}
}

// WaitForNextResult re-subscribes after a TickResultMsg was processed.
func (p *Poller) WaitForNextResult() tea.Cmd {
	return p.waitForResult()
}
