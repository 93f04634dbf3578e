// Package shuffle implements the Cyclon core: the periodic push/reply
// protocol that mixes, freshens, and self-heals the node's view
// (spec.md §4.4). This is the largest single component by design — the
// teacher's gossip package supplied the shape (initiator/responder roles
// exchanging state over a receiver abstraction); the oldest-first partner
// selection, repeat-suppression, and displacement rules come from the C
// reference implementation.
package shuffle

import (
	"time"

	"go.uber.org/zap"

	"github.com/mcastellin/cyclonode/internal/clock"
	"github.com/mcastellin/cyclonode/internal/descriptor"
	"github.com/mcastellin/cyclonode/internal/view"
	"github.com/mcastellin/cyclonode/internal/wire"
)

// DefaultSwapLength is the reference SWAP_LENGTH.
const DefaultSwapLength = 2

// DefaultCycleInterval is the reference CYCLE_INTERVAL.
const DefaultCycleInterval = 10 * time.Second

// State names the initiator-side state machine from spec.md §4.4.4.
type State int

const (
	Idle State = iota
	AwaitingReply
)

// Sender delivers a serialized frame to a specific address/port. The
// transport package implements this over a UDP socket.
type Sender interface {
	SendTo(address string, port int, payload []byte) error
}

// Engine drives view evolution via the Cyclon shuffle protocol. It owns no
// socket itself — it is handed a Sender and fed events by the node's event
// loop (spec.md §5: one owner, no internal locking).
type Engine struct {
	view *view.View
	self descriptor.Self
	clk  clock.Clock
	out  Sender
	log  *zap.Logger

	SwapLength    int
	CycleInterval time.Duration

	state       State
	lastPartner *descriptor.Peer
	lastCycle   time.Time
}

// NewEngine builds a shuffle engine bound to v, driven by clk, emitting
// frames through out.
func NewEngine(v *view.View, self descriptor.Self, clk clock.Clock, out Sender, log *zap.Logger) *Engine {
	return &Engine{
		view:          v,
		self:          self,
		clk:           clk,
		out:           out,
		log:           log,
		SwapLength:    DefaultSwapLength,
		CycleInterval: DefaultCycleInterval,
		state:         Idle,
	}
}

// State reports the initiator-side state machine's current state, mostly
// useful to tests.
func (e *Engine) State() State { return e.state }

// DueForCycle reports whether CycleInterval has elapsed since the last
// cycle ran (or never having run). The node's event loop polls this on
// every tick; the console CYCLE command instead calls ForceCycle directly.
func (e *Engine) DueForCycle() bool {
	if e.lastCycle.IsZero() {
		return true
	}
	return e.clk.Now().Sub(e.lastCycle) >= e.CycleInterval
}

// ForceCycle resets the due-for-cycle timer so the next DueForCycle check
// (or a direct Cycle call) fires immediately — the Go equivalent of the C
// reference's "last_cycle_time = 0" trick for the console CYCLE command.
func (e *Engine) ForceCycle() {
	e.lastCycle = time.Time{}
}

// Cycle runs one periodic push round as initiator (spec.md §4.4.1). A call
// on an empty view is a documented no-op. The reference does NOT suppress
// a new cycle while a reply is outstanding — a fresh cycle simply replaces
// lastPartner, matching spec.md §4.4.4's table.
func (e *Engine) Cycle() {
	e.lastCycle = e.clk.Now()

	if e.view.Count() == 0 {
		return
	}

	partner, ok := e.selectPartner()
	if !ok {
		return
	}
	e.lastPartner = &partner
	e.state = AwaitingReply

	now := e.clk.Now()
	buf := make([]descriptor.Peer, 0, e.SwapLength)
	buf = append(buf, e.self.Fresh(now))
	if e.SwapLength > 1 {
		buf = append(buf, e.view.Sample(e.SwapLength-1)...)
	}

	e.log.Debug("cyclon cycle: pushing to partner",
		zap.String("partner", partner.ID), zap.Int("descriptors", len(buf)))

	if err := e.out.SendTo(partner.Address, partner.Port, wire.EncodePush(buf)); err != nil {
		// Transient I/O per spec.md §7: log and move on. The sampled
		// descriptors are already gone from the view — the reference's
		// documented latent loss-on-send-failure behavior (spec.md §9) is
		// preserved deliberately, not "fixed".
		e.log.Warn("cyclon push send failed", zap.String("partner", partner.ID), zap.Error(err))
	}
}

// selectPartner implements spec.md §4.4.1 step 2: pick the oldest
// descriptor, removing it from the view; if it's the same id as the last
// partner and at least one other descriptor remains, take the next-oldest
// instead and put the rejected one back.
func (e *Engine) selectPartner() (descriptor.Peer, bool) {
	idx := e.view.Oldest()
	if idx < 0 {
		return descriptor.Peer{}, false
	}
	partner, _ := e.view.Remove(idx)

	if e.lastPartner != nil && partner.ID == e.lastPartner.ID && e.view.Count() > 0 {
		next, _ := e.view.Remove(e.view.Oldest())
		e.view.Insert(partner)
		partner = next
	}
	return partner, true
}

// HandlePush responds to an inbound CYCLON_PUSH (spec.md §4.4.2). sender is
// the UDP return address/port to reply to.
func (e *Engine) HandlePush(descriptors []descriptor.Peer, senderAddr string, senderPort int) {
	if len(descriptors) == 0 {
		return
	}

	// Step 1: build the reply buffer BEFORE integrating the received
	// descriptors, so a just-received descriptor is never immediately
	// echoed back to its own sender (spec.md §4.4.2 note).
	replyBuf := e.view.Sample(e.SwapLength)

	// Step 2: integrate D, stamping each with now for receiver freshness.
	now := e.clk.Now()
	added := 0
	for _, d := range descriptors {
		if d.ID == e.self.ID {
			continue
		}
		d.Timestamp = now
		if e.view.Insert(d) {
			added++
		}
	}
	e.log.Debug("cyclon push received",
		zap.String("sender", senderAddr), zap.Int("received", len(descriptors)), zap.Int("added", added))

	// Step 3: reply to the sender's return address.
	if err := e.out.SendTo(senderAddr, senderPort, wire.EncodeReply(replyBuf)); err != nil {
		e.log.Warn("cyclon reply send failed", zap.String("sender", senderAddr), zap.Error(err))
	}

	// Step 4: refresh the sender's own descriptor (slot 0) back into the
	// view so the exchange partner is guaranteed present after the round.
	sender := descriptors[0]
	if sender.ID != e.self.ID {
		sender.Timestamp = now
		e.view.Refresh(sender)
	}
}

// HandleReply completes an initiator's cycle on receipt of CYCLON_REPLY
// (spec.md §4.4.3).
func (e *Engine) HandleReply(descriptors []descriptor.Peer) {
	now := e.clk.Now()
	added := 0
	for _, r := range descriptors {
		if r.ID == e.self.ID {
			continue
		}
		r.Timestamp = now
		if e.view.Insert(r) {
			added++
		}
	}

	if e.lastPartner != nil {
		partner := *e.lastPartner
		partner.Timestamp = now
		// If the view filled up between PUSH and REPLY, the partner is
		// dropped here. This is the reference's known latent limitation
		// (spec.md §9) and is intentionally not repaired.
		e.view.Refresh(partner)
	}

	e.log.Debug("cyclon reply received", zap.Int("received", len(descriptors)), zap.Int("added", added))
	e.state = Idle
}
