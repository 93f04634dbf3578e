// Package dissem implements the Dissemination Engine: duplicate suppression
// and fanout forwarding of application gossip riding on the shared view
// (spec.md §4.3). It only ever reads the view; the Shuffle Engine is the
// sole mutator.
package dissem

import (
	"go.uber.org/zap"

	"github.com/mcastellin/cyclonode/internal/cache"
	"github.com/mcastellin/cyclonode/internal/clock"
	"github.com/mcastellin/cyclonode/internal/view"
	"github.com/mcastellin/cyclonode/internal/wire"
)

// DefaultFanout is the reference FANOUT.
const DefaultFanout = 2

// Sender delivers a frame to one peer address/port.
type Sender interface {
	SendTo(address string, port int, payload []byte) error
}

// Engine forwards application gossip payloads to a random subset of the
// current view, deduplicating via a shared Gossip Cache.
type Engine struct {
	view   *view.View
	cache  *cache.Cache
	clk    clock.Clock
	out    Sender
	log    *zap.Logger
	selfID string

	Fanout int
}

// NewEngine builds a dissemination engine sharing v and c with the rest of
// the node.
func NewEngine(v *view.View, c *cache.Cache, clk clock.Clock, out Sender, selfID string, log *zap.Logger) *Engine {
	return &Engine{
		view:   v,
		cache:  c,
		clk:    clk,
		out:    out,
		selfID: selfID,
		log:    log,
		Fanout: DefaultFanout,
	}
}

// Originate sends a new user-authored message, prefixing it with self's id
// for self-echo suppression (spec.md §4.3 step 1-3).
func (e *Engine) Originate(message string) {
	payload := wire.FormatGossipPayload(e.selfID, message)
	e.cache.Observe(payload)
	e.forward(payload)
}

// Receive handles an inbound application gossip payload: drop if already
// seen, otherwise record and forward (spec.md §4.3).
func (e *Engine) Receive(payload string) {
	if e.cache.Seen(payload) {
		e.log.Debug("gossip payload already seen, dropping", zap.String("payload", payload))
		return
	}
	e.cache.Observe(payload)
	e.forward(payload)
}

func (e *Engine) forward(payload string) {
	peers := e.view.Snapshot()
	n := len(peers)
	if n == 0 {
		return
	}
	fanout := e.Fanout
	if fanout > n {
		fanout = n
	}

	for _, idx := range e.randomIndices(n, fanout) {
		p := peers[idx]
		if err := e.out.SendTo(p.Address, p.Port, []byte(payload)); err != nil {
			e.log.Warn("gossip forward failed", zap.String("peer", p.ID), zap.Error(err))
		}
	}
}

// randomIndices returns k distinct indices in [0, n) via a Fisher-Yates
// partial shuffle, without mutating the view (forwarding never displaces
// descriptors, spec.md §4.3 step 3).
func (e *Engine) randomIndices(n, k int) []int {
	idxs := make([]int, n)
	for i := range idxs {
		idxs[i] = i
	}
	available := n
	out := make([]int, 0, k)
	for i := 0; i < k; i++ {
		j := e.clk.Intn(available)
		out = append(out, idxs[j])
		available--
		idxs[j] = idxs[available]
	}
	return out
}
