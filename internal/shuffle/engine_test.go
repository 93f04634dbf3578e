package shuffle

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mcastellin/cyclonode/internal/clock"
	"github.com/mcastellin/cyclonode/internal/descriptor"
	"github.com/mcastellin/cyclonode/internal/view"
	"github.com/mcastellin/cyclonode/internal/wire"
)

type sentFrame struct {
	address string
	port    int
	payload []byte
}

type mockSender struct {
	sent     []sentFrame
	failNext bool
}

func (m *mockSender) SendTo(address string, port int, payload []byte) error {
	if m.failNext {
		m.failNext = false
		return errSendFailed
	}
	m.sent = append(m.sent, sentFrame{address, port, payload})
	return nil
}

var errSendFailed = &sendError{"simulated send failure"}

type sendError struct{ msg string }

func (e *sendError) Error() string { return e.msg }

func newTestEngine(t *testing.T, viewLen int, self descriptor.Self) (*Engine, *view.View, *clock.Manual, *mockSender) {
	t.Helper()
	clk := clock.NewManual(time.Now(), 11)
	v := view.New(viewLen, self.ID, clk)
	out := &mockSender{}
	log := zap.NewNop()
	return NewEngine(v, self, clk, out, log), v, clk, out
}

func TestCycleNoOpOnEmptyView(t *testing.T) {
	self := descriptor.Self{ID: "self", Address: "127.0.0.1", Port: 9000}
	e, _, _, out := newTestEngine(t, 3, self)

	e.Cycle()

	if len(out.sent) != 0 {
		t.Fatalf("expected no send on an empty view, got %d", len(out.sent))
	}
	if e.DueForCycle() {
		t.Fatal("expected DueForCycle to be false immediately after a cycle ran")
	}
}

func TestCycleSendsPushToOldestPartner(t *testing.T) {
	self := descriptor.Self{ID: "self", Address: "127.0.0.1", Port: 9000}
	e, v, clk, out := newTestEngine(t, 3, self)

	v.Insert(descriptor.Peer{ID: "a", Address: "10.0.0.1", Port: 9001, Timestamp: clk.Now().Add(-30 * time.Second)})
	v.Insert(descriptor.Peer{ID: "b", Address: "10.0.0.2", Port: 9002, Timestamp: clk.Now()})

	e.Cycle()

	if len(out.sent) != 1 {
		t.Fatalf("expected exactly 1 push sent, got %d", len(out.sent))
	}
	if out.sent[0].address != "10.0.0.1" || out.sent[0].port != 9001 {
		t.Fatalf("expected push sent to oldest partner a, got %+v", out.sent[0])
	}
	if e.State() != AwaitingReply {
		t.Fatalf("expected state AwaitingReply after a cycle, got %v", e.State())
	}
	if v.Count() != 0 {
		t.Fatalf("expected partner a removed pending reply and b sampled into the push, count = %d", v.Count())
	}
}

func TestSelectPartnerAvoidsImmediateRepeat(t *testing.T) {
	self := descriptor.Self{ID: "self", Address: "127.0.0.1", Port: 9000}
	e, v, clk, _ := newTestEngine(t, 3, self)

	v.Insert(descriptor.Peer{ID: "a", Address: "10.0.0.1", Port: 9001, Timestamp: clk.Now()})
	v.Insert(descriptor.Peer{ID: "b", Address: "10.0.0.2", Port: 9002, Timestamp: clk.Now()})

	lastA := descriptor.Peer{ID: "a"}
	e.lastPartner = &lastA

	partner, ok := e.selectPartner()
	if !ok {
		t.Fatal("expected a partner to be selected")
	}
	if partner.ID == "a" {
		t.Fatal("expected selectPartner to avoid repeating the last partner when an alternative exists")
	}
	if v.Count() != 1 {
		t.Fatalf("expected the rejected partner reinserted, leaving 1 in view, got %d", v.Count())
	}
}

func TestHandlePushRepliesAndIntegratesDescriptors(t *testing.T) {
	self := descriptor.Self{ID: "self", Address: "127.0.0.1", Port: 9000}
	e, v, clk, out := newTestEngine(t, 3, self)
	v.Insert(descriptor.Peer{ID: "existing", Address: "10.0.0.9", Port: 9009, Timestamp: clk.Now()})

	incoming := []descriptor.Peer{
		{ID: "sender", Address: "10.0.0.5", Port: 9005},
		{ID: "other", Address: "10.0.0.6", Port: 9006},
	}

	e.HandlePush(incoming, "10.0.0.5", 9005)

	if len(out.sent) != 1 {
		t.Fatalf("expected exactly 1 reply sent, got %d", len(out.sent))
	}
	if out.sent[0].address != "10.0.0.5" || out.sent[0].port != 9005 {
		t.Fatalf("expected reply sent back to sender, got %+v", out.sent[0])
	}
	if wire.Classify(out.sent[0].payload) != wire.KindReply {
		t.Fatalf("expected the response to classify as a reply frame")
	}

	found := false
	for _, d := range v.Snapshot() {
		if d.ID == "sender" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected sender's own descriptor to be refreshed into the view")
	}
}

func TestHandlePushIgnoresSelfDescriptor(t *testing.T) {
	self := descriptor.Self{ID: "self", Address: "127.0.0.1", Port: 9000}
	e, v, _, _ := newTestEngine(t, 3, self)

	incoming := []descriptor.Peer{{ID: "self", Address: "127.0.0.1", Port: 9000}}
	e.HandlePush(incoming, "127.0.0.1", 9000)

	for _, d := range v.Snapshot() {
		if d.ID == "self" {
			t.Fatal("expected self's own descriptor to never be inserted into its own view")
		}
	}
}

func TestHandleReplyIntegratesAndResetsState(t *testing.T) {
	self := descriptor.Self{ID: "self", Address: "127.0.0.1", Port: 9000}
	e, v, _, _ := newTestEngine(t, 3, self)
	e.state = AwaitingReply
	lastPartner := descriptor.Peer{ID: "partner", Address: "10.0.0.1", Port: 9001}
	e.lastPartner = &lastPartner

	e.HandleReply([]descriptor.Peer{{ID: "fresh", Address: "10.0.0.2", Port: 9002}})

	if e.State() != Idle {
		t.Fatalf("expected state Idle after handling a reply, got %v", e.State())
	}

	ids := map[string]bool{}
	for _, d := range v.Snapshot() {
		ids[d.ID] = true
	}
	if !ids["fresh"] {
		t.Fatal("expected descriptor received in the reply to be integrated")
	}
	if !ids["partner"] {
		t.Fatal("expected the exchange partner to be refreshed back into the view")
	}
}

func TestForceCycleMakesDueForCycleTrue(t *testing.T) {
	self := descriptor.Self{ID: "self", Address: "127.0.0.1", Port: 9000}
	e, _, _, _ := newTestEngine(t, 3, self)
	e.Cycle()
	if e.DueForCycle() {
		t.Fatal("expected not due for cycle immediately after one ran")
	}
	e.ForceCycle()
	if !e.DueForCycle() {
		t.Fatal("expected ForceCycle to make the engine immediately due")
	}
}
