// Package node wires the Clock & Random Source, Descriptor Store, Gossip
// Cache, Shuffle Engine, and Dissemination Engine into the single owning
// container spec.md §9 calls for, and runs the single-threaded cooperative
// event loop described in spec.md §5.
package node

import (
	"context"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/mcastellin/cyclonode/internal/cache"
	"github.com/mcastellin/cyclonode/internal/clock"
	"github.com/mcastellin/cyclonode/internal/console"
	"github.com/mcastellin/cyclonode/internal/descriptor"
	"github.com/mcastellin/cyclonode/internal/dissem"
	"github.com/mcastellin/cyclonode/internal/roster"
	"github.com/mcastellin/cyclonode/internal/shuffle"
	"github.com/mcastellin/cyclonode/internal/transport"
	"github.com/mcastellin/cyclonode/internal/view"
	"github.com/mcastellin/cyclonode/internal/wire"
)

// pollInterval bounds the event loop's blocking wait so the cycle timer can
// fire promptly, per spec.md §5 ("blocking wait bounded to ≤ 1s").
const pollInterval = 1 * time.Second

// Config configures a Node at startup. Zero values fall back to the
// reference constants from spec.md.
type Config struct {
	RosterPath    string
	BindAddress   string
	BindPort      int
	ViewLength    int
	SwapLength    int
	Fanout        int
	CacheSize     int
	CycleInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.ViewLength == 0 {
		c.ViewLength = 3
	}
	if c.SwapLength == 0 {
		c.SwapLength = shuffle.DefaultSwapLength
	}
	if c.Fanout == 0 {
		c.Fanout = dissem.DefaultFanout
	}
	if c.CacheSize == 0 {
		c.CacheSize = cache.DefaultSize
	}
	if c.CycleInterval == 0 {
		c.CycleInterval = shuffle.DefaultCycleInterval
	}
	if c.BindAddress == "" {
		c.BindAddress = "127.0.0.1"
	}
}

// Node is the single logical process composed of the five cooperating
// components from spec.md §2.
type Node struct {
	self  descriptor.Self
	view  *view.View
	cache *cache.Cache
	shuf  *shuffle.Engine
	dis   *dissem.Engine
	sock  *transport.Socket
	clk   clock.Clock
	log   *zap.Logger
	out   io.Writer
}

// New performs the startup sequence from spec.md §4.5: load the roster,
// resolve self by port, seed the view from a random subset of the rest,
// open the socket. The returned Node has not started its event loop yet.
func New(cfg Config, clk clock.Clock, log *zap.Logger, out io.Writer) (*Node, error) {
	cfg.applyDefaults()

	entries, err := roster.Load(cfg.RosterPath)
	if err != nil {
		return nil, fmt.Errorf("node: loading roster: %w", err)
	}
	selfEntry, err := roster.ResolveSelf(entries, cfg.BindPort)
	if err != nil {
		return nil, fmt.Errorf("node: resolving self: %w", err)
	}

	self := descriptor.Self{ID: selfEntry.ID, Address: cfg.BindAddress, Port: cfg.BindPort}
	if err := self.Validate(); err != nil {
		return nil, fmt.Errorf("node: invalid self descriptor: %w", err)
	}

	v := view.New(cfg.ViewLength, self.ID, clk)
	seedView(v, entries, selfEntry, cfg.ViewLength, clk, clk.Now())

	sock, err := transport.Open(cfg.BindPort, log)
	if err != nil {
		return nil, fmt.Errorf("node: binding udp socket: %w", err)
	}

	c := cache.New(cfg.CacheSize)
	shufEngine := shuffle.NewEngine(v, self, clk, sock, log)
	shufEngine.SwapLength = cfg.SwapLength
	shufEngine.CycleInterval = cfg.CycleInterval

	disEngine := dissem.NewEngine(v, c, clk, sock, self.ID, log)
	disEngine.Fanout = cfg.Fanout

	return &Node{
		self:  self,
		view:  v,
		cache: c,
		shuf:  shufEngine,
		dis:   disEngine,
		sock:  sock,
		clk:   clk,
		log:   log,
		out:   out,
	}, nil
}

// seedView implements spec.md §4.5 step 2: uniformly shuffle roster minus
// self and seed the view with up to length entries, each timestamped now.
func seedView(v *view.View, entries []roster.Entry, self roster.Entry, length int, clk clock.Clock, now time.Time) {
	others := make([]roster.Entry, 0, len(entries))
	for _, e := range entries {
		if e.ID == self.ID {
			continue
		}
		others = append(others, e)
	}

	// Fisher-Yates shuffle via the node's own random source, mirroring the
	// reference C bootstrap loop exactly.
	for i := len(others) - 1; i > 0; i-- {
		j := clk.Intn(i + 1)
		others[i], others[j] = others[j], others[i]
	}

	n := length
	if n > len(others) {
		n = len(others)
	}
	for i := 0; i < n; i++ {
		e := others[i]
		v.Insert(descriptor.Peer{ID: e.ID, Address: e.Address, Port: e.Port, Timestamp: now})
	}
}

// Close releases the node's socket.
func (n *Node) Close() error {
	return n.sock.Close()
}

// Run executes the single-threaded cooperative event loop from spec.md §5,
// multiplexing inbound datagrams, console commands, and the periodic
// cycle tick until ctx is cancelled or a console BYE is received.
func (n *Node) Run(ctx context.Context, stdin io.Reader) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	datagrams := make(chan transport.Datagram, 1)
	go n.sock.Receive(ctx, datagrams)

	commands := make(chan console.Command, 1)
	reader := console.NewReader(stdin)
	go reader.Run(ctx, commands)

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case dg, ok := <-datagrams:
			if !ok {
				continue
			}
			n.handleDatagram(dg)

		case cmd, ok := <-commands:
			if !ok {
				continue
			}
			if n.handleCommand(cmd) {
				return nil
			}

		case <-ticker.C:
			if n.shuf.DueForCycle() {
				n.shuf.Cycle()
			}
		}
	}
}

func (n *Node) handleDatagram(dg transport.Datagram) {
	switch wire.Classify(dg.Data) {
	case wire.KindPush:
		descriptors, err := wire.DecodePush(dg.Data)
		if err != nil {
			n.log.Debug("dropping malformed push", zap.Error(err))
			return
		}
		n.shuf.HandlePush(descriptors, dg.Addr.IP.String(), dg.Addr.Port)

	case wire.KindReply:
		descriptors, err := wire.DecodeReply(dg.Data)
		if err != nil {
			n.log.Debug("dropping malformed reply", zap.Error(err))
			return
		}
		n.shuf.HandleReply(descriptors)

	default:
		n.dis.Receive(string(dg.Data))
	}
}

// handleCommand applies one console command and reports whether the event
// loop should terminate (a BYE was received).
func (n *Node) handleCommand(cmd console.Command) bool {
	switch cmd.Kind {
	case console.KindView:
		n.printView()
	case console.KindCycle:
		n.shuf.ForceCycle()
		n.shuf.Cycle()
	case console.KindBye:
		return true
	case console.KindGossip:
		n.dis.Originate(cmd.Message)
	}
	return false
}

func (n *Node) printView() {
	now := n.clk.Now()
	snapshot := n.view.Snapshot()
	fmt.Fprintf(n.out, "[VIEW] current view (%d nodes):\n", len(snapshot))
	for i, d := range snapshot {
		fmt.Fprintf(n.out, "  %d. %s [age: %ds]\n", i+1, d.String(), int(d.Age(now).Seconds()))
	}
}

// Self returns the node's own identity.
func (n *Node) Self() descriptor.Self { return n.self }

// View exposes the underlying view for diagnostics (e.g. a future status
// endpoint); callers other than this package must not mutate it.
func (n *Node) View() *view.View { return n.view }
