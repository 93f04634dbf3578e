// Command cyclonode runs a single peer in a Cyclon-style peer-sampling
// gossip overlay: it maintains a bounded partial view of the network via
// periodic shuffles and disseminates application messages typed at its
// console to a random fanout of its current view.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mcastellin/cyclonode/internal/clock"
	"github.com/mcastellin/cyclonode/internal/logging"
	"github.com/mcastellin/cyclonode/internal/node"
)

const usage = `cyclonode runs one peer in a Cyclon peer-sampling gossip overlay.

It loads a static bootstrap roster, identifies itself within it by the
listening port, seeds an initial view from a random subset of the other
peers, then runs a shuffle cycle against the oldest view entry every
cycle-interval. Typing a line at the console that isn't VIEW, CYCLE, or
BYE originates it as application gossip, disseminated to a random fanout
of the current view and relayed by every peer that receives it for the
first time.

EXAMPLES:
  Run peer "alice" listening on 9001, bootstrapped from roster.txt:
    cyclonode --roster roster.txt --port 9001`

var flags struct {
	roster        string
	bindAddress   string
	port          int
	viewLength    int
	swapLength    int
	fanout        int
	cacheSize     int
	cycleInterval time.Duration
	verbose       bool
}

var rootCmd = &cobra.Command{
	Use:   "cyclonode",
	Short: "run one peer in a Cyclon peer-sampling gossip overlay",
	Long:  usage,
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func init() {
	f := rootCmd.Flags()
	f.StringVar(&flags.roster, "roster", "", "path to the bootstrap roster file (required)")
	f.StringVar(&flags.bindAddress, "bind-address", "127.0.0.1", "address this peer advertises to others")
	f.IntVar(&flags.port, "port", 0, "UDP port to listen on; also identifies this peer's roster entry (required)")
	f.IntVar(&flags.viewLength, "view-length", 3, "maximum number of descriptors held in the view")
	f.IntVar(&flags.swapLength, "swap-length", 2, "number of descriptors exchanged per shuffle round")
	f.IntVar(&flags.fanout, "fanout", 2, "number of peers each gossip message is forwarded to")
	f.IntVar(&flags.cacheSize, "cache-size", 50, "maximum number of recently-seen gossip payloads remembered")
	f.DurationVar(&flags.cycleInterval, "cycle-interval", 10*time.Second, "interval between shuffle cycles")
	f.BoolVar(&flags.verbose, "verbose", false, "enable development (human-readable, debug-level) logging")

	rootCmd.MarkFlagRequired("roster")
	rootCmd.MarkFlagRequired("port")
}

func run() error {
	log, err := logging.New(flags.verbose)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer log.Sync()

	cfg := node.Config{
		RosterPath:    flags.roster,
		BindAddress:   flags.bindAddress,
		BindPort:      flags.port,
		ViewLength:    flags.viewLength,
		SwapLength:    flags.swapLength,
		Fanout:        flags.fanout,
		CacheSize:     flags.cacheSize,
		CycleInterval: flags.cycleInterval,
	}

	n, err := node.New(cfg, clock.NewSystem(), log, os.Stdout)
	if err != nil {
		return fmt.Errorf("starting node: %w", err)
	}
	defer n.Close()

	log.Info("cyclonode started",
		zap.String("self", n.Self().ID),
		zap.Int("port", flags.port),
		zap.Int("view-length", flags.viewLength))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return n.Run(ctx, os.Stdin)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
