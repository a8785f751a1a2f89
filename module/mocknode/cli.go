package mocknode

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/multiformats/go-multiaddr"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

// Options are the command line options of a mock node. They accept the
// argument set the supervisor passes to real nodes.
type Options struct {
	Name        string
	BasePath    string
	Validator   bool
	Host        string
	ListenAddrs []string
	P2PPort     uint16
	RPCPort     uint16
	RPCExternal bool
	NodeKey     string
	Bootnodes   []string

	KeygenDelay time.Duration
	SignDelay   time.Duration
	Faults      Faults
}

var wellKnownNames = []string{"alice", "bob", "charlie", "dave", "eve", "ferdie"}

// BindFlags registers the options on the flag set. Unknown flags must be
// whitelisted by the caller.
func (o *Options) BindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.Name, "name", "", "node name")
	fs.StringVar(&o.BasePath, "base-path", "", "node state directory (unused)")
	fs.BoolVar(&o.Validator, "validator", false, "run as an authority")
	fs.StringVar(&o.Host, "listen-host", "127.0.0.1", "host to bind the p2p listener on")
	fs.StringSliceVar(&o.ListenAddrs, "listen-addr", nil, "p2p listen multiaddr, overrides --listen-host and --port")
	fs.Uint16Var(&o.P2PPort, "port", 30333, "p2p port")
	fs.Uint16Var(&o.RPCPort, "rpc-port", 9944, "rpc port")
	fs.BoolVar(&o.RPCExternal, "rpc-external", false, "listen for rpc on all interfaces")
	fs.StringVar(&o.NodeKey, "node-key", "", "hex encoded ed25519 node key (unused)")
	fs.StringSliceVar(&o.Bootnodes, "bootnodes", nil, "bootnode multiaddrs")

	for _, name := range wellKnownNames {
		fs.Bool(name, false, "shortcut for --name "+name)
	}

	fs.DurationVar(&o.KeygenDelay, "keygen-delay", DefaultKeygenDelay, "simulated keygen duration")
	fs.DurationVar(&o.SignDelay, "sign-delay", DefaultSignDelay, "simulated signing duration")
	fs.UintSliceVar(&o.Faults.FailKeygenRounds, "fail-keygen-rounds", nil, "rounds whose keygen fails")
	fs.UintSliceVar(&o.Faults.StallKeygenRounds, "stall-keygen-rounds", nil, "rounds whose keygen never completes")
	fs.UintVar(&o.Faults.FaultAttempts, "fault-attempts", 0, "apply keygen faults to the first N attempts of a round only (0 = all)")
	fs.UintVar(&o.Faults.FailProposalsEvery, "fail-proposals-every", 0, "fail every N-th proposal of a round (0 = never)")
	fs.UintVar(&o.Faults.StallProposalsEvery, "stall-proposals-every", 0, "never sign every N-th proposal of a round (0 = never)")
}

// resolveName applies the well-known name shortcuts.
func (o *Options) resolveName(fs *pflag.FlagSet) {
	if o.Name != "" {
		return
	}
	for _, name := range wellKnownNames {
		if set, _ := fs.GetBool(name); set {
			o.Name = name
			return
		}
	}
	o.Name = "node-" + strconv.Itoa(int(o.P2PPort))
}

// ParseArgs parses a node command line, ignoring flags it does not know.
func ParseArgs(args []string) (Options, error) {
	var opts Options
	fs := pflag.NewFlagSet("dkg-mocknode", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	opts.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		return Options{}, err
	}
	opts.resolveName(fs)
	return opts, nil
}

// Finalize resolves derived options after the flag set was parsed.
func (o *Options) Finalize(fs *pflag.FlagSet) {
	o.resolveName(fs)
}

// P2PListenAddress returns host:port of the p2p listener. The first
// --listen-addr wins over --listen-host and --port.
func (o *Options) P2PListenAddress() (string, error) {
	if len(o.ListenAddrs) == 0 {
		return net.JoinHostPort(o.Host, strconv.Itoa(int(o.P2PPort))), nil
	}
	addr, err := multiaddr.NewMultiaddr(o.ListenAddrs[0])
	if err != nil {
		return "", fmt.Errorf("invalid listen address %q: %w", o.ListenAddrs[0], err)
	}
	return dialable(addr)
}

// RPCListenAddress returns host:port of the rpc listener, loopback unless
// --rpc-external is set.
func (o *Options) RPCListenAddress() string {
	host := "127.0.0.1"
	if o.RPCExternal {
		host = "0.0.0.0"
	}
	return net.JoinHostPort(host, strconv.Itoa(int(o.RPCPort)))
}

// Run serves a mock node until ctx is cancelled.
func Run(ctx context.Context, log zerolog.Logger, opts Options) error {
	node := New(log, Config{
		Label:       opts.Name,
		KeygenDelay: opts.KeygenDelay,
		SignDelay:   opts.SignDelay,
		Faults:      opts.Faults,
	})

	p2pAddr, err := opts.P2PListenAddress()
	if err != nil {
		return err
	}
	p2p, err := net.Listen("tcp", p2pAddr)
	if err != nil {
		return fmt.Errorf("could not bind p2p port: %w", err)
	}
	p2pDone := make(chan error, 1)
	go func() {
		p2pDone <- node.ServeP2P(ctx, p2p)
	}()

	for _, bootnode := range opts.Bootnodes {
		bootnode := bootnode
		go func() {
			if err := node.ConnectBootnode(ctx, bootnode); err != nil && ctx.Err() == nil {
				node.log.Error().Err(err).Msg("could not connect to bootnode")
			}
		}()
	}

	rpcServer, err := NewRPCServer(node, len(opts.Bootnodes) > 0)
	if err != nil {
		return err
	}
	defer rpcServer.Stop()

	rpcListener, err := net.Listen("tcp", opts.RPCListenAddress())
	if err != nil {
		return fmt.Errorf("could not bind rpc port: %w", err)
	}
	httpServer := &http.Server{Handler: rpcServer, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := httpServer.Serve(rpcListener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			node.log.Error().Err(err).Msg("rpc server failed")
		}
	}()

	node.log.Info().
		Bool("validator", opts.Validator).
		Str("p2p_addr", p2pAddr).
		Str("rpc_addr", opts.RPCListenAddress()).
		Strs("bootnodes", opts.Bootnodes).
		Msg("mock node started")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		node.log.Warn().Err(err).Msg("could not shut down rpc server")
	}
	if err := <-p2pDone; err != nil {
		return err
	}
	node.log.Info().Msg("mock node stopped")
	return nil
}
