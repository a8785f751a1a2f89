package mocknode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/multiformats/go-multiaddr"
	manet "github.com/multiformats/go-multiaddr/net"
	"github.com/sethvargo/go-retry"
)

// ServeP2P accepts peer connections on l until ctx is cancelled. Every open
// connection counts as one peer.
func (n *Node) ServeP2P(ctx context.Context, l net.Listener) error {
	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("could not accept peer connection: %w", err)
		}
		go n.holdPeer(ctx, conn)
	}
}

// ConnectBootnode dials the bootnode until it answers and keeps the
// connection open until ctx is cancelled or the bootnode goes away.
func (n *Node) ConnectBootnode(ctx context.Context, bootnode string) error {
	addr, err := multiaddr.NewMultiaddr(bootnode)
	if err != nil {
		return fmt.Errorf("invalid bootnode address %q: %w", bootnode, err)
	}
	target, err := dialable(addr)
	if err != nil {
		return err
	}

	backoff := retry.NewConstant(100 * time.Millisecond)
	var conn net.Conn
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		var d net.Dialer
		c, err := d.DialContext(ctx, "tcp", target)
		if err != nil {
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return fmt.Errorf("could not connect to bootnode %s: %w", bootnode, err)
	}

	n.log.Info().Str("bootnode", bootnode).Msg("connected to bootnode")
	go n.holdPeer(ctx, conn)
	return nil
}

func (n *Node) holdPeer(ctx context.Context, conn net.Conn) {
	n.peers.Inc()
	defer n.peers.Dec()

	done := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, conn)
		close(done)
	}()
	select {
	case <-ctx.Done():
	case <-done:
	}
	_ = conn.Close()
}

// dialable strips the peer ID component of a bootnode multiaddr and returns
// the TCP host:port of the remainder.
func dialable(addr multiaddr.Multiaddr) (string, error) {
	transport := addr
	if id, err := addr.ValueForProtocol(multiaddr.P_P2P); err == nil {
		suffix, err := multiaddr.NewMultiaddr("/p2p/" + id)
		if err != nil {
			return "", err
		}
		transport = addr.Decapsulate(suffix)
	}

	if netAddr, err := manet.ToNetAddr(transport); err == nil {
		return netAddr.String(), nil
	}

	// manet does not resolve names
	host, err := transport.ValueForProtocol(multiaddr.P_DNS4)
	if err != nil {
		return "", fmt.Errorf("address %s is not a tcp address: %w", addr, err)
	}
	port, err := transport.ValueForProtocol(multiaddr.P_TCP)
	if err != nil {
		return "", fmt.Errorf("address %s has no tcp port: %w", addr, err)
	}
	return net.JoinHostPort(host, port), nil
}
