package stress

import (
	"fmt"
	"net"
	"strconv"
)

// Role is the part a node plays in the cluster.
type Role string

const (
	// RoleAuthority nodes are DKG participants.
	RoleAuthority Role = "authority"
	// RoleValidator nodes follow the chain but do not take part in the DKG.
	RoleValidator Role = "validator"
)

func (r Role) String() string {
	return string(r)
}

// Valid returns true if r is a known role.
func (r Role) Valid() bool {
	return r == RoleAuthority || r == RoleValidator
}

// NodeSpec is the immutable description of one node of the cluster. It is
// created at provisioning time and never mutated afterwards.
type NodeSpec struct {
	// Index is the spawn position of the node. Index 0 is the seed node.
	Index int
	// Label is the identity of the node, e.g. "alice".
	Label string
	Role  Role

	BindHost string
	P2PPort  uint16
	RPCPort  uint16

	// NodeKey is the hex encoded ed25519 secret used as libp2p identity.
	NodeKey string
	// PeerID is the libp2p peer ID derived from NodeKey.
	PeerID string
	// Bootnode is the multiaddr of the seed node. Empty for the seed itself.
	Bootnode string
	// ListenAddr is the multiaddr the node binds its p2p listener on.
	ListenAddr string

	BasePath string
	LogPath  string
}

// IsSeed returns true if this node is the network anchor every other node
// bootstraps from.
func (n NodeSpec) IsSeed() bool {
	return n.Index == 0
}

// LoopbackHost returns true if the node is only reachable from this host.
func (n NodeSpec) LoopbackHost() bool {
	if n.BindHost == "localhost" {
		return true
	}
	ip := net.ParseIP(n.BindHost)
	return ip != nil && ip.IsLoopback()
}

// P2PAddress returns host:port of the node's p2p listener.
func (n NodeSpec) P2PAddress() string {
	return net.JoinHostPort(n.BindHost, strconv.Itoa(int(n.P2PPort)))
}

// RPCAddress returns host:port of the node's RPC endpoint.
func (n NodeSpec) RPCAddress() string {
	return net.JoinHostPort(n.BindHost, strconv.Itoa(int(n.RPCPort)))
}

// RPCURL returns the HTTP URL of the node's RPC endpoint.
func (n NodeSpec) RPCURL() string {
	return "http://" + n.RPCAddress()
}

func (n NodeSpec) String() string {
	return fmt.Sprintf("%s(%d, %s, p2p=%d, rpc=%d)", n.Label, n.Index, n.Role, n.P2PPort, n.RPCPort)
}

// Authorities filters the given specs down to the DKG participants, keeping
// their order.
func Authorities(specs []NodeSpec) []NodeSpec {
	out := make([]NodeSpec, 0, len(specs))
	for _, s := range specs {
		if s.Role == RoleAuthority {
			out = append(out, s)
		}
	}
	return out
}
