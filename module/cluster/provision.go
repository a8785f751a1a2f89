// Package cluster turns a session configuration into the fixed set of node
// specs the supervisor spawns. Provisioning is deterministic: the same
// configuration always yields the same labels, ports, keys and topology.
package cluster

import (
	"crypto/ed25519"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net"
	"path/filepath"

	p2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/onflow/flow-dkg-stress/model/stress"
)

// wellKnownLabels are the development identities the node binary ships keys
// for. Index 0 is the seed node.
var wellKnownLabels = []string{"alice", "bob", "charlie", "dave", "eve", "ferdie"}

// Label returns the identity label of the node at the given index.
func Label(index int) string {
	if index < len(wellKnownLabels) {
		return wellKnownLabels[index]
	}
	return fmt.Sprintf("node-%d", index)
}

// IsWellKnownLabel returns true if the node binary has a built-in keyring
// identity for the label.
func IsWellKnownLabel(label string) bool {
	for _, l := range wellKnownLabels {
		if l == label {
			return true
		}
	}
	return false
}

// Provision builds the node specs for the given configuration. Nodes
// [0, Participants) are DKG authorities, the ExtraNodes after them are plain
// validators. Node i binds p2p on base+i and RPC on RPCBasePort+i. Every node
// other than the seed lists the seed as its bootnode, so the cluster forms a
// single connected topology.
func Provision(cfg stress.SessionConfig, scratchDir string) ([]stress.NodeSpec, error) {
	host, p2pBase, err := cfg.BindHostPort()
	if err != nil {
		return nil, err
	}

	total := int(cfg.TotalNodes())
	specs := make([]stress.NodeSpec, 0, total)

	var bootnode string
	for i := 0; i < total; i++ {
		label := Label(i)

		nodeKey, peerID, err := NodeIdentity(i)
		if err != nil {
			return nil, fmt.Errorf("could not derive identity of node %d: %w", i, err)
		}

		role := stress.RoleAuthority
		if uint(i) >= cfg.Participants {
			role = stress.RoleValidator
		}

		spec := stress.NodeSpec{
			Index:    i,
			Label:    label,
			Role:     role,
			BindHost: host,
			P2PPort:  p2pBase + uint16(i),
			RPCPort:  cfg.RPCBasePort + uint16(i),
			NodeKey:  nodeKey,
			PeerID:   peerID.String(),
			BasePath: filepath.Join(scratchDir, label),
			LogPath:  filepath.Join(scratchDir, label+".log"),
		}

		listen, err := ListenAddress(host, spec.P2PPort)
		if err != nil {
			return nil, fmt.Errorf("could not build listen address of node %d: %w", i, err)
		}
		spec.ListenAddr = listen.String()

		if i == 0 {
			addr, err := BootnodeAddress(host, spec.P2PPort, peerID)
			if err != nil {
				return nil, fmt.Errorf("could not build bootnode address: %w", err)
			}
			bootnode = addr.String()
		} else {
			spec.Bootnode = bootnode
		}

		specs = append(specs, spec)
	}

	return specs, nil
}

// RequiredPorts lists every p2p and RPC port of the given specs, in spawn
// order with the p2p port of each node first.
func RequiredPorts(specs []stress.NodeSpec) []uint16 {
	ports := make([]uint16, 0, 2*len(specs))
	for _, s := range specs {
		ports = append(ports, s.P2PPort, s.RPCPort)
	}
	return ports
}

// NodeIdentity derives the node key of the node at the given index and the
// libp2p peer ID it yields. The key is the 32 byte big-endian encoding of
// index+1, used as ed25519 seed.
func NodeIdentity(index int) (string, peer.ID, error) {
	seed := make([]byte, ed25519.SeedSize)
	binary.BigEndian.PutUint64(seed[ed25519.SeedSize-8:], uint64(index)+1)

	sk, err := p2pcrypto.UnmarshalEd25519PrivateKey(ed25519.NewKeyFromSeed(seed))
	if err != nil {
		return "", "", fmt.Errorf("could not decode ed25519 key: %w", err)
	}
	id, err := peer.IDFromPrivateKey(sk)
	if err != nil {
		return "", "", fmt.Errorf("could not derive peer id: %w", err)
	}
	return hex.EncodeToString(seed), id, nil
}

// BootnodeAddress returns the multiaddr other nodes use to reach the seed.
// An unspecified bind host is dialed on the loopback address.
func BootnodeAddress(host string, port uint16, id peer.ID) (ma.Multiaddr, error) {
	if ip := net.ParseIP(host); ip != nil && ip.IsUnspecified() {
		host = "127.0.0.1"
	}
	return ma.NewMultiaddr(fmt.Sprintf("/%s/%s/tcp/%d/p2p/%s", hostProtocol(host), host, port, id))
}

// ListenAddress returns the multiaddr a node binds its p2p listener on.
func ListenAddress(host string, port uint16) (ma.Multiaddr, error) {
	return ma.NewMultiaddr(fmt.Sprintf("/%s/%s/tcp/%d", hostProtocol(host), host, port))
}

func hostProtocol(host string) string {
	ip := net.ParseIP(host)
	switch {
	case ip == nil:
		return "dns4"
	case ip.To4() != nil:
		return "ip4"
	default:
		return "ip6"
	}
}
