package mocknode

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/onflow/flow-dkg-stress/model/stress"
	"github.com/onflow/flow-dkg-stress/module/nodeclient"
)

// DKGAPI serves the dkg_ RPC namespace.
type DKGAPI struct {
	node *Node
}

func (api *DKGAPI) StartSession(sessionID uint64, threshold uint, participants uint) bool {
	return api.node.StartSession(sessionID, threshold, participants)
}

func (api *DKGAPI) SessionStatus(sessionID uint64) nodeclient.SessionStatusResult {
	return api.node.SessionStatus(sessionID)
}

func (api *DKGAPI) SubmitProposal(sessionID uint64, payload string) (string, error) {
	raw, err := hexutil.Decode(payload)
	if err != nil {
		return "", fmt.Errorf("invalid payload: %w", err)
	}
	id, err := api.node.SubmitProposal(sessionID, raw)
	return id.String(), err
}

func (api *DKGAPI) ProposalStatus(id string) nodeclient.ProposalStatusResult {
	return api.node.ProposalStatus(stress.ProposalID(id))
}

// SystemAPI serves the system_ RPC namespace.
type SystemAPI struct {
	node            *Node
	shouldHavePeers bool
}

func (api *SystemAPI) Health() nodeclient.SystemHealth {
	return api.node.Health(api.shouldHavePeers)
}

// NewRPCServer returns a JSON-RPC server exposing the node. The server
// implements http.Handler.
func NewRPCServer(node *Node, shouldHavePeers bool) (*rpc.Server, error) {
	server := rpc.NewServer()
	if err := server.RegisterName("dkg", &DKGAPI{node: node}); err != nil {
		return nil, fmt.Errorf("could not register dkg api: %w", err)
	}
	if err := server.RegisterName("system", &SystemAPI{node: node, shouldHavePeers: shouldHavePeers}); err != nil {
		return nil, fmt.Errorf("could not register system api: %w", err)
	}
	return server, nil
}
