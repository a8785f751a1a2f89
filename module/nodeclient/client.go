// Package nodeclient talks to the DKG nodes of the cluster over JSON-RPC.
package nodeclient

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/rpc"

	"github.com/onflow/flow-dkg-stress/model/stress"
)

// DefaultCallTimeout bounds a single RPC call.
const DefaultCallTimeout = 5 * time.Second

// Client is the JSON-RPC client of a single node.
type Client struct {
	spec    stress.NodeSpec
	rpc     *rpc.Client
	timeout time.Duration
}

// Dial creates a client for the RPC endpoint of the given node. Dialing an
// HTTP endpoint does not connect, so Dial succeeds for nodes that are not
// listening yet.
func Dial(ctx context.Context, spec stress.NodeSpec, timeout time.Duration) (*Client, error) {
	return DialURL(ctx, spec, spec.RPCURL(), timeout)
}

// DialURL is like Dial but connects to an explicit URL.
func DialURL(ctx context.Context, spec stress.NodeSpec, url string, timeout time.Duration) (*Client, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("could not dial node %s at %s: %w", spec.Label, url, err)
	}
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Client{
		spec:    spec,
		rpc:     c,
		timeout: timeout,
	}, nil
}

// Spec returns the spec of the node the client talks to.
func (c *Client) Spec() stress.NodeSpec {
	return c.spec
}

// Health calls system_health.
func (c *Client) Health(ctx context.Context) (SystemHealth, error) {
	var health SystemHealth
	err := c.call(ctx, &health, MethodSystemHealth)
	return health, err
}

// StartSession calls dkg_startSession. It returns whether the node accepted
// the session.
func (c *Client) StartSession(ctx context.Context, session uint64, threshold, participants uint) (bool, error) {
	var accepted bool
	err := c.call(ctx, &accepted, MethodStartSession, session, threshold, participants)
	return accepted, err
}

// SessionStatus calls dkg_sessionStatus.
func (c *Client) SessionStatus(ctx context.Context, session uint64) (SessionStatusResult, error) {
	var status SessionStatusResult
	err := c.call(ctx, &status, MethodSessionStatus, session)
	return status, err
}

// SubmitProposal calls dkg_submitProposal and returns the proposal ID
// computed by the node.
func (c *Client) SubmitProposal(ctx context.Context, session uint64, payloadHex string) (stress.ProposalID, error) {
	var id string
	err := c.call(ctx, &id, MethodSubmitProposal, session, payloadHex)
	return stress.ProposalID(id), err
}

// ProposalStatus calls dkg_proposalStatus.
func (c *Client) ProposalStatus(ctx context.Context, id stress.ProposalID) (ProposalStatusResult, error) {
	var status ProposalStatusResult
	err := c.call(ctx, &status, MethodProposalStatus, id.String())
	return status, err
}

// Close closes the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

func (c *Client) call(ctx context.Context, result interface{}, method string, args ...interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.rpc.CallContext(ctx, result, method, args...); err != nil {
		return fmt.Errorf("%s on node %s failed: %w", method, c.spec.Label, err)
	}
	return nil
}
