package nodeclient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/onflow/flow-dkg-stress/model/stress"
	"github.com/onflow/flow-dkg-stress/module"
)

// ProposalIDMismatchError indicates that a node computed a different ID for
// a submitted proposal than the orchestrator.
type ProposalIDMismatchError struct {
	Node     string
	Expected stress.ProposalID
	Actual   stress.ProposalID
}

func (e ProposalIDMismatchError) Error() string {
	return fmt.Sprintf("node %s returned proposal id %s, expected %s", e.Node, e.Actual, e.Expected)
}

// IsProposalIDMismatchError returns whether err is a ProposalIDMismatchError
func IsProposalIDMismatchError(err error) bool {
	var e ProposalIDMismatchError
	return errors.As(err, &e)
}

// Cluster implements module.DKGCluster by fanning out every call over the
// authority nodes and aggregating their answers.
type Cluster struct {
	log         zerolog.Logger
	nodes       []*Client
	authorities []*Client
}

var _ module.DKGCluster = (*Cluster)(nil)

// NewCluster wraps the given clients, which must be in spawn order.
func NewCluster(log zerolog.Logger, nodes []*Client) *Cluster {
	authorities := make([]*Client, 0, len(nodes))
	for _, c := range nodes {
		if c.spec.Role == stress.RoleAuthority {
			authorities = append(authorities, c)
		}
	}
	return &Cluster{
		log:         log.With().Str("component", "cluster_client").Logger(),
		nodes:       nodes,
		authorities: authorities,
	}
}

// DialCluster dials every node of the cluster.
func DialCluster(ctx context.Context, log zerolog.Logger, specs []stress.NodeSpec, timeout time.Duration) (*Cluster, error) {
	nodes := make([]*Client, 0, len(specs))
	for _, spec := range specs {
		c, err := Dial(ctx, spec, timeout)
		if err != nil {
			for _, n := range nodes {
				n.Close()
			}
			return nil, err
		}
		nodes = append(nodes, c)
	}
	return NewCluster(log, nodes), nil
}

// Health queries every node concurrently. Nodes that cannot be reached are
// reported as unreachable instead of failing the call.
func (c *Cluster) Health(ctx context.Context) ([]module.NodeHealth, error) {
	health := make([]module.NodeHealth, len(c.nodes))
	var wg sync.WaitGroup
	for i, node := range c.nodes {
		wg.Add(1)
		go func(i int, node *Client) {
			defer wg.Done()
			h, err := node.Health(ctx)
			health[i] = module.NodeHealth{
				Label:     node.spec.Label,
				Reachable: err == nil,
				Peers:     h.Peers,
				IsSyncing: h.IsSyncing,
				Err:       err,
			}
		}(i, node)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return health, nil
}

// StartSession starts the session on every authority. Any node that errors or
// rejects the session fails the call.
func (c *Cluster) StartSession(ctx context.Context, session uint64, threshold uint, participants uint) error {
	return c.forEachAuthority(ctx, func(ctx context.Context, node *Client) error {
		accepted, err := node.StartSession(ctx, session, threshold, participants)
		if err != nil {
			return err
		}
		if !accepted {
			return fmt.Errorf("node %s rejected session %d", node.spec.Label, session)
		}
		return nil
	})
}

// SessionStatus aggregates the session phase over all authorities: failed if
// any reachable node failed, complete if all completed, pending otherwise. A
// node that cannot be queried results in an error unless another node already
// reports the session as failed.
func (c *Cluster) SessionStatus(ctx context.Context, session uint64) (module.SessionStatus, error) {
	if len(c.authorities) == 0 {
		return module.SessionStatus{}, errors.New("cluster has no authority nodes")
	}

	results := make([]SessionStatusResult, len(c.authorities))
	errs := make([]error, len(c.authorities))
	var wg sync.WaitGroup
	for i, node := range c.authorities {
		wg.Add(1)
		go func(i int, node *Client) {
			defer wg.Done()
			results[i], errs[i] = node.SessionStatus(ctx, session)
		}(i, node)
	}
	wg.Wait()

	var merr *multierror.Error
	complete := 0
	for i, r := range results {
		if errs[i] != nil {
			merr = multierror.Append(merr, errs[i])
			continue
		}
		switch r.Phase {
		case PhaseFailed:
			return module.SessionStatus{
				Session: session,
				Phase:   module.SessionFailed,
				Err:     fmt.Errorf("node %s: %s", c.authorities[i].spec.Label, errorText(r.Error)),
			}, nil
		case PhaseComplete:
			complete++
		}
	}
	if err := merr.ErrorOrNil(); err != nil {
		return module.SessionStatus{}, err
	}
	if complete == len(results) {
		return module.SessionStatus{Session: session, Phase: module.SessionComplete}, nil
	}
	return module.SessionStatus{Session: session, Phase: module.SessionPending}, nil
}

// SubmitProposal submits the proposal to every authority and verifies that
// each node identifies it by the same ID.
func (c *Cluster) SubmitProposal(ctx context.Context, session uint64, proposal stress.Proposal) error {
	payload := proposal.PayloadHex()
	return c.forEachAuthority(ctx, func(ctx context.Context, node *Client) error {
		id, err := node.SubmitProposal(ctx, session, payload)
		if err != nil {
			return err
		}
		if id != proposal.ID {
			return ProposalIDMismatchError{Node: node.spec.Label, Expected: proposal.ID, Actual: id}
		}
		return nil
	})
}

// ProposalStatus aggregates the signing status over all authorities: signed
// if any node holds a threshold signature, failed if every node gave up,
// pending otherwise. Unreachable nodes are tolerated as long as one node
// reports a signature.
func (c *Cluster) ProposalStatus(ctx context.Context, id stress.ProposalID) (module.ProposalStatus, error) {
	var (
		mu       sync.Mutex
		errs     *multierror.Error
		failed   int
		lastErr  string
		signed   string
		answered int
	)

	var wg sync.WaitGroup
	for _, node := range c.authorities {
		wg.Add(1)
		go func(node *Client) {
			defer wg.Done()
			status, err := node.ProposalStatus(ctx, id)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierror.Append(errs, err)
				return
			}
			answered++
			switch status.Status {
			case StatusSigned:
				if signed == "" {
					signed = status.Signature
				}
			case StatusFailed:
				failed++
				lastErr = fmt.Sprintf("node %s: %s", node.spec.Label, errorText(status.Error))
			}
		}(node)
	}
	wg.Wait()

	if signed != "" {
		return module.ProposalStatus{ID: id, Phase: module.SignatureSigned, Signature: signed}, nil
	}
	if errs != nil {
		return module.ProposalStatus{}, errs.ErrorOrNil()
	}
	if answered > 0 && failed == answered {
		return module.ProposalStatus{ID: id, Phase: module.SignatureFailed, Err: errors.New(lastErr)}, nil
	}
	return module.ProposalStatus{ID: id, Phase: module.SignaturePending}, nil
}

// Close closes the clients of all nodes.
func (c *Cluster) Close() error {
	for _, node := range c.nodes {
		node.Close()
	}
	c.log.Debug().Int("nodes", len(c.nodes)).Msg("closed node clients")
	return nil
}

// forEachAuthority calls f for every authority concurrently and returns the
// first error. The remaining calls are cancelled once one fails.
func (c *Cluster) forEachAuthority(ctx context.Context, f func(context.Context, *Client) error) error {
	if len(c.authorities) == 0 {
		return errors.New("cluster has no authority nodes")
	}
	g, gCtx := errgroup.WithContext(ctx)
	for _, node := range c.authorities {
		node := node
		g.Go(func() error {
			return f(gCtx, node)
		})
	}
	return g.Wait()
}

func errorText(msg string) string {
	if msg == "" {
		return "no error message"
	}
	return msg
}
