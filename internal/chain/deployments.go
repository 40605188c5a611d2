package chain

import (
	"fmt"

	"github.com/Klingon-tech/klingnet-chain/internal/chainstate"
	"github.com/Klingon-tech/klingnet-chain/internal/consensus"
)

// DeploymentActive reports whether the named version-bits deployment has
// reached consensus.StateActive as of the current tip. It walks completed
// signaling periods from genesis forward, carrying the BIP9 state machine
// incrementally one period at a time — the same walk consensus.GetState's
// own doc comment describes — rather than recomputing history from
// scratch on every call. An unrecognized name reports false, nil.
func (c *Chain) DeploymentActive(name string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var d consensus.Deployment
	found := false
	for _, dep := range c.params.Deployments {
		if dep.Name == name {
			d = dep
			found = true
			break
		}
	}
	if !found {
		return false, nil
	}
	if d.Period == 0 {
		return false, fmt.Errorf("chain: deployment %q has a zero signaling period", name)
	}

	tip, err := c.tipLocked()
	if err != nil {
		return false, err
	}

	state := consensus.StateDefined
	for periodEnd := d.Period - 1; periodEnd <= tip.Height; periodEnd += d.Period {
		entry, err := c.db.GetByHeight(periodEnd)
		if err != nil {
			break
		}
		ancestors, err := chainstate.GetAncestors(c.db, entry, int(d.Period))
		if err != nil {
			return false, err
		}
		signaling := make([]consensus.SignalingEntry, len(ancestors))
		for i, a := range ancestors {
			signaling[i] = a
		}
		state = consensus.GetState(d, periodEnd, state, signaling)
		if state == consensus.StateActive || state == consensus.StateFailed {
			break
		}
	}
	return state == consensus.StateActive, nil
}
