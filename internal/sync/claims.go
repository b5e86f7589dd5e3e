package sync

import (
	"sync"

	"github.com/umbra-tech/umbra-wallet/pkg/types"
)

// Claims tracks which accounts are currently queued or being processed.
// At most one claim exists per account id at a time, which is what
// guarantees no two workers ever sync the same account concurrently.
type Claims struct {
	mu       sync.Mutex
	inflight map[types.AccountID]struct{}
}

// NewClaims creates an empty claim set.
func NewClaims() *Claims {
	return &Claims{inflight: make(map[types.AccountID]struct{})}
}

// TryClaim claims the account if it is not already claimed. Returns false
// if someone else holds the claim.
func (c *Claims) TryClaim(id types.AccountID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.inflight[id]; ok {
		return false
	}
	c.inflight[id] = struct{}{}
	return true
}

// Release gives up the claim on an account. Releasing an unclaimed
// account is a no-op.
func (c *Claims) Release(id types.AccountID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, id)
}

// Len returns the number of outstanding claims.
func (c *Claims) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.inflight)
}
