package sweep

import (
	"errors"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"xdonate/core/events"
)

var (
	// ErrUnauthorized indicates the caller is not a member of the sweeper set.
	ErrUnauthorized = errors.New("sweep: caller is not a sweeper")
	// ErrAlreadySweeper indicates the target of an add is already a member.
	ErrAlreadySweeper = errors.New("sweep: already a sweeper")
	// ErrNotSweeper indicates the target of a removal is not a member.
	ErrNotSweeper = errors.New("sweep: not a sweeper")
)

// Registry is the mutable set of principals permitted to trigger sweeps or
// mutate the set itself. Mutations are gated on the caller's own membership;
// the set does not special-case self-removal or emptiness.
type Registry struct {
	mu      sync.RWMutex
	members map[common.Address]struct{}
	emitter events.Emitter
}

// NewRegistry constructs a registry seeded with the deploying principal.
func NewRegistry(deployer common.Address) *Registry {
	return &Registry{
		members: map[common.Address]struct{}{deployer: {}},
		emitter: events.NoopEmitter{},
	}
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (r *Registry) SetEmitter(emitter events.Emitter) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if emitter == nil {
		r.emitter = events.NoopEmitter{}
		return
	}
	r.emitter = emitter
}

// IsSweeper reports whether the principal is a member of the set.
func (r *Registry) IsSweeper(addr common.Address) bool {
	if r == nil {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.members[addr]
	return ok
}

// Add inserts target into the set. The caller must already be a member and
// the target must not be.
func (r *Registry) Add(caller, target common.Address) error {
	if r == nil {
		return ErrUnauthorized
	}
	r.mu.Lock()
	if _, ok := r.members[caller]; !ok {
		r.mu.Unlock()
		return ErrUnauthorized
	}
	if _, ok := r.members[target]; ok {
		r.mu.Unlock()
		return ErrAlreadySweeper
	}
	r.members[target] = struct{}{}
	emitter := r.emitter
	r.mu.Unlock()
	emitter.Emit(sweepEvent{evt: NewSweeperAddedEvent(target, caller)})
	return nil
}

// Remove deletes target from the set. The caller must be a member and the
// target must currently be one. Removing the caller themself, or the last
// remaining member, is permitted.
func (r *Registry) Remove(caller, target common.Address) error {
	if r == nil {
		return ErrUnauthorized
	}
	r.mu.Lock()
	if _, ok := r.members[caller]; !ok {
		r.mu.Unlock()
		return ErrUnauthorized
	}
	if _, ok := r.members[target]; !ok {
		r.mu.Unlock()
		return ErrNotSweeper
	}
	delete(r.members, target)
	emitter := r.emitter
	r.mu.Unlock()
	emitter.Emit(sweepEvent{evt: NewSweeperRemovedEvent(target, caller)})
	return nil
}

// Seed inserts a principal without a caller check. Used when hydrating the
// set from persisted state at startup.
func (r *Registry) Seed(target common.Address) {
	if r == nil {
		return
	}
	r.mu.Lock()
	r.members[target] = struct{}{}
	r.mu.Unlock()
}

// Members returns the current membership in stable order.
func (r *Registry) Members() []common.Address {
	if r == nil {
		return nil
	}
	r.mu.RLock()
	out := make([]common.Address, 0, len(r.members))
	for addr := range r.members {
		out = append(out, addr)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Hex() < out[j].Hex() })
	return out
}
