package classifier

import (
	"sync/atomic"

	"github.com/nivex/fastgate/internal/core"
)

// MaxQueues is the number of logical receive queues the resolver can
// bind, matching the fixed slot count of the fast-path socket map.
const MaxQueues = 64

// Resolver maps a logical receive queue index to the endpoint
// registered for it by the transport subsystem. Registration changes
// are rare; resolution runs on every Redirect decision, so slots are
// plain atomics rather than a locked map.
type Resolver struct {
	// 0 means unregistered; otherwise endpoint id + 1.
	slots [MaxQueues]atomic.Int64
}

// NewResolver creates an empty resolver.
func NewResolver() *Resolver {
	return &Resolver{}
}

// Register binds an endpoint id to a queue slot, replacing any
// previous binding. Endpoint ids must be non-negative; -1 would
// collide with the empty-slot encoding.
func (r *Resolver) Register(queue int, endpoint int64) error {
	if queue < 0 || queue >= MaxQueues {
		return core.ErrQueueOutOfRange
	}
	if endpoint < 0 {
		return core.ErrEndpointInvalid
	}
	r.slots[queue].Store(endpoint + 1)
	return nil
}

// Unregister clears the binding for a queue slot.
func (r *Resolver) Unregister(queue int) {
	if queue < 0 || queue >= MaxQueues {
		return
	}
	r.slots[queue].Store(0)
}

// Resolve returns the endpoint registered for queue. ok is false for
// unbound or out-of-range queues; the caller must degrade the
// Redirect to Pass in that case.
func (r *Resolver) Resolve(queue int) (endpoint int64, ok bool) {
	if queue < 0 || queue >= MaxQueues {
		return 0, false
	}
	v := r.slots[queue].Load()
	if v == 0 {
		return 0, false
	}
	return v - 1, true
}
