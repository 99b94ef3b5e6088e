package transport

import (
	"sync"
	"time"

	"github.com/aidevmon/mcp-transport/internal/protocol"
)

// result carries the single outcome of a pending request.
type result struct {
	env *protocol.Envelope
	err error
}

// pendingRequest is the bookkeeping for one in-flight request. The channel
// is buffered so completion never blocks the dispatcher; removal from the
// registry under its lock guarantees exactly-once completion.
type pendingRequest struct {
	messageID string
	createdAt time.Time
	deadline  time.Time
	ch        chan result
	timer     *time.Timer
}

// recentResolved bounds the memory of already-completed message ids, kept
// so duplicate or late correlated responses can be told apart from
// genuinely unsolicited traffic.
const recentResolved = 128

type pendingRegistry struct {
	mu     sync.Mutex
	reqs   map[string]*pendingRequest
	recent map[string]struct{}
	order  []string // insertion order of recent, oldest first
}

func newPendingRegistry() *pendingRegistry {
	return &pendingRegistry{
		reqs:   make(map[string]*pendingRequest),
		recent: make(map[string]struct{}),
	}
}

// add registers a pending request and arms its deadline timer. onExpire
// runs once when the deadline elapses before a response arrives.
func (r *pendingRegistry) add(messageID string, timeout time.Duration, onExpire func(messageID string)) *pendingRequest {
	now := time.Now()
	req := &pendingRequest{
		messageID: messageID,
		createdAt: now,
		deadline:  now.Add(timeout),
		ch:        make(chan result, 1),
	}
	r.mu.Lock()
	r.reqs[messageID] = req
	// armed under the lock: expiry goes through takeByID, which reads
	// req.timer under the same lock
	req.timer = time.AfterFunc(timeout, func() { onExpire(messageID) })
	r.mu.Unlock()
	return req
}

// take removes and returns the pending request matched by the inbound
// envelope: first by message_id, then by parent_id. The second return
// distinguishes a fresh match (true) from no match.
func (r *pendingRegistry) take(env *protocol.Envelope) (*pendingRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if req, ok := r.reqs[env.Context.MessageID]; ok {
		r.removeLocked(req)
		return req, true
	}
	if env.Context.ParentID != "" {
		if req, ok := r.reqs[env.Context.ParentID]; ok {
			r.removeLocked(req)
			return req, true
		}
	}
	return nil, false
}

// takeByID removes the pending request with the given id, if still present.
func (r *pendingRegistry) takeByID(messageID string) (*pendingRequest, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	req, ok := r.reqs[messageID]
	if ok {
		r.removeLocked(req)
	}
	return req, ok
}

// wasResolved reports whether the envelope correlates with a request that
// already completed; such duplicates are logged and dropped upstream.
func (r *pendingRegistry) wasResolved(env *protocol.Envelope) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.recent[env.Context.MessageID]; ok {
		return true
	}
	if env.Context.ParentID != "" {
		if _, ok := r.recent[env.Context.ParentID]; ok {
			return true
		}
	}
	return false
}

// failAll completes every pending request with err and empties the registry.
func (r *pendingRegistry) failAll(err error) {
	r.mu.Lock()
	taken := make([]*pendingRequest, 0, len(r.reqs))
	for _, req := range r.reqs {
		r.removeLocked(req)
		taken = append(taken, req)
	}
	r.mu.Unlock()
	for _, req := range taken {
		req.complete(result{err: err})
	}
}

func (r *pendingRegistry) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reqs)
}

// removeLocked unlinks req and remembers its id in the bounded recent set.
func (r *pendingRegistry) removeLocked(req *pendingRequest) {
	delete(r.reqs, req.messageID)
	if req.timer != nil {
		req.timer.Stop()
	}
	if _, ok := r.recent[req.messageID]; !ok {
		r.recent[req.messageID] = struct{}{}
		r.order = append(r.order, req.messageID)
		if len(r.order) > recentResolved {
			delete(r.recent, r.order[0])
			r.order = r.order[1:]
		}
	}
}

// complete delivers the outcome. The buffered channel plus registry removal
// make a second call impossible through normal paths; the select keeps even
// a misuse from blocking.
func (p *pendingRequest) complete(res result) {
	select {
	case p.ch <- res:
	default:
	}
}
