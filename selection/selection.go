// Package selection keeps the displayed focus result in step with the
// image the user most recently picked.
//
// Every new pick supersedes the previous one. Analyses still running for
// an older pick may finish later; their results are dropped instead of
// overwriting the newer one.
package selection

import (
	"context"
	"image"
	"sync"
	"sync/atomic"

	"github.com/stevecastle/galleria/focus"
)

// Ticket identifies one pick.
type Ticket uint64

// Stats are operational counters.
type Stats struct {
	Selections uint64 `json:"selections"`
	Accepted   uint64 `json:"accepted"`
	Dropped    uint64 `json:"dropped"`
}

// Tracker holds the result for the latest pick. The zero value is ready
// to use.
type Tracker struct {
	mu      sync.Mutex
	latest  Ticket
	result  focus.Result
	hasData bool

	accepted atomic.Uint64
	dropped  atomic.Uint64
}

// Select starts a new pick. Whatever was displayed is cleared.
func (t *Tracker) Select() Ticket {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.latest++
	t.result = focus.Result{}
	t.hasData = false
	return t.latest
}

// Clear forgets the current pick, as when the file input is emptied.
func (t *Tracker) Clear() {
	t.Select()
}

// Publish records res for ticket if ticket is still the latest pick.
func (t *Tracker) Publish(ticket Ticket, res focus.Result) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ticket != t.latest {
		t.dropped.Add(1)
		return false
	}
	t.result = res
	t.hasData = true
	t.accepted.Add(1)
	return true
}

// Current returns the displayed result. ok is false while the latest
// pick has no result yet.
func (t *Tracker) Current() (res focus.Result, ticket Ticket, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.result, t.latest, t.hasData
}

// Stats returns the counters.
func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	sel := uint64(t.latest)
	t.mu.Unlock()
	return Stats{
		Selections: sel,
		Accepted:   t.accepted.Load(),
		Dropped:    t.dropped.Load(),
	}
}

// Outcome is delivered once an Evaluate call finishes.
type Outcome struct {
	Ticket   Ticket
	Result   focus.Result
	Accepted bool
}

// Evaluate analyses surface on its own goroutine and publishes the result
// for ticket. The returned channel yields exactly one Outcome. If ctx is
// done first, nothing is published and Accepted is false.
func (t *Tracker) Evaluate(ctx context.Context, ticket Ticket, surface *image.NRGBA, c *focus.Classifier) <-chan Outcome {
	out := make(chan Outcome, 1)
	go func() {
		defer close(out)
		res := c.Analyze(surface)
		if ctx.Err() != nil {
			t.dropped.Add(1)
			out <- Outcome{Ticket: ticket, Result: res}
			return
		}
		out <- Outcome{Ticket: ticket, Result: res, Accepted: t.Publish(ticket, res)}
	}()
	return out
}

// Registry hands out one Tracker per key (user).
type Registry struct {
	trackers sync.Map // map[string]*Tracker
}

// For returns the tracker for key, creating it on first use.
func (r *Registry) For(key string) *Tracker {
	v, _ := r.trackers.LoadOrStore(key, &Tracker{})
	return v.(*Tracker)
}

// Forget drops the tracker for key.
func (r *Registry) Forget(key string) {
	r.trackers.Delete(key)
}
