package goalsampler

import (
	"sync"

	"go.viam.com/motionsampling/statespace"
)

// GoalPool is an append-only sequence of goal states. One producer may append while consumers read; entries
// are copied in before they become visible and never change afterwards.
type GoalPool struct {
	mu      sync.RWMutex
	states  []statespace.State
	changed chan struct{}
}

// NewGoalPool returns an empty pool.
func NewGoalPool() *GoalPool {
	return &GoalPool{changed: make(chan struct{})}
}

// Append publishes a copy of s and returns the new pool size.
func (p *GoalPool) Append(s statespace.State) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, s.Copy())
	p.notifyLocked()
	return len(p.states)
}

// Len is the number of published states.
func (p *GoalPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.states)
}

// At returns a copy of the i-th published state, in discovery order.
func (p *GoalPool) At(i int) statespace.State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.states[i].Copy()
}

// CopyAt writes the i-th published state into out.
func (p *GoalPool) CopyAt(i int, out statespace.State) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	copy(out, p.states[i])
}

// States returns copies of every published state.
func (p *GoalPool) States() []statespace.State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]statespace.State, len(p.states))
	for i, s := range p.states {
		out[i] = s.Copy()
	}
	return out
}

// changes returns a channel closed at the next append or notify.
func (p *GoalPool) changes() <-chan struct{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.changed
}

func (p *GoalPool) notify() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.notifyLocked()
}

func (p *GoalPool) notifyLocked() {
	close(p.changed)
	p.changed = make(chan struct{})
}
