package approximation

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.opencensus.io/trace"
	"golang.org/x/sync/singleflight"

	"go.viam.com/motionsampling/constraints"
	"go.viam.com/motionsampling/constraintsampler"
	"go.viam.com/motionsampling/logging"
)

// Builder populates a new approximation. It runs at most once at a time per descriptor.
type Builder func(ctx context.Context) (*ConstraintApproximation, error)

// Cache holds published approximations, shared by every planning context in the process. Lookups never
// wait on a population in progress: an entry is visible only once it has been completely built.
type Cache struct {
	logger logging.Logger

	mu      sync.RWMutex
	entries map[string]*ConstraintApproximation

	populating singleflight.Group
}

// NewCache returns an empty cache.
func NewCache(logger logging.Logger) *Cache {
	return &Cache{logger: logger, entries: map[string]*ConstraintApproximation{}}
}

// Lookup returns the published approximation for exactly d, group and strategy tag included.
func (c *Cache) Lookup(d constraints.Descriptor) (*ConstraintApproximation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ca, ok := c.entries[d.Key()]
	return ca, ok
}

// LookupSource adapts Lookup for a constraintsampler.Manager.
func (c *Cache) LookupSource(d constraints.Descriptor) (constraintsampler.StateSource, bool) {
	ca, ok := c.Lookup(d)
	if !ok {
		return nil, false
	}
	return ca, true
}

// Store publishes ca under d. Storing under a descriptor that already has an entry keeps the existing entry,
// which is returned.
func (c *Cache) Store(d constraints.Descriptor, ca *ConstraintApproximation) (*ConstraintApproximation, error) {
	if ca == nil {
		return nil, errors.New("cannot store a nil approximation")
	}
	if !ca.Descriptor().Equal(d) {
		return nil, errors.New("approximation was built for a different descriptor")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.entries[d.Key()]; ok {
		return existing, nil
	}
	c.entries[d.Key()] = ca
	return ca, nil
}

// Evict removes the entry for d, reporting whether there was one.
func (c *Cache) Evict(d constraints.Descriptor) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[d.Key()]
	delete(c.entries, d.Key())
	return ok
}

// Len returns the number of published entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns every published entry, ordered by descriptor.
func (c *Cache) Entries() []*ConstraintApproximation {
	c.mu.RLock()
	out := make([]*ConstraintApproximation, 0, len(c.entries))
	for _, ca := range c.entries {
		out = append(out, ca)
	}
	c.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Descriptor().Key() < out[j].Descriptor().Key() })
	return out
}

// Approximate returns the entry for d, running build to create it if there is none. Concurrent calls for the
// same descriptor share a single build; the entry is published only after build returns without error and with
// at least one state. A failed build leaves d unpopulated so a later call can retry it.
func (c *Cache) Approximate(ctx context.Context, d constraints.Descriptor, build Builder) (*ConstraintApproximation, error) {
	if ca, ok := c.Lookup(d); ok {
		return ca, nil
	}
	v, err, shared := c.populating.Do(d.Key(), func() (interface{}, error) {
		if ca, ok := c.Lookup(d); ok {
			return ca, nil
		}
		ctx, span := trace.StartSpan(ctx, "approximation::Approximate")
		defer span.End()
		ca, err := build(ctx)
		if err != nil {
			return nil, err
		}
		if ca == nil || ca.Len() == 0 {
			return nil, errors.Errorf("approximation %s has no states", d.Key())
		}
		c.logger.Debugf("built approximation %s with %d states", ca.Filename(), ca.Len())
		return c.Store(d, ca)
	})
	if err != nil {
		return nil, err
	}
	if shared {
		c.logger.Debug("approximation population was shared with a concurrent caller")
	}
	//nolint:forcetypeassert
	return v.(*ConstraintApproximation), nil
}
