package message

import (
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// PendingTable maps an in-flight operation id to whatever context the
// originator needs to reunite with the eventual response. Entries expire
// on their own if a response never arrives, so a dropped peer can't leak
// memory forever.
type PendingTable[T any] struct {
	cache *ttlcache.Cache[uint16, T]
}

// NewPendingTable returns a table whose entries expire after ttl unless
// resolved first via Take.
func NewPendingTable[T any](ttl time.Duration) *PendingTable[T] {
	c := ttlcache.New[uint16, T](
		ttlcache.WithTTL[uint16, T](ttl),
	)
	go c.Start()
	return &PendingTable[T]{cache: c}
}

// Put records ctx as awaiting a response for id. id must not be 0:
// one-shot operations never appear in the pending table.
func (p *PendingTable[T]) Put(id uint16, ctx T) {
	if id == 0 {
		return
	}
	p.cache.Set(id, ctx, ttlcache.DefaultTTL)
}

// Take removes and returns the awaiting context for id, if any.
func (p *PendingTable[T]) Take(id uint16) (T, bool) {
	item := p.cache.Get(id, ttlcache.WithDisableTouchOnHit[uint16, T]())
	if item == nil {
		var zero T
		return zero, false
	}
	p.cache.Delete(id)
	return item.Value(), true
}

// Len reports the number of operations currently in flight.
func (p *PendingTable[T]) Len() int {
	return p.cache.Len()
}

// Close stops the background eviction loop.
func (p *PendingTable[T]) Close() {
	p.cache.Stop()
}
