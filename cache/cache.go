package cache

import (
	"fmt"
	"math/bits"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/skipor/rescache/internal/tag"
	"github.com/skipor/rescache/log"
	"github.com/skipor/rescache/runloop"
)

const (
	DefaultCapacity                       = 8 << 20
	DefaultMinDelayBeforeLiveDecodedPrune = time.Second
	targetPrunePercentage                 = 0.95
)

type Config struct {
	Capacity        int64
	MinDeadCapacity int64
	MaxDeadCapacity int64
	// Live decoded data accessed recently will not be destroyed by not forced prune.
	MinDelayBeforeLiveDecodedPrune time.Duration
	Disabled                       bool
	// Owner receives deferred prune tasks. PruneSoon is no-op without owner.
	Owner runloop.Context
	// Metrics registry. New registry is created, if nil.
	Metrics metrics.Registry
}

func DefaultConfig() Config {
	return Config{
		Capacity:                       DefaultCapacity,
		MaxDeadCapacity:                DefaultCapacity,
		MinDelayBeforeLiveDecodedPrune: DefaultMinDelayBeforeLiveDecodedPrune,
	}
}

type resourceMap map[key]*Resource

// MemoryCache is not thread safe. All methods, and methods of resources it
// contains, should be called on owner thread.
type MemoryCache struct {
	log     log.Logger
	owner   runloop.Context
	metrics cacheMetrics
	now     func() time.Time

	disabled       bool
	inPruneLive    bool
	inPruneDead    bool
	pruneScheduled bool

	capacity        int64
	minDeadCapacity int64
	maxDeadCapacity int64
	minDelay        time.Duration
	liveSize        int64
	deadSize        int64

	sessions map[SessionID]resourceMap
	// buckets[i] contains resources with size/accessCount in [2^i, 2^(i+1)).
	buckets     []list
	liveDecoded list
}

func New(l log.Logger, conf Config) *MemoryCache {
	checkCapacities(conf.MinDeadCapacity, conf.MaxDeadCapacity, conf.Capacity)
	registry := conf.Metrics
	if registry == nil {
		registry = metrics.NewRegistry()
	}
	c := &MemoryCache{
		log:             l,
		owner:           conf.Owner,
		now:             time.Now,
		disabled:        conf.Disabled,
		capacity:        conf.Capacity,
		minDeadCapacity: conf.MinDeadCapacity,
		maxDeadCapacity: conf.MaxDeadCapacity,
		minDelay:        conf.MinDelayBeforeLiveDecodedPrune,
		sessions:        map[SessionID]resourceMap{},
		liveDecoded:     newList(liveLinks),
	}
	c.metrics = newCacheMetrics(c, registry)
	return c
}

func checkCapacities(minDead, maxDead, total int64) {
	if minDead < 0 || minDead > maxDead || maxDead > total {
		panic(fmt.Sprintf("invalid capacities: min dead %v, max dead %v, total %v", minDead, maxDead, total))
	}
}

// SetCapacities panics, if not minDead <= maxDead <= total.
func (c *MemoryCache) SetCapacities(minDead, maxDead, total int64) {
	checkCapacities(minDead, maxDead, total)
	c.minDeadCapacity, c.maxDeadCapacity, c.capacity = minDead, maxDead, total
	c.Prune()
}

func (c *MemoryCache) SetMinDelayBeforeLiveDecodedPrune(d time.Duration) { c.minDelay = d }

func (c *MemoryCache) Metrics() metrics.Registry { return c.metrics.registry }

func (c *MemoryCache) Capacity() int64 { return c.capacity }
func (c *MemoryCache) LiveSize() int64 { return c.liveSize }
func (c *MemoryCache) DeadSize() int64 { return c.deadSize }
func (c *MemoryCache) Size() int64     { return c.liveSize + c.deadSize }
func (c *MemoryCache) Disabled() bool  { return c.disabled }

// DeadCapacity is space not occupied by live resources, bounded by min and max dead capacity.
func (c *MemoryCache) DeadCapacity() int64 {
	capacity := c.capacity - min(c.liveSize, c.capacity)
	capacity = max(capacity, c.minDeadCapacity)
	return min(capacity, c.maxDeadCapacity)
}

func (c *MemoryCache) LiveCapacity() int64 { return c.capacity - c.DeadCapacity() }

// Len returns number of cached resources in all sessions.
func (c *MemoryCache) Len() (n int) {
	for _, resources := range c.sessions {
		n += len(resources)
	}
	return
}

// ResourceForRequest returns resource, or nil if it is not cached.
func (c *MemoryCache) ResourceForRequest(req Request, session SessionID) *Resource {
	resources, ok := c.sessions[session]
	if !ok {
		c.metrics.misses.Inc(1)
		return nil
	}
	r, ok := resources[req.key()]
	if !ok {
		c.metrics.misses.Inc(1)
		return nil
	}
	c.metrics.hits.Inc(1)
	return r
}

// Add inserts resource not in cache. Resource cached under same request is removed.
// Returns false, if cache is disabled.
func (c *MemoryCache) Add(r *Resource) bool {
	if c.disabled {
		return false
	}
	if r.inCache {
		panic(fmt.Sprintf("%s: add of resource already in cache", r))
	}
	defer c.checkInvariants()
	k := r.key()
	if old, ok := c.sessions[r.session][k]; ok {
		c.log.Debugf("Replace %s.", old)
		c.Remove(old)
	}
	c.ensureSessionMap(r.session)[k] = r
	r.cache = c
	r.inCache = true
	if r.accessCount != 0 {
		// Resource was cached before: its size is not accounted on access.
		c.adjustSize(r.HasClients(), r.Size())
	}
	if r.decodedSize != 0 && r.HasClients() {
		c.insertInLiveDecodedResourcesList(r)
	}
	c.ResourceAccessed(r)
	c.log.Debugf("Added %s.", r)
	c.PruneSoon()
	return true
}

func (c *MemoryCache) ensureSessionMap(session SessionID) resourceMap {
	resources, ok := c.sessions[session]
	if !ok {
		resources = resourceMap{}
		c.sessions[session] = resources
	}
	return resources
}

// Remove removes resource from cache and deletes it, if it is possible. Removing not cached resource
// only tries to delete it.
func (c *MemoryCache) Remove(r *Resource) {
	defer c.checkInvariants()
	if r.inCache {
		c.log.Debugf("Evict %s.", r)
		resources := c.sessions[r.session]
		if resources[r.key()] == r {
			delete(resources, r.key())
		}
		if len(resources) == 0 {
			delete(c.sessions, r.session)
		}
		r.inCache = false
		c.removeFromLRUList(r)
		c.removeFromLiveDecodedResourcesList(r)
		c.adjustSize(r.HasClients(), -r.Size())
		c.metrics.evictions.Inc(1)
	}
	r.deleteIfPossible()
}

// ResourceAccessed should be called on every cache hit. Access count moves
// resource to bucket of smaller size/accessCount.
func (c *MemoryCache) ResourceAccessed(r *Resource) {
	if !r.inCache {
		return
	}
	// Bucket depends on access count.
	c.removeFromLRUList(r)
	// Size is accounted on first access.
	if r.accessCount == 0 {
		c.adjustSize(r.HasClients(), r.Size())
	}
	r.increaseAccessCount()
	c.insertInLRUList(r)
}

// BeginRevalidation makes validator replace resource in cache, while validation request is in flight.
func (c *MemoryCache) BeginRevalidation(resource, validator *Resource) {
	if resource.key() != validator.key() || resource.session != validator.session {
		panic(fmt.Sprintf("validator %s doesn't match %s", validator, resource))
	}
	validator.SetResourceToRevalidate(resource)
	c.Remove(resource)
	c.Add(validator)
}

// RevalidationSucceeded returns revalidated resource to cache instead of validator,
// and moves validator clients to it. If validator was evicted while request was in flight,
// resource stays out of cache.
func (c *MemoryCache) RevalidationSucceeded(validator *Resource, response Response) {
	resource := validator.resourceToRevalidate
	if resource == nil {
		panic(fmt.Sprintf("%s: is not validator", validator))
	}
	if resource.inCache {
		panic(fmt.Sprintf("%s: revalidated resource is in cache", validator))
	}
	if !validator.inCache {
		c.log.Debugf("Revalidation succeeded %s, but validator was evicted.", resource)
		resource.updateResponseAfterRevalidation(response)
		c.finishRevalidation(validator)
		return
	}
	c.log.Debugf("Revalidation succeeded %s.", resource)
	// Validator is not deleted on remove: it still references resource.
	c.Remove(validator)

	defer c.checkInvariants()
	c.ensureSessionMap(resource.session)[resource.key()] = resource
	resource.cache = c
	resource.inCache = true
	resource.updateResponseAfterRevalidation(response)
	c.insertInLRUList(resource)
	if resource.decodedSize != 0 && resource.HasClients() && !resource.inLiveDecoded {
		c.insertInLiveDecodedResourcesList(resource)
	}
	if delta := resource.Size(); delta != 0 {
		c.adjustSize(resource.HasClients(), delta)
	}
	c.finishRevalidation(validator)
}

func (c *MemoryCache) finishRevalidation(validator *Resource) {
	validator.switchClientsToRevalidatedResource()
	// Validation request is complete. Validator has nothing to load.
	validator.loading = false
	validator.ClearResourceToRevalidate()
}

// RevalidationFailed unlinks validator. Validator stays in cache and will be filled with fresh response.
func (c *MemoryCache) RevalidationFailed(validator *Resource) {
	if validator.resourceToRevalidate == nil {
		panic(fmt.Sprintf("%s: is not validator", validator))
	}
	c.log.Debugf("Revalidation failed %s.", validator)
	validator.ClearResourceToRevalidate()
}

// SetDisabled removes all resources, if disabled.
func (c *MemoryCache) SetDisabled(disabled bool) {
	c.disabled = disabled
	if !disabled {
		return
	}
	c.EvictResources()
}

func (c *MemoryCache) EvictResources() {
	for session := range c.sessions {
		c.EvictSessionResources(session)
	}
}

func (c *MemoryCache) EvictSessionResources(session SessionID) {
	resources, ok := c.sessions[session]
	if !ok {
		return
	}
	toRemove := make([]*Resource, 0, len(resources))
	for _, r := range resources {
		toRemove = append(toRemove, r)
	}
	for _, r := range toRemove {
		c.Remove(r)
	}
}

// RemoveRequest removes resource cached for request in every session.
func (c *MemoryCache) RemoveRequest(req Request) {
	k := req.key()
	var toRemove []*Resource
	for _, resources := range c.sessions {
		if r, ok := resources[k]; ok {
			toRemove = append(toRemove, r)
		}
	}
	for _, r := range toRemove {
		c.Remove(r)
	}
}

func bucketIndex(r *Resource) int {
	accessCount := max(uint64(r.accessCount), 1)
	sizePerAccess := uint64(r.Size()) / accessCount
	if sizePerAccess == 0 {
		return 0
	}
	return bits.Len64(sizePerAccess) - 1
}

func (c *MemoryCache) lruListFor(r *Resource) (int, *list) {
	i := bucketIndex(r)
	for len(c.buckets) <= i {
		c.buckets = append(c.buckets, newList(lruLinks))
	}
	return i, &c.buckets[i]
}

func (c *MemoryCache) removeFromLRUList(r *Resource) {
	if r.lruIndex < 0 {
		return
	}
	if tag.Debug && r.lruIndex != bucketIndex(r) {
		panic(fmt.Sprintf("%s: in bucket %v, but should be in %v", r, r.lruIndex, bucketIndex(r)))
	}
	c.buckets[r.lruIndex].remove(r)
	r.lruIndex = -1
}

func (c *MemoryCache) insertInLRUList(r *Resource) {
	if !r.inCache || r.lruIndex >= 0 {
		panic(fmt.Sprintf("%s: invalid LRU insert", r))
	}
	i, l := c.lruListFor(r)
	l.pushBack(r)
	r.lruIndex = i
}

func (c *MemoryCache) insertInLiveDecodedResourcesList(r *Resource) {
	if !r.inCache || r.inLiveDecoded {
		return
	}
	c.liveDecoded.pushBack(r)
	r.inLiveDecoded = true
}

func (c *MemoryCache) removeFromLiveDecodedResourcesList(r *Resource) {
	if !r.inLiveDecoded {
		return
	}
	c.liveDecoded.remove(r)
	r.inLiveDecoded = false
}

func (c *MemoryCache) addToLiveResourcesSize(r *Resource) {
	c.adjustSize(true, r.Size())
	c.adjustSize(false, -r.Size())
}

func (c *MemoryCache) removeFromLiveResourcesSize(r *Resource) {
	c.adjustSize(true, -r.Size())
	c.adjustSize(false, r.Size())
}

// adjustSize is the only mutator of live and dead sizes.
func (c *MemoryCache) adjustSize(live bool, delta int64) {
	if live {
		c.liveSize += delta
		if c.liveSize < 0 {
			panic(fmt.Sprintf("negative live size %v after delta %v", c.liveSize, delta))
		}
		return
	}
	c.deadSize += delta
	if c.deadSize < 0 {
		panic(fmt.Sprintf("negative dead size %v after delta %v", c.deadSize, delta))
	}
}
