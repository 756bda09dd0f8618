package cache

import (
	"github.com/skipor/rescache/runloop"
)

func (c *MemoryCache) NeedsPruning() bool {
	return c.liveSize+c.deadSize > c.capacity || c.deadSize > c.maxDeadCapacity
}

// PruneSoon schedules single deferred prune on owner context.
func (c *MemoryCache) PruneSoon() {
	if c.owner == nil || c.pruneScheduled || !c.NeedsPruning() {
		return
	}
	c.pruneScheduled = true
	c.owner.PostTask(runloop.NewTask(pruneTask{c}))
}

// pruneTask is posted by cache to its owner context, so it never leaves owner thread.
type pruneTask struct {
	cache *MemoryCache
}

func (t pruneTask) Perform(runloop.Context) {
	t.cache.pruneScheduled = false
	t.cache.Prune()
}

// Prune prunes dead resources first, and live decoded data after.
func (c *MemoryCache) Prune() {
	if !c.NeedsPruning() {
		return
	}
	c.metrics.prune.Time(func() {
		c.PruneDeadResources()
		c.PruneLiveResources(false)
	})
}

// ReleaseMemory destroys all live decoded data. In critical case all resources are evicted.
func (c *MemoryCache) ReleaseMemory(critical bool) {
	c.log.Infof("Release memory. Critical: %v.", critical)
	if critical {
		c.EvictResources()
		return
	}
	c.PruneLiveResources(true)
}

func targetSize(capacity int64) int64 {
	return int64(float64(capacity) * targetPrunePercentage)
}

// PruneLiveResources destroys decoded data of live resources, until live size
// fits into live capacity. Forced prune ignores min delay and prunes all.
func (c *MemoryCache) PruneLiveResources(force bool) {
	var capacity int64
	if !force {
		capacity = c.LiveCapacity()
	}
	if capacity != 0 && c.liveSize <= capacity {
		return
	}
	c.PruneLiveResourcesToSize(targetSize(capacity), force)
}

// PruneLiveResourcesToSize visits live decoded resources from least recently
// accessed. Not forced prune stops on first resource accessed later than min delay ago.
func (c *MemoryCache) PruneLiveResourcesToSize(target int64, force bool) {
	if c.inPruneLive {
		return
	}
	c.inPruneLive = true
	defer func() { c.inPruneLive = false }()
	defer c.checkInvariants()

	now := c.now()
	// Destroy of decoded data changes live decoded list, so iterate over snapshot.
	for _, r := range c.liveDecoded.resources() {
		if !r.inLiveDecoded {
			continue
		}
		if !r.IsLoaded() || r.decodedSize == 0 {
			continue
		}
		if !force && now.Sub(r.lastDecodedAccess) < c.minDelay {
			// List is sorted by access time, so other resources are accessed later.
			return
		}
		if r.purgeable {
			continue
		}
		c.log.Debugf("Destroy decoded data of live %s.", r)
		r.DestroyDecodedData()
		if target != 0 && c.liveSize <= target {
			return
		}
	}
}

func (c *MemoryCache) PruneDeadResources() {
	capacity := c.DeadCapacity()
	if capacity != 0 && c.deadSize <= capacity {
		return
	}
	c.PruneDeadResourcesToSize(targetSize(capacity))
}

// PruneDeadResourcesToSize destroys decoded data of dead resources first, and then
// removes them. Buckets are visited from largest size per access to smallest.
func (c *MemoryCache) PruneDeadResourcesToSize(target int64) {
	if c.inPruneDead {
		return
	}
	c.inPruneDead = true
	defer func() { c.inPruneDead = false }()
	defer c.checkInvariants()
	defer c.trimBuckets()

	for i := len(c.buckets) - 1; i >= 0; i-- {
		snapshot := c.holdBucket(i)
		// Decoded data is cheaper to recreate, so destroy it first.
		for _, h := range snapshot {
			r := h.Resource()
			if !r.inCache {
				continue
			}
			// Destroy may move resource to smaller bucket, it's ok.
			if !r.HasClients() && !r.IsPreloaded() && r.IsLoaded() && r.decodedSize != 0 {
				c.log.Debugf("Destroy decoded data of dead %s.", r)
				r.DestroyDecodedData()
				if target != 0 && c.deadSize <= target {
					releaseAll(snapshot)
					return
				}
			}
		}
		for _, h := range snapshot {
			r := h.Resource()
			if !r.inCache {
				continue
			}
			if !r.HasClients() && !r.IsPreloaded() && !r.IsCacheValidator() {
				c.Remove(r)
				if target != 0 && c.deadSize <= target {
					releaseAll(snapshot)
					return
				}
			}
		}
		releaseAll(snapshot)
	}
}

// holdBucket returns handles of bucket resources, so they are not deleted during prune.
func (c *MemoryCache) holdBucket(i int) []*Handle {
	resources := c.buckets[i].resources()
	handles := make([]*Handle, len(resources))
	for j, r := range resources {
		handles[j] = r.NewHandle()
	}
	return handles
}

func releaseAll(handles []*Handle) {
	for _, h := range handles {
		h.Release()
	}
}

func (c *MemoryCache) trimBuckets() {
	n := len(c.buckets)
	for n > 0 && c.buckets[n-1].empty() {
		n--
	}
	c.buckets = c.buckets[:n]
}
