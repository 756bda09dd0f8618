// Package cache provides in memory cache of fetched resources.
//
// Resource with clients is live, without clients it is dead. Cache capacity
// is shared: dead resources may use space not occupied by live resources,
// bounded by min and max dead capacity.
// * Cached resources are kept in LRU buckets indexed by floor(log2(size/accessCount)).
// Large and rarely used resources land into high buckets, and are pruned first.
// * Dead prune visits buckets from the highest. It destroys decoded data of dead resources first,
// and removes dead resources after, until dead size fits into 95% of dead capacity.
// Preloaded resources and cache validators are never removed by prune.
// * Live prune destroys decoded data of live resources, least recently accessed first.
// Data accessed less than min delay ago is kept, unless prune is forced.
//
// Cache is not thread safe and belongs to loader thread. Other threads post
// tasks to loader (see RemoveRequestFromSessionCaches).
package cache
