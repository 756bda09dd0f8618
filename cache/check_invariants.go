//go:build !debug

package cache

func (c *MemoryCache) checkInvariants() {}
