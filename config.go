package rescache

import (
	"io"

	"github.com/facebookgo/stackerr"

	"github.com/skipor/rescache/cache"
	"github.com/skipor/rescache/log"
)

type Config struct {
	LogDestination io.Writer
	LogLevel       log.Level
	Cache          cache.Config
	Load           LoadConfig
}

// LoadConfig describes synthetic page load. Every worker is page script,
// that fetches resources through document memory cache.
type LoadConfig struct {
	Workers int
	// Sessions are distributed between workers round robin.
	Sessions int
	// Requests made by every worker.
	Requests int
	// Resources is number of distinct resource URLs. Popularity of resources is zipf distributed.
	Resources       int
	MaxResourceSize int64
	// DecodedSizeFactor is decoded to encoded size ratio. Zero means no decoded data.
	DecodedSizeFactor int
	// LiveResources is number of last fetched resources, that worker page keeps live.
	LiveResources int
	// RevalidateEvery n-th hit of resource revalidates it. Zero disables revalidation.
	RevalidateEvery int
	// RemoveEvery n-th worker request removes resource from all sessions caches. Zero disables.
	RemoveEvery int
	// ReleaseMemoryEvery n-th load signals non critical memory pressure. Zero disables.
	ReleaseMemoryEvery int
	// PartitionDomain is top level page domain. Resources are partitioned when it is set.
	PartitionDomain string
	Seed            int64
}

func DefaultLoadConfig() LoadConfig {
	return LoadConfig{
		Workers:           4,
		Sessions:          2,
		Requests:          1000,
		Resources:         500,
		MaxResourceSize:   64 << 10,
		DecodedSizeFactor: 2,
		LiveResources:     16,
		RevalidateEvery:   10,
		RemoveEvery:       100,
		Seed:              1,
	}
}

func (c LoadConfig) validate() error {
	switch {
	case c.Workers <= 0:
		return stackerr.Newf("workers should be positive, got %v", c.Workers)
	case c.Sessions <= 0:
		return stackerr.Newf("sessions should be positive, got %v", c.Sessions)
	case c.Resources <= 0:
		return stackerr.Newf("resources should be positive, got %v", c.Resources)
	case c.MaxResourceSize <= 0:
		return stackerr.Newf("max resource size should be positive, got %v", c.MaxResourceSize)
	case c.Requests < 0 || c.DecodedSizeFactor < 0 || c.LiveResources < 0,
		c.RevalidateEvery < 0 || c.RemoveEvery < 0 || c.ReleaseMemoryEvery < 0:
		return stackerr.Newf("negative load parameter: %+v", c)
	}
	return nil
}
