// Package config contains user facing configuration of rescache command and its parsing.
package config

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/dustin/go-humanize"
	"github.com/facebookgo/stackerr"
	"gopkg.in/yaml.v3"

	"github.com/skipor/rescache"
	"github.com/skipor/rescache/cache"
	"github.com/skipor/rescache/log"
)

type Config struct {
	LogDestination string      `json:"log-destination,omitempty" yaml:"log-destination,omitempty"` // Stdout, stderr, or filepath.
	LogLevel       string      `json:"log-level,omitempty" yaml:"log-level,omitempty"`
	Cache          CacheConfig `json:"cache,omitempty" yaml:"cache,omitempty"`
	Load           LoadConfig  `json:"load,omitempty" yaml:"load,omitempty"`
}

// Size values: 8MiB, 64KiB, 1000000. Decimal units (8MB) are powers of 1000.
type CacheConfig struct {
	Capacity        string `json:"capacity,omitempty" yaml:"capacity,omitempty"`
	MinDeadCapacity string `json:"min-dead-capacity,omitempty" yaml:"min-dead-capacity,omitempty"`
	MaxDeadCapacity string `json:"max-dead-capacity,omitempty" yaml:"max-dead-capacity,omitempty"`
	// Duration value: 1s, 500ms.
	MinDelayBeforeLiveDecodedPrune string `json:"min-delay-before-live-decoded-prune,omitempty" yaml:"min-delay-before-live-decoded-prune,omitempty"`
	Disabled                       bool   `json:"disabled,omitempty" yaml:"disabled,omitempty"`
}

type LoadConfig struct {
	Workers            int    `json:"workers,omitempty" yaml:"workers,omitempty"`
	Sessions           int    `json:"sessions,omitempty" yaml:"sessions,omitempty"`
	Requests           int    `json:"requests,omitempty" yaml:"requests,omitempty"`
	Resources          int    `json:"resources,omitempty" yaml:"resources,omitempty"`
	MaxResourceSize    string `json:"max-resource-size,omitempty" yaml:"max-resource-size,omitempty"`
	DecodedSizeFactor  int    `json:"decoded-size-factor,omitempty" yaml:"decoded-size-factor,omitempty"`
	LiveResources      int    `json:"live-resources,omitempty" yaml:"live-resources,omitempty"`
	RevalidateEvery    int    `json:"revalidate-every,omitempty" yaml:"revalidate-every,omitempty"`
	RemoveEvery        int    `json:"remove-every,omitempty" yaml:"remove-every,omitempty"`
	ReleaseMemoryEvery int    `json:"release-memory-every,omitempty" yaml:"release-memory-every,omitempty"`
	PartitionDomain    string `json:"partition-domain,omitempty" yaml:"partition-domain,omitempty"`
	Seed               int64  `json:"seed,omitempty" yaml:"seed,omitempty"`
}

func Default() *Config {
	load := rescache.DefaultLoadConfig()
	return &Config{
		LogDestination: "stderr",
		LogLevel:       "info",
		Cache: CacheConfig{
			Capacity:                       "8MiB",
			MaxDeadCapacity:                "8MiB",
			MinDelayBeforeLiveDecodedPrune: cache.DefaultMinDelayBeforeLiveDecodedPrune.String(),
		},
		Load: LoadConfig{
			Workers:           load.Workers,
			Sessions:          load.Sessions,
			Requests:          load.Requests,
			Resources:         load.Resources,
			MaxResourceSize:   humanize.IBytes(uint64(load.MaxResourceSize)),
			DecodedSizeFactor: load.DecodedSizeFactor,
			LiveResources:     load.LiveResources,
			RevalidateEvery:   load.RevalidateEvery,
			RemoveEvery:       load.RemoveEvery,
			Seed:              load.Seed,
		},
	}
}

// Merge overwrites def values with non zero override values.
func Merge(def, override *Config) error {
	err := mergo.Merge(def, override, mergo.WithOverride)
	return stackerr.Wrap(err)
}

// Load reads file into conf. YAML is expected for .yaml and .yml files, JSON otherwise.
// Values missing in file are left untouched.
func Load(filename string, conf *Config) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return stackerr.Newf("Config file read error: %v", err)
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, conf)
	default:
		err = json.Unmarshal(data, conf)
	}
	if err != nil {
		return stackerr.Newf("Config %s parse error: %v", filename, err)
	}
	return nil
}

func Marshal(conf *Config) []byte {
	data, err := json.Marshal(conf)
	if err != nil {
		panic(err)
	}
	return data
}

func MarshalYAML(conf *Config) []byte {
	data, err := yaml.Marshal(conf)
	if err != nil {
		panic(err)
	}
	return data
}

func Parse(conf Config) (rconf rescache.Config, err error) {
	rconf.LogDestination, err = logDestination(conf.LogDestination)
	if err != nil {
		err = stackerr.Newf("Log destination open error: %v", err)
		return
	}
	rconf.LogLevel, err = log.LevelFromString(conf.LogLevel)
	if err != nil {
		err = stackerr.Newf("Log level parse error: %v", err)
		return
	}
	rconf.Cache, err = parseCache(conf.Cache)
	if err != nil {
		return
	}
	rconf.Load, err = parseLoad(conf.Load)
	return
}

func parseCache(conf CacheConfig) (cconf cache.Config, err error) {
	sizes := []struct {
		name string
		val  string
		dst  *int64
	}{
		{"Capacity", conf.Capacity, &cconf.Capacity},
		{"Min dead capacity", conf.MinDeadCapacity, &cconf.MinDeadCapacity},
		{"Max dead capacity", conf.MaxDeadCapacity, &cconf.MaxDeadCapacity},
	}
	for _, s := range sizes {
		*s.dst, err = parseSize(s.val)
		if err != nil {
			err = stackerr.Newf("%s parse error: %v", s.name, err)
			return
		}
	}
	if cconf.MinDeadCapacity > cconf.MaxDeadCapacity || cconf.MaxDeadCapacity > cconf.Capacity {
		err = stackerr.Newf("Invalid capacities: min dead %s > max dead %s or max dead > capacity %s.",
			conf.MinDeadCapacity, conf.MaxDeadCapacity, conf.Capacity)
		return
	}
	if conf.MinDelayBeforeLiveDecodedPrune != "" {
		cconf.MinDelayBeforeLiveDecodedPrune, err = time.ParseDuration(conf.MinDelayBeforeLiveDecodedPrune)
		if err != nil {
			err = stackerr.Newf("Min delay before live decoded prune parse error: %v", err)
			return
		}
	}
	cconf.Disabled = conf.Disabled
	return
}

func parseLoad(conf LoadConfig) (lconf rescache.LoadConfig, err error) {
	lconf = rescache.LoadConfig{
		Workers:            conf.Workers,
		Sessions:           conf.Sessions,
		Requests:           conf.Requests,
		Resources:          conf.Resources,
		DecodedSizeFactor:  conf.DecodedSizeFactor,
		LiveResources:      conf.LiveResources,
		RevalidateEvery:    conf.RevalidateEvery,
		RemoveEvery:        conf.RemoveEvery,
		ReleaseMemoryEvery: conf.ReleaseMemoryEvery,
		PartitionDomain:    conf.PartitionDomain,
		Seed:               conf.Seed,
	}
	lconf.MaxResourceSize, err = parseSize(conf.MaxResourceSize)
	if err != nil {
		err = stackerr.Newf("Max resource size parse error: %v", err)
	}
	return
}

// parseSize treats empty value as zero.
func parseSize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	size, err := humanize.ParseBytes(s)
	if err != nil {
		return 0, err
	}
	if size > 1<<62 {
		return 0, stackerr.Newf("too large size %s", s)
	}
	return int64(size), nil
}

func logDestination(dest string) (w io.Writer, err error) {
	switch strings.ToLower(dest) {
	case "stderr", "":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		w, err = os.OpenFile(dest, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	}
	return
}
