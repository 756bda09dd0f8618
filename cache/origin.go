package cache

import (
	"net/url"
	"sort"
	"strings"
)

// Origin is scheme, host, port triple. Default ports are omitted.
type Origin struct {
	Scheme string
	Host   string
	Port   string
}

var defaultPorts = map[string]string{
	"http":  "80",
	"https": "443",
	"ws":    "80",
	"wss":   "443",
	"ftp":   "21",
}

// OriginFromURL returns zero Origin for unparsable URL.
func OriginFromURL(rawURL string) Origin {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Origin{}
	}
	o := Origin{
		Scheme: strings.ToLower(u.Scheme),
		Host:   strings.ToLower(u.Hostname()),
		Port:   u.Port(),
	}
	if defaultPorts[o.Scheme] == o.Port {
		o.Port = ""
	}
	return o
}

func (o Origin) String() string {
	if o.Port == "" {
		return o.Scheme + "://" + o.Host
	}
	return o.Scheme + "://" + o.Host + ":" + o.Port
}

// RemoveResourcesWithOrigin removes resources loaded from origin, or partitioned by origin host
// registrable domain, in all sessions.
func (c *MemoryCache) RemoveResourcesWithOrigin(origin Origin) {
	partition := PartitionName(origin.Host)
	var toRemove []*Resource
	for _, resources := range c.sessions {
		for k, r := range resources {
			if (partition != "" && k.partition == partition) || OriginFromURL(k.url) == origin {
				toRemove = append(toRemove, r)
			}
		}
	}
	for _, r := range toRemove {
		c.Remove(r)
	}
}

// RemoveResourcesWithOrigins removes resources loaded from any of origins in session.
func (c *MemoryCache) RemoveResourcesWithOrigins(session SessionID, origins []Origin) {
	resources, ok := c.sessions[session]
	if !ok {
		return
	}
	set := make(map[Origin]struct{}, len(origins))
	for _, o := range origins {
		set[o] = struct{}{}
	}
	var toRemove []*Resource
	for k, r := range resources {
		if _, ok := set[OriginFromURL(k.url)]; ok {
			toRemove = append(toRemove, r)
		}
	}
	for _, r := range toRemove {
		c.Remove(r)
	}
}

// OriginsWithCache returns sorted origins of session resources.
// Partitioned resources are reported as http origin of partition.
func (c *MemoryCache) OriginsWithCache(session SessionID) []Origin {
	set := map[Origin]struct{}{}
	c.collectOrigins(c.sessions[session], set)
	return sortedOrigins(set)
}

func (c *MemoryCache) AllOriginsWithCache() []Origin {
	set := map[Origin]struct{}{}
	for _, resources := range c.sessions {
		c.collectOrigins(resources, set)
	}
	return sortedOrigins(set)
}

func (c *MemoryCache) collectOrigins(resources resourceMap, set map[Origin]struct{}) {
	for k := range resources {
		if k.partition != "" {
			set[Origin{Scheme: "http", Host: k.partition}] = struct{}{}
			continue
		}
		set[OriginFromURL(k.url)] = struct{}{}
	}
}

func sortedOrigins(set map[Origin]struct{}) []Origin {
	res := make([]Origin, 0, len(set))
	for o := range set {
		res = append(res, o)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].String() < res[j].String() })
	return res
}
