package cache

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"
)

// SessionID identifies independent storage session. Each session has its own resource map.
type SessionID struct {
	uuid.UUID
}

var DefaultSessionID = SessionID{}

func NewSessionID() SessionID {
	return SessionID{uuid.New()}
}

func (s SessionID) IsDefault() bool { return s == DefaultSessionID }

func (s SessionID) String() string {
	if s.IsDefault() {
		return "default"
	}
	return s.UUID.String()
}

// Request is resource lookup key. It is value type, so it can be copied to other thread.
type Request struct {
	URL string
	// Partition is registrable domain of top frame, or empty, if partitioning is off.
	Partition string
}

// NewRequest strips http(s) URL fragment and derives partition from domain.
func NewRequest(rawURL string, domainForPartition string) Request {
	return Request{
		URL:       RemoveFragment(rawURL),
		Partition: PartitionName(domainForPartition),
	}
}

func (r Request) key() key {
	return key{url: RemoveFragment(r.URL), partition: r.Partition}
}

func (r Request) String() string {
	if r.Partition == "" {
		return r.URL
	}
	return fmt.Sprintf("%s [%s]", r.URL, r.Partition)
}

type key struct {
	url       string
	partition string
}

// RemoveFragment removes fragment of http and https URLs.
// Fragment of other schemes may be meaningful, so they are kept.
func RemoveFragment(rawURL string) string {
	i := strings.IndexByte(rawURL, '#')
	if i < 0 {
		return rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return rawURL
	}
	return rawURL[:i]
}

// PartitionName returns registrable domain (public suffix + 1 label) of domain,
// or empty string, if there is no such.
func PartitionName(domain string) string {
	domain = strings.ToLower(strings.TrimSuffix(domain, "."))
	if domain == "" {
		return ""
	}
	partition, err := publicsuffix.EffectiveTLDPlusOne(domain)
	if err != nil {
		return ""
	}
	return partition
}
