package cache

import (
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"
)

type Type uint8

const (
	MainResource Type = iota
	ImageResource
	CSSStyleSheet
	Script
	FontResource
	SVGDocumentResource
	XSLStyleSheet
	RawResource
)

func (t Type) String() string {
	switch t {
	case MainResource:
		return "main"
	case ImageResource:
		return "image"
	case CSSStyleSheet:
		return "css"
	case Script:
		return "script"
	case FontResource:
		return "font"
	case SVGDocumentResource:
		return "svg"
	case XSLStyleSheet:
		return "xsl"
	case RawResource:
		return "raw"
	}
	return fmt.Sprintf("Type(%d)", uint8(t))
}

type Response struct {
	StatusCode int
	MIMEType   string
	Header     http.Header
}

// Client is resource user. While resource has clients it is live.
type Client interface {
	NotifyFinished(r *Resource)
}

// extraSizePerResource approximates memory needed for resource record, its response and client set.
const extraSizePerResource = 256

// Resource is cached record of fetched resource. Resource and all its
// methods belong to owner thread of the cache.
type Resource struct {
	url       string
	partition string
	session   SessionID
	typ       Type
	response  Response
	// responseTime is time of last response or revalidation.
	responseTime time.Time

	encodedSize       int64
	decodedSize       int64
	accessCount       uint32
	lastDecodedAccess time.Time
	purgeable         bool
	destroyDecoded    func(*Resource)

	clients     map[Client]int
	handleCount int
	// revalidationHandles are handles created while resource is validator.
	// They are transferred to revalidated resource on success.
	revalidationHandles []*Handle
	preloadCount        int
	loading             bool

	resourceToRevalidate *Resource
	proxy                *Resource
	switchingClients     bool

	cache    *MemoryCache
	inCache  bool
	deleted  bool
	onDelete []func(*Resource)

	lruIndex      int
	lruLinks      links
	inLiveDecoded bool
	liveLinks     links
}

// NewResource creates loaded resource record.
func NewResource(req Request, t Type, session SessionID) *Resource {
	k := req.key()
	return &Resource{
		url:          k.url,
		partition:    k.partition,
		session:      session,
		typ:          t,
		clients:      map[Client]int{},
		lruIndex:     -1,
		responseTime: time.Now(),
	}
}

// NewValidator creates resource with same identity, that can be used to revalidate r.
func (r *Resource) NewValidator() *Resource {
	v := NewResource(r.Request(), r.typ, r.session)
	v.loading = true
	return v
}

func (r *Resource) URL() string        { return r.url }
func (r *Resource) Partition() string  { return r.partition }
func (r *Resource) Session() SessionID { return r.session }
func (r *Resource) Type() Type         { return r.typ }
func (r *Resource) Request() Request   { return Request{URL: r.url, Partition: r.partition} }
func (r *Resource) Response() Response { return r.response }
func (r *Resource) SetResponse(resp Response) {
	r.response = resp
	r.responseTime = time.Now()
}
func (r *Resource) ResponseTime() time.Time { return r.responseTime }

func (r *Resource) key() key { return key{url: r.url, partition: r.partition} }

func (r *Resource) EncodedSize() int64 { return r.encodedSize }
func (r *Resource) DecodedSize() int64 { return r.decodedSize }
func (r *Resource) OverheadSize() int64 {
	return int64(extraSizePerResource + 2*len(r.url))
}
func (r *Resource) Size() int64 { return r.encodedSize + r.decodedSize + r.OverheadSize() }

func (r *Resource) AccessCount() uint32              { return r.accessCount }
func (r *Resource) LastDecodedAccessTime() time.Time { return r.lastDecodedAccess }

func (r *Resource) InCache() bool                   { return r.inCache }
func (r *Resource) Deleted() bool                   { return r.deleted }
func (r *Resource) IsLoaded() bool                  { return !r.loading }
func (r *Resource) IsLoading() bool                 { return r.loading }
func (r *Resource) IsPreloaded() bool               { return r.preloadCount > 0 }
func (r *Resource) HasClients() bool                { return len(r.clients) > 0 }
func (r *Resource) IsCacheValidator() bool          { return r.resourceToRevalidate != nil }
func (r *Resource) ResourceToRevalidate() *Resource { return r.resourceToRevalidate }
func (r *Resource) IsPurgeable() bool               { return r.purgeable }

func (r *Resource) String() string {
	return fmt.Sprintf("%s %s (%d bytes)", r.typ, r.Request(), r.Size())
}

// OnDelete adds callback called when resource is deleted.
func (r *Resource) OnDelete(fn func(*Resource)) {
	r.onDelete = append(r.onDelete, fn)
}

// SetDecodedDataDestroyer sets callback that releases decoded representation.
func (r *Resource) SetDecodedDataDestroyer(fn func(*Resource)) {
	r.destroyDecoded = fn
}

// SetDecodedDataPurgeable marks decoded data, that can be purged by system. Live prune skips such resources.
func (r *Resource) SetDecodedDataPurgeable(purgeable bool) {
	r.purgeable = purgeable
}

func (r *Resource) SetLoading(loading bool) {
	r.loading = loading
}

// FinishLoading marks resource loaded and notifies clients.
func (r *Resource) FinishLoading() {
	r.loading = false
	for _, c := range r.clientList() {
		if _, ok := r.clients[c]; ok {
			c.NotifyFinished(r)
		}
	}
	r.deleteIfPossible()
}

func (r *Resource) cacheAccounted() bool { return r.inCache && r.cache != nil }

func (r *Resource) SetEncodedSize(size int64) {
	if size == r.encodedSize {
		return
	}
	delta := size - r.encodedSize
	// Size change moves resource to other LRU bucket. Remove before size update, to find it.
	if r.cacheAccounted() {
		r.cache.removeFromLRUList(r)
	}
	r.encodedSize = size
	if r.cacheAccounted() {
		r.cache.insertInLRUList(r)
		r.cache.adjustSize(r.HasClients(), delta)
	}
}

func (r *Resource) SetDecodedSize(size int64) {
	if size == r.decodedSize {
		return
	}
	delta := size - r.decodedSize
	if r.cacheAccounted() {
		r.cache.removeFromLRUList(r)
	}
	r.decodedSize = size
	if !r.cacheAccounted() {
		return
	}
	r.cache.insertInLRUList(r)
	if r.decodedSize != 0 && !r.inLiveDecoded && r.HasClients() {
		r.cache.insertInLiveDecodedResourcesList(r)
	} else if r.decodedSize == 0 && r.inLiveDecoded {
		r.cache.removeFromLiveDecodedResourcesList(r)
	}
	r.cache.adjustSize(r.HasClients(), delta)
}

// DidAccessDecodedData moves resource to most recently used end of live decoded list.
func (r *Resource) DidAccessDecodedData(t time.Time) {
	r.lastDecodedAccess = t
	if !r.cacheAccounted() {
		return
	}
	if r.inLiveDecoded {
		r.cache.removeFromLiveDecodedResourcesList(r)
		r.cache.insertInLiveDecodedResourcesList(r)
	}
	r.cache.PruneSoon()
}

// DestroyDecodedData releases decoded representation.
func (r *Resource) DestroyDecodedData() {
	if r.decodedSize == 0 {
		return
	}
	if r.destroyDecoded != nil {
		r.destroyDecoded(r)
	}
	r.SetDecodedSize(0)
	if r.cache != nil {
		r.cache.metrics.decodedDestroyed.Inc(1)
	}
}

func (r *Resource) increaseAccessCount() {
	if r.accessCount < math.MaxUint32 {
		r.accessCount++
	}
}

// AddClient adds client. Same client may be added several times;
// it should be removed as many times. Loaded resource notifies client immediately.
func (r *Resource) AddClient(c Client) {
	r.addClientToSet(c)
	if !r.loading {
		c.NotifyFinished(r)
	}
}

func (r *Resource) addClientToSet(c Client) {
	if !r.HasClients() && r.cacheAccounted() {
		r.cache.addToLiveResourcesSize(r)
		if r.decodedSize != 0 && !r.inLiveDecoded {
			r.cache.insertInLiveDecodedResourcesList(r)
		}
	}
	r.clients[c]++
}

func (r *Resource) RemoveClient(c Client) {
	n, ok := r.clients[c]
	if !ok {
		panic(fmt.Sprintf("%s: remove of unknown client", r))
	}
	if n > 1 {
		r.clients[c] = n - 1
	} else {
		delete(r.clients, c)
	}
	if r.HasClients() {
		return
	}
	if r.cacheAccounted() {
		r.cache.removeFromLiveResourcesSize(r)
		r.cache.removeFromLiveDecodedResourcesList(r)
		if r.noStore() && strings.HasPrefix(r.url, "https:") {
			// Secure content with no-store should leave memory as soon as possible.
			r.cache.Remove(r)
		} else {
			r.cache.PruneSoon()
		}
	}
	r.deleteIfPossible()
}

func (r *Resource) noStore() bool {
	for _, v := range r.response.Header.Values("Cache-Control") {
		for _, directive := range strings.Split(v, ",") {
			if strings.EqualFold(strings.TrimSpace(directive), "no-store") {
				return true
			}
		}
	}
	return false
}

func (r *Resource) clientList() []Client {
	res := make([]Client, 0, len(r.clients))
	for c := range r.clients {
		res = append(res, c)
	}
	return res
}

func (r *Resource) IncreasePreloadCount() { r.preloadCount++ }

func (r *Resource) DecreasePreloadCount() {
	if r.preloadCount == 0 {
		panic(fmt.Sprintf("%s: preload count underflow", r))
	}
	r.preloadCount--
	r.deleteIfPossible()
}

// Handle is strong reference to resource. Resource can't be deleted, while it has handles.
type Handle struct {
	r *Resource
}

func (r *Resource) NewHandle() *Handle {
	h := &Handle{r}
	r.registerHandle(h)
	return h
}

func (r *Resource) registerHandle(h *Handle) {
	r.handleCount++
	if r.resourceToRevalidate != nil {
		r.revalidationHandles = append(r.revalidationHandles, h)
	}
}

func (r *Resource) unregisterHandle(h *Handle) {
	r.handleCount--
	for i, rh := range r.revalidationHandles {
		if rh == h {
			r.revalidationHandles = append(r.revalidationHandles[:i], r.revalidationHandles[i+1:]...)
			break
		}
	}
	if r.handleCount == 0 {
		r.deleteIfPossible()
	}
}

// Resource returns nil after release.
func (h *Handle) Resource() *Resource { return h.r }

func (h *Handle) Release() {
	if h.r == nil {
		return
	}
	r := h.r
	h.r = nil
	r.unregisterHandle(h)
}

// SetResourceToRevalidate makes r validator of resource.
func (r *Resource) SetResourceToRevalidate(resource *Resource) {
	if resource == nil || resource == r || r.resourceToRevalidate != nil {
		panic(fmt.Sprintf("%s: invalid resource to revalidate: %v", r, resource))
	}
	resource.proxy = r
	r.resourceToRevalidate = resource
}

// ClearResourceToRevalidate unlinks validator from revalidated resource.
func (r *Resource) ClearResourceToRevalidate() {
	if r.resourceToRevalidate == nil || r.switchingClients {
		return
	}
	// Resource may already start other revalidation.
	if revalidated := r.resourceToRevalidate; revalidated.proxy == r {
		revalidated.proxy = nil
		revalidated.deleteIfPossible()
	}
	r.revalidationHandles = nil
	r.resourceToRevalidate = nil
	r.deleteIfPossible()
}

// switchClientsToRevalidatedResource moves handles and clients of validator to revalidated resource.
func (r *Resource) switchClientsToRevalidatedResource() {
	revalidated := r.resourceToRevalidate
	r.switchingClients = true
	for _, h := range r.revalidationHandles {
		h.r = revalidated
		revalidated.registerHandle(h)
		r.handleCount--
	}
	r.revalidationHandles = nil

	var toMove []Client
	for c, n := range r.clients {
		for ; n > 0; n-- {
			toMove = append(toMove, c)
		}
	}
	for _, c := range toMove {
		r.RemoveClient(c)
	}
	for _, c := range toMove {
		revalidated.addClientToSet(c)
	}
	for _, c := range toMove {
		// Client may be removed by other client notification.
		if _, ok := revalidated.clients[c]; ok && !revalidated.loading {
			c.NotifyFinished(revalidated)
		}
	}
	r.switchingClients = false
}

// headers that are never updated from revalidation response.
var revalidationIgnoredHeaders = map[string]bool{
	"Allow":              true,
	"Connection":         true,
	"Etag":               true,
	"Expires":            true,
	"Keep-Alive":         true,
	"Last-Modified":      true,
	"Proxy-Authenticate": true,
	"Proxy-Connection":   true,
	"Trailer":            true,
	"Transfer-Encoding":  true,
	"Upgrade":            true,
	"Www-Authenticate":   true,
	"X-Frame-Options":    true,
	"X-Xss-Protection":   true,
}

var revalidationIgnoredHeaderPrefixes = []string{"Content-", "X-Content-", "X-Webkit-"}

func shouldUpdateHeaderAfterRevalidation(header string) bool {
	header = http.CanonicalHeaderKey(header)
	if revalidationIgnoredHeaders[header] {
		return false
	}
	for _, prefix := range revalidationIgnoredHeaderPrefixes {
		if strings.HasPrefix(header, prefix) {
			return false
		}
	}
	return true
}

func (r *Resource) updateResponseAfterRevalidation(validating Response) {
	r.responseTime = time.Now()
	if r.response.Header == nil {
		r.response.Header = http.Header{}
	}
	for k, v := range validating.Header {
		if shouldUpdateHeaderAfterRevalidation(k) {
			r.response.Header[http.CanonicalHeaderKey(k)] = append([]string(nil), v...)
		}
	}
}

func (r *Resource) canDelete() bool {
	return !r.HasClients() &&
		!r.loading &&
		r.preloadCount == 0 &&
		r.handleCount == 0 &&
		r.resourceToRevalidate == nil &&
		r.proxy == nil
}

func (r *Resource) deleteIfPossible() {
	if r.deleted || r.inCache || !r.canDelete() {
		return
	}
	r.deleted = true
	for _, fn := range r.onDelete {
		fn(r)
	}
	r.onDelete = nil
	r.destroyDecoded = nil
	r.response = Response{}
}
