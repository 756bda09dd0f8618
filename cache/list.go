package cache

import "github.com/skipor/rescache/internal/tag"

type links struct {
	prev, next *Resource
}

type linksSelector func(*Resource) *links

func lruLinks(r *Resource) *links  { return &r.lruLinks }
func liveLinks(r *Resource) *links { return &r.liveLinks }

// list is intrusive doubly linked list of resources. Resource can be in
// one LRU bucket and in live decoded list simultaneously, so every list type
// has its own links in resource.
//
// Invariants:
// * {fakeHead, all resources, fakeTail} are correct doubly linked list.
// * list.len is number of resources between fakeHead and fakeTail.
// * membership is tracked by owner: Resource.lruIndex for buckets and
// Resource.inLiveDecoded for live decoded list.
type list struct {
	len   int
	links linksSelector
	// Fake resources. Real are between them.
	// nil <- fakeHead <-> r_0 <-> ... <-> r_(n-1) <-> fakeTail -> nil
	// fakeHead.next is least recently used resource.
	fakeHead *Resource
	fakeTail *Resource
}

// For debug output.
const fakeHeadURL = " !HEAD! "
const fakeTailURL = " !TAIL! "

func newList(sel linksSelector) list {
	l := list{
		links:    sel,
		fakeHead: &Resource{url: fakeHeadURL},
		fakeTail: &Resource{url: fakeTailURL},
	}
	l.link(l.fakeHead, l.fakeTail)
	return l
}

func (l *list) link(a, b *Resource) {
	l.links(a).next, l.links(b).prev = b, a
}

// pushBack appends resource as most recently used.
func (l *list) pushBack(r *Resource) {
	l.link(l.tail(), r)
	l.link(r, l.fakeTail)
	l.len++
}

func (l *list) remove(r *Resource) {
	ln := l.links(r)
	if tag.Debug && (ln.prev == nil || ln.next == nil) {
		panic("remove of not linked resource " + r.url)
	}
	l.link(ln.prev, ln.next)
	ln.prev, ln.next = nil, nil
	l.len--
}

func (l *list) head() *Resource            { return l.links(l.fakeHead).next }
func (l *list) tail() *Resource            { return l.links(l.fakeTail).prev }
func (l *list) next(r *Resource) *Resource { return l.links(r).next }
func (l *list) end(r *Resource) bool       { return r == l.fakeTail }
func (l *list) empty() bool                { return l.len == 0 }

// resources returns list snapshot from head to tail.
func (l *list) resources() []*Resource {
	res := make([]*Resource, 0, l.len)
	for r := l.head(); !l.end(r); r = l.next(r) {
		res = append(res, r)
	}
	return res
}
