package sprite

import (
	"cmp"
	"errors"
	"math"
	"slices"

	"github.com/katze7514/ManaGameFramework-sub000/command"
)

// Errors returned by Queue.
var (
	ErrDuplicateTarget   = errors.New("sprite: render target already has a bucket")
	ErrDuplicatePriority = errors.New("sprite: render target priority already taken")
	ErrUnknownTarget     = errors.New("sprite: render target has no bucket")
	ErrNoTexture         = errors.New("sprite: textured draw mode without texture")
	ErrInvalidMode       = errors.New("sprite: invalid draw mode")
	ErrQueueFull         = errors.New("sprite: sprite limit reached")
	ErrBackBuffer        = errors.New("sprite: back buffer bucket cannot be removed")
)

// BackBufferPriority is the priority of the back buffer bucket.
// No other render target may use it, so the back buffer always sorts last.
const BackBufferPriority = math.MaxInt

// GroupOrder selects the key that orders opaque texture groups.
type GroupOrder uint8

const (
	// GroupOrderSumZ orders texture groups by the sum of their members' Z.
	GroupOrderSumZ GroupOrder = iota
	// GroupOrderMeanZ orders texture groups by the mean of their members' Z.
	GroupOrderMeanZ
)

// String returns the string representation of a GroupOrder.
func (o GroupOrder) String() string {
	switch o {
	case GroupOrderSumZ:
		return "SumZ"
	case GroupOrderMeanZ:
		return "MeanZ"
	default:
		return "Unknown"
	}
}

// Bucket holds the primitives of one render target.
type Bucket struct {
	Target      uint32
	Priority    int
	Opaque      []Param
	Transparent []Param
}

// Len returns the number of primitives in the bucket.
func (b *Bucket) Len() int {
	return len(b.Opaque) + len(b.Transparent)
}

// At returns primitive i of the bucket, opaque primitives first.
func (b *Bucket) At(i int) *Param {
	if i < len(b.Opaque) {
		return &b.Opaque[i]
	}
	return &b.Transparent[i-len(b.Opaque)]
}

func (b *Bucket) clear() {
	b.Opaque = b.Opaque[:0]
	b.Transparent = b.Transparent[:0]
}

// Queue collects the primitives of one frame.
//
// Queue is not safe for concurrent use. It belongs to the render goroutine.
type Queue struct {
	buckets    map[uint32]*Bucket
	order      []*Bucket // ascending priority, back buffer last
	maxSprites int
	count      int
	groupOrder GroupOrder

	// scratch for the opaque sort
	groupKey map[uint32]groupStat
}

type groupStat struct {
	sum float64
	n   int
}

// New creates a queue holding at most maxSprites primitives per frame,
// 0 meaning unlimited. The back buffer bucket is registered with reserve
// capacity.
func New(maxSprites, reserve int, order GroupOrder) *Queue {
	if maxSprites < 0 {
		maxSprites = 0
	}
	q := &Queue{
		buckets:    make(map[uint32]*Bucket),
		maxSprites: maxSprites,
		groupOrder: order,
		groupKey:   make(map[uint32]groupStat),
	}
	_ = q.AddTarget(command.BackBuffer, BackBufferPriority, reserve)
	return q
}

// AddTarget registers a bucket for target, consumed at the given priority.
// Lower priorities are consumed first.
func (q *Queue) AddTarget(target uint32, priority, reserve int) error {
	if _, ok := q.buckets[target]; ok {
		return ErrDuplicateTarget
	}
	for _, b := range q.order {
		if b.Priority == priority {
			return ErrDuplicatePriority
		}
	}
	if reserve < 0 {
		reserve = 0
	}
	b := &Bucket{
		Target:      target,
		Priority:    priority,
		Opaque:      make([]Param, 0, reserve),
		Transparent: make([]Param, 0, reserve),
	}
	q.buckets[target] = b

	i, _ := slices.BinarySearchFunc(q.order, priority, func(b *Bucket, p int) int {
		return cmp.Compare(b.Priority, p)
	})
	q.order = slices.Insert(q.order, i, b)
	return nil
}

// RemoveTarget drops the bucket of target and its pending primitives.
func (q *Queue) RemoveTarget(target uint32) error {
	if target == command.BackBuffer {
		return ErrBackBuffer
	}
	b, ok := q.buckets[target]
	if !ok {
		return ErrUnknownTarget
	}
	q.count -= b.Len()
	delete(q.buckets, target)
	q.order = slices.DeleteFunc(q.order, func(x *Bucket) bool { return x == b })
	return nil
}

// HasTarget reports whether target has a bucket.
func (q *Queue) HasTarget(target uint32) bool {
	_, ok := q.buckets[target]
	return ok
}

// Add routes p into the opaque or transparent vector of target's bucket.
func (q *Queue) Add(p Param, target uint32) error {
	b, ok := q.buckets[target]
	if !ok {
		return ErrUnknownTarget
	}
	if !p.Mode.Valid() {
		return ErrInvalidMode
	}
	if p.Mode.Textured() && p.Texture == command.NoTexture {
		return ErrNoTexture
	}
	if q.maxSprites > 0 && q.count >= q.maxSprites {
		return ErrQueueFull
	}
	if p.Mode.Blended() {
		b.Transparent = append(b.Transparent, p)
	} else {
		b.Opaque = append(b.Opaque, p)
	}
	q.count++
	return nil
}

// Len returns the number of queued primitives.
func (q *Queue) Len() int {
	return q.count
}

// Sort orders every bucket for submission.
//
// Opaque primitives are grouped by texture. Groups are ordered by their
// aggregate Z (sum or mean, per GroupOrder) with the texture id breaking
// ties; members of a group are ordered by Z ascending.
//
// Transparent primitives are stable-sorted by texture and then by Z
// descending, so equal depths keep texture locality.
func (q *Queue) Sort() {
	for _, b := range q.order {
		q.sortOpaque(b.Opaque)
		sortTransparent(b.Transparent)
	}
}

func (q *Queue) sortOpaque(ps []Param) {
	if len(ps) < 2 {
		return
	}
	clear(q.groupKey)
	for i := range ps {
		s := q.groupKey[ps[i].Texture]
		s.sum += float64(ps[i].Z())
		s.n++
		q.groupKey[ps[i].Texture] = s
	}
	key := func(tex uint32) float64 {
		s := q.groupKey[tex]
		if q.groupOrder == GroupOrderMeanZ {
			return s.sum / float64(s.n)
		}
		return s.sum
	}
	slices.SortStableFunc(ps, func(a, b Param) int {
		if a.Texture != b.Texture {
			if c := cmp.Compare(key(a.Texture), key(b.Texture)); c != 0 {
				return c
			}
			return cmp.Compare(a.Texture, b.Texture)
		}
		return cmp.Compare(a.Z(), b.Z())
	})
}

func sortTransparent(ps []Param) {
	if len(ps) < 2 {
		return
	}
	slices.SortStableFunc(ps, func(a, b Param) int {
		return cmp.Compare(a.Texture, b.Texture)
	})
	slices.SortStableFunc(ps, func(a, b Param) int {
		return cmp.Compare(b.Z(), a.Z())
	})
}

// Clear empties every bucket. Buckets stay registered.
func (q *Queue) Clear() {
	for _, b := range q.order {
		b.clear()
	}
	q.count = 0
}

// IsEmpty reports whether every bucket is empty.
func (q *Queue) IsEmpty() bool {
	for _, b := range q.order {
		if b.Len() > 0 {
			return false
		}
	}
	return true
}

// Bucket returns the bucket of target, or nil.
func (q *Queue) Bucket(target uint32) *Bucket {
	return q.buckets[target]
}

// Iterator returns an iterator over the buckets in priority order.
func (q *Queue) Iterator() *Iterator {
	return &Iterator{order: q.order, pos: -1}
}

// Iterator walks buckets in ascending priority order.
type Iterator struct {
	order []*Bucket
	pos   int
}

// Next advances to the next bucket and reports whether there is one.
func (it *Iterator) Next() bool {
	if it.pos+1 >= len(it.order) {
		it.pos = len(it.order)
		return false
	}
	it.pos++
	return true
}

// Bucket returns the current bucket.
func (it *Iterator) Bucket() *Bucket {
	if it.pos < 0 || it.pos >= len(it.order) {
		return nil
	}
	return it.order[it.pos]
}
