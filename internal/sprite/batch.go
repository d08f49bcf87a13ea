package sprite

import "github.com/katze7514/ManaGameFramework-sub000/command"

// Batch is a run of primitives submitted as one draw call.
type Batch struct {
	Target  uint32
	Texture uint32
	Mode    command.DrawMode
	// First and Count index primitives of the bucket, opaque ones first.
	First, Count int
}

// PrimitivesPerQuad is the number of triangles a Param expands to.
const PrimitivesPerQuad = 2

// AppendBatches appends the draw-call batches of a sorted bucket to dst.
//
// Consecutive primitives sharing texture and mode are merged. A batch is
// split when it would exceed maxPrimitives triangles; 0 means no limit.
// Empty buckets produce no batches.
func AppendBatches(dst []Batch, b *Bucket, maxPrimitives int) []Batch {
	n := b.Len()
	if n == 0 {
		return dst
	}
	maxQuads := n
	if maxPrimitives > 0 {
		maxQuads = max(1, maxPrimitives/PrimitivesPerQuad)
	}

	cur := Batch{Target: b.Target, First: -1}
	for i := range n {
		p := b.At(i)
		if cur.First >= 0 && p.Texture == cur.Texture && p.Mode == cur.Mode && cur.Count < maxQuads {
			cur.Count++
			continue
		}
		if cur.First >= 0 {
			dst = append(dst, cur)
		}
		cur = Batch{Target: b.Target, Texture: p.Texture, Mode: p.Mode, First: i, Count: 1}
	}
	return append(dst, cur)
}
