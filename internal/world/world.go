// Package world holds the block and chunk types edits operate on.
package world

import "fmt"

const (
	// ChunkSize is the chunk edge length on the X and Z axes.
	ChunkSize = 16
	// Height is the number of block layers in a chunk.
	Height = 64

	blocksPerChunk = ChunkSize * ChunkSize * Height
)

// Air is the empty block id.
const Air uint16 = 0

// BlockPos is an absolute block coordinate.
type BlockPos struct {
	X int32 `json:"x" cbor:"1,keyasint"`
	Y int32 `json:"y" cbor:"2,keyasint"`
	Z int32 `json:"z" cbor:"3,keyasint"`
}

// Chunk returns the position of the chunk containing p.
func (p BlockPos) Chunk() ChunkPos {
	return ChunkPos{X: floorDiv(p.X, ChunkSize), Z: floorDiv(p.Z, ChunkSize)}
}

// ChunkPos identifies a chunk column.
type ChunkPos struct {
	X int32 `json:"x" cbor:"1,keyasint"`
	Z int32 `json:"z" cbor:"2,keyasint"`
}

func (c ChunkPos) String() string {
	return fmt.Sprintf("%d:%d", c.X, c.Z)
}

// Chunk is a 16x16 column of Height layers. Blocks are stored y-major.
type Chunk struct {
	Pos    ChunkPos `json:"pos" cbor:"1,keyasint"`
	Blocks []uint16 `json:"blocks" cbor:"2,keyasint"`
}

// NewChunk returns an all-air chunk at pos.
func NewChunk(pos ChunkPos) *Chunk {
	return &Chunk{Pos: pos, Blocks: make([]uint16, blocksPerChunk)}
}

// Valid reports whether the chunk has the expected block count.
func (c *Chunk) Valid() bool {
	return c != nil && len(c.Blocks) == blocksPerChunk
}

// Clone returns a deep copy.
func (c *Chunk) Clone() *Chunk {
	out := &Chunk{Pos: c.Pos, Blocks: make([]uint16, len(c.Blocks))}
	copy(out.Blocks, c.Blocks)
	return out
}

// Block returns the block at local coordinates.
func (c *Chunk) Block(x, y, z int) uint16 {
	return c.Blocks[index(x, y, z)]
}

// SetBlock sets the block at local coordinates and reports whether it changed.
func (c *Chunk) SetBlock(x, y, z int, id uint16) bool {
	i := index(x, y, z)
	if c.Blocks[i] == id {
		return false
	}
	c.Blocks[i] = id
	return true
}

func index(x, y, z int) int {
	return (y*ChunkSize+z)*ChunkSize + x
}

// Region is an inclusive block cuboid.
type Region struct {
	Min BlockPos `json:"min" cbor:"1,keyasint"`
	Max BlockPos `json:"max" cbor:"2,keyasint"`
}

// Normalize returns the region with Min <= Max on every axis and Y clamped to the world height.
func (r Region) Normalize() Region {
	if r.Min.X > r.Max.X {
		r.Min.X, r.Max.X = r.Max.X, r.Min.X
	}
	if r.Min.Y > r.Max.Y {
		r.Min.Y, r.Max.Y = r.Max.Y, r.Min.Y
	}
	if r.Min.Z > r.Max.Z {
		r.Min.Z, r.Max.Z = r.Max.Z, r.Min.Z
	}
	r.Min.Y = max(r.Min.Y, 0)
	r.Max.Y = min(r.Max.Y, Height-1)
	return r
}

// Volume returns the number of blocks in the region.
func (r Region) Volume() int64 {
	r = r.Normalize()
	if r.Max.Y < r.Min.Y {
		return 0
	}
	return span(r.Min.X, r.Max.X) * span(r.Min.Y, r.Max.Y) * span(r.Min.Z, r.Max.Z)
}

// ChunkCount returns the number of chunks the region touches.
func (r Region) ChunkCount() int64 {
	r = r.Normalize()
	lo, hi := r.Min.Chunk(), r.Max.Chunk()
	return span(lo.X, hi.X) * span(lo.Z, hi.Z)
}

// Chunks returns every chunk the region touches, X-major.
func (r Region) Chunks() []ChunkPos {
	r = r.Normalize()
	lo, hi := r.Min.Chunk(), r.Max.Chunk()
	out := make([]ChunkPos, 0, span(lo.X, hi.X)*span(lo.Z, hi.Z))
	for x := lo.X; x <= hi.X; x++ {
		for z := lo.Z; z <= hi.Z; z++ {
			out = append(out, ChunkPos{X: x, Z: z})
		}
	}
	return out
}

// Bounds returns the local x/z bounds of the region inside chunk c, or ok=false
// when they do not overlap.
func (r Region) Bounds(c ChunkPos) (minX, maxX, minZ, maxZ int, ok bool) {
	r = r.Normalize()
	baseX, baseZ := c.X*ChunkSize, c.Z*ChunkSize
	lx := max(r.Min.X, baseX) - baseX
	hx := min(r.Max.X, baseX+ChunkSize-1) - baseX
	lz := max(r.Min.Z, baseZ) - baseZ
	hz := min(r.Max.Z, baseZ+ChunkSize-1) - baseZ
	if lx > hx || lz > hz {
		return 0, 0, 0, 0, false
	}
	return int(lx), int(hx), int(lz), int(hz), true
}

func span(lo, hi int32) int64 {
	return int64(hi) - int64(lo) + 1
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
