package tasks

import (
	"errors"
	"fmt"

	"github.com/dohr-michael/editthread/internal/messages"
	"github.com/dohr-michael/editthread/internal/world"
)

// chunkBatch is how many chunks an edit requests from the main side at once.
const chunkBatch = 8

// MaxRegionChunks caps the chunks one edit may touch, whatever the host allows.
const MaxRegionChunks = 1 << 16

var ErrRegionTooLarge = errors.New("region too large")

// CheckRegion fails with ErrRegionTooLarge when r touches more than limit chunks.
func CheckRegion(r world.Region, limit int64) error {
	if n := r.ChunkCount(); n > limit {
		return fmt.Errorf("%w: %d chunks, limit %d", ErrRegionTooLarge, n, limit)
	}
	return nil
}

// EditParams configures the built-in edit kinds.
type EditParams struct {
	Region world.Region `cbor:"1,keyasint" json:"region"`
	Block  uint16       `cbor:"2,keyasint,omitempty" json:"block,omitempty"`
	From   uint16       `cbor:"3,keyasint,omitempty" json:"from,omitempty"`
}

// EncodeParams encodes p for an AssignTask message.
func EncodeParams(p EditParams) ([]byte, error) {
	return messages.EncodeValue(p)
}

// DecodeParams decodes AssignTask params.
func DecodeParams(data []byte) (EditParams, error) {
	var p EditParams
	if err := messages.DecodeValue(data, &p); err != nil {
		return p, fmt.Errorf("decode params: %w", err)
	}
	p.Region = p.Region.Normalize()
	if err := CheckRegion(p.Region, MaxRegionChunks); err != nil {
		return p, err
	}
	return p, nil
}

// blockFunc visits one block; it returns the new id and whether to write it.
type blockFunc func(id uint16) (uint16, bool)

// edit walks a region chunk by chunk. It checks for cancellation before every
// chunk and every layer inside a chunk. Only fully processed chunks become part
// of the result, so a recovered result never holds a half-edited chunk.
type edit struct {
	id     string
	name   string
	params EditParams
	visit  blockFunc
	// readOnly edits never report changed chunks.
	readOnly bool

	result Result
}

func (e *edit) ID() string   { return e.id }
func (e *edit) Name() string { return e.name }

func (e *edit) Execute(env Env) ([]byte, error) {
	positions := e.params.Region.Chunks()
	for start := 0; start < len(positions); start += chunkBatch {
		if err := env.CheckExecution(); err != nil {
			return nil, err
		}

		batch := positions[start:min(start+chunkBatch, len(positions))]
		chunks, err := env.LoadChunks(batch)
		if err != nil {
			return nil, fmt.Errorf("load chunks: %w", err)
		}

		for _, pos := range batch {
			c, ok := chunks[pos]
			if !ok || !c.Valid() {
				return nil, fmt.Errorf("chunk %s missing or malformed", pos)
			}
			if err := e.editChunk(env, c); err != nil {
				return nil, err
			}
		}
		env.Notify(fmt.Sprintf("%s: %d/%d chunks", e.name, start+len(batch), len(positions)))
	}
	return EncodeResult(e.result)
}

func (e *edit) editChunk(env Env, c *world.Chunk) error {
	minX, maxX, minZ, maxZ, ok := e.params.Region.Bounds(c.Pos)
	if !ok {
		return nil
	}

	var affected int64
	changed := false
	counts := map[uint16]int64{}
	for y := int(e.params.Region.Min.Y); y <= int(e.params.Region.Max.Y); y++ {
		if err := env.CheckExecution(); err != nil {
			return err
		}
		for z := minZ; z <= maxZ; z++ {
			for x := minX; x <= maxX; x++ {
				old := c.Block(x, y, z)
				if e.readOnly {
					counts[old]++
				}
				id, write := e.visit(old)
				if !write {
					continue
				}
				affected++
				if c.SetBlock(x, y, z, id) {
					changed = true
				}
			}
		}
	}

	e.result.Chunks++
	e.result.Affected += affected
	if e.readOnly {
		if e.result.Counts == nil {
			e.result.Counts = map[uint16]int64{}
		}
		for id, n := range counts {
			e.result.Counts[id] += n
		}
	}
	if changed && !e.readOnly {
		e.result.Changed = append(e.result.Changed, *c)
	}
	return nil
}

func (e *edit) AttemptRecovery() []byte {
	partial := e.result
	partial.Partial = true
	data, err := EncodeResult(partial)
	if err != nil {
		return nil
	}
	return data
}
