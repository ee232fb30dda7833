package chunk

import (
	"bytes"
	"encoding/gob"

	"loxvm/internal/value"
)

// gobChunk mirrors Chunk's exported fields; Value and uuid.UUID are
// already gob-encodable (plain structs / a [16]byte array), so this
// exists only to keep the wire format independent of Chunk's layout.
type gobChunk struct {
	Code      []byte
	Lines     []int
	Constants []value.Value
	ID        [16]byte
}

// Encode serializes c for storage in the bytecode cache (internal/cache).
// Never used by the compiler or VM.
func (c *Chunk) Encode() ([]byte, error) {
	var buf bytes.Buffer
	g := gobChunk{Code: c.Code, Lines: c.Lines, Constants: c.Constants, ID: c.ID}
	if err := gob.NewEncoder(&buf).Encode(&g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode is the inverse of Encode.
func Decode(data []byte) (*Chunk, error) {
	var g gobChunk
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&g); err != nil {
		return nil, err
	}
	return &Chunk{Code: g.Code, Lines: g.Lines, Constants: g.Constants, ID: g.ID}, nil
}
