package badger

import (
	"encoding/binary"

	"github.com/poiesic/kbingest/core"
)

// Key prefixes for different data types
const (
	sourcePrefix     = "ksrc"
	sourceIDSeq      = "ksrcseq"
	generationPrefix = "kgen"
	generationSeq    = "kgenseq"
	chunkPrefix      = "kchk"
)

// compositeKey builds prefix:field1field2... with every field written as
// 8 BigEndian bytes so lexicographic order matches numeric order.
func compositeKey(prefix string, fields ...uint64) []byte {
	prefixBytes := []byte(prefix + ":")
	buf := make([]byte, len(prefixBytes)+8*len(fields))
	offset := copy(buf, prefixBytes)
	for _, field := range fields {
		binary.BigEndian.PutUint64(buf[offset:], field)
		offset += 8
	}
	return buf
}

// makeSourceKey generates the primary key for a knowledge source.
// Format: prefix:sourceID
func makeSourceKey(id core.ID) []byte {
	return compositeKey(sourcePrefix, uint64(id))
}

// makeGenerationKey generates the key holding the active chunk generation of a source.
// Format: prefix:sourceID
func makeGenerationKey(sourceID core.ID) []byte {
	return compositeKey(generationPrefix, uint64(sourceID))
}

// makeChunkKey generates the key for one chunk of one generation.
// Format: prefix:sourceID:generation:chunkIndex
func makeChunkKey(sourceID core.ID, generation uint64, index int) []byte {
	return compositeKey(chunkPrefix, uint64(sourceID), generation, uint64(index))
}

// makeChunkSourcePrefix generates a partial key covering every generation of a source.
// Format: prefix:sourceID
func makeChunkSourcePrefix(sourceID core.ID) []byte {
	return compositeKey(chunkPrefix, uint64(sourceID))
}

// makeChunkGenerationPrefix generates a partial key covering one generation of a source.
// Format: prefix:sourceID:generation
func makeChunkGenerationPrefix(sourceID core.ID, generation uint64) []byte {
	return compositeKey(chunkPrefix, uint64(sourceID), generation)
}

// parseChunkKey extracts the source ID and generation from a chunk key.
func parseChunkKey(key []byte) (core.ID, uint64, bool) {
	offset := len(chunkPrefix) + 1
	if len(key) != offset+24 {
		return 0, 0, false
	}
	sourceID := core.ID(binary.BigEndian.Uint64(key[offset:]))
	generation := binary.BigEndian.Uint64(key[offset+8:])
	return sourceID, generation, true
}

// parseGenerationKey extracts the source ID from a generation key.
func parseGenerationKey(key []byte) (core.ID, bool) {
	offset := len(generationPrefix) + 1
	if len(key) != offset+8 {
		return 0, false
	}
	return core.ID(binary.BigEndian.Uint64(key[offset:])), true
}
