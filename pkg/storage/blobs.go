package storage

import (
	"encoding/binary"

	"github.com/cuemby/solidb/pkg/types"
)

// ChunkSize is the fixed size of one blob chunk (spec §3 "blob
// collections store large values split into fixed-size chunks").
const ChunkSize = 256 * 1024

// Blobs stores large opaque values split into fixed-size chunks under a
// blob collection, keyed "<blobKey>\x00<chunkIndex>" so a cursor scan over
// the key prefix yields chunks in order.
type Blobs struct {
	engine     *Engine
	database   string
	collection string
}

func NewBlobs(e *Engine, database, collection string) *Blobs {
	return &Blobs{engine: e, database: database, collection: collection}
}

func (b *Blobs) bucket() string { return "blob:" + b.database + ":" + b.collection }

func chunkKey(blobKey string, idx uint32) []byte {
	out := make([]byte, len(blobKey)+1+4)
	copy(out, blobKey)
	out[len(blobKey)] = 0x00
	binary.BigEndian.PutUint32(out[len(blobKey)+1:], idx)
	return out
}

// Put splits data into ChunkSize chunks and writes them all, replacing any
// previous chunks under the same key first so a shorter overwrite does
// not leave stale trailing chunks (spec §4.1 "PutBlobChunk").
func (b *Blobs) Put(blobKey string, data []byte) (int, error) {
	if err := b.Delete(blobKey); err != nil {
		return 0, err
	}
	chunks := 0
	for off := 0; off < len(data) || (len(data) == 0 && off == 0); off += ChunkSize {
		end := off + ChunkSize
		if end > len(data) {
			end = len(data)
		}
		if err := b.engine.Put(b.database, b.bucket(), chunkKey(blobKey, uint32(chunks)), data[off:end]); err != nil {
			return chunks, err
		}
		chunks++
		if len(data) == 0 {
			break
		}
	}
	return chunks, nil
}

// Get reassembles a blob's chunks in order.
func (b *Blobs) Get(blobKey string) ([]byte, error) {
	var out []byte
	found := false
	prefix := append([]byte(blobKey), 0x00)
	err := b.engine.Range(b.database, b.bucket(), prefix, append(append([]byte{}, prefix...), 0xff), func(k, v []byte) error {
		found = true
		out = append(out, v...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, types.NewError(types.ErrNotFound, "blob %q not found", blobKey)
	}
	return out, nil
}

// Delete removes every chunk stored under blobKey (spec §4.1
// "DeleteBlob").
func (b *Blobs) Delete(blobKey string) error {
	prefix := append([]byte(blobKey), 0x00)
	var keys [][]byte
	err := b.engine.Range(b.database, b.bucket(), prefix, append(append([]byte{}, prefix...), 0xff), func(k, v []byte) error {
		keys = append(keys, append([]byte(nil), k...))
		return nil
	})
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := b.engine.Delete(b.database, b.bucket(), k); err != nil {
			return err
		}
	}
	return nil
}
