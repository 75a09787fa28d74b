package vectorindex

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/ticketry-io/ticketry/pkg/protocol"
)

// Vector file layout, all little-endian:
//
//	magic   uint32  'TVIX'
//	version uint32
//	dim     uint32
//	count   uint32
//	data    count*dim float32
const (
	vectorMagic   = 0x54564958
	vectorVersion = 1
)

type metaFile struct {
	Dimension int               `json:"dimension"`
	Count     int               `json:"count"`
	Tickets   []protocol.Ticket `json:"tickets"`
}

// Persist writes the index to its file pair: raw vectors in the binary
// index file, ticket metadata as JSON alongside. Both are written via
// temp file and rename so a crash mid-write leaves the previous pair
// intact.
func (ix *Index) Persist() error {
	ix.mu.RLock()
	vectors := make([][]float32, len(ix.vectors))
	copy(vectors, ix.vectors)
	tickets := make([]protocol.Ticket, len(ix.tickets))
	copy(tickets, ix.tickets)
	ix.mu.RUnlock()

	buf := make([]byte, 16+len(vectors)*ix.dim*4)
	binary.LittleEndian.PutUint32(buf[0:], vectorMagic)
	binary.LittleEndian.PutUint32(buf[4:], vectorVersion)
	binary.LittleEndian.PutUint32(buf[8:], uint32(ix.dim))
	binary.LittleEndian.PutUint32(buf[12:], uint32(len(vectors)))
	off := 16
	for _, v := range vectors {
		for _, f := range v {
			binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(f))
			off += 4
		}
	}
	if err := writeAtomic(ix.indexPath, buf); err != nil {
		return fmt.Errorf("vectorindex: persist vectors: %w", err)
	}

	meta, err := json.Marshal(metaFile{Dimension: ix.dim, Count: len(tickets), Tickets: tickets})
	if err != nil {
		return fmt.Errorf("vectorindex: persist metadata: %w", err)
	}
	if err := writeAtomic(ix.metaPath, meta); err != nil {
		return fmt.Errorf("vectorindex: persist metadata: %w", err)
	}

	ix.logger.Info("index persisted", "records", len(tickets), "path", ix.indexPath)
	return nil
}

// Load restores the index from its file pair. A missing pair is a
// normal first run. Corruption, a dimension change, or a count
// mismatch between the two files means the pair is unusable as a
// whole; the index starts empty and the next rebuild repopulates it.
// Load never returns an error for a bad pair, only for a changed
// configuration the caller must fix.
func (ix *Index) Load() error {
	raw, err := os.ReadFile(ix.indexPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		ix.logger.Warn("index file unreadable, starting empty", "path", ix.indexPath, "error", err)
		return nil
	}

	vectors, dim, ok := decodeVectors(raw)
	if !ok {
		ix.logger.Warn("index file corrupt, starting empty", "path", ix.indexPath)
		return nil
	}
	if dim != ix.dim {
		return fmt.Errorf("vectorindex: load: stored dimension %d, configured %d", dim, ix.dim)
	}

	metaRaw, err := os.ReadFile(ix.metaPath)
	if err != nil {
		ix.logger.Warn("metadata file unreadable, starting empty", "path", ix.metaPath, "error", err)
		return nil
	}
	var meta metaFile
	if err := json.Unmarshal(metaRaw, &meta); err != nil {
		ix.logger.Warn("metadata file corrupt, starting empty", "path", ix.metaPath, "error", err)
		return nil
	}
	if meta.Count != len(meta.Tickets) || meta.Count != len(vectors) {
		ix.logger.Warn("index and metadata out of step, starting empty",
			"vectors", len(vectors), "tickets", len(meta.Tickets), "declared", meta.Count)
		return nil
	}

	ix.mu.Lock()
	ix.vectors = vectors
	ix.tickets = meta.Tickets
	ix.mu.Unlock()

	ix.logger.Info("index loaded", "records", len(vectors), "path", ix.indexPath)
	return nil
}

func decodeVectors(raw []byte) ([][]float32, int, bool) {
	if len(raw) < 16 {
		return nil, 0, false
	}
	if binary.LittleEndian.Uint32(raw[0:]) != vectorMagic {
		return nil, 0, false
	}
	if binary.LittleEndian.Uint32(raw[4:]) != vectorVersion {
		return nil, 0, false
	}
	dim := int(binary.LittleEndian.Uint32(raw[8:]))
	count := int(binary.LittleEndian.Uint32(raw[12:]))
	if dim <= 0 || count < 0 || len(raw) != 16+count*dim*4 {
		return nil, 0, false
	}
	vectors := make([][]float32, count)
	off := 16
	for i := range vectors {
		v := make([]float32, dim)
		for j := range v {
			v[j] = math.Float32frombits(binary.LittleEndian.Uint32(raw[off:]))
			off += 4
		}
		vectors[i] = v
	}
	return vectors, dim, true
}

func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
