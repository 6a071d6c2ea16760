package contentstore

import (
	"context"
	"fmt"
	"sync"

	"github.com/ipfs/go-cid"
	"github.com/multiformats/go-multihash"
)

// MemoryPinner keeps files in memory under their CIDv1 (raw codec, sha2-256).
// Identical content always yields the same CID.
type MemoryPinner struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemoryPinner creates an empty in-memory backend.
func NewMemoryPinner() *MemoryPinner {
	return &MemoryPinner{files: make(map[string][]byte)}
}

// Pin stores a copy of data.
func (m *MemoryPinner) Pin(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	hash, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", name, err)
	}
	c := cid.NewCidV1(cid.Raw, hash).String()

	m.mu.Lock()
	m.files[c] = append([]byte(nil), data...)
	m.mu.Unlock()
	return c, nil
}

// Get returns the content pinned under c.
func (m *MemoryPinner) Get(c string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.files[c]
	return data, ok
}

// Len reports how many distinct files are pinned.
func (m *MemoryPinner) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files)
}
