package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/petrkrulis2022/cubepay/pkg/types"
)

// Store abstracts the opaque durable key-value persistence the ledger writes
// through. The ledger defines only the logical schema; physical storage is
// the store's business.
type Store interface {
	Get(ctx context.Context, requestID string) (*types.PaymentRecord, error)
	Put(ctx context.Context, requestID string, record *types.PaymentRecord) error
	List(ctx context.Context) ([]*types.PaymentRecord, error)
}

// MemoryStore is mostly for testing.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]*types.PaymentRecord
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]*types.PaymentRecord),
	}
}

func (m *MemoryStore) Get(_ context.Context, requestID string) (*types.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.data[requestID]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) Put(_ context.Context, requestID string, record *types.PaymentRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[requestID] = record.Clone()
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]*types.PaymentRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*types.PaymentRecord, 0, len(m.data))
	for _, rec := range m.data {
		out = append(out, rec.Clone())
	}
	return out, nil
}

// FileStore persists records to disk as JSON. Suitable for local use; can be
// swapped for a database-backed store without touching the ledger.
type FileStore struct {
	path string
	mu   sync.Mutex
	data map[string]*types.PaymentRecord
}

func NewFileStore(path string) (*FileStore, error) {
	fs := &FileStore{
		path: path,
		data: make(map[string]*types.PaymentRecord),
	}
	if err := fs.load(); err != nil {
		return nil, err
	}
	return fs, nil
}

func (f *FileStore) load() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	blob, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(blob) == 0 {
		return nil
	}
	return json.Unmarshal(blob, &f.data)
}

func (f *FileStore) persist() error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	blob, err := json.MarshalIndent(f.data, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(f.path, blob, 0o600)
}

func (f *FileStore) Get(_ context.Context, requestID string) (*types.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.data[requestID]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (f *FileStore) Put(_ context.Context, requestID string, record *types.PaymentRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[requestID] = record.Clone()
	return f.persist()
}

func (f *FileStore) List(_ context.Context) ([]*types.PaymentRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*types.PaymentRecord, 0, len(f.data))
	for _, rec := range f.data {
		out = append(out, rec.Clone())
	}
	return out, nil
}
