package payload

import (
	"strconv"
	"sync"

	jsoniter "github.com/json-iterator/go"
	"github.com/tidwall/buntdb"

	"github.com/vecstore/vecstore/cmn"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// ColumnStore persists one offset's decoded payload document (spec.md
// §4.6: "on-disk column interface"). Appendable segments use an
// in-memory implementation; optimized segments switch to a buntdb-backed
// one alongside their mmap vector storage.
type ColumnStore interface {
	Get(offset uint32) (Point, error)
	Put(offset uint32, p Point) error
	Delete(offset uint32) error
	Close() error
}

// memColumnStore is the appendable, in-memory backend.
type memColumnStore struct {
	mu   sync.RWMutex
	data map[uint32]Point
}

func NewMemColumnStore() ColumnStore {
	return &memColumnStore{data: make(map[uint32]Point)}
}

func (m *memColumnStore) Get(offset uint32) (Point, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.data[offset]
	if !ok {
		return nil, cmn.NewNotFound("payload at offset %d", offset)
	}
	return p, nil
}

func (m *memColumnStore) Put(offset uint32, p Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[offset] = p
	return nil
}

func (m *memColumnStore) Delete(offset uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, offset)
	return nil
}

func (m *memColumnStore) Close() error { return nil }

// buntColumnStore is the on-disk backend for optimized segments, grounded
// on the teacher's embedded-index dependency surface (spec.md §4.6). It
// stores each point's payload as a JSON document keyed by offset; filter
// conditions are not run against buntdb indices.
type buntColumnStore struct {
	db *buntdb.DB
}

func NewBuntColumnStore(path string) (ColumnStore, error) {
	db, err := buntdb.Open(path)
	if err != nil {
		return nil, cmn.NewServiceError(err, "open payload column store %s", path)
	}
	return &buntColumnStore{db: db}, nil
}

func offsetKey(offset uint32) string {
	return strconv.FormatUint(uint64(offset), 10)
}

func (b *buntColumnStore) Get(offset uint32) (Point, error) {
	var raw string
	err := b.db.View(func(tx *buntdb.Tx) error {
		v, err := tx.Get(offsetKey(offset))
		if err != nil {
			return err
		}
		raw = v
		return nil
	})
	if err == buntdb.ErrNotFound {
		return nil, cmn.NewNotFound("payload at offset %d", offset)
	}
	if err != nil {
		return nil, cmn.NewServiceError(err, "read payload at offset %d", offset)
	}
	var p Point
	if err := jsonAPI.UnmarshalFromString(raw, &p); err != nil {
		return nil, cmn.NewServiceError(err, "decode payload at offset %d", offset)
	}
	return p, nil
}

func (b *buntColumnStore) Put(offset uint32, p Point) error {
	raw, err := jsonAPI.MarshalToString(p)
	if err != nil {
		return cmn.NewBadRequest("payload: encode offset %d: %v", offset, err)
	}
	return b.db.Update(func(tx *buntdb.Tx) error {
		_, _, err := tx.Set(offsetKey(offset), raw, nil)
		return err
	})
}

func (b *buntColumnStore) Delete(offset uint32) error {
	return b.db.Update(func(tx *buntdb.Tx) error {
		_, err := tx.Delete(offsetKey(offset))
		if err == buntdb.ErrNotFound {
			return nil
		}
		return err
	})
}

func (b *buntColumnStore) Close() error { return b.db.Close() }

// CreateRangeIndex wires one of buntdb's own ordered indices over a
// numeric JSON field path. No filter path reads it: Integer/Float range
// conditions are checked point by point through FilterContext.
func (b *buntColumnStore) CreateRangeIndex(name, jsonPath string) error {
	return b.db.CreateIndex(name, "*", buntdb.IndexJSON(jsonPath))
}
