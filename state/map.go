package state

import (
	"context"
	"strings"

	"github.com/rotisserie/eris"
)

var _ PrimitiveStorage = &MapStorage{}

// MapStorage is the in-memory PrimitiveStorage used when no redis backend is
// configured. It is the default for tests and local simulation sessions.
type MapStorage struct {
	internalMap map[string][]byte
}

func NewMapStorage() *MapStorage {
	return &MapStorage{
		internalMap: make(map[string][]byte),
	}
}

func (m *MapStorage) GetBytes(_ context.Context, key string) ([]byte, error) {
	v, ok := m.internalMap[key]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "key %q", key)
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (m *MapStorage) Has(_ context.Context, key string) (bool, error) {
	_, ok := m.internalMap[key]
	return ok, nil
}

func (m *MapStorage) Set(_ context.Context, key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	m.internalMap[key] = cp
	return nil
}

func (m *MapStorage) Delete(_ context.Context, key string) error {
	delete(m.internalMap, key)
	return nil
}

func (m *MapStorage) Keys(_ context.Context, prefix string) ([]string, error) {
	acc := make([]string, 0, len(m.internalMap))
	for k := range m.internalMap {
		if strings.HasPrefix(k, prefix) {
			acc = append(acc, k)
		}
	}
	return acc, nil
}

func (m *MapStorage) StartTransaction(_ context.Context) (Transaction, error) {
	return &mapTransaction{
		parent:  m,
		writes:  make(map[string][]byte),
		deletes: make(map[string]bool),
	}, nil
}

func (m *MapStorage) Close(_ context.Context) error {
	m.internalMap = make(map[string][]byte)
	return nil
}

// mapTransaction stages writes against a MapStorage and applies them all at
// once on EndTransaction.
type mapTransaction struct {
	parent  *MapStorage
	writes  map[string][]byte
	deletes map[string]bool
}

func (t *mapTransaction) Set(_ context.Context, key string, value []byte) error {
	cp := make([]byte, len(value))
	copy(cp, value)
	t.writes[key] = cp
	delete(t.deletes, key)
	return nil
}

func (t *mapTransaction) Delete(_ context.Context, key string) error {
	t.deletes[key] = true
	delete(t.writes, key)
	return nil
}

func (t *mapTransaction) EndTransaction(_ context.Context) error {
	for key := range t.deletes {
		delete(t.parent.internalMap, key)
	}
	for key, value := range t.writes {
		t.parent.internalMap[key] = value
	}
	t.writes = make(map[string][]byte)
	t.deletes = make(map[string]bool)
	return nil
}
