package search

import (
	"context"
	"sync"
)

// MemoryIndex 进程内索引，按外部版本号拒绝过期写入
type MemoryIndex struct {
	mu       sync.Mutex
	docs     map[string]Document
	versions map[string]int64 // 删除后保留版本号，等同 ES 的 tombstone
	applied  int
	failNext []error
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		docs:     make(map[string]Document),
		versions: make(map[string]int64),
	}
}

// FailNext 让接下来的写入依次返回给定错误，测试用
func (m *MemoryIndex) FailNext(errs ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = append(m.failNext, errs...)
}

func (m *MemoryIndex) popFailure() error {
	if len(m.failNext) == 0 {
		return nil
	}
	err := m.failNext[0]
	m.failNext = m.failNext[1:]
	return err
}

func (m *MemoryIndex) Upsert(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return NewTransient("upsert", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.popFailure(); err != nil {
		return err
	}
	if v, ok := m.versions[doc.ID]; ok && v >= doc.Version {
		return ErrStaleVersion
	}
	m.docs[doc.ID] = doc
	m.versions[doc.ID] = doc.Version
	m.applied++
	return nil
}

func (m *MemoryIndex) Delete(ctx context.Context, id string, version int64) error {
	if err := ctx.Err(); err != nil {
		return NewTransient("delete", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.popFailure(); err != nil {
		return err
	}
	if v, ok := m.versions[id]; ok && v >= version {
		return ErrStaleVersion
	}
	delete(m.docs, id)
	m.versions[id] = version
	m.applied++
	return nil
}

func (m *MemoryIndex) Get(id string) (Document, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	return d, ok
}

func (m *MemoryIndex) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.docs)
}

// Applied 返回实际生效的写入次数（不含被拒绝的过期写入）
func (m *MemoryIndex) Applied() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.applied
}
