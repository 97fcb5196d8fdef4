// Package blob stores uploaded images. Objects are addressed by name and
// read back through time-limited URLs.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"
)

var ErrNotFound = errors.New("blob not found")

type Object struct {
	Name         string    `json:"name"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type,omitempty"`
	LastModified time.Time `json:"created"`
}

type Store interface {
	Put(ctx context.Context, name, contentType string, body io.Reader, size int64) error
	// Stat returns ErrNotFound when the object does not exist.
	Stat(ctx context.Context, name string) (*Object, error)
	// URL returns a read-only link to the object valid for ttl.
	URL(ctx context.Context, name string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context, prefix string) ([]Object, error)
}

type memObject struct {
	Object
	data []byte
}

// MemoryStore keeps objects in process memory. Its URLs are opaque
// memory:// links and are only useful to tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memObject
	now     func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string]memObject{}, now: time.Now}
}

func (m *MemoryStore) Put(_ context.Context, name, contentType string, body io.Reader, _ int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read blob body: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[name] = memObject{
		Object: Object{Name: name, Size: int64(len(data)), ContentType: contentType, LastModified: m.now()},
		data:   data,
	}
	return nil
}

func (m *MemoryStore) Stat(_ context.Context, name string) (*Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[name]
	if !ok {
		return nil, ErrNotFound
	}
	obj := o.Object
	return &obj, nil
}

func (m *MemoryStore) URL(ctx context.Context, name string, ttl time.Duration) (string, error) {
	if _, err := m.Stat(ctx, name); err != nil {
		return "", err
	}
	u := url.URL{Scheme: "memory", Path: "/" + name}
	u.RawQuery = url.Values{"expires": {m.now().Add(ttl).UTC().Format(time.RFC3339)}}.Encode()
	return u.String(), nil
}

func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.objects[name]; !ok {
		return ErrNotFound
	}
	delete(m.objects, name)
	return nil
}

func (m *MemoryStore) List(_ context.Context, prefix string) ([]Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Object
	for name, o := range m.objects {
		if strings.HasPrefix(name, prefix) {
			out = append(out, o.Object)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Bytes returns a copy of the stored object's content.
func (m *MemoryStore) Bytes(name string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.objects[name]
	if !ok {
		return nil, false
	}
	return bytes.Clone(o.data), true
}
