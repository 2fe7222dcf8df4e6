// Package local provides an in-memory ObjectStorage used by tests.
package local

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/mpapenbr/ams2-telemetry-go/pkg/storage"
)

type Storage struct {
	mu      sync.RWMutex
	objects map[string][]byte
	// when set, the corresponding operation fails with this error
	UploadErr   error
	DownloadErr error
}

func New() *Storage {
	return &Storage{objects: map[string][]byte{}}
}

var _ storage.ObjectStorage = (*Storage)(nil)

func (m *Storage) EnsureBucket(_ context.Context) error { return nil }

//nolint:whitespace // can't make the linters happy
func (m *Storage) Upload(
	_ context.Context,
	key string,
	reader io.Reader,
	_ int64,
) error {
	if m.UploadErr != nil {
		return m.UploadErr
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *Storage) Download(_ context.Context, key string) (io.ReadCloser, error) {
	if m.DownloadErr != nil {
		return nil, m.DownloadErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such object: %s", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Storage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *Storage) DeletePrefix(_ context.Context, prefix string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.objects {
		if strings.HasPrefix(key, prefix) {
			delete(m.objects, key)
		}
	}
	return nil
}

func (m *Storage) Exists(_ context.Context, key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[key]
	return ok, nil
}

// Keys returns the stored object keys. Test helper.
func (m *Storage) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ret := make([]string, 0, len(m.objects))
	for key := range m.objects {
		ret = append(ret, key)
	}
	return ret
}

// Object returns the raw bytes stored under key. Test helper.
func (m *Storage) Object(key string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[key]
	return data, ok
}
