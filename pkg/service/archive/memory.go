package archive

import (
	"context"
	"sync"

	"github.com/secmon-lab/punchcard/pkg/domain/interfaces"
)

// Memory keeps exports in process
type Memory struct {
	mu      sync.Mutex
	objects map[string][]byte
}

var _ interfaces.Archive = &Memory{}

func NewMemory() *Memory {
	return &Memory{objects: make(map[string][]byte)}
}

func (m *Memory) WriteCSV(ctx context.Context, object string, rows [][]string) (string, error) {
	data, err := EncodeCSV(rows)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[object] = data
	return "memory://" + object, nil
}

// Object returns a stored export, or nil
func (m *Memory) Object(name string) []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.objects[name]
}
