package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Memory is an in-process Tree used by tests and single-node dev setups.
// A single mutex serializes all mutations, which also makes AtomicUpdate
// trivially exclusive.
type Memory struct {
	mu    sync.RWMutex
	nodes map[string]json.RawMessage
	ids   *PushIDGenerator
}

func NewMemory() *Memory {
	return &Memory{
		nodes: make(map[string]json.RawMessage),
		ids:   NewPushIDGenerator(),
	}
}

func (m *Memory) Get(ctx context.Context, path string, out interface{}) error {
	m.mu.RLock()
	raw, ok := m.nodes[path]
	m.mu.RUnlock()

	if !ok {
		return ErrNotFound
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("failed to decode node %s: %w", path, err)
	}
	return nil
}

func (m *Memory) Set(ctx context.Context, path string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode node %s: %w", path, err)
	}

	m.mu.Lock()
	m.nodes[path] = raw
	m.mu.Unlock()
	return nil
}

func (m *Memory) Update(ctx context.Context, path string, fields map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	merged := make(map[string]json.RawMessage)
	if raw, ok := m.nodes[path]; ok {
		if err := json.Unmarshal(raw, &merged); err != nil {
			return fmt.Errorf("failed to decode node %s: %w", path, err)
		}
	}
	for k, v := range fields {
		raw, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode field %s: %w", k, err)
		}
		merged[k] = raw
	}

	raw, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to encode node %s: %w", path, err)
	}
	m.nodes[path] = raw
	return nil
}

func (m *Memory) Remove(ctx context.Context, path string) error {
	prefix := path + "/"

	m.mu.Lock()
	delete(m.nodes, path)
	for p := range m.nodes {
		if strings.HasPrefix(p, prefix) {
			delete(m.nodes, p)
		}
	}
	m.mu.Unlock()
	return nil
}

func (m *Memory) PushKey() string {
	return m.ids.Next()
}

func (m *Memory) AtomicUpdate(ctx context.Context, path string, fn UpdateFunc) (json.RawMessage, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.nodes[path]

	next, err := fn(current)
	if err != nil {
		if err == ErrSkipUpdate {
			return current, false, nil
		}
		return nil, false, err
	}

	raw, err := json.Marshal(next)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode node %s: %w", path, err)
	}
	m.nodes[path] = raw
	return raw, true, nil
}

func (m *Memory) RangeQuery(ctx context.Context, path string, orderBy string, limitLast int) ([]Node, error) {
	prefix := path + "/"

	m.mu.RLock()
	var children []Node
	for p, raw := range m.nodes {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		key := p[len(prefix):]
		if strings.Contains(key, "/") {
			continue
		}
		children = append(children, Node{Key: key, Value: raw})
	}
	m.mu.RUnlock()

	sort.Slice(children, func(i, j int) bool {
		oi, oj := orderField(children[i].Value, orderBy), orderField(children[j].Value, orderBy)
		if oi == oj {
			return children[i].Key < children[j].Key
		}
		return oi < oj
	})

	if limitLast > 0 && len(children) > limitLast {
		children = children[len(children)-limitLast:]
	}
	return children, nil
}

func orderField(raw json.RawMessage, field string) float64 {
	var node map[string]json.RawMessage
	if err := json.Unmarshal(raw, &node); err != nil {
		return 0
	}
	var v float64
	if err := json.Unmarshal(node[field], &v); err != nil {
		return 0
	}
	return v
}
