package remote

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is a DocumentStore held in process memory.
// It is used when no remote backend is configured and in tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string]map[string]any
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string]map[string]any)}
}

func (s *MemoryStore) Get(ctx context.Context, path string) (Document, error) {
	_, id, err := splitPath(path)
	if err != nil {
		return Document{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.docs[path]
	if !ok {
		return Document{}, ErrNotFound
	}
	return Document{Path: path, ID: id, Data: copyData(data)}, nil
}

func (s *MemoryStore) Set(ctx context.Context, path string, data map[string]any, mode SetMode) error {
	kind := WriteSet
	if mode == MergeAll {
		kind = WriteMerge
	}
	return s.Batch(ctx, []Write{{Kind: kind, Path: path, Data: data}})
}

func (s *MemoryStore) Update(ctx context.Context, path string, fields map[string]any) error {
	return s.Batch(ctx, []Write{UpdateWrite(path, fields)})
}

func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	return s.Batch(ctx, []Write{DeleteWrite(path)})
}

func (s *MemoryStore) Increment(ctx context.Context, path, field string, delta int64) error {
	if _, _, err := splitPath(path); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[path]
	if !ok {
		doc = map[string]any{}
		s.docs[path] = doc
	}
	var cur float64
	if v, ok := lookup(doc, field); ok {
		n, ok := v.(float64)
		if !ok {
			return fmt.Errorf("%w: field %s is not a number", ErrInvalidWrite, field)
		}
		cur = n
	}
	setPath(doc, field, cur+float64(delta))
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var docs []Document
	for path, data := range s.docs {
		c, id, _ := splitPath(path)
		if c != collection {
			continue
		}
		doc := Document{Path: path, ID: id, Data: data}
		ok, err := matches(doc, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			doc.Data = copyData(data)
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

func (s *MemoryStore) Batch(ctx context.Context, writes []Write) error {
	// Writes are staged on copies so a failing write leaves the store untouched.
	staged := make(map[string]map[string]any)
	deleted := make(map[string]bool)

	s.mu.Lock()
	defer s.mu.Unlock()

	current := func(path string) (map[string]any, bool) {
		if deleted[path] {
			return nil, false
		}
		if doc, ok := staged[path]; ok {
			return doc, true
		}
		doc, ok := s.docs[path]
		if !ok {
			return nil, false
		}
		return copyData(doc), true
	}

	for _, w := range writes {
		if _, _, err := splitPath(w.Path); err != nil {
			return err
		}
		switch w.Kind {
		case WriteDelete:
			delete(staged, w.Path)
			deleted[w.Path] = true
			continue
		case WriteSet, WriteMerge:
			v, err := normalize(nonNil(w.Data))
			if err != nil {
				return err
			}
			data := v.(map[string]any)
			if doc, ok := current(w.Path); ok && w.Kind == WriteMerge {
				deepMerge(doc, data)
				data = doc
			}
			staged[w.Path] = data
		case WriteUpdate:
			doc, ok := current(w.Path)
			if !ok {
				return fmt.Errorf("Update(%s): %w", w.Path, ErrNotFound)
			}
			for field, value := range w.Data {
				if _, ok := value.(fieldDelete); ok {
					deletePath(doc, field)
					continue
				}
				v, err := normalize(value)
				if err != nil {
					return err
				}
				setPath(doc, field, v)
			}
			staged[w.Path] = doc
		default:
			return fmt.Errorf("%w: unknown write kind %d", ErrInvalidWrite, w.Kind)
		}
		delete(deleted, w.Path)
	}

	for path := range deleted {
		delete(s.docs, path)
	}
	for path, doc := range staged {
		s.docs[path] = doc
	}
	return nil
}

func nonNil(data map[string]any) map[string]any {
	if data == nil {
		return map[string]any{}
	}
	return data
}

func copyData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	for k, v := range data {
		out[k] = copyValue(v)
	}
	return out
}

func copyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return copyData(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = copyValue(e)
		}
		return out
	default:
		return v
	}
}
