// Package remote provides the multi-user document backend the local store is
// synchronized with.
//
// Documents are addressed by slash separated paths that alternate collection and
// document id, e.g. "rooms/{roomId}" or "rooms/{roomId}/messages/{messageId}". Document
// data is a JSON object; nested fields are addressed with dotted paths.
package remote

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidPath is returned when a path does not address a document.
	ErrInvalidPath = errors.New("invalid document path")
	// ErrInvalidWrite is returned when a write carries data the backend cannot store.
	ErrInvalidWrite = errors.New("invalid write")
)

type fieldDelete struct{}

// DeleteField can be used as a value in Update to remove the field.
var DeleteField any = fieldDelete{}

// SetMode determines how Set treats an existing document.
type SetMode int

const (
	// Replace overwrites the whole document.
	Replace SetMode = iota
	// MergeAll deep-merges the data into the existing document, creating it if absent.
	MergeAll
)

// DocumentStore is the fixed operation set of the remote backend.
type DocumentStore interface {
	// Get returns the document at path or ErrNotFound.
	Get(ctx context.Context, path string) (Document, error)

	// Set creates or overwrites the document at path. With MergeAll nested objects are
	// merged key by key and every other value is replaced.
	Set(ctx context.Context, path string, data map[string]any, mode SetMode) error

	// Update sets the fields addressed by dotted paths, leaving the rest of the document
	// untouched. It returns ErrNotFound if the document does not exist.
	Update(ctx context.Context, path string, fields map[string]any) error

	// Delete removes the document. Deleting a missing document is not an error.
	Delete(ctx context.Context, path string) error

	// Increment atomically adds delta to the numeric field, creating the document and
	// the field as needed.
	Increment(ctx context.Context, path, field string, delta int64) error

	// Query returns the documents of the collection matching every filter.
	// The order of the returned documents is unspecified.
	Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error)

	// Batch applies the writes atomically: either every write is applied or none is.
	Batch(ctx context.Context, writes []Write) error
}

// Op is a query filter operator.
type Op string

const (
	OpEqual         Op = "=="
	OpArrayContains Op = "array-contains"
)

// Filter restricts a query to documents whose field at Path satisfies Op against Value.
type Filter struct {
	Path  string
	Op    Op
	Value any
}

func Equal(path string, value any) Filter {
	return Filter{Path: path, Op: OpEqual, Value: value}
}

func ArrayContains(path string, value any) Filter {
	return Filter{Path: path, Op: OpArrayContains, Value: value}
}

type WriteKind int

const (
	WriteSet WriteKind = iota
	WriteMerge
	WriteUpdate
	WriteDelete
)

// Write is a single operation of a Batch.
type Write struct {
	Kind WriteKind
	Path string
	Data map[string]any
}

func SetWrite(path string, data map[string]any) Write {
	return Write{Kind: WriteSet, Path: path, Data: data}
}

func MergeWrite(path string, data map[string]any) Write {
	return Write{Kind: WriteMerge, Path: path, Data: data}
}

func UpdateWrite(path string, fields map[string]any) Write {
	return Write{Kind: WriteUpdate, Path: path, Data: fields}
}

func DeleteWrite(path string) Write {
	return Write{Kind: WriteDelete, Path: path}
}

// Join builds a path from its segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// splitPath returns the collection and the id of the document at path.
func splitPath(path string) (collection, id string, err error) {
	segments := strings.Split(path, "/")
	if len(segments) < 2 || len(segments)%2 != 0 {
		return "", "", ErrInvalidPath
	}
	for _, s := range segments {
		if s == "" {
			return "", "", ErrInvalidPath
		}
	}
	i := strings.LastIndex(path, "/")
	return path[:i], path[i+1:], nil
}
