package remote

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
)

// Document is a snapshot of a remote document.
type Document struct {
	Path string
	ID   string
	Data map[string]any
}

// DataTo decodes the document data into v, which must be a pointer to a struct.
// Struct fields are matched with their json tag.
func (d Document) DataTo(v any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           v,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
		),
	})
	if err != nil {
		return fmt.Errorf("NewDecoder: %w", err)
	}
	if err := dec.Decode(d.Data); err != nil {
		return fmt.Errorf("Decode(%s): %w", d.Path, err)
	}
	return nil
}

// Field returns the value at the dotted path.
func (d Document) Field(path string) (any, bool) {
	return lookup(d.Data, path)
}

// Data converts a struct, or anything that encodes to a JSON object, to document data.
func Data(v any) (map[string]any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("json.Marshal: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("%w: %T is not an object", ErrInvalidWrite, v)
	}
	if data == nil {
		data = map[string]any{}
	}
	return data, nil
}

// normalize returns v as it would look after a JSON round trip.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWrite, err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidWrite, err)
	}
	return out, nil
}

func lookup(data map[string]any, path string) (any, bool) {
	var cur any = data
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// setPath stores value at the dotted path, creating intermediate objects and replacing
// any non-object value found on the way.
func setPath(data map[string]any, path string, value any) {
	keys := strings.Split(path, ".")
	cur := data
	for _, key := range keys[:len(keys)-1] {
		next, ok := cur[key].(map[string]any)
		if !ok {
			next = map[string]any{}
			cur[key] = next
		}
		cur = next
	}
	cur[keys[len(keys)-1]] = value
}

func deletePath(data map[string]any, path string) {
	keys := strings.Split(path, ".")
	cur := data
	for _, key := range keys[:len(keys)-1] {
		next, ok := cur[key].(map[string]any)
		if !ok {
			return
		}
		cur = next
	}
	delete(cur, keys[len(keys)-1])
}

// deepMerge merges src into dst. Objects are merged recursively, every other value
// replaces the destination.
func deepMerge(dst, src map[string]any) {
	for k, v := range src {
		sv, ok := v.(map[string]any)
		if !ok {
			dst[k] = v
			continue
		}
		dv, ok := dst[k].(map[string]any)
		if !ok {
			dv = map[string]any{}
			dst[k] = dv
		}
		deepMerge(dv, sv)
	}
}

// flatten maps every leaf of data to its dotted path. Empty objects are kept as leaves.
func flatten(prefix string, data map[string]any, out map[string]any) {
	for k, v := range data {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if m, ok := v.(map[string]any); ok && len(m) > 0 {
			flatten(key, m, out)
			continue
		}
		out[key] = v
	}
}

// unflatten is the inverse of flatten. Shorter paths are applied first so a nested
// field always wins over a stale leaf at one of its parents.
func unflatten(fields map[string]any) map[string]any {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		return strings.Count(keys[i], ".") < strings.Count(keys[j], ".")
	})
	out := map[string]any{}
	for _, k := range keys {
		setPath(out, k, fields[k])
	}
	return out
}

func matches(d Document, filters []Filter) (bool, error) {
	for _, f := range filters {
		want, err := normalize(f.Value)
		if err != nil {
			return false, err
		}
		got, ok := d.Field(f.Path)
		if !ok {
			return false, nil
		}
		switch f.Op {
		case OpEqual:
			if !reflect.DeepEqual(got, want) {
				return false, nil
			}
		case OpArrayContains:
			arr, ok := got.([]any)
			if !ok {
				return false, nil
			}
			found := false
			for _, e := range arr {
				if reflect.DeepEqual(e, want) {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		default:
			return false, fmt.Errorf("unsupported operator %q", f.Op)
		}
	}
	return true, nil
}

// Expand turns dotted update fields into the nested data a MergeAll Set expects.
// Fields set to DeleteField are dropped.
func Expand(fields map[string]any) map[string]any {
	flat := make(map[string]any, len(fields))
	for k, v := range fields {
		if _, ok := v.(fieldDelete); ok {
			continue
		}
		flat[k] = v
	}
	return unflatten(flat)
}
