package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-redis/redis/v8"
)

const idField = "__id"

// batchScript applies a list of write operations atomically.
// Every update target is checked before anything is written, so a batch that fails
// validation has no effect.
var batchScript = redis.NewScript(`
local ops = cjson.decode(ARGV[1])
local live = {}
for _, op in ipairs(ops) do
  if op.mode == "update" then
    local state = live[op.key]
    if state == false or (state == nil and redis.call("EXISTS", op.key) == 0) then
      return redis.error_reply("document not found: " .. op.key)
    end
  end
  live[op.key] = op.mode ~= "delete"
end

local function covers(f, p)
  return f == p or string.sub(f, 1, #p + 1) == p .. "." or string.sub(p, 1, #f + 1) == f .. "."
end

for _, op in ipairs(ops) do
  if op.mode == "delete" then
    redis.call("DEL", op.key)
    redis.call("SREM", op.idx, op.key)
  else
    if op.mode == "set" then
      redis.call("DEL", op.key)
    elseif #op.clear > 0 then
      local existing = redis.call("HKEYS", op.key)
      for _, f in ipairs(existing) do
        if f ~= "__id" then
          for _, p in ipairs(op.clear) do
            if covers(f, p) then
              redis.call("HDEL", op.key, f)
              break
            end
          end
        end
      end
    end
    redis.call("HSET", op.key, "__id", op.id)
    for f, v in pairs(op.fields) do
      redis.call("HSET", op.key, f, v)
    end
    redis.call("SADD", op.idx, op.key)
  end
end
return #ops
`)

// RedisStore is a DocumentStore backed by Redis.
//
// Each document is a hash whose fields are the dotted paths of the document leaves and
// whose values are JSON encoded. Every collection keeps a set of its document keys so it
// can be queried. All keys are prefixed with the configured prefix.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(path string) string {
	return s.prefix + path
}

func (s *RedisStore) indexKey(collection string) string {
	return s.prefix + "idx:" + collection
}

func (s *RedisStore) Get(ctx context.Context, path string) (Document, error) {
	_, id, err := splitPath(path)
	if err != nil {
		return Document{}, err
	}
	fields, err := s.client.HGetAll(ctx, s.key(path)).Result()
	if err != nil {
		return Document{}, fmt.Errorf("HGetAll: %w", err)
	}
	if len(fields) == 0 {
		return Document{}, ErrNotFound
	}
	return decodeHash(path, id, fields)
}

func (s *RedisStore) Set(ctx context.Context, path string, data map[string]any, mode SetMode) error {
	kind := WriteSet
	if mode == MergeAll {
		kind = WriteMerge
	}
	return s.Batch(ctx, []Write{{Kind: kind, Path: path, Data: data}})
}

func (s *RedisStore) Update(ctx context.Context, path string, fields map[string]any) error {
	return s.Batch(ctx, []Write{UpdateWrite(path, fields)})
}

func (s *RedisStore) Delete(ctx context.Context, path string) error {
	return s.Batch(ctx, []Write{DeleteWrite(path)})
}

func (s *RedisStore) Increment(ctx context.Context, path, field string, delta int64) error {
	collection, id, err := splitPath(path)
	if err != nil {
		return err
	}
	key := s.key(path)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, field, delta)
		pipe.HSetNX(ctx, key, idField, id)
		pipe.SAdd(ctx, s.indexKey(collection), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("TxPipelined(%s): %w", path, err)
	}
	return nil
}

func (s *RedisStore) Query(ctx context.Context, collection string, filters ...Filter) ([]Document, error) {
	keys, err := s.client.SMembers(ctx, s.indexKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("SMembers: %w", err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	cmds := make([]*redis.StringStringMapCmd, len(keys))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.HGetAll(ctx, key)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("Pipelined: %w", err)
	}

	var docs []Document
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		path := strings.TrimPrefix(keys[i], s.prefix)
		_, id, err := splitPath(path)
		if err != nil {
			continue
		}
		doc, err := decodeHash(path, id, fields)
		if err != nil {
			return nil, err
		}
		ok, err := matches(doc, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// scriptOp is the wire shape of a write consumed by batchScript.
// Slices and maps are always non-nil so they never encode as null.
type scriptOp struct {
	Mode   string            `json:"mode"`
	Key    string            `json:"key"`
	Idx    string            `json:"idx"`
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
	Clear  []string          `json:"clear"`
}

func (s *RedisStore) Batch(ctx context.Context, writes []Write) error {
	if len(writes) == 0 {
		return nil
	}
	ops := make([]scriptOp, 0, len(writes))
	for _, w := range writes {
		op, err := s.scriptOp(w)
		if err != nil {
			return err
		}
		ops = append(ops, op)
	}
	payload, err := json.Marshal(ops)
	if err != nil {
		return fmt.Errorf("json.Marshal: %w", err)
	}
	if err := batchScript.Run(ctx, s.client, nil, string(payload)).Err(); err != nil {
		if strings.Contains(err.Error(), ErrNotFound.Error()) {
			return fmt.Errorf("Batch: %w", ErrNotFound)
		}
		return fmt.Errorf("Batch: %w", err)
	}
	return nil
}

func (s *RedisStore) scriptOp(w Write) (scriptOp, error) {
	collection, id, err := splitPath(w.Path)
	if err != nil {
		return scriptOp{}, err
	}
	op := scriptOp{
		Key:    s.key(w.Path),
		Idx:    s.indexKey(collection),
		ID:     id,
		Fields: map[string]string{},
		Clear:  []string{},
	}

	flat := map[string]any{}
	switch w.Kind {
	case WriteDelete:
		op.Mode = "delete"
		return op, nil
	case WriteSet, WriteMerge:
		v, err := normalize(nonNil(w.Data))
		if err != nil {
			return scriptOp{}, err
		}
		flatten("", v.(map[string]any), flat)
		op.Mode = "set"
		if w.Kind == WriteMerge {
			op.Mode = "merge"
			for f, v := range flat {
				// An empty object merged into a document changes nothing.
				if m, ok := v.(map[string]any); ok && len(m) == 0 {
					delete(flat, f)
					continue
				}
				op.Clear = append(op.Clear, f)
			}
		}
	case WriteUpdate:
		op.Mode = "update"
		for path, value := range w.Data {
			op.Clear = append(op.Clear, path)
			if _, ok := value.(fieldDelete); ok {
				continue
			}
			v, err := normalize(value)
			if err != nil {
				return scriptOp{}, err
			}
			if m, ok := v.(map[string]any); ok && len(m) > 0 {
				flatten(path, m, flat)
				continue
			}
			flat[path] = v
		}
	default:
		return scriptOp{}, fmt.Errorf("%w: unknown write kind %d", ErrInvalidWrite, w.Kind)
	}

	for f, v := range flat {
		if f == idField {
			return scriptOp{}, fmt.Errorf("%w: reserved field %s", ErrInvalidWrite, idField)
		}
		b, err := json.Marshal(v)
		if err != nil {
			return scriptOp{}, fmt.Errorf("%w: %v", ErrInvalidWrite, err)
		}
		op.Fields[f] = string(b)
	}
	return op, nil
}

func decodeHash(path, id string, fields map[string]string) (Document, error) {
	flat := make(map[string]any, len(fields))
	for f, raw := range fields {
		if f == idField {
			continue
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return Document{}, fmt.Errorf("json.Unmarshal(%s.%s): %w", path, f, err)
		}
		flat[f] = v
	}
	return Document{Path: path, ID: id, Data: unflatten(flat)}, nil
}

// IsNotFound reports whether err means the document does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
