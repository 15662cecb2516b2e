package store

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// getJSON loads key into a T; a missing key returns ok=false.
func getJSON[T any](ctx context.Context, kv KV, key string) (out T, ok bool, err error) {
	b, err := kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return out, false, nil
	}
	if err != nil {
		return out, false, err
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return out, false, errors.Wrapf(err, "decode %s", key)
	}
	return out, true, nil
}

// putJSON stores v under key.
func putJSON(ctx context.Context, kv KV, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encode %s", key)
	}
	return kv.Put(ctx, key, b)
}

// listJSON loads every record under prefix, in key order.
func listJSON[T any](ctx context.Context, kv KV, prefix string) ([]T, error) {
	keys, err := kv.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(keys))
	for _, k := range keys {
		v, ok, err := getJSON[T](ctx, kv, k)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, v)
		}
	}
	return out, nil
}
