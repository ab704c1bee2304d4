package store

import (
	"encoding/json"
	"fmt"
)

// Storage keys.
const (
	StateKey      = "nudge.state.v1"
	CredentialKey = "nudge.credential"
)

// LoadJSON decodes the value under key into dst. It returns ErrNotFound
// (wrapped) when the key is absent.
func LoadJSON(kv KV, key string, dst any) error {
	data, err := kv.Get(key)
	if err != nil {
		return fmt.Errorf("load %s: %w", key, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

// SaveJSON encodes v and writes it under key.
func SaveJSON(kv KV, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := kv.Put(key, data); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}
	return nil
}
