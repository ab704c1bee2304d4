package store

import (
	"errors"
	"strings"
)

// Credentials is a single string slot holding the completion-service API key.
// The value is stored as-is; securing the database file is left to the host.
type Credentials struct {
	kv KV
}

// NewCredentials returns a credential slot backed by kv.
func NewCredentials(kv KV) *Credentials {
	return &Credentials{kv: kv}
}

// APIKey returns the stored key, or "" if absent or storage is unavailable.
func (c *Credentials) APIKey() string {
	if c == nil || c.kv == nil {
		return ""
	}
	data, err := c.kv.Get(CredentialKey)
	if err != nil {
		return ""
	}
	return string(data)
}

// ErrNoStorage is returned when writing to a slot without a backing store.
var ErrNoStorage = errors.New("credential storage unavailable")

// SetAPIKey stores key. An empty key clears the slot.
func (c *Credentials) SetAPIKey(key string) error {
	if c == nil || c.kv == nil {
		return ErrNoStorage
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return c.kv.Delete(CredentialKey)
	}
	return c.kv.Put(CredentialKey, []byte(key))
}
