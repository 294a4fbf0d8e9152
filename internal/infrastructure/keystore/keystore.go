package keystore

import (
	"encoding/hex"
	"errors"
	"os"
	"strings"
)

// ErrKeyNotFound is returned for an unknown key ID.
var ErrKeyNotFound = errors.New("signing key not found")

// StaticKeyStore holds audit signing keys in memory, keyed by ID so old
// entries stay verifiable after a rotation.
type StaticKeyStore struct {
	keys        map[string][]byte
	activeKeyID string
}

// NewFromEnv builds a keystore from environment variables.
// AUDIT_SIGNING_KEYS format: "keyId:hex,keyId2:hex".
// AUDIT_ACTIVE_KEY_ID names the key used to sign new entries.
func NewFromEnv() (*StaticKeyStore, error) {
	keys := make(map[string][]byte)
	raw := os.Getenv("AUDIT_SIGNING_KEYS")
	if raw != "" {
		pairs := strings.Split(raw, ",")
		for _, p := range pairs {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			parts := strings.SplitN(p, ":", 2)
			if len(parts) != 2 {
				return nil, errors.New("invalid AUDIT_SIGNING_KEYS format")
			}
			keyID := parts[0]
			bytes, err := hex.DecodeString(parts[1])
			if err != nil {
				return nil, err
			}
			keys[keyID] = bytes
		}
	}

	return &StaticKeyStore{
		keys:        keys,
		activeKeyID: os.Getenv("AUDIT_ACTIVE_KEY_ID"),
	}, nil
}

// Empty reports whether no keys are configured.
func (s *StaticKeyStore) Empty() bool {
	return len(s.keys) == 0
}

// GetKey returns the key for one ID, for verifying old entries.
func (s *StaticKeyStore) GetKey(keyID string) ([]byte, error) {
	key, ok := s.keys[keyID]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return key, nil
}

// ActiveKey returns the key new audit entries are signed with. With no
// explicit active ID and exactly one key configured, that key is used.
func (s *StaticKeyStore) ActiveKey() (string, []byte, error) {
	if s.activeKeyID != "" {
		key, err := s.GetKey(s.activeKeyID)
		return s.activeKeyID, key, err
	}
	if len(s.keys) == 1 {
		for id, key := range s.keys {
			return id, key, nil
		}
	}
	return "", nil, errors.New("active signing key not configured")
}
