// ABOUTME: At-rest sealing of cached tokens with NaCl secretbox
// ABOUTME: Key is SHA-256 of the configured secret; nonce is prepended to the box

package store

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const nonceSize = 24

type sealer struct {
	key [32]byte
}

func newSealer(secret string) *sealer {
	return &sealer{key: sha256.Sum256([]byte("coven-relay-token-cache:" + secret))}
}

func (s *sealer) seal(plain string) (string, error) {
	var nonce [nonceSize]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}
	box := secretbox.Seal(nonce[:], []byte(plain), &nonce, &s.key)
	return base64.StdEncoding.EncodeToString(box), nil
}

func (s *sealer) open(value string) (string, error) {
	box, err := base64.StdEncoding.DecodeString(value)
	if err != nil || len(box) < nonceSize {
		return "", ErrSealed
	}
	var nonce [nonceSize]byte
	copy(nonce[:], box[:nonceSize])
	plain, ok := secretbox.Open(nil, box[nonceSize:], &nonce, &s.key)
	if !ok {
		return "", ErrSealed
	}
	return string(plain), nil
}
