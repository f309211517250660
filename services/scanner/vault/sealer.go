// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/awnumar/memguard"
	"golang.org/x/crypto/argon2"
)

const (
	saltSize = 16
	keySize  = 32

	// Argon2id parameters (RFC 9106 second recommended option).
	argonTime    = 3
	argonMemory  = 64 * 1024
	argonThreads = 4

	sealedPrefix = "sealed:"
)

var (
	// ErrSealed is returned when a sealed value is read without a key.
	ErrSealed = errors.New("value is sealed")

	// ErrWrongKey is returned when a sealed value fails authentication.
	ErrWrongKey = errors.New("cannot unseal value: wrong passphrase or corrupt data")
)

// Sealer encrypts candidate ids with AES-256-GCM. The key never leaves a
// memguard enclave except while a single operation runs.
type Sealer struct {
	enclave *memguard.Enclave
}

// NewSealer derives a key from passphrase and salt with Argon2id. The
// passphrase slice is wiped.
func NewSealer(passphrase, salt []byte) (*Sealer, error) {
	if len(passphrase) == 0 {
		return nil, errors.New("passphrase must not be empty")
	}
	if len(salt) != saltSize {
		return nil, fmt.Errorf("salt must be %d bytes, got %d", saltSize, len(salt))
	}
	key := argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, keySize)
	memguard.WipeBytes(passphrase)
	// NewEnclave wipes key.
	return &Sealer{enclave: memguard.NewEnclave(key)}, nil
}

// NewSalt returns fresh random salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

func (s *Sealer) aead() (cipher.AEAD, *memguard.LockedBuffer, error) {
	buf, err := s.enclave.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("open key enclave: %w", err)
	}
	block, err := aes.NewCipher(buf.Bytes())
	if err != nil {
		buf.Destroy()
		return nil, nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		buf.Destroy()
		return nil, nil, err
	}
	return gcm, buf, nil
}

// Seal encrypts plaintext and returns "sealed:" + base64(nonce|ciphertext).
func (s *Sealer) Seal(plaintext string) (string, error) {
	gcm, buf, err := s.aead()
	if err != nil {
		return "", err
	}
	defer buf.Destroy()

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(out), nil
}

// Unseal reverses Seal. Values without the sealed prefix are returned as-is.
func (s *Sealer) Unseal(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	raw, err := base64.StdEncoding.DecodeString(value[len(sealedPrefix):])
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrWrongKey, err)
	}
	gcm, buf, err := s.aead()
	if err != nil {
		return "", err
	}
	defer buf.Destroy()

	ns := gcm.NonceSize()
	if len(raw) < ns {
		return "", ErrWrongKey
	}
	plain, err := gcm.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", ErrWrongKey
	}
	return string(plain), nil
}

// PurgeSecrets wipes every memguard allocation. Call once at shutdown;
// sealers are unusable afterwards.
func PurgeSecrets() {
	memguard.Purge()
}

// IsSealed reports whether value was produced by Seal.
func IsSealed(value string) bool {
	return len(value) > len(sealedPrefix) && value[:len(sealedPrefix)] == sealedPrefix
}
