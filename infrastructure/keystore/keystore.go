// Package keystore encrypts and decrypts the agent EOA private key that
// backs a ServiceRecord, so it can live on disk without ever being
// stored in the clear. Encryption uses AES-256-GCM, keyed by scrypt over
// an operator-supplied passphrase rather than an enclave-injected master
// key — this worker has no external coordinator to source one from.
package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/crypto/scrypt"
)

const (
	scryptN      = 1 << 15
	scryptR      = 8
	scryptP      = 1
	scryptKeyLen = 32
	saltLen      = 16
)

// File is the on-disk JSON shape of an encrypted keystore, stored at
// <workDir>/.operate/services/<configId>/keys/agent.json.
type File struct {
	Version    int    `json:"version"`
	Address    string `json:"address"`
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

// Encrypt derives a key from passphrase via scrypt and seals
// privateKeyHex under AES-256-GCM, returning the on-disk File.
func Encrypt(address, privateKeyHex, passphrase string) (*File, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("keystore: generate salt: %w", err)
	}

	key, err := scrypt.Key([]byte(passphrase), salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return nil, fmt.Errorf("keystore: derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("keystore: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("keystore: new gcm: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("keystore: generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(privateKeyHex), nil)

	return &File{
		Version:    1,
		Address:    address,
		Salt:       salt,
		Nonce:      nonce,
		Ciphertext: ciphertext,
	}, nil
}

// Decrypt recovers the private key hex string from a File given the same
// passphrase used to encrypt it.
func Decrypt(f *File, passphrase string) (string, error) {
	if f == nil {
		return "", fmt.Errorf("keystore: nil file")
	}
	key, err := scrypt.Key([]byte(passphrase), f.Salt, scryptN, scryptR, scryptP, scryptKeyLen)
	if err != nil {
		return "", fmt.Errorf("keystore: derive key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("keystore: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("keystore: new gcm: %w", err)
	}

	plaintext, err := gcm.Open(nil, f.Nonce, f.Ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("keystore: decrypt: wrong passphrase or corrupt file: %w", err)
	}
	return string(plaintext), nil
}

// Save writes f as JSON to path with restrictive permissions.
func Save(path string, f *File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("keystore: marshal: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Load reads and parses a keystore File from path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keystore: read %s: %w", path, err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("keystore: parse %s: %w", path, err)
	}
	return &f, nil
}
