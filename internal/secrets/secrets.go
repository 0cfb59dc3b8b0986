// Package secrets encrypts instructor credentials at rest.
//
// Simulations against production targets carry instructor credentials that
// must survive daemon restarts. They are stored age-encrypted in the
// database and decrypted in-memory just before a run needs them; plaintext
// credentials are never written to disk.
//
// The key file uses the standard age identity format. A missing key file
// can be generated on first start.
package secrets

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"filippo.io/age"
	"filippo.io/age/armor"
)

const keyFilePerms = 0o600

// Cipher encrypts and decrypts short credential strings using an age
// X25519 identity loaded from a key file.
type Cipher struct {
	identities []age.Identity
	recipient  age.Recipient
}

// NewCipher loads the age identity file at keyPath.
func NewCipher(keyPath string) (*Cipher, error) {
	if strings.TrimSpace(keyPath) == "" {
		return nil, errors.New("age key path is required")
	}
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read age key %s: %w", keyPath, err)
	}
	identities, err := parseAgeIdentities(keyData)
	if err != nil {
		return nil, err
	}
	// The first identity's recipient is used for all new ciphertexts;
	// additional identities still decrypt older material.
	first, ok := identities[0].(*age.X25519Identity)
	if !ok {
		return nil, errors.New("age key file holds no X25519 identity")
	}
	return &Cipher{identities: identities, recipient: first.Recipient()}, nil
}

// GenerateKey creates a new age identity file at keyPath if none exists and
// returns a Cipher for it. An existing file is loaded, never overwritten.
func GenerateKey(keyPath string) (*Cipher, error) {
	if fileExists(keyPath) {
		return NewCipher(keyPath)
	}
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return nil, fmt.Errorf("generate age identity: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(keyPath), 0o750); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	content := fmt.Sprintf("# created by examloadd\n# public key: %s\n%s\n",
		identity.Recipient(), identity)
	if err := os.WriteFile(keyPath, []byte(content), keyFilePerms); err != nil {
		return nil, fmt.Errorf("write age key %s: %w", keyPath, err)
	}
	return &Cipher{
		identities: []age.Identity{identity},
		recipient:  identity.Recipient(),
	}, nil
}

// Encrypt returns the armored age ciphertext of plaintext.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if c == nil {
		return "", errors.New("cipher is nil")
	}
	var buf bytes.Buffer
	armorWriter := armor.NewWriter(&buf)
	writer, err := age.Encrypt(armorWriter, c.recipient)
	if err != nil {
		return "", fmt.Errorf("encrypt credential: %w", err)
	}
	if _, err := io.WriteString(writer, plaintext); err != nil {
		return "", fmt.Errorf("encrypt credential: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("encrypt credential: %w", err)
	}
	if err := armorWriter.Close(); err != nil {
		return "", fmt.Errorf("encrypt credential: %w", err)
	}
	return buf.String(), nil
}

// Decrypt reverses Encrypt. Plaintext input without an armor header is
// returned unchanged, so values written before encryption was enabled keep
// working.
func (c *Cipher) Decrypt(value string) (string, error) {
	if c == nil {
		return "", errors.New("cipher is nil")
	}
	if !IsEncrypted(value) {
		return value, nil
	}
	reader, err := age.Decrypt(armor.NewReader(strings.NewReader(value)), c.identities...)
	if err != nil {
		return "", fmt.Errorf("decrypt credential: %w", err)
	}
	plaintext, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("decrypt credential: %w", err)
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether value carries an armored age header.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(strings.TrimSpace(value), armor.Header)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func parseAgeIdentities(data []byte) ([]age.Identity, error) {
	var identities []age.Identity
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if !strings.HasPrefix(line, "AGE-SECRET-KEY-") {
			continue
		}
		identity, err := age.ParseX25519Identity(line)
		if err != nil {
			return nil, fmt.Errorf("parse age identity: %w", err)
		}
		identities = append(identities, identity)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read age key: %w", err)
	}
	if len(identities) == 0 {
		return nil, errors.New("no age identities found")
	}
	return identities, nil
}
