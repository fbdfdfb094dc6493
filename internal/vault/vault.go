package vault

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	header     = "$ANSIBLE_VAULT"
	cipherName = "AES256"
	iterations = 10000
	keyLength  = 32
	ivLength   = 16
	saltLength = 32
	lineWidth  = 80

	DefaultID = "default"
)

var (
	ErrNotEncrypted = errors.New("data is not vault encrypted")
	ErrNoSecret     = errors.New("no vault secret available")
	ErrIntegrity    = errors.New("vault HMAC mismatch, wrong secret or corrupted data")
)

// Secrets holds vault passphrases by vault id.
type Secrets struct {
	secrets map[string][]byte
	order   []string
}

func NewSecrets() *Secrets {
	return &Secrets{secrets: make(map[string][]byte)}
}

func (s *Secrets) Add(id string, secret []byte) {
	if id == "" {
		id = DefaultID
	}
	if _, ok := s.secrets[id]; !ok {
		s.order = append(s.order, id)
	}
	s.secrets[id] = bytes.Clone(secret)
}

func (s *Secrets) Len() int {
	return len(s.secrets)
}

func IsEncrypted(b []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(b, " \t\r\n"), []byte(header+";"))
}

type envelope struct {
	version string
	cipher  string
	id      string
	body    []byte
}

func parseEnvelope(b []byte) (*envelope, error) {
	text := strings.TrimSpace(string(b))
	headerLine, rest, _ := strings.Cut(text, "\n")
	fields := strings.Split(strings.TrimSpace(headerLine), ";")
	if len(fields) < 3 || fields[0] != header {
		return nil, ErrNotEncrypted
	}
	e := &envelope{version: fields[1], cipher: strings.TrimSpace(fields[2])}
	if len(fields) > 3 {
		e.id = strings.TrimSpace(fields[3])
	}
	if e.cipher != cipherName {
		return nil, fmt.Errorf("unsupported vault cipher %q", e.cipher)
	}
	hexBody := strings.Join(strings.Fields(rest), "")
	body, err := hex.DecodeString(hexBody)
	if err != nil {
		return nil, fmt.Errorf("invalid vault payload: %w", err)
	}
	e.body = body
	return e, nil
}

// Decrypt opens vault encrypted data. The secret matching the envelope's
// vault id is tried first, then every other secret.
func (s *Secrets) Decrypt(b []byte) ([]byte, error) {
	e, err := parseEnvelope(b)
	if err != nil {
		return nil, err
	}
	if len(s.secrets) == 0 {
		return nil, ErrNoSecret
	}
	ids := make([]string, 0, len(s.order))
	if _, ok := s.secrets[e.id]; ok && e.id != "" {
		ids = append(ids, e.id)
	}
	for _, id := range s.order {
		if id != e.id {
			ids = append(ids, id)
		}
	}
	for _, id := range ids {
		plain, err := decrypt(e.body, s.secrets[id])
		if errors.Is(err, ErrIntegrity) {
			continue
		}
		return plain, err
	}
	return nil, ErrIntegrity
}

func deriveKeys(secret, salt []byte) (key1, key2, iv []byte) {
	derived := pbkdf2.Key(secret, salt, iterations, 2*keyLength+ivLength, sha256.New)
	return derived[:keyLength], derived[keyLength : 2*keyLength], derived[2*keyLength:]
}

func decrypt(body, secret []byte) ([]byte, error) {
	parts := strings.Split(strings.TrimSpace(string(body)), "\n")
	if len(parts) != 3 {
		return nil, fmt.Errorf("invalid vault payload: expected 3 parts, got %v", len(parts))
	}
	salt, err := hex.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("invalid vault salt: %w", err)
	}
	mac, err := hex.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("invalid vault hmac: %w", err)
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return nil, fmt.Errorf("invalid vault ciphertext: %w", err)
	}
	key1, key2, iv := deriveKeys(secret, salt)
	h := hmac.New(sha256.New, key2)
	h.Write(ciphertext)
	if !hmac.Equal(h.Sum(nil), mac) {
		return nil, ErrIntegrity
	}
	block, err := aes.NewCipher(key1)
	if err != nil {
		return nil, err
	}
	plain := make([]byte, len(ciphertext))
	cipher.NewCTR(block, iv).XORKeyStream(plain, ciphertext)
	return unpad(plain)
}

func unpad(b []byte) ([]byte, error) {
	if len(b) == 0 {
		return b, nil
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, errors.New("invalid vault padding")
	}
	for _, p := range b[len(b)-n:] {
		if int(p) != n {
			return nil, errors.New("invalid vault padding")
		}
	}
	return b[:len(b)-n], nil
}

// Encrypt produces a vault 1.1 envelope, or 1.2 when id is set.
func Encrypt(plaintext, secret []byte, id string) ([]byte, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	key1, key2, iv := deriveKeys(secret, salt)
	n := aes.BlockSize - len(plaintext)%aes.BlockSize
	padded := append(bytes.Clone(plaintext), bytes.Repeat([]byte{byte(n)}, n)...)
	block, err := aes.NewCipher(key1)
	if err != nil {
		return nil, err
	}
	ciphertext := make([]byte, len(padded))
	cipher.NewCTR(block, iv).XORKeyStream(ciphertext, padded)
	h := hmac.New(sha256.New, key2)
	h.Write(ciphertext)

	inner := strings.Join([]string{
		hex.EncodeToString(salt),
		hex.EncodeToString(h.Sum(nil)),
		hex.EncodeToString(ciphertext),
	}, "\n")
	outer := hex.EncodeToString([]byte(inner))

	var buf bytes.Buffer
	if id != "" {
		fmt.Fprintf(&buf, "%v;1.2;%v;%v\n", header, cipherName, id)
	} else {
		fmt.Fprintf(&buf, "%v;1.1;%v\n", header, cipherName)
	}
	for i := 0; i < len(outer); i += lineWidth {
		end := min(i+lineWidth, len(outer))
		buf.WriteString(outer[i:end])
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}
