// Package export produces password-encrypted standalone copies of notes.
//
// Payload layout: base64(salt) "\n" fernet-token. The key is derived with
// PBKDF2-HMAC-SHA256 over the UTF-8 password and the 16-byte salt. These
// parameters match the files written by earlier versions of the editor, so
// any Fernet implementation can open an export given the password.
package export

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/fernet/fernet-go"
	"golang.org/x/crypto/pbkdf2"

	"github.com/starford/retronotes/internal/models"
)

const (
	SaltSize   = 16
	Iterations = 390000
	KeySize    = 32
)

// Extension is appended to every exported file name.
const Extension = ".secure"

var unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// DeriveKey stretches password with salt into a Fernet key.
func DeriveKey(password string, salt []byte) (*fernet.Key, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("export: salt must be %d bytes, got %d", SaltSize, len(salt))
	}
	raw := pbkdf2.Key([]byte(password), salt, Iterations, KeySize, sha256.New)
	var k fernet.Key
	copy(k[:], raw)
	return &k, nil
}

// Plaintext renders the block that gets encrypted.
func Plaintext(n models.Note) string {
	return fmt.Sprintf("Title: %s\nCreated: %s\nLast Modified: %s\n\n%s",
		n.Title, n.DateCreated, n.LastModified, n.Content)
}

// EncryptNote encrypts the note under a key derived from password and a fresh salt.
// It does not judge password strength; refusing empty passwords is up to the caller.
func EncryptNote(n models.Note, password string) ([]byte, error) {
	return encryptNote(rand.Reader, n, password)
}

func encryptNote(random io.Reader, n models.Note, password string) ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(random, salt); err != nil {
		return nil, fmt.Errorf("export: generate salt: %w", err)
	}
	key, err := DeriveKey(password, salt)
	if err != nil {
		return nil, err
	}
	token, err := fernet.EncryptAndSign([]byte(Plaintext(n)), key)
	if err != nil {
		return nil, fmt.Errorf("export: encrypt: %w", err)
	}

	encSalt := base64.StdEncoding.EncodeToString(salt)
	payload := make([]byte, 0, len(encSalt)+1+len(token))
	payload = append(payload, encSalt...)
	payload = append(payload, '\n')
	payload = append(payload, token...)
	return payload, nil
}

// Filename returns the download name for a note titled title.
func Filename(title string) string {
	safe := unsafeChars.ReplaceAllString(strings.TrimSpace(title), "_")
	if safe == "" {
		safe = "untitled"
	}
	return "note_" + safe + Extension
}
