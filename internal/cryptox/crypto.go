// Package cryptox implements the symmetric secret codec used to protect
// short-lived secrets at rest (verification hashes, reset hashes and 2FA
// codes) together with token hashing and secure random helpers.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/cardflow/internal/common"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// IVSize is the GCM nonce length used by the envelope format.
	IVSize = 16
	// TagSize is the GCM authentication tag length.
	TagSize = 16

	// DefaultTokenBytes is the entropy of tokens sent by email.
	DefaultTokenBytes = 32
)

var (
	// ErrConfiguration reports a missing or malformed encryption key.
	ErrConfiguration = fmt.Errorf("%w: encryption key must be %d hex characters", common.ErrorConfiguration, KeySize*2)
	// ErrMalformedInput reports an envelope that is not iv:ciphertext:tag hex.
	ErrMalformedInput = errors.New("malformed ciphertext envelope")
	// ErrAuthentication reports a tag mismatch (tampering or wrong key).
	ErrAuthentication = errors.New("ciphertext authentication failed")
)

// Codec encrypts and decrypts short strings with AES-256-GCM.
//
// The encrypted form is a single ASCII string
//
//	hex(iv) ":" hex(ciphertext) ":" hex(tag)
//
// with a fresh random 16-byte IV per call, so encrypting the same plaintext
// twice yields different envelopes. A Codec is safe for concurrent use.
type Codec struct {
	aead cipher.AEAD
}

// NewCodec builds a Codec from a 64-character hex key.
//
// Parameters:
//   - hexKey: the 32-byte AES key encoded as hex (upper or lower case).
//
// Returns:
//   - *Codec ready for use.
//   - ErrConfiguration when the key is empty, not hex or not 32 bytes long.
//
// Example:
//
//	codec, err := cryptox.NewCodec(os.Getenv("ENCRYPTION_KEY"))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	env, _ := codec.Encrypt("123456")
func NewCodec(hexKey string) (*Codec, error) {
	key, err := ParseKey(hexKey)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, ErrConfiguration
	}

	aead, err := cipher.NewGCMWithNonceSize(block, IVSize)
	if err != nil {
		return nil, ErrConfiguration
	}

	return &Codec{aead: aead}, nil
}

// ParseKey decodes and validates a 64-character hex key.
func ParseKey(hexKey string) ([]byte, error) {
	if len(hexKey) != KeySize*2 {
		return nil, ErrConfiguration
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, ErrConfiguration
	}
	return key, nil
}

// Encrypt seals plaintext and returns the iv:ciphertext:tag envelope.
func (c *Codec) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, IVSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}

	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-TagSize], sealed[len(sealed)-TagSize:]

	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(ct) + ":" + hex.EncodeToString(tag), nil
}

// Decrypt opens an envelope produced by Encrypt.
//
// Returns:
//   - ErrMalformedInput when the envelope does not have three hex parts of
//     the expected sizes.
//   - ErrAuthentication when the tag check fails.
func (c *Codec) Decrypt(envelope string) (string, error) {
	parts := strings.Split(envelope, ":")
	if len(parts) != 3 {
		return "", ErrMalformedInput
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil || len(iv) != IVSize {
		return "", ErrMalformedInput
	}
	ct, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", ErrMalformedInput
	}
	tag, err := hex.DecodeString(parts[2])
	if err != nil || len(tag) != TagSize {
		return "", ErrMalformedInput
	}

	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", ErrAuthentication
	}
	return string(plaintext), nil
}

// HashToken returns the lowercase hex SHA-256 digest of token.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// GenerateSecureToken returns n random bytes as a hex string of length 2n.
func GenerateSecureToken(n int) (string, error) {
	return common.MakeRandHexString(n)
}

// GenerateNumericCode returns a string of digits decimal digits, each drawn
// uniformly from 0-9. Random bytes >= 250 are rejected so that byte%10 has
// no bias toward low digits.
func GenerateNumericCode(digits int) (string, error) {
	var sb strings.Builder
	sb.Grow(digits)

	buf := make([]byte, digits)
	for sb.Len() < digits {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		for _, b := range buf {
			if b >= 250 {
				continue
			}
			sb.WriteByte('0' + b%10)
			if sb.Len() == digits {
				break
			}
		}
	}
	return sb.String(), nil
}
