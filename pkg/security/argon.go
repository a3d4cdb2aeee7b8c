// Package security hashes passwords and issues session tokens
package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"
)

var ErrHashFormat = errors.New("unrecognized password hash")

// ArgonParams are the argon2id cost settings. Memory is in KiB.
type ArgonParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// DefaultArgonParams follows the OWASP baseline for argon2id
func DefaultArgonParams() ArgonParams {
	return ArgonParams{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
		KeyLength:   32,
	}
}

// ArgonParamsFromConfig reads security.argon.* on top of the defaults
func ArgonParamsFromConfig() ArgonParams {
	p := DefaultArgonParams()

	if viper.IsSet("security.argon.memory") {
		p.Memory = viper.GetUint32("security.argon.memory")
	}

	if viper.IsSet("security.argon.iterations") {
		p.Iterations = viper.GetUint32("security.argon.iterations")
	}

	if viper.IsSet("security.argon.parallelism") {
		p.Parallelism = uint8(viper.GetUint("security.argon.parallelism"))
	}

	return p
}

// Validate checks the limits argon2 puts on the parameters
func (p ArgonParams) Validate() error {
	switch {
	case p.Iterations < 1:
		return errors.New("argon iterations must be at least 1")
	case p.Parallelism < 1:
		return errors.New("argon parallelism must be at least 1")
	case p.Memory < 8*uint32(p.Parallelism):
		return fmt.Errorf("argon memory must be at least %d KiB for parallelism %d", 8*uint32(p.Parallelism), p.Parallelism)
	case p.SaltLength < 8 || p.KeyLength < 16:
		return errors.New("argon salt or key length too short")
	}

	return nil
}

// PasswordHasher stores passwords as PHC strings
// ($argon2id$v=19$m=...,t=...,p=...$salt$hash)
type PasswordHasher struct {
	params ArgonParams
}

func NewPasswordHasher(p ArgonParams) *PasswordHasher {
	return &PasswordHasher{params: p}
}

func (h *PasswordHasher) Hash(password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt, %w", err)
	}

	key := argon2.IDKey([]byte(password), salt, h.params.Iterations, h.params.Memory, h.params.Parallelism, h.params.KeyLength)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		h.params.Memory, h.params.Iterations, h.params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify compares password with an encoded hash. The cost settings stored in
// the hash are used, not the current ones.
func (h *PasswordHasher) Verify(password, encoded string) (bool, error) {
	stored, salt, key, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}

	calc := argon2.IDKey([]byte(password), salt, stored.Iterations, stored.Memory, stored.Parallelism, uint32(len(key)))

	return subtle.ConstantTimeCompare(key, calc) == 1, nil
}

// NeedsRehash reports whether encoded was made with other cost settings than
// the hasher's current ones
func (h *PasswordHasher) NeedsRehash(encoded string) bool {
	stored, _, key, err := decodeHash(encoded)
	if err != nil {
		return true
	}

	return stored.Memory != h.params.Memory ||
		stored.Iterations != h.params.Iterations ||
		stored.Parallelism != h.params.Parallelism ||
		uint32(len(key)) != h.params.KeyLength
}

func decodeHash(encoded string) (p ArgonParams, salt, key []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, ErrHashFormat
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, ErrHashFormat
	}

	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Iterations, &p.Parallelism); err != nil {
		return p, nil, nil, ErrHashFormat
	}

	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return p, nil, nil, ErrHashFormat
	}

	if key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(key) == 0 {
		return p, nil, nil, ErrHashFormat
	}

	return p, salt, key, nil
}
