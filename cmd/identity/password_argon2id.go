package identity

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2idParams defines Argon2id hashing parameters.
type Argon2idParams struct {
	MemoryKiB uint32
	Time      uint32
	Threads   uint8
	SaltLen   uint32
	KeyLen    uint32
}

// DefaultArgon2idParams returns parameters balanced for an interactive login path.
func DefaultArgon2idParams() Argon2idParams {
	return Argon2idParams{
		MemoryKiB: 64 * 1024,
		Time:      2,
		Threads:   1,
		SaltLen:   16,
		KeyLen:    32,
	}
}

const (
	minPasswordLen = 8
	maxPasswordLen = 256

	// Verify refuses hashes whose declared parameters exceed these bounds, so a
	// hostile stored hash cannot turn verification into a memory bomb.
	verifyMaxMemoryKiB = 1 << 20 // 1 GiB
	verifyMaxTime      = 16
	verifyMaxThreads   = 8
)

var (
	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrInvalidHash      = errors.New("invalid argon2id hash format")
)

// HashPassword returns a PHC-style Argon2id hash string:
//
//	$argon2id$v=19$m=65536,t=2,p=1$<salt_b64>$<key_b64>
func HashPassword(password string, p Argon2idParams) (string, error) {
	if len(password) < minPasswordLen {
		return "", ErrPasswordTooShort
	}
	if len(password) > maxPasswordLen {
		return "", ErrPasswordTooLong
	}
	if p.MemoryKiB == 0 || p.Time == 0 || p.Threads == 0 || p.SaltLen == 0 || p.KeyLen == 0 {
		p = DefaultArgon2idParams()
	}

	salt := make([]byte, p.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	key := argon2.IDKey([]byte(password), salt, p.Time, p.MemoryKiB, p.Threads, p.KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.MemoryKiB, p.Time, p.Threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// VerifyPassword checks a password against a PHC Argon2id hash in constant time.
func VerifyPassword(password, encodedPHC string) (bool, error) {
	p, salt, key, err := decodePHC(encodedPHC)
	if err != nil {
		return false, err
	}

	candidate := argon2.IDKey([]byte(password), salt, p.Time, p.MemoryKiB, p.Threads, uint32(len(key)))
	return subtle.ConstantTimeCompare(candidate, key) == 1, nil
}

func decodePHC(encoded string) (Argon2idParams, []byte, []byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	var p Argon2idParams
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.MemoryKiB, &p.Time, &p.Threads); err != nil {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	if p.MemoryKiB == 0 || p.MemoryKiB > verifyMaxMemoryKiB ||
		p.Time == 0 || p.Time > verifyMaxTime ||
		p.Threads == 0 || p.Threads > verifyMaxThreads {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil || len(salt) == 0 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}
	key, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return Argon2idParams{}, nil, nil, ErrInvalidHash
	}

	return p, salt, key, nil
}
