// Package pinhash verifies and produces the salted PIN hashes stored in the
// users file. Hashes use the werkzeug text format ("method$salt$hex") so files
// maintained with the older tooling keep working; bcrypt hashes are accepted
// as well.
package pinhash

import (
	"crypto/rand"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strconv"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/crypto/scrypt"
)

// DefaultIterations matches the werkzeug default for pbkdf2:sha256.
const DefaultIterations = 600000

const saltChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

var (
	ErrMalformedPIN  = errors.New("pin must be 6 digits")
	ErrUnknownMethod = errors.New("unsupported hash method")
	ErrMalformedHash = errors.New("malformed hash")
)

// ValidPIN reports whether pin is exactly six ASCII digits.
func ValidPIN(pin string) bool {
	if len(pin) != 6 {
		return false
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return false
		}
	}
	return true
}

// Verify reports whether pin matches encoded. A malformed or unsupported hash
// never matches; the error tells operators why.
func Verify(encoded, pin string) (bool, error) {
	if strings.HasPrefix(encoded, "$2") {
		err := bcrypt.CompareHashAndPassword([]byte(encoded), []byte(pin))
		if err == nil {
			return true, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrMalformedHash, err)
	}
	method, salt, want, ok := split(encoded)
	if !ok {
		return false, ErrMalformedHash
	}
	got, err := derive(method, salt, pin)
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1, nil
}

// Generate returns a pbkdf2:sha256 hash of pin with a fresh 16 character salt.
func Generate(pin string, iterations int) (string, error) {
	if !ValidPIN(pin) {
		return "", ErrMalformedPIN
	}
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	salt, err := newSalt(16)
	if err != nil {
		return "", err
	}
	method := "pbkdf2:sha256:" + strconv.Itoa(iterations)
	sum, err := derive(method, salt, pin)
	if err != nil {
		return "", err
	}
	return method + "$" + salt + "$" + sum, nil
}

func split(encoded string) (method, salt, sum string, ok bool) {
	parts := strings.SplitN(encoded, "$", 3)
	if len(parts) != 3 || parts[0] == "" || parts[2] == "" {
		return "", "", "", false
	}
	return parts[0], parts[1], parts[2], true
}

func derive(method, salt, pin string) (string, error) {
	fields := strings.Split(method, ":")
	switch fields[0] {
	case "pbkdf2":
		if len(fields) < 2 || len(fields) > 3 {
			return "", ErrMalformedHash
		}
		newHash, size := hashByName(fields[1])
		if newHash == nil {
			return "", fmt.Errorf("%w: pbkdf2 digest %q", ErrUnknownMethod, fields[1])
		}
		iterations := DefaultIterations
		if len(fields) == 3 {
			n, err := strconv.Atoi(fields[2])
			if err != nil || n <= 0 {
				return "", ErrMalformedHash
			}
			iterations = n
		}
		return hex.EncodeToString(pbkdf2.Key([]byte(pin), []byte(salt), iterations, size, newHash)), nil
	case "scrypt":
		n, r, p := 1<<15, 8, 1
		if len(fields) == 4 {
			var err error
			if n, err = strconv.Atoi(fields[1]); err != nil {
				return "", ErrMalformedHash
			}
			if r, err = strconv.Atoi(fields[2]); err != nil {
				return "", ErrMalformedHash
			}
			if p, err = strconv.Atoi(fields[3]); err != nil {
				return "", ErrMalformedHash
			}
		} else if len(fields) != 1 {
			return "", ErrMalformedHash
		}
		key, err := scrypt.Key([]byte(pin), []byte(salt), n, r, p, 64)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrMalformedHash, err)
		}
		return hex.EncodeToString(key), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMethod, fields[0])
}

func hashByName(name string) (func() hash.Hash, int) {
	switch name {
	case "sha1":
		return sha1.New, sha1.Size
	case "sha256":
		return sha256.New, sha256.Size
	case "sha512":
		return sha512.New, sha512.Size
	}
	return nil, 0
}

func newSalt(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = saltChars[int(b)%len(saltChars)]
	}
	return string(buf), nil
}
