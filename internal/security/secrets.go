package security

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"math"
	"strings"
)

const (
	// MinSecretLength is the shortest request signing secret accepted
	MinSecretLength = 48

	// MinEntropy is the lowest Shannon entropy, in bits per byte, accepted
	// for a signing secret
	MinEntropy = 3.5

	// secretBytes encode to exactly MinSecretLength base64 characters
	secretBytes = MinSecretLength / 4 * 3
)

// ErrWeakSecret is wrapped by every secret rejection
var ErrWeakSecret = errors.New("weak signing secret")

// sampleFragments come from sample configuration and documentation. A secret
// containing one was copied rather than generated.
var sampleFragments = []string{
	"replace-with",
	"signing-secret",
	"changeme",
	"topsecret",
	"password",
}

// ValidateSecret checks the secret that signs promotion requests. It must be
// long enough, must not be a sample value and must not be too repetitive.
func ValidateSecret(secret string) error {
	if n := len(secret); n < MinSecretLength {
		return fmt.Errorf("%w: %d characters, need at least %d", ErrWeakSecret, n, MinSecretLength)
	}

	lower := strings.ToLower(secret)
	for _, frag := range sampleFragments {
		if strings.Contains(lower, frag) {
			return fmt.Errorf("%w: looks like a sample value (contains %q), generate one with 'promoter secret'", ErrWeakSecret, frag)
		}
	}

	if h := shannonEntropy(secret); h < MinEntropy {
		return fmt.Errorf("%w: entropy %.2f bits per byte, need %.2f", ErrWeakSecret, h, MinEntropy)
	}
	return nil
}

// GenerateSecret returns a random URL-safe secret that passes ValidateSecret
func GenerateSecret() (string, error) {
	buf := make([]byte, secretBytes)
	for {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to generate random secret: %w", err)
		}
		secret := base64.RawURLEncoding.EncodeToString(buf)
		if ValidateSecret(secret) == nil {
			return secret, nil
		}
	}
}

// shannonEntropy returns the entropy of s in bits per byte
func shannonEntropy(s string) float64 {
	if s == "" {
		return 0
	}

	var counts [256]int
	for i := 0; i < len(s); i++ {
		counts[s[i]]++
	}

	n := float64(len(s))
	var h float64
	for _, c := range counts {
		if c == 0 {
			continue
		}
		p := float64(c) / n
		h -= p * math.Log2(p)
	}
	return h
}
