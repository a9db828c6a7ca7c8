package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"math"
	"strings"
)

// RecommendedSecretLength is the length below which a secret is reported as
// weak, even though it passes validation.
const RecommendedSecretLength = 32

// GenerateSecret returns a random 48-character URL-safe secret.
func GenerateSecret() (string, error) {
	buf := make([]byte, 36)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random secret: %w", err)
	}
	return base64.URLEncoding.EncodeToString(buf), nil
}

// IsWeakSecret reports secrets that are valid but easy to guess. It is used
// for startup warnings only.
func IsWeakSecret(secret string) bool {
	if len(secret) < RecommendedSecretLength {
		return true
	}
	if strings.Trim(secret, secret[:1]) == "" {
		return true
	}
	if isSequential(secret) {
		return true
	}
	return entropy(secret) < 2.5
}

// entropy is the Shannon entropy of s in bits per character.
func entropy(s string) float64 {
	if s == "" {
		return 0
	}

	freq := make(map[rune]int)
	for _, c := range s {
		freq[c]++
	}

	var h float64
	n := float64(len(s))
	for _, count := range freq {
		p := float64(count) / n
		h -= p * math.Log2(p)
	}
	return h
}

// isSequential reports strings where most neighbouring bytes differ by one,
// such as "123456789" or "abcdef".
func isSequential(s string) bool {
	if len(s) < 4 {
		return false
	}

	sequential := 0
	for i := 1; i < len(s); i++ {
		if s[i] == s[i-1]+1 || s[i] == s[i-1]-1 {
			sequential++
		}
	}
	return float64(sequential) > float64(len(s))*0.7
}
