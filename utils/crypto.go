package utils

import (
	"crypto/rand"
	"math/big"
)

const (
	alphanumericCharset = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitCharset        = "0123456789"
)

func randomFrom(charset string, length int) string {
	result := make([]byte, length)
	max := big.NewInt(int64(len(charset)))
	for i := range result {
		n, _ := rand.Int(rand.Reader, max)
		result[i] = charset[n.Int64()]
	}
	return string(result)
}

func GenerateRandomString(length int) string {
	return randomFrom(alphanumericCharset, length)
}

// GenerateNumericCode returns length random decimal digits.
func GenerateNumericCode(length int) string {
	return randomFrom(digitCharset, length)
}
