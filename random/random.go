package random

import (
	crand "crypto/rand"
	"math/big"
	mrand "math/rand"
)

const charset = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// urlset adds the two URL safe symbols so tokens can travel in paths and headers untouched.
const urlset = charset + "-_"

// TokenLength matches the length of the ids handed out by the web client.
const TokenLength = 21

func String(length int) string {
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[mrand.Intn(len(charset))]
	}
	return string(b)
}

func StringSecure(length int) (string, error) {
	return secure(charset, length)
}

// Token returns a URL safe random token suitable for transaction and session ids.
func Token() (string, error) {
	return secure(urlset, TokenLength)
}

func secure(set string, length int) (string, error) {
	b := make([]byte, length)
	l := big.NewInt(int64(len(set)))
	for i := range b {
		num, err := crand.Int(crand.Reader, l)
		if err != nil {
			return "", err
		}
		b[i] = set[num.Int64()]
	}
	return string(b), nil
}
