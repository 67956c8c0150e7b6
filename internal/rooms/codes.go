package rooms

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

// Lookup ids avoid characters that are easy to misread when shared aloud:
// 0, O, 1, I, L
const alphabet = "abcdefghjkmnpqrstuvwxyz23456789"

const LookupIDLength = 10

// NewLookupID returns a random public room id.
func NewLookupID() (string, error) {
	return generateCode(LookupIDLength)
}

func generateCode(n int) (string, error) {
	code := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range code {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating lookup id: %w", err)
		}
		code[i] = alphabet[idx.Int64()]
	}
	return string(code), nil
}
