package service

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/smallbiznis/ledgerbook/internal/sequence/domain"
	"golang.org/x/crypto/blake2b"
)

const minPadWidth = 4

// FormatNumber renders {YYYY}-{seq}-{hash}. The hash is the first 4 bytes of
// blake2b-256 over "org|type|year|seq", lowercase hex. It detects typos, it is not a secret.
func FormatNumber(scope domain.Scope, seq int64, padWidth int) string {
	if padWidth < minPadWidth {
		padWidth = minPadWidth
	}
	return fmt.Sprintf("%04d-%0*d-%s", scope.Year, padWidth, seq, checkHash(scope, seq))
}

// ParseNumber splits a document number into year, sequence and hash.
func ParseNumber(number string) (int, int64, string, error) {
	parts := strings.Split(strings.TrimSpace(number), "-")
	if len(parts) != 3 || len(parts[0]) != 4 || len(parts[1]) < minPadWidth || len(parts[2]) != 8 {
		return 0, 0, "", domain.ErrMalformedNumber
	}
	year, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, "", domain.ErrMalformedNumber
	}
	seq, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || seq <= 0 {
		return 0, 0, "", domain.ErrMalformedNumber
	}
	if _, err := hex.DecodeString(parts[2]); err != nil || strings.ToLower(parts[2]) != parts[2] {
		return 0, 0, "", domain.ErrMalformedNumber
	}
	return year, seq, parts[2], nil
}

// VerifyNumber checks that number was issued for scope.OrgID and scope.DocumentType.
// scope.Year is taken from the number itself.
func VerifyNumber(scope domain.Scope, number string) error {
	year, seq, hash, err := ParseNumber(number)
	if err != nil {
		return err
	}
	scope.Year = year
	if checkHash(scope, seq) != hash {
		return domain.ErrNumberMismatch
	}
	return nil
}

func checkHash(scope domain.Scope, seq int64) string {
	payload := fmt.Sprintf("%d|%s|%d|%d", int64(scope.OrgID), scope.DocumentType, scope.Year, seq)
	sum := blake2b.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:4])
}
