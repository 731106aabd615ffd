package peerreview

import (
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ToBigInt converts a canonical hex quantity to a *big.Int.
// Unlike hexutil.DecodeBig it accepts leading zero digits, which some
// paymasters emit, and treats a bare "0x" as zero.
func ToBigInt(s string) (*big.Int, error) {
	if !has0xPrefix(s) {
		return nil, errors.New("hex quantity must be 0x prefixed")
	}

	digits := s[2:]
	if digits == "" {
		return new(big.Int), nil
	}

	if len(digits) > 64 {
		return nil, errors.New("hex quantity exceeds 256 bits")
	}

	i, ok := new(big.Int).SetString(digits, 16)
	if !ok {
		return nil, errors.New("invalid hex quantity")
	}

	return i, nil
}

// FromBigInt converts a *big.Int to a minimal hex quantity ("0x0" for zero).
func FromBigInt(i *big.Int) (string, error) {
	if i == nil {
		return "", errors.New("big.Int value cannot be nil")
	}

	if i.Sign() < 0 {
		return "", errors.New("quantity cannot be negative")
	}

	if i.BitLen() > 256 {
		return "", errors.New("quantity exceeds 256 bits")
	}

	return hexutil.EncodeBig(i), nil
}

// fromDecimal converts a base-10 integer literal, as carried by json.Number,
// to a hex quantity.
func fromDecimal(s string) (string, error) {
	if strings.ContainsAny(s, ".eE") {
		return "", errors.New("quantity must be an integer")
	}

	i, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return "", errors.New("invalid integer literal")
	}

	return FromBigInt(i)
}

func has0xPrefix(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

func isHexDigits(s string) bool {
	for _, c := range s {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F') {
			return false
		}
	}
	return true
}
