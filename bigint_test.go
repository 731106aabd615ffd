package peerreview

import (
	"math/big"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// Helper function to create big.Int values for testing
func newBigInt(s string) *big.Int {
	i, _ := new(big.Int).SetString(s, 10)
	return i
}

// TestToBigInt test ToBigInt.
func TestToBigInt(t *testing.T) {
	testCases := []struct {
		name        string
		input       string
		expected    *big.Int
		expectError bool
	}{
		{"Empty input", "", nil, true},
		{"Missing prefix", "c350", nil, true},
		{"Bare prefix", "0x", newBigInt("0"), false},
		{"Zero input", "0x0", newBigInt("0"), false},
		{"Leading zeros", "0x00c350", newBigInt("50000"), false},
		{"Upper case prefix", "0XC350", newBigInt("50000"), false},
		{"10 ETH in wei", "0x8ac7230489e80000", newBigInt("10000000000000000000"), false},
		{"Not hex", "0xzz", nil, true},
		{"Over 256 bits", "0x1" + strings.Repeat("0", 64), nil, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := ToBigInt(tc.input)
			if tc.expectError {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
				require.Equal(t, 0, tc.expected.Cmp(result), "Expected %s, got %s", tc.expected.String(), result.String())
			}
		})
	}
}

// TestFromBigInt test from BigInt.
func TestFromBigInt(t *testing.T) {
	testCases := []struct {
		name        string
		input       *big.Int
		expected    string
		expectError bool
		errorMsg    string
	}{
		{"Nil input", nil, "", true, "big.Int value cannot be nil"},
		{"Negative input", newBigInt("-1"), "", true, "negative"},
		{"Over 256 bits", new(big.Int).Lsh(big.NewInt(1), 256), "", true, "256 bits"},
		{"Zero", newBigInt("0"), "0x0", false, ""},
		{"Call gas", newBigInt("50000"), "0xc350", false, ""},
		{"Pre-verification gas", newBigInt("21000"), "0x5208", false, ""},
		{"Verification gas", newBigInt("70000"), "0x11170", false, ""},
		{"10 ETH in wei", newBigInt("10000000000000000000"), "0x8ac7230489e80000", false, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result, err := FromBigInt(tc.input)
			if tc.expectError {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.errorMsg)
			} else {
				require.NoError(t, err)
				require.Equal(t, tc.expected, result)
			}
		})
	}
}

func TestFromDecimal(t *testing.T) {
	testCases := []struct {
		input       string
		expected    string
		expectError bool
	}{
		{"50000", "0xc350", false},
		{"0", "0x0", false},
		{"1.5", "", true},
		{"1e3", "", true},
		{"-1", "", true},
		{"abc", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			result, err := fromDecimal(tc.input)
			if tc.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, result)
		})
	}
}
