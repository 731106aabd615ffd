package peerreview

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeepHexlify_Values(t *testing.T) {
	addr := common.HexToAddress("0x29fAc56b5f34e29BC363cA18ACB33924f2Ce166c")

	tests := []struct {
		name     string
		input    any
		expected any
	}{
		{"nil", nil, nil},
		{"bool", true, true},
		{"big zero", big.NewInt(0), "0x0"},
		{"big int", big.NewInt(50000), "0xc350"},
		{"hexutil big", (*hexutil.Big)(big.NewInt(21000)), "0x5208"},
		{"hexutil uint64", hexutil.Uint64(70000), "0x11170"},
		{"int", 70000, "0x11170"},
		{"int64", int64(21000), "0x5208"},
		{"uint8", uint8(255), "0xff"},
		{"uint64", uint64(50000), "0xc350"},
		{"json number", json.Number("50000"), "0xc350"},
		{"float64", float64(21000), "0x5208"},
		{"bytes", []byte{0xde, 0xad, 0xbe, 0xef}, "0xdeadbeef"},
		{"empty bytes", []byte{}, "0x"},
		{"hexutil bytes", hexutil.Bytes{0xfe, 0xed}, "0xfeed"},
		{"address", addr, addr.Hex()},
		{"address pointer", &addr, addr.Hex()},
		{"hash", common.HexToHash("0x01"), common.HexToHash("0x01").Hex()},
		{"hex string", "0xfeed", "0xfeed"},
		{"non minimal quantity string", "0x00c350", "0x00c350"},
		{"bare prefix", "0x", "0x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DeepHexlify(tt.input)
			require.NoError(t, err)
			require.Equal(t, tt.expected, got)
		})
	}
}

func TestDeepHexlify_Nested(t *testing.T) {
	input := Draft{
		"sender": common.HexToAddress("0x0000000000000000000000000000000000000001"),
		"nested": map[string]any{
			"gas":  big.NewInt(50000),
			"list": []any{1, []byte{0x01}, "0x02"},
		},
	}

	got, err := DeepHexlify(input)
	require.NoError(t, err)
	require.Equal(t, Draft{
		"sender": "0x0000000000000000000000000000000000000001",
		"nested": map[string]any{
			"gas":  "0xc350",
			"list": []any{"0x1", "0x01", "0x02"},
		},
	}, got)

	// the input is never mutated
	assert.IsType(t, &big.Int{}, input["nested"].(map[string]any)["gas"])
}

func TestDeepHexlify_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input any
		path  string
	}{
		{"negative int", Draft{"nonce": -1}, "nonce"},
		{"negative big", Draft{"nonce": big.NewInt(-1)}, "nonce"},
		{"nil big", Draft{"nonce": (*big.Int)(nil)}, "nonce"},
		{"fractional float", Draft{"callGasLimit": 1.5}, "callGasLimit"},
		{"fractional number", Draft{"callGasLimit": json.Number("1.5")}, "callGasLimit"},
		{"exponent number", Draft{"callGasLimit": json.Number("1e3")}, "callGasLimit"},
		{"decimal string", Draft{"callGasLimit": "50000"}, "callGasLimit"},
		{"non hex string", Draft{"paymasterAndData": "0xnothex"}, "paymasterAndData"},
		{"unsupported kind", Draft{"callData": struct{}{}}, "callData"},
		{"deferred", Draft{"nonce": Deferred(nil)}, "nonce"},
		{"nested path", Draft{"a": map[string]any{"b": []any{"0x1", "x"}}}, "a.b[1]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DeepHexlify(tt.input)
			require.ErrorIs(t, err, ErrEncoding)

			var encErr *EncodingError
			require.ErrorAs(t, err, &encErr)
			require.Equal(t, tt.path, encErr.Path)
		})
	}
}

func TestDeepHexlify_Idempotent(t *testing.T) {
	inputs := []any{
		Draft{
			FieldSender:       common.HexToAddress("0x0000000000000000000000000000000000000001"),
			FieldNonce:        big.NewInt(0),
			FieldCallData:     []byte{0xde, 0xad, 0xbe, 0xef},
			FieldCallGasLimit: json.Number("50000"),
			FieldSignature:    "0xfeed",
		},
		map[string]any{"a": []any{uint64(1), true, nil}},
		[]any{},
	}

	for _, input := range inputs {
		once, err := DeepHexlify(input)
		require.NoError(t, err)

		twice, err := DeepHexlify(once)
		require.NoError(t, err)
		require.Equal(t, once, twice)
	}
}
