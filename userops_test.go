package peerreview

import (
	"fmt"
	"math/big"
	"reflect"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/require"
)

// TestUserOperation_GetPaymaster test GetPaymaster function.
func TestUserOperation_GetPaymaster(t *testing.T) {
	op := UserOperation{
		PaymasterAndData: append(common.HexToAddress("0xde0B295669a9FD93d5F28D9Ec85E40f4cb697BAe").Bytes(), []byte("extra data")...),
	}
	expectedAddress := common.HexToAddress("0xde0B295669a9FD93d5F28D9Ec85E40f4cb697BAe")

	if got := op.GetPaymaster(); got != expectedAddress {
		t.Errorf("GetPaymaster() = %v, want %v", got, expectedAddress)
	}

	short := UserOperation{PaymasterAndData: common.FromHex("0xfeed")}
	if got := short.GetPaymaster(); got != (common.Address{}) {
		t.Errorf("GetPaymaster() = %v, want zero address", got)
	}
}

// TestUserOperation_GetFactory tests GetFactory function.
func TestUserOperation_GetFactory(t *testing.T) {
	op := UserOperation{
		InitCode: append(common.HexToAddress("0xde0B295669a9FD93d5F28D9Ec85E40f4cb697BAe").Bytes(), []byte("init code")...),
	}
	expectedAddress := common.HexToAddress("0xde0B295669a9FD93d5F28D9Ec85E40f4cb697BAe")

	if got := op.GetFactory(); got != expectedAddress {
		t.Errorf("GetFactory() = %v, want %v", got, expectedAddress)
	}
}

// TestUserOperation_GetMaxGasAvailable test GetMaxGasAvailable function.
func TestUserOperation_GetMaxGasAvailable(t *testing.T) {
	op := UserOperation{
		VerificationGasLimit: big.NewInt(30000),
		PreVerificationGas:   big.NewInt(20000),
		CallGasLimit:         big.NewInt(50000),
		PaymasterAndData:     []byte{}, // No paymaster, multiplier should be 1
	}

	if got := op.GetMaxGasAvailable(); got.Cmp(big.NewInt(100000)) != 0 {
		t.Errorf("GetMaxGasAvailable() = %v, want %v", got, 100000)
	}

	op.PaymasterAndData = common.HexToAddress("0xde0B295669a9FD93d5F28D9Ec85E40f4cb697BAe").Bytes()
	// 30000 * 3 + 20000 + 50000
	if got := op.GetMaxGasAvailable(); got.Cmp(big.NewInt(160000)) != 0 {
		t.Errorf("GetMaxGasAvailable() = %v, want %v", got, 160000)
	}
}

// TestUserOperation_GetMaxPrefund test GetMaxPrefund function.
func TestUserOperation_GetMaxPrefund(t *testing.T) {
	op := UserOperation{
		VerificationGasLimit: big.NewInt(30000),
		PreVerificationGas:   big.NewInt(20000),
		CallGasLimit:         big.NewInt(50000),
		MaxFeePerGas:         big.NewInt(100),
	}
	// MaxPrefund = MaxGasAvailable * MaxFeePerGas
	// MaxGasAvailable = 30000 * 1 + (20000 + 50000) = 100000
	expectedPrefund := big.NewInt(10000000)

	if got := op.GetMaxPrefund(); got.Cmp(expectedPrefund) != 0 {
		t.Errorf("GetMaxPrefund() = %v, want %v", got, expectedPrefund)
	}
}

func TestUserOperation_HasSignature(t *testing.T) {
	valid := common.FromHex("0xbda2865b91c92ef7f8a43adc039b8a3f43011a20cfc818d078847ef2ffd916ec236a1cc9218b164fe2f5a7088b7010c90ad0f9a9dcf3a21168d433e784582afb1c")

	tests := []struct {
		name      string
		signature []byte
		want      bool
	}{
		{"valid signature", valid, true},
		{"empty signature", []byte{}, false},
		{"short signature", []byte{0x12, 0x34, 0x56, 0x78, 0x90, 0xab}, false},
		{"bad recovery id", append(append([]byte{}, valid[:64]...), 0x01), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := &UserOperation{Signature: tt.signature}
			require.Equal(t, tt.want, op.HasSignature())
		})
	}
}

func TestUserOperation_UnmarshalJSON(t *testing.T) {
	originalOp := &UserOperation{
		Sender:               common.HexToAddress("0x3068c2408c01bECde4BcCB9f246b56651BE1d12D"),
		Nonce:                big.NewInt(15),
		InitCode:             []byte("init"),
		CallData:             common.FromHex("0xdeadbeef"),
		CallGasLimit:         big.NewInt(12068),
		VerificationGasLimit: big.NewInt(58592),
		PreVerificationGas:   big.NewInt(47996),
		MaxFeePerGas:         big.NewInt(77052194170),
		MaxPriorityFeePerGas: big.NewInt(77052194106),
		PaymasterAndData:     []byte("paymaster data"),
		Signature:            []byte("signature"),
	}

	marshaledJSON, err := originalOp.MarshalJSON()
	if err != nil {
		t.Fatalf("MarshalJSON failed: %v", err)
	}

	var unmarshaledOp UserOperation
	if err := unmarshaledOp.UnmarshalJSON(marshaledJSON); err != nil {
		t.Fatalf("UnmarshalJSON failed: %v", err)
	}

	if !reflect.DeepEqual(originalOp, &unmarshaledOp) {
		t.Errorf("Unmarshaled UserOperation does not match the original.\nOriginal: %+v\nUnmarshaled: %+v", originalOp, unmarshaledOp)
	}
}

func TestUserOperation_UnmarshalJSON_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		wantErr error
	}{
		{
			name:    "missing signature",
			payload: `{"sender":"0x3068c2408c01bECde4BcCB9f246b56651BE1d12D","nonce":"0x1","initCode":"0x","callData":"0x","callGasLimit":"0x1","verificationGasLimit":"0x1","preVerificationGas":"0x1","maxFeePerGas":"0x1","maxPriorityFeePerGas":"0x1","paymasterAndData":"0x"}`,
			wantErr: ErrMissingField,
		},
		{
			name:    "decimal nonce",
			payload: `{"sender":"0x3068c2408c01bECde4BcCB9f246b56651BE1d12D","nonce":15,"initCode":"0x","callData":"0x","callGasLimit":"0x1","verificationGasLimit":"0x1","preVerificationGas":"0x1","maxFeePerGas":"0x1","maxPriorityFeePerGas":"0x1","paymasterAndData":"0x","signature":"0x"}`,
			wantErr: ErrEncoding,
		},
		{
			name:    "odd length call data",
			payload: `{"sender":"0x3068c2408c01bECde4BcCB9f246b56651BE1d12D","nonce":"0x1","initCode":"0x","callData":"0xabc","callGasLimit":"0x1","verificationGasLimit":"0x1","preVerificationGas":"0x1","maxFeePerGas":"0x1","maxPriorityFeePerGas":"0x1","paymasterAndData":"0x","signature":"0x"}`,
			wantErr: ErrEncoding,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var op UserOperation
			err := op.UnmarshalJSON([]byte(tt.payload))
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestUserOperation_MarshalJSON(t *testing.T) {
	op := &UserOperation{
		Sender:               common.HexToAddress("0x0000000000000000000000000000000000000001"),
		Nonce:                big.NewInt(0),
		CallData:             common.FromHex("0xdeadbeef"),
		CallGasLimit:         big.NewInt(50000),
		VerificationGasLimit: big.NewInt(70000),
		PreVerificationGas:   big.NewInt(21000),
		MaxFeePerGas:         big.NewInt(2),
		MaxPriorityFeePerGas: big.NewInt(1),
		PaymasterAndData:     common.FromHex("0xfeed"),
	}

	data, err := json.Marshal(op)
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, map[string]string{
		"sender":               "0x0000000000000000000000000000000000000001",
		"nonce":                "0x0",
		"initCode":             "0x",
		"callData":             "0xdeadbeef",
		"callGasLimit":         "0xc350",
		"verificationGasLimit": "0x11170",
		"preVerificationGas":   "0x5208",
		"maxFeePerGas":         "0x2",
		"maxPriorityFeePerGas": "0x1",
		"paymasterAndData":     "0xfeed",
		"signature":            "0x",
	}, got)
}

// The expected hash is the v0.6 EntryPoint getUserOpHash for the same
// operation, computed independently of PackForSignature.
func TestUserOperation_GetUserOpHash(t *testing.T) {
	op := &UserOperation{
		Sender:               common.HexToAddress("0x3068c2408c01bECde4BcCB9f246b56651BE1d12D"),
		Nonce:                big.NewInt(1),
		InitCode:             []byte{},
		CallData:             common.FromHex("0xdeadbeef"),
		CallGasLimit:         big.NewInt(50000),
		VerificationGasLimit: big.NewInt(70000),
		PreVerificationGas:   big.NewInt(21000),
		MaxFeePerGas:         big.NewInt(2),
		MaxPriorityFeePerGas: big.NewInt(1),
		PaymasterAndData:     common.FromHex("0xfeed"),
	}

	chainID := big.NewInt(84532)
	hash := op.GetUserOpHash(EntryPointV06, chainID)
	require.NotEqual(t, common.Hash{}, hash)

	// The signature is not part of the hash.
	op.Signature = []byte("signature")
	require.Equal(t, hash, op.GetUserOpHash(EntryPointV06, chainID))

	// Chain and EntryPoint are.
	require.NotEqual(t, hash, op.GetUserOpHash(EntryPointV06, big.NewInt(1)))
	require.NotEqual(t, hash, op.GetUserOpHash(common.HexToAddress("0x0000000071727De22E5E9d8BAf0edAc6f37da032"), chainID))

	// Every gas field is.
	op.CallGasLimit = big.NewInt(50001)
	require.NotEqual(t, hash, op.GetUserOpHash(EntryPointV06, chainID))
}

func TestUserOperation_PackForSignature(t *testing.T) {
	op := &UserOperation{
		Sender: common.HexToAddress("0x3068c2408c01bECde4BcCB9f246b56651BE1d12D"),
		Nonce:  big.NewInt(7),
	}

	packed := op.PackForSignature()
	// ten static 32 byte words
	require.Len(t, packed, 10*32)
	require.Equal(t, common.LeftPadBytes(op.Sender.Bytes(), 32), packed[:32])
	require.Equal(t, common.LeftPadBytes([]byte{7}, 32), packed[32:64])
}

func TestUserOperationString(t *testing.T) {
	userOp := UserOperation{
		Sender:               common.HexToAddress("0x6B5f6558CB8B3C8Fec2DA0B1edA9b9d5C064ca47"),
		Nonce:                big.NewInt(0x7),
		InitCode:             []byte{},
		CallData:             []byte{},
		CallGasLimit:         big.NewInt(0x2dc6c0),
		VerificationGasLimit: big.NewInt(0x2dc6c0),
		PreVerificationGas:   big.NewInt(0xbb70),
		MaxFeePerGas:         big.NewInt(0x7e498f31e),
		MaxPriorityFeePerGas: big.NewInt(0x7e498f300),
		PaymasterAndData:     []byte{},
		Signature:            common.FromHex("0xbda2865b91c92ef7f8a43adc039b8a3f43011a20cfc818d078847ef2ffd916ec236a1cc9218b164fe2f5a7088b7010c90ad0f9a9dcf3a21168d433e784582afb1c"),
	}

	expected := fmt.Sprintf(
		`UserOperation{
  Sender: %s
  Nonce: %s
  InitCode: %s
  CallData: %s
  CallGasLimit: %s
  VerificationGasLimit: %s
  PreVerificationGas: %s
  MaxFeePerGas: %s
  MaxPriorityFeePerGas: %s
  PaymasterAndData: %s
  Signature: %s
}`,
		userOp.Sender.String(),
		"0x7, 7",
		"0x",
		"0x",
		"0x2dc6c0, 3000000",
		"0x2dc6c0, 3000000",
		"0xbb70, 47984",
		"0x7e498f31e, 33900000030",
		"0x7e498f300, 33900000000",
		"0x",
		hexutil.Encode(userOp.Signature),
	)

	if result := userOp.String(); result != expected {
		t.Errorf("String() = %v, want %v", result, expected)
	}
}
