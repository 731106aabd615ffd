// Package peerreview provides the structures and methods used to build,
// sponsor and submit ERC-4337 user operations against the peer-review
// contract.
//
// A write call travels as a Draft: a record keyed by the EntryPoint v0.6 JSON
// field names whose values may still be deferred. The Draft is canonicalized
// into strict hex before it is sent to the paymaster, merged with the
// paymaster's gas fields, canonicalized again, and finally decoded into a
// UserOperation for signing and submission.
package peerreview

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/goccy/go-json"
)

// EntryPointV06 is the canonical ERC-4337 v0.6 EntryPoint address.
var EntryPointV06 = common.HexToAddress("0x5FF137D4b0FDCD49DcA30c7CF57E578a026d2789")

// UserOperation represents an ERC-4337 v0.6 user operation whose every
// field is materialized.
type UserOperation struct {
	Sender               common.Address `json:"sender"               mapstructure:"sender"               validate:"required"`
	Nonce                *big.Int       `json:"nonce"                mapstructure:"nonce"                validate:"required"`
	InitCode             []byte         `json:"initCode"             mapstructure:"initCode"             validate:"required"`
	CallData             []byte         `json:"callData"             mapstructure:"callData"             validate:"required"`
	CallGasLimit         *big.Int       `json:"callGasLimit"         mapstructure:"callGasLimit"         validate:"required"`
	VerificationGasLimit *big.Int       `json:"verificationGasLimit" mapstructure:"verificationGasLimit" validate:"required"`
	PreVerificationGas   *big.Int       `json:"preVerificationGas"   mapstructure:"preVerificationGas"   validate:"required"`
	MaxFeePerGas         *big.Int       `json:"maxFeePerGas"         mapstructure:"maxFeePerGas"         validate:"required"`
	MaxPriorityFeePerGas *big.Int       `json:"maxPriorityFeePerGas" mapstructure:"maxPriorityFeePerGas" validate:"required"`
	PaymasterAndData     []byte         `json:"paymasterAndData"     mapstructure:"paymasterAndData"     validate:"required"`
	Signature            []byte         `json:"signature"            mapstructure:"signature"`
}

type userOperationJSON struct {
	Sender               common.Address `json:"sender"`
	Nonce                *hexutil.Big   `json:"nonce"`
	InitCode             hexutil.Bytes  `json:"initCode"`
	CallData             hexutil.Bytes  `json:"callData"`
	CallGasLimit         *hexutil.Big   `json:"callGasLimit"`
	VerificationGasLimit *hexutil.Big   `json:"verificationGasLimit"`
	PreVerificationGas   *hexutil.Big   `json:"preVerificationGas"`
	MaxFeePerGas         *hexutil.Big   `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big   `json:"maxPriorityFeePerGas"`
	PaymasterAndData     hexutil.Bytes  `json:"paymasterAndData"`
	Signature            hexutil.Bytes  `json:"signature"`
}

// MarshalJSON encodes the operation in the hex form bundlers expect.
func (op *UserOperation) MarshalJSON() ([]byte, error) {
	return json.Marshal(userOperationJSON{
		Sender:               op.Sender,
		Nonce:                (*hexutil.Big)(orZero(op.Nonce)),
		InitCode:             op.InitCode,
		CallData:             op.CallData,
		CallGasLimit:         (*hexutil.Big)(orZero(op.CallGasLimit)),
		VerificationGasLimit: (*hexutil.Big)(orZero(op.VerificationGasLimit)),
		PreVerificationGas:   (*hexutil.Big)(orZero(op.PreVerificationGas)),
		MaxFeePerGas:         (*hexutil.Big)(orZero(op.MaxFeePerGas)),
		MaxPriorityFeePerGas: (*hexutil.Big)(orZero(op.MaxPriorityFeePerGas)),
		PaymasterAndData:     op.PaymasterAndData,
		Signature:            op.Signature,
	})
}

// UnmarshalJSON does the reverse of MarshalJSON. Every field must be present
// and hex encoded.
func (op *UserOperation) UnmarshalJSON(data []byte) error {
	aux := map[string]any{}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	decoded, err := Draft(aux).UserOperation()
	if err != nil {
		return err
	}

	*op = *decoded
	return nil
}

// GetPaymaster returns the paymaster address from the PaymasterAndData field.
func (op *UserOperation) GetPaymaster() common.Address {
	if len(op.PaymasterAndData) < common.AddressLength {
		return common.Address{}
	}
	return common.BytesToAddress(op.PaymasterAndData[:common.AddressLength])
}

// GetFactory returns the account factory address from the InitCode field.
func (op *UserOperation) GetFactory() common.Address {
	if len(op.InitCode) < common.AddressLength {
		return common.Address{}
	}
	return common.BytesToAddress(op.InitCode[:common.AddressLength])
}

// GetMaxGasAvailable returns the gas the EntryPoint reserves for the
// operation. Verification gas counts three times when a paymaster is set,
// since the paymaster's postOp may run as well.
func (op *UserOperation) GetMaxGasAvailable() *big.Int {
	mul := big.NewInt(1)
	if len(op.PaymasterAndData) >= common.AddressLength {
		mul = big.NewInt(3)
	}

	verification := new(big.Int).Mul(orZero(op.VerificationGasLimit), mul)
	rest := new(big.Int).Add(orZero(op.PreVerificationGas), orZero(op.CallGasLimit))
	return verification.Add(verification, rest)
}

// GetMaxPrefund returns the most the operation can be charged, in wei.
func (op *UserOperation) GetMaxPrefund() *big.Int {
	return new(big.Int).Mul(op.GetMaxGasAvailable(), orZero(op.MaxFeePerGas))
}

// HasSignature reports whether the operation carries a 65 byte ECDSA
// signature with a recovery id of 27 or 28.
func (op *UserOperation) HasSignature() bool {
	if len(op.Signature) != crypto.SignatureLength {
		return false
	}
	v := op.Signature[crypto.SignatureLength-1]
	return v == 27 || v == 28
}

var (
	abiAddress, _ = abi.NewType("address", "", nil)
	abiUint256, _ = abi.NewType("uint256", "", nil)
	abiBytes32, _ = abi.NewType("bytes32", "", nil)

	packedUserOpArgs = abi.Arguments{
		{Name: "sender", Type: abiAddress},
		{Name: "nonce", Type: abiUint256},
		{Name: "hashInitCode", Type: abiBytes32},
		{Name: "hashCallData", Type: abiBytes32},
		{Name: "callGasLimit", Type: abiUint256},
		{Name: "verificationGasLimit", Type: abiUint256},
		{Name: "preVerificationGas", Type: abiUint256},
		{Name: "maxFeePerGas", Type: abiUint256},
		{Name: "maxPriorityFeePerGas", Type: abiUint256},
		{Name: "hashPaymasterAndData", Type: abiBytes32},
	}

	userOpHashArgs = abi.Arguments{
		{Name: "userOpHash", Type: abiBytes32},
		{Name: "entryPoint", Type: abiAddress},
		{Name: "chainId", Type: abiUint256},
	}
)

// PackForSignature ABI-encodes the operation without its signature, hashing
// the dynamic fields, as the v0.6 EntryPoint does.
func (op *UserOperation) PackForSignature() []byte {
	packed, err := packedUserOpArgs.Pack(
		op.Sender,
		orZero(op.Nonce),
		crypto.Keccak256Hash(op.InitCode),
		crypto.Keccak256Hash(op.CallData),
		orZero(op.CallGasLimit),
		orZero(op.VerificationGasLimit),
		orZero(op.PreVerificationGas),
		orZero(op.MaxFeePerGas),
		orZero(op.MaxPriorityFeePerGas),
		crypto.Keccak256Hash(op.PaymasterAndData),
	)
	if err != nil {
		// The argument types are fixed above and match the values passed.
		panic(err)
	}
	return packed
}

// GetUserOpHash returns the hash the account owner signs: the packed
// operation hash bound to the EntryPoint and the chain.
func (op *UserOperation) GetUserOpHash(entryPoint common.Address, chainID *big.Int) common.Hash {
	encoded, err := userOpHashArgs.Pack(
		crypto.Keccak256Hash(op.PackForSignature()),
		entryPoint,
		orZero(chainID),
	)
	if err != nil {
		panic(err)
	}
	return crypto.Keccak256Hash(encoded)
}

func orZero(i *big.Int) *big.Int {
	if i == nil {
		return new(big.Int)
	}
	return i
}

func (op *UserOperation) String() string {
	formatBytes := func(b []byte) string {
		if len(b) == 0 {
			return "0x" // default for empty byte slice
		}
		return hexutil.Encode(b)
	}

	formatBigInt := func(b *big.Int) string {
		if b == nil {
			return "0x, 0" // Default for nil big.Int
		}
		return fmt.Sprintf("0x%x, %s", b, b.Text(10))
	}

	return fmt.Sprintf(
		"UserOperation{\n"+
			"  Sender: %s\n"+
			"  Nonce: %s\n"+
			"  InitCode: %s\n"+
			"  CallData: %s\n"+
			"  CallGasLimit: %s\n"+
			"  VerificationGasLimit: %s\n"+
			"  PreVerificationGas: %s\n"+
			"  MaxFeePerGas: %s\n"+
			"  MaxPriorityFeePerGas: %s\n"+
			"  PaymasterAndData: %s\n"+
			"  Signature: %s\n"+
			"}",
		op.Sender.String(),
		formatBigInt(op.Nonce),
		formatBytes(op.InitCode),
		formatBytes(op.CallData),
		formatBigInt(op.CallGasLimit),
		formatBigInt(op.VerificationGasLimit),
		formatBigInt(op.PreVerificationGas),
		formatBigInt(op.MaxFeePerGas),
		formatBigInt(op.MaxPriorityFeePerGas),
		formatBytes(op.PaymasterAndData),
		formatBytes(op.Signature),
	)
}
