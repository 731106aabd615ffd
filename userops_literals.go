package peerreview

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goccy/go-json"
)

// SponsorshipResponse is the result of a pm_sponsorUserOperation call.
// The paymaster is not trusted to return any particular encoding: gas values
// arrive as hex strings or native JSON numbers and are kept as literals
// (json.Number or string) until the assembler canonicalizes them.
type SponsorshipResponse struct {
	CallGasLimit         any             `json:"callGasLimit"`
	PreVerificationGas   any             `json:"preVerificationGas"`
	VerificationGasLimit any             `json:"verificationGasLimit"`
	PaymasterAndData     any             `json:"paymasterAndData"`
	Raw                  json.RawMessage `json:"-"`
}

// Call is a state-changing contract call to be executed by the smart account.
type Call struct {
	FunctionName string
	Target       common.Address
	Data         []byte
	Value        *big.Int
}

// ConfirmationStatus tells how the transaction hash of a submitted operation
// was obtained.
type ConfirmationStatus string

const (
	// Confirmed means the confirmation wait returned the hash directly.
	Confirmed ConfirmationStatus = "Confirmed"
	// Recovered means the wait failed but its error carried the hash.
	Recovered ConfirmationStatus = "Recovered"
)

// Result is the terminal state of a successful pipeline run.
type Result struct {
	FunctionName string             `json:"functionName"`
	Sender       common.Address     `json:"sender"`
	UserOpHash   common.Hash        `json:"userOpHash"`
	TxHash       string             `json:"txHash"`
	Status       ConfirmationStatus `json:"status"`
	Message      string             `json:"message"`
	ExplorerURL  string             `json:"explorerUrl,omitempty"`
}
