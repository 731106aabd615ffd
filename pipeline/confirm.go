package pipeline

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"github.com/blndgs/peerreview"
)

var errNoTransactionHash = errors.New("confirmation returned no transaction hash")

// Confirm turns the outcome of a confirmation wait into a terminal result.
//
// A wait that returned a transaction hash is Confirmed. A wait that failed
// with an error whose text names the transaction, `Transaction with hash
// "<hash>"`, is Recovered with that hash: the operation was included and only
// the receipt lookup failed. Any other failure, including a quoted empty
// hash, is returned as a *peerreview.ConfirmationError wrapping waitErr.
func Confirm(functionName string, userOpHash, txHash common.Hash, waitErr error) (*peerreview.Result, error) {
	if waitErr == nil {
		if txHash == (common.Hash{}) {
			return nil, &peerreview.ConfirmationError{UserOpHash: userOpHash, Err: errNoTransactionHash}
		}

		return &peerreview.Result{
			FunctionName: functionName,
			UserOpHash:   userOpHash,
			TxHash:       txHash.Hex(),
			Status:       peerreview.Confirmed,
			Message:      fmt.Sprintf("Successfully sponsored gas for %s transaction %s", functionName, txHash.Hex()),
		}, nil
	}

	recovered := peerreview.ExtractTxHashFromError(waitErr)
	if recovered == "" {
		return nil, &peerreview.ConfirmationError{UserOpHash: userOpHash, Err: waitErr}
	}

	log.Warn().Err(waitErr).Stringer("userOpHash", userOpHash).Str("txHash", recovered).Msg("recovered transaction hash from confirmation error")

	return &peerreview.Result{
		FunctionName: functionName,
		UserOpHash:   userOpHash,
		TxHash:       recovered,
		Status:       peerreview.Recovered,
		Message:      fmt.Sprintf("Successfully sponsored gas for %s transaction %s (hash recovered, receipt not yet available)", functionName, recovered),
	}, nil
}
