package peerreview

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

type userOperationError string

func (e userOperationError) Error() string {
	return string(e)
}

// Define error constants
const (
	ErrConfiguration    userOperationError = "invalid configuration"
	ErrSponsorship      userOperationError = "paymaster sponsorship failed"
	ErrEncoding         userOperationError = "invalid hex encoding"
	ErrSubmission       userOperationError = "user operation submission failed"
	ErrConfirmation     userOperationError = "user operation confirmation failed"
	ErrUnresolvedField  userOperationError = "unresolved user operation field"
	ErrMissingField     userOperationError = "missing user operation field"
	ErrUnknownFunction  userOperationError = "unknown contract function"
	ErrReadOnlyFunction userOperationError = "contract function is read-only"
	ErrWriteFunction    userOperationError = "contract function changes state"
	ErrInvalidInput     userOperationError = "invalid call input"
	ErrChain            userOperationError = "chain node request failed"
)

// ConfigurationError reports a malformed signing identity or a missing
// chain/transport setting. It is raised before any network call is made.
type ConfigurationError struct {
	Field string
	Err   error
}

func (e *ConfigurationError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", ErrConfiguration, e.Field)
	}
	return fmt.Sprintf("%s: %s: %v", ErrConfiguration, e.Field, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// SponsorshipError reports a paymaster that rejected the operation or could
// not be reached. Body holds the raw response body, when one was read.
type SponsorshipError struct {
	StatusCode int
	Body       []byte
	Err        error
}

func (e *SponsorshipError) Error() string {
	msg := string(ErrSponsorship)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if len(e.Body) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, e.Body)
	}
	return msg
}

func (e *SponsorshipError) Unwrap() error { return e.Err }

func (e *SponsorshipError) Is(target error) bool { return target == ErrSponsorship }

// EncodingError reports a field that could not be brought into canonical hex
// form. Path is the dotted location of the field inside the operation.
type EncodingError struct {
	Path  string
	Value any
	Err   error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("%s: %s (%T): %v", ErrEncoding, e.Path, e.Value, e.Err)
}

func (e *EncodingError) Unwrap() error { return e.Err }

func (e *EncodingError) Is(target error) bool { return target == ErrEncoding }

// SubmissionError reports a bundler that refused the finalized operation.
type SubmissionError struct {
	Err error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s: %v", ErrSubmission, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

func (e *SubmissionError) Is(target error) bool { return target == ErrSubmission }

// ConfirmationError reports a confirmation wait that ended without a usable
// transaction hash. Err is the error raised by the wait, unchanged.
type ConfirmationError struct {
	UserOpHash common.Hash
	Err        error
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("%s: userOp %s: %v", ErrConfirmation, e.UserOpHash.Hex(), e.Err)
}

func (e *ConfirmationError) Unwrap() error { return e.Err }

func (e *ConfirmationError) Is(target error) bool { return target == ErrConfirmation }

// ChainError reports a node call that failed while the operation was being
// built. Op names the call.
type ChainError struct {
	Op  string
	Err error
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrChain, e.Op, e.Err)
}

func (e *ChainError) Unwrap() error { return e.Err }

func (e *ChainError) Is(target error) bool { return target == ErrChain }

// TransactionNotFoundError is raised when the bundler has reported the
// transaction that included an operation but the node cannot return its
// receipt yet. The operation is on chain; only the receipt lookup lost the race.
type TransactionNotFoundError struct {
	Hash common.Hash
}

func (e *TransactionNotFoundError) Error() string {
	return fmt.Sprintf("Transaction with hash %q could not be found.", e.Hash.Hex())
}
