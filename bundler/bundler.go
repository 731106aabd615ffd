// Package bundler submits user operations to an ERC-4337 bundler and waits
// for the transactions that include them.
package bundler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog/log"

	"github.com/blndgs/peerreview"
)

const (
	methodSendUserOperation       = "eth_sendUserOperation"
	methodGetUserOperationReceipt = "eth_getUserOperationReceipt"
	methodSupportedEntryPoints    = "eth_supportedEntryPoints"

	DefaultPollDelay   = 2 * time.Second
	DefaultPollRetries = 30
)

// ReceiptFetcher looks up transaction receipts on a chain node.
// *ethclient.Client satisfies it.
type ReceiptFetcher interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// UserOperationReceipt is the eth_getUserOperationReceipt result.
type UserOperationReceipt struct {
	UserOpHash    common.Hash    `json:"userOpHash"`
	Sender        common.Address `json:"sender"`
	Nonce         *hexutil.Big   `json:"nonce"`
	Paymaster     common.Address `json:"paymaster"`
	ActualGasCost *hexutil.Big   `json:"actualGasCost"`
	ActualGasUsed *hexutil.Big   `json:"actualGasUsed"`
	Success       bool           `json:"success"`
	Reason        string         `json:"reason,omitempty"`
	Receipt       struct {
		TransactionHash common.Hash  `json:"transactionHash"`
		BlockNumber     *hexutil.Big `json:"blockNumber"`
	} `json:"receipt"`
}

// Client talks to a bundler over JSON-RPC.
type Client struct {
	rpc     *rpc.Client
	node    ReceiptFetcher
	delay   time.Duration
	retries int
}

// Option configures a Client.
type Option func(*Client)

// WithPolling sets how long to wait between receipt lookups and how many
// lookups to make before giving up.
func WithPolling(delay time.Duration, retries int) Option {
	return func(c *Client) {
		if delay > 0 {
			c.delay = delay
		}
		if retries > 0 {
			c.retries = retries
		}
	}
}

// WithReceiptFetcher sets the node used to confirm the bundle transaction.
// Without one the transaction hash reported by the bundler is trusted as is.
func WithReceiptFetcher(node ReceiptFetcher) Option {
	return func(c *Client) {
		c.node = node
	}
}

// Dial connects to the bundler at endpoint.
func Dial(ctx context.Context, endpoint string, opts ...Option) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to dial bundler: %w", err)
	}
	return NewClient(rpcClient, opts...), nil
}

// NewClient wraps an established RPC connection.
func NewClient(rpcClient *rpc.Client, opts ...Option) *Client {
	c := &Client{
		rpc:     rpcClient,
		delay:   DefaultPollDelay,
		retries: DefaultPollRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close closes the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// SupportedEntryPoints returns the EntryPoint addresses the bundler serves.
func (c *Client) SupportedEntryPoints(ctx context.Context) ([]common.Address, error) {
	var entryPoints []common.Address
	if err := c.rpc.CallContext(ctx, &entryPoints, methodSupportedEntryPoints); err != nil {
		return nil, err
	}
	return entryPoints, nil
}

// SendUserOperation submits a signed operation and returns its user
// operation hash. Any failure is a SubmissionError.
func (c *Client) SendUserOperation(ctx context.Context, op *peerreview.UserOperation, entryPoint common.Address) (common.Hash, error) {
	if !op.HasSignature() {
		return common.Hash{}, &peerreview.SubmissionError{Err: errors.New("user operation is not signed")}
	}

	var hash common.Hash
	if err := c.rpc.CallContext(ctx, &hash, methodSendUserOperation, op, entryPoint); err != nil {
		return common.Hash{}, &peerreview.SubmissionError{Err: err}
	}

	log.Debug().Stringer("userOpHash", hash).Stringer("sender", op.Sender).Msg("user operation submitted")
	return hash, nil
}

// GetUserOperationReceipt returns the receipt of an operation, or nil while
// it is not yet included.
func (c *Client) GetUserOperationReceipt(ctx context.Context, userOpHash common.Hash) (*UserOperationReceipt, error) {
	var receipt *UserOperationReceipt
	if err := c.rpc.CallContext(ctx, &receipt, methodGetUserOperationReceipt, userOpHash); err != nil {
		return nil, err
	}
	return receipt, nil
}

// WaitForUserOperationTransaction polls the bundler until it reports the
// transaction that included the operation, then confirms that transaction on
// the node. It returns the transaction hash.
//
// When the bundler has reported a transaction that the node still cannot
// return a receipt for, the error is a *peerreview.TransactionNotFoundError
// whose message carries the hash. When the bundler never reports a receipt
// the error carries no hash.
func (c *Client) WaitForUserOperationTransaction(ctx context.Context, userOpHash common.Hash) (common.Hash, error) {
	for attempt := 0; attempt < c.retries; attempt++ {
		receipt, err := c.GetUserOperationReceipt(ctx, userOpHash)
		if err != nil {
			return common.Hash{}, err
		}

		if receipt != nil {
			txHash := receipt.Receipt.TransactionHash
			log.Debug().Stringer("userOpHash", userOpHash).Stringer("txHash", txHash).Bool("success", receipt.Success).Msg("user operation included")
			return c.confirmTransaction(ctx, txHash)
		}

		if err := sleep(ctx, c.delay); err != nil {
			return common.Hash{}, err
		}
	}

	return common.Hash{}, fmt.Errorf("timed out waiting for user operation %s after %d attempts", userOpHash.Hex(), c.retries)
}

func (c *Client) confirmTransaction(ctx context.Context, txHash common.Hash) (common.Hash, error) {
	if c.node == nil {
		return txHash, nil
	}

	for attempt := 0; attempt < c.retries; attempt++ {
		_, err := c.node.TransactionReceipt(ctx, txHash)
		if err == nil {
			return txHash, nil
		}
		if !errors.Is(err, ethereum.NotFound) {
			return common.Hash{}, err
		}

		if err := sleep(ctx, c.delay); err != nil {
			return common.Hash{}, err
		}
	}

	return common.Hash{}, &peerreview.TransactionNotFoundError{Hash: txHash}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
