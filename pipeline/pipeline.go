// Package pipeline sends sponsored contract calls through a smart account.
//
// A write call is built into a draft user operation, its gas fields are
// zeroed, the paymaster is asked to sponsor it, the sponsor's fields are
// merged in, and the signed operation is submitted to the bundler. The
// confirmation wait salvages the transaction hash from receipt lookup errors.
// Read calls go straight to the node.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"github.com/blndgs/peerreview"
	"github.com/blndgs/peerreview/account"
)

// Sponsor requests paymaster sponsorship for a draft.
type Sponsor interface {
	SponsorUserOperation(ctx context.Context, draft peerreview.Draft) (*peerreview.SponsorshipResponse, error)
}

// Bundler submits operations and waits for their transactions.
type Bundler interface {
	SendUserOperation(ctx context.Context, op *peerreview.UserOperation, entryPoint common.Address) (common.Hash, error)
	WaitForUserOperationTransaction(ctx context.Context, userOpHash common.Hash) (common.Hash, error)
}

// Chain is the subset of node access the pipeline needs.
// *ethclient.Client satisfies it.
type Chain interface {
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// Config holds what a pipeline run needs to know about the account and
// chain.
type Config struct {
	PrivateKey  string
	RPCURL      string
	ChainID     *big.Int
	EntryPoint  common.Address
	Contract    common.Address
	Resolver    *account.Resolver
	ExplorerURL string
}

const entryPointABIJSON = `[{"type":"function","name":"getNonce","stateMutability":"view","inputs":[{"name":"sender","type":"address"},{"name":"key","type":"uint192"}],"outputs":[{"name":"nonce","type":"uint256"}]}]`

var entryPointABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(entryPointABIJSON))
	if err != nil {
		panic(err)
	}
	return parsed
}()

// Pipeline runs sponsored user operations. It holds no state between runs;
// the smart account is derived again for every call.
type Pipeline struct {
	cfg     Config
	sponsor Sponsor
	bundler Bundler
	chain   Chain
}

// New returns a pipeline over the given collaborators.
func New(cfg Config, sponsor Sponsor, bundler Bundler, chain Chain) *Pipeline {
	if cfg.EntryPoint == (common.Address{}) {
		cfg.EntryPoint = peerreview.EntryPointV06
	}
	if cfg.Resolver == nil {
		cfg.Resolver = account.NewResolver(nil)
	}
	if cfg.Resolver.EntryPoint == (common.Address{}) {
		r := *cfg.Resolver
		r.EntryPoint = cfg.EntryPoint
		cfg.Resolver = &r
	}
	return &Pipeline{
		cfg:     cfg,
		sponsor: sponsor,
		bundler: bundler,
		chain:   chain,
	}
}

// Account resolves the smart account of the configured key. The node is
// only asked when the resolver cannot derive the address offline.
func (p *Pipeline) Account(ctx context.Context) (*account.SmartAccount, error) {
	id, err := account.NewIdentity(p.cfg.PrivateKey, p.cfg.ChainID, p.cfg.RPCURL)
	if err != nil {
		return nil, err
	}

	var caller account.Caller
	if p.chain != nil {
		caller = p.chain
	}
	return p.cfg.Resolver.Resolve(ctx, id, caller)
}

// SendFunction encodes a state-changing peer-review function with inputs
// and sends it to the configured contract.
func (p *Pipeline) SendFunction(ctx context.Context, functionName string, inputs map[string]string) (*peerreview.Result, error) {
	fn, err := peerreview.Lookup(functionName)
	if err != nil {
		return nil, err
	}
	if fn.ReadOnly {
		return nil, fmt.Errorf("%w: %s", peerreview.ErrReadOnlyFunction, functionName)
	}

	data, err := fn.Pack(inputs)
	if err != nil {
		return nil, err
	}

	return p.Send(ctx, peerreview.Call{
		FunctionName: functionName,
		Target:       p.cfg.Contract,
		Data:         data,
		Value:        new(big.Int),
	})
}

// Send runs one sponsored call end to end and returns its terminal result.
// Errors are typed: ConfigurationError before any network access,
// ChainError for failed node reads, then SponsorshipError, EncodingError,
// SubmissionError and ConfirmationError for the corresponding stage.
func (p *Pipeline) Send(ctx context.Context, call peerreview.Call) (*peerreview.Result, error) {
	acct, err := p.Account(ctx)
	if err != nil {
		return nil, err
	}

	logger := log.With().Str("function", call.FunctionName).Stringer("sender", acct.Address).Logger()
	logger.Info().Stringer("target", call.Target).Msg("sending user operation")

	draft, err := p.buildDraft(acct, call)
	if err != nil {
		return nil, err
	}
	draft = peerreview.ZeroGas(draft)

	sponsorship, err := p.sponsor.SponsorUserOperation(ctx, draft)
	if err != nil {
		return nil, err
	}
	event := logger.Info()
	if len(sponsorship.Raw) > 0 {
		event = event.RawJSON("sponsorship", sponsorship.Raw)
	}
	event.Msg("gas sponsored")

	final, err := Assemble(ctx, draft, sponsorship)
	if err != nil {
		return nil, err
	}

	op, err := final.UserOperation()
	if err != nil {
		return nil, err
	}

	sig, err := acct.SignUserOperation(op, p.cfg.EntryPoint)
	if err != nil {
		return nil, err
	}
	op.Signature = sig

	logger.Debug().Stringer("maxPrefund", op.GetMaxPrefund()).Stringer("userOp", op).Msg("user operation signed")

	userOpHash, err := p.bundler.SendUserOperation(ctx, op, p.cfg.EntryPoint)
	if err != nil {
		var subErr *peerreview.SubmissionError
		if !errors.As(err, &subErr) {
			err = &peerreview.SubmissionError{Err: err}
		}
		return nil, err
	}
	logger.Info().Stringer("userOpHash", userOpHash).Msg("waiting for transaction")

	txHash, waitErr := p.bundler.WaitForUserOperationTransaction(ctx, userOpHash)

	result, err := Confirm(call.FunctionName, userOpHash, txHash, waitErr)
	if err != nil {
		logger.Error().Err(err).Msg("confirmation failed")
		return nil, err
	}

	result.Sender = acct.Address
	if p.cfg.ExplorerURL != "" {
		result.ExplorerURL = strings.TrimRight(p.cfg.ExplorerURL, "/") + "/tx/" + result.TxHash
	}

	logger.Info().Str("txHash", result.TxHash).Str("status", string(result.Status)).Msg(result.Message)
	return result, nil
}

// buildDraft returns the unsponsored operation for call. Fields that need
// the node are deferred until the paymaster request resolves them, and
// resolve only once.
func (p *Pipeline) buildDraft(acct *account.SmartAccount, call peerreview.Call) (peerreview.Draft, error) {
	callData, err := acct.EncodeExecute(call.Target, call.Value, call.Data)
	if err != nil {
		return nil, err
	}

	fees := peerreview.Once(func(ctx context.Context) (any, error) {
		return p.fees(ctx)
	})

	return peerreview.Draft{
		peerreview.FieldSender: acct.Address,
		peerreview.FieldNonce: peerreview.Once(func(ctx context.Context) (any, error) {
			return p.nonce(ctx, acct.Address)
		}),
		peerreview.FieldInitCode: peerreview.Once(func(ctx context.Context) (any, error) {
			return p.initCode(ctx, acct)
		}),
		peerreview.FieldCallData:             callData,
		peerreview.FieldMaxFeePerGas:         feeField(fees, 0),
		peerreview.FieldMaxPriorityFeePerGas: feeField(fees, 1),
		peerreview.FieldPaymasterAndData:     "0x",
		peerreview.FieldSignature:            acct.DummySignature(),
	}, nil
}

func (p *Pipeline) nonce(ctx context.Context, sender common.Address) (*big.Int, error) {
	data, err := entryPointABI.Pack("getNonce", sender, new(big.Int))
	if err != nil {
		return nil, err
	}

	out, err := p.chain.CallContract(ctx, ethereum.CallMsg{To: &p.cfg.EntryPoint, Data: data}, nil)
	if err != nil {
		return nil, &peerreview.ChainError{Op: "getNonce", Err: err}
	}

	values, err := entryPointABI.Unpack("getNonce", out)
	if err != nil {
		return nil, &peerreview.ChainError{Op: "getNonce", Err: fmt.Errorf("failed to decode nonce: %w", err)}
	}
	return values[0].(*big.Int), nil
}

// initCode deploys the account with the first operation only.
func (p *Pipeline) initCode(ctx context.Context, acct *account.SmartAccount) ([]byte, error) {
	code, err := p.chain.CodeAt(ctx, acct.Address, nil)
	if err != nil {
		return nil, &peerreview.ChainError{Op: "eth_getCode", Err: err}
	}
	if len(code) > 0 {
		return []byte{}, nil
	}
	return acct.InitCode()
}

// fees returns maxFeePerGas and maxPriorityFeePerGas. The fee cap leaves
// room for the base fee to double.
func (p *Pipeline) fees(ctx context.Context) ([2]*big.Int, error) {
	tip, err := p.chain.SuggestGasTipCap(ctx)
	if err != nil {
		return [2]*big.Int{}, &peerreview.ChainError{Op: "eth_maxPriorityFeePerGas", Err: err}
	}

	head, err := p.chain.HeaderByNumber(ctx, nil)
	if err != nil {
		return [2]*big.Int{}, &peerreview.ChainError{Op: "eth_getBlockByNumber", Err: err}
	}

	baseFee := new(big.Int)
	if head.BaseFee != nil {
		baseFee.Set(head.BaseFee)
	}

	maxFee := new(big.Int).Mul(baseFee, big.NewInt(2))
	maxFee.Add(maxFee, tip)
	return [2]*big.Int{maxFee, tip}, nil
}

func feeField(fees peerreview.Deferred, i int) peerreview.Deferred {
	return func(ctx context.Context) (any, error) {
		v, err := fees(ctx)
		if err != nil {
			return nil, err
		}
		return v.([2]*big.Int)[i], nil
	}
}

// Read calls a view function of the contract and decodes its outputs.
func (p *Pipeline) Read(ctx context.Context, functionName string, inputs map[string]string) (any, error) {
	fn, err := peerreview.Lookup(functionName)
	if err != nil {
		return nil, err
	}
	if !fn.ReadOnly {
		return nil, fmt.Errorf("%w: %s", peerreview.ErrWriteFunction, functionName)
	}

	data, err := fn.Pack(inputs)
	if err != nil {
		return nil, err
	}

	out, err := p.chain.CallContract(ctx, ethereum.CallMsg{To: &p.cfg.Contract, Data: data}, nil)
	if err != nil {
		return nil, &peerreview.ChainError{Op: functionName, Err: err}
	}

	log.Debug().Str("function", functionName).Int("bytes", len(out)).Msg("read call returned")
	return fn.Unpack(out)
}
