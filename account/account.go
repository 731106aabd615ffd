// Package account derives the smart account that signs and sends user
// operations on behalf of an externally owned key.
package account

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/blndgs/peerreview"
)

// LightAccount v1.1.0 deployment for the v0.6 EntryPoint, shared by every
// supported chain.
var (
	DefaultFactory        = common.HexToAddress("0x00004EC70002a32400f8ae005A26081065620D20")
	DefaultImplementation = common.HexToAddress("0xae8c656ad28F2B59a196AB61815C16A0AE1c3cba")
)

// dummySignature has the length and shape of a real signature so gas can be
// estimated before the operation is signed.
var dummySignature = hexutil.MustDecode("0xfffffffffffffffffffffffffffffff0000000000000000000000000000000007aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa1c")

const accountABIJSON = `[
	{"type":"function","name":"execute","stateMutability":"nonpayable","inputs":[{"name":"dest","type":"address"},{"name":"value","type":"uint256"},{"name":"func","type":"bytes"}],"outputs":[]},
	{"type":"function","name":"createAccount","stateMutability":"nonpayable","inputs":[{"name":"owner","type":"address"},{"name":"salt","type":"uint256"}],"outputs":[{"name":"ret","type":"address"}]},
	{"type":"function","name":"initialize","stateMutability":"nonpayable","inputs":[{"name":"anOwner","type":"address"}],"outputs":[]}
]`

const entryPointABIJSON = `[
	{"type":"function","name":"getSenderAddress","stateMutability":"nonpayable","inputs":[{"name":"initCode","type":"bytes"}],"outputs":[]},
	{"type":"error","name":"SenderAddressResult","inputs":[{"name":"sender","type":"address"}]}
]`

var (
	accountABI    = mustParseABI(accountABIJSON)
	entryPointABI = mustParseABI(entryPointABIJSON)

	// constructor arguments of ERC1967Proxy(address implementation, bytes data)
	proxyArgs = abi.Arguments{
		{Name: "implementation", Type: mustNewType("address")},
		{Name: "data", Type: mustNewType("bytes")},
	}
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

func mustNewType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}

// Identity is a signing key bound to the chain it operates on.
type Identity struct {
	key     *ecdsa.PrivateKey
	Owner   common.Address
	ChainID *big.Int
	RPCURL  string
}

// NewIdentity parses a hex private key, with or without 0x prefix, and binds
// it to a chain. It fails with a ConfigurationError before any network
// access when the key is malformed or the chain settings are missing.
func NewIdentity(privateKeyHex string, chainID *big.Int, rpcURL string) (*Identity, error) {
	keyHex := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"), "0X")
	if keyHex == "" {
		return nil, &peerreview.ConfigurationError{Field: "private_key", Err: errors.New("missing")}
	}

	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, &peerreview.ConfigurationError{Field: "private_key", Err: err}
	}

	if chainID == nil || chainID.Sign() <= 0 {
		return nil, &peerreview.ConfigurationError{Field: "chain_id", Err: errors.New("must be positive")}
	}

	if strings.TrimSpace(rpcURL) == "" {
		return nil, &peerreview.ConfigurationError{Field: "rpc_url", Err: errors.New("missing")}
	}

	return &Identity{
		key:     key,
		Owner:   crypto.PubkeyToAddress(key.PublicKey),
		ChainID: new(big.Int).Set(chainID),
		RPCURL:  rpcURL,
	}, nil
}

// Caller runs read-only contract calls against a node.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Resolver derives counterfactual smart account addresses.
//
// With ProxyCreationCode set the address is computed offline, as CREATE2 over
// the ERC1967Proxy the factory deploys. Without it the EntryPoint is asked
// through getSenderAddress.
type Resolver struct {
	Factory        common.Address
	Implementation common.Address
	Salt           *big.Int
	EntryPoint     common.Address

	// ProxyCreationCode is the creation bytecode of the ERC1967Proxy the
	// factory deploys, without constructor arguments.
	ProxyCreationCode []byte
}

// NewResolver returns a Resolver for the default light account deployment.
func NewResolver(salt *big.Int) *Resolver {
	return &Resolver{
		Factory:        DefaultFactory,
		Implementation: DefaultImplementation,
		Salt:           salt,
		EntryPoint:     peerreview.EntryPointV06,
	}
}

// SmartAccount is the contract account owned by an Identity.
type SmartAccount struct {
	Address common.Address
	Factory common.Address
	Salt    *big.Int

	identity *Identity
}

// Resolve returns the account the factory deploys for id. The result depends
// only on the key, factory, implementation and salt. caller may be nil when
// ProxyCreationCode is set.
func (r *Resolver) Resolve(ctx context.Context, id *Identity, caller Caller) (*SmartAccount, error) {
	if id == nil {
		return nil, &peerreview.ConfigurationError{Field: "private_key", Err: errors.New("missing identity")}
	}
	if r.Factory == (common.Address{}) {
		return nil, &peerreview.ConfigurationError{Field: "account_factory", Err: errors.New("missing")}
	}

	salt := r.Salt
	if salt == nil {
		salt = new(big.Int)
	}

	acct := &SmartAccount{
		Factory:  r.Factory,
		Salt:     new(big.Int).Set(salt),
		identity: id,
	}

	if len(r.ProxyCreationCode) > 0 {
		if r.Implementation == (common.Address{}) {
			return nil, &peerreview.ConfigurationError{Field: "account_implementation", Err: errors.New("missing")}
		}
		initCode, err := r.ProxyInitCode(id.Owner)
		if err != nil {
			return nil, err
		}
		acct.Address = crypto.CreateAddress2(r.Factory, common.BigToHash(salt), crypto.Keccak256(initCode))
		return acct, nil
	}

	if caller == nil {
		return nil, &peerreview.ConfigurationError{Field: "account_proxy_code", Err: errors.New("required to resolve the account without a node")}
	}

	initCode, err := acct.InitCode()
	if err != nil {
		return nil, err
	}

	entryPoint := r.EntryPoint
	if entryPoint == (common.Address{}) {
		entryPoint = peerreview.EntryPointV06
	}

	addr, err := SenderAddress(ctx, caller, entryPoint, initCode)
	if err != nil {
		return nil, err
	}
	acct.Address = addr
	return acct, nil
}

// ProxyInitCode returns the CREATE2 init code of the account proxy for owner:
// the proxy creation code followed by the ABI encoded implementation and
// initialize(owner) call.
func (r *Resolver) ProxyInitCode(owner common.Address) ([]byte, error) {
	initialize, err := accountABI.Pack("initialize", owner)
	if err != nil {
		return nil, fmt.Errorf("failed to pack initialize: %w", err)
	}
	args, err := proxyArgs.Pack(r.Implementation, initialize)
	if err != nil {
		return nil, fmt.Errorf("failed to pack proxy constructor: %w", err)
	}

	code := make([]byte, 0, len(r.ProxyCreationCode)+len(args))
	code = append(code, r.ProxyCreationCode...)
	return append(code, args...), nil
}

// SenderAddress asks the EntryPoint which account initCode deploys.
// getSenderAddress always reverts; the address is carried by the
// SenderAddressResult revert data.
func SenderAddress(ctx context.Context, caller Caller, entryPoint common.Address, initCode []byte) (common.Address, error) {
	data, err := entryPointABI.Pack("getSenderAddress", initCode)
	if err != nil {
		return common.Address{}, fmt.Errorf("failed to pack getSenderAddress: %w", err)
	}

	_, err = caller.CallContract(ctx, ethereum.CallMsg{To: &entryPoint, Data: data}, nil)
	if err == nil {
		return common.Address{}, &peerreview.ChainError{Op: "getSenderAddress", Err: errors.New("call did not revert")}
	}

	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return common.Address{}, &peerreview.ChainError{Op: "getSenderAddress", Err: err}
	}

	revert, err := revertData(dataErr.ErrorData())
	if err != nil {
		return common.Address{}, &peerreview.ChainError{Op: "getSenderAddress", Err: err}
	}

	result := entryPointABI.Errors["SenderAddressResult"]
	values, err := result.Unpack(revert)
	if err != nil {
		return common.Address{}, &peerreview.ChainError{Op: "getSenderAddress", Err: err}
	}

	fields, ok := values.([]interface{})
	if !ok || len(fields) != 1 {
		return common.Address{}, &peerreview.ChainError{Op: "getSenderAddress", Err: fmt.Errorf("unexpected revert values %v", values)}
	}
	sender, ok := fields[0].(common.Address)
	if !ok {
		return common.Address{}, &peerreview.ChainError{Op: "getSenderAddress", Err: fmt.Errorf("unexpected sender %T", fields[0])}
	}
	return sender, nil
}

func revertData(v interface{}) ([]byte, error) {
	switch data := v.(type) {
	case string:
		return hexutil.Decode(data)
	case []byte:
		return data, nil
	default:
		return nil, fmt.Errorf("unexpected revert data %T", v)
	}
}

// Owner returns the address of the key that controls the account.
func (a *SmartAccount) Owner() common.Address {
	return a.identity.Owner
}

// InitCode returns the factory address followed by the createAccount call
// that deploys the account.
func (a *SmartAccount) InitCode() ([]byte, error) {
	data, err := accountABI.Pack("createAccount", a.identity.Owner, a.Salt)
	if err != nil {
		return nil, fmt.Errorf("failed to pack createAccount: %w", err)
	}
	return append(a.Factory.Bytes(), data...), nil
}

// EncodeExecute returns the account calldata that makes the account call
// target with value and data.
func (a *SmartAccount) EncodeExecute(target common.Address, value *big.Int, data []byte) ([]byte, error) {
	if value == nil {
		value = new(big.Int)
	}
	if data == nil {
		data = []byte{}
	}

	callData, err := accountABI.Pack("execute", target, value, data)
	if err != nil {
		return nil, fmt.Errorf("failed to pack execute: %w", err)
	}
	return callData, nil
}

// DummySignature returns a placeholder signature to serialize an operation
// before it is signed.
func (a *SmartAccount) DummySignature() []byte {
	return common.CopyBytes(dummySignature)
}

// SignUserOperation signs the user operation hash of op as an EIP-191
// personal message, the way the light account validates it. The recovery id
// is returned as 27 or 28.
func (a *SmartAccount) SignUserOperation(op *peerreview.UserOperation, entryPoint common.Address) ([]byte, error) {
	hash := op.GetUserOpHash(entryPoint, a.identity.ChainID)

	sig, err := crypto.Sign(accounts.TextHash(hash.Bytes()), a.identity.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign user operation: %w", err)
	}
	sig[crypto.RecoveryIDOffset] += 27

	return sig, nil
}

// RecoverSigner returns the address that produced sig over the user
// operation hash of op.
func RecoverSigner(op *peerreview.UserOperation, entryPoint common.Address, chainID *big.Int, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("invalid signature length %d", len(sig))
	}

	normalized := common.CopyBytes(sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}

	hash := op.GetUserOpHash(entryPoint, chainID)
	pub, err := crypto.SigToPub(accounts.TextHash(hash.Bytes()), normalized)
	if err != nil {
		return common.Address{}, err
	}
	return crypto.PubkeyToAddress(*pub), nil
}
