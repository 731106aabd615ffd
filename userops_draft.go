package peerreview

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EntryPoint v0.6 user operation field names.
const (
	FieldSender               = "sender"
	FieldNonce                = "nonce"
	FieldInitCode             = "initCode"
	FieldCallData             = "callData"
	FieldCallGasLimit         = "callGasLimit"
	FieldVerificationGasLimit = "verificationGasLimit"
	FieldPreVerificationGas   = "preVerificationGas"
	FieldMaxFeePerGas         = "maxFeePerGas"
	FieldMaxPriorityFeePerGas = "maxPriorityFeePerGas"
	FieldPaymasterAndData     = "paymasterAndData"
	FieldSignature            = "signature"
)

// Draft is a user operation under construction, keyed by field name.
// Values are either concrete (big integers, integer kinds, json.Number,
// byte slices, addresses, hex strings, nested maps and slices) or Deferred.
type Draft map[string]any

// Deferred is a field value that is not materialized until the draft is
// resolved, e.g. a nonce read from the EntryPoint.
type Deferred func(ctx context.Context) (any, error)

// Once wraps fn so that it runs at most once; later resolutions return the
// first result. A draft is resolved once for sponsorship and again when the
// sponsor's fields are merged, and both must see the same nonce.
func Once(fn Deferred) Deferred {
	var (
		mu    sync.Mutex
		done  bool
		value any
		err   error
	)
	return func(ctx context.Context) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		if !done {
			value, err = fn(ctx)
			done = true
		}
		return value, err
	}
}

// Clone returns a shallow copy of the draft.
func (d Draft) Clone() Draft {
	c := make(Draft, len(d))
	for k, v := range d {
		c[k] = v
	}
	return c
}

// ZeroGas returns a copy of the draft whose call, verification and
// pre-verification gas fields are zero. The real values come from the
// paymaster; zeros only let the draft serialize before sponsorship.
func ZeroGas(d Draft) Draft {
	c := d.Clone()
	c[FieldCallGasLimit] = new(big.Int)
	c[FieldPreVerificationGas] = new(big.Int)
	c[FieldVerificationGasLimit] = new(big.Int)
	return c
}

// ResolveProperties returns v with every Deferred value, at any depth,
// replaced by its result.
func ResolveProperties(ctx context.Context, v any) (any, error) {
	return resolve(ctx, "", v)
}

func resolve(ctx context.Context, path string, v any) (any, error) {
	switch val := v.(type) {
	case Deferred:
		res, err := val(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", pathOrRoot(path), err)
		}
		// A deferred value may itself produce a structure with deferred parts.
		return resolve(ctx, path, res)
	case func(context.Context) (any, error):
		return resolve(ctx, path, Deferred(val))
	case Draft:
		out := make(Draft, len(val))
		for k, fv := range val {
			r, err := resolve(ctx, joinPath(path, k), fv)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, fv := range val {
			r, err := resolve(ctx, joinPath(path, k), fv)
			if err != nil {
				return nil, err
			}
			out[k] = r
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, ev := range val {
			r, err := resolve(ctx, indexPath(path, i), ev)
			if err != nil {
				return nil, err
			}
			out[i] = r
		}
		return out, nil
	default:
		return v, nil
	}
}

// Canonicalize resolves every deferred field of the draft and converts every
// value to canonical hex. The result holds only strings, booleans, nils and
// nested maps or slices of those, and canonicalizing it again is a no-op.
func Canonicalize(ctx context.Context, d Draft) (Draft, error) {
	resolved, err := ResolveProperties(ctx, d)
	if err != nil {
		return nil, err
	}

	hexed, err := DeepHexlify(resolved)
	if err != nil {
		return nil, err
	}

	return hexed.(Draft), nil
}

// UserOperation decodes a canonical draft. Every v0.6 field must be present
// as a hex string.
func (d Draft) UserOperation() (*UserOperation, error) {
	var op UserOperation

	sender, err := d.hexString(FieldSender)
	if err != nil {
		return nil, err
	}
	if !common.IsHexAddress(sender) {
		return nil, &EncodingError{Path: FieldSender, Value: sender, Err: fmt.Errorf("invalid address")}
	}
	op.Sender = common.HexToAddress(sender)

	quantities := []struct {
		field string
		dst   **big.Int
	}{
		{FieldNonce, &op.Nonce},
		{FieldCallGasLimit, &op.CallGasLimit},
		{FieldVerificationGasLimit, &op.VerificationGasLimit},
		{FieldPreVerificationGas, &op.PreVerificationGas},
		{FieldMaxFeePerGas, &op.MaxFeePerGas},
		{FieldMaxPriorityFeePerGas, &op.MaxPriorityFeePerGas},
	}
	for _, q := range quantities {
		s, err := d.hexString(q.field)
		if err != nil {
			return nil, err
		}
		if *q.dst, err = ToBigInt(s); err != nil {
			return nil, &EncodingError{Path: q.field, Value: s, Err: err}
		}
	}

	data := []struct {
		field string
		dst   *[]byte
	}{
		{FieldInitCode, &op.InitCode},
		{FieldCallData, &op.CallData},
		{FieldPaymasterAndData, &op.PaymasterAndData},
		{FieldSignature, &op.Signature},
	}
	for _, b := range data {
		s, err := d.hexString(b.field)
		if err != nil {
			return nil, err
		}
		if *b.dst, err = hexutil.Decode(s); err != nil {
			return nil, &EncodingError{Path: b.field, Value: s, Err: err}
		}
	}

	return &op, nil
}

func (d Draft) hexString(field string) (string, error) {
	v, ok := d[field]
	if !ok || v == nil {
		return "", fmt.Errorf("%w: %s", ErrMissingField, field)
	}

	if _, deferred := v.(Deferred); deferred {
		return "", fmt.Errorf("%w: %s", ErrUnresolvedField, field)
	}

	s, ok := v.(string)
	if !ok || !has0xPrefix(s) {
		return "", &EncodingError{Path: field, Value: v, Err: fmt.Errorf("value is not canonical hex")}
	}

	return s, nil
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func indexPath(path string, i int) string {
	return fmt.Sprintf("%s[%d]", path, i)
}

func pathOrRoot(path string) string {
	if path == "" {
		return "value"
	}
	return path
}
