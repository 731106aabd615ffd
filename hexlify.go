package peerreview

import (
	"errors"
	"math"
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/goccy/go-json"
)

var (
	errNotHex        = errors.New("string is not 0x prefixed hex")
	errNegative      = errors.New("quantity cannot be negative")
	errFractional    = errors.New("quantity must be an integer")
	errUnsupported   = errors.New("unsupported value type")
	errNilQuantity   = errors.New("quantity cannot be nil")
	errUnresolved    = errors.New("value is still deferred")
	maxSafeFloatUint = float64(1 << 53)
)

// DeepHexlify converts every numeric and byte-like value in v, at any depth,
// to its canonical hex string. Integers become minimal quantities ("0x0" for
// zero); byte slices, addresses and hashes become 0x data. Strings must
// already be hex and are kept as they are, so the conversion is idempotent.
// Booleans and nils pass through. Maps and slices are rebuilt, never mutated.
func DeepHexlify(v any) (any, error) {
	return hexlify("", v)
}

func hexlify(path string, v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return val, nil
	case string:
		if !has0xPrefix(val) || !isHexDigits(val[2:]) {
			return nil, &EncodingError{Path: pathOrRoot(path), Value: val, Err: errNotHex}
		}
		return val, nil
	case json.Number:
		return wrap(path, val, func() (string, error) { return fromDecimal(val.String()) })
	case *big.Int:
		if val == nil {
			return nil, &EncodingError{Path: pathOrRoot(path), Value: val, Err: errNilQuantity}
		}
		return wrap(path, val, func() (string, error) { return FromBigInt(val) })
	case *hexutil.Big:
		if val == nil {
			return nil, &EncodingError{Path: pathOrRoot(path), Value: val, Err: errNilQuantity}
		}
		return wrap(path, val, func() (string, error) { return FromBigInt(val.ToInt()) })
	case hexutil.Uint64:
		return hexutil.EncodeUint64(uint64(val)), nil
	case int:
		return signed(path, v, int64(val))
	case int8:
		return signed(path, v, int64(val))
	case int16:
		return signed(path, v, int64(val))
	case int32:
		return signed(path, v, int64(val))
	case int64:
		return signed(path, v, val)
	case uint:
		return hexutil.EncodeUint64(uint64(val)), nil
	case uint8:
		return hexutil.EncodeUint64(uint64(val)), nil
	case uint16:
		return hexutil.EncodeUint64(uint64(val)), nil
	case uint32:
		return hexutil.EncodeUint64(uint64(val)), nil
	case uint64:
		return hexutil.EncodeUint64(val), nil
	case float64:
		// Plain JSON decoding yields float64 for every number.
		if val < 0 {
			return nil, &EncodingError{Path: pathOrRoot(path), Value: val, Err: errNegative}
		}
		if val != math.Trunc(val) || val > maxSafeFloatUint {
			return nil, &EncodingError{Path: pathOrRoot(path), Value: val, Err: errFractional}
		}
		return hexutil.EncodeUint64(uint64(val)), nil
	case []byte:
		return hexutil.Encode(val), nil
	case hexutil.Bytes:
		return hexutil.Encode(val), nil
	case common.Address:
		return val.Hex(), nil
	case *common.Address:
		if val == nil {
			return nil, nil
		}
		return val.Hex(), nil
	case common.Hash:
		return val.Hex(), nil
	case Deferred:
		return nil, &EncodingError{Path: pathOrRoot(path), Value: val, Err: errUnresolved}
	case Draft:
		out := make(Draft, len(val))
		for k, fv := range val {
			h, err := hexlify(joinPath(path, k), fv)
			if err != nil {
				return nil, err
			}
			out[k] = h
		}
		return out, nil
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, fv := range val {
			h, err := hexlify(joinPath(path, k), fv)
			if err != nil {
				return nil, err
			}
			out[k] = h
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, ev := range val {
			h, err := hexlify(indexPath(path, i), ev)
			if err != nil {
				return nil, err
			}
			out[i] = h
		}
		return out, nil
	default:
		return nil, &EncodingError{Path: pathOrRoot(path), Value: val, Err: errUnsupported}
	}
}

func signed(path string, v any, i int64) (any, error) {
	if i < 0 {
		return nil, &EncodingError{Path: pathOrRoot(path), Value: v, Err: errNegative}
	}
	return "0x" + strconv.FormatUint(uint64(i), 16), nil
}

func wrap(path string, v any, encode func() (string, error)) (any, error) {
	s, err := encode()
	if err != nil {
		return nil, &EncodingError{Path: pathOrRoot(path), Value: v, Err: err}
	}
	return s, nil
}
