package anchor

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

// EncodeCall builds contract call data from a function signature like
// "anchorRoot(bytes32,uint256)" and its arguments: the 4-byte keccak
// selector followed by each argument as a 32-byte word. Only static
// argument types are supported (address, uint256, bytes32, bool), which
// covers the anchoring and custodial call surface.
func EncodeCall(signature string, args ...interface{}) ([]byte, error) {
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write([]byte(signature))
	selector := hasher.Sum(nil)[:4]

	data := make([]byte, 0, 4+32*len(args))
	data = append(data, selector...)

	for i, arg := range args {
		word, err := encodeWord(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d of %s: %w", i, signature, err)
		}
		data = append(data, word[:]...)
	}

	return data, nil
}

func encodeWord(arg interface{}) ([32]byte, error) {
	var word [32]byte

	switch v := arg.(type) {
	case *big.Int:
		if v.Sign() < 0 {
			return word, fmt.Errorf("negative integer %s cannot encode as uint256", v)
		}
		if v.BitLen() > 256 {
			return word, fmt.Errorf("integer %s overflows uint256", v)
		}
		v.FillBytes(word[:])
		return word, nil
	case uint64:
		new(big.Int).SetUint64(v).FillBytes(word[:])
		return word, nil
	case int:
		if v < 0 {
			return word, fmt.Errorf("negative integer %d cannot encode as uint256", v)
		}
		big.NewInt(int64(v)).FillBytes(word[:])
		return word, nil
	case bool:
		if v {
			word[31] = 1
		}
		return word, nil
	case [32]byte:
		return v, nil
	case string:
		return encodeHexWord(v)
	default:
		return word, fmt.Errorf("unsupported argument type %T", arg)
	}
}

func encodeHexWord(v string) ([32]byte, error) {
	var word [32]byte

	if !strings.HasPrefix(v, "0x") {
		return word, fmt.Errorf("string argument %q must be 0x-prefixed hex", v)
	}

	raw, err := hex.DecodeString(v[2:])
	if err != nil {
		return word, fmt.Errorf("invalid hex argument %q: %w", v, err)
	}

	switch len(raw) {
	case 20: // address, left-padded
		copy(word[12:], raw)
		return word, nil
	case 32: // bytes32 / hash
		copy(word[:], raw)
		return word, nil
	default:
		return word, fmt.Errorf("hex argument %q must be 20 or 32 bytes, got %d", v, len(raw))
	}
}
