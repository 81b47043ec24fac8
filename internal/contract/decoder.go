package contract

import (
	"encoding/hex"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"web3client/internal/node"
)

type DecodedMethod struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

type DecodedLog struct {
	Event   string         `json:"event"`
	Address string         `json:"address"`
	Args    map[string]any `json:"args"`
}

// Decoder resolves calldata and logs against a set of ABIs. Values are
// normalized to JSON friendly strings.
type Decoder struct {
	abis []abi.ABI
}

func NewDecoder(abis ...abi.ABI) *Decoder {
	return &Decoder{abis: abis}
}

// DecodeInput returns nil when no ABI knows the selector.
func (d *Decoder) DecodeInput(data []byte) (*DecodedMethod, error) {
	if d == nil || len(data) < 4 {
		return nil, nil
	}
	for _, parsed := range d.abis {
		method, err := parsed.MethodById(data[:4])
		if err != nil {
			continue
		}
		args := map[string]any{}
		if err := method.Inputs.UnpackIntoMap(args, data[4:]); err != nil {
			return nil, err
		}
		return &DecodedMethod{Name: method.Name, Args: normalizeMap(args)}, nil
	}
	return nil, nil
}

// DecodeLog returns nil when no ABI knows the event.
func (d *Decoder) DecodeLog(l node.Log) (*DecodedLog, error) {
	if d == nil || len(l.Topics) == 0 {
		return nil, nil
	}
	for _, parsed := range d.abis {
		event, err := parsed.EventByID(l.Topics[0])
		if err != nil {
			continue
		}
		args := map[string]any{}
		if err := event.Inputs.UnpackIntoMap(args, l.Data); err != nil {
			return nil, err
		}
		var indexed abi.Arguments
		for _, in := range event.Inputs {
			if in.Indexed {
				indexed = append(indexed, in)
			}
		}
		if err := abi.ParseTopicsIntoMap(args, indexed, l.Topics[1:]); err != nil {
			return nil, err
		}
		return &DecodedLog{Event: event.Name, Address: l.Address.Hex(), Args: normalizeMap(args)}, nil
	}
	return nil, nil
}

func normalizeMap(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v any) any {
	switch t := v.(type) {
	case common.Address:
		return t.Hex()
	case *common.Address:
		if t == nil {
			return ""
		}
		return t.Hex()
	case common.Hash:
		return t.Hex()
	case *big.Int:
		if t == nil {
			return "0"
		}
		return t.String()
	case []byte:
		return "0x" + hex.EncodeToString(t)
	case [32]byte:
		return "0x" + hex.EncodeToString(t[:])
	case []common.Address:
		out := make([]string, 0, len(t))
		for _, a := range t {
			out = append(out, a.Hex())
		}
		return out
	case []*big.Int:
		out := make([]string, 0, len(t))
		for _, n := range t {
			if n == nil {
				out = append(out, "0")
				continue
			}
			out = append(out, n.String())
		}
		return out
	case []any:
		out := make([]any, 0, len(t))
		for _, v := range t {
			out = append(out, normalizeValue(v))
		}
		return out
	default:
		return t
	}
}
