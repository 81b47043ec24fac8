package subscribe

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// SubscriptionError means the node did not accept the subscribe request.
// Only the current connection attempt fails; Run reconnects.
type SubscriptionError struct {
	Kind Kind
	Err  error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscribe to %s: %v", e.Kind, e.Err)
}

func (e *SubscriptionError) Unwrap() error {
	return e.Err
}

// LogFilter narrows a logs subscription.
type LogFilter struct {
	Addresses []common.Address
	Topics    [][]common.Hash
}

type logFilterParam struct {
	Address []common.Address `json:"address,omitempty"`
	Topics  [][]common.Hash  `json:"topics,omitempty"`
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

const subscribeID = 1

func subscribeRequest(kind Kind, filter LogFilter) request {
	params := []any{kind}
	if kind == Logs {
		params = append(params, logFilterParam{Address: filter.Addresses, Topics: filter.Topics})
	}
	return request{JSONRPC: "2.0", ID: subscribeID, Method: "eth_subscribe", Params: params}
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type ack struct {
	ID     json.RawMessage `json:"id"`
	Result *string         `json:"result"`
	Error  *rpcError       `json:"error"`
}

func parseAck(kind Kind, raw []byte) (string, error) {
	var a ack
	if err := json.Unmarshal(raw, &a); err != nil {
		return "", &SubscriptionError{Kind: kind, Err: fmt.Errorf("malformed response: %w", err)}
	}
	if a.Error != nil {
		return "", &SubscriptionError{Kind: kind, Err: fmt.Errorf("node error %d: %s", a.Error.Code, a.Error.Message)}
	}
	if a.Result == nil || *a.Result == "" {
		return "", &SubscriptionError{Kind: kind, Err: errors.New("response has no subscription id")}
	}
	return *a.Result, nil
}

type notification struct {
	Method string `json:"method"`
	Params *struct {
		Subscription string          `json:"subscription"`
		Result       json.RawMessage `json:"result"`
	} `json:"params"`
}

// parseNotification returns the subscription id and payload of an
// eth_subscription frame.
func parseNotification(raw []byte) (string, json.RawMessage, error) {
	var n notification
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", nil, fmt.Errorf("malformed notification: %w", err)
	}
	if n.Params == nil || n.Params.Subscription == "" {
		return "", nil, errors.New("notification has no subscription field")
	}
	if n.Params.Result == nil {
		return "", nil, errors.New("notification has no result field")
	}
	return n.Params.Subscription, n.Params.Result, nil
}
