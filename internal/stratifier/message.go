// Package stratifier implements the pool orchestrator (spec component C10):
// JSON-RPC dispatch over the Session/Worker/User/UaRegistry/WorkBase tables,
// the instance lock discipline, and the watchdog tick.
package stratifier

import (
	"encoding/json"
	"fmt"
)

// Message is an inbound Stratum JSON-RPC request: line-delimited JSON with
// id, method and params.
type Message struct {
	ID     json.Number   `json:"id"`
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// Response is the standard {id, result, error} reply shape.
type Response struct {
	ID     json.Number `json:"id"`
	Result interface{} `json:"result"`
	Error  interface{} `json:"error"`
}

// Notification is a server-to-client message with no id.
type Notification struct {
	Method string        `json:"method"`
	Params []interface{} `json:"params"`
}

// ParseMessage parses one line-delimited JSON-RPC request.
func ParseMessage(line []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(line, &m); err != nil {
		return nil, fmt.Errorf("malformed rpc: %w", err)
	}
	if m.Method == "" {
		return nil, fmt.Errorf("malformed rpc: method field is required")
	}
	return &m, nil
}

// NewSubscribeResponse builds the mining.subscribe reply: a subscription
// list, the assigned extranonce1 hex, and the extranonce2 byte width.
func NewSubscribeResponse(id json.Number, subscriptionID, extranonce1Hex string, extranonce2Size int) *Response {
	return &Response{
		ID: id,
		Result: []interface{}{
			[]interface{}{
				[]interface{}{"mining.set_difficulty", subscriptionID},
				[]interface{}{"mining.notify", subscriptionID},
			},
			extranonce1Hex,
			extranonce2Size,
		},
	}
}

// NewAuthorizeResponse builds the mining.authorize reply.
func NewAuthorizeResponse(id json.Number, authorized bool) *Response {
	return &Response{ID: id, Result: authorized}
}

// NewSubmitResponse builds the mining.submit accept reply.
func NewSubmitResponse(id json.Number) *Response {
	return &Response{ID: id, Result: true}
}

// NewConfigureResponse echoes the subset of BIP-310 extensions this pool
// agrees to; unsupported extensions are reported false.
func NewConfigureResponse(id json.Number, agreed map[string]interface{}) *Response {
	return &Response{ID: id, Result: agreed}
}

// NewErrorResponse builds an error reply: {id, null, [code, message, null]}.
func NewErrorResponse(id json.Number, code int, message string) *Response {
	return &Response{
		ID:    id,
		Error: []interface{}{code, message, nil},
	}
}

// NewNotifyNotification builds a mining.notify push.
func NewNotifyNotification(jobID, prevHashHex, coinbase1Hex, coinbase2Hex string, merkleBranchHex []string, versionHex, nbitsHex, ntimeHex string, cleanJobs bool) *Notification {
	return &Notification{
		Method: "mining.notify",
		Params: []interface{}{
			jobID, prevHashHex, coinbase1Hex, coinbase2Hex, merkleBranchHex,
			versionHex, nbitsHex, ntimeHex, cleanJobs,
		},
	}
}

// NewDifficultyNotification builds a mining.set_difficulty push.
func NewDifficultyNotification(diff float64) *Notification {
	return &Notification{Method: "mining.set_difficulty", Params: []interface{}{diff}}
}

// Marshal renders any of Response/Notification as a JSON line.
func Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}
