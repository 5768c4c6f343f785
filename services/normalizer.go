package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"stackhut-runner/models"
)

// Normalizer turns a raw input blob into a well-formed Batch
type Normalizer struct {
	newID func() string
}

func NewNormalizer() *Normalizer {
	return &Normalizer{newID: uuid.NewString}
}

// NewNormalizerWithIDs uses gen for calls that arrive without an id
func NewNormalizerWithIDs(gen func() string) *Normalizer {
	return &Normalizer{newID: gen}
}

type inputEnvelope struct {
	ServiceName *string         `json:"serviceName"`
	Req         json.RawMessage `json:"req"`
}

type inboundCall struct {
	JSONRPC *string         `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  *string         `json:"method"`
	Params  []interface{}   `json:"params"`
}

// ServiceName extracts the default service name without normalizing the calls
func (n *Normalizer) ServiceName(raw []byte) string {
	var env inputEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || env.ServiceName == nil {
		return ""
	}
	return *env.ServiceName
}

// Normalize parses raw and fills in jsonrpc, id and the interface qualifier.
// Any failure is a ParseError and no partial batch is returned.
func (n *Normalizer) Normalize(raw []byte) (*models.Batch, error) {
	var env inputEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, models.NewParseError(map[string]interface{}{"error": err.Error()}).WithCause(err)
	}
	if env.ServiceName == nil || *env.ServiceName == "" {
		return nil, models.NewParseError(map[string]interface{}{"error": "missing serviceName"})
	}
	req := bytes.TrimSpace(env.Req)
	if len(req) == 0 || bytes.Equal(req, []byte("null")) {
		return nil, models.NewParseError(map[string]interface{}{"error": "missing req"})
	}

	batch := &models.Batch{}
	var records []json.RawMessage
	if req[0] == '[' {
		if err := json.Unmarshal(req, &records); err != nil {
			return nil, models.NewParseError(map[string]interface{}{"error": err.Error()}).WithCause(err)
		}
	} else {
		batch.Single = true
		records = []json.RawMessage{req}
	}

	seen := make(map[string]bool, len(records))
	batch.Calls = make([]models.RPCCall, 0, len(records))
	for i, rec := range records {
		call, err := n.normalizeCall(rec, *env.ServiceName, seen)
		if err != nil {
			return nil, models.NewParseError(map[string]interface{}{"error": err.Error(), "index": i}).WithCause(err)
		}
		batch.Calls = append(batch.Calls, call)
	}
	return batch, nil
}

func (n *Normalizer) normalizeCall(rec json.RawMessage, serviceName string, seen map[string]bool) (models.RPCCall, error) {
	var in inboundCall
	if err := json.Unmarshal(rec, &in); err != nil {
		return models.RPCCall{}, err
	}
	if in.Method == nil || *in.Method == "" {
		return models.RPCCall{}, fmt.Errorf("call is missing method")
	}

	call := models.RPCCall{
		JSONRPC: models.JSONRPCVersion,
		Method:  *in.Method,
		Params:  in.Params,
	}
	if in.JSONRPC != nil {
		call.JSONRPC = *in.JSONRPC
	}
	if call.Params == nil {
		call.Params = []interface{}{}
	}

	id, err := decodeID(in.ID)
	if err != nil {
		return models.RPCCall{}, err
	}
	if id == "" {
		id = n.freshID(seen)
	}
	seen[id] = true
	call.ID = id

	if !strings.Contains(call.Method, ".") {
		call.Method = serviceName + "." + call.Method
	}
	return call, nil
}

// freshID never hands out an id already used in the batch
func (n *Normalizer) freshID(seen map[string]bool) string {
	for {
		id := n.newID()
		if !seen[id] {
			return id
		}
	}
}

// decodeID accepts string and numeric ids; null or absent yields ""
func decodeID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", err
		}
		return s, nil
	default:
		var num json.Number
		if err := json.Unmarshal(raw, &num); err != nil {
			return "", fmt.Errorf("id must be a string or number")
		}
		return num.String(), nil
	}
}
