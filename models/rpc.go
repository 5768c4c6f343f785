package models

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// JSONRPCVersion is injected into inbound calls that omit the jsonrpc tag
const JSONRPCVersion = "2.0"

// RPCCall is one normalized JSON-RPC request
type RPCCall struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      string        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// Batch is either a single call or an ordered sequence of calls
type Batch struct {
	Calls  []RPCCall
	Single bool
}

// MarshalJSON writes a single call as an object and a sequence as an array
func (b Batch) MarshalJSON() ([]byte, error) {
	if b.Single && len(b.Calls) == 1 {
		return json.Marshal(b.Calls[0])
	}
	calls := b.Calls
	if calls == nil {
		calls = []RPCCall{}
	}
	return json.Marshal(calls)
}

// RPCResult is the outcome of one call. Exactly one of Result and Error is emitted.
type RPCResult struct {
	ID     string
	Result interface{}
	Error  *RPCError
}

// IsError reports whether the result carries the error discriminant
func (r RPCResult) IsError() bool {
	return r.Error != nil
}

type resultWire struct {
	ID     string      `json:"id"`
	Result interface{} `json:"result"`
}

type errorWire struct {
	ID    string    `json:"id"`
	Error *RPCError `json:"error"`
}

func (r RPCResult) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(errorWire{ID: r.ID, Error: r.Error})
	}
	return json.Marshal(resultWire{ID: r.ID, Result: r.Result})
}

func (r *RPCResult) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID     string          `json:"id"`
		Result json.RawMessage `json:"result"`
		Error  *RPCError       `json:"error"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.ID = raw.ID
	r.Error = raw.Error
	r.Result = nil
	if raw.Error != nil {
		if raw.Error.Data == nil {
			raw.Error.Data = map[string]interface{}{}
		}
		raw.Error.Kind = KindForCode(raw.Error.Code)
		return nil
	}
	if len(raw.Result) > 0 {
		if err := json.Unmarshal(raw.Result, &r.Result); err != nil {
			return err
		}
	}
	return nil
}

// ResultSet mirrors the shape of the Batch it was produced from
type ResultSet struct {
	Results []RPCResult
	Single  bool
}

// Failed counts the entries carrying an error
func (s ResultSet) Failed() int {
	n := 0
	for _, r := range s.Results {
		if r.IsError() {
			n++
		}
	}
	return n
}

func (s ResultSet) MarshalJSON() ([]byte, error) {
	if s.Single && len(s.Results) == 1 {
		return json.Marshal(s.Results[0])
	}
	results := s.Results
	if results == nil {
		results = []RPCResult{}
	}
	return json.Marshal(results)
}

func (s *ResultSet) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty result set")
	}
	if trimmed[0] == '[' {
		s.Single = false
		return json.Unmarshal(trimmed, &s.Results)
	}
	var r RPCResult
	if err := json.Unmarshal(trimmed, &r); err != nil {
		return err
	}
	s.Single = true
	s.Results = []RPCResult{r}
	return nil
}
