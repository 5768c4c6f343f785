package models

import "encoding/json"

// Shim file exchange between the runner and a foreign-language worker
const (
	ShimProtocolVersion = "1.0.0"
	ShimVersionRange    = "^1"
	ShimRequestFile     = "service_req.json"
	ShimResponseFile    = "service_resp.json"
)

// Environment variables handed to the worker process
const (
	EnvShimRequest  = "STACKHUT_SHIM_REQUEST"
	EnvShimResponse = "STACKHUT_SHIM_RESPONSE"
	EnvShimVersion  = "STACKHUT_SHIM_VERSION"
	EnvTaskID       = "STACKHUT_TASK_ID"
)

// ShimRequest is written to ShimRequestFile before the worker is spawned
type ShimRequest struct {
	Version string        `json:"version"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// ShimError is the nested error form of a worker response
type ShimError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

// ShimResponse is read from ShimResponseFile after a zero exit
type ShimResponse struct {
	Version string          `json:"version,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *ShimError      `json:"-"`
	// HasResult distinguishes an explicit null result from a missing one
	HasResult bool `json:"-"`
}

// UnmarshalJSON accepts {"error":{"code","msg"}} and the older flat {"error":code,"msg":...}
func (r *ShimResponse) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = ShimResponse{}
	if v, ok := raw["version"]; ok {
		if err := json.Unmarshal(v, &r.Version); err != nil {
			return err
		}
	}
	if v, ok := raw["result"]; ok {
		r.Result = v
		r.HasResult = true
	}
	v, ok := raw["error"]
	if !ok || string(v) == "null" {
		return nil
	}
	var nested ShimError
	if err := json.Unmarshal(v, &nested); err == nil {
		r.Error = &nested
		return nil
	}
	var flat ShimError
	if err := json.Unmarshal(v, &flat.Code); err != nil {
		return err
	}
	if m, ok := raw["msg"]; ok {
		_ = json.Unmarshal(m, &flat.Msg)
	}
	r.Error = &flat
	return nil
}
