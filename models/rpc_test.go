package models

import (
	"encoding/json"
	"testing"
)

func TestRPCResultMarshalSuccess(t *testing.T) {
	data, err := json.Marshal(RPCResult{ID: "abc", Result: 3})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got, want := string(data), `{"id":"abc","result":3}`; got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestRPCResultMarshalNullResult(t *testing.T) {
	data, err := json.Marshal(RPCResult{ID: "x"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if got, want := string(data), `{"id":"x","result":null}`; got != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestRPCResultMarshalError(t *testing.T) {
	data, err := json.Marshal(RPCResult{ID: "e", Error: NewNonZeroExitError(2, "boom")})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := raw["result"]; ok {
		t.Fatalf("error result must not carry a result key: %s", data)
	}
	var e struct {
		Code    int                    `json:"code"`
		Message string                 `json:"message"`
		Data    map[string]interface{} `json:"data"`
	}
	if err := json.Unmarshal(raw["error"], &e); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if e.Code != CodeNonZeroExit {
		t.Fatalf("code = %d", e.Code)
	}
	if e.Data["exitcode"] != float64(2) || e.Data["stderr"] != "boom" {
		t.Fatalf("data = %v", e.Data)
	}
}

func TestResultSetShapeFollowsBatch(t *testing.T) {
	single := ResultSet{Single: true, Results: []RPCResult{{ID: "1", Result: "a"}}}
	data, _ := json.Marshal(single)
	if data[0] != '{' {
		t.Fatalf("single result set should be an object: %s", data)
	}

	multi := ResultSet{Results: []RPCResult{{ID: "1", Result: "a"}}}
	data, _ = json.Marshal(multi)
	if data[0] != '[' {
		t.Fatalf("sequence of one should stay an array: %s", data)
	}

	empty := ResultSet{}
	data, _ = json.Marshal(empty)
	if string(data) != "[]" {
		t.Fatalf("empty result set = %s", data)
	}
}

func TestResultSetRoundTrip(t *testing.T) {
	in := ResultSet{Results: []RPCResult{
		{ID: "1", Result: float64(3)},
		{ID: "2", Error: NewMethodNotFoundError("svc.missing")},
	}}
	data, err := json.Marshal(in)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out ResultSet
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Single || len(out.Results) != 2 {
		t.Fatalf("unexpected shape: %+v", out)
	}
	if out.Results[0].Result != float64(3) {
		t.Fatalf("result = %v", out.Results[0].Result)
	}
	if out.Results[1].Error == nil || out.Results[1].Error.Kind != KindMethodNotFound {
		t.Fatalf("error = %+v", out.Results[1].Error)
	}
	if out.Failed() != 1 {
		t.Fatalf("Failed() = %d", out.Failed())
	}
}

func TestBatchMarshal(t *testing.T) {
	b := Batch{Single: true, Calls: []RPCCall{{JSONRPC: JSONRPCVersion, ID: "1", Method: "svc.add", Params: []interface{}{}}}}
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"jsonrpc":"2.0","id":"1","method":"svc.add","params":[]}`
	if string(data) != want {
		t.Fatalf("got %s want %s", data, want)
	}
}
