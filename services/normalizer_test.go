package services

import (
	"encoding/json"
	"fmt"
	"testing"

	"stackhut-runner/models"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("gen-%d", n)
	}
}

func TestNormalizeSingleCall(t *testing.T) {
	n := NewNormalizerWithIDs(sequentialIDs())
	batch, err := n.Normalize([]byte(`{"serviceName":"calc","req":{"method":"add","params":[1,2]}}`))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !batch.Single || len(batch.Calls) != 1 {
		t.Fatalf("unexpected batch shape: %+v", batch)
	}
	call := batch.Calls[0]
	if call.Method != "calc.add" {
		t.Errorf("method = %q", call.Method)
	}
	if call.JSONRPC != "2.0" {
		t.Errorf("jsonrpc = %q", call.JSONRPC)
	}
	if call.ID != "gen-1" {
		t.Errorf("id = %q", call.ID)
	}
	if len(call.Params) != 2 {
		t.Errorf("params = %v", call.Params)
	}
}

func TestNormalizeKeepsQualifiedMethodsAndIDs(t *testing.T) {
	n := NewNormalizerWithIDs(sequentialIDs())
	raw := `{"serviceName":"calc","req":[
		{"jsonrpc":"2.0","id":"a","method":"other.mul","params":[2,3]},
		{"id":7,"method":"add"}
	]}`
	batch, err := n.Normalize([]byte(raw))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if batch.Single {
		t.Fatalf("sequence input must stay a sequence")
	}
	if got := batch.Calls[0]; got.ID != "a" || got.Method != "other.mul" {
		t.Errorf("first call = %+v", got)
	}
	if got := batch.Calls[1]; got.ID != "7" || got.Method != "calc.add" {
		t.Errorf("second call = %+v", got)
	}
	if batch.Calls[1].Params == nil {
		t.Errorf("absent params must become an empty list")
	}
}

func TestNormalizeIsIdempotent(t *testing.T) {
	n := NewNormalizerWithIDs(sequentialIDs())
	raw := []byte(`{"serviceName":"calc","req":[{"method":"add","params":[1]},{"method":"sub"}]}`)
	first, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}

	reqs, _ := json.Marshal(first)
	again, err := n.Normalize([]byte(fmt.Sprintf(`{"serviceName":"calc","req":%s}`, reqs)))
	if err != nil {
		t.Fatalf("second Normalize: %v", err)
	}
	for i := range first.Calls {
		a, b := first.Calls[i], again.Calls[i]
		if a.ID != b.ID || a.Method != b.Method || a.JSONRPC != b.JSONRPC || len(a.Params) != len(b.Params) {
			t.Errorf("call %d changed: %+v -> %+v", i, a, b)
		}
	}
}

func TestNormalizeGeneratesUniqueIDs(t *testing.T) {
	// the generator repeats itself; explicit ids already claim gen-1
	ids := []string{"gen-1", "gen-1", "gen-2", "gen-2", "gen-3"}
	i := 0
	n := NewNormalizerWithIDs(func() string {
		id := ids[i]
		i++
		return id
	})
	batch, err := n.Normalize([]byte(`{"serviceName":"s","req":[{"id":"gen-1","method":"a"},{"method":"b"},{"method":"c"}]}`))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	seen := map[string]bool{}
	for _, c := range batch.Calls {
		if seen[c.ID] {
			t.Fatalf("duplicate id %q in %+v", c.ID, batch.Calls)
		}
		seen[c.ID] = true
	}
}

func TestNormalizeDefaultGeneratorIsUnique(t *testing.T) {
	n := NewNormalizer()
	batch, err := n.Normalize([]byte(`{"serviceName":"s","req":[{"method":"a"},{"method":"a"},{"method":"a"}]}`))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if batch.Calls[0].ID == batch.Calls[1].ID || batch.Calls[1].ID == batch.Calls[2].ID {
		t.Fatalf("ids not unique: %+v", batch.Calls)
	}
}

func TestNormalizePreservesOrder(t *testing.T) {
	n := NewNormalizer()
	batch, err := n.Normalize([]byte(`{"serviceName":"s","req":[{"method":"one"},{"method":"two"},{"method":"three"}]}`))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	want := []string{"s.one", "s.two", "s.three"}
	for i, w := range want {
		if batch.Calls[i].Method != w {
			t.Errorf("call %d = %q, want %q", i, batch.Calls[i].Method, w)
		}
	}
}

func TestNormalizeParseErrors(t *testing.T) {
	tests := map[string]string{
		"invalid json":        `{"serviceName":`,
		"missing serviceName": `{"req":{"method":"add"}}`,
		"empty serviceName":   `{"serviceName":"","req":{"method":"add"}}`,
		"missing req":         `{"serviceName":"calc"}`,
		"null req":            `{"serviceName":"calc","req":null}`,
		"missing method":      `{"serviceName":"calc","req":{"params":[]}}`,
		"bad record":          `{"serviceName":"calc","req":[{"method":"a"},5]}`,
		"bad id":              `{"serviceName":"calc","req":{"id":{"x":1},"method":"a"}}`,
	}
	n := NewNormalizer()
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			batch, err := n.Normalize([]byte(raw))
			if err == nil {
				t.Fatalf("expected error, got %+v", batch)
			}
			if batch != nil {
				t.Fatalf("no partial batch on error")
			}
			if !models.IsKind(err, models.KindParse) {
				t.Fatalf("expected parse error, got %v", err)
			}
		})
	}
}

func TestServiceName(t *testing.T) {
	n := NewNormalizer()
	if got := n.ServiceName([]byte(`{"serviceName":"calc","req":null}`)); got != "calc" {
		t.Errorf("ServiceName = %q", got)
	}
	if got := n.ServiceName([]byte(`nope`)); got != "" {
		t.Errorf("ServiceName(invalid) = %q", got)
	}
}
