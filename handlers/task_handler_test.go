package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"stackhut-runner/config"
	"stackhut-runner/models"
	"stackhut-runner/services"
)

const echoWorker = `printf '{"version":"1.0.0","result":"pong"}' > "$STACKHUT_SHIM_RESPONSE"
`

func newTestApp(t *testing.T) (*fiber.App, string) {
	t.Helper()
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("/bin/sh not available")
	}
	baseDir := t.TempDir()
	entry := filepath.Join(baseDir, "worker.sh")
	if err := os.WriteFile(entry, []byte(echoWorker), 0755); err != nil {
		t.Fatalf("writing worker: %v", err)
	}

	cfg := config.Default()
	cfg.Shim.Interpreters = map[string]string{"python3": "/bin/sh"}
	deps := services.RunnerDeps{
		Config:     cfg,
		Descriptor: &models.ServiceDescriptor{Name: "echo", Stack: models.RuntimePython3, Entrypoint: entry},
	}
	logger := zap.NewNop()
	h := NewTaskHandler(deps, baseDir, services.NewDownloader(http.DefaultClient, logger), logger, zap.DebugLevel)

	app := fiber.New()
	api := app.Group("/api")
	api.Get("/tasks", h.ListRuns)
	api.Get("/tasks/:id", h.GetTask)
	api.Get("/tasks/:id/output", h.GetTaskOutput)
	api.Post("/tasks/:id/run", h.RunTask)
	return app, baseDir
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (int, []byte) {
	t.Helper()
	resp, err := app.Test(req, -1)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, body
}

func TestRunTaskFromBody(t *testing.T) {
	app, baseDir := newTestApp(t)

	req := httptest.NewRequest(http.MethodPost, "/api/tasks/job-1/run",
		strings.NewReader(`{"serviceName":"echo","req":{"id":"1","method":"ping"}}`))
	req.Header.Set("Content-Type", "application/json")
	status, body := doRequest(t, app, req)
	if status != http.StatusOK {
		t.Fatalf("status = %d body = %s", status, body)
	}

	var resp RunTaskResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.ExitCode != 0 || resp.State != models.StateDone {
		t.Fatalf("response = %s", body)
	}
	if string(resp.Output) != `{"id":"1","result":"pong"}` {
		t.Fatalf("output = %s", resp.Output)
	}
	if _, err := os.Stat(filepath.Join(baseDir, "tasks", "job-1", models.LogKey)); err != nil {
		t.Fatalf("log not written: %v", err)
	}

	status, body = doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/tasks/job-1/output", nil))
	if status != http.StatusOK || string(body) != `{"id":"1","result":"pong"}` {
		t.Fatalf("GET output = %d %s", status, body)
	}
}

func TestRunTaskFromURL(t *testing.T) {
	app, _ := newTestApp(t)
	src := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"serviceName":"echo","req":[{"id":"a","method":"ping"}]}`))
	}))
	defer src.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/tasks/job-2/run?input_url="+src.URL+"/payload.json", nil)
	status, body := doRequest(t, app, req)
	if status != http.StatusOK {
		t.Fatalf("status = %d body = %s", status, body)
	}
	var resp RunTaskResponse
	_ = json.Unmarshal(body, &resp)
	if string(resp.Output) != `[{"id":"a","result":"pong"}]` {
		t.Fatalf("output = %s", resp.Output)
	}
}

func TestRunTaskValidation(t *testing.T) {
	app, _ := newTestApp(t)

	status, _ := doRequest(t, app, httptest.NewRequest(http.MethodPost, "/api/tasks/bad.id/run", strings.NewReader("{}")))
	if status != http.StatusBadRequest {
		t.Errorf("invalid id status = %d", status)
	}
	status, _ = doRequest(t, app, httptest.NewRequest(http.MethodPost, "/api/tasks/job-3/run", nil))
	if status != http.StatusBadRequest {
		t.Errorf("empty body status = %d", status)
	}
}

func TestRunTaskParseFailure(t *testing.T) {
	app, _ := newTestApp(t)
	status, body := doRequest(t, app, httptest.NewRequest(http.MethodPost, "/api/tasks/job-4/run", strings.NewReader(`not json`)))
	if status != http.StatusOK {
		t.Fatalf("status = %d", status)
	}
	var resp RunTaskResponse
	_ = json.Unmarshal(body, &resp)
	if resp.ExitCode != 1 || resp.State != models.StateFailed {
		t.Fatalf("response = %s", body)
	}
}

func TestGetTaskWithoutBackends(t *testing.T) {
	app, _ := newTestApp(t)
	status, _ := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/tasks/unknown", nil))
	if status != http.StatusNotFound {
		t.Errorf("GET task status = %d", status)
	}
	status, body := doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/tasks", nil))
	if status != http.StatusOK || string(body) != "[]" {
		t.Errorf("GET tasks = %d %s", status, body)
	}
	status, _ = doRequest(t, app, httptest.NewRequest(http.MethodGet, "/api/tasks/unknown/output", nil))
	if status != http.StatusNotFound {
		t.Errorf("GET output status = %d", status)
	}
}
