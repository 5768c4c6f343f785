package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/aws/aws-xray-sdk-go/xray"
	"go.uber.org/zap"

	"stackhut-runner/models"
)

// Bridge calls methods implemented in another language. Each call writes a
// request file, spawns a fresh interpreter against the service entrypoint and
// reads back a response file. No process is reused between calls.
type Bridge struct {
	descriptor   *models.ServiceDescriptor
	interpreter  string
	workDir      string
	taskID       string
	timeout      time.Duration
	versionRange *semver.Constraints
	logger       *zap.Logger
}

// NewBridge resolves the interpreter for the descriptor's stack. An unknown or
// in-process stack is a configuration error.
func NewBridge(desc *models.ServiceDescriptor, interpreters map[string]string, workDir, taskID string, timeout time.Duration, logger *zap.Logger) (*Bridge, error) {
	if !desc.Stack.Foreign() {
		return nil, fmt.Errorf("stack %q does not need a cross-language bridge", desc.Stack)
	}
	interpreter, ok := interpreters[string(desc.Stack)]
	if !ok || interpreter == "" {
		return nil, fmt.Errorf("no interpreter configured for stack %q", desc.Stack)
	}
	if desc.Entrypoint == "" {
		return nil, fmt.Errorf("service %q has no entrypoint", desc.Name)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("shim timeout must be positive, got %s", timeout)
	}
	versionRange, err := semver.NewConstraint(models.ShimVersionRange)
	if err != nil {
		return nil, fmt.Errorf("parsing shim version range: %w", err)
	}
	return &Bridge{
		descriptor:   desc,
		interpreter:  interpreter,
		workDir:      workDir,
		taskID:       taskID,
		timeout:      timeout,
		versionRange: versionRange,
		logger:       logger,
	}, nil
}

// Call implements Handler
func (b *Bridge) Call(ctx context.Context, method string, params []interface{}) (interface{}, error) {
	if params == nil {
		params = []interface{}{}
	}
	if err := b.writeRequest(method, params); err != nil {
		return nil, models.NewInternalError(map[string]interface{}{"error": err.Error()}).WithCause(err)
	}

	var spawnErr error
	xray.Capture(ctx, "Bridge.Spawn", func(ctx1 context.Context) error {
		spawnErr = b.spawn(ctx1)

		if seg := xray.GetSegment(ctx1); seg != nil {
			seg.AddMetadata("shim.method", method)
			seg.AddMetadata("shim.stack", string(b.descriptor.Stack))
		}
		return spawnErr
	})
	if spawnErr != nil {
		return nil, spawnErr
	}

	resp, err := b.readResponse()
	if err != nil {
		return nil, models.NewInternalError(map[string]interface{}{"error": err.Error()}).WithCause(err)
	}
	return b.unwrap(method, resp)
}

func (b *Bridge) requestPath() string {
	return filepath.Join(b.workDir, models.ShimRequestFile)
}

func (b *Bridge) responsePath() string {
	return filepath.Join(b.workDir, models.ShimResponseFile)
}

func (b *Bridge) writeRequest(method string, params []interface{}) error {
	data, err := json.Marshal(models.ShimRequest{
		Version: models.ShimProtocolVersion,
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("encoding shim request: %w", err)
	}
	if err := os.WriteFile(b.requestPath(), data, 0644); err != nil {
		return fmt.Errorf("writing shim request: %w", err)
	}
	// a response left over from an earlier call must never be read back
	if err := os.Remove(b.responsePath()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("clearing stale shim response: %w", err)
	}
	return nil
}

func (b *Bridge) spawn(ctx context.Context) error {
	cmd := exec.Command(b.interpreter, b.descriptor.Entrypoint)
	cmd.Dir = b.workDir
	cmd.Env = append(os.Environ(),
		models.EnvShimRequest+"="+models.ShimRequestFile,
		models.EnvShimResponse+"="+models.ShimResponseFile,
		models.EnvShimVersion+"="+models.ShimProtocolVersion,
		models.EnvTaskID+"="+b.taskID,
	)

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	// grandchildren holding the output pipe must not block Wait after a kill
	cmd.WaitDelay = time.Second

	startTime := time.Now()
	if err := cmd.Start(); err != nil {
		return models.NewOSError(err)
	}

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		b.logger.Debug("Shim process finished",
			zap.Duration("duration", time.Since(startTime)),
			zap.String("output", output.String()))
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				return models.NewNonZeroExitError(exitErr.ExitCode(), output.String())
			}
			return models.NewOSError(err)
		}
		return nil
	case <-timer.C:
		_ = cmd.Process.Kill()
		<-done
		return b.abortError(output.String(), fmt.Sprintf("execution timed out after %v", b.timeout))
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		<-done
		return b.abortError(output.String(), fmt.Sprintf("execution cancelled: %v", ctx.Err()))
	}
}

func (b *Bridge) abortError(output, reason string) error {
	b.logger.Error("Shim process killed", zap.String("reason", reason))
	stderr := reason
	if output != "" {
		stderr = output + "\n" + reason
	}
	e := models.NewNonZeroExitError(-1, stderr)
	e.Data["killed"] = true
	return e
}

func (b *Bridge) readResponse() (*models.ShimResponse, error) {
	data, err := os.ReadFile(b.responsePath())
	if err != nil {
		return nil, fmt.Errorf("reading shim response: %w", err)
	}
	var resp models.ShimResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decoding shim response: %w", err)
	}
	if resp.Version != "" {
		v, err := semver.NewVersion(resp.Version)
		if err != nil {
			return nil, fmt.Errorf("shim response version %q: %w", resp.Version, err)
		}
		if !b.versionRange.Check(v) {
			return nil, fmt.Errorf("shim response version %s does not satisfy %s", resp.Version, models.ShimVersionRange)
		}
	}
	return &resp, nil
}

func (b *Bridge) unwrap(method string, resp *models.ShimResponse) (interface{}, error) {
	if resp.Error != nil {
		if resp.Error.Code == models.CodeMethodNotFound {
			return nil, models.NewServerError(resp.Error.Code, fmt.Sprintf("Method or service %s not found", method), nil)
		}
		return nil, models.NewServerError(resp.Error.Code, resp.Error.Msg, nil)
	}
	if !resp.HasResult {
		return nil, models.NewInternalError(map[string]interface{}{"error": "shim response has neither result nor error"})
	}
	var result interface{}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, models.NewInternalError(map[string]interface{}{"error": err.Error()}).WithCause(err)
	}
	return result, nil
}
