//go:build e2e

package testorigin

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/go-connections/nat"
)

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

const (
	// baseImage is the Docker image used for E2E tests.
	baseImage = "alpine:3.21"

	// Binary names and paths inside container.
	binaryName       = "scanhound"
	helperBinaryName = "testorigin-helper"
	binaryPath       = "/tmp/" + binaryName
	helperBinaryPath = "/tmp/" + helperBinaryName

	// originPort is the in-container port the origin server listens on.
	originPort = "8080"
)

// RunResult captures one in-container command invocation.
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// -----------------------------------------------------------------------------
// Harness - Public API
// -----------------------------------------------------------------------------

// Harness provides E2E test infrastructure using Docker containers: a
// deterministic origin server (testorigin-helper fed a RouteTable) plus the
// scanhound binary, both bind-mounted into one container so the scan runs
// against a loopback target with no external network.
//
// Usage:
//
//	rt := testorigin.RouteTable{
//	    Routes:  map[string]testorigin.Route{"admin": {Status: 200, Body: "panel"}},
//	    Default: testorigin.Route{Status: 404, Body: "nope"},
//	}
//	h := testorigin.New(t, rt)
//	h.WriteFile("/tmp/words.txt", []byte("admin\nbackup\n"))
//	result := h.RunScanhound("scan", "--url", h.OriginURL(), "--word-list", "/tmp/words.txt")
//
// Requires the SCANHOUND_E2E_BINDIR env var: a directory holding the
// scanhound and testorigin-helper binaries built for linux.
// The container is automatically cleaned up when the test finishes via t.Cleanup().
type Harness struct {
	t          *testing.T
	ctx        context.Context
	container  *Container
	lastResult *RunResult
}

// New creates a Harness serving rt from inside a fresh container.
func New(t *testing.T, rt RouteTable) *Harness {
	t.Helper()

	ctx := context.Background()
	h := &Harness{t: t, ctx: ctx}

	cfg, hostCfg, err := buildContainerConfig()
	if err != nil {
		t.Fatalf("failed to build container config: %v", err)
	}

	c, err := NewContainer(ctx, cfg, hostCfg)
	if err != nil {
		t.Fatalf("failed to create container: %v", err)
	}
	h.container = c

	t.Cleanup(func() {
		h.Cleanup()
	})

	if err := h.startOrigin(rt); err != nil {
		t.Fatalf("failed to start origin server: %v", err)
	}

	return h
}

// OriginURL returns the origin's base URL as seen from inside the container
// (where RunScanhound executes).
func (h *Harness) OriginURL() string {
	return "http://127.0.0.1:" + originPort
}

// HostOriginURL returns the origin's base URL as seen from the test process
// on the host, via the container's published port binding.
func (h *Harness) HostOriginURL() string {
	h.t.Helper()
	hostPort, err := h.container.HostPort(h.ctx, originPort)
	if err != nil {
		h.t.Fatalf("failed to resolve host port: %v", err)
	}
	return "http://127.0.0.1:" + hostPort
}

// WriteFile writes data to path inside the container.
func (h *Harness) WriteFile(path string, data []byte) {
	h.t.Helper()
	_, stderr, exitCode, err := h.container.Run(h.ctx, []string{"sh", "-c", "cat > " + path}, data)
	if err != nil {
		h.t.Fatalf("failed to write %s: %v", path, err)
	}
	if exitCode != 0 {
		h.t.Fatalf("failed to write %s (exit %d): %s", path, exitCode, stderr)
	}
}

// RunScanhound executes the scanhound binary inside the container with the
// given arguments. The result (exit code, stdout, stderr) is stored for
// later inspection.
func (h *Harness) RunScanhound(args ...string) *RunResult {
	h.t.Helper()

	cmd := append([]string{binaryPath}, args...)
	stdout, stderr, exitCode, err := h.container.Run(h.ctx, cmd, nil)
	if err != nil {
		h.t.Fatalf("failed to run scanhound: %v", err)
	}

	h.lastResult = &RunResult{
		ExitCode: exitCode,
		Stdout:   stdout,
		Stderr:   stderr,
	}
	return h.lastResult
}

// Cleanup terminates the container and releases resources.
func (h *Harness) Cleanup() {
	if h.container != nil {
		_ = h.container.Close(h.ctx)
		h.container = nil
	}
}

// -----------------------------------------------------------------------------
// Container Configuration
// -----------------------------------------------------------------------------

// buildContainerConfig creates Docker container and host configs for E2E tests.
func buildContainerConfig() (*container.Config, *container.HostConfig, error) {
	binDir := os.Getenv("SCANHOUND_E2E_BINDIR")
	if binDir == "" {
		return nil, nil, fmt.Errorf("SCANHOUND_E2E_BINDIR not set - point it at a directory holding the scanhound and testorigin-helper binaries")
	}

	binds := []string{
		fmt.Sprintf("%s:%s:ro", filepath.Join(binDir, binaryName), binaryPath),
		fmt.Sprintf("%s:%s:ro", filepath.Join(binDir, helperBinaryName), helperBinaryPath),
	}

	portKey := containerPortKey(originPort)

	cfg := &container.Config{
		Image:        baseImage,
		Cmd:          []string{"sleep", "infinity"},
		ExposedPorts: nat.PortSet{portKey: struct{}{}},
	}

	hostCfg := &container.HostConfig{
		Binds: binds,
		// Empty HostPort asks Docker for an ephemeral host port, resolved
		// later through Container.HostPort.
		PortBindings: nat.PortMap{portKey: []nat.PortBinding{{HostIP: "127.0.0.1"}}},
		AutoRemove:   true,
	}

	return cfg, hostCfg, nil
}

// startOrigin launches the helper serving rt and waits until it answers.
func (h *Harness) startOrigin(rt RouteTable) error {
	specJSON, err := json.Marshal(rt)
	if err != nil {
		return fmt.Errorf("marshal route table: %w", err)
	}

	cmd := []string{helperBinaryPath, "serve", ":" + originPort}
	if err := h.container.StartDetached(h.ctx, cmd, specJSON); err != nil {
		return fmt.Errorf("start helper: %w", err)
	}

	return h.waitOriginReady()
}

// waitOriginReady polls the origin from inside the container until it serves
// a response or the deadline expires.
func (h *Harness) waitOriginReady() error {
	deadline := time.Now().Add(10 * time.Second)
	probe := []string{"wget", "-O", "-", h.OriginURL() + "/__readiness_probe"}

	for time.Now().Before(deadline) {
		// busybox wget exits 0 only for 2xx, but a non-2xx answer still
		// proves the listener is up: it reports "server returned error" on
		// stderr, unlike the connection-refused spin-wait case.
		_, stderr, exitCode, err := h.container.Run(h.ctx, probe, nil)
		if err == nil && (exitCode == 0 || strings.Contains(stderr, "server returned error")) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("origin server did not become ready on port %s", originPort)
}
