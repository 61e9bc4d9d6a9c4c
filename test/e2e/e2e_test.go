package e2e

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"
)

var (
	entryfsBin string
	projRoot   string
	testEnv    *E2ETestEnvironment
)

func TestMain(m *testing.M) {
	var err error

	// Build entryfs binary once for all tests
	tmpBinDir, err := os.MkdirTemp("", "entryfs-bin")
	if err != nil {
		panic(err)
	}

	entryfsBin = filepath.Join(tmpBinDir, "entryfs")

	// Determine project root
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		panic("cannot determine current file path")
	}
	projRoot = filepath.Join(filepath.Dir(thisFile), "..", "..")

	cmd := exec.Command("go", "build", "-o", entryfsBin, "./cmd")
	cmd.Dir = projRoot
	if out, err := cmd.CombinedOutput(); err != nil {
		panic(string(out))
	}

	// Create shared test environment
	testEnv, err = NewE2ETestEnvironment(entryfsBin)
	if err != nil {
		panic(err)
	}

	code := m.Run()
	testEnv.Close()
	_ = os.RemoveAll(tmpBinDir)
	os.Exit(code)
}

func TestE2ERunOnLocalDirectory(t *testing.T) {
	logo := NewTestFile("/img/logo.png").
		WithBinaryContent(512).
		WithContentType("image/png").
		Build()
	testEnv.RegisterFiles(logo)

	root := testEnv.NewRootDir(t)
	res := testEnv.Run(t, "run", "--root", fileURL(root), "--download-url", testEnv.URL(logo), "--keep", "-v", "4")
	if res.Code != 0 {
		t.Fatalf("run failed with code %d\nstdout:\n%s\nstderr:\n%s", res.Code, res.Stdout, res.Stderr)
	}

	expectFile(t, filepath.Join(root, "test", "file-copy.txt"), []byte("TEST"))
	expectFile(t, filepath.Join(root, "test", "file-move.txt"), []byte("TE"))
	expectFile(t, filepath.Join(root, "recursive", "dir", "test", "logo.png"), logo.content)
	if _, err := os.Stat(filepath.Join(root, "test", "file.txt")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("original file should have been moved, stat err: %v", err)
	}
	if !strings.Contains(res.Stdout, "PASS run") {
		t.Fatalf("missing verdict in summary:\n%s", res.Stdout)
	}
}

func TestE2ERepeatedRunsConverge(t *testing.T) {
	root := testEnv.NewRootDir(t)
	for i := range 2 {
		res := testEnv.Run(t, "run", "--root", fileURL(root), "--no-download", "--keep")
		if res.Code != 0 {
			t.Fatalf("run %d failed with code %d\nstdout:\n%s\nstderr:\n%s", i+1, res.Code, res.Stdout, res.Stderr)
		}
	}
	expectFile(t, filepath.Join(root, "test", "file-move.txt"), []byte("TE"))
}

func TestE2ECleanupRemovesTestDir(t *testing.T) {
	root := testEnv.NewRootDir(t)
	res := testEnv.Run(t, "run", "--root", fileURL(root), "--no-download")
	if res.Code != 0 {
		t.Fatalf("run failed with code %d\nstderr:\n%s", res.Code, res.Stderr)
	}
	if _, err := os.Stat(filepath.Join(root, "test")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("test dir should have been removed, stat err: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "recursive", "dir", "test")); err != nil {
		t.Fatalf("recursive dir should exist: %v", err)
	}
}

func TestE2EDownloadFailureIsNotFatal(t *testing.T) {
	missing := NewTestFile("/missing.png").WithError(http.StatusNotFound).Build()
	testEnv.RegisterFiles(missing)

	root := testEnv.NewRootDir(t)
	res := testEnv.Run(t, "run", "--root", fileURL(root), "--download-url", testEnv.URL(missing))
	if res.Code != 0 {
		t.Fatalf("side chain failure must not fail the run, code %d\nstdout:\n%s", res.Code, res.Stdout)
	}
	if !strings.Contains(res.Stdout, "FILE_NOT_FOUND_ERR") {
		t.Fatalf("download failure not reported:\n%s", res.Stdout)
	}
}

func TestE2EDownloadTimeout(t *testing.T) {
	slow := NewTestFile("/slow.png").
		WithContent([]byte("slow")).
		WithDelay(2 * time.Second).
		Build()
	testEnv.RegisterFiles(slow)

	root := testEnv.NewRootDir(t)
	cfg := testEnv.WriteConfig(t, fmt.Sprintf(`
root_url: %s
download_url: %s
download_timeout: 0.2
download_retries: 0
`, fileURL(root), testEnv.URL(slow)))

	start := time.Now()
	res := testEnv.Run(t, "run", "-c", cfg)
	if res.Code != 0 {
		t.Fatalf("run failed with code %d\nstdout:\n%s", res.Code, res.Stdout)
	}
	if !strings.Contains(res.Stdout, "CONNECTION_ERR") {
		t.Fatalf("timeout not reported as connection error:\n%s", res.Stdout)
	}
	if took := time.Since(start); took > 5*time.Second {
		t.Fatalf("timeout not enforced, run took %s", took)
	}
}

func TestE2EInvalidRootFails(t *testing.T) {
	res := testEnv.Run(t, "run", "--root", "nowhere://x/", "--no-download")
	if res.Code != 1 {
		t.Fatalf("expected exit code 1, got %d\nstdout:\n%s", res.Code, res.Stdout)
	}
	if !strings.Contains(res.Stdout, "FAIL run") {
		t.Fatalf("missing failure verdict:\n%s", res.Stdout)
	}
}

func TestE2EJournalHistory(t *testing.T) {
	root := testEnv.NewRootDir(t)
	db := filepath.Join(testEnv.BaseDir, strings.ReplaceAll(t.Name(), "/", "_")+".db")

	for _, args := range [][]string{
		{"run", "--root", fileURL(root), "--no-download", "-j", db},
		{"run", "--root", "nowhere://x/", "-j", db},
	} {
		testEnv.Run(t, args...)
	}

	res := testEnv.Run(t, "history", "-j", db, "-n", "5")
	if res.Code != 0 {
		t.Fatalf("history failed with code %d\nstderr:\n%s", res.Code, res.Stderr)
	}
	lines := strings.Split(strings.TrimSpace(res.Stdout), "\n")
	if len(lines) < 2 {
		t.Fatalf("expected both runs listed:\n%s", res.Stdout)
	}
	if !strings.Contains(res.Stdout, "PASS") || !strings.Contains(res.Stdout, "FAIL") {
		t.Fatalf("expected a passing and a failing run:\n%s", res.Stdout)
	}
}

// Test helpers

// TestFileSpec describes a file served by the mock HTTP server
type TestFileSpec struct {
	path        string
	content     []byte
	contentType string
	delay       time.Duration
	errorCode   int
}

// TestFileBuilder provides a fluent interface for creating test files
type TestFileBuilder struct {
	spec TestFileSpec
}

// NewTestFile creates a new test file builder served at path
func NewTestFile(path string) *TestFileBuilder {
	return &TestFileBuilder{
		spec: TestFileSpec{
			path:        path,
			contentType: "text/plain",
		},
	}
}

// WithBinaryContent sets size bytes of patterned binary content
func (b *TestFileBuilder) WithBinaryContent(size int) *TestFileBuilder {
	b.spec.content = make([]byte, size)
	for i := range b.spec.content {
		b.spec.content[i] = byte(i % 256)
	}
	b.spec.contentType = "application/octet-stream"
	return b
}

// WithContent sets raw content bytes
func (b *TestFileBuilder) WithContent(content []byte) *TestFileBuilder {
	b.spec.content = content
	return b
}

// WithContentType sets the HTTP Content-Type header
func (b *TestFileBuilder) WithContentType(contentType string) *TestFileBuilder {
	b.spec.contentType = contentType
	return b
}

// WithDelay adds artificial delay to responses (for timeout testing)
func (b *TestFileBuilder) WithDelay(delay time.Duration) *TestFileBuilder {
	b.spec.delay = delay
	return b
}

// WithError makes the file return an HTTP error status
func (b *TestFileBuilder) WithError(statusCode int) *TestFileBuilder {
	b.spec.errorCode = statusCode
	return b
}

// Build creates the final TestFileSpec
func (b *TestFileBuilder) Build() *TestFileSpec {
	return &b.spec
}

// E2ETestEnvironment holds the shared binary, scratch directory and mock server
type E2ETestEnvironment struct {
	EntryFSBin string
	BaseDir    string
	MockServer *httptest.Server
	mux        *http.ServeMux
}

// RunResult is the outcome of one entryfs invocation
type RunResult struct {
	Code   int
	Stdout string
	Stderr string
}

// NewE2ETestEnvironment creates a shared test environment with mock HTTP server
func NewE2ETestEnvironment(bin string) (*E2ETestEnvironment, error) {
	baseDir, err := os.MkdirTemp("", "entryfs-e2e-tests")
	if err != nil {
		return nil, err
	}

	env := &E2ETestEnvironment{
		EntryFSBin: bin,
		BaseDir:    baseDir,
		mux:        http.NewServeMux(),
	}
	env.MockServer = httptest.NewServer(env.mux)
	return env, nil
}

// Close cleans up the test environment
func (env *E2ETestEnvironment) Close() {
	if env.MockServer != nil {
		env.MockServer.Close()
	}
	if env.BaseDir != "" {
		_ = os.RemoveAll(env.BaseDir) // Best effort cleanup
	}
}

// RegisterFiles adds test files to the mock server
func (env *E2ETestEnvironment) RegisterFiles(files ...*TestFileSpec) {
	for _, file := range files {
		fileSpec := file
		env.mux.HandleFunc(file.path, func(w http.ResponseWriter, r *http.Request) {
			env.handleMockRequest(w, r, fileSpec)
		})
	}
}

// URL returns the address the mock server serves file at
func (env *E2ETestEnvironment) URL(file *TestFileSpec) string {
	return env.MockServer.URL + file.path
}

// handleMockRequest handles HTTP requests for mock files
func (env *E2ETestEnvironment) handleMockRequest(w http.ResponseWriter, r *http.Request, file *TestFileSpec) {
	if file.delay > 0 {
		select {
		case <-time.After(file.delay):
		case <-r.Context().Done():
			return
		}
	}

	if file.errorCode != 0 {
		http.Error(w, fmt.Sprintf("Mock error %d", file.errorCode), file.errorCode)
		return
	}

	w.Header().Set("Content-Type", file.contentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(file.content)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(file.content); err != nil {
		// In tests, we can't really recover from write errors
		panic(fmt.Sprintf("Failed to write mock response: %v", err))
	}
}

// NewRootDir creates an empty directory used as a file:// root by one test
func (env *E2ETestEnvironment) NewRootDir(t *testing.T) string {
	t.Helper()
	testID := strings.ReplaceAll(t.Name(), "/", "_")
	dir := filepath.Join(env.BaseDir, "root-"+testID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("Failed to create root dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(dir) })
	return dir
}

// WriteConfig writes a YAML config file for one test and returns its path
func (env *E2ETestEnvironment) WriteConfig(t *testing.T, content string) string {
	t.Helper()
	testID := strings.ReplaceAll(t.Name(), "/", "_")
	path := filepath.Join(env.BaseDir, "config-"+testID+".yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

// Run executes the entryfs binary and waits for it to exit
func (env *E2ETestEnvironment) Run(t *testing.T, args ...string) RunResult {
	t.Helper()
	cmd := exec.Command(env.EntryFSBin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	done := make(chan error, 1)
	if err := cmd.Start(); err != nil {
		t.Fatalf("Failed to start entryfs: %v", err)
	}
	go func() { done <- cmd.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-time.After(30 * time.Second):
		_ = cmd.Process.Kill() // Process may have already exited
		<-done
		t.Fatalf("entryfs did not exit\nstdout:\n%s\nstderr:\n%s", stdout.String(), stderr.String())
	}

	res := RunResult{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.Code = exitErr.ExitCode()
	default:
		t.Fatalf("entryfs failed to run: %v", err)
	}
	return res
}

func fileURL(dir string) string {
	return "file://" + filepath.ToSlash(dir)
}

func expectFile(t *testing.T, path string, want []byte) {
	t.Helper()
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read %s: %v", path, err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("content mismatch in %s:\nexpected: %q\ngot:      %q", path, want, got)
	}
}
