package download

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/dgnsrekt/options-screener/internal/api"
	"github.com/dgnsrekt/options-screener/internal/staging"
)

type mockClient struct {
	mu       sync.Mutex
	data     []byte
	notFound []string
	failing  []string
	calls    []string
}

func (m *mockClient) FetchChain(ctx context.Context, ticker, date string, dest io.Writer) (int64, error) {
	key := date + "/" + ticker

	m.mu.Lock()
	m.calls = append(m.calls, key)
	m.mu.Unlock()

	for _, nf := range m.notFound {
		if nf == key {
			return 0, api.ErrNotFound
		}
	}
	for _, f := range m.failing {
		if f == key {
			return 0, fmt.Errorf("max retries exceeded: %w", api.ErrRateLimited)
		}
	}
	n, err := dest.Write(m.data)
	return int64(n), err
}

func TestDownloadManager(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "download-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	client := &mockClient{
		data:     []byte(`{"ticker":"SPY","option_type":"call","underlying_type":"etf"}` + "\n"),
		notFound: []string{"2025-11-14/GME"},
	}

	stgMgr := staging.NewManager(tmpDir, false)
	logger, _ := zap.NewDevelopment()
	mgr := NewManager(client, stgMgr, 2, true, logger)

	tasks := Plan([]string{"2025-11-14"}, []string{"SPY", "qqq", "GME"})

	result, err := mgr.Execute(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.Total != 3 {
		t.Errorf("expected total 3, got %d", result.Total)
	}

	if result.Success != 2 {
		t.Errorf("expected 2 successful, got %d", result.Success)
	}

	if result.NotFound != 1 {
		t.Errorf("expected 1 not found, got %d", result.NotFound)
	}

	if result.Bytes != int64(2*len(client.data)) {
		t.Errorf("expected %d bytes, got %d", 2*len(client.data), result.Bytes)
	}

	// A complete date is committed to {dir}/{date}/{TICKER}.jsonl and staging is cleaned.
	for _, ticker := range []string{"SPY", "QQQ"} {
		finalPath := filepath.Join(tmpDir, "2025-11-14", ticker+".jsonl")
		if _, err := os.Stat(finalPath); os.IsNotExist(err) {
			t.Errorf("expected committed file at %s", finalPath)
		}
	}
	if _, err := os.Stat(stgMgr.StagingDir("2025-11-14")); !os.IsNotExist(err) {
		t.Error("staging directory should be removed after commit")
	}
}

func TestDownloadManager_FailedDateStaysStaged(t *testing.T) {
	tmpDir := t.TempDir()

	client := &mockClient{
		data:    []byte("{}\n"),
		failing: []string{"2025-11-17/AMC"},
	}

	stgMgr := staging.NewManager(tmpDir, false)
	mgr := NewManager(client, stgMgr, 3, true, zap.NewNop())

	result, err := mgr.Execute(context.Background(), Plan([]string{"2025-11-14", "2025-11-17"}, []string{"AMC", "GME"}))
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.Failed != 1 || result.Success != 3 {
		t.Errorf("expected 3 successful and 1 failed, got %+v", result)
	}
	if len(result.Errors) != 1 {
		t.Fatalf("expected 1 error message, got %v", result.Errors)
	}

	if _, err := os.Stat(filepath.Join(tmpDir, "2025-11-14", "AMC.jsonl")); err != nil {
		t.Errorf("complete date should be committed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "2025-11-17")); !os.IsNotExist(err) {
		t.Error("date with failures should not be committed")
	}
	if _, err := os.Stat(filepath.Join(stgMgr.StagingDir("2025-11-17"), "GME.jsonl")); err != nil {
		t.Errorf("successful fetch of failed date should stay staged: %v", err)
	}
}

func TestDownloadManager_Resume(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "download-test-*")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(tmpDir)

	client := &mockClient{
		data: []byte(`{"test": "data"}`),
	}

	stgMgr := staging.NewManager(tmpDir, false)
	logger, _ := zap.NewDevelopment()
	mgr := NewManager(client, stgMgr, 1, true, logger)

	// Pre-create a compressed file in the final directory
	finalPath := filepath.Join(tmpDir, "2025-11-14", "SPY.jsonl.gz")
	if err := os.MkdirAll(filepath.Dir(finalPath), 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(finalPath, []byte("existing"), 0600); err != nil {
		t.Fatal(err)
	}

	tasks := []Task{
		{Ticker: "SPY", Date: "2025-11-14"},
	}

	result, err := mgr.Execute(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if result.Skipped != 1 {
		t.Errorf("expected 1 skipped, got %d", result.Skipped)
	}

	if len(client.calls) != 0 {
		t.Errorf("expected no fetches, got %v", client.calls)
	}

	// Verify original file wasn't modified
	content, _ := os.ReadFile(finalPath)
	if string(content) != "existing" {
		t.Error("existing file was modified")
	}

	// With resume disabled the chain is fetched again.
	mgr = NewManager(client, stgMgr, 1, false, logger)
	result, err = mgr.Execute(context.Background(), tasks)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Success != 1 || result.Skipped != 0 {
		t.Errorf("expected a fresh fetch, got %+v", result)
	}
}

func TestDownloadManager_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	mgr := NewManager(&mockClient{data: []byte("{}\n")}, staging.NewManager(t.TempDir(), false), 2, true, zap.NewNop())
	_, err := mgr.Execute(ctx, Plan([]string{"2025-11-14"}, []string{"SPY", "QQQ"}))
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestTask(t *testing.T) {
	task := Task{Ticker: "SPY", Date: "2025-11-14"}

	if task.String() != "2025-11-14/SPY" {
		t.Errorf("unexpected String: %s", task.String())
	}

	tasks := Plan([]string{"2025-11-13", "2025-11-14"}, []string{"spy", "GME"})
	if len(tasks) != 4 {
		t.Fatalf("expected 4 tasks, got %d", len(tasks))
	}
	if tasks[0] != (Task{Ticker: "SPY", Date: "2025-11-13"}) || tasks[3] != (Task{Ticker: "GME", Date: "2025-11-14"}) {
		t.Errorf("unexpected plan: %v", tasks)
	}
}
