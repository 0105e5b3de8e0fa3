package sync

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

type sseEvent struct {
	typ  string
	id   string
	data Event
}

func readEvent(t *testing.T, r *bufio.Reader) sseEvent {
	t.Helper()
	var ev sseEvent
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			t.Fatalf("reading event: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case line == "":
			return ev
		case strings.HasPrefix(line, "event: "):
			ev.typ = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "id: "):
			ev.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "data: "):
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev.data); err != nil {
				t.Fatalf("decoding event data: %v", err)
			}
		}
	}
}

func TestBroadcaster_SnapshotAndPublish(t *testing.T) {
	date := "2025-11-14"
	b := NewBroadcaster("test", 0, func() State {
		return State{DataDate: date, Records: 42, ActivePresets: []string{"high_iv"}}
	}, zap.NewNop())

	ts := httptest.NewServer(http.HandlerFunc(b.HandleSSE))
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("expected text/event-stream, got %q", ct)
	}

	r := bufio.NewReader(resp.Body)
	snap := readEvent(t, r)
	if snap.typ != EventSnapshot || snap.id != "1" {
		t.Errorf("expected snapshot with id 1, got %s/%s", snap.typ, snap.id)
	}
	if snap.data.BroadcasterID != "test" || snap.data.State.DataDate != date || snap.data.State.Records != 42 {
		t.Errorf("unexpected snapshot: %+v", snap.data)
	}
	if b.ClientCount() != 1 {
		t.Fatalf("expected 1 client, got %d", b.ClientCount())
	}

	date = "2025-11-17"
	b.Publish(EventReload)

	reload := readEvent(t, r)
	if reload.typ != EventReload || reload.id != "2" {
		t.Errorf("expected reload with id 2, got %s/%s", reload.typ, reload.id)
	}
	if reload.data.State.DataDate != "2025-11-17" {
		t.Errorf("expected new date in reload event, got %s", reload.data.State.DataDate)
	}
}

func TestBroadcaster_Heartbeat(t *testing.T) {
	b := NewBroadcaster("test", 20*time.Millisecond, func() State { return State{} }, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Run(ctx)

	ts := httptest.NewServer(http.HandlerFunc(b.HandleSSE))
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	r := bufio.NewReader(resp.Body)
	if ev := readEvent(t, r); ev.typ != EventSnapshot {
		t.Fatalf("expected snapshot first, got %s", ev.typ)
	}
	if ev := readEvent(t, r); ev.typ != EventHeartbeat {
		t.Errorf("expected heartbeat, got %s", ev.typ)
	}
}

func TestBroadcaster_PublishWithoutClients(t *testing.T) {
	calls := 0
	b := NewBroadcaster("test", 0, func() State { calls++; return State{} }, zap.NewNop())
	b.Publish(EventReload)
	if calls != 0 {
		t.Errorf("expected no state lookups without subscribers, got %d", calls)
	}
}
