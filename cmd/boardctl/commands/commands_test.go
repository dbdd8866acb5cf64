package commands

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"

	"schedule-board/api"
	"schedule-board/board"
	"schedule-board/broadcast"
	"schedule-board/domain"
	"schedule-board/storage"
)

func newBoard(t *testing.T) (*httptest.Server, *board.Service) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	svc := board.NewService(storage.NewTaskStore(), logger)
	hub := broadcast.NewHub(svc, 32, logger)
	svc.Attach(hub)
	e := echo.New()
	api.Register(e, svc, svc, hub, logger)
	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return srv, svc
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func runCLI(t *testing.T, ctx context.Context, srv *httptest.Server, stdin string, args ...string) (string, error) {
	t.Helper()
	logger, _ := test.NewNullLogger()
	cli := New(logger)
	out := &syncBuffer{}
	cli.rootCmd.SetOut(out)
	cli.rootCmd.SetIn(strings.NewReader(stdin))
	cli.SetArgs(append([]string{"--addr", srv.URL}, args...))
	err := cli.Execute(ctx)
	return out.String(), err
}

func TestAddDeleteList(t *testing.T) {
	srv, svc := newBoard(t)
	ctx := context.Background()

	out, err := runCLI(t, ctx, srv, "", "add", "--id", "t1", "--name", "A",
		"--start", "2024-01-01T00:00", "--end", "2024-01-01T02:00", "--depends-on", "t0,t9")
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !strings.Contains(out, "added t1 (A)") {
		t.Fatalf("unexpected output %q", out)
	}
	snap, _ := svc.Snapshot(ctx)
	if deps := snap.Tasks["t1"].Dependencies; len(deps) != 2 || deps[0] != "t0" {
		t.Fatalf("unexpected dependencies %v", deps)
	}
	if snap.Tasks["t1"].Priority != domain.PriorityMedium {
		t.Fatalf("expected default priority, got %q", snap.Tasks["t1"].Priority)
	}

	out, err = runCLI(t, ctx, srv, "", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, "t1") || !strings.Contains(out, "HOURS") {
		t.Fatalf("unexpected list output %q", out)
	}
	fields := strings.Fields(strings.Split(out, "\n")[1])
	if fields[4] != "2" {
		t.Fatalf("expected 2 hours, got row %v", fields)
	}

	out, err = runCLI(t, ctx, srv, "", "delete", "t1")
	if err != nil || !strings.Contains(out, "deleted t1") {
		t.Fatalf("delete: %q %v", out, err)
	}
	out, err = runCLI(t, ctx, srv, "", "delete", "t1")
	if err != nil || !strings.Contains(out, "t1 did not exist") {
		t.Fatalf("second delete: %q %v", out, err)
	}
}

func TestAddFromStdin(t *testing.T) {
	srv, svc := newBoard(t)
	body := `{"taskId":"T002","taskName":"DNA Extraction","priority":"High","dependencies":"T001"}`
	if _, err := runCLI(t, context.Background(), srv, body, "add", "-f", "-"); err != nil {
		t.Fatalf("add: %v", err)
	}
	snap, _ := svc.Snapshot(context.Background())
	if got := snap.Tasks["T002"]; got.Name != "DNA Extraction" || got.Priority != domain.PriorityHigh {
		t.Fatalf("unexpected task %+v", got)
	}
}

func TestAddWithoutIDFails(t *testing.T) {
	srv, _ := newBoard(t)
	if _, err := runCLI(t, context.Background(), srv, "", "add", "--name", "A"); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestListJSON(t *testing.T) {
	srv, svc := newBoard(t)
	if _, err := svc.AddTask(domain.Task{ID: "t1", Name: "A"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	out, err := runCLI(t, context.Background(), srv, "", "list", "--json")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !strings.Contains(out, `"taskName": "A"`) {
		t.Fatalf("unexpected json %q", out)
	}
}

func TestWatchPrintsChanges(t *testing.T) {
	srv, svc := newBoard(t)
	logger, _ := test.NewNullLogger()
	cli := New(logger)
	out := &syncBuffer{}
	cli.rootCmd.SetOut(out)
	cli.SetArgs([]string{"--addr", srv.URL, "watch"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cli.Execute(ctx) }()

	waitOutput := func(substr string) {
		t.Helper()
		deadline := time.Now().Add(3 * time.Second)
		for !strings.Contains(out.String(), substr) {
			if time.Now().After(deadline) {
				t.Fatalf("output never contained %q:\n%s", substr, out.String())
			}
			time.Sleep(10 * time.Millisecond)
		}
	}
	waitOutput("--- 0 tasks")
	if _, err := svc.AddTask(domain.Task{ID: "t1", Name: "Centrifuge"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	waitOutput("Centrifuge")

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watch: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watch did not exit")
	}
}

func TestLoadCountsFrames(t *testing.T) {
	srv, svc := newBoard(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		for i := 0; ctx.Err() == nil; i++ {
			_, _ = svc.AddTask(domain.Task{ID: "load", Name: "tick"})
			time.Sleep(20 * time.Millisecond)
		}
	}()
	out, err := runCLI(t, context.Background(), srv, "", "load", "-n", "3", "-d", "300ms")
	if err != nil {
		t.Fatalf("load: %v (%s)", err, out)
	}
	if !strings.Contains(out, "connections=3") || !strings.Contains(out, "snapshots=3") {
		t.Fatalf("unexpected summary %q", out)
	}
}
