package surge

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestRun(id, zone string) *Run {
	return &Run{ID: id, LocationZone: zone, Status: StatusPending, Progress: "Queued", MaxRetries: 2}
}

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	if err := store.Create(ctx, newTestRun("SURGE-1", "Mumbai-West")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := store.Create(ctx, newTestRun("SURGE-1", "Mumbai-West")); !errors.Is(err, ErrRunConflict) {
		t.Fatalf("expected conflict on duplicate id, got %v", err)
	}

	run, err := store.Claim(ctx, "SURGE-1")
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if run.Status != StatusRunning || run.Attempts != 1 || run.Progress != "Initializing agents..." {
		t.Fatalf("unexpected claimed run: %+v", run)
	}
	if _, err := store.Claim(ctx, "SURGE-1"); !errors.Is(err, ErrRunConflict) {
		t.Fatalf("expected conflict on second claim, got %v", err)
	}

	if err := store.UpdateProgress(ctx, "SURGE-1", "Running Doctor Agent..."); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	if err := store.MarkCompleted(ctx, "SURGE-1", Result{"forecast": map[string]any{"zone": "Mumbai-West"}}); err != nil {
		t.Fatalf("mark completed: %v", err)
	}
	got, err := store.Get(ctx, "SURGE-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusCompleted || got.Progress != "Analysis complete" {
		t.Fatalf("unexpected completed run: %+v", got)
	}
	if got.Result.Forecast()["zone"] != "Mumbai-West" {
		t.Fatalf("unexpected result: %+v", got.Result)
	}
	if err := store.UpdateProgress(ctx, "SURGE-1", "late"); !errors.Is(err, ErrRunConflict) {
		t.Fatalf("expected conflict updating finished run, got %v", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Create(ctx, newTestRun("SURGE-1", "Goa")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Claim(ctx, "SURGE-1"); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := store.MarkCompleted(ctx, "SURGE-1", Result{"messages": []any{"a"}}); err != nil {
		t.Fatalf("complete: %v", err)
	}

	first, _ := store.Get(ctx, "SURGE-1")
	first.Status = StatusFailed
	first.Result["messages"] = "mutated"

	second, _ := store.Get(ctx, "SURGE-1")
	if second.Status != StatusCompleted {
		t.Fatalf("store was mutated through returned copy: %+v", second)
	}
	if _, ok := second.Result["messages"].([]any); !ok {
		t.Fatalf("result was mutated through returned copy: %+v", second.Result)
	}
}

func TestMemoryStoreMarkFailedRequeuesOrTerminates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Create(ctx, newTestRun("SURGE-1", "Goa")); err != nil {
		t.Fatalf("create: %v", err)
	}

	for attempt := 1; attempt <= 2; attempt++ {
		if _, err := store.Claim(ctx, "SURGE-1"); err != nil {
			t.Fatalf("claim %d: %v", attempt, err)
		}
		if err := store.MarkFailed(ctx, "SURGE-1", CodePipeline, "boom", false); err != nil {
			t.Fatalf("mark failed: %v", err)
		}
		run, _ := store.Get(ctx, "SURGE-1")
		if run.Status != StatusPending || run.Progress != "Retrying..." || run.LastError != "boom" {
			t.Fatalf("unexpected requeued run: %+v", run)
		}
	}

	if _, err := store.Claim(ctx, "SURGE-1"); !errors.Is(err, ErrRunExhausted) {
		t.Fatalf("expected exhausted after max retries, got %v", err)
	}
	if err := store.MarkFailed(ctx, "SURGE-1", CodeRunExhausted, "gave up", true); err != nil {
		t.Fatalf("mark terminal: %v", err)
	}
	run, _ := store.Get(ctx, "SURGE-1")
	if run.Status != StatusFailed || run.ErrorCode != string(CodeRunExhausted) {
		t.Fatalf("unexpected failed run: %+v", run)
	}
}

func TestMemoryStoreListFiltersAndOrder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	base := time.UnixMilli(1_700_000_000_000)
	tick := 0
	store.now = func() time.Time {
		// 前两个运行共享同一毫秒，验证同一时刻的运行保持提交顺序。
		if tick < 2 {
			tick++
			return base
		}
		tick++
		return base.Add(time.Duration(tick) * time.Millisecond)
	}

	for _, run := range []*Run{
		newTestRun("A", "Goa"),
		newTestRun("B", "Goa"),
		newTestRun("C", "Mumbai-West"),
		newTestRun("D", "Goa"),
	} {
		if err := store.Create(ctx, run); err != nil {
			t.Fatalf("create %s: %v", run.ID, err)
		}
	}
	for _, id := range []string{"A", "B"} {
		if _, err := store.Claim(ctx, id); err != nil {
			t.Fatalf("claim %s: %v", id, err)
		}
		if err := store.MarkCompleted(ctx, id, Result{}); err != nil {
			t.Fatalf("complete %s: %v", id, err)
		}
	}

	all, err := store.List(ctx, ListOptions{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if ids := runIDs(all); ids != "A,B,C,D" {
		t.Fatalf("expected submission order, got %s", ids)
	}

	newest, _ := store.List(ctx, ListOptions{Order: NewestFirst})
	if ids := runIDs(newest); ids != "D,C,B,A" {
		t.Fatalf("expected newest first, got %s", ids)
	}

	latest, _ := store.List(ctx, ListOptions{Zone: "Goa", Statuses: []Status{StatusCompleted}, Order: NewestFirst, Limit: 1})
	if ids := runIDs(latest); ids != "B" {
		t.Fatalf("expected latest completed B, got %s", ids)
	}

	pending, _ := store.List(ctx, ListOptions{Statuses: []Status{StatusPending}})
	if ids := runIDs(pending); ids != "C,D" {
		t.Fatalf("unexpected pending runs %s", ids)
	}
}

func TestMemoryStoreApprovals(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.RecordApproval(ctx, Approval{RunID: "missing"}); !errors.Is(err, ErrRunNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.Create(ctx, newTestRun("SURGE-1", "Goa")); err != nil {
		t.Fatalf("create: %v", err)
	}
	plan := "halve the order"
	if err := store.RecordApproval(ctx, Approval{RunID: "SURGE-1", Approved: true, ModifiedPlan: &plan}); err != nil {
		t.Fatalf("record: %v", err)
	}
	approvals := store.Approvals("SURGE-1")
	if len(approvals) != 1 || !approvals[0].Approved || *approvals[0].ModifiedPlan != plan || approvals[0].DecidedAt == 0 {
		t.Fatalf("unexpected approvals: %+v", approvals)
	}
}

func runIDs(runs []*Run) string {
	out := ""
	for i, run := range runs {
		if i > 0 {
			out += ","
		}
		out += run.ID
	}
	return out
}
