package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/hpungsan/muse/internal/errors"
	"github.com/hpungsan/muse/internal/record"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := Init(t.TempDir())
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func stringPtr(s string) *string {
	return &s
}

func TestEnsureCredits_Idempotent(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := EnsureCredits(ctx, db, 10, 100); err != nil {
		t.Fatalf("EnsureCredits failed: %v", err)
	}
	if err := EnsureCredits(ctx, db, 99, 200); err != nil {
		t.Fatalf("second EnsureCredits failed: %v", err)
	}

	c, err := GetCredits(ctx, db)
	if err != nil {
		t.Fatalf("GetCredits failed: %v", err)
	}
	if c.Balance != 10 {
		t.Errorf("Balance = %d, want 10 (first insert wins)", c.Balance)
	}
	if c.LastResetAt != 100 {
		t.Errorf("LastResetAt = %d, want 100", c.LastResetAt)
	}
}

func TestGetCredits_Uninitialized(t *testing.T) {
	db := openTestDB(t)

	_, err := GetCredits(context.Background(), db)
	if !errors.Is(err, errors.ErrInternal) {
		t.Errorf("GetCredits error = %v, want INTERNAL", err)
	}
}

func TestTryDebit(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := EnsureCredits(ctx, db, 3, 0); err != nil {
		t.Fatalf("EnsureCredits failed: %v", err)
	}

	ok, err := TryDebit(ctx, db, 2)
	if err != nil || !ok {
		t.Fatalf("TryDebit(2) = %v, %v; want true", ok, err)
	}

	ok, err = TryDebit(ctx, db, 2)
	if err != nil {
		t.Fatalf("TryDebit error: %v", err)
	}
	if ok {
		t.Error("TryDebit(2) on balance 1 should fail")
	}

	c, _ := GetCredits(ctx, db)
	if c.Balance != 1 {
		t.Errorf("Balance = %d, want 1", c.Balance)
	}
}

func TestTryDebit_ConcurrentNeverOverdraws(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := EnsureCredits(ctx, db, 5, 0); err != nil {
		t.Fatalf("EnsureCredits failed: %v", err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := TryDebit(ctx, db, 1)
			if err != nil {
				t.Errorf("TryDebit error: %v", err)
				return
			}
			if ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != 5 {
		t.Errorf("successful debits = %d, want 5", wins)
	}
	c, _ := GetCredits(ctx, db)
	if c.Balance != 0 {
		t.Errorf("Balance = %d, want 0", c.Balance)
	}
}

func TestAdjustBalance(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := AdjustBalance(ctx, db, 1); !errors.Is(err, errors.ErrInternal) {
		t.Errorf("AdjustBalance before EnsureCredits = %v, want INTERNAL", err)
	}

	if err := EnsureCredits(ctx, db, 2, 0); err != nil {
		t.Fatalf("EnsureCredits failed: %v", err)
	}
	if err := AdjustBalance(ctx, db, 3); err != nil {
		t.Fatalf("AdjustBalance failed: %v", err)
	}
	if err := AdjustBalance(ctx, db, -1); err != nil {
		t.Fatalf("AdjustBalance failed: %v", err)
	}

	c, _ := GetCredits(ctx, db)
	if c.Balance != 4 {
		t.Errorf("Balance = %d, want 4", c.Balance)
	}
}

func TestRefundCredits_Ceiling(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := RefundCredits(ctx, db, 1, 10); !errors.Is(err, errors.ErrInternal) {
		t.Errorf("RefundCredits before EnsureCredits = %v, want INTERNAL", err)
	}

	if err := EnsureCredits(ctx, db, 8, 0); err != nil {
		t.Fatalf("EnsureCredits failed: %v", err)
	}

	tests := []struct {
		name    string
		amount  int
		ceiling int
		want    int
	}{
		{"below ceiling", 1, 10, 9},
		{"capped at ceiling", 5, 10, 10},
		{"above ceiling stays", 1, 6, 10},
	}
	for _, tt := range tests {
		if err := RefundCredits(ctx, db, tt.amount, tt.ceiling); err != nil {
			t.Fatalf("%s: RefundCredits failed: %v", tt.name, err)
		}
		c, _ := GetCredits(ctx, db)
		if c.Balance != tt.want {
			t.Errorf("%s: Balance = %d, want %d", tt.name, c.Balance, tt.want)
		}
	}
}

func TestResetCredits_CompareAndSet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	if err := EnsureCredits(ctx, db, 1, 100); err != nil {
		t.Fatalf("EnsureCredits failed: %v", err)
	}

	ok, err := ResetCredits(ctx, db, 10, 100, 200)
	if err != nil || !ok {
		t.Fatalf("ResetCredits = %v, %v; want true", ok, err)
	}

	// A second process that also saw last_reset_at=100 loses.
	ok, err = ResetCredits(ctx, db, 10, 100, 201)
	if err != nil {
		t.Fatalf("ResetCredits error: %v", err)
	}
	if ok {
		t.Error("stale ResetCredits should not apply")
	}

	c, _ := GetCredits(ctx, db)
	if c.Balance != 10 || c.LastResetAt != 200 {
		t.Errorf("credits = %+v, want balance 10 reset 200", c)
	}
}

func newTestGeneration(id, mode string, createdAt int64) *Generation {
	return &Generation{
		ID:        id,
		Mode:      mode,
		Status:    StatusStreaming,
		Input:     json.RawMessage(`{"settings":{"niche":"coffee"}}`),
		CreatedAt: createdAt,
	}
}

func TestInsertFinishGetGeneration(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	g := newTestGeneration("01GEN1", "ideas", time.Now().Unix())
	if err := InsertGeneration(ctx, db, g); err != nil {
		t.Fatalf("InsertGeneration failed: %v", err)
	}

	got, err := GetGeneration(ctx, db, "01GEN1")
	if err != nil {
		t.Fatalf("GetGeneration failed: %v", err)
	}
	if got.Status != StatusStreaming {
		t.Errorf("Status = %q, want streaming", got.Status)
	}
	if got.FinishedAt != nil {
		t.Error("FinishedAt should be nil before finish")
	}
	if string(got.Input) != `{"settings":{"niche":"coffee"}}` {
		t.Errorf("Input = %s", got.Input)
	}

	env, err := record.Wrap(record.Idea{ID: "01IDEA", Title: "Pour-over tips", Description: "d"})
	if err != nil {
		t.Fatalf("Wrap failed: %v", err)
	}
	finished := time.Now().Unix()
	g.Status = StatusCompleted
	g.CreditsUsed = 1
	g.RecordCount = 1
	g.DroppedCount = 2
	g.Records = []record.Envelope{env}
	g.FinishedAt = &finished
	if err := FinishGeneration(ctx, db, g); err != nil {
		t.Fatalf("FinishGeneration failed: %v", err)
	}

	got, err = GetGeneration(ctx, db, "01GEN1")
	if err != nil {
		t.Fatalf("GetGeneration failed: %v", err)
	}
	if got.Status != StatusCompleted || got.CreditsUsed != 1 || got.DroppedCount != 2 {
		t.Errorf("generation = %+v", got)
	}
	if len(got.Records) != 1 || got.Records[0].Kind != record.KindIdea {
		t.Fatalf("Records = %+v", got.Records)
	}
	r, err := record.Unwrap(got.Records[0])
	if err != nil {
		t.Fatalf("Unwrap failed: %v", err)
	}
	if r.(record.Idea).ID != "01IDEA" {
		t.Errorf("record ID = %q, want 01IDEA", r.(record.Idea).ID)
	}
	if got.FinishedAt == nil || *got.FinishedAt != finished {
		t.Errorf("FinishedAt = %v, want %d", got.FinishedAt, finished)
	}
}

func TestFinishGeneration_Failed(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	g := newTestGeneration("01GEN2", "caption", 1)
	if err := InsertGeneration(ctx, db, g); err != nil {
		t.Fatalf("InsertGeneration failed: %v", err)
	}

	g.Status = StatusFailed
	g.ErrorCode = stringPtr("REQUEST_FAILED")
	g.ErrorMessage = stringPtr("generation request failed: HTTP status 500")
	if err := FinishGeneration(ctx, db, g); err != nil {
		t.Fatalf("FinishGeneration failed: %v", err)
	}

	got, _ := GetGeneration(ctx, db, "01GEN2")
	if got.ErrorCode == nil || *got.ErrorCode != "REQUEST_FAILED" {
		t.Errorf("ErrorCode = %v", got.ErrorCode)
	}
	if got.Records != nil {
		t.Errorf("Records = %v, want nil", got.Records)
	}
}

func TestFinishGeneration_NotFound(t *testing.T) {
	db := openTestDB(t)

	err := FinishGeneration(context.Background(), db, &Generation{ID: "missing", Status: StatusFailed})
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("FinishGeneration error = %v, want NOT_FOUND", err)
	}
}

func TestGetGeneration_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := GetGeneration(context.Background(), db, "nope")
	if !errors.Is(err, errors.ErrNotFound) {
		t.Errorf("GetGeneration error = %v, want NOT_FOUND", err)
	}
}

func TestListGenerations(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	for i, g := range []*Generation{
		newTestGeneration("01A", "ideas", 100),
		newTestGeneration("01B", "caption", 200),
		newTestGeneration("01C", "ideas", 300),
		newTestGeneration("01D", "ideas", 300),
	} {
		if err := InsertGeneration(ctx, db, g); err != nil {
			t.Fatalf("InsertGeneration %d failed: %v", i, err)
		}
	}

	items, total, err := ListGenerations(ctx, db, "", 10, 0)
	if err != nil {
		t.Fatalf("ListGenerations failed: %v", err)
	}
	if total != 4 {
		t.Errorf("total = %d, want 4", total)
	}
	wantOrder := []string{"01D", "01C", "01B", "01A"}
	for i, id := range wantOrder {
		if items[i].ID != id {
			t.Errorf("items[%d].ID = %q, want %q", i, items[i].ID, id)
		}
	}

	items, total, err = ListGenerations(ctx, db, "ideas", 2, 1)
	if err != nil {
		t.Fatalf("ListGenerations failed: %v", err)
	}
	if total != 3 {
		t.Errorf("filtered total = %d, want 3", total)
	}
	if len(items) != 2 || items[0].ID != "01C" || items[1].ID != "01A" {
		t.Errorf("page = %v", []string{items[0].ID, items[1].ID})
	}
}

func TestListGenerations_Empty(t *testing.T) {
	db := openTestDB(t)

	items, total, err := ListGenerations(context.Background(), db, "", 20, 0)
	if err != nil {
		t.Fatalf("ListGenerations failed: %v", err)
	}
	if total != 0 || items == nil || len(items) != 0 {
		t.Errorf("items = %v, total = %d; want empty non-nil slice", items, total)
	}
}
