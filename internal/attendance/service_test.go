package attendance

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

var jakarta = time.FixedZone("WIB", 7*3600)

func newTestService(t *testing.T) (*Service, *MemoryLedger, *time.Time) {
	t.Helper()
	ledger := NewMemoryLedger()
	svc := NewService(ledger, jakarta)
	now := time.Date(2024, 3, 11, 8, 0, 0, 0, jakarta)
	svc.now = func() time.Time { return now }
	return svc, ledger, &now
}

func TestSubmitCreatesSingleRecord(t *testing.T) {
	svc, ledger, _ := newTestService(t)
	ctx := context.Background()

	rec, err := svc.Submit(ctx, "1001", "A", "ABSENSI-1700000000-xyz")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if rec.Status != StatusPresent {
		t.Errorf("status = %q, want %q", rec.Status, StatusPresent)
	}
	if rec.Date != "2024-03-11" {
		t.Errorf("date = %q, want 2024-03-11", rec.Date)
	}
	if rec.SourceToken != "ABSENSI-1700000000-xyz" {
		t.Errorf("source token = %q", rec.SourceToken)
	}

	all, _ := ledger.ListAll(ctx)
	if len(all) != 1 {
		t.Fatalf("ledger has %d records, want 1", len(all))
	}
}

func TestSubmitTwiceSameDayRejected(t *testing.T) {
	svc, ledger, now := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, "1001", "A", "ABSENSI-1700000000-xyz"); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	*now = now.Add(time.Hour) // 09:00 same day
	existing, err := svc.Submit(ctx, "1001", "A", "ABSENSI-1700003600-abc")
	if !errors.Is(err, ErrAlreadyPresent) {
		t.Fatalf("second submit err = %v, want ErrAlreadyPresent", err)
	}
	if existing.SourceToken != "ABSENSI-1700000000-xyz" {
		t.Errorf("rejection should surface the existing record, got token %q", existing.SourceToken)
	}

	all, _ := ledger.ListAll(ctx)
	if len(all) != 1 {
		t.Fatalf("ledger has %d records after duplicate, want 1", len(all))
	}
}

func TestSubmitNextDayAccepted(t *testing.T) {
	svc, ledger, now := newTestService(t)
	ctx := context.Background()

	if _, err := svc.Submit(ctx, "1001", "A", "tok-1"); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	*now = now.Add(24 * time.Hour)
	if _, err := svc.Submit(ctx, "1001", "A", "tok-2"); err != nil {
		t.Fatalf("next-day submit: %v", err)
	}

	all, _ := ledger.ListAll(ctx)
	if len(all) != 2 {
		t.Fatalf("ledger has %d records, want 2", len(all))
	}
}

func TestSubmitDistinctStudentsSameDay(t *testing.T) {
	svc, ledger, _ := newTestService(t)
	ctx := context.Background()

	for _, id := range []string{"1001", "1002", "1003"} {
		if _, err := svc.Submit(ctx, id, "student "+id, "tok-"+id); err != nil {
			t.Fatalf("submit %s: %v", id, err)
		}
	}
	all, _ := ledger.ListAll(ctx)
	if len(all) != 3 {
		t.Fatalf("ledger has %d records, want 3", len(all))
	}
}

func TestSubmitManualSentinel(t *testing.T) {
	svc, _, _ := newTestService(t)

	rec, err := svc.SubmitManual(context.Background(), "1001", "A")
	if err != nil {
		t.Fatalf("manual submit: %v", err)
	}
	if !strings.HasPrefix(rec.SourceToken, ManualTokenPrefix) {
		t.Errorf("source token = %q, want %q prefix", rec.SourceToken, ManualTokenPrefix)
	}
}

func TestSubmitRequiresStudentID(t *testing.T) {
	svc, _, _ := newTestService(t)
	if _, err := svc.Submit(context.Background(), "", "A", "tok"); err == nil {
		t.Fatal("expected error for empty student id")
	}
}

func TestDedupKeyUsesReportingTimezone(t *testing.T) {
	ledger := NewMemoryLedger()
	svc := NewService(ledger, jakarta)

	// 23:30 and 00:30 UTC straddle midnight in UTC but not in the
	// reporting zone; both must land on the same kiosk date.
	first := time.Date(2024, 3, 11, 23, 30, 0, 0, time.UTC)
	svc.now = func() time.Time { return first }
	if _, err := svc.Submit(context.Background(), "1001", "A", "tok-1"); err != nil {
		t.Fatalf("first submit: %v", err)
	}

	svc.now = func() time.Time { return first.Add(time.Hour) }
	if _, err := svc.Submit(context.Background(), "1001", "A", "tok-2"); !errors.Is(err, ErrAlreadyPresent) {
		t.Fatalf("err = %v, want ErrAlreadyPresent (both instants are 2024-03-12 WIB)", err)
	}
}

func TestClearAll(t *testing.T) {
	svc, ledger, _ := newTestService(t)
	ctx := context.Background()

	_, _ = svc.Submit(ctx, "1001", "A", "tok")
	if err := svc.ClearAll(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	all, _ := ledger.ListAll(ctx)
	if len(all) != 0 {
		t.Fatalf("ledger has %d records after clear, want 0", len(all))
	}
	// After the reset the student can submit again.
	if _, err := svc.Submit(ctx, "1001", "A", "tok-2"); err != nil {
		t.Fatalf("submit after clear: %v", err)
	}
}
