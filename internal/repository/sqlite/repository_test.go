package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/julianbeese/tennis_bot/internal/domain"
)

func newRepo(t *testing.T) *Repository {
	t.Helper()
	repo, err := New(":memory:")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

var day = time.Date(2026, 10, 22, 0, 0, 0, 0, time.Local)

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)
	clock := time.Date(2026, 10, 16, 8, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { clock = clock.Add(time.Minute); return clock }

	for _, id := range []string{"run-a", "run-b"} {
		if err := repo.RecordRunStart(ctx, &domain.RunRecord{RunID: id, TargetDate: day}); err != nil {
			t.Fatalf("RecordRunStart(%s): %v", id, err)
		}
	}
	if err := repo.RecordRunEnd(ctx, "run-a", domain.RunStatusFailed, "auth", 1); err != nil {
		t.Fatalf("RecordRunEnd: %v", err)
	}
	if err := repo.RecordRunEnd(ctx, "missing", domain.RunStatusFailed, "", 1); !errors.Is(err, sql.ErrNoRows) {
		t.Errorf("unknown run: err = %v", err)
	}

	runs, err := repo.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	if runs[0].RunID != "run-b" || runs[0].Status != domain.RunStatusRunning || !runs[0].FinishedAt.IsZero() {
		t.Errorf("newest = %+v", runs[0])
	}
	a := runs[1]
	if a.Status != domain.RunStatusFailed || a.Reason != "auth" || a.Attempts != 1 || a.FinishedAt.IsZero() {
		t.Errorf("run-a = %+v", a)
	}
	if !a.TargetDate.Equal(day) {
		t.Errorf("target date = %v, want %v", a.TargetDate, day)
	}

	if limited, _ := repo.RecentRuns(ctx, 1); len(limited) != 1 {
		t.Errorf("limit ignored: %d runs", len(limited))
	}
}

func TestBookings(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	if b, err := repo.LatestBooking(ctx); err != nil || b != nil {
		t.Fatalf("LatestBooking on empty db = %v, %v", b, err)
	}
	if ok, _ := repo.HasBookingFor(ctx, day); ok {
		t.Fatal("empty db has a booking")
	}

	if err := repo.RecordRunStart(ctx, &domain.RunRecord{RunID: "run-a", TargetDate: day}); err != nil {
		t.Fatal(err)
	}
	booking := &domain.BookingRecord{
		RunID: "run-a", Location: "Poliveau", Hour: "18", TargetDate: day,
		Address: "39 rue Poliveau", DateText: "de 18h00 à 19h00", CourtText: "Court N°5",
	}
	if err := repo.RecordBooking(ctx, booking); err != nil {
		t.Fatalf("RecordBooking: %v", err)
	}
	if booking.ID == 0 {
		t.Error("ID not set")
	}

	ok, err := repo.HasBookingFor(ctx, day)
	if err != nil || !ok {
		t.Errorf("HasBookingFor = %v, %v", ok, err)
	}
	if ok, _ := repo.HasBookingFor(ctx, day.AddDate(0, 0, 1)); ok {
		t.Error("booking leaked to the next day")
	}

	latest, err := repo.LatestBooking(ctx)
	if err != nil || latest == nil {
		t.Fatalf("LatestBooking = %v, %v", latest, err)
	}
	if latest.Location != "Poliveau" || latest.CourtText != "Court N°5" || !latest.TargetDate.Equal(day) {
		t.Errorf("latest = %+v", latest)
	}

	orphan := &domain.BookingRecord{RunID: "nope", Location: "x", Hour: "9", TargetDate: day}
	if err := repo.RecordBooking(ctx, orphan); err == nil {
		t.Error("booking without run must violate the foreign key")
	}
}

func TestActivity(t *testing.T) {
	ctx := context.Background()
	repo := newRepo(t)

	entries := []*domain.ActivityLog{
		{RunID: "run-a", Action: domain.ActionLogin, Details: "player@example.com"},
		{RunID: "run-a", Action: domain.ActionError, ErrorMsg: "captcha not solved"},
		{RunID: "run-b", Action: domain.ActionSearch},
	}
	for _, e := range entries {
		if err := repo.LogActivity(ctx, e); err != nil {
			t.Fatalf("LogActivity: %v", err)
		}
	}

	got, err := repo.Activity(ctx, "run-a")
	if err != nil {
		t.Fatalf("Activity: %v", err)
	}
	if len(got) != 2 || got[0].Action != domain.ActionLogin || got[1].ErrorMsg != "captcha not solved" {
		t.Errorf("activity = %+v", got)
	}
}

func TestNewCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "data", "tennisbot.db")
	repo, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer repo.Close()

	if err := repo.LogActivity(context.Background(), &domain.ActivityLog{Action: domain.ActionRetry}); err != nil {
		t.Errorf("LogActivity: %v", err)
	}
}
