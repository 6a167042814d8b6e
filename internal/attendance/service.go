package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrAlreadyPresent rejects a second submission for the same student and
// calendar date. Expected and user visible, not an error state.
var ErrAlreadyPresent = errors.New("already present today")

// ManualTokenPrefix marks records entered without a scan.
const ManualTokenPrefix = "MANUAL-"

// Ledger is the persistence boundary for attendance records.
type Ledger interface {
	FindByStudentAndDate(ctx context.Context, studentID, date string) (*Record, error)
	Insert(ctx context.Context, rec Record) (Record, error)
	ListByStudent(ctx context.Context, studentID string) ([]Record, error)
	ListByDate(ctx context.Context, date string) ([]Record, error)
	ListAll(ctx context.Context) ([]Record, error)
	DeleteAll(ctx context.Context) error
}

// Service coordinates attendance submissions and enforces the
// at-most-once-per-day rule. It is the only writer of attendance state.
type Service struct {
	ledger Ledger
	loc    *time.Location
	now    func() time.Time
}

// NewService creates a recorder anchored to the reporting timezone.
func NewService(ledger Ledger, loc *time.Location) *Service {
	if loc == nil {
		loc = time.Local
	}
	return &Service{ledger: ledger, loc: loc, now: time.Now}
}

// Submit records a scanned attendance event. If the student already has a
// record for today's calendar date the submission is rejected with
// ErrAlreadyPresent and nothing is written.
func (s *Service) Submit(ctx context.Context, studentID, studentName, scannedToken string) (Record, error) {
	if studentID == "" {
		return Record{}, errors.New("student id required")
	}

	now := s.now()
	today := DateIn(now, s.loc)

	existing, err := s.ledger.FindByStudentAndDate(ctx, studentID, today)
	if err != nil {
		return Record{}, fmt.Errorf("dedup lookup: %w", err)
	}
	if existing != nil {
		return *existing, ErrAlreadyPresent
	}

	rec := Record{
		StudentID:   studentID,
		StudentName: studentName,
		Date:        today,
		Time:        TimeIn(now, s.loc),
		When:        now,
		SourceToken: scannedToken,
		Status:      StatusPresent,
	}
	return s.ledger.Insert(ctx, rec)
}

// SubmitManual records attendance without a scanned code. The only difference
// from Submit is the synthesized provenance token.
func (s *Service) SubmitManual(ctx context.Context, studentID, studentName string) (Record, error) {
	token := fmt.Sprintf("%s%d", ManualTokenPrefix, s.now().UnixMilli())
	return s.Submit(ctx, studentID, studentName, token)
}

// Today returns today's canonical calendar date.
func (s *Service) Today() string {
	return DateIn(s.now(), s.loc)
}

// ClearAll wipes every record. Administrative reset, teacher only.
func (s *Service) ClearAll(ctx context.Context) error {
	return s.ledger.DeleteAll(ctx)
}
