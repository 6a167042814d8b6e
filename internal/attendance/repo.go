package attendance

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository persists attendance data in Postgres. The unique index on
// (student_id, attend_date) backs the dedup key when several kiosks write
// concurrently; the service-level check is the optimistic fast path.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// FindByStudentAndDate returns the record for the dedup key, or nil.
func (r *Repository) FindByStudentAndDate(ctx context.Context, studentID, date string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, student_id, student_name, attend_date, attend_time, occurred_at, source_token, status
		FROM attendance_records
		WHERE student_id = $1 AND attend_date = $2
		LIMIT 1
	`, studentID, date)
	var rec Record
	if err := scanRecord(row, &rec); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

// Insert writes a new record. A unique-violation from a concurrent writer is
// reported as ErrAlreadyPresent so callers see one failure mode.
func (r *Repository) Insert(ctx context.Context, rec Record) (Record, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Status == "" {
		rec.Status = StatusPresent
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendance_records (id, student_id, student_name, attend_date, attend_time, occurred_at, source_token, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, rec.ID, rec.StudentID, rec.StudentName, rec.Date, rec.Time, rec.When, rec.SourceToken, rec.Status)
	if err != nil {
		if isUniqueViolation(err) {
			return Record{}, ErrAlreadyPresent
		}
		return Record{}, err
	}
	return rec, nil
}

// ListByStudent returns one student's records, newest first.
func (r *Repository) ListByStudent(ctx context.Context, studentID string) ([]Record, error) {
	return r.list(ctx, `
		SELECT id, student_id, student_name, attend_date, attend_time, occurred_at, source_token, status
		FROM attendance_records
		WHERE student_id = $1
		ORDER BY occurred_at DESC
	`, studentID)
}

// ListByDate returns the records for one calendar date, newest first.
func (r *Repository) ListByDate(ctx context.Context, date string) ([]Record, error) {
	return r.list(ctx, `
		SELECT id, student_id, student_name, attend_date, attend_time, occurred_at, source_token, status
		FROM attendance_records
		WHERE attend_date = $1
		ORDER BY occurred_at DESC
	`, date)
}

// ListAll returns every record in store order.
func (r *Repository) ListAll(ctx context.Context) ([]Record, error) {
	return r.list(ctx, `
		SELECT id, student_id, student_name, attend_date, attend_time, occurred_at, source_token, status
		FROM attendance_records
		ORDER BY occurred_at DESC
	`)
}

// DeleteAll removes every record. Administrative reset only.
func (r *Repository) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM attendance_records`)
	return err
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []Record
	for rows.Next() {
		var rec Record
		if err := scanRecord(rows, &rec); err != nil {
			return nil, err
		}
		res = append(res, rec)
	}
	return res, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner, rec *Record) error {
	return row.Scan(&rec.ID, &rec.StudentID, &rec.StudentName, &rec.Date, &rec.Time, &rec.When, &rec.SourceToken, &rec.Status)
}

// isUniqueViolation matches Postgres error 23505 without depending on the
// driver's error type here.
func isUniqueViolation(err error) bool {
	type coder interface{ SQLState() string }
	var c coder
	if errors.As(err, &c) {
		return c.SQLState() == "23505"
	}
	return false
}

// Student is a registered student account.
type Student struct {
	ID           string    `json:"id"`
	NIS          string    `json:"nis"`
	Name         string    `json:"name"`
	Class        string    `json:"class,omitempty"`
	Major        string    `json:"major,omitempty"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// ListStudents returns all students ordered by enrollment number.
func (r *Repository) ListStudents(ctx context.Context) ([]Student, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, nis, name, class, major, password_hash, created_at
		FROM students
		ORDER BY nis
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var students []Student
	for rows.Next() {
		var s Student
		if err := rows.Scan(&s.ID, &s.NIS, &s.Name, &s.Class, &s.Major, &s.PasswordHash, &s.CreatedAt); err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, rows.Err()
}

// GetStudent returns a single student by enrollment number, or nil.
func (r *Repository) GetStudent(ctx context.Context, nis string) (*Student, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, nis, name, class, major, password_hash, created_at
		FROM students WHERE nis = $1
	`, nis)
	var s Student
	if err := row.Scan(&s.ID, &s.NIS, &s.Name, &s.Class, &s.Major, &s.PasswordHash, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

// UpsertStudent creates or updates a student account.
func (r *Repository) UpsertStudent(ctx context.Context, s Student) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO students (id, nis, name, class, major, password_hash)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (nis) DO UPDATE SET
			name = EXCLUDED.name,
			class = EXCLUDED.class,
			major = EXCLUDED.major,
			password_hash = CASE WHEN EXCLUDED.password_hash <> '' THEN EXCLUDED.password_hash ELSE students.password_hash END,
			updated_at = NOW()
	`, s.ID, s.NIS, s.Name, s.Class, s.Major, s.PasswordHash)
	return err
}

// Teacher is a dashboard operator account.
type Teacher struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	Name         string `json:"name"`
	PasswordHash string `json:"-"`
}

// GetTeacher returns a teacher account by username, or nil.
func (r *Repository) GetTeacher(ctx context.Context, username string) (*Teacher, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, username, name, password_hash
		FROM teachers WHERE username = $1
	`, username)
	var t Teacher
	if err := row.Scan(&t.ID, &t.Username, &t.Name, &t.PasswordHash); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &t, nil
}

// DeleteStudent removes a student account. Reports whether a row was removed.
func (r *Repository) DeleteStudent(ctx context.Context, nis string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM students WHERE nis = $1`, nis)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
