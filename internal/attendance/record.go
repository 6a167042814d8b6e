package attendance

import (
	"encoding/json"
	"time"
)

// StatusPresent is the only status this domain models.
const StatusPresent = "present"

// Record is one student's presence event for one calendar date.
type Record struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student_id"`
	StudentName string    `json:"student_name"`
	Date        string    `json:"date"`
	Time        string    `json:"time"`
	When        time.Time `json:"when"`
	SourceToken string    `json:"source_token"`
	Status      string    `json:"status"`
}

// Key returns the deduplication key: at most one record may exist per key.
func (r Record) Key() string {
	return r.StudentID + "|" + r.Date
}

// DateIn formats t as the canonical calendar date in the reporting timezone.
// Every "today" comparison and every dedup key goes through this one function.
func DateIn(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

// TimeIn formats t as the canonical wall time in the reporting timezone.
func TimeIn(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("15:04:05")
}

// looseRecord mirrors the upstream wire shapes. Field names drifted across
// revisions of the source system, so every identity-bearing field has aliases.
type looseRecord struct {
	ID          string `json:"id"`
	IDAbsen     string `json:"id_absen"`
	StudentID   string `json:"student_id"`
	NIS         string `json:"nis"`
	StudentName string `json:"student_name"`
	NamaSiswa   string `json:"nama_siswa"`
	Nama        string `json:"nama"`
	Name        string `json:"name"`
	Date        string `json:"date"`
	Tanggal     string `json:"tanggal"`
	Time        string `json:"time"`
	Waktu       string `json:"waktu"`
	Jam         string `json:"jam"`
	When        string `json:"when"`
	WaktuAbsen  string `json:"waktu_absen"`
	SourceToken string `json:"source_token"`
	TokenQR     string `json:"token_qr"`
	Status      string `json:"status"`
	Keterangan  string `json:"keterangan"`
}

// NormalizeRecord maps a loosely shaped upstream record onto the canonical
// Record. This is the single place alias guessing is allowed; everything past
// the ingestion boundary sees only the canonical type.
func NormalizeRecord(raw json.RawMessage, loc *time.Location) (Record, error) {
	var l looseRecord
	if err := json.Unmarshal(raw, &l); err != nil {
		return Record{}, err
	}

	rec := Record{
		ID:          firstOf(l.ID, l.IDAbsen),
		StudentID:   firstOf(l.StudentID, l.NIS),
		StudentName: firstOf(l.StudentName, l.NamaSiswa, l.Nama, l.Name),
		Date:        firstOf(l.Date, l.Tanggal),
		Time:        firstOf(l.Time, l.Waktu, l.Jam),
		SourceToken: firstOf(l.SourceToken, l.TokenQR),
		Status:      firstOf(l.Status, l.Keterangan, StatusPresent),
	}

	if ts := firstOf(l.When, l.WaktuAbsen); ts != "" {
		if parsed, ok := parseUpstreamTime(ts, loc); ok {
			rec.When = parsed
		}
	}
	if rec.When.IsZero() && rec.Date != "" {
		if parsed, ok := parseUpstreamTime(rec.Date+" "+rec.Time, loc); ok {
			rec.When = parsed
		} else if parsed, err := time.ParseInLocation("2006-01-02", rec.Date, loc); err == nil {
			rec.When = parsed
		}
	}
	if !rec.When.IsZero() {
		if rec.Date == "" {
			rec.Date = DateIn(rec.When, loc)
		}
		if rec.Time == "" {
			rec.Time = TimeIn(rec.When, loc)
		}
	}
	return rec, nil
}

func parseUpstreamTime(s string, loc *time.Location) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02 15:04:05", "2006-01-02 15:04"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func firstOf(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
