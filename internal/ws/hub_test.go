package ws

import (
	"encoding/json"
	"testing"
	"time"

	"absengo/internal/attendance"
)

func recvOrFail(t *testing.T, ch chan []byte) []byte {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no broadcast received")
		return nil
	}
}

func TestBroadcastRecordReachesClients(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	a := NewClient(hub, nil)
	b := NewClient(hub, nil)
	hub.Register(a)
	hub.Register(b)

	rec := attendance.Record{
		StudentID:   "12345",
		StudentName: "Budi Santoso",
		Date:        "2026-09-01",
		Time:        "07:15:00",
		Status:      attendance.StatusPresent,
	}
	hub.BroadcastRecord(rec, 7)

	for _, client := range []*Client{a, b} {
		var msg struct {
			Type    string `json:"type"`
			Payload struct {
				Record     attendance.Record `json:"record"`
				TodayCount int               `json:"today_count"`
			} `json:"payload"`
		}
		if err := json.Unmarshal(recvOrFail(t, client.send), &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if msg.Type != "attendance:new" {
			t.Errorf("type = %q, want attendance:new", msg.Type)
		}
		if msg.Payload.Record.StudentID != "12345" || msg.Payload.TodayCount != 7 {
			t.Errorf("payload = %+v", msg.Payload)
		}
	}
}

func TestSendDropsWhenClientSlow(t *testing.T) {
	c := &Client{send: make(chan []byte, 1)}
	c.Send([]byte("one"))
	c.Send([]byte("two")) // buffer full, dropped instead of blocking

	if got := string(<-c.send); got != "one" {
		t.Errorf("queued = %q, want first message kept", got)
	}
	select {
	case msg := <-c.send:
		t.Errorf("unexpected second message %q", msg)
	default:
	}
}
