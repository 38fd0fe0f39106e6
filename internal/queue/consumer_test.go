package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestHandleMessage_AppendsLines(t *testing.T) {
	dir := t.TempDir()
	c := &Consumer{Queue: GiftQueueName, LogDir: filepath.Join(dir, "logs")}

	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	exp := at.Add(10 * time.Minute)
	events := []GiftEvent{
		{Type: EventGiftCreated, OrderID: "o-1", RoomID: "room-a", CreatorID: 7, TotalAmount: 1000, MaxRecipients: 3, OccurredAt: at, ExpiresAt: &exp},
		{Type: EventGiftReceived, OrderID: "o-1", RoomID: "room-a", CreatorID: 7, ReceiverID: 9, Amount: 250, OccurredAt: at},
	}
	for _, ev := range events {
		body, err := json.Marshal(ev)
		if err != nil {
			t.Fatal(err)
		}
		if err := c.handleMessage(body); err != nil {
			t.Fatalf("handleMessage: %v", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "logs", "gift.log"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2: %q", len(lines), data)
	}
	if !strings.Contains(lines[0], "Gift created") || !strings.Contains(lines[0], "expires_at=2024-03-01T12:10:00Z") {
		t.Errorf("unexpected created line: %s", lines[0])
	}
	if !strings.Contains(lines[1], "receiver_id=9 | amount=250") {
		t.Errorf("unexpected received line: %s", lines[1])
	}
}

func TestHandleMessage_BadPayload(t *testing.T) {
	c := &Consumer{LogDir: t.TempDir()}
	if err := c.handleMessage([]byte("{not json")); err == nil {
		t.Fatal("expected error for malformed body")
	}
}

func TestNewPublishing(t *testing.T) {
	ev := GiftEvent{Type: EventGiftReceived, OrderID: "o-2", Amount: 5}
	pub, err := newPublishing(ev)
	if err != nil {
		t.Fatal(err)
	}
	if pub.Type != EventGiftReceived || pub.ContentType != "application/json" {
		t.Errorf("unexpected publishing headers: %+v", pub)
	}
	var got GiftEvent
	if err := json.Unmarshal(pub.Body, &got); err != nil {
		t.Fatal(err)
	}
	if got.OrderID != "o-2" || got.Amount != 5 {
		t.Errorf("round trip = %+v", got)
	}
}
