package realtime

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/travo/travo-api/internal/events"
)

func TestHubDeliversToOwningAccountOnly(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Shutdown()

	accountID := uuid.New()
	mine := &Connection{AccountID: accountID, Send: make(chan []byte, 8)}
	other := &Connection{AccountID: uuid.New(), Send: make(chan []byte, 8)}
	hub.Register(mine)
	hub.Register(other)

	hub.HandleEvent(events.New(events.SMSSent, accountID, events.MessagePayload{Credits: 1}))

	select {
	case data := <-mine.Send:
		var evt struct {
			Event string `json:"event"`
		}
		if err := json.Unmarshal(data, &evt); err != nil {
			t.Fatalf("frame is not JSON: %v", err)
		}
		if evt.Event != string(events.SMSSent) {
			t.Errorf("event = %q, want %q", evt.Event, events.SMSSent)
		}
	case <-time.After(time.Second):
		t.Fatal("owning account received nothing")
	}

	select {
	case <-other.Send:
		t.Fatal("event leaked to another account")
	default:
	}
}

func TestHubUnregisterClosesSend(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Shutdown()

	conn := &Connection{AccountID: uuid.New(), Send: make(chan []byte, 1)}
	hub.Register(conn)
	hub.Unregister(conn)

	select {
	case _, ok := <-conn.Send:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}

	if n := hub.ConnectionCount(); n != 0 {
		t.Errorf("ConnectionCount() = %d, want 0", n)
	}
}
