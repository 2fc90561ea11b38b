package errbus

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
)

func TestPushIgnoresNil(t *testing.T) {
	b := New()
	b.Push("somewhere", nil)
	if b.Len() != 0 {
		t.Errorf("len = %d, want 0", b.Len())
	}
}

func TestEntriesOrderAndShape(t *testing.T) {
	b := New()
	b.Push("collect.fetch", errors.New("connection refused"))
	b.Pushf("collect.parse", "bad row %d", 7)

	entries := b.Entries()
	if len(entries) != 2 {
		t.Fatalf("len = %d, want 2", len(entries))
	}
	if entries[0].Where != "collect.fetch" || entries[0].Msg != "connection refused" {
		t.Errorf("entry 0 = %+v", entries[0])
	}
	if entries[1].Msg != "bad row 7" {
		t.Errorf("entry 1 = %+v", entries[1])
	}
	if entries[0].TS == "" {
		t.Error("entries carry a timestamp")
	}
}

func TestEmptyBusEncodesAsArray(t *testing.T) {
	raw, err := json.Marshal(New().Entries())
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "[]" {
		t.Errorf("encoded as %s, want []", raw)
	}
}

func TestPushPanicCapturesStack(t *testing.T) {
	b := New()
	func() {
		defer func() {
			if r := recover(); r != nil {
				b.PushPanic("provider.fetch", r)
			}
		}()
		panic("index out of range")
	}()

	entries := b.Entries()
	if len(entries) != 1 {
		t.Fatalf("len = %d, want 1", len(entries))
	}
	if !strings.Contains(entries[0].Msg, "index out of range") {
		t.Errorf("msg = %q", entries[0].Msg)
	}
	if entries[0].Stack == "" {
		t.Error("panic entry has no stack trace")
	}
}

func TestConcurrentPush(t *testing.T) {
	b := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			b.Pushf("worker", "boom")
		}()
	}
	wg.Wait()
	if b.Len() != 50 {
		t.Errorf("len = %d, want 50", b.Len())
	}
}
