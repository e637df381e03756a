package store

import (
	"bytes"
	"fmt"
	"testing"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	tbl, err := NewTable(Setting{NumBuckets: 8}, nil)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	want := map[string]string{}
	for i := 0; i < 50; i++ {
		k := fmt.Sprintf("key-%d", i)
		v := fmt.Sprintf("value-%d", i)
		want[k] = v
		if err := tbl.Add([]byte(k), []byte(v)); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}

	var buf bytes.Buffer
	if err := WriteSnapshot(tbl, &buf); err != nil {
		t.Fatalf("WriteSnapshot: %v", err)
	}
	if got := tbl.Counters().Get(RecordsCountSavedFromSerializer); got != int64(len(want)) {
		t.Fatalf("RecordsCountSavedFromSerializer: got %d, want %d", got, len(want))
	}

	restored, err := ReadSnapshot(&buf, RejectingRegistrar{})
	if err != nil {
		t.Fatalf("ReadSnapshot: %v", err)
	}

	if got := restored.Counters().Get(RecordsCount); got != int64(len(want)) {
		t.Fatalf("RecordsCount after restore: got %d, want %d", got, len(want))
	}
	if got := restored.Counters().Get(RecordsCountLoadedFromSerializer); got != int64(len(want)) {
		t.Fatalf("RecordsCountLoadedFromSerializer: got %d, want %d", got, len(want))
	}

	for k, v := range want {
		got, ok := restored.Get([]byte(k))
		if !ok {
			t.Fatalf("Get(%q) after restore: missed", k)
		}
		if string(got) != v {
			t.Fatalf("Get(%q) after restore: got %q, want %q", k, got, v)
		}
	}
}

func TestSnapshot_RejectsBadVersion(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(snapshotVersion + 1)
	if err := writeSetting(&buf, Setting{NumBuckets: 1}); err != nil {
		t.Fatalf("writeSetting: %v", err)
	}

	if _, err := ReadSnapshot(&buf, RejectingRegistrar{}); err == nil {
		t.Fatalf("ReadSnapshot: expected an error for an unsupported version byte")
	}
}

func TestRejectingRegistrar_Panics(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("RejectingRegistrar.RegisterAction: expected a panic")
		}
	}()
	RejectingRegistrar{}.RegisterAction(func() {})
}
