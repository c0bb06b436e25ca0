package bus

import (
	"errors"
	"testing"
)

func TestWriteAndReadReceipt(t *testing.T) {
	root := t.TempDir()
	b := New(root)
	r := Receipt{
		TaskID:  "task-1",
		Agent:   "builder",
		Outcome: "done",
		Header:  sampleHeader("task-1", []string{"builder"}),
	}
	if err := b.WriteReceipt(r); err != nil {
		t.Fatalf("WriteReceipt: %v", err)
	}

	got, ok, err := b.ReadReceipt("builder", "task-1")
	if err != nil {
		t.Fatalf("ReadReceipt: %v", err)
	}
	if !ok {
		t.Fatalf("expected receipt to be found")
	}
	if got.Outcome != "done" || got.Header.ID != "task-1" {
		t.Fatalf("unexpected receipt content: %+v", got)
	}
	if got.ClosedAt == "" {
		t.Fatalf("expected ClosedAt to be stamped")
	}
}

func TestWriteReceiptIsNotOverwritable(t *testing.T) {
	root := t.TempDir()
	b := New(root)
	r := Receipt{TaskID: "task-1", Agent: "builder", Outcome: "done"}
	if err := b.WriteReceipt(r); err != nil {
		t.Fatalf("WriteReceipt: %v", err)
	}

	r2 := Receipt{TaskID: "task-1", Agent: "builder", Outcome: "failed"}
	err := b.WriteReceipt(r2)
	if !errors.Is(err, ErrReceiptExists) {
		t.Fatalf("expected ErrReceiptExists, got %v", err)
	}

	got, _, _ := b.ReadReceipt("builder", "task-1")
	if got.Outcome != "done" {
		t.Fatalf("expected original receipt preserved, got outcome %q", got.Outcome)
	}
}

func TestHasReceiptFalseWhenAbsent(t *testing.T) {
	root := t.TempDir()
	b := New(root)
	ok, err := b.HasReceipt("builder", "ghost-task")
	if err != nil {
		t.Fatalf("HasReceipt: %v", err)
	}
	if ok {
		t.Fatalf("expected HasReceipt to be false for unknown task")
	}
}

func TestReceiptRoundTripsHeader(t *testing.T) {
	root := t.TempDir()
	b := New(root)
	hdr := sampleHeader("task-1", []string{"builder"})
	hdr.Signals = map[string]any{"kind": "EXECUTE"}
	_ = b.WriteReceipt(Receipt{TaskID: "task-1", Agent: "builder", Outcome: "done", Header: hdr})

	got, ok, err := b.ReadReceipt("builder", "task-1")
	if err != nil || !ok {
		t.Fatalf("ReadReceipt: ok=%v err=%v", ok, err)
	}
	if got.Header.ID != "task-1" {
		t.Fatalf("expected header id preserved, got %q", got.Header.ID)
	}
}
