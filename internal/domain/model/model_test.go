package model

import (
	"testing"
	"time"
)

func TestPreviewStatusIsTerminal(t *testing.T) {
	terminal := map[PreviewStatus]bool{
		PreviewStatusPending:    false,
		PreviewStatusQueued:     false,
		PreviewStatusProcessing: false,
		PreviewStatusCompleted:  true,
		PreviewStatusFailed:     true,
	}
	for status, want := range terminal {
		if got := status.IsTerminal(); got != want {
			t.Errorf("IsTerminal(%s) = %v, want %v", status, got, want)
		}
	}
}

func TestNewPreviewJobDefaults(t *testing.T) {
	before := time.Now()
	job := NewPreviewJob("u1", "m1", "req-1")

	if job.ID == "" {
		t.Fatal("job id not generated")
	}
	if job.Status != PreviewStatusPending {
		t.Fatalf("status = %s, want pending", job.Status)
	}
	if job.CreatedAt.Before(before) || job.UpdatedAt != job.CreatedAt {
		t.Fatalf("timestamps not initialized: %v / %v", job.CreatedAt, job.UpdatedAt)
	}
	if other := NewPreviewJob("u1", "m1", "req-1"); other.ID == job.ID {
		t.Fatal("ids must be unique per job")
	}
}

func TestFingerprintDeterministic(t *testing.T) {
	a := Fingerprint("u1", "m1", []byte("doc"), "req-1")
	b := Fingerprint("u1", "m1", []byte("doc"), "req-1")
	if a != b {
		t.Fatalf("same input hashed differently: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("fingerprint length = %d, want 64 hex chars", len(a))
	}
}

func TestFingerprintFieldBoundaries(t *testing.T) {
	base := Fingerprint("u1", "m1", []byte("doc"), "")
	cases := map[string]string{
		"user":    Fingerprint("u2", "m1", []byte("doc"), ""),
		"matter":  Fingerprint("u1", "m2", []byte("doc"), ""),
		"payload": Fingerprint("u1", "m1", []byte("DOC"), ""),
		"request": Fingerprint("u1", "m1", []byte("doc"), "req-1"),
		// Fields must not bleed into each other through concatenation.
		"shifted": Fingerprint("u1m", "1", []byte("doc"), ""),
	}
	for name, fp := range cases {
		if fp == base {
			t.Errorf("%s variation produced the same fingerprint", name)
		}
	}
}

func TestOutboxKeyUniquePerWrite(t *testing.T) {
	k1 := OutboxKey("preview_jobs", "save", "job-1", 100)
	k2 := OutboxKey("preview_jobs", "save", "job-1", 200)
	k3 := OutboxKey("preview_jobs", "save", "job-2", 100)
	if k1 == k2 || k1 == k3 {
		t.Fatalf("outbox keys collide: %s %s %s", k1, k2, k3)
	}
	if k1 != OutboxKey("preview_jobs", "save", "job-1", 100) {
		t.Fatal("outbox key must be deterministic")
	}
}
