package kv_test

import (
	"testing"

	"github.com/lyrebird-audio/lyrebird/internal/infra/kv"
)

func openStore(t *testing.T) *kv.Store {
	t.Helper()
	s, err := kv.Open(t.TempDir())
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGetJSON(t *testing.T) {
	s := openStore(t)

	gains := []float64{0, 2.5, -4, 6, 0, 1}
	if err := s.PutJSON(kv.BucketSettings, "equalizer-gains", gains); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	var got []float64
	found, err := s.GetJSON(kv.BucketSettings, "equalizer-gains", &got)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !found {
		t.Fatal("expected key to exist")
	}
	if len(got) != len(gains) {
		t.Fatalf("expected %d gains, got %d", len(gains), len(got))
	}
	for i := range gains {
		if got[i] != gains[i] {
			t.Errorf("gain[%d]: expected %v, got %v", i, gains[i], got[i])
		}
	}
}

func TestGetJSONAbsentKey(t *testing.T) {
	s := openStore(t)

	var out []float64
	found, err := s.GetJSON(kv.BucketSettings, "missing", &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found {
		t.Error("expected key to be absent")
	}
}

func TestPutGetString(t *testing.T) {
	s := openStore(t)

	if err := s.PutString(kv.BucketAuth, "drive", "tok-123"); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, err := s.GetString(kv.BucketAuth, "drive")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got != "tok-123" {
		t.Errorf("expected tok-123, got %q", got)
	}
}

func TestDelete(t *testing.T) {
	s := openStore(t)

	if err := s.PutString(kv.BucketAuth, "onedrive", "tok"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(kv.BucketAuth, "onedrive"); err != nil {
		t.Fatalf("delete failed: %v", err)
	}

	got, err := s.GetString(kv.BucketAuth, "onedrive")
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("expected empty value after delete, got %q", got)
	}

	// Deleting again is a no-op.
	if err := s.Delete(kv.BucketAuth, "onedrive"); err != nil {
		t.Errorf("second delete failed: %v", err)
	}
}
