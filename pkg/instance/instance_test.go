package instance

import "testing"

func TestGetIDPrefersWorkerID(t *testing.T) {
	t.Setenv("WORKER_ID", "publisher-7")
	if got := GetID(); got != "publisher-7" {
		t.Fatalf("expected WORKER_ID, got %q", got)
	}
}

func TestGetIDFallsBackWhenUnset(t *testing.T) {
	t.Setenv("WORKER_ID", "")
	if got := GetID(); got == "" {
		t.Fatal("expected a non-empty id")
	}
}
