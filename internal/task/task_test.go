package task

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/hyperifyio/serpgate/internal/model"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestStore_ClaimIsAtMostOnce(t *testing.T) {
	s := NewStore()
	tk := s.Create(model.SearchRequest{Query: "q"}, "fp")
	if tk.Status != StatusPending {
		t.Fatalf("status = %s", tk.Status)
	}
	if _, err := s.Claim(tk.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if _, err := s.Claim(tk.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("second claim should fail, got %v", err)
	}
}

func TestStore_StatusNeverRegresses(t *testing.T) {
	s := NewStore()
	tk := s.Create(model.SearchRequest{Query: "q"}, "fp")
	if _, err := s.Complete(tk.ID, model.Result{}); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pending cannot complete, got %v", err)
	}
	if _, err := s.Claim(tk.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	done, err := s.Fail(tk.ID, "boom")
	if err != nil || done.Status != StatusFailed || done.Error != "boom" || done.Result != nil {
		t.Fatalf("fail: %+v %v", done, err)
	}
	for _, fn := range []func() (Task, error){
		func() (Task, error) { return s.Claim(tk.ID) },
		func() (Task, error) { return s.Complete(tk.ID, model.Result{Query: "q"}) },
		func() (Task, error) { return s.Fail(tk.ID, "again") },
	} {
		if _, err := fn(); !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("terminal task moved: %v", err)
		}
	}
	got, _ := s.Get(tk.ID)
	if got.Status != StatusFailed || got.Error != "boom" {
		t.Fatalf("terminal state changed: %+v", got)
	}
}

func TestStore_FailNeedsMessage(t *testing.T) {
	s := NewStore()
	tk := s.Create(model.SearchRequest{Query: "q"}, "fp")
	got, err := s.Fail(tk.ID, "")
	if err != nil || got.Error == "" {
		t.Fatalf("failed task must carry an error: %+v %v", got, err)
	}
}

func TestStore_SnapshotsAreCopies(t *testing.T) {
	s := NewStore()
	tk := s.CreateCompleted(model.SearchRequest{Query: "q"}, "fp", model.Result{Query: "q"})
	tk.Result.Query = "mutated"
	got, _ := s.Get(tk.ID)
	if got.Result.Query != "q" {
		t.Fatalf("store shares result with caller")
	}
}

func TestStore_Sweep(t *testing.T) {
	s := NewStore()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	done := s.CreateCompleted(model.SearchRequest{Query: "a"}, "fa", model.Result{})
	pending := s.Create(model.SearchRequest{Query: "b"}, "fb")

	now = now.Add(2 * time.Hour)
	if n := s.Sweep(time.Hour); n != 1 {
		t.Fatalf("swept %d", n)
	}
	if _, err := s.Get(done.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("completed task should be swept")
	}
	if _, err := s.Get(pending.ID); err != nil {
		t.Fatalf("pending task must survive: %v", err)
	}
}

func TestStore_Unknown(t *testing.T) {
	s := NewStore()
	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Claim("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
