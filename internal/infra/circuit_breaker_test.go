package infra

import (
	"testing"
	"time"
)

func TestBreaker_OpensAfterFailures(t *testing.T) {
	b := NewBreaker("test", 3, 2, time.Minute)

	for i := 0; i < 2; i++ {
		b.RecordFailure()
	}
	if !b.Allow() {
		t.Fatal("breaker must stay closed below the threshold")
	}

	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Errorf("State = %v, want OPEN", b.State())
	}
	if b.Allow() {
		t.Error("open breaker must reject requests")
	}
}

func TestBreaker_RecoversThroughHalfOpen(t *testing.T) {
	b := NewBreaker("test", 1, 2, 10*time.Millisecond)

	b.RecordFailure()
	if b.Allow() {
		t.Fatal("breaker must open after the failure")
	}

	time.Sleep(20 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("breaker must probe after the cooldown")
	}
	if b.State() != BreakerHalfOpen {
		t.Fatalf("State = %v, want HALF_OPEN", b.State())
	}

	b.RecordSuccess()
	b.RecordSuccess()
	if b.State() != BreakerClosed {
		t.Errorf("State = %v, want CLOSED after enough successes", b.State())
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker("test", 1, 2, 10*time.Millisecond)

	b.RecordFailure()
	time.Sleep(20 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("breaker must probe after the cooldown")
	}

	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Errorf("State = %v, want OPEN after a failed probe", b.State())
	}
	if b.Allow() {
		t.Error("reopened breaker must reject requests")
	}
}

func TestNewBreaker_Defaults(t *testing.T) {
	b := NewBreaker("test", 0, 0, 0)
	if b.failureThreshold != 5 || b.successThreshold != 2 || b.timeout != 30*time.Second {
		t.Errorf("defaults = %d/%d/%v, want 5/2/30s", b.failureThreshold, b.successThreshold, b.timeout)
	}
}
