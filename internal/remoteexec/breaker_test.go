package remoteexec

import (
	"errors"
	"testing"
	"time"
)

func TestBreaker_OpensAfterThreshold(t *testing.T) {
	b := newBreaker(breakerConfig{FailureThreshold: 3, Cooldown: time.Hour})

	for i := 0; i < 2; i++ {
		if !b.allow() {
			t.Fatalf("expected breaker to allow call %d before threshold", i)
		}
		b.after(errors.New("boom"))
	}

	if !b.allow() {
		t.Fatalf("expected breaker to still allow the threshold-th call")
	}
	b.after(errors.New("boom"))

	if b.allow() {
		t.Fatalf("expected breaker to be open after %d consecutive failures", b.cfg.FailureThreshold)
	}
}

func TestBreaker_ClosesOnSuccess(t *testing.T) {
	b := newBreaker(breakerConfig{FailureThreshold: 1, Cooldown: time.Hour})

	b.allow()
	b.after(errors.New("boom"))
	if b.allow() {
		t.Fatalf("expected breaker open after one failure at threshold 1")
	}

	b.cfg.Cooldown = 0 // force the open->half_open transition on the next allow()
	if !b.allow() {
		t.Fatalf("expected breaker to move to half-open once cooldown elapses")
	}
	b.after(nil)

	if !b.allow() {
		t.Fatalf("expected breaker closed again after a successful half-open call")
	}
}

func TestBreaker_HalfOpenLimitsConcurrentCalls(t *testing.T) {
	b := newBreaker(breakerConfig{FailureThreshold: 1, HalfOpenMaxCalls: 1})
	b.cfg.Cooldown = 0

	b.allow()
	b.after(errors.New("boom"))

	if !b.allow() {
		t.Fatalf("expected the first half-open probe to be allowed")
	}
	if b.allow() {
		t.Fatalf("expected a second concurrent half-open probe to be rejected")
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := newBreaker(breakerConfig{FailureThreshold: 1, Cooldown: time.Hour})

	b.allow()
	b.after(errors.New("boom"))

	b.cfg.Cooldown = 0 // let the next allow() probe immediately
	if !b.allow() {
		t.Fatalf("expected half-open probe to be allowed")
	}
	b.after(errors.New("still failing"))

	b.cfg.Cooldown = time.Hour // the reopen should hold for the full cooldown
	if b.allow() {
		t.Fatalf("expected breaker to reopen after a failed half-open probe")
	}
}
