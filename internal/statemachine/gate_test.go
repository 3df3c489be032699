package statemachine

import (
	"testing"
)

func TestGate_TriggerOnce(t *testing.T) {
	v := &fakeValidator{found: true}
	g := NewGate(v)

	if !g.Trigger("s1", "AB12X") {
		t.Fatal("first trigger should start a call")
	}
	if g.Trigger("s1", "AB12X") {
		t.Error("second trigger should be ignored")
	}
	g.Wait()

	if calls := v.Calls(); len(calls) != 1 {
		t.Errorf("calls = %v, want 1", calls)
	}
	if got := g.Outcome(); got.State != OutcomeFound || got.SessionID != "s1" {
		t.Errorf("outcome = %+v", got)
	}
	if !g.HasFired() {
		t.Error("HasFired = false after trigger")
	}
}

func TestGate_BlankPartIsError(t *testing.T) {
	v := &fakeValidator{found: true}
	g := NewGate(v)

	var got []Outcome
	g.OnResolved(func(o Outcome) { got = append(got, o) })

	if g.Trigger("s1", "") {
		t.Error("blank part must not start a call")
	}
	if len(v.Calls()) != 0 {
		t.Error("validator called for blank part")
	}
	if len(got) != 1 || got[0].State != OutcomeError || got[0].Message != "part number is required" {
		t.Errorf("outcomes = %+v", got)
	}
}

func TestGate_NilValidatorIsError(t *testing.T) {
	g := NewGate(nil)
	g.Trigger("s1", "AB12X")
	if got := g.Outcome(); got.State != OutcomeError {
		t.Errorf("outcome = %+v, want error", got)
	}
}

func TestGate_ResetRearms(t *testing.T) {
	v := &fakeValidator{found: false}
	g := NewGate(v)

	g.Trigger("s1", "AB12X")
	g.Wait()
	if got := g.Outcome(); got.State != OutcomeNotFound || got.Message != DefaultNotFoundMessage {
		t.Fatalf("outcome = %+v", got)
	}

	before := g.Generation()
	g.Reset()
	if g.Generation() == before {
		t.Error("Reset should advance the generation")
	}
	if g.HasFired() || g.Outcome().State != OutcomePending {
		t.Error("Reset should return the gate to pending")
	}

	if !g.Trigger("s2", "AB12X") {
		t.Error("trigger after reset should start a call")
	}
	g.Wait()
	if len(v.Calls()) != 2 {
		t.Errorf("calls = %v, want 2", v.Calls())
	}
}

func TestGate_StaleGenerationIgnored(t *testing.T) {
	v := &fakeValidator{found: true}
	g := NewGate(v)

	gen := g.Generation()
	g.Reset()
	if g.triggerAt(gen, "s1", "AB12X") {
		t.Error("trigger pinned to an old generation should be ignored")
	}
	if len(v.Calls()) != 0 {
		t.Error("validator called for stale generation")
	}
}

func TestGate_CloseCancelsInFlight(t *testing.T) {
	v := &fakeValidator{found: true, block: make(chan struct{})}
	g := NewGate(v)

	resolved := false
	g.OnResolved(func(Outcome) { resolved = true })
	g.Trigger("s1", "AB12X")
	g.Close()

	if resolved {
		t.Error("cancelled call should not resolve")
	}
	if got := g.Outcome(); got.State != OutcomePending {
		t.Errorf("outcome = %+v", got)
	}
}
