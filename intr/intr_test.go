package intr

import "testing"

func TestDisableRestore(t *testing.T) {
	if !Enabled() {
		t.Fatal("interrupts should start enabled")
	}
	s := Disable()
	if Enabled() {
		t.Fatal("Disable should clear the flag")
	}
	Restore(s)
	if !Enabled() {
		t.Fatal("Restore should bring the flag back")
	}
}

func TestNestedDisableRestoresPriorState(t *testing.T) {
	outer := Disable()
	inner := Disable()
	Restore(inner)
	if Enabled() {
		t.Fatal("still inside outer disable, should read disabled")
	}
	Restore(outer)
	if !Enabled() {
		t.Fatal("outer restore should re-enable")
	}
}
