package handoff

import "testing"

func TestValidateSocketRejectsClosedDescriptor(t *testing.T) {
	// An arbitrary large fd number is never a valid open socket in a test
	// process, so ValidateSocket must reject it.
	if err := ValidateSocket(1 << 20); err == nil {
		t.Fatal("expected error validating an unopened descriptor")
	}
}

func TestEnvHandoffRoundTrip(t *testing.T) {
	pub := NewPublisher(WellKnownKey)
	recv := NewReceiver(WellKnownKey)

	// On linux this exercises the shared-memory path; on every other OS it
	// exercises the environment-variable fallback. Either way Publish then
	// Retrieve must return the same descriptor number.
	const fakeFD = 42
	if err := pub.Publish(fakeFD); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	defer pub.Destroy()

	got, err := recv.Retrieve()
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if got != fakeFD {
		t.Errorf("Retrieve() = %d, want %d", got, fakeFD)
	}
}
