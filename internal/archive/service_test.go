package archive

import "testing"

func TestPolicyKey(t *testing.T) {
	if got := policyKey("proj-1", 3); got != "policies/proj-1/v0003.json" {
		t.Fatalf("unexpected key: %s", got)
	}
	// Zero-padded so lexicographic listing matches version order.
	if got := policyKey("proj-1", 120); got != "policies/proj-1/v0120.json" {
		t.Fatalf("unexpected key: %s", got)
	}
}
