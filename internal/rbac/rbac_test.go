package rbac

import "testing"

func TestCan(t *testing.T) {
	cases := []struct {
		name   string
		role   Role
		action Action
		allow  bool
	}{
		{name: "viewer read", role: RoleViewer, action: ActionRead, allow: true},
		{name: "viewer submit", role: RoleViewer, action: ActionSubmit, allow: false},
		{name: "viewer approve", role: RoleViewer, action: ActionApprove, allow: false},
		{name: "worker submit", role: RoleWorker, action: ActionSubmit, allow: true},
		{name: "worker approve", role: RoleWorker, action: ActionApprove, allow: false},
		{name: "approver approve", role: RoleApprover, action: ActionApprove, allow: true},
		{name: "approver edit graph", role: RoleApprover, action: ActionEditGraph, allow: false},
		{name: "manager publish", role: RoleManager, action: ActionPublish, allow: true},
		{name: "manager admin", role: RoleManager, action: ActionAdmin, allow: false},
		{name: "admin admin", role: RoleAdmin, action: ActionAdmin, allow: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Can(tc.role, tc.action); got != tc.allow {
				t.Fatalf("Can(%q, %q) = %v, want %v", tc.role, tc.action, got, tc.allow)
			}
		})
	}
}

func TestNormalize(t *testing.T) {
	if got := Normalize("manager"); got != RoleManager {
		t.Fatalf("Normalize(manager) = %q", got)
	}
	if got := Normalize("superuser"); got != RoleViewer {
		t.Fatalf("unknown role should default to viewer, got %q", got)
	}
}
