package rbac

import "testing"

func TestNormalize(t *testing.T) {
	cases := []struct {
		raw  string
		want Role
	}{
		{raw: "admin", want: RoleAdmin},
		{raw: "volunteer", want: RoleVolunteer},
		{raw: "responder", want: RoleResponder},
		{raw: "Admin", want: ""},
		{raw: "civilian", want: ""},
		{raw: "", want: ""},
	}
	for _, tc := range cases {
		if got := Normalize(tc.raw); got != tc.want {
			t.Fatalf("Normalize(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestVisible(t *testing.T) {
	cases := []struct {
		name           string
		role           Role
		userID         string
		assignedTo     Target
		assignedUserID string
		want           bool
	}{
		{name: "admin sees unassigned", role: RoleAdmin, assignedTo: TargetUnassigned, want: true},
		{name: "admin sees volunteer pool", role: RoleAdmin, assignedTo: TargetVolunteer, want: true},
		{name: "admin sees responder queue", role: RoleAdmin, assignedTo: TargetResponder, want: true},
		{name: "volunteer sees unclaimed pool report", role: RoleVolunteer, userID: "v1", assignedTo: TargetVolunteer, want: true},
		{name: "volunteer sees own claim", role: RoleVolunteer, userID: "v1", assignedTo: TargetVolunteer, assignedUserID: "v1", want: true},
		{name: "volunteer blind to another volunteer's claim", role: RoleVolunteer, userID: "v1", assignedTo: TargetVolunteer, assignedUserID: "v2", want: false},
		{name: "volunteer blind to unassigned", role: RoleVolunteer, userID: "v1", assignedTo: TargetUnassigned, want: false},
		{name: "volunteer blind to responder queue", role: RoleVolunteer, userID: "v1", assignedTo: TargetResponder, want: false},
		{name: "responder sees whole unit queue", role: RoleResponder, userID: "r1", assignedTo: TargetResponder, want: true},
		{name: "responder sees unit queue with named assignee", role: RoleResponder, userID: "r1", assignedTo: TargetResponder, assignedUserID: "r2", want: true},
		{name: "responder blind to volunteer pool", role: RoleResponder, userID: "r1", assignedTo: TargetVolunteer, want: false},
		{name: "responder blind to unassigned", role: RoleResponder, userID: "r1", assignedTo: TargetUnassigned, want: false},
		{name: "empty role sees nothing", role: "", assignedTo: TargetVolunteer, want: false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Visible(tc.role, tc.userID, tc.assignedTo, tc.assignedUserID); got != tc.want {
				t.Fatalf("Visible(%q, %q, %q, %q) = %v, want %v", tc.role, tc.userID, tc.assignedTo, tc.assignedUserID, got, tc.want)
			}
		})
	}
}

func TestCanAssign(t *testing.T) {
	if !CanAssign(RoleAdmin) {
		t.Fatal("admin must be able to assign")
	}
	for _, role := range []Role{RoleVolunteer, RoleResponder, ""} {
		if CanAssign(role) {
			t.Fatalf("role %q must not assign", role)
		}
	}
}

func TestCanSetStatus(t *testing.T) {
	if !CanSetStatus(RoleAdmin, "a1", TargetUnassigned, "") {
		t.Fatal("admin must set status on any report")
	}
	if !CanSetStatus(RoleVolunteer, "v1", TargetVolunteer, "v1") {
		t.Fatal("claiming volunteer must set status")
	}
	if CanSetStatus(RoleVolunteer, "v1", TargetVolunteer, "v2") {
		t.Fatal("volunteer must not set status on another volunteer's claim")
	}
	if !CanSetStatus(RoleResponder, "r1", TargetResponder, "") {
		t.Fatal("responder must set status on unit reports")
	}
	if CanSetStatus(RoleResponder, "r1", TargetVolunteer, "") {
		t.Fatal("responder must not set status on volunteer-pool reports")
	}
}

func TestValidators(t *testing.T) {
	for _, target := range []Target{TargetUnassigned, TargetVolunteer, TargetResponder} {
		if !ValidTarget(target) {
			t.Fatalf("expected %q to be a valid target", target)
		}
	}
	if ValidTarget("admin") || ValidTarget("") {
		t.Fatal("unexpected target accepted")
	}

	for _, status := range []Status{StatusPending, StatusAssigned, StatusDispatched, StatusInProgress, StatusResolved} {
		if !ValidStatus(status) {
			t.Fatalf("expected %q to be a valid status", status)
		}
	}
	if ValidStatus("done") || ValidStatus("") {
		t.Fatal("unexpected status accepted")
	}

	for _, category := range Categories {
		if !ValidCategory(category) {
			t.Fatalf("expected %q to be a valid category", category)
		}
	}
	if ValidCategory("meteor") {
		t.Fatal("unexpected category accepted")
	}
}
