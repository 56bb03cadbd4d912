package contract

import (
	"errors"
	"testing"
)

func TestAuthorize(t *testing.T) {
	rec := Record{ClientID: "client-1", FreelancerID: "freelancer-1"}

	cases := []struct {
		name    string
		actorID string
		role    Role
		wantErr bool
	}{
		{"client as client", "client-1", RoleClient, false},
		{"freelancer as client", "freelancer-1", RoleClient, true},
		{"freelancer as freelancer", "freelancer-1", RoleFreelancer, false},
		{"client as freelancer", "client-1", RoleFreelancer, true},
		{"client as any", "client-1", RoleAny, false},
		{"freelancer as any", "freelancer-1", RoleAny, false},
		{"stranger as any", "someone-else", RoleAny, true},
		{"stranger as client", "someone-else", RoleClient, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := Authorize(rec, tc.actorID, tc.role)
			if tc.wantErr && !errors.Is(err, ErrForbidden) {
				t.Errorf("err = %v, want ErrForbidden", err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("err = %v, want nil", err)
			}
		})
	}
}

func TestPayable(t *testing.T) {
	payable := map[Status]bool{
		StatusActive:    true,
		StatusPaused:    false,
		StatusDisputed:  false,
		StatusCancelled: false,
		StatusCompleted: false,
	}
	for status, want := range payable {
		if got := (Record{Status: status}).Payable(); got != want {
			t.Errorf("Payable(%s) = %v, want %v", status, got, want)
		}
	}
}
