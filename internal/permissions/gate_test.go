package permissions

import (
	"errors"
	"testing"
)

func TestAuthorize(t *testing.T) {
	tests := []struct {
		name  string
		req   Request
		allow bool
	}{
		{"main registers tenant", Request{Source: "main", Elevated: true, Op: OpRegisterTenant}, true},
		{"ordinary registers tenant", Request{Source: "family", Op: OpRegisterTenant}, false},
		{"ordinary approves user", Request{Source: "family", Op: OpApproveUser}, false},
		{"ordinary denies user", Request{Source: "family", Op: OpDenyUser}, false},
		{"ordinary lists pending", Request{Source: "family", Op: OpListPending}, false},
		{"main approves user", Request{Source: "main", Elevated: true, Op: OpApproveUser}, true},

		{"ordinary messages own chat", Request{Source: "family", Op: OpSendMessage, Target: "family"}, true},
		{"ordinary messages other chat", Request{Source: "family", Op: OpSendMessage, Target: "work"}, false},
		{"ordinary messages unbound chat", Request{Source: "family", Op: OpSendMessage}, false},
		{"main messages anywhere", Request{Source: "main", Elevated: true, Op: OpSendMessage}, true},

		{"ordinary schedules for self", Request{Source: "family", Op: OpScheduleTask, Target: "family"}, true},
		{"ordinary schedules for other", Request{Source: "family", Op: OpScheduleTask, Target: "work"}, false},
		{"main schedules for other", Request{Source: "main", Elevated: true, Op: OpScheduleTask, Target: "work"}, true},

		{"owner pauses", Request{Source: "family", Op: OpPauseTask, Target: "family"}, true},
		{"non-owner cancels", Request{Source: "family", Op: OpCancelTask, Target: "work"}, false},
		{"main resumes any", Request{Source: "main", Elevated: true, Op: OpResumeTask, Target: "work"}, true},

		{"unknown op", Request{Source: "main", Elevated: true, Op: "explode"}, false},
		{"empty source", Request{Op: OpSendMessage, Target: ""}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Authorize(tt.req)
			if tt.allow && err != nil {
				t.Errorf("Authorize() = %v, want allowed", err)
			}
			if !tt.allow && !errors.Is(err, ErrUnauthorized) {
				t.Errorf("Authorize() = %v, want ErrUnauthorized", err)
			}
		})
	}
}
