package models

import (
	"testing"
	"time"
)

func TestAttachment_SetAnchorNormalizes(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	local := time.Date(2026, 3, 2, 15, 30, 0, 123456789, loc)

	var a Attachment
	a.SetAnchor(local)

	if a.AnchorAt.Location() != time.UTC {
		t.Errorf("anchor location = %s, want UTC", a.AnchorAt.Location())
	}
	if a.AnchorAt.Nanosecond() != 123000000 {
		t.Errorf("anchor not truncated to ms: %d", a.AnchorAt.Nanosecond())
	}
	if a.Epoch != EpochOf(local) || a.Epoch != a.AnchorAt.UnixMilli() {
		t.Errorf("epoch %d out of step with anchor %s", a.Epoch, a.AnchorAt)
	}
}

func TestAttachment_State(t *testing.T) {
	tests := []struct {
		autoSend, completed bool
		want                string
	}{
		{false, false, StateAttached},
		{false, true, StateAttached},
		{true, false, StateArmed},
		{true, true, StateCompleted},
	}
	for _, tt := range tests {
		a := Attachment{AutoSend: tt.autoSend, Completed: tt.completed}
		if got := a.State(); got != tt.want {
			t.Errorf("State(auto_send=%v, completed=%v) = %s, want %s", tt.autoSend, tt.completed, got, tt.want)
		}
	}
}

func TestArmConfirmation_IsValid(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	c := ArmConfirmation{Token: "t", ConversationID: "conv-1", ExpiresAt: now.Add(time.Minute)}

	if !c.IsValid("conv-1", now) {
		t.Error("fresh token should be valid")
	}
	if c.IsValid("conv-2", now) {
		t.Error("token valid for another conversation")
	}
	if c.IsValid("conv-1", now.Add(time.Minute)) {
		t.Error("token valid at expiry")
	}
	used := now
	c.UsedAt = &used
	if c.IsValid("conv-1", now) {
		t.Error("used token still valid")
	}
}
