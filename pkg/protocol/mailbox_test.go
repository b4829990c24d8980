package protocol

import "testing"

func TestDecodeEntry(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"message", `{"type":"message","destination":"tg:42","text":"hi"}`, false},
		{"numeric user id", `{"type":"approve_user","userId":7}`, false},
		{"numeric interval", `{"type":"schedule_task","prompt":"p","schedule_type":"interval","schedule_value":60000}`, false},
		{"unknown type", `{"type":"explode"}`, true},
		{"missing type", `{"text":"hi"}`, true},
		{"not json", `{"type":`, true},
		{"bad user id", `{"type":"approve_user","userId":{"x":1}}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeEntry([]byte(tt.body))
			if (err != nil) != tt.wantErr {
				t.Errorf("DecodeEntry() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFlexibleString(t *testing.T) {
	e, err := DecodeEntry([]byte(`{"type":"schedule_task","schedule_value":60000,"userId":"386246614"}`))
	if err != nil {
		t.Fatal(err)
	}
	if got := e.ScheduleValue.String(); got != "60000" {
		t.Errorf("ScheduleValue = %q, want 60000", got)
	}
	if got := e.UserID.String(); got != "386246614" {
		t.Errorf("UserID = %q, want 386246614", got)
	}
}
