package v1

import "testing"

func TestValidateInbound(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		ev      Event
		wantErr bool
	}{
		{name: "start session", ev: Event{Type: TypeStartSession}},
		{name: "end session without id", ev: Event{Type: TypeEndSession}},
		{name: "end session with id", ev: Event{Type: TypeEndSession, SessionID: "01J00000000000000000000000"}},
		{name: "location update", ev: Event{Type: TypeLocationUpdate, Lat: Float(34.68), Lng: Float(-82.84)}},
		{name: "location update with accuracy", ev: Event{Type: TypeLocationUpdate, Lat: Float(1), Lng: Float(2), Accuracy: Float(5)}},
		{name: "location update missing lat", ev: Event{Type: TypeLocationUpdate, Lng: Float(2)}, wantErr: true},
		{name: "location update missing lng", ev: Event{Type: TypeLocationUpdate, Lat: Float(1)}, wantErr: true},
		{name: "out of range coordinates accepted", ev: Event{Type: TypeLocationUpdate, Lat: Float(999), Lng: Float(-999)}},
		{name: "emergency alert", ev: Event{Type: TypeEmergencyAlert, Lat: Float(1), Lng: Float(2)}},
		{name: "emergency alert missing coords", ev: Event{Type: TypeEmergencyAlert}, wantErr: true},
		{name: "missing type", ev: Event{}, wantErr: true},
		{name: "server only type rejected inbound", ev: Event{Type: TypeContactStarted, UserID: "u1"}, wantErr: true},
		{name: "unknown type", ev: Event{Type: "teleport"}, wantErr: true},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := tc.ev.ValidateInbound()
			if tc.wantErr && err == nil {
				t.Fatalf("expected error, got nil")
			}
			if !tc.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}
