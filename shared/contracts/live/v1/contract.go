// Package v1 defines the Beacon live-sharing wire contract.
//
// This package is intentionally stable and dependency-light.
// It is shared between server and clients to keep the wire protocol authoritative.
//
// Unlike envelope-style protocols, events are a flat tagged union keyed by
// "type": payload fields live directly on the event object. This matches the
// mobile clients, which send e.g.
//
//	{"type":"location_update","lat":34.68,"lng":-82.84,"accuracy":5}
package v1

import (
	"errors"
	"fmt"
)

// Type constants (wire-stable).
const (
	// TypeStartSession begins a sharing session (client -> server).
	TypeStartSession = "start_session"
	// TypeEndSession ends a sharing session (client -> server).
	// SessionID is optional; when absent the active session is ended.
	TypeEndSession = "end_session"
	// TypeLocationUpdate carries one location reading.
	// Client -> server it holds lat/lng/accuracy; server -> contacts it holds
	// the sharer's id plus lat/lng.
	TypeLocationUpdate = "location_update"
	// TypeEmergencyAlert triggers the emergency dispatch path (client -> server).
	TypeEmergencyAlert = "emergency_alert"

	// TypeSessionStarted acknowledges a start to the sharer (server -> client).
	TypeSessionStarted = "session_started"
	// TypeSessionEnded acknowledges an end to the sharer (server -> client).
	TypeSessionEnded = "session_ended"
	// TypeContactStarted tells accepted contacts a sharer went live (server -> contacts).
	TypeContactStarted = "contact_started"
	// TypeContactEnded tells accepted contacts a sharer stopped (server -> contacts).
	TypeContactEnded = "contact_ended"
	// TypePresenceLeft tells connected peers a user disconnected (server -> peers).
	TypePresenceLeft = "presence_left"

	// TypeError is a generic error event (server -> client).
	TypeError = "error"
)

// Event is the canonical wire shape for both directions.
//
// Field usage by type:
//
//	start_session    (in)  -
//	end_session      (in)  session_id?
//	location_update  (in)  lat, lng, accuracy?
//	location_update  (out) id, lat, lng
//	emergency_alert  (in)  lat, lng
//	session_started  (out) session_id
//	session_ended    (out) session_id
//	contact_started  (out) user_id
//	contact_ended    (out) user_id
//	presence_left    (out) id, left
//	error            (out) code, message
type Event struct {
	Type string `json:"type"`

	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`

	// ID identifies the originating user on relayed events.
	ID string `json:"id,omitempty"`

	Lat      *float64 `json:"lat,omitempty"`
	Lng      *float64 `json:"lng,omitempty"`
	Accuracy *float64 `json:"accuracy,omitempty"`

	Left bool `json:"left,omitempty"`

	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// ValidateInbound checks a client -> server event.
//
// Coordinates are accepted as provided: there is deliberately no geographic
// bounds check here, only presence checks.
func (e Event) ValidateInbound() error {
	switch e.Type {
	case "":
		return errors.New("missing field: type")
	case TypeStartSession:
		return nil
	case TypeEndSession:
		return nil
	case TypeLocationUpdate, TypeEmergencyAlert:
		if e.Lat == nil {
			return errors.New("missing field: lat")
		}
		if e.Lng == nil {
			return errors.New("missing field: lng")
		}
		return nil
	default:
		return fmt.Errorf("unknown type: %q", e.Type)
	}
}

// Float is a convenience for building optional coordinate fields.
func Float(v float64) *float64 { return &v }
