package mqtt

import (
	"encoding/json"
	"time"
)

// Bridge presence values published on the status topic.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Reasons attached to an offline status.
const (
	ReasonShutdown       = "shutdown"
	ReasonConnectionLost = "connection_lost"
)

// Status is the retained presence message on {prefix}/{bridge_id}/status.
//
// The broker publishes the offline variant as the last will when the
// bridge drops without a clean disconnect.
type Status struct {
	Status    string `json:"status"`
	BridgeID  string `json:"bridge_id"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func newStatus(status, reason, bridgeID, clientID string, now time.Time) Status {
	return Status{
		Status:    status,
		BridgeID:  bridgeID,
		ClientID:  clientID,
		Reason:    reason,
		Timestamp: now.UTC().Format(time.RFC3339),
	}
}

// Encode marshals the status. A Status only holds strings, so it cannot fail.
func (s Status) Encode() []byte {
	data, _ := json.Marshal(s) //nolint:errcheck // string-only struct
	return data
}
