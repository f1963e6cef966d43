package mqtt

import (
	"fmt"
	"strings"
)

// DefaultTopicPrefix is used when MQTTConfig.TopicPrefix is empty.
const DefaultTopicPrefix = "edusat"

// Topic segments under a bridge's base topic.
const (
	segmentIn     = "in"
	segmentOut    = "out"
	segmentStatus = "status"
)

// Topics builds the topic hierarchy for one bridge instance.
//
//	{prefix}/{bridge_id}/in/{event}    events delivered to the bridge
//	{prefix}/{bridge_id}/out/{event}   events emitted by the bridge
//	{prefix}/{bridge_id}/status        retained online/offline status
type Topics struct {
	Prefix   string
	BridgeID string
}

// NewTopics returns topic builders for a bridge.
func NewTopics(prefix, bridgeID string) Topics {
	return Topics{Prefix: prefix, BridgeID: bridgeID}
}

func (t Topics) base() string {
	prefix := t.Prefix
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return fmt.Sprintf("%s/%s", prefix, t.BridgeID)
}

// Inbound returns the topic an event for the bridge arrives on.
//
// Example: edusat/edusat-01/in/command
func (t Topics) Inbound(event string) string {
	return fmt.Sprintf("%s/%s/%s", t.base(), segmentIn, event)
}

// AllInbound returns a pattern matching every inbound event.
//
// Pattern: edusat/edusat-01/in/+
func (t Topics) AllInbound() string {
	return t.Inbound("+")
}

// Outbound returns the topic the bridge emits an event on.
//
// Example: edusat/edusat-01/out/sensorResponse
func (t Topics) Outbound(event string) string {
	return fmt.Sprintf("%s/%s/%s", t.base(), segmentOut, event)
}

// Status returns the retained status topic.
//
// Example: edusat/edusat-01/status
func (t Topics) Status() string {
	return fmt.Sprintf("%s/%s", t.base(), segmentStatus)
}

// InboundEvent extracts the event name from an inbound topic.
// Returns false if topic is not an inbound topic of this bridge.
func (t Topics) InboundEvent(topic string) (string, bool) {
	prefix := t.base() + "/" + segmentIn + "/"
	event, ok := strings.CutPrefix(topic, prefix)
	if !ok || event == "" || strings.Contains(event, "/") {
		return "", false
	}
	return event, true
}
