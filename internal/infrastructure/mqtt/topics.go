package mqtt

import "strings"

// DefaultTopicPrefix is used when the configured prefix is empty.
const DefaultTopicPrefix = "icu"

// Topics builds the controller's MQTT topics under a per-device prefix.
//
//	topics := mqtt.NewTopics("icu/lab-rig")
//	topics.Lifecycle()             // icu/lab-rig/state/lifecycle
//	topics.Perception("DETECTION") // icu/lab-rig/event/perception/detection
type Topics struct {
	prefix string
}

// NewTopics returns builders rooted at prefix. Leading and trailing
// slashes are trimmed.
func NewTopics(prefix string) Topics {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return Topics{prefix: prefix}
}

// Prefix returns the root of every topic.
func (t Topics) Prefix() string { return t.prefix }

// Lifecycle is the retained current-state topic.
func (t Topics) Lifecycle() string {
	return t.prefix + "/state/lifecycle"
}

// Perception is the event topic for one message kind, lower-cased.
func (t Topics) Perception(kind string) string {
	return t.prefix + "/event/perception/" + strings.ToLower(kind)
}

// AllPerception matches every perception event topic.
func (t Topics) AllPerception() string {
	return t.prefix + "/event/perception/+"
}

// Environment is the climate reading topic.
func (t Topics) Environment() string {
	return t.prefix + "/telemetry/environment"
}

// StartupFailure is the event topic for peripheral bring-up failures.
func (t Topics) StartupFailure() string {
	return t.prefix + "/event/startup/failure"
}

// SystemStatus carries online/offline status and the LWT.
func (t Topics) SystemStatus() string {
	return t.prefix + "/system/status"
}
