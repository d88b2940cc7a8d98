package mqtt

import "fmt"

// Topic prefixes for the Barnabee message bus.
//
// The home backend exposes its service surface over MQTT: Barnabee publishes
// commands, the backend publishes per-request results, entity state updates
// and a retained service announcement.
const (
	// TopicPrefix is the base for all Barnabee topics.
	TopicPrefix = "barnabee"

	// TopicPrefixCore is the base for events Barnabee itself emits.
	TopicPrefixCore = "barnabee/core"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "barnabee/system"
)

// Topics provides builders for Barnabee MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.ServiceCommand("light", "req-abc123")
//	// Returns: "barnabee/command/light/req-abc123"
type Topics struct{}

// ServiceCommand returns the topic for one service command to the home
// backend. The request id correlates the command with its result.
//
// Example: barnabee/command/light/req-abc123
func (Topics) ServiceCommand(domain, requestID string) string {
	return fmt.Sprintf("%s/command/%s/%s", TopicPrefix, domain, requestID)
}

// ServiceResult returns the topic the backend answers a command on.
//
// Example: barnabee/result/req-abc123
func (Topics) ServiceResult(requestID string) string {
	return fmt.Sprintf("%s/result/%s", TopicPrefix, requestID)
}

// ServicesAnnounce returns the retained topic carrying the backend's
// service table (which domain.service pairs exist).
//
// Example: barnabee/services
func (Topics) ServicesAnnounce() string {
	return fmt.Sprintf("%s/services", TopicPrefix)
}

// EntityState returns the topic for one entity's state updates.
//
// Example: barnabee/state/light.kitchen
func (Topics) EntityState(entityID string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, entityID)
}

// CoreEvent returns the topic for events Barnabee emits.
//
// Example: barnabee/core/event/automation.registered
func (Topics) CoreEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixCore, eventType)
}

// SystemStatus returns the system status topic (online/offline, LWT).
//
// Example: barnabee/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllEntityStates returns a pattern matching every entity state topic.
//
// Pattern: barnabee/state/+
func (Topics) AllEntityStates() string {
	return fmt.Sprintf("%s/state/+", TopicPrefix)
}

// AllCoreEvents returns a pattern matching every core event topic.
//
// Pattern: barnabee/core/event/+
func (Topics) AllCoreEvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefixCore)
}

// AllServiceResults returns a pattern matching every command result.
//
// Pattern: barnabee/result/+
func (Topics) AllServiceResults() string {
	return fmt.Sprintf("%s/result/+", TopicPrefix)
}

// AllTopics returns a pattern matching all Barnabee topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: barnabee/#
func (Topics) AllTopics() string {
	return "barnabee/#"
}
