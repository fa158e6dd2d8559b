package ingest

import "strings"

// Route describes a parsed MQTT topic.
type Route struct {
	Handler string // message kind: "session_start", "line", "session_end", "transcript", "status"
	Room    string // classroom identifier from the topic
}

// ParseTopic maps an MQTT topic string to a Route.
//
// Routing is based on the trailing two segments; the prefix is ignored,
// so any broker-side namespace works as long as MQTT_TOPICS matches:
//
//	.../classroom/{room}/session_start → session_start
//	.../classroom/{room}/line          → line
//	.../classroom/{room}/session_end   → session_end
//	.../classroom/{room}/transcript    → transcript
//	.../classroom/{room}/status        → status
func ParseTopic(topic string) *Route {
	parts := strings.Split(topic, "/")
	n := len(parts)
	if n < 2 {
		return nil
	}

	last := parts[n-1]
	room := parts[n-2]
	if room == "" || room == "classroom" {
		return nil
	}

	switch last {
	case "session_start", "line", "session_end", "transcript", "status":
		return &Route{Handler: last, Room: room}
	}

	return nil
}
