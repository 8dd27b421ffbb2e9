// Package notify implements the pluggable notification delivery layer:
// the Provider capability, the explicit provider registry (Dispatcher),
// payload construction with template interpolation, and the concrete
// push, webhook, and MQTT providers.
//
// Providers never return Go errors from Send — every failure mode is
// captured in the Result value so a misbehaving delivery channel can never
// abort an evaluation cycle.
package notify
