// Package mqtt provides MQTT client functionality for Barnabee's message bus.
//
// Barnabee talks to the home backend over MQTT: service commands go out on
// per-request topics, the backend answers with per-request results, publishes
// entity state updates, and keeps a retained announcement of its service
// table. This package wraps the Eclipse Paho client with connection
// management, automatic reconnection, and subscription restoration.
//
// # Architecture
//
//	Barnabee <---> MQTT Broker <---> Home Backend
//	                   ^
//	                   |
//	             Other consumers
//	             (dashboards, recorders)
//
// # Topic Structure
//
// All topics use the "barnabee/" prefix:
//
//	barnabee/command/{domain}/{requestID}  - Service commands to the backend
//	barnabee/result/{requestID}            - Per-request command results
//	barnabee/services                      - Retained backend service table
//	barnabee/state/{entityID}              - Entity state updates
//	barnabee/core/event/{type}             - Events Barnabee emits
//	barnabee/system/status                 - Online/offline status (LWT)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return fmt.Errorf("mqtt connect: %w", err)
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{}
//
//	// Subscribe to all entity state updates.
//	err = client.Subscribe(topics.AllEntityStates(), func(topic string, payload []byte) {
//	    // parse state update, refresh registry
//	})
//
//	// Publish a service command.
//	err = client.Publish(topics.ServiceCommand("light", "req-abc123"), payload)
//
// # Reconnection
//
// The client reconnects automatically with exponential backoff and restores
// all subscriptions after reconnection. Handlers registered via Subscribe
// survive broker restarts without caller involvement.
//
// # Last Will and Testament
//
// On connect the client registers a retained LWT on barnabee/system/status
// so consumers can detect ungraceful disconnects. A graceful Close publishes
// the offline status explicitly before disconnecting.
package mqtt
