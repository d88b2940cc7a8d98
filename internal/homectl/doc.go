// Package homectl issues service calls to the home backend over MQTT.
//
// The backend advertises its service table on a retained topic and
// answers per-request commands on correlated result topics:
//
//	barnabee/services                      <- retained service table
//	barnabee/command/{domain}/{requestID}  -> one command
//	barnabee/result/{requestID}            <- its result
//
// The client generates a request id per call, publishes the command, and
// blocks on the matching result or the caller's context. It satisfies the
// execution engine's service caller contract, so it wires directly into
// the capability set.
//
// # Usage
//
//	caller := homectl.New(bus)
//	caller.SetLogger(logger)
//	if err := caller.Start(); err != nil {
//	    return err
//	}
//
//	resp, err := caller.Call(ctx, engine.ServiceCall{
//	    Domain:  "light",
//	    Service: "turn_on",
//	    Data:    map[string]any{"entity_id": "light.kitchen"},
//	})
package homectl
