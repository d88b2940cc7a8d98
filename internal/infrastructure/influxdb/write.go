package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// RecordInvocation writes a function invocation measurement to InfluxDB.
//
// This is the primary telemetry method: every function the engine runs
// produces one point tagged by function name, executor kind, and outcome.
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - function: Function name (e.g., "execute_services", "get_weather")
//   - kind: Executor kind (e.g., "native", "rest", "composite")
//   - duration: Wall-clock execution time
//   - outcome: "success" or "error"
//
// Example:
//
//	client.RecordInvocation("execute_services", "native", 45*time.Millisecond, "success")
func (c *Client) RecordInvocation(function, kind string, duration time.Duration, outcome string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"function_invocations",
		map[string]string{
			"function": function,
			"kind":     kind,
			"outcome":  outcome,
		},
		map[string]interface{}{
			"duration_ms": float64(duration.Microseconds()) / 1000.0,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteServiceCall writes a backend service call measurement.
//
// Used for tracking which domain.service pairs get invoked and whether
// the backend accepted them.
//
// Parameters:
//   - domain: Service domain (e.g., "light", "climate")
//   - service: Service name (e.g., "turn_on")
//   - success: Whether the backend reported success
func (c *Client) WriteServiceCall(domain, service string, success bool) {
	if !c.IsConnected() {
		return
	}

	outcome := "success"
	if !success {
		outcome = "error"
	}

	point := write.NewPoint(
		"service_calls",
		map[string]string{
			"domain":  domain,
			"service": service,
			"outcome": outcome,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "barnabee-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
