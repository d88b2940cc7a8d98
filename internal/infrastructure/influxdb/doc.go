// Package influxdb provides InfluxDB connectivity for Barnabee.
//
// It wraps the official influxdb-client-go v2 library with Barnabee-specific
// patterns for connection management, metric writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Function invocation metrics (name, kind, duration, outcome)
//   - Backend service call tracking
//   - Ad-hoc operational measurements
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "barnabee",
//	    Bucket: "metrics",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Record a function invocation
//	client.RecordInvocation("get_weather", "rest", 120*time.Millisecond, "success")
//
// The client satisfies the engine's telemetry interface, so it can be
// installed directly via engine.SetTelemetry.
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead for high-frequency telemetry data.
package influxdb
