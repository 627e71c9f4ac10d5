// Package influxdb records proximity telemetry in InfluxDB v2.
//
// Every proximity event accepted by the realtime router becomes one point
// in the "proximity" measurement, tagged by user and beacon, so distance
// trends can be charted without touching the SQLite store. Writes go
// through the client library's non-blocking batched WriteAPI; failures
// surface asynchronously through SetOnError.
//
// The integration is optional. Connect returns ErrDisabled when
// influxdb.enabled is false.
package influxdb
