package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// MeasurementProximity is the measurement holding proximity readings.
const MeasurementProximity = "proximity"

// WriteProximityMetric records one proximity reading. The write is
// buffered and returns immediately.
func (c *Client) WriteProximityMetric(userID, beaconID string, distance float64, motion bool, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(proximityPoint(userID, beaconID, distance, motion, ts))
}

// WritePoint writes an arbitrary point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, time.Now()))
}

func proximityPoint(userID, beaconID string, distance float64, motion bool, ts time.Time) *write.Point {
	if ts.IsZero() {
		ts = time.Now()
	}
	return write.NewPoint(
		MeasurementProximity,
		map[string]string{
			"user_id":   userID,
			"beacon_id": beaconID,
		},
		map[string]any{
			"distance": distance,
			"motion":   motion,
		},
		ts,
	)
}
