// Package mqtt connects Beacon Notify Core to an MQTT broker.
//
// The broker is an optional side channel. When enabled, the service
// publishes every recorded proximity event and every created notification
// under beaconnotify/user/{user_id}/..., and beacon gateways may publish
// raw readings to beaconnotify/ingest/{user_id}/proximity to have them
// recorded exactly as if a WebSocket client had sent them.
//
//	WebSocket clients ──► Core ──► MQTT broker ──► downstream consumers
//	beacon gateways   ──► MQTT broker ──► Core
//
// The Client wraps paho.mqtt.golang with auto-reconnect, subscription
// restoration after reconnect, panic-safe handlers and a retained
// online/offline status message backed by a Last Will.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllIngestProximity(), 1,
//	    func(topic string, payload []byte) error {
//	        userID, ok := mqtt.ParseIngestTopic(topic)
//	        ...
//	    })
package mqtt
