// Package mqtt provides MQTT client connectivity for Bluerial.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions, restored after reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// Bluerial services talk to the outside world through four queue topics.
// Commands arrive on a consumer topic and notifications leave on the
// matching producer topic:
//
//	console ─► bluerial/ble/consumer    ─► BLE bridge
//	console ◄─ bluerial/ble/producer    ◄─ BLE bridge
//	console ─► bluerial/serial/consumer ─► serial bridge
//	console ◄─ bluerial/serial/producer ◄─ serial bridge
//
// Payloads are plain "<namespace>-<verb>[-###<payload>]" strings; see the
// protocol package.
//
// # Security Considerations
//
//   - Set cfg.Broker.TLS for anything beyond a local broker
//   - Credentials should come from BLUERIAL_MQTT_USERNAME / _PASSWORD
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	topics := mqtt.NewTopics(cfg.MQTT.Topics)
//	err = client.Subscribe(topics.BLENotifications(), 1,
//	    func(topic string, payload []byte) error {
//	        fmt.Println(string(payload))
//	        return nil
//	    })
//
//	client.Publish(topics.BLECommands(), []byte("ble-start"), 1, false)
package mqtt
