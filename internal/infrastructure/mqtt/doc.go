// Package mqtt connects the bridge to an MQTT broker.
//
// When network.transport is "mqtt" the bridge exchanges its channel events
// over per-bridge topics instead of a WebSocket:
//
//	{prefix}/{bridge_id}/in/{event}    inbound (command, sensorRequest)
//	{prefix}/{bridge_id}/out/{event}   outbound (sensorResponse, message)
//	{prefix}/{bridge_id}/status        retained presence, see Status
//
// paho handles reconnection. The client restores subscriptions on every
// reconnect, republishes its online status and registers an offline last
// will so a ground station sees a bridge that vanished.
//
// TLS (broker.tls) should be enabled whenever the broker is outside the lab.
//
//	client := mqtt.New(cfg.MQTT, cfg.Bridge.ID)
//	client.SetOnConnect(func() { ... })
//	if err := client.Start(); err != nil {
//	    return err
//	}
//	defer client.Close()
package mqtt
