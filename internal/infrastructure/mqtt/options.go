package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/edusat-bridge/internal/infrastructure/config"
)

const (
	connectTimeout    = 10 * time.Second
	operationTimeout  = 5 * time.Second
	keepAlive         = 60 * time.Second
	disconnectQuiesce = 250 // milliseconds

	maxQoS         = 2
	maxPayloadSize = 256 << 10

	// statusQoS is used for presence messages whatever the configured QoS.
	statusQoS = 1
)

// dialTimeout returns the configured connect timeout or the default.
func dialTimeout(cfg config.MQTTBrokerConfig) time.Duration {
	if cfg.ConnectTimeout > 0 {
		return time.Duration(cfg.ConnectTimeout) * time.Second
	}
	return connectTimeout
}

// brokerURL returns the paho server URL for the configured broker.
func brokerURL(cfg config.MQTTBrokerConfig) string {
	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)
}

// buildClientOptions maps the bridge's MQTT settings onto paho options.
// The last will announces the bridge offline on its status topic.
func buildClientOptions(cfg config.MQTTConfig, topics Topics) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(dialTimeout(cfg.Broker)).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	will := newStatus(StatusOffline, ReasonConnectionLost, topics.BridgeID, cfg.Broker.ClientID, time.Now())
	opts.SetBinaryWill(topics.Status(), will.Encode(), statusQoS, true)

	return opts
}
