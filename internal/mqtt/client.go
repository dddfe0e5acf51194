// Package mqtt publishes simulation data to an MQTT broker, including
// Home Assistant discovery configs.
package mqtt

import (
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"homesim/internal/logger"
)

// AvailabilityTopic is the retained online/offline topic under the prefix.
const AvailabilityTopic = "availability"

// Config holds MQTT client configuration
type Config struct {
	Broker   string // MQTT broker address (e.g., "tcp://localhost:1883")
	ClientID string // Unique client ID
	Username string // MQTT username (optional)
	Password string // MQTT password (optional)
	Prefix   string // Topic prefix for all messages
	UseTLS   bool   // Enable TLS connection
}

// Sink is the publishing side of a client.
type Sink interface {
	PublishWithQoS(topic string, qos byte, retained bool, payload interface{}) error
	PublishRaw(topic string, payload interface{}, retained bool) error
	IsConnected() bool
	GetConfig() Config
}

// ErrNotConnected is returned when publishing before Connect.
var ErrNotConnected = errors.New("mqtt: client is not connected")

const (
	connectTimeout    = 10 * time.Second
	publishTimeout    = 5 * time.Second
	disconnectQuiesce = 250 // ms
)

// Client is a paho connection bound to one topic prefix.
type Client struct {
	paho mqtt.Client
	cfg  Config
	log  *logger.Logger

	mu        sync.RWMutex
	connected bool
}

// New prepares a client. It does not dial until Connect.
func New(cfg Config, log *logger.Logger) (*Client, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt: broker address is required")
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "homesim-" + uuid.NewString()[:8]
	}

	c := &Client{cfg: cfg, log: log.With("MQTT")}
	c.paho = mqtt.NewClient(c.options())
	return c, nil
}

func (c *Client) options() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions().
		AddBroker(c.cfg.Broker).
		SetClientID(c.cfg.ClientID).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(10 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetCleanSession(true)

	if c.cfg.Username != "" {
		opts.SetUsername(c.cfg.Username)
		opts.SetPassword(c.cfg.Password)
	}
	if c.cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	// Retained LWT flips availability to offline on an unclean drop.
	opts.SetWill(BuildTopic(c.cfg.Prefix, AvailabilityTopic), "offline", 1, true)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		c.log.Infof("Connected to broker %s as %s", c.cfg.Broker, c.cfg.ClientID)
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		c.log.Warnf("Connection lost: %v", err)
	})
	opts.SetReconnectingHandler(func(mqtt.Client, *mqtt.ClientOptions) {
		c.log.Infof("Reconnecting to %s", c.cfg.Broker)
	})
	return opts
}

// Connect dials the broker. Calling it on a connected client is a no-op.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connected {
		return nil
	}

	c.log.Infof("Connecting to broker %s", c.cfg.Broker)
	token := c.paho.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt: timed out connecting to %s", c.cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: connect to %s: %w", c.cfg.Broker, err)
	}
	c.connected = true
	return nil
}

// Disconnect closes the connection after in-flight messages drain.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return
	}
	c.paho.Disconnect(disconnectQuiesce)
	c.connected = false
	c.log.Infof("Disconnected from broker")
}

// Publish sends telemetry at QoS 0 under the prefix.
func (c *Client) Publish(topic string, payload interface{}) error {
	return c.PublishWithQoS(topic, 0, false, payload)
}

// PublishWithQoS sends payload to prefix/topic.
func (c *Client) PublishWithQoS(topic string, qos byte, retained bool, payload interface{}) error {
	return c.send(BuildTopic(c.cfg.Prefix, topic), qos, retained, payload)
}

// PublishRaw sends to an absolute topic at QoS 1, bypassing the prefix.
// Discovery configs live under homeassistant/.
func (c *Client) PublishRaw(topic string, payload interface{}, retained bool) error {
	return c.send(topic, 1, retained, payload)
}

func (c *Client) send(topic string, qos byte, retained bool, payload interface{}) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected {
		return ErrNotConnected
	}

	token := c.paho.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("mqtt: publish to %s timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt: publish to %s: %w", topic, err)
	}
	c.log.Debugf("Published to %s (qos %d, retained %v)", topic, qos, retained)
	return nil
}

// BuildTopic joins a prefix and a topic.
func BuildTopic(prefix, topic string) string {
	if prefix == "" {
		return topic
	}
	return prefix + "/" + topic
}

// IsConnected reports whether the client is connected right now. It turns
// false during automatic reconnects.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected && c.paho.IsConnected()
}

// GetConfig returns the client configuration with the resolved client ID.
func (c *Client) GetConfig() Config {
	return c.cfg
}
