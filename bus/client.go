// Package bus connects the pipeline to the MQTT message bus: inbound
// event recording requests, outbound event video notices.
package bus

import (
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/roadeye/ivms/config"
	"github.com/roadeye/ivms/record"
)

const (
	connectTimeout = 5 * time.Second
	publishTimeout = 2 * time.Second
)

// eventRequestWire is the inbound request payload. Stream ids on the
// wire are one based.
type eventRequestWire struct {
	EventID       int    `json:"event_id"`
	ViolationType string `json:"event_violation_type"`
	StreamID      int    `json:"stream_id"`
}

// Client is the MQTT connection shared by the request subscriber and the
// notice publisher
type Client struct {
	cfg       config.MQTT
	client    mqtt.Client
	onRequest func(record.EventRequest)
	log       zerolog.Logger
}

// NewClient creates a disconnected client. onRequest receives decoded
// event recording requests; it may be nil for publish-only use.
func NewClient(cfg config.MQTT, onRequest func(record.EventRequest),
	log zerolog.Logger) *Client {

	return &Client{
		cfg:       cfg,
		onRequest: onRequest,
		log:       log,
	}
}

// Connect establishes the broker connection and subscribes to the
// request topic. Subscriptions are re-established on every reconnect.
func (c *Client) Connect() error {

	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.cfg.Broker)
	opts.SetClientID("ivms-" + uuid.NewString())
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(cl mqtt.Client) {
		c.log.Info().Str("broker", c.cfg.Broker).Msg("mqtt connected")
		c.subscribe(cl)
	}

	opts.OnConnectionLost = func(cl mqtt.Client, err error) {
		c.log.Warn().Err(err).Str("broker", c.cfg.Broker).
			Msg("mqtt connection lost, reconnecting")
	}

	c.client = mqtt.NewClient(opts)

	token := c.client.Connect()

	if !token.WaitTimeout(connectTimeout) {
		return fmt.Errorf("mqtt connect timeout to %s", c.cfg.Broker)
	}

	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect to %s: %w", c.cfg.Broker, err)
	}

	return nil
}

func (c *Client) subscribe(cl mqtt.Client) {

	if c.onRequest == nil {
		return
	}

	token := cl.Subscribe(c.cfg.RequestTopic, 1, c.handleRequest)

	if !token.WaitTimeout(connectTimeout) || token.Error() != nil {
		c.log.Error().Err(token.Error()).Str("topic", c.cfg.RequestTopic).
			Msg("subscribing to event requests failed")
		return
	}

	c.log.Info().Str("topic", c.cfg.RequestTopic).
		Msg("subscribed to event requests")
}

func (c *Client) handleRequest(_ mqtt.Client, msg mqtt.Message) {

	var wire eventRequestWire

	if err := json.Unmarshal(msg.Payload(), &wire); err != nil {
		c.log.Error().Err(err).Str("topic", msg.Topic()).
			Msg("malformed event request")
		return
	}

	c.log.Info().Int("event", wire.EventID).Int("stream", wire.StreamID).
		Str("type", wire.ViolationType).Msg("event request received")

	c.onRequest(record.EventRequest{
		EventID:       wire.EventID,
		ViolationType: wire.ViolationType,
		StreamID:      wire.StreamID - 1,
	})
}

// PublishEventVideo publishes the notice on the video topic. A failed
// publish re-initializes the connection and retries once.
func (c *Client) PublishEventVideo(notice record.EventNotice) error {

	payload, err := json.Marshal(notice)

	if err != nil {
		return fmt.Errorf("marshalling event notice: %w", err)
	}

	if err := c.publish(payload); err == nil {
		return nil
	}

	c.log.Warn().Int("event", notice.EventID).
		Msg("publish failed, reconnecting for retry")

	c.client.Disconnect(250)

	if err := c.Connect(); err != nil {
		return err
	}

	return c.publish(payload)
}

func (c *Client) publish(payload []byte) error {

	token := c.client.Publish(c.cfg.VideoTopic, 0, false, payload)

	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout on %s", c.cfg.VideoTopic)
	}

	return token.Error()
}

// Disconnect closes the broker connection
func (c *Client) Disconnect() {
	if c.client != nil && c.client.IsConnected() {
		c.client.Disconnect(250)
	}
}
