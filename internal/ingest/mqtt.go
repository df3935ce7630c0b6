package ingest

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/device-track/dtc/internal/config"
	"github.com/device-track/dtc/internal/telemetry"
)

// Publisher is the router surface the bridge pushes decoded fixes into.
type Publisher interface {
	Broadcast(deviceID string, raw telemetry.RawFix) (int, error)
}

// Bridge subscribes to the device fix topic tree on an MQTT broker and
// republishes every decoded fix through the broadcast router.
type Bridge struct {
	cfg       config.MQTTConfig
	publisher Publisher
	logger    *slog.Logger
	client    mqtt.Client
}

// NewBridge creates a bridge; Start connects and subscribes.
func NewBridge(cfg config.MQTTConfig, publisher Publisher, logger *slog.Logger) *Bridge {
	return &Bridge{
		cfg:       cfg,
		publisher: publisher,
		logger:    logger,
	}
}

// Start connects to the broker and subscribes to <prefix>/+/fix.
func (b *Bridge) Start() error {
	opts := mqtt.NewClientOptions().
		AddBroker(b.cfg.BrokerURL).
		SetClientID(b.cfg.ClientID).
		SetAutoReconnect(true)

	b.client = mqtt.NewClient(opts)
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to connect to MQTT broker %s: %w", b.cfg.BrokerURL, token.Error())
	}

	topic := b.cfg.TopicPrefix + "/+/fix"
	if token := b.client.Subscribe(topic, 1, b.handleMessage); token.Wait() && token.Error() != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, token.Error())
	}

	b.logger.Info("mqtt ingest started",
		"broker", b.cfg.BrokerURL,
		"topic", topic,
		"format", b.cfg.Format,
	)
	return nil
}

// Stop disconnects from the broker.
func (b *Bridge) Stop() {
	if b.client != nil {
		b.client.Disconnect(250)
	}
}

// handleMessage decodes one broker message and routes it. Malformed traffic
// is logged and dropped; a bad producer must not take the bridge down.
func (b *Bridge) handleMessage(_ mqtt.Client, msg mqtt.Message) {
	deviceID, ok := deviceFromTopic(msg.Topic())
	if !ok {
		b.logger.Warn("ignoring message on unexpected topic", "topic", msg.Topic())
		return
	}

	fix, err := b.decode(msg.Payload())
	if err != nil {
		b.logger.Warn("dropping undecodable fix", "device", deviceID, "error", err)
		return
	}

	delivered, err := b.publisher.Broadcast(deviceID, fix)
	if err != nil {
		b.logger.Warn("fix rejected", "device", deviceID, "error", err)
		return
	}
	b.logger.Debug("ingested fix", "device", deviceID, "delivered", delivered)
}

func (b *Bridge) decode(payload []byte) (telemetry.RawFix, error) {
	switch b.cfg.Format {
	case "nmea":
		return parseNMEAFix(payload)
	default:
		var fix telemetry.RawFix
		if err := json.Unmarshal(payload, &fix); err != nil {
			return telemetry.RawFix{}, fmt.Errorf("failed to unmarshal fix: %w", err)
		}
		return fix, nil
	}
}

// deviceFromTopic extracts the device id from <prefix>/<deviceId>/fix. The
// prefix may span several segments.
func deviceFromTopic(topic string) (string, bool) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[len(parts)-1] != "fix" {
		return "", false
	}
	deviceID := parts[len(parts)-2]
	if deviceID == "" {
		return "", false
	}
	return deviceID, true
}
