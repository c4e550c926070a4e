package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/jgoulah/meterfetch/internal/config"
	"github.com/jgoulah/meterfetch/internal/logger"
	"github.com/jgoulah/meterfetch/pkg/models"
)

// ErrNoTarget is returned when neither MQTT nor Home Assistant is enabled
var ErrNoTarget = errors.New("no publish target enabled (mqtt or home_assistant)")

// Publisher sends stored readings to MQTT and/or Home Assistant
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	haConfig    config.HAConfig
	http        *http.Client
	logger      *slog.Logger
}

// New creates a publisher for whichever targets are enabled. The MQTT client
// connects immediately.
func New(mqttCfg config.MQTTConfig, haCfg config.HAConfig, topicPrefix string, log *slog.Logger) (*Publisher, error) {
	// At least one target must be enabled
	if !mqttCfg.Enabled && !haCfg.Enabled {
		return nil, ErrNoTarget
	}

	// Validate HA config if enabled
	if haCfg.Enabled {
		if haCfg.URL == "" {
			return nil, fmt.Errorf("Home Assistant URL is required when enabled")
		}
		if haCfg.Token == "" {
			return nil, fmt.Errorf("Home Assistant token is required when enabled")
		}
		if haCfg.EntityID == "" {
			return nil, fmt.Errorf("Home Assistant entity_id is required when enabled")
		}
	}

	p := &Publisher{
		topicPrefix: topicPrefix,
		haConfig:    haCfg,
		http:        &http.Client{Timeout: 10 * time.Second},
		logger:      logger.OrDiscard(log),
	}

	if mqttCfg.Enabled {
		if mqttCfg.Broker == "" {
			return nil, fmt.Errorf("MQTT broker address is required when enabled")
		}

		// Configure MQTT client options
		opts := mqtt.NewClientOptions()
		opts.AddBroker(fmt.Sprintf("tcp://%s", mqttCfg.Broker))
		opts.SetClientID("meterfetch-" + uuid.NewString()[:8])
		opts.SetAutoReconnect(true)
		opts.SetConnectRetry(true)
		opts.SetConnectTimeout(10 * time.Second)

		if mqttCfg.Username != "" {
			opts.SetUsername(mqttCfg.Username)
		}
		if mqttCfg.Password != "" {
			opts.SetPassword(mqttCfg.Password)
		}

		// Create and connect client
		p.client = mqtt.NewClient(opts)
		if token := p.client.Connect(); token.Wait() && token.Error() != nil {
			return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
		}
	}

	return p, nil
}

// Message is the JSON body published for one reading
type Message struct {
	Timestamp   string  `json:"timestamp"`
	UsagePoint  string  `json:"usage_point_id"`
	Endpoint    string  `json:"endpoint"`
	Consumption float64 `json:"consumption"`
	Price       float64 `json:"price,omitempty"`
	Filled      bool    `json:"filled,omitempty"`
}

// Topic returns <prefix>/<usage point>/<endpoint>
func (p *Publisher) Topic(reading models.UsageData) string {
	return fmt.Sprintf("%s/%s/%s", p.topicPrefix, reading.UsagePointID, reading.Endpoint)
}

// Publish sends one reading to every enabled target
func (p *Publisher) Publish(ctx context.Context, reading models.UsageData) error {
	if p.client != nil {
		if err := p.publishMQTT(reading); err != nil {
			return err
		}
	}
	if p.haConfig.Enabled {
		if err := p.backfill(ctx, reading); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) publishMQTT(reading models.UsageData) error {
	body, err := json.Marshal(Message{
		Timestamp:   reading.Timestamp.UTC().Format(time.RFC3339),
		UsagePoint:  reading.UsagePointID,
		Endpoint:    reading.Endpoint,
		Consumption: reading.Consumption,
		Price:       reading.Price,
		Filled:      reading.Filled,
	})
	if err != nil {
		return fmt.Errorf("encoding message: %w", err)
	}

	// QoS 1 so the broker acknowledges each reading
	topic := p.Topic(reading)
	token := p.client.Publish(topic, 1, false, body)
	if !token.WaitTimeout(10 * time.Second) {
		return fmt.Errorf("publishing to %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publishing to %s: %w", topic, err)
	}
	p.logger.Debug("published reading", slog.String("topic", topic))
	return nil
}

// Close disconnects from the MQTT broker
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
