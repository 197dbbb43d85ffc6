package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"i4.energy/across/espgw/modem"
)

// FrameMessage is an inbound +IPD payload as delivered to websocket
// clients and MQTT subscribers.
type FrameMessage struct {
	ID         string    `json:"id"`
	Link       string    `json:"link"`
	Length     int       `json:"length"`
	Payload    string    `json:"payload"`
	ReceivedAt time.Time `json:"received_at"`
}

func newFrameMessage(frame modem.Frame, payload []byte) FrameMessage {
	return FrameMessage{
		ID:         uuid.New().String(),
		Link:       frame.Link.String(),
		Length:     frame.Length,
		Payload:    string(payload[:frame.Length]),
		ReceivedAt: time.Now().UTC(),
	}
}

// FrameHub fans frames out to subscribers. Slow subscribers miss frames
// rather than stalling the poller.
type FrameHub struct {
	mu   sync.Mutex
	subs map[chan FrameMessage]struct{}
}

func NewFrameHub() *FrameHub {
	return &FrameHub{subs: make(map[chan FrameMessage]struct{})}
}

// Subscribe registers a new subscriber. The returned function removes it
// and closes the channel.
func (h *FrameHub) Subscribe() (<-chan FrameMessage, func()) {
	ch := make(chan FrameMessage, 16)

	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Broadcast delivers msg to every subscriber with room in its queue and
// returns how many received it.
func (h *FrameHub) Broadcast(msg FrameMessage) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for ch := range h.subs {
		select {
		case ch <- msg:
			delivered++
		default:
		}
	}
	return delivered
}

// Subscribers returns the number of registered subscribers.
func (h *FrameHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Publisher forwards frames to a message broker.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

// MQTTPublisher publishes frames through a paho client.
type MQTTPublisher struct {
	client mqtt.Client
}

// DialMQTT connects to the broker configured in cfg.
func DialMQTT(cfg MQTTConfig, logger *zap.Logger) (*MQTTPublisher, error) {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetOrderMatters(false)
	opts.SetAutoReconnect(true)
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		logger.Warn("MQTT connection lost", zap.Error(err))
	})
	opts.SetOnConnectHandler(func(mqtt.Client) {
		logger.Info("MQTT connected", zap.String("broker", cfg.Broker))
	})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", cfg.Broker, err)
	}
	return &MQTTPublisher{client: client}, nil
}

func (p *MQTTPublisher) Publish(topic string, payload []byte) error {
	token := p.client.Publish(topic, 0, false, payload)
	token.Wait()
	return token.Error()
}

// Close disconnects from the broker, allowing in-flight publishes 250ms.
func (p *MQTTPublisher) Close() {
	p.client.Disconnect(250)
}

// FramePoller repeatedly calls Receive on the modem and forwards decoded
// frames to the hub and, when set, the publisher under Topic/<link>.
type FramePoller struct {
	Logger    *zap.Logger
	Modem     *modem.Modem
	Hub       *FrameHub
	Publisher Publisher
	Topic     string
	Wait      time.Duration

	buf []byte
}

// Poll performs one receive attempt. It returns modem.ErrEmptyData or
// modem.ErrEmptyStream when nothing was pending.
func (p *FramePoller) Poll() (FrameMessage, error) {
	if p.buf == nil {
		p.buf = make([]byte, modem.MaxFrameLength+1)
	}

	frame, err := p.Modem.Receive(p.buf, p.Wait)
	if err != nil {
		return FrameMessage{}, err
	}
	msg := newFrameMessage(frame, p.buf)

	if p.Hub != nil {
		p.Hub.Broadcast(msg)
	}
	if p.Publisher != nil {
		payload, err := json.Marshal(msg)
		if err != nil {
			return msg, fmt.Errorf("encode frame: %w", err)
		}
		topic := p.Topic + "/" + msg.Link
		if err := p.Publisher.Publish(topic, payload); err != nil {
			return msg, fmt.Errorf("publish to %s: %w", topic, err)
		}
	}
	return msg, nil
}

// Run polls until ctx is done. Receive paces the loop through its wait.
func (p *FramePoller) Run(ctx context.Context) {
	p.Logger.Info("Frame poller started", zap.Duration("wait", p.Wait))
	defer p.Logger.Info("Frame poller stopped")

	for ctx.Err() == nil {
		msg, err := p.Poll()
		switch {
		case err == nil:
			p.Logger.Debug("Frame forwarded",
				zap.String("id", msg.ID),
				zap.String("link", msg.Link),
				zap.Int("length", msg.Length),
			)
		case errors.Is(err, modem.ErrEmptyData), errors.Is(err, modem.ErrEmptyStream):
		default:
			p.Logger.Warn("Frame poll failed", zap.Error(err))
		}
	}
}
