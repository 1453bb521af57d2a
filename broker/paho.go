package broker

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"
)

// Will describes the last-will publication the broker sends on our
// behalf if the connection drops uncleanly, typically a Deadvertise
// event for the local identity (spec §4.6 "ungraceful disconnection").
type Will struct {
	Topic   string
	Payload []byte
}

// PahoOptions configures a PahoAdapter.
type PahoOptions struct {
	// BrokerURL is a URL such as "mqtt://host:1883" or "mqtts://host:8883".
	BrokerURL string
	ClientID   string
	Username   string
	Password   string
	KeepAlive  uint16
	Will       *Will
	Logger     *slog.Logger

	// ConnectTimeout bounds how long Connect waits for the first
	// handshake to complete before returning; autopaho keeps retrying
	// in the background regardless.
	ConnectTimeout time.Duration
}

// PahoAdapter implements Client on top of eclipse/paho.golang's
// autopaho connection manager, which owns automatic reconnection and
// keepalive. Subscriptions are not remembered across reconnects by
// autopaho itself; PahoAdapter replays them from its own bookkeeping in
// OnConnectionUp, mirroring the re-subscribe-on-reconnect pattern.
type PahoAdapter struct {
	opts PahoOptions

	mu         sync.Mutex
	cm         *autopaho.ConnectionManager
	filters    map[string]bool
	handler    Handler
	connObserv ConnectionObserver
}

// NewPahoAdapter constructs an adapter that has not yet connected.
func NewPahoAdapter(opts PahoOptions) *PahoAdapter {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.KeepAlive == 0 {
		opts.KeepAlive = 30
	}
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	return &PahoAdapter{opts: opts, filters: map[string]bool{}}
}

func (a *PahoAdapter) Connect(ctx context.Context) error {
	brokerURL, err := url.Parse(a.opts.BrokerURL)
	if err != nil {
		return fmt.Errorf("broker: parse broker url: %w", err)
	}

	cfg := autopaho.ClientConfig{
		ServerUrls:      []*url.URL{brokerURL},
		KeepAlive:       a.opts.KeepAlive,
		ConnectUsername: a.opts.Username,
		ConnectPassword: []byte(a.opts.Password),
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			a.opts.Logger.Info("broker connected", "broker", a.opts.BrokerURL)
			a.mu.Lock()
			filters := make([]string, 0, len(a.filters))
			for f := range a.filters {
				filters = append(filters, f)
			}
			a.mu.Unlock()
			if len(filters) > 0 {
				a.resubscribe(cm, filters)
			}
			a.observeUp()
		},
		OnConnectError: func(err error) {
			a.opts.Logger.Warn("broker connection error", "error", err)
			a.observeDown(err)
		},
		ClientConfig: paho.ClientConfig{
			ClientID: a.opts.ClientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				func(pr paho.PublishReceived) (bool, error) {
					a.mu.Lock()
					h := a.handler
					a.mu.Unlock()
					if h != nil {
						h(Message{Topic: pr.Packet.Topic, Payload: pr.Packet.Payload})
					}
					return true, nil
				},
			},
		},
	}

	if a.opts.Will != nil {
		cfg.WillMessage = &paho.WillMessage{
			Topic:   a.opts.Will.Topic,
			Payload: a.opts.Will.Payload,
			QoS:     1,
		}
	}

	if brokerURL.Scheme == "mqtts" || brokerURL.Scheme == "ssl" {
		cfg.TlsCfg = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return fmt.Errorf("broker: connect: %w", err)
	}
	a.mu.Lock()
	a.cm = cm
	a.mu.Unlock()

	connCtx, cancel := context.WithTimeout(ctx, a.opts.ConnectTimeout)
	defer cancel()
	if err := cm.AwaitConnection(connCtx); err != nil {
		a.opts.Logger.Warn("broker initial connection timed out, retrying in background", "error", err)
	}
	return nil
}

func (a *PahoAdapter) resubscribe(cm *autopaho.ConnectionManager, filters []string) {
	opts := make([]paho.SubscribeOptions, 0, len(filters))
	for _, f := range filters {
		opts = append(opts, paho.SubscribeOptions{Topic: f, QoS: 0})
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := cm.Subscribe(ctx, &paho.Subscribe{Subscriptions: opts}); err != nil {
		a.opts.Logger.Error("broker resubscribe failed", "error", err, "filters", filters)
	}
}

func (a *PahoAdapter) Publish(ctx context.Context, topic string, payload []byte, retain bool) error {
	a.mu.Lock()
	cm := a.cm
	a.mu.Unlock()
	if cm == nil {
		return ErrNotConnected
	}
	_, err := cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		Payload: payload,
		QoS:     0,
		Retain:  retain,
	})
	if err != nil {
		return fmt.Errorf("broker: publish %q: %w", topic, err)
	}
	return nil
}

func (a *PahoAdapter) Subscribe(ctx context.Context, filter string) error {
	a.mu.Lock()
	cm := a.cm
	a.filters[filter] = true
	a.mu.Unlock()
	if cm == nil {
		return ErrNotConnected
	}
	_, err := cm.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: filter, QoS: 0}},
	})
	if err != nil {
		return fmt.Errorf("broker: subscribe %q: %w", filter, err)
	}
	return nil
}

func (a *PahoAdapter) Unsubscribe(ctx context.Context, filter string) error {
	a.mu.Lock()
	cm := a.cm
	delete(a.filters, filter)
	a.mu.Unlock()
	if cm == nil {
		return ErrNotConnected
	}
	_, err := cm.Unsubscribe(ctx, &paho.Unsubscribe{Topics: []string{filter}})
	if err != nil {
		return fmt.Errorf("broker: unsubscribe %q: %w", filter, err)
	}
	return nil
}

func (a *PahoAdapter) OnMessage(h Handler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.handler = h
}

func (a *PahoAdapter) OnConnectionChange(o ConnectionObserver) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.connObserv = o
}

func (a *PahoAdapter) observeUp() {
	a.mu.Lock()
	o := a.connObserv
	a.mu.Unlock()
	if o != nil {
		o(true, nil)
	}
}

func (a *PahoAdapter) observeDown(err error) {
	a.mu.Lock()
	o := a.connObserv
	a.mu.Unlock()
	if o != nil {
		o(false, err)
	}
}

func (a *PahoAdapter) Disconnect(ctx context.Context) error {
	a.mu.Lock()
	cm := a.cm
	a.mu.Unlock()
	if cm == nil {
		return nil
	}
	return cm.Disconnect(ctx)
}
