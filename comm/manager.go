// Package comm implements the Communication Manager (spec §4.6): the
// public surface controllers use to publish and observe events, the
// operating-state machine that gates when traffic may flow, the
// deferred-publish queue that buffers writes submitted while offline,
// and identity/device advertisement on reaching Online.
package comm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/agentmesh/commcore/broker"
	"github.com/agentmesh/commcore/correlate"
	"github.com/agentmesh/commcore/ctxfilter"
	"github.com/agentmesh/commcore/event"
	"github.com/agentmesh/commcore/internal/buildinfo"
	"github.com/agentmesh/commcore/internal/config"
	"github.com/agentmesh/commcore/object"
	"github.com/agentmesh/commcore/registry"
	"github.com/agentmesh/commcore/state"
	"github.com/agentmesh/commcore/topic"
	"github.com/prometheus/client_golang/prometheus"
)

// Handler receives one decoded inbound event.
type Handler func(event.Raw)

// RawHandler receives one inbound Raw message: the wire topic it
// arrived on and its payload bytes.
type RawHandler func(topic string, payload []byte)

// Options configures a Manager. Client is optional; when nil, New
// builds a broker.PahoAdapter from Config.BrokerURL.
type Options struct {
	Config config.Config
	Client broker.Client
	Logger *slog.Logger

	// Registerer registers Prometheus collectors when Config.MetricsEnabled
	// is true. A nil Registerer with MetricsEnabled true falls back to
	// prometheus.DefaultRegisterer.
	Registerer prometheus.Registerer

	// AssociatedDevice is advertised on Online when
	// Config.ShouldAdvertiseDevice is true (spec §6 "associatedDevice").
	AssociatedDevice *object.Object
}

// Manager is the single per-process owner of one broker connection, its
// Subscription Registry, its Correlation Engine, and its operating
// state (spec §5 "one broker connection per communication manager").
type Manager struct {
	cfg     config.Config
	logger  *slog.Logger
	client  broker.Client
	relay   *relay
	reg     *registry.Registry
	engine  *correlate.Engine
	machine *state.Machine
	queue   *deferredQueue
	metrics *metricsSet

	identity         object.Component
	associatedUser   *topic.Identifier
	associatedDevice *object.Object

	mu          sync.Mutex
	controllers []Controller
	shutdown    bool
}

// New constructs a Manager in the Initial state. It does not connect to
// the broker; call Start for that.
func New(opts Options) (*Manager, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	identity, err := loadOrCreateIdentity(opts.Config.DataDir, opts.Config.Identity.ObjectType, opts.Config.Identity.Name)
	if err != nil {
		return nil, fmt.Errorf("comm: load identity: %w", err)
	}

	var associatedUser *topic.Identifier
	if opts.Config.AssociatedUserID != "" {
		associatedUser = &topic.Identifier{ID: opts.Config.AssociatedUserID, Name: opts.Config.AssociatedUserName}
	}

	client := opts.Client
	if client == nil {
		client = broker.NewPahoAdapter(broker.PahoOptions{
			BrokerURL: opts.Config.BrokerURL,
			ClientID:  buildinfo.ClientIDPrefix() + identity.ObjectID,
			Logger:    logger,
		})
	}

	var reg prometheus.Registerer
	if opts.Config.MetricsEnabled {
		reg = opts.Registerer
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
	}

	rl := newRelay(client, identity.ObjectID)
	subReg := registry.New(rl)
	engine := correlate.New(rl, subReg, identity.ObjectID, associatedUser, opts.Config.UseReadableTopics)
	machine := state.New()

	m := &Manager{
		cfg:              opts.Config,
		logger:           logger,
		client:           client,
		relay:            rl,
		reg:              subReg,
		engine:           engine,
		machine:          machine,
		queue:            newDeferredQueue(opts.Config.DeferredQueueSize, logger),
		metrics:          newMetricsSet(reg),
		identity:         identity,
		associatedUser:   associatedUser,
		associatedDevice: opts.AssociatedDevice,
	}

	machine.Observe(m.onStateChange)
	rl.addConnectionObserver(m.onConnectionChange)

	return m, nil
}

// Identity returns this manager's own Component, the sender identity
// stamped on every event it publishes.
func (m *Manager) Identity() object.Component { return m.identity }

// State returns the manager's current operating state.
func (m *Manager) State() state.State { return m.machine.Current() }

// ObserveState registers o to receive every future operating-state
// transition (spec §4.6). Not replayed the current state.
func (m *Manager) ObserveState(o state.Observer) { m.machine.Observe(o) }

// Register attaches a controller to this manager, calling its
// OnContainerResolved hook immediately (spec §4.6.1).
func (m *Manager) Register(c Controller) {
	m.mu.Lock()
	m.controllers = append(m.controllers, c)
	m.mu.Unlock()
	c.OnContainerResolved(m)
}

// onStateChange carries out the side effects that bracket each
// transition: flushing deferred publishes and advertising identity on
// Online, deadvertising on Stopping (spec §4.6, §5 "state-machine
// notifications strictly precede/follow the publishes they bracket").
func (m *Manager) onStateChange(s state.State) {
	m.metrics.observeStateTransition(s.String())

	ctx := context.Background()
	switch s {
	case state.Online:
		m.flushDeferred()
		if m.cfg.AdvertiseIdentity() {
			if err := m.publishAdvertise(ctx, m.identity.Object); err != nil {
				m.logger.Warn("comm: advertise identity failed", "error", err)
			}
		}
		if m.cfg.ShouldAdvertiseDevice && m.associatedDevice != nil {
			if err := m.publishAdvertise(ctx, *m.associatedDevice); err != nil {
				m.logger.Warn("comm: advertise device failed", "error", err)
			}
		}
	case state.Stopping:
		if m.cfg.AdvertiseIdentity() {
			data := event.DeadvertiseData{ObjectIDs: []string{m.identity.ObjectID}}
			env, err := event.NewEnvelope(event.KindDeadvertise, m.identity.ObjectType, m.identity.ObjectID, data)
			if err == nil {
				if err := m.publishEnvelope(ctx, env.Kind, env.Filter, data); err != nil {
					m.logger.Warn("comm: deadvertise failed", "error", err)
				}
			}
		}
	}
}

// onConnectionChange is the single driver of the Starting/Online/Offline
// portion of the state cycle, reacting identically whether the
// transition was provoked by our own Start call or by the underlying
// client reconnecting on its own after an earlier ungraceful
// disconnect (spec §4.6, §8 scenario 8). onStateChange, registered on
// the machine itself, carries out the side effects (flush, advertise,
// deadvertise) that bracket each transition.
func (m *Manager) onConnectionChange(up bool, lost error) {
	if up {
		if m.machine.Current() == state.Offline {
			_ = m.machine.Transition(state.Starting)
		}
		if m.machine.Current() == state.Starting {
			_ = m.machine.Transition(state.Online)
		}
		return
	}
	if m.machine.Current() == state.Online {
		m.logger.Warn("comm: broker connection lost", "error", lost)
		_ = m.machine.Transition(state.Offline)
	}
}

// Start moves the manager from Initial or Offline to Starting and
// connects to the broker. The transition to Online itself happens
// reactively, driven by onConnectionChange, so a broker that is
// unreachable at Start time leaves the manager in Starting (buffering
// publishes) until a connection eventually succeeds.
func (m *Manager) Start(ctx context.Context) error {
	current := m.machine.Current()
	if current != state.Initial && current != state.Offline {
		return fmt.Errorf("%w: start called from %s", ErrInvalidState, current)
	}

	if err := m.machine.Transition(state.Starting); err != nil {
		return err
	}

	m.mu.Lock()
	controllers := append([]Controller(nil), m.controllers...)
	m.mu.Unlock()
	for _, c := range controllers {
		c.OnCommunicationManagerStarting(m)
	}

	if err := m.client.Connect(ctx); err != nil {
		return fmt.Errorf("comm: connect: %w", err)
	}
	return nil
}

func (m *Manager) publishAdvertise(ctx context.Context, obj object.Object) error {
	env, err := event.NewEnvelope(event.KindAdvertise, obj.ObjectType, m.identity.ObjectID, obj)
	if err != nil {
		return err
	}
	return m.publishEnvelope(ctx, env.Kind, env.Filter, obj)
}

// Stop moves the manager from Starting or Online to Offline: it
// deadvertises this manager's own identity, runs every registered
// controller's OnCommunicationManagerStopping hook, and disconnects
// from the broker.
func (m *Manager) Stop(ctx context.Context) error {
	current := m.machine.Current()
	if current != state.Starting && current != state.Online {
		return fmt.Errorf("%w: stop called from %s", ErrInvalidState, current)
	}

	if err := m.machine.Transition(state.Stopping); err != nil {
		return err
	}

	m.mu.Lock()
	controllers := append([]Controller(nil), m.controllers...)
	m.mu.Unlock()
	for _, c := range controllers {
		c.OnCommunicationManagerStopping(m)
	}

	if err := m.client.Disconnect(ctx); err != nil {
		m.logger.Warn("comm: disconnect error", "error", err)
	}

	return m.machine.Transition(state.Offline)
}

// Shutdown stops the manager if it is running, disposes every
// registered controller, and irreversibly marks the manager shut down:
// every subsequent Publish, Request, or Observe call fails with
// ErrShutDown.
func (m *Manager) Shutdown(ctx context.Context) error {
	current := m.machine.Current()
	if current == state.Starting || current == state.Online {
		if err := m.Stop(ctx); err != nil {
			m.logger.Warn("comm: stop during shutdown failed", "error", err)
		}
	}

	m.mu.Lock()
	m.shutdown = true
	controllers := append([]Controller(nil), m.controllers...)
	m.mu.Unlock()

	for _, c := range controllers {
		c.OnDispose()
	}
	return nil
}

func (m *Manager) isShutDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.shutdown
}

// Publish sends a one-way event (Advertise, Deadvertise, Channel,
// Update, Associate, IoValue) if the manager is Online or Stopping, or
// buffers it in the deferred queue otherwise (spec §4.6 "deferred
// publish"). Publishing while Stopping goes straight to the broker so
// the Stopping-branch Deadvertise leaves before the connection closes.
func (m *Manager) Publish(ctx context.Context, kind event.Kind, filter string, data any) error {
	if m.isShutDown() {
		return ErrShutDown
	}
	return m.publishEnvelope(ctx, kind, filter, data)
}

func (m *Manager) publishEnvelope(ctx context.Context, kind event.Kind, filter string, data any) error {
	body, err := event.EncodeBody(data)
	if err != nil {
		return err
	}
	wireTopic := topic.Topic{
		Kind:           kind,
		Filter:         filter,
		AssociatedUser: m.associatedUser,
		Source:         topic.Identifier{ID: m.identity.ObjectID},
		Token:          m.engine.NextToken(),
	}
	wire, err := wireTopic.Encode(m.cfg.UseReadableTopics)
	if err != nil {
		return err
	}

	retain := kind == event.KindAdvertise || kind == event.KindDeadvertise

	if s := m.machine.Current(); s != state.Online && s != state.Stopping {
		m.queue.Push(func(ctx context.Context) error {
			return m.client.Publish(ctx, wire, body, retain)
		})
		m.metrics.setDeferredQueueDepth(m.queue.Len())
		return nil
	}
	return m.client.Publish(ctx, wire, body, retain)
}

// PublishRaw publishes an arbitrary byte payload outside the structured
// topic grammar (spec §4.1 "Raw topics"), deferring it the same way as
// a structured Publish when the manager is not yet Online.
func (m *Manager) PublishRaw(ctx context.Context, rawTopic string, payload []byte) error {
	if m.isShutDown() {
		return ErrShutDown
	}
	if err := topic.ValidateRawPublish(rawTopic); err != nil {
		return err
	}
	if m.machine.Current() != state.Online {
		m.queue.Push(func(ctx context.Context) error {
			return m.client.Publish(ctx, rawTopic, payload, false)
		})
		m.metrics.setDeferredQueueDepth(m.queue.Len())
		return nil
	}
	return m.client.Publish(ctx, rawTopic, payload, false)
}

func (m *Manager) flushDeferred() {
	for _, op := range m.queue.Drain() {
		if err := op(context.Background()); err != nil {
			m.logger.Warn("comm: deferred publish failed", "error", err)
		}
	}
	m.metrics.setDeferredQueueDepth(0)
}

// Observe subscribes to every event of kind matching filter (pass ""
// for kinds that take no filter, or to match every filter value) and
// delivers each to h until Unobserve is called. Echo suppression has
// already dropped events this manager published itself (spec §4.6).
func (m *Manager) Observe(ctx context.Context, kind event.Kind, filter string, h Handler) (registry.SubscriptionID, error) {
	if m.isShutDown() {
		return 0, ErrShutDown
	}
	subFilter, err := topic.SubscribeFilter(kind, filter)
	if err != nil {
		return 0, err
	}
	id, err := m.reg.Attach(ctx, subFilter, func(msg broker.Message) {
		received := time.Now()
		t, err := topic.Decode(msg.Topic)
		if err != nil {
			return
		}
		raw := event.Raw{
			Kind:         t.Kind,
			Filter:       t.Filter,
			SourceID:     t.Source.ID,
			MessageToken: t.Token,
			Body:         msg.Payload,
		}
		if t.AssociatedUser != nil {
			raw.AssociatedUserID = t.AssociatedUser.ID
		}
		h(raw)
		m.metrics.observeDispatchLatency(time.Since(received))
	})
	if err != nil {
		return 0, err
	}
	m.metrics.setActiveSubscriptions(len(m.reg.ActiveFilters()))
	return id, nil
}

// ObserveRaw subscribes to raw topic filter (wildcards permitted) and
// delivers every matching message's topic and payload to h.
func (m *Manager) ObserveRaw(ctx context.Context, filter string, h RawHandler) (registry.SubscriptionID, error) {
	if m.isShutDown() {
		return 0, ErrShutDown
	}
	if err := topic.ValidateRawSubscribe(filter); err != nil {
		return 0, err
	}
	id, err := m.reg.Attach(ctx, filter, func(msg broker.Message) {
		h(msg.Topic, msg.Payload)
	})
	if err != nil {
		return 0, err
	}
	m.metrics.setActiveSubscriptions(len(m.reg.ActiveFilters()))
	return id, nil
}

// Unobserve detaches a subscription previously returned by Observe. kind
// and filter must match the values originally passed to Observe, so the
// same wire-level subscribe filter can be recomputed and reference-
// counted down.
func (m *Manager) Unobserve(ctx context.Context, kind event.Kind, filter string, id registry.SubscriptionID) error {
	subFilter, err := topic.SubscribeFilter(kind, filter)
	if err != nil {
		return err
	}
	err = m.reg.Detach(ctx, subFilter, id)
	m.metrics.setActiveSubscriptions(len(m.reg.ActiveFilters()))
	return err
}

// UnobserveRaw detaches a subscription previously returned by ObserveRaw.
// filter must match the value originally passed to ObserveRaw.
func (m *Manager) UnobserveRaw(ctx context.Context, filter string, id registry.SubscriptionID) error {
	err := m.reg.Detach(ctx, filter, id)
	m.metrics.setActiveSubscriptions(len(m.reg.ActiveFilters()))
	return err
}

// Request publishes a correlated request (Discover, Query, Update, or
// Call) and returns a handle whose Observe method subscribes to
// responses (spec §4.5). The manager must be Online; a request
// published while offline would subscribe to a filter that never sees
// its own publish go out, so unlike Publish it is not deferred.
func (m *Manager) Request(kind event.Kind, filter string, data any) (*correlate.Request, error) {
	if m.isShutDown() {
		return nil, ErrShutDown
	}
	if m.machine.Current() != state.Online {
		return nil, fmt.Errorf("%w: request published while %s", ErrInvalidState, m.machine.Current())
	}
	m.metrics.incTokensIssued()
	return m.engine.Publish(kind, filter, data)
}

// MatchesContext reports whether filter matches subject, the local
// context object a Call receiver gates execution on (spec §4.7). A nil
// filter always matches.
func MatchesContext(filter *ctxfilter.Filter, subject object.Object) bool {
	if filter == nil {
		return true
	}
	body, err := json.Marshal(subject)
	if err != nil {
		return false
	}
	return ctxfilter.Match(*filter, body)
}
