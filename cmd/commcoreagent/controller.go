package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/agentmesh/commcore/comm"
	"github.com/agentmesh/commcore/event"
	"github.com/agentmesh/commcore/registry"
)

const shutdownTimeout = 5 * time.Second

// advertiseLogger is a minimal Controller that logs every Advertise
// event it sees on the bus, demonstrating the observe-on-start,
// detach-on-stop lifecycle a real controller follows.
type advertiseLogger struct {
	logger *slog.Logger
	subID  registry.SubscriptionID
}

func newAdvertiseLogger(logger *slog.Logger) *advertiseLogger {
	return &advertiseLogger{logger: logger}
}

func (a *advertiseLogger) OnContainerResolved(m *comm.Manager) {}

func (a *advertiseLogger) OnCommunicationManagerStarting(m *comm.Manager) {
	id, err := m.Observe(context.Background(), event.KindAdvertise, "", func(raw event.Raw) {
		a.logger.Info("observed Advertise", "filter", raw.Filter, "source", raw.SourceID)
	})
	if err != nil {
		a.logger.Warn("advertiseLogger: failed to observe Advertise", "error", err)
		return
	}
	a.subID = id
}

func (a *advertiseLogger) OnCommunicationManagerStopping(m *comm.Manager) {
	if a.subID == 0 {
		return
	}
	if err := m.Unobserve(context.Background(), event.KindAdvertise, "", a.subID); err != nil {
		a.logger.Warn("advertiseLogger: failed to unobserve", "error", err)
	}
}

func (a *advertiseLogger) OnDispose() {}
