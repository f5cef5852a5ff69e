package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/smallbiznis/estate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	InvoiceCreated        = "invoice.created"
	InvoicePaid           = "invoice.paid"
	WorkflowStatusChanged = "workflow.status_changed"
	ExchangeRatesUpdated  = "exchange_rates.updated"
)

// Event is the JSON envelope published for every domain event.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

// Publisher delivers domain events. Callers publish only after their
// transaction commits; a failed publish never fails the request.
type Publisher interface {
	Publish(ctx context.Context, eventType string, data any)
}

type Params struct {
	fx.In

	Lifecycle fx.Lifecycle
	Cfg       config.Config
	Log       *zap.Logger
}

func NewPublisher(p Params) (Publisher, error) {
	log := p.Log.Named("events")
	if !p.Cfg.NATS.Enabled() {
		log.Info("nats disabled; domain events are dropped")
		return NoopPublisher{}, nil
	}

	conn, err := nats.Connect(p.Cfg.NATS.URL,
		nats.Name(p.Cfg.AppName),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, err
	}

	p.Lifecycle.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return conn.Drain()
		},
	})

	return &natsPublisher{
		conn:   conn,
		prefix: strings.TrimSuffix(strings.TrimSpace(p.Cfg.NATS.SubjectPrefix), "."),
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

type natsPublisher struct {
	conn   *nats.Conn
	prefix string
	log    *zap.Logger
	now    func() time.Time
}

func (p *natsPublisher) Publish(ctx context.Context, eventType string, data any) {
	payload, err := json.Marshal(Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: p.now(),
		Data:       data,
	})
	if err != nil {
		p.log.Error("failed to encode event", zap.String("type", eventType), zap.Error(err))
		return
	}

	subject := eventType
	if p.prefix != "" {
		subject = p.prefix + "." + eventType
	}
	if err := p.conn.Publish(subject, payload); err != nil {
		p.log.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, string, any) {}
