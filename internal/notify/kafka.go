package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/pkg/platform/circuit"
)

// Producer is the subset of *kgo.Client used here.
type Producer interface {
	Produce(ctx context.Context, r *kgo.Record, promise func(*kgo.Record, error))
}

// KafkaNotifier publishes notifications as JSON records keyed by recipient.
// Produce is asynchronous: Notify returns once the record is buffered and the
// delivery result is logged from the promise. After repeated delivery
// failures the breaker opens and notifications are also written to the
// fallback so they are not silently lost.
type KafkaNotifier struct {
	producer Producer
	topic    string
	fallback Notifier
	breaker  *circuit.Breaker
	logger   *slog.Logger

	delivered *prometheus.CounterVec
}

// KafkaOption configures a KafkaNotifier.
type KafkaOption func(*KafkaNotifier)

func WithBreaker(b *circuit.Breaker) KafkaOption {
	return func(n *KafkaNotifier) { n.breaker = b }
}

func WithRegisterer(reg prometheus.Registerer) KafkaOption {
	return func(n *KafkaNotifier) {
		n.delivered = promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "share_notifications_delivered_total",
			Help: "Notification records by delivery result",
		}, []string{"kind", "result"})
	}
}

func NewKafkaNotifier(producer Producer, topic string, fallback Notifier, logger *slog.Logger, opts ...KafkaOption) *KafkaNotifier {
	n := &KafkaNotifier{
		producer: producer,
		topic:    topic,
		fallback: fallback,
		breaker:  circuit.New("kafka-notify"),
		logger:   logger,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *KafkaNotifier) Notify(ctx context.Context, msg Notification) error {
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification: %w", err)
	}
	if n.breaker.IsOpen() && n.fallback != nil {
		_ = n.fallback.Notify(ctx, msg)
	}

	record := &kgo.Record{
		Topic: n.topic,
		Key:   []byte(msg.Recipient),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "kind", Value: []byte(msg.Kind)},
		},
	}
	// Delivery outlives the request; the promise must not observe its cancellation.
	n.producer.Produce(context.WithoutCancel(ctx), record, func(_ *kgo.Record, err error) {
		n.onDelivery(msg, err)
	})
	return nil
}

func (n *KafkaNotifier) onDelivery(msg Notification, err error) {
	if err == nil {
		if _, change := n.breaker.RecordSuccess(); change.Closed {
			n.logger.Info("notification broker recovered", "breaker", n.breaker.Name())
		}
		n.count(msg.Kind, "delivered")
		return
	}

	n.count(msg.Kind, "failed")
	n.logger.Warn("notification delivery failed",
		"kind", string(msg.Kind),
		"recipient", msg.Recipient,
		"request_id", msg.RequestID,
		"error", err,
	)
	useFallback, change := n.breaker.RecordFailure()
	if change.Opened {
		n.logger.Error("notification broker circuit opened", "breaker", n.breaker.Name())
	}
	if useFallback && n.fallback != nil {
		_ = n.fallback.Notify(context.Background(), msg)
	}
}

func (n *KafkaNotifier) count(kind Kind, result string) {
	if n.delivered != nil {
		n.delivered.WithLabelValues(string(kind), result).Inc()
	}
}
