package e2e

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/twmb/franz-go/pkg/kgo"
)

// Mailbox follows the server's notifications topic and keeps the newest
// activation token sent to each recipient.
type Mailbox struct {
	client *kgo.Client
	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	tokens map[string]string
}

type notification struct {
	Kind      string            `json:"kind"`
	Recipient string            `json:"recipient"`
	Payload   map[string]string `json:"payload"`
}

// NewMailbox reads topic from the start; records are keyed by recipient, so
// the last token seen for an address is the one the server issued last.
func NewMailbox(brokers []string, topic string) (*Mailbox, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	m := &Mailbox{
		client: client,
		cancel: cancel,
		done:   make(chan struct{}),
		tokens: map[string]string{},
	}
	go m.run(ctx)
	return m, nil
}

func (m *Mailbox) run(ctx context.Context) {
	defer close(m.done)
	for {
		fetches := m.client.PollFetches(ctx)
		if ctx.Err() != nil || fetches.IsClientClosed() {
			return
		}
		fetches.EachRecord(func(r *kgo.Record) {
			var n notification
			if err := json.Unmarshal(r.Value, &n); err != nil {
				return
			}
			if token := n.Payload["activation_token"]; token != "" {
				m.mu.Lock()
				m.tokens[n.Recipient] = token
				m.mu.Unlock()
			}
		})
	}
}

// ActivationToken returns the newest token sent to email, or "".
func (m *Mailbox) ActivationToken(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[email]
}

func (m *Mailbox) Close() {
	m.cancel()
	<-m.done
	m.client.Close()
}
