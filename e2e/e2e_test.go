package e2e

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/cucumber/godog"
)

// TestFeatures runs the Gherkin scenarios against a live server at
// E2E_BASE_URL. The server must list steward@e2e.example.com in
// BOOTSTRAP_STEWARD_EMAILS and publish notifications to the Kafka brokers in
// E2E_KAFKA_BROKERS, where confirmation tokens are read back.
func TestFeatures(t *testing.T) {
	baseURL := os.Getenv("E2E_BASE_URL")
	brokers := os.Getenv("E2E_KAFKA_BROKERS")
	if baseURL == "" || brokers == "" {
		t.Skip("E2E_BASE_URL or E2E_KAFKA_BROKERS not set")
	}
	topic := os.Getenv("E2E_KAFKA_TOPIC")
	if topic == "" {
		topic = "share.notifications"
	}
	mailbox, err := NewMailbox(strings.Split(brokers, ","), topic)
	if err != nil {
		t.Fatal(err)
	}
	defer mailbox.Close()
	tc := NewTestContext(baseURL, os.Getenv("E2E_ADMIN_TOKEN"), mailbox)

	suite := godog.TestSuite{
		ScenarioInitializer: func(sc *godog.ScenarioContext) {
			sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
				tc.Reset()
				return ctx, nil
			})
			RegisterSteps(sc, tc)
		},
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Strict:   true,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("non-zero status returned, failed to run feature tests")
	}
}
