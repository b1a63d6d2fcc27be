package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// TestContext carries HTTP state across the steps of one scenario.
type TestContext struct {
	BaseURL    string
	AdminToken string
	client     *http.Client
	mailbox    *Mailbox

	lastStatus int
	lastBody   []byte

	// runID keeps emails unique across scenarios against a shared server.
	runID  string
	tokens map[string]string
	values map[string]string
}

func NewTestContext(baseURL, adminToken string, mailbox *Mailbox) *TestContext {
	return &TestContext{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		AdminToken: adminToken,
		client:     &http.Client{Timeout: 10 * time.Second},
		mailbox:    mailbox,
	}
}

// ActivationToken returns the newest confirmation or activation token the
// server sent to email.
func (tc *TestContext) ActivationToken(email string) string {
	return tc.mailbox.ActivationToken(email)
}

// Reset clears scenario state.
func (tc *TestContext) Reset() {
	tc.lastStatus = 0
	tc.lastBody = nil
	tc.runID = fmt.Sprintf("%d", time.Now().UnixNano())
	tc.tokens = map[string]string{}
	tc.values = map[string]string{}
}

// Email makes a scenario-unique address from a local part, keeping the domain
// of addresses that already have one.
func (tc *TestContext) Email(name string) string {
	if strings.Contains(name, "@") {
		return name
	}
	return fmt.Sprintf("%s+%s@e2e.example.com", strings.ToLower(name), tc.runID)
}

func (tc *TestContext) POST(path string, body any) error {
	return tc.do(http.MethodPost, path, body, nil)
}

func (tc *TestContext) POSTAs(member, path string, body any) error {
	return tc.do(http.MethodPost, path, body, tc.authHeader(member))
}

func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.do(http.MethodGet, path, nil, headers)
}

func (tc *TestContext) GETAs(member, path string) error {
	return tc.do(http.MethodGet, path, nil, tc.authHeader(member))
}

func (tc *TestContext) authHeader(member string) map[string]string {
	token, ok := tc.tokens[member]
	if !ok {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + token}
}

func (tc *TestContext) do(method, path string, body any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, tc.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := tc.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	tc.lastStatus = resp.StatusCode
	tc.lastBody, err = io.ReadAll(resp.Body)
	return err
}

func (tc *TestContext) GetLastStatus() int {
	return tc.lastStatus
}

// GetResponseField reads a dotted path such as "join_request.id" from the
// last JSON response.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var doc any
	if err := json.Unmarshal(tc.lastBody, &doc); err != nil {
		return nil, fmt.Errorf("response is not JSON: %s", tc.lastBody)
	}
	for _, part := range strings.Split(field, ".") {
		obj, ok := doc.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("field %q not found in %s", field, tc.lastBody)
		}
		if doc, ok = obj[part]; !ok {
			return nil, fmt.Errorf("field %q not found in %s", field, tc.lastBody)
		}
	}
	return doc, nil
}

func (tc *TestContext) SetToken(member, token string) {
	tc.tokens[member] = token
}

func (tc *TestContext) Remember(key, value string) {
	tc.values[key] = value
}

func (tc *TestContext) Recall(key string) (string, error) {
	v, ok := tc.values[key]
	if !ok {
		return "", fmt.Errorf("nothing remembered as %q", key)
	}
	return v, nil
}
