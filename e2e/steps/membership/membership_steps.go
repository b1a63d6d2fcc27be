package membership

import (
	"context"
	"fmt"
	"time"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any) error
	POSTAs(member, path string, body any) error
	GETAs(member, path string) error
	GetLastStatus() int
	GetResponseField(field string) (any, error)
	Email(name string) string
	SetToken(member, token string)
	Remember(key, value string)
	Recall(key string) (string, error)
	ActivationToken(email string) string
}

const (
	password       = "correct horse battery"
	confirmTimeout = 15 * time.Second
)

// RegisterSteps registers membership step definitions
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &membershipSteps{tc: tc}

	ctx.Step(`^the steward "([^"]*)" is signed in$`, steps.stewardSignedIn)
	ctx.Step(`^"([^"]*)" registers$`, steps.register)
	ctx.Step(`^"([^"]*)" registers with intro "([^"]*)"$`, steps.registerWithIntro)
	ctx.Step(`^"([^"]*)" submits a join request with intro "([^"]*)"$`, steps.submitJoinRequest)
	ctx.Step(`^"([^"]*)" (approves|rejects) the join request of "([^"]*)"$`, steps.review)
	ctx.Step(`^"([^"]*)" vouches for "([^"]*)"$`, steps.vouch)
	ctx.Step(`^"([^"]*)" checks "([^"]*)" access$`, steps.checkAccess)
	ctx.Step(`^"([^"]*)" should have "([^"]*)" access$`, steps.shouldHaveAccess)
	ctx.Step(`^"([^"]*)" should be denied "([^"]*)" access with "([^"]*)"$`, steps.shouldBeDenied)
	ctx.Step(`^"([^"]*)" signs out$`, steps.signOut)
	ctx.Step(`^someone signs up as "([^"]*)" with password "([^"]*)"$`, steps.signUpUnconfirmed)
	ctx.Step(`^"([^"]*)" signs in with password "([^"]*)"$`, steps.signIn)
}

type membershipSteps struct {
	tc TestContext
}

// stewardSignedIn registers and confirms a bootstrap steward, or signs in
// when an earlier scenario already registered the address.
func (s *membershipSteps) stewardSignedIn(ctx context.Context, email string) error {
	registered, err := s.signUp(email, "Steward", "")
	if err != nil || registered {
		return err
	}
	if err := s.tc.POST("/auth/login", map[string]any{"email": email, "password": password}); err != nil {
		return err
	}
	return s.saveSession(email)
}

func (s *membershipSteps) register(ctx context.Context, name string) error {
	return s.registerWithIntro(ctx, name, "")
}

func (s *membershipSteps) registerWithIntro(ctx context.Context, name, intro string) error {
	registered, err := s.signUp(name, name, intro)
	if err != nil {
		return err
	}
	if !registered {
		return fmt.Errorf("%s is already registered", s.tc.Email(name))
	}
	return nil
}

// signUp registers member and confirms the email with the mailed token. It
// reports false when the address already belongs to an active account.
func (s *membershipSteps) signUp(member, name, intro string) (bool, error) {
	email := s.tc.Email(member)
	body := map[string]any{"name": name, "email": email, "password": password}
	if intro != "" {
		body["intro"] = intro
	}
	if err := s.tc.POST("/auth/register", body); err != nil {
		return false, err
	}
	switch status := s.tc.GetLastStatus(); status {
	case 202:
	case 409:
		return false, nil
	default:
		return false, fmt.Errorf("registration for %s returned %d", member, status)
	}
	if intro != "" {
		if err := s.rememberJoinRequest(member, "join_request.id"); err != nil {
			return false, err
		}
	}
	return true, s.confirm(member, email)
}

// confirm retries with the newest token until one is accepted; an older
// token may still be the newest one read from the topic.
func (s *membershipSteps) confirm(member, email string) error {
	deadline := time.Now().Add(confirmTimeout)
	for {
		if token := s.tc.ActivationToken(email); token != "" {
			body := map[string]any{"email": email, "token": token, "password": password}
			if err := s.tc.POST("/auth/activate", body); err != nil {
				return err
			}
			if s.tc.GetLastStatus() == 200 {
				return s.saveSession(member)
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("no confirmation token accepted for %s", email)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func (s *membershipSteps) signUpUnconfirmed(ctx context.Context, member, pass string) error {
	body := map[string]any{"name": "Someone", "email": s.tc.Email(member), "password": pass}
	return s.tc.POST("/auth/register", body)
}

func (s *membershipSteps) signIn(ctx context.Context, member, pass string) error {
	return s.tc.POST("/auth/login", map[string]any{"email": s.tc.Email(member), "password": pass})
}

func (s *membershipSteps) submitJoinRequest(ctx context.Context, name, intro string) error {
	body := map[string]any{"name": name, "email": s.tc.Email(name), "intro": intro}
	if err := s.tc.POST("/join-requests", body); err != nil {
		return err
	}
	if s.tc.GetLastStatus() != 201 {
		return nil
	}
	return s.rememberJoinRequest(name, "id")
}

func (s *membershipSteps) review(ctx context.Context, reviewer, action, applicant string) error {
	requestID, err := s.tc.Recall("join_request:" + applicant)
	if err != nil {
		return err
	}
	verb := "approve"
	if action == "rejects" {
		verb = "reject"
	}
	return s.tc.POSTAs(reviewer, "/steward/join-requests/"+requestID+"/"+verb, nil)
}

func (s *membershipSteps) vouch(ctx context.Context, voucher, target string) error {
	return s.tc.POSTAs(voucher, "/vouches", map[string]any{"email": s.tc.Email(target), "note": "met in person"})
}

func (s *membershipSteps) checkAccess(ctx context.Context, member, level string) error {
	return s.tc.GETAs(member, "/access/"+level)
}

func (s *membershipSteps) shouldHaveAccess(ctx context.Context, member, level string) error {
	return s.expectOutcome(member, level, "allowed")
}

func (s *membershipSteps) shouldBeDenied(ctx context.Context, member, level, outcome string) error {
	return s.expectOutcome(member, level, outcome)
}

func (s *membershipSteps) signOut(ctx context.Context, member string) error {
	if err := s.tc.POSTAs(member, "/auth/logout", nil); err != nil {
		return err
	}
	if status := s.tc.GetLastStatus(); status != 204 {
		return fmt.Errorf("sign out returned %d", status)
	}
	return nil
}

func (s *membershipSteps) expectOutcome(member, level, expected string) error {
	if err := s.tc.GETAs(member, "/access/"+level); err != nil {
		return err
	}
	outcome, err := s.tc.GetResponseField("outcome")
	if err != nil {
		return err
	}
	if outcome != expected {
		return fmt.Errorf("%s at %s: expected %s, got %v", member, level, expected, outcome)
	}
	return nil
}

func (s *membershipSteps) saveSession(member string) error {
	if status := s.tc.GetLastStatus(); status != 200 {
		return fmt.Errorf("sign in for %s returned %d", member, status)
	}
	token, err := s.tc.GetResponseField("access_token")
	if err != nil {
		return err
	}
	s.tc.SetToken(member, token.(string))
	return nil
}

func (s *membershipSteps) rememberJoinRequest(member, field string) error {
	requestID, err := s.tc.GetResponseField(field)
	if err != nil {
		return err
	}
	s.tc.Remember("join_request:"+member, requestID.(string))
	return nil
}
