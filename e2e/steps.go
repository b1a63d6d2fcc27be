package e2e

import (
	"github.com/cucumber/godog"

	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/e2e/steps/common"
	"github.com/The-Relational-Technology-Project/sunset-block-party-supplies-sub000/e2e/steps/membership"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	// Register common steps (generic requests, assertions)
	common.RegisterSteps(ctx, tc)

	// Register membership steps (registration, review, vouching, access)
	membership.RegisterSteps(ctx, tc)
}
