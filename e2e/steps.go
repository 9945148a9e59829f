package e2e

import (
	"github.com/cucumber/godog"

	"transferai/e2e/steps/agreement"
	"transferai/e2e/steps/common"
	"transferai/e2e/steps/usage"
)

// RegisterSteps registers all step definitions from modular packages
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	common.RegisterSteps(ctx, tc)
	usage.RegisterSteps(ctx, tc)
	agreement.RegisterSteps(ctx, tc)
}
