package usage

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	SignInAsNewStudent() error
	Subject() string
	GET(path string, headers map[string]string) error
	POST(path string, body any) error
	AdminPUT(path string, body any) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
}

// RegisterSteps registers account, tier and quota steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &usageSteps{tc: tc}

	ctx.Step(`^I am signed in as a new student$`, steps.signIn)
	ctx.Step(`^I check my usage status$`, steps.checkStatus)
	ctx.Step(`^an operator sets my tier to "([^"]*)"$`, steps.setTier)
	ctx.Step(`^I send (\d+) chat messages?$`, steps.sendChat)
	ctx.Step(`^my usage count should be (\d+)$`, steps.usageCountShouldBe)
}

type usageSteps struct {
	tc TestContext
}

func (s *usageSteps) signIn(ctx context.Context) error {
	return s.tc.SignInAsNewStudent()
}

func (s *usageSteps) checkStatus(ctx context.Context) error {
	return s.tc.GET("/api/user-status", nil)
}

func (s *usageSteps) setTier(ctx context.Context, tier string) error {
	// The account row is created on first authenticated request.
	if err := s.checkStatus(ctx); err != nil {
		return err
	}
	return s.tc.AdminPUT("/admin/accounts/"+s.tc.Subject()+"/tier", map[string]string{"tier": tier})
}

// sendChat stops at the first non-200 so the last response is the refusal.
func (s *usageSteps) sendChat(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if err := s.tc.POST("/api/chat", map[string]any{"new_message": fmt.Sprintf("question %d", i+1)}); err != nil {
			return err
		}
		if s.tc.GetLastResponseStatus() != 200 {
			return nil
		}
	}
	return nil
}

func (s *usageSteps) usageCountShouldBe(ctx context.Context, want int) error {
	if err := s.checkStatus(ctx); err != nil {
		return err
	}
	v, err := s.tc.GetResponseField("usageCount")
	if err != nil {
		return err
	}
	if got, ok := v.(float64); !ok || int(got) != want {
		return fmt.Errorf("expected usageCount %d, got %v", want, v)
	}
	return nil
}
