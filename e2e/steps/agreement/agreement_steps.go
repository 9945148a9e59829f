package agreement

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	GET(path string, headers map[string]string) error
	POST(path string, body any) error
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
}

// RegisterSteps registers catalog and agreement lookup steps
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &agreementSteps{tc: tc}

	ctx.Step(`^I list the sending institutions$`, steps.listInstitutions)
	ctx.Step(`^I list the majors for year (\d+), sending (\d+) and receiving (\d+)$`, steps.listMajors)
	ctx.Step(`^the response should be a non-empty list$`, steps.nonEmptyList)
	ctx.Step(`^I request page images for "([^"]*)"$`, steps.pageImages)
}

type agreementSteps struct {
	tc TestContext
}

func (s *agreementSteps) listInstitutions(ctx context.Context) error {
	return s.tc.GET("/api/institutions", nil)
}

func (s *agreementSteps) listMajors(ctx context.Context, year, sending, receiving int) error {
	q := url.Values{}
	q.Set("academicYearId", fmt.Sprint(year))
	q.Set("sendingId", fmt.Sprint(sending))
	q.Set("receivingId", fmt.Sprint(receiving))
	return s.tc.GET("/api/majors?"+q.Encode(), nil)
}

func (s *agreementSteps) pageImages(ctx context.Context, filename string) error {
	return s.tc.GET("/api/pdf-images/"+url.PathEscape(filename), nil)
}

func (s *agreementSteps) nonEmptyList(ctx context.Context) error {
	body := s.tc.GetLastResponseBody()
	var list []any
	if err := json.Unmarshal(body, &list); err == nil {
		if len(list) == 0 {
			return fmt.Errorf("expected a non-empty list")
		}
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return fmt.Errorf("response is not JSON: %s", body)
	}
	if len(obj) == 0 {
		return fmt.Errorf("expected a non-empty list")
	}
	return nil
}
