package bdd

import (
	"context"
	"fmt"

	"github.com/cucumber/godog"
	"github.com/helixmapr/helixmapr/internal/testutil/cucumber"
)

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(sc *godog.ScenarioContext, s *cucumber.TestScenario) {
		i := &inventorySteps{s: s}
		sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
			if s.Suite.DB == nil {
				return ctx, nil
			}
			return ctx, s.Suite.DB.ClearAll(ctx)
		})
		sc.Step(`^an organization named "([^"]*)" created by "([^"]*)"$`, i.anOrganizationCreatedBy)
		sc.Step(`^a research database named "([^"]*)" in organization \$\{orgId\} created by "([^"]*)"$`, i.aResearchDatabaseCreatedBy)
	})
}

type inventorySteps struct {
	s *cucumber.TestScenario
}

// as runs fn with the scenario's current user temporarily switched.
func (i *inventorySteps) as(user string, fn func() error) error {
	i.s.Suite.Mu.Lock()
	if i.s.Users[user] == nil {
		i.s.Users[user] = &cucumber.TestUser{Name: user, Subject: user}
	}
	i.s.Suite.Mu.Unlock()

	prev := i.s.CurrentUser
	i.s.CurrentUser = user
	defer func() { i.s.CurrentUser = prev }()
	return fn()
}

// anOrganizationCreatedBy creates an organization through the API and stores
// its id in ${orgId}.
func (i *inventorySteps) anOrganizationCreatedBy(name, creator string) error {
	return i.as(creator, func() error {
		err := i.s.SendHTTPRequestWithJSONBody("POST", "/v1/organizations",
			&godog.DocString{Content: fmt.Sprintf(`{"name": %q}`, name)})
		if err != nil {
			return err
		}
		session := i.s.Session()
		if session.Resp.StatusCode != 201 {
			return fmt.Errorf("failed to create organization %q: %d %s", name, session.Resp.StatusCode, session.RespBytes)
		}
		id, err := i.s.Resolve("response.id")
		if err != nil {
			return err
		}
		i.s.Variables["orgId"] = id
		return nil
	})
}

// aResearchDatabaseCreatedBy creates a database in ${orgId} and stores its id
// in ${databaseId}.
func (i *inventorySteps) aResearchDatabaseCreatedBy(name, creator string) error {
	return i.as(creator, func() error {
		err := i.s.SendHTTPRequestWithJSONBody("POST", "/v1/organizations/${orgId}/databases",
			&godog.DocString{Content: fmt.Sprintf(`{"name": %q}`, name)})
		if err != nil {
			return err
		}
		session := i.s.Session()
		if session.Resp.StatusCode != 201 {
			return fmt.Errorf("failed to create database %q: %d %s", name, session.Resp.StatusCode, session.RespBytes)
		}
		id, err := i.s.Resolve("response.id")
		if err != nil {
			return err
		}
		i.s.Variables["databaseId"] = id
		return nil
	})
}
