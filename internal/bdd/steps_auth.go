package bdd

import (
	"github.com/cucumber/godog"
	"github.com/helixmapr/helixmapr/internal/testutil/cucumber"
)

func init() {
	cucumber.StepModules = append(cucumber.StepModules, func(ctx *godog.ScenarioContext, s *cucumber.TestScenario) {
		a := &authSteps{s: s}
		ctx.Step(`^I am authenticated as user "([^"]*)"$`, a.iAmAuthenticatedAsUser)
		ctx.Step(`^I authenticate as user "([^"]*)"$`, a.iAmAuthenticatedAsUser)
	})
}

type authSteps struct {
	s *cucumber.TestScenario
}

func (a *authSteps) iAmAuthenticatedAsUser(userID string) error {
	a.s.Suite.Mu.Lock()
	defer a.s.Suite.Mu.Unlock()
	if a.s.Users[userID] == nil {
		a.s.Users[userID] = &cucumber.TestUser{
			Name:    userID,
			Subject: userID,
		}
	}
	a.s.CurrentUser = userID
	return nil
}
