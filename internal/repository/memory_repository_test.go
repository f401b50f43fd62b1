package repository_test

import (
	"testing"

	"github.com/unclebandit/outreach-engine/internal/repository"
	"github.com/unclebandit/outreach-engine/internal/repository/repotest"
)

func TestMemoryEntityRepository(t *testing.T) {
	repotest.RunEntityContract(t, func(t *testing.T, rules repository.Rules) repository.EntityRepositoryInterface {
		return repository.NewMemoryEntityRepository(rules)
	})
}

func TestMemoryTokenRepository(t *testing.T) {
	repotest.RunTokenContract(t, repository.NewMemoryTokenRepository(), "e1")
}

func TestMemoryAlertRepository(t *testing.T) {
	repotest.RunAlertContract(t, repository.NewMemoryAlertRepository())
}
