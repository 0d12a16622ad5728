package source

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ScholarLoop/internal/domain"
)

type stubProvider struct{ name string }

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Search(context.Context, string, int) ([]domain.Candidate, error) {
	return nil, nil
}

func (s *stubProvider) Fetch(context.Context, string) (string, error) {
	return "", nil
}

func TestRegistryResolve(t *testing.T) {
	registry := NewRegistry()
	registry.Register(&stubProvider{name: "arxiv"})

	provider, err := registry.Resolve("arxiv")
	require.NoError(t, err)
	assert.Equal(t, "arxiv", provider.Name())

	_, err = registry.Resolve("pubmed")
	assert.Error(t, err)
}

func TestRegisterReplaces(t *testing.T) {
	registry := NewRegistry()
	first := &stubProvider{name: "arxiv"}
	second := &stubProvider{name: "arxiv"}
	registry.Register(first)
	registry.Register(second)

	provider, err := registry.Resolve("arxiv")
	require.NoError(t, err)
	assert.Same(t, second, provider)
}
