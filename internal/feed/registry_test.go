package feed

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/booksim/internal/domain"
)

func TestRegistrySharesAdapterAcrossNames(t *testing.T) {
	reg := NewRegistry()
	reg.Register(stubAdapter{}, domain.VenueConfig{WebsocketURL: "ws://prod"})
	reg.Register(stubAdapter{}, domain.VenueConfig{Name: "stub-test", WebsocketURL: "ws://test"})

	assert.Equal(t, []string{"stub", "stub-test"}, reg.List())

	_, cfg, err := reg.Get("stub")
	require.NoError(t, err)
	assert.Equal(t, "stub", cfg.Name)
	assert.Equal(t, "ws://prod", cfg.WebsocketURL)

	_, cfg, err = reg.Get("stub-test")
	require.NoError(t, err)
	assert.Equal(t, "ws://test", cfg.WebsocketURL)

	_, _, err = reg.Get("nope")
	assert.ErrorIs(t, err, domain.ErrUnknownVenue)

	configs := reg.Configs()
	require.Len(t, configs, 2)
	assert.Equal(t, "stub-test", configs[1].Name)
}
