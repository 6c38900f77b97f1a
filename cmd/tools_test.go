package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrendsInput(t *testing.T) {
	t.Parallel()

	body, err := trendsInput("cli", nil, "", nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"agent_id":"cli"}`, string(body), "configured default limit applies")

	limit := 5
	body, err = trendsInput("ops", []string{"newsroom"}, "2026-10-18T00:00:00Z", &limit)
	require.NoError(t, err)
	assert.JSONEq(t, `{"agent_id":"ops","sources":["newsroom"],"since":"2026-10-18T00:00:00Z","limit":5}`, string(body))
}

func TestTrendsCommand_LimitFlag(t *testing.T) {
	t.Parallel()

	cmd := newTrendsCommand(&options{})
	assert.False(t, cmd.Flags().Changed("limit"))
	require.NoError(t, cmd.Flags().Set("limit", "7"))
	assert.True(t, cmd.Flags().Changed("limit"))
}
