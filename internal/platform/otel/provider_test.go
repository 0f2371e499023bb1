package otel_test

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/okaeri/internal/platform/otel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	shutdown, err := otel.Setup(context.Background(), "okaeri-test", "")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, shutdown(ctx))
}

func TestSetup_ShutdownFlushesCleanly(t *testing.T) {
	// non-routable, nothing is exported because no span is recorded
	shutdown, err := otel.Setup(context.Background(), "okaeri-test", "http://192.0.2.1:4318")
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
