package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQuantile(t *testing.T) {
	require.Zero(t, quantile(nil, 0.5))

	sorted := []time.Duration{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	require.Equal(t, time.Duration(1), quantile(sorted, 0))
	require.Equal(t, time.Duration(5), quantile(sorted, 0.5))
	require.Equal(t, time.Duration(9), quantile(sorted, 0.95))
	require.Equal(t, time.Duration(10), quantile(sorted, 1))
}

func TestRunSmallLoad(t *testing.T) {
	err := run(context.Background(), options{sessions: 8, concurrency: 4, ops: 40, prefix: "lt", rotate: true})
	require.NoError(t, err)
}

func TestRunRejectsEmptyLoad(t *testing.T) {
	require.Error(t, run(context.Background(), options{sessions: 1, concurrency: 0, ops: 1}))
}
