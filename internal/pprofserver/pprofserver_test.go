package pprofserver_test

import (
	"context"
	"github.com/myrjola/casefile/internal/pprofserver"
	"github.com/myrjola/casefile/internal/testhelpers"
	"github.com/stretchr/testify/require"
	"io"
	"testing"
)

func TestServe_rejectsPublicAddress(t *testing.T) {
	logger := testhelpers.NewLogger(io.Discard)
	for _, addr := range []string{"0.0.0.0:6060", "example.com:6060", ":6060"} {
		err := pprofserver.Serve(context.Background(), addr, logger)
		require.ErrorIs(t, err, pprofserver.ErrNotLoopback, addr)
	}
	require.Error(t, pprofserver.Serve(context.Background(), "no port", logger))
}
