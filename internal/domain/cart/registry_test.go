package cart

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/seasonal-storefront/internal/pkg/auth"
	"github.com/your-org/seasonal-storefront/internal/pkg/logger"
)

func anon() auth.Identity { return auth.Anonymous }

func TestRegistry_ReusesEnginePerSession(t *testing.T) {
	backend := NewMemoryBackend()
	r := NewRegistry(func(id string) Store { return backend.Store(id) }, time.Hour, logger.Discard())
	defer r.Close()
	ctx := context.Background()

	e1, err := r.Engine(ctx, "s1", anon())
	require.NoError(t, err)
	e2, err := r.Engine(ctx, "s1", anon())
	require.NoError(t, err)
	e3, err := r.Engine(ctx, "s2", anon())
	require.NoError(t, err)

	assert.Same(t, e1, e2)
	assert.NotSame(t, e1, e3)
	assert.Equal(t, 2, r.Len())
}

func TestRegistry_ObservesIdentityTransitions(t *testing.T) {
	backend := NewMemoryBackend()
	r := NewRegistry(func(id string) Store { return backend.Store(id) }, time.Hour, logger.Discard())
	defer r.Close()
	ctx := context.Background()

	e, err := r.Engine(ctx, "s1", anon())
	require.NoError(t, err)

	line := wreath
	line.Quantity = 1
	require.NoError(t, backend.Store("s1").Save(ctx, Lines{line}))

	signedIn := auth.Identity{IsAuthenticated: true, UserID: "u-9"}
	_, err = r.Engine(ctx, "s1", signedIn)
	require.NoError(t, err)

	assert.Equal(t, signedIn, e.Identity())
	assert.Eventually(t, func() bool { return e.ItemCount() == 1 }, time.Second, 5*time.Millisecond)
}

func TestRegistry_SweepEvictsIdleEngines(t *testing.T) {
	backend := NewMemoryBackend()
	r := NewRegistry(func(id string) Store { return backend.Store(id) }, time.Minute, logger.Discard())
	defer r.Close()

	now := time.Date(2026, 12, 1, 10, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := r.Engine(ctx, "old", anon())
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = r.Engine(ctx, "fresh", anon())
	require.NoError(t, err)

	assert.Equal(t, 1, r.Sweep())
	assert.Equal(t, 1, r.Len())
}
