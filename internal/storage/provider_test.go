package storage

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitelens/internal/storage/memory"
)

func TestNewTieredPrefersPrivileged(t *testing.T) {
	t.Parallel()

	priv := &Clients{Jobs: memory.NewJobStore(), Logs: memory.NewLogStore()}
	pub := &Clients{Jobs: memory.NewJobStore(), Logs: memory.NewLogStore()}

	got, err := NewTiered(priv, pub)
	require.NoError(t, err)
	require.Equal(t, TierPrivileged, got.Tier)
	require.Same(t, priv.Jobs, got.Jobs)
}

func TestNewTieredFallsBackToPublic(t *testing.T) {
	t.Parallel()

	pub := &Clients{Jobs: memory.NewJobStore(), Logs: memory.NewLogStore()}

	got, err := NewTiered(&Clients{}, pub)
	require.NoError(t, err)
	require.Equal(t, TierPublic, got.Tier)

	got, err = NewTiered(nil, pub)
	require.NoError(t, err)
	require.Equal(t, TierPublic, got.Tier)
}

func TestNewTieredRequiresClients(t *testing.T) {
	t.Parallel()

	_, err := NewTiered(nil, nil)
	require.Error(t, err)
}
