package registry

import (
	"errors"
	"testing"

	"github.com/XavierBriggs/Tyche/networks/optimism"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_Duplicate(t *testing.T) {
	r := NewNetworkRegistry(optimism.NetworkID)

	require.NoError(t, r.Register(optimism.NewModule()))
	err := r.Register(optimism.NewModule())
	assert.Error(t, err)
	assert.Equal(t, 1, r.Count())
}

func TestResolveID(t *testing.T) {
	r := NewNetworkRegistry(10)

	tests := []struct {
		name    string
		chainID int64
		want    int64
	}{
		{"no wallet", 0, 10},
		{"mainnet", 1, 10},
		{"optimism", 10, 10},
		{"base", 8453, 8453},
		{"arbitrum", 42161, 42161},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.ResolveID(tt.chainID))
		})
	}
}

func TestResolve_UnknownNetwork(t *testing.T) {
	r := NewNetworkRegistry(10)
	require.NoError(t, r.Register(optimism.NewModule()))

	network, err := r.Resolve(1)
	require.NoError(t, err)
	assert.Equal(t, int64(10), network.GetNetworkID())

	_, err = r.Resolve(8453)
	assert.True(t, errors.Is(err, ErrUnknownNetwork))
}
