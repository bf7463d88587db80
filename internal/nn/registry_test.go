package nn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltInActivations(t *testing.T) {
	t.Cleanup(resetActivationRegistryForTests)

	assert.Equal(t, []string{"identity", "sigmoid", "tanh"}, ListActivations())

	sigmoid, err := GetActivation("sigmoid")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, sigmoid.Func(0), 1e-12)
	assert.InDelta(t, 0.25, sigmoid.OutputDerivative(0.5), 1e-12)
}

func TestRegisterActivationRejectsDuplicatesAndIncomplete(t *testing.T) {
	t.Cleanup(resetActivationRegistryForTests)

	err := RegisterActivation(Activation{Name: "sigmoid", Func: Sigmoid, OutputDerivative: Sigmoid})
	require.ErrorIs(t, err, ErrActivationExists)

	require.Error(t, RegisterActivation(Activation{Name: "half"}))
	require.Error(t, RegisterActivation(Activation{Func: Sigmoid, OutputDerivative: Sigmoid}))

	_, err = GetActivation("missing")
	require.ErrorIs(t, err, ErrActivationNotFound)
}
