package backends

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitBackend(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"graphite", "null", "stdout"} {
		backend, err := InitBackend(name, viper.New())
		require.NoError(t, err, "backend: %s", name)
		require.NotNil(t, backend, "backend: %s", name)
		assert.Equal(t, name, backend.Name())
	}
}

func TestInitBackendUnknown(t *testing.T) {
	t.Parallel()
	_, err := InitBackend("nope", viper.New())
	require.Error(t, err)
}

func TestInitBackendEmptyName(t *testing.T) {
	t.Parallel()
	backend, err := InitBackend("", viper.New())
	require.NoError(t, err)
	assert.Nil(t, backend)
}
