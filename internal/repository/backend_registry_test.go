package repository

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmahmud/route-director/internal/domain"
	"github.com/rmahmud/route-director/internal/errors"
)

func TestRegisterAndGet(t *testing.T) {
	registry := NewBackendRegistry()

	backend := domain.NewBackend("srv-1", "http://localhost:8081", 1)
	require.NoError(t, registry.Register(backend))

	got, exists := registry.Get("srv-1")
	require.True(t, exists)
	assert.Equal(t, backend, got)
	assert.Equal(t, 1, registry.Count())
	assert.True(t, registry.Exists("srv-1"))
}

func TestRegisterDuplicate(t *testing.T) {
	registry := NewBackendRegistry()
	require.NoError(t, registry.Register(domain.NewBackend("srv-1", "http://localhost:8081", 1)))

	err := registry.Register(domain.NewBackend("srv-1", "http://localhost:9999", 2))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDuplicateBackend))
	assert.Equal(t, 1, registry.Count())
}

func TestRegisterInvalid(t *testing.T) {
	registry := NewBackendRegistry()

	err := registry.Register(domain.NewBackend("", "http://localhost:8081", 1))
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidBackend))

	err = registry.Register(nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidBackend))
}

func TestListPreservesRegistrationOrder(t *testing.T) {
	registry := NewBackendRegistry()
	require.NoError(t, registry.Register(domain.NewBackend("srv-c", "http://localhost:8083", 1)))
	require.NoError(t, registry.Register(domain.NewBackend("srv-a", "http://localhost:8081", 1)))
	require.NoError(t, registry.Register(domain.NewBackend("srv-b", "http://localhost:8082", 1)))

	list := registry.List()
	require.Len(t, list, 3)
	assert.Equal(t, "srv-c", list[0].ID)
	assert.Equal(t, "srv-a", list[1].ID)
	assert.Equal(t, "srv-b", list[2].ID)
}

func TestDeregister(t *testing.T) {
	registry := NewBackendRegistry()
	require.NoError(t, registry.Register(domain.NewBackend("srv-1", "http://localhost:8081", 1)))
	require.NoError(t, registry.Register(domain.NewBackend("srv-2", "http://localhost:8082", 1)))

	require.NoError(t, registry.Deregister("srv-1"))
	assert.False(t, registry.Exists("srv-1"))

	list := registry.List()
	require.Len(t, list, 1)
	assert.Equal(t, "srv-2", list[0].ID)

	err := registry.Deregister("srv-1")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBackendNotFound))
}
