package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = abc ,broken, =skip,tenant=lending")
	require.Equal(t, map[string]string{"api-key": "abc", "tenant": "lending"}, headers)
	require.Empty(t, ParseHeaders(""))
}

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.Error(t, err)
}

func TestInitWithoutExportersShutsDownCleanly(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "trustflowd"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestResourceCarriesLedgerIdentity(t *testing.T) {
	res, err := Resource(Config{
		ServiceName: "trustflowd",
		Environment: "staging",
		InstanceID:  "node-a",
		ChainID:     77,
		Modules:     []string{"lending", "bank"},
	})
	require.NoError(t, err)
	set := res.Set()

	name, ok := set.Value(semconv.ServiceNameKey)
	require.True(t, ok)
	require.Equal(t, "trustflowd", name.AsString())
	env, ok := set.Value(semconv.DeploymentEnvironmentKey)
	require.True(t, ok)
	require.Equal(t, "staging", env.AsString())
	instance, ok := set.Value(semconv.ServiceInstanceIDKey)
	require.True(t, ok)
	require.Equal(t, "node-a", instance.AsString())
	chain, ok := set.Value(ChainIDKey)
	require.True(t, ok)
	require.Equal(t, int64(77), chain.AsInt64())
	modules, ok := set.Value(ModulesKey)
	require.True(t, ok)
	require.Equal(t, []string{"bank", "lending"}, modules.AsStringSlice())
}

func TestResourceOmitsUnsetIdentity(t *testing.T) {
	res, err := Resource(Config{ServiceName: "trustflowd"})
	require.NoError(t, err)
	_, ok := res.Set().Value(ChainIDKey)
	require.False(t, ok)
	_, ok = res.Set().Value(ModulesKey)
	require.False(t, ok)
}
