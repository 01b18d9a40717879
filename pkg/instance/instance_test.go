package instance

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetIDPrefersExplicitID(t *testing.T) {
	t.Setenv("ORDERPLANNER_INSTANCE_ID", "api-1")
	t.Setenv("DYNO", "web.1")
	require.Equal(t, "api-1", GetID())

	t.Setenv("ORDERPLANNER_INSTANCE_ID", "")
	require.Equal(t, "web.1", GetID())

	t.Setenv("DYNO", "")
	require.NotEmpty(t, GetID())
}
