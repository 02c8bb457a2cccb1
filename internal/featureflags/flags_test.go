package featureflags

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseAndBooleanValues(t *testing.T) {
	f := Parse("a=on, b=off ,c=TRUE,d=false,e=1,f=0")

	require.True(t, f.Enabled("a", 1))
	require.True(t, f.Enabled("c", 1))
	require.True(t, f.Enabled("e", 1))
	require.False(t, f.Enabled("b", 1))
	require.False(t, f.Enabled("d", 1))
	require.False(t, f.Enabled("f", 1))
}

func TestUnknownAndMalformedFlags(t *testing.T) {
	f := Parse("valid=on,broken,=x,empty=")

	require.True(t, f.Enabled("valid", 1))
	require.False(t, f.Enabled("broken", 1))
	require.False(t, f.Enabled("missing", 1))
}

func TestPercentageRollout(t *testing.T) {
	f := Parse("ramp=50%")

	// Deterministic per user.
	for userID := uint(1); userID <= 20; userID++ {
		first := f.Enabled("ramp", userID)
		require.Equal(t, first, f.Enabled("ramp", userID))
	}

	require.True(t, Parse("ramp=100%").Enabled("ramp", 7))
	require.False(t, Parse("ramp=0%").Enabled("ramp", 7))
	require.False(t, Parse("ramp=50%").Enabled("ramp", 0))
	require.False(t, Parse("ramp=banana%").Enabled("ramp", 7))
}

func TestNilFlagsAreOff(t *testing.T) {
	var f *Flags
	require.False(t, f.Enabled("anything", 1))
	require.Nil(t, f.Snapshot(1))
}

func TestSnapshot(t *testing.T) {
	f := Parse("a=on,b=off")
	snap := f.Snapshot(3)
	require.Equal(t, map[string]bool{"a": true, "b": false}, snap)
}
