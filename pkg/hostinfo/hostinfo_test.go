package hostinfo_test

import (
	"context"
	"runtime"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waggle-sensor/registration-agent/pkg/hostinfo"
)

// TestHostCollector_Collect reports the running platform.
func TestHostCollector_Collect(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("host facts are only checked on linux and darwin")
	}

	facts := hostinfo.NewHostCollector(zerolog.Nop()).Collect(context.Background())

	require.NotNil(t, facts)
	assert.Equal(t, runtime.GOOS, facts.OS)
	assert.False(t, facts.BootTime.IsZero())
}
