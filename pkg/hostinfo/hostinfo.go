package hostinfo

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/host"

	"github.com/waggle-sensor/registration-agent/internal/models"
)

// Collector gathers host facts attached to registration events.
type Collector interface {
	Collect(ctx context.Context) *models.HostFacts
}

// HostCollector reads platform details through gopsutil.
type HostCollector struct {
	Logger zerolog.Logger
}

// NewHostCollector initializes a HostCollector.
func NewHostCollector(logger zerolog.Logger) *HostCollector {
	return &HostCollector{Logger: logger.With().Str("component", "hostinfo").Logger()}
}

// Collect returns nil when the platform cannot be queried.
func (c *HostCollector) Collect(ctx context.Context) *models.HostFacts {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		c.Logger.Warn().Err(err).Msg("Failed to get host information")
		return nil
	}

	facts := &models.HostFacts{
		Hostname:        info.Hostname,
		OS:              info.OS,
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		KernelVersion:   info.KernelVersion,
		KernelArch:      info.KernelArch,
	}
	if info.BootTime > 0 {
		facts.BootTime = time.Unix(int64(info.BootTime), 0).UTC()
	}

	c.Logger.Debug().Str("hostname", facts.Hostname).Str("platform", facts.Platform).Msg("Host information collected")
	return facts
}
