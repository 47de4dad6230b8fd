// SPDX-License-Identifier: MIT
package ducking

import (
	"context"

	applog "ducker/internal/log"
)

// Router is the part of the device that owns the routing matrix.
type Router interface {
	// SetRoutingCell stages volume for a single matrix cell.
	SetRoutingCell(in InputChannel, out OutputChannel, volume uint8) error
	// CommitChannel pushes every staged cell of an input row to the hardware.
	CommitChannel(ctx context.Context, in InputChannel) error
}

// ApplyResult summarises one Apply call.
type ApplyResult struct {
	CellsWritten      int
	CellsFailed       int
	ChannelsCommitted int
	ChannelsFailed    int
}

// Apply writes volume into every duck-routed cell and commits each input row
// that had at least one successful write. Failures are logged and never stop
// the remaining cells or rows.
func Apply(ctx context.Context, router Router, routing *Routing, volume uint8) ApplyResult {
	var res ApplyResult

	for in := InputChannel(0); in < InputChannelCount; in++ {
		changed := false
		for out := OutputChannel(0); out < OutputChannelCount; out++ {
			if !routing[in][out] {
				continue
			}
			if err := router.SetRoutingCell(in, out, volume); err != nil {
				applog.Warnf("Ducker: Error setting route %s -> %s to %d: %v", in, out, volume, err)
				res.CellsFailed++
				continue
			}
			res.CellsWritten++
			changed = true
		}

		if !changed {
			continue
		}
		if err := router.CommitChannel(ctx, in); err != nil {
			applog.Warnf("Ducker: Error applying routing for %s: %v", in, err)
			res.ChannelsFailed++
			continue
		}
		res.ChannelsCommitted++
	}

	return res
}
