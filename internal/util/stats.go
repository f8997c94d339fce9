package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide audio traffic counter.
var Stats = &stats{}

type stats struct {
	PacketsSent atomic.Int64 // audio samples written to the local track
	PacketsRecv atomic.Int64 // RTP packets read from the remote track
	BytesSent   atomic.Int64 // cumulative audio payload bytes sent
	BytesRecv   atomic.Int64 // cumulative audio payload bytes received
}

func (s *stats) AddSent(n int) {
	s.PacketsSent.Add(1)
	s.BytesSent.Add(int64(n))
}

func (s *stats) AddRecv(n int) {
	s.PacketsRecv.Add(1)
	s.BytesRecv.Add(int64(n))
}

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// reportInterval is how often StartStatsReporter logs.
const reportInterval = 10 * time.Second

// StartStatsReporter launches a goroutine that logs audio statistics
// every 10 seconds while audio is flowing. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()

		var prevSent, prevRecv, prevPktSent, prevPktRecv int64
		for {
			select {
			case <-ticker.C:
				sent := Stats.BytesSent.Load()
				recv := Stats.BytesRecv.Load()
				pktSent := Stats.PacketsSent.Load()
				pktRecv := Stats.PacketsRecv.Load()

				secs := reportInterval.Seconds()
				outS := float64(sent-prevSent) / secs
				inS := float64(recv-prevRecv) / secs
				outP := float64(pktSent-prevPktSent) / secs
				inP := float64(pktRecv-prevPktRecv) / secs

				if inP > 0 || outP > 0 {
					pterm.DefaultLogger.Info(formatStats(inS, outS, inP, outP))
				}

				prevSent = sent
				prevRecv = recv
				prevPktSent = pktSent
				prevPktRecv = pktRecv

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted audio stats line for the logger.
func formatStats(inS, outS, inP, outP float64) string {
	return fmt.Sprintf("Audio In: %s/s (%3.0f pkt/s) | Out: %s/s (%3.0f pkt/s)",
		formatBytes(inS),
		inP,
		formatBytes(outS),
		outP,
	)
}
