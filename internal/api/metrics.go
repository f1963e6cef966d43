package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/edusat-bridge/internal/bridges/mcu"
	"github.com/nerrad567/edusat-bridge/internal/history"
)

// SystemMetrics represents the complete metrics response.
type SystemMetrics struct {
	Timestamp     string                `json:"timestamp"`
	Version       string                `json:"version"`
	BridgeID      string                `json:"bridge_id"`
	UptimeSeconds int64                 `json:"uptime_seconds"`
	Runtime       RuntimeMetrics        `json:"runtime"`
	WebSocket     WSMetrics             `json:"websocket"`
	SensorSeq     uint64                `json:"sensor_seq"`
	Bridge        *mcu.Stats            `json:"bridge,omitempty"`
	Journal       *history.JournalStats `json:"journal,omitempty"`
	Database      *DatabaseMetrics      `json:"database,omitempty"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	MemoryTotalMB float64 `json:"memory_total_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// DatabaseMetrics describes the journal file and its connection pool.
type DatabaseMetrics struct {
	SizeBytes       int64 `json:"size_bytes"`
	OpenConnections int   `json:"open_connections"`
	InUse           int   `json:"in_use"`
	Idle            int   `json:"idle"`
	WaitCount       int64 `json:"wait_count"`
}

// handleMetrics returns runtime, bridge and journal counters.
func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	metrics := SystemMetrics{
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
		Version:       s.version,
		BridgeID:      s.bridgeID,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			MemoryTotalMB: float64(memStats.TotalAlloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
		WebSocket: WSMetrics{
			ConnectedClients: s.hub.ClientCount(),
		},
		SensorSeq: s.store.GetState().SensorSeq,
	}

	if s.bridge != nil {
		stats := s.bridge.Stats()
		metrics.Bridge = &stats
	}

	if s.journal != nil {
		stats := s.journal.Stats()
		metrics.Journal = &stats
	}

	if s.db != nil {
		dbStats := s.db.Stats()
		size, err := s.db.SizeBytes()
		if err != nil {
			s.logger.Warn("journal size unavailable", "error", err)
		}
		metrics.Database = &DatabaseMetrics{
			SizeBytes:       size,
			OpenConnections: dbStats.OpenConnections,
			InUse:           dbStats.InUse,
			Idle:            dbStats.Idle,
			WaitCount:       dbStats.WaitCount,
		}
	}

	writeJSON(w, http.StatusOK, metrics)
}
