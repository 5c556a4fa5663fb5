package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/raksha-rane/stratify/internal/database"
	"github.com/raksha-rane/stratify/internal/ratelimit"
	"github.com/raksha-rane/stratify/internal/reliability"
	"github.com/raksha-rane/stratify/internal/scheduler"
	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

// JobStatusProvider reports registered background jobs
type JobStatusProvider interface {
	Status() []scheduler.JobStatus
}

// DataSource reports the upstream market data client's circuit breaker
type DataSource interface {
	Name() string
	BreakerState() string
}

// CheckResult is one entry of the health report
type CheckResult struct {
	Status    string  `json:"status"`
	Healthy   bool    `json:"healthy"`
	Message   string  `json:"message,omitempty"`
	Error     string  `json:"error,omitempty"`
	LatencyMS float64 `json:"response_time_ms,omitempty"`
}

// HealthResponse is the body of GET /health
type HealthResponse struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Version   string                 `json:"version"`
	Timestamp string                 `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks"`
	Disk      *reliability.DiskUsage `json:"disk,omitempty"`
	System    SystemMetrics          `json:"metrics"`
}

// SystemMetrics holds host and process resource readings
type SystemMetrics struct {
	CPUPercent      float64 `json:"cpu_percent"`
	CPUCount        int     `json:"cpu_count"`
	MemoryPercent   float64 `json:"memory_percent"`
	MemoryUsedMB    float64 `json:"memory_used_mb"`
	MemoryTotalMB   float64 `json:"memory_total_mb"`
	UptimeSeconds   float64 `json:"uptime_seconds"`
	UptimeFormatted string  `json:"uptime_formatted"`
	HostUptimeSecs  uint64  `json:"host_uptime_seconds"`
}

// DBInfo describes one database file
type DBInfo struct {
	Name      string  `json:"name"`
	Path      string  `json:"path"`
	SizeMB    float64 `json:"size_mb"`
	PageCount int64   `json:"page_count"`
	Freelist  int64   `json:"freelist_count"`
}

// SystemHandlers serves health and operational status endpoints
type SystemHandlers struct {
	dataDir     string
	databases   map[string]*database.DB
	limiter     *ratelimit.Limiter
	jobs        JobStatusProvider
	source      DataSource
	version     string
	startedAt   time.Time
	minFreeDisk uint64
	log         zerolog.Logger
}

// NewSystemHandlers creates system handlers. jobs and source may be nil.
func NewSystemHandlers(
	log zerolog.Logger,
	dataDir string,
	databases map[string]*database.DB,
	limiter *ratelimit.Limiter,
	jobs JobStatusProvider,
	source DataSource,
	version string,
) *SystemHandlers {
	return &SystemHandlers{
		dataDir:     dataDir,
		databases:   databases,
		limiter:     limiter,
		jobs:        jobs,
		source:      source,
		version:     version,
		startedAt:   time.Now(),
		minFreeDisk: reliability.MinFreeDiskBytes,
		log:         log.With().Str("component", "system_handlers").Logger(),
	}
}

// HandleHealth handles GET /health. It responds 503 when any check fails.
func (h *SystemHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]CheckResult, len(h.databases)+2)
	for name, db := range h.databases {
		checks["database_"+name] = checkDatabase(ctx, db)
	}

	if h.source != nil {
		state := h.source.BreakerState()
		check := CheckResult{Status: "healthy", Healthy: true, Message: fmt.Sprintf("%s circuit %s", h.source.Name(), state)}
		if state == "open" {
			check.Status = "unhealthy"
			check.Healthy = false
		}
		checks["data_source"] = check
	}

	var diskUsage *reliability.DiskUsage
	if usage, err := reliability.CheckDisk(h.dataDir); err != nil {
		checks["disk_space"] = CheckResult{Status: "error", Error: err.Error(), Message: "Failed to check disk space"}
	} else {
		diskUsage = &usage
		check := CheckResult{
			Status:  "healthy",
			Healthy: usage.FreeBytes >= h.minFreeDisk,
			Message: fmt.Sprintf("%.2fGB free", usage.FreeGB()),
		}
		if !check.Healthy {
			check.Status = "unhealthy"
		}
		checks["disk_space"] = check
	}

	status := "healthy"
	for name, check := range checks {
		if !check.Healthy {
			status = "unhealthy"
			h.log.Warn().Str("check", name).Str("message", check.Message).Str("error", check.Error).Msg("Health check failed")
		}
	}

	response := HealthResponse{
		Status:    status,
		Service:   "stratify",
		Version:   h.version,
		Timestamp: time.Now().Format(time.RFC3339),
		Checks:    checks,
		Disk:      diskUsage,
		System:    h.getSystemStats(),
	}

	code := http.StatusOK
	if status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	h.writeJSON(w, code, response)
}

func checkDatabase(ctx context.Context, db *database.DB) CheckResult {
	start := time.Now()
	if err := db.QuickCheck(ctx); err != nil {
		return CheckResult{Status: "unhealthy", Error: err.Error(), Message: "Database check failed"}
	}
	return CheckResult{
		Status:    "healthy",
		Healthy:   true,
		Message:   "Database connection successful",
		LatencyMS: float64(time.Since(start).Microseconds()) / 1000,
	}
}

// HandleQueueStatus handles GET /api/queue/status
func (h *SystemHandlers) HandleQueueStatus(w http.ResponseWriter, r *http.Request) {
	client := ratelimit.ClientIP(r)
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"client":    client,
			"resources": h.limiter.Status(client),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleJobsStatus handles GET /api/system/jobs
func (h *SystemHandlers) HandleJobsStatus(w http.ResponseWriter, r *http.Request) {
	jobs := []scheduler.JobStatus{}
	if h.jobs != nil {
		jobs = h.jobs.Status()
	}
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": jobs,
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleDatabaseStats handles GET /api/system/database/stats
func (h *SystemHandlers) HandleDatabaseStats(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(h.databases))
	for name := range h.databases {
		names = append(names, name)
	}
	sort.Strings(names)

	databases := make([]DBInfo, 0, len(names))
	totalSizeMB := 0.0
	for _, name := range names {
		db := h.databases[name]
		info := DBInfo{Name: name, Path: db.Path()}

		if fi, err := os.Stat(db.Path()); err == nil {
			info.SizeMB = float64(fi.Size()) / 1024 / 1024
			totalSizeMB += info.SizeMB
		}
		if stats, err := db.GetStats(); err == nil {
			info.PageCount = stats.PageCount
			info.Freelist = stats.FreelistCount
		} else {
			h.log.Warn().Err(err).Str("database", name).Msg("Failed to read database stats")
		}
		databases = append(databases, info)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"databases":     databases,
			"total_size_mb": totalSizeMB,
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// HandleDiskUsage handles GET /api/system/disk
func (h *SystemHandlers) HandleDiskUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := reliability.CheckDisk(h.dataDir)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to check disk usage")
		h.writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
			"error":   "internal_error",
			"message": "Failed to check disk usage",
		})
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"disk":        usage,
			"free_gb":     usage.FreeGB(),
			"min_free_gb": float64(h.minFreeDisk) / (1 << 30),
		},
		"metadata": map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
		},
	})
}

// getSystemStats samples CPU over 100ms; memory and uptime are instant
func (h *SystemHandlers) getSystemStats() SystemMetrics {
	uptime := time.Since(h.startedAt)
	stats := SystemMetrics{
		UptimeSeconds:   uptime.Round(time.Second).Seconds(),
		UptimeFormatted: formatUptime(uptime),
	}

	if cpuPercent, err := cpu.Percent(100*time.Millisecond, false); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get CPU percentage")
	} else if len(cpuPercent) > 0 {
		stats.CPUPercent = cpuPercent[0]
	}
	if count, err := cpu.Counts(true); err == nil {
		stats.CPUCount = count
	}

	if memStat, err := mem.VirtualMemory(); err != nil {
		h.log.Warn().Err(err).Msg("Failed to get memory statistics")
	} else {
		stats.MemoryPercent = memStat.UsedPercent
		stats.MemoryUsedMB = float64(memStat.Used) / 1024 / 1024
		stats.MemoryTotalMB = float64(memStat.Total) / 1024 / 1024
	}

	if hostUptime, err := host.Uptime(); err == nil {
		stats.HostUptimeSecs = hostUptime
	}

	return stats
}

// formatUptime renders a duration as "2h 15m 30s", dropping leading zero units
func formatUptime(d time.Duration) string {
	total := int(d.Seconds())
	hours, minutes, seconds := total/3600, total%3600/60, total%60

	switch {
	case hours > 0 && minutes > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	case hours > 0:
		return fmt.Sprintf("%dh %ds", hours, seconds)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%ds", seconds)
}

// writeJSON writes a JSON response
func (h *SystemHandlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
