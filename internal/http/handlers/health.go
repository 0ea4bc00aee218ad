package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shirou/gopsutil/v3/load"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"gorm.io/gorm"

	"github.com/jmylchreest/roomrec/internal/recording"
	"github.com/jmylchreest/roomrec/internal/storage"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	version   string
	startTime time.Time
	db        *gorm.DB
	manager   *recording.Manager
	store     *storage.Store
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		version:   version,
		startTime: time.Now(),
	}
}

// WithDB sets the database connection for health checks.
func (h *HealthHandler) WithDB(db *gorm.DB) *HealthHandler {
	h.db = db
	return h
}

// WithManager sets the room manager so health reports live room counts.
func (h *HealthHandler) WithManager(m *recording.Manager) *HealthHandler {
	h.manager = m
	return h
}

// WithStore sets the recording store for free-space checks.
func (h *HealthHandler) WithStore(s *storage.Store) *HealthHandler {
	h.store = s
	return h
}

// CPUInfo holds CPU load information.
type CPUInfo struct {
	Cores              int     `json:"cores"`
	Load1Min           float64 `json:"load_1min"`
	Load5Min           float64 `json:"load_5min"`
	Load15Min          float64 `json:"load_15min"`
	LoadPercentage1Min float64 `json:"load_percentage_1min"`
}

// ProcessMemoryInfo holds process-tree memory information. Encoder children
// show up here, so the tree total is the number operators watch.
type ProcessMemoryInfo struct {
	MainProcessMB      float64 `json:"main_process_mb"`
	ChildProcessesMB   float64 `json:"child_processes_mb"`
	ChildProcessCount  int     `json:"child_process_count"`
	TotalProcessTreeMB float64 `json:"total_process_tree_mb"`
	PercentageOfSystem float64 `json:"percentage_of_system"`
}

// MemoryInfo holds system and process memory information.
type MemoryInfo struct {
	TotalMemoryMB     float64           `json:"total_memory_mb"`
	UsedMemoryMB      float64           `json:"used_memory_mb"`
	FreeMemoryMB      float64           `json:"free_memory_mb"`
	AvailableMemoryMB float64           `json:"available_memory_mb"`
	SwapTotalMB       float64           `json:"swap_total_mb"`
	SwapUsedMB        float64           `json:"swap_used_mb"`
	ProcessMemory     ProcessMemoryInfo `json:"process_memory"`
}

// DatabaseHealth holds database connectivity status.
type DatabaseHealth struct {
	Status          string `json:"status"`
	OpenConnections int    `json:"open_connections"`
	InUse           int    `json:"in_use"`
	Idle            int    `json:"idle"`
	Error           string `json:"error,omitempty"`
}

// StorageHealth holds recording-root capacity status.
type StorageHealth struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// RoomsHealth summarizes the live room table.
type RoomsHealth struct {
	Live      int `json:"live"`
	Recording int `json:"recording"`
	Failed    int `json:"failed"`
}

// HealthResponse is the health endpoint body.
type HealthResponse struct {
	Status        string            `json:"status"`
	Timestamp     string            `json:"timestamp"`
	Version       string            `json:"version"`
	Uptime        string            `json:"uptime"`
	UptimeSeconds float64           `json:"uptime_seconds"`
	CPUInfo       CPUInfo           `json:"cpu"`
	Memory        MemoryInfo        `json:"memory"`
	Database      DatabaseHealth    `json:"database"`
	Storage       StorageHealth     `json:"storage"`
	Rooms         RoomsHealth       `json:"rooms"`
	Checks        map[string]string `json:"checks"`
}

// HealthOutput is the output for the health check endpoint.
type HealthOutput struct {
	Body HealthResponse
}

// ReadyOutput is the output for the readiness endpoint.
type ReadyOutput struct {
	Body struct {
		Ready bool `json:"ready"`
	}
}

// Register registers the health routes with the API.
func (h *HealthHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getHealth",
		Method:      http.MethodGet,
		Path:        "/api/v1/health",
		Summary:     "Health check",
		Description: "Returns the health status of the service including system metrics",
		Tags:        []string{"System"},
	}, h.GetHealth)

	huma.Register(api, huma.Operation{
		OperationID: "getReady",
		Method:      http.MethodGet,
		Path:        "/api/v1/health/ready",
		Summary:     "Readiness check",
		Tags:        []string{"System"},
	}, h.GetReady)
}

// GetHealth returns the health status of the service.
func (h *HealthHandler) GetHealth(ctx context.Context, _ *struct{}) (*HealthOutput, error) {
	now := time.Now()
	uptime := now.Sub(h.startTime)

	dbHealth := h.getDatabaseHealth(ctx)
	storageHealth := h.getStorageHealth()

	status := "healthy"
	if dbHealth.Status != "ok" || storageHealth.Status != "ok" {
		status = "degraded"
	}

	return &HealthOutput{
		Body: HealthResponse{
			Status:        status,
			Timestamp:     now.UTC().Format(time.RFC3339),
			Version:       h.version,
			Uptime:        uptime.Round(time.Second).String(),
			UptimeSeconds: uptime.Seconds(),
			CPUInfo:       h.getCPUInfo(),
			Memory:        h.getMemoryInfo(),
			Database:      dbHealth,
			Storage:       storageHealth,
			Rooms:         h.getRoomsHealth(),
			Checks: map[string]string{
				"database": dbHealth.Status,
				"storage":  storageHealth.Status,
			},
		},
	}, nil
}

// GetReady reports readiness: the process is up and the database answers.
func (h *HealthHandler) GetReady(ctx context.Context, _ *struct{}) (*ReadyOutput, error) {
	out := &ReadyOutput{}
	out.Body.Ready = h.getDatabaseHealth(ctx).Status == "ok"
	if !out.Body.Ready {
		return nil, huma.Error503ServiceUnavailable("database not ready")
	}
	return out, nil
}

// getCPUInfo returns CPU load information.
func (h *HealthHandler) getCPUInfo() CPUInfo {
	cores := runtime.NumCPU()
	info := CPUInfo{Cores: cores}

	loadAvg, err := load.Avg()
	if err == nil && loadAvg != nil {
		info.Load1Min = loadAvg.Load1
		info.Load5Min = loadAvg.Load5
		info.Load15Min = loadAvg.Load15
		if cores > 0 {
			info.LoadPercentage1Min = (loadAvg.Load1 / float64(cores)) * 100
		}
	}
	return info
}

// getMemoryInfo returns memory usage information.
func (h *HealthHandler) getMemoryInfo() MemoryInfo {
	info := MemoryInfo{}

	vmStat, err := mem.VirtualMemory()
	if err == nil && vmStat != nil {
		info.TotalMemoryMB = float64(vmStat.Total) / 1024 / 1024
		info.UsedMemoryMB = float64(vmStat.Used) / 1024 / 1024
		info.FreeMemoryMB = float64(vmStat.Free) / 1024 / 1024
		info.AvailableMemoryMB = float64(vmStat.Available) / 1024 / 1024
	}

	swapStat, err := mem.SwapMemory()
	if err == nil && swapStat != nil {
		info.SwapTotalMB = float64(swapStat.Total) / 1024 / 1024
		info.SwapUsedMB = float64(swapStat.Used) / 1024 / 1024
	}

	info.ProcessMemory = h.getProcessMemoryInfo(info.TotalMemoryMB)
	return info
}

// getProcessMemoryInfo samples this process and its encoder children.
func (h *HealthHandler) getProcessMemoryInfo(totalSystemMB float64) ProcessMemoryInfo {
	info := ProcessMemoryInfo{}

	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return info
	}

	memInfo, err := proc.MemoryInfo()
	if err == nil && memInfo != nil {
		info.MainProcessMB = float64(memInfo.RSS) / 1024 / 1024
		info.TotalProcessTreeMB = info.MainProcessMB
		if totalSystemMB > 0 {
			info.PercentageOfSystem = (info.MainProcessMB / totalSystemMB) * 100
		}
	}

	children, err := proc.Children()
	if err == nil {
		info.ChildProcessCount = len(children)
		for _, child := range children {
			childMem, err := child.MemoryInfo()
			if err == nil && childMem != nil {
				childMB := float64(childMem.RSS) / 1024 / 1024
				info.ChildProcessesMB += childMB
				info.TotalProcessTreeMB += childMB
			}
		}
	}
	return info
}

// getDatabaseHealth pings the database and reports pool statistics.
func (h *HealthHandler) getDatabaseHealth(ctx context.Context) DatabaseHealth {
	if h.db == nil {
		return DatabaseHealth{Status: "not_configured"}
	}

	sqlDB, err := h.db.DB()
	if err != nil {
		return DatabaseHealth{Status: "error", Error: err.Error()}
	}

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		return DatabaseHealth{Status: "error", Error: err.Error()}
	}

	stats := sqlDB.Stats()
	return DatabaseHealth{
		Status:          "ok",
		OpenConnections: stats.OpenConnections,
		InUse:           stats.InUse,
		Idle:            stats.Idle,
	}
}

// getStorageHealth checks the recording root still has headroom.
func (h *HealthHandler) getStorageHealth() StorageHealth {
	if h.store == nil {
		return StorageHealth{Status: "not_configured"}
	}
	if err := h.store.CheckFreeSpace(); err != nil {
		return StorageHealth{Status: "error", Error: err.Error()}
	}
	return StorageHealth{Status: "ok"}
}

// getRoomsHealth summarizes the live room table.
func (h *HealthHandler) getRoomsHealth() RoomsHealth {
	info := RoomsHealth{}
	if h.manager == nil {
		return info
	}
	for _, room := range h.manager.Rooms() {
		info.Live++
		switch room.State {
		case "recording":
			info.Recording++
		case "failed":
			info.Failed++
		}
	}
	return info
}
