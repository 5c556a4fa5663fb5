package reliability

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/disk"
)

// MinFreeDiskBytes is the free space below which the service reports unhealthy
const MinFreeDiskBytes = 1 << 30

// DiskUsage reports capacity of the filesystem holding path
type DiskUsage struct {
	Path        string  `json:"path"`
	TotalBytes  uint64  `json:"total_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

// FreeGB is FreeBytes in gigabytes
func (d DiskUsage) FreeGB() float64 {
	return float64(d.FreeBytes) / (1 << 30)
}

// CheckDisk reads filesystem usage for path
func CheckDisk(path string) (DiskUsage, error) {
	usage, err := disk.Usage(path)
	if err != nil {
		return DiskUsage{}, fmt.Errorf("failed to stat filesystem: %w", err)
	}
	return DiskUsage{
		Path:        path,
		TotalBytes:  usage.Total,
		FreeBytes:   usage.Free,
		UsedPercent: usage.UsedPercent,
	}, nil
}
