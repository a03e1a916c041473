package sysinfo

import (
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"
)

// Metadata is a snapshot of the local machine, serialized to JSON and
// ciphered into the authentication token at connect time.
type Metadata struct {
	Hostname        string    `json:"hostname"`
	Platform        string    `json:"platform"`
	PlatformVersion string    `json:"platform_version,omitempty"`
	KernelArch      string    `json:"kernel_arch,omitempty"`
	CPUCount        int       `json:"cpu_count"`
	TotalMemory     uint64    `json:"total_memory"`
	UptimeSec       uint64    `json:"uptime_sec"`
	CollectedAt     time.Time `json:"collected_at"`
}

// Provider yields the metadata used to authenticate a connection attempt.
type Provider interface {
	// Metadata returns a fresh snapshot. Called once per connect.
	Metadata(ctx context.Context) (Metadata, error)
}

// System probes the local host via gopsutil.
type System struct{}

// Metadata collects host, CPU and memory facts.
func (System) Metadata(ctx context.Context) (Metadata, error) {
	info, err := host.InfoWithContext(ctx)
	if err != nil {
		return Metadata{}, fmt.Errorf("failed to read host info: %w", err)
	}

	meta := Metadata{
		Hostname:        info.Hostname,
		Platform:        info.Platform,
		PlatformVersion: info.PlatformVersion,
		KernelArch:      info.KernelArch,
		UptimeSec:       info.Uptime,
		CollectedAt:     time.Now().UTC(),
	}

	// CPU and memory are best-effort; a connect should not fail because
	// a probe is unavailable on this platform.
	if count, err := cpu.CountsWithContext(ctx, true); err == nil {
		meta.CPUCount = count
	}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		meta.TotalMemory = vm.Total
	}

	return meta, nil
}

// Static always returns the same snapshot (with CollectedAt refreshed).
type Static struct {
	Snapshot Metadata
}

// Metadata returns the fixed snapshot.
func (s Static) Metadata(context.Context) (Metadata, error) {
	meta := s.Snapshot
	if meta.CollectedAt.IsZero() {
		meta.CollectedAt = time.Now().UTC()
	}
	return meta, nil
}

// Compile-time interface satisfaction checks.
var (
	_ Provider = System{}
	_ Provider = Static{}
)
