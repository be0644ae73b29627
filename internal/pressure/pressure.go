// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
// Package pressure samples OS-level CPU, memory and swap pressure the same
// way intelligencedev-manifold's internal/hostinfo samples host memory with
// gopsutil, but adds the load/CPU classification adaptive_parallel (internal
// /pipeline) needs.
package pressure

import (
	"context"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

// Level classifies the system's current pressure.
type Level string

const (
	Nominal  Level = "nominal"
	Warning  Level = "warning"
	Critical Level = "critical"
)

// Details carries the raw samples behind a Capacity classification.
type Details struct {
	AvailMemBytes uint64
	UsedMemBytes  uint64
	TotalMemBytes uint64
	SwapUsedBytes uint64
	Load1         float64
}

// Capacity is the result of assess().
type Capacity struct {
	CanSpawnWorker   bool
	CPUUtilisationPct float64
	MemUtilisationPct float64
	PressureLevel    Level
	Details          Details
}

// Prober samples system pressure with a short TTL cache to guard against
// call storms from many concurrent adaptive_parallel stages (spec.md §4.A).
type Prober struct {
	ttl time.Duration

	mu       sync.Mutex
	cached   Capacity
	cachedAt time.Time
}

// New returns a Prober with the spec-mandated ~1s TTL cache.
func New() *Prober {
	return &Prober{ttl: time.Second}
}

// Assess samples or returns the cached Capacity. Fail-open: on sampling
// error (unsupported platform, command failure) it returns nominal with
// zeroed metrics and CanSpawnWorker = true, per spec.md §4.A.
func (p *Prober) Assess(ctx context.Context) Capacity {
	p.mu.Lock()
	defer p.mu.Unlock()

	if time.Since(p.cachedAt) < p.ttl && !p.cachedAt.IsZero() {
		return p.cached
	}

	cap := p.sample(ctx)
	p.cached = cap
	p.cachedAt = time.Now()
	return cap
}

func (p *Prober) sample(ctx context.Context) Capacity {
	cpuPct, cpuErr := sampleCPU(ctx)
	vm, memErr := mem.VirtualMemoryWithContext(ctx)
	swapActivity, swapErr := sampleSwapActivity(ctx)
	la, loadErr := load.AvgWithContext(ctx)

	if cpuErr != nil || memErr != nil || loadErr != nil {
		return failOpen()
	}

	avail := vm.Available
	total := vm.Total
	used := vm.Used
	memUtilPct := 0.0
	if total > 0 {
		memUtilPct = 100 * float64(total-avail) / float64(total)
	}
	freeMemPct := 100.0
	if total > 0 {
		freeMemPct = 100 * float64(avail) / float64(total)
	}

	var swapUsed uint64
	if swapErr == nil {
		swapUsed = swapActivity
	}

	level := classify(freeMemPct, cpuPct, swapUsed > 0)
	canSpawn := level != Critical && cpuPct < 70 && freeMemPct >= 15

	load1 := 0.0
	if la != nil {
		load1 = la.Load1
	}

	return Capacity{
		CanSpawnWorker:    canSpawn,
		CPUUtilisationPct: cpuPct,
		MemUtilisationPct: memUtilPct,
		PressureLevel:     level,
		Details: Details{
			AvailMemBytes: avail,
			UsedMemBytes:  used,
			TotalMemBytes: total,
			SwapUsedBytes: swapUsed,
			Load1:         load1,
		},
	}
}

// classify implements the macOS-style thresholds of spec.md §4.A (Linux
// analogous, since gopsutil normalises the sampling).
func classify(freeMemPct, cpuPct float64, swapActive bool) Level {
	switch {
	case freeMemPct < 5 || swapActive || cpuPct >= 95:
		return Critical
	case freeMemPct < 20 || cpuPct >= 70:
		return Warning
	default:
		return Nominal
	}
}

func failOpen() Capacity {
	return Capacity{CanSpawnWorker: true, PressureLevel: Nominal}
}

func sampleCPU(ctx context.Context) (float64, error) {
	pct, err := cpu.PercentWithContext(ctx, 200*time.Millisecond, false)
	if err != nil || len(pct) == 0 {
		return 0, err
	}
	return pct[0], nil
}

// sampleSwapActivity reports whether any swap is currently in use. gopsutil's
// SwapMemory gives a point-in-time "used" figure, which this spec treats as
// evidence of swap activity within the sample window.
func sampleSwapActivity(ctx context.Context) (uint64, error) {
	sm, err := mem.SwapMemoryWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return sm.Used, nil
}
