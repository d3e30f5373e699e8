package resource

import (
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemMemoryProbe answers questions about host and GPU memory. Hardware
// polling itself lives outside this module.
type SystemMemoryProbe interface {
	TotalMemory() uint64
	FreeMemory() uint64
	// VRAM returns the GPU budget and the amount currently used.
	VRAM() (budget, usage uint64)
}

// VRAMReader is supplied by the rendering backend.
type VRAMReader func() (budget, usage uint64)

// HostProbe reads RAM figures from the operating system.
type HostProbe struct {
	vram VRAMReader
}

func NewHostProbe(vram VRAMReader) *HostProbe {
	return &HostProbe{vram: vram}
}

func (p *HostProbe) TotalMemory() uint64 {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0
	}
	return vm.Total
}

func (p *HostProbe) FreeMemory() uint64 {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0
	}
	return vm.Available
}

func (p *HostProbe) VRAM() (uint64, uint64) {
	if p.vram == nil {
		return 0, 0
	}
	return p.vram()
}

// StaticProbe reports fixed figures. Fields may be changed between frames.
type StaticProbe struct {
	Total      uint64
	Free       uint64
	VRAMBudget uint64
	VRAMUsage  uint64
}

func (p *StaticProbe) TotalMemory() uint64   { return p.Total }
func (p *StaticProbe) FreeMemory() uint64    { return p.Free }
func (p *StaticProbe) VRAM() (uint64, uint64) { return p.VRAMBudget, p.VRAMUsage }
