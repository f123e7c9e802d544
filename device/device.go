// Package device discovers the compute devices a session can be placed on.
package device

import (
	goruntime "runtime"

	"github.com/klauspost/cpuid/v2"
)

// Info describes the host.
type Info struct {
	Brand         string
	PhysicalCores int
	LogicalCores  int
	AVX2          bool
	GPUs          int
	GPUNames      []string
}

// Discover inspects the host. A missing or unusable GPU reports zero GPUs.
func Discover() Info {
	info := Info{
		Brand:         cpuid.CPU.BrandName,
		PhysicalCores: cpuid.CPU.PhysicalCores,
		LogicalCores:  cpuid.CPU.LogicalCores,
		AVX2:          cpuid.CPU.Supports(cpuid.AVX2),
	}
	if info.LogicalCores <= 0 {
		info.LogicalCores = goruntime.NumCPU()
	}
	if info.PhysicalCores <= 0 {
		info.PhysicalCores = info.LogicalCores
	}
	info.GPUNames = gpus()
	info.GPUs = len(info.GPUNames)
	return info
}

// Threads is the thread pool size to give the runtime.
func (i Info) Threads() int {
	return i.PhysicalCores
}
