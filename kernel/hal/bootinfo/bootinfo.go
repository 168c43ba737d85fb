// Package bootinfo describes the physical memory map that the bootloader
// hands to the kernel. The map is produced once during early boot and is
// consumed by the memory manager to seed its free-list stores and its
// reserved-region set.
package bootinfo

import "memcore/kernel/kfmt"

// RegionType defines the type of a memory map Region.
type RegionType uint32

const (
	// RegionAvailable indicates that the memory region is available for use.
	RegionAvailable RegionType = iota + 1

	// RegionReserved indicates that the memory region is not available for
	// use (firmware, MMIO or boot-reserved memory).
	RegionReserved

	// RegionACPIReclaimable indicates a region that holds ACPI info the OS
	// may reuse once the tables have been parsed.
	RegionACPIReclaimable

	// RegionNVS indicates memory that must be preserved when hibernating.
	RegionNVS

	// Any value >= regionUnknown is reported as RegionReserved.
	regionUnknown
)

// String implements fmt.Stringer for RegionType.
func (t RegionType) String() string {
	switch t {
	case RegionAvailable:
		return "available"
	case RegionReserved:
		return "reserved"
	case RegionACPIReclaimable:
		return "acpi reclaimable"
	case RegionNVS:
		return "nvs"
	}
	return "unknown"
}

// Region describes one physical memory region: its start address, its
// length and its type.
type Region struct {
	// The physical address where this region starts.
	Start uint64

	// The length of the region in bytes.
	Length uint64

	// The type of this region.
	Type RegionType
}

// RegionVisitor defines a visitor function that gets invoked by Visit for
// each memory region. Returning false stops the traversal.
type RegionVisitor func(region *Region) bool

// MemoryMap is the list of physical memory regions reported by the
// bootloader, in the order the bootloader supplied them.
type MemoryMap []Region

// Visit invokes the supplied visitor for each region in the map. Regions
// with an unknown type are reported as RegionReserved.
func (m MemoryMap) Visit(visitor RegionVisitor) {
	for i := range m {
		region := m[i]
		if region.Type == 0 || region.Type >= regionUnknown {
			region.Type = RegionReserved
		}
		if !visitor(&region) {
			return
		}
	}
}

// TotalAvailable returns the number of bytes across all available regions.
func (m MemoryMap) TotalAvailable() uint64 {
	var total uint64
	m.Visit(func(region *Region) bool {
		if region.Type == RegionAvailable {
			total += region.Length
		}
		return true
	})
	return total
}

// Print dumps the memory map through kfmt.
func (m MemoryMap) Print() {
	kfmt.Printf("[bootinfo] system memory map:\n")
	m.Visit(func(region *Region) bool {
		kfmt.Printf("\t[0x%10x - 0x%10x], size: %10d, type: %s\n",
			region.Start, region.Start+region.Length, region.Length, region.Type.String())
		return true
	})
	kfmt.Printf("[bootinfo] available memory: %dKb\n", m.TotalAvailable()/1024)
}
