package bootinfo

import (
	"encoding/binary"

	"memcore/kernel"
)

var (
	// ErrMalformedBootInfo is returned when the multiboot info block is
	// truncated or its tag sizes do not add up.
	ErrMalformedBootInfo = &kernel.Error{Module: "bootinfo", Message: "malformed multiboot info block"}

	// ErrNoMemoryMap is returned when the bootloader did not include a
	// memory map tag in the info block.
	ErrNoMemoryMap = &kernel.Error{Module: "bootinfo", Message: "multiboot info block carries no memory map"}
)

type tagType uint32

// nolint
const (
	tagSectionEnd tagType = iota
	tagBootCmdLine
	tagBootLoaderName
	tagModules
	tagBasicMemoryInfo
	tagBiosBootDevice
	tagMemoryMap
	tagVbeInfo
	tagFramebufferInfo
	tagElfSymbols
	tagApmTable
)

const (
	infoHeaderSize = 8
	tagHeaderSize  = 8
	mmapHeaderSize = 8
	mmapEntrySize  = 24
)

// ParseMultibootMemoryMap extracts the memory map from a multiboot2 info
// block. The block starts with a two-dword header followed by a series of
// tags, each aligned at an 8-byte boundary; the memory map tag carries an
// entry size header and a list of fixed-size region entries.
func ParseMultibootMemoryMap(info []byte) (MemoryMap, *kernel.Error) {
	if len(info) < infoHeaderSize {
		return nil, ErrMalformedBootInfo
	}
	totalSize := binary.LittleEndian.Uint32(info[0:4])
	if uint64(totalSize) > uint64(len(info)) || totalSize < infoHeaderSize {
		return nil, ErrMalformedBootInfo
	}

	cur := uint32(infoHeaderSize)
	for cur+tagHeaderSize <= totalSize {
		typ := tagType(binary.LittleEndian.Uint32(info[cur : cur+4]))
		size := binary.LittleEndian.Uint32(info[cur+4 : cur+8])
		if typ == tagSectionEnd {
			break
		}
		if size < tagHeaderSize || cur+size > totalSize {
			return nil, ErrMalformedBootInfo
		}

		if typ == tagMemoryMap {
			return parseMemoryMapTag(info[cur+tagHeaderSize : cur+size])
		}

		// tags start at 8-byte aligned offsets
		cur += (size + 7) &^ 7
	}

	return nil, ErrNoMemoryMap
}

// parseMemoryMapTag decodes the contents of a memory map tag, excluding the
// tag header.
func parseMemoryMapTag(data []byte) (MemoryMap, *kernel.Error) {
	if len(data) < mmapHeaderSize {
		return nil, ErrMalformedBootInfo
	}
	entrySize := binary.LittleEndian.Uint32(data[0:4])
	if entrySize < mmapEntrySize {
		return nil, ErrMalformedBootInfo
	}

	var memMap MemoryMap
	for cur := uint32(mmapHeaderSize); cur+entrySize <= uint32(len(data)); cur += entrySize {
		entry := data[cur : cur+entrySize]
		memMap = append(memMap, Region{
			Start:  binary.LittleEndian.Uint64(entry[0:8]),
			Length: binary.LittleEndian.Uint64(entry[8:16]),
			Type:   RegionType(binary.LittleEndian.Uint32(entry[16:20])),
		})
	}

	return memMap, nil
}
