package fat

import (
	"fmt"

	"github.com/dargueta/gofat/errors"
)

// FirstValidCluster is the first cluster number available for data; 0 and 1
// are reserved (0 means "free", 1 is vestigial from the FAT12 media-descriptor
// era and never allocated).
const FirstValidCluster = 2

// Sentinel classes per SPEC_FULL.md §3 / spec.md §3.
const (
	fat12EOCThreshold uint32 = 0xFF8
	fat12BadValue     uint32 = 0xFF7
	fat12Mask         uint32 = 0xFFF

	fat16EOCThreshold uint32 = 0xFFF8
	fat16BadValue     uint32 = 0xFFF7
	fat16Mask         uint32 = 0xFFFF

	fat32EOCThreshold uint32 = 0x0FFFFFF8
	fat32BadValue     uint32 = 0x0FFFFFF7
	fat32Mask         uint32 = 0x0FFFFFFF
)

func (v *Volume) isValidCluster(c ClusterID) bool {
	return uint32(c) >= FirstValidCluster && uint32(c) < FirstValidCluster+v.totalClusters
}

func (v *Volume) checkCluster(c ClusterID) error {
	if !v.isValidCluster(c) {
		return errors.InvalidCluster.WithMessage(fmt.Sprintf(
			"cluster %d outside [2, %d)", uint32(c), FirstValidCluster+v.totalClusters))
	}
	return nil
}

// readFATEntry reads the raw successor value for cluster c, masked to the
// volume's entry width. Ported from original_source/src/fat_table.c
// fat_read_entry, replacing pointer-cast aliasing with explicit
// little-endian composition (a cache offset is never type-punned).
func (v *Volume) readFATEntry(c ClusterID) (uint32, error) {
	if err := v.checkCluster(c); err != nil {
		return 0, err
	}

	switch v.fatType {
	case FAT12:
		byteOffset := (uint32(c) * 3) / 2
		entry := v.cache.readUint16(byteOffset)
		if c&1 != 0 {
			return uint32(entry) >> 4, nil
		}
		return uint32(entry) & 0x0FFF, nil

	case FAT16:
		return uint32(v.cache.readUint16(uint32(c) * 2)), nil

	case FAT32:
		byteOffset := uint32(c) * 4
		return v.cache.readUint32(byteOffset) & fat32Mask, nil

	default:
		return 0, errors.UnsupportedFatType.WithMessage("unknown FAT type")
	}
}

// writeFATEntry writes value (masked to the entry width) into cluster c's
// slot. Ported from fat_table.c fat_write_entry, with the FAT32 reserved-bit
// bug fixed: the source does
//
//	new_entry = (current_entry & 0x0FFFFFFF) | value
//
// which clears the top 4 reserved bits instead of preserving them. The
// correct mask, used here, is current_entry & 0xF0000000.
func (v *Volume) writeFATEntry(c ClusterID, value uint32) error {
	if err := v.checkCluster(c); err != nil {
		return err
	}

	switch v.fatType {
	case FAT12:
		byteOffset := (uint32(c) * 3) / 2
		entry := v.cache.readUint16(byteOffset)
		value &= 0x0FFF

		var newEntry uint16
		if c&1 != 0 {
			newEntry = (entry & 0x000F) | uint16(value<<4)
		} else {
			newEntry = (entry & 0xF000) | uint16(value)
		}
		v.cache.writeUint16(byteOffset, newEntry)

	case FAT16:
		v.cache.writeUint16(uint32(c)*2, uint16(value&0xFFFF))

	case FAT32:
		byteOffset := uint32(c) * 4
		current := v.cache.readUint32(byteOffset)
		newEntry := (current & 0xF0000000) | (value & fat32Mask)
		v.cache.writeUint32(byteOffset, newEntry)

	default:
		return errors.UnsupportedFatType.WithMessage("unknown FAT type")
	}

	return nil
}

// isEOC reports whether raw (a value read from the FAT) marks end-of-chain
// for the volume's FAT type.
func (v *Volume) isEOC(raw uint32) bool {
	switch v.fatType {
	case FAT12:
		return raw&fat12Mask >= fat12EOCThreshold
	case FAT16:
		return raw&fat16Mask >= fat16EOCThreshold
	case FAT32:
		return raw&fat32Mask >= fat32EOCThreshold
	default:
		return false
	}
}

// isBad reports whether raw marks a bad-cluster sentinel.
func (v *Volume) isBad(raw uint32) bool {
	switch v.fatType {
	case FAT12:
		return raw&fat12Mask == fat12BadValue
	case FAT16:
		return raw&fat16Mask == fat16BadValue
	case FAT32:
		return raw&fat32Mask == fat32BadValue
	default:
		return false
	}
}

// eocMarker returns the canonical end-of-chain value to write when
// terminating a chain for the volume's FAT type.
func (v *Volume) eocMarker() uint32 {
	switch v.fatType {
	case FAT12:
		return fat12EOCThreshold | 0x7 // 0xFFF, a valid EOC value (>= threshold)
	case FAT16:
		return 0xFFFF
	case FAT32:
		return 0x0FFFFFFF
	default:
		return 0
	}
}
