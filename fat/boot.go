package fat

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dargueta/gofat/errors"
)

// SectorID and ClusterID give the two address spaces a volume deals in
// distinct types, so a raw integer can't be passed as the wrong one by
// accident.
type SectorID uint32
type ClusterID uint32

// RawBootSectorBPB is the on-disk BIOS Parameter Block common to FAT12,
// FAT16, and FAT32 boot sectors. FAT32-only fields (root cluster, FSInfo
// sector) live outside this struct: FSInfo maintenance is out of scope
// (SPEC_FULL.md §1), and the root cluster is read separately below since
// its offset only exists on FAT32 media.
type RawBootSectorBPB struct {
	JmpBoot           [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors16    uint16
	Media             uint8
	SectorsPerFAT16   uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	TotalSectors32    uint32
}

// BootSectorParams is the subset of boot-sector fields NewVolumeFromBootSector
// needs, plus the FAT32 root cluster field that only exists on FAT32 media.
// Kept separate from RawBootSectorBPB so callers building a synthetic volume
// in tests don't need to fabricate a full 36-byte BPB by hand.
type BootSectorParams struct {
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors      uint32
	SectorsPerFAT     uint32 // 16-bit field value, or the FAT32 32-bit value
	FAT32RootCluster  uint32 // ignored unless the computed type is FAT32
}

// DetermineFATVersion determines the FAT width from the total cluster
// count — the only correct way to do it, per Microsoft's FAT spec v1.03
// p.14. A volume's "FAT16" vs "FAT32" label is a consequence of its size,
// never a stored field.
func DetermineFATVersion(totalClusters uint32) Type {
	if totalClusters < 4085 {
		return FAT12
	}
	if totalClusters < 65525 {
		return FAT16
	}
	return FAT32
}

// ReadBootSectorBPB reads the common BPB fields from the front of a boot
// sector stream (JmpBoot through the 32-bit total sector count at offset
// 0x24, i.e. the first 36 bytes). It does not interpret them; that is
// ParamsFromBPB's job.
func ReadBootSectorBPB(r io.Reader) (*RawBootSectorBPB, error) {
	raw := &RawBootSectorBPB{}
	if err := binary.Read(r, binary.LittleEndian, raw); err != nil {
		return nil, errors.Device.Wrap(err)
	}
	return raw, nil
}

// ParamsFromBPB converts a parsed BPB plus the FAT32-only root cluster
// field (read separately by the caller, at a fixed offset past the common
// BPB, when FAT32 is suspected) into BootSectorParams.
func ParamsFromBPB(raw *RawBootSectorBPB, sectorsPerFAT32, fat32RootCluster uint32) BootSectorParams {
	sectorsPerFAT := uint32(raw.SectorsPerFAT16)
	if sectorsPerFAT == 0 {
		sectorsPerFAT = sectorsPerFAT32
	}

	totalSectors := uint32(raw.TotalSectors16)
	if totalSectors == 0 {
		totalSectors = raw.TotalSectors32
	}

	return BootSectorParams{
		BytesPerSector:    raw.BytesPerSector,
		SectorsPerCluster: raw.SectorsPerCluster,
		ReservedSectors:   raw.ReservedSectors,
		NumFATs:           raw.NumFATs,
		RootEntryCount:    raw.RootEntryCount,
		TotalSectors:      totalSectors,
		SectorsPerFAT:     sectorsPerFAT,
		FAT32RootCluster:  fat32RootCluster,
	}
}

func validateGeometry(p BootSectorParams) error {
	switch p.BytesPerSector {
	case 512, 1024, 2048, 4096:
	default:
		return errors.Corrupt.WithMessage(fmt.Sprintf(
			"BytesPerSector must be 512, 1024, 2048, or 4096, got %d", p.BytesPerSector))
	}

	switch p.SectorsPerCluster {
	case 1, 2, 4, 8, 16, 32, 64, 128:
	default:
		return errors.Corrupt.WithMessage(fmt.Sprintf(
			"SectorsPerCluster must be a power of 2 in 1-128, got %d", p.SectorsPerCluster))
	}

	bytesPerCluster := uint32(p.BytesPerSector) * uint32(p.SectorsPerCluster)
	if bytesPerCluster > 32768 {
		return errors.Corrupt.WithMessage(fmt.Sprintf(
			"BytesPerCluster cannot exceed 32768, got %d", bytesPerCluster))
	}

	if p.NumFATs == 0 {
		return errors.Corrupt.WithMessage("NumFATs must be nonzero")
	}
	if p.SectorsPerFAT == 0 {
		return errors.Corrupt.WithMessage("SectorsPerFAT must be nonzero")
	}

	return nil
}
