package fat

import (
	"github.com/dargueta/gofat/blockdev"
	"github.com/dargueta/gofat/errors"
)

// Type is the on-disk FAT width a volume uses.
type Type uint8

const (
	FAT12 Type = 12
	FAT16 Type = 16
	FAT32 Type = 32
)

// DirentSize is the fixed width, in bytes, of every directory entry slot —
// short-name owners and LFN fragments alike.
const DirentSize = 32

// MountFlags gates the namespace-mutating operations independently of any
// per-entry attribute byte, mirroring the teacher's root-package MountFlags
// bitfield (api.go) trimmed to the two bits meaningful to a driver with no
// OS-level mount table of its own.
type MountFlags uint32

const (
	// MountFlagReadOnly forbids every mutating operation on the volume
	// regardless of individual entries' attribute bytes.
	MountFlagReadOnly MountFlags = 1 << iota
	// MountFlagNoATime is stored and reported by Volume.MountFlags; no
	// operation in this package reads it, and reads never update
	// access-date fields whether or not it is set.
	MountFlagNoATime
)

func (f MountFlags) ReadOnly() bool { return f&MountFlagReadOnly != 0 }
func (f MountFlags) NoATime() bool  { return f&MountFlagNoATime != 0 }

// FSStat is a read-only snapshot of volume-wide space accounting, returned
// by Volume.Stat. Not part of the on-disk format; purely a convenience for
// callers and tests that need to reason about free space without walking
// the FAT by hand.
type FSStat struct {
	TotalClusters     uint32
	FreeClusters      uint32
	BytesPerCluster   uint32
	FirstValidCluster uint32
}

// Volume is the mounted-volume descriptor (V) of SPEC_FULL.md §3: immutable
// geometry populated at construction, plus the one mutable resource every
// component shares — the FAT cache.
type Volume struct {
	device blockdev.Device
	flags  MountFlags

	fatType Type

	bytesPerSector    uint32
	sectorsPerCluster uint32
	bytesPerCluster   uint32

	reservedSectors uint32
	numFATs         uint32
	sectorsPerFAT   uint32

	rootEntryCount  uint32
	rootDirSectors  uint32
	fat32RootCluster uint32

	dataBeginSector uint32
	totalClusters   uint32

	cache *fatCache
}

// NewVolume constructs a Volume descriptor from already-validated geometry
// parameters and a backing block device. The FAT type is derived from the
// cluster count, never trusted from a stored field, per DetermineFATVersion.
func NewVolume(dev blockdev.Device, p BootSectorParams, flags MountFlags) (*Volume, error) {
	if err := validateGeometry(p); err != nil {
		return nil, err
	}

	bytesPerSector := uint32(p.BytesPerSector)
	sectorsPerCluster := uint32(p.SectorsPerCluster)
	bytesPerCluster := bytesPerSector * sectorsPerCluster
	numFATs := uint32(p.NumFATs)
	sectorsPerFAT := p.SectorsPerFAT

	rootDirSectors := (uint32(p.RootEntryCount)*DirentSize + bytesPerSector - 1) / bytesPerSector
	dataBeginSector := uint32(p.ReservedSectors) + numFATs*sectorsPerFAT + rootDirSectors

	if p.TotalSectors < dataBeginSector {
		return nil, errors.Corrupt.WithMessage("total sector count is smaller than the reserved+FAT+root region")
	}
	dataSectors := p.TotalSectors - dataBeginSector
	totalClusters := dataSectors / sectorsPerCluster

	fatType := DetermineFATVersion(totalClusters)
	if fatType == FAT32 && rootDirSectors != 0 {
		return nil, errors.Corrupt.WithMessage("RootDirSectors is nonzero on a FAT32 volume")
	}
	if fatType != FAT32 && p.RootEntryCount == 0 {
		return nil, errors.Corrupt.WithMessage("RootEntryCount is zero on a non-FAT32 volume")
	}

	cache, err := newFATCache(dev, uint32(p.ReservedSectors), sectorsPerFAT, numFATs, bytesPerSector, fatType)
	if err != nil {
		return nil, err
	}

	return &Volume{
		device:            dev,
		flags:             flags,
		fatType:           fatType,
		bytesPerSector:    bytesPerSector,
		sectorsPerCluster: sectorsPerCluster,
		bytesPerCluster:   bytesPerCluster,
		reservedSectors:   uint32(p.ReservedSectors),
		numFATs:           numFATs,
		sectorsPerFAT:     sectorsPerFAT,
		rootEntryCount:    uint32(p.RootEntryCount),
		rootDirSectors:    rootDirSectors,
		fat32RootCluster:  p.FAT32RootCluster,
		dataBeginSector:   dataBeginSector,
		totalClusters:     totalClusters,
		cache:             cache,
	}, nil
}

// NewVolumeFromBootSector reads and validates a boot sector from r, then
// constructs a Volume. fat32RootCluster is only consulted when the computed
// width turns out to be FAT32; pass 0 otherwise.
func NewVolumeFromBootSector(dev blockdev.Device, r interface {
	Read(p []byte) (int, error)
}, fat32SectorsPerFAT, fat32RootCluster uint32, flags MountFlags) (*Volume, error) {
	raw, err := ReadBootSectorBPB(r)
	if err != nil {
		return nil, err
	}
	params := ParamsFromBPB(raw, fat32SectorsPerFAT, fat32RootCluster)
	return NewVolume(dev, params, flags)
}

func (v *Volume) Type() Type               { return v.fatType }
func (v *Volume) BytesPerSector() uint32    { return v.bytesPerSector }
func (v *Volume) SectorsPerCluster() uint32 { return v.sectorsPerCluster }
func (v *Volume) BytesPerCluster() uint32   { return v.bytesPerCluster }
func (v *Volume) TotalClusters() uint32     { return v.totalClusters }
func (v *Volume) MountFlags() MountFlags    { return v.flags }
func (v *Volume) Device() blockdev.Device   { return v.device }

// checkWritable returns ReadOnly if the volume was mounted read-only.
// Every mutating operation in C10/C11 calls this first.
func (v *Volume) checkWritable() error {
	if v.flags.ReadOnly() {
		return errors.ReadOnly.WithMessage("volume is mounted read-only")
	}
	return nil
}

// Stat computes a free-space snapshot by scanning the full FAT linearly.
// Not part of spec.md's required surface (FSInfo maintenance is out of
// scope), but a cheap read-only supplement real callers need.
func (v *Volume) Stat() (FSStat, error) {
	free := uint32(0)
	for c := uint32(FirstValidCluster); c < FirstValidCluster+v.totalClusters; c++ {
		val, err := v.readFATEntry(ClusterID(c))
		if err != nil {
			return FSStat{}, err
		}
		if val == 0 {
			free++
		}
	}
	return FSStat{
		TotalClusters:     v.totalClusters,
		FreeClusters:      free,
		BytesPerCluster:   v.bytesPerCluster,
		FirstValidCluster: FirstValidCluster,
	}, nil
}

// Flush writes back every dirty sector of every FAT copy. See cache.go.
func (v *Volume) Flush() error {
	return v.cache.flush()
}
