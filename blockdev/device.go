// Package blockdev defines the sector-granular storage contract the FAT
// driver core sits on top of, and a simple in-memory implementation for
// tests and for callers that already hold the whole volume in RAM.
//
// The physical block device driver — the thing that turns a sector number
// into an actual read from a disk, a file, or a network block store — is
// out of scope here; it is the one external collaborator this package's
// interface exists to be plugged into.
package blockdev

import "github.com/dargueta/gofat/errors"

// SectorSize is the fixed sector size assumed by every on-disk layout this
// driver supports. bytes-per-sector in a mounted volume's BPB may differ
// (512, 1024, 2048, 4096 are all legal); that value drives buffer
// arithmetic above this package, not the device contract itself.
const SectorSize = 512

// Device is the block device port: two sector-granular operations, each
// either succeeding or returning a single device-error indicator. It is
// the only path to persistent storage for every other component.
type Device interface {
	// ReadSectors reads count sectors starting at startSector into out.
	// len(out) must be exactly count*SectorSize.
	ReadSectors(startSector, count uint32, out []byte) error

	// WriteSectors writes count sectors starting at startSector from in.
	// len(in) must be exactly count*SectorSize.
	WriteSectors(startSector, count uint32, in []byte) error

	// TotalSectors returns the device's fixed size in sectors.
	TotalSectors() uint32
}

func checkBounds(startSector, count, total uint32, bufLen int) error {
	if count == 0 {
		return errors.BadParam.WithMessage("sector count must be nonzero")
	}
	if uint64(startSector)+uint64(count) > uint64(total) {
		return errors.Device.WithMessage("sector range exceeds device size")
	}
	if bufLen != int(count)*SectorSize {
		return errors.BadParam.WithMessage("buffer length does not match sector count")
	}
	return nil
}
