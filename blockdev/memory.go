package blockdev

import (
	"io"

	"github.com/xaionaro-go/bytesextra"

	"github.com/dargueta/gofat/errors"
)

// MemoryDevice is a Device backed entirely by a byte slice held in memory,
// grounded on the same bytesextra.NewReadWriteSeeker wrapping the teacher's
// file_systems/common/blockcache.WrapSlice uses to turn a flat buffer into
// an io.ReadWriteSeeker.
type MemoryDevice struct {
	stream io.ReadWriteSeeker
	total  uint32
}

// NewMemoryDevice wraps storage as a Device. storage's length must be an
// exact multiple of SectorSize.
func NewMemoryDevice(storage []byte) *MemoryDevice {
	return &MemoryDevice{
		stream: bytesextra.NewReadWriteSeeker(storage),
		total:  uint32(len(storage) / SectorSize),
	}
}

func (d *MemoryDevice) TotalSectors() uint32 {
	return d.total
}

func (d *MemoryDevice) ReadSectors(startSector, count uint32, out []byte) error {
	if err := checkBounds(startSector, count, d.total, len(out)); err != nil {
		return err
	}
	if _, err := d.stream.Seek(int64(startSector)*SectorSize, io.SeekStart); err != nil {
		return errors.Device.Wrap(err)
	}
	if _, err := io.ReadFull(d.stream, out); err != nil {
		return errors.Device.Wrap(err)
	}
	return nil
}

func (d *MemoryDevice) WriteSectors(startSector, count uint32, in []byte) error {
	if err := checkBounds(startSector, count, d.total, len(in)); err != nil {
		return err
	}
	if _, err := d.stream.Seek(int64(startSector)*SectorSize, io.SeekStart); err != nil {
		return errors.Device.Wrap(err)
	}
	if _, err := d.stream.Write(in); err != nil {
		return errors.Device.Wrap(err)
	}
	return nil
}
