package fat

import (
	"encoding/binary"
	"time"

	"github.com/noxer/bytewriter"

	"github.com/dargueta/gofat/errors"
)

// Attribute bits for RawDirent.AttributeFlags, per spec.md §3.
const (
	AttrReadOnly   uint8 = 0x01
	AttrHidden     uint8 = 0x02
	AttrSystem     uint8 = 0x04
	AttrVolumeID   uint8 = 0x08
	AttrDirectory  uint8 = 0x10
	AttrArchive    uint8 = 0x20
	AttrLongName         = AttrReadOnly | AttrHidden | AttrSystem | AttrVolumeID // 0x0F
)

const (
	direntFreeMarker    = 0x00
	direntDeletedMarker = 0xE5
)

// fatEpoch is the earliest representable FAT timestamp: 1980-01-01
// 00:00:00, local time (no timezone is stored on disk).
var fatEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// RawDirent is the on-disk 32-byte layout of a short-name directory entry,
// field-for-field. Ported from file_systems/fat/dirent.go's RawDirent.
type RawDirent struct {
	Name              [8]byte
	Extension         [3]byte
	AttributeFlags    uint8
	NTReserved        uint8
	CreatedTimeMillis uint8
	CreatedTime       uint16
	CreatedDate       uint16
	LastAccessedDate  uint16
	FirstClusterHigh  uint16
	LastModifiedTime  uint16
	LastModifiedDate  uint16
	FirstClusterLow   uint16
	FileSize          uint32
}

// IsFree reports whether this slot's first name byte marks it as either
// unused past the end of the directory (0x00) or a tombstoned deletion
// (0xE5) — both are free for reuse by a create/mkdir.
func (r *RawDirent) IsFree() bool {
	return r.Name[0] == direntFreeMarker || r.Name[0] == direntDeletedMarker
}

// IsEndMarker reports whether this slot's first byte is the end-of-directory
// sentinel; no further entries follow it in the logical directory.
func (r *RawDirent) IsEndMarker() bool {
	return r.Name[0] == direntFreeMarker
}

// IsLFN reports whether this slot is a long-filename fragment rather than a
// short-name owner.
func (r *RawDirent) IsLFN() bool {
	return r.AttributeFlags&AttrLongName == AttrLongName
}

// IsVolumeID reports whether this slot carries the volume label.
func (r *RawDirent) IsVolumeID() bool {
	return !r.IsLFN() && r.AttributeFlags&AttrVolumeID != 0
}

// IsDirectory reports whether this slot's owner is a subdirectory.
func (r *RawDirent) IsDirectory() bool {
	return !r.IsLFN() && r.AttributeFlags&AttrDirectory != 0
}

// ReadOnly reports whether this slot's owner forbids mutation.
func (r *RawDirent) ReadOnly() bool {
	return r.AttributeFlags&AttrReadOnly != 0
}

// FirstCluster combines the high/low cluster halves. FirstClusterHigh is
// always 0 on FAT12/16 media (the field doesn't exist on disk there; callers
// parsing those entries must zero it before use).
func (r *RawDirent) FirstCluster() ClusterID {
	return ClusterID(uint32(r.FirstClusterHigh)<<16 | uint32(r.FirstClusterLow))
}

// SetFirstCluster splits c into the high/low halves.
func (r *RawDirent) SetFirstCluster(c ClusterID) {
	r.FirstClusterHigh = uint16(uint32(c) >> 16)
	r.FirstClusterLow = uint16(uint32(c) & 0xFFFF)
}

// ShortName reassembles the space-padded 8.3 fields into "NAME.EXT" (or just
// "NAME" when Extension is all spaces).
func (r *RawDirent) ShortName() string {
	name := trimTrailingSpaces(r.Name[:])
	ext := trimTrailingSpaces(r.Extension[:])
	if len(name) > 0 {
		if name[0] == 0x05 {
			// 0x05 stands in for a literal 0xE5 as the name's real first
			// byte, since 0xE5 itself is the deletion marker.
			name = string([]byte{0xE5}) + name[1:]
		}
	}
	if ext == "" {
		return name
	}
	return name + "." + ext
}

// shortNameBytes returns the raw 11-byte name+extension fields, as the LFN
// checksum (spec.md §4.7) is defined over.
func (r *RawDirent) shortNameBytes() [11]byte {
	var b [11]byte
	copy(b[:8], r.Name[:])
	copy(b[8:], r.Extension[:])
	return b
}

func trimTrailingSpaces(b []byte) string {
	end := len(b)
	for end > 0 && b[end-1] == ' ' {
		end--
	}
	return string(b[:end])
}

// CreatedAt, ModifiedAt, and AccessedAt convert the packed FAT date/time
// fields into time.Time. Ported from file_systems/fat/dirent.go's
// DateFromInt/TimestampFromParts.
func (r *RawDirent) CreatedAt() time.Time {
	return timestampFromParts(r.CreatedDate, r.CreatedTime, r.CreatedTimeMillis)
}

func (r *RawDirent) ModifiedAt() time.Time {
	return timestampFromParts(r.LastModifiedDate, r.LastModifiedTime, 0)
}

func (r *RawDirent) AccessedAt() time.Time {
	return dateFromInt(r.LastAccessedDate)
}

// SetCreatedAt, SetModifiedAt, and SetAccessedAt pack a time.Time into the
// on-disk fields. t must not be before fatEpoch.
func (r *RawDirent) SetCreatedAt(t time.Time) error {
	date, tm, hundredths, err := partsFromTimestamp(t)
	if err != nil {
		return err
	}
	r.CreatedDate, r.CreatedTime, r.CreatedTimeMillis = date, tm, hundredths
	return nil
}

func (r *RawDirent) SetModifiedAt(t time.Time) error {
	date, tm, _, err := partsFromTimestamp(t)
	if err != nil {
		return err
	}
	r.LastModifiedDate, r.LastModifiedTime = date, tm
	return nil
}

func (r *RawDirent) SetAccessedAt(t time.Time) error {
	date, _, _, err := partsFromTimestamp(t)
	if err != nil {
		return err
	}
	r.LastAccessedDate = date
	return nil
}

func dateFromInt(value uint16) time.Time {
	day := int(value & 0x001F)
	month := time.Month((value >> 5) & 0x000F)
	year := 1980 + int(value>>9)
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func timestampFromParts(datePart, timePart uint16, hundredths uint8) time.Time {
	d := dateFromInt(datePart)

	seconds := int(timePart&0x001F) * 2
	if hundredths >= 100 {
		seconds++
		hundredths -= 100
	}
	minutes := int((timePart >> 5) & 0x003F)
	hours := int(timePart >> 11)
	nanoseconds := int(hundredths) * 10_000_000

	return time.Date(d.Year(), d.Month(), d.Day(), hours, minutes, seconds, nanoseconds, time.UTC)
}

func dateToInt(t time.Time) uint16 {
	year := t.Year() - 1980
	return uint16(year<<9) | uint16(int(t.Month())<<5) | uint16(t.Day())
}

func partsFromTimestamp(t time.Time) (date, tm uint16, hundredths uint8, err error) {
	if t.Before(fatEpoch) {
		return 0, 0, 0, errors.BadParam.WithMessage("timestamp is before the FAT epoch (1980-01-01)")
	}
	date = dateToInt(t)
	tm = uint16(t.Hour()<<11) | uint16(t.Minute()<<5) | uint16(t.Second()/2)
	hundredths = uint8((t.Second() % 2) * 100)
	return date, tm, hundredths, nil
}

// decodeRawDirent parses 32 raw bytes into a RawDirent.
func decodeRawDirent(data []byte) RawDirent {
	var r RawDirent
	copy(r.Name[:], data[0:8])
	copy(r.Extension[:], data[8:11])
	r.AttributeFlags = data[11]
	r.NTReserved = data[12]
	r.CreatedTimeMillis = data[13]
	r.CreatedTime = binary.LittleEndian.Uint16(data[14:16])
	r.CreatedDate = binary.LittleEndian.Uint16(data[16:18])
	r.LastAccessedDate = binary.LittleEndian.Uint16(data[18:20])
	r.FirstClusterHigh = binary.LittleEndian.Uint16(data[20:22])
	r.LastModifiedTime = binary.LittleEndian.Uint16(data[22:24])
	r.LastModifiedDate = binary.LittleEndian.Uint16(data[24:26])
	r.FirstClusterLow = binary.LittleEndian.Uint16(data[26:28])
	r.FileSize = binary.LittleEndian.Uint32(data[28:32])
	return r
}

// encodeRawDirent serializes r into exactly DirentSize bytes, using
// bytewriter to adapt the fixed-size destination slice to io.Writer the way
// file_systems/unixv1/format.go serializes its headers.
func encodeRawDirent(r *RawDirent) []byte {
	buf := make([]byte, DirentSize)
	w := bytewriter.New(buf)

	w.Write(r.Name[:])
	w.Write(r.Extension[:])
	binary.Write(w, binary.LittleEndian, r.AttributeFlags)
	binary.Write(w, binary.LittleEndian, r.NTReserved)
	binary.Write(w, binary.LittleEndian, r.CreatedTimeMillis)
	binary.Write(w, binary.LittleEndian, r.CreatedTime)
	binary.Write(w, binary.LittleEndian, r.CreatedDate)
	binary.Write(w, binary.LittleEndian, r.LastAccessedDate)
	binary.Write(w, binary.LittleEndian, r.FirstClusterHigh)
	binary.Write(w, binary.LittleEndian, r.LastModifiedTime)
	binary.Write(w, binary.LittleEndian, r.LastModifiedDate)
	binary.Write(w, binary.LittleEndian, r.FirstClusterLow)
	binary.Write(w, binary.LittleEndian, r.FileSize)

	return buf
}

// readDirentAt reads and decodes the 32-byte slot at (sector, offsetInSector).
// offsetInSector must be a multiple of DirentSize and strictly less than
// bytes-per-sector, per spec.md §4.6.
func (v *Volume) readDirentAt(sector SectorID, offsetInSector uint32) (RawDirent, error) {
	if offsetInSector%DirentSize != 0 || offsetInSector >= v.bytesPerSector {
		return RawDirent{}, errors.BadParam.WithMessage("directory entry offset must be a DirentSize-aligned offset within one sector")
	}

	buf := make([]byte, v.bytesPerSector)
	if err := v.device.ReadSectors(uint32(sector), 1, buf); err != nil {
		return RawDirent{}, errors.Device.Wrap(err)
	}

	return decodeRawDirent(buf[offsetInSector : offsetInSector+DirentSize]), nil
}

// writeDirentAt is a read-modify-write of the 32-byte slot at (sector,
// offsetInSector): the surrounding sector is read, the slot is overwritten
// in memory, and the whole sector is written back.
func (v *Volume) writeDirentAt(sector SectorID, offsetInSector uint32, r *RawDirent) error {
	if offsetInSector%DirentSize != 0 || offsetInSector >= v.bytesPerSector {
		return errors.BadParam.WithMessage("directory entry offset must be a DirentSize-aligned offset within one sector")
	}

	buf := make([]byte, v.bytesPerSector)
	if err := v.device.ReadSectors(uint32(sector), 1, buf); err != nil {
		return errors.Device.Wrap(err)
	}

	copy(buf[offsetInSector:offsetInSector+DirentSize], encodeRawDirent(r))

	if err := v.device.WriteSectors(uint32(sector), 1, buf); err != nil {
		return errors.Device.Wrap(err)
	}
	return nil
}
