package fat

import (
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/dargueta/gofat/errors"
)

// OpenFlags is the bitfield of spec.md §4.10/§6: exactly one access mode
// (RDONLY, WRONLY, RDWR) plus any combination of CREATE, TRUNC, APPEND.
type OpenFlags uint32

const (
	RDONLY OpenFlags = 1 << iota
	WRONLY
	RDWR
	CREATE
	TRUNC
	APPEND

	openAccessModeMask = RDONLY | WRONLY | RDWR
)

func (f OpenFlags) readable() bool {
	return f&RDONLY != 0 || f&RDWR != 0
}

func (f OpenFlags) writable() bool {
	return f&WRONLY != 0 || f&RDWR != 0
}

func (f OpenFlags) hasCreate() bool { return f&CREATE != 0 }
func (f OpenFlags) hasTrunc() bool  { return f&TRUNC != 0 }
func (f OpenFlags) hasAppend() bool { return f&APPEND != 0 }

// validateOpenFlags enforces spec.md §4.10's combination rules.
func validateOpenFlags(flags OpenFlags) error {
	mode := flags & openAccessModeMask
	switch mode {
	case RDONLY, WRONLY, RDWR:
	default:
		return errors.BadParam.WithMessage("exactly one of RDONLY, WRONLY, or RDWR must be set")
	}
	if flags.hasCreate() && !flags.writable() {
		return errors.BadParam.WithMessage("CREATE requires WRONLY or RDWR")
	}
	return nil
}

// SeekWhence selects the reference point for File.Seek.
type SeekWhence int

const (
	SeekSet SeekWhence = iota
	SeekCur
	SeekEnd
)

// File is a handle opened against a volume: a snapshot of the owning
// directory entry plus cursor state for position-to-cluster translation.
// Grounded in original_source/src/fat_file_read.c, fat_file_write.c,
// fat_file_seek.c, fat_file_close.c; the method shapes (explicit
// Read/Write/Seek/Close, flag-gated) are generalized from
// file_systems/common/basicstream.BasicStream, adapted rather than reused
// since BasicStream assumes flat block-cache storage and this type instead
// threads cluster-chain traversal through every call.
type File struct {
	volume *Volume

	entry      RawDirent
	dirCluster ClusterID
	dirIndex   int
	isRoot     bool

	flags OpenFlags

	position int64
	dirty    bool

	cachedCluster      ClusterID
	cachedClusterIndex int // -1 until first resolved
}

// Open resolves path and returns a handle honoring flags. On a NotFound
// resolution with CREATE set, it delegates to Create instead of failing —
// correcting the source's fat_open, which returned NotFound unconditionally
// on a missing path even with CREATE requested (spec.md §9).
func (v *Volume) Open(path string, flags OpenFlags, createAttr uint8) (*File, error) {
	if err := validateOpenFlags(flags); err != nil {
		return nil, err
	}
	if flags.writable() || flags.hasCreate() || flags.hasTrunc() {
		if err := v.checkWritable(); err != nil {
			return nil, err
		}
	}

	resolved, err := v.resolvePath(path)
	if err != nil {
		if flags.hasCreate() && isNotFoundErr(err) {
			resolved, err = v.Create(path, createAttr)
		}
		if err != nil {
			return nil, err
		}
	}

	if resolved.Entry.IsDirectory() || resolved.IsRoot {
		return nil, errors.IsDirectory.WithMessage("cannot open a directory as a file")
	}
	if resolved.Entry.ReadOnly() && flags.writable() {
		return nil, errors.ReadOnly.WithMessage("entry is marked read-only")
	}

	f := &File{
		volume:             v,
		entry:              resolved.Entry,
		dirCluster:         resolved.ContainingDirCluster,
		dirIndex:           resolved.Index,
		flags:              flags,
		cachedClusterIndex: -1,
	}

	if flags.hasTrunc() && flags.writable() {
		first := f.entry.FirstCluster()
		if first != 0 {
			if err := v.freeChain(first); err != nil {
				return nil, err
			}
		}
		f.entry.FileSize = 0
		f.entry.SetFirstCluster(0)
		f.dirty = true
	}

	if flags.hasAppend() {
		f.position = int64(f.entry.FileSize)
	}

	return f, nil
}

func isNotFoundErr(err error) bool {
	return isEndOfDirectory(err)
}

// syncClusterToPosition resolves the cluster backing the file's current
// position, reusing the cached cluster when possible: same index reuses it
// outright, a higher index walks forward by the delta, and a lower index
// restarts from the first cluster — the optimisation spec.md §4.10
// describes.
func (f *File) syncClusterToPosition() error {
	v := f.volume
	first := f.entry.FirstCluster()
	if first == 0 {
		return errors.Eof.WithMessage("file has no allocated clusters")
	}

	targetIndex := int(f.position / int64(v.bytesPerCluster))
	if f.cachedClusterIndex == targetIndex {
		return nil
	}

	from := first
	hops := targetIndex
	if f.cachedClusterIndex >= 0 && targetIndex >= f.cachedClusterIndex {
		from = f.cachedCluster
		hops = targetIndex - f.cachedClusterIndex
	}

	c, err := v.chainClusterAt(from, hops)
	if err != nil {
		return err
	}
	f.cachedCluster = c
	f.cachedClusterIndex = targetIndex
	return nil
}

// Read fills buf from the file's current position, clamped to file_size.
// Returns 0, nil at EOF. A short count is returned (with a nil error) if
// some bytes were transferred before a failure; an error with zero bytes
// otherwise.
func (f *File) Read(buf []byte) (int, error) {
	if !f.flags.readable() {
		return 0, errors.BadParam.WithMessage("file handle is not open for reading")
	}
	if len(buf) == 0 {
		return 0, nil
	}

	v := f.volume
	remaining := int64(f.entry.FileSize) - f.position
	if remaining <= 0 {
		return 0, nil
	}

	size := int64(len(buf))
	if size > remaining {
		size = remaining
	}

	var total int64
	for total < size {
		if err := f.syncClusterToPosition(); err != nil {
			if total > 0 {
				return int(total), nil
			}
			return 0, errors.Corrupt.Wrap(err)
		}

		offsetInCluster := uint32(f.position % int64(v.bytesPerCluster))
		chunk := int64(v.bytesPerCluster) - int64(offsetInCluster)
		if chunk > size-total {
			chunk = size - total
		}

		if err := v.readClusterData(f.cachedCluster, offsetInCluster, buf[total:total+chunk]); err != nil {
			if total > 0 {
				return int(total), nil
			}
			return 0, err
		}

		total += chunk
		f.position += chunk
	}

	return int(total), nil
}

// Write writes buf at the file's current position, extending the file (and
// its cluster chain) as needed. Mirrors Read's short-count-on-partial-
// failure rule.
func (f *File) Write(buf []byte) (int, error) {
	if !f.flags.writable() {
		return 0, errors.BadParam.WithMessage("file handle is not open for writing")
	}
	if err := f.volume.checkWritable(); err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}

	if f.flags.hasAppend() {
		f.position = int64(f.entry.FileSize)
	}

	endPos := f.position + int64(len(buf))
	if endPos > int64(f.entry.FileSize) {
		if err := f.extend(uint32(endPos)); err != nil {
			endPos = int64(f.entry.FileSize)
			if endPos <= f.position {
				return 0, err
			}
		}
	}

	size := endPos - f.position
	v := f.volume
	var total int64
	for total < size {
		if err := f.syncClusterToPosition(); err != nil {
			if total > 0 {
				return int(total), nil
			}
			return 0, err
		}

		offsetInCluster := uint32(f.position % int64(v.bytesPerCluster))
		chunk := int64(v.bytesPerCluster) - int64(offsetInCluster)
		if chunk > size-total {
			chunk = size - total
		}

		if err := v.writeClusterData(f.cachedCluster, offsetInCluster, buf[total:total+chunk]); err != nil {
			if total > 0 {
				return int(total), nil
			}
			return 0, err
		}

		total += chunk
		f.position += chunk
	}

	if f.position > int64(f.entry.FileSize) {
		f.entry.FileSize = uint32(f.position)
	}
	f.dirty = true
	return int(total), nil
}

// extend grows the file to newSize bytes, allocating and linking clusters
// as needed. Ported from original_source/src/fat_file_write.c
// fat_extend_file / fat_allocate_and_link_cluster; rollback on a failed
// link is handled inside allocateAndLink.
func (f *File) extend(newSize uint32) error {
	v := f.volume
	bytesPerCluster := v.bytesPerCluster

	clustersNeeded := (newSize + bytesPerCluster - 1) / bytesPerCluster
	if newSize == 0 {
		clustersNeeded = 0
	}

	var currentClusters uint32
	if f.entry.FileSize > 0 {
		currentClusters = (f.entry.FileSize + bytesPerCluster - 1) / bytesPerCluster
	}

	if clustersNeeded <= currentClusters {
		f.entry.FileSize = newSize
		f.dirty = true
		return nil
	}

	first := f.entry.FirstCluster()
	var last ClusterID
	if first == 0 {
		newCluster, err := v.allocate()
		if err != nil {
			return err
		}
		f.entry.SetFirstCluster(newCluster)
		last = newCluster
		currentClusters = 1
	} else {
		var err error
		last, err = v.findLastClusterInChain(first)
		if err != nil {
			return err
		}
		if currentClusters == 0 {
			// An empty file that already owns a cluster (as Create leaves
			// it) has one cluster in its chain, not zero.
			currentClusters = 1
		}
	}

	for currentClusters < clustersNeeded {
		nc, err := v.allocateAndLink(last)
		if err != nil {
			return err
		}
		last = nc
		currentClusters++
	}

	f.entry.FileSize = newSize
	f.dirty = true
	return nil
}

// Seek repositions the file's cursor. Seeking past end-of-file succeeds;
// a subsequent Read returns 0 and a subsequent Write extends the gap.
func (f *File) Seek(offset int64, whence SeekWhence) (int64, error) {
	var target int64
	switch whence {
	case SeekSet:
		target = offset
	case SeekCur:
		target = f.position + offset
	case SeekEnd:
		target = int64(f.entry.FileSize) + offset
	default:
		return 0, errors.BadParam.WithMessage("invalid seek whence")
	}

	if target < 0 || target > int64(^uint32(0)) {
		return 0, errors.BadParam.WithMessage("seek target out of representable range")
	}

	f.position = target
	return target, nil
}

// Tell reports the file's current position.
func (f *File) Tell() int64 { return f.position }

// Close writes the directory entry back (if dirty) and flushes the FAT
// cache, attempting both steps even if one fails and reporting the first
// error encountered, per spec.md §4.10/§7.
func (f *File) Close() error {
	v := f.volume
	var result *multierror.Error

	if f.dirty {
		if err := f.entry.SetModifiedAt(time.Now()); err != nil {
			result = multierror.Append(result, err)
		}
		if err := v.writeSlot(f.dirCluster, f.dirIndex, &f.entry); err != nil {
			result = multierror.Append(result, err)
		}
	}

	if err := v.Flush(); err != nil {
		result = multierror.Append(result, err)
	}

	if result != nil {
		return result.Errors[0]
	}
	return nil
}

// readClusterData reads len(out) bytes starting at offsetInCluster within
// cluster, issuing whole-sector reads and trimming the first/last as
// needed.
func (v *Volume) readClusterData(cluster ClusterID, offsetInCluster uint32, out []byte) error {
	base, err := v.clusterToSector(cluster)
	if err != nil {
		return err
	}

	remaining := out
	curOffset := offsetInCluster
	for len(remaining) > 0 {
		sectorIdx := curOffset / v.bytesPerSector
		sectorOffset := curOffset % v.bytesPerSector
		n := v.bytesPerSector - sectorOffset
		if uint32(len(remaining)) < n {
			n = uint32(len(remaining))
		}

		buf := make([]byte, v.bytesPerSector)
		if err := v.device.ReadSectors(uint32(base)+sectorIdx, 1, buf); err != nil {
			return errors.Device.Wrap(err)
		}
		copy(remaining[:n], buf[sectorOffset:sectorOffset+n])

		remaining = remaining[n:]
		curOffset += n
	}
	return nil
}

// writeClusterData is readClusterData's write counterpart: a whole-sector
// write when the span covers an entire sector, else a read-modify-write of
// that one sector. Ported from original_source/src/fat_file_write.c
// fat_write_cluster_data.
func (v *Volume) writeClusterData(cluster ClusterID, offsetInCluster uint32, data []byte) error {
	base, err := v.clusterToSector(cluster)
	if err != nil {
		return err
	}

	remaining := data
	curOffset := offsetInCluster
	for len(remaining) > 0 {
		sectorIdx := curOffset / v.bytesPerSector
		sectorOffset := curOffset % v.bytesPerSector
		n := v.bytesPerSector - sectorOffset
		if uint32(len(remaining)) < n {
			n = uint32(len(remaining))
		}

		if sectorOffset == 0 && n == v.bytesPerSector {
			if err := v.device.WriteSectors(uint32(base)+sectorIdx, 1, remaining[:n]); err != nil {
				return errors.Device.Wrap(err)
			}
		} else {
			buf := make([]byte, v.bytesPerSector)
			if err := v.device.ReadSectors(uint32(base)+sectorIdx, 1, buf); err != nil {
				return errors.Device.Wrap(err)
			}
			copy(buf[sectorOffset:sectorOffset+n], remaining[:n])
			if err := v.device.WriteSectors(uint32(base)+sectorIdx, 1, buf); err != nil {
				return errors.Device.Wrap(err)
			}
		}

		remaining = remaining[n:]
		curOffset += n
	}
	return nil
}
