package fat

import (
	stderrors "errors"

	"golang.org/x/text/cases"

	"github.com/dargueta/gofat/errors"
)

// nameFolder applies ASCII-range case folding to short- and long-name
// comparisons. spec.md §9 explicitly restricts comparison to ASCII; Fold()
// is a superset (full Unicode case folding) but behaves identically to a
// plain ASCII upper/lower fold for the ASCII-only names this driver
// produces and accepts.
var nameFolder = cases.Fold()

func namesEqualFold(a, b string) bool {
	return nameFolder.String(a) == nameFolder.String(b)
}

// DirIterEntry is one tuple yielded by Iterate: a short-name owner, its
// long name if an LFN run precedes it (empty otherwise), and its linear
// index within the directory.
type DirIterEntry struct {
	Entry    RawDirent
	LongName string
	Index    int
}

// isEndOfDirectory reports whether err signals that a scan ran off the
// directory's current physical extent — the fixed root's capacity E, or
// the last cluster of a chain — rather than some other failure.
func isEndOfDirectory(err error) bool {
	return stderrors.Is(err, errors.NotFound) || stderrors.Is(err, errors.Eof)
}

// slotLocation computes the (sector, offsetInSector) of the logical slot
// at index within the directory rooted at dirCluster. dirCluster == 0
// means the FAT12/16 fixed root (spec.md §4.5's root_dir_cluster sentinel);
// any other value is a cluster-chained directory, including a FAT32 root.
// Returns NotFound/Eof once index runs past the region's current physical
// extent.
func (v *Volume) slotLocation(dirCluster ClusterID, index int) (SectorID, uint32, error) {
	entriesPerSector := int(v.bytesPerSector / DirentSize)

	if dirCluster == 0 {
		if v.fatType == FAT32 {
			return 0, 0, errors.BadParam.WithMessage("FAT32 volumes have no fixed root; pass the actual root cluster")
		}
		if index < 0 || index >= int(v.rootEntryCount) {
			return 0, 0, errors.NotFound.WithMessage("index past the fixed root directory's capacity")
		}
		start, err := v.fixedRootStartSector()
		if err != nil {
			return 0, 0, err
		}
		sector := start + SectorID(index/entriesPerSector)
		offset := uint32(index%entriesPerSector) * DirentSize
		return sector, offset, nil
	}

	entriesPerCluster := entriesPerSector * int(v.sectorsPerCluster)
	clusterHop := index / entriesPerCluster
	slotInCluster := index % entriesPerCluster

	cluster := dirCluster
	if clusterHop > 0 {
		var err error
		cluster, err = v.chainClusterAt(dirCluster, clusterHop)
		if err != nil {
			return 0, 0, err
		}
	}

	baseSector, err := v.clusterToSector(cluster)
	if err != nil {
		return 0, 0, err
	}
	sector := baseSector + SectorID(slotInCluster/entriesPerSector)
	offset := uint32(slotInCluster%entriesPerSector) * DirentSize
	return sector, offset, nil
}

func (v *Volume) readSlot(dirCluster ClusterID, index int) (RawDirent, error) {
	sector, offset, err := v.slotLocation(dirCluster, index)
	if err != nil {
		return RawDirent{}, err
	}
	return v.readDirentAt(sector, offset)
}

func (v *Volume) writeSlot(dirCluster ClusterID, index int, entry *RawDirent) error {
	sector, offset, err := v.slotLocation(dirCluster, index)
	if err != nil {
		return err
	}
	return v.writeDirentAt(sector, offset, entry)
}

func (v *Volume) slotReaderFor(dirCluster ClusterID) slotReader {
	return func(index int) (RawDirent, error) {
		return v.readSlot(dirCluster, index)
	}
}

// find scans the directory rooted at dirCluster for an entry matching name
// (ASCII-case-insensitively, against either the short name or the
// LFN-assembled long name), returning the owner entry and its linear
// index. Ported from original_source/src/fat_dir_search.c fat_find_entry.
func (v *Volume) find(dirCluster ClusterID, name string) (RawDirent, int, error) {
	index := 0
	for {
		entry, err := v.readSlot(dirCluster, index)
		if err != nil {
			if isEndOfDirectory(err) {
				return RawDirent{}, 0, errors.NotFound.WithMessage("no entry named " + name)
			}
			return RawDirent{}, 0, err
		}

		if entry.IsEndMarker() {
			return RawDirent{}, 0, errors.NotFound.WithMessage("no entry named " + name)
		}
		if entry.Name[0] == direntDeletedMarker || entry.IsLFN() || entry.IsVolumeID() {
			index++
			continue
		}

		if namesEqualFold(entry.ShortName(), name) {
			return entry, index, nil
		}

		longName, lerr := collectLFNRun(v.slotReaderFor(dirCluster), index, entry.shortNameBytes())
		if lerr != nil {
			return RawDirent{}, 0, lerr
		}
		// Stored long names carry '?' for every non-ASCII byte, so the query
		// goes through the same substitution before comparing.
		if longName != "" && namesEqualFold(longName, codeUnitsToASCII(asciiToCodeUnits(name))) {
			return entry, index, nil
		}

		index++
	}
}

// iterate returns a push-style sequence over dirCluster's non-deleted,
// non-LFN, non-volume-ID entries. The returned function drives the scan
// when called with a yield callback, returning the first error encountered
// (including one propagated out of collectLFNRun) or nil on a clean finish
// or an early yield-requested stop. This is the func(yield func(T) bool)
// shape SPEC_FULL.md §4.12 calls for, generalized to return an error since
// go.mod predates the stdlib iter package's built-in Seq2 form.
func (v *Volume) iterate(dirCluster ClusterID) func(yield func(DirIterEntry) bool) error {
	return func(yield func(DirIterEntry) bool) error {
		index := 0
		for {
			entry, err := v.readSlot(dirCluster, index)
			if err != nil {
				if isEndOfDirectory(err) {
					return nil
				}
				return err
			}
			if entry.IsEndMarker() {
				return nil
			}
			if entry.Name[0] == direntDeletedMarker || entry.IsLFN() || entry.IsVolumeID() {
				index++
				continue
			}

			longName, lerr := collectLFNRun(v.slotReaderFor(dirCluster), index, entry.shortNameBytes())
			if lerr != nil {
				return lerr
			}

			if !yield(DirIterEntry{Entry: entry, LongName: longName, Index: index}) {
				return nil
			}
			index++
		}
	}
}

// growDirectory appends one zero-initialised cluster to the chain rooted
// at dirCluster, for findFree to retry into once it runs off the end of a
// cluster-chained directory. Ported from the growth original_source/src/
// fat_dir_search.c's fat_find_free_entry leaves as a TODO; spec.md §4.8/§9
// requires it as a real operation.
func (v *Volume) growDirectory(dirCluster ClusterID) error {
	if err := v.checkWritable(); err != nil {
		return err
	}
	last, err := v.findLastClusterInChain(dirCluster)
	if err != nil {
		return err
	}
	newCluster, err := v.allocateAndLink(last)
	if err != nil {
		return err
	}
	return v.zeroCluster(newCluster)
}

// findFree scans for the starting index of the first run of at least k
// consecutive free slots (name[0] in {0x00, 0xE5}), growing a
// cluster-chained directory by one cluster and retrying when the scan runs
// off the current chain. A fixed FAT12/16 root cannot grow and fails with
// NoSpace instead. Ported from original_source/src/fat_dir_search.c
// fat_find_free_entry, with its asymmetric run-counting and missing-growth
// defects (spec.md §9) corrected.
func (v *Volume) findFree(dirCluster ClusterID, k int) (int, error) {
	runStart := -1
	runLen := 0
	index := 0

	for {
		entry, err := v.readSlot(dirCluster, index)
		if err != nil {
			if !isEndOfDirectory(err) {
				return 0, err
			}
			if dirCluster == 0 {
				return 0, errors.NoSpace.WithMessage("fixed root directory has no free slot run of the required length")
			}
			if err := v.growDirectory(dirCluster); err != nil {
				return 0, err
			}
			continue
		}

		if entry.Name[0] == direntFreeMarker || entry.Name[0] == direntDeletedMarker {
			if runStart == -1 {
				runStart = index
			}
			runLen++
			if runLen >= k {
				return runStart, nil
			}
		} else {
			runStart = -1
			runLen = 0
		}
		index++
	}
}
