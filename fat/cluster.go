package fat

import (
	"github.com/dargueta/gofat/errors"
)

// next returns the raw successor value stored at cluster c. The caller
// classifies it via isEOC/isBad/isValidCluster — next itself performs no
// interpretation, mirroring original_source/src/fat_cluster.c's
// fat_get_next_cluster.
func (v *Volume) next(c ClusterID) (uint32, error) {
	return v.readFATEntry(c)
}

// allocate performs a linear scan from cluster 2 upward for the first free
// entry (value 0), writes an EOC marker to it, and returns its number.
// Ported from original_source/src/fat_cluster.c fat_allocate_cluster.
func (v *Volume) allocate() (ClusterID, error) {
	for raw := uint32(FirstValidCluster); raw < FirstValidCluster+v.totalClusters; raw++ {
		c := ClusterID(raw)
		val, err := v.readFATEntry(c)
		if err != nil {
			return 0, err
		}
		if val == 0 {
			if err := v.writeFATEntry(c, v.eocMarker()); err != nil {
				return 0, err
			}
			return c, nil
		}
	}
	return 0, errors.NoSpace.WithMessage("no free cluster available")
}

// freeChain walks the chain rooted at start, writing 0 to every cluster
// after capturing its successor, stopping at EOC or BAD. Bounded to
// totalClusters iterations as a hard cycle guard. Ported from
// original_source/src/fat_cluster.c fat_free_chain.
func (v *Volume) freeChain(start ClusterID) error {
	current := start
	for i := uint32(0); i < v.totalClusters; i++ {
		raw, err := v.next(current)
		if err != nil {
			return err
		}

		if err := v.writeFATEntry(current, 0); err != nil {
			return err
		}

		if v.isEOC(raw) || v.isBad(raw) {
			return nil
		}

		next := ClusterID(raw)
		if !v.isValidCluster(next) {
			return errors.Corrupt.WithMessage("cluster chain points to an out-of-range cluster")
		}
		current = next
	}
	return errors.Corrupt.WithMessage("cluster chain did not terminate within total cluster count")
}

// validateChain runs a Floyd tortoise/hare traversal starting at start.
// Both pointers must stay within the valid cluster range at every step;
// termination when either reaches EOC is Ok; the pointers meeting before
// either terminates is Corrupt.
//
// Ported from original_source/src/fat_cluster.c fat_validate_chain, with
// one bug fixed: the source's second hare-step out-of-range check returns
// FAT_OK instead of FAT_ERR_CORRUPTED, silently accepting a chain that
// runs off the end of the cluster range. This implementation reports
// Corrupt in that case, per spec.md §4.4/§9.
func (v *Volume) validateChain(start ClusterID) error {
	if !v.isValidCluster(start) {
		return errors.Corrupt.WithMessage("chain start is not a valid cluster")
	}

	tortoise := start
	hare := start

	for i := uint32(0); i < v.totalClusters+1; i++ {
		// Advance tortoise by one.
		tRaw, err := v.next(tortoise)
		if err != nil {
			return err
		}
		if v.isEOC(tRaw) || v.isBad(tRaw) {
			return nil
		}
		tNext := ClusterID(tRaw)
		if !v.isValidCluster(tNext) {
			return errors.Corrupt.WithMessage("chain points to an out-of-range cluster")
		}
		tortoise = tNext

		// Advance hare by two.
		for step := 0; step < 2; step++ {
			hRaw, err := v.next(hare)
			if err != nil {
				return err
			}
			if v.isEOC(hRaw) || v.isBad(hRaw) {
				return nil
			}
			hNext := ClusterID(hRaw)
			if !v.isValidCluster(hNext) {
				return errors.Corrupt.WithMessage("chain points to an out-of-range cluster")
			}
			hare = hNext
		}

		if tortoise == hare {
			return errors.Corrupt.WithMessage("cycle detected in cluster chain")
		}
	}

	return errors.Corrupt.WithMessage("cluster chain did not terminate within total cluster count")
}

// chainClusterAt walks hops clusters forward from start along its chain,
// returning the cluster number reached. Running into EOC before hops are
// exhausted is reported as Eof; this is the directory-slot-indexing and
// file-seek counterpart of the read/write loops' forward walk described in
// spec.md §4.10.
func (v *Volume) chainClusterAt(start ClusterID, hops int) (ClusterID, error) {
	current := start
	for i := 0; i < hops; i++ {
		raw, err := v.next(current)
		if err != nil {
			return 0, err
		}
		if v.isEOC(raw) {
			return 0, errors.Eof.WithMessage("cluster chain ended before reaching the requested offset")
		}
		if v.isBad(raw) {
			return 0, errors.Corrupt.WithMessage("cluster chain references a bad cluster")
		}
		next := ClusterID(raw)
		if !v.isValidCluster(next) {
			return 0, errors.Corrupt.WithMessage("cluster chain points to an out-of-range cluster")
		}
		current = next
	}
	return current, nil
}

// findLastClusterInChain walks from start to the tail of its chain (the
// cluster whose FAT entry is EOC) and returns it. Ported from
// original_source/src/fat_file_write.c fat_find_last_cluster.
func (v *Volume) findLastClusterInChain(start ClusterID) (ClusterID, error) {
	current := start
	for i := uint32(0); i < v.totalClusters; i++ {
		raw, err := v.next(current)
		if err != nil {
			return 0, err
		}
		if v.isEOC(raw) {
			return current, nil
		}
		if v.isBad(raw) {
			return 0, errors.Corrupt.WithMessage("cluster chain references a bad cluster")
		}
		next := ClusterID(raw)
		if !v.isValidCluster(next) {
			return 0, errors.Corrupt.WithMessage("cluster chain points to an out-of-range cluster")
		}
		current = next
	}
	return 0, errors.Corrupt.WithMessage("cluster chain did not terminate within total cluster count")
}

// zeroCluster overwrites every byte of cluster c with 0, used when a newly
// allocated cluster must start out as either directory free-space or a
// blank file extension.
func (v *Volume) zeroCluster(c ClusterID) error {
	sector, err := v.clusterToSector(c)
	if err != nil {
		return err
	}
	zeros := make([]byte, v.bytesPerCluster)
	if err := v.device.WriteSectors(uint32(sector), v.sectorsPerCluster, zeros); err != nil {
		return errors.Device.Wrap(err)
	}
	return nil
}

// NextCluster is the exported form of next, for callers outside this
// package that need to walk a chain without going through File (an fsck- or
// stat-style tool, or a test fixture verifying chain shape directly).
func (v *Volume) NextCluster(c ClusterID) (uint32, error) {
	return v.next(c)
}

// IsEndOfChain is the exported form of isEOC.
func (v *Volume) IsEndOfChain(raw uint32) bool {
	return v.isEOC(raw)
}

// IsBadCluster is the exported form of isBad.
func (v *Volume) IsBadCluster(raw uint32) bool {
	return v.isBad(raw)
}

// allocateAndLink allocates a new cluster, marks it EOC, and links prev to
// it. On any failure it rolls back: if marking EOC fails the cluster is
// left free; if linking prev fails the new cluster is freed and prev is
// restored to EOC. Ported from original_source/src/fat_file_write.c
// fat_allocate_and_link_cluster.
func (v *Volume) allocateAndLink(prev ClusterID) (ClusterID, error) {
	newCluster, err := v.allocate()
	if err != nil {
		return 0, err
	}

	if err := v.writeFATEntry(prev, uint32(newCluster)); err != nil {
		_ = v.writeFATEntry(newCluster, 0)
		_ = v.writeFATEntry(prev, v.eocMarker())
		return 0, err
	}

	return newCluster, nil
}
