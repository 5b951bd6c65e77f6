package fat

import "github.com/dargueta/gofat/errors"

// clusterToSector converts a data cluster number to its first absolute
// sector, D + (c-2)*S. Ported from original_source/src/fat_root.c
// fat_cluster_to_sector.
func (v *Volume) clusterToSector(c ClusterID) (SectorID, error) {
	if err := v.checkCluster(c); err != nil {
		return 0, err
	}
	offset := (uint32(c) - FirstValidCluster) * v.sectorsPerCluster
	return SectorID(v.dataBeginSector + offset), nil
}

// rootDirCluster returns the FAT32 root directory's cluster number. It is
// meaningless on FAT12/16 volumes, whose root directory lives in the fixed
// region computed by fixedRootStartSector instead of a cluster chain;
// callers must branch on v.fatType before using either. Grounded on
// original_source/src/fat_root.c fat_get_root_dir_cluster.
func (v *Volume) rootDirCluster() ClusterID {
	return ClusterID(v.fat32RootCluster)
}

// fixedRootStartSector returns the first sector of the fixed-size root
// directory region used by FAT12/16. Calling this on a FAT32 volume is a
// programmer error since FAT32 has no such region.
func (v *Volume) fixedRootStartSector() (SectorID, error) {
	if v.fatType == FAT32 {
		return 0, errors.BadParam.WithMessage("FAT32 has no fixed root directory region")
	}
	return SectorID(v.reservedSectors + v.numFATs*v.sectorsPerFAT), nil
}

// rootDirSectorCount returns how many sectors the fixed root region spans.
// Zero on FAT32.
func (v *Volume) rootDirSectorCount() uint32 {
	return v.rootDirSectors
}
