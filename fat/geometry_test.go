package fat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGeometry_ClusterToSector(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 4, 512)

	s2, err := v.clusterToSector(2)
	require.NoError(t, err)
	require.Equal(t, SectorID(v.dataBeginSector), s2)

	s3, err := v.clusterToSector(3)
	require.NoError(t, err)
	require.Equal(t, SectorID(v.dataBeginSector+4), s3, "cluster 3 must start one SectorsPerCluster run after cluster 2")
}

func TestGeometry_ClusterToSector_RejectsOutOfRange(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)

	_, err := v.clusterToSector(0)
	require.Error(t, err)
	_, err = v.clusterToSector(1)
	require.Error(t, err)
}

func TestGeometry_FixedRootStartSector_FAT16(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)

	start, err := v.fixedRootStartSector()
	require.NoError(t, err)
	require.Equal(t, SectorID(v.reservedSectors+v.numFATs*v.sectorsPerFAT), start)
	require.NotZero(t, v.rootDirSectorCount())
}

func TestGeometry_FixedRootStartSector_RejectedOnFAT32(t *testing.T) {
	v := newTestVolume(t, FAT32, 66000, 1, 0)

	_, err := v.fixedRootStartSector()
	require.Error(t, err)
	require.Zero(t, v.rootDirSectorCount())
	require.Equal(t, ClusterID(2), v.rootDirCluster())
}
