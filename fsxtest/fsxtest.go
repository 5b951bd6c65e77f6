// Package fsxtest builds small in-memory FAT12/16/32 volumes for tests,
// mirroring the shape of the teacher's testing/images.go and
// testing/blockcache.go helpers without depending on real disk images.
package fsxtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dargueta/gofat/blockdev"
	"github.com/dargueta/gofat/fat"
)

// Built is everything a test needs to drive a freshly mounted volume.
type Built struct {
	Volume *fat.Volume
	Device blockdev.Device
}

const bytesPerSector = 512

func build(t *testing.T, totalClusters uint32, sectorsPerCluster uint8, rootEntryCount uint16) Built {
	t.Helper()

	reservedSectors := uint16(1)
	numFATs := uint8(2)

	// FAT12/16 entries are ~2 bytes each, FAT32 ~4; overestimate with 4 and
	// round up to whole sectors so the region is always big enough.
	fatBytes := (totalClusters + fat.FirstValidCluster) * 4
	sectorsPerFAT := (fatBytes + bytesPerSector - 1) / bytesPerSector
	if sectorsPerFAT == 0 {
		sectorsPerFAT = 1
	}

	rootDirSectors := (uint32(rootEntryCount)*fat.DirentSize + bytesPerSector - 1) / bytesPerSector
	dataBeginSector := uint32(reservedSectors) + uint32(numFATs)*sectorsPerFAT + rootDirSectors
	dataSectors := totalClusters * uint32(sectorsPerCluster)
	totalSectors := dataBeginSector + dataSectors

	storage := make([]byte, totalSectors*bytesPerSector)
	dev := blockdev.NewMemoryDevice(storage)

	params := fat.BootSectorParams{
		BytesPerSector:    bytesPerSector,
		SectorsPerCluster: sectorsPerCluster,
		ReservedSectors:   reservedSectors,
		NumFATs:           numFATs,
		RootEntryCount:    rootEntryCount,
		TotalSectors:      totalSectors,
		SectorsPerFAT:     sectorsPerFAT,
		FAT32RootCluster:  2,
	}
	if rootEntryCount == 0 {
		params.FAT32RootCluster = 2
	}

	vol, err := fat.NewVolume(dev, params, 0)
	require.NoError(t, err)

	return Built{Volume: vol, Device: dev}
}

// NewFAT12Volume builds a volume small enough (well under 4085 clusters) to
// format as FAT12.
func NewFAT12Volume(t *testing.T) Built {
	t.Helper()
	return build(t, 100, 1, 224)
}

// NewFAT16Volume builds a volume in the FAT16 cluster-count range.
func NewFAT16Volume(t *testing.T) Built {
	t.Helper()
	return build(t, 5000, 1, 512)
}

// NewFAT32Volume builds a volume just past the FAT16/FAT32 boundary
// (65525 clusters). RootEntryCount is 0: FAT32 keeps its root as an ordinary
// cluster chain instead of a fixed-size region.
func NewFAT32Volume(t *testing.T) Built {
	t.Helper()
	return build(t, 66000, 1, 0)
}

// RequireChainEqual asserts that the cluster chain rooted at start matches
// expected exactly, including termination at EOC after the last entry.
func RequireChainEqual(t *testing.T, b Built, start fat.ClusterID, expected []fat.ClusterID) {
	t.Helper()

	got := []fat.ClusterID{start}
	current := start
	for i := 0; i < len(expected)+1; i++ {
		raw, err := b.Volume.NextCluster(current)
		require.NoError(t, err)
		if b.Volume.IsEndOfChain(raw) {
			break
		}
		current = fat.ClusterID(raw)
		got = append(got, current)
	}

	require.Equal(t, expected, got)
}
