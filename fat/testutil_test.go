package fat

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dargueta/gofat/blockdev"
)

// newTestVolume builds a Volume whose FAT type is forced to want, sized so
// DetermineFATVersion(totalClusters) actually lands on it — callers must
// pick totalClusters consistently with want, this just checks that they did.
func newTestVolume(t *testing.T, want Type, totalClusters uint32, sectorsPerCluster uint8, rootEntryCount uint16) *Volume {
	t.Helper()

	require.Equal(t, want, DetermineFATVersion(totalClusters), "test fixture's totalClusters doesn't match the requested FAT type")

	const bytesPerSector = 512
	reservedSectors := uint16(1)
	numFATs := uint8(2)

	fatBytes := (totalClusters + FirstValidCluster) * 4
	sectorsPerFAT := (fatBytes + bytesPerSector - 1) / bytesPerSector
	if sectorsPerFAT == 0 {
		sectorsPerFAT = 1
	}

	rootDirSectors := (uint32(rootEntryCount)*DirentSize + bytesPerSector - 1) / bytesPerSector
	dataBeginSector := uint32(reservedSectors) + uint32(numFATs)*sectorsPerFAT + rootDirSectors
	dataSectors := totalClusters * uint32(sectorsPerCluster)
	totalSectors := dataBeginSector + dataSectors

	storage := make([]byte, totalSectors*bytesPerSector)
	dev := blockdev.NewMemoryDevice(storage)

	params := BootSectorParams{
		BytesPerSector:    bytesPerSector,
		SectorsPerCluster: sectorsPerCluster,
		ReservedSectors:   reservedSectors,
		NumFATs:           numFATs,
		RootEntryCount:    rootEntryCount,
		TotalSectors:      totalSectors,
		SectorsPerFAT:     sectorsPerFAT,
		FAT32RootCluster:  2,
	}

	vol, err := NewVolume(dev, params, 0)
	require.NoError(t, err)
	return vol
}
