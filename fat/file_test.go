package fat

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestFile(v *Volume, flags OpenFlags) *File {
	return &File{
		volume:             v,
		dirCluster:         0,
		dirIndex:           0,
		flags:              flags,
		cachedClusterIndex: -1,
	}
}

func TestFile_WriteThenReadRoundTrip(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)
	f := newTestFile(v, RDWR)

	data := []byte("hello, filesystem")
	n, err := f.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, uint32(len(data)), f.entry.FileSize)

	_, err = f.Seek(0, SeekSet)
	require.NoError(t, err)

	buf := make([]byte, len(data))
	n, err = f.Read(buf)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, buf)
}

func TestFile_WriteSpanningMultipleClusters(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512) // bytesPerCluster == bytesPerSector == 512
	f := newTestFile(v, RDWR)

	data := make([]byte, int(v.bytesPerCluster)*3+17)
	for i := range data {
		data[i] = byte(i % 251)
	}

	n, err := f.Write(data)
	require.NoError(t, err)
	require.Equal(t, len(data), n)

	_, err = f.Seek(0, SeekSet)
	require.NoError(t, err)
	out := make([]byte, len(data))
	n, err = f.Read(out)
	require.NoError(t, err)
	require.Equal(t, len(data), n)
	require.Equal(t, data, out)

	require.NotEqual(t, ClusterID(0), f.entry.FirstCluster())
	last, err := v.findLastClusterInChain(f.entry.FirstCluster())
	require.NoError(t, err)
	raw, err := v.next(last)
	require.NoError(t, err)
	require.True(t, v.isEOC(raw))
}

func TestFile_SeekMidfileThenReadTail(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)
	f := newTestFile(v, RDWR)

	data := make([]byte, int(v.bytesPerCluster)*2)
	for i := range data {
		data[i] = byte(i)
	}
	_, err := f.Write(data)
	require.NoError(t, err)

	mid := int64(v.bytesPerCluster) + 10
	_, err = f.Seek(mid, SeekSet)
	require.NoError(t, err)

	out := make([]byte, 20)
	n, err := f.Read(out)
	require.NoError(t, err)
	require.Equal(t, 20, n)
	require.Equal(t, data[mid:mid+20], out)
}

func TestFile_ReadAtEOFReturnsZero(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)
	f := newTestFile(v, RDONLY)

	buf := make([]byte, 10)
	n, err := f.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 0, n)
}

func TestFile_ReadRejectedWithoutReadAccess(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)
	f := newTestFile(v, WRONLY)

	_, err := f.Read(make([]byte, 1))
	require.Error(t, err)
}

func TestFile_WriteRejectedWithoutWriteAccess(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)
	f := newTestFile(v, RDONLY)

	_, err := f.Write([]byte("nope"))
	require.Error(t, err)
}

func TestFile_AppendForcesWritesToEnd(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)
	f := newTestFile(v, RDWR)

	_, err := f.Write([]byte("hello"))
	require.NoError(t, err)

	_, err = f.Seek(0, SeekSet)
	require.NoError(t, err)

	f.flags |= APPEND
	n, err := f.Write([]byte(" world"))
	require.NoError(t, err)
	require.Equal(t, 6, n)

	_, err = f.Seek(0, SeekSet)
	require.NoError(t, err)
	buf := make([]byte, 11)
	_, err = f.Read(buf)
	require.NoError(t, err)
	require.Equal(t, "hello world", string(buf))
}

func TestFile_CloseFlushesDirtyEntryToDisk(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)
	f := newTestFile(v, RDWR)

	_, err := f.Write([]byte("persisted"))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	rootSector, err := v.fixedRootStartSector()
	require.NoError(t, err)

	onDisk, err := v.readDirentAt(rootSector, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(len("persisted")), onDisk.FileSize)
	require.NotEqual(t, ClusterID(0), onDisk.FirstCluster())
}

func TestFile_OpenRejectsOpeningADirectory(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)
	seedShortEntry(t, v, 0, 0, "SUBDIR", "", AttrDirectory)

	_, err := v.Open("/SUBDIR", RDONLY, 0)
	require.Error(t, err)
}

func TestFile_OpenEnforcesReadOnlyAttribute(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)
	seedShortEntry(t, v, 0, 0, "LOCKED", "TXT", AttrReadOnly)

	_, err := v.Open("/LOCKED.TXT", WRONLY, 0)
	require.Error(t, err)

	f, err := v.Open("/LOCKED.TXT", RDONLY, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func TestFile_OpenTruncFreesPriorChainAndResetsSize(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)

	first, err := v.allocate()
	require.NoError(t, err)
	second, err := v.allocateAndLink(first)
	require.NoError(t, err)
	require.NoError(t, v.zeroCluster(first))
	require.NoError(t, v.zeroCluster(second))

	var e RawDirent
	copy(e.Name[:], padTo("BIG", 8))
	copy(e.Extension[:], padTo("BIN", 3))
	e.SetFirstCluster(first)
	e.FileSize = uint32(v.bytesPerCluster) * 2
	require.NoError(t, v.writeSlot(0, 0, &e))

	f, err := v.Open("/BIG.BIN", WRONLY|TRUNC, 0)
	require.NoError(t, err)
	require.Equal(t, uint32(0), f.entry.FileSize)
	require.Equal(t, ClusterID(0), f.entry.FirstCluster())

	raw, err := v.next(first)
	require.NoError(t, err)
	require.Zero(t, raw, "freed cluster's FAT entry must read back as free")
}

func TestFile_OpenCreateDelegatesToCreateOnMissingPath(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)

	_, err := v.Open("/NEW.TXT", RDWR, 0)
	require.Error(t, err, "without CREATE a missing path must fail")

	f, err := v.Open("/NEW.TXT", RDWR|CREATE, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	resolved, err := v.resolvePath("/NEW.TXT")
	require.NoError(t, err)
	require.Equal(t, "NEW.TXT", resolved.Entry.ShortName())
}

func TestFile_SeekRejectsNegativeTarget(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)
	f := newTestFile(v, RDWR)

	_, err := f.Seek(-1, SeekCur)
	require.Error(t, err)
}
