package fat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDirent_ShortNameRoundTrip(t *testing.T) {
	var r RawDirent
	copy(r.Name[:], "HELLO   ")
	copy(r.Extension[:], "TXT")
	require.Equal(t, "HELLO.TXT", r.ShortName())
}

func TestDirent_ShortNameNoExtension(t *testing.T) {
	var r RawDirent
	copy(r.Name[:], "README  ")
	copy(r.Extension[:], "   ")
	require.Equal(t, "README", r.ShortName())
}

func TestDirent_FirstClusterSplitAndJoin(t *testing.T) {
	var r RawDirent
	r.SetFirstCluster(0x00012345)
	require.Equal(t, uint16(0x0001), r.FirstClusterHigh)
	require.Equal(t, uint16(0x2345), r.FirstClusterLow)
	require.Equal(t, ClusterID(0x00012345), r.FirstCluster())
}

func TestDirent_TimestampRoundTrip(t *testing.T) {
	var r RawDirent
	want := time.Date(2023, time.June, 15, 13, 45, 30, 0, time.UTC)
	require.NoError(t, r.SetModifiedAt(want))

	got := r.ModifiedAt()
	require.Equal(t, want.Year(), got.Year())
	require.Equal(t, want.Month(), got.Month())
	require.Equal(t, want.Day(), got.Day())
	require.Equal(t, want.Hour(), got.Hour())
	require.Equal(t, want.Minute(), got.Minute())
	// FAT stores seconds at 2-second resolution.
	require.Equal(t, (want.Second()/2)*2, got.Second())
}

func TestDirent_RejectsTimestampBeforeEpoch(t *testing.T) {
	var r RawDirent
	err := r.SetCreatedAt(time.Date(1979, time.December, 31, 0, 0, 0, 0, time.UTC))
	require.Error(t, err)
}

func TestDirent_AttributeClassification(t *testing.T) {
	var dir RawDirent
	dir.AttributeFlags = AttrDirectory
	require.True(t, dir.IsDirectory())
	require.False(t, dir.IsLFN())
	require.False(t, dir.IsVolumeID())

	var lfn RawDirent
	lfn.AttributeFlags = AttrLongName
	require.True(t, lfn.IsLFN())
	require.False(t, lfn.IsDirectory())

	var vol RawDirent
	vol.AttributeFlags = AttrVolumeID
	require.True(t, vol.IsVolumeID())
}

func TestDirent_FreeAndEndMarkers(t *testing.T) {
	var free RawDirent
	free.Name[0] = 0x00
	require.True(t, free.IsFree())
	require.True(t, free.IsEndMarker())

	var deleted RawDirent
	deleted.Name[0] = 0xE5
	require.True(t, deleted.IsFree())
	require.False(t, deleted.IsEndMarker())

	var owner RawDirent
	owner.Name[0] = 'A'
	require.False(t, owner.IsFree())
}

func TestDirent_ReadWriteAt_RoundTrip(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)

	var r RawDirent
	copy(r.Name[:], "FOOBAR  ")
	copy(r.Extension[:], "BIN")
	r.AttributeFlags = AttrArchive
	r.FileSize = 1234
	r.SetFirstCluster(10)

	sector, err := v.fixedRootStartSector()
	require.NoError(t, err)

	require.NoError(t, v.writeDirentAt(sector, 0, &r))

	got, err := v.readDirentAt(sector, 0)
	require.NoError(t, err)
	require.Equal(t, "FOOBAR.BIN", got.ShortName())
	require.Equal(t, uint32(1234), got.FileSize)
	require.Equal(t, ClusterID(10), got.FirstCluster())
}

func TestDirent_ReadWriteAt_RejectsMisalignedOffset(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)
	sector, err := v.fixedRootStartSector()
	require.NoError(t, err)

	_, err = v.readDirentAt(sector, 5)
	require.Error(t, err)

	err = v.writeDirentAt(sector, 5, &RawDirent{})
	require.Error(t, err)
}

func TestDirent_ReadWriteAt_PreservesNeighboringSlots(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)
	sector, err := v.fixedRootStartSector()
	require.NoError(t, err)

	var first RawDirent
	copy(first.Name[:], "FIRST   ")
	require.NoError(t, v.writeDirentAt(sector, 0, &first))

	var second RawDirent
	copy(second.Name[:], "SECOND  ")
	require.NoError(t, v.writeDirentAt(sector, DirentSize, &second))

	got, err := v.readDirentAt(sector, 0)
	require.NoError(t, err)
	require.Equal(t, "FIRST", got.ShortName())
}
