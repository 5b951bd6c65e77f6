package fat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dargueta/gofat/errors"
)

func TestNamespace_GenerateShortName_PlainNameNeedsNoSuffix(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)

	name, err := generateShortName(v, 0, "hello.txt")
	require.NoError(t, err)
	require.Equal(t, "HELLO.TXT", displayShortName(name))
}

func TestNamespace_GenerateShortName_CollisionGetsTildeOne(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)
	seedShortEntry(t, v, 0, 0, "MYRESUME", "TXT", 0)

	name, err := generateShortName(v, 0, "My Resume.txt")
	require.NoError(t, err)
	require.Equal(t, "MYRESU~1.TXT", displayShortName(name))
}

func TestNamespace_GenerateShortName_SanitizesInvalidCharacters(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)

	name, err := generateShortName(v, 0, "my+file;name.txt")
	require.NoError(t, err)
	require.Equal(t, "MY_FILE_.TXT", displayShortName(name))
}

func TestNamespace_Create_WritesShortNameOnlyWhenNameIsAlreadyPerfect83(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)

	resolved, err := v.Create("/HELLO.TXT", 0)
	require.NoError(t, err)
	require.Equal(t, "HELLO.TXT", resolved.Entry.ShortName())
	require.Equal(t, 0, resolved.Index, "no LFN entries should precede a perfect 8.3 name")

	again, _, err := v.find(0, "HELLO.TXT")
	require.NoError(t, err)
	require.Equal(t, "HELLO.TXT", again.ShortName())
}

func TestNamespace_Create_WritesLFNForNonConformingName(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)

	resolved, err := v.Create("/My Resume.txt", 0)
	require.NoError(t, err)
	require.True(t, resolved.Index > 0, "a long name must be preceded by at least one LFN slot")

	entry, idx, err := v.find(0, "My Resume.txt")
	require.NoError(t, err)
	require.Equal(t, resolved.Index, idx)
	require.Equal(t, resolved.Entry.ShortName(), entry.ShortName())
}

func TestNamespace_Create_RejectsExistingPath(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)
	_, err := v.Create("/FILE.TXT", 0)
	require.NoError(t, err)

	_, err = v.Create("/FILE.TXT", 0)
	require.Error(t, err)
	require.ErrorIs(t, err, errors.AlreadyExists)
}

func TestNamespace_Create_RejectsReservedDeviceName(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)
	_, err := v.Create("/CON", 0)
	require.Error(t, err)
}

func TestNamespace_Create_AllocatesAndZeroesFirstCluster(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)
	resolved, err := v.Create("/DATA.BIN", 0)
	require.NoError(t, err)

	first := resolved.Entry.FirstCluster()
	require.NotEqual(t, ClusterID(0), first)

	raw, err := v.next(first)
	require.NoError(t, err)
	require.True(t, v.isEOC(raw))
}

func TestNamespace_Mkdir_WritesDotAndDotDotAtRoot(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)

	resolved, err := v.Mkdir("/SUBDIR")
	require.NoError(t, err)
	require.True(t, resolved.Entry.IsDirectory())

	dirCluster := resolved.Entry.FirstCluster()

	dot, err := v.readSlot(dirCluster, 0)
	require.NoError(t, err)
	require.Equal(t, dirCluster, dot.FirstCluster())

	dotdot, err := v.readSlot(dirCluster, 1)
	require.NoError(t, err)
	require.Equal(t, ClusterID(0), dotdot.FirstCluster(), "a root-parented subdirectory's \"..\" must use the 0 sentinel")
}

func TestNamespace_Mkdir_NestedDotDotReferencesParentCluster(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)

	parent, err := v.Mkdir("/PARENT")
	require.NoError(t, err)
	parentCluster := parent.Entry.FirstCluster()

	child, err := v.Mkdir("/PARENT/CHILD")
	require.NoError(t, err)
	childCluster := child.Entry.FirstCluster()

	dotdot, err := v.readSlot(childCluster, 1)
	require.NoError(t, err)
	require.Equal(t, parentCluster, dotdot.FirstCluster())
}

func TestNamespace_Mkdir_RejectsDuplicateAndDotNames(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)

	_, err := v.Mkdir("/SUBDIR")
	require.NoError(t, err)

	_, err = v.Mkdir("/SUBDIR")
	require.Error(t, err)

	_, err = v.Mkdir("/.")
	require.Error(t, err)
}

func TestNamespace_Unlink_FreesChainAndTombstonesEntry(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)

	resolved, err := v.Create("/DOOMED.TXT", 0)
	require.NoError(t, err)
	first := resolved.Entry.FirstCluster()

	require.NoError(t, v.Unlink("/DOOMED.TXT"))

	raw, err := v.next(first)
	require.NoError(t, err)
	require.Zero(t, raw, "unlinked file's cluster must be freed")

	_, _, err = v.find(0, "DOOMED.TXT")
	require.Error(t, err)
}

func TestNamespace_Unlink_RemovesLFNRunAlongWithOwner(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)

	resolved, err := v.Create("/My Resume.txt", 0)
	require.NoError(t, err)
	ownerIndex := resolved.Index

	require.NoError(t, v.Unlink("/My Resume.txt"))

	for i := 0; i <= ownerIndex; i++ {
		e, err := v.readSlot(0, i)
		require.NoError(t, err)
		require.Equal(t, uint8(direntDeletedMarker), e.Name[0], "slot %d should be tombstoned", i)
	}
}

func TestNamespace_Unlink_RejectsDirectoryAndReadOnly(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)

	_, err := v.Mkdir("/ADIR")
	require.NoError(t, err)
	require.Error(t, v.Unlink("/ADIR"))

	seedShortEntry(t, v, 0, 1, "LOCKED", "TXT", AttrReadOnly)
	require.Error(t, v.Unlink("/LOCKED.TXT"))
}

func TestNamespace_Rmdir_RemovesEmptyDirectory(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)

	resolved, err := v.Mkdir("/EMPTY")
	require.NoError(t, err)
	dirCluster := resolved.Entry.FirstCluster()

	require.NoError(t, v.Rmdir("/EMPTY"))

	raw, err := v.next(dirCluster)
	require.NoError(t, err)
	require.Zero(t, raw)

	_, _, err = v.find(0, "EMPTY")
	require.Error(t, err)
}

func TestNamespace_Rmdir_RejectsNonEmptyDirectory(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)

	_, err := v.Mkdir("/FULL")
	require.NoError(t, err)
	_, err = v.Create("/FULL/FILE.TXT", 0)
	require.NoError(t, err)

	err = v.Rmdir("/FULL")
	require.Error(t, err)
	require.ErrorIs(t, err, errors.NotEmpty)
}

func TestNamespace_Rmdir_RejectsRoot(t *testing.T) {
	v := newTestVolume(t, FAT16, 5000, 1, 512)
	require.Error(t, v.Rmdir("/"))
}

func TestNamespace_SanitizeOEMComponent_TruncatesAndUppercases(t *testing.T) {
	require.Equal(t, "ABCDEFGH", sanitizeOEMComponent("abcdefghij", 8))
	require.Equal(t, strings.ToUpper("noname"), "NONAME")
}
