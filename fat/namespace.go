package fat

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dargueta/gofat/errors"
)

// oemUpper folds a component to upper case ahead of sanitization, the same
// x/text/cases machinery dirsearch.go uses for case-insensitive comparison
// (nameFolder), so short-name generation and directory search agree on what
// "same letter" means.
var oemUpper = cases.Upper(language.Und)

// maxShortNameSuffix bounds the "~N" uniqueness probe: spec.md §4.11 allows
// up to six digits before giving up.
const maxShortNameSuffix = 999999

// validShortNameExtra lists punctuation OEM short names may carry besides
// letters and digits. Ported from original_source/src/fat_file_create.c
// fat_generate_short_name's accept-list.
const validShortNameExtra = "_-$%'@~`!(){}^#&"

var reservedDeviceNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true, "COM5": true,
	"COM6": true, "COM7": true, "COM8": true, "COM9": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true, "LPT5": true,
	"LPT6": true, "LPT7": true, "LPT8": true, "LPT9": true,
}

// splitBaseExt splits a long name into its base and extension on the last
// '.', treating a leading dot (".bashrc") as having no extension — matching
// original_source/src/fat_file_create.c fat_generate_short_name.
func splitBaseExt(name string) (base, ext string) {
	idx := strings.LastIndexByte(name, '.')
	if idx <= 0 {
		return name, ""
	}
	return name[:idx], name[idx+1:]
}

// sanitizeOEMComponent upper-cases name, maps a handful of punctuation
// characters to '_', drops spaces/dots and anything outside the accepted
// OEM set, and truncates to maxLen bytes.
func sanitizeOEMComponent(name string, maxLen int) string {
	upper := oemUpper.String(name)

	var b strings.Builder
	for _, r := range upper {
		if r == ' ' || r == '.' {
			continue
		}
		c := r
		switch c {
		case '+', ',', ';', '=', '[', ']':
			c = '_'
		}
		if c > 0x7E || (!unicode.IsLetter(c) && !unicode.IsDigit(c) && !strings.ContainsRune(validShortNameExtra, c)) {
			continue
		}
		b.WriteRune(c)
		if b.Len() >= maxLen {
			break
		}
	}
	return b.String()
}

func padBytes(s string, n int) string {
	for len(s) < n {
		s += " "
	}
	return s[:n]
}

// displayShortName renders an 11-byte packed short name the way
// RawDirent.ShortName does, for feeding back into find/validation.
func displayShortName(packed [11]byte) string {
	var e RawDirent
	copy(e.Name[:], packed[:8])
	copy(e.Extension[:], packed[8:])
	return e.ShortName()
}

// generateShortName derives a collision-free 8.3 name for longName within
// dirCluster. The bare sanitized name is tried first; collisions are
// resolved by truncating and appending "~1", "~2", ... — correcting the
// source's fat_generate_short_name, whose suffix loop starts at "~2" and
// never produces "~1" at all.
func generateShortName(v *Volume, dirCluster ClusterID, longName string) ([11]byte, error) {
	base, ext := splitBaseExt(longName)
	sanitizedBase := sanitizeOEMComponent(base, 8)
	sanitizedExt := sanitizeOEMComponent(ext, 3)
	if sanitizedBase == "" {
		sanitizedBase = "NONAME"
	}

	for suffix := 0; suffix <= maxShortNameSuffix; suffix++ {
		candidateBase := sanitizedBase
		if suffix > 0 {
			tag := fmt.Sprintf("~%d", suffix)
			keep := 8 - len(tag)
			if keep > len(sanitizedBase) {
				keep = len(sanitizedBase)
			}
			if keep < 0 {
				keep = 0
			}
			candidateBase = sanitizedBase[:keep] + tag
		}

		var candidate [11]byte
		for i := range candidate {
			candidate[i] = ' '
		}
		copy(candidate[:8], padBytes(candidateBase, 8))
		copy(candidate[8:], padBytes(sanitizedExt, 3))

		_, _, err := v.find(dirCluster, displayShortName(candidate))
		if isEndOfDirectory(err) {
			return candidate, nil
		}
		if err != nil {
			return [11]byte{}, err
		}
	}

	return [11]byte{}, errors.AlreadyExists.WithMessage("exhausted short-name uniqueness suffixes")
}

// splitParentAndName splits a path into its parent directory path and its
// final component. "a/b/c" -> ("a/b", "c"); "c" -> ("/", "c").
func splitParentAndName(path string) (parentPath, name string) {
	trimmed := strings.TrimRight(path, "/")
	idx := strings.LastIndexByte(trimmed, '/')
	if idx < 0 {
		return "/", trimmed
	}
	parent := trimmed[:idx]
	if parent == "" {
		parent = "/"
	}
	return parent, trimmed[idx+1:]
}

// parentDirCluster returns the cluster identifying parent for directory-slot
// addressing purposes: 0 for the FAT12/16 fixed root, the FAT32 root
// cluster for a FAT32 root, or the entry's own FirstCluster otherwise.
func parentDirCluster(v *Volume, parent ResolvedEntry) ClusterID {
	if parent.IsRoot {
		if v.fatType == FAT32 {
			return v.rootDirCluster()
		}
		return 0
	}
	return parent.Entry.FirstCluster()
}

// entriesNeededFor returns how many directory slots name requires: one for
// the short-name owner, plus one LFN slot per 13 UTF-16 code units when the
// generated short name doesn't already equal name case-insensitively.
func entriesNeededFor(name string, shortName [11]byte) (needed int, needsLFN bool) {
	if strings.EqualFold(name, displayShortName(shortName)) {
		return 1, false
	}
	lfnSlots := (len(asciiToCodeUnits(name)) + lfnCodeUnitsPerEntry - 1) / lfnCodeUnitsPerEntry
	return 1 + lfnSlots, true
}

// validateEntryName checks a single path component against the rules
// Create/Mkdir share: splitPath's generic character rules, plus rejection
// of the reserved DOS device names. Ported from original_source/src/
// fat_file_create.c fat_validate_filename.
func validateEntryName(name string) error {
	if err := validateComponent(name); err != nil {
		return err
	}
	base, _ := splitBaseExt(name)
	if reservedDeviceNames[strings.ToUpper(base)] {
		return errors.BadParam.WithMessage("name collides with a reserved device name")
	}
	return nil
}

// writeNamedEntries writes the (optional) LFN run and the short-name owner
// entry starting at startIndex, returning the owner's index. Shared by
// Create and Mkdir.
func (v *Volume) writeNamedEntries(dirCluster ClusterID, startIndex int, name string, needsLFN bool, entry *RawDirent) (int, error) {
	ownerIndex := startIndex
	if needsLFN {
		checksum := lfnChecksum(entry.shortNameBytes())
		lfnEntries := emitLFNEntries(name, checksum)
		ownerIndex = startIndex + len(lfnEntries)
		for i, e := range lfnEntries {
			if err := v.writeSlot(dirCluster, startIndex+i, &e); err != nil {
				return 0, err
			}
		}
	}
	if err := v.writeSlot(dirCluster, ownerIndex, entry); err != nil {
		return 0, err
	}
	return ownerIndex, nil
}

// Create makes a new regular (or attribute-tagged) file at path, allocating
// its first cluster and writing its directory entry (with an LFN run when
// the name isn't already a valid 8.3 name). Ported from
// original_source/src/fat_file_create.c fat_create.
func (v *Volume) Create(path string, attr uint8) (ResolvedEntry, error) {
	if err := v.checkWritable(); err != nil {
		return ResolvedEntry{}, err
	}
	if _, err := v.resolvePath(path); err == nil {
		return ResolvedEntry{}, errors.AlreadyExists.WithMessage("path already exists")
	} else if !isEndOfDirectory(err) {
		return ResolvedEntry{}, err
	}

	parentPath, name := splitParentAndName(path)
	if err := validateEntryName(name); err != nil {
		return ResolvedEntry{}, err
	}

	parent, err := v.resolvePath(parentPath)
	if err != nil {
		return ResolvedEntry{}, err
	}
	if !parent.IsRoot && !parent.Entry.IsDirectory() {
		return ResolvedEntry{}, errors.NotADirectory.WithMessage("parent path component is not a directory")
	}
	parentCluster := parentDirCluster(v, parent)

	shortName, err := generateShortName(v, parentCluster, name)
	if err != nil {
		return ResolvedEntry{}, err
	}
	entriesNeeded, needsLFN := entriesNeededFor(name, shortName)

	startIndex, err := v.findFree(parentCluster, entriesNeeded)
	if err != nil {
		return ResolvedEntry{}, err
	}

	fileCluster, err := v.allocate()
	if err != nil {
		return ResolvedEntry{}, err
	}
	if err := v.zeroCluster(fileCluster); err != nil {
		_ = v.freeChain(fileCluster)
		return ResolvedEntry{}, err
	}

	var entry RawDirent
	copy(entry.Name[:], shortName[:8])
	copy(entry.Extension[:], shortName[8:])
	entry.AttributeFlags = attr
	entry.SetFirstCluster(fileCluster)
	now := time.Now()
	_ = entry.SetCreatedAt(now)
	_ = entry.SetModifiedAt(now)
	_ = entry.SetAccessedAt(now)

	ownerIndex, err := v.writeNamedEntries(parentCluster, startIndex, name, needsLFN, &entry)
	if err != nil {
		_ = v.freeChain(fileCluster)
		return ResolvedEntry{}, err
	}

	return ResolvedEntry{Entry: entry, ContainingDirCluster: parentCluster, Index: ownerIndex}, nil
}

// writeDotEntries zero-initializes dirCluster and writes its "." and ".."
// slots: "." self-references dirCluster, ".." references dotdotCluster
// (already normalized to 0 by the caller when the parent is the volume
// root, whatever its real FAT32 cluster number). Ported from
// original_source/src/fat_mkdir.c fat_create_dot_entries.
func (v *Volume) writeDotEntries(dirCluster, dotdotCluster ClusterID) error {
	if err := v.zeroCluster(dirCluster); err != nil {
		return err
	}
	now := time.Now()

	var dot RawDirent
	copy(dot.Name[:], padBytes(".", 8))
	dot.AttributeFlags = AttrDirectory
	dot.SetFirstCluster(dirCluster)
	_ = dot.SetCreatedAt(now)
	_ = dot.SetModifiedAt(now)
	_ = dot.SetAccessedAt(now)
	if err := v.writeSlot(dirCluster, 0, &dot); err != nil {
		return err
	}

	var dotdot RawDirent
	copy(dotdot.Name[:], padBytes("..", 8))
	dotdot.AttributeFlags = AttrDirectory
	dotdot.SetFirstCluster(dotdotCluster)
	_ = dotdot.SetCreatedAt(now)
	_ = dotdot.SetModifiedAt(now)
	_ = dotdot.SetAccessedAt(now)
	return v.writeSlot(dirCluster, 1, &dotdot)
}

// Mkdir creates a new subdirectory at path with "." and ".." already
// populated. Ported from original_source/src/fat_mkdir.c fat_mkdir.
func (v *Volume) Mkdir(path string) (ResolvedEntry, error) {
	if err := v.checkWritable(); err != nil {
		return ResolvedEntry{}, err
	}

	parentPath, name := splitParentAndName(path)
	if name == "" {
		return ResolvedEntry{}, errors.BadParam.WithMessage("cannot create the volume root")
	}
	if name == "." || name == ".." {
		return ResolvedEntry{}, errors.BadParam.WithMessage(`"." and ".." are not valid directory names`)
	}
	if err := validateEntryName(name); err != nil {
		return ResolvedEntry{}, err
	}

	if _, err := v.resolvePath(path); err == nil {
		return ResolvedEntry{}, errors.AlreadyExists.WithMessage("path already exists")
	} else if !isEndOfDirectory(err) {
		return ResolvedEntry{}, err
	}

	parent, err := v.resolvePath(parentPath)
	if err != nil {
		return ResolvedEntry{}, err
	}
	if !parent.IsRoot && !parent.Entry.IsDirectory() {
		return ResolvedEntry{}, errors.NotADirectory.WithMessage("parent path component is not a directory")
	}
	parentCluster := parentDirCluster(v, parent)

	shortName, err := generateShortName(v, parentCluster, name)
	if err != nil {
		return ResolvedEntry{}, err
	}
	entriesNeeded, needsLFN := entriesNeededFor(name, shortName)

	// Check space in the parent before allocating the child's cluster, so a
	// full parent directory never leaves an orphaned allocated cluster.
	if _, err := v.findFree(parentCluster, entriesNeeded); err != nil {
		return ResolvedEntry{}, err
	}

	dirCluster, err := v.allocate()
	if err != nil {
		return ResolvedEntry{}, err
	}

	dotdotCluster := parentCluster
	if parent.IsRoot {
		dotdotCluster = 0
	}
	if err := v.writeDotEntries(dirCluster, dotdotCluster); err != nil {
		_ = v.freeChain(dirCluster)
		return ResolvedEntry{}, err
	}

	var entry RawDirent
	copy(entry.Name[:], shortName[:8])
	copy(entry.Extension[:], shortName[8:])
	entry.AttributeFlags = AttrDirectory
	entry.SetFirstCluster(dirCluster)
	now := time.Now()
	_ = entry.SetCreatedAt(now)
	_ = entry.SetModifiedAt(now)
	_ = entry.SetAccessedAt(now)

	startIndex, err := v.findFree(parentCluster, entriesNeeded)
	if err != nil {
		_ = v.freeChain(dirCluster)
		return ResolvedEntry{}, err
	}
	ownerIndex, err := v.writeNamedEntries(parentCluster, startIndex, name, needsLFN, &entry)
	if err != nil {
		_ = v.freeChain(dirCluster)
		return ResolvedEntry{}, err
	}

	return ResolvedEntry{Entry: entry, ContainingDirCluster: parentCluster, Index: ownerIndex}, nil
}

// tombstoneEntry marks the short-name owner at (dirCluster, index) deleted,
// along with any LFN run immediately preceding it.
func (v *Volume) tombstoneEntry(dirCluster ClusterID, index int) error {
	entry, err := v.readSlot(dirCluster, index)
	if err != nil {
		return err
	}

	run, err := scanLFNRun(v.slotReaderFor(dirCluster), index, entry.shortNameBytes())
	if err != nil {
		return err
	}

	var result *multierror.Error
	for i := run.startIndex; i < index; i++ {
		lfnEntry, err := v.readSlot(dirCluster, i)
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		lfnEntry.Name[0] = direntDeletedMarker
		if err := v.writeSlot(dirCluster, i, &lfnEntry); err != nil {
			result = multierror.Append(result, err)
		}
	}

	entry.Name[0] = direntDeletedMarker
	if err := v.writeSlot(dirCluster, index, &entry); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

// Unlink removes a file's directory entry (and any preceding LFN run) and
// frees its cluster chain. Ported from original_source/src/
// fat_file_delete.c fat_unlink.
func (v *Volume) Unlink(path string) error {
	if err := v.checkWritable(); err != nil {
		return err
	}

	resolved, err := v.resolvePath(path)
	if err != nil {
		return err
	}
	if resolved.IsRoot || resolved.Entry.IsDirectory() {
		return errors.IsDirectory.WithMessage("path names a directory, not a file")
	}
	if resolved.Entry.ReadOnly() || resolved.Entry.IsVolumeID() {
		return errors.ReadOnly.WithMessage("entry cannot be removed")
	}

	var result *multierror.Error

	if first := resolved.Entry.FirstCluster(); first != 0 {
		if err := v.freeChain(first); err != nil {
			result = multierror.Append(result, err)
		}
	}
	if err := v.tombstoneEntry(resolved.ContainingDirCluster, resolved.Index); err != nil {
		result = multierror.Append(result, err)
	}
	if err := v.Flush(); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}

// countDirectoryEntries counts the logical (short-name owner) entries in
// dirCluster — "." and ".." included, deleted/LFN/volume-ID slots excluded
// by iterate itself.
func (v *Volume) countDirectoryEntries(dirCluster ClusterID) (int, error) {
	count := 0
	seq := v.iterate(dirCluster)
	if err := seq(func(e DirIterEntry) bool {
		count++
		return true
	}); err != nil {
		return 0, err
	}
	return count, nil
}

// Rmdir removes an empty subdirectory. Ported from original_source/src/
// fat_rmdir.c fat_rmdir; "empty" means only "." and ".." remain, per
// fat_verify_directory_empty.
func (v *Volume) Rmdir(path string) error {
	if err := v.checkWritable(); err != nil {
		return err
	}
	if strings.Trim(path, "/") == "" {
		return errors.BadParam.WithMessage("cannot remove the volume root")
	}

	resolved, err := v.resolvePath(path)
	if err != nil {
		return err
	}
	if resolved.IsRoot || !resolved.Entry.IsDirectory() {
		return errors.NotADirectory.WithMessage("path does not name a subdirectory")
	}
	if resolved.Entry.ReadOnly() || resolved.Entry.IsVolumeID() {
		return errors.ReadOnly.WithMessage("directory cannot be removed")
	}

	dirCluster := resolved.Entry.FirstCluster()
	count, err := v.countDirectoryEntries(dirCluster)
	if err != nil {
		return err
	}
	if count != 2 {
		return errors.NotEmpty.WithMessage(`directory contains entries other than "." and ".."`)
	}

	var result *multierror.Error
	if err := v.freeChain(dirCluster); err != nil {
		result = multierror.Append(result, err)
	}
	if err := v.tombstoneEntry(resolved.ContainingDirCluster, resolved.Index); err != nil {
		result = multierror.Append(result, err)
	}
	if err := v.Flush(); err != nil {
		result = multierror.Append(result, err)
	}

	return result.ErrorOrNil()
}
