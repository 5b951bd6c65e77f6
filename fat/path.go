package fat

import (
	"strings"

	"github.com/dargueta/gofat/errors"
)

// ResolvedEntry is what path resolution hands back: the target's short-name
// directory entry, the cluster of the directory that contains it (0 meaning
// the FAT12/16 fixed root), and its linear index within that directory.
// The root of the volume resolves to a synthetic entry with no containing
// directory (ContainingDirCluster/Index are meaningless for it — check
// IsRoot).
type ResolvedEntry struct {
	Entry                RawDirent
	ContainingDirCluster ClusterID
	Index                int
	IsRoot               bool
}

const maxPathComponentLength = 255

// invalid characters in a path component, per spec.md §4.9.
const invalidComponentChars = `<>:"|?*`

// validateComponent checks a single path component's length and character
// set. "." and ".." are always legal. Ported from original_source/src/
// fat_path.c fat_validate_component.
func validateComponent(name string) error {
	if len(name) == 0 || len(name) > maxPathComponentLength {
		return errors.BadParam.WithMessage("path component length must be in [1, 255]")
	}
	if name == "." || name == ".." {
		return nil
	}
	for i := 0; i < len(name); i++ {
		b := name[i]
		if b <= 0x1F {
			return errors.BadParam.WithMessage("path component contains a control byte")
		}
	}
	if strings.ContainsAny(name, invalidComponentChars) {
		return errors.BadParam.WithMessage("path component contains a reserved character")
	}
	return nil
}

// splitPath splits a '/'-delimited path into validated, non-empty
// components. Ported from original_source/src/fat_path.c fat_split_path.
func splitPath(path string) ([]string, error) {
	rawParts := strings.Split(path, "/")
	components := make([]string, 0, len(rawParts))
	for _, p := range rawParts {
		if p == "" {
			continue
		}
		if err := validateComponent(p); err != nil {
			return nil, err
		}
		components = append(components, p)
	}
	return components, nil
}

// rootEntry synthesises the directory entry representing the volume's
// root directory, which has no on-disk short-name slot of its own.
func (v *Volume) rootEntry() ResolvedEntry {
	var e RawDirent
	e.AttributeFlags = AttrDirectory
	if v.fatType == FAT32 {
		e.SetFirstCluster(v.rootDirCluster())
	}
	return ResolvedEntry{Entry: e, IsRoot: true}
}

// findInDirectory resolves one path component within the directory
// identified by dirCluster (0 == fixed root). "." resolves to the same
// directory; ".." resolves to the parent via a literal ".." entry lookup,
// except at the volume root, which is defined as its own parent. Ported
// from original_source/src/fat_path.c fat_find_in_directory; the source's
// ".."-in-a-subdirectory path (delegating to a lookup of a literal ".."
// entry) is spec.md §4.9's actual intended rule once mkdir has written real
// "." / ".." entries, not a defect to correct.
func (v *Volume) findInDirectory(dirCluster ClusterID, isRoot bool, name string) (ResolvedEntry, error) {
	if name == "." {
		if isRoot {
			return v.rootEntry(), nil
		}
		entry, idx, err := v.find(dirCluster, ".")
		if err != nil {
			return ResolvedEntry{}, err
		}
		return ResolvedEntry{Entry: entry, ContainingDirCluster: dirCluster, Index: idx}, nil
	}

	if name == ".." {
		if isRoot {
			return v.rootEntry(), nil
		}
		entry, _, err := v.find(dirCluster, "..")
		if err != nil {
			return ResolvedEntry{}, err
		}
		parentCluster := entry.FirstCluster()
		if parentCluster == 0 {
			// A ".." entry pointing at cluster 0 means the parent is the
			// volume root, on FAT32 as well as FAT12/16 (Mkdir writes 0
			// for any root parent).
			return v.rootEntry(), nil
		}
		return v.findDotEntry(parentCluster)
	}

	entry, idx, err := v.find(dirCluster, name)
	if err != nil {
		return ResolvedEntry{}, err
	}
	return ResolvedEntry{Entry: entry, ContainingDirCluster: dirCluster, Index: idx}, nil
}

// findDotEntry resolves a directory identified by its own cluster back
// into a ResolvedEntry carrying its "." slot's metadata (timestamps,
// attributes), used when ".." lands us on a directory we only know by
// cluster number.
func (v *Volume) findDotEntry(dirCluster ClusterID) (ResolvedEntry, error) {
	entry, idx, err := v.find(dirCluster, ".")
	if err != nil {
		return ResolvedEntry{}, err
	}
	return ResolvedEntry{Entry: entry, ContainingDirCluster: dirCluster, Index: idx}, nil
}

// resolvePath splits and walks path component by component from the
// volume root, requiring every non-terminal component to be a directory.
// Ported from original_source/src/fat_path.c fat_resolve_path.
func (v *Volume) resolvePath(path string) (ResolvedEntry, error) {
	components, err := splitPath(path)
	if err != nil {
		return ResolvedEntry{}, err
	}
	if len(components) == 0 {
		return v.rootEntry(), nil
	}

	current := v.rootEntry()
	currentCluster := ClusterID(0)
	if v.fatType == FAT32 {
		currentCluster = v.rootDirCluster()
	}
	isRoot := true

	for i, comp := range components {
		next, err := v.findInDirectory(currentCluster, isRoot, comp)
		if err != nil {
			return ResolvedEntry{}, err
		}

		isLast := i == len(components)-1
		if !isLast && !next.Entry.IsDirectory() && !next.IsRoot {
			return ResolvedEntry{}, errors.NotADirectory.WithMessage("path component " + comp + " is not a directory")
		}

		current = next
		if next.IsRoot {
			currentCluster = 0
			if v.fatType == FAT32 {
				currentCluster = v.rootDirCluster()
			}
		} else {
			currentCluster = next.Entry.FirstCluster()
		}
		isRoot = next.IsRoot
	}

	return current, nil
}
