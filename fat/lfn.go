package fat

import (
	"github.com/dargueta/gofat/errors"
)

const (
	lfnLastLogicalBit = 0x40
	lfnOrderMask       = 0x3F
	lfnDeletedOrder    = 0xE5
	lfnCodeUnitsPerEntry = 13
	nameFragmentFiller uint16 = 0xFFFF
)

// lfnChecksum computes the one-byte checksum of an 11-byte short name, per
// spec.md §4.7. Every LFN entry in a run carries the checksum of the short
// name it precedes; a mismatch anywhere in the run invalidates the whole
// run.
func lfnChecksum(shortName [11]byte) uint8 {
	var cs uint8
	for _, b := range shortName {
		var carry uint8
		if cs&1 != 0 {
			carry = 0x80
		}
		cs = carry + (cs >> 1) + b
	}
	return cs
}

// slotReader reads the logical directory slot at index, returning the
// decoded entry. It abstracts over the fixed FAT12/16 root and
// cluster-chained directories alike; C8 supplies the concrete
// implementation bound to a specific directory.
type slotReader func(index int) (RawDirent, error)

// parseLFNFragment extracts up to 13 UTF-16LE code units from one LFN
// entry's three name fields, stopping at the first true terminator (0x0000)
// or padding filler (0xFFFF). Ported from original_source/src/fat_lfn.c
// fat_parse_lfn.
func parseLFNFragment(name1 [5]uint16, name2 [6]uint16, name3 [2]uint16) []uint16 {
	units := make([]uint16, 0, lfnCodeUnitsPerEntry)
	for _, u := range name1 {
		units = append(units, u)
	}
	for _, u := range name2 {
		units = append(units, u)
	}
	for _, u := range name3 {
		units = append(units, u)
	}

	for i, u := range units {
		if u == 0x0000 || u == nameFragmentFiller {
			return units[:i]
		}
	}
	return units
}

// codeUnitsToASCII renders a slice of UTF-16 code units as a string,
// replacing any unit outside printable ASCII with '?' — the stub behaviour
// spec.md §9 explicitly permits in place of full UTF-16 decoding.
func codeUnitsToASCII(units []uint16) string {
	out := make([]byte, len(units))
	for i, u := range units {
		if u < 0x20 || u > 0x7E {
			out[i] = '?'
		} else {
			out[i] = byte(u)
		}
	}
	return string(out)
}

// lfnEntryFields is the subset of a raw 32-byte slot meaningful to the LFN
// codec, decoded from/encoded to a RawDirent's byte layout (an LFN slot
// reuses the short-entry layout with different field semantics — see
// spec.md §3).
type lfnEntryFields struct {
	order    uint8
	name1    [5]uint16
	name2    [6]uint16
	name3    [2]uint16
	checksum uint8
}

func lfnFieldsFromRawBytes(data []byte) lfnEntryFields {
	var f lfnEntryFields
	f.order = data[0]
	for i := 0; i < 5; i++ {
		f.name1[i] = uint16(data[1+2*i]) | uint16(data[2+2*i])<<8
	}
	f.checksum = data[13]
	for i := 0; i < 6; i++ {
		f.name2[i] = uint16(data[14+2*i]) | uint16(data[15+2*i])<<8
	}
	for i := 0; i < 2; i++ {
		f.name3[i] = uint16(data[28+2*i]) | uint16(data[29+2*i])<<8
	}
	return f
}

func lfnFieldsToRawBytes(f lfnEntryFields) []byte {
	data := make([]byte, DirentSize)
	data[0] = f.order
	for i := 0; i < 5; i++ {
		data[1+2*i] = byte(f.name1[i])
		data[2+2*i] = byte(f.name1[i] >> 8)
	}
	data[11] = AttrLongName
	data[12] = 0 // "type", always 0
	data[13] = f.checksum
	for i := 0; i < 6; i++ {
		data[14+2*i] = byte(f.name2[i])
		data[15+2*i] = byte(f.name2[i] >> 8)
	}
	data[26], data[27] = 0, 0 // first-cluster-low, always 0 for an LFN slot
	for i := 0; i < 2; i++ {
		data[28+2*i] = byte(f.name3[i])
		data[29+2*i] = byte(f.name3[i] >> 8)
	}
	return data
}

// lfnRun is what scanning an LFN run preceding a short-name owner yields:
// the logical-order name fragments and the index of the run's earliest
// (physically lowest) entry, so a caller can both render the name and
// know which slots to tombstone.
type lfnRun struct {
	startIndex int
	fragments  [][]uint16 // nearest-to-owner first
}

// scanLFNRun walks indices ownerIndex-1, ownerIndex-2, ... via read,
// validating and collecting the LFN entries immediately preceding a
// short-name owner. startIndex equals ownerIndex (an empty run) if no LFN
// entries precede it. Ported from original_source/src/fat_lfn.c
// fat_read_lfn_sequence, unified with fat_file_delete.c's
// fat_find_lfn_entries per spec.md §9 (the source keeps these as two
// diverging functions; this spec folds the walk into one, shared by
// directory search, deletion, and rmdir).
func scanLFNRun(read slotReader, ownerIndex int, shortName [11]byte) (lfnRun, error) {
	wantChecksum := lfnChecksum(shortName)

	run := lfnRun{startIndex: ownerIndex}
	expectedSeq := 1

	for idx := ownerIndex - 1; idx >= 0; idx-- {
		entry, err := read(idx)
		if err != nil {
			return lfnRun{}, err
		}
		if !entry.IsLFN() {
			break
		}

		// An LFN slot's bytes are field-compatible with RawDirent (the
		// on-disk layout reuses the same byte offsets for order/name
		// fragments/checksum as a short entry's name/timestamp fields);
		// round-trip through the short-entry codec to recover them.
		fields := lfnFieldsFromRawBytes(encodeRawDirent(&entry))

		if fields.checksum != wantChecksum {
			return lfnRun{}, errors.Corrupt.WithMessage("LFN entry checksum does not match its short-name owner")
		}

		order := fields.order
		isLast := order&lfnLastLogicalBit != 0
		seq := int(order & lfnOrderMask)

		if seq != expectedSeq {
			return lfnRun{}, errors.Corrupt.WithMessage("LFN sequence numbers are not contiguous")
		}

		run.fragments = append(run.fragments, parseLFNFragment(fields.name1, fields.name2, fields.name3))
		run.startIndex = idx

		if isLast {
			return run, nil
		}
		expectedSeq++
	}

	if len(run.fragments) > 0 {
		return lfnRun{}, errors.Corrupt.WithMessage("LFN run does not end with the logically-first entry")
	}

	return run, nil
}

// collectLFNRun is scanLFNRun plus rendering: it returns ("", nil) if no
// LFN entries precede the owner, else the assembled long name.
func collectLFNRun(read slotReader, ownerIndex int, shortName [11]byte) (string, error) {
	run, err := scanLFNRun(read, ownerIndex, shortName)
	if err != nil {
		return "", err
	}
	if len(run.fragments) == 0 {
		return "", nil
	}

	// fragments were collected nearest-to-owner first (sequence number 1
	// first), while emitLFNEntries stores the start of the name in the
	// physically first slot, which carries the highest sequence number;
	// reverse to get the name's characters in order.
	var units []uint16
	for i := len(run.fragments) - 1; i >= 0; i-- {
		units = append(units, run.fragments[i]...)
	}

	return codeUnitsToASCII(units), nil
}

// emitLFNEntries produces ceil(len(longName)/13) LFN slots encoding
// longName, paired with shortNameChecksum. The physically-first slot in the
// returned order (index 0) is written at the lowest directory index and
// carries the highest sequence number with the "logically first" bit set,
// per spec.md §4.7.
func emitLFNEntries(longName string, shortNameChecksum uint8) []RawDirent {
	units := asciiToCodeUnits(longName)

	numEntries := (len(units) + lfnCodeUnitsPerEntry - 1) / lfnCodeUnitsPerEntry
	if numEntries == 0 {
		numEntries = 1
	}

	entries := make([]RawDirent, numEntries)

	for i := 0; i < numEntries; i++ {
		start := i * lfnCodeUnitsPerEntry
		end := start + lfnCodeUnitsPerEntry
		var chunk [lfnCodeUnitsPerEntry]uint16
		for j := range chunk {
			chunk[j] = nameFragmentFiller
		}

		terminated := false
		for j := 0; j < lfnCodeUnitsPerEntry; j++ {
			srcIdx := start + j
			if srcIdx < len(units) {
				chunk[j] = units[srcIdx]
			} else if !terminated {
				chunk[j] = 0x0000
				terminated = true
			}
		}

		seq := uint8(numEntries - i)
		order := seq
		if i == 0 {
			order |= lfnLastLogicalBit
		}

		fields := lfnEntryFields{
			order:    order,
			checksum: shortNameChecksum,
		}
		copy(fields.name1[:], chunk[0:5])
		copy(fields.name2[:], chunk[5:11])
		copy(fields.name3[:], chunk[11:13])

		raw := lfnFieldsToRawBytes(fields)
		decoded := decodeRawDirent(raw)
		entries[i] = decoded
	}

	return entries
}

// asciiToCodeUnits converts a Go string to UTF-16 code units one-for-one
// per byte, substituting '?' for any byte outside printable ASCII — the
// emit-side counterpart of codeUnitsToASCII, keeping the stub symmetric in
// both directions per spec.md §9.
func asciiToCodeUnits(s string) []uint16 {
	units := make([]uint16, 0, len(s))
	for i := 0; i < len(s); i++ {
		b := s[i]
		if b < 0x20 || b > 0x7E {
			units = append(units, '?')
		} else {
			units = append(units, uint16(b))
		}
	}
	return units
}
