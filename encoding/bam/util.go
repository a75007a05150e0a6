// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package bam

import "github.com/grailbio/hts/sam"

// edTag is the standard SAM "edit distance to the reference" tag.
var edTag = sam.Tag{'N', 'M'}

// HasNoMappedMate returns true if record is unpaired or has an unmapped mate.
func HasNoMappedMate(record *sam.Record) bool {
	return (record.Flags&sam.Paired) == 0 || (record.Flags&sam.MateUnmapped) != 0
}

// IsPrimary returns true unless record is a secondary or supplementary
// alignment.
func IsPrimary(record *sam.Record) bool {
	return record.Flags&(sam.Secondary|sam.Supplementary) == 0
}

// IsUnmapped returns true if record's reference or position is absent.
func IsUnmapped(record *sam.Record) bool {
	return record.Ref == nil || record.Pos < 0
}

// EditDistance returns the value of record's NM tag, or 0 if absent.
func EditDistance(record *sam.Record) int {
	aux := record.AuxFields.Get(edTag)
	if aux == nil {
		return 0
	}
	switch v := aux.Value().(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	default:
		return 0
	}
}

// AlignedLength returns the number of reference bases consumed by record's
// CIGAR, i.e. the length of its footprint on the reference.
func AlignedLength(record *sam.Record) int {
	n := 0
	for _, op := range record.Cigar {
		switch op.Type() {
		case sam.CigarMatch, sam.CigarDeletion, sam.CigarSkipped,
			sam.CigarEqual, sam.CigarMismatch:
			n += op.Len()
		}
	}
	return n
}

// RefID returns record's reference index, or -1 if it has no reference.
func RefID(record *sam.Record) int {
	if record.Ref == nil {
		return -1
	}
	return record.Ref.ID()
}

// MateRefID returns record's mate's reference index, or -1 if the record
// has no mate reference. A mate flagged unmapped but placed on a reference
// still reports that reference's index.
func MateRefID(record *sam.Record) int {
	if record.MateRef == nil {
		return -1
	}
	return record.MateRef.ID()
}
