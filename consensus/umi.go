// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package consensus

import (
	"fmt"
	"strings"

	"github.com/grailbio/hts/sam"

	"github.com/grailbio/gencore/umi"
)

// extractUMI returns the UMI string for record, per o's configured
// location: an auxiliary tag if o.UMITag is set, otherwise the qname
// suffix after the last occurrence of o.UMIDelimiter.
func extractUMI(record *sam.Record, o *Options) string {
	if o.UMITag != "" {
		if aux := record.AuxFields.Get(o.umiTagBytes()); aux != nil {
			if s, ok := aux.Value().(string); ok {
				return s
			}
		}
		return ""
	}
	name := record.Name
	delim := o.UMIDelimiter
	if delim == "" {
		delim = ":"
	}
	idx := strings.LastIndex(name, delim)
	if idx < 0 {
		return ""
	}
	return name[idx+len(delim):]
}

// MalformedRecordError reports a record that cannot supply a UMI from its
// configured location (no qname delimiter found, or an absent/non-string
// aux tag). Clustering has no coordinate key without one, so this is fatal.
type MalformedRecordError struct {
	Record *sam.Record
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("gencore: malformed record, missing UMI: %v", e.Record)
}

// umiCorrector optionally snap-corrects UMIs against a known whitelist
// before clustering. A nil corrector is a no-op.
type umiCorrector struct {
	c *umi.SnapCorrector
}

func newUMICorrector(whitelist []byte) *umiCorrector {
	if len(whitelist) == 0 {
		return &umiCorrector{}
	}
	return &umiCorrector{c: umi.NewSnapCorrector(whitelist)}
}

func (u *umiCorrector) correct(raw string) string {
	if u == nil || u.c == nil {
		return raw
	}
	corrected, _, _ := u.c.CorrectUMI(raw)
	return corrected
}
