// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package consensus

// coord is a (reference, left, right) triple identifying a cluster's
// coordinate key. left is the leftmost mapped position of the pair (or
// the record itself, for the Improper index); right is the rightmost
// end when known, a synthetic cross-contig marker, or the mate's
// position for Improper entries.
type coord struct {
	tid   int
	left  int
	right int64
}
