// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package report renders the pre- and post-consensus statistics
// (github.com/grailbio/gencore/stats) as side artifacts: a JSON
// snapshot and an HTML page with embedded depth/edit-distance
// histograms. Both implement the single Reporter capability the
// engine's callers use; there is no dynamic dispatch beyond that.
package report
