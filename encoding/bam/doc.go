// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

// Package bam augments the BAM and SAM packages in github.com/grailbio/hts
// with what the consensus engine needs on top: sequential reader/writer
// wrappers (the writer enforces coordinate order), and per-record predicates
// (primary alignment, mapped mate, edit distance, aligned length) the
// engine inspects while dispatching and voting.
package bam
