// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package report

import (
	"context"
	"encoding/json"

	"github.com/grailbio/base/errors"

	"github.com/grailbio/gencore/stats"
)

// jsonSnapshot is the on-disk shape of the JSON report: a flat snapshot
// of both statistics objects.
type jsonSnapshot struct {
	ReadCount             int64         `json:"read_count"`
	UnmappedReadCount     int64         `json:"unmapped_read_count"`
	MeanReadLength        float64       `json:"mean_read_length"`
	MeanEditDistance      float64       `json:"mean_edit_distance"`
	DepthHistogram        map[int]int64 `json:"depth_histogram"`
	EditDistanceHistogram map[int]int64 `json:"edit_distance_histogram"`

	MoleculeCount          int64         `json:"molecule_count"`
	PairedMoleculeCount    int64         `json:"paired_molecule_count"`
	SingletonMoleculeCount int64         `json:"singleton_molecule_count"`
	WrittenReadCount       int64         `json:"written_read_count"`
	GroupSizeHistogram     map[int]int64 `json:"group_size_histogram"`

	// EstimatedLibrarySize is omitted (0) when there are too few
	// duplicates to extrapolate from.
	EstimatedLibrarySize uint64 `json:"estimated_library_size,omitempty"`
}

// WriteJSON writes pre and post as a single JSON document at path.
func WriteJSON(ctx context.Context, path string, pre *stats.PreStats, post *stats.PostStats) error {
	w, closeFn, err := createReport(ctx, path)
	if err != nil {
		return err
	}
	defer closeFn()

	snap := jsonSnapshot{
		ReadCount:             pre.ReadCount,
		UnmappedReadCount:     pre.UnmappedReadCount,
		DepthHistogram:        pre.DepthHistogram,
		EditDistanceHistogram: pre.EditDistanceHistogram,

		MoleculeCount:          post.MoleculeCount,
		PairedMoleculeCount:    post.PairedMoleculeCount,
		SingletonMoleculeCount: post.SingletonMoleculeCount,
		WrittenReadCount:       post.WrittenReadCount,
		GroupSizeHistogram:     post.GroupSizeHistogram,
	}
	if mapped := pre.ReadCount - pre.UnmappedReadCount; mapped > 0 {
		snap.MeanReadLength = float64(pre.LengthSum) / float64(mapped)
		snap.MeanEditDistance = float64(pre.EditDistanceSum) / float64(mapped)
	}
	if size, err := stats.EstimateLibrarySize(pre, post); err == nil {
		snap.EstimatedLibrarySize = size
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return errors.E(err, "gencore: could not encode JSON report", path)
	}
	return nil
}
