// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package report

import (
	"context"
	"io"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"

	"github.com/grailbio/gencore/stats"
)

// Reporter is the single capability both report implementations provide.
type Reporter interface {
	Report(ctx context.Context, path string, pre *stats.PreStats, post *stats.PostStats) error
}

// jsonReporter and htmlReporter implement Reporter; WriteJSON (json.go)
// and WriteHTML (html.go) are the convenience entry points cmd/gencore
// uses directly.
type jsonReporter struct{}
type htmlReporter struct{}

// JSONReporter renders pre_stats/post_stats as a JSON document.
var JSONReporter Reporter = jsonReporter{}

// HTMLReporter renders pre_stats/post_stats as an HTML page with
// embedded SVG histograms.
var HTMLReporter Reporter = htmlReporter{}

func (jsonReporter) Report(ctx context.Context, path string, pre *stats.PreStats, post *stats.PostStats) error {
	return WriteJSON(ctx, path, pre, post)
}

func (htmlReporter) Report(ctx context.Context, path string, pre *stats.PreStats, post *stats.PostStats) error {
	return WriteHTML(ctx, path, pre, post)
}

// createReport opens path for writing via github.com/grailbio/base/file,
// so report destinations transparently accept s3:// paths the same way
// the main BAM output does.
func createReport(ctx context.Context, path string) (io.Writer, func() error, error) {
	f, err := file.Create(ctx, path)
	if err != nil {
		return nil, nil, errors.E(err, "gencore: could not create report", path)
	}
	return f.Writer(ctx), func() error { return f.Close(ctx) }, nil
}

// ReadWhitelist reads a newline-separated known-UMI file, transparently
// accepting s3:// paths.
func ReadWhitelist(ctx context.Context, path string) ([]byte, error) {
	f, err := file.Open(ctx, path)
	if err != nil {
		return nil, errors.E(err, "gencore: could not open UMI whitelist", path)
	}
	defer f.Close(ctx)
	return io.ReadAll(f.Reader(ctx))
}
