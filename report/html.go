// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package report

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/grailbio/base/errors"

	"github.com/grailbio/gencore/stats"
)

var reportTemplate = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html>
<head><title>gencore report</title></head>
<body>
<h1>gencore consensus report</h1>
<table>
<tr><td>reads examined</td><td>{{.ReadCount}}</td></tr>
<tr><td>unmapped reads</td><td>{{.UnmappedReadCount}}</td></tr>
<tr><td>molecules emitted</td><td>{{.MoleculeCount}}</td></tr>
<tr><td>paired molecules</td><td>{{.PairedMoleculeCount}}</td></tr>
<tr><td>singleton molecules</td><td>{{.SingletonMoleculeCount}}</td></tr>
<tr><td>consensus reads written</td><td>{{.WrittenReadCount}}</td></tr>
</table>
<h2>depth histogram</h2>
{{.DepthSVG}}
<h2>edit distance histogram</h2>
{{.EditDistanceSVG}}
</body>
</html>
`))

type htmlData struct {
	ReadCount              int64
	UnmappedReadCount      int64
	MoleculeCount          int64
	PairedMoleculeCount    int64
	SingletonMoleculeCount int64
	WrittenReadCount       int64
	DepthSVG               template.HTML
	EditDistanceSVG        template.HTML
}

// WriteHTML writes an HTML page at path summarizing pre and post, with
// embedded SVG histograms rendered via gonum.org/v1/plot. When path ends
// in ".gz" the page is additionally gzip-compressed, using
// github.com/klauspost/compress/gzip, before being written.
func WriteHTML(ctx context.Context, path string, pre *stats.PreStats, post *stats.PostStats) error {
	depthSVG, err := histogramSVG(pre.DepthHistogram, "read pairs sharing a coordinate key", "occurrences")
	if err != nil {
		return errors.E(err, "gencore: could not render depth histogram")
	}
	edSVG, err := histogramSVG(pre.EditDistanceHistogram, "edit distance", "reads")
	if err != nil {
		return errors.E(err, "gencore: could not render edit-distance histogram")
	}

	data := htmlData{
		ReadCount:              pre.ReadCount,
		UnmappedReadCount:      pre.UnmappedReadCount,
		MoleculeCount:          post.MoleculeCount,
		PairedMoleculeCount:    post.PairedMoleculeCount,
		SingletonMoleculeCount: post.SingletonMoleculeCount,
		WrittenReadCount:       post.WrittenReadCount,
		DepthSVG:               template.HTML(depthSVG),
		EditDistanceSVG:        template.HTML(edSVG),
	}

	var page bytes.Buffer
	if err := reportTemplate.Execute(&page, data); err != nil {
		return errors.E(err, "gencore: could not render HTML report")
	}

	w, closeFn, err := createReport(ctx, path)
	if err != nil {
		return err
	}
	defer closeFn()

	if strings.HasSuffix(path, ".gz") {
		gw := gzip.NewWriter(w)
		if _, err := gw.Write(page.Bytes()); err != nil {
			return errors.E(err, "gencore: could not write compressed HTML report", path)
		}
		return gw.Close()
	}
	if _, err := w.Write(page.Bytes()); err != nil {
		return errors.E(err, "gencore: could not write HTML report", path)
	}
	return nil
}

// histogramSVG renders hist as a bar-chart SVG fragment.
func histogramSVG(hist map[int]int64, xLabel, yLabel string) (string, error) {
	keys := make([]int, 0, len(hist))
	for k := range hist {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	p, err := plot.New()
	if err != nil {
		return "", err
	}
	p.X.Label.Text = xLabel
	p.Y.Label.Text = yLabel

	values := make(plotter.Values, len(keys))
	for i, k := range keys {
		values[i] = float64(hist[k])
	}
	if len(values) == 0 {
		values = plotter.Values{0}
	}
	bars, err := plotter.NewBarChart(values, vg.Points(16))
	if err != nil {
		return "", err
	}
	p.Add(bars)

	labels := make([]string, len(keys))
	for i, k := range keys {
		labels[i] = fmt.Sprintf("%d", k)
	}
	if len(labels) > 0 {
		p.NominalX(labels...)
	}

	wt, err := p.WriterTo(6*vg.Inch, 4*vg.Inch, "svg")
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if _, err := wt.WriteTo(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
