// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache 2.0
// license that can be found in the LICENSE file.

package report

import (
	"encoding/json"
	"io/ioutil"
	"path/filepath"
	"strings"
	"testing"

	"github.com/grailbio/base/vcontext"
	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/grailbio/gencore/stats"
)

func sampleStats() (*stats.PreStats, *stats.PostStats) {
	pre := stats.NewPreStats()
	pre.AddRead(100, 1)
	pre.AddRead(100, 0)
	pre.AddUnmapped()
	pre.StatDepth(2)

	post := stats.NewPostStats()
	post.AddMolecule(2, true)
	post.AddMolecule(1, false)
	post.AddWritten(3)
	return pre, post
}

func TestWriteJSONRoundTrips(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	pre, post := sampleStats()
	path := filepath.Join(tmpdir, "report.json")
	assert.NoError(t, WriteJSON(vcontext.Background(), path, pre, post))

	raw, err := ioutil.ReadFile(path)
	assert.NoError(t, err)

	var snap jsonSnapshot
	assert.NoError(t, json.Unmarshal(raw, &snap))
	assert.Equal(t, int64(3), snap.ReadCount)
	assert.Equal(t, int64(1), snap.UnmappedReadCount)
	assert.Equal(t, int64(2), snap.MoleculeCount)
	assert.Equal(t, int64(1), snap.PairedMoleculeCount)
	assert.Equal(t, int64(1), snap.SingletonMoleculeCount)
	assert.Equal(t, int64(3), snap.WrittenReadCount)
}

func TestWriteHTMLProducesPage(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	pre, post := sampleStats()
	path := filepath.Join(tmpdir, "report.html")
	assert.NoError(t, WriteHTML(vcontext.Background(), path, pre, post))

	raw, err := ioutil.ReadFile(path)
	assert.NoError(t, err)
	assert.True(t, strings.Contains(string(raw), "gencore consensus report"))
	assert.True(t, strings.Contains(string(raw), "<svg"))
}

func TestWriteHTMLGzipSuffixCompresses(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	pre, post := sampleStats()
	path := filepath.Join(tmpdir, "report.html.gz")
	assert.NoError(t, WriteHTML(vcontext.Background(), path, pre, post))

	raw, err := ioutil.ReadFile(path)
	assert.NoError(t, err)
	// gzip magic number.
	assert.Equal(t, byte(0x1f), raw[0])
	assert.Equal(t, byte(0x8b), raw[1])
}

func TestReportersDispatchByKind(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	pre, post := sampleStats()
	jsonPath := filepath.Join(tmpdir, "a.json")
	htmlPath := filepath.Join(tmpdir, "a.html")
	assert.NoError(t, JSONReporter.Report(vcontext.Background(), jsonPath, pre, post))
	assert.NoError(t, HTMLReporter.Report(vcontext.Background(), htmlPath, pre, post))

	jraw, err := ioutil.ReadFile(jsonPath)
	assert.NoError(t, err)
	assert.True(t, strings.Contains(string(jraw), "read_count"))

	hraw, err := ioutil.ReadFile(htmlPath)
	assert.NoError(t, err)
	assert.True(t, strings.Contains(string(hraw), "<html>"))
}

func TestReadWhitelist(t *testing.T) {
	tmpdir, cleanup := testutil.TempDir(t, "", "")
	defer cleanup()

	path := filepath.Join(tmpdir, "whitelist.txt")
	assert.NoError(t, ioutil.WriteFile(path, []byte("AAAA\nCCCC\n"), 0644))

	raw, err := ReadWhitelist(vcontext.Background(), path)
	assert.NoError(t, err)
	assert.Equal(t, "AAAA\nCCCC\n", string(raw))
}
