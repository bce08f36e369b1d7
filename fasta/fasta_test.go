// octopus: a haplotype-based variant caller for short-read sequencing data.
// Copyright (c) 2026 Gregory Magoon.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License along with this program. If not, see
// <https://github.com/gmagoon/octopus/blob/master/LICENSE.txt>.

package fasta

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/gmagoon/octopus/genome"
)

const (
	testFasta = ">chr1\n" +
		"ACGTAC\n" +
		"gtacgt\n" +
		"ACG\n" +
		">chr2\n" +
		"NRYKka\n" +
		"CC\n"
	testFai = "chr1\t15\t6\t6\t7\n" +
		"chr2\t8\t30\t6\t7\n"
)

func writeTestReference(t *testing.T) *File {
	t.Helper()
	dir := t.TempDir()
	name := filepath.Join(dir, "test.fa")
	if err := ioutil.WriteFile(name, []byte(testFasta), 0600); err != nil {
		t.Fatal(err)
	}
	if err := ioutil.WriteFile(name+".fai", []byte(testFai), 0600); err != nil {
		t.Fatal(err)
	}
	f, err := Open(name)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestOpenRequiresIndex(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "test.fa")
	if err := ioutil.WriteFile(name, []byte(testFasta), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(name); err == nil {
		t.Error("expected an error for a missing fai index")
	}
}

func TestFileContigs(t *testing.T) {
	f := writeTestReference(t)
	contigs := f.Contigs()
	if len(contigs) != 2 || contigs[0] != "chr1" || contigs[1] != "chr2" {
		t.Errorf("expected chr1, chr2 in file order, got %v", contigs)
	}
	if length := f.ContigLength("chr1"); length != 15 {
		t.Errorf("expected chr1 length 15, got %v", length)
	}
	if length := f.ContigLength("chr3"); length != -1 {
		t.Errorf("expected -1 for an unknown contig, got %v", length)
	}
}

func TestFileSlice(t *testing.T) {
	f := writeTestReference(t)
	cases := []struct {
		contig     string
		begin, end int32
		want       string
	}{
		{"chr1", 0, 6, "ACGTAC"},
		// crosses a line boundary and covers lower case bases
		{"chr1", 4, 10, "ACGTAC"},
		{"chr1", 12, 15, "ACG"},
		{"chr1", 3, 3, ""},
		// ambiguity codes normalize to N, lower case to upper
		{"chr2", 0, 8, "NNNNNACC"},
	}
	for _, c := range cases {
		got := f.Slice(genome.Region{Contig: c.contig, Begin: c.begin, End: c.end})
		if got != c.want {
			t.Errorf("expected %v for %v:%v-%v, got %v", c.want, c.contig, c.begin, c.end, got)
		}
	}
}

func TestCachedReference(t *testing.T) {
	f := writeTestReference(t)
	ref := NewCachedReference(f, 1)
	region := genome.Region{Contig: "chr1", Begin: 4, End: 10}
	want := f.Slice(region)
	if got := ref.Slice(region); got != want {
		t.Errorf("expected %v, got %v", want, got)
	}
	// the repeated slice is served from the cache
	if got := ref.Slice(region); got != want {
		t.Errorf("expected %v from the cache, got %v", want, got)
	}
	if got := ref.Slice(genome.Region{Contig: "chr2", Begin: 5, End: 8}); got != "ACC" {
		t.Errorf("expected ACC, got %v", got)
	}
	if contigs := ref.Contigs(); len(contigs) != 2 {
		t.Errorf("expected 2 contigs, got %v", contigs)
	}
}
