package hgvs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		hgvsP       string
		consequence string
		want        string
	}{
		{"stop gain from hgvs_p", "p.Tyr54Ter", "", "nonsense"},
		{"frameshift from hgvs_p", "p.Arg534GlyfsTer8", "", "frameshift"},
		{"frameshift with Ter suffix stays frameshift", "p.Arg534GlyfsTer8", "stop_gained", "frameshift"},
		{"splice donor from consequence", "", "splice_donor_variant", "splice_donor"},
		{"splice acceptor from consequence", "", "splice_acceptor_variant", "splice_acceptor"},
		{"stop gain from consequence", "", "stop_gained", "nonsense"},
		{"frameshift from consequence", "", "frameshift_variant", "frameshift"},
		{"missense is not lof", "p.Arg528His", "missense_variant", ""},
		{"nothing to classify", "", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.hgvsP, tt.consequence))
		})
	}
}

func TestSpliceConsequence(t *testing.T) {
	tests := []struct {
		hgvsC string
		want  string
	}{
		{"c.2398+1G>A", "splice_donor_variant"},
		{"c.2398+2T>C", "splice_donor_variant"},
		{"c.2399-1G>A", "splice_acceptor_variant"},
		{"c.2399-2A>G", "splice_acceptor_variant"},
		{"c.2398+2_2398+5del", "splice_donor_variant"},
		{"c.123+12G>A", ""}, // zweistelliger Offset, tief im Intron
		{"c.1682C>T", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SpliceConsequence(tt.hgvsC), tt.hgvsC)
	}
}

func TestTruncationPosition(t *testing.T) {
	assert.InDelta(t, 0.5, TruncationPosition(580, 1159), 0.001)
	assert.Equal(t, 0.0, TruncationPosition(100, 0))
	assert.Equal(t, 0.0, TruncationPosition(100, -1))
}

func TestEscapesNMD(t *testing.T) {
	assert.True(t, EscapesNMD(0.95, false), "truncation past 90% escapes")
	assert.True(t, EscapesNMD(0.10, true), "last exon always escapes")
	assert.False(t, EscapesNMD(0.50, false))
	assert.False(t, EscapesNMD(0.90, false), "exactly 90% does not escape")
}
