package alphamissense

import (
	"context"
	"strings"
	"testing"

	"variant-hand/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleExtract = `# Copyright 2023 DeepMind Technologies Limited
# Licensed under CC BY-NC-SA 4.0
#CHROM	POS	REF	ALT	genome	uniprot_id	transcript_id	protein_variant	am_pathogenicity	am_class
chr7	150951000	G	A	hg38	Q12809	ENST00000262186	KCNH2_A561V	0.9987	likely_pathogenic
chr7	150952046	G	A	hg38	Q12809	ENST00000262186	KCNH2_R528H	0.3411	ambiguous
chr1	69094	G	A	hg38	Q8NH21	ENST00000335137	OR4F5_A61T	0.1066	likely_benign
chr7	150951001	G	C	hg38	Q12809	ENST00000262186	KCNH2_X999	0.5	ambiguous
chr7	150951002	G	T	hg38	Q12809	ENST00000262186	KCNH2_A562V	kaputt	likely_pathogenic
`

func TestParseExtractFiltersByAccession(t *testing.T) {
	records, err := parseExtract(context.Background(), strings.NewReader(sampleExtract), "KCNH2", "Q12809")
	require.NoError(t, err)

	// Die OR4F5-Zeile (fremde Accession) und die Zeile mit unlesbarer
	// protein_variant-Notation fallen weg.
	require.Len(t, records, 3)

	first := records[0]
	assert.Equal(t, "KCNH2", first[models.FieldGene])
	assert.Equal(t, "p.Ala561Val", first[models.FieldHGVSp])
	assert.Equal(t, models.TypeMissense, first[models.FieldVariantType])
	assert.Equal(t, 0.9987, first[models.FieldAlphamissenseScore])
	assert.Equal(t, "likely_pathogenic", first[models.FieldAlphamissenseClass])

	assert.Equal(t, "p.Arg528His", records[1][models.FieldHGVSp])

	// Unlesbarer Score: Record bleibt, Feld fehlt.
	_, hasScore := records[2][models.FieldAlphamissenseScore]
	assert.False(t, hasScore)
	assert.Equal(t, "p.Ala562Val", records[2][models.FieldHGVSp])
}

func TestParseExtractRejectsMissingColumns(t *testing.T) {
	_, err := parseExtract(context.Background(),
		strings.NewReader("#CHROM\tPOS\n1\t2\n"), "KCNH2", "Q12809")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "uniprot_id")
}

func TestParseExtractHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var b strings.Builder
	b.WriteString("uniprot_id\tprotein_variant\tam_pathogenicity\tam_class\n")
	for i := 0; i < 100001; i++ {
		b.WriteString("Q00000\tX_A1V\t0.5\tambiguous\n")
	}

	_, err := parseExtract(ctx, strings.NewReader(b.String()), "KCNH2", "Q12809")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBuildRecordWithoutGenePrefix(t *testing.T) {
	rec, ok := buildRecord("KCNH2", "A561V", "0.9", "likely_pathogenic")
	require.True(t, ok)
	assert.Equal(t, "p.Ala561Val", rec[models.FieldHGVSp])
}
