package revel

import (
	"context"
	"strings"
	"testing"

	"variant-hand/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleExtract = `chr,hg19_pos,grch38_pos,ref,alt,aaref,aaalt,REVEL,Ensembl_transcriptid
7,150645134,150952046,C,T,R,H,0.877,ENST00000262186;ENST00000330883
7,150644988,150951900,G,A,A,V,0.912,ENST00000262186
7,150644989,.,G,C,A,G,0.544,ENST00000262186
11,2583484,2562254,C,T,T,M,0.801,ENST00000155840
7,150644990,150951902,G,T,A,S,nicht-numerisch,ENST00000262186
`

func TestParseExtractFiltersByTranscript(t *testing.T) {
	records, err := parseExtract(context.Background(), strings.NewReader(sampleExtract),
		"KCNH2", "ENST00000262186", "GRCh38")
	require.NoError(t, err)

	// Die KCNQ1-Zeile (fremdes Transkript), die Zeile ohne GRCh38-Mapping
	// (".") und die Zeile mit unlesbarem Score fallen weg.
	require.Len(t, records, 2)

	first := records[0]
	assert.Equal(t, "KCNH2", first[models.FieldGene])
	assert.Equal(t, "7", first[models.FieldChromosome])
	assert.Equal(t, int64(150952046), first[models.FieldPosition])
	assert.Equal(t, "C", first[models.FieldRef])
	assert.Equal(t, "T", first[models.FieldAlt])
	assert.Equal(t, "GRCh38", first[models.FieldGenomeBuild])
	assert.Equal(t, models.TypeMissense, first[models.FieldVariantType])
	assert.Equal(t, 0.877, first[models.FieldRevelScore])

	// Ein REVEL-Record trägt bewusst kein hgvs_p: die Datei enthält keine
	// Proteinposition, die Identität ist das Koordinaten-Tupel.
	_, hasProtein := first[models.FieldHGVSp]
	assert.False(t, hasProtein)
}

func TestParseExtractUsesBuildColumn(t *testing.T) {
	records, err := parseExtract(context.Background(), strings.NewReader(sampleExtract),
		"KCNH2", "ENST00000262186", "GRCh37")
	require.NoError(t, err)

	// Im hg19-Modus hat auch die Zeile ohne GRCh38-Mapping eine Position.
	require.Len(t, records, 3)
	assert.Equal(t, int64(150645134), records[0][models.FieldPosition])
	assert.Equal(t, int64(150644989), records[2][models.FieldPosition])
	assert.Equal(t, "GRCh37", records[0][models.FieldGenomeBuild])
}

func TestParseExtractRejectsMissingColumns(t *testing.T) {
	_, err := parseExtract(context.Background(),
		strings.NewReader("chr,pos\n7,1\n"), "KCNH2", "ENST00000262186", "GRCh38")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "grch38_pos")
}

func TestContainsTranscript(t *testing.T) {
	assert.True(t, containsTranscript("ENST00000262186;ENST00000330883", "ENST00000330883"))
	assert.False(t, containsTranscript("ENST00000262186;ENST00000330883", "ENST0000033088"))
	assert.False(t, containsTranscript("", "ENST00000262186"))
}
