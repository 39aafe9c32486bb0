package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"variant-hand/models"
	"variant-hand/providers"
)

func TestNormalizeCanonicalizesIdentity(t *testing.T) {
	n := NewNormalizer(zap.NewNop())

	rec, err := n.Normalize("clinvar", providers.Record{
		"gene":                  " kcnh2 ",
		"hgvs_p":                "p.ARG528HIS",
		"hgvs_c":                "c.1583G>A",
		"chromosome":            "chr7",
		"position":              int64(150952046),
		"ref":                   "c",
		"alt":                   "t",
		"genome_build":          "GRCh38",
		"clinvar_significance":  "Pathogenic",
		"clinvar_review_status": "criteria provided, multiple submitters, no conflicts",
		"clinvar_stars":         int64(2),
	})
	require.NoError(t, err)

	assert.Equal(t, "KCNH2", rec.Identity.Gene)
	require.NotNil(t, rec.Identity.HGVSp)
	assert.Equal(t, "p.Arg528His", *rec.Identity.HGVSp)
	require.NotNil(t, rec.Identity.HGVSc)
	assert.Equal(t, "c.1583G>A", *rec.Identity.HGVSc)
	require.NotNil(t, rec.Identity.Chromosome)
	assert.Equal(t, "7", *rec.Identity.Chromosome, "chr-Präfix wird entfernt")
	assert.Equal(t, "C", *rec.Identity.Ref)
	assert.Equal(t, "T", *rec.Identity.Alt)
	assert.Equal(t, models.PartitionMissense, rec.Partition)
	assert.Equal(t, "Pathogenic", rec.Fields[models.FieldClinvarSignificance])
	assert.Equal(t, int64(2), rec.Fields[models.FieldClinvarStars])
}

func TestNormalizeRejectsMalformedProtein(t *testing.T) {
	n := NewNormalizer(zap.NewNop())

	// Fehlendes p.-Präfix wird abgewiesen, nicht still mit leerer Identität
	// gespeichert.
	_, err := n.Normalize("alphamissense", providers.Record{
		"gene":   "KCNH2",
		"hgvs_p": "Arg528His",
	})
	var nerr *NormalizationError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, models.FieldHGVSp, nerr.Field)
	assert.Equal(t, "alphamissense", nerr.Source)
	assert.NotNil(t, nerr.Record, "Record-Snapshot für die manuelle Korrektur")
}

func TestNormalizeRejectsOffWhitelistField(t *testing.T) {
	n := NewNormalizer(zap.NewNop())

	_, err := n.Normalize("alphamissense", providers.Record{
		"gene":      "KCNH2",
		"hgvs_p":    "p.Arg528His",
		"gnomad_af": 0.0001,
	})
	var nerr *NormalizationError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, "gnomad_af", nerr.Field)
}

func TestNormalizeRejectsUnknownSource(t *testing.T) {
	n := NewNormalizer(zap.NewNop())

	_, err := n.Normalize("dbsnp", providers.Record{"gene": "KCNH2", "hgvs_p": "p.Arg528His"})
	var nerr *NormalizationError
	require.ErrorAs(t, err, &nerr)
}

func TestNormalizePartialTupleIsTreatedAsAbsent(t *testing.T) {
	n := NewNormalizer(zap.NewNop())

	rec, err := n.Normalize("clinvar", providers.Record{
		"gene":       "KCNH2",
		"hgvs_p":     "p.Arg528His",
		"chromosome": "7",
		"position":   int64(150952046),
		// ref/alt/genome_build fehlen: das Tupel gilt als abwesend.
	})
	require.NoError(t, err)
	assert.Nil(t, rec.Identity.Chromosome)
	assert.Nil(t, rec.Identity.Position)
	assert.True(t, rec.Identity.HasProteinKey(), "der Protein-Schlüssel trägt den Record weiter")
}

func TestNormalizeRejectsRecordWithoutIdentity(t *testing.T) {
	n := NewNormalizer(zap.NewNop())

	_, err := n.Normalize("clinvar", providers.Record{
		"gene":       "KCNH2",
		"chromosome": "7",
		"position":   int64(1),
	})
	var nerr *NormalizationError
	require.ErrorAs(t, err, &nerr)
	assert.Contains(t, nerr.Reason, "no identity key")
}

func TestNormalizeDerivesVariantType(t *testing.T) {
	n := NewNormalizer(zap.NewNop())

	tests := []struct {
		name          string
		source        string
		record        providers.Record
		wantPartition models.Partition
		wantType      string
		wantErr       bool
	}{
		{
			name:          "Stop-Gain wird nonsense",
			source:        "clinvar",
			record:        providers.Record{"gene": "KCNH2", "hgvs_p": "p.Tyr54Ter"},
			wantPartition: models.PartitionLoF,
			wantType:      models.TypeNonsense,
		},
		{
			name:          "Stern-Notation wird kanonisiert und bleibt nonsense",
			source:        "clinvar",
			record:        providers.Record{"gene": "KCNH2", "hgvs_p": "p.Tyr54*"},
			wantPartition: models.PartitionLoF,
			wantType:      models.TypeNonsense,
		},
		{
			name:          "Frameshift",
			source:        "clinvar",
			record:        providers.Record{"gene": "KCNH2", "hgvs_p": "p.Arg1032GlyfsTer25"},
			wantPartition: models.PartitionLoF,
			wantType:      models.TypeFrameshift,
		},
		{
			name:          "Splice-Consequence",
			source:        "clinvar",
			record:        providers.Record{"gene": "KCNH2", "hgvs_c": "c.2398+1G>A", "consequence": "splice_donor_variant"},
			wantPartition: models.PartitionLoF,
			wantType:      models.TypeSpliceDonor,
		},
		{
			name:          "Splice aus dem Offset ohne Consequence",
			source:        "clinvar",
			record:        providers.Record{"gene": "KCNH2", "hgvs_c": "c.2399-2A>G"},
			wantPartition: models.PartitionLoF,
			wantType:      models.TypeSpliceAcceptor,
		},
		{
			name:          "Substitution ist missense",
			source:        "clinvar",
			record:        providers.Record{"gene": "KCNH2", "hgvs_p": "p.Arg528His"},
			wantPartition: models.PartitionMissense,
		},
		{
			name:          "Score-Quelle ohne HGVS fällt auf missense zurück",
			source:        "revel",
			record:        providers.Record{"gene": "KCNH2", "chromosome": "7", "position": int64(150952046), "ref": "C", "alt": "T", "genome_build": "GRCh38"},
			wantPartition: models.PartitionMissense,
		},
		{
			name:    "gnomad ohne Typ und ohne Ableitung ist ein Fehler",
			source:  "gnomad",
			record:  providers.Record{"gene": "KCNH2", "chromosome": "7", "position": int64(1), "ref": "A", "alt": "C", "genome_build": "GRCh38"},
			wantErr: true,
		},
		{
			name:    "unbekannter expliziter Typ",
			source:  "gnomad",
			record:  providers.Record{"gene": "KCNH2", "hgvs_p": "p.Arg528His", "variant_type": "inversion"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := n.Normalize(tt.source, tt.record)
			if tt.wantErr {
				var nerr *NormalizationError
				require.ErrorAs(t, err, &nerr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantPartition, rec.Partition)
			if tt.wantPartition == models.PartitionLoF {
				assert.Equal(t, tt.wantType, rec.Identity.VariantType)
			} else {
				assert.Empty(t, rec.Identity.VariantType)
			}
		})
	}
}

func TestNormalizeCoercesFieldValues(t *testing.T) {
	n := NewNormalizer(zap.NewNop())

	rec, err := n.Normalize("gnomad", providers.Record{
		"gene":         "KCNH2",
		"hgvs_p":       "p.Arg528His",
		"variant_type": "missense",
		"gnomad_af":    0.0001,
		"gnomad_an":    152312, // int wird zu int64
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0001, rec.Fields[models.FieldGnomadAF])
	assert.Equal(t, int64(152312), rec.Fields[models.FieldGnomadAN])

	_, err = n.Normalize("gnomad", providers.Record{
		"gene":         "KCNH2",
		"hgvs_p":       "p.Arg528His",
		"variant_type": "missense",
		"gnomad_af":    "viele",
	})
	var nerr *NormalizationError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, models.FieldGnomadAF, nerr.Field)
}

func TestNormalizeRejectsMalformedCoding(t *testing.T) {
	n := NewNormalizer(zap.NewNop())

	_, err := n.Normalize("clinvar", providers.Record{
		"gene":   "KCNH2",
		"hgvs_c": "1583G>A",
	})
	var nerr *NormalizationError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, models.FieldHGVSc, nerr.Field)
}

func TestNormalizeRejectsBadPosition(t *testing.T) {
	n := NewNormalizer(zap.NewNop())

	_, err := n.Normalize("revel", providers.Record{
		"gene":         "KCNH2",
		"chromosome":   "7",
		"position":     int64(0),
		"ref":          "C",
		"alt":          "T",
		"genome_build": "GRCh38",
	})
	var nerr *NormalizationError
	require.ErrorAs(t, err, &nerr)
	assert.Equal(t, models.FieldPosition, nerr.Field)
}
