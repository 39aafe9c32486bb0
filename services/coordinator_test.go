package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"variant-hand/database"
	"variant-hand/models"
	"variant-hand/providers"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *database.Store, *gorm.DB) {
	t.Helper()
	store, db := newTestStore(t)
	return NewCoordinator(store, DefaultTrustTable(), "GRCh38", zap.NewNop()), store, db
}

func alphamissenseRecord() providers.Record {
	return providers.Record{
		"gene":                "KCNH2",
		"hgvs_p":              "p.Arg528His",
		"alphamissense_score": 0.9987,
		"alphamissense_class": "likely_pathogenic",
	}
}

func gnomadJoinRecord() providers.Record {
	return providers.Record{
		"gene":         "KCNH2",
		"hgvs_p":       "p.Arg528His",
		"chromosome":   "7",
		"position":     150952046,
		"ref":          "C",
		"alt":          "T",
		"genome_build": "GRCh38",
		"gnomad_af":    0.0001,
		"gnomad_an":    152312,
	}
}

func clinvarAssertion(stars int64, sig, review, evaluated string) providers.Record {
	return providers.Record{
		"gene":                   "KCNH2",
		"hgvs_p":                 "p.Arg528His",
		"clinvar_id":             9966,
		"clinvar_significance":   sig,
		"clinvar_review_status":  review,
		"clinvar_stars":          stars,
		"clinvar_last_evaluated": evaluated,
	}
}

// Der Kern des Merge-Verhaltens: zwei Quellen, die dieselbe Variante über
// verschiedene Schlüsselräume melden, landen in einer Zeile.
func TestIngestJoinsSourcesAcrossKeyspaces(t *testing.T) {
	coord, store, db := newTestCoordinator(t)
	ctx := context.Background()

	rep, err := coord.Ingest(ctx, "alphamissense", "KCNH2", []providers.Record{alphamissenseRecord()})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Created)

	rep, err = coord.Ingest(ctx, "gnomad", "KCNH2", []providers.Record{gnomadJoinRecord()})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Updated)
	assert.Zero(t, rep.Created)

	row, err := store.FindByProteinKey(models.PartitionMissense, "KCNH2", "p.Arg528His")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, 0.9987, row.Fields[models.FieldAlphamissenseScore])
	assert.Equal(t, 0.0001, row.Fields[models.FieldGnomadAF])
	assert.Equal(t, "alphamissense", row.Sources[models.FieldAlphamissenseScore])
	assert.Equal(t, "gnomad", row.Sources[models.FieldGnomadAF])

	// Das Tupel wurde als Identität aufgefüllt und löst jetzt ebenfalls auf.
	byTuple, err := store.FindByGenomicKey(models.PartitionMissense, "7", 150952046, "C", "T", "GRCh38")
	require.NoError(t, err)
	require.NotNil(t, byTuple)
	assert.Equal(t, row.ID, byTuple.ID)

	var count int64
	require.NoError(t, db.Model(&models.VariantMissense{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestIngestReplayIsIdempotent(t *testing.T) {
	coord, _, db := newTestCoordinator(t)
	ctx := context.Background()
	batch := []providers.Record{clinvarAssertion(2, "Pathogenic", "criteria provided, multiple submitters, no conflicts", "2024-03-15")}

	rep, err := coord.Ingest(ctx, "clinvar", "KCNH2", batch)
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Created)

	rep, err = coord.Ingest(ctx, "clinvar", "KCNH2", batch)
	require.NoError(t, err)
	assert.Zero(t, rep.Created)
	assert.Zero(t, rep.Updated)
	assert.Equal(t, 1, rep.Skipped)
	assert.Empty(t, rep.Errors)

	var count int64
	require.NoError(t, db.Model(&models.VariantMissense{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)
}

func TestIngestHoldsCrossKeyConflict(t *testing.T) {
	coord, store, _ := newTestCoordinator(t)
	ctx := context.Background()

	// Zeile A über den Protein-Schlüssel, Zeile B über das Tupel.
	_, err := coord.Ingest(ctx, "alphamissense", "KCNH2", []providers.Record{alphamissenseRecord()})
	require.NoError(t, err)
	_, err = coord.Ingest(ctx, "revel", "KCNH2", []providers.Record{{
		"gene":         "KCNH2",
		"chromosome":   "7",
		"position":     150952046,
		"ref":          "C",
		"alt":          "T",
		"genome_build": "GRCh38",
		"revel_score":  0.71,
	}})
	require.NoError(t, err)

	// Ein Record, der beide Schlüssel trägt, verbindet die Zeilen nicht,
	// sondern wird als Konflikt zurückgehalten.
	rep, err := coord.Ingest(ctx, "clinvar", "KCNH2", []providers.Record{{
		"gene":                 "KCNH2",
		"hgvs_p":               "p.Arg528His",
		"chromosome":           "7",
		"position":             150952046,
		"ref":                  "C",
		"alt":                  "T",
		"genome_build":         "GRCh38",
		"clinvar_significance": "Pathogenic",
	}})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Conflicts)
	assert.Zero(t, rep.Created)
	assert.Zero(t, rep.Updated)
	require.Len(t, rep.Errors, 1)
	assert.Equal(t, ErrKindKeyConflict, rep.Errors[0].Kind)
	assert.Contains(t, rep.Errors[0].Reason, "protein key matches variant")
	assert.Contains(t, rep.Errors[0].Reason, "genomic key matches variant")

	// Beide Zeilen sind unangetastet.
	rowA, err := store.FindByProteinKey(models.PartitionMissense, "KCNH2", "p.Arg528His")
	require.NoError(t, err)
	require.NotNil(t, rowA)
	assert.NotContains(t, rowA.Fields, models.FieldClinvarSignificance)
	assert.Nil(t, rowA.Identity.Chromosome)

	rowB, err := store.FindByGenomicKey(models.PartitionMissense, "7", 150952046, "C", "T", "GRCh38")
	require.NoError(t, err)
	require.NotNil(t, rowB)
	assert.NotContains(t, rowB.Fields, models.FieldClinvarSignificance)
	assert.Nil(t, rowB.Identity.HGVSp)
}

func TestIngestRejectsForeignGenomeBuild(t *testing.T) {
	coord, _, db := newTestCoordinator(t)

	rec := gnomadJoinRecord()
	rec["genome_build"] = "GRCh37"

	rep, err := coord.Ingest(context.Background(), "gnomad", "KCNH2", []providers.Record{rec})
	require.NoError(t, err)
	assert.Zero(t, rep.Created)
	require.Len(t, rep.Errors, 1)
	assert.Equal(t, ErrKindBuildMismatch, rep.Errors[0].Kind)

	var count int64
	require.NoError(t, db.Model(&models.VariantMissense{}).Count(&count).Error)
	assert.Zero(t, count, "kein Liftover, keine stille Übernahme")
}

func TestIngestContinuesPastRecordErrors(t *testing.T) {
	coord, _, _ := newTestCoordinator(t)

	rep, err := coord.Ingest(context.Background(), "alphamissense", "KCNH2", []providers.Record{
		{"gene": "KCNH2", "hgvs_p": "Arg528His", "alphamissense_score": 0.5},
		alphamissenseRecord(),
		{"gene": "KCNH2", "hgvs_p": "p.Ala561Val", "gnomad_af": 0.001},
	})
	require.NoError(t, err, "Record-Fehler brechen den Batch nicht ab")
	assert.Equal(t, 3, rep.Total)
	assert.Equal(t, 1, rep.Created)
	require.Len(t, rep.Errors, 2)
	for _, entry := range rep.Errors {
		assert.Equal(t, ErrKindNormalization, entry.Kind)
		assert.NotNil(t, entry.Record, "der Roh-Record bleibt zur Korrektur erhalten")
	}
}

func TestIngestCancelledContext(t *testing.T) {
	coord, _, db := newTestCoordinator(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rep, err := coord.Ingest(ctx, "alphamissense", "KCNH2", []providers.Record{alphamissenseRecord()})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, rep.Created)

	// Der abgebrochene Lauf ist trotzdem protokolliert.
	var run models.IngestRun
	require.NoError(t, db.First(&run, "run_id = ?", rep.RunID).Error)
	assert.Equal(t, models.RunStatusCancelled, run.Status)
	assert.NotNil(t, run.FinishedAt)
}

func TestIngestDerivesLoFFields(t *testing.T) {
	coord, store, _ := newTestCoordinator(t)
	pli, loeuf := 0.99, 0.21
	require.NoError(t, store.UpsertGene(&models.Gene{
		Symbol:        "KCNH2",
		ProteinLength: 1159,
		PLI:           &pli,
		LOEUF:         &loeuf,
	}))

	rep, err := coord.Ingest(context.Background(), "clinvar", "KCNH2", []providers.Record{
		{"gene": "KCNH2", "hgvs_p": "p.Tyr54Ter", "clinvar_significance": "Pathogenic", "clinvar_stars": 2},
		{"gene": "KCNH2", "hgvs_p": "p.Arg1100Ter", "clinvar_significance": "Pathogenic", "clinvar_stars": 2},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Created)

	early, err := store.FindByProteinKey(models.PartitionLoF, "KCNH2", "p.Tyr54Ter")
	require.NoError(t, err)
	require.NotNil(t, early)
	assert.Equal(t, models.TypeNonsense, early.Identity.VariantType)
	assert.InDelta(t, 54.0/1159.0, early.Fields[models.FieldTruncationPosition], 1e-9)
	assert.Equal(t, false, early.Fields[models.FieldNMDEscape])
	assert.Equal(t, 0.99, early.Fields[models.FieldGenePLI])
	assert.Equal(t, 0.21, early.Fields[models.FieldGeneLOEUF])

	// Trunkierung in den letzten 10% der Proteinlänge entgeht dem NMD.
	late, err := store.FindByProteinKey(models.PartitionLoF, "KCNH2", "p.Arg1100Ter")
	require.NoError(t, err)
	require.NotNil(t, late)
	assert.Equal(t, true, late.Fields[models.FieldNMDEscape])
}

func TestIngestWithoutRegistryEntrySkipsDerivation(t *testing.T) {
	coord, store, _ := newTestCoordinator(t)

	rep, err := coord.Ingest(context.Background(), "clinvar", "KCNH2", []providers.Record{
		{"gene": "KCNH2", "hgvs_p": "p.Tyr54Ter", "clinvar_significance": "Pathogenic"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Created)

	row, err := store.FindByProteinKey(models.PartitionLoF, "KCNH2", "p.Tyr54Ter")
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.NotContains(t, row.Fields, models.FieldTruncationPosition)
	assert.NotContains(t, row.Fields, models.FieldGenePLI)
}

func TestIngestFresherClinVarReplacesGroup(t *testing.T) {
	coord, store, _ := newTestCoordinator(t)
	ctx := context.Background()

	_, err := coord.Ingest(ctx, "clinvar", "KCNH2", []providers.Record{
		clinvarAssertion(1, "Likely pathogenic", "criteria provided, single submitter", "2023-01-10"),
	})
	require.NoError(t, err)

	rep, err := coord.Ingest(ctx, "clinvar", "KCNH2", []providers.Record{
		clinvarAssertion(3, "Pathogenic", "reviewed by expert panel", "2024-06-01"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Updated)

	row, err := store.FindByProteinKey(models.PartitionMissense, "KCNH2", "p.Arg528His")
	require.NoError(t, err)
	assert.Equal(t, "Pathogenic", row.Fields[models.FieldClinvarSignificance])
	assert.Equal(t, int64(3), row.Fields[models.FieldClinvarStars])
	assert.Equal(t, "2024-06-01", row.Fields[models.FieldClinvarLastEvaluated])

	// Die alte, schwächere Bewertung prallt danach ab.
	rep, err = coord.Ingest(ctx, "clinvar", "KCNH2", []providers.Record{
		clinvarAssertion(1, "Likely pathogenic", "criteria provided, single submitter", "2023-01-10"),
	})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Skipped)

	row, err = store.FindByProteinKey(models.PartitionMissense, "KCNH2", "p.Arg528His")
	require.NoError(t, err)
	assert.Equal(t, int64(3), row.Fields[models.FieldClinvarStars])
}

func TestIngestPersistsRun(t *testing.T) {
	coord, _, db := newTestCoordinator(t)

	rep, err := coord.Ingest(context.Background(), "alphamissense", "KCNH2", []providers.Record{
		alphamissenseRecord(),
		{"gene": "KCNH2", "hgvs_p": "kaputt", "alphamissense_score": 0.5},
	})
	require.NoError(t, err)

	var run models.IngestRun
	require.NoError(t, db.First(&run, "run_id = ?", rep.RunID).Error)
	assert.Equal(t, models.RunStatusCompleted, run.Status)
	assert.Equal(t, "alphamissense", run.Source)
	assert.Equal(t, "KCNH2", run.Gene)
	assert.Equal(t, "GRCh38", run.GenomeBuild)
	assert.Equal(t, 2, run.RecordsTotal)
	assert.Equal(t, 1, run.Created)
	assert.Equal(t, 1, run.ErrorCount)
	require.NotNil(t, run.FinishedAt)
	assert.NotEmpty(t, run.Errors, "Fehler-Einträge stehen als JSON am Lauf")
}
