package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"variant-hand/database"
	"variant-hand/hgvs"
	"variant-hand/models"
	"variant-hand/providers"
)

// BatchReport ist das Ergebnis eines Ingest-Laufs. Skipped zählt Records,
// deren Anwendung keine Änderung ergab — beim zweiten identischen Lauf landen
// also alle Records dort.
type BatchReport struct {
	RunID     string       `json:"run_id"`
	Source    string       `json:"source"`
	Gene      string       `json:"gene"`
	Total     int          `json:"total"`
	Created   int          `json:"created"`
	Updated   int          `json:"updated"`
	Skipped   int          `json:"skipped"`
	Conflicts int          `json:"conflicts"`
	Errors    []ErrorEntry `json:"errors,omitempty"`
}

func (r *BatchReport) addError(kind, source, reason string, record providers.Record) {
	r.Errors = append(r.Errors, ErrorEntry{Kind: kind, Source: source, Reason: reason, Record: record})
}

type recordOutcome int

const (
	outcomeSkipped recordOutcome = iota
	outcomeCreated
	outcomeUpdated
)

// Coordinator treibt die Records eines Batches durch Normalizer, Resolver,
// Merge Engine und Store. Fehler eines Records landen im Report, der Batch
// läuft weiter; nur ein nicht erreichbarer Store bricht ab. Jeder Record
// läuft in einer eigenen kurzen Transaktion, Abbruch zwischen zwei Records
// hinterlässt deshalb keinen halben Zustand.
type Coordinator struct {
	store      *database.Store
	normalizer *Normalizer
	merger     *MergeEngine
	build      string
	logger     *zap.Logger
}

// NewCoordinator erstellt einen Coordinator für das konfigurierte
// Genome-Build.
func NewCoordinator(store *database.Store, trust *TrustTable, build string, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		store:      store,
		normalizer: NewNormalizer(logger),
		merger:     NewMergeEngine(trust, logger),
		build:      build,
		logger:     logger,
	}
}

// Ingest verarbeitet einen Batch einer Quelle für ein Gen und persistiert
// das Ergebnis als IngestRun. Der Report kommt auch bei Abbruch zurück,
// zusammen mit dem Abbruchgrund.
func (c *Coordinator) Ingest(ctx context.Context, source, gene string, records []providers.Record) (*BatchReport, error) {
	report := &BatchReport{
		RunID:  uuid.NewString(),
		Source: source,
		Gene:   gene,
		Total:  len(records),
	}
	log := c.logger.With(zap.String("run_id", report.RunID), zap.String("source", source), zap.String("gene", gene))
	log.Info("Starte Ingest-Lauf.", zap.Int("records", len(records)))

	run := &models.IngestRun{
		RunID:        report.RunID,
		Source:       source,
		Gene:         gene,
		GenomeBuild:  c.build,
		Status:       models.RunStatusRunning,
		StartedAt:    time.Now(),
		RecordsTotal: len(records),
	}
	if err := c.store.CreateIngestRun(run); err != nil {
		return report, fmt.Errorf("persisting ingest run: %w", err)
	}

	// Registry-Zeilen werden je Lauf höchstens einmal gelesen; LoF-Records
	// brauchen sie für die abgeleiteten Felder.
	registry := map[string]*models.Gene{}

	var fatal error
	status := models.RunStatusCompleted

	for _, raw := range records {
		if err := ctx.Err(); err != nil {
			status = models.RunStatusCancelled
			fatal = err
			break
		}

		rec, err := c.normalizer.Normalize(source, raw)
		if err != nil {
			report.addError(ErrKindNormalization, source, err.Error(), raw)
			continue
		}

		if rec.Identity.GenomeBuild != nil && *rec.Identity.GenomeBuild != c.build {
			mismatch := &GenomeBuildMismatchError{Source: source, Want: c.build, Got: *rec.Identity.GenomeBuild}
			report.addError(ErrKindBuildMismatch, source, mismatch.Error(), raw)
			continue
		}

		if rec.Partition == models.PartitionLoF {
			if err := c.deriveLoF(rec, registry); err != nil {
				status = models.RunStatusFailed
				fatal = err
				break
			}
		}

		outcome, err := c.applyRecord(rec)
		if err != nil {
			var conflict *KeyConflict
			if errors.As(err, &conflict) {
				report.Conflicts++
				report.addError(ErrKindKeyConflict, source, conflict.Error(), raw)
				continue
			}
			if errors.Is(err, database.ErrDuplicateKey) {
				report.addError(ErrKindDuplicateKey, source, err.Error(), raw)
				continue
			}
			status = models.RunStatusFailed
			fatal = err
			break
		}

		switch outcome {
		case outcomeCreated:
			report.Created++
		case outcomeUpdated:
			report.Updated++
		default:
			report.Skipped++
		}
	}

	if fatal != nil && status == models.RunStatusFailed {
		report.addError(ErrKindStorage, source, fatal.Error(), nil)
		log.Error("Ingest-Lauf abgebrochen.", zap.Error(fatal))
	}

	now := time.Now()
	run.Status = status
	run.FinishedAt = &now
	run.Created = report.Created
	run.Updated = report.Updated
	run.Skipped = report.Skipped
	run.Conflicts = report.Conflicts
	run.ErrorCount = len(report.Errors)
	if len(report.Errors) > 0 {
		if payload, err := json.Marshal(report.Errors); err == nil {
			run.Errors = datatypes.JSON(payload)
		}
	}
	if err := c.store.UpdateIngestRun(run); err != nil {
		log.Error("Ingest-Lauf konnte nicht zurückgeschrieben werden.", zap.Error(err))
		if fatal == nil {
			fatal = err
		}
	}

	log.Info("Ingest-Lauf beendet.",
		zap.String("status", status),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", report.Skipped),
		zap.Int("conflicts", report.Conflicts),
		zap.Int("errors", len(report.Errors)))
	return report, fatal
}

// applyRecord führt Auflösung und Merge in einer kurzlebigen Transaktion
// aus. Verliert der Insert das Rennen gegen eine nebenläufige Anlage,
// wird einmal neu aufgelöst und der Record als Update angewendet.
func (c *Coordinator) applyRecord(rec *NormalizedRecord) (recordOutcome, error) {
	outcome, err := c.applyOnce(rec)
	if errors.Is(err, database.ErrDuplicateKey) {
		c.logger.Debug("Schlüssel-Rennen beim Anlegen, löse neu auf.",
			zap.String("gene", rec.Identity.Gene), zap.String("source", rec.Source))
		return c.applyOnce(rec)
	}
	return outcome, err
}

func (c *Coordinator) applyOnce(rec *NormalizedRecord) (recordOutcome, error) {
	outcome := outcomeSkipped
	err := c.store.Transaction(func(tx *database.Store) error {
		row, err := NewKeyResolver(tx).Resolve(rec)
		if err != nil {
			return err
		}

		if row == nil {
			if _, err := tx.CreateVariant(rec.Partition, rec.Identity, rec.Fields, SeedSources(rec)); err != nil {
				return err
			}
			outcome = outcomeCreated
			return nil
		}

		updates, err := c.merger.Plan(row, rec)
		if err != nil {
			return err
		}
		if len(updates) == 0 {
			outcome = outcomeSkipped
			return nil
		}
		if err := tx.UpdateVariantFields(rec.Partition, row.ID, updates); err != nil {
			return err
		}
		outcome = outcomeUpdated
		return nil
	})
	return outcome, err
}

// deriveLoF berechnet die abgeleiteten Felder eines LoF-Records aus der
// Gen-Registry: Trunkierungsposition und NMD-Escape aus der Proteinlänge,
// dazu die denormalisierten Constraint-Metriken.
func (c *Coordinator) deriveLoF(rec *NormalizedRecord, registry map[string]*models.Gene) error {
	symbol := rec.Identity.Gene
	g, ok := registry[symbol]
	if !ok {
		loaded, err := c.store.GeneBySymbol(symbol)
		if err != nil {
			return err
		}
		registry[symbol] = loaded
		g = loaded
	}
	if g == nil {
		return nil
	}

	if rec.Identity.HGVSp != nil && g.ProteinLength > 0 {
		if change, err := hgvs.ParseProtein(*rec.Identity.HGVSp); err == nil && (change.Stop || change.Frameshift) {
			tp := hgvs.TruncationPosition(change.Pos, g.ProteinLength)
			rec.Fields[models.FieldTruncationPosition] = tp
			rec.Fields[models.FieldNMDEscape] = hgvs.EscapesNMD(tp, false)
		}
	}
	if g.PLI != nil {
		rec.Fields[models.FieldGenePLI] = *g.PLI
	}
	if g.LOEUF != nil {
		rec.Fields[models.FieldGeneLOEUF] = *g.LOEUF
	}
	return nil
}
