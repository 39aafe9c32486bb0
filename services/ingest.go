package services

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"variant-hand/config"
	"variant-hand/database"
	"variant-hand/models"
	"variant-hand/providers"
)

// IngestService kümmert sich um die Orchestrierung des gesamten
// Ingest-Prozesses: je Gen und Quelle ein Batch durch den Coordinator,
// gnomAD-Constraint-Metriken in die Gen-Registry, Exporte nach S3.
type IngestService struct {
	Config      *config.Config
	DB          *gorm.DB
	Store       *database.Store
	S3Client    *s3.Client
	Logger      *zap.Logger
	Providers   []providers.Provider
	Coordinator *Coordinator

	// OnReport wird nach jedem Batch mit dessen Report aufgerufen, wenn
	// gesetzt (Metriken-Anbindung in main).
	OnReport func(*BatchReport)
}

// NewIngestService erstellt eine neue Instanz des IngestService. Die
// Rang-Tabelle wird hier einmal geladen und an die Merge Engine gereicht.
func NewIngestService(cfg *config.Config, db *gorm.DB, s3c *s3.Client, logger *zap.Logger, provs []providers.Provider) (*IngestService, error) {
	trust, err := LoadTrustTable(cfg.TrustRanksFile)
	if err != nil {
		return nil, err
	}
	logger.Info("Trust-Rang-Tabelle geladen.", zap.String("version", trust.Version))

	store := database.NewStore(db, logger)
	return &IngestService{
		Config:      cfg,
		DB:          db,
		Store:       store,
		S3Client:    s3c,
		Logger:      logger,
		Providers:   provs,
		Coordinator: NewCoordinator(store, trust, cfg.GenomeBuild, logger),
	}, nil
}

// RunForAllGenes führt den Ingest-Prozess für alle konfigurierten Gene aus
// und gibt die Zahl neu angelegter Varianten zurück.
func (s *IngestService) RunForAllGenes(ctx context.Context) (int, error) {
	totalCreated := 0
	for _, symbol := range s.Config.GeneList() {
		count, err := s.RunForGene(ctx, symbol)
		totalCreated += count
		if err != nil {
			if ctx.Err() != nil {
				return totalCreated, err
			}
			s.Logger.Error("Fehler beim Verarbeiten des Gens", zap.String("gene", symbol), zap.Error(err))
			continue
		}
	}
	return totalCreated, nil
}

// RunForGene führt alle aktivierten Quellen für ein Gen aus.
func (s *IngestService) RunForGene(ctx context.Context, symbol string) (int, error) {
	log := s.Logger.With(zap.String("gene", symbol))

	gene, err := s.Store.GeneBySymbol(symbol)
	if err != nil {
		return 0, err
	}
	if gene == nil {
		return 0, fmt.Errorf("gene %s is not in the registry", symbol)
	}

	log.Info("Starte Ingest für Gen.")
	created := 0
	for _, p := range s.Providers {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		count, err := s.ingestProvider(ctx, p, gene)
		created += count
		if err != nil {
			return created, err
		}
	}
	log.Info("Ingest für Gen abgeschlossen", zap.Int("created", created))
	return created, nil
}

// RunSource führt genau eine Quelle für alle konfigurierten Gene aus.
func (s *IngestService) RunSource(ctx context.Context, name string) (int, error) {
	var target providers.Provider
	for _, p := range s.Providers {
		if p.Name() == name {
			target = p
			break
		}
	}
	if target == nil {
		return 0, fmt.Errorf("unknown or disabled source %q", name)
	}

	created := 0
	for _, symbol := range s.Config.GeneList() {
		if err := ctx.Err(); err != nil {
			return created, err
		}
		gene, err := s.Store.GeneBySymbol(symbol)
		if err != nil {
			return created, err
		}
		if gene == nil {
			s.Logger.Warn("Gen steht nicht in der Registry, wird übersprungen.", zap.String("gene", symbol))
			continue
		}
		count, err := s.ingestProvider(ctx, target, gene)
		created += count
		if err != nil {
			return created, err
		}
	}
	return created, nil
}

// ingestProvider holt die Records einer Quelle und treibt sie durch den
// Coordinator. Ein Fetch-Fehler (Datei fehlt, API down) kostet nur diese
// Quelle; Fehler aus dem Coordinator sind Store-Fehler und brechen ab.
func (s *IngestService) ingestProvider(ctx context.Context, p providers.Provider, gene *models.Gene) (int, error) {
	log := s.Logger.With(zap.String("gene", gene.Symbol), zap.String("provider", p.Name()))

	records, err := p.Fetch(ctx, gene)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		log.Error("Quelle konnte nicht gelesen werden", zap.Error(err))
		return 0, nil
	}
	if limit := s.Config.DebugMaxRecords; gin.Mode() == gin.DebugMode && limit > 0 && len(records) > limit {
		log.Debug("Debug-Modus: Records werden gekappt.", zap.Int("limit", limit), zap.Int("fetched", len(records)))
		records = records[:limit]
	}
	log.Info("Quelle hat Records geliefert", zap.Int("count", len(records)))

	report, err := s.Coordinator.Ingest(ctx, p.Name(), gene.Symbol, records)
	if s.OnReport != nil {
		s.OnReport(report)
	}
	if err != nil {
		return report.Created, err
	}

	if annotator, ok := p.(providers.GeneAnnotator); ok {
		s.updateGeneConstraint(ctx, annotator, gene, log)
	}
	return report.Created, nil
}

// updateGeneConstraint schreibt gene-level Metriken einer Quelle (pLI, LOEUF
// aus gnomAD) in die Registry. Fehler kosten nur die Annotation, nie den Lauf.
func (s *IngestService) updateGeneConstraint(ctx context.Context, annotator providers.GeneAnnotator, gene *models.Gene, log *zap.Logger) {
	record, err := annotator.FetchGeneAnnotation(ctx, gene)
	if err != nil {
		log.Warn("Gen-Annotation konnte nicht geladen werden", zap.Error(err))
		return
	}
	if record == nil {
		return
	}

	var pli, loeuf *float64
	if v, ok := record["pli"].(float64); ok {
		pli = &v
	}
	if v, ok := record["loeuf"].(float64); ok {
		loeuf = &v
	}
	if pli == nil && loeuf == nil {
		return
	}

	if err := s.Store.UpdateGeneConstraint(gene.Symbol, pli, loeuf); err != nil {
		log.Error("Constraint-Metriken konnten nicht gespeichert werden", zap.Error(err))
		return
	}
	log.Info("Constraint-Metriken aktualisiert.")
}
