package database

import (
	"errors"
	"fmt"

	"variant-hand/models"
	"variant-hand/providers"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDuplicateKey signalisiert ein Rennen beim Anlegen: eine nebenläufige
// Transaktion hat denselben Schlüssel zuerst geschrieben. Aufrufer lösen die
// Identität neu auf und wenden den Datensatz als Update an.
var ErrDuplicateKey = errors.New("duplicate variant key")

// Store kapselt alle Pipeline-Zugriffe auf die Varianten-Tabellen, die
// Gen-Registry und die Ingest-Läufe. Beide Unique-Constraints je Partition
// liegen im Schema; der Store übersetzt ihre Verletzung in ErrDuplicateKey.
type Store struct {
	db  *gorm.DB
	log *zap.Logger
}

// NewStore erstellt einen Store auf einer offenen GORM-Verbindung.
func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, log: logger}
}

// Transaction führt fn atomar aus; der hineingereichte Store arbeitet auf der
// Transaktion. Gedacht für kurzlebige Je-Datensatz-Transaktionen, nie für
// ganze Batches.
func (s *Store) Transaction(fn func(tx *Store) error) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx, log: s.log})
	})
}

// lockRow hängt bei Postgres ein FOR UPDATE an, damit zwei gleichzeitige
// Updates derselben Zeile sich serialisieren. SQLite serialisiert selbst.
func (s *Store) lockRow(tx *gorm.DB) *gorm.DB {
	if s.db.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func (s *Store) findOne(p models.Partition, query string, args ...any) (*models.VariantRow, error) {
	if p == models.PartitionLoF {
		var v models.VariantLoF
		err := s.lockRow(s.db).Where(query, args...).First(&v).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return v.Row(), nil
	}

	var v models.VariantMissense
	err := s.lockRow(s.db).Where(query, args...).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return v.Row(), nil
}

// FindByProteinKey sucht die Zeile mit (gene, hgvs_p). nil ohne Fehler heißt:
// kein Treffer.
func (s *Store) FindByProteinKey(p models.Partition, gene, hgvsP string) (*models.VariantRow, error) {
	return s.findOne(p, "gene = ? AND hgvs_p = ?", gene, hgvsP)
}

// FindByGenomicKey sucht die Zeile mit dem vollständigen Koordinaten-Tupel.
func (s *Store) FindByGenomicKey(p models.Partition, chrom string, pos int64, ref, alt, build string) (*models.VariantRow, error) {
	return s.findOne(p, "chromosome = ? AND position = ? AND ref = ? AND alt = ? AND genome_build = ?",
		chrom, pos, ref, alt, build)
}

// FindByCodingKey sucht die Zeile mit (gene, hgvs_c).
func (s *Store) FindByCodingKey(p models.Partition, gene, hgvsC string) (*models.VariantRow, error) {
	return s.findOne(p, "gene = ? AND hgvs_c = ?", gene, hgvsC)
}

// FindByID lädt eine Zeile über ihren Primärschlüssel.
func (s *Store) FindByID(p models.Partition, id uint) (*models.VariantRow, error) {
	return s.findOne(p, "id = ?", id)
}

// CreateVariant legt eine neue Zeile aus Identität, Feldern und Provenienz
// an. Verletzt der Insert eine Unique-Constraint, kommt ErrDuplicateKey.
func (s *Store) CreateVariant(p models.Partition, id models.Identity, fields map[string]any, sources map[string]string) (*models.VariantRow, error) {
	if p == models.PartitionLoF {
		v, err := models.NewVariantLoF(id, fields, sources)
		if err != nil {
			return nil, err
		}
		if err := s.db.Create(v).Error; err != nil {
			return nil, translateDuplicate(err)
		}
		return v.Row(), nil
	}

	v, err := models.NewVariantMissense(id, fields, sources)
	if err != nil {
		return nil, err
	}
	if err := s.db.Create(v).Error; err != nil {
		return nil, translateDuplicate(err)
	}
	return v.Row(), nil
}

// UpdateVariantFields schreibt eine Spalten-Map auf die Zeile. Die Map trägt
// die fortgeschriebene Provenienz unter models.ColumnFieldSources bereits mit.
func (s *Store) UpdateVariantFields(p models.Partition, id uint, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}
	if srcs, ok := updates[models.ColumnFieldSources].(map[string]string); ok {
		jm := datatypes.JSONMap{}
		for k, v := range srcs {
			jm[k] = v
		}
		updates[models.ColumnFieldSources] = jm
	}

	var err error
	if p == models.PartitionLoF {
		err = s.db.Model(&models.VariantLoF{}).Where("id = ?", id).Updates(updates).Error
	} else {
		err = s.db.Model(&models.VariantMissense{}).Where("id = ?", id).Updates(updates).Error
	}
	return translateDuplicate(err)
}

// ListVariants liefert alle Zeilen eines Gens in der Partition, als neutrale
// Rows für Export und Tests.
func (s *Store) ListVariants(p models.Partition, gene string) ([]*models.VariantRow, error) {
	if p == models.PartitionLoF {
		var vs []models.VariantLoF
		if err := s.db.Where("gene = ?", gene).Order("id").Find(&vs).Error; err != nil {
			return nil, err
		}
		rows := make([]*models.VariantRow, len(vs))
		for i := range vs {
			rows[i] = vs[i].Row()
		}
		return rows, nil
	}

	var vs []models.VariantMissense
	if err := s.db.Where("gene = ?", gene).Order("id").Find(&vs).Error; err != nil {
		return nil, err
	}
	rows := make([]*models.VariantRow, len(vs))
	for i := range vs {
		rows[i] = vs[i].Row()
	}
	return rows, nil
}

// GenomicKeys implementiert providers.CoordinateSource: die vollständigen
// Koordinaten-Tupel aller gespeicherten Varianten eines Gens.
func (s *Store) GenomicKeys(gene string, p models.Partition) ([]providers.GenomicKey, error) {
	table := models.VariantMissense{}.TableName()
	if p == models.PartitionLoF {
		table = models.VariantLoF{}.TableName()
	}

	var keys []providers.GenomicKey
	err := s.db.Table(table).
		Select("chromosome, position, ref, alt").
		Where("gene = ? AND chromosome IS NOT NULL AND position IS NOT NULL AND ref IS NOT NULL AND alt IS NOT NULL", gene).
		Order("position").
		Scan(&keys).Error
	if err != nil {
		return nil, fmt.Errorf("Koordinaten für %s lesen: %w", gene, err)
	}
	return keys, nil
}

// GeneBySymbol lädt ein Gen aus der Registry. nil ohne Fehler: unbekannt.
func (s *Store) GeneBySymbol(symbol string) (*models.Gene, error) {
	var g models.Gene
	err := s.db.Where("symbol = ?", symbol).First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// UpsertGene legt das Gen an oder aktualisiert seine Registry-Spalten.
func (s *Store) UpsertGene(g *models.Gene) error {
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"uniprot_id", "canonical_transcript", "protein_length", "updated_at"}),
	}).Create(g).Error
}

// UpdateGeneConstraint schreibt die gnomAD-Constraint-Metriken des Gens.
func (s *Store) UpdateGeneConstraint(symbol string, pli, loeuf *float64) error {
	updates := map[string]any{}
	if pli != nil {
		updates["pli"] = *pli
	}
	if loeuf != nil {
		updates["loeuf"] = *loeuf
	}
	if len(updates) == 0 {
		return nil
	}
	return s.db.Model(&models.Gene{}).Where("symbol = ?", symbol).Updates(updates).Error
}

// CreateIngestRun persistiert einen neuen Lauf im Status running.
func (s *Store) CreateIngestRun(run *models.IngestRun) error {
	return s.db.Create(run).Error
}

// UpdateIngestRun schreibt den Endzustand eines Laufs zurück.
func (s *Store) UpdateIngestRun(run *models.IngestRun) error {
	return s.db.Save(run).Error
}

func translateDuplicate(err error) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateKey
	}
	return err
}
