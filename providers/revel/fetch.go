package revel

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"variant-hand/config"
	"variant-hand/models"
	"variant-hand/providers"

	"go.uber.org/zap"
)

// Quelle: revel_with_transcript_ids (CSV, ~6 GB entpackt). Jede Zeile trägt
// beide Builds (hg19_pos und grch38_pos); wir lesen die Spalte des
// konfigurierten Builds. Eine Proteinposition enthält die Datei nicht, die
// Identität des Records ist daher allein das Koordinaten-Tupel.

// Fetcher implementiert das Provider-Interface für REVEL.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher erstellt einen neuen REVEL Fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "revel"
}

// Fetch streamt das CSV-Extrakt und filtert auf das kanonische Transkript des Gens.
func (f *Fetcher) Fetch(ctx context.Context, gene *models.Gene) ([]providers.Record, error) {
	log := f.Logger.With(zap.String("gene", gene.Symbol))

	if gene.CanonicalTranscript == "" {
		return nil, fmt.Errorf("gene %s hat kein kanonisches Transkript in der Registry", gene.Symbol)
	}

	file, err := os.Open(f.Config.RevelPath)
	if err != nil {
		return nil, fmt.Errorf("REVEL-Extrakt öffnen: %w", err)
	}
	defer file.Close()

	log.Info("Starte REVEL-Scan.",
		zap.String("transcript", gene.CanonicalTranscript),
		zap.String("genome_build", f.Config.GenomeBuild),
		zap.String("path", f.Config.RevelPath))

	records, err := parseExtract(ctx, file, gene.Symbol, gene.CanonicalTranscript, f.Config.GenomeBuild)
	if err != nil {
		return nil, err
	}

	log.Info("REVEL-Scan abgeschlossen", zap.Int("found_variants", len(records)))
	return records, nil
}

// parseExtract liest den CSV-Strom und baut koordinatenbasierte Records.
func parseExtract(ctx context.Context, r io.Reader, gene, transcript, build string) ([]providers.Record, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("REVEL-Header lesen: %w", err)
	}
	cols := map[string]int{}
	for i, name := range header {
		cols[name] = i
	}

	posCol := "grch38_pos"
	if build != "GRCh38" {
		posCol = "hg19_pos"
	}
	for _, required := range []string{"chr", posCol, "ref", "alt", "REVEL", "Ensembl_transcriptid"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("REVEL-Header ohne Spalte %q", required)
		}
	}

	var (
		records []providers.Record
		lineNo  int
	)
	for {
		lineNo++
		if lineNo%100000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("REVEL-Extrakt lesen: %w", err)
		}
		if len(row) <= cols["Ensembl_transcriptid"] {
			continue
		}
		if !containsTranscript(row[cols["Ensembl_transcriptid"]], transcript) {
			continue
		}

		// "." markiert Positionen ohne Mapping im jeweiligen Build.
		posStr := row[cols[posCol]]
		if posStr == "" || posStr == "." {
			continue
		}
		pos, err := strconv.ParseInt(posStr, 10, 64)
		if err != nil {
			continue
		}
		score, err := strconv.ParseFloat(row[cols["REVEL"]], 64)
		if err != nil {
			continue
		}

		records = append(records, providers.Record{
			models.FieldGene:        gene,
			models.FieldChromosome:  row[cols["chr"]],
			models.FieldPosition:    pos,
			models.FieldRef:         row[cols["ref"]],
			models.FieldAlt:         row[cols["alt"]],
			models.FieldGenomeBuild: build,
			models.FieldVariantType: models.TypeMissense,
			models.FieldRevelScore:  score,
		})
	}
	return records, nil
}

// containsTranscript prüft die semikolon-getrennte Transkriptliste einer Zeile.
func containsTranscript(list, transcript string) bool {
	for _, t := range strings.Split(list, ";") {
		if t == transcript {
			return true
		}
	}
	return false
}
