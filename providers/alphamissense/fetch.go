package alphamissense

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"variant-hand/config"
	"variant-hand/hgvs"
	"variant-hand/models"
	"variant-hand/providers"

	"go.uber.org/zap"
)

// Quelle: AlphaMissense_aa_substitutions.tsv.gz (Cheng et al., Science 2023).
// Kommentarzeilen (#) tragen die Lizenz, die erste Datenzeile ist der Header.
// Das Extrakt ist proteinbasiert: es liefert hgvs_p, aber keine Koordinaten.

// Fetcher implementiert das Provider-Interface für AlphaMissense.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher erstellt einen neuen AlphaMissense Fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "alphamissense"
}

// Fetch streamt das gzip-TSV-Extrakt und filtert auf die UniProt-Accession des Gens.
func (f *Fetcher) Fetch(ctx context.Context, gene *models.Gene) ([]providers.Record, error) {
	log := f.Logger.With(zap.String("gene", gene.Symbol))

	if gene.UniprotID == "" {
		return nil, fmt.Errorf("gene %s hat keine UniProt-Accession in der Registry", gene.Symbol)
	}

	file, err := os.Open(f.Config.AlphamissensePath)
	if err != nil {
		return nil, fmt.Errorf("AlphaMissense-Extrakt öffnen: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("AlphaMissense-Extrakt ist kein gzip: %w", err)
	}
	defer gz.Close()

	log.Info("Starte AlphaMissense-Scan.",
		zap.String("uniprot_id", gene.UniprotID),
		zap.String("path", f.Config.AlphamissensePath))

	records, err := parseExtract(ctx, gz, gene.Symbol, gene.UniprotID)
	if err != nil {
		return nil, err
	}

	log.Info("AlphaMissense-Scan abgeschlossen", zap.Int("found_variants", len(records)))
	return records, nil
}

// parseExtract liest den TSV-Strom zeilenweise und baut Records für die
// gesuchte Accession. Die Datei ist ~4 GB komprimiert, daher Scanner statt
// Komplett-Einlesen und ein Abbruch-Check alle 100k Zeilen.
func parseExtract(ctx context.Context, r io.Reader, gene, uniprotID string) ([]providers.Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		records []providers.Record
		cols    map[string]int
		maxCol  int
		lineNo  int
	)

	for scanner.Scan() {
		lineNo++
		if lineNo%100000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}

		if cols == nil {
			cols = map[string]int{}
			for i, name := range strings.Split(line, "\t") {
				cols[name] = i
			}
			for _, required := range []string{"uniprot_id", "protein_variant", "am_pathogenicity", "am_class"} {
				idx, ok := cols[required]
				if !ok {
					return nil, fmt.Errorf("AlphaMissense-Header ohne Spalte %q", required)
				}
				if idx > maxCol {
					maxCol = idx
				}
			}
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) <= maxCol {
			continue
		}
		if fields[cols["uniprot_id"]] != uniprotID {
			continue
		}

		rec, ok := buildRecord(gene, fields[cols["protein_variant"]],
			fields[cols["am_pathogenicity"]], fields[cols["am_class"]])
		if ok {
			records = append(records, rec)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("AlphaMissense-Extrakt lesen: %w", err)
	}
	return records, nil
}

// buildRecord übersetzt eine Zeile in einen Record. Die Spalte protein_variant
// hat die Form "KCNH2_A561V" (oder ohne Gen-Präfix nur "A561V").
func buildRecord(gene, proteinVariant, pathogenicity, class string) (providers.Record, bool) {
	if i := strings.IndexByte(proteinVariant, '_'); i >= 0 {
		proteinVariant = proteinVariant[i+1:]
	}
	if len(proteinVariant) < 3 {
		return nil, false
	}

	pos, err := strconv.Atoi(proteinVariant[1 : len(proteinVariant)-1])
	if err != nil {
		return nil, false
	}
	hgvsP, err := hgvs.FromSingleLetter(proteinVariant[0], pos, proteinVariant[len(proteinVariant)-1])
	if err != nil {
		return nil, false
	}

	rec := providers.Record{
		models.FieldGene:        gene,
		models.FieldHGVSp:       hgvsP,
		models.FieldVariantType: models.TypeMissense,
	}
	if score, err := strconv.ParseFloat(pathogenicity, 64); err == nil {
		rec[models.FieldAlphamissenseScore] = score
	}
	if class != "" {
		rec[models.FieldAlphamissenseClass] = class
	}
	return rec, true
}
