package clinvar

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"variant-hand/config"
	"variant-hand/hgvs"
	"variant-hand/models"
	"variant-hand/providers"

	"go.uber.org/zap"
)

// Quelle: variant_summary.txt.gz vom ClinVar-FTP (tab_delimited). Eine Zeile
// je (Variante, Assembly); die Spaltenindizes folgen dem offiziellen Header.
const (
	colType          = 1
	colName          = 2
	colGeneSymbol    = 4
	colClinicalSig   = 6
	colLastEvaluated = 8
	colAssembly      = 16
	colChromosome    = 18
	colReviewStatus  = 24
	colVariationID   = 30
	colPositionVCF   = 31
	colRefVCF        = 32
	colAltVCF        = 33
)

// reviewStatusStars ist die ClinVar-Konvention zur Stern-Bewertung (0–4).
var reviewStatusStars = map[string]int64{
	"practice guideline":       4,
	"reviewed by expert panel": 3,
	"criteria provided, multiple submitters, no conflicts": 2,
	"criteria provided, conflicting classifications":       1,
	"criteria provided, single submitter":                  1,
	"no assertion for the individual variant":              0,
	"no assertion criteria provided":                       0,
	"no classification for the single variant":             0,
	"no classifications from unflagged records":            0,
	"no classification provided":                           0,
}

// Punkt- und kleine Längenvarianten. Strukturvarianten (Inversionen, CNVs)
// passen in keine der beiden Partitionen.
var variantTypes = map[string]bool{
	"single nucleotide variant": true,
	"Deletion":                  true,
	"Duplication":               true,
	"Indel":                     true,
	"Insertion":                 true,
	"Microsatellite":            true,
}

// Das Name-Feld trägt die HGVS-Notation, z.B.
// "NM_000238.4(KCNH2):c.1682C>T (p.Ala561Val)".
var (
	missenseRe = regexp.MustCompile(`\(p\.([A-Za-z]{3}\d+[A-Za-z]{3})\)`)
	stopRe     = regexp.MustCompile(`\(p\.([A-Za-z]{3}\d+(?:Ter|\*))\)`)
	fsRe       = regexp.MustCompile(`\(p\.([A-Za-z]{3}\d+(?:[A-Za-z]{3})?fs(?:Ter\d+)?)\)`)
	codingRe   = regexp.MustCompile(`:(c\.[^\s(]+)`)
)

// Fetcher implementiert das Provider-Interface für ClinVar.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher erstellt einen neuen ClinVar Fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "clinvar"
}

// Fetch streamt variant_summary.txt.gz und filtert auf Gen und Assembly.
func (f *Fetcher) Fetch(ctx context.Context, gene *models.Gene) ([]providers.Record, error) {
	log := f.Logger.With(zap.String("gene", gene.Symbol))

	file, err := os.Open(f.Config.ClinvarSummaryPath)
	if err != nil {
		return nil, fmt.Errorf("ClinVar-Extrakt öffnen: %w", err)
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return nil, fmt.Errorf("ClinVar-Extrakt ist kein gzip: %w", err)
	}
	defer gz.Close()

	log.Info("Starte ClinVar-Scan.",
		zap.String("assembly", f.Config.GenomeBuild),
		zap.String("path", f.Config.ClinvarSummaryPath))

	records, err := parseSummary(ctx, gz, gene.Symbol, f.Config.GenomeBuild)
	if err != nil {
		return nil, err
	}

	log.Info("ClinVar-Scan abgeschlossen", zap.Int("found_variants", len(records)))
	return records, nil
}

// parseSummary liest den TSV-Strom zeilenweise. ClinVar meldet dieselbe
// Variante mehrfach (je Assertion); die erste Zeile je HGVS-Schlüssel gewinnt.
func parseSummary(ctx context.Context, r io.Reader, gene, assembly string) ([]providers.Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		records []providers.Record
		lineNo  int
	)
	seen := map[string]bool{}

	for scanner.Scan() {
		lineNo++
		if lineNo%100000 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		line := scanner.Text()
		if lineNo == 1 || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Split(line, "\t")
		if len(fields) <= colAltVCF {
			continue
		}
		if fields[colGeneSymbol] != gene {
			continue
		}
		if fields[colAssembly] != assembly {
			continue
		}
		if !variantTypes[fields[colType]] {
			continue
		}

		hgvsP := parseProteinChange(fields[colName])
		hgvsC := parseCodingChange(fields[colName])

		// Ohne Protein-Änderung bleibt nur ein Splice-Offset als Signal;
		// alles andere (synonym, UTR, tief intronisch) ist kein Ingest-Ziel.
		consequence := ""
		if hgvsP == "" {
			consequence = hgvs.SpliceConsequence(hgvsC)
			if consequence == "" {
				continue
			}
		}

		key := hgvsP
		if key == "" {
			key = hgvsC
		}
		if seen[key] {
			continue
		}
		seen[key] = true

		rec := providers.Record{
			models.FieldGene: gene,
		}
		if hgvsP != "" {
			rec[models.FieldHGVSp] = hgvsP
		}
		if hgvsC != "" {
			rec[models.FieldHGVSc] = hgvsC
		}
		if consequence != "" {
			rec["consequence"] = consequence
		}

		if sig := fields[colClinicalSig]; sig != "" && sig != "-" {
			rec[models.FieldClinvarSignificance] = sig
		}
		if status := fields[colReviewStatus]; status != "" && status != "-" {
			rec[models.FieldClinvarReviewStatus] = status
			rec[models.FieldClinvarStars] = reviewStatusStars[strings.ToLower(status)]
		}
		if date := parseDate(fields[colLastEvaluated]); date != "" {
			rec[models.FieldClinvarLastEvaluated] = date
		}
		if id, err := strconv.ParseInt(fields[colVariationID], 10, 64); err == nil {
			rec[models.FieldClinvarID] = id
		}

		// Koordinaten nur vollständig oder gar nicht: ein Teil-Tupel wird
		// nie partiell gematcht.
		chrom := fields[colChromosome]
		ref := fields[colRefVCF]
		alt := fields[colAltVCF]
		pos, posErr := strconv.ParseInt(fields[colPositionVCF], 10, 64)
		if chrom != "" && chrom != "na" && ref != "" && ref != "na" && alt != "" && alt != "na" && posErr == nil {
			rec[models.FieldChromosome] = chrom
			rec[models.FieldPosition] = pos
			rec[models.FieldRef] = ref
			rec[models.FieldAlt] = alt
			rec[models.FieldGenomeBuild] = assembly
		}

		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("ClinVar-Extrakt lesen: %w", err)
	}
	return records, nil
}

// parseProteinChange extrahiert die p.-Notation aus dem Name-Feld.
// "*" wird zu "Ter" kanonisiert.
func parseProteinChange(name string) string {
	for _, re := range []*regexp.Regexp{missenseRe, stopRe, fsRe} {
		if m := re.FindStringSubmatch(name); m != nil {
			return "p." + strings.ReplaceAll(m[1], "*", "Ter")
		}
	}
	return ""
}

// parseCodingChange extrahiert die c.-Notation aus dem Name-Feld.
func parseCodingChange(name string) string {
	if m := codingRe.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return ""
}

// parseDate übersetzt ClinVars "Aug 25, 2023" in ISO-Form. "-" heißt unbewertet.
func parseDate(s string) string {
	if s == "" || s == "-" {
		return ""
	}
	t, err := time.Parse("Jan 2, 2006", s)
	if err != nil {
		return ""
	}
	return t.Format("2006-01-02")
}
