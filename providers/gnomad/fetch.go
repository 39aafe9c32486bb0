package gnomad

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"variant-hand/config"
	"variant-hand/hgvs"
	"variant-hand/models"
	"variant-hand/providers"

	"go.uber.org/zap"
)

// Pause zwischen Requests; die öffentliche API mag keine Abfrage-Salven.
const rateLimitDelay = 500 * time.Millisecond

var httpClient = &http.Client{Timeout: 120 * time.Second}

// Die API will Argumente inline statt als GraphQL-Variablen.
// reference_genome und dataset sind Enums und bleiben unquotiert.
const variantQuery = `{
  gene(gene_symbol: %q, reference_genome: %s) {
    gene_id
    symbol
    variants(dataset: %s) {
      variant_id
      hgvsc
      hgvsp
      consequence
      lof
      lof_filter
      lof_flags
      exome { ac an af homozygote_count populations { id ac an } }
      genome { ac an af homozygote_count populations { id ac an } }
    }
  }
}`

const constraintQuery = `{
  gene(gene_symbol: %q, reference_genome: %s) {
    gnomad_constraint {
      pLI
      oe_lof_upper
    }
  }
}`

// Fetcher implementiert das Provider-Interface für gnomAD.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
}

// NewFetcher erstellt einen neuen gnomAD Fetcher.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Logger: logger}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "gnomad"
}

// Fetch fragt alle Varianten des Gens über die GraphQL-API ab.
func (f *Fetcher) Fetch(ctx context.Context, gene *models.Gene) ([]providers.Record, error) {
	log := f.Logger.With(zap.String("gene", gene.Symbol))
	log.Info("Starte gnomAD-Abfrage.", zap.String("dataset", f.Config.GnomadDataset))

	query := fmt.Sprintf(variantQuery, gene.Symbol, f.Config.GenomeBuild, f.Config.GnomadDataset)
	data, err := f.runQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	if data.Gene == nil {
		return nil, fmt.Errorf("gnomAD kennt kein Gen %s", gene.Symbol)
	}

	records := make([]providers.Record, 0, len(data.Gene.Variants))
	for i := range data.Gene.Variants {
		if rec, ok := buildRecord(gene.Symbol, f.Config.GenomeBuild, &data.Gene.Variants[i]); ok {
			records = append(records, rec)
		}
	}

	log.Info("gnomAD-Abfrage abgeschlossen",
		zap.Int("api_variants", len(data.Gene.Variants)),
		zap.Int("found_variants", len(records)))
	return records, nil
}

// FetchGeneAnnotation holt die Constraint-Metriken (pLI, LOEUF) des Gens.
func (f *Fetcher) FetchGeneAnnotation(ctx context.Context, gene *models.Gene) (providers.Record, error) {
	query := fmt.Sprintf(constraintQuery, gene.Symbol, f.Config.GenomeBuild)
	data, err := f.runQuery(ctx, query)
	if err != nil {
		return nil, err
	}
	if data.Gene == nil || data.Gene.Constraint == nil {
		return nil, fmt.Errorf("gnomAD hat keine Constraint-Metriken für %s", gene.Symbol)
	}

	rec := providers.Record{}
	if data.Gene.Constraint.PLI != nil {
		rec["pli"] = *data.Gene.Constraint.PLI
	}
	if data.Gene.Constraint.OELofUpper != nil {
		rec["loeuf"] = *data.Gene.Constraint.OELofUpper
	}
	return rec, nil
}

// runQuery schickt eine GraphQL-Abfrage und entpackt Transport- wie API-Fehler.
func (f *Fetcher) runQuery(ctx context.Context, query string) (*responseData, error) {
	body, err := json.Marshal(map[string]string{"query": query})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.Config.GnomadAPIURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gnomAD-API antwortet mit Status %d", resp.StatusCode)
	}

	var decoded graphQLResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("gnomAD-Antwort dekodieren: %w", err)
	}
	if len(decoded.Errors) > 0 {
		return nil, fmt.Errorf("gnomAD-API-Fehler: %s", decoded.Errors[0].Message)
	}
	if decoded.Data == nil {
		return nil, fmt.Errorf("gnomAD-Antwort ohne data-Objekt")
	}

	time.Sleep(rateLimitDelay)
	return decoded.Data, nil
}

// buildRecord übersetzt eine API-Variante in einen Record. Konsequenzen
// außerhalb der beiden Partitionen (synonym, intronisch, UTR) fallen weg.
func buildRecord(gene, build string, v *variant) (providers.Record, bool) {
	lofType := hgvs.Classify(v.HGVSp, v.Consequence)
	if lofType == "" && v.Consequence != "missense_variant" {
		return nil, false
	}

	chrom, pos, ref, alt, ok := splitVariantID(v.VariantID)
	if !ok {
		return nil, false
	}

	rec := providers.Record{
		models.FieldGene:        gene,
		models.FieldChromosome:  chrom,
		models.FieldPosition:    pos,
		models.FieldRef:         ref,
		models.FieldAlt:         alt,
		models.FieldGenomeBuild: build,
	}
	if lofType == "" {
		rec[models.FieldVariantType] = models.TypeMissense
	} else {
		rec[models.FieldVariantType] = lofType
	}
	if v.HGVSp != "" {
		rec[models.FieldHGVSp] = v.HGVSp
	}
	if v.HGVSc != "" {
		rec[models.FieldHGVSc] = v.HGVSc
	}
	if v.Consequence != "" {
		rec["consequence"] = v.Consequence
	}

	// Frequenzen: Exom bevorzugt, Genom als Fallback; Homozygote summiert.
	if af, ok := pickAF(v.Exome, v.Genome); ok {
		rec[models.FieldGnomadAF] = af
	}
	if an, ok := pickAN(v.Exome, v.Genome); ok {
		rec[models.FieldGnomadAN] = an
	}
	if pm, ok := popmaxAF(v.Exome, v.Genome); ok {
		rec[models.FieldGnomadAFPopmax] = pm
	}
	rec[models.FieldGnomadHomozygotes] = homozygoteSum(v.Exome, v.Genome)

	// LOFTEE-Annotationen gibt es nur an LoF-Konsequenzen.
	if lofType != "" {
		if v.Lof != "" {
			rec[models.FieldLofteeConfidence] = v.Lof
		}
		if v.LofFlags != "" {
			rec[models.FieldLofteeFlags] = v.LofFlags
		}
	}
	return rec, true
}

// splitVariantID zerlegt die gnomAD-ID "7-150952046-C-T".
func splitVariantID(id string) (chrom string, pos int64, ref, alt string, ok bool) {
	parts := strings.Split(id, "-")
	if len(parts) != 4 {
		return "", 0, "", "", false
	}
	pos, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return "", 0, "", "", false
	}
	return strings.TrimPrefix(parts[0], "chr"), pos, parts[2], parts[3], true
}

func pickAF(exome, genome *population) (float64, bool) {
	if exome != nil && exome.AF != nil {
		return *exome.AF, true
	}
	if genome != nil && genome.AF != nil {
		return *genome.AF, true
	}
	return 0, false
}

func pickAN(exome, genome *population) (int64, bool) {
	if exome != nil && exome.AN > 0 {
		return exome.AN, true
	}
	if genome != nil && genome.AN > 0 {
		return genome.AN, true
	}
	return 0, false
}

func homozygoteSum(exome, genome *population) int64 {
	var sum int64
	if exome != nil {
		sum += exome.HomozygoteCount
	}
	if genome != nil {
		sum += genome.HomozygoteCount
	}
	return sum
}

// Popmax zählt per gnomAD-Konvention nur die kontinentalen Hauptgruppen;
// Bottleneck-Populationen (ASJ, FIN, AMI) und Sammelgruppen bleiben außen vor.
var popmaxGroups = map[string]bool{
	"afr": true,
	"amr": true,
	"eas": true,
	"nfe": true,
	"sas": true,
}

// popmaxAF berechnet die höchste Frequenz einer Popmax-Gruppe. Die v4-API
// liefert keinen fertigen Popmax-Wert mehr, nur die Gruppenzählungen.
func popmaxAF(exome, genome *population) (float64, bool) {
	best := 0.0
	found := false
	scan := func(p *population) {
		if p == nil {
			return
		}
		for _, grp := range p.Populations {
			if !popmaxGroups[strings.ToLower(grp.ID)] || grp.AN == 0 {
				continue
			}
			if af := float64(grp.AC) / float64(grp.AN); af > best {
				best = af
				found = true
			}
		}
	}
	scan(exome)
	scan(genome)
	return best, found
}
