package cadd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"variant-hand/config"
	"variant-hand/models"
	"variant-hand/providers"

	"go.uber.org/zap"
)

// REST-Endpunkt: GET {base}/{version}/{chrom}:{pos}-{pos}. Die Antwort ist
// ein JSON-Array aus Zeilen; die erste Zeile ist der Header. CADD kennt keine
// Gen-Abfrage, daher reichert dieser Provider nur Varianten an, die bereits
// mit Koordinaten im Store liegen.

// Pause nach jedem Request; die öffentliche API ist empfindlich.
const rateLimitDelay = 200 * time.Millisecond

var httpClient = &http.Client{Timeout: 30 * time.Second}

// Fetcher implementiert das Provider-Interface für CADD.
type Fetcher struct {
	Config *config.Config
	Logger *zap.Logger
	Coords providers.CoordinateSource
}

// NewFetcher erstellt einen neuen CADD Fetcher.
func NewFetcher(cfg *config.Config, coords providers.CoordinateSource, logger *zap.Logger) *Fetcher {
	return &Fetcher{Config: cfg, Coords: coords, Logger: logger}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "cadd"
}

// Fetch holt Scores für alle gespeicherten Varianten des Gens mit Koordinaten.
func (f *Fetcher) Fetch(ctx context.Context, gene *models.Gene) ([]providers.Record, error) {
	log := f.Logger.With(zap.String("gene", gene.Symbol))

	keys, err := f.Coords.GenomicKeys(gene.Symbol, models.PartitionMissense)
	if err != nil {
		return nil, fmt.Errorf("Koordinaten aus dem Store lesen: %w", err)
	}
	if len(keys) == 0 {
		log.Info("Keine Varianten mit Koordinaten, CADD-Lauf übersprungen.")
		return nil, nil
	}

	log.Info("Starte CADD-Abfragen.",
		zap.Int("variants", len(keys)),
		zap.String("version", f.Config.CADDVersion))

	// Parallel mit begrenzter Last gegen die API
	var wg sync.WaitGroup
	var mu sync.Mutex
	var records []providers.Record
	semaphore := make(chan struct{}, 5) // Limit auf 5 parallele Abfragen

	for _, key := range keys {
		wg.Add(1)
		semaphore <- struct{}{}

		go func(key providers.GenomicKey) {
			defer wg.Done()
			defer func() { <-semaphore }()

			rec, err := f.fetchSingle(ctx, gene.Symbol, key)
			if err != nil {
				log.Warn("CADD-Lookup fehlgeschlagen",
					zap.String("variant", fmt.Sprintf("%s-%d-%s-%s", key.Chromosome, key.Position, key.Ref, key.Alt)),
					zap.Error(err))
				return
			}
			if rec == nil {
				return
			}
			mu.Lock()
			records = append(records, rec)
			mu.Unlock()
		}(key)
	}
	wg.Wait()

	log.Info("CADD-Abfragen abgeschlossen",
		zap.Int("queried", len(keys)),
		zap.Int("found_variants", len(records)))
	return records, nil
}

// fetchSingle fragt eine Position ab und filtert auf das Ref/Alt-Paar.
// nil/nil heißt: CADD kennt diese Variante nicht.
func (f *Fetcher) fetchSingle(ctx context.Context, gene string, key providers.GenomicKey) (providers.Record, error) {
	chrom := strings.TrimPrefix(key.Chromosome, "chr")
	url := fmt.Sprintf("%s/%s/%s:%d-%d", f.Config.CADDBaseURL, f.Config.CADDVersion, chrom, key.Position, key.Position)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer time.Sleep(rateLimitDelay)
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("CADD-API antwortet mit Status %d", resp.StatusCode)
	}

	return parseResponse(resp.Body, gene, f.Config.GenomeBuild, key)
}

// parseResponse liest das Zeilen-Array und baut den Record aus der Zeile,
// deren Ref/Alt zur gesuchten Variante passt.
func parseResponse(r io.Reader, gene, build string, key providers.GenomicKey) (providers.Record, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var rows [][]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("CADD-Antwort dekodieren: %w", err)
	}
	if len(rows) < 2 {
		return nil, nil
	}

	cols := map[string]int{}
	for i, name := range rows[0] {
		cols[cell(name)] = i
	}
	for _, required := range []string{"Ref", "Alt", "RawScore", "PHRED"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("CADD-Header ohne Spalte %q", required)
		}
	}

	for _, row := range rows[1:] {
		if len(row) <= cols["PHRED"] {
			continue
		}
		if cell(row[cols["Ref"]]) != key.Ref || cell(row[cols["Alt"]]) != key.Alt {
			continue
		}

		raw, errRaw := strconv.ParseFloat(cell(row[cols["RawScore"]]), 64)
		phred, errPhred := strconv.ParseFloat(cell(row[cols["PHRED"]]), 64)
		if errRaw != nil || errPhred != nil {
			continue
		}

		return providers.Record{
			models.FieldGene:        gene,
			models.FieldChromosome:  key.Chromosome,
			models.FieldPosition:    key.Position,
			models.FieldRef:         key.Ref,
			models.FieldAlt:         key.Alt,
			models.FieldGenomeBuild: build,
			models.FieldVariantType: models.TypeMissense,
			models.FieldCaddRaw:     raw,
			models.FieldCaddPhred:   phred,
		}, nil
	}
	return nil, nil
}

// cell macht aus einer JSON-Zelle einen String; die API liefert je nach
// Spalte Strings oder Zahlen.
func cell(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
