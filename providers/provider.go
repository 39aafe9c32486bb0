package providers

import (
	"context"

	"variant-hand/models"
)

// Record ist ein roher, quellspezifischer Datensatz: Feldname → Wert.
// Die zulässigen Feldnamen je Quelle sind eine geschlossene Tabelle und
// werden an der Normalizer-Grenze geprüft, nicht hier.
type Record map[string]any

// Provider ist das Interface, das jeder Daten-Provider (z.B. ClinVar, gnomAD)
// implementieren muss.
type Provider interface {
	// Fetch liefert alle rohen Datensätze der Quelle für ein Gen.
	Fetch(ctx context.Context, gene *models.Gene) ([]Record, error)

	// Name gibt den eindeutigen Namen des Providers zurück (z.B. "clinvar").
	Name() string
}

// GeneAnnotator liefert zusätzlich einen gen-weiten Datensatz (Constraint-
// Metriken wie pLI/LOEUF). Optional; per Type-Assertion geprüft.
type GeneAnnotator interface {
	FetchGeneAnnotation(ctx context.Context, gene *models.Gene) (Record, error)
}

// GenomicKey ist ein vollständiges Koordinaten-Tupel einer gespeicherten
// Variante. Build ist implizit der konfigurierte Store-Build.
type GenomicKey struct {
	Chromosome string
	Position   int64
	Ref        string
	Alt        string
}

// CoordinateSource liefert die Koordinaten bereits gespeicherter Varianten
// eines Gens. Anreichernde Provider (CADD) fragen darüber den Store ab, ohne
// ihn zu kennen.
type CoordinateSource interface {
	GenomicKeys(gene string, partition models.Partition) ([]GenomicKey, error)
}
