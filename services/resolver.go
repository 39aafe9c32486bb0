package services

import (
	"variant-hand/database"
	"variant-hand/models"
)

// Namen der drei Schlüsselräume, in Auflösungs-Priorität: die Protein-Ebene
// ist der häufigste Schnittpunkt zwischen den Quellen, das Genom-Tupel der
// eindeutigste, der Coding-Schlüssel der Rückfall.
const (
	KeyspaceProtein = "protein"
	KeyspaceGenomic = "genomic"
	KeyspaceCoding  = "coding"
)

// KeyResolver ordnet einen normalisierten Record einer gespeicherten Zeile
// seiner Partition zu. Alle vorhandenen Schlüssel werden geprüft: zeigen zwei
// Schlüsselräume auf verschiedene Zeilen, ist das ein KeyConflict und der
// Record wird zurückgehalten — ein automatischer Zeilen-Merge würde die
// unabhängig angesammelte Provenienz beider Zeilen verschleiern.
type KeyResolver struct {
	store *database.Store
}

// NewKeyResolver erstellt einen Resolver über dem gegebenen Store. Innerhalb
// einer Transaktion wird er über dem Transaktions-Store gebaut.
func NewKeyResolver(store *database.Store) *KeyResolver {
	return &KeyResolver{store: store}
}

// Resolve gibt die Zielzeile des Records zurück; nil ohne Fehler heißt: keine
// vorhandene Zeile passt. Bei mehreren übereinstimmenden Schlüsselräumen
// gewinnt der höchstpriore, sofern alle auf dieselbe Zeile zeigen.
func (r *KeyResolver) Resolve(rec *NormalizedRecord) (*models.VariantRow, error) {
	type hit struct {
		keyspace string
		row      *models.VariantRow
	}
	var hits []hit
	id := rec.Identity

	if id.HGVSp != nil {
		row, err := r.store.FindByProteinKey(rec.Partition, id.Gene, *id.HGVSp)
		if err != nil {
			return nil, err
		}
		if row != nil {
			hits = append(hits, hit{KeyspaceProtein, row})
		}
	}

	if id.HasGenomicKey() {
		row, err := r.store.FindByGenomicKey(rec.Partition, *id.Chromosome, *id.Position, *id.Ref, *id.Alt, *id.GenomeBuild)
		if err != nil {
			return nil, err
		}
		if row != nil {
			hits = append(hits, hit{KeyspaceGenomic, row})
		}
	}

	if id.HGVSc != nil {
		row, err := r.store.FindByCodingKey(rec.Partition, id.Gene, *id.HGVSc)
		if err != nil {
			return nil, err
		}
		if row != nil {
			hits = append(hits, hit{KeyspaceCoding, row})
		}
	}

	if len(hits) == 0 {
		return nil, nil
	}
	first := hits[0]
	for _, h := range hits[1:] {
		if h.row.ID != first.row.ID {
			return nil, &KeyConflict{
				Source:    rec.Source,
				Gene:      id.Gene,
				Partition: rec.Partition,
				FirstID:   first.row.ID,
				FirstKey:  first.keyspace,
				SecondID:  h.row.ID,
				SecondKey: h.keyspace,
			}
		}
	}
	return first.row, nil
}
