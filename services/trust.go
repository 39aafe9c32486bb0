package services

import (
	"encoding/json"
	"fmt"
	"os"

	"variant-hand/models"
)

// TrustTable ist die versionierte Rang-Tabelle (Feld, Quelle) → Rang. Sie
// wird einmal beim Start geladen und explizit an die Merge Engine gereicht,
// nie aus globalem Zustand gelesen. Höherer Rang gewinnt; bei Gleichstand
// bleibt der gespeicherte Wert stehen.
type TrustTable struct {
	Version string                    `json:"version"`
	Ranks   map[string]map[string]int `json:"ranks"`
}

// Rank liefert den Rang einer Quelle für ein Feld. Unbekannte
// (Feld, Quelle)-Paare erhalten Rang 1, fehlende Provenienz (leere Quelle,
// z.B. aus Altbeständen) Rang 0 — ein solches Feld darf jede konfigurierte
// Quelle überschreiben.
func (t *TrustTable) Rank(field, source string) int {
	if source == "" {
		return 0
	}
	if bySource, ok := t.Ranks[field]; ok {
		if rank, ok := bySource[source]; ok {
			return rank
		}
	}
	return 1
}

// Jede Quelle ist für ihre eigenen Feature-Spalten die maßgebliche Instanz.
// LOFTEE-Annotationen kommen über gnomAD. Die abgeleiteten Spalten
// (truncation_position, nmd_escape, gene_pli, gene_loeuf) stehen bewusst
// nicht in der Tabelle: sie umgehen den Rang-Vergleich.
var defaultFieldOwners = map[string]string{
	models.FieldAlphamissenseScore:   "alphamissense",
	models.FieldAlphamissenseClass:   "alphamissense",
	models.FieldRevelScore:           "revel",
	models.FieldCaddRaw:              "cadd",
	models.FieldCaddPhred:            "cadd",
	models.FieldClinvarID:            "clinvar",
	models.FieldClinvarSignificance:  "clinvar",
	models.FieldClinvarReviewStatus:  "clinvar",
	models.FieldClinvarStars:         "clinvar",
	models.FieldClinvarLastEvaluated: "clinvar",
	models.FieldGnomadAF:             "gnomad",
	models.FieldGnomadAFPopmax:       "gnomad",
	models.FieldGnomadAN:             "gnomad",
	models.FieldGnomadHomozygotes:    "gnomad",
	models.FieldLofteeConfidence:     "gnomad",
	models.FieldLofteeFlags:          "gnomad",
}

// DefaultTrustTable baut die eingebaute Tabelle: jede Quelle bekommt Rang 3
// auf ihren eigenen Feldern. Damit liegen unbekannte Quellen (Rang 1)
// darunter und eine Override-Datei hat nach oben wie unten Platz.
func DefaultTrustTable() *TrustTable {
	ranks := make(map[string]map[string]int, len(defaultFieldOwners))
	for field, owner := range defaultFieldOwners {
		ranks[field] = map[string]int{owner: 3}
	}
	return &TrustTable{Version: "builtin-1", Ranks: ranks}
}

// LoadTrustTable lädt eine Override-Datei oder, bei leerem Pfad, die
// eingebaute Tabelle. Feldnamen werden gegen die bekannten Feature-Spalten
// geprüft, damit Tippfehler in der Datei nicht stillschweigend als
// "unbekanntes Feld, Rang 1" versanden.
func LoadTrustTable(path string) (*TrustTable, error) {
	if path == "" {
		return DefaultTrustTable(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trust ranks file: %w", err)
	}

	var t TrustTable
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parsing trust ranks file: %w", err)
	}
	if t.Version == "" {
		return nil, fmt.Errorf("trust ranks file %s: missing version", path)
	}
	if len(t.Ranks) == 0 {
		return nil, fmt.Errorf("trust ranks file %s: no ranks defined", path)
	}

	for field := range t.Ranks {
		_, missense := models.MissenseFields[field]
		_, lof := models.LoFFields[field]
		if !missense && !lof {
			return nil, fmt.Errorf("trust ranks file %s: unknown field %q", path, field)
		}
	}
	return &t, nil
}
