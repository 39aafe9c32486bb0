package models

import "time"

// Gene ist die Registry-Zeile eines Gens: UniProt-Zuordnung, kanonisches
// Transkript und Proteinlänge für die Fetcher, Constraint-Metriken aus gnomAD.
type Gene struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Symbol              string `json:"symbol" gorm:"uniqueIndex;not null"` // z.B. "KCNH2"
	UniprotID           string `json:"uniprot_id,omitempty"`
	CanonicalTranscript string `json:"canonical_transcript,omitempty"`
	ProteinLength       int    `json:"protein_length,omitempty"`

	// gnomAD Constraint
	PLI   *float64 `json:"pli,omitempty" gorm:"column:pli"`
	LOEUF *float64 `json:"loeuf,omitempty" gorm:"column:loeuf"`
}

// TableName gibt den expliziten Tabellennamen für GORM an.
func (Gene) TableName() string {
	return "genes"
}
