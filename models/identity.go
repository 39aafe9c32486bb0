package models

import "fmt"

// Identity bündelt die Schlüsselräume einer Variante: Protein-Schlüssel
// (gene, hgvs_p), genomisches Tupel (chromosome, position, ref, alt,
// genome_build) und Coding-Schlüssel (gene, hgvs_c). Das genomische Tupel
// gilt nur als vorhanden, wenn alle fünf Teile gesetzt sind.
type Identity struct {
	Gene        string  `json:"gene"`
	HGVSp       *string `json:"hgvs_p,omitempty"`
	HGVSc       *string `json:"hgvs_c,omitempty"`
	Chromosome  *string `json:"chromosome,omitempty"`
	Position    *int64  `json:"position,omitempty"`
	Ref         *string `json:"ref,omitempty"`
	Alt         *string `json:"alt,omitempty"`
	GenomeBuild *string `json:"genome_build,omitempty"`

	// VariantType ist nur in der LoF-Partition gesetzt.
	VariantType string `json:"variant_type,omitempty"`
}

// HasProteinKey meldet, ob (gene, hgvs_p) vollständig ist.
func (i *Identity) HasProteinKey() bool {
	return i.Gene != "" && i.HGVSp != nil && *i.HGVSp != ""
}

// HasGenomicKey meldet, ob das genomische Tupel vollständig ist.
func (i *Identity) HasGenomicKey() bool {
	return i.Chromosome != nil && i.Position != nil && i.Ref != nil && i.Alt != nil && i.GenomeBuild != nil
}

// HasCodingKey meldet, ob (gene, hgvs_c) vollständig ist.
func (i *Identity) HasCodingKey() bool {
	return i.Gene != "" && i.HGVSc != nil && *i.HGVSc != ""
}

// HasAnyKey meldet, ob mindestens ein Schlüsselraum auflösbar ist.
func (i *Identity) HasAnyKey() bool {
	return i.HasProteinKey() || i.HasGenomicKey() || i.HasCodingKey()
}

// GenomicID formatiert das genomische Tupel als chr-pos-ref-alt (gnomAD-Stil).
func (i *Identity) GenomicID() string {
	if !i.HasGenomicKey() {
		return ""
	}
	return fmt.Sprintf("%s-%d-%s-%s", *i.Chromosome, *i.Position, *i.Ref, *i.Alt)
}

// VariantRow ist die speicherneutrale Sicht auf eine Varianten-Zeile, mit der
// Resolver und Merge-Engine arbeiten. Fields enthält nur gesetzte
// Feature-Spalten, Sources die Provenienz (Feldname -> Quellname).
type VariantRow struct {
	ID       uint              `json:"id"`
	Identity Identity          `json:"identity"`
	Fields   map[string]any    `json:"fields"`
	Sources  map[string]string `json:"sources"`
}
