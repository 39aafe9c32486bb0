package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// VariantLoF ist die kanonische Zeile einer Loss-of-Function-Variante
// (nonsense, frameshift, splice_donor, splice_acceptor). Eigene Tabelle mit
// denselben Identitäts-Invarianten wie variants_missense; die Partitionen
// sind damit per Konstruktion disjunkt.
type VariantLoF struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Identität
	Gene        string  `json:"gene" gorm:"not null;index:idx_lof_protein_key,unique;index:idx_lof_coding_key"`
	HGVSp       *string `json:"hgvs_p,omitempty" gorm:"column:hgvs_p;index:idx_lof_protein_key,unique"`
	HGVSc       *string `json:"hgvs_c,omitempty" gorm:"column:hgvs_c;index:idx_lof_coding_key"`
	Chromosome  *string `json:"chromosome,omitempty" gorm:"index:idx_lof_genomic_key,unique"`
	Position    *int64  `json:"position,omitempty" gorm:"index:idx_lof_genomic_key,unique"`
	Ref         *string `json:"ref,omitempty" gorm:"index:idx_lof_genomic_key,unique"`
	Alt         *string `json:"alt,omitempty" gorm:"index:idx_lof_genomic_key,unique"`
	GenomeBuild *string `json:"genome_build,omitempty" gorm:"index:idx_lof_genomic_key,unique"`

	VariantType string `json:"variant_type" gorm:"not null;index"`

	// LOFTEE / NMD
	LofteeConfidence   *string  `json:"loftee_confidence,omitempty"`
	LofteeFlags        *string  `json:"loftee_flags,omitempty"`
	NMDEscape          *bool    `json:"nmd_escape,omitempty" gorm:"column:nmd_escape"`
	TruncationPosition *float64 `json:"truncation_position,omitempty"`

	// Constraint-Metriken, denormalisiert aus der Gen-Registry
	GenePLI   *float64 `json:"gene_pli,omitempty" gorm:"column:gene_pli"`
	GeneLOEUF *float64 `json:"gene_loeuf,omitempty" gorm:"column:gene_loeuf"`

	// ClinVar
	ClinvarID            *int64  `json:"clinvar_id,omitempty"`
	ClinvarSignificance  *string `json:"clinvar_significance,omitempty" gorm:"index"`
	ClinvarReviewStatus  *string `json:"clinvar_review_status,omitempty"`
	ClinvarStars         *int64  `json:"clinvar_stars,omitempty"`
	ClinvarLastEvaluated *string `json:"clinvar_last_evaluated,omitempty"`

	// gnomAD
	GnomadAF          *float64 `json:"gnomad_af,omitempty" gorm:"index"`
	GnomadAFPopmax    *float64 `json:"gnomad_af_popmax,omitempty"`
	GnomadAN          *int64   `json:"gnomad_an,omitempty"`
	GnomadHomozygotes *int64   `json:"gnomad_homozygotes,omitempty"`

	// Provenienz: Feldname -> Quellname des letzten Schreibers
	FieldSources datatypes.JSONMap `json:"field_sources" gorm:"type:jsonb"`
}

// TableName gibt explizit den Tabellennamen an.
func (VariantLoF) TableName() string {
	return "variants_lof"
}

// NewVariantLoF baut eine neue Zeile aus Identität, Feldwerten und
// Provenienz auf. Die Werte müssen bereits normalisiert sein.
func NewVariantLoF(id Identity, fields map[string]any, sources map[string]string) (*VariantLoF, error) {
	if !LoFTypes[id.VariantType] {
		return nil, fmt.Errorf("invalid lof variant_type: %q", id.VariantType)
	}
	v := &VariantLoF{
		Gene:         id.Gene,
		HGVSp:        id.HGVSp,
		HGVSc:        id.HGVSc,
		Chromosome:   id.Chromosome,
		Position:     id.Position,
		Ref:          id.Ref,
		Alt:          id.Alt,
		GenomeBuild:  id.GenomeBuild,
		VariantType:  id.VariantType,
		FieldSources: datatypes.JSONMap{},
	}
	for name, value := range fields {
		if err := v.SetField(name, value); err != nil {
			return nil, err
		}
	}
	for field, source := range sources {
		v.FieldSources[field] = source
	}
	return v, nil
}

// SetField setzt eine Feature-Spalte anhand ihres Namens.
func (v *VariantLoF) SetField(name string, value any) error {
	var err error
	switch name {
	case FieldLofteeConfidence:
		v.LofteeConfidence, err = strPtr(name, value)
	case FieldLofteeFlags:
		v.LofteeFlags, err = strPtr(name, value)
	case FieldNMDEscape:
		v.NMDEscape, err = boolPtr(name, value)
	case FieldTruncationPosition:
		v.TruncationPosition, err = floatPtr(name, value)
	case FieldGenePLI:
		v.GenePLI, err = floatPtr(name, value)
	case FieldGeneLOEUF:
		v.GeneLOEUF, err = floatPtr(name, value)
	case FieldClinvarID:
		v.ClinvarID, err = intPtr(name, value)
	case FieldClinvarSignificance:
		v.ClinvarSignificance, err = strPtr(name, value)
	case FieldClinvarReviewStatus:
		v.ClinvarReviewStatus, err = strPtr(name, value)
	case FieldClinvarStars:
		v.ClinvarStars, err = intPtr(name, value)
	case FieldClinvarLastEvaluated:
		v.ClinvarLastEvaluated, err = strPtr(name, value)
	case FieldGnomadAF:
		v.GnomadAF, err = floatPtr(name, value)
	case FieldGnomadAFPopmax:
		v.GnomadAFPopmax, err = floatPtr(name, value)
	case FieldGnomadAN:
		v.GnomadAN, err = intPtr(name, value)
	case FieldGnomadHomozygotes:
		v.GnomadHomozygotes, err = intPtr(name, value)
	default:
		return fmt.Errorf("unknown lof field: %s", name)
	}
	return err
}

// Row liefert die speicherneutrale Sicht für Resolver und Merge-Engine.
func (v *VariantLoF) Row() *VariantRow {
	r := &VariantRow{
		ID: v.ID,
		Identity: Identity{
			Gene:        v.Gene,
			HGVSp:       v.HGVSp,
			HGVSc:       v.HGVSc,
			Chromosome:  v.Chromosome,
			Position:    v.Position,
			Ref:         v.Ref,
			Alt:         v.Alt,
			GenomeBuild: v.GenomeBuild,
			VariantType: v.VariantType,
		},
		Fields:  map[string]any{},
		Sources: map[string]string{},
	}
	putStr(r.Fields, FieldLofteeConfidence, v.LofteeConfidence)
	putStr(r.Fields, FieldLofteeFlags, v.LofteeFlags)
	putBool(r.Fields, FieldNMDEscape, v.NMDEscape)
	putFloat(r.Fields, FieldTruncationPosition, v.TruncationPosition)
	putFloat(r.Fields, FieldGenePLI, v.GenePLI)
	putFloat(r.Fields, FieldGeneLOEUF, v.GeneLOEUF)
	putInt(r.Fields, FieldClinvarID, v.ClinvarID)
	putStr(r.Fields, FieldClinvarSignificance, v.ClinvarSignificance)
	putStr(r.Fields, FieldClinvarReviewStatus, v.ClinvarReviewStatus)
	putInt(r.Fields, FieldClinvarStars, v.ClinvarStars)
	putStr(r.Fields, FieldClinvarLastEvaluated, v.ClinvarLastEvaluated)
	putFloat(r.Fields, FieldGnomadAF, v.GnomadAF)
	putFloat(r.Fields, FieldGnomadAFPopmax, v.GnomadAFPopmax)
	putInt(r.Fields, FieldGnomadAN, v.GnomadAN)
	putInt(r.Fields, FieldGnomadHomozygotes, v.GnomadHomozygotes)
	for field, source := range v.FieldSources {
		if s, ok := source.(string); ok {
			r.Sources[field] = s
		}
	}
	return r
}
