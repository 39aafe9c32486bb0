package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// VariantMissense ist die kanonische Zeile einer Missense-Variante mit allen
// aggregierten Evidenz-Feldern. Zwei Unique-Indizes sichern die Identität:
// (gene, hgvs_p) und das genomische Tupel. NULL-Spalten kollidieren dabei
// nicht (Postgres wie SQLite behandeln NULLs im Unique-Index als verschieden).
type VariantMissense struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Identität
	Gene        string  `json:"gene" gorm:"not null;index:idx_missense_protein_key,unique;index:idx_missense_coding_key"`
	HGVSp       *string `json:"hgvs_p,omitempty" gorm:"column:hgvs_p;index:idx_missense_protein_key,unique"`
	HGVSc       *string `json:"hgvs_c,omitempty" gorm:"column:hgvs_c;index:idx_missense_coding_key"`
	Chromosome  *string `json:"chromosome,omitempty" gorm:"index:idx_missense_genomic_key,unique"`
	Position    *int64  `json:"position,omitempty" gorm:"index:idx_missense_genomic_key,unique"`
	Ref         *string `json:"ref,omitempty" gorm:"index:idx_missense_genomic_key,unique"`
	Alt         *string `json:"alt,omitempty" gorm:"index:idx_missense_genomic_key,unique"`
	GenomeBuild *string `json:"genome_build,omitempty" gorm:"index:idx_missense_genomic_key,unique"`

	// Scores
	AlphamissenseScore *float64 `json:"alphamissense_score,omitempty"`
	AlphamissenseClass *string  `json:"alphamissense_class,omitempty"`
	RevelScore         *float64 `json:"revel_score,omitempty"`
	CaddRaw            *float64 `json:"cadd_raw,omitempty"`
	CaddPhred          *float64 `json:"cadd_phred,omitempty"`

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
func (VariantMissense) TableName() string {
	return "variants_missense"
}

// NewVariantMissense baut eine neue Zeile aus Identität, Feldwerten und
// Provenienz auf. Die Werte müssen bereits normalisiert sein.
func NewVariantMissense(id Identity, fields map[string]any, sources map[string]string) (*VariantMissense, error) {
	v := &VariantMissense{
		Gene:         id.Gene,
		HGVSp:        id.HGVSp,
		HGVSc:        id.HGVSc,
		Chromosome:   id.Chromosome,
		Position:     id.Position,
		Ref:          id.Ref,
		Alt:          id.Alt,
		GenomeBuild:  id.GenomeBuild,
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
func (v *VariantMissense) SetField(name string, value any) error {
	var err error
	switch name {
	case FieldAlphamissenseScore:
		v.AlphamissenseScore, err = floatPtr(name, value)
	case FieldAlphamissenseClass:
		v.AlphamissenseClass, err = strPtr(name, value)
	case FieldRevelScore:
		v.RevelScore, err = floatPtr(name, value)
	case FieldCaddRaw:
		v.CaddRaw, err = floatPtr(name, value)
	case FieldCaddPhred:
		v.CaddPhred, err = floatPtr(name, value)
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
		return fmt.Errorf("unknown missense field: %s", name)
	}
	return err
}

// Row liefert die speicherneutrale Sicht für Resolver und Merge-Engine.
func (v *VariantMissense) Row() *VariantRow {
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
		},
		Fields:  map[string]any{},
		Sources: map[string]string{},
	}
	putFloat(r.Fields, FieldAlphamissenseScore, v.AlphamissenseScore)
	putStr(r.Fields, FieldAlphamissenseClass, v.AlphamissenseClass)
	putFloat(r.Fields, FieldRevelScore, v.RevelScore)
	putFloat(r.Fields, FieldCaddRaw, v.CaddRaw)
	putFloat(r.Fields, FieldCaddPhred, v.CaddPhred)
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

func putFloat(m map[string]any, name string, v *float64) {
	if v != nil {
		m[name] = *v
	}
}

func putInt(m map[string]any, name string, v *int64) {
	if v != nil {
		m[name] = *v
	}
}

func putStr(m map[string]any, name string, v *string) {
	if v != nil {
		m[name] = *v
	}
}

func putBool(m map[string]any, name string, v *bool) {
	if v != nil {
		m[name] = *v
	}
}
