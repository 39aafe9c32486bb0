package models

import "fmt"

// Partition benennt die beiden Varianten-Tabellen.
type Partition string

const (
	PartitionMissense Partition = "missense"
	PartitionLoF      Partition = "lof"
)

// Varianten-Typen der LoF-Partition. Missense-Zeilen tragen implizit "missense".
const (
	TypeMissense       = "missense"
	TypeNonsense       = "nonsense"
	TypeFrameshift     = "frameshift"
	TypeSpliceDonor    = "splice_donor"
	TypeSpliceAcceptor = "splice_acceptor"
)

// LoFTypes ist die geschlossene Menge zulässiger variant_type-Werte.
var LoFTypes = map[string]bool{
	TypeNonsense:       true,
	TypeFrameshift:     true,
	TypeSpliceDonor:    true,
	TypeSpliceAcceptor: true,
}

// FieldKind beschreibt den Werttyp eines Feldes nach der Normalisierung.
type FieldKind int

const (
	KindFloat FieldKind = iota
	KindInt
	KindString
	KindBool
)

// ColumnFieldSources ist die JSON-Spalte mit der Provenienz je Feld.
const ColumnFieldSources = "field_sources"

// Identitätsspalten. Sie werden beim Merge nur gefüllt, nie überschrieben.
const (
	FieldGene        = "gene"
	FieldHGVSp       = "hgvs_p"
	FieldHGVSc       = "hgvs_c"
	FieldChromosome  = "chromosome"
	FieldPosition    = "position"
	FieldRef         = "ref"
	FieldAlt         = "alt"
	FieldGenomeBuild = "genome_build"
	FieldVariantType = "variant_type"
)

// Feature-Spalten (Name == Spaltenname in der Tabelle).
const (
	FieldAlphamissenseScore   = "alphamissense_score"
	FieldAlphamissenseClass   = "alphamissense_class"
	FieldRevelScore           = "revel_score"
	FieldCaddRaw              = "cadd_raw"
	FieldCaddPhred            = "cadd_phred"
	FieldClinvarID            = "clinvar_id"
	FieldClinvarSignificance  = "clinvar_significance"
	FieldClinvarReviewStatus  = "clinvar_review_status"
	FieldClinvarStars         = "clinvar_stars"
	FieldClinvarLastEvaluated = "clinvar_last_evaluated"
	FieldGnomadAF             = "gnomad_af"
	FieldGnomadAFPopmax       = "gnomad_af_popmax"
	FieldGnomadAN             = "gnomad_an"
	FieldGnomadHomozygotes    = "gnomad_homozygotes"
	FieldLofteeConfidence     = "loftee_confidence"
	FieldLofteeFlags          = "loftee_flags"
	FieldNMDEscape            = "nmd_escape"
	FieldTruncationPosition   = "truncation_position"
	FieldGenePLI              = "gene_pli"
	FieldGeneLOEUF            = "gene_loeuf"
)

// IdentityFields markiert Spalten, die zur Varianten-Identität gehören.
var IdentityFields = map[string]bool{
	FieldGene:        true,
	FieldHGVSp:       true,
	FieldHGVSc:       true,
	FieldChromosome:  true,
	FieldPosition:    true,
	FieldRef:         true,
	FieldAlt:         true,
	FieldGenomeBuild: true,
	FieldVariantType: true,
}

var clinvarFields = map[string]FieldKind{
	FieldClinvarID:            KindInt,
	FieldClinvarSignificance:  KindString,
	FieldClinvarReviewStatus:  KindString,
	FieldClinvarStars:         KindInt,
	FieldClinvarLastEvaluated: KindString,
}

var gnomadFields = map[string]FieldKind{
	FieldGnomadAF:          KindFloat,
	FieldGnomadAFPopmax:    KindFloat,
	FieldGnomadAN:          KindInt,
	FieldGnomadHomozygotes: KindInt,
}

// MissenseFields sind die zulässigen Feature-Spalten von variants_missense.
var MissenseFields = mergeFieldSets(map[string]FieldKind{
	FieldAlphamissenseScore: KindFloat,
	FieldAlphamissenseClass: KindString,
	FieldRevelScore:         KindFloat,
	FieldCaddRaw:            KindFloat,
	FieldCaddPhred:          KindFloat,
}, clinvarFields, gnomadFields)

// LoFFields sind die zulässigen Feature-Spalten von variants_lof.
var LoFFields = mergeFieldSets(map[string]FieldKind{
	FieldLofteeConfidence:   KindString,
	FieldLofteeFlags:        KindString,
	FieldNMDEscape:          KindBool,
	FieldTruncationPosition: KindFloat,
	FieldGenePLI:            KindFloat,
	FieldGeneLOEUF:          KindFloat,
}, clinvarFields, gnomadFields)

// ClinVarGroup wird als Einheit ersetzt, sobald eine höher bewertete
// Review-Stufe eintrifft (Stars, bei Gleichstand das jüngere Datum).
var ClinVarGroup = []string{
	FieldClinvarSignificance,
	FieldClinvarReviewStatus,
	FieldClinvarStars,
	FieldClinvarLastEvaluated,
}

// DerivedFields werden aus der Gen-Registry berechnet statt von einer Quelle
// behauptet; sie überschreiben bei Wertänderung ohne Rang-Vergleich.
var DerivedFields = map[string]bool{
	FieldTruncationPosition: true,
	FieldNMDEscape:          true,
	FieldGenePLI:            true,
	FieldGeneLOEUF:          true,
}

// PartitionFields liefert das Feld-Set der Partition.
func PartitionFields(p Partition) map[string]FieldKind {
	if p == PartitionLoF {
		return LoFFields
	}
	return MissenseFields
}

func mergeFieldSets(sets ...map[string]FieldKind) map[string]FieldKind {
	out := map[string]FieldKind{}
	for _, set := range sets {
		for k, v := range set {
			out[k] = v
		}
	}
	return out
}

// Typ-Helfer für das Befüllen der Modell-Pointer aus normalisierten Werten.

func floatPtr(name string, v any) (*float64, error) {
	f, ok := v.(float64)
	if !ok {
		return nil, fmt.Errorf("field %s: expected float, got %T", name, v)
	}
	return &f, nil
}

func intPtr(name string, v any) (*int64, error) {
	i, ok := v.(int64)
	if !ok {
		return nil, fmt.Errorf("field %s: expected int, got %T", name, v)
	}
	return &i, nil
}

func strPtr(name string, v any) (*string, error) {
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("field %s: expected string, got %T", name, v)
	}
	return &s, nil
}

func boolPtr(name string, v any) (*bool, error) {
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("field %s: expected bool, got %T", name, v)
	}
	return &b, nil
}
