package services

import (
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"variant-hand/hgvs"
	"variant-hand/models"
	"variant-hand/providers"
)

// fieldConsequence ist ein Routing-Hinweis der Quellen (VEP-Consequence-
// String). Er steuert die Typ-Ableitung und wird nicht gespeichert.
const fieldConsequence = "consequence"

// sourceWhitelists ist die geschlossene Feld-Tabelle je Quelle. Ein Feld
// außerhalb der Whitelist ist ein Normalisierungsfehler, kein stilles
// Verwerfen: die Merge Engine kann ihre Rang-Tabelle nur über einer
// endlichen Feldmenge vollständig definieren.
var sourceWhitelists = map[string]map[string]bool{
	"alphamissense": {
		models.FieldGene:               true,
		models.FieldHGVSp:              true,
		models.FieldVariantType:        true,
		models.FieldAlphamissenseScore: true,
		models.FieldAlphamissenseClass: true,
	},
	"revel": {
		models.FieldGene:        true,
		models.FieldChromosome:  true,
		models.FieldPosition:    true,
		models.FieldRef:         true,
		models.FieldAlt:         true,
		models.FieldGenomeBuild: true,
		models.FieldVariantType: true,
		models.FieldRevelScore:  true,
	},
	"cadd": {
		models.FieldGene:        true,
		models.FieldChromosome:  true,
		models.FieldPosition:    true,
		models.FieldRef:         true,
		models.FieldAlt:         true,
		models.FieldGenomeBuild: true,
		models.FieldVariantType: true,
		models.FieldCaddRaw:     true,
		models.FieldCaddPhred:   true,
	},
	"clinvar": {
		models.FieldGene:                 true,
		models.FieldHGVSp:                true,
		models.FieldHGVSc:                true,
		fieldConsequence:                 true,
		models.FieldChromosome:           true,
		models.FieldPosition:             true,
		models.FieldRef:                  true,
		models.FieldAlt:                  true,
		models.FieldGenomeBuild:          true,
		models.FieldClinvarID:            true,
		models.FieldClinvarSignificance:  true,
		models.FieldClinvarReviewStatus:  true,
		models.FieldClinvarStars:         true,
		models.FieldClinvarLastEvaluated: true,
	},
	"gnomad": {
		models.FieldGene:              true,
		models.FieldHGVSp:             true,
		models.FieldHGVSc:             true,
		fieldConsequence:              true,
		models.FieldChromosome:        true,
		models.FieldPosition:          true,
		models.FieldRef:               true,
		models.FieldAlt:               true,
		models.FieldGenomeBuild:       true,
		models.FieldVariantType:       true,
		models.FieldGnomadAF:          true,
		models.FieldGnomadAFPopmax:    true,
		models.FieldGnomadAN:          true,
		models.FieldGnomadHomozygotes: true,
		models.FieldLofteeConfidence:  true,
		models.FieldLofteeFlags:       true,
	},
}

// missenseOnlySources liefern konstruktionsbedingt nur Missense-Scores;
// Records ohne ableitbaren Typ gelten dort als Missense.
var missenseOnlySources = map[string]bool{
	"alphamissense": true,
	"revel":         true,
	"cadd":          true,
}

// NormalizedRecord ist das Ergebnis der Normalisierung: kanonische Identität
// plus typisierte Feature-Felder, fertig für Resolver und Merge Engine.
type NormalizedRecord struct {
	Source    string
	Partition models.Partition
	Identity  models.Identity
	Fields    map[string]any
}

// Normalizer wandelt Roh-Records der Quellen in NormalizedRecords um. Rein:
// kein Store-Zugriff, keine Seiteneffekte außer Debug-Logs.
type Normalizer struct {
	logger *zap.Logger
}

// NewNormalizer erstellt einen neuen Normalizer.
func NewNormalizer(logger *zap.Logger) *Normalizer {
	return &Normalizer{logger: logger}
}

// Normalize prüft und kanonisiert einen Roh-Record. Jeder Verstoß (Feld
// außerhalb der Whitelist, fehlerhafte HGVS-Notation, nicht koerzierbarer
// Wert, keine Identität) ist ein NormalizationError mit Record-Snapshot.
func (n *Normalizer) Normalize(source string, raw providers.Record) (*NormalizedRecord, error) {
	whitelist, ok := sourceWhitelists[source]
	if !ok {
		return nil, &NormalizationError{Source: source, Reason: fmt.Sprintf("unknown source %q", source), Record: raw}
	}
	for field := range raw {
		if !whitelist[field] {
			return nil, &NormalizationError{Source: source, Field: field, Reason: "field not in source whitelist", Record: raw}
		}
	}

	gene, err := canonicalGene(raw[models.FieldGene])
	if err != nil {
		return nil, &NormalizationError{Source: source, Field: models.FieldGene, Reason: err.Error(), Record: raw}
	}
	id := models.Identity{Gene: gene}

	if v, ok := raw[models.FieldHGVSp]; ok {
		s, err := identityString(v)
		if err != nil {
			return nil, &NormalizationError{Source: source, Field: models.FieldHGVSp, Reason: err.Error(), Record: raw}
		}
		if s != "" {
			canonical, err := hgvs.NormalizeProtein(s)
			if err != nil {
				return nil, &NormalizationError{Source: source, Field: models.FieldHGVSp, Reason: err.Error(), Record: raw}
			}
			id.HGVSp = &canonical
		}
	}

	if v, ok := raw[models.FieldHGVSc]; ok {
		s, err := identityString(v)
		if err != nil {
			return nil, &NormalizationError{Source: source, Field: models.FieldHGVSc, Reason: err.Error(), Record: raw}
		}
		if s != "" {
			canonical, err := hgvs.NormalizeCoding(s)
			if err != nil {
				return nil, &NormalizationError{Source: source, Field: models.FieldHGVSc, Reason: err.Error(), Record: raw}
			}
			id.HGVSc = &canonical
		}
	}

	if nerr := n.normalizeTuple(source, raw, &id); nerr != nil {
		return nil, nerr
	}

	variantType, nerr := n.deriveVariantType(source, raw, &id)
	if nerr != nil {
		return nil, nerr
	}
	partition := models.PartitionMissense
	if models.LoFTypes[variantType] {
		partition = models.PartitionLoF
		id.VariantType = variantType
	}

	// Ohne Identität gibt es nichts, woran spätere Quellen andocken könnten.
	if !id.HasAnyKey() {
		return nil, &NormalizationError{Source: source, Reason: "record carries no identity key", Record: raw}
	}

	kinds := models.PartitionFields(partition)
	fields := make(map[string]any)
	for name, v := range raw {
		if models.IdentityFields[name] || name == fieldConsequence {
			continue
		}
		kind, ok := kinds[name]
		if !ok {
			n.logger.Debug("Feld passt nicht zur Partition des Records, wird verworfen.",
				zap.String("source", source), zap.String("field", name), zap.String("partition", string(partition)))
			continue
		}
		coerced, err := coerceValue(name, kind, v)
		if err != nil {
			return nil, &NormalizationError{Source: source, Field: name, Reason: err.Error(), Record: raw}
		}
		fields[name] = coerced
	}

	return &NormalizedRecord{Source: source, Partition: partition, Identity: id, Fields: fields}, nil
}

// normalizeTuple liest das Genom-Tupel. Alle fünf Felder oder keines: ein
// unvollständiges Tupel wird verworfen (Debug-Log) und der Record lebt
// weiter, falls ein anderer Identitätsschlüssel vorhanden ist. Vorhandene,
// aber fehlerhafte Werte sind dagegen Normalisierungsfehler.
func (n *Normalizer) normalizeTuple(source string, raw providers.Record, id *models.Identity) *NormalizationError {
	var (
		chrom, ref, alt, build string
		pos                    int64
		present                int
	)

	if v, ok := raw[models.FieldChromosome]; ok {
		s, err := identityString(v)
		if err != nil {
			return &NormalizationError{Source: source, Field: models.FieldChromosome, Reason: err.Error(), Record: raw}
		}
		s = strings.TrimSpace(s)
		if len(s) >= 3 && strings.EqualFold(s[:3], "chr") {
			s = s[3:]
		}
		if s != "" {
			chrom = strings.ToUpper(s)
			present++
		}
	}

	if v, ok := raw[models.FieldPosition]; ok {
		p, err := identityInt(v)
		if err != nil {
			return &NormalizationError{Source: source, Field: models.FieldPosition, Reason: err.Error(), Record: raw}
		}
		if p < 1 {
			return &NormalizationError{Source: source, Field: models.FieldPosition, Reason: fmt.Sprintf("position %d out of range", p), Record: raw}
		}
		pos = p
		present++
	}

	if v, ok := raw[models.FieldRef]; ok {
		s, err := identityString(v)
		if err != nil {
			return &NormalizationError{Source: source, Field: models.FieldRef, Reason: err.Error(), Record: raw}
		}
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			if !isDNA(s) {
				return &NormalizationError{Source: source, Field: models.FieldRef, Reason: fmt.Sprintf("not a DNA sequence: %q", s), Record: raw}
			}
			ref = s
			present++
		}
	}

	if v, ok := raw[models.FieldAlt]; ok {
		s, err := identityString(v)
		if err != nil {
			return &NormalizationError{Source: source, Field: models.FieldAlt, Reason: err.Error(), Record: raw}
		}
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			if !isDNA(s) {
				return &NormalizationError{Source: source, Field: models.FieldAlt, Reason: fmt.Sprintf("not a DNA sequence: %q", s), Record: raw}
			}
			alt = s
			present++
		}
	}

	if v, ok := raw[models.FieldGenomeBuild]; ok {
		s, err := identityString(v)
		if err != nil {
			return &NormalizationError{Source: source, Field: models.FieldGenomeBuild, Reason: err.Error(), Record: raw}
		}
		if s = strings.TrimSpace(s); s != "" {
			build = s
			present++
		}
	}

	switch present {
	case 0:
		return nil
	case 5:
		id.Chromosome = &chrom
		id.Position = &pos
		id.Ref = &ref
		id.Alt = &alt
		id.GenomeBuild = &build
		return nil
	default:
		n.logger.Debug("Unvollständiges Genom-Tupel, Koordinaten werden verworfen.",
			zap.String("source", source), zap.String("gene", id.Gene), zap.Int("fields_present", present))
		return nil
	}
}

// deriveVariantType bestimmt den Varianten-Typ: explizit im Record, sonst aus
// HGVS und Consequence abgeleitet, sonst der Missense-Default der reinen
// Score-Quellen. Nichts davon greift → Fehler.
func (n *Normalizer) deriveVariantType(source string, raw providers.Record, id *models.Identity) (string, *NormalizationError) {
	consequence := ""
	if v, ok := raw[fieldConsequence]; ok {
		s, err := identityString(v)
		if err != nil {
			return "", &NormalizationError{Source: source, Field: fieldConsequence, Reason: err.Error(), Record: raw}
		}
		consequence = s
	}

	if v, ok := raw[models.FieldVariantType]; ok {
		s, err := identityString(v)
		if err != nil {
			return "", &NormalizationError{Source: source, Field: models.FieldVariantType, Reason: err.Error(), Record: raw}
		}
		if s != models.TypeMissense && !models.LoFTypes[s] {
			return "", &NormalizationError{Source: source, Field: models.FieldVariantType, Reason: fmt.Sprintf("unknown variant type %q", s), Record: raw}
		}
		return s, nil
	}

	hgvsP := ""
	if id.HGVSp != nil {
		hgvsP = *id.HGVSp
	}
	if lof := hgvs.Classify(hgvsP, consequence); lof != "" {
		return lof, nil
	}
	if hgvsP != "" {
		// Kanonische p.-Notation ohne Ter/fs ist eine Substitution.
		return models.TypeMissense, nil
	}
	if id.HGVSc != nil {
		if lof := hgvs.Classify("", hgvs.SpliceConsequence(*id.HGVSc)); lof != "" {
			return lof, nil
		}
	}
	if missenseOnlySources[source] {
		return models.TypeMissense, nil
	}
	return "", &NormalizationError{Source: source, Field: models.FieldVariantType, Reason: "cannot derive variant type", Record: raw}
}

// canonicalGene trimmt, NFKC-faltet und versalisiert das Gen-Symbol.
func canonicalGene(v any) (string, error) {
	if v == nil {
		return "", fmt.Errorf("gene is required")
	}
	s, err := identityString(v)
	if err != nil {
		return "", err
	}
	s = strings.ToUpper(strings.TrimSpace(norm.NFKC.String(s)))
	if s == "" {
		return "", fmt.Errorf("gene is required")
	}
	return s, nil
}

func identityString(v any) (string, error) {
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("expected string, got %T", v)
	}
	return s, nil
}

func identityInt(v any) (int64, error) {
	switch t := v.(type) {
	case int64:
		return t, nil
	case int:
		return int64(t), nil
	case float64:
		if t == math.Trunc(t) {
			return int64(t), nil
		}
	}
	return 0, fmt.Errorf("expected integer, got %T(%v)", v, v)
}

// coerceValue bringt einen Feature-Wert auf den deklarierten Typ des Feldes.
func coerceValue(name string, kind models.FieldKind, v any) (any, error) {
	switch kind {
	case models.KindFloat:
		switch t := v.(type) {
		case float64:
			return t, nil
		case float32:
			return float64(t), nil
		case int:
			return float64(t), nil
		case int64:
			return float64(t), nil
		}
		return nil, fmt.Errorf("field %s: cannot use %T as float", name, v)
	case models.KindInt:
		i, err := identityInt(v)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		return i, nil
	case models.KindString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("field %s: cannot use %T as string", name, v)
		}
		return s, nil
	case models.KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("field %s: cannot use %T as bool", name, v)
		}
		return b, nil
	}
	return nil, fmt.Errorf("field %s: unknown field kind", name)
}

func isDNA(s string) bool {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case 'A', 'C', 'G', 'T', 'N':
		default:
			return false
		}
	}
	return len(s) > 0
}
