package services

import (
	"strconv"

	"go.uber.org/zap"

	"variant-hand/models"
)

// MergeEngine berechnet aus einer gespeicherten Zeile und einem
// normalisierten Record die anzuwendenden Spalten-Updates. Regeln je Feld:
// unbesetzt wird gesetzt; ein strikt höherer Rang überschreibt und übernimmt
// die Provenienz; gleicher oder niedrigerer Rang ist ein No-Op. Die
// ClinVar-Gruppe wird als Einheit ersetzt, sobald die eingehende Bewertung
// frischer ist (mehr Sterne, bei Gleichstand das spätere Review-Datum) —
// Review-Frische schlägt dort den Quellen-Rang. Identitätsfelder werden nur
// gefüllt, nie überschrieben. Zweimal derselbe Record ergibt beim zweiten
// Mal null Änderungen.
type MergeEngine struct {
	trust  *TrustTable
	logger *zap.Logger
}

// NewMergeEngine erstellt eine Merge Engine mit der gegebenen Rang-Tabelle.
func NewMergeEngine(trust *TrustTable, logger *zap.Logger) *MergeEngine {
	return &MergeEngine{trust: trust, logger: logger}
}

// SeedSources baut die Provenienz-Karte einer Neuanlage: jedes gelieferte
// Feature-Feld stammt aus der Quelle des Records.
func SeedSources(rec *NormalizedRecord) map[string]string {
	sources := make(map[string]string, len(rec.Fields))
	for name := range rec.Fields {
		sources[name] = rec.Source
	}
	return sources
}

// Plan liefert die Spalten-Updates, die den Record auf die Zeile anwenden;
// eine leere Map heißt: nichts zu tun. Ein Widerspruch in einem gesetzten
// Identitätsfeld bricht den Record mit einem KeyConflict ab, die Zeile
// bleibt unverändert.
func (m *MergeEngine) Plan(existing *models.VariantRow, rec *NormalizedRecord) (map[string]any, error) {
	updates := make(map[string]any)

	if err := m.reconcileIdentity(existing, rec, updates); err != nil {
		return nil, err
	}

	sources := make(map[string]string, len(existing.Sources))
	for k, v := range existing.Sources {
		sources[k] = v
	}
	sourcesChanged := false
	setSource := func(field string) {
		if sources[field] != rec.Source {
			sources[field] = rec.Source
			sourcesChanged = true
		}
	}
	clearSource := func(field string) {
		if _, ok := sources[field]; ok {
			delete(sources, field)
			sourcesChanged = true
		}
	}

	groupApply, groupSkip := m.planClinVarGroup(existing, rec)
	for field, v := range groupApply {
		if v == nil {
			// Gruppenmitglied ohne neuen Wert wird geleert, damit kein
			// veralteter Rest der vorigen Bewertung stehen bleibt.
			updates[field] = nil
			clearSource(field)
			continue
		}
		if stored, isSet := existing.Fields[field]; !isSet || stored != v {
			updates[field] = v
		}
		setSource(field)
	}

	for name, v := range rec.Fields {
		if groupSkip[name] {
			continue
		}

		if models.DerivedFields[name] {
			// Abgeleitete Felder werden aus der Gen-Registry berechnet,
			// nicht von einer Quelle behauptet: Wertänderung gewinnt immer.
			if stored, isSet := existing.Fields[name]; !isSet || stored != v {
				updates[name] = v
				setSource(name)
			}
			continue
		}

		stored, isSet := existing.Fields[name]
		if !isSet {
			updates[name] = v
			setSource(name)
			continue
		}

		incomingRank := m.trust.Rank(name, rec.Source)
		storedRank := m.trust.Rank(name, existing.Sources[name])
		if incomingRank > storedRank {
			if stored != v {
				updates[name] = v
			}
			setSource(name)
			continue
		}
		if stored != v {
			m.logger.Debug("Wert bleibt stehen, eingehende Quelle hat keinen höheren Rang.",
				zap.String("field", name), zap.String("source", rec.Source),
				zap.Int("incoming_rank", incomingRank), zap.Int("stored_rank", storedRank))
		}
	}

	if len(updates) == 0 && !sourcesChanged {
		return map[string]any{}, nil
	}
	updates[models.ColumnFieldSources] = sources
	return updates, nil
}

// reconcileIdentity füllt fehlende Identitätsspalten aus dem Record auf.
// Gesetzte Spalten sind unantastbar: ein abweichender eingehender Wert ist
// ein Konfliktsignal, kein Update.
func (m *MergeEngine) reconcileIdentity(existing *models.VariantRow, rec *NormalizedRecord, updates map[string]any) error {
	ex, in := existing.Identity, rec.Identity

	if in.Gene != "" && ex.Gene != "" && in.Gene != ex.Gene {
		return m.identityConflict(existing, rec, models.FieldGene, ex.Gene, in.Gene)
	}
	if in.VariantType != "" && ex.VariantType != "" && in.VariantType != ex.VariantType {
		return m.identityConflict(existing, rec, models.FieldVariantType, ex.VariantType, in.VariantType)
	}

	if err := m.fillString(existing, rec, updates, models.FieldHGVSp, ex.HGVSp, in.HGVSp); err != nil {
		return err
	}
	if err := m.fillString(existing, rec, updates, models.FieldHGVSc, ex.HGVSc, in.HGVSc); err != nil {
		return err
	}
	if err := m.fillString(existing, rec, updates, models.FieldChromosome, ex.Chromosome, in.Chromosome); err != nil {
		return err
	}
	if in.Position != nil {
		if ex.Position == nil {
			updates[models.FieldPosition] = *in.Position
		} else if *ex.Position != *in.Position {
			return m.identityConflict(existing, rec, models.FieldPosition,
				strconv.FormatInt(*ex.Position, 10), strconv.FormatInt(*in.Position, 10))
		}
	}
	if err := m.fillString(existing, rec, updates, models.FieldRef, ex.Ref, in.Ref); err != nil {
		return err
	}
	if err := m.fillString(existing, rec, updates, models.FieldAlt, ex.Alt, in.Alt); err != nil {
		return err
	}
	return m.fillString(existing, rec, updates, models.FieldGenomeBuild, ex.GenomeBuild, in.GenomeBuild)
}

func (m *MergeEngine) fillString(existing *models.VariantRow, rec *NormalizedRecord, updates map[string]any, field string, stored, incoming *string) error {
	if incoming == nil {
		return nil
	}
	if stored == nil {
		updates[field] = *incoming
		return nil
	}
	if *stored != *incoming {
		return m.identityConflict(existing, rec, field, *stored, *incoming)
	}
	return nil
}

func (m *MergeEngine) identityConflict(existing *models.VariantRow, rec *NormalizedRecord, field, stored, incoming string) *KeyConflict {
	return &KeyConflict{
		Source:    rec.Source,
		Gene:      rec.Identity.Gene,
		Partition: rec.Partition,
		FirstID:   existing.ID,
		Field:     field,
		Stored:    stored,
		Incoming:  incoming,
	}
}

// planClinVarGroup entscheidet über die ClinVar-Gruppe als Einheit. Rückgabe:
// die anzuwendenden Gruppen-Werte (nil-Wert = Spalte leeren) und die Menge
// der Gruppenfelder, die die Standardregeln überspringen müssen. Trägt die
// Zeile noch keine ClinVar-Bewertung, greifen die Standardregeln
// (unbesetzt → setzen) und beide Rückgaben sind leer.
func (m *MergeEngine) planClinVarGroup(existing *models.VariantRow, rec *NormalizedRecord) (map[string]any, map[string]bool) {
	incomingHas := false
	for _, f := range models.ClinVarGroup {
		if _, ok := rec.Fields[f]; ok {
			incomingHas = true
			break
		}
	}
	if !incomingHas {
		return nil, nil
	}

	existingHas := false
	for _, f := range models.ClinVarGroup {
		if _, ok := existing.Fields[f]; ok {
			existingHas = true
			break
		}
	}
	if !existingHas {
		return nil, nil
	}

	skip := make(map[string]bool, len(models.ClinVarGroup))
	for _, f := range models.ClinVarGroup {
		skip[f] = true
	}

	if !clinVarFresher(existing.Fields, rec.Fields) {
		return nil, skip
	}

	apply := make(map[string]any, len(models.ClinVarGroup))
	for _, f := range models.ClinVarGroup {
		if v, ok := rec.Fields[f]; ok {
			apply[f] = v
		} else if _, ok := existing.Fields[f]; ok {
			apply[f] = nil
		}
	}
	return apply, skip
}

// clinVarFresher: mehr Review-Sterne gewinnen; bei Gleichstand entscheidet
// das spätere clinvar_last_evaluated (ISO-Datum, lexikographisch
// vergleichbar). Beides gleich → die gespeicherte Bewertung bleibt.
func clinVarFresher(existing, incoming map[string]any) bool {
	exStars, inStars := clinVarStars(existing), clinVarStars(incoming)
	if inStars != exStars {
		return inStars > exStars
	}
	return clinVarDate(incoming) > clinVarDate(existing)
}

func clinVarStars(fields map[string]any) int64 {
	if v, ok := fields[models.FieldClinvarStars].(int64); ok {
		return v
	}
	return -1
}

func clinVarDate(fields map[string]any) string {
	if v, ok := fields[models.FieldClinvarLastEvaluated].(string); ok {
		return v
	}
	return ""
}
