package services

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"variant-hand/models"
	"variant-hand/storage"
)

// Feste Spaltenreihenfolge des TSV-Exports: Identität zuerst, dann die
// Feature-Spalten beider Partitionen alphabetisch.
var exportColumns = buildExportColumns()

func buildExportColumns() []string {
	features := map[string]bool{}
	for f := range models.MissenseFields {
		features[f] = true
	}
	for f := range models.LoFFields {
		features[f] = true
	}
	sorted := make([]string, 0, len(features))
	for f := range features {
		sorted = append(sorted, f)
	}
	sort.Strings(sorted)

	cols := []string{
		models.FieldGene, models.FieldVariantType, models.FieldHGVSp, models.FieldHGVSc,
		models.FieldChromosome, models.FieldPosition, models.FieldRef, models.FieldAlt,
		models.FieldGenomeBuild,
	}
	return append(cols, sorted...)
}

// BuildGeneTSV rendert die Varianten beider Partitionen eines Gens als TSV,
// Missense-Zeilen zuerst.
func BuildGeneTSV(missense, lof []*models.VariantRow) []byte {
	var b strings.Builder
	b.WriteString(strings.Join(exportColumns, "\t"))
	b.WriteByte('\n')
	for _, row := range missense {
		writeTSVRow(&b, row, models.TypeMissense)
	}
	for _, row := range lof {
		writeTSVRow(&b, row, row.Identity.VariantType)
	}
	return []byte(b.String())
}

func writeTSVRow(b *strings.Builder, row *models.VariantRow, variantType string) {
	for i, col := range exportColumns {
		if i > 0 {
			b.WriteByte('\t')
		}
		b.WriteString(tsvCell(row, col, variantType))
	}
	b.WriteByte('\n')
}

func tsvCell(row *models.VariantRow, col, variantType string) string {
	id := row.Identity
	switch col {
	case models.FieldGene:
		return id.Gene
	case models.FieldVariantType:
		return variantType
	case models.FieldHGVSp:
		return strOrEmpty(id.HGVSp)
	case models.FieldHGVSc:
		return strOrEmpty(id.HGVSc)
	case models.FieldChromosome:
		return strOrEmpty(id.Chromosome)
	case models.FieldPosition:
		if id.Position == nil {
			return ""
		}
		return strconv.FormatInt(*id.Position, 10)
	case models.FieldRef:
		return strOrEmpty(id.Ref)
	case models.FieldAlt:
		return strOrEmpty(id.Alt)
	case models.FieldGenomeBuild:
		return strOrEmpty(id.GenomeBuild)
	}

	v, ok := row.Fields[col]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case string:
		return t
	}
	return fmt.Sprint(v)
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ExportGene baut den TSV-Export eines Gens und lädt ihn nach S3 hoch.
// Rückgabe ist der Objekt-Link.
func (s *IngestService) ExportGene(ctx context.Context, symbol string) (string, error) {
	missense, err := s.Store.ListVariants(models.PartitionMissense, symbol)
	if err != nil {
		return "", err
	}
	lof, err := s.Store.ListVariants(models.PartitionLoF, symbol)
	if err != nil {
		return "", err
	}
	if len(missense) == 0 && len(lof) == 0 {
		return "", fmt.Errorf("no variants stored for gene %s", symbol)
	}

	data := BuildGeneTSV(missense, lof)
	key := fmt.Sprintf("exports/%s_%s.tsv", symbol, time.Now().Format("2006-01-02"))
	s.Logger.Info("Lade Export nach S3 hoch", zap.String("key", key), zap.Int("bytes", len(data)))

	link, err := storage.UploadFile(ctx, s.S3Client, s.Config.StratoS3Bucket, key, data, "text/tab-separated-values", s.Config)
	if err != nil {
		return "", fmt.Errorf("uploading export: %w", err)
	}
	s.Logger.Info("Export erfolgreich nach S3 hochgeladen", zap.String("s3_link", link))
	return link, nil
}
