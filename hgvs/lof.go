package hgvs

import (
	"regexp"
	"strings"
)

// Classify leitet den Loss-of-Function-Typ aus p.-Notation und VEP-Consequence
// ab. Leerer String, wenn keine LoF-Klasse erkennbar ist (z.B. Missense).
func Classify(hgvsP, consequence string) string {
	if hgvsP != "" && strings.Contains(hgvsP, "Ter") && !strings.Contains(hgvsP, "fs") {
		return "nonsense"
	}
	if hgvsP != "" && strings.Contains(hgvsP, "fs") {
		return "frameshift"
	}
	if consequence != "" {
		switch {
		case strings.Contains(consequence, "splice_donor"):
			return "splice_donor"
		case strings.Contains(consequence, "splice_acceptor"):
			return "splice_acceptor"
		case strings.Contains(consequence, "stop_gained"):
			return "nonsense"
		case strings.Contains(consequence, "frameshift"):
			return "frameshift"
		}
	}
	return ""
}

// Einstelliger intronischer Offset direkt an der Exongrenze. c.123+12G>A
// (zweistellig) ist keine Splice-Site-Variante.
var spliceOffsetRe = regexp.MustCompile(`^c\.\d+([+-])[12](?:[^0-9]|$)`)

// SpliceConsequence leitet aus einem intronischen hgvs_c-Offset die
// Splice-Konsequenz ab: +1/+2 liegt im Donor, -1/-2 im Acceptor. Quellen ohne
// eigene Consequence-Annotation (ClinVar) haben nur dieses Signal.
func SpliceConsequence(hgvsC string) string {
	m := spliceOffsetRe.FindStringSubmatch(hgvsC)
	if m == nil {
		return ""
	}
	if m[1] == "+" {
		return "splice_donor_variant"
	}
	return "splice_acceptor_variant"
}

// TruncationPosition ist der nach der Trunkierung verbleibende Proteinanteil
// (0–1), also Stop-Position geteilt durch Proteinlänge.
func TruncationPosition(variantPos, proteinLength int) float64 {
	if proteinLength <= 0 {
		return 0.0
	}
	return float64(variantPos) / float64(proteinLength)
}

// EscapesNMD sagt voraus, ob eine trunkierende Variante dem
// Nonsense-mediated Decay entgeht: Stop im letzten Exon, oder mehr als 90%
// des Proteins bleiben erhalten.
func EscapesNMD(truncationPosition float64, lastExon bool) bool {
	if lastExon {
		return true
	}
	return truncationPosition > 0.90
}
