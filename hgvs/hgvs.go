// Package hgvs zerlegt und kanonisiert HGVS-Kurznotationen (p. und c.),
// soweit die Quellen sie liefern: Missense, Nonsense (Ter), Frameshift und
// einfache Coding-Änderungen inklusive intronischer Offsets.
package hgvs

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Drei-Buchstaben-Codes der 20 proteinogenen Aminosäuren.
var oneToThree = map[byte]string{
	'A': "Ala", 'C': "Cys", 'D': "Asp", 'E': "Glu", 'F': "Phe",
	'G': "Gly", 'H': "His", 'I': "Ile", 'K': "Lys", 'L': "Leu",
	'M': "Met", 'N': "Asn", 'P': "Pro", 'Q': "Gln", 'R': "Arg",
	'S': "Ser", 'T': "Thr", 'V': "Val", 'W': "Trp", 'Y': "Tyr",
}

var threeToOne = map[string]byte{}

func init() {
	for one, three := range oneToThree {
		threeToOne[three] = one
	}
}

// ProteinChange ist eine zerlegte p.-Notation.
type ProteinChange struct {
	Ref        string // Drei-Buchstaben-Code der Referenz-Aminosäure
	Pos        int    // Aminosäure-Position (1-basiert)
	Alt        string // Drei-Buchstaben-Code, "Ter" oder Frameshift-Suffix
	Stop       bool   // Alt == "Ter"
	Frameshift bool
}

// Canonical formatiert die Änderung als kanonischen p.-String ('*' → "Ter").
func (c *ProteinChange) Canonical() string {
	return fmt.Sprintf("p.%s%d%s", c.Ref, c.Pos, c.Alt)
}

var proteinRe = regexp.MustCompile(`^p\.([A-Za-z]{3})(\d+)(.+)$`)
var fsSuffixRe = regexp.MustCompile(`^(?:[A-Za-z]{3})?fs(?:Ter\d+)?$`)

// ParseProtein zerlegt eine p.-Notation. Akzeptiert werden Missense
// (p.Arg528His), Stop-Gain (p.Tyr54Ter, p.Tyr54*) und Frameshift
// (p.Arg534GlyfsTer8, p.Arg534fs). Alles andere ist ein Fehler; der Aufrufer
// meldet ihn als Normalisierungsfehler weiter.
func ParseProtein(s string) (*ProteinChange, error) {
	s = strings.TrimSpace(s)
	m := proteinRe.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("malformed protein notation: %q", s)
	}

	ref := canonicalAA(m[1])
	if ref == "" {
		return nil, fmt.Errorf("unknown reference amino acid in %q", s)
	}

	pos, err := strconv.Atoi(m[2])
	if err != nil || pos < 1 {
		return nil, fmt.Errorf("invalid amino acid position in %q", s)
	}

	alt := strings.ReplaceAll(m[3], "*", "Ter")
	switch {
	case alt == "Ter":
		return &ProteinChange{Ref: ref, Pos: pos, Alt: "Ter", Stop: true}, nil
	case strings.Contains(alt, "fs"):
		if !fsSuffixRe.MatchString(alt) {
			return nil, fmt.Errorf("malformed frameshift suffix in %q", s)
		}
		if prefix := strings.SplitN(alt, "fs", 2)[0]; prefix != "" && canonicalAA(prefix) == "" {
			return nil, fmt.Errorf("unknown amino acid in frameshift suffix of %q", s)
		}
		return &ProteinChange{Ref: ref, Pos: pos, Alt: alt, Frameshift: true}, nil
	default:
		three := canonicalAA(alt)
		if three == "" {
			return nil, fmt.Errorf("unknown alternate amino acid in %q", s)
		}
		return &ProteinChange{Ref: ref, Pos: pos, Alt: three}, nil
	}
}

// NormalizeProtein parst und kanonisiert in einem Schritt.
func NormalizeProtein(s string) (string, error) {
	c, err := ParseProtein(s)
	if err != nil {
		return "", err
	}
	return c.Canonical(), nil
}

// FromSingleLetter baut die kanonische p.-Notation aus Ein-Buchstaben-Codes,
// z.B. ('A', 561, 'V') → "p.Ala561Val".
func FromSingleLetter(ref byte, pos int, alt byte) (string, error) {
	refThree, ok := oneToThree[ref]
	if !ok {
		return "", fmt.Errorf("unknown amino acid code %q", string(ref))
	}
	if pos < 1 {
		return "", fmt.Errorf("invalid amino acid position %d", pos)
	}
	var altThree string
	if alt == '*' {
		altThree = "Ter"
	} else if altThree, ok = oneToThree[alt]; !ok {
		return "", fmt.Errorf("unknown amino acid code %q", string(alt))
	}
	return fmt.Sprintf("p.%s%d%s", refThree, pos, altThree), nil
}

// canonicalAA normalisiert die Schreibweise eines Drei-Buchstaben-Codes
// ("ARG" → "Arg"); leerer String, wenn unbekannt.
func canonicalAA(s string) string {
	if len(s) != 3 {
		return ""
	}
	t := strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
	if _, ok := threeToOne[t]; !ok {
		return ""
	}
	return t
}

// Coding-Grammatik: Substitution, Deletion, Duplikation, Insertion und
// Delins, Positionen optional mit intronischem Offset oder UTR-Präfix.
var codingRe = regexp.MustCompile(`^c\.[*-]?\d+(?:[+-]\d+)?(?:_[*-]?\d+(?:[+-]\d+)?)?(?:[ACGT]+>[ACGT]+|delins[ACGT]+|del[ACGT]*|dup[ACGT]*|ins[ACGT]+)$`)

// NormalizeCoding prüft eine c.-Notation gegen die Grammatik und gibt sie
// getrimmt zurück. Kleingeschriebene Basen gelten als fehlerhaft.
func NormalizeCoding(s string) (string, error) {
	s = strings.TrimSpace(s)
	if !codingRe.MatchString(s) {
		return "", fmt.Errorf("malformed coding notation: %q", s)
	}
	return s, nil
}
