package hgvs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProteinMissense(t *testing.T) {
	c, err := ParseProtein("p.Arg528His")
	require.NoError(t, err)
	assert.Equal(t, "Arg", c.Ref)
	assert.Equal(t, 528, c.Pos)
	assert.Equal(t, "His", c.Alt)
	assert.False(t, c.Stop)
	assert.False(t, c.Frameshift)
	assert.Equal(t, "p.Arg528His", c.Canonical())
}

func TestParseProteinStopGain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"p.Tyr54Ter", "p.Tyr54Ter"},
		{"p.Tyr54*", "p.Tyr54Ter"},
		{"p.Arg1014Ter", "p.Arg1014Ter"},
	}
	for _, tt := range tests {
		c, err := ParseProtein(tt.in)
		require.NoError(t, err, tt.in)
		assert.True(t, c.Stop, tt.in)
		assert.Equal(t, tt.want, c.Canonical(), tt.in)
	}
}

func TestParseProteinFrameshift(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"p.Arg534GlyfsTer8", "p.Arg534GlyfsTer8"},
		{"p.Arg534Glyfs*8", "p.Arg534GlyfsTer8"},
		{"p.Pro632fs", "p.Pro632fs"},
	}
	for _, tt := range tests {
		c, err := ParseProtein(tt.in)
		require.NoError(t, err, tt.in)
		assert.True(t, c.Frameshift, tt.in)
		assert.Equal(t, tt.want, c.Canonical(), tt.in)
	}
}

func TestParseProteinCaseFolding(t *testing.T) {
	c, err := ParseProtein("p.ARG528HIS")
	require.NoError(t, err)
	assert.Equal(t, "p.Arg528His", c.Canonical())
}

func TestParseProteinRejectsMalformed(t *testing.T) {
	malformed := []string{
		"Arg528His",    // Präfix fehlt
		"p.R528H",      // Ein-Buchstaben-Codes
		"p.Arg528",     // Alt fehlt
		"p.Xyz528His",  // unbekannte Referenz-AS
		"p.Arg528Xyz",  // unbekannte Alt-AS
		"p.Arg0His",    // Position 0
		"p.ArgHis",     // Position fehlt
		"p.Arg528del",  // nicht unterstützte Klasse
		"",
	}
	for _, in := range malformed {
		_, err := ParseProtein(in)
		assert.Error(t, err, "expected error for %q", in)
	}
}

func TestFromSingleLetter(t *testing.T) {
	got, err := FromSingleLetter('A', 561, 'V')
	require.NoError(t, err)
	assert.Equal(t, "p.Ala561Val", got)

	got, err = FromSingleLetter('Y', 54, '*')
	require.NoError(t, err)
	assert.Equal(t, "p.Tyr54Ter", got)

	_, err = FromSingleLetter('X', 10, 'V')
	assert.Error(t, err)

	_, err = FromSingleLetter('A', 0, 'V')
	assert.Error(t, err)
}

func TestNormalizeCoding(t *testing.T) {
	valid := []string{
		"c.1682G>A",
		"c.123+1G>A",
		"c.456-2A>G",
		"c.-45C>T",
		"c.*12C>T",
		"c.453delC",
		"c.453_455del",
		"c.78dupT",
		"c.78_79insGA",
		"c.100_102delinsTG",
	}
	for _, in := range valid {
		got, err := NormalizeCoding(in)
		require.NoError(t, err, in)
		assert.Equal(t, in, got, in)
	}

	malformed := []string{
		"1682G>A",     // Präfix fehlt
		"c.1682G>",    // Alt-Base fehlt
		"c.1682g>a",   // kleingeschriebene Basen
		"c.G>A",       // Position fehlt
		"c.1682G>A junk",
		"",
	}
	for _, in := range malformed {
		_, err := NormalizeCoding(in)
		assert.Error(t, err, "expected error for %q", in)
	}
}
