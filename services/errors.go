package services

import (
	"fmt"

	"variant-hand/models"
	"variant-hand/providers"
)

// Fehlerklassen, wie sie im Batch-Report und in ingest_runs.errors auftauchen.
const (
	ErrKindNormalization = "normalization"
	ErrKindKeyConflict   = "key_conflict"
	ErrKindBuildMismatch = "genome_build_mismatch"
	ErrKindDuplicateKey  = "duplicate_key"
	ErrKindStorage       = "storage"
)

// ErrorEntry ist ein einzelner Fehler eines Ingest-Laufs, mit genug Kontext
// (Quelle, Roh-Record, Grund), um den Datensatz manuell zu korrigieren und
// erneut einzuspielen.
type ErrorEntry struct {
	Kind   string           `json:"kind"`
	Source string           `json:"source"`
	Reason string           `json:"reason"`
	Record providers.Record `json:"record,omitempty"`
}

// NormalizationError: der Roh-Record lässt sich nicht auf eine speicherbare
// Variante reduzieren (fehlende oder fehlerhafte Identität, unbekanntes Feld,
// nicht koerzierbarer Wert). Wird pro Record gemeldet, nie automatisch erneut
// versucht.
type NormalizationError struct {
	Source string
	Field  string
	Reason string
	Record providers.Record
}

func (e *NormalizationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("normalization failed for source %s, field %s: %s", e.Source, e.Field, e.Reason)
	}
	return fmt.Sprintf("normalization failed for source %s: %s", e.Source, e.Reason)
}

// KeyConflict: ein Record zeigt über verschiedene Schlüsselräume auf zwei
// verschiedene gespeicherte Zeilen, oder widerspricht einem bereits gesetzten
// Identitätsfeld seiner Zielzeile. Beide Fälle halten den Record zurück; die
// betroffenen Zeilen bleiben unverändert. Ein automatischer Zeilen-Merge
// findet bewusst nicht statt.
type KeyConflict struct {
	Source    string
	Gene      string
	Partition models.Partition

	// Zwei Zeilen, zwei Schlüsselräume.
	FirstID   uint
	FirstKey  string
	SecondID  uint
	SecondKey string

	// Identitäts-Widerspruch innerhalb einer Zeile (FirstID): Field ist
	// gesetzt, Stored und Incoming benennen die beiden Werte.
	Field    string
	Stored   string
	Incoming string
}

func (e *KeyConflict) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("identity conflict on variant %d (%s/%s): field %s is %q, record says %q",
			e.FirstID, e.Gene, e.Partition, e.Field, e.Stored, e.Incoming)
	}
	return fmt.Sprintf("key conflict for %s/%s: %s key matches variant %d, %s key matches variant %d",
		e.Gene, e.Partition, e.FirstKey, e.FirstID, e.SecondKey, e.SecondID)
}

// GenomeBuildMismatchError: das Build des Records weicht vom konfigurierten
// Build des Stores ab. Liftover ist keine Aufgabe dieses Systems; der Record
// wird abgewiesen.
type GenomeBuildMismatchError struct {
	Source string
	Want   string
	Got    string
}

func (e *GenomeBuildMismatchError) Error() string {
	return fmt.Sprintf("genome build mismatch from source %s: store is %s, record is %s", e.Source, e.Want, e.Got)
}
