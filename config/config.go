package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// Referenz-Build des Stores. Datensätze mit abweichendem Build werden
	// beim Ingest abgewiesen, nie stillschweigend umgerechnet.
	GenomeBuild string `envconfig:"GENOME_BUILD" default:"GRCh38"`

	// Kommagetrennte Gen-Symbole, die beim Ingest abgearbeitet werden.
	Genes string `envconfig:"GENES" default:"KCNH2,KCNQ1,SCN5A,RYR2,CACNA1C,KCNJ2,KCNE1,KCNE2"`

	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"0 0 * * *"`

	// Lokale Datenextrakte (AlphaMissense und ClinVar verteilen Bulk-Dateien,
	// keine Abfrage-API).
	AlphamissensePath  string `envconfig:"ALPHAMISSENSE_PATH" default:"data/AlphaMissense_aa_substitutions.tsv.gz"`
	RevelPath          string `envconfig:"REVEL_PATH" default:"data/revel_with_transcript_ids.csv"`
	ClinvarSummaryPath string `envconfig:"CLINVAR_SUMMARY_PATH" default:"data/variant_summary.txt.gz"`

	CADDBaseURL string `envconfig:"CADD_BASE_URL" default:"https://cadd.gs.washington.edu/api/v1.0"`
	CADDVersion string `envconfig:"CADD_VERSION" default:"GRCh38-v1.6"`

	GnomadAPIURL  string `envconfig:"GNOMAD_API_URL" default:"https://gnomad.broadinstitute.org/api"`
	GnomadDataset string `envconfig:"GNOMAD_DATASET" default:"gnomad_r4"`

	// Optionale JSON-Datei, die die eingebaute Trust-Rang-Tabelle ersetzt.
	TrustRanksFile string `envconfig:"TRUST_RANKS_FILE"`

	DebugMaxRecords int `envconfig:"DEBUG_MAX_RECORDS" default:"30"`

	StratoS3Key    string `envconfig:"STRATO_S3_KEY" required:"true"`
	StratoS3Secret string `envconfig:"STRATO_S3_SECRET" required:"true"`
	StratoS3URL    string `envconfig:"STRATO_S3_URL" required:"true"`
	StratoS3Region string `envconfig:"STRATO_S3_REGION" required:"true"`
	StratoS3Bucket string `envconfig:"STRATO_S3_BUCKET" required:"true"`

	// Provider-Konfiguration
	EnabledProviders string `envconfig:"ENABLED_PROVIDERS" default:"clinvar,gnomad"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// GeneList zerlegt GENES in bereinigte Symbole.
func (c *Config) GeneList() []string {
	var genes []string
	for _, g := range strings.Split(c.Genes, ",") {
		if g = strings.TrimSpace(g); g != "" {
			genes = append(genes, strings.ToUpper(g))
		}
	}
	return genes
}

// ProviderEnabled prüft, ob eine Quelle in ENABLED_PROVIDERS steht.
func (c *Config) ProviderEnabled(name string) bool {
	for _, p := range strings.Split(c.EnabledProviders, ",") {
		if strings.EqualFold(strings.TrimSpace(p), name) {
			return true
		}
	}
	return false
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	err := envconfig.Process("", &c)
	return &c, err
}
