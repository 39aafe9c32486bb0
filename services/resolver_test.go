package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"variant-hand/database"
	"variant-hand/models"
)

// newTestStore öffnet einen Store über einer frischen In-Memory-SQLite.
// Der rohe DB-Handle kommt mit zurück, damit Tests persistierte Zeilen
// direkt nachladen können.
func newTestStore(t *testing.T) (*database.Store, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.VariantMissense{},
		&models.VariantLoF{},
		&models.Gene{},
		&models.IngestRun{},
	))
	return database.NewStore(db, zap.NewNop()), db
}

func strPtr(v string) *string { return &v }
func int64Ptr(v int64) *int64 { return &v }

// kcnh2Identity trägt alle drei Schlüsselräume derselben Variante.
func kcnh2Identity() models.Identity {
	return models.Identity{
		Gene:        "KCNH2",
		HGVSp:       strPtr("p.Arg528His"),
		HGVSc:       strPtr("c.1583G>A"),
		Chromosome:  strPtr("7"),
		Position:    int64Ptr(150952046),
		Ref:         strPtr("C"),
		Alt:         strPtr("T"),
		GenomeBuild: strPtr("GRCh38"),
	}
}

func TestResolveMissIsNilWithoutError(t *testing.T) {
	store, _ := newTestStore(t)

	row, err := NewKeyResolver(store).Resolve(&NormalizedRecord{
		Source:    "alphamissense",
		Partition: models.PartitionMissense,
		Identity:  kcnh2Identity(),
	})
	require.NoError(t, err)
	assert.Nil(t, row)
}

func TestResolveAgreeingKeyspaces(t *testing.T) {
	store, _ := newTestStore(t)
	created, err := store.CreateVariant(models.PartitionMissense, kcnh2Identity(), nil, nil)
	require.NoError(t, err)

	// Alle drei Schlüssel zeigen auf dieselbe Zeile: kein Konflikt.
	row, err := NewKeyResolver(store).Resolve(&NormalizedRecord{
		Source:    "clinvar",
		Partition: models.PartitionMissense,
		Identity:  kcnh2Identity(),
	})
	require.NoError(t, err)
	require.NotNil(t, row)
	assert.Equal(t, created.ID, row.ID)
}

func TestResolveEachKeyspaceAlone(t *testing.T) {
	store, _ := newTestStore(t)
	created, err := store.CreateVariant(models.PartitionMissense, kcnh2Identity(), nil, nil)
	require.NoError(t, err)

	cases := map[string]models.Identity{
		"protein": {Gene: "KCNH2", HGVSp: strPtr("p.Arg528His")},
		"genomic": {Gene: "KCNH2", Chromosome: strPtr("7"), Position: int64Ptr(150952046),
			Ref: strPtr("C"), Alt: strPtr("T"), GenomeBuild: strPtr("GRCh38")},
		"coding": {Gene: "KCNH2", HGVSc: strPtr("c.1583G>A")},
	}
	for name, id := range cases {
		t.Run(name, func(t *testing.T) {
			row, err := NewKeyResolver(store).Resolve(&NormalizedRecord{
				Source:    "clinvar",
				Partition: models.PartitionMissense,
				Identity:  id,
			})
			require.NoError(t, err)
			require.NotNil(t, row)
			assert.Equal(t, created.ID, row.ID)
		})
	}
}

func TestResolveCrossKeyspaceConflict(t *testing.T) {
	store, _ := newTestStore(t)

	// Zeile A nur über den Protein-Schlüssel, Zeile B nur über das Tupel.
	rowA, err := store.CreateVariant(models.PartitionMissense,
		models.Identity{Gene: "KCNH2", HGVSp: strPtr("p.Arg528His")}, nil, nil)
	require.NoError(t, err)
	rowB, err := store.CreateVariant(models.PartitionMissense,
		models.Identity{Gene: "KCNH2", Chromosome: strPtr("7"), Position: int64Ptr(150952046),
			Ref: strPtr("C"), Alt: strPtr("T"), GenomeBuild: strPtr("GRCh38")}, nil, nil)
	require.NoError(t, err)

	_, err = NewKeyResolver(store).Resolve(&NormalizedRecord{
		Source:    "gnomad",
		Partition: models.PartitionMissense,
		Identity:  kcnh2Identity(),
	})

	var conflict *KeyConflict
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, rowA.ID, conflict.FirstID)
	assert.Equal(t, KeyspaceProtein, conflict.FirstKey)
	assert.Equal(t, rowB.ID, conflict.SecondID)
	assert.Equal(t, KeyspaceGenomic, conflict.SecondKey)
}

func TestResolveStaysInPartition(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.CreateVariant(models.PartitionMissense,
		models.Identity{Gene: "KCNH2", HGVSp: strPtr("p.Arg528His")}, nil, nil)
	require.NoError(t, err)

	// Derselbe Protein-Schlüssel in der LoF-Partition trifft nichts.
	row, err := NewKeyResolver(store).Resolve(&NormalizedRecord{
		Source:    "clinvar",
		Partition: models.PartitionLoF,
		Identity:  models.Identity{Gene: "KCNH2", HGVSp: strPtr("p.Arg528His"), VariantType: models.TypeNonsense},
	})
	require.NoError(t, err)
	assert.Nil(t, row)
}
