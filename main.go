package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
	"variant-hand/config"
	"variant-hand/database"
	"variant-hand/models"
	"variant-hand/providers"
	"variant-hand/providers/alphamissense"
	"variant-hand/providers/cadd"
	"variant-hand/providers/clinvar"
	"variant-hand/providers/gnomad"
	"variant-hand/providers/revel"
	"variant-hand/services"
	"variant-hand/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	variantsCreatedCounter prometheus.Counter
	variantsUpdatedCounter prometheus.Counter
	recordsSkippedCounter  prometheus.Counter
	keyConflictsCounter    prometheus.Counter
	ingestErrorsCounter    prometheus.Counter
)

func init() {
	variantsCreatedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "variants_created_total",
		Help: "Total number of new variant rows created by ingest batches.",
	})
	variantsUpdatedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "variants_updated_total",
		Help: "Total number of variant rows updated by ingest batches.",
	})
	recordsSkippedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingest_records_skipped_total",
		Help: "Total number of ingest records that produced no change.",
	})
	keyConflictsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingest_key_conflicts_total",
		Help: "Total number of records held back because their keys point at different rows.",
	})
	ingestErrorsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ingest_errors_total",
		Help: "Total number of per-record errors across all ingest batches.",
	})
	prometheus.MustRegister(
		variantsCreatedCounter,
		variantsUpdatedCounter,
		recordsSkippedCounter,
		keyConflictsCounter,
		ingestErrorsCounter,
	)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Setup Database Connection
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		logging.Fatal("Failed to connect to variant database", zap.Error(err))
	}
	logging.Info("Successfully connected to variant database.")

	// Auto-Migration
	if gin.Mode() == gin.DebugMode {
		logging.Info("Debug mode detected. Dropping tables for fresh start.")
		db.Migrator().DropTable(&models.VariantMissense{}, &models.VariantLoF{}, &models.Gene{}, &models.IngestRun{})
	}
	logging.Info("Running database auto-migration...")
	db.AutoMigrate(&models.VariantMissense{}, &models.VariantLoF{}, &models.Gene{}, &models.IngestRun{})

	// Seeding
	seedGeneRegistry(db, logging)

	store := database.NewStore(db, logging)

	// Setup Providers
	enabledProviderNames := strings.Split(cfg.EnabledProviders, ",")
	var enabledProviders []providers.Provider
	for _, name := range enabledProviderNames {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "alphamissense":
			enabledProviders = append(enabledProviders, alphamissense.NewFetcher(cfg, logging))
		case "revel":
			enabledProviders = append(enabledProviders, revel.NewFetcher(cfg, logging))
		case "cadd":
			// CADD bewertet nur bereits gespeicherte Koordinaten; der Store
			// liefert sie als CoordinateSource.
			enabledProviders = append(enabledProviders, cadd.NewFetcher(cfg, store, logging))
		case "clinvar":
			enabledProviders = append(enabledProviders, clinvar.NewFetcher(cfg, logging))
		case "gnomad":
			enabledProviders = append(enabledProviders, gnomad.NewFetcher(cfg, logging))
		default:
			logging.Warn("Unknown provider in config", zap.String("provider_name", name))
		}
	}
	if len(enabledProviders) == 0 {
		logging.Fatal("No valid providers enabled. Check ENABLED_PROVIDERS in .env")
	}
	logging.Info("Active providers loaded", zap.Strings("providers", enabledProviderNames))

	// Setup Services
	s3Client, err := storage.NewS3Client(cfg)
	if err != nil {
		logging.Fatal("S3 client creation failed", zap.Error(err))
	}
	ingestService, err := services.NewIngestService(cfg, db, s3Client, logging, enabledProviders)
	if err != nil {
		logging.Fatal("Ingest service creation failed", zap.Error(err))
	}
	ingestService.OnReport = func(report *services.BatchReport) {
		variantsCreatedCounter.Add(float64(report.Created))
		variantsUpdatedCounter.Add(float64(report.Updated))
		recordsSkippedCounter.Add(float64(report.Skipped))
		keyConflictsCounter.Add(float64(report.Conflicts))
		ingestErrorsCounter.Add(float64(len(report.Errors)))
	}

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Setup Routes
	setupVariantRoutes(router, db, logging)
	setupGeneRoutes(router, db, logging)
	setupIngestRoutes(router, ingestService)
	setupStatsRoutes(router, db, logging)
	setupExportRoutes(router, ingestService)

	// Setup Cron
	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled ingest job...")
		count, err := ingestService.RunForAllGenes(context.Background())
		if err != nil {
			logging.Error("Cron job failed", zap.Error(err))
		} else {
			logging.Info("Cron job completed", zap.Int("new_variants", count))
		}
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func setupVariantRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/variants")

	// Gen-gebundene Listen, eine je Partition
	rg.GET("/missense", func(c *gin.Context) {
		gene := strings.ToUpper(strings.TrimSpace(c.Query("gene")))
		if gene == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'gene' is required"})
			return
		}
		var variants []models.VariantMissense
		if err := db.Where("gene = ?", gene).Order("position").Find(&variants).Error; err != nil {
			log.Error("Database query for missense variants failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, variants)
	})

	rg.GET("/lof", func(c *gin.Context) {
		gene := strings.ToUpper(strings.TrimSpace(c.Query("gene")))
		if gene == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'gene' is required"})
			return
		}
		var variants []models.VariantLoF
		if err := db.Where("gene = ?", gene).Order("position").Find(&variants).Error; err != nil {
			log.Error("Database query for lof variants failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, variants)
	})

	// Body-gesteuerte Abfragen für komplexere Filter
	rg.POST("/missense/query", func(c *gin.Context) {
		type MissenseQuery struct {
			Gene             string   `json:"gene"`
			MinAlphamissense *float64 `json:"min_alphamissense_score"`
			MinRevel         *float64 `json:"min_revel_score"`
			MinCaddPhred     *float64 `json:"min_cadd_phred"`
			MaxGnomadAF      *float64 `json:"max_gnomad_af"`
			Significance     string   `json:"clinvar_significance"`
			MinStars         *int     `json:"min_clinvar_stars"`
			Limit            int      `json:"limit"`
		}

		var req MissenseQuery
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		query := db.Model(&models.VariantMissense{})

		if req.Gene != "" {
			query = query.Where("gene = ?", strings.ToUpper(req.Gene))
		}
		if req.MinAlphamissense != nil {
			query = query.Where("alphamissense_score >= ?", *req.MinAlphamissense)
		}
		if req.MinRevel != nil {
			query = query.Where("revel_score >= ?", *req.MinRevel)
		}
		if req.MinCaddPhred != nil {
			query = query.Where("cadd_phred >= ?", *req.MinCaddPhred)
		}
		if req.MaxGnomadAF != nil {
			// Varianten ohne Populationsfrequenz gelten als selten und
			// bleiben im Ergebnis.
			query = query.Where("gnomad_af <= ? OR gnomad_af IS NULL", *req.MaxGnomadAF)
		}
		if req.Significance != "" {
			query = query.Where("clinvar_significance ILIKE ?", "%"+req.Significance+"%")
		}
		if req.MinStars != nil {
			query = query.Where("clinvar_stars >= ?", *req.MinStars)
		}
		if req.Limit > 0 {
			query = query.Limit(req.Limit)
		}

		var variants []models.VariantMissense
		if err := query.Order("alphamissense_score desc").Find(&variants).Error; err != nil {
			log.Error("Database query for missense variants failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, variants)
	})

	rg.POST("/lof/query", func(c *gin.Context) {
		type LoFQuery struct {
			Gene         string   `json:"gene"`
			VariantType  string   `json:"variant_type"`
			Significance string   `json:"clinvar_significance"`
			MaxGnomadAF  *float64 `json:"max_gnomad_af"`
			NMDEscape    *bool    `json:"nmd_escape"`
			MinGenePLI   *float64 `json:"min_gene_pli"`
			Limit        int      `json:"limit"`
		}

		var req LoFQuery
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
			return
		}

		query := db.Model(&models.VariantLoF{})

		if req.Gene != "" {
			query = query.Where("gene = ?", strings.ToUpper(req.Gene))
		}
		if req.VariantType != "" {
			query = query.Where("variant_type = ?", req.VariantType)
		}
		if req.Significance != "" {
			query = query.Where("clinvar_significance ILIKE ?", "%"+req.Significance+"%")
		}
		if req.MaxGnomadAF != nil {
			query = query.Where("gnomad_af <= ? OR gnomad_af IS NULL", *req.MaxGnomadAF)
		}
		if req.NMDEscape != nil {
			query = query.Where("nmd_escape = ?", *req.NMDEscape)
		}
		if req.MinGenePLI != nil {
			query = query.Where("gene_pli >= ?", *req.MinGenePLI)
		}
		if req.Limit > 0 {
			query = query.Limit(req.Limit)
		}

		var variants []models.VariantLoF
		if err := query.Order("position").Find(&variants).Error; err != nil {
			log.Error("Database query for lof variants failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, variants)
	})
}

func setupGeneRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	rg := router.Group("/genes")

	rg.GET("/", func(c *gin.Context) {
		var genes []models.Gene
		if err := db.Order("symbol").Find(&genes).Error; err != nil {
			log.Error("Database query for genes failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, genes)
	})

	rg.GET("/:symbol", func(c *gin.Context) {
		symbol := strings.ToUpper(c.Param("symbol"))
		var gene models.Gene
		if err := db.Where("symbol = ?", symbol).First(&gene).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "gene not found"})
				return
			}
			log.Error("Database query for gene failed", zap.String("symbol", symbol), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, gene)
	})
}

func setupIngestRoutes(router *gin.Engine, ingestService *services.IngestService) {
	rg := router.Group("/ingest")

	rg.POST("/all", func(c *gin.Context) {
		var req struct {
			Genes []string `json:"genes"`
		}
		// Der Body ist optional; ohne Body läuft die konfigurierte Gen-Liste.
		_ = c.ShouldBindJSON(&req)

		go func() {
			if len(req.Genes) > 0 {
				count := 0
				for _, symbol := range req.Genes {
					n, err := ingestService.RunForGene(context.Background(), strings.ToUpper(strings.TrimSpace(symbol)))
					count += n
					if err != nil {
						ingestService.Logger.Error("Async ingest for gene failed", zap.String("gene", symbol), zap.Error(err))
					}
				}
				ingestService.Logger.Info("Async ingest completed", zap.Int("new_variants", count))
				return
			}
			count, err := ingestService.RunForAllGenes(context.Background())
			if err != nil {
				ingestService.Logger.Error("Async ingest failed", zap.Error(err))
			} else {
				ingestService.Logger.Info("Async ingest completed", zap.Int("new_variants", count))
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": "Ingest for all sources triggered."})
	})

	rg.POST("/source/:name", func(c *gin.Context) {
		name := strings.ToLower(c.Param("name"))
		known := false
		for _, p := range ingestService.Providers {
			if p.Name() == name {
				known = true
				break
			}
		}
		if !known {
			c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("unknown or disabled source %q", name)})
			return
		}

		go func() {
			count, err := ingestService.RunSource(context.Background(), name)
			if err != nil {
				ingestService.Logger.Error("Async source ingest failed", zap.String("source", name), zap.Error(err))
			} else {
				ingestService.Logger.Info("Async source ingest completed", zap.String("source", name), zap.Int("new_variants", count))
			}
		}()
		c.JSON(http.StatusAccepted, gin.H{"message": fmt.Sprintf("Ingest for source %s triggered.", name)})
	})

	rg.GET("/runs", func(c *gin.Context) {
		limit := 50
		if v := c.Query("limit"); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				limit = n
			}
		}

		query := ingestService.DB.Model(&models.IngestRun{})
		if source := c.Query("source"); source != "" {
			query = query.Where("source = ?", strings.ToLower(source))
		}
		if gene := c.Query("gene"); gene != "" {
			query = query.Where("gene = ?", strings.ToUpper(gene))
		}

		var runs []models.IngestRun
		if err := query.Order("started_at desc").Limit(limit).Find(&runs).Error; err != nil {
			ingestService.Logger.Error("Database query for ingest runs failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, runs)
	})

	rg.GET("/runs/:run_id", func(c *gin.Context) {
		var run models.IngestRun
		if err := ingestService.DB.Where("run_id = ?", c.Param("run_id")).First(&run).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "ingest run not found"})
				return
			}
			ingestService.Logger.Error("Database query for ingest run failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, run)
	})
}

// setupStatsRoutes liefert je Gen und Partition die Zeilen-Zählung und die
// Abdeckung der wichtigsten Evidenz-Spalten (COUNT über NULL-bare Spalten).
func setupStatsRoutes(router *gin.Engine, db *gorm.DB, log *zap.Logger) {
	router.GET("/stats", func(c *gin.Context) {
		type missenseStat struct {
			Gene          string `json:"gene"`
			Total         int64  `json:"total"`
			Alphamissense int64  `json:"with_alphamissense"`
			Revel         int64  `json:"with_revel"`
			Cadd          int64  `json:"with_cadd"`
			Clinvar       int64  `json:"with_clinvar"`
			Gnomad        int64  `json:"with_gnomad"`
		}
		var missense []missenseStat
		if err := db.Model(&models.VariantMissense{}).
			Select("gene, count(*) as total, count(alphamissense_score) as alphamissense, count(revel_score) as revel, count(cadd_phred) as cadd, count(clinvar_significance) as clinvar, count(gnomad_af) as gnomad").
			Group("gene").Order("gene").Scan(&missense).Error; err != nil {
			log.Error("Stats query for missense failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		type lofStat struct {
			Gene      string `json:"gene"`
			Total     int64  `json:"total"`
			Clinvar   int64  `json:"with_clinvar"`
			Gnomad    int64  `json:"with_gnomad"`
			Loftee    int64  `json:"with_loftee"`
			Truncated int64  `json:"with_truncation"`
		}
		var lof []lofStat
		if err := db.Model(&models.VariantLoF{}).
			Select("gene, count(*) as total, count(clinvar_significance) as clinvar, count(gnomad_af) as gnomad, count(loftee_confidence) as loftee, count(truncation_position) as truncated").
			Group("gene").Order("gene").Scan(&lof).Error; err != nil {
			log.Error("Stats query for lof failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		type runStat struct {
			Status string `json:"status"`
			Count  int64  `json:"count"`
		}
		var runs []runStat
		if err := db.Model(&models.IngestRun{}).
			Select("status, count(*) as count").
			Group("status").Scan(&runs).Error; err != nil {
			log.Error("Stats query for ingest runs failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"missense": missense,
			"lof":      lof,
			"runs":     runs,
		})
	})
}

func setupExportRoutes(router *gin.Engine, ingestService *services.IngestService) {
	rg := router.Group("/export")

	rg.POST("/gene/:symbol", func(c *gin.Context) {
		symbol := strings.ToUpper(c.Param("symbol"))
		link, err := ingestService.ExportGene(c.Request.Context(), symbol)
		if err != nil {
			if strings.Contains(err.Error(), "no variants stored") {
				c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
				return
			}
			ingestService.Logger.Error("Export failed", zap.String("gene", symbol), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "export failed"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"gene": symbol, "s3_link": link})
	})
}

// seedGeneRegistry legt das Long-QT-Gen-Panel an, falls die Registry leer
// ist. Proteinlängen nach UniProt, kanonische Transkripte nach Ensembl.
func seedGeneRegistry(db *gorm.DB, logger *zap.Logger) {
	var count int64
	db.Model(&models.Gene{}).Count(&count)
	if count > 0 {
		return
	}
	genes := []models.Gene{
		{Symbol: "KCNH2", UniprotID: "Q12809", CanonicalTranscript: "ENST00000262186", ProteinLength: 1159},
		{Symbol: "KCNQ1", UniprotID: "P51787", CanonicalTranscript: "ENST00000155840", ProteinLength: 676},
		{Symbol: "SCN5A", UniprotID: "Q14524", CanonicalTranscript: "ENST00000333535", ProteinLength: 2016},
		{Symbol: "RYR2", UniprotID: "Q92736", CanonicalTranscript: "ENST00000366574", ProteinLength: 4967},
		{Symbol: "CACNA1C", UniprotID: "Q13936", CanonicalTranscript: "ENST00000399655", ProteinLength: 2221},
		{Symbol: "KCNJ2", UniprotID: "P63252", CanonicalTranscript: "ENST00000243457", ProteinLength: 427},
		{Symbol: "KCNE1", UniprotID: "P15382", CanonicalTranscript: "ENST00000399286", ProteinLength: 129},
		{Symbol: "KCNE2", UniprotID: "Q9Y6J6", CanonicalTranscript: "ENST00000290310", ProteinLength: 123},
	}
	if err := db.Create(&genes).Error; err != nil {
		logger.Warn("Failed to seed gene registry", zap.Error(err))
	} else {
		logger.Info("Gene registry seeded.", zap.Int("genes", len(genes)))
	}
}
