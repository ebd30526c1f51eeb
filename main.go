package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	api "mailatlas-backend/cmd/api"
	grantdomain "mailatlas-backend/internal/grant/domain"
	grantRepo "mailatlas-backend/internal/grant/repository"
	ingestdomain "mailatlas-backend/internal/ingest/domain"
	ingestRepo "mailatlas-backend/internal/ingest/repository"
	"mailatlas-backend/internal/ingest/usecase"
	"mailatlas-backend/pkg/ai"
	"mailatlas-backend/pkg/config"
	"mailatlas-backend/pkg/database"
	"mailatlas-backend/pkg/gmail"
	"mailatlas-backend/pkg/imap"
	"mailatlas-backend/pkg/logger"
	"mailatlas-backend/pkg/queue"
	"mailatlas-backend/pkg/secrets"
	"mailatlas-backend/pkg/vectorindex"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel)

	db, err := database.NewPostgresConnection(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	if err := db.AutoMigrate(
		&grantdomain.Grant{},
		&ingestdomain.SyncJob{},
		&ingestdomain.DayNote{},
		&ingestdomain.Checkpoint{},
		&ingestdomain.RollupSummary{},
		&ingestdomain.MessageContent{},
		&ingestdomain.AttachmentBlob{},
	); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	box, err := secrets.NewBox(cfg.EncryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid encryption key")
	}

	grants := grantRepo.NewGrantRepository(db)
	checkpoints := ingestRepo.NewCheckpointRepository(db)
	notes := ingestRepo.NewDayNoteRepository(db)
	jobs := ingestRepo.NewJobRepository(db)
	summaries := ingestRepo.NewSummaryRepository(db)
	contents := ingestRepo.NewContentRepository(db)

	textService, err := ai.NewTextService(ai.Config{
		Provider:      ai.ProviderType(cfg.AIProvider),
		GeminiAPIKey:  cfg.GeminiAPIKey,
		OllamaBaseURL: cfg.OllamaBaseURL,
		OllamaModel:   cfg.OllamaModel,
		EmbeddingDim:  cfg.EmbeddingDim,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize AI provider")
	}
	sparseEncoder := ai.NewSparseEncoder()

	index, err := vectorindex.NewClient(vectorindex.Config{
		Host:         cfg.QdrantHost,
		Port:         cfg.QdrantPort,
		APIKey:       cfg.QdrantAPIKey,
		UseTLS:       cfg.QdrantUseTLS,
		EmbeddingDim: cfg.EmbeddingDim,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to vector index")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	q, err := queue.NewPubSubClient(ctx, cfg.GoogleProjectID, cfg.PubSubTopic, cfg.GoogleCredentials, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to pubsub")
	}
	defer q.Close()

	// Refreshed OAuth tokens are re-encrypted before they go back to the
	// grant record.
	persistTokens := func(grantID, accessToken, refreshToken string) error {
		sealedAccess, err := box.Seal(accessToken)
		if err != nil {
			return err
		}
		sealedRefresh := ""
		if refreshToken != "" {
			if sealedRefresh, err = box.Seal(refreshToken); err != nil {
				return err
			}
		}
		return grants.UpdateTokens(grantID, sealedAccess, sealedRefresh)
	}

	providers := map[string]ingestdomain.MailProvider{
		grantdomain.ProviderGmail: gmail.NewProvider(cfg.GoogleClientID, cfg.GoogleClientSecret, box, persistTokens, log),
		grantdomain.ProviderIMAP:  imap.NewProvider(box, log),
	}

	rollups := usecase.NewRollupEngine(notes, summaries, textService, sparseEncoder, index, cfg.SummaryThreshold, log)
	worker := usecase.NewWorker(usecase.WorkerConfig{
		Grants:            grants,
		Providers:         providers,
		Text:              textService,
		Sparse:            sparseEncoder,
		Index:             index,
		Queue:             q,
		Rollups:           rollups,
		Checkpoints:       checkpoints,
		Notes:             notes,
		Jobs:              jobs,
		Contents:          contents,
		PageSize:          cfg.PageSize,
		ContinuationDelay: cfg.ContinuationDelay,
		SummaryThreshold:  cfg.SummaryThreshold,
		Logger:            log,
	})
	scheduler := usecase.NewScheduler(checkpoints, jobs, q, cfg.LookbackDays, log)

	go func() {
		if err := q.Subscribe(ctx, worker.HandleJob); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("queue receiver stopped")
			stop()
		}
	}()

	handler := api.NewHandler(scheduler, jobs, grants, cfg.MaxMessages)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("server starting")
		if err := handler.Start(":" + cfg.Port); err != nil {
			log.Error().Err(err).Msg("server stopped")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := handler.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server shutdown incomplete")
	}
	os.Exit(0)
}
