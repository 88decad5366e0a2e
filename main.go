package main

import (
	"context"
	"os"

	"github.com/fireflycare/firefly-BE/api"
	"github.com/fireflycare/firefly-BE/internal/cleanup"
	"github.com/fireflycare/firefly-BE/internal/db"
	"github.com/fireflycare/firefly-BE/internal/event"
	"github.com/fireflycare/firefly-BE/internal/mailer"
	"github.com/fireflycare/firefly-BE/internal/notifier"
	"github.com/fireflycare/firefly-BE/internal/util"
	"github.com/fireflycare/firefly-BE/internal/worker"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/rs/zerolog/log"

	_ "github.com/fireflycare/firefly-BE/docs"
)

//	@title			Firefly Notification API
//	@version		1.0.0
//	@description	Real-time notification delivery for the Firefly care coordination platform

//	@host		localhost:8080
//	@BasePath	/v1
//	@schemes	http https

//	@securityDefinitions.apikey	accessToken
//	@in							header
//	@name						Authorization
//	@description				Type "Bearer" followed by a space and JWT token.
func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configurations
	config, err := util.LoadConfig("./app.env")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config file 😣")
	}

	log.Info().Msg("configurations loaded successfully ✅")

	// Create connection pool
	connPool, err := pgxpool.New(context.Background(), config.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to validate db connection string 😣")
	}

	pingErr := connPool.Ping(context.Background())
	if pingErr != nil {
		log.Fatal().Err(pingErr).Msg("failed to connect to db 😣")
	}
	log.Info().Msg("connected to db ✅")

	store := db.NewStore(connPool)

	mailService, err := mailer.NewSMTPSender(config)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create mailer service 😣")
	}
	log.Info().Msg("mailer service created successfully ✅")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     config.RedisServerAddress,
		Password: "", // no password set
		DB:       0,  // use default DB
	})
	if err = redisClient.Ping(context.Background()).Err(); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis 😣")
	}
	log.Info().Msg("connected to redis ✅")

	redisOpt := asynq.RedisClientOpt{
		Addr: config.RedisServerAddress,
	}

	taskDistributor := worker.NewTaskDistributor(redisOpt)

	go runTaskProcessor(redisOpt, store, mailService)

	registry := event.NewRegistry()
	notifierService := notifier.NewService(store, registry, taskDistributor)

	cleaner, err := cleanup.NewCleaner(store)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create cleanup scheduler 😣")
	}
	if err = cleaner.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start cleanup scheduler 😣")
	}
	defer func() {
		if err := cleaner.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop cleanup scheduler")
		}
	}()
	log.Info().Msg("cleanup scheduler started successfully ✅")

	runHTTPServer(&config, store, registry, notifierService)
}

func runTaskProcessor(redisOpt asynq.RedisClientOpt, store db.Store, mailService mailer.EmailSender) {
	taskProcessor := worker.NewRedisTaskProcessor(redisOpt, store, mailService)

	log.Info().Msg("task processor started successfully ✅")
	if err := taskProcessor.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start task processor 😣")
	}
}

func runHTTPServer(config *util.Config, store db.Store, registry *event.Registry, notifierService *notifier.Service) {
	server, err := api.NewServer(store, config, registry, notifierService)

	if err != nil {
		log.Fatal().Err(err).Msg("failed to create HTTP server 😣")
	}

	err = server.Start(config.HTTPServerAddress)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start HTTP server 😣")
	}
}
