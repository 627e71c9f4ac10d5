package main

import (
	"context"
	"fmt"

	"github.com/nerrad567/beacon-notify-core/internal/api"
	"github.com/nerrad567/beacon-notify-core/internal/audit"
	"github.com/nerrad567/beacon-notify-core/internal/auth"
	"github.com/nerrad567/beacon-notify-core/internal/beacon"
	"github.com/nerrad567/beacon-notify-core/internal/infrastructure/config"
	"github.com/nerrad567/beacon-notify-core/internal/infrastructure/database"
	"github.com/nerrad567/beacon-notify-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/beacon-notify-core/internal/infrastructure/logging"
	"github.com/nerrad567/beacon-notify-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/beacon-notify-core/internal/infrastructure/redis"
	"github.com/nerrad567/beacon-notify-core/internal/realtime"
)

// runServe is the service lifecycle, separated from the CLI for testability.
// Deferred Close calls run in reverse order of startup.
func runServe(ctx context.Context, configPath string) error {
	log := logging.Default()
	log.Info("starting Beacon Notify",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	db, err := openDatabase(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()

	users := auth.NewUserRepository(db.DB)
	beacons := beacon.NewSQLiteRepository(db.DB)
	auditLog := audit.NewSQLiteRepository(db.DB)

	checks := map[string]api.HealthChecker{"database": db}

	registry := realtime.NewRegistry()
	registry.SetLogger(log)

	// Channel layer (optional)
	var fanout realtime.Fanout = realtime.NewLocalFanout(registry)
	if cfg.Redis.Enabled {
		redisClient, redisErr := redis.Connect(ctx, cfg.Redis)
		if redisErr != nil {
			return fmt.Errorf("connecting to Redis: %w", redisErr)
		}
		defer func() {
			log.Info("closing Redis connection")
			if closeErr := redisClient.Close(); closeErr != nil {
				log.Error("error closing Redis", "error", closeErr)
			}
		}()

		channelFanout := realtime.NewChannelFanout(redisClient, registry)
		channelFanout.SetLogger(log)
		if startErr := channelFanout.Start(ctx); startErr != nil {
			return fmt.Errorf("subscribing to Redis channel layer: %w", startErr)
		}
		fanout = channelFanout
		checks["redis"] = redisClient
		log.Info("Redis channel layer connected", "addr", cfg.Redis.Addr, "prefix", cfg.Redis.ChannelPrefix)
	} else {
		log.Info("Redis disabled, broadcasting locally")
	}

	routerDeps := realtime.RouterDeps{
		Store:  beacons,
		Fanout: fanout,
		Audit:  auditLog,
		Logger: log,
	}

	// Telemetry (optional)
	if cfg.InfluxDB.Enabled {
		influxClient, influxErr := influxdb.Connect(cfg.InfluxDB)
		if influxErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", influxErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		routerDeps.Telemetry = influxClient
		checks["influxdb"] = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// MQTT event sink (optional)
	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT)
		if err != nil {
			return fmt.Errorf("connecting to MQTT: %w", err)
		}
		defer func() {
			log.Info("disconnecting from MQTT")
			if closeErr := mqttClient.Close(); closeErr != nil {
				log.Error("error closing MQTT", "error", closeErr)
			}
		}()
		mqttClient.SetLogger(log)
		mqttClient.SetOnConnect(func() {
			log.Info("MQTT reconnected")
		})
		mqttClient.SetOnDisconnect(func(err error) {
			log.Warn("MQTT disconnected", "error", err)
		})

		sink := realtime.NewMQTTEventSink(mqttClient, 0)
		sink.SetLogger(log)
		sink.Start()
		defer sink.Close()

		routerDeps.Events = sink
		checks["mqtt"] = mqttClient
		log.Info("MQTT connected",
			"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
			"client_id", cfg.MQTT.Broker.ClientID,
		)
	} else {
		log.Info("MQTT disabled")
	}

	if cfg.Notifications.Enabled {
		routerDeps.Rule = realtime.NewNotificationRule(
			cfg.Notifications.NearDistance,
			cfg.Notifications.HighPriorityDistance,
			cfg.GetNotificationCooldown(),
		)
		log.Info("proximity notifications enabled",
			"near_distance", cfg.Notifications.NearDistance,
			"high_priority_distance", cfg.Notifications.HighPriorityDistance,
		)
	}

	router := realtime.NewRouter(routerDeps)

	if cfg.MQTT.Ingest {
		ingest := realtime.NewIngest(router, users)
		ingest.SetLogger(log)
		topic := mqtt.Topics{}.AllIngestProximity()
		if subErr := mqttClient.Subscribe(topic, byte(cfg.MQTT.QoS), ingest.HandleMessage); subErr != nil {
			return fmt.Errorf("subscribing to %s: %w", topic, subErr)
		}
		log.Info("MQTT proximity ingest enabled", "topic", topic)
	}

	handler := realtime.NewHandler(realtime.HandlerDeps{
		Config:        realtime.HandlerConfigFrom(cfg.WebSocket),
		Authenticator: auth.NewAuthenticator(cfg.Security.JWT.Secret, users),
		Registry:      registry,
		Router:        router,
		Audit:         auditLog,
		Logger:        log,
	})

	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Logger:   log,
		Realtime: handler,
		Registry: registry,
		DB:       db,
		Checks:   checks,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()

	if err := healthCheck(ctx, checks); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal",
		"address", server.Addr(),
		"instance_id", cfg.Service.InstanceID,
	)

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// loadConfig reads the configuration and builds the configured logger.
func loadConfig(path string) (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}

	log := logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", path,
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)
	return cfg, log, nil
}

// openDatabase opens SQLite and applies pending migrations.
func openDatabase(ctx context.Context, cfg *config.Config, log *logging.Logger) (*database.DB, error) {
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	log.Info("database connected", "path", cfg.Database.Path)

	if err := db.Migrate(ctx); err != nil {
		db.Close() //nolint:errcheck // already returning the migration error
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	log.Info("database migrations complete")
	return db, nil
}

// healthCheck runs every check and returns the first failure.
func healthCheck(ctx context.Context, checks map[string]api.HealthChecker) error {
	for name, checker := range checks {
		if err := checker.HealthCheck(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
