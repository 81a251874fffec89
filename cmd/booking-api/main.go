package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/jbarrault/cabinet-rdv/internal/availability"
	"github.com/jbarrault/cabinet-rdv/internal/booking"
	"github.com/jbarrault/cabinet-rdv/internal/calendar"
	"github.com/jbarrault/cabinet-rdv/internal/handlers"
	"github.com/jbarrault/cabinet-rdv/internal/notify"
	"github.com/jbarrault/cabinet-rdv/internal/outbox"
	"github.com/jbarrault/cabinet-rdv/internal/reminder"
	"github.com/jbarrault/cabinet-rdv/internal/storage"
	"github.com/jbarrault/cabinet-rdv/libs/config"
	"github.com/jbarrault/cabinet-rdv/libs/db"
	"github.com/jbarrault/cabinet-rdv/libs/httpx"
	"github.com/jbarrault/cabinet-rdv/libs/kafkax"
	otelx "github.com/jbarrault/cabinet-rdv/libs/otel"
	"github.com/jbarrault/cabinet-rdv/libs/runtime"
)

func loadCalendarCredentials(logger *slog.Logger) []byte {
	if raw := config.String("GOOGLE_CREDENTIALS_JSON", ""); raw != "" {
		return []byte(raw)
	}
	path := config.String("GOOGLE_CREDENTIALS_FILE", "")
	if path == "" {
		return nil
	}
	creds, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("calendar credentials file unreadable, running without calendar", "path", path, "err", err)
		return nil
	}
	return creds
}

func main() {
	_ = godotenv.Load()

	service := config.String("SERVICE_NAME", "booking-api")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	loc, err := time.LoadLocation(config.String("TIMEZONE", "Europe/Paris"))
	if err != nil {
		panic(err)
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}
	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	appts := storage.NewAppointmentRepository(pool)
	settings := storage.NewSettingsRepository(pool)
	outboxRepo := outbox.NewRepository(pool)

	calendarClient := calendar.New(
		logger,
		loadCalendarCredentials(logger),
		time.Minute,
		settings,
	)

	var mailer *notify.Mailer
	if smtpHost := config.String("SMTP_HOST", ""); smtpHost != "" {
		sender := notify.NewSMTPSender(smtpHost, config.String("SMTP_PORT", "1025"), config.String("SMTP_FROM", ""))
		mailer = notify.NewMailer(sender, config.String("PUBLIC_BASE_URL", "http://localhost:3000"))
	} else {
		logger.Warn("SMTP_HOST not set, emails disabled")
		mailer = notify.NewMailer(nil, "")
	}

	allocator := availability.NewAllocator(logger, appts, calendarClient)
	bookingSvc := booking.NewService(appts, outboxRepo, calendarClient, mailer, settings, logger, loc,
		storage.IsConflict, storage.IsNotFound)
	sweeper := reminder.NewSweeper(appts, outboxRepo, mailer, logger, loc)

	outboxPublisher := outbox.NewPublisher(pool, outboxRepo, logger, outbox.PublisherConfig{
		Brokers:   config.String("KAFKA_BROKERS", ""),
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	})
	go outboxPublisher.Run(ctx)

	jwtSecret, err := config.RequiredString("JWT_SECRET")
	if err != nil {
		panic(err)
	}
	adminCreds := handlers.AdminCredentials{
		Email:        config.String("ADMIN_EMAIL", ""),
		PasswordHash: config.String("ADMIN_PASSWORD_HASH", ""),
	}
	if adminCreds.Email == "" || adminCreds.PasswordHash == "" {
		logger.Warn("admin credentials not set, admin login disabled")
	}

	publicHandler := handlers.NewPublicHandler(bookingSvc, allocator, settings, logger, loc)
	adminHandler := handlers.NewAdminHandler(bookingSvc, appts, settings, calendarClient.Cache(),
		adminCreds, jwtSecret, 24*time.Hour, logger, loc)
	cronHandler := handlers.NewCronHandler(sweeper, config.String("CRON_SECRET", ""), logger)

	var rdb *redis.Client
	if redisAddr := config.String("REDIS_ADDR", ""); redisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: redisAddr})
	}

	readyChecks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
	}
	if brokers := config.String("KAFKA_BROKERS", ""); brokers != "" {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)})
	}
	if rdb != nil {
		readyChecks = append(readyChecks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	mux := runtime.NewBaseMuxWithReady(readyChecks...)

	mux.HandleFunc("/api/v1/public/slots", publicHandler.Slots)
	mux.HandleFunc("/api/v1/public/book", publicHandler.Book)
	mux.HandleFunc("/api/v1/public/cancel/", publicHandler.Cancel)
	mux.HandleFunc("/api/v1/admin/login", adminHandler.Login)
	mux.HandleFunc("/api/v1/admin/appointments", adminHandler.RequireAuth(adminHandler.Appointments))
	mux.HandleFunc("/api/v1/admin/appointments/cancel", adminHandler.RequireAuth(adminHandler.CancelAppointment))
	mux.HandleFunc("/api/v1/admin/settings", adminHandler.RequireAuth(adminHandler.Settings))
	mux.HandleFunc("/api/v1/cron/reminders", cronHandler.Reminders)

	bodyLimit := int64(1 << 20)
	if v, err := strconv.Atoi(config.String("REQUEST_BODY_LIMIT_BYTES", "1048576")); err == nil && v > 0 {
		bodyLimit = int64(v)
	}
	requestTimeout := 10 * time.Second
	if v, err := strconv.Atoi(config.String("REQUEST_TIMEOUT_SECONDS", "10")); err == nil && v > 0 {
		requestTimeout = time.Duration(v) * time.Second
	}

	middlewares := []httpx.Middleware{
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: strings.Split(config.String("CORS_ALLOWED_ORIGINS", ""), ","),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(bodyLimit),
		httpx.WithTimeout(requestTimeout),
	}
	if rdb != nil {
		limiter := httpx.NewRedisRateLimiter(rdb, 30, time.Minute, service)
		middlewares = append(middlewares, limiter.Middleware(logger, true))
	} else {
		// Single-instance fallback: per-IP fixed window in memory.
		middlewares = append(middlewares, httpx.NewRateLimiter(60, time.Minute).Middleware())
	}
	httpHandler := httpx.Chain(mux, middlewares...)
	httpHandler = otelhttp.NewHandler(httpHandler, service)

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
