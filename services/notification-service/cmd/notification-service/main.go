package main

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/careslot/careslot/libs/config"
	"github.com/careslot/careslot/libs/db"
	"github.com/careslot/careslot/libs/httpx"
	"github.com/careslot/careslot/libs/kafkax"
	otelx "github.com/careslot/careslot/libs/otel"
	"github.com/careslot/careslot/libs/runtime"
	"github.com/careslot/careslot/services/notification-service/internal/consumer"
	"github.com/careslot/careslot/services/notification-service/internal/handlers"
	"github.com/careslot/careslot/services/notification-service/internal/inbox"
	"github.com/careslot/careslot/services/notification-service/internal/storage"
)

// The three lifecycle topics the scheduling service publishes.
var lifecycleTopics = []string{
	"scheduling.appointment.booked.v1",
	"scheduling.appointment.rescheduled.v1",
	"scheduling.appointment.cancelled.v1",
}

func main() {
	service := config.String("SERVICE_NAME", "notification-service")
	port, err := config.Port("PORT", "8085")
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

	inboxRepo := inbox.NewRepository(pool)
	notificationsRepo := storage.NewRepository(pool)

	brokers := config.String("KAFKA_BROKERS", "")
	groupID := config.String("KAFKA_GROUP_ID", "notification-service")
	for _, topic := range lifecycleTopics {
		eventConsumer := consumer.New(logger, pool, inboxRepo, consumer.Config{
			Brokers: brokers,
			GroupID: groupID,
			Topic:   topic,
		}, func(ctx context.Context, tx pgx.Tx, msg kafka.Message) error {
			notification, err := handlers.ParseLifecycleEvent(msg.Value)
			if err != nil {
				// Malformed payloads are dropped; retrying cannot fix them.
				logger.Error("invalid lifecycle event", "err", err, "topic", msg.Topic)
				return nil
			}
			if err := notificationsRepo.Insert(ctx, tx, notification); err != nil {
				logger.Error("failed to persist notification", "err", err)
				return err
			}
			logger.Info("notification recorded",
				"type", notification.Type,
				"appointment_id", notification.AppointmentID,
				"doctor_id", notification.DoctorID,
			)
			return nil
		})
		go eventConsumer.Run(ctx)
	}

	notificationHandler := handlers.NewNotificationHandler(notificationsRepo, logger)

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers)},
	)
	mux.HandleFunc("/notifications", notificationHandler.List)
	mux.HandleFunc("/notifications/read", notificationHandler.MarkRead)

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithTimeout(config.Duration("REQUEST_TIMEOUT", 30*time.Second)),
	)
	handler = otelhttp.NewHandler(handler, "notification")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
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
