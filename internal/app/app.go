package app

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/digidine/internal/domain"
	healthcheck "github.com/vladislavdragonenkov/digidine/internal/health"
	"github.com/vladislavdragonenkov/digidine/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/digidine/internal/messaging/rabbitmq"
	grpcsvc "github.com/vladislavdragonenkov/digidine/internal/service/grpc"
	"github.com/vladislavdragonenkov/digidine/internal/service/tracking"
	"github.com/vladislavdragonenkov/digidine/internal/version"
)

const shutdownTimeout = 5 * time.Second

// Run поднимает витрину и блокируется до отмены ctx или ошибки gRPC-сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	if err := cfg.Validate(); err != nil {
		return err
	}

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}

	// Брокеры необязательны: ошибки подключения уже залогированы.
	producer, _ := initKafkaProducer(cfg.KafkaBrokers, cfg.KafkaClientID, logger)
	rabbit, _ := initRabbitPublisher(cfg.RabbitMQURL, cfg.RabbitMQExchange, logger)
	brokers := newEventPublisher(producer, cfg.KafkaTopic, rabbit)
	box, outboxWorker := newOutbox(cfg, store, brokers, producer, logger)

	var events domain.OrderEventPublisher
	if box != nil {
		events = box
	}
	deps, err := NewDependencies(cfg, store, events, nil, logger)
	if err != nil {
		closeRabbit(rabbit, logger)
		closeKafka(producer, logger)
		_ = store.Close()
		return err
	}

	rt := &components{deps: deps, producer: producer, rabbit: rabbit, logger: logger}
	defer rt.close()

	rt.consumer, _ = initStatusConsumer(cfg, deps.Orders, producer, logger)
	if rt.consumer != nil {
		if err := rt.consumer.Start(ctx); err != nil {
			logger.WithError(err).Warn("failed to start kafka status consumer")
			stopConsumer(rt.consumer, logger)
			rt.consumer = nil
		}
	}

	workersCtx, cancelWorkers := context.WithCancel(ctx)
	rt.stopWorkers = cancelWorkers
	rt.startWorker(workersCtx, tracking.NewWorker(deps.Orders,
		tracking.WithLogger(logger.WithField("component", "tracking")),
		tracking.WithInterval(cfg.TrackingInterval),
		tracking.WithCookingDuration(cfg.CookingDuration),
		tracking.WithShippingDuration(cfg.ShippingDuration),
	).Run)
	if outboxWorker != nil {
		rt.startWorker(workersCtx, outboxWorker.Run)
	}

	serviceLogger := logger.WithField("layer", "grpc")
	storefront := grpcsvc.NewStorefrontService(deps.GRPCDeps(), serviceLogger)
	grpcMetrics := promgrpc.NewServerMetrics()
	grpcServer := grpc.NewServer(grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()))
	if err := prometheus.Register(grpcMetrics); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok2 := are.ExistingCollector.(*promgrpc.ServerMetrics); ok2 {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	storefront.Register(grpcServer)
	grpcMetrics.InitializeMetrics(grpcServer)
	reflection.Register(grpcServer)

	healthServer := health.NewServer()
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(grpcsvc.ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	if err := prometheus.Register(version.NewCollector()); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			logger.WithError(err).Warn("failed to register build info metric")
		}
	}

	healthHandler := healthcheck.NewHandler(version.GetVersion())
	healthHandler.RegisterChecker("storage", healthcheck.NewStorageChecker(store, 0))
	if box != nil {
		healthHandler.RegisterChecker("outbox", healthcheck.NewBacklogChecker("outbox", cfg.OutboxBatchSize*10,
			func(ctx context.Context) (int, error) {
				pending, err := box.Pending(ctx)
				return len(pending), err
			}))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		shutdownHTTP(metricsSrv, logger)
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("gRPC сервер слушает %s", lis.Addr())
		errCh <- grpcServer.Serve(lis)
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем gRPC сервер")
		healthServer.Shutdown()
		stoppedCh := make(chan struct{})
		go func() {
			grpcServer.GracefulStop()
			close(stoppedCh)
		}()
		select {
		case <-stoppedCh:
		case <-time.After(shutdownTimeout):
			logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
			grpcServer.Stop()
		}
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, grpc.ErrServerStopped) {
			return nil
		}
		return err
	}
}

// components держит фоновые компоненты, которые нужно остановить при выходе.
type components struct {
	deps     *Dependencies
	producer *kafka.Producer
	rabbit   *rabbitmq.Publisher
	consumer *kafka.Consumer
	logger   *log.Entry

	stopWorkers context.CancelFunc
	workers     sync.WaitGroup
}

// startWorker запускает фоновый цикл; он должен вернуться после отмены ctx.
func (r *components) startWorker(ctx context.Context, run func(context.Context)) {
	r.workers.Add(1)
	go func() {
		defer r.workers.Done()
		run(ctx)
	}()
}

// close останавливает компоненты в обратном порядке: сначала фоновые воркеры
// (трекинг и outbox), затем брокеры и хранилище.
func (r *components) close() {
	if r.stopWorkers != nil {
		r.stopWorkers()
		done := make(chan struct{})
		go func() {
			r.workers.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(shutdownTimeout):
			r.logger.Warn("background workers shutdown timeout")
		}
	}
	stopConsumer(r.consumer, r.logger)
	closeRabbit(r.rabbit, r.logger)
	closeKafka(r.producer, r.logger)
	if err := r.deps.Close(); err != nil {
		r.logger.WithError(err).Warn("failed to close storage")
	}
}

// startMetricsServer запускает HTTP-обработчики /metrics и health probes.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/livez, %s/readyz", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("metrics shutdown with error")
	}
}
