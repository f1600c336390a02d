package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/FelixMarschall/SmartHomeBioSignal/internal/actuator"
	"github.com/FelixMarschall/SmartHomeBioSignal/internal/cache"
	"github.com/FelixMarschall/SmartHomeBioSignal/internal/classifier"
	"github.com/FelixMarschall/SmartHomeBioSignal/internal/common/database"
	"github.com/FelixMarschall/SmartHomeBioSignal/internal/common/mqttutil"
	"github.com/FelixMarschall/SmartHomeBioSignal/internal/common/redisutil"
	"github.com/FelixMarschall/SmartHomeBioSignal/internal/config"
	"github.com/FelixMarschall/SmartHomeBioSignal/internal/consumer"
	"github.com/FelixMarschall/SmartHomeBioSignal/internal/engine"
	httpapi "github.com/FelixMarschall/SmartHomeBioSignal/internal/http"
	"github.com/FelixMarschall/SmartHomeBioSignal/internal/models"
	"github.com/FelixMarschall/SmartHomeBioSignal/internal/repository"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// ThermalService 热舒适决策服务
//
// Owns the shared infrastructure handles (Postgres, Redis, MQTT) and one
// decision engine per room. Engines are created lazily on first contact
// with a room and live for the process lifetime.
type ThermalService struct {
	cfg    *config.Config
	logger *zap.Logger

	db          *sql.DB
	redisClient *redis.Client
	mqttClient  *mqttutil.Client

	repo       *repository.SensorHistoryRepository
	classifier classifier.Classifier
	actuators  actuator.Actuators
	cache      *cache.DecisionCache

	httpServer *http.Server
	consumer   *consumer.StreamConsumer

	mu      sync.Mutex
	engines map[string]*engine.Engine

	cancelConsumer context.CancelFunc
	wg             sync.WaitGroup
}

// NewThermalService 创建服务实例并建立所有外部连接
func NewThermalService(cfg *config.Config, logger *zap.Logger) (*ThermalService, error) {
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	redisClient := redisutil.NewRedisClient(&cfg.Redis)
	if err := redisutil.Ping(context.Background(), redisClient); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	mqttClient, err := mqttutil.NewClient(&cfg.MQTT, logger)
	if err != nil {
		_ = database.Close(db)
		_ = redisutil.Close(redisClient)
		return nil, fmt.Errorf("failed to connect to mqtt broker: %w", err)
	}

	s := &ThermalService{
		cfg:         cfg,
		logger:      logger,
		db:          db,
		redisClient: redisClient,
		mqttClient:  mqttClient,
		repo:        repository.NewSensorHistoryRepository(db, logger),
		classifier: classifier.NewHTTPClassifier(
			cfg.Classifier.BaseURL,
			time.Duration(cfg.Classifier.TimeoutSeconds)*time.Second,
			cfg.Classifier.RetryCount,
			logger,
		),
		actuators: actuator.NewMQTTActuators(mqttClient, cfg.MQTT.QoS, logger),
		cache: cache.NewDecisionCache(
			cache.NewRedisKVStore(redisClient),
			time.Duration(cfg.Cache.TTLSeconds)*time.Second,
			logger,
		),
		engines: make(map[string]*engine.Engine),
	}

	s.consumer = consumer.NewStreamConsumer(
		redisClient,
		consumer.Config{
			Stream:        cfg.Ingest.Stream,
			ConsumerGroup: cfg.Ingest.ConsumerGroup,
			ConsumerName:  cfg.Ingest.ConsumerName,
			BatchSize:     cfg.Ingest.BatchSize,
		},
		s.classifier,
		s.repo,
		s,
		logger,
	)

	router := httpapi.NewRouter(logger)
	router.RegisterThermalRoutes(httpapi.NewThermalHandler(s, logger))
	s.httpServer = &http.Server{
		Addr:         cfg.HTTP.Bind,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s, nil
}

// Start 启动 HTTP 服务和摄入消费者
func (s *ThermalService) Start() error {
	if s.cfg.Ingest.Enabled {
		ctx, cancel := context.WithCancel(context.Background())
		s.cancelConsumer = cancel
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.consumer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Error("Stream consumer exited", zap.Error(err))
			}
		}()
	}

	s.logger.Info("HTTP server starting", zap.String("bind", s.cfg.HTTP.Bind))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop 优雅停机
func (s *ThermalService) Stop(ctx context.Context) error {
	if s.cancelConsumer != nil {
		s.cancelConsumer()
	}

	err := s.httpServer.Shutdown(ctx)
	s.wg.Wait()

	s.mqttClient.Disconnect()
	if cerr := redisutil.Close(s.redisClient); cerr != nil {
		s.logger.Warn("Failed to close redis client", zap.Error(cerr))
	}
	if cerr := database.Close(s.db); cerr != nil {
		s.logger.Warn("Failed to close database", zap.Error(cerr))
	}

	s.logger.Info("Thermal service stopped")
	return err
}

func (s *ThermalService) getOrCreateEngine(roomID string) *engine.Engine {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.engines[roomID]; ok {
		return e
	}

	e := engine.NewEngine(
		roomID,
		s.repo,
		s.actuators,
		engine.NewUserConfig(nil),
		engine.Options{
			WindowHours:        s.cfg.Engine.WindowHours,
			ClassifierLag:      s.cfg.Engine.ClassifierLag,
			ContradictionBlock: time.Duration(s.cfg.Engine.ContradictionBlockMins) * time.Minute,
		},
		s.logger.With(zap.String("room_id", roomID)),
	)
	s.engines[roomID] = e
	return e
}

// ApplyUserPreference 设置房间的目标室温
func (s *ThermalService) ApplyUserPreference(ctx context.Context, roomID string, tempC float64) error {
	return s.getOrCreateEngine(roomID).ApplyUserPreference(tempC)
}

// RunDecision 触发一次决策周期
func (s *ThermalService) RunDecision(ctx context.Context, roomID string) (models.ActionIntent, error) {
	e := s.getOrCreateEngine(roomID)

	actions, err := e.DecisionMaking(ctx)
	if err != nil {
		return models.ActionIntent{}, err
	}

	if applied := e.LastApplied(); applied != nil {
		s.cache.StoreLatest(ctx, applied)
	}
	return actions, nil
}

// IngestRecords 摄入一批融合记录并触发决策
//
// Unresolved classifier predictions are filled in before the batch is
// persisted; a feedback vote applies to the newest record only.
func (s *ThermalService) IngestRecords(ctx context.Context, roomID string, records []models.FusedRecord, feedback *int) (models.ActionIntent, error) {
	if len(records) == 0 {
		// Feedback without new records attaches to the newest stored record.
		if feedback != nil {
			if err := s.repo.SetUserFeedback(ctx, roomID, time.Now(), *feedback); err != nil {
				return models.ActionIntent{}, err
			}
		}
		return s.RunDecision(ctx, roomID)
	}

	for i := range records {
		rec := &records[i]
		if rec.ClassifierPrediction != nil {
			continue
		}
		label, err := s.classifier.Predict(ctx, *rec)
		if err != nil {
			s.logger.Warn("Classifier prediction failed",
				zap.String("room_id", roomID),
				zap.Time("record_ts", rec.Timestamp),
				zap.Error(err),
			)
			continue
		}
		rec.ClassifierPrediction = &label
	}

	if feedback != nil {
		records[len(records)-1].UserFeedback = feedback
	}

	if err := s.repo.AppendRecords(ctx, roomID, records); err != nil {
		return models.ActionIntent{}, err
	}

	return s.RunDecision(ctx, roomID)
}

// RollbackDecision 回滚房间的上一次决策
func (s *ThermalService) RollbackDecision(ctx context.Context, roomID string) (models.ActionIntent, error) {
	e := s.getOrCreateEngine(roomID)

	actions, err := e.RollbackLastDecision(ctx)
	if err != nil {
		return models.ActionIntent{}, err
	}

	if applied := e.LastApplied(); applied != nil {
		s.cache.StoreLatest(ctx, applied)
	}
	return actions, nil
}

// LatestDecision 查询房间最新决策（缓存优先）
func (s *ThermalService) LatestDecision(ctx context.Context, roomID string) (*models.AppliedDecision, error) {
	decision, err := s.cache.Latest(ctx, roomID)
	if err == nil {
		return decision, nil
	}
	if !errors.Is(err, cache.ErrCacheMiss) {
		s.logger.Warn("Decision cache read failed",
			zap.String("room_id", roomID),
			zap.Error(err),
		)
	}

	// Cache cold or expired: fall back to the engine's own snapshot.
	s.mu.Lock()
	e, ok := s.engines[roomID]
	s.mu.Unlock()
	if ok {
		if applied := e.LastApplied(); applied != nil {
			return applied, nil
		}
	}
	return nil, cache.ErrCacheMiss
}
