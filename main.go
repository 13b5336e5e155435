package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/questforge/api/rest"
	"github.com/kasuganosora/questforge/api/sse"
	apiws "github.com/kasuganosora/questforge/api/ws"
	"github.com/kasuganosora/questforge/audit"
	"github.com/kasuganosora/questforge/cache"
	"github.com/kasuganosora/questforge/config"
	dbadapter "github.com/kasuganosora/questforge/db"
	"github.com/kasuganosora/questforge/game/npc"
	"github.com/kasuganosora/questforge/game/player"
	"github.com/kasuganosora/questforge/game/quest"
	"github.com/kasuganosora/questforge/game/script"
	mw "github.com/kasuganosora/questforge/middleware"
	"github.com/kasuganosora/questforge/model"
	"github.com/kasuganosora/questforge/plugin/hook"
	"github.com/kasuganosora/questforge/resource"
	"github.com/kasuganosora/questforge/scheduler"
	"github.com/kasuganosora/questforge/storage"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"
	"gopkg.in/natefinch/lumberjack.v2"
	"gorm.io/gorm"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	var cfg *config.Config
	var err error
	if _, statErr := os.Stat(cfgPath); errors.Is(statErr, os.ErrNotExist) && len(os.Args) <= 1 {
		cfg, err = config.Default()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	// ---- Logger ----
	logger, err := newLogger(cfg.Server.Debug, cfg.Log)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer logger.Sync()

	// Warn loudly if admin endpoints will be disabled.
	if cfg.Server.AdminKey == "" {
		logger.Warn("server.admin_key is not set; admin endpoints and the host bridge are disabled")
	}

	// ---- Database ----
	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	// ---- Cache / PubSub ----
	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	defer c.Close()
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	defer pubsub.Close()
	logger.Info("Cache initialized")

	store, err := newStore(cfg.Storage.Backend, db, c)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	// ---- Collaborators ----
	hooks := hook.NewHookCenter()
	players := player.NewManager(logger)
	npcs := npc.NewDirectory(players.Link, logger)
	sandbox := script.NewSandbox(cfg.Script.VMPoolSize, cfg.Script.Timeout, logger)
	notifier := sse.NewNotifier(pubsub, logger)

	opts := []quest.Option{quest.WithHooks(hooks), quest.WithNotifier(notifier)}
	var journal apirest.JournalReader
	var auditSvc *audit.Service
	if cfg.Quest.JournalEnabled {
		auditSvc = audit.New(db, logger)
		journal = auditSvc
		opts = append(opts, quest.WithJournal(auditSvc))
	}
	if cfg.Quest.DependencyGating {
		opts = append(opts, quest.WithGate(quest.DependencyGate{}))
	}

	// ---- Quest engine ----
	svc := quest.NewService(store, &quest.Host{
		Players:  players,
		Messages: players,
		NPCs:     npcs,
		Commands: players,
		Scripts:  sandbox,
	}, logger, opts...)

	loadCtx, cancelLoad := context.WithTimeout(context.Background(), time.Minute)
	if err := svc.Load(loadCtx); err != nil {
		log.Fatalf("quest load: %v", err)
	}
	if cfg.Storage.QuestDir != "" {
		docs, err := resource.NewLoader(cfg.Storage.QuestDir, logger).Load()
		if err != nil {
			logger.Warn("quest definition load warning", zap.Error(err))
		} else if _, err := resource.Import(loadCtx, svc, docs, logger); err != nil {
			logger.Warn("quest import warning", zap.Error(err))
		}
	}
	cancelLoad()
	svc.Attach(hooks)
	logger.Info("Quest engine ready", zap.Int("quests", len(svc.Quests())))

	// ---- Scheduler ----
	sched := scheduler.New(logger)
	sched.AddQuestTasks(svc, cfg.Quest.FlushInterval, cfg.Quest.EvictInterval)

	rankH := apirest.NewRankingHandler(c, logger)
	rankH.Register(hooks)

	// ---- Gin HTTP Server ----
	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))
	r.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))

	// Health check
	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(200, gin.H{"status": "ok"})
	})

	// ---- Host bridge ----
	hostH := apiws.NewHandler(cfg.Server, cfg.Security, players, npcs, svc, hooks, logger)
	r.GET("/ws/host", hostH.ServeWS)

	// ---- SSE ----
	sseH := sse.NewHandler(pubsub, logger)

	// ---- REST API routes ----
	authH := apirest.NewAuthHandler(c, cfg.Security, logger)
	questH := apirest.NewQuestHandler(svc, cfg.Storage.QuestDir, logger)
	bridgeH := apirest.NewBridgeHandler(svc, journal, logger)
	playerH := apirest.NewPlayerHandler(svc, players, journal, logger)
	adminH := apirest.NewAdminHandler(svc, players, npcs, hostH, sched, sseH, c, logger)

	api := r.Group("/api")
	{
		api.GET("/ranking/completions", rankH.TopCompletions)

		playerG := api.Group("/player")
		playerG.Use(mw.Auth(cfg.Security, c))
		playerG.GET("/quests", playerH.Quests)
		playerG.GET("/quests/available", playerH.Available)
		playerG.POST("/quests/:name/accept", playerH.Accept)
		playerG.POST("/quests/:name/abort", playerH.Abort)
		playerG.GET("/messages", playerH.Messages)
		playerG.GET("/journal", playerH.Journal)
		playerG.GET("/stream", sseH.ServeSSE)
		playerG.POST("/logout", authH.Logout)
		playerG.POST("/refresh", authH.Refresh)

		adminG := api.Group("/admin")
		adminG.Use(mw.IPWhitelist(cfg.Server.AdminWhitelist), mw.AdminKey(cfg.Server.AdminKey))
		adminG.GET("/metrics", adminH.Metrics)
		adminG.GET("/players", adminH.ListPlayers)
		adminG.GET("/npcs", adminH.ListNPCs)
		adminG.POST("/announce", adminH.Announce)
		adminG.GET("/announcements", adminH.Announcements)
		adminG.POST("/tokens", authH.Issue)

		adminG.GET("/quests", questH.List)
		adminG.POST("/quests", questH.Create)
		adminG.POST("/quests/import", questH.Import)
		adminG.POST("/quests/export", questH.Export)
		adminG.GET("/quests/:name", questH.Get)
		adminG.PUT("/quests/:name", questH.Put)
		adminG.PATCH("/quests/:name", questH.Edit)
		adminG.DELETE("/quests/:name", questH.Delete)
		adminG.POST("/quests/:name/rename", questH.Rename)
		adminG.GET("/npcs/:id/quests", questH.ForNPC)

		playersG := adminG.Group("/players/:uuid")
		playersG.POST("/message", adminH.SendMessage)
		playersG.GET("/quests", bridgeH.Quests)
		playersG.GET("/journal", bridgeH.Journal)
		playersG.POST("/actions", bridgeH.RunAction)
		playersG.POST("/quests/:name/start", bridgeH.Start)
		playersG.POST("/quests/:name/fail", bridgeH.Fail)
		playersG.POST("/quests/:name/abort", bridgeH.Abort)
		playersG.POST("/quests/:name/trigger", bridgeH.TriggerObjective)
		playersG.POST("/quests/:name/objectives/:id/complete", bridgeH.CompleteObjective)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r}
	go func() {
		logger.Info("Server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	sched.Stop()
	svc.Detach(hooks)
	svc.Close(shutdownCtx)
	notifier.Stop()
	if auditSvc != nil {
		auditSvc.Stop(shutdownCtx)
	}
}

// newStore picks the persistence backend for quest definitions and player
// progress.
func newStore(backend string, db *gorm.DB, c cache.Cache) (quest.Store, error) {
	switch backend {
	case "", "gorm":
		return storage.NewGormStore(db), nil
	case "cache":
		return storage.NewCacheStore(c), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", backend)
}

// newLogger builds the zap logger, teeing to a rotating file when one is
// configured.
func newLogger(debug bool, cfg config.LogConfig) (*zap.Logger, error) {
	var base *zap.Logger
	var err error
	if debug {
		base, err = zap.NewDevelopment()
	} else {
		base, err = zap.NewProduction()
	}
	if err != nil || cfg.File == "" {
		return base, err
	}

	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	file := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(&lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		}),
		level,
	)
	return zap.New(zapcore.NewTee(base.Core(), file), zap.AddCaller()), nil
}
