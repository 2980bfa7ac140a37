package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/parley/internal/config"
	"github.com/mbeoliero/parley/internal/gateway"
	"github.com/mbeoliero/parley/internal/handler"
	"github.com/mbeoliero/parley/internal/repository"
	"github.com/mbeoliero/parley/internal/repository/memstore"
	"github.com/mbeoliero/parley/internal/router"
	"github.com/mbeoliero/parley/internal/service"
	"github.com/mbeoliero/parley/pkg/constant"
	"github.com/mbeoliero/parley/pkg/idgen"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the config file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.CtxError(ctx, "failed to load config: %v", err)
		panic(err)
	}
	log.CtxInfo(ctx, "config loaded: mode=%s, storage=%s", cfg.Server.Mode, cfg.Storage.Driver)

	// Initialize Redis key prefix
	constant.InitRedisKeyPrefix(cfg.Redis.KeyPrefix)
	log.CtxInfo(ctx, "redis key prefix: %s", constant.GetRedisKeyPrefix())

	if err := idgen.Init(cfg.Server.MachineId); err != nil {
		log.CtxError(ctx, "failed to create id generator: %v", err)
		panic(err)
	}

	store, rdb, closeStore := openStorage(ctx, cfg)
	defer closeStore()

	// Initialize services
	msgService := service.NewMessageService(store, &cfg.Chat)
	callService := service.NewCallService(store)
	convService := service.NewConversationService(store)
	contactService := service.NewContactService(store)
	userService := service.NewUserService(store.Users())

	// Initialize WebSocket server
	wsServer := gateway.NewWsServer(cfg, store, rdb, msgService, callService)
	msgService.SetPusher(wsServer)
	callService.SetPusher(wsServer)
	convService.SetPusher(wsServer)
	contactService.SetPresenceReader(wsServer)
	userService.SetPresenceReader(wsServer)

	wsServer.Run(ctx)
	log.CtxInfo(ctx, "websocket server started")

	handlers := &router.Handlers{
		User:         handler.NewUserHandler(userService),
		Message:      handler.NewMessageHandler(msgService),
		Conversation: handler.NewConversationHandler(convService),
		Contact:      handler.NewContactHandler(contactService),
	}

	h := server.Default(
		server.WithHostPorts(fmt.Sprintf(":%d", cfg.Server.HTTPPort)),
	)
	router.SetupRouter(h, cfg, handlers, wsServer)

	log.CtxInfo(ctx, "server starting on port %d", cfg.Server.HTTPPort)

	go func() {
		h.Spin()
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.CtxInfo(ctx, "shutting down server...")

	wsServer.Shutdown()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := h.Shutdown(shutdownCtx); err != nil {
		log.CtxError(ctx, "server shutdown error: %v", err)
	}

	log.CtxInfo(ctx, "server stopped")
}

// openStorage builds the configured storage driver and the optional Redis client
func openStorage(ctx context.Context, cfg *config.Config) (repository.Store, *redis.Client, func()) {
	switch cfg.Storage.Driver {
	case constant.StorageDriverMemory:
		var rdb *redis.Client
		if cfg.Redis.Enabled {
			rdb = repository.NewRedis(cfg)
		}
		log.CtxWarn(ctx, "using in-memory storage, data is lost on restart")
		return memstore.New(), rdb, func() {
			if rdb != nil {
				rdb.Close()
			}
		}

	case constant.StorageDriverMySQL:
		repos, err := repository.NewRepositories(cfg)
		if err != nil {
			log.CtxError(ctx, "failed to initialize repositories: %v", err)
			panic(err)
		}
		if err := repos.CheckConnection(ctx); err != nil {
			log.CtxError(ctx, "database connection check failed: %v", err)
			panic(err)
		}
		log.CtxInfo(ctx, "database connection established")
		return repos, repos.Redis, func() { repos.Close() }

	default:
		panic(fmt.Sprintf("unknown storage driver: %s", cfg.Storage.Driver))
	}
}
