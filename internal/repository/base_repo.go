package repository

import (
	"context"
	"time"

	"github.com/mbeoliero/kit/log"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mbeoliero/parley/internal/config"
	"github.com/mbeoliero/parley/internal/entity"
)

// Repositories holds all gorm-backed repositories and implements Store
type Repositories struct {
	DB           *gorm.DB
	Redis        *redis.Client
	User         *UserRepo
	Conversation *ConversationRepo
	Message      *MessageRepo
	Contact      *ContactRepo
	Call         *CallRepo
}

var _ Store = (*Repositories)(nil)

// NewRepositories creates all repositories
func NewRepositories(cfg *config.Config) (*Repositories, error) {
	// Initialize MySQL
	db, err := initMySQL(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.MySQL.AutoMigrate {
		if err := AutoMigrate(db); err != nil {
			return nil, err
		}
	}

	repos := newRepositories(db)
	if cfg.Redis.Enabled {
		repos.Redis = NewRedis(cfg)
	}
	return repos, nil
}

func newRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		DB:           db,
		User:         NewUserRepo(db),
		Conversation: NewConversationRepo(db),
		Message:      NewMessageRepo(db),
		Contact:      NewContactRepo(db),
		Call:         NewCallRepo(db),
	}
}

// AutoMigrate creates or updates every table
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&entity.User{},
		&entity.Conversation{},
		&entity.Participant{},
		&entity.Message{},
		&entity.MessageDeletion{},
		&entity.MessageReceipt{},
		&entity.Contact{},
		&entity.Call{},
		&entity.CallParticipant{},
	)
}

// initMySQL initializes MySQL connection
func initMySQL(cfg *config.Config) (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if cfg.Server.Mode == "debug" {
		logLevel = logger.Info
	} else {
		logLevel = logger.Warn
	}

	db, err := gorm.Open(mysql.Open(cfg.MySQL.DSN()), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}

	sqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return db, nil
}

// NewRedis initializes Redis connection
func NewRedis(cfg *config.Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

func (r *Repositories) Users() UserStore                 { return r.User }
func (r *Repositories) Conversations() ConversationStore { return r.Conversation }
func (r *Repositories) Messages() MessageStore           { return r.Message }
func (r *Repositories) Contacts() ContactStore           { return r.Contact }
func (r *Repositories) Calls() CallStore                 { return r.Call }

// Transaction executes fn in a transaction with repositories bound to it
func (r *Repositories) Transaction(ctx context.Context, fn func(tx Store) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepos := newRepositories(tx)
		txRepos.Redis = r.Redis
		return fn(txRepos)
	})
}

// Close closes all connections
func (r *Repositories) Close() error {
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.Close(); err != nil {
		return err
	}
	if r.Redis != nil {
		return r.Redis.Close()
	}
	return nil
}

// CheckConnection checks if database and redis connections are alive
func (r *Repositories) CheckConnection(ctx context.Context) error {
	// Check MySQL
	sqlDB, err := r.DB.DB()
	if err != nil {
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		log.CtxError(ctx, "mysql ping failed: %v", err)
		return err
	}

	// Check Redis
	if r.Redis != nil {
		if err := r.Redis.Ping(ctx).Err(); err != nil {
			log.CtxError(ctx, "redis ping failed: %v", err)
			return err
		}
	}

	return nil
}
