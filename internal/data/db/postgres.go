package db

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/aetherhq/aether-backend/internal/pkg/logger"
	"github.com/aetherhq/aether-backend/internal/utils"
)

type PostgresService struct {
	db  *gorm.DB
	log *logger.Logger
}

// NewPostgresService connects using DATABASE_URL when set, otherwise the
// POSTGRES_* variables.
func NewPostgresService(logg *logger.Logger) (*PostgresService, error) {
	serviceLog := logg.With("service", "PostgresService")

	dsn := utils.GetEnv("DATABASE_URL", "", nil)
	if dsn == "" {
		dsn = dsnFromEnv(logg)
	}
	u, _ := url.Parse(dsn)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormLogger.New(gormWriter{log: serviceLog}, gormLogger.Config{
			SlowThreshold:             utils.GetEnvAsDuration("POSTGRES_SLOW_QUERY", time.Second, logg),
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Postgres: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(utils.GetEnvAsInt("POSTGRES_MAX_OPEN_CONNS", 20, logg))
	sqlDB.SetMaxIdleConns(utils.GetEnvAsInt("POSTGRES_MAX_IDLE_CONNS", 5, logg))
	sqlDB.SetConnMaxLifetime(utils.GetEnvAsDuration("POSTGRES_CONN_MAX_LIFETIME", 30*time.Minute, logg))

	if u != nil {
		serviceLog.Info("connected to Postgres", "host", u.Host, "db", strings.TrimPrefix(u.Path, "/"))
	}
	return &PostgresService{db: db, log: serviceLog}, nil
}

func dsnFromEnv(logg *logger.Logger) string {
	u := url.URL{
		Scheme: "postgres",
		User: url.UserPassword(
			utils.GetEnv("POSTGRES_USER", "postgres", logg),
			utils.GetEnv("POSTGRES_PASSWORD", "", nil),
		),
		Host: utils.GetEnv("POSTGRES_HOST", "localhost", logg) + ":" + utils.GetEnv("POSTGRES_PORT", "5432", logg),
		Path: "/" + utils.GetEnv("POSTGRES_NAME", "aether", logg),
	}
	q := url.Values{}
	q.Set("sslmode", utils.GetEnv("POSTGRES_SSLMODE", "disable", logg))
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *PostgresService) DB() *gorm.DB { return s.db }

func (s *PostgresService) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// gormWriter routes gorm's slow-query and error lines into the zap logger.
type gormWriter struct{ log *logger.Logger }

func (w gormWriter) Printf(format string, args ...interface{}) {
	w.log.Warn(strings.TrimSpace(fmt.Sprintf(format, args...)), "component", "gorm")
}
