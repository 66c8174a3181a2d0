package database

import (
	"log"
	"strings"
	"time"

	"github.com/pathakanu/dingbot/internal/model"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New creates a GORM database connection.
// When databaseURL is provided PostgreSQL is used, otherwise SQLite at sqlitePath is used.
// GORM warnings and the backend banner go to lg; a nil lg means log.Default.
func New(databaseURL, sqlitePath string, lg *log.Logger) (*gorm.DB, error) {
	if lg == nil {
		lg = log.Default()
	}

	var (
		db  *gorm.DB
		err error
	)

	gormConfig := &gorm.Config{
		Logger: logger.New(lg, logger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  logger.Warn,
			IgnoreRecordNotFoundError: true,
		}),
	}

	if databaseURL != "" {
		db, err = gorm.Open(postgres.Open(databaseURL), gormConfig)
	} else {
		db, err = gorm.Open(sqlite.Open(sqlitePath), gormConfig)
	}
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	logBackend(lg, db, sqlitePath)
	return db, nil
}

// Migrate creates or updates every table the bot uses.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&model.Reminder{}, &model.Message{}, &model.Fact{})
}

func logBackend(lg *log.Logger, db *gorm.DB, sqlitePath string) {
	dialector := db.Dialector.Name()
	switch strings.ToLower(dialector) {
	case "postgres":
		lg.Printf("database: connected to PostgreSQL")
	case "sqlite":
		lg.Printf("database: using SQLite %s", sqlitePath)
	default:
		lg.Printf("database: connected via %s", dialector)
	}
}
