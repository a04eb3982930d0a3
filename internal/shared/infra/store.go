package infra

import (
	"fmt"
	"log"

	"shongo-controller/internal/shared/storage"
	"shongo-controller/internal/shared/storage/driver/postgres"
	"shongo-controller/internal/shared/storage/driver/sqlite"
	"shongo-controller/internal/shared/storage/mongostore"
	"shongo-controller/internal/shared/storage/repository"
)

// NewPersistentStore 按驱动类型创建持久化存储
//
// SQL 驱动在打开后执行幂等的 AutoMigrate；MongoDB 在连接时创建索引。
func NewPersistentStore(driver, databaseURL, dbName string) (storage.PersistentStore, error) {
	switch driver {
	case "sqlite":
		db, err := sqlite.Open(databaseURL)
		if err != nil {
			return nil, err
		}
		dialect := sqlite.NewDialect()
		if err := dialect.AutoMigrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate sqlite: %w", err)
		}
		log.Printf("[Storage] Using SQLite")
		return repository.NewStore(db, dialect), nil

	case "postgres":
		db, err := postgres.Open(databaseURL)
		if err != nil {
			return nil, err
		}
		dialect := postgres.NewDialect()
		if err := dialect.AutoMigrate(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		log.Printf("[Storage] Using PostgreSQL")
		return repository.NewStore(db, dialect), nil

	case "mongodb":
		if dbName == "" {
			dbName = "shongo"
		}
		store, err := mongostore.NewStore(databaseURL, dbName)
		if err != nil {
			return nil, err
		}
		log.Printf("[Storage] Using MongoDB database %s", dbName)
		return store, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
