package storage

import (
	"fmt"

	"github.com/Gopher0727/InterviewRoom/config"
)

// Open builds the store selected by cfg.Store.Driver.
func Open(cfg *config.Config) (Store, error) {
	switch cfg.Store.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres":
		pg := cfg.Postgres
		db, err := InitPostgres(BuildDSN(pg.Host, pg.Port, pg.User, pg.Password, pg.DBName), pg.MaxIdleConns, pg.MaxOpenConns)
		if err != nil {
			return nil, err
		}
		return NewGormStore(db)
	case "redis":
		rc := cfg.Redis
		client, err := InitRedis(rc.Host, rc.Port, rc.Password, rc.DB, rc.PoolSize, rc.MinIdleConns)
		if err != nil {
			return nil, err
		}
		return NewRedisStore(client, "rooms"), nil
	default:
		return nil, fmt.Errorf("不支持的存储驱动: %q", cfg.Store.Driver)
	}
}
