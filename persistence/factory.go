package persistence

import (
	"go.uber.org/zap"

	"github.com/labelmint/mintflow/types"
)

// Options selects and configures a store backend.
type Options struct {
	// Driver is memory, redis or database.
	Driver   string
	Redis    RedisOptions
	Database DatabaseOptions
}

// NewStore builds the store the options ask for. An empty driver means
// memory.
func NewStore(opts Options, logger *zap.Logger) (Store, error) {
	switch opts.Driver {
	case "", "memory":
		return NewMemoryStore(), nil
	case "redis":
		return NewRedisStore(opts.Redis, logger)
	case "database":
		return OpenGormStore(opts.Database, logger)
	default:
		return nil, types.NewError(types.ErrStorage, "unknown storage driver "+opts.Driver)
	}
}
