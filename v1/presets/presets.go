package presets

import (
	nats "github.com/nats-io/nats.go"
	redis "github.com/redis/go-redis/v9"

	"github.com/mirkobrombin/go-settle/v1/lock"
	"github.com/mirkobrombin/go-settle/v1/syncbus"
)

// RedisOptions configures the connection to Redis.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
}

// Coordinator bundles a named lock with the bus its events are published
// on. Close releases the bus connection; it does not touch the lock.
type Coordinator struct {
	Lock  *lock.Lock
	Bus   syncbus.Bus
	close func() error
}

// Close releases the resources opened by the preset.
func (c *Coordinator) Close() error {
	if c.close == nil {
		return nil
	}
	return c.close()
}

// NewInMemoryStandalone creates a lock whose events stay inside the
// process. Useful for tests and single binary tools.
func NewInMemoryStandalone(name string, opts ...lock.Option) *Coordinator {
	bus := syncbus.NewInMemoryBus()
	return &Coordinator{Lock: newLock(name, bus, opts), Bus: bus}
}

// NewRedis creates a lock publishing its events over Redis pub/sub.
func NewRedis(name string, ro RedisOptions, opts ...lock.Option) *Coordinator {
	client := redis.NewClient(&redis.Options{
		Addr:     ro.Addr,
		Password: ro.Password,
		DB:       ro.DB,
	})
	bus := syncbus.NewRedisBus(client)
	return &Coordinator{Lock: newLock(name, bus, opts), Bus: bus, close: client.Close}
}

// NewNATS creates a lock publishing its events on NATS subjects.
func NewNATS(name, url string, opts ...lock.Option) (*Coordinator, error) {
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	bus := syncbus.NewNATSBus(conn)
	return &Coordinator{
		Lock: newLock(name, bus, opts),
		Bus:  bus,
		close: func() error {
			conn.Close()
			return nil
		},
	}, nil
}

func newLock(name string, bus syncbus.Bus, opts []lock.Option) *lock.Lock {
	all := append([]lock.Option{lock.WithName(name), lock.WithBus(bus)}, opts...)
	return lock.New(all...)
}
