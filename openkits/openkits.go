// Package openkits runs a dragonfly server granting kits: it loads the kit catalog, opens the record
// store and the economy, and wires the kit engine to players, commands, menus and placeholders.
package openkits

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/df-mc/dragonfly/server"
	"github.com/df-mc/dragonfly/server/player"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/command"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/economy"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/engine"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/handler"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/internal"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/kit"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/locale"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/loop"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/perm"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/placeholder"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/report"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/session"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/storage"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/storage/postgres"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/storage/sqlite"
)

// startTimeout bounds the connection to the record store and the economy on start.
const startTimeout = 30 * time.Second

// OpenKits represents the main server struct.
// It holds configuration, logging, and manages the kit services.
type OpenKits struct {
	log  *slog.Logger
	conf Config

	srv *server.Server

	engine       *engine.Engine
	loader       *session.Loader
	sessions     *session.Registry
	deliverer    *session.Deliverer
	placeholders *placeholder.Server
	redis        *redis.Client

	once sync.Once
}

// NewOpenKits creates a new instance of OpenKits. It fails if the kit catalog is invalid or if the
// record store cannot be opened.
func NewOpenKits(log *slog.Logger, conf Config) (*OpenKits, error) {
	if err := report.Init(conf.OpenKits.SentryDsn, ""); err != nil {
		log.Error("failed to initialise sentry", "error", err)
	}

	if err := loadLocales(log, conf.OpenKits.LocalePath); err != nil {
		return nil, err
	}

	defaults, err := conf.kitDefaults()
	if err != nil {
		return nil, err
	}
	catalog, err := loadCatalog(conf.OpenKits.KitsPath, defaults)
	if err != nil {
		return nil, err
	}
	log.Info("Loaded kits", "count", catalog.Len(), "path", conf.OpenKits.KitsPath)

	log.Info("Starting Server...")

	c, err := conf.UserConfig.Config(log)
	if err != nil {
		return nil, err
	}
	allower := &Allower{}
	c.Allower = allower

	ok := &OpenKits{
		log:      log,
		conf:     conf,
		sessions: session.NewRegistry(),
	}

	ctx, cancel := context.WithTimeout(context.Background(), startTimeout)
	defer cancel()

	store, err := ok.openStore(ctx)
	if err != nil {
		return nil, err
	}
	eco, err := ok.openEconomy(ctx)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	ok.srv = c.New()

	gateway := storage.NewGateway(log, store, storage.GatewayConfig{
		Workers:          conf.Storage.MaxConns,
		AcquireTimeout:   conf.Storage.AcquireTimeout.Std(),
		OperationTimeout: conf.Storage.OperationTimeout.Std(),
	})
	ok.engine = engine.New(log, conf.engineConfig(), loop.NewWorld(ok.srv.World()), kit.NewRegistry(catalog), gateway, eco, report.NewSentry(log, nil))
	if err := ok.engine.Start(); err != nil {
		_ = gateway.Close()
		return nil, err
	}
	allower.eng = ok.engine

	var roles perm.RoleSource
	if conf.Permissions.RolesURL != "" {
		roles = perm.NewService(log, conf.Permissions.RolesURL)
	}
	ok.loader = session.NewLoader(log, roles, conf.groups())
	ok.deliverer = session.NewDeliverer(log, ok.engine, conf.OpenKits.DropItemsOnFullInventory)

	command.Register(command.Deps{
		Log:       log,
		Deliverer: ok.deliverer,
		Sessions:  ok.sessions,
		Load: func() (*kit.Catalog, error) {
			return kit.LoadFile(conf.OpenKits.KitsPath, defaults)
		},
	})

	if conf.Placeholder.Enabled {
		ok.placeholders = placeholder.NewServer(log, placeholder.NewResolver(ok.engine), ok.onlinePlayer, conf.Placeholder.Key)
	}

	return ok, nil
}

// Start begins the server's main loop, accepting connections and handling players.
// It blocks until the server is closed.
func (ok *OpenKits) Start() {
	go ok.closeOnProgramEnd()

	if ok.placeholders != nil {
		ok.placeholders.Listen(ok.conf.Placeholder.Address)
	}
	ok.srv.Listen()

	for p := range ok.srv.Accept() {
		ok.accept(p)
	}

	ok.Close()
}

// accept handles a new player joining the server.
func (ok *OpenKits) accept(p *player.Player) {
	h := handler.NewPlayerHandler(p, handler.Services{
		Deliverer: ok.deliverer,
		Sessions:  ok.sessions,
		Loader:    ok.loader,
		MenuItem:  ok.conf.OpenKits.MenuItem,
	})
	p.Handle(h)

	h.HandleJoin(p)
}

// onlinePlayer returns the UUID of an online player by name.
func (ok *OpenKits) onlinePlayer(name string) (uuid.UUID, bool) {
	s, found := ok.sessions.ByName(name)
	if !found {
		return uuid.Nil, false
	}
	return s.UUID(), true
}

// closeOnProgramEnd closes the server once the process is interrupted or terminated.
func (ok *OpenKits) closeOnProgramEnd() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
	<-c
	ok.Close()
}

// Close drains the kit engine and then closes the server and all its associated services. The engine
// is drained first so that transactions in flight can still apply their outcome on the world.
func (ok *OpenKits) Close() {
	ok.once.Do(func() {
		ok.log.Debug("Draining Kit Engine...")
		ctx, cancel := context.WithTimeout(context.Background(), ok.conf.OpenKits.ShutdownTimeout.Std())
		if err := ok.engine.Close(ctx); err != nil {
			ok.log.Error("failed to close kit engine", "error", err)
		}
		cancel()

		if ok.placeholders != nil {
			ok.log.Debug("Closing Placeholder Server...")
			ctx, cancel := context.WithTimeout(context.Background(), internal.ServiceCloseTimeout)
			if err := ok.placeholders.Close(ctx); err != nil {
				ok.log.Error("failed to close placeholder server", "error", err)
			}
			cancel()
		}
		ok.log.Debug("Stopping Permission Load Worker...")
		ok.loader.Stop()

		if ok.redis != nil {
			ok.log.Debug("Closing Redis Client...")
			if err := ok.redis.Close(); err != nil {
				ok.log.Error("failed to close redis client", "error", err)
			}
		}
		report.Flush()

		ok.log.Debug("Closing Server...")
		if err := ok.srv.Close(); err != nil {
			ok.log.Error("failed to close server", "error", err)
		}
	})
}

// openStore opens the record store of the configured driver.
func (ok *OpenKits) openStore(ctx context.Context) (storage.Store, error) {
	conf := ok.conf.Storage
	switch conf.Driver {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(conf.Path), internal.DirectoryPermissions); err != nil {
			return nil, fmt.Errorf("create storage directory: %w", err)
		}
		return sqlite.Open(ctx, ok.log, sqlite.Config{
			Path:              conf.Path,
			MaxConns:          conf.MaxConns,
			BusyTimeoutMillis: conf.BusyTimeoutMillis,
		})
	case "postgres":
		return postgres.Open(ctx, ok.log, postgres.Config{
			DSN:            conf.DSN,
			MaxConns:       int32(conf.MaxConns),
			AcquireTimeout: conf.AcquireTimeout.Std(),
		})
	case "memory":
		ok.log.Warn("kit records are kept in memory and lost on restart")
		return storage.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", conf.Driver)
	}
}

// openEconomy returns the configured economy provider.
func (ok *OpenKits) openEconomy(ctx context.Context) (economy.Provider, error) {
	conf := ok.conf.Economy
	switch conf.Provider {
	case "", "none":
		return economy.None{}, nil
	case "memory":
		return economy.NewMemory(), nil
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     conf.RedisAddress,
			Password: conf.RedisPassword,
			DB:       conf.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		ok.redis = client
		return economy.NewRedis(ok.log, client, economy.RedisConfig{
			Prefix:    conf.Prefix,
			Scale:     conf.Scale,
			MarkerTTL: conf.MarkerTTL.Std(),
		}), nil
	default:
		return nil, fmt.Errorf("unknown economy provider %q", conf.Provider)
	}
}

// loadLocales registers all the locales found in the directory.
func loadLocales(log *slog.Logger, dir string) error {
	tags, err := locale.LoadDir(dir)
	if err != nil {
		return err
	}
	log.Info("Loaded locales", "count", len(tags))
	return nil
}

// loadCatalog reads the kit catalog and checks that every item of every kit exists.
func loadCatalog(path string, defaults kit.Defaults) (*kit.Catalog, error) {
	c, err := kit.LoadFile(path, defaults)
	if err != nil {
		return nil, err
	}
	if err := kit.Resolve(c); err != nil {
		return nil, fmt.Errorf("resolve kit items in %s: %w", path, err)
	}
	return c, nil
}
