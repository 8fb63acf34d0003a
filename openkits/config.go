package openkits

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/df-mc/dragonfly/server"
	"github.com/restartfu/gophig"
	"github.com/sandertv/gophertunnel/minecraft/text"
	"github.com/shopspring/decimal"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/engine"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/internal"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/kit"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/perm"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/storage"
	"github.com/smell-of-curry/pokebedrock-kits/openkits/util"
)

// Config holds the server configuration: where kits and locales are read from, how records are
// stored, which economy charges for kits and how the engine behaves.
type Config struct {
	OpenKits struct {
		SentryDsn  string `env:"SENTRY_DSN"`
		LogLevel   string // Can be "debug", "info", "warn", "error"
		KitsPath   string
		LocalePath string
		// MenuItem gives joining players the item that opens the kit menu.
		MenuItem bool
		// DropItemsOnFullInventory drops the items that do not fit at the feet of the player instead
		// of discarding them.
		DropItemsOnFullInventory bool
		ShutdownTimeout          util.Duration
	}
	Storage struct {
		Driver string // Can be "sqlite", "postgres", "memory"
		DSN    string `env:"STORAGE_DSN"`
		Path   string

		MaxConns          int
		BusyTimeoutMillis int
		AcquireTimeout    util.Duration
		OperationTimeout  util.Duration
	}
	Economy struct {
		Provider string // Can be "none", "memory", "redis"

		RedisAddress  string `env:"REDIS_ADDRESS"`
		RedisPassword string `env:"REDIS_PASSWORD"`
		RedisDB       int
		Prefix        string
		Scale         int32
		MarkerTTL     util.Duration
	}
	Engine struct {
		TransactionTimeout    util.Duration
		MaxAttempts           int
		RetryBackoff          util.Duration
		EconomyTimeout        util.Duration
		LoadTimeout           util.Duration
		BlockOnReconciliation bool
		FirstJoinKit          string
		EvictSchedule         string
		EvictAfter            util.Duration
		ReminderSchedule      string
	}
	KitDefaults struct {
		Cost              string
		Cooldown          util.Duration
		Icon              string
		RequirePermission bool
		Permission        string
		OneTime           bool
	}
	Permissions struct {
		RolesURL string `env:"ROLES_URL"`
		Default  perm.Group   `env:"-"`
		Groups   []perm.Group `env:"-"`
	}
	Placeholder struct {
		Enabled bool
		Address string
		Key     string `env:"PLACEHOLDER_KEY"`
	}
	server.UserConfig `env:"-"`
}

// DefaultConfig returns a config with prefilled default values.
func DefaultConfig() Config {
	c := Config{}

	c.OpenKits.SentryDsn = ""
	c.OpenKits.LogLevel = "info"
	c.OpenKits.KitsPath = "resources/kits.yml"
	c.OpenKits.LocalePath = "resources/locales"
	c.OpenKits.MenuItem = true
	c.OpenKits.DropItemsOnFullInventory = true
	c.OpenKits.ShutdownTimeout = util.Duration(internal.ShutdownTimeout)

	gw := storage.DefaultGatewayConfig()
	c.Storage.Driver = "sqlite"
	c.Storage.Path = "resources/openkits.db"
	c.Storage.MaxConns = gw.Workers
	c.Storage.BusyTimeoutMillis = 1000
	c.Storage.AcquireTimeout = util.Duration(gw.AcquireTimeout)
	c.Storage.OperationTimeout = util.Duration(gw.OperationTimeout)

	c.Economy.Provider = "none"
	c.Economy.RedisAddress = "127.0.0.1:6379"
	c.Economy.Prefix = "openkits"
	c.Economy.Scale = 2
	c.Economy.MarkerTTL = util.Duration(24 * time.Hour)

	e := engine.DefaultConfig()
	c.Engine.TransactionTimeout = util.Duration(e.TransactionTimeout)
	c.Engine.MaxAttempts = e.MaxAttempts
	c.Engine.RetryBackoff = util.Duration(e.RetryBackoff)
	c.Engine.EconomyTimeout = util.Duration(e.EconomyTimeout)
	c.Engine.LoadTimeout = util.Duration(e.LoadTimeout)
	c.Engine.BlockOnReconciliation = e.BlockOnReconciliation
	c.Engine.FirstJoinKit = "starter"
	c.Engine.EvictSchedule = e.EvictSchedule
	c.Engine.EvictAfter = util.Duration(e.EvictAfter)
	c.Engine.ReminderSchedule = e.ReminderSchedule

	d := kit.DefaultDefaults()
	c.KitDefaults.Cost = d.Cost.String()
	c.KitDefaults.Cooldown = d.Cooldown
	c.KitDefaults.Icon = d.Icon
	c.KitDefaults.RequirePermission = d.RequirePermission
	c.KitDefaults.Permission = d.Permission
	c.KitDefaults.OneTime = d.OneTime

	c.Permissions.RolesURL = ""
	c.Permissions.Default = perm.Group{
		Name: "default",
		Permissions: []string{
			"openkits.commands.kit",
			"openkits.commands.kit.list",
			"openkits.commands.kit.info",
			"openkits.commands.kit.gui",
			"openkits.commands.kit.preview",
			"openkits.commands.kits",
			"openkits.kit.starter",
		},
	}
	c.Permissions.Groups = []perm.Group{
		{Name: "vip", RoleID: "vip", Permissions: []string{"openkits.kit.*"}},
		{Name: "admin", RoleID: "admin", Permissions: []string{perm.Wildcard}},
	}

	c.Placeholder.Enabled = false
	c.Placeholder.Address = ":8081"
	c.Placeholder.Key = "secret-key"

	userConfig := server.DefaultConfig()
	userConfig.Server.Name = text.Colourf("<gold>Open</gold><aqua>Kits</aqua>")
	userConfig.World.Folder = "resources/world"

	userConfig.Players.Folder = "resources/player_data"
	userConfig.Players.MaximumChunkRadius = 8

	c.UserConfig = userConfig

	return c
}

// kitDefaults returns the values applied to kits that leave a field unset.
func (c Config) kitDefaults() (kit.Defaults, error) {
	d := kit.Defaults{
		Cooldown:          c.KitDefaults.Cooldown,
		Icon:              c.KitDefaults.Icon,
		RequirePermission: c.KitDefaults.RequirePermission,
		Permission:        c.KitDefaults.Permission,
		OneTime:           c.KitDefaults.OneTime,
	}
	if c.KitDefaults.Cost != "" {
		cost, err := decimal.NewFromString(c.KitDefaults.Cost)
		if err != nil {
			return kit.Defaults{}, fmt.Errorf("parse default kit cost: %w", err)
		}
		if cost.IsNegative() {
			return kit.Defaults{}, fmt.Errorf("default kit cost %s is negative", cost)
		}
		d.Cost = cost
	}
	return d, nil
}

// engineConfig returns the engine configuration of the configuration.
func (c Config) engineConfig() engine.Config {
	return engine.Config{
		TransactionTimeout:    c.Engine.TransactionTimeout.Std(),
		MaxAttempts:           c.Engine.MaxAttempts,
		RetryBackoff:          c.Engine.RetryBackoff.Std(),
		EconomyTimeout:        c.Engine.EconomyTimeout.Std(),
		LoadTimeout:           c.Engine.LoadTimeout.Std(),
		BlockOnReconciliation: c.Engine.BlockOnReconciliation,
		FirstJoinKit:          kit.NormaliseID(c.Engine.FirstJoinKit),
		EvictSchedule:         c.Engine.EvictSchedule,
		EvictAfter:            c.Engine.EvictAfter.Std(),
		ReminderSchedule:      c.Engine.ReminderSchedule,
	}
}

// groups returns the permission groups of the configuration.
func (c Config) groups() perm.Groups {
	return perm.NewGroups(c.Permissions.Default, c.Permissions.Groups...)
}

// ParseLogLevel returns the appropriate slog.Level based on string configuration.
// Returns an error if the provided log level string is not recognized.
func ParseLogLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unrecognized log level: %q", level)
	}
}

// ReadConfig loads the server configuration from config.toml and overlays the secrets set in the
// environment with the OPENKITS_ prefix. If the file doesn't exist, it creates a new one with default
// values.
func ReadConfig() (Config, error) {
	g := gophig.NewGophig[Config](internal.ConfigPath, gophig.TOMLMarshaler{}, os.ModePerm)
	_, err := g.LoadConf()
	if os.IsNotExist(err) {
		err = g.SaveConf(DefaultConfig())
		if err != nil {
			return Config{}, err
		}
	}
	c, err := g.LoadConf()
	if err != nil {
		return Config{}, err
	}
	if err := env.ParseWithOptions(&c, env.Options{Prefix: internal.EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("read environment: %w", err)
	}
	return c, nil
}
