package application

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/chat-harbor-go/internal/chat/auth"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/command"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/cooldown"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/event"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/server"
	"github.com/lk2023060901/chat-harbor-go/internal/chat/store"
	zlog "github.com/lk2023060901/chat-harbor-go/pkg/log"
	"github.com/lk2023060901/chat-harbor-go/pkg/metrics"
	"github.com/lk2023060901/chat-harbor-go/pkg/util/conc"
	"github.com/lk2023060901/chat-harbor-go/pkg/util/version"
	zviper "github.com/lk2023060901/chat-harbor-go/pkg/util/viper"
)

// Default sizing when the config file leaves a knob unset.
const (
	defaultAsyncPoolSize   = 16
	defaultCommandCooldown = 3 * time.Second
)

// Application is the main runtime container for the chat server.
// It owns configuration, wires the component graph and drives startup/shutdown.
type Application struct {
	cfg     *zviper.Config
	loggers map[string]*zlog.MLogger

	srv    *server.Server
	bus    *event.Bus
	router *command.Router

	// closers run in reverse order on shutdown.
	closers []func()
}

// New creates a new Application instance.
func New() *Application {
	return &Application{}
}

// Run loads configuration, wires the component graph and serves until ctx is
// cancelled or the server fails.
func (a *Application) Run(ctx context.Context) error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := a.initLogging(); err != nil {
		return err
	}
	defer a.close()

	metrics.Register(prometheus.DefaultRegisterer)
	metrics.RegisterProcessMetrics(prometheus.DefaultRegisterer)
	metrics.StartProcessCollector(ctx, cfg.GetDuration("metrics.scrape-interval"))

	version.CheckAndLog(ctx, cfg.GetString("version-check.endpoint"))

	if err := a.build(); err != nil {
		return err
	}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return a.srv.Serve(ctx)
	})
	group.Go(func() error {
		console := server.NewConsoleSender(os.Stdout)
		return server.RunConsole(ctx, os.Stdin, console, a.router, a.bus)
	})
	if addr := cfg.GetString("metrics.listen"); addr != "" {
		group.Go(func() error {
			return serveMetrics(ctx, addr)
		})
	}
	group.Go(func() error {
		<-ctx.Done()
		a.srv.Stop()
		return nil
	})

	return group.Wait()
}

// Config returns the loaded configuration, if any.
func (a *Application) Config() *zviper.Config {
	return a.cfg
}

// Logger returns a named logger created from configuration.
// If the name is unknown, it falls back to the global logger.
func (a *Application) Logger(name string) *zlog.MLogger {
	if lg, ok := a.loggers[name]; ok && lg != nil {
		return lg
	}
	return &zlog.MLogger{Logger: zlog.L()}
}

// build assembles the component graph from configuration.
func (a *Application) build() error {
	bans, mutes, perms, creds, err := a.buildStores()
	if err != nil {
		return err
	}

	roles := store.LoadRoleTable(a.cfg)
	registry := server.NewSessionRegistry(bans)

	poolSize := a.cfg.GetInt("event.async-pool-size")
	if poolSize <= 0 {
		poolSize = defaultAsyncPoolSize
	}
	listenerPool := conc.NewPool(poolSize)
	a.closers = append(a.closers, func() { listenerPool.Release() })
	a.bus = event.NewBus(listenerPool)

	scheduler := event.NewDelayScheduler()
	a.closers = append(a.closers, scheduler.Close)

	commandCooldown := a.cfg.GetDuration("command.cooldown")
	if commandCooldown <= 0 {
		commandCooldown = defaultCommandCooldown
	}
	a.router = command.NewRouter(roles, perms, cooldown.NewTracker(commandCooldown), a.bus)
	if err := command.RegisterBuiltins(a.router, command.BuiltinDeps{
		Registry:  registry,
		Bans:      bans,
		Mutes:     mutes,
		Perms:     perms,
		Creds:     creds,
		Scheduler: scheduler,
	}); err != nil {
		return err
	}

	var history *server.ChatHistory
	if path := a.cfg.GetString("history.file"); path != "" {
		history, err = server.NewChatHistory(path)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() { _ = history.Close() })
	}
	recent := server.NewRecentHistory(a.cfg.GetInt("history.recent"))
	if err := server.RegisterCoreListeners(a.bus, server.ListenerDeps{
		Registry: registry,
		Mutes:    mutes,
		History:  history,
		Recent:   recent,
	}); err != nil {
		return err
	}

	variant := a.cfg.GetString("auth.variant")
	if variant == "" {
		variant = auth.DefaultVariant
	}
	authn, err := auth.New(variant, auth.Deps{Credentials: creds, Bans: bans})
	if err != nil {
		return err
	}

	var srvCfg server.Config
	if err := a.cfg.UnmarshalKey("server", &srvCfg); err != nil {
		return err
	}
	a.srv, err = server.NewServer(srvCfg, server.Deps{
		Registry:      registry,
		Router:        a.router,
		Bus:           a.bus,
		Auth:          authn,
		ChatCooldowns: cooldown.NewTracker(srvCfg.ChatCooldown),
		Recent:        recent,
	})
	return err
}

// buildStores selects file-backed stores when store.dir is configured and
// falls back to in-memory stores otherwise.
func (a *Application) buildStores() (store.BanStore, store.MuteStore, store.PermissionStore, store.CredentialStore, error) {
	dir := a.cfg.GetString("store.dir")
	if dir == "" {
		zlog.Warn("store.dir not configured, moderation state is in-memory only")
		return store.NewMemoryBanStore(), store.NewMemoryMuteStore(),
			store.NewMemoryPermissionStore(), store.NewMemoryCredentialStore(), nil
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, nil, nil, nil, err
	}
	bans, err := store.NewFileBanStore(filepath.Join(dir, "bans.json"))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	a.closers = append(a.closers, bans.Close)
	mutes, err := store.NewFileMuteStore(filepath.Join(dir, "mutes.json"))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	a.closers = append(a.closers, mutes.Close)
	perms, err := store.NewFilePermissionStore(filepath.Join(dir, "permissions.json"))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	a.closers = append(a.closers, perms.Close)
	creds, err := store.NewFileCredentialStore(filepath.Join(dir, "credentials.json"))
	if err != nil {
		return nil, nil, nil, nil, err
	}
	a.closers = append(a.closers, creds.Close)
	return bans, mutes, perms, creds, nil
}

func (a *Application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// serveMetrics exposes the Prometheus endpoint until ctx is cancelled.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	zlog.Info("metrics endpoint listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// loadConfig resolves the config file path and loads it.
//
// Resolution priority:
//  1. Default: ./config.yaml
//  2. Env: CHAT_HARBOR_CONFIG_FILE_PATH
//  3. CLI: --config <path> or --config=<path>
func (a *Application) loadConfig() (*zviper.Config, error) {
	configPath := "./config.yaml"

	if envPath := os.Getenv("CHAT_HARBOR_CONFIG_FILE_PATH"); envPath != "" {
		configPath = envPath
	}

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value after --config")
			}
			configPath = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--config=") {
			if val := strings.TrimPrefix(arg, "--config="); val != "" {
				configPath = val
			}
		}
	}

	cfg := zviper.New()
	if err := cfg.LoadFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file %q: %w", configPath, err)
	}

	return cfg, nil
}

// initLogging initializes the global and module-level loggers.
func (a *Application) initLogging() error {
	if err := a.initGlobalLoggerFromEnv(); err != nil {
		return err
	}
	return a.initModuleLoggersFromConfig()
}

// initGlobalLoggerFromEnv configures the process-wide logger from
// CHAT_HARBOR_LOG_* env vars.
//
//   - CHAT_HARBOR_LOG_ENABLE: "1"/"true" to enable outputs; anything else disables them.
//   - CHAT_HARBOR_LOG_LEVEL: log level (default "info").
//   - CHAT_HARBOR_LOG_STDOUT: whether to log to stdout (default false).
//   - CHAT_HARBOR_LOG_FILE_DIR: log directory.
//   - CHAT_HARBOR_LOG_FILE: log file name (empty means no file).
//   - CHAT_HARBOR_LOG_FORMAT: log format ("text" or "json", default "text").
func (a *Application) initGlobalLoggerFromEnv() error {
	enabled := getenvBool("CHAT_HARBOR_LOG_ENABLE", false)

	cfg := &zlog.Config{
		Level:  getenvDefault("CHAT_HARBOR_LOG_LEVEL", "info"),
		Format: getenvDefault("CHAT_HARBOR_LOG_FORMAT", "text"),
		Stdout: getenvBool("CHAT_HARBOR_LOG_STDOUT", false),
		File: zlog.FileLogConfig{
			RootPath: getenvDefault("CHAT_HARBOR_LOG_FILE_DIR", ""),
			Filename: getenvDefault("CHAT_HARBOR_LOG_FILE", ""),
		},
	}

	// When not enabled, direct all outputs to a discarded sink.
	if !enabled {
		cfg.Stdout = false
		cfg.File.Filename = ""
	}

	logger, props, err := zlog.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("init global logger from env: %w", err)
	}
	zlog.ReplaceGlobals(logger, props)
	return nil
}

// initModuleLoggersFromConfig creates named loggers from the "logging" key.
//
// Example:
//
//	logging:
//	  server:
//	    level: debug
//	    stdout: true
//	    file:
//	      rootpath: ./logs
//	      filename: server.log
func (a *Application) initModuleLoggersFromConfig() error {
	if a.cfg == nil {
		return nil
	}

	raw := make(map[string]zlog.Config)
	if err := a.cfg.UnmarshalKey("logging", &raw); err != nil {
		return err
	}
	if len(raw) == 0 {
		return nil
	}

	a.loggers = make(map[string]*zlog.MLogger, len(raw))
	for name, lc := range raw {
		cfgCopy := lc
		logger, _, err := zlog.InitLogger(&cfgCopy)
		if err != nil {
			return fmt.Errorf("init module logger %q: %w", name, err)
		}
		a.loggers[name] = &zlog.MLogger{Logger: logger}
	}

	return nil
}

func getenvDefault(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func getenvBool(key string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
