package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	apiv0 "github.com/sakura-internet/peering-session-controller/cmd/peering-controller/api/v0"
	"github.com/sakura-internet/peering-session-controller/pkg/controller"
	"github.com/sakura-internet/peering-session-controller/pkg/device"
	"github.com/sakura-internet/peering-session-controller/pkg/device/gobgp"
	"github.com/sakura-internet/peering-session-controller/pkg/frrouting"
	"github.com/sakura-internet/peering-session-controller/pkg/netbox"
	"github.com/sakura-internet/peering-session-controller/pkg/peeringdb"
	"github.com/sakura-internet/peering-session-controller/pkg/store"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := parseAllFlags(os.Args[1:]); err != nil {
		panic(err)
	}
	if err := validateAllFlags(); err != nil {
		panic(err)
	}

	logger := setupGlobalLogger(os.Stderr, LogLevelFlag)

	// mkdir for lock file
	if err := os.MkdirAll(filepath.Dir(LockFilePathFlag), 0o755); err != nil {
		panic(err)
	}

	lockf, err := tryToGetTheExclusiveLockWithoutBlocking(LockFilePathFlag)
	if err != nil {
		panic(err)
	}
	defer lockf.Close()

	st, err := store.NewPostgresStore(ctx, logger, DatabaseURLFlag)
	if err != nil {
		panic(err)
	}
	defer st.Close()

	if err := st.Migrate(ctx); err != nil {
		panic(err)
	}

	cache, closeCache, err := newPeeringDBCache(logger)
	if err != nil {
		panic(err)
	}
	defer closeCache()

	adapter, err := newDeviceAdapter(logger)
	if err != nil {
		panic(err)
	}

	c := controller.NewController(
		logger,
		controller.WithStore(st),
		controller.WithDeviceAdapter(adapter),
		controller.WithPeeringDBCache(cache),
	)

	wg := new(sync.WaitGroup)

	if EnablePeeringDBSyncFlag {
		apiKey, err := readSecretFile(PeeringDBAPIKeyFilePathFlag)
		if err != nil {
			panic(err)
		}

		client := peeringdb.NewClient(
			logger,
			cache,
			peeringdb.WithBaseURL(PeeringDBURLFlag),
			peeringdb.WithAPIKey(apiKey),
		)

		wg.Add(1)
		go startPeeringDBSync(ctx, wg, logger, c, client, time.Second*time.Duration(PeeringDBSyncIntervalSecondFlag))
	}

	wg.Add(1)
	go func(ctx context.Context, wg *sync.WaitGroup, c *controller.Controller) {
		defer wg.Done()
		c.Start(ctx, time.Second*time.Duration(PollIntervalSecondFlag))
	}(ctx, wg, c)

	if EnablePrometheusExporterFlag {
		wg.Add(1)
		go startPrometheusExporterServer(ctx, wg)
	}

	if EnableHTTPAPIFlag {
		wg.Add(1)
		go startHTTPAPIServer(ctx, wg, c)
	}

	signal.Ignore(syscall.SIGHUP, syscall.SIGPIPE)
	stopSigCh := make(chan os.Signal, 3)
	signal.Notify(stopSigCh, os.Interrupt, syscall.SIGQUIT, syscall.SIGTERM)

mainLoop:
	for range stopSigCh {
		logger.Info("got stop signal. exiting.")

		// for stopping all goroutine.
		cancel()
		break mainLoop
	}

	wg.Wait()

	logger.Info("peering-controller exited. see you again, bye.")
}

// newPeeringDBCache returns the redis cache when --redis-url is set, the in-memory cache otherwise.
func newPeeringDBCache(logger *slog.Logger) (peeringdb.Cache, func(), error) {
	if RedisURLFlag == "" {
		logger.Info("using the in-memory peeringdb cache")
		return peeringdb.NewMemoryCache(), func() {}, nil
	}

	opts, err := redis.ParseURL(RedisURLFlag)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse --redis-url: %w", err)
	}
	rdb := redis.NewClient(opts)
	closeFn := func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("failed to close the redis client", "error", err)
		}
	}

	return peeringdb.NewRedisCache(logger, rdb), closeFn, nil
}

// newDeviceAdapter builds the adapter that selects the direct drivers or NetBox depending on the router.
func newDeviceAdapter(logger *slog.Logger) (device.Adapter, error) {
	password, err := readSecretFile(DevicePasswordFilePathFlag)
	if err != nil {
		return nil, err
	}

	defaults := device.Defaults{
		Username: DeviceUsernameFlag,
		Password: password,
		Timeout:  time.Second * time.Duration(DeviceTimeoutSecondFlag),
	}
	direct := device.NewDirectAdapter(
		logger.With("component", "device"),
		device.WithDefaults(defaults),
		device.WithDriver(gobgp.DriverName, gobgp.NewDriverFactory(strconv.Itoa(GoBGPGRPCPortFlag))),
		device.WithDriver(frrouting.DriverName, frrouting.NewDriver),
	)

	if NetBoxURLFlag == "" {
		return device.NewSelector(direct, nil), nil
	}

	token, err := readSecretFile(NetBoxTokenFilePathFlag)
	if err != nil {
		return nil, err
	}
	indirect := netbox.NewAdapter(
		logger.With("component", "netbox"),
		netbox.NewClient(logger, NetBoxURLFlag, netbox.WithToken(token)),
		netbox.WithTimeout(defaults.Timeout),
	)

	return device.NewSelector(direct, indirect), nil
}

// startPeeringDBSync refreshes the PeeringDB cache at startup and then every interval.
func startPeeringDBSync(
	ctx context.Context,
	wg *sync.WaitGroup,
	logger *slog.Logger,
	c *controller.Controller,
	client *peeringdb.Client,
	interval time.Duration,
) {
	defer wg.Done()

	syncCache := func() {
		ixlans, asns, err := c.PeeringDBSyncTargets(ctx)
		if err != nil {
			logger.Error("failed to list the peeringdb sync targets", "error", err)
			return
		}

		result, err := client.Sync(ctx, ixlans, asns)
		if err != nil {
			logger.Error("failed to synchronize the peeringdb cache", "error", err)
			return
		}
		logger.Info("synchronized the peeringdb cache",
			"ixlans", result.IXLans,
			"prefixes", result.Prefixes,
			"netixlans", result.NetworkIXLans,
			"networks", result.Networks,
		)
	}

	syncCache()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

syncLoop:
	for {
		select {
		case <-ctx.Done():
			break syncLoop
		case <-ticker.C:
			syncCache()
		}
	}
}

// newEcho returns an echo server whose logger follows --log-level.
func newEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	switch LogLevelFlag {
	case "info":
		e.Logger.SetLevel(log.INFO)
	case "debug":
		e.Logger.SetLevel(log.DEBUG)
		e.Use(middleware.Logger())
	case "warning":
		e.Logger.SetLevel(log.WARN)
	case "error":
		e.Logger.SetLevel(log.ERROR)
	}

	return e
}

// serveUntilDone starts e on the port and shuts it down when ctx is done.
func serveUntilDone(ctx context.Context, e *echo.Echo, port int) {
	addr := fmt.Sprintf(":%d", port)

	ch := make(chan bool, 1)
	go func(ch chan<- bool) {
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.Logger.Fatal("shutting down the server")
		}

		ch <- true
	}(ch)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		e.Logger.Error(err)
	}
	<-ch
}

// startPrometheusExporterServer starts the HTTP server that serves the prometheus-exporter endpoint.
func startPrometheusExporterServer(
	ctx context.Context,
	wg *sync.WaitGroup,
) {
	defer wg.Done()

	e := newEcho()

	reg := controller.NewPrometheusMetricRegistry()
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	serveUntilDone(ctx, e, PrometheusExporterPortFlag)
}

// startHTTPAPIServer starts the HTTP API server that serves the status and the operational triggers.
func startHTTPAPIServer(
	ctx context.Context,
	wg *sync.WaitGroup,
	c *controller.Controller,
) {
	defer wg.Done()

	e := newEcho()
	e.Use(apiv0.UseController(c))
	apiv0.RegisterRoutes(e)

	serveUntilDone(ctx, e, HTTPAPIServerPortFlag)
}

// tryToGetTheExclusiveLockWithoutBlocking uses flock(2) to get the exclusive lock of the path.
func tryToGetTheExclusiveLockWithoutBlocking(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()
		return nil, err
	}

	return f, nil
}

// setupGlobalLogger setups a slog.Logger and sets it as the default logger of the slog package.
func setupGlobalLogger(w io.Writer, level string) *slog.Logger {
	opts := &slog.HandlerOptions{
		AddSource: true,
	}

	switch level {
	case "info":
		opts.Level = slog.LevelInfo
	case "debug":
		opts.Level = slog.LevelDebug
	case "warning":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	}

	logger := slog.New(slog.NewTextHandler(w, opts))
	slog.SetDefault(logger)
	return logger
}

// readSecretFile reads a secret from the file. an empty path means no secret.
func readSecretFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(string(b)), nil
}
