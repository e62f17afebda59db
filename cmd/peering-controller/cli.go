package main

import (
	"flag"
	"fmt"
)

var (
	// LogLevelFlag is a cli-flag that specifies the log level on the peering-controller.
	LogLevelFlag string
	// LockFilePathFlag is a cli-flag that specifies the filepath of the exclusive lock.
	LockFilePathFlag string

	// DatabaseURLFlag is a cli-flag that specifies the PostgreSQL connection string.
	DatabaseURLFlag string
	// RedisURLFlag is a cli-flag that specifies the redis URL of the PeeringDB cache.
	// the cache is kept in memory when empty.
	RedisURLFlag string

	// PeeringDBURLFlag is a cli-flag that specifies the base URL of the PeeringDB API.
	PeeringDBURLFlag string
	// PeeringDBAPIKeyFilePathFlag is a cli-flag that specifies the filepath of the PeeringDB API key.
	PeeringDBAPIKeyFilePathFlag string
	// NetBoxURLFlag is a cli-flag that specifies the base URL of NetBox.
	// the routers managed through NetBox are not polled when empty.
	NetBoxURLFlag string
	// NetBoxTokenFilePathFlag is a cli-flag that specifies the filepath of the NetBox API token.
	NetBoxTokenFilePathFlag string

	// DeviceUsernameFlag is a cli-flag that specifies the default username to log in to the routers.
	DeviceUsernameFlag string
	// DevicePasswordFilePathFlag is a cli-flag that specifies the filepath of the default router password.
	DevicePasswordFilePathFlag string
	// DeviceTimeoutSecondFlag is a cli-flag that specifies the default timeout of a router session.
	DeviceTimeoutSecondFlag int
	// GoBGPGRPCPortFlag is a cli-flag that specifies the default port of the gobgp gRPC API.
	GoBGPGRPCPortFlag int

	// PollIntervalSecondFlag is a cli-flag that specifies the span seconds of the session state polls.
	PollIntervalSecondFlag int
	// PeeringDBSyncIntervalSecondFlag is a cli-flag that specifies the span seconds of the PeeringDB cache synchronisation.
	PeeringDBSyncIntervalSecondFlag int
	// HTTPAPIServerPortFlag is a cli-flag that specifies the port the HTTP API server listens.
	HTTPAPIServerPortFlag int
	// PrometheusExporterPortFlag is a cli-flag that specifies the port the prometheus exporter listens.
	PrometheusExporterPortFlag int

	// EnablePrometheusExporterFlag is a cli-flag that enables the prometheus exporter.
	EnablePrometheusExporterFlag bool
	// EnableHTTPAPIFlag is a cli-flag that enables the http api server.
	EnableHTTPAPIFlag bool
	// EnablePeeringDBSyncFlag is a cli-flag that enables the PeeringDB cache synchronisation.
	EnablePeeringDBSyncFlag bool
)

// parseAllFlags parses all defined cmd-flags.
func parseAllFlags(args []string) error {
	fs := flag.NewFlagSet("peering-controller", flag.ContinueOnError)

	fs.StringVar(&LogLevelFlag, "log-level", "warning", "the log level(debug/info/warning/error)")
	fs.StringVar(&LockFilePathFlag, "lock-filepath", "/var/run/peering-controller/lock", "the filepath of the exclusive lock")

	fs.StringVar(&DatabaseURLFlag, "database-url", "", "the connection string of the PostgreSQL database")
	fs.StringVar(&RedisURLFlag, "redis-url", "", "the redis URL of the PeeringDB cache (in-memory cache when empty)")

	fs.StringVar(&PeeringDBURLFlag, "peeringdb-url", "https://www.peeringdb.com", "the base URL of the PeeringDB API")
	fs.StringVar(&PeeringDBAPIKeyFilePathFlag, "peeringdb-api-key-filepath", "", "the filepath of the PeeringDB API key")
	fs.StringVar(&NetBoxURLFlag, "netbox-url", "", "the base URL of NetBox (routers managed by NetBox are not polled when empty)")
	fs.StringVar(&NetBoxTokenFilePathFlag, "netbox-token-filepath", "", "the filepath of the NetBox API token")

	fs.StringVar(&DeviceUsernameFlag, "device-username", "", "the default username to log in to the routers")
	fs.StringVar(&DevicePasswordFilePathFlag, "device-password-filepath", "", "the filepath of the default router password")
	fs.IntVar(&DeviceTimeoutSecondFlag, "device-timeout-second", 30, "the default timeout of a router session")
	fs.IntVar(&GoBGPGRPCPortFlag, "gobgp-grpc-port", 50051, "the default port of the gobgp gRPC API")

	fs.IntVar(&PollIntervalSecondFlag, "poll-interval-second", 300, "the span seconds of the session state polls")
	fs.IntVar(&PeeringDBSyncIntervalSecondFlag, "peeringdb-sync-interval-second", 86400, "the span seconds of the PeeringDB cache synchronisation")
	fs.IntVar(&PrometheusExporterPortFlag, "prometheus-exporter-port", 50505, "the port the prometheus exporter listens")
	fs.IntVar(&HTTPAPIServerPortFlag, "http-api-server-port", 54545, "the port the http api server listens")

	fs.BoolVar(&EnablePrometheusExporterFlag, "prometheus-exporter", true, "enables the prometheus exporter")
	fs.BoolVar(&EnableHTTPAPIFlag, "http-api", true, "enables the http api server")
	fs.BoolVar(&EnablePeeringDBSyncFlag, "peeringdb-sync", true, "enables the PeeringDB cache synchronisation")

	return fs.Parse(args)
}

// validateAllFlags validates all cmd flags.
func validateAllFlags() error {
	if invalidLogLevelFlag(LogLevelFlag) {
		return fmt.Errorf("--log-level must be one of debug/info/warning/error")
	}

	if DatabaseURLFlag == "" {
		return fmt.Errorf("--database-url is required")
	}

	if PollIntervalSecondFlag <= 0 {
		return fmt.Errorf("--poll-interval-second must be positive")
	}
	if PeeringDBSyncIntervalSecondFlag <= 0 {
		return fmt.Errorf("--peeringdb-sync-interval-second must be positive")
	}
	if DeviceTimeoutSecondFlag <= 0 {
		return fmt.Errorf("--device-timeout-second must be positive")
	}

	if invalidPort(GoBGPGRPCPortFlag) {
		return fmt.Errorf("--gobgp-grpc-port must be the range of uint16(tcp port)")
	}
	if invalidPort(PrometheusExporterPortFlag) {
		return fmt.Errorf("--prometheus-exporter-port must be the range of uint16(tcp port)")
	}
	if invalidPort(HTTPAPIServerPortFlag) {
		return fmt.Errorf("--http-api-server-port must be the range of uint16(tcp port)")
	}

	return nil
}

func invalidLogLevelFlag(l string) bool {
	valid := l == "debug" || l == "info" || l == "warning" || l == "error"
	return !valid
}

func invalidPort(p int) bool {
	return p < 0 || 65535 < p
}
