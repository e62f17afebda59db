// Copyright 2025 The peering-session-controller Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sakura-internet/peering-session-controller/pkg/peering"
)

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore is a Store backed by PostgreSQL.
type PostgresStore struct {
	pgQueries

	logger *slog.Logger
	pool   *pgxpool.Pool
}

var _ Store = &PostgresStore{}

// NewPostgresStore connects to the database.
func NewPostgresStore(ctx context.Context, logger *slog.Logger, databaseURL string) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to the database: %w", err)
	}

	logger.Info("connected to the database",
		"host", poolConfig.ConnConfig.Host,
		"database", poolConfig.ConnConfig.Database,
		"maxConns", poolConfig.MaxConns,
	)
	return NewPostgresStoreWithPool(logger, pool), nil
}

func NewPostgresStoreWithPool(logger *slog.Logger, pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{
		pgQueries: pgQueries{db: pool},
		logger:    logger,
		pool:      pool,
	}
}

// Close closes the pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the connectivity to the database.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InTx implements Store
func (s *PostgresStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// no-op once committed.
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(&pgQueries{db: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// pgQueries implements Queries on a pool or a transaction.
type pgQueries struct {
	db dbtx
}

type rowScanner interface {
	Scan(dest ...any) error
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func collect[T any](rows pgx.Rows, scan func(rowScanner) (*T, error)) ([]T, error) {
	defer rows.Close()

	values := make([]T, 0)
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, err
		}
		values = append(values, *v)
	}
	return values, rows.Err()
}

// inet returns the query parameter of an INET column. the zero address is NULL.
func inet(a netip.Addr) any {
	if !a.IsValid() {
		return nil
	}
	return a.Unmap().String()
}

// parseInet parses the host() of an INET column. the empty string is the zero address.
func parseInet(s string) (netip.Addr, error) {
	if s == "" {
		return netip.Addr{}, nil
	}
	return netip.ParseAddr(s)
}

func unmarshalArgs(b []byte) (map[string]string, error) {
	if len(b) == 0 {
		return nil, nil
	}

	args := make(map[string]string)
	if err := json.Unmarshal(b, &args); err != nil {
		return nil, err
	}
	return args, nil
}

func nonNegative(v int64) uint64 {
	if v < 0 {
		return 0
	}
	return uint64(v)
}

const routerColumns = `r.id, r.name, r.hostname, r.local_asn, r.device_state, r.use_netbox, r.netbox_device_id,
	r.username, r.password, r.timeout_seconds, r.driver_args,
	p.id, p.name, p.driver, p.driver_args`

func scanRouter(row rowScanner) (*peering.Router, error) {
	r := &peering.Router{}
	var (
		localASN       int64
		deviceState    string
		timeoutSeconds int32
		driverArgs     []byte

		platformID         *int64
		platformName       *string
		platformDriver     *string
		platformDriverArgs []byte
	)

	err := row.Scan(
		&r.ID, &r.Name, &r.Hostname, &localASN, &deviceState, &r.UseNetBox, &r.NetBoxDeviceID,
		&r.Username, &r.Password, &timeoutSeconds, &driverArgs,
		&platformID, &platformName, &platformDriver, &platformDriverArgs,
	)
	if err != nil {
		return nil, notFound(err)
	}

	r.LocalASN = uint32(localASN)
	r.DeviceState = peering.DeviceState(deviceState)
	r.Timeout = time.Duration(timeoutSeconds) * time.Second
	if r.DriverArgs, err = unmarshalArgs(driverArgs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal driver args of router %d: %w", r.ID, err)
	}

	if platformID != nil {
		r.Platform = &peering.Platform{ID: *platformID, Name: *platformName, Driver: *platformDriver}
		if r.Platform.DriverArgs, err = unmarshalArgs(platformDriverArgs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal driver args of platform %d: %w", *platformID, err)
		}
	}

	return r, nil
}

// GetRouter implements Queries
func (q *pgQueries) GetRouter(ctx context.Context, id int64) (*peering.Router, error) {
	return scanRouter(q.db.QueryRow(ctx,
		`SELECT `+routerColumns+` FROM routers r LEFT JOIN platforms p ON p.id = r.platform_id WHERE r.id = $1`, id))
}

const bgpGroupColumns = `id, name, slug, local_asn, check_bgp_session_states, bgp_session_states_update`

func scanBGPGroup(row rowScanner) (*peering.BGPGroup, error) {
	g := &peering.BGPGroup{}
	var localASN int64
	if err := row.Scan(&g.ID, &g.Name, &g.Slug, &localASN, &g.CheckBGPSessionStates, &g.BGPSessionStatesUpdate); err != nil {
		return nil, notFound(err)
	}
	g.LocalASN = uint32(localASN)
	return g, nil
}

// GetBGPGroup implements Queries
func (q *pgQueries) GetBGPGroup(ctx context.Context, id int64) (*peering.BGPGroup, error) {
	return scanBGPGroup(q.db.QueryRow(ctx, `SELECT `+bgpGroupColumns+` FROM bgp_groups WHERE id = $1`, id))
}

// ListBGPGroups implements Queries
func (q *pgQueries) ListBGPGroups(ctx context.Context) ([]peering.BGPGroup, error) {
	rows, err := q.db.Query(ctx, `SELECT `+bgpGroupColumns+` FROM bgp_groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list bgp groups: %w", err)
	}
	return collect(rows, scanBGPGroup)
}

func (q *pgQueries) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := q.db.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetBGPGroupPolled implements Queries
func (q *pgQueries) SetBGPGroupPolled(ctx context.Context, id int64, at time.Time) error {
	return q.exec(ctx, `UPDATE bgp_groups SET bgp_session_states_update = $2 WHERE id = $1`, id, at)
}

const internetExchangeColumns = `id, name, slug, local_asn, peeringdb_ixlan_id, check_bgp_session_states, bgp_session_states_update`

func scanInternetExchange(row rowScanner) (*peering.InternetExchange, error) {
	ix := &peering.InternetExchange{}
	var localASN int64
	err := row.Scan(&ix.ID, &ix.Name, &ix.Slug, &localASN, &ix.PeeringDBIXLanID, &ix.CheckBGPSessionStates, &ix.BGPSessionStatesUpdate)
	if err != nil {
		return nil, notFound(err)
	}
	ix.LocalASN = uint32(localASN)
	return ix, nil
}

// GetInternetExchange implements Queries
func (q *pgQueries) GetInternetExchange(ctx context.Context, id int64) (*peering.InternetExchange, error) {
	return scanInternetExchange(q.db.QueryRow(ctx, `SELECT `+internetExchangeColumns+` FROM internet_exchanges WHERE id = $1`, id))
}

// ListInternetExchanges implements Queries
func (q *pgQueries) ListInternetExchanges(ctx context.Context) ([]peering.InternetExchange, error) {
	rows, err := q.db.Query(ctx, `SELECT `+internetExchangeColumns+` FROM internet_exchanges ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list internet exchanges: %w", err)
	}
	return collect(rows, scanInternetExchange)
}

// GetInternetExchangeByIXLan implements Queries
func (q *pgQueries) GetInternetExchangeByIXLan(ctx context.Context, ixlanID int64) (*peering.InternetExchange, error) {
	return scanInternetExchange(q.db.QueryRow(ctx,
		`SELECT `+internetExchangeColumns+` FROM internet_exchanges WHERE peeringdb_ixlan_id = $1 ORDER BY id LIMIT 1`, ixlanID))
}

// SetInternetExchangePolled implements Queries
func (q *pgQueries) SetInternetExchangePolled(ctx context.Context, id int64, at time.Time) error {
	return q.exec(ctx, `UPDATE internet_exchanges SET bgp_session_states_update = $2 WHERE id = $1`, id, at)
}

// SetInternetExchangeIXLan implements Queries
func (q *pgQueries) SetInternetExchangeIXLan(ctx context.Context, id int64, ixlanID int64) error {
	return q.exec(ctx, `UPDATE internet_exchanges SET peeringdb_ixlan_id = $2 WHERE id = $1`, id, ixlanID)
}

const connectionColumns = `id, internet_exchange_id, router_id, peeringdb_netixlan_id,
	COALESCE(host(ipv6_address), ''), COALESCE(host(ipv4_address), '')`

func scanConnection(row rowScanner) (*peering.Connection, error) {
	c := &peering.Connection{}
	var ipv6, ipv4 string
	if err := row.Scan(&c.ID, &c.InternetExchangeID, &c.RouterID, &c.PeeringDBNetIXLanID, &ipv6, &ipv4); err != nil {
		return nil, notFound(err)
	}

	var err error
	if c.IPv6Address, err = parseInet(ipv6); err != nil {
		return nil, fmt.Errorf("failed to parse ipv6 address of connection %d: %w", c.ID, err)
	}
	if c.IPv4Address, err = parseInet(ipv4); err != nil {
		return nil, fmt.Errorf("failed to parse ipv4 address of connection %d: %w", c.ID, err)
	}
	return c, nil
}

// GetConnection implements Queries
func (q *pgQueries) GetConnection(ctx context.Context, id int64) (*peering.Connection, error) {
	return scanConnection(q.db.QueryRow(ctx, `SELECT `+connectionColumns+` FROM connections WHERE id = $1`, id))
}

// ListConnections implements Queries
func (q *pgQueries) ListConnections(ctx context.Context, ixpID int64) ([]peering.Connection, error) {
	rows, err := q.db.Query(ctx, `SELECT `+connectionColumns+` FROM connections WHERE internet_exchange_id = $1 ORDER BY id`, ixpID)
	if err != nil {
		return nil, fmt.Errorf("failed to list connections: %w", err)
	}
	return collect(rows, scanConnection)
}

const autonomousSystemColumns = `id, asn, name, name_peeringdb_sync, contact_name, contact_phone, contact_email, comments,
	irr_as_set, irr_as_set_peeringdb_sync, ipv6_max_prefixes, ipv6_max_prefixes_peeringdb_sync,
	ipv4_max_prefixes, ipv4_max_prefixes_peeringdb_sync, prefixes, affiliated`

func scanAutonomousSystem(row rowScanner) (*peering.AutonomousSystem, error) {
	as := &peering.AutonomousSystem{}
	var (
		asn, ipv6MaxPrefixes, ipv4MaxPrefixes int64
		prefixes                              []byte
	)

	err := row.Scan(
		&as.ID, &asn, &as.Name, &as.NamePeeringDBSync, &as.Contact.Name, &as.Contact.Phone, &as.Contact.Email, &as.Comments,
		&as.IRRASSet, &as.IRRASSetPeeringDBSync, &ipv6MaxPrefixes, &as.IPv6MaxPrefixesPeeringDBSync,
		&ipv4MaxPrefixes, &as.IPv4MaxPrefixesPeeringDBSync, &prefixes, &as.Affiliated,
	)
	if err != nil {
		return nil, notFound(err)
	}

	as.ASN = uint32(asn)
	as.IPv6MaxPrefixes = uint32(ipv6MaxPrefixes)
	as.IPv4MaxPrefixes = uint32(ipv4MaxPrefixes)
	if len(prefixes) > 0 {
		if err := json.Unmarshal(prefixes, &as.Prefixes); err != nil {
			return nil, fmt.Errorf("failed to unmarshal prefixes of AS%d: %w", as.ASN, err)
		}
	}
	return as, nil
}

// GetAutonomousSystem implements Queries
func (q *pgQueries) GetAutonomousSystem(ctx context.Context, id int64) (*peering.AutonomousSystem, error) {
	return scanAutonomousSystem(q.db.QueryRow(ctx, `SELECT `+autonomousSystemColumns+` FROM autonomous_systems WHERE id = $1`, id))
}

// GetAutonomousSystemByASN implements Queries
func (q *pgQueries) GetAutonomousSystemByASN(ctx context.Context, asn uint32) (*peering.AutonomousSystem, error) {
	return scanAutonomousSystem(q.db.QueryRow(ctx, `SELECT `+autonomousSystemColumns+` FROM autonomous_systems WHERE asn = $1`, int64(asn)))
}

// ListAutonomousSystems implements Queries
func (q *pgQueries) ListAutonomousSystems(ctx context.Context) ([]peering.AutonomousSystem, error) {
	rows, err := q.db.Query(ctx, `SELECT `+autonomousSystemColumns+` FROM autonomous_systems ORDER BY asn`)
	if err != nil {
		return nil, fmt.Errorf("failed to list autonomous systems: %w", err)
	}
	return collect(rows, scanAutonomousSystem)
}

func marshalPrefixes(as *peering.AutonomousSystem) ([]byte, error) {
	if as.Prefixes == nil {
		return []byte(`{}`), nil
	}
	return json.Marshal(as.Prefixes)
}

// CreateAutonomousSystem implements Queries
func (q *pgQueries) CreateAutonomousSystem(ctx context.Context, as *peering.AutonomousSystem) (bool, error) {
	prefixes, err := marshalPrefixes(as)
	if err != nil {
		return false, err
	}

	err = q.db.QueryRow(ctx, `INSERT INTO autonomous_systems (
		asn, name, name_peeringdb_sync, contact_name, contact_phone, contact_email, comments,
		irr_as_set, irr_as_set_peeringdb_sync, ipv6_max_prefixes, ipv6_max_prefixes_peeringdb_sync,
		ipv4_max_prefixes, ipv4_max_prefixes_peeringdb_sync, prefixes, affiliated
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	ON CONFLICT (asn) DO NOTHING
	RETURNING id`,
		int64(as.ASN), as.Name, as.NamePeeringDBSync, as.Contact.Name, as.Contact.Phone, as.Contact.Email, as.Comments,
		as.IRRASSet, as.IRRASSetPeeringDBSync, int64(as.IPv6MaxPrefixes), as.IPv6MaxPrefixesPeeringDBSync,
		int64(as.IPv4MaxPrefixes), as.IPv4MaxPrefixesPeeringDBSync, prefixes, as.Affiliated,
	).Scan(&as.ID)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, fmt.Errorf("failed to create AS%d: %w", as.ASN, err)
	}

	// the ASN already exists.
	if err := q.db.QueryRow(ctx, `SELECT id FROM autonomous_systems WHERE asn = $1`, int64(as.ASN)).Scan(&as.ID); err != nil {
		return false, fmt.Errorf("failed to get AS%d: %w", as.ASN, notFound(err))
	}
	return false, nil
}

// UpdateAutonomousSystem implements Queries
func (q *pgQueries) UpdateAutonomousSystem(ctx context.Context, as *peering.AutonomousSystem) error {
	prefixes, err := marshalPrefixes(as)
	if err != nil {
		return err
	}

	return q.exec(ctx, `UPDATE autonomous_systems SET
		name = $2, name_peeringdb_sync = $3, contact_name = $4, contact_phone = $5, contact_email = $6, comments = $7,
		irr_as_set = $8, irr_as_set_peeringdb_sync = $9, ipv6_max_prefixes = $10, ipv6_max_prefixes_peeringdb_sync = $11,
		ipv4_max_prefixes = $12, ipv4_max_prefixes_peeringdb_sync = $13, prefixes = $14, affiliated = $15
	WHERE id = $1`,
		as.ID, as.Name, as.NamePeeringDBSync, as.Contact.Name, as.Contact.Phone, as.Contact.Email, as.Comments,
		as.IRRASSet, as.IRRASSetPeeringDBSync, int64(as.IPv6MaxPrefixes), as.IPv6MaxPrefixesPeeringDBSync,
		int64(as.IPv4MaxPrefixes), as.IPv4MaxPrefixesPeeringDBSync, prefixes, as.Affiliated,
	)
}

const directPeeringSessionColumns = `s.id, s.autonomous_system_id, host(s.ip_address), s.bgp_state,
	s.received_prefix_count, s.advertised_prefix_count, s.last_established_state,
	s.local_asn, COALESCE(host(s.local_ip_address), ''), s.bgp_group_id, s.relationship, s.router_id`

func scanDirectPeeringSession(row rowScanner) (*peering.DirectPeeringSession, error) {
	s := &peering.DirectPeeringSession{}
	var (
		ip, localIP, state, relationship string
		received, advertised, localASN   int64
	)

	err := row.Scan(
		&s.ID, &s.AutonomousSystemID, &ip, &state,
		&received, &advertised, &s.LastEstablishedState,
		&localASN, &localIP, &s.BGPGroupID, &relationship, &s.RouterID,
	)
	if err != nil {
		return nil, notFound(err)
	}

	if s.IPAddress, err = parseInet(ip); err != nil {
		return nil, fmt.Errorf("failed to parse ip address of session %d: %w", s.ID, err)
	}
	if s.LocalIPAddress, err = parseInet(localIP); err != nil {
		return nil, fmt.Errorf("failed to parse local ip address of session %d: %w", s.ID, err)
	}
	s.BGPState = peering.BGPState(state)
	s.ReceivedPrefixCount = nonNegative(received)
	s.AdvertisedPrefixCount = nonNegative(advertised)
	s.LocalASN = uint32(localASN)
	s.Relationship = peering.Relationship(relationship)
	return s, nil
}

// GetDirectPeeringSession implements Queries
func (q *pgQueries) GetDirectPeeringSession(ctx context.Context, id int64) (*peering.DirectPeeringSession, error) {
	return scanDirectPeeringSession(q.db.QueryRow(ctx,
		`SELECT `+directPeeringSessionColumns+` FROM direct_peering_sessions s WHERE s.id = $1`, id))
}

// ListDirectPeeringSessions implements Queries
func (q *pgQueries) ListDirectPeeringSessions(ctx context.Context, groupID int64, routerIDs []int64) ([]peering.DirectPeeringSession, error) {
	if routerIDs == nil {
		routerIDs = []int64{}
	}

	rows, err := q.db.Query(ctx, `SELECT `+directPeeringSessionColumns+` FROM direct_peering_sessions s
		WHERE s.bgp_group_id = $1 AND (cardinality($2::bigint[]) = 0 OR s.router_id = ANY($2::bigint[]))
		ORDER BY s.id`, groupID, routerIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list direct peering sessions: %w", err)
	}
	return collect(rows, scanDirectPeeringSession)
}

// FindDirectPeeringSession implements Queries
func (q *pgQueries) FindDirectPeeringSession(ctx context.Context, groupID int64, routerID int64, ip netip.Addr) (*peering.DirectPeeringSession, error) {
	return scanDirectPeeringSession(q.db.QueryRow(ctx, `SELECT `+directPeeringSessionColumns+` FROM direct_peering_sessions s
		WHERE s.bgp_group_id = $1 AND s.router_id = $2 AND host(s.ip_address) = host($3::inet)
		ORDER BY s.id LIMIT 1`, groupID, routerID, inet(ip)))
}

// UpdateDirectPeeringSessionState implements Queries
func (q *pgQueries) UpdateDirectPeeringSessionState(ctx context.Context, s *peering.DirectPeeringSession) error {
	return q.exec(ctx, `UPDATE direct_peering_sessions SET
		bgp_state = $2, received_prefix_count = $3, advertised_prefix_count = $4, last_established_state = $5
	WHERE id = $1`,
		s.ID, string(s.BGPState), int64(s.ReceivedPrefixCount), int64(s.AdvertisedPrefixCount), s.LastEstablishedState,
	)
}

const internetExchangePeeringSessionColumns = `s.id, s.autonomous_system_id, host(s.ip_address), s.bgp_state,
	s.received_prefix_count, s.advertised_prefix_count, s.last_established_state,
	s.connection_id, s.is_route_server`

func scanInternetExchangePeeringSession(row rowScanner) (*peering.InternetExchangePeeringSession, error) {
	s := &peering.InternetExchangePeeringSession{}
	var (
		ip, state            string
		received, advertised int64
	)

	err := row.Scan(
		&s.ID, &s.AutonomousSystemID, &ip, &state,
		&received, &advertised, &s.LastEstablishedState,
		&s.ConnectionID, &s.IsRouteServer,
	)
	if err != nil {
		return nil, notFound(err)
	}

	if s.IPAddress, err = parseInet(ip); err != nil {
		return nil, fmt.Errorf("failed to parse ip address of session %d: %w", s.ID, err)
	}
	s.BGPState = peering.BGPState(state)
	s.ReceivedPrefixCount = nonNegative(received)
	s.AdvertisedPrefixCount = nonNegative(advertised)
	return s, nil
}

// GetInternetExchangePeeringSession implements Queries
func (q *pgQueries) GetInternetExchangePeeringSession(ctx context.Context, id int64) (*peering.InternetExchangePeeringSession, error) {
	return scanInternetExchangePeeringSession(q.db.QueryRow(ctx,
		`SELECT `+internetExchangePeeringSessionColumns+` FROM internet_exchange_peering_sessions s WHERE s.id = $1`, id))
}

// ListInternetExchangePeeringSessions implements Queries
func (q *pgQueries) ListInternetExchangePeeringSessions(ctx context.Context, ixpID int64) ([]peering.InternetExchangePeeringSession, error) {
	rows, err := q.db.Query(ctx, `SELECT `+internetExchangePeeringSessionColumns+` FROM internet_exchange_peering_sessions s
		JOIN connections c ON c.id = s.connection_id
		WHERE c.internet_exchange_id = $1
		ORDER BY s.id`, ixpID)
	if err != nil {
		return nil, fmt.Errorf("failed to list internet exchange peering sessions: %w", err)
	}
	return collect(rows, scanInternetExchangePeeringSession)
}

// FindInternetExchangePeeringSession implements Queries
func (q *pgQueries) FindInternetExchangePeeringSession(ctx context.Context, ixpID int64, routerID int64, ip netip.Addr) (*peering.InternetExchangePeeringSession, error) {
	return scanInternetExchangePeeringSession(q.db.QueryRow(ctx, `SELECT `+internetExchangePeeringSessionColumns+` FROM internet_exchange_peering_sessions s
		JOIN connections c ON c.id = s.connection_id
		WHERE c.internet_exchange_id = $1 AND c.router_id = $2 AND host(s.ip_address) = host($3::inet)
		ORDER BY s.id LIMIT 1`, ixpID, routerID, inet(ip)))
}

// FindInternetExchangePeeringSessionByConnection implements Queries
func (q *pgQueries) FindInternetExchangePeeringSessionByConnection(ctx context.Context, connectionID int64, ip netip.Addr) (*peering.InternetExchangePeeringSession, error) {
	return scanInternetExchangePeeringSession(q.db.QueryRow(ctx, `SELECT `+internetExchangePeeringSessionColumns+` FROM internet_exchange_peering_sessions s
		WHERE s.connection_id = $1 AND host(s.ip_address) = host($2::inet)
		ORDER BY s.id LIMIT 1`, connectionID, inet(ip)))
}

// CreateInternetExchangePeeringSession implements Queries
func (q *pgQueries) CreateInternetExchangePeeringSession(ctx context.Context, s *peering.InternetExchangePeeringSession) error {
	err := q.db.QueryRow(ctx, `INSERT INTO internet_exchange_peering_sessions (
		autonomous_system_id, ip_address, bgp_state, received_prefix_count, advertised_prefix_count,
		last_established_state, connection_id, is_route_server
	) VALUES ($1, $2::inet, $3, $4, $5, $6, $7, $8)
	RETURNING id`,
		s.AutonomousSystemID, inet(s.IPAddress), string(s.BGPState), int64(s.ReceivedPrefixCount), int64(s.AdvertisedPrefixCount),
		s.LastEstablishedState, s.ConnectionID, s.IsRouteServer,
	).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", s.IPAddress, err)
	}
	return nil
}

// UpdateInternetExchangePeeringSessionState implements Queries
func (q *pgQueries) UpdateInternetExchangePeeringSessionState(ctx context.Context, s *peering.InternetExchangePeeringSession) error {
	return q.exec(ctx, `UPDATE internet_exchange_peering_sessions SET
		bgp_state = $2, received_prefix_count = $3, advertised_prefix_count = $4, last_established_state = $5
	WHERE id = $1`,
		s.ID, string(s.BGPState), int64(s.ReceivedPrefixCount), int64(s.AdvertisedPrefixCount), s.LastEstablishedState,
	)
}
