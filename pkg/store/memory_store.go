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
	"maps"
	"net/netip"
	"sort"
	"sync"
	"time"

	"github.com/sakura-internet/peering-session-controller/pkg/peering"
)

type memoryData struct {
	nextID int64

	routers        map[int64]peering.Router
	groups         map[int64]peering.BGPGroup
	ixps           map[int64]peering.InternetExchange
	connections    map[int64]peering.Connection
	systems        map[int64]peering.AutonomousSystem
	directSessions map[int64]peering.DirectPeeringSession
	ixpSessions    map[int64]peering.InternetExchangePeeringSession
}

func (d *memoryData) clone() memoryData {
	return memoryData{
		nextID:         d.nextID,
		routers:        maps.Clone(d.routers),
		groups:         maps.Clone(d.groups),
		ixps:           maps.Clone(d.ixps),
		connections:    maps.Clone(d.connections),
		systems:        maps.Clone(d.systems),
		directSessions: maps.Clone(d.directSessions),
		ixpSessions:    maps.Clone(d.ixpSessions),
	}
}

func (d *memoryData) newID() int64 {
	d.nextID++
	return d.nextID
}

// MemoryStore is a Store kept in memory, for testing.
// a transaction works on a copy of the records which replaces them on commit.
type MemoryStore struct {
	memoryQueries

	txMu sync.Mutex
	mu   sync.RWMutex
	data memoryData

	writeHook func(op string) error
}

var _ Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		data: memoryData{
			routers:        make(map[int64]peering.Router),
			groups:         make(map[int64]peering.BGPGroup),
			ixps:           make(map[int64]peering.InternetExchange),
			connections:    make(map[int64]peering.Connection),
			systems:        make(map[int64]peering.AutonomousSystem),
			directSessions: make(map[int64]peering.DirectPeeringSession),
			ixpSessions:    make(map[int64]peering.InternetExchangePeeringSession),
		},
	}
	s.memoryQueries = memoryQueries{d: &s.data, mu: &s.mu, store: s}

	return s
}

// SetWriteHook sets a function called before every write. an error returned by hook fails the write.
func (s *MemoryStore) SetWriteHook(hook func(op string) error) {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.writeHook = hook
}

// InTx implements Store
func (s *MemoryStore) InTx(ctx context.Context, fn func(q Queries) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	s.mu.RLock()
	tx := s.data.clone()
	s.mu.RUnlock()

	if err := fn(&memoryQueries{d: &tx, store: s}); err != nil {
		return err
	}

	s.mu.Lock()
	s.data = tx
	s.mu.Unlock()

	return nil
}

// AddRouter seeds a router. the ID is assigned when zero.
func (s *MemoryStore) AddRouter(r *peering.Router) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.ID == 0 {
		r.ID = s.data.newID()
	}
	s.data.routers[r.ID] = *r
}

// AddBGPGroup seeds a BGP group. the ID is assigned when zero.
func (s *MemoryStore) AddBGPGroup(g *peering.BGPGroup) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if g.ID == 0 {
		g.ID = s.data.newID()
	}
	s.data.groups[g.ID] = *g
}

// AddInternetExchange seeds an IXP. the ID is assigned when zero.
func (s *MemoryStore) AddInternetExchange(ix *peering.InternetExchange) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ix.ID == 0 {
		ix.ID = s.data.newID()
	}
	s.data.ixps[ix.ID] = *ix
}

// AddConnection seeds a connection. the ID is assigned when zero.
func (s *MemoryStore) AddConnection(c *peering.Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.ID == 0 {
		c.ID = s.data.newID()
	}
	s.data.connections[c.ID] = *c
}

// AddAutonomousSystem seeds an AS. the ID is assigned when zero.
func (s *MemoryStore) AddAutonomousSystem(as *peering.AutonomousSystem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if as.ID == 0 {
		as.ID = s.data.newID()
	}
	s.data.systems[as.ID] = *as
}

// AddDirectPeeringSession seeds a direct session. the ID is assigned when zero.
func (s *MemoryStore) AddDirectPeeringSession(ds *peering.DirectPeeringSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ds.ID == 0 {
		ds.ID = s.data.newID()
	}
	s.data.directSessions[ds.ID] = *ds
}

// AddInternetExchangePeeringSession seeds an IXP session. the ID is assigned when zero.
func (s *MemoryStore) AddInternetExchangePeeringSession(is *peering.InternetExchangePeeringSession) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if is.ID == 0 {
		is.ID = s.data.newID()
	}
	s.data.ixpSessions[is.ID] = *is
}

// memoryQueries implements Queries on a memoryData.
// mu is nil inside a transaction.
type memoryQueries struct {
	d     *memoryData
	mu    *sync.RWMutex
	store *MemoryStore
}

func (q *memoryQueries) rlock() func() {
	if q.mu == nil {
		return func() {}
	}
	q.mu.RLock()
	return q.mu.RUnlock
}

// write locks the records for a write and calls the write hook.
func (q *memoryQueries) write(op string) (func(), error) {
	unlock := func() {}
	if q.mu != nil {
		q.mu.Lock()
		unlock = q.mu.Unlock
	}

	if q.store != nil && q.store.writeHook != nil {
		if err := q.store.writeHook(op); err != nil {
			unlock()
			return nil, err
		}
	}
	return unlock, nil
}

func sortedByID[V any](m map[int64]V) []V {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	values := make([]V, 0, len(ids))
	for _, id := range ids {
		values = append(values, m[id])
	}
	return values
}

func get[V any](m map[int64]V, id int64) (*V, error) {
	v, ok := m[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &v, nil
}

func sameAddr(a, b netip.Addr) bool {
	return a.Unmap() == b.Unmap()
}

// GetRouter implements Queries
func (q *memoryQueries) GetRouter(_ context.Context, id int64) (*peering.Router, error) {
	defer q.rlock()()
	return get(q.d.routers, id)
}

// GetBGPGroup implements Queries
func (q *memoryQueries) GetBGPGroup(_ context.Context, id int64) (*peering.BGPGroup, error) {
	defer q.rlock()()
	return get(q.d.groups, id)
}

// ListBGPGroups implements Queries
func (q *memoryQueries) ListBGPGroups(context.Context) ([]peering.BGPGroup, error) {
	defer q.rlock()()
	return sortedByID(q.d.groups), nil
}

// SetBGPGroupPolled implements Queries
func (q *memoryQueries) SetBGPGroupPolled(_ context.Context, id int64, at time.Time) error {
	unlock, err := q.write("SetBGPGroupPolled")
	if err != nil {
		return err
	}
	defer unlock()

	g, ok := q.d.groups[id]
	if !ok {
		return ErrNotFound
	}
	g.BGPSessionStatesUpdate = &at
	q.d.groups[id] = g
	return nil
}

// GetInternetExchange implements Queries
func (q *memoryQueries) GetInternetExchange(_ context.Context, id int64) (*peering.InternetExchange, error) {
	defer q.rlock()()
	return get(q.d.ixps, id)
}

// ListInternetExchanges implements Queries
func (q *memoryQueries) ListInternetExchanges(context.Context) ([]peering.InternetExchange, error) {
	defer q.rlock()()
	return sortedByID(q.d.ixps), nil
}

// GetInternetExchangeByIXLan implements Queries
func (q *memoryQueries) GetInternetExchangeByIXLan(_ context.Context, ixlanID int64) (*peering.InternetExchange, error) {
	defer q.rlock()()

	for _, ix := range sortedByID(q.d.ixps) {
		if ix.PeeringDBIXLanID != nil && *ix.PeeringDBIXLanID == ixlanID {
			return &ix, nil
		}
	}
	return nil, ErrNotFound
}

// SetInternetExchangePolled implements Queries
func (q *memoryQueries) SetInternetExchangePolled(_ context.Context, id int64, at time.Time) error {
	unlock, err := q.write("SetInternetExchangePolled")
	if err != nil {
		return err
	}
	defer unlock()

	ix, ok := q.d.ixps[id]
	if !ok {
		return ErrNotFound
	}
	ix.BGPSessionStatesUpdate = &at
	q.d.ixps[id] = ix
	return nil
}

// SetInternetExchangeIXLan implements Queries
func (q *memoryQueries) SetInternetExchangeIXLan(_ context.Context, id int64, ixlanID int64) error {
	unlock, err := q.write("SetInternetExchangeIXLan")
	if err != nil {
		return err
	}
	defer unlock()

	ix, ok := q.d.ixps[id]
	if !ok {
		return ErrNotFound
	}
	ix.PeeringDBIXLanID = &ixlanID
	q.d.ixps[id] = ix
	return nil
}

// GetConnection implements Queries
func (q *memoryQueries) GetConnection(_ context.Context, id int64) (*peering.Connection, error) {
	defer q.rlock()()
	return get(q.d.connections, id)
}

// ListConnections implements Queries
func (q *memoryQueries) ListConnections(_ context.Context, ixpID int64) ([]peering.Connection, error) {
	defer q.rlock()()

	connections := make([]peering.Connection, 0)
	for _, c := range sortedByID(q.d.connections) {
		if c.InternetExchangeID == ixpID {
			connections = append(connections, c)
		}
	}
	return connections, nil
}

// GetAutonomousSystem implements Queries
func (q *memoryQueries) GetAutonomousSystem(_ context.Context, id int64) (*peering.AutonomousSystem, error) {
	defer q.rlock()()
	return get(q.d.systems, id)
}

func (q *memoryQueries) findAutonomousSystem(asn uint32) (*peering.AutonomousSystem, bool) {
	for _, as := range q.d.systems {
		if as.ASN == asn {
			return &as, true
		}
	}
	return nil, false
}

// GetAutonomousSystemByASN implements Queries
func (q *memoryQueries) GetAutonomousSystemByASN(_ context.Context, asn uint32) (*peering.AutonomousSystem, error) {
	defer q.rlock()()

	as, ok := q.findAutonomousSystem(asn)
	if !ok {
		return nil, ErrNotFound
	}
	return as, nil
}

// ListAutonomousSystems implements Queries
func (q *memoryQueries) ListAutonomousSystems(context.Context) ([]peering.AutonomousSystem, error) {
	defer q.rlock()()
	return sortedByID(q.d.systems), nil
}

// CreateAutonomousSystem implements Queries
func (q *memoryQueries) CreateAutonomousSystem(_ context.Context, as *peering.AutonomousSystem) (bool, error) {
	unlock, err := q.write("CreateAutonomousSystem")
	if err != nil {
		return false, err
	}
	defer unlock()

	if existing, ok := q.findAutonomousSystem(as.ASN); ok {
		as.ID = existing.ID
		return false, nil
	}

	as.ID = q.d.newID()
	q.d.systems[as.ID] = *as
	return true, nil
}

// UpdateAutonomousSystem implements Queries
func (q *memoryQueries) UpdateAutonomousSystem(_ context.Context, as *peering.AutonomousSystem) error {
	unlock, err := q.write("UpdateAutonomousSystem")
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := q.d.systems[as.ID]; !ok {
		return ErrNotFound
	}
	q.d.systems[as.ID] = *as
	return nil
}

// GetDirectPeeringSession implements Queries
func (q *memoryQueries) GetDirectPeeringSession(_ context.Context, id int64) (*peering.DirectPeeringSession, error) {
	defer q.rlock()()
	return get(q.d.directSessions, id)
}

// ListDirectPeeringSessions implements Queries
func (q *memoryQueries) ListDirectPeeringSessions(_ context.Context, groupID int64, routerIDs []int64) ([]peering.DirectPeeringSession, error) {
	defer q.rlock()()

	onRouters := make(map[int64]bool, len(routerIDs))
	for _, id := range routerIDs {
		onRouters[id] = true
	}

	sessions := make([]peering.DirectPeeringSession, 0)
	for _, s := range sortedByID(q.d.directSessions) {
		if s.BGPGroupID == nil || *s.BGPGroupID != groupID {
			continue
		}
		if len(onRouters) > 0 && (s.RouterID == nil || !onRouters[*s.RouterID]) {
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// FindDirectPeeringSession implements Queries
func (q *memoryQueries) FindDirectPeeringSession(_ context.Context, groupID int64, routerID int64, ip netip.Addr) (*peering.DirectPeeringSession, error) {
	defer q.rlock()()

	for _, s := range sortedByID(q.d.directSessions) {
		if s.BGPGroupID != nil && *s.BGPGroupID == groupID &&
			s.RouterID != nil && *s.RouterID == routerID &&
			sameAddr(s.IPAddress, ip) {
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

// UpdateDirectPeeringSessionState implements Queries
func (q *memoryQueries) UpdateDirectPeeringSessionState(_ context.Context, s *peering.DirectPeeringSession) error {
	unlock, err := q.write("UpdateDirectPeeringSessionState")
	if err != nil {
		return err
	}
	defer unlock()

	stored, ok := q.d.directSessions[s.ID]
	if !ok {
		return ErrNotFound
	}
	stored.BGPState = s.BGPState
	stored.ReceivedPrefixCount = s.ReceivedPrefixCount
	stored.AdvertisedPrefixCount = s.AdvertisedPrefixCount
	stored.LastEstablishedState = s.LastEstablishedState
	q.d.directSessions[s.ID] = stored
	return nil
}

// GetInternetExchangePeeringSession implements Queries
func (q *memoryQueries) GetInternetExchangePeeringSession(_ context.Context, id int64) (*peering.InternetExchangePeeringSession, error) {
	defer q.rlock()()
	return get(q.d.ixpSessions, id)
}

// ListInternetExchangePeeringSessions implements Queries
func (q *memoryQueries) ListInternetExchangePeeringSessions(_ context.Context, ixpID int64) ([]peering.InternetExchangePeeringSession, error) {
	defer q.rlock()()

	sessions := make([]peering.InternetExchangePeeringSession, 0)
	for _, s := range sortedByID(q.d.ixpSessions) {
		c, ok := q.d.connections[s.ConnectionID]
		if ok && c.InternetExchangeID == ixpID {
			sessions = append(sessions, s)
		}
	}
	return sessions, nil
}

// FindInternetExchangePeeringSession implements Queries
func (q *memoryQueries) FindInternetExchangePeeringSession(_ context.Context, ixpID int64, routerID int64, ip netip.Addr) (*peering.InternetExchangePeeringSession, error) {
	defer q.rlock()()

	for _, s := range sortedByID(q.d.ixpSessions) {
		c, ok := q.d.connections[s.ConnectionID]
		if ok && c.InternetExchangeID == ixpID && c.AttachedTo(routerID) && sameAddr(s.IPAddress, ip) {
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

// FindInternetExchangePeeringSessionByConnection implements Queries
func (q *memoryQueries) FindInternetExchangePeeringSessionByConnection(_ context.Context, connectionID int64, ip netip.Addr) (*peering.InternetExchangePeeringSession, error) {
	defer q.rlock()()

	for _, s := range sortedByID(q.d.ixpSessions) {
		if s.ConnectionID == connectionID && sameAddr(s.IPAddress, ip) {
			return &s, nil
		}
	}
	return nil, ErrNotFound
}

// CreateInternetExchangePeeringSession implements Queries
func (q *memoryQueries) CreateInternetExchangePeeringSession(_ context.Context, s *peering.InternetExchangePeeringSession) error {
	unlock, err := q.write("CreateInternetExchangePeeringSession")
	if err != nil {
		return err
	}
	defer unlock()

	if _, ok := q.d.connections[s.ConnectionID]; !ok {
		return ErrNotFound
	}

	s.ID = q.d.newID()
	q.d.ixpSessions[s.ID] = *s
	return nil
}

// UpdateInternetExchangePeeringSessionState implements Queries
func (q *memoryQueries) UpdateInternetExchangePeeringSessionState(_ context.Context, s *peering.InternetExchangePeeringSession) error {
	unlock, err := q.write("UpdateInternetExchangePeeringSessionState")
	if err != nil {
		return err
	}
	defer unlock()

	stored, ok := q.d.ixpSessions[s.ID]
	if !ok {
		return ErrNotFound
	}
	stored.BGPState = s.BGPState
	stored.ReceivedPrefixCount = s.ReceivedPrefixCount
	stored.AdvertisedPrefixCount = s.AdvertisedPrefixCount
	stored.LastEstablishedState = s.LastEstablishedState
	q.d.ixpSessions[s.ID] = stored
	return nil
}
