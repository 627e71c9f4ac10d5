package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/beacon-notify-core/internal/audit"
	"github.com/nerrad567/beacon-notify-core/internal/beacon"
)

// fakeGateway is an in-memory beacon.Gateway that counts every call.
type fakeGateway struct {
	mu            sync.Mutex
	beacons       map[string]*beacon.Beacon
	events        []beacon.ProximityEvent
	notifications map[string]*beacon.Notification
	calls         int
	failWith      error
	seq           int
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		beacons:       make(map[string]*beacon.Beacon),
		notifications: make(map[string]*beacon.Notification),
	}
}

func (g *fakeGateway) addBeacon(id, name string, active bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.beacons[id] = &beacon.Beacon{ID: id, Name: name, IsActive: active}
}

func (g *fakeGateway) addNotification(id, userID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.notifications[id] = &beacon.Notification{ID: id, UserID: userID, Message: "hello", Priority: beacon.PriorityMedium}
}

func (g *fakeGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func (g *fakeGateway) eventCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.events)
}

func (g *fakeGateway) isRead(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.notifications[id]
	return ok && n.IsRead
}

func (g *fakeGateway) GetBeacon(_ context.Context, id string) (*beacon.Beacon, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.failWith != nil {
		return nil, g.failWith
	}
	b, ok := g.beacons[id]
	if !ok {
		return nil, beacon.ErrBeaconNotFound
	}
	cp := *b
	return &cp, nil
}

func (g *fakeGateway) CreateProximityEvent(_ context.Context, ev *beacon.ProximityEvent) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.failWith != nil {
		return g.failWith
	}
	g.seq++
	ev.ID = fmt.Sprintf("prx-%d", g.seq)
	g.events = append(g.events, *ev)
	return nil
}

func (g *fakeGateway) GetNotification(_ context.Context, userID, id string) (*beacon.Notification, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.failWith != nil {
		return nil, g.failWith
	}
	n, ok := g.notifications[id]
	if !ok || n.UserID != userID {
		return nil, beacon.ErrNotificationNotFound
	}
	cp := *n
	return &cp, nil
}

func (g *fakeGateway) MarkNotificationRead(_ context.Context, userID, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	n, ok := g.notifications[id]
	if !ok || n.UserID != userID {
		return beacon.ErrNotificationNotFound
	}
	if !n.IsRead {
		now := time.Now().UTC()
		n.IsRead = true
		n.ReadAt = &now
	}
	return nil
}

func (g *fakeGateway) CreateNotification(_ context.Context, n *beacon.Notification) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.failWith != nil {
		return g.failWith
	}
	g.seq++
	n.ID = fmt.Sprintf("ntf-%d", g.seq)
	cp := *n
	g.notifications[n.ID] = &cp
	return nil
}

// fakeMember records delivered payloads.
type fakeMember struct {
	id     string
	mu     sync.Mutex
	got    [][]byte
	refuse bool
}

func (m *fakeMember) ID() string { return m.id }

func (m *fakeMember) Deliver(payload []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refuse {
		return false
	}
	m.got = append(m.got, payload)
	return true
}

func (m *fakeMember) received() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.got...)
}

// recordingFanout captures fanout calls.
type recordingFanout struct {
	mu    sync.Mutex
	calls []fanoutCall
}

type fanoutCall struct {
	sessionKey string
	payload    []byte
}

func (f *recordingFanout) Fanout(_ context.Context, sessionKey string, payload []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, fanoutCall{sessionKey: sessionKey, payload: payload})
}

func (f *recordingFanout) snapshot() []fanoutCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fanoutCall(nil), f.calls...)
}

type fakeTelemetry struct {
	mu     sync.Mutex
	points int
}

func (t *fakeTelemetry) WriteProximityMetric(string, string, float64, bool, time.Time) {
	t.mu.Lock()
	t.points++
	t.mu.Unlock()
}

type fakeSink struct {
	mu            sync.Mutex
	events        int
	notifications int
}

func (s *fakeSink) ProximityRecorded(*beacon.ProximityEvent) {
	s.mu.Lock()
	s.events++
	s.mu.Unlock()
}

func (s *fakeSink) NotificationCreated(*beacon.Notification) {
	s.mu.Lock()
	s.notifications++
	s.mu.Unlock()
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
}

func (a *fakeAudit) Create(_ context.Context, e *audit.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, *e)
	return nil
}

func (a *fakeAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

var errStoreDown = errors.New("database is locked")
