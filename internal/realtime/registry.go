package realtime

import (
	"sync"

	"github.com/puzpuzpuz/xsync"
)

// sessionKeyPrefix namespaces session keys by user.
const sessionKeyPrefix = "user_"

// SessionKey returns the session key for a user.
func SessionKey(userID string) string {
	return sessionKeyPrefix + userID
}

// Member is a live connection that can receive session broadcasts.
// Implementations must be comparable (pointer types) since membership is
// keyed by identity.
type Member interface {
	// ID identifies the member in logs.
	ID() string

	// Deliver queues payload without blocking. It returns false if the
	// payload was dropped.
	Deliver(payload []byte) bool
}

// group is the member set of one session. A dead group has been removed
// from the registry and must not gain members.
type group struct {
	mu      sync.Mutex
	members map[Member]struct{}
	dead    bool
}

// Registry maps session keys to their live members. It is safe for
// concurrent use.
type Registry struct {
	groups *xsync.MapOf[string, *group]
	logger Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		groups: xsync.NewMapOf[*group](),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Join adds m to the session. Joining twice with the same member is a no-op.
func (r *Registry) Join(sessionKey string, m Member) {
	for {
		g, _ := r.groups.LoadOrStore(sessionKey, &group{members: make(map[Member]struct{})})

		g.mu.Lock()
		if g.dead {
			// Lost a race with Leave emptying the group; retry on a fresh one.
			g.mu.Unlock()
			continue
		}
		g.members[m] = struct{}{}
		size := len(g.members)
		g.mu.Unlock()

		r.logger.Debug("session member joined", "session_key", sessionKey, "conn_id", m.ID(), "members", size)
		return
	}
}

// Leave removes m from the session and drops the session once empty.
// Leaving a session m never joined is a no-op.
func (r *Registry) Leave(sessionKey string, m Member) {
	g, ok := r.groups.Load(sessionKey)
	if !ok {
		return
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.members[m]; !ok {
		return
	}
	delete(g.members, m)
	if len(g.members) == 0 {
		g.dead = true
		r.groups.Delete(sessionKey)
	}

	r.logger.Debug("session member left", "session_key", sessionKey, "conn_id", m.ID(), "members", len(g.members))
}

// Broadcast hands payload to every member of the session and returns how
// many accepted it. A member that drops the payload does not affect the
// others.
func (r *Registry) Broadcast(sessionKey string, payload []byte) int {
	members := r.Members(sessionKey)

	delivered := 0
	for _, m := range members {
		if m.Deliver(payload) {
			delivered++
			continue
		}
		r.logger.Warn("broadcast dropped for slow or closed member",
			"session_key", sessionKey, "conn_id", m.ID())
	}
	return delivered
}

// Members returns a snapshot of the session's members.
func (r *Registry) Members(sessionKey string) []Member {
	g, ok := r.groups.Load(sessionKey)
	if !ok {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	members := make([]Member, 0, len(g.members))
	for m := range g.members {
		members = append(members, m)
	}
	return members
}

// SessionCount returns the number of sessions with at least one member.
func (r *Registry) SessionCount() int {
	return r.groups.Size()
}

// MemberCount returns the number of members across all sessions.
func (r *Registry) MemberCount() int {
	total := 0
	r.groups.Range(func(_ string, g *group) bool {
		g.mu.Lock()
		total += len(g.members)
		g.mu.Unlock()
		return true
	})
	return total
}
