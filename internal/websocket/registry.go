package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/geostrike/internal/domain"
)

// Session is the live binding between a player identity and its transport
// connection, plus the last known location used for proximity scoping.
type Session struct {
	PlayerID   string
	Conn       *Conn
	Location   *domain.Location
	JoinedAt   time.Time
	LastActive time.Time
}

// Registry maps each player to exactly one live connection. All mutation goes
// through its lock; iteration works on snapshots so broadcasts never hold the
// lock across sends.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	logger   *slog.Logger
}

// NewRegistry creates an empty connection registry.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		logger:   logger,
	}
}

// Register installs or replaces the mapping for playerID and reports whether
// this created a new session. When a session already exists its old
// connection is closed and only the new handle survives.
func (r *Registry) Register(playerID string, conn *Conn) (isNew bool) {
	var replaced *Conn

	r.mu.Lock()
	sess, ok := r.sessions[playerID]
	if ok {
		if sess.Conn != conn {
			replaced = sess.Conn
			sess.Conn = conn
		}
		sess.LastActive = time.Now()
	} else {
		now := time.Now()
		r.sessions[playerID] = &Session{
			PlayerID:   playerID,
			Conn:       conn,
			JoinedAt:   now,
			LastActive: now,
		}
	}
	r.mu.Unlock()

	if replaced != nil {
		replaced.Close()
		r.logger.Info("replaced connection for player", "player_id", playerID)
	}
	return !ok
}

// Resolve returns the live connection for playerID, nil if absent.
func (r *Registry) Resolve(playerID string) *Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if sess, ok := r.sessions[playerID]; ok {
		return sess.Conn
	}
	return nil
}

// Remove deletes the mapping for playerID and reports whether an entry was
// removed. When conn is non-nil the entry is only removed if it still maps to
// that connection, so a stale close cannot evict a replacement session.
func (r *Registry) Remove(playerID string, conn *Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	sess, ok := r.sessions[playerID]
	if !ok {
		return false
	}
	if conn != nil && sess.Conn != conn {
		return false
	}
	delete(r.sessions, playerID)
	return true
}

// Touch refreshes the session's last-active timestamp.
func (r *Registry) Touch(playerID string) {
	r.mu.Lock()
	if sess, ok := r.sessions[playerID]; ok {
		sess.LastActive = time.Now()
	}
	r.mu.Unlock()
}

// UpdateLocation records the player's last known coordinate.
func (r *Registry) UpdateLocation(playerID string, loc *domain.Location) {
	if loc == nil {
		return
	}
	r.mu.Lock()
	if sess, ok := r.sessions[playerID]; ok {
		sess.Location = loc
		sess.LastActive = time.Now()
	}
	r.mu.Unlock()
}

// Snapshot returns a copy of all live sessions.
func (r *Registry) Snapshot() []Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		out = append(out, *sess)
	}
	return out
}

// ForEach calls fn for every live session using a snapshot, so fn may call
// back into the registry without deadlocking.
func (r *Registry) ForEach(fn func(sess Session)) {
	for _, sess := range r.Snapshot() {
		fn(sess)
	}
}

// Count returns the number of live sessions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// SendTo delivers an envelope to one player. Silently a no-op when the player
// is not connected.
func (r *Registry) SendTo(playerID string, env domain.Envelope) {
	if conn := r.Resolve(playerID); conn != nil {
		conn.Send(env)
	}
}

// Broadcast fans an envelope out to every open session except excludeID.
// Unreachable recipients are skipped without aborting the rest.
func (r *Registry) Broadcast(env domain.Envelope, excludeID string) {
	data, err := json.Marshal(env)
	if err != nil {
		r.logger.Error("failed to marshal broadcast", "type", env.Type, "error", err)
		return
	}

	for _, sess := range r.Snapshot() {
		if sess.PlayerID == excludeID {
			continue
		}
		sess.Conn.SendRaw(data)
	}
}

// ReapStale removes and returns sessions whose last activity is older than
// maxIdle. The caller owns the disconnect side effects for each.
func (r *Registry) ReapStale(now time.Time, maxIdle time.Duration) []Session {
	var stale []Session

	r.mu.Lock()
	for id, sess := range r.sessions {
		if now.Sub(sess.LastActive) > maxIdle {
			stale = append(stale, *sess)
			delete(r.sessions, id)
		}
	}
	r.mu.Unlock()

	return stale
}
