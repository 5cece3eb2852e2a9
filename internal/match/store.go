package match

import (
	"context"
	"crypto/rand"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// Store keeps one record per match id. Implementations must make Update
// atomic with respect to other Update calls on the same id.
type Store interface {
	// Create writes m only if no record exists under m.ID. It reports false
	// when the id is already taken.
	Create(ctx context.Context, m *Match) (bool, error)
	// Load returns ErrNotFound when the id is unknown.
	Load(ctx context.Context, id string) (*Match, error)
	// Update reads the record, hands a copy to fn and commits the copy with
	// Version+1 unless fn fails. When fn returns an error the stored record is
	// returned untouched alongside it. A lost race re-runs fn on a fresh read.
	Update(ctx context.Context, id string, fn func(*Match) error) (*Match, error)
	// IndexSession adds matchID to the set of matches the session has
	// been seated in.
	IndexSession(ctx context.Context, sessionID, matchID string) error
	// MatchIDsBySession returns the indexed match ids in sorted order, or
	// none when the session is unknown.
	MatchIDsBySession(ctx context.Context, sessionID string) ([]string, error)
	Close() error
}

// errNoop from an Update callback returns the current record without writing.
var errNoop = errf("no change")

const (
	idLength          = 6
	maxIDAttempts     = 5
	maxUpdateAttempts = 8
)

// idGen returns 6 upper-case alphanumerics.
func idGen() (string, error) {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	b := make([]byte, idLength)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	for i := range b {
		b[i] = letters[int(b[i])%len(letters)]
	}
	return string(b), nil
}

// NormalizeID trims and upper-cases a user supplied match id.
func NormalizeID(id string) string { return strings.ToUpper(strings.TrimSpace(id)) }

func matchKey(id string) string { return "c4:match:" + NormalizeID(id) }
func sessionKey(sessionID string) string { return "c4:sessions:" + strings.TrimSpace(sessionID) }

// ParseRedisURL turns redis://[:password@]host:port/db into client options.
func ParseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}

// NewID returns a fresh match id without reserving it.
func NewID() (string, error) { return idGen() }
