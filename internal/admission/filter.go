package admission

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const DefaultQueryTimeout = 2 * time.Second

// Filter decides whether a logical player identity should be tracked.
type Filter interface {
	Allowed(ctx context.Context, identity string) bool
}

// AllowList is a host-managed set of identities, replaced wholesale.
type AllowList struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func NewAllowList(ids []string) *AllowList {
	list := &AllowList{}
	list.Replace(ids)
	return list
}

func (l *AllowList) Allowed(_ context.Context, identity string) bool {
	return l.Contains(identity)
}

func (l *AllowList) Contains(identity string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.ids[identity]
	return ok
}

// Replace swaps the whole set and reports whether it changed.
func (l *AllowList) Replace(ids []string) bool {
	next := make(map[string]struct{}, len(ids))
	for _, id := range lo.Compact(ids) {
		next[id] = struct{}{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	changed := len(next) != len(l.ids)
	if !changed {
		for id := range next {
			if _, ok := l.ids[id]; !ok {
				changed = true
				break
			}
		}
	}
	l.ids = next
	return changed
}

func (l *AllowList) List() []string {
	l.mu.RLock()
	ids := lo.Keys(l.ids)
	l.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Querier answers "is this identity allowed" by asking the host.
type Querier interface {
	QueryAllowed(ctx context.Context, identity string) (bool, error)
}

// HostQuery asks the host on every check. Any failure, including a timeout,
// answers false.
type HostQuery struct {
	querier Querier
	timeout time.Duration
}

func NewHostQuery(querier Querier, timeout time.Duration) *HostQuery {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &HostQuery{querier: querier, timeout: timeout}
}

func (q *HostQuery) Allowed(ctx context.Context, identity string) bool {
	if q.querier == nil {
		return false
	}

	queryCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	allowed, err := q.querier.QueryAllowed(queryCtx, identity)
	if err != nil {
		log.Debug().Err(err).Str("player", identity).Msg("admission: host query failed, denying")
		return false
	}
	return allowed
}
