package ipc

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/go-redis/redis/v8"
)

// Store answers show-* control queries from the Redis mirror Sink writes,
// so a query never has to wait on a live event to learn current state
// (spec.md §5's dump/query_seq correlation moves the bulk-fetch burden to
// the kernel dump path; this mirror is the equivalent for IPC control
// queries against KRSC's own state).
type Store struct {
	client *redis.Client
	ctx    context.Context
}

// NewStore connects to the same Redis instance/DB a Sink mirrors into.
func NewStore(addr string, db int) *Store {
	return &Store{
		client: redis.NewClient(&redis.Options{Addr: addr, DB: db}),
		ctx:    context.Background(),
	}
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Reply is one row of a show-* control query's multi-message response.
type Reply struct {
	Key    string            `json:"key"`
	Fields map[string]string `json:"fields"`
}

// End is the terminal sentinel spec.md §5 requires every control-query
// reply stream to close with.
const End = "end"

// ShowNetwork answers show-kroute: every mirrored network-add entry for
// the given table, in key order for deterministic output.
func (s *Store) ShowNetwork(tableID uint32) ([]Reply, error) {
	return s.snapshot(fmt.Sprintf("%s|%d|*", tableNetwork, tableID))
}

// ShowNetworkAddr answers show-kroute-addr: every mirrored entry (one per
// priority, possibly none) whose prefix component matches addr exactly.
func (s *Store) ShowNetworkAddr(tableID uint32, addr string) ([]Reply, error) {
	all, err := s.ShowNetwork(tableID)
	if err != nil {
		return nil, err
	}
	var matched []Reply
	needle := fmt.Sprintf("%d|%s|", tableID, addr)
	for _, r := range all {
		if strings.HasPrefix(r.Key, needle) {
			matched = append(matched, r)
		}
	}
	return matched, nil
}

// ShowNexthop answers show-nexthop: every mirrored nexthop-update entry.
func (s *Store) ShowNexthop() ([]Reply, error) {
	return s.snapshot(tableNexthop + "|*")
}

// ShowInterface answers show-interface: the interface snapshot Sink's run
// loop most recently mirrored.
func (s *Store) ShowInterface() ([]Reply, error) {
	return s.snapshot(tableInterface + "|*")
}

// ShowFIBTables answers show-fib-tables: the table metadata snapshot
// Sink's run loop most recently mirrored.
func (s *Store) ShowFIBTables() ([]Reply, error) {
	return s.snapshot(tableFIB + "|*")
}

func (s *Store) snapshot(pattern string) ([]Reply, error) {
	keys, err := s.client.Keys(s.ctx, pattern).Result()
	if err != nil {
		return nil, fmt.Errorf("ipc: snapshot keys: %w", err)
	}
	sort.Strings(keys)

	replies := make([]Reply, 0, len(keys))
	for _, key := range keys {
		fields, err := s.client.HGetAll(s.ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("ipc: snapshot read %s: %w", key, err)
		}
		parts := strings.SplitN(key, "|", 2)
		natural := key
		if len(parts) == 2 {
			natural = parts[1]
		}
		replies = append(replies, Reply{Key: natural, Fields: fields})
	}
	return replies, nil
}
