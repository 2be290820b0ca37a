package ipc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/kroutesync/krsc/pkg/iface"
	"github.com/kroutesync/krsc/pkg/ktable"
	"github.com/kroutesync/krsc/pkg/nexthop"
	"github.com/kroutesync/krsc/pkg/rib"
	"github.com/kroutesync/krsc/pkg/util"
)

// Pub/Sub channels the session and RDE processes subscribe to.
const (
	ChannelNetworkAdd      = "krsc:network-add"
	ChannelNetworkRemove   = "krsc:network-remove"
	ChannelNexthopUpdate   = "krsc:nexthop-update"
	ChannelSessionDependOn = "krsc:session-dependon"
)

// Redis hash table names the mirror writes to, in config_db's "TABLE|key"
// idiom.
const (
	tableNetwork   = "NETWORK_TABLE"
	tableNexthop   = "NEXTHOP_TABLE"
	tableInterface = "INTERFACE_TABLE"
	tableFIB       = "FIB_TABLE"
)

// Sink is a Redis-backed implementation of reconciler.Sink: every delivery
// is published for live subscribers and mirrored into a hash so a later
// show-* query sees the same state without needing to have been listening.
type Sink struct {
	client *redis.Client
	ctx    context.Context
}

// NewSink connects to the given Redis address/DB. db conventionally
// distinguishes the control-plane mirror from any other Redis use on the
// same instance (the teacher reserves DB 4/6 for CONFIG_DB/STATE_DB;
// krscd uses its own DB, defaulted by the caller's configuration).
func NewSink(addr string, db int) *Sink {
	return &Sink{
		client: redis.NewClient(&redis.Options{Addr: addr, DB: db}),
		ctx:    context.Background(),
	}
}

// Close releases the underlying connection.
func (s *Sink) Close() error {
	return s.client.Close()
}

func (s *Sink) publish(channel string, v interface{}) {
	payload, err := json.Marshal(v)
	if err != nil {
		util.WithField("channel", channel).WithField("error", err).Warn("ipc: marshal failed")
		return
	}
	if err := s.client.Publish(s.ctx, channel, payload).Err(); err != nil {
		util.WithField("channel", channel).WithField("error", err).Warn("ipc: publish failed")
	}
}

func (s *Sink) mirror(table, key string, fields map[string]string) {
	redisKey := fmt.Sprintf("%s|%s", table, key)
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err := s.client.HSet(s.ctx, redisKey, args...).Err(); err != nil {
		util.WithField("key", redisKey).WithField("error", err).Warn("ipc: mirror write failed")
	}
}

func (s *Sink) unmirror(table, key string) {
	redisKey := fmt.Sprintf("%s|%s", table, key)
	if err := s.client.Del(s.ctx, redisKey).Err(); err != nil {
		util.WithField("key", redisKey).WithField("error", err).Warn("ipc: mirror delete failed")
	}
}

// NetworkAdd implements reconciler.Sink.
func (s *Sink) NetworkAdd(tableID uint32, e *rib.Entry) {
	msg := NetworkMsg{
		Table:    tableID,
		Prefix:   e.Prefix.String(),
		Nexthop:  nexthopString(e),
		Ifindex:  e.Ifindex,
		Priority: e.Priority,
		Flags:    fmt.Sprintf("%d", e.Flags),
	}
	s.publish(ChannelNetworkAdd, msg)
	s.mirror(tableNetwork, routeKey(tableID, msg.Prefix, msg.Priority), map[string]string{
		"nexthop": msg.Nexthop, "ifindex": fmt.Sprintf("%d", msg.Ifindex), "flags": msg.Flags,
	})
}

// NetworkRemove implements reconciler.Sink.
func (s *Sink) NetworkRemove(tableID uint32, e *rib.Entry) {
	msg := NetworkMsg{
		Table:    tableID,
		Prefix:   e.Prefix.String(),
		Nexthop:  nexthopString(e),
		Ifindex:  e.Ifindex,
		Priority: e.Priority,
		Flags:    fmt.Sprintf("%d", e.Flags),
	}
	s.publish(ChannelNetworkRemove, msg)
	s.unmirror(tableNetwork, routeKey(tableID, msg.Prefix, msg.Priority))
}

// NexthopUpdate implements reconciler.Sink.
func (s *Sink) NexthopUpdate(u nexthop.Update) {
	msg := NexthopMsg{
		Nexthop:   u.Nexthop.String(),
		Valid:     u.State == nexthop.StateValid,
		Connected: u.Connected,
		Ifindex:   u.Ifindex,
	}
	if !u.TrueNexthop.IsUnspec() {
		msg.TrueNexthop = u.TrueNexthop.String()
	}
	if u.Connected {
		msg.Net = u.CoveringPrefix.String()
	}
	s.publish(ChannelNexthopUpdate, msg)
	fields := map[string]string{
		"valid":     fmt.Sprintf("%t", msg.Valid),
		"connected": fmt.Sprintf("%t", msg.Connected),
		"ifindex":   fmt.Sprintf("%d", msg.Ifindex),
	}
	if msg.Net != "" {
		fields["net"] = msg.Net
	}
	s.mirror(tableNexthop, nexthopKey(msg.Nexthop), fields)
}

// SessionDependOn implements reconciler.Sink.
func (s *Sink) SessionDependOn(ifindex int, depend iface.DependState) {
	name := "stale"
	if depend == iface.DependActive {
		name = "active"
	}
	s.publish(ChannelSessionDependOn, SessionDependOnMsg{Ifindex: ifindex, Depend: name})
}

// MirrorInterfaces replaces the interface snapshot show-interface answers
// from. Interface state isn't part of reconciler.Sink — nothing subscribes
// to it live — so the run loop calls this periodically instead of wiring
// it through the reconciler's per-event delivery path.
func (s *Sink) MirrorInterfaces(records []*iface.Record) {
	s.clearTable(tableInterface)
	for _, r := range records {
		s.mirror(tableInterface, fmt.Sprintf("%d", r.Ifindex), map[string]string{
			"name":         r.Name,
			"up":           fmt.Sprintf("%t", r.IsUp()),
			"nh_reachable": fmt.Sprintf("%t", r.NHReachable()),
		})
	}
}

// MirrorTables replaces the FIB table metadata snapshot show-fib-tables
// answers from, for the same reason MirrorInterfaces exists.
func (s *Sink) MirrorTables(tables []*ktable.Table) {
	s.clearTable(tableFIB)
	for _, t := range tables {
		s.mirror(tableFIB, fmt.Sprintf("%d", t.ID), map[string]string{
			"name":         t.Name,
			"coupled":      fmt.Sprintf("%t", t.Coupled),
			"no_fib":       fmt.Sprintf("%t", t.NoFIB),
			"no_fib_sync":  fmt.Sprintf("%t", t.NoFIBSync),
			"no_evaluate":  fmt.Sprintf("%t", t.NoEvaluate),
		})
	}
}

func (s *Sink) clearTable(table string) {
	keys, err := s.client.Keys(s.ctx, table+"|*").Result()
	if err != nil {
		util.WithField("error", err).Warn("ipc: mirror scan failed")
		return
	}
	if len(keys) == 0 {
		return
	}
	if err := s.client.Del(s.ctx, keys...).Err(); err != nil {
		util.WithField("error", err).Warn("ipc: mirror clear failed")
	}
}

func nexthopString(e *rib.Entry) string {
	if e.Nexthop.IsUnspec() {
		return ""
	}
	return e.Nexthop.String()
}
