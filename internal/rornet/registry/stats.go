package registry

import (
	"slices"
	"time"
)

// Distances groups the four odometers. Values are meters; which odometer a
// move lands in depends on the stream that moved.
type Distances struct {
	MetersWalked float64
	MetersDriven float64
	MetersSailed float64
	MetersFlown  float64
}

func (d *Distances) add(o Distances) {
	d.MetersWalked += o.MetersWalked
	d.MetersDriven += o.MetersDriven
	d.MetersSailed += o.MetersSailed
	d.MetersFlown += o.MetersFlown
}

// UserStats accumulates one user's session: when they joined and how far
// they moved, split by odometer.
type UserStats struct {
	OnlineSince time.Time
	Distances
}

// GlobalStats aggregates lifetime counters across everyone seen since the
// registry was created, including users who already left.
type GlobalStats struct {
	Since             time.Time
	UsersJoined       int
	UsersParted       int
	UsersOnline       int
	StreamsRegistered int

	// Usernames is every distinct name seen, sorted. SessionDurations
	// holds one entry per completed session.
	Usernames        []string
	SessionDurations []time.Duration

	Distances
}

// GlobalStats folds the live users into the lifetime tallies.
func (r *Registry) GlobalStats() GlobalStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g := GlobalStats{
		Since:             r.since,
		UsersJoined:       r.joined,
		UsersParted:       r.parted,
		UsersOnline:       len(r.users),
		StreamsRegistered: r.streams,
		Usernames:         make([]string, 0, len(r.usernames)),
		SessionDurations:  slices.Clone(r.sessions),
		Distances:         r.folded,
	}
	for name := range r.usernames {
		g.Usernames = append(g.Usernames, name)
	}
	slices.Sort(g.Usernames)
	for _, u := range r.users {
		g.Distances.add(u.Stats.Distances)
	}
	return g
}
