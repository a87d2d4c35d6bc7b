package app

import (
	"context"
	"log"
	"time"
)

// Locker hands out a cluster-wide lock; release must be called when ok is true.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

const sweepLockKey = "rooms:sweep:lock"

// Sweeper completes expired rooms in the background. Expiry is still observed lazily on
// access; the sweep only shortens the window in which an untouched room looks active.
type Sweeper struct {
	store    Store
	rooms    *RoomService
	locker   Locker
	settings Settings
	batch    int
}

func NewSweeper(store Store, rooms *RoomService, locker Locker, settings Settings) *Sweeper {
	return &Sweeper{store: store, rooms: rooms, locker: locker, settings: settings.withDefaults(), batch: 100}
}

// SweepOnce completes one batch of expired or unnotified rooms and returns how many it finished.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	if s.locker != nil {
		release, ok, err := s.locker.TryLock(ctx, sweepLockKey, time.Minute)
		if err != nil {
			return 0, err
		}
		if !ok {
			log.Printf("room sweep skipped: another instance holds the lock")
			return 0, nil
		}
		defer release()
	}

	rooms, err := s.store.Rooms().ListUnfinished(ctx, s.settings.Now(), s.batch)
	if err != nil {
		return 0, err
	}
	completed := 0
	for _, room := range rooms {
		done, err := s.rooms.ExpireAndFinish(ctx, room)
		if err != nil {
			log.Printf("sweep room %s: %v", room.Code, err)
			continue
		}
		if done {
			completed++
		}
	}
	if completed > 0 {
		log.Printf("room sweep completed %d rooms", completed)
	}
	return completed, nil
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				log.Printf("room sweep failed: %v", err)
			}
		}
	}
}
