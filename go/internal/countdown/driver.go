package countdown

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// DriverConfig tunes the display and resync cadence.
type DriverConfig struct {
	// DisplayInterval is the fast tick feeding the display path.
	DisplayInterval time.Duration
	// SyncInterval is the steady-state resync period.
	SyncInterval time.Duration
	// NearExpiryInterval replaces SyncInterval once remaining drops below
	// NearExpiryWindow.
	NearExpiryInterval time.Duration
	NearExpiryWindow   time.Duration
	// OnTick, when set, receives every display state the driver produces.
	OnTick func(DisplayState)
}

// DefaultDriverConfig returns the production cadence.
func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		DisplayInterval:    100 * time.Millisecond,
		SyncInterval:       5 * time.Minute,
		NearExpiryInterval: 30 * time.Second,
		NearExpiryWindow:   time.Minute,
	}
}

func (c DriverConfig) withDefaults() DriverConfig {
	def := DefaultDriverConfig()
	if c.DisplayInterval <= 0 {
		c.DisplayInterval = def.DisplayInterval
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = def.SyncInterval
	}
	if c.NearExpiryInterval <= 0 {
		c.NearExpiryInterval = def.NearExpiryInterval
	}
	if c.NearExpiryWindow <= 0 {
		c.NearExpiryWindow = def.NearExpiryWindow
	}
	return c
}

// Driver periodically ticks a session for display and periodically triggers
// resynchronization, tightening the resync cadence near expiry and resyncing
// immediately when connectivity returns. Sync cycles run off the tick path;
// the session's in-flight guard and cooldown keep at most one cycle active.
type Driver struct {
	session  *Session
	cfg      DriverConfig
	onlineCh chan bool
}

// NewDriver wraps a session. The driver shares the session's clock.
func NewDriver(session *Session, cfg DriverConfig) *Driver {
	return &Driver{
		session:  session,
		cfg:      cfg.withDefaults(),
		onlineCh: make(chan bool, 4),
	}
}

// SetOnline reports a connectivity transition. A transition to online
// triggers an immediate resync.
func (d *Driver) SetOnline(online bool) {
	select {
	case d.onlineCh <- online:
	default:
		log.Warn().Str("session", d.session.id).Msg("connectivity channel full - dropping signal")
	}
}

// Run drives the session until ctx is cancelled. It restores from the
// snapshot store first, then launches the initial sync.
func (d *Driver) Run(ctx context.Context) error {
	clock := d.session.clock

	log.Info().
		Str("session", d.session.id).
		Str("key", d.session.key).
		Dur("display_interval", d.cfg.DisplayInterval).
		Dur("sync_interval", d.cfg.SyncInterval).
		Msg("countdown driver started")

	d.session.Restore(ctx)
	go d.session.SyncNow(ctx)

	display := clock.NewTicker(d.cfg.DisplayInterval)
	defer display.Stop()

	resync := clock.NewTimer(d.cfg.SyncInterval)
	defer resync.Stop()

	online := true
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("session", d.session.id).Msg("countdown driver stopped")
			return nil

		case <-display.Chan():
			st := d.session.Tick()
			if d.cfg.OnTick != nil {
				d.cfg.OnTick(st)
			}

		case <-resync.Chan():
			if online {
				go d.session.SyncNow(ctx)
			}
			resync.Reset(d.nextSyncInterval())

		case on := <-d.onlineCh:
			if on == online {
				continue
			}
			online = on
			d.session.events.Emit(Event{
				Type:        EventConnectivity,
				SessionID:   d.session.id,
				Key:         d.session.key,
				At:          clock.Now(),
				RemainingMS: int64(d.session.Remaining() / time.Millisecond),
				Online:      on,
			})
			if on {
				log.Info().Str("session", d.session.id).Msg("connectivity restored - resyncing")
				go d.session.SyncNow(ctx)
				resync.Reset(d.nextSyncInterval())
			} else {
				log.Warn().Str("session", d.session.id).Msg("connectivity lost")
			}
		}
	}
}

// nextSyncInterval tightens the resync cadence once the countdown is close
// to its deadline.
func (d *Driver) nextSyncInterval() time.Duration {
	remaining := d.session.Remaining()
	if remaining > 0 && remaining < d.cfg.NearExpiryWindow {
		return d.cfg.NearExpiryInterval
	}
	return d.cfg.SyncInterval
}
