package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/lightfade/internal/config"
	"github.com/dokzlo13/lightfade/internal/db"
	"github.com/dokzlo13/lightfade/internal/device"
	"github.com/dokzlo13/lightfade/internal/eventbus"
	"github.com/dokzlo13/lightfade/internal/hue"
	"github.com/dokzlo13/lightfade/internal/ledger"
)

// Services is a container for the infrastructure around a fade session.
type Services struct {
	cfg *config.Config

	DB       *db.DB
	Ledger   *ledger.Ledger
	Bus      *eventbus.Bus
	Progress *ProgressReporter
	Hue      *hue.Client
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config) (*Services, error) {
	s := &Services{cfg: cfg}

	s.Bus = eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	s.Progress = NewProgressReporter()
	s.Bus.SubscribeAll(s.Progress.Handle)

	if cfg.Ledger.IsEnabled() {
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.DB = database
		s.Ledger = ledger.New(database.DB)

		if removed, err := s.Ledger.DeleteOlderThan(cfg.Ledger.Retention()); err != nil {
			log.Warn().Err(err).Msg("Failed to prune session ledger")
		} else if removed > 0 {
			log.Debug().Int64("removed", removed).Msg("Pruned session ledger")
		}

		if last, err := s.LastSession(); err != nil {
			log.Warn().Err(err).Msg("Failed to read session ledger")
		} else if last != nil {
			log.Info().
				Str("session", last.SessionID).
				Time("finished", last.Timestamp).
				Interface("steps", last.Payload["steps"]).
				Interface("failed", last.Payload["failed"]).
				Msg("Last completed session")
		}

		s.Bus.SubscribeAll(s.Ledger.Record)
	}

	return s, nil
}

// LastSession returns the most recent session_completed ledger entry, or nil
// if there is none or the ledger is disabled.
func (s *Services) LastSession() (*ledger.Entry, error) {
	if s.Ledger == nil {
		return nil, nil
	}
	entries, err := s.Ledger.GetByType(eventbus.EventSessionCompleted, 1)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return entries[0], nil
}

// ConnectHue connects to the configured Hue light.
func (s *Services) ConnectHue(ctx context.Context) (device.Light, error) {
	log.Info().Str("bridge", s.cfg.Hue.Bridge).Str("light", s.cfg.Hue.Light).Msg("Connecting")

	s.Hue = hue.NewClient(s.cfg.Hue.Bridge, s.cfg.Hue.Token, s.cfg.Hue.Timeout.Duration())
	light, err := hue.Connect(ctx, s.Hue, s.cfg.Hue.Light, s.cfg.Hue.RateLimitRPS)
	if err != nil {
		return nil, err
	}
	return light, nil
}

// Close releases all resources, flushing queued events first.
func (s *Services) Close() {
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.GetShutdownTimeout())
		defer cancel()
		s.Bus.Close(ctx)
	}
	if s.Hue != nil {
		s.Hue.Close()
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
