package service

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"vixogram/internal/cache"
	"vixogram/internal/config"
	"vixogram/internal/models"
	"vixogram/internal/observability"
	"vixogram/internal/repository"
)

const (
	trimLockTTL         = 10 * time.Second
	maintenanceCacheTTL = 3 * time.Second
)

// RetentionService handles per-room trimming, scheduled purges, and the
// maintenance-mode flag.
type RetentionService struct {
	cfg      *config.Config
	rooms    repository.RoomRepository
	messages repository.MessageRepository
	settings repository.NotificationRepository
}

// NewRetentionService wires retention. The settings repository carries the
// persisted site flags.
func NewRetentionService(
	cfg *config.Config,
	rooms repository.RoomRepository,
	messages repository.MessageRepository,
	settings repository.NotificationRepository,
) *RetentionService {
	return &RetentionService{cfg: cfg, rooms: rooms, messages: messages, settings: settings}
}

// TrimRoom deletes the oldest messages beyond the retention cap. A short
// cache lock throttles it to once per interval per room; losing the lock
// means another writer is already trimming.
func (s *RetentionService) TrimRoom(ctx context.Context, room *models.Room) {
	acquired, err := cache.AddIfAbsent(ctx, cache.TrimLockKey(room.GroupName), "1", trimLockTTL)
	if err != nil || !acquired {
		return
	}

	count, err := s.messages.Count(ctx, room.ID)
	if err != nil || count <= int64(s.cfg.KeepLastMessages) {
		return
	}

	removed, err := s.messages.TrimToNewest(ctx, room.ID, s.cfg.KeepLastMessages)
	if err != nil {
		observability.Logger.Warn("retention trim failed",
			slog.String("room", room.GroupName),
			slog.String("error", err.Error()),
		)
		return
	}
	if removed > 0 {
		observability.RetentionTrimmed.Add(float64(removed))
		observability.Logger.Info("trimmed room messages",
			slog.String("room", room.GroupName),
			slog.Int64("removed", removed),
		)
	}
}

// RunScheduledPurges deletes aged messages and stale code rooms in batches.
// The two purges are independent and run concurrently.
func (s *RetentionService) RunScheduledPurges(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		cutoff := time.Now().AddDate(0, 0, -s.cfg.PurgeMessageDays)
		removed, err := s.messages.PurgeOlderThan(ctx, cutoff, s.cfg.PurgeBatchSize)
		if err != nil {
			return err
		}
		if removed > 0 {
			observability.Logger.Info("purged old messages", slog.Int64("removed", removed))
		}
		return nil
	})

	g.Go(func() error {
		cutoff := time.Now().AddDate(0, 0, -s.cfg.PurgeCodeRoomDays)
		removed, err := s.rooms.PurgeCodeRoomsOlderThan(ctx, cutoff, s.cfg.PurgeBatchSize)
		if err != nil {
			return err
		}
		if removed > 0 {
			observability.Logger.Info("purged old code rooms", slog.Int64("removed", removed))
		}
		return nil
	})

	return g.Wait()
}

// StartPurgeLoop runs scheduled purges on the given interval until ctx ends.
func (s *RetentionService) StartPurgeLoop(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.RunScheduledPurges(ctx); err != nil {
					observability.Logger.Error("scheduled purge failed", slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// MaintenanceEnabled reads the maintenance flag through a short cache so the
// gate does not hit the database on every request.
func (s *RetentionService) MaintenanceEnabled(ctx context.Context) bool {
	if cached, ok, err := cache.GetString(ctx, cache.MaintenanceKey); err == nil && ok {
		return cached == "1"
	}

	enabled, err := s.settings.GetSetting(ctx, models.SettingMaintenanceMode)
	if err != nil {
		// Fail-open: an unreadable flag never locks everyone out.
		return false
	}

	value := "0"
	if enabled {
		value = "1"
	}
	_ = cache.SetWithTTL(ctx, cache.MaintenanceKey, value, maintenanceCacheTTL)
	return enabled
}

// SetMaintenance persists the maintenance flag and invalidates the cache.
func (s *RetentionService) SetMaintenance(ctx context.Context, enabled bool) error {
	if err := s.settings.SetSetting(ctx, models.SettingMaintenanceMode, enabled); err != nil {
		return models.NewInternalError(err)
	}
	_ = cache.Delete(ctx, cache.MaintenanceKey)
	observability.Logger.Info("maintenance mode changed", slog.Bool("enabled", enabled))
	return nil
}
