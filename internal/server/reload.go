package server

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dgnsrekt/options-screener/internal/config"
	"github.com/dgnsrekt/options-screener/internal/data"
	"github.com/dgnsrekt/options-screener/internal/screener"
	"github.com/dgnsrekt/options-screener/internal/ws"
)

// Snapshot is the record set for one trading date held in memory.
type Snapshot struct {
	Date     string
	Records  []data.OptionRecord
	LoadedAt time.Time
}

// ReloadManager owns the in-memory snapshot and swaps it atomically when a
// new trading date is loaded. Subscribers of preset feeds receive a fresh
// screen of the new snapshot after every swap.
type ReloadManager struct {
	loader data.Loader
	engine *screener.Engine
	hub    *ws.Hub
	config *config.ServerConfig
	logger *zap.Logger

	current  atomic.Pointer[Snapshot]
	reloadMu sync.Mutex // prevents concurrent reloads

	hooksMu sync.Mutex
	hooks   []func(*ReloadResult)
}

// NewReloadManager creates a ReloadManager. hub may be nil when the preset feed is disabled.
func NewReloadManager(
	loader data.Loader,
	engine *screener.Engine,
	hub *ws.Hub,
	cfg *config.ServerConfig,
	logger *zap.Logger,
) *ReloadManager {
	return &ReloadManager{
		loader: loader,
		engine: engine,
		hub:    hub,
		config: cfg,
		logger: logger,
	}
}

// Current returns the loaded snapshot, or nil before the first load.
func (rm *ReloadManager) Current() *Snapshot {
	return rm.current.Load()
}

// OnReload registers fn to run after every successful reload.
func (rm *ReloadManager) OnReload(fn func(*ReloadResult)) {
	rm.hooksMu.Lock()
	defer rm.hooksMu.Unlock()
	rm.hooks = append(rm.hooks, fn)
}

// ReloadResult contains the result of a successful reload operation.
type ReloadResult struct {
	PreviousDate string    `json:"previous_date,omitempty"`
	NewDate      string    `json:"new_date"`
	LoadedAt     time.Time `json:"loaded_at"`
	Records      int       `json:"records"`
	Broadcasts   int       `json:"broadcasts"`
}

// Reload loads the records for newDate ("latest" picks the newest date folder)
// and swaps them in. On failure the previous snapshot stays in place.
func (rm *ReloadManager) Reload(ctx context.Context, newDate string) (*ReloadResult, error) {
	// Prevent concurrent reloads
	if !rm.reloadMu.TryLock() {
		return nil, ErrReloadInProgress
	}
	defer rm.reloadMu.Unlock()

	if newDate == "" || newDate == "latest" {
		detected, err := config.DetectLatestDate(rm.config.DataDir)
		if err != nil {
			return nil, fmt.Errorf("detecting latest date: %w", err)
		}
		newDate = detected
	}

	previousDate := ""
	if prev := rm.Current(); prev != nil {
		previousDate = prev.Date
	}

	rm.logger.Info("starting reload",
		zap.String("previousDate", previousDate),
		zap.String("newDate", newDate),
	)

	records, err := rm.loader.Load(ctx, newDate, nil)
	if err != nil {
		return nil, fmt.Errorf("loading records for %s: %w", newDate, err)
	}

	snap := &Snapshot{Date: newDate, Records: records, LoadedAt: time.Now()}
	rm.current.Store(snap)

	broadcasts := rm.broadcast(ctx, snap)

	rm.logger.Info("reload complete",
		zap.String("previousDate", previousDate),
		zap.String("newDate", newDate),
		zap.Int("records", len(records)),
		zap.Int("broadcasts", broadcasts),
	)

	result := &ReloadResult{
		PreviousDate: previousDate,
		NewDate:      newDate,
		LoadedAt:     snap.LoadedAt,
		Records:      len(records),
		Broadcasts:   broadcasts,
	}

	rm.hooksMu.Lock()
	hooks := append([]func(*ReloadResult){}, rm.hooks...)
	rm.hooksMu.Unlock()
	for _, fn := range hooks {
		fn(result)
	}

	return result, nil
}

// Records returns the records for date. An empty date or "latest" means the
// loaded snapshot; other dates are read from disk without replacing it.
func (rm *ReloadManager) Records(ctx context.Context, date string) (string, []data.OptionRecord, error) {
	snap := rm.Current()
	if date == "" || date == "latest" || (snap != nil && snap.Date == date) {
		if snap == nil {
			return "", nil, data.ErrNoRecords
		}
		return snap.Date, snap.Records, nil
	}

	records, err := rm.loader.Load(ctx, date, nil)
	if err != nil {
		return date, nil, err
	}
	return date, records, nil
}

// broadcast screens the snapshot with every preset that has subscribers and
// pushes the results. It returns the number of groups that received a message.
func (rm *ReloadManager) broadcast(ctx context.Context, snap *Snapshot) int {
	if rm.hub == nil {
		return 0
	}

	sent := 0
	for _, preset := range rm.hub.ActiveGroups() {
		payload, err := rm.screenPreset(ctx, preset, snap)
		if err != nil {
			rm.logger.Warn("preset feed screen failed",
				zap.String("preset", preset),
				zap.Error(err),
			)
			continue
		}
		if rm.hub.Broadcast(preset, payload) > 0 {
			sent++
		}
	}
	return sent
}

func (rm *ReloadManager) screenPreset(ctx context.Context, preset string, snap *Snapshot) (json.RawMessage, error) {
	path, err := config.FindPreset(rm.config.PresetDir, preset)
	if err != nil {
		return nil, err
	}
	raw, err := config.LoadPreset(path)
	if err != nil {
		return nil, err
	}
	res, err := rm.engine.Run(ctx, raw, snap.Records)
	if err != nil {
		return nil, err
	}
	return json.Marshal(newScreenResponse(uuid.NewString(), snap.Date, preset, res))
}
