package collabclient

import (
	"context"
	"sync"
	"time"

	"github.com/bep/debounce"
	"go.uber.org/zap"

	"drawboard/internal/element"
	"drawboard/internal/protocol"
	"drawboard/internal/repository"
)

// DefaultSaveDelay quiet period before a burst of edits is persisted.
const DefaultSaveDelay = 1500 * time.Millisecond

// persistedAppState keys kept when saving; transient UI state is dropped.
var persistedAppState = []string{"viewBackgroundColor", "currentItemFontFamily", "gridSize"}

// ProjectAppState keeps only the persisted app-state keys.
func ProjectAppState(state map[string]any) map[string]any {
	out := make(map[string]any, len(persistedAppState))
	for _, k := range persistedAppState {
		if v, ok := state[k]; ok {
			out[k] = v
		}
	}
	return out
}

// AutosaveConfig Autosave 설정
type AutosaveConfig struct {
	Store       repository.DrawingRepository
	DrawingID   string
	Scene       *Scene
	Permission  protocol.Permission
	Delay       time.Duration
	Timeout     time.Duration
	OnSaveError func(error)
	OnSaved     func(*repository.Drawing)
	Logger      *zap.SugaredLogger
}

// Autosave debounces scene persistence.
type Autosave struct {
	cfg       AutosaveConfig
	debounced func(f func())

	mu     sync.Mutex
	closed bool
	saving sync.WaitGroup
}

// NewAutosave Autosave 생성
func NewAutosave(cfg AutosaveConfig) *Autosave {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultSaveDelay
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop().Sugar()
	}
	return &Autosave{cfg: cfg, debounced: debounce.New(cfg.Delay)}
}

// Schedule (re)starts the quiet period. View-only sessions never save.
func (a *Autosave) Schedule() {
	if !a.cfg.Permission.CanEdit() {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return
	}
	a.debounced(a.fire)
}

func (a *Autosave) fire() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.saving.Add(1)
	a.mu.Unlock()
	defer a.saving.Done()

	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Timeout)
	defer cancel()
	if err := a.SaveNow(ctx); err != nil && a.cfg.OnSaveError != nil {
		a.cfg.OnSaveError(err)
	}
}

// SaveNow persists visible elements and the projected app state immediately.
func (a *Autosave) SaveNow(ctx context.Context) error {
	if !a.cfg.Permission.CanEdit() {
		return nil
	}

	elements := element.FilterVisible(a.cfg.Scene.Elements())
	patch := repository.Patch{
		Elements: &elements,
		AppState: ProjectAppState(a.cfg.Scene.AppState()),
	}

	saved, err := a.cfg.Store.Update(ctx, a.cfg.DrawingID, patch)
	if err != nil {
		a.cfg.Logger.Warnf("[Autosave %s] Save failed: %v", a.cfg.DrawingID, err)
		return err
	}
	a.cfg.Logger.Debugf("[Autosave %s] Saved %d elements (version %d)", a.cfg.DrawingID, len(elements), saved.Version)
	if a.cfg.OnSaved != nil {
		a.cfg.OnSaved(saved)
	}
	return nil
}

// Close cancels a pending save and waits for one in flight.
func (a *Autosave) Close() {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return
	}
	a.closed = true
	// debounce has no cancel; replacing the func makes the pending timer a no-op
	a.debounced(func() {})
	a.mu.Unlock()

	a.saving.Wait()
}
