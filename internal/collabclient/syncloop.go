package collabclient

import (
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"drawboard/internal/element"
)

// TickInterval render tick (~60Hz).
const TickInterval = 16 * time.Millisecond

// syncingTicks covers the applying tick plus one extra tick.
const syncingTicks = 2

// SyncLoop buffers remote element and cursor updates and applies them to the
// scene at most once per tick.
type SyncLoop struct {
	clk      clock.Clock
	interval time.Duration
	scene    *Scene
	tracker  *element.Tracker
	log      *zap.SugaredLogger

	mu      sync.Mutex
	elemBuf map[string]element.Element
	cursors map[string]Collaborator
	syncing int

	runMu sync.Mutex
	stop  chan struct{}
	done  chan struct{}
}

// NewSyncLoop SyncLoop 생성
func NewSyncLoop(clk clock.Clock, interval time.Duration, scene *Scene, tracker *element.Tracker, log *zap.SugaredLogger) *SyncLoop {
	return &SyncLoop{
		clk:      clk,
		interval: interval,
		scene:    scene,
		tracker:  tracker,
		log:      log,
		elemBuf:  make(map[string]element.Element),
		cursors:  make(map[string]Collaborator),
	}
}

// PushElements buffers remote elements, keeping the highest version per id.
// On equal versions the later arrival wins.
func (l *SyncLoop) PushElements(els []element.Element) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, el := range els {
		if el.ID == "" {
			continue
		}
		if prev, ok := l.elemBuf[el.ID]; ok && prev.Version > el.Version {
			continue
		}
		l.elemBuf[el.ID] = el.Clone()
	}
}

// PushCursor buffers a cursor, replacing any older position of the same user.
func (l *SyncLoop) PushCursor(c Collaborator) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cursors[c.UserID] = c
}

// Syncing reports whether a remote update was applied this tick or the previous
// one. Remote applies never reach the scene change callback, so local edits
// made meanwhile are still saved and broadcast.
func (l *SyncLoop) Syncing() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.syncing > 0
}

// Pending 버퍼에 남은 요소 수
func (l *SyncLoop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.elemBuf)
}

// Tick drains both buffers into one scene update. Elements the local user has
// selected stay buffered until they are deselected.
func (l *SyncLoop) Tick() {
	selected := l.scene.SelectedIDs()

	l.mu.Lock()
	if l.syncing > 0 {
		l.syncing--
	}

	var apply []element.Element
	for id, el := range l.elemBuf {
		if _, ok := selected[id]; ok {
			continue
		}
		apply = append(apply, el)
		delete(l.elemBuf, id)
	}

	var cursors map[string]Collaborator
	if len(l.cursors) > 0 {
		cursors = l.cursors
		l.cursors = make(map[string]Collaborator)
	}

	if len(apply) == 0 && cursors == nil {
		l.mu.Unlock()
		return
	}
	if len(apply) > 0 {
		l.syncing = syncingTicks
	}
	l.mu.Unlock()

	sort.Slice(apply, func(i, j int) bool { return apply[i].ID < apply[j].ID })

	// 채택된 원격 버전만 기록 (에코 방지)
	for _, el := range l.scene.ApplyRemote(apply, cursors) {
		l.tracker.RecordVersion(el)
	}
}

// Start runs Tick on the loop interval until Stop.
func (l *SyncLoop) Start() {
	l.runMu.Lock()
	defer l.runMu.Unlock()
	if l.stop != nil {
		return
	}
	l.stop = make(chan struct{})
	l.done = make(chan struct{})

	ticker := l.clk.Ticker(l.interval)
	go func(stop, done chan struct{}) {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				l.Tick()
			}
		}
	}(l.stop, l.done)
	l.log.Debug("[SyncLoop] Started")
}

// Stop halts the loop and waits for the current tick to finish.
func (l *SyncLoop) Stop() {
	l.runMu.Lock()
	defer l.runMu.Unlock()
	if l.stop == nil {
		return
	}
	close(l.stop)
	<-l.done
	l.stop, l.done = nil, nil
}
