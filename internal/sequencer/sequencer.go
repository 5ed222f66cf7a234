package sequencer

import (
	"context"
	"log/slog"
	"sync"

	"github.com/rdvm/jukebox/internal/repository"
	"github.com/rdvm/jukebox/internal/resolver"
)

// Store is the durable queue/history surface the sequencer mutates.
type Store interface {
	Enqueue(ctx context.Context, t repository.Track) (*repository.QueueEntry, error)
	NextInQueue(ctx context.Context) (*repository.QueueEntry, error)
	QueueEntryByID(ctx context.Context, id int64) (*repository.QueueEntry, error)
	DeleteQueueEntry(ctx context.Context, id int64) error
	ListQueue(ctx context.Context) ([]repository.QueueEntry, error)
	AppendHistory(ctx context.Context, t repository.Track) error
	HistoryEntryByID(ctx context.Context, id int64) (*repository.HistoryEntry, error)
}

// Engine is the command surface of the playback link.
type Engine interface {
	Send(tokens ...any)
	ResetState()
}

type Lookup interface {
	Resolve(ctx context.Context, url string) resolver.Resolved
}

// Requester identifies who asked for a track.
type Requester struct {
	Name string
	ID   int64
}

// Status is the global queue view pushed to every observer.
type Status struct {
	Current *repository.QueueEntry  `json:"current"`
	Queue   []repository.QueueEntry `json:"queue"`
}

// Sequencer decides what plays next. All mutation of the current track and the
// persisted queue runs under one mutex, so at most one transition is ever in
// flight.
type Sequencer struct {
	store  Store
	engine Engine
	lookup Lookup
	notify func(Status)

	mu      sync.Mutex
	current *repository.QueueEntry
	// wentIdle dedupes the empty-status broadcast so repeated skips while
	// idle announce the transition once.
	wentIdle bool
}

func NewSequencer(store Store, engine Engine, lookup Lookup, notify func(Status)) *Sequencer {
	return &Sequencer{store: store, engine: engine, lookup: lookup, notify: notify}
}

// Current returns the track loaded into the engine, or nil when idle.
func (s *Sequencer) Current() *repository.QueueEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	cp := *s.current
	return &cp
}

// CurrentStatus builds the status snapshot without broadcasting it, for
// late-joining observers.
func (s *Sequencer) CurrentStatus(ctx context.Context) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, err := s.store.ListQueue(ctx)
	if err != nil {
		return Status{}, err
	}
	if q == nil {
		q = []repository.QueueEntry{}
	}
	return Status{Current: s.current, Queue: q}, nil
}

// Enqueue resolves metadata for the submitted URL, persists a queue entry
// attributed to the requester, and starts playback if the player is idle.
func (s *Sequencer) Enqueue(ctx context.Context, url string, req Requester) error {
	// Metadata lookup can take seconds; keep it outside the lock.
	res := s.lookup.Resolve(ctx, url)

	s.mu.Lock()
	defer s.mu.Unlock()
	track := repository.Track{
		Title:     res.Title,
		URL:       res.URL,
		Thumbnail: res.Thumbnail,
		AddedBy:   req.Name,
		AddedByID: req.ID,
	}
	if _, err := s.store.Enqueue(ctx, track); err != nil {
		return err
	}
	if s.current == nil {
		return s.advanceLocked(ctx)
	}
	return s.broadcastLocked(ctx)
}

// Advance promotes the earliest queue entry when idle. A no-op while a track
// is loaded, which is what makes racing advance calls safe.
func (s *Sequencer) Advance(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.advanceLocked(ctx)
}

func (s *Sequencer) advanceLocked(ctx context.Context) error {
	if s.current != nil {
		return nil
	}
	next, err := s.store.NextInQueue(ctx)
	if err != nil {
		return err
	}
	if next == nil {
		if s.wentIdle {
			return nil
		}
		s.wentIdle = true
		s.engine.ResetState()
		return s.broadcastLocked(ctx)
	}
	return s.playLocked(ctx, next)
}

// Skip clears the current track and advances. Used both for explicit "next"
// requests and for the engine's natural end-of-track signal.
func (s *Sequencer) Skip(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current != nil {
		s.current = nil
		s.engine.ResetState()
	}
	return s.advanceLocked(ctx)
}

// JumpTo plays a specific queue entry immediately, bypassing FIFO order.
// An absent id is a silent no-op.
func (s *Sequencer) JumpTo(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.store.QueueEntryByID(ctx, id)
	if err != nil {
		return err
	}
	if e == nil {
		return nil
	}
	return s.playLocked(ctx, e)
}

// Replay copies a history entry into a fresh queue entry attributed to the
// requester. An absent id is a silent no-op.
func (s *Sequencer) Replay(ctx context.Context, historyID int64, req Requester) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, err := s.store.HistoryEntryByID(ctx, historyID)
	if err != nil {
		return err
	}
	if h == nil {
		return nil
	}
	track := repository.Track{
		Title:     h.Title,
		URL:       h.URL,
		Thumbnail: h.Thumbnail,
		AddedBy:   req.Name,
		AddedByID: req.ID,
	}
	if _, err := s.store.Enqueue(ctx, track); err != nil {
		return err
	}
	if s.current == nil {
		return s.advanceLocked(ctx)
	}
	return s.broadcastLocked(ctx)
}

// playLocked runs the promotion path shared by advance and jump: the entry
// becomes current, leaves the durable queue, lands in history once, and a
// load command goes to the engine.
func (s *Sequencer) playLocked(ctx context.Context, e *repository.QueueEntry) error {
	s.current = e
	s.wentIdle = false
	s.engine.ResetState()

	if err := s.store.DeleteQueueEntry(ctx, e.ID); err != nil {
		s.current = nil
		return err
	}
	if err := s.store.AppendHistory(ctx, e.Track); err != nil {
		slog.Warn("history append failed", "title", e.Title, "err", err)
	}

	s.engine.Send("loadfile", e.URL)
	s.engine.Send("set_property", "pause", false)
	return s.broadcastLocked(ctx)
}

func (s *Sequencer) broadcastLocked(ctx context.Context) error {
	q, err := s.store.ListQueue(ctx)
	if err != nil {
		return err
	}
	if q == nil {
		q = []repository.QueueEntry{}
	}
	s.notify(Status{Current: s.current, Queue: q})
	return nil
}
