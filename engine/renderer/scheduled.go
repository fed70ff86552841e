package renderer

import (
	"sync"

	"golang.org/x/exp/rand"
)

// ScheduledUpdater is implemented by objects that want deferred housekeeping,
// such as releasing staging memory once the GPU can no longer read it.
// UpdateScheduled returns true to be called again on the next frame.
type ScheduledUpdater interface {
	UpdateScheduled() (keep bool)
}

const noTarget int64 = -1

type scheduleEntry struct {
	target int64
}

// Scheduler is a generic deferred callback list. It holds no knowledge of
// what its updaters do; the frame cycle drains it once per frame.
type Scheduler struct {
	mu         sync.Mutex
	ringSize   int64
	frameCount int64
	entries    map[ScheduledUpdater]*scheduleEntry
	order      []ScheduledUpdater
	rnd        *rand.Rand
}

func NewScheduler(ringSize int, src rand.Source) *Scheduler {
	if src == nil {
		src = rand.NewSource(uint64(ringSize) ^ 0x5eed)
	}
	return &Scheduler{
		ringSize: int64(ringSize),
		entries:  make(map[ScheduledUpdater]*scheduleEntry),
		rnd:      rand.New(src),
	}
}

// Schedule asks for u to be updated once at least the ring size plus
// extraFrames frames have completed. A negative extraFrames spreads the work
// with a random delay of up to 255 frames. Repeated calls keep the latest target.
func (s *Scheduler) Schedule(u ScheduledUpdater, extraFrames int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	add := int64(extraFrames)
	if extraFrames < 0 {
		add = int64(s.rnd.Uint64() & 0xFF)
	}
	frame := s.frameCount + s.ringSize + add

	e, ok := s.entries[u]
	if !ok {
		e = &scheduleEntry{target: noTarget}
		s.entries[u] = e
		s.order = append(s.order, u)
	}
	if frame > e.target {
		e.target = frame
	}
}

// Unschedule drops u without calling it.
func (s *Scheduler) Unschedule(u ScheduledUpdater) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(u)
}

func (s *Scheduler) remove(u ScheduledUpdater) {
	if _, ok := s.entries[u]; !ok {
		return
	}
	delete(s.entries, u)
	for i, o := range s.order {
		if o == u {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// ForceScheduled runs u now, ignoring its delay, and unregisters it.
func (s *Scheduler) ForceScheduled(u ScheduledUpdater) {
	s.mu.Lock()
	s.remove(u)
	s.mu.Unlock()
	u.UpdateScheduled()
}

// IsScheduledAllowed reports whether u's target frame has been reached and,
// if so, consumes the target so heavy work is not repeated every frame.
func (s *Scheduler) IsScheduledAllowed(u ScheduledUpdater) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[u]
	if !ok || e.target == noTarget || s.frameCount < e.target {
		return false
	}
	e.target = noTarget
	return true
}

// IsScheduled reports whether u is registered.
func (s *Scheduler) IsScheduled(u ScheduledUpdater) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[u]
	return ok
}

func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// SetFrameCount moves the frame that new targets are counted from. The
// frame cycle calls it as soon as a frame completes, so work scheduled
// while recording frame k waits for frame k to leave the ring.
func (s *Scheduler) SetFrameCount(frameCount uint64) {
	s.mu.Lock()
	s.frameCount = int64(frameCount)
	s.mu.Unlock()
}

// Update records the current frame count and calls every updater whose
// target has been reached. Callbacks run without the lock held, so they may
// schedule again. An updater that returns false and did not reschedule
// itself is dropped; one that returns true is called again next frame.
func (s *Scheduler) Update(frameCount uint64) {
	s.mu.Lock()
	s.frameCount = int64(frameCount)
	var due []ScheduledUpdater
	var stale []ScheduledUpdater
	for _, u := range s.order {
		e := s.entries[u]
		switch {
		case e.target == noTarget:
			stale = append(stale, u)
		case s.frameCount >= e.target:
			e.target = noTarget
			due = append(due, u)
		}
	}
	for _, u := range stale {
		s.remove(u)
	}
	s.mu.Unlock()

	for _, u := range due {
		keep := u.UpdateScheduled()

		s.mu.Lock()
		if e, ok := s.entries[u]; ok && e.target == noTarget {
			if keep {
				e.target = s.frameCount + 1
			} else {
				s.remove(u)
			}
		}
		s.mu.Unlock()
	}
}

// Scheduled binds an updater to a scheduler so it can schedule itself.
// Embed it and call Bind once the owner exists.
type Scheduled struct {
	scheduler *Scheduler
	self      ScheduledUpdater
}

func (s *Scheduled) Bind(scheduler *Scheduler, self ScheduledUpdater) {
	s.scheduler = scheduler
	s.self = self
}

func (s *Scheduled) Schedule(extraFrames int) {
	if s.scheduler != nil {
		s.scheduler.Schedule(s.self, extraFrames)
	}
}

func (s *Scheduled) ForceScheduled() {
	if s.scheduler != nil {
		s.scheduler.ForceScheduled(s.self)
	}
}

func (s *Scheduled) IsScheduledAllowed() bool {
	return s.scheduler != nil && s.scheduler.IsScheduledAllowed(s.self)
}
