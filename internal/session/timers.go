package session

import (
	"time"
)

// armSaveTimerLocked (re)starts the auto-save debounce. Only one timer
// exists per session.
func (s *Session) armSaveTimerLocked() {
	if s.closed {
		return
	}
	s.stopSaveTimerLocked()
	s.saveTimer = time.AfterFunc(s.opts.AutoSaveDelay, s.fireAutoSave)
}

// rearmIfDirtyLocked restarts the debounce after a foreground operation
// that stopped it failed, so unsynced edits still get auto-saved.
func (s *Session) rearmIfDirtyLocked() {
	if s.content != s.lastSynced && !s.locked {
		s.armSaveTimerLocked()
	}
}

func (s *Session) stopSaveTimerLocked() {
	if s.saveTimer != nil {
		s.saveTimer.Stop()
		s.saveTimer = nil
	}
}

func (s *Session) fireAutoSave() {
	s.mu.Lock()
	if s.closed || s.locked || s.content == s.lastSynced {
		s.mu.Unlock()
		return
	}
	content := s.content
	s.mu.Unlock()

	if s.opts.Drafts != nil {
		if err := s.opts.Drafts.Set(s.ctx, s.workID, content); err != nil {
			s.log.Warn("caching local draft", "error", err)
		}
	}
	if err := s.AutoSave(s.ctx); err != nil {
		s.log.Debug("auto-save failed", "error", err)
	}
}

// setLockedLocked enters read-only mode and starts one retry loop for the
// episode.
func (s *Session) setLockedLocked() {
	s.locked = true
	if s.lockStop != nil || s.closed {
		return
	}
	stop := make(chan struct{})
	s.lockStop = stop
	ticks := int(s.opts.LockRetryInterval / s.opts.LockRetryTick)
	if ticks < 1 {
		ticks = 1
	}
	s.lockRetryIn = ticks
	s.log.Info("work locked by another device", "retry_in", s.opts.LockRetryInterval)
	go s.lockRetryLoop(stop, ticks)
}

// clearLockLocked leaves read-only mode and ends the retry loop.
func (s *Session) clearLockLocked() {
	s.locked = false
	s.lockRetryIn = 0
	if s.lockStop != nil {
		close(s.lockStop)
		s.lockStop = nil
	}
}

// lockRetryLoop counts down one tick at a time and reloads at zero.
func (s *Session) lockRetryLoop(stop chan struct{}, ticks int) {
	ticker := time.NewTicker(s.opts.LockRetryTick)
	defer ticker.Stop()

	remain := ticks
	for {
		select {
		case <-stop:
			return
		case <-s.ctx.Done():
			return
		case <-ticker.C:
		}

		remain--
		reload := remain <= 0
		if reload {
			remain = ticks
		}

		s.mu.Lock()
		if s.lockStop != stop {
			s.mu.Unlock()
			return
		}
		s.lockRetryIn = remain
		s.mu.Unlock()
		s.notify()

		if reload {
			s.log.Debug("retrying locked work")
			_ = s.LoadAll(s.ctx)
		}
	}
}
