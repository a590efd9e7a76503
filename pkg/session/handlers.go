package session

import (
	"time"

	"github.com/dmitrymomot/sessionkit/pkg/broadcast"
	"github.com/dmitrymomot/sessionkit/pkg/logger"
)

// syncPayload is the body of cross-tab messages.
type syncPayload struct {
	UserID  string `json:"user_id,omitempty"`
	Reason  Reason `json:"reason,omitempty"`
	Seconds int    `json:"seconds,omitempty"`
}

// handleIdle runs on the tracker's ACTIVE -> IDLE edge. The warning starts
// WarnBeforeTimeout before the session would end, which is IdleTimeout after
// this edge. A warning window equal to the idle window starts at once.
func (m *Manager) handleIdle(epoch uint64) {
	m.mu.Lock()
	if m.epoch != epoch || m.live == nil {
		m.mu.Unlock()
		return
	}
	if _, _, err := m.phases.Fire(triggerIdle); err != nil {
		m.mu.Unlock()
		return
	}
	m.state.Phase = PhaseIdle
	m.state.IsIdle = true

	warned := false
	delay := m.config.IdleTimeout - time.Duration(m.config.warnSeconds())*time.Second
	if delay <= 0 {
		m.enterWarningLocked(epoch)
		warned = true
	} else {
		m.live.warn = m.clock.AfterFunc(delay, func() { m.handleWarn(epoch) })
	}
	userID, seconds := m.state.UserID, m.state.TimeUntilTimeout
	seq, st := m.commitLocked()
	m.mu.Unlock()

	m.publish(seq, st)
	m.logger.Debug("user idle",
		logger.Component("session"),
		logger.UserID(userID),
	)
	if warned {
		m.broadcastWarning(userID, seconds)
	}
}

func (m *Manager) handleWarn(epoch uint64) {
	m.mu.Lock()
	if m.epoch != epoch || m.live == nil || m.state.Phase != PhaseIdle {
		m.mu.Unlock()
		return
	}
	m.live.warn = nil
	if m.config.warnSeconds() == 0 {
		m.mu.Unlock()
		m.endFrom(epoch, ReasonTimeout)
		return
	}
	m.enterWarningLocked(epoch)
	userID, seconds := m.state.UserID, m.state.TimeUntilTimeout
	seq, st := m.commitLocked()
	m.mu.Unlock()

	m.publish(seq, st)
	m.broadcastWarning(userID, seconds)
}

func (m *Manager) enterWarningLocked(epoch uint64) {
	_, _, _ = m.phases.Fire(triggerWarn)
	m.state.Phase = PhaseWarning
	m.state.ShowTimeoutWarning = true
	m.state.TimeUntilTimeout = m.config.warnSeconds()
	m.live.tick = m.clock.AfterFunc(time.Second, func() { m.handleTick(epoch) })
}

// handleTick decrements the countdown once per second and ends the session
// when it reaches zero.
func (m *Manager) handleTick(epoch uint64) {
	m.mu.Lock()
	if m.epoch != epoch || m.live == nil || m.state.Phase != PhaseWarning {
		m.mu.Unlock()
		return
	}
	m.state.TimeUntilTimeout--
	expired := m.state.TimeUntilTimeout <= 0
	if expired {
		m.state.TimeUntilTimeout = 0
		m.live.tick = nil
	} else {
		m.live.tick = m.clock.AfterFunc(time.Second, func() { m.handleTick(epoch) })
	}
	seq, st := m.commitLocked()
	m.mu.Unlock()

	m.publish(seq, st)
	if expired {
		m.endFrom(epoch, ReasonTimeout)
	}
}

// handleActive runs on the tracker's IDLE -> ACTIVE edge.
func (m *Manager) handleActive(epoch uint64) {
	m.mu.Lock()
	if m.epoch != epoch || m.live == nil || m.state.Phase == PhaseActive {
		m.mu.Unlock()
		return
	}
	m.resumeLocked()
	userID := m.state.UserID
	seq, st := m.commitLocked()
	m.mu.Unlock()

	m.publish(seq, st)
	if m.bus != nil {
		m.bus.Broadcast(m.ctx, broadcast.TypeActivity, syncPayload{UserID: userID})
	}
}

func (m *Manager) handleActivity(epoch uint64, at time.Time) {
	m.mu.Lock()
	if m.epoch != epoch || m.live == nil || !at.After(m.state.LastActivity) {
		m.mu.Unlock()
		return
	}
	m.state.LastActivity = at
	seq, st := m.commitLocked()
	m.mu.Unlock()

	m.publish(seq, st)
}

// markActive forces the active phase without a broadcast and resets the idle
// countdown. It reports whether epoch is still live.
func (m *Manager) markActive(epoch uint64) bool {
	m.mu.Lock()
	if m.epoch != epoch || m.live == nil {
		m.mu.Unlock()
		return false
	}
	m.resumeLocked()
	tracker := m.live.tracker
	seq, st := m.commitLocked()
	m.mu.Unlock()

	m.publish(seq, st)
	// The phase is already active, so the tracker's edge callback is a no-op.
	tracker.Touch()
	return true
}

func (m *Manager) resumeLocked() {
	if m.live.warn != nil {
		m.live.warn.Stop()
		m.live.warn = nil
	}
	if m.live.tick != nil {
		m.live.tick.Stop()
		m.live.tick = nil
	}
	_, _, _ = m.phases.Fire(triggerActivity)
	m.state.Phase = PhaseActive
	m.state.IsIdle = false
	m.state.ShowTimeoutWarning = false
	m.state.TimeUntilTimeout = 0
	m.state.LastActivity = m.clock.Now()
}

func (m *Manager) beat(epoch uint64) {
	m.mu.Lock()
	if m.epoch != epoch || m.live == nil {
		m.mu.Unlock()
		return
	}
	m.live.heartbeat = nil
	token, userID := m.state.SessionToken, m.state.UserID
	m.mu.Unlock()

	res, err := m.backend.Heartbeat(m.ctx, token)
	if err != nil {
		m.logger.Warn("heartbeat failed, retrying on next interval",
			logger.Component("session"),
			logger.UserID(userID),
			logger.Error(err),
		)
		m.scheduleHeartbeat(epoch)
		return
	}
	if res.Invalidated() {
		m.logger.Warn("session invalidated by backend",
			logger.Component("session"),
			logger.UserID(userID),
			logger.Error(ErrSessionInvalidated),
		)
		m.endFrom(epoch, ReasonSessionInvalidated)
		return
	}

	m.mu.Lock()
	if m.epoch != epoch || m.live == nil {
		m.mu.Unlock()
		return
	}
	m.live.heartbeat = m.clock.AfterFunc(m.config.HeartbeatInterval, func() { m.beat(epoch) })
	if res.ExpiresAt.IsZero() || res.ExpiresAt.Equal(m.state.ExpiresAt) {
		m.mu.Unlock()
		return
	}
	m.state.ExpiresAt = res.ExpiresAt
	seq, st := m.commitLocked()
	m.mu.Unlock()

	m.publish(seq, st)
}

func (m *Manager) scheduleHeartbeat(epoch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch || m.live == nil {
		return
	}
	m.live.heartbeat = m.clock.AfterFunc(m.config.HeartbeatInterval, func() { m.beat(epoch) })
}

func (m *Manager) handleRemoteActivity(epoch uint64, msg broadcast.Message) {
	if !m.sameUser(msg) {
		return
	}
	m.markActive(epoch)
}

func (m *Manager) handleRemoteLogout(epoch uint64, msg broadcast.Message) {
	if !m.sameUser(msg) {
		return
	}
	m.logger.Info("logout received from sibling tab",
		logger.Component("session"),
		logger.TabID(msg.TabID),
	)
	m.endFrom(epoch, ReasonCrossTabLogout)
}

// sameUser reports whether msg concerns the signed in user. Messages without
// a user are accepted.
func (m *Manager) sameUser(msg broadcast.Message) bool {
	var p syncPayload
	if err := msg.Decode(&p); err != nil {
		m.logger.Warn("ignoring undecodable sync message",
			logger.Component("session"),
			logger.MessageType(msg.Type),
			logger.Error(err),
		)
		return false
	}
	if p.UserID == "" {
		return true
	}
	return p.UserID == m.State().UserID
}

func (m *Manager) broadcastWarning(userID string, seconds int) {
	if m.bus == nil {
		return
	}
	m.bus.Broadcast(m.ctx, broadcast.TypeTimeoutWarning, syncPayload{UserID: userID, Seconds: seconds})
}

func (m *Manager) handleVisibility(epoch uint64, visible bool) {
	if !visible {
		return
	}
	m.mu.Lock()
	if m.epoch != epoch || m.live == nil {
		m.mu.Unlock()
		return
	}
	tracker := m.live.tracker
	m.mu.Unlock()

	tracker.Touch()
}

func (m *Manager) handleUnload(epoch uint64) {
	if !m.config.LogoutOnBrowserClose {
		return
	}
	m.endFrom(epoch, ReasonBrowserClose)
}

// unloadToken is the token carried by the unload beacon.
func (m *Manager) unloadToken(epoch uint64) string {
	if !m.config.LogoutOnBrowserClose {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.epoch != epoch {
		return ""
	}
	return m.state.SessionToken
}
