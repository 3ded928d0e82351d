package ircd

import (
	"strings"
	"sync"
)

// QuarantineList is the configured channel allowlist a quarantined
// client may still JOIN and message, plus the set of currently
// quarantined nicks with their reasons, set by the QUARANTINE/
// UNQUARANTINE operator commands.
type QuarantineList struct {
	mu        sync.RWMutex
	allowlist map[string]bool // casefolded channel names
	reasons   map[string]string // casefolded nick -> reason, set by QUARANTINE
}

// NewQuarantineList constructs a list from the configured channel
// allowlist (the quarantine block's allow_channels list).
func NewQuarantineList(allowChannels []string) *QuarantineList {
	q := &QuarantineList{allowlist: make(map[string]bool), reasons: make(map[string]string)}
	for _, ch := range allowChannels {
		q.allowlist[strings.ToLower(ch)] = true
	}
	return q
}

// Allows reports whether channel is on the quarantine allowlist.
func (q *QuarantineList) Allows(channel string) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.allowlist[strings.ToLower(channel)]
}

// Quarantine marks nick quarantined with reason, used by the QUARANTINE
// operator command independent of the client's own +q umode (an oper
// may quarantine an offline or remote nick by name).
func (q *QuarantineList) Quarantine(nick, reason string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.reasons[strings.ToLower(nick)] = reason
}

// Unquarantine clears a QUARANTINE entry set by nick.
func (q *QuarantineList) Unquarantine(nick string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.reasons, strings.ToLower(nick))
}

// Reason returns the QUARANTINE reason recorded for nick, if any.
func (q *QuarantineList) Reason(nick string) (string, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	r, ok := q.reasons[strings.ToLower(nick)]
	return r, ok
}

// CheckJoin implements the can_join-hook quarantine check: a
// quarantined client may only join channels on the allowlist.
func (q *QuarantineList) CheckJoin(c *Client, channel string) (approved int, numeric int, reason string) {
	if !c.Modes.Quarantine {
		return 0, 0, ""
	}
	if q.Allows(channel) {
		return 0, 0, ""
	}
	return 1, ErrNeedRegisteredNick, "you are quarantined and may not join this channel"
}

// CheckTarget implements the privmsg_channel/privmsg_user quarantine
// check: messages to targets other than opers, services, or an
// allow-listed channel are blocked.
func (q *QuarantineList) CheckTarget(sender *Client, targetChannel string, targetIsOperOrService bool) bool {
	if !sender.Modes.Quarantine {
		return true
	}
	if targetIsOperOrService {
		return true
	}
	if targetChannel != "" {
		return q.Allows(targetChannel)
	}
	return false
}

// EnterQuarantine sets the +q umode and, if partOnEntry is configured,
// parts the client from every channel not on the allowlist.
func (q *QuarantineList) EnterQuarantine(c *Client, partOnEntry bool) {
	c.mu.Lock()
	c.Modes.Quarantine = true
	c.mu.Unlock()

	if !partOnEntry {
		return
	}
	for name, ch := range c.Channels {
		if !q.Allows(name) {
			ch.Part(c)
			delete(c.Channels, name)
		}
	}
}

// ClearOnLogin clears quarantine when a client logs into services or
// successfully opers. Returns true if quarantine was actually cleared
// (so the caller can send the removal notice).
func (q *QuarantineList) ClearOnLogin(c *Client) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.Modes.Quarantine {
		return false
	}
	c.Modes.Quarantine = false
	return true
}
