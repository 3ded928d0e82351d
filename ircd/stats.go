package ircd

import (
	"fmt"
	"sync"
)

// StatsHandler renders one STATS letter's reply to c. target is the
// optional "[server]" argument; this core only ever serves its own
// stats, so target is accepted and ignored unless it names this server.
type StatsHandler func(s *Server, c *Client, target string)

// statsLetter pairs a STATS letter with the privilege key that gates
// it (e.g. "c" -> "oper:general", "E" -> "admin").
type statsLetter struct {
	privilege string
	handler   StatsHandler
}

// StatsTable is the letter -> (privilege, handler) map for the STATS
// command, shaped like the command-dispatch table in commands.go.
type StatsTable struct {
	mu      sync.RWMutex
	letters map[byte]statsLetter
}

// NewStatsTable constructs an empty table.
func NewStatsTable() *StatsTable {
	return &StatsTable{letters: make(map[byte]statsLetter)}
}

// Register adds or replaces the handler for letter, gated by privilege
// (empty privilege means no privilege check: any client that can issue
// STATS may request it).
func (t *StatsTable) Register(letter byte, privilege string, handler StatsHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.letters[letter] = statsLetter{privilege: privilege, handler: handler}
}

func (t *StatsTable) lookup(letter byte) (statsLetter, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	l, ok := t.letters[letter]
	return l, ok
}

// RegisterDefaultStats wires the letters this core's access-control and
// connection state actually back: k/K (K-lines), d/D (D-lines), x
// (X-lines), q (resvs), Q (quarantined nicks), o (opers), L (link/class
// counts), u (connection counts).
func RegisterDefaultStats(s *Server) {
	s.StatsLetters.Register('k', "oper:kline", statsKlines)
	s.StatsLetters.Register('K', "oper:kline", statsKlines)
	s.StatsLetters.Register('d', "oper:kline", statsDlines)
	s.StatsLetters.Register('D', "oper:kline", statsDlines)
	s.StatsLetters.Register('x', "oper:kline", statsXlines)
	s.StatsLetters.Register('q', "oper:kline", statsResvs)
	s.StatsLetters.Register('Q', "oper:general", statsQuarantine)
	s.StatsLetters.Register('o', "oper:general", statsOpers)
	s.StatsLetters.Register('L', "oper:general", statsClasses)
	s.StatsLetters.Register('u', "", statsUptime)
}

// handleStats implements the STATS command: privilege-gate the
// requested letter, fire the doing_stats extension hook, run the
// matching handler if the letter is known, then send RplEndOfStats (an
// unknown letter gets only RplEndOfStats, matching real ircds'
// silent-unknown-letter behavior).
func handleStats(s *Server, c *Client, m *MsgBuf) {
	letterArg := m.Param(0)
	if letterArg == "" {
		c.SendNumeric(RplEndOfStats, "*", "End of /STATS report")
		return
	}
	letter := letterArg[0]

	target := ""
	if m.ParamCount() > 1 {
		target = m.Param(1)
	}

	l, ok := s.StatsLetters.lookup(letter)
	if ok && l.privilege != "" && !c.HasPrivilege(l.privilege) {
		c.SendNumeric(ErrNoPrivileges, letterArg, "you need the "+l.privilege+" privilege to request this")
		return
	}

	s.Hooks.FireDoingStats(&StatsData{Client: c, Letter: letter})

	if ok {
		l.handler(s, c, target)
	}
	c.SendNumeric(RplEndOfStats, letterArg, "End of /STATS report")
}

func statsKlines(s *Server, c *Client, target string) {
	forEachConfOfKind(s.Address, ConfKill, func(rec *Conf) {
		c.SendNumeric(RplStatsKLine, rec.HostMask, rec.UserMask, rec.Reason)
	})
}

func statsDlines(s *Server, c *Client, target string) {
	forEachConfOfKind(s.Address, ConfDLine, func(rec *Conf) {
		c.SendNumeric(RplStatsDLine, rec.HostMask, rec.Reason)
	})
}

func statsXlines(s *Server, c *Client, target string) {
	forEachConfOfKind(s.Address, ConfXLine, func(rec *Conf) {
		c.SendNumeric(RplStatsXLine, rec.HostMask, rec.Reason)
	})
}

func statsResvs(s *Server, c *Client, target string) {
	forEachConfOfKind(s.Address, ConfResvNick, func(rec *Conf) {
		c.SendNumeric(RplStatsResv, "NICK", rec.HostMask, rec.Reason)
	})
	forEachConfOfKind(s.Address, ConfResvChannel, func(rec *Conf) {
		c.SendNumeric(RplStatsResv, "CHANNEL", rec.HostMask, rec.Reason)
	})
}

func statsQuarantine(s *Server, c *Client, target string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, cl := range s.clients {
		if cl.Modes.Quarantine {
			c.SendNumeric(RplQuarantined, cl.Nick, "quarantined")
		}
	}
}

func statsOpers(s *Server, c *Client, target string) {
	s.Opers.mu.RLock()
	defer s.Opers.mu.RUnlock()
	for name := range s.Opers.blocks {
		c.SendNumeric(RplStatsOLine, name)
	}
}

func statsClasses(s *Server, c *Client, target string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for name, cl := range s.classes {
		c.SendNumeric(RplStatsOLine, fmt.Sprintf("%s %d", name, cl.CurrentUsers()))
	}
}

func statsUptime(s *Server, c *Client, target string) {
	s.mu.RLock()
	count := s.Stats.ConnectionCount
	max := s.Stats.MaxConnections
	s.mu.RUnlock()
	c.SendNumeric(RplLUserClient, fmt.Sprintf("current connections: %d (max %d)", count, max))
}

// forEachConfOfKind walks every live (non-ILLEGAL) record of kind
// across the address index's buckets. STATS is rare and not
// performance-sensitive, so a full scan is the straightforward choice
// here rather than adding a by-kind secondary index.
func forEachConfOfKind(idx *AddressIndex, kind ConfKind, fn func(*Conf)) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	for _, bucket := range idx.buckets {
		for _, rec := range bucket {
			if rec.Kind == kind && !rec.illegal() {
				fn(rec)
			}
		}
	}
}
