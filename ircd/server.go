package ircd

import (
	"crypto/tls"
	"fmt"
	"log"
	"net"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/solanum-irc/solanum/ircd/tlsworker"
)

// Config is the populated struct graph the core consumes; config
// parsing itself lives in ircd/config.Load and layers a file, a .env
// file, and IRCD_* environment variables before handing this struct
// graph to NewServer.
type Config struct {
	ServerName string
	ServerDesc string
	NetworkName string
	SID        string // TS6 3-char server id

	ListenAddr string
	TLSAddr    string
	TLSCert    string
	TLSKey     string

	RegistrationTimeout time.Duration
	IdleTimeout         time.Duration
	PingFrequency       time.Duration

	MaxRatelimitTokens float64
	ClientFloodMaxLines int

	AllowChannels []string // quarantine allowlist
	PartOnQuarantine bool

	HideOpers bool
}

// ServerStats holds the counters the STATS command and ircd/metrics
// surface.
type ServerStats struct {
	mu sync.Mutex

	ConnectionCount int64
	MaxConnections  int64
	KlineHits       int64
	FloodDrops      int64
	PropagatedBans  int64
}

func (s *ServerStats) incrConnections() {
	s.mu.Lock()
	s.ConnectionCount++
	if s.ConnectionCount > s.MaxConnections {
		s.MaxConnections = s.ConnectionCount
	}
	s.mu.Unlock()
}

func (s *ServerStats) incrKlineHits() {
	s.mu.Lock()
	s.KlineHits++
	s.mu.Unlock()
}

func (s *ServerStats) incrFloodDrops() {
	s.mu.Lock()
	s.FloodDrops++
	s.mu.Unlock()
}

// IncrPropagatedBans records one applied network BAN; exported for
// ircd/peering.
func (s *ServerStats) IncrPropagatedBans() {
	s.mu.Lock()
	s.PropagatedBans++
	s.mu.Unlock()
}

// Snapshot returns a copy of the counters, safe for concurrent callers
// such as ircd/metrics's periodic Prometheus sample.
func (s *ServerStats) Snapshot() ServerStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ServerStats{
		ConnectionCount: s.ConnectionCount,
		MaxConnections:  s.MaxConnections,
		KlineHits:       s.KlineHits,
		FloodDrops:      s.FloodDrops,
		PropagatedBans:  s.PropagatedBans,
	}
}

// Server is the process-wide context: the global tables (client list,
// channel list, access-control index, hook registry, capability
// registries, propagated-ban index) threaded through handlers instead
// of free globals.
type Server struct {
	mu sync.RWMutex

	Name   string
	Config *Config
	Logger *log.Logger
	BootID string

	clients  map[string]*Client // case-folded nick -> client
	uidIndex map[string]*Client // UID -> client
	channels map[string]*Channel
	classes  map[string]*ConnClass

	ClientCaps *CapRegistry
	ServerCaps *CapRegistry
	Hooks      *HookBus
	Commands   *Dispatcher

	Address    *AddressIndex
	TempBans   *TempBanStore
	PropBans   *PropagatedBanIndex
	Quarantine *QuarantineList
	Opers      *OperRegistry

	StatsLetters *StatsTable
	Stats        *ServerStats

	Loop *EventLoop

	clientTagNames map[string]bool

	msgIDGen *MessageIDGenerator

	listener    net.Listener
	tlsListener net.Listener
	shutdown    chan struct{}

	tlsWorker tlsworker.Worker
	tlsConfig *tls.Config
	tlsConnID uint32

	now func() time.Time
}

// NewServer constructs a Server from cfg. The returned server has no
// open listener yet; call ListenAndServe to start accepting.
func NewServer(cfg *Config, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stderr, "", log.LstdFlags)
	}

	now := time.Now
	address := NewAddressIndex()

	s := &Server{
		Name:     cfg.ServerName,
		Config:   cfg,
		Logger:   logger,
		BootID:   uuid.NewString(),
		clients:  make(map[string]*Client),
		uidIndex: make(map[string]*Client),
		channels: make(map[string]*Channel),
		classes:  make(map[string]*ConnClass),

		ClientCaps: NewCapRegistry(),
		ServerCaps: NewCapRegistry(),
		Hooks:      NewHookBus(),
		Commands:   NewDispatcher(),

		Address:    address,
		TempBans:   NewTempBanStore(address, now),
		PropBans:   NewPropagatedBanIndex(address, now),
		Quarantine: NewQuarantineList(cfg.AllowChannels),
		Opers:      NewOperRegistry(nil),

		StatsLetters: NewStatsTable(),
		Stats:        &ServerStats{},

		Loop: NewEventLoop(logger),

		clientTagNames: map[string]bool{"typing": true, "reply": true, "react": true},

		msgIDGen: NewMessageIDGenerator(cfg.SID + "AAAAAA"),

		shutdown: make(chan struct{}),
		now:      now,
	}

	RegisterStandardClientCaps(s.ClientCaps)
	RegisterStandardServerCaps(s.ServerCaps)
	RegisterCoreCommands(s)
	RegisterDefaultStats(s)

	if cfg.TLSAddr != "" && cfg.TLSCert != "" && cfg.TLSKey != "" {
		s.tlsWorker = tlsworker.NewInProcessWorker(64)
	}

	return s
}

// ListenAndServe opens the plaintext listener and runs the accept loop
// until Shutdown is called. The goroutine-per-connection model relies
// on Go's netpoller to multiplex readiness instead of a hand-rolled
// reactor. If a TLS listen address and keypair are configured, the TLS
// accept loop is started on its own goroutine alongside this one.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.Config.ListenAddr)
	if err != nil {
		return fmt.Errorf("ircd: listen %s: %w", s.Config.ListenAddr, err)
	}
	s.listener = ln
	s.Logger.Printf("listening on %s", s.Config.ListenAddr)

	go s.Loop.Run()
	s.scheduleHousekeeping()

	if s.tlsWorker != nil {
		if err := s.startTLS(); err != nil {
			s.Logger.Printf("tls listener disabled: %v", err)
		}
	}

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return nil
			default:
				s.Logger.Printf("accept error: %v", err)
				continue
			}
		}
		go s.handleAccept(conn)
	}
}

// startTLS loads the configured certificate, opens the TLS listener,
// and starts the accept loop and the handshake-event drain, both on
// their own goroutines. The raw TCP accept loop hands every connection
// to the in-process TLS worker; handleTLSEvents picks up the resulting
// OpOpened/OpDied messages and admits or logs each one.
func (s *Server) startTLS() error {
	cert, err := tls.LoadX509KeyPair(s.Config.TLSCert, s.Config.TLSKey)
	if err != nil {
		return fmt.Errorf("load keypair: %w", err)
	}
	s.tlsConfig = &tls.Config{Certificates: []tls.Certificate{cert}}

	ln, err := net.Listen("tcp", s.Config.TLSAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.Config.TLSAddr, err)
	}
	s.tlsListener = ln
	s.Logger.Printf("listening (tls) on %s", s.Config.TLSAddr)

	go s.handleTLSEvents()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-s.shutdown:
					return
				default:
					s.Logger.Printf("tls accept error: %v", err)
					continue
				}
			}
			id := tlsworker.ConnID(atomic.AddUint32(&s.tlsConnID, 1))
			if err := s.tlsWorker.Accept(id, conn, s.tlsConfig); err != nil {
				s.Logger.Printf("tls accept %d: %v", id, err)
				conn.Close()
			}
		}
	}()
	return nil
}

// handleTLSEvents drains the TLS worker's event channel, admitting
// every successfully handshaked connection as a client flagged SSL and
// logging every failed handshake.
func (s *Server) handleTLSEvents() {
	for msg := range s.tlsWorker.Events() {
		switch msg.Op {
		case tlsworker.OpOpened:
			s.Stats.incrConnections()
			c := NewClient(s, msg.NetConn)
			c.Modes.SSL = true
			s.addClient(c)
			go c.ReadLoop()
		case tlsworker.OpDied:
			s.Logger.Printf("tls handshake %d failed: %s", msg.Conn, msg.Reason)
		}
	}
}

// Shutdown stops the accept loop and closes both listeners.
func (s *Server) Shutdown() {
	close(s.shutdown)
	if s.listener != nil {
		s.listener.Close()
	}
	if s.tlsListener != nil {
		s.tlsListener.Close()
	}
	s.Loop.Stop()
}

// scheduleHousekeeping registers the periodic sweeps (MIN/HOUR/DAY/WEEK
// temp-ban scans, the propagated-ban index sweep) on the event loop's
// timer list, self-rescheduling on each fire.
func (s *Server) scheduleHousekeeping() {
	var reschedule func(id string, every time.Duration, fn func())
	reschedule = func(id string, every time.Duration, fn func()) {
		s.Loop.ScheduleTimer(id, s.now().Add(every), func() {
			fn()
			reschedule(id, every, fn)
		})
	}

	reschedule("tempban.min", time.Minute, func() {
		for _, c := range s.TempBans.ScanMin() {
			s.Logger.Printf("temp-kline expired: %s@%s", c.UserMask, c.HostMask)
		}
	})
	reschedule("tempban.hour", time.Hour, func() { s.TempBans.ScanHour() })
	reschedule("tempban.day", 24*time.Hour, func() { s.TempBans.ScanDay() })
	reschedule("tempban.week", 7*24*time.Hour, func() { s.TempBans.ScanWeek() })
	reschedule("propban.expire", 60*time.Second, func() { s.PropBans.ExpireScan() })
}

func (s *Server) handleAccept(conn net.Conn) {
	s.Stats.incrConnections()

	host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
	ip := net.ParseIP(host)

	if rec := s.Address.FindDLine(ip); rec != nil && rec.Kind == ConfDLine {
		fmt.Fprintf(conn, "ERROR :Closing Link: %s [D-lined]\r\n", host)
		s.Stats.incrKlineHits()
		conn.Close()
		return
	}

	c := NewClient(s, conn)
	s.addClient(c)
	c.ReadLoop()
}

func (s *Server) addClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uidIndex[c.UID] = c
}

// removeClient detaches c from every index it was attached to,
// decrements its class, and releases its access-control record
// reference. A client is only freed once it is detached from all
// indexes.
func (s *Server) removeClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c.mu.RLock()
	nick := foldNick(c.Nick)
	class := c.Class
	ip := c.IP
	conf := c.attachedConf
	c.mu.RUnlock()

	if nick != "" {
		delete(s.clients, nick)
	}
	delete(s.uidIndex, c.UID)

	if class != nil && ip != nil {
		class.Detach(ip)
	}

	if conf != nil {
		conf.Unref()
		c.mu.Lock()
		c.attachedConf = nil
		c.mu.Unlock()
	}

	for _, ch := range c.Channels {
		ch.Part(c)
	}
}

// Lookup returns the locally-connected client by case-folded nick.
func (s *Server) Lookup(nick string) (*Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[foldNick(nick)]
	return c, ok
}

// LookupChannel returns the named channel, if any local client has it
// joined. Exported for ircd/peering's message-relay path.
func (s *Server) LookupChannel(name string) (*Channel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ch, ok := s.channels[name]
	return ch, ok
}

// bindNick registers c under nick in the nick index, used by the
// registration and NICK-change paths.
func (s *Server) bindNick(c *Client, nick string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[foldNick(nick)] = c
}

// foldNick applies RFC1459 case mapping for nick identity comparisons.
func foldNick(nick string) string {
	out := make([]byte, len(nick))
	for i := 0; i < len(nick); i++ {
		b := nick[i]
		switch {
		case b >= 'A' && b <= 'Z':
			b += 'a' - 'A'
		case b == '[':
			b = '{'
		case b == ']':
			b = '}'
		case b == '\\':
			b = '|'
		case b == '~':
			b = '^'
		}
		out[i] = b
	}
	return string(out)
}
