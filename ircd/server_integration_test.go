package ircd

import (
	"bufio"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ircTestClient is a minimal raw-socket IRC client for driving a real
// listener end-to-end, in the style of a plain net.Dial test harness
// rather than a full client library.
type ircTestClient struct {
	conn   net.Conn
	reader *bufio.Reader
}

func dialIRCTestClient(t *testing.T, addr string) *ircTestClient {
	t.Helper()
	var conn net.Conn
	var err error
	for i := 0; i < 20; i++ {
		conn, err = net.Dial("tcp", addr)
		if err == nil {
			break
		}
		time.Sleep(25 * time.Millisecond)
	}
	require.NoError(t, err, "dial test server")
	return &ircTestClient{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *ircTestClient) send(line string) {
	c.conn.Write([]byte(line + "\r\n"))
}

func (c *ircTestClient) expect(t *testing.T, contains string, timeout time.Duration) string {
	t.Helper()
	c.conn.SetReadDeadline(time.Now().Add(timeout))
	defer c.conn.SetReadDeadline(time.Time{})

	for {
		line, err := c.reader.ReadString('\n')
		if err != nil {
			t.Fatalf("waiting for %q: %v", contains, err)
		}
		line = strings.TrimSpace(line)
		if strings.Contains(line, contains) {
			return line
		}
	}
}

func (c *ircTestClient) close() {
	c.conn.Close()
}

func freeTCPAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()
	return addr
}

func newIntegrationServer(t *testing.T) (*Server, string) {
	t.Helper()
	addr := freeTCPAddr(t)
	cfg := &Config{
		ServerName:          "irc.test",
		NetworkName:         "TestNet",
		SID:                 "00T",
		ListenAddr:          addr,
		MaxRatelimitTokens:  20,
		RegistrationTimeout: 10 * time.Second,
	}
	s := NewServer(cfg, nil)
	RegisterCoreCommands(s)
	RegisterChannelCommands(s)
	s.Address.Insert(&Conf{Kind: ConfClient, UserMask: "*", HostMask: "*"})

	go func() {
		if err := s.ListenAndServe(); err != nil {
			t.Logf("ListenAndServe: %v", err)
		}
	}()
	t.Cleanup(s.Shutdown)

	return s, addr
}

func TestIntegrationRegistrationHandshakeReachesWelcome(t *testing.T) {
	_, addr := newIntegrationServer(t)

	c := dialIRCTestClient(t, addr)
	defer c.close()

	c.send("NICK alice")
	c.send("USER alice 0 * :Alice Example")

	c.expect(t, "001", 5*time.Second)
}

func TestIntegrationDuplicateNickIsRejected(t *testing.T) {
	_, addr := newIntegrationServer(t)

	first := dialIRCTestClient(t, addr)
	defer first.close()
	first.send("NICK alice")
	first.send("USER alice 0 * :Alice Example")
	first.expect(t, "001", 5*time.Second)

	second := dialIRCTestClient(t, addr)
	defer second.close()
	second.send("NICK alice")
	second.expect(t, "433", 5*time.Second)
}

func TestIntegrationJoinAndPrivmsgDeliversAcrossConnections(t *testing.T) {
	_, addr := newIntegrationServer(t)

	alice := dialIRCTestClient(t, addr)
	defer alice.close()
	alice.send("NICK alice")
	alice.send("USER alice 0 * :Alice Example")
	alice.expect(t, "001", 5*time.Second)

	bob := dialIRCTestClient(t, addr)
	defer bob.close()
	bob.send("NICK bob")
	bob.send("USER bob 0 * :Bob Example")
	bob.expect(t, "001", 5*time.Second)

	alice.send("JOIN #test")
	alice.expect(t, "JOIN #test", 5*time.Second)

	bob.send("JOIN #test")
	bob.expect(t, "JOIN #test", 5*time.Second)
	alice.expect(t, "bob", 5*time.Second)

	bob.send("PRIVMSG #test :hello from bob")
	line := alice.expect(t, "PRIVMSG #test", 5*time.Second)
	assert.Contains(t, line, "hello from bob")
}

func TestIntegrationPingPong(t *testing.T) {
	_, addr := newIntegrationServer(t)

	c := dialIRCTestClient(t, addr)
	defer c.close()
	c.send("NICK carol")
	c.send("USER carol 0 * :Carol Example")
	c.expect(t, "001", 5*time.Second)

	c.send("PING sometoken")
	line := c.expect(t, "PONG", 5*time.Second)
	assert.Contains(t, line, "sometoken")
}
