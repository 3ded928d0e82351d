package ircd

import "strings"

// HandleCAP dispatches CAP subcommands against CapRegistry/CapMask.
// REQ is atomic: a batch either enables/disables every listed
// capability or none of them.
func (s *Server) HandleCAP(c *Client, msg *MsgBuf) {
	if msg.ParamCount() < 1 {
		c.SendNumeric(ErrNeedMoreParams, "CAP", "not enough parameters")
		return
	}
	switch strings.ToUpper(msg.Param(0)) {
	case "LS":
		s.capLS(c, msg)
	case "LIST":
		s.capLIST(c)
	case "REQ":
		s.capREQ(c, msg)
	case "END":
		s.capEND(c)
	default:
		c.Send(&MsgBuf{Prefix: s.Name, Command: "CAP", Params: []string{c.nickOrStar(), strings.ToUpper(msg.Param(0))}, Trailing: "unknown subcommand", HasTrail: true})
	}
}

func (c *Client) nickOrStar() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Nick == "" {
		return "*"
	}
	return c.Nick
}

// capLS advertises every capability visible to c, chunked into
// multiple "CAP * LS *" lines terminated by a final unstarred line, per
// IRCv3 cap-3.2 multiline LS.
func (s *Server) capLS(c *Client, msg *MsgBuf) {
	c.mu.Lock()
	c.Caps.Negotiating = true
	c.mu.Unlock()

	version := "301"
	if msg.ParamCount() > 1 {
		version = msg.Param(1)
	}

	descs := s.ClientCaps.Advertised(c)
	tokens := make([]string, 0, len(descs))
	for _, d := range descs {
		tok := d.Name
		if d.Value != nil {
			if v := d.Value(c); v != "" {
				tok += "=" + v
			}
		}
		tokens = append(tokens, tok)
	}

	if version != "302" {
		c.Send(&MsgBuf{Prefix: s.Name, Command: "CAP", Params: []string{c.nickOrStar(), "LS"}, Trailing: strings.Join(tokens, " "), HasTrail: true})
		return
	}

	const chunkSize = 20
	for i := 0; i < len(tokens); i += chunkSize {
		end := i + chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		more := end < len(tokens)
		params := []string{c.nickOrStar(), "LS"}
		if more {
			params = append(params, "*")
		}
		c.Send(&MsgBuf{Prefix: s.Name, Command: "CAP", Params: params, Trailing: strings.Join(tokens[i:end], " "), HasTrail: true})
	}
}

func (s *Server) capLIST(c *Client) {
	c.mu.RLock()
	enabled := c.Caps.Enabled
	c.mu.RUnlock()

	var names []string
	for _, d := range s.ClientCaps.Advertised(c) {
		if d.Mask&enabled != 0 {
			names = append(names, d.Name)
		}
	}
	c.Send(&MsgBuf{Prefix: s.Name, Command: "CAP", Params: []string{c.nickOrStar(), "LIST"}, Trailing: strings.Join(names, " "), HasTrail: true})
}

// capREQ validates the entire requested batch before applying any of
// it: if any named capability is unknown, or a removal targets a
// Sticky capability, the whole batch is NAKed unmodified.
func (s *Server) capREQ(c *Client, msg *MsgBuf) {
	if msg.ParamCount() < 2 {
		return
	}
	raw := strings.TrimSpace(msg.Param(1))
	tokens := strings.Fields(raw)

	type change struct {
		desc   *CapDescriptor
		enable bool
	}
	changes := make([]change, 0, len(tokens))

	for _, tok := range tokens {
		enable := true
		name := tok
		if strings.HasPrefix(name, "-") {
			enable = false
			name = name[1:]
		}
		desc, ok := s.ClientCaps.Lookup(name)
		if !ok {
			s.capNAK(c, raw)
			return
		}
		if !enable && desc.Sticky {
			s.capNAK(c, raw)
			return
		}
		changes = append(changes, change{desc: desc, enable: enable})
	}

	c.mu.Lock()
	for _, ch := range changes {
		if ch.enable {
			c.Caps.Enabled |= ch.desc.Mask
		} else {
			c.Caps.Enabled &^= ch.desc.Mask
		}
	}
	c.mu.Unlock()

	c.Send(&MsgBuf{Prefix: s.Name, Command: "CAP", Params: []string{c.nickOrStar(), "ACK"}, Trailing: raw, HasTrail: true})
}

func (s *Server) capNAK(c *Client, raw string) {
	c.Send(&MsgBuf{Prefix: s.Name, Command: "CAP", Params: []string{c.nickOrStar(), "NAK"}, Trailing: raw, HasTrail: true})
}

// capEND ends negotiation and, for a still-UNKNOWN client, lets
// registration proceed.
func (s *Server) capEND(c *Client) {
	c.mu.Lock()
	c.Caps.Negotiating = false
	c.mu.Unlock()

	if c.CurrentState() == StateUnknown || c.CurrentState() == StateRegistering {
		s.tryCompleteRegistration(c)
	}
}
