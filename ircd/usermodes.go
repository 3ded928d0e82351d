package ircd

import (
	"fmt"
	"reflect"
)

// UserMode is the set of user modes tracked by the connection-and-access
// core, with struct-tag-driven get/set/string conversion (notably +q
// for quarantine rather than an unkickable flag).
type UserMode struct {
	Invisible    bool `mode:"i" desc:"invisible"`
	Wallops      bool `mode:"w" desc:"receives wallops"`
	ServerNotice bool `mode:"s" desc:"receives server notices"`
	Registered   bool `mode:"r" desc:"registered nick, set by services"`
	Operator     bool `mode:"o" desc:"IRC operator"`
	Admin        bool `mode:"a" desc:"server administrator, oper-only"`
	Deaf         bool `mode:"D" desc:"does not receive channel messages"`
	CallerID     bool `mode:"g" desc:"only accepts messages from accepted senders"`
	Quarantine   bool `mode:"q" desc:"quarantined: may only act in allow-listed channels"`
	SSL          bool `mode:"Z" desc:"connected via TLS, server-set"`
	HideIdle     bool `mode:"I" desc:"hides idle time in WHOIS, oper-only"`
}

// applyModeChar sets the field tagged mode on m, returning an error if
// no field carries that tag.
func applyModeChar(m *UserMode, ch rune, value bool) error {
	val := reflect.ValueOf(m).Elem()
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		if typ.Field(i).Tag.Get("mode") == string(ch) {
			val.Field(i).SetBool(value)
			return nil
		}
	}
	return fmt.Errorf("ircd: unknown user mode %q", ch)
}

// ApplyMode applies a single +/- mode character.
func (m *UserMode) ApplyMode(ch rune, add bool) error {
	return applyModeChar(m, ch, add)
}

// HasMode reports whether ch is currently set.
func (m *UserMode) HasMode(ch rune) bool {
	val := reflect.ValueOf(m).Elem()
	typ := val.Type()
	for i := 0; i < val.NumField(); i++ {
		if typ.Field(i).Tag.Get("mode") == string(ch) {
			return val.Field(i).Bool()
		}
	}
	return false
}

// String renders the mode set as "+xyz", or "" if nothing is set.
func (m *UserMode) String() string {
	val := reflect.ValueOf(m).Elem()
	typ := val.Type()
	out := "+"
	for i := 0; i < val.NumField(); i++ {
		if val.Field(i).Bool() {
			out += typ.Field(i).Tag.Get("mode")
		}
	}
	if out == "+" {
		return ""
	}
	return out
}

// ParseModeString applies a full "+aw-i"-style string in order,
// returning the first unknown-mode error encountered (later valid
// characters are still applied, matching how MODE processing reports
// one ERR_UMODEUNKNOWNFLAG per command regardless of how many bad
// letters were seen).
func (m *UserMode) ParseModeString(s string) error {
	add := true
	var firstErr error
	for _, ch := range s {
		switch ch {
		case '+':
			add = true
		case '-':
			add = false
		default:
			if err := applyModeChar(m, ch, add); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
