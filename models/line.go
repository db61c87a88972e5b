package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// LineID identifies one terminal line. High-density async hardware
// addresses lines as slot/adapter/channel triples; fixed lines use a
// type keyword and a plain number.
type LineID struct {
	Type    string `json:"type,omitempty"` // con | aux | vty | tty, empty for bare numbers
	Slot    int    `json:"slot"`
	Adapter int    `json:"adapter"`
	Channel int    `json:"channel"`
	Triple  bool   `json:"triple"` // true when the slot/adapter/channel form was used
}

func (l LineID) String() string {
	if l.Triple {
		id := fmt.Sprintf("%d/%d/%d", l.Slot, l.Adapter, l.Channel)
		if l.Type != "" {
			return l.Type + " " + id
		}
		return id
	}
	if l.Type != "" {
		return l.Type + " " + strconv.Itoa(l.Channel)
	}
	return strconv.Itoa(l.Channel)
}

// LoginMode is the authentication method configured on a line.
type LoginMode string

const (
	LoginAbsent   LoginMode = "absent"    // no login directive present
	LoginNone     LoginMode = "none"      // explicit "no login"
	LoginLine     LoginMode = "line"      // "login" (line password)
	LoginLocal    LoginMode = "local"     // "login local"
	LoginAuthList LoginMode = "auth-list" // "login authentication NAME"
)

// Configured reports whether a login method is actually in force.
func (m LoginMode) Configured() bool {
	return m == LoginLine || m == LoginLocal || m == LoginAuthList
}

// LineBlock is one parsed line stanza from a device configuration.
type LineBlock struct {
	ID                 LineID         `json:"id"`
	Transports         []string       `json:"transports,omitempty"` // normalized "transport input" keywords
	TransportSpecified bool           `json:"transport_specified"`
	Login              LoginMode      `json:"login"`
	LoginList          string         `json:"login_list,omitempty"` // AAA method list name
	HasPassword        bool           `json:"has_password"`
	AccessClassIn      string         `json:"access_class_in,omitempty"`
	AccessClassOut     string         `json:"access_class_out,omitempty"`
	ExecTimeout        *time.Duration `json:"exec_timeout,omitempty"` // nil = device default, never zero
	Speed              int            `json:"speed,omitempty"`
	FlowControl        string         `json:"flow_control,omitempty"`
	Rotary             int            `json:"rotary,omitempty"` // 0 = no rotary group
	NoExec             bool           `json:"no_exec"`
	Privilege          int            `json:"privilege"` // 1 unless "privilege level N"
	Raw                string         `json:"raw,omitempty"`
}

// AllowsTransport reports whether proto is accepted on the line. The
// "all" keyword admits every protocol. Lines with no transport
// directive report false for everything; interpreting that silence is
// the classifier's job, not the parser's.
func (b LineBlock) AllowsTransport(proto string) bool {
	if !b.TransportSpecified {
		return false
	}
	for _, t := range b.Transports {
		if t == proto || t == "all" {
			return true
		}
	}
	return false
}

// LineRecord is the persisted form of a parsed line block.
type LineRecord struct {
	ID             int64     `json:"id"              db:"id"`
	RunID          int64     `json:"run_id"          db:"run_id"`
	Device         string    `json:"device"          db:"device"`
	Line           string    `json:"line"            db:"line"` // canonical identifier, e.g. "0/1/5" or "vty 0"
	LineType       string    `json:"line_type"       db:"line_type"`
	Slot           int       `json:"slot"            db:"slot"`
	Adapter        int       `json:"adapter"         db:"adapter"`
	Channel        int       `json:"channel"         db:"channel"`
	IsTriple       bool      `json:"is_triple"       db:"is_triple"`
	Transports     string    `json:"transports"      db:"transports"` // space-joined keywords
	HasTransport   bool      `json:"has_transport"   db:"has_transport"`
	LoginMode      string    `json:"login_mode"      db:"login_mode"`
	LoginList      string    `json:"login_list"      db:"login_list"`
	HasPassword    bool      `json:"has_password"    db:"has_password"`
	AccessClassIn  string    `json:"access_class_in" db:"access_class_in"`
	AccessClassOut string    `json:"access_class_out" db:"access_class_out"`
	ExecTimeoutSec int       `json:"exec_timeout_sec" db:"exec_timeout_sec"` // -1 = device default
	Rotary         int       `json:"rotary"          db:"rotary"`
	NoExec         bool      `json:"no_exec"         db:"no_exec"`
	Privilege      int       `json:"privilege"       db:"privilege"`
	Raw            string    `json:"raw"             db:"raw"`
	CreatedAt      time.Time `json:"created_at"      db:"created_at"`
}

// NewLineRecord flattens a parsed block for storage.
func NewLineRecord(runID int64, device string, b LineBlock) LineRecord {
	timeout := -1
	if b.ExecTimeout != nil {
		timeout = int(b.ExecTimeout.Seconds())
	}
	return LineRecord{
		RunID:          runID,
		Device:         device,
		Line:           b.ID.String(),
		LineType:       b.ID.Type,
		Slot:           b.ID.Slot,
		Adapter:        b.ID.Adapter,
		Channel:        b.ID.Channel,
		IsTriple:       b.ID.Triple,
		Transports:     strings.Join(b.Transports, " "),
		HasTransport:   b.TransportSpecified,
		LoginMode:      string(b.Login),
		LoginList:      b.LoginList,
		HasPassword:    b.HasPassword,
		AccessClassIn:  b.AccessClassIn,
		AccessClassOut: b.AccessClassOut,
		ExecTimeoutSec: timeout,
		Rotary:         b.Rotary,
		NoExec:         b.NoExec,
		Privilege:      b.Privilege,
		CreatedAt:      time.Now().UTC(),
		Raw:            b.Raw,
	}
}
