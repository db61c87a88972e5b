package lineconf

import (
	"strconv"
	"strings"
	"time"

	"github.com/CosmoTheDev/vtyscan-agent/models"
)

// Parse extracts line stanzas from device configuration text. It is
// pure and idempotent: malformed blocks degrade to nothing rather than
// erroring, and input with no line stanzas yields an empty slice. Range
// headers ("line vty 0 4", "line 0/2/0 0/2/15") expand to one block per
// line number.
func Parse(raw string) []models.LineBlock {
	out := []models.LineBlock{}
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	lines := strings.Split(raw, "\n")

	for i := 0; i < len(lines); i++ {
		header := lines[i]
		ids := headerIDs(header)
		if ids == nil {
			continue
		}
		body := []string{}
		j := i + 1
		for ; j < len(lines); j++ {
			ln := lines[j]
			if !strings.HasPrefix(ln, " ") && !strings.HasPrefix(ln, "\t") {
				break
			}
			body = append(body, ln)
		}
		i = j - 1

		rawBlock := strings.Join(append([]string{strings.TrimRight(header, " ")}, body...), "\n")
		for _, id := range ids {
			b := models.LineBlock{
				ID:        id,
				Login:     models.LoginAbsent,
				Privilege: 1,
				Raw:       rawBlock,
			}
			for _, directive := range body {
				applyDirective(&b, directive)
			}
			out = append(out, b)
		}
	}
	return out
}

// headerIDs parses a "line ..." header into the identifiers it covers,
// or nil when the line is not a well-formed block header.
func headerIDs(header string) []models.LineID {
	if strings.HasPrefix(header, " ") || strings.HasPrefix(header, "\t") {
		return nil
	}
	fields := strings.Fields(header)
	if len(fields) < 2 || fields[0] != "line" {
		return nil
	}
	args := fields[1:]

	lineType := ""
	switch strings.ToLower(args[0]) {
	case "con", "console":
		lineType = "con"
		args = args[1:]
	case "aux":
		lineType = "aux"
		args = args[1:]
	case "vty":
		lineType = "vty"
		args = args[1:]
	case "tty":
		lineType = "tty"
		args = args[1:]
	}
	if len(args) == 0 || len(args) > 2 {
		return nil
	}

	if slot, adapter, channel, ok := parseTriple(args[0]); ok {
		first := models.LineID{Type: lineType, Slot: slot, Adapter: adapter, Channel: channel, Triple: true}
		if len(args) == 1 {
			return []models.LineID{first}
		}
		s2, a2, c2, ok := parseTriple(args[1])
		if !ok || s2 != slot || a2 != adapter || c2 < channel {
			return nil
		}
		return expandIDs(first, c2)
	}

	channel, err := strconv.Atoi(args[0])
	if err != nil || channel < 0 {
		return nil
	}
	first := models.LineID{Type: lineType, Channel: channel}
	if len(args) == 1 {
		return []models.LineID{first}
	}
	last, err := strconv.Atoi(args[1])
	if err != nil || last < channel {
		return nil
	}
	return expandIDs(first, last)
}

func expandIDs(first models.LineID, lastChannel int) []models.LineID {
	ids := make([]models.LineID, 0, lastChannel-first.Channel+1)
	for c := first.Channel; c <= lastChannel; c++ {
		id := first
		id.Channel = c
		ids = append(ids, id)
	}
	return ids
}

func parseTriple(tok string) (slot, adapter, channel int, ok bool) {
	parts := strings.Split(tok, "/")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, 0, 0, false
		}
		nums[i] = n
	}
	return nums[0], nums[1], nums[2], true
}

// applyDirective folds one continuation line into the block. Unknown
// directives are ignored; a later directive for the same property wins,
// matching how the device CLI treats re-entry.
func applyDirective(b *models.LineBlock, raw string) {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return
	}

	switch fields[0] {
	case "transport":
		if len(fields) < 3 || fields[1] != "input" {
			return
		}
		b.TransportSpecified = true
		b.Transports = nil
		for _, proto := range fields[2:] {
			proto = strings.ToLower(proto)
			if proto == "none" {
				b.Transports = nil
				return
			}
			b.Transports = append(b.Transports, proto)
		}
	case "no":
		if len(fields) < 2 {
			return
		}
		switch fields[1] {
		case "login":
			b.Login = models.LoginNone
		case "exec":
			b.NoExec = true
		}
	case "login":
		if len(fields) == 1 {
			b.Login = models.LoginLine
			return
		}
		switch fields[1] {
		case "local":
			b.Login = models.LoginLocal
		case "authentication":
			b.Login = models.LoginAuthList
			if len(fields) > 2 {
				b.LoginList = fields[2]
			}
		}
	case "password":
		// presence only; the secret itself is never retained
		b.HasPassword = true
	case "access-class":
		if len(fields) < 2 {
			return
		}
		direction := "in"
		if len(fields) > 2 {
			direction = strings.ToLower(fields[2])
		}
		if direction == "out" {
			b.AccessClassOut = fields[1]
		} else {
			b.AccessClassIn = fields[1]
		}
	case "exec-timeout":
		if len(fields) < 2 {
			return
		}
		minutes, err := strconv.Atoi(fields[1])
		if err != nil || minutes < 0 {
			return
		}
		seconds := 0
		if len(fields) > 2 {
			if s, err := strconv.Atoi(fields[2]); err == nil && s >= 0 {
				seconds = s
			}
		}
		d := time.Duration(minutes)*time.Minute + time.Duration(seconds)*time.Second
		b.ExecTimeout = &d
	case "exec":
		b.NoExec = false
	case "speed":
		if len(fields) > 1 {
			if n, err := strconv.Atoi(fields[1]); err == nil && n > 0 {
				b.Speed = n
			}
		}
	case "flowcontrol":
		if len(fields) > 1 {
			b.FlowControl = strings.ToLower(fields[1])
		}
	case "rotary":
		if len(fields) > 1 {
			if n, err := strconv.Atoi(fields[1]); err == nil && n > 0 {
				b.Rotary = n
			}
		}
	case "privilege":
		if len(fields) > 2 && fields[1] == "level" {
			if n, err := strconv.Atoi(fields[2]); err == nil && n >= 0 {
				b.Privilege = n
			}
		}
	}
}
