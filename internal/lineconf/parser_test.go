package lineconf

import (
	"reflect"
	"testing"
	"time"

	"github.com/CosmoTheDev/vtyscan-agent/models"
)

const sampleConfig = `!
version 15.1
hostname term-server-3
!
line con 0
 exec-timeout 5 30
 login local
 transport input none
!
line 0/1/0
 login local
 access-class MGT-IN in
 transport input telnet
 speed 9600
 flowcontrol hardware
!
line 0/2/0 0/2/15
 no exec
 rotary 1
 transport input telnet
!
line aux 0
 no login
 transport input telnet
!
line vty 0 4
 exec-timeout 10 0
 login authentication VTY-AAA
 access-class MGT-IN in
 transport input ssh
!
line vty 5 15
 password 7 094F471A1A0A
 login
 transport input ssh telnet
!
end
`

func TestParseExpandsRanges(t *testing.T) {
	blocks := Parse(sampleConfig)

	// 1 con + 1 triple + 16 triples + 1 aux + 5 vty + 11 vty
	if len(blocks) != 35 {
		t.Fatalf("len(blocks) = %d, want 35", len(blocks))
	}

	var vty []models.LineBlock
	for _, b := range blocks {
		if b.ID.Type == "vty" {
			vty = append(vty, b)
		}
	}
	if len(vty) != 16 {
		t.Fatalf("vty blocks = %d, want 16", len(vty))
	}
	if vty[0].ID.Channel != 0 || vty[15].ID.Channel != 15 {
		t.Errorf("vty channels not expanded in order: first=%d last=%d", vty[0].ID.Channel, vty[15].ID.Channel)
	}
}

func TestParseTripleIdentifiers(t *testing.T) {
	blocks := Parse(sampleConfig)

	var bank []models.LineBlock
	for _, b := range blocks {
		if b.ID.Triple && b.ID.Slot == 0 && b.ID.Adapter == 2 {
			bank = append(bank, b)
		}
	}
	if len(bank) != 16 {
		t.Fatalf("0/2 bank = %d blocks, want 16", len(bank))
	}
	for i, b := range bank {
		if b.ID.Channel != i {
			t.Errorf("bank[%d].Channel = %d, want %d", i, b.ID.Channel, i)
		}
		if !b.NoExec || b.Rotary != 1 {
			t.Errorf("bank[%d] lost shared directives: no_exec=%v rotary=%d", i, b.NoExec, b.Rotary)
		}
	}
	if got := bank[3].ID.String(); got != "0/2/3" {
		t.Errorf("LineID.String() = %q, want 0/2/3", got)
	}
}

func TestParseDirectives(t *testing.T) {
	blocks := Parse(sampleConfig)
	byID := map[string]models.LineBlock{}
	for _, b := range blocks {
		byID[b.ID.String()] = b
	}

	con := byID["con 0"]
	if con.Login != models.LoginLocal {
		t.Errorf("con login = %q, want local", con.Login)
	}
	if !con.TransportSpecified || len(con.Transports) != 0 {
		t.Errorf("con transport: specified=%v set=%v, want specified empty", con.TransportSpecified, con.Transports)
	}
	if con.ExecTimeout == nil || *con.ExecTimeout != 5*time.Minute+30*time.Second {
		t.Errorf("con exec-timeout = %v, want 5m30s", con.ExecTimeout)
	}

	async := byID["0/1/0"]
	if !async.AllowsTransport("telnet") {
		t.Errorf("0/1/0 should allow telnet")
	}
	if async.AccessClassIn != "MGT-IN" {
		t.Errorf("0/1/0 access-class = %q, want MGT-IN", async.AccessClassIn)
	}
	if async.Speed != 9600 || async.FlowControl != "hardware" {
		t.Errorf("0/1/0 speed/flowcontrol = %d/%q", async.Speed, async.FlowControl)
	}

	aux := byID["aux 0"]
	if aux.Login != models.LoginNone {
		t.Errorf("aux login = %q, want none (explicit no login)", aux.Login)
	}

	vty0 := byID["vty 0"]
	if vty0.Login != models.LoginAuthList || vty0.LoginList != "VTY-AAA" {
		t.Errorf("vty0 login = %q/%q, want auth-list/VTY-AAA", vty0.Login, vty0.LoginList)
	}
	if vty0.AllowsTransport("telnet") {
		t.Errorf("vty0 allows telnet, want ssh only")
	}

	vty5 := byID["vty 5"]
	if vty5.Login != models.LoginLine || !vty5.HasPassword {
		t.Errorf("vty5 login = %q has_password=%v, want line/true", vty5.Login, vty5.HasPassword)
	}
	if !vty5.AllowsTransport("ssh") || !vty5.AllowsTransport("telnet") {
		t.Errorf("vty5 transports = %v, want ssh+telnet", vty5.Transports)
	}
}

func TestParseDefaults(t *testing.T) {
	blocks := Parse("line 0/3/7\n")
	if len(blocks) != 1 {
		t.Fatalf("len(blocks) = %d, want 1", len(blocks))
	}
	b := blocks[0]
	if b.Login != models.LoginAbsent {
		t.Errorf("login = %q, want absent", b.Login)
	}
	if b.TransportSpecified {
		t.Errorf("transport specified on bare block")
	}
	if b.ExecTimeout != nil {
		t.Errorf("exec-timeout = %v, want nil (device default)", b.ExecTimeout)
	}
	if b.Privilege != 1 {
		t.Errorf("privilege = %d, want 1", b.Privilege)
	}
}

func TestParseZeroExecTimeoutIsNotDefault(t *testing.T) {
	blocks := Parse("line vty 0\n exec-timeout 0 0\n")
	if len(blocks) != 1 {
		t.Fatalf("len(blocks) = %d, want 1", len(blocks))
	}
	if blocks[0].ExecTimeout == nil || *blocks[0].ExecTimeout != 0 {
		t.Errorf("exec-timeout = %v, want explicit 0", blocks[0].ExecTimeout)
	}
}

func TestParseIgnoresUnknownDirectives(t *testing.T) {
	blocks := Parse("line vty 0\n stopbits 1\n session-limit 4\n login local\n")
	if len(blocks) != 1 {
		t.Fatalf("len(blocks) = %d, want 1", len(blocks))
	}
	if blocks[0].Login != models.LoginLocal {
		t.Errorf("known directive lost among unknowns: login = %q", blocks[0].Login)
	}
}

func TestParseEmptyAndGarbageInput(t *testing.T) {
	for _, input := range []string{"", "   \n\n", "interface GigabitEthernet0/0\n ip address dhcp\n", "line\n", "line bogus zz\n"} {
		blocks := Parse(input)
		if blocks == nil {
			t.Errorf("Parse(%q) = nil, want empty slice", input)
		}
		if len(blocks) != 0 {
			t.Errorf("Parse(%q) = %d blocks, want 0", input, len(blocks))
		}
	}
}

func TestParsePrivilegeLevel(t *testing.T) {
	blocks := Parse("line vty 0\n privilege level 15\n login local\n transport input telnet\n")
	if len(blocks) != 1 || blocks[0].Privilege != 15 {
		t.Fatalf("privilege = %d, want 15", blocks[0].Privilege)
	}
}

func TestParseLastTransportWins(t *testing.T) {
	blocks := Parse("line vty 0\n transport input telnet\n transport input ssh\n")
	if len(blocks) != 1 {
		t.Fatalf("len(blocks) = %d, want 1", len(blocks))
	}
	if blocks[0].AllowsTransport("telnet") {
		t.Errorf("earlier transport directive survived: %v", blocks[0].Transports)
	}
	if !blocks[0].AllowsTransport("ssh") {
		t.Errorf("latest transport directive lost: %v", blocks[0].Transports)
	}
}

// Re-parsing a block's captured raw text must reproduce the block.
func TestParseStability(t *testing.T) {
	for _, b := range Parse(sampleConfig) {
		again := Parse(b.Raw)
		var match *models.LineBlock
		for i := range again {
			if again[i].ID == b.ID {
				match = &again[i]
				break
			}
		}
		if match == nil {
			t.Fatalf("re-parse of %q lost block %s", b.Raw, b.ID)
		}
		if !reflect.DeepEqual(*match, b) {
			t.Errorf("re-parse of %s diverged:\n got %+v\nwant %+v", b.ID, *match, b)
		}
	}
}
