package adapter

import (
	"errors"
	"strings"
	"testing"

	"github.com/fleetwire-net/fleetwire/pkg/util"
)

func TestRegistryResolve(t *testing.T) {
	reg := DefaultRegistry()

	tests := []struct {
		platform string
		wantErr  bool
	}{
		{"hp_comware", false},
		{"huawei_vrp", false},
		{"cisco_ios", false},
		{"generic", false},
		{"  Cisco_IOS ", false}, // normalized
		{"juniper_junos", true},
		{"", true},
	}

	for _, tt := range tests {
		a, err := reg.Resolve(tt.platform)
		if tt.wantErr {
			if err == nil {
				t.Errorf("Resolve(%q) should fail", tt.platform)
			} else if !errors.Is(err, util.ErrUnsupportedPlatform) {
				t.Errorf("Resolve(%q) error should be ErrUnsupportedPlatform, got %v", tt.platform, err)
			}
			continue
		}
		if err != nil {
			t.Errorf("Resolve(%q): %v", tt.platform, err)
			continue
		}
		if a == nil {
			t.Errorf("Resolve(%q) returned nil adapter", tt.platform)
		}
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	if _, err := NewRegistry(NewCisco(), NewCisco()); err == nil {
		t.Fatal("duplicate platform tags should be rejected")
	}
}

func TestRegistryRejectsEmpty(t *testing.T) {
	if _, err := NewRegistry(); err == nil {
		t.Fatal("empty registry should be rejected")
	}
}

func TestCommandFor(t *testing.T) {
	tests := []struct {
		adapter Adapter
		action  string
		params  Params
		want    string
	}{
		{NewH3C(), "get_version", nil, "display version"},
		{NewH3C(), "get_interface_detail", Params{"interface": "GigabitEthernet1/0/1"},
			"display interface GigabitEthernet1/0/1"},
		{NewH3C(), "find_mac", Params{"mac_address": "AA:BB:CC:DD:EE:FF"},
			"display mac-address | include aabb-ccdd-eeff"},
		{NewHuawei(), "get_arp_table", nil, "display arp all"},
		{NewHuawei(), "ping", Params{"target": "10.0.0.1"}, "ping 10.0.0.1"},
		{NewCisco(), "get_version", nil, "show version"},
		{NewCisco(), "save_config", nil, "write memory"},
		{NewCisco(), "get_vlan_detail", Params{"vlan_id": "100"}, "show vlan id 100"},
		{NewGeneric(), "anything", Params{"command": "uname -a"}, "uname -a"},
	}

	for _, tt := range tests {
		got, err := tt.adapter.CommandFor(tt.action, tt.params)
		if err != nil {
			t.Errorf("%s CommandFor(%s): %v", tt.adapter.Platform(), tt.action, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s CommandFor(%s) = %q, want %q", tt.adapter.Platform(), tt.action, got, tt.want)
		}
	}
}

func TestCommandForUnknownAction(t *testing.T) {
	for _, a := range []Adapter{NewH3C(), NewHuawei(), NewCisco()} {
		_, err := a.CommandFor("reboot_chassis", nil)
		if !errors.Is(err, util.ErrUnknownAction) {
			t.Errorf("%s: unknown action should fail with ErrUnknownAction, got %v", a.Platform(), err)
		}
	}
}

func TestCommandForMissingParam(t *testing.T) {
	_, err := NewCisco().CommandFor("find_mac", nil)
	if !errors.Is(err, util.ErrUnknownAction) {
		t.Fatalf("missing required param should fail, got %v", err)
	}
	if !strings.Contains(err.Error(), "mac_address") {
		t.Errorf("error should name the missing parameter: %v", err)
	}
}

func TestCommandForBadMAC(t *testing.T) {
	_, err := NewH3C().CommandFor("find_mac", Params{"mac_address": "not-a-mac"})
	if err == nil {
		t.Fatal("malformed MAC should be rejected")
	}
}

func TestParseVersionH3C(t *testing.T) {
	output := `H3C Comware Software, Version 7.1.070, Release 6728P05
Copyright (c) 2004-2021 New H3C Technologies Co., Ltd.
H3C S5560X-30C-EI uptime is 14 weeks, 2 days, 5 hours
Device serial number : 210235A1QQH194000317
`
	res := NewH3C().Parse("get_version", output)
	if res.ParseErr != "" {
		t.Fatalf("parse error: %s", res.ParseErr)
	}
	info, ok := res.Parsed.(VersionInfo)
	if !ok {
		t.Fatalf("Parsed is %T, want VersionInfo", res.Parsed)
	}
	if !strings.HasPrefix(info.Version, "7.1.070") {
		t.Errorf("Version = %q", info.Version)
	}
	if info.Model != "S5560X-30C-EI" {
		t.Errorf("Model = %q", info.Model)
	}
	if info.Serial != "210235A1QQH194000317" {
		t.Errorf("Serial = %q", info.Serial)
	}
}

func TestParseVersionCisco(t *testing.T) {
	output := `Cisco IOS Software, C2960X Software (C2960X-UNIVERSALK9-M), Version 15.2(7)E3, RELEASE SOFTWARE (fc3)
sw-access-12 uptime is 2 years, 11 weeks, 4 days
Processor board ID FOC2233X0LK
cisco WS-C2960X-48TS-L (APM86XXX) processor (revision M0) with 524288K bytes of memory.
`
	res := NewCisco().Parse("get_version", output)
	info, ok := res.Parsed.(VersionInfo)
	if !ok {
		t.Fatalf("Parsed is %T, want VersionInfo", res.Parsed)
	}
	if info.Version != "15.2(7)E3" {
		t.Errorf("Version = %q", info.Version)
	}
	if info.Serial != "FOC2233X0LK" {
		t.Errorf("Serial = %q", info.Serial)
	}
}

func TestParseMACTable(t *testing.T) {
	output := `MAC Address      VLAN ID  State          Port/Nickname
aabb-ccdd-eeff   100      Learned        GE1/0/12
0011-2233-4455   200      Learned        GE1/0/24
`
	res := NewH3C().Parse("get_mac_table", output)
	entries, ok := res.Parsed.([]MACEntry)
	if !ok {
		t.Fatalf("Parsed is %T, want []MACEntry", res.Parsed)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].MAC != "aabb-ccdd-eeff" || entries[0].Interface != "GE1/0/12" {
		t.Errorf("first entry = %+v", entries[0])
	}
}

func TestParseCiscoARP(t *testing.T) {
	output := `Protocol  Address          Age (min)  Hardware Addr   Type   Interface
Internet  10.1.1.1                5   aabb.ccdd.eeff  ARPA   Vlan100
Internet  10.1.1.2                -   0011.2233.4455  ARPA   Vlan100
`
	res := NewCisco().Parse("get_arp_table", output)
	entries, ok := res.Parsed.([]ARPEntry)
	if !ok {
		t.Fatalf("Parsed is %T, want []ARPEntry", res.Parsed)
	}
	if len(entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(entries))
	}
	if entries[0].IP != "10.1.1.1" || entries[0].MAC != "aabb.ccdd.eeff" {
		t.Errorf("first entry = %+v", entries[0])
	}
}

func TestParseCiscoPing(t *testing.T) {
	output := `Type escape sequence to abort.
Sending 5, 100-byte ICMP Echos to 10.0.0.1, timeout is 2 seconds:
!!!!!
Success rate is 100 percent (5/5), round-trip min/avg/max = 1/2/4 ms
`
	res := NewCisco().Parse("ping", output)
	stats, ok := res.Parsed.(*PingStats)
	if !ok {
		t.Fatalf("Parsed is %T, want *PingStats", res.Parsed)
	}
	if stats.Sent != 5 || stats.Received != 5 || stats.LossPct != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

// Parse must never fail hard: malformed or hostile input always comes
// back with the raw text preserved.
func TestParseNeverThrows(t *testing.T) {
	inputs := []string{
		"",
		"garbage ~~ %% !!",
		"Invalid input detected at '^' marker.",
		strings.Repeat("x", 1<<16),
		"\x00\x01\x02 binary noise \xff",
	}
	actions := []string{"get_version", "get_mac_table", "get_arp_table",
		"get_interfaces", "get_vlan", "ping", "unparsed_action"}

	for _, a := range []Adapter{NewH3C(), NewHuawei(), NewCisco(), NewGeneric()} {
		for _, action := range actions {
			for _, in := range inputs {
				res := a.Parse(action, in)
				if res.Raw != in {
					t.Errorf("%s Parse(%s) lost raw output", a.Platform(), action)
				}
				if res.Parsed == nil && res.ParseErr == "" && in != "" && action != "unparsed_action" {
					// Raw-only results for parseable actions carry a marker,
					// except passthrough adapters.
					if a.Platform() != "generic" {
						t.Errorf("%s Parse(%s) returned no parse marker for unparseable input", a.Platform(), action)
					}
				}
			}
		}
	}
}

func TestConnectCommands(t *testing.T) {
	tests := []struct {
		adapter Adapter
		want    string
	}{
		{NewH3C(), "screen-length disable"},
		{NewHuawei(), "screen-length 0 temporary"},
		{NewCisco(), "terminal length 0"},
	}
	for _, tt := range tests {
		cmds := tt.adapter.ConnectCommands()
		if len(cmds) == 0 || cmds[0] != tt.want {
			t.Errorf("%s ConnectCommands = %v, want first %q", tt.adapter.Platform(), cmds, tt.want)
		}
	}
	if cmds := NewGeneric().ConnectCommands(); cmds != nil {
		t.Errorf("generic ConnectCommands = %v, want nil", cmds)
	}
}

func TestSupportedActions(t *testing.T) {
	actions := NewH3C().SupportedActions()
	if len(actions) != 14 {
		t.Errorf("H3C supports %d actions, want 14", len(actions))
	}
	found := false
	for _, a := range actions {
		if a == "get_version" {
			found = true
		}
	}
	if !found {
		t.Error("get_version missing from supported actions")
	}
}
