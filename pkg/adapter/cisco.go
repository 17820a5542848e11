package adapter

import (
	"regexp"
	"strings"
)

// Cisco implements the adapter for Cisco IOS/IOS-XE devices.
type Cisco struct {
	commandSet
}

// NewCisco creates the Cisco IOS adapter.
func NewCisco() *Cisco {
	return &Cisco{commandSet{
		platform: "cisco_ios",
		commands: map[string]string{
			"get_version":          "show version",
			"get_interfaces":       "show ip interface brief",
			"get_interface_detail": "show interfaces {interface}",
			"get_mac_table":        "show mac address-table",
			"find_mac":             "show mac address-table | include {mac_address}",
			"get_arp_table":        "show ip arp",
			"find_arp":             "show ip arp | include {ip_address}",
			"get_vlan":             "show vlan brief",
			"get_vlan_detail":      "show vlan id {vlan_id}",
			"show_running":         "show running-config",
			"show_startup":         "show startup-config",
			"ping":                 "ping {target}",
			"traceroute":           "traceroute {target}",
			"save_config":          "write memory",
		},
		required: map[string][]string{
			"get_interface_detail": {"interface"},
			"find_mac":             {"mac_address"},
			"find_arp":             {"ip_address"},
			"get_vlan_detail":      {"vlan_id"},
			"ping":                 {"target"},
			"traceroute":           {"target"},
		},
	}}
}

// Platform returns the IOS platform tag.
func (a *Cisco) Platform() string { return a.platform }

// SupportedActions lists the actions this adapter defines.
func (a *Cisco) SupportedActions() []string { return a.actions() }

// ConnectCommands disables pagination and console logging.
func (a *Cisco) ConnectCommands() []string {
	return []string{"terminal length 0", "terminal no monitor"}
}

// CommandFor renders the IOS command for an action.
func (a *Cisco) CommandFor(action string, params Params) (string, error) {
	return a.render(action, params)
}

var (
	iosVersionRe = regexp.MustCompile(`Cisco IOS.*Software.*Version ([^,\s]+)`)
	iosModelRe   = regexp.MustCompile(`(?m)^[Cc]isco (\S+) .*(?:processor|chassis)`)
	iosSerialRe  = regexp.MustCompile(`Processor board ID (\S+)`)
	iosUptimeRe  = regexp.MustCompile(`uptime is (.+)`)
)

// Parse converts IOS output into structured data, falling back to raw.
func (a *Cisco) Parse(action, raw string) ParseResult {
	if strings.TrimSpace(raw) == "" {
		return rawResult(raw, "empty output")
	}
	switch action {
	case "get_version":
		info := VersionInfo{
			Version: firstMatch(iosVersionRe, raw),
			Model:   firstMatch(iosModelRe, raw),
			Serial:  firstMatch(iosSerialRe, raw),
			Uptime:  firstMatch(iosUptimeRe, raw),
		}
		if info == (VersionInfo{}) {
			return rawResult(raw, "no version fields recognized")
		}
		return parsedResult(raw, info)
	case "get_mac_table", "find_mac":
		if entries := parseCiscoMACTable(raw); entries != nil {
			return parsedResult(raw, entries)
		}
		return rawResult(raw, "no mac table rows recognized")
	case "get_arp_table", "find_arp":
		if entries := parseCiscoARPTable(raw); entries != nil {
			return parsedResult(raw, entries)
		}
		return rawResult(raw, "no arp rows recognized")
	case "get_interfaces":
		if entries := parseInterfaceBrief(raw); entries != nil {
			return parsedResult(raw, entries)
		}
		return rawResult(raw, "no interface rows recognized")
	case "get_vlan":
		if entries := parseVLANBrief(raw); entries != nil {
			return parsedResult(raw, entries)
		}
		return rawResult(raw, "no vlan rows recognized")
	case "ping", "traceroute":
		if stats := parseCiscoPing(raw); stats != nil {
			return parsedResult(raw, stats)
		}
		return rawResult(raw, "no ping summary recognized")
	default:
		return ParseResult{Raw: raw}
	}
}

// IOS MAC table columns: vlan, mac, type, port.
func parseCiscoMACTable(output string) []MACEntry {
	var entries []MACEntry
	for _, row := range tableRows(output, "Mac Address", "Vlan", "----") {
		f := strings.Fields(row)
		if len(f) >= 4 {
			entries = append(entries, MACEntry{VLAN: f[0], MAC: f[1], State: f[2], Interface: f[3]})
		}
	}
	return entries
}

// IOS ARP columns: Protocol, Address, Age, Hardware Addr, Type, Interface.
func parseCiscoARPTable(output string) []ARPEntry {
	var entries []ARPEntry
	for _, row := range tableRows(output, "Protocol", "Address") {
		f := strings.Fields(row)
		if len(f) >= 6 && f[0] == "Internet" {
			entries = append(entries, ARPEntry{IP: f[1], MAC: f[3], Type: f[4], Interface: f[5]})
		}
	}
	return entries
}

var iosPingRe = regexp.MustCompile(`Success rate is (\d+) percent \((\d+)/(\d+)\)`)

func parseCiscoPing(output string) *PingStats {
	if m := iosPingRe.FindStringSubmatch(output); m != nil {
		return &PingStats{
			Sent:     atoi(m[3]),
			Received: atoi(m[2]),
			LossPct:  100 - atoi(m[1]),
		}
	}
	return parsePing(output)
}
