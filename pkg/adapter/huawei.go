package adapter

import (
	"regexp"
	"strings"
)

// Huawei implements the adapter for Huawei VRP devices.
type Huawei struct {
	commandSet
}

// NewHuawei creates the Huawei VRP adapter.
func NewHuawei() *Huawei {
	return &Huawei{commandSet{
		platform: "huawei_vrp",
		commands: map[string]string{
			"get_version":          "display version",
			"get_interfaces":       "display interface brief",
			"get_interface_detail": "display interface {interface}",
			"get_mac_table":        "display mac-address",
			"find_mac":             "display mac-address | include {mac_address}",
			"get_arp_table":        "display arp all",
			"find_arp":             "display arp | include {ip_address}",
			"get_vlan":             "display vlan",
			"get_vlan_detail":      "display vlan {vlan_id}",
			"show_running":         "display current-configuration",
			"show_startup":         "display saved-configuration",
			"ping":                 "ping {target}",
			"traceroute":           "tracert {target}",
			"save_config":          "save",
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

// Platform returns the VRP platform tag.
func (a *Huawei) Platform() string { return a.platform }

// SupportedActions lists the actions this adapter defines.
func (a *Huawei) SupportedActions() []string { return a.actions() }

// ConnectCommands disables pagination and terminal monitoring.
func (a *Huawei) ConnectCommands() []string {
	return []string{"screen-length 0 temporary", "undo terminal monitor"}
}

// CommandFor renders the VRP command for an action.
func (a *Huawei) CommandFor(action string, params Params) (string, error) {
	return a.render(action, params)
}

var (
	vrpVersionRe = regexp.MustCompile(`VRP \(R\) software, Version (.+)`)
	vrpModelRe   = regexp.MustCompile(`(?i)Huawei (\S+) .*uptime`)
	vrpUptimeRe  = regexp.MustCompile(`uptime is (.+)`)
)

// Parse converts VRP output into structured data, falling back to raw.
func (a *Huawei) Parse(action, raw string) ParseResult {
	if strings.TrimSpace(raw) == "" {
		return rawResult(raw, "empty output")
	}
	switch action {
	case "get_version":
		info := VersionInfo{
			Version: firstMatch(vrpVersionRe, raw),
			Model:   firstMatch(vrpModelRe, raw),
			Uptime:  firstMatch(vrpUptimeRe, raw),
		}
		if info == (VersionInfo{}) {
			return rawResult(raw, "no version fields recognized")
		}
		return parsedResult(raw, info)
	case "get_mac_table", "find_mac":
		if entries := parseMACTable(raw); entries != nil {
			return parsedResult(raw, entries)
		}
		return rawResult(raw, "no mac table rows recognized")
	case "get_arp_table", "find_arp":
		if entries := parseARPTable(raw); entries != nil {
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
		if stats := parsePing(raw); stats != nil {
			return parsedResult(raw, stats)
		}
		return rawResult(raw, "no ping summary recognized")
	default:
		return ParseResult{Raw: raw}
	}
}
