package adapter

import (
	"regexp"
	"strings"

	"github.com/fleetwire-net/fleetwire/pkg/util"
)

// H3C implements the adapter for H3C Comware switches and routers.
type H3C struct {
	commandSet
}

// NewH3C creates the H3C Comware adapter.
func NewH3C() *H3C {
	return &H3C{commandSet{
		platform: "hp_comware",
		commands: map[string]string{
			"get_version":          "display version",
			"get_interfaces":       "display interface brief",
			"get_interface_detail": "display interface {interface}",
			"get_mac_table":        "display mac-address",
			"find_mac":             "display mac-address | include {mac_address}",
			"get_arp_table":        "display arp",
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

// Platform returns the Comware platform tag.
func (a *H3C) Platform() string { return a.platform }

// SupportedActions lists the actions this adapter defines.
func (a *H3C) SupportedActions() []string { return a.actions() }

// ConnectCommands disables pagination and terminal monitoring.
func (a *H3C) ConnectCommands() []string {
	return []string{"screen-length disable", "undo terminal monitor"}
}

// CommandFor renders the Comware command for an action. MAC address
// parameters are normalized to Comware's xxxx-xxxx-xxxx form.
func (a *H3C) CommandFor(action string, params Params) (string, error) {
	if mac, ok := params["mac_address"]; ok && action == "find_mac" {
		formatted, err := formatComwareMAC(mac)
		if err != nil {
			return "", util.NewActionError(a.platform, action, err.Error())
		}
		params = cloneParams(params)
		params["mac_address"] = formatted
	}
	return a.render(action, params)
}

var (
	h3cVersionRe = regexp.MustCompile(`H3C Comware Software, Version ([^,\s]+)`)
	h3cModelRe   = regexp.MustCompile(`H3C (.+?) uptime`)
	h3cSerialRe  = regexp.MustCompile(`Device serial number : (.+)`)
	h3cUptimeRe  = regexp.MustCompile(`uptime is (.+)`)
)

// Parse converts Comware output into structured data, falling back to
// raw text for actions without a parser or output that matches nothing.
func (a *H3C) Parse(action, raw string) ParseResult {
	if strings.TrimSpace(raw) == "" {
		return rawResult(raw, "empty output")
	}
	switch action {
	case "get_version":
		info := VersionInfo{
			Version: firstMatch(h3cVersionRe, raw),
			Model:   firstMatch(h3cModelRe, raw),
			Serial:  firstMatch(h3cSerialRe, raw),
			Uptime:  firstMatch(h3cUptimeRe, raw),
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

var macStripRe = regexp.MustCompile(`[^a-f0-9]`)

// formatComwareMAC normalizes any common MAC notation to xxxx-xxxx-xxxx.
func formatComwareMAC(mac string) (string, error) {
	clean := macStripRe.ReplaceAllString(strings.ToLower(mac), "")
	if len(clean) != 12 {
		return "", &macFormatError{mac}
	}
	return clean[0:4] + "-" + clean[4:8] + "-" + clean[8:12], nil
}

type macFormatError struct{ mac string }

func (e *macFormatError) Error() string { return "invalid MAC address " + e.mac }

func cloneParams(p Params) Params {
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
