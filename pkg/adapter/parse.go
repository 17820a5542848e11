package adapter

import (
	"regexp"
	"strings"
)

// Shared fallback-parsing helpers. These deliberately tolerate any
// input shape; a row that does not match is skipped, and a table with
// no usable rows yields nil so the caller degrades to raw output.

// MACEntry is one row of a MAC address table.
type MACEntry struct {
	MAC       string `json:"mac"`
	VLAN      string `json:"vlan"`
	State     string `json:"state"`
	Interface string `json:"interface"`
}

// ARPEntry is one row of an ARP table.
type ARPEntry struct {
	IP        string `json:"ip"`
	MAC       string `json:"mac"`
	Type      string `json:"type"`
	Interface string `json:"interface"`
}

// InterfaceEntry is one row of an interface brief listing.
type InterfaceEntry struct {
	Name     string `json:"interface"`
	Link     string `json:"link"`
	Protocol string `json:"protocol"`
	Extra    string `json:"extra,omitempty"`
}

// VLANEntry is one row of a VLAN listing.
type VLANEntry struct {
	ID     string `json:"vlan_id"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// VersionInfo is the structured form of a version banner.
type VersionInfo struct {
	Version string `json:"version,omitempty"`
	Model   string `json:"model,omitempty"`
	Serial  string `json:"serial,omitempty"`
	Uptime  string `json:"uptime,omitempty"`
}

// PingStats is the structured form of a ping summary.
type PingStats struct {
	Sent     int `json:"packets_sent"`
	Received int `json:"packets_received"`
	LossPct  int `json:"packet_loss"`
}

// tableRows splits output into trimmed non-empty lines, dropping
// header and separator lines that contain any of the given markers.
func tableRows(output string, headerMarkers ...string) []string {
	var rows []string
line:
	for _, l := range strings.Split(output, "\n") {
		l = strings.TrimSpace(l)
		if l == "" || strings.Contains(l, "---") {
			continue
		}
		for _, m := range headerMarkers {
			if strings.Contains(l, m) {
				continue line
			}
		}
		rows = append(rows, l)
	}
	return rows
}

func parseMACTable(output string) []MACEntry {
	var entries []MACEntry
	for _, row := range tableRows(output, "MAC", "Address") {
		f := strings.Fields(row)
		if len(f) >= 4 {
			entries = append(entries, MACEntry{MAC: f[0], VLAN: f[1], State: f[2], Interface: f[3]})
		}
	}
	return entries
}

func parseARPTable(output string) []ARPEntry {
	var entries []ARPEntry
	for _, row := range tableRows(output, "Internet", "IP Address", "IP ADDRESS") {
		f := strings.Fields(row)
		if len(f) >= 4 {
			entries = append(entries, ARPEntry{IP: f[0], MAC: f[1], Type: f[2], Interface: f[3]})
		}
	}
	return entries
}

func parseInterfaceBrief(output string) []InterfaceEntry {
	var entries []InterfaceEntry
	for _, row := range tableRows(output, "Interface", "Brief", "description") {
		f := strings.Fields(row)
		if len(f) >= 3 {
			e := InterfaceEntry{Name: f[0], Link: f[1], Protocol: f[2]}
			if len(f) > 3 {
				e.Extra = strings.Join(f[3:], " ")
			}
			entries = append(entries, e)
		}
	}
	return entries
}

func parseVLANBrief(output string) []VLANEntry {
	var entries []VLANEntry
	for _, row := range tableRows(output, "VLAN", "Vlan") {
		f := strings.Fields(row)
		if len(f) < 2 {
			continue
		}
		e := VLANEntry{ID: f[0], Name: f[1], Status: "unknown"}
		if len(f) > 2 {
			e.Status = f[2]
		}
		entries = append(entries, e)
	}
	return entries
}

var (
	pingLossRe  = regexp.MustCompile(`(\d+)(?:\.\d+)?% packet loss`)
	pingStatsRe = regexp.MustCompile(`(\d+) packet\(?s?\)? transmitted, (\d+) (?:packet\(?s?\)? )?received`)
)

func parsePing(output string) *PingStats {
	stats := &PingStats{LossPct: -1}
	if m := pingLossRe.FindStringSubmatch(output); m != nil {
		stats.LossPct = atoi(m[1])
	}
	if m := pingStatsRe.FindStringSubmatch(output); m != nil {
		stats.Sent = atoi(m[1])
		stats.Received = atoi(m[2])
	}
	if stats.LossPct < 0 && stats.Sent == 0 {
		return nil
	}
	if stats.LossPct < 0 && stats.Sent > 0 {
		stats.LossPct = (stats.Sent - stats.Received) * 100 / stats.Sent
	}
	return stats
}

// firstMatch returns the first capture group of re in output, "" if none.
func firstMatch(re *regexp.Regexp, output string) string {
	if m := re.FindStringSubmatch(output); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func atoi(s string) int {
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return n
		}
		n = n*10 + int(c-'0')
	}
	return n
}
