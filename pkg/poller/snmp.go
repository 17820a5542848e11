package poller

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/fleetwire-net/fleetwire/pkg/inventory"
	"github.com/fleetwire-net/fleetwire/pkg/util"
)

// Standard MIB-2 OIDs polled for every device.
const (
	oidSysDescr  = ".1.3.6.1.2.1.1.1.0" // system description
	oidSysUptime = ".1.3.6.1.2.1.1.3.0" // uptime in timeticks
	oidSysName   = ".1.3.6.1.2.1.1.5.0" // system name

	oidIfOperStatus = ".1.3.6.1.2.1.2.2.1.8" // per-interface table
)

// Vendor enterprise OIDs for CPU and memory utilization. The generic
// MIB has no portable utilization metrics, so each platform brings
// its own.
var vendorOIDs = map[string]struct{ cpu, memory string }{
	"hp_comware": {
		cpu:    ".1.3.6.1.4.1.25506.2.6.1.1.1.1.6.1",
		memory: ".1.3.6.1.4.1.25506.2.6.1.1.1.1.8.1",
	},
	"huawei_vrp": {
		cpu:    ".1.3.6.1.4.1.2011.5.25.31.1.1.1.1.5.1",
		memory: ".1.3.6.1.4.1.2011.5.25.31.1.1.1.1.7.1",
	},
	"cisco_ios": {
		cpu:    ".1.3.6.1.4.1.9.9.109.1.1.1.1.7.1",
		memory: ".1.3.6.1.4.1.9.9.48.1.1.1.5.1",
	},
}

// Sample is one polled metric value.
type Sample struct {
	DeviceID string    `json:"device_id"`
	Metric   string    `json:"metric"`
	Value    float64   `json:"value"`
	Unit     string    `json:"unit,omitempty"`
	Text     string    `json:"text,omitempty"`
	At       time.Time `json:"at"`
}

// Collector obtains one device's samples. The SNMP implementation is
// the production one; tests substitute scripted collectors.
type Collector interface {
	Collect(ctx context.Context, device inventory.Device) ([]Sample, error)
}

// SNMPCollector polls devices over SNMP v2c.
type SNMPCollector struct {
	Community string        // default community, overridden per device
	Timeout   time.Duration // per-request timeout (default 5s)
	Retries   int
}

// Collect GETs the standard and vendor OIDs for the device. The
// context deadline, when sooner than the collector timeout, wins.
func (c *SNMPCollector) Collect(ctx context.Context, device inventory.Device) ([]Sample, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	community := device.SNMPCommunity
	if community == "" {
		community = c.Community
	}

	client := &gosnmp.GoSNMP{
		Target:    device.Host,
		Port:      161,
		Community: community,
		Version:   gosnmp.Version2c,
		Timeout:   timeout,
		Retries:   c.Retries,
	}
	if err := client.Connect(); err != nil {
		return nil, fmt.Errorf("snmp connect to %s: %w", device.Host, err)
	}
	defer client.Conn.Close()

	oids := []string{oidSysDescr, oidSysUptime, oidSysName}
	vendor, hasVendor := vendorOIDs[strings.ToLower(device.Platform)]
	if hasVendor {
		oids = append(oids, vendor.cpu, vendor.memory)
	}

	packet, err := client.Get(oids)
	if err != nil {
		return nil, fmt.Errorf("snmp get from %s: %w", device.Host, err)
	}

	now := time.Now()
	var samples []Sample
	for _, variable := range packet.Variables {
		switch variable.Name {
		case oidSysDescr:
			if desc, ok := variable.Value.([]byte); ok {
				samples = append(samples, Sample{
					DeviceID: device.ID, Metric: MetricSysDescr, Text: string(desc), At: now,
				})
			}
		case oidSysName:
			if name, ok := variable.Value.([]byte); ok {
				samples = append(samples, Sample{
					DeviceID: device.ID, Metric: MetricSysName, Text: string(name), At: now,
				})
			}
		case oidSysUptime:
			samples = append(samples, Sample{
				DeviceID: device.ID, Metric: MetricUptime,
				Value: float64(toInt64(variable.Value)) / 100, // timeticks to seconds
				Unit:  "s", At: now,
			})
		case vendor.cpu:
			if hasVendor {
				samples = append(samples, Sample{
					DeviceID: device.ID, Metric: MetricCPU,
					Value: float64(toInt64(variable.Value)), Unit: "%", At: now,
				})
			}
		case vendor.memory:
			if hasVendor {
				samples = append(samples, Sample{
					DeviceID: device.ID, Metric: MetricMemory,
					Value: float64(toInt64(variable.Value)), Unit: "%", At: now,
				})
			}
		default:
			util.WithDevice(device.ID).Debugf("unexpected oid %s in response", variable.Name)
		}
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("snmp get from %s returned no usable variables", device.Host)
	}

	// ifOperStatus is a table, so it takes a walk rather than a GET. A
	// device that answered the scalars but refuses the walk still yields
	// its scalar samples.
	if down, total, err := c.linkStatus(client); err != nil {
		util.WithDevice(device.ID).Debugf("ifOperStatus walk: %v", err)
	} else if total > 0 {
		samples = append(samples, Sample{
			DeviceID: device.ID, Metric: MetricIfDown,
			Value: float64(down), At: now,
		})
	}
	return samples, nil
}

// linkStatus walks the interface table and counts operationally down
// ports. Oper-status 2 is down.
func (c *SNMPCollector) linkStatus(client *gosnmp.GoSNMP) (down, total int, err error) {
	err = client.BulkWalk(oidIfOperStatus, func(pdu gosnmp.SnmpPDU) error {
		total++
		if toInt64(pdu.Value) == 2 {
			down++
		}
		return nil
	})
	return down, total, err
}

// Metric names produced by collectors.
const (
	MetricCPU      = "cpu"
	MetricMemory   = "memory"
	MetricUptime   = "uptime"
	MetricSysDescr = "sys_descr"
	MetricSysName  = "sys_name"
	MetricIfDown   = "if_down"
)

func toInt64(v interface{}) int64 {
	return gosnmp.ToBigInt(v).Int64()
}
