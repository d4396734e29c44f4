// Package serialport reads "MQ:<integer>" records from a microcontroller
// attached over USB serial.
package serialport

import (
	"fmt"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// PortInfo describes one candidate device.
type PortInfo struct {
	Name        string
	Description string
	USB         bool
	VID         string
	PID         string
}

// Lister enumerates candidate ports.
type Lister func() ([]PortInfo, error)

// SystemPorts lists ports with USB details where the platform provides
// them, falling back to bare device names.
func SystemPorts() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err == nil && len(details) > 0 {
		out := make([]PortInfo, 0, len(details))
		for _, d := range details {
			out = append(out, PortInfo{
				Name:        d.Name,
				Description: d.Product,
				USB:         d.IsUSB,
				VID:         d.VID,
				PID:         d.PID,
			})
		}
		return out, nil
	}

	names, perr := serial.GetPortsList()
	if perr != nil {
		if err != nil {
			return nil, fmt.Errorf("list serial ports: %w (detailed listing: %v)", perr, err)
		}
		return nil, fmt.Errorf("list serial ports: %w", perr)
	}
	out := make([]PortInfo, 0, len(names))
	for _, n := range names {
		out = append(out, PortInfo{Name: n})
	}
	return out, nil
}

var (
	boardHints  = []string{"arduino", "uno", "nano", "mega"}
	bridgeHints = []string{"ch340", "ch341", "cp210", "ftdi", "pl2303"}
	nameHints   = []string{"usb", "tty"}
)

// Known USB vendor IDs for the same boards and bridges, for platforms that
// report VID but no product string.
var vendorHints = map[string]bool{
	"2341": true, // Arduino
	"2a03": true, // Arduino.org
	"1a86": true, // QinHeng CH340/CH341
	"10c4": true, // Silicon Labs CP210x
	"0403": true, // FTDI
	"067b": true, // Prolific PL2303
}

// Select picks the most likely sensor board: a known board name first, then
// a known USB-serial bridge, then any usb/tty device, then the first port.
func Select(ports []PortInfo) (PortInfo, bool) {
	if len(ports) == 0 {
		return PortInfo{}, false
	}
	for _, rule := range []func(PortInfo) bool{
		func(p PortInfo) bool { return containsAny(p.Description, boardHints) },
		func(p PortInfo) bool {
			return containsAny(p.Description, bridgeHints) || vendorHints[strings.ToLower(p.VID)]
		},
		func(p PortInfo) bool { return containsAny(p.Name, nameHints) },
	} {
		for _, p := range ports {
			if rule(p) {
				return p, true
			}
		}
	}
	return ports[0], true
}

func containsAny(s string, hints []string) bool {
	s = strings.ToLower(s)
	for _, h := range hints {
		if strings.Contains(s, h) {
			return true
		}
	}
	return false
}
