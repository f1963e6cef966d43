package device

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Overridable in tests.
var (
	listDetailedPorts = enumerator.GetDetailedPortsList
	listPorts         = serial.GetPortsList
)

// Descriptor describes a serial port found during discovery.
type Descriptor struct {
	Path         string `json:"path"`
	IsUSB        bool   `json:"is_usb"`
	VendorID     string `json:"vendor_id,omitempty"`
	ProductID    string `json:"product_id,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
}

// Discover lists the serial ports present on the host.
//
// USB details are filled in when the platform enumerator supports them;
// otherwise only paths are returned. The result is sorted by path so the
// "first port" choice is stable between runs.
func Discover(ctx context.Context) ([]Descriptor, error) {
	type result struct {
		ports []Descriptor
		err   error
	}
	done := make(chan result, 1)
	detailed, names := listDetailedPorts, listPorts

	go func() {
		ports, err := enumerate(detailed, names)
		done <- result{ports: ports, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", ErrEnumerationFailed, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if len(r.ports) == 0 {
			return nil, ErrNoPorts
		}
		return r.ports, nil
	}
}

func enumerate(
	detailed func() ([]*enumerator.PortDetails, error),
	plain func() ([]string, error),
) ([]Descriptor, error) {
	details, err := detailed()
	if err == nil {
		ports := make([]Descriptor, 0, len(details))
		for _, d := range details {
			if d == nil || d.Name == "" {
				continue
			}
			ports = append(ports, Descriptor{
				Path:         d.Name,
				IsUSB:        d.IsUSB,
				VendorID:     d.VID,
				ProductID:    d.PID,
				SerialNumber: d.SerialNumber,
				Product:      d.Product,
			})
		}
		sortByPath(ports)
		return ports, nil
	}

	// Detailed enumeration is not implemented everywhere; plain names still
	// let the path-based selectors work.
	names, nameErr := plain()
	if nameErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrEnumerationFailed, nameErr)
	}
	ports := make([]Descriptor, 0, len(names))
	for _, name := range names {
		ports = append(ports, Descriptor{Path: name})
	}
	sortByPath(ports)
	return ports, nil
}

func sortByPath(ports []Descriptor) {
	slices.SortFunc(ports, func(a, b Descriptor) int { return strings.Compare(a.Path, b.Path) })
}

// Selector chooses one port among the discovered ones.
//
// VendorID and ProductID (hex, either may be empty) filter USB ports. With
// neither set the first port is chosen.
type Selector struct {
	VendorID  string
	ProductID string
}

// Select returns the first port that satisfies the selector.
func (s Selector) Select(ports []Descriptor) (Descriptor, error) {
	if len(ports) == 0 {
		return Descriptor{}, ErrNoPorts
	}

	if s.VendorID == "" && s.ProductID == "" {
		return ports[0], nil
	}

	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		if s.VendorID != "" && !sameHexID(p.VendorID, s.VendorID) {
			continue
		}
		if s.ProductID != "" && !sameHexID(p.ProductID, s.ProductID) {
			continue
		}
		return p, nil
	}
	return Descriptor{}, fmt.Errorf("%w: vid=%s pid=%s", ErrNoMatchingPort, s.VendorID, s.ProductID)
}

// sameHexID compares USB IDs ignoring case and an optional 0x prefix.
func sameHexID(a, b string) bool {
	norm := func(s string) string {
		s = strings.ToLower(strings.TrimSpace(s))
		return strings.TrimPrefix(s, "0x")
	}
	return norm(a) == norm(b)
}
