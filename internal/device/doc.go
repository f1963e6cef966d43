// Package device manages the serial link to the EDUSAT telemetry MCU.
//
// It covers the three steps the bridge needs before telemetry can flow:
//
//	ports, err := device.Discover(ctx)                           // enumerate
//	desc, err := device.Selector{VendorID: "2341"}.Select(ports) // pick one
//	port, err := device.Open(desc.Path, device.Mode{BaudRate: 9600})
//
// After opening, Pump copies the inbound byte stream into any io.Writer
// (normally a telemetry.Parser) until the context is cancelled or the
// device goes away, and Send writes operator commands to the MCU.
//
// Ports are driven through go.bug.st/serial. USB vendor and product IDs come
// from its enumerator package where the platform supports it.
//
// Thread Safety: Send, Close, IsOpen and Stats are safe for concurrent use.
// Pump must only be running once per Port.
package device
