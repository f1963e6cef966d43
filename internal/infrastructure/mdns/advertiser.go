package mdns

import (
	"errors"
	"fmt"
	"sync"

	"github.com/enbility/zeroconf/v3"
)

// Service registration constants.
const (
	ServiceType = "_edusat._tcp"
	Domain      = "local."

	// APIPath is advertised so clients know where the status API lives.
	APIPath = "/api/v1"
)

// ErrInvalidPort is returned when Info.Port is outside 1..65535.
var ErrInvalidPort = errors.New("mdns: invalid port")

// Info describes the advertised bridge.
type Info struct {
	// Instance is the service instance name. Defaults to "EDUSAT-<BridgeID>".
	Instance  string
	BridgeID  string
	Version   string
	Transport string
	Port      int
}

// TXT returns the TXT records for info.
func (i Info) TXT() []string {
	txt := []string{"id=" + i.BridgeID, "path=" + APIPath}
	if i.Version != "" {
		txt = append(txt, "version="+i.Version)
	}
	if i.Transport != "" {
		txt = append(txt, "transport="+i.Transport)
	}
	return txt
}

func (i Info) instanceName() string {
	if i.Instance != "" {
		return i.Instance
	}
	return "EDUSAT-" + i.BridgeID
}

// server is the part of *zeroconf.Server the advertiser keeps.
type server interface {
	Shutdown()
}

// Overridable in tests.
var register = func(instance, service, domain string, port int, txt []string) (server, error) {
	s, err := zeroconf.Register(instance, service, domain, port, txt, nil)
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Advertiser owns one mDNS registration.
type Advertiser struct {
	mu     sync.Mutex
	server server
	info   Info
}

// NewAdvertiser creates an idle advertiser.
func NewAdvertiser() *Advertiser {
	return &Advertiser{}
}

// Start registers the service on all multicast interfaces, replacing any
// earlier registration.
func (a *Advertiser) Start(info Info) error {
	if info.Port < 1 || info.Port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, info.Port)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}

	srv, err := register(info.instanceName(), ServiceType, Domain, info.Port, info.TXT())
	if err != nil {
		return fmt.Errorf("mdns: registering %s: %w", ServiceType, err)
	}
	a.server = srv
	a.info = info
	return nil
}

// Stop withdraws the registration. Safe to call when not started.
func (a *Advertiser) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server != nil {
		a.server.Shutdown()
		a.server = nil
	}
}

// Active reports whether a registration is live.
func (a *Advertiser) Active() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.server != nil
}

// Info returns the last registered service description.
func (a *Advertiser) Info() Info {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.info
}
