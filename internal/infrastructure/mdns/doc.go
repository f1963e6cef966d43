// Package mdns announces the bridge's status API on the local network.
//
// The service is registered as _edusat._tcp in the local. domain with TXT
// records carrying the bridge ID, version, network transport and API path,
// so lab machines can find a bridge without knowing its address.
//
// Usage:
//
//	adv := mdns.NewAdvertiser()
//	if err := adv.Start(mdns.Info{BridgeID: "edusat-01", Port: 8090}); err != nil {
//	    return err
//	}
//	defer adv.Stop()
package mdns
