// UPnP port mapping for the hub's TCP listener, so a server behind a single
// consumer router can be reached without manual port forwarding.
package server

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/huin/goupnp/dcps/internetgateway2"
)

// UPnPMapping is an active port mapping on the gateway, kept around only to
// tear it down again.
type UPnPMapping struct {
	ExternalPort uint16
	InternalPort uint16
	ExternalIP   string
	protocol     string
	client       interface{ DeletePortMapping(string, uint16, string) error }
}

// MapPort asks the local gateway to forward internalPort/protocol to the
// same port on bindHost; the external and internal ports are always equal.
// leaseDuration of 0 requests a permanent lease;
// the hub never renews a mapping, so a router that refuses permanent leases
// will simply let this one expire. bindHost pins the mapping to a specific
// local address (useful when the hub was told to listen on one interface of
// a multi-homed box); an empty or wildcard bindHost falls back to the
// address the kernel would pick to reach the public internet.
func MapPort(internalPort uint16, protocol, description, bindHost string, leaseDuration time.Duration) (*UPnPMapping, error) {
	localIP, err := resolveLocalIP(bindHost)
	if err != nil {
		return nil, fmt.Errorf("resolve local address: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if m, err := mapWithWANIPConnection2(ctx, internalPort, protocol, description, localIP, leaseDuration); err == nil {
		return m, nil
	}

	if m, err := mapWithWANIPConnection1(ctx, internalPort, protocol, description, localIP, leaseDuration); err == nil {
		return m, nil
	}

	return nil, fmt.Errorf("no UPnP gateway found or port mapping failed")
}

func mapWithWANIPConnection2(ctx context.Context, port uint16, protocol, description, localIP string, lease time.Duration) (*UPnPMapping, error) {
	clients, _, err := internetgateway2.NewWANIPConnection2ClientsCtx(ctx)
	if err != nil || len(clients) == 0 {
		return nil, fmt.Errorf("no WANIPConnection2 gateway")
	}
	client := clients[0]

	externalIP, err := client.GetExternalIPAddressCtx(ctx)
	if err != nil {
		return nil, err
	}
	if err := client.AddPortMappingCtx(ctx, "", port, protocol, port, localIP, true, description, uint32(lease.Seconds())); err != nil {
		return nil, err
	}
	return &UPnPMapping{ExternalPort: port, InternalPort: port, ExternalIP: externalIP, protocol: protocol, client: client}, nil
}

func mapWithWANIPConnection1(ctx context.Context, port uint16, protocol, description, localIP string, lease time.Duration) (*UPnPMapping, error) {
	clients, _, err := internetgateway2.NewWANIPConnection1ClientsCtx(ctx)
	if err != nil || len(clients) == 0 {
		return nil, fmt.Errorf("no WANIPConnection1 gateway")
	}
	client := clients[0]

	externalIP, err := client.GetExternalIPAddressCtx(ctx)
	if err != nil {
		return nil, err
	}
	if err := client.AddPortMappingCtx(ctx, "", port, protocol, port, localIP, true, description, uint32(lease.Seconds())); err != nil {
		return nil, err
	}
	return &UPnPMapping{ExternalPort: port, InternalPort: port, ExternalIP: externalIP, protocol: protocol, client: client}, nil
}

// Close removes the mapping this process installed.
func (m *UPnPMapping) Close() error {
	if m.client == nil {
		return nil
	}
	return m.client.DeletePortMapping("", m.ExternalPort, m.protocol)
}

// resolveLocalIP honors an explicit bind host, falling back to the address
// the kernel would route a public connection through when the hub is
// listening on a wildcard address.
func resolveLocalIP(bindHost string) (string, error) {
	switch bindHost {
	case "", "0.0.0.0", "::":
		return GetLocalIP()
	default:
		return bindHost, nil
	}
}

// GetLocalIP returns the local address of the outbound interface a
// connection to the public internet would use, without sending any traffic
// (UDP "connect" only resolves routing, it does not dial).
func GetLocalIP() (string, error) {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "", err
	}
	defer conn.Close()

	localAddr := conn.LocalAddr().(*net.UDPAddr)
	return localAddr.IP.String(), nil
}

// TryMapPort maps port/TCP for the hub with a permanent lease, returning the
// gateway's external IP on success. bindHost is the address the hub is
// listening on (cfg.Host); see resolveLocalIP.
func TryMapPort(port uint16, bindHost, description string) (string, bool, error) {
	mapping, err := MapPort(port, "TCP", description, bindHost, 0)
	if err != nil {
		return "", false, err
	}
	return mapping.ExternalIP, true, nil
}
