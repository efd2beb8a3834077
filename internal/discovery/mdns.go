// ABOUTME: mDNS advertisement and browsing for beatgen control servers
// ABOUTME: Lets remote-control clients find running sessions on the LAN
package discovery

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/hashicorp/mdns"
)

// ServiceType is the mDNS service a running session advertises its control
// server under.
const ServiceType = "_beatgen-ctl._tcp"

const queryTimeout = 3 * time.Second

// Config holds discovery configuration.
type Config struct {
	InstanceName string
	Port         int
	// TXT records attached to the advertisement, e.g. "ver=0.3.0".
	Info []string
}

// SessionInfo describes a discovered session's control endpoint.
type SessionInfo struct {
	Name string
	Host string
	Port int
}

// Manager advertises this session and browses for others.
type Manager struct {
	config   Config
	ctx      context.Context
	cancel   context.CancelFunc
	sessions chan *SessionInfo
}

// NewManager creates a discovery manager.
func NewManager(config Config) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		config:   config,
		ctx:      ctx,
		cancel:   cancel,
		sessions: make(chan *SessionInfo, 10),
	}
}

// Advertise publishes this session's control server until Stop.
func (m *Manager) Advertise() error {
	ips, err := localIPs()
	if err != nil {
		return fmt.Errorf("get local IPs: %w", err)
	}

	info := m.config.Info
	if len(info) == 0 {
		info = []string{"path=/control"}
	}

	service, err := mdns.NewMDNSService(
		m.config.InstanceName,
		ServiceType,
		"",
		"",
		m.config.Port,
		ips,
		info,
	)
	if err != nil {
		return fmt.Errorf("create mdns service: %w", err)
	}

	server, err := mdns.NewServer(&mdns.Config{Zone: service})
	if err != nil {
		return fmt.Errorf("start mdns server: %w", err)
	}

	log.Printf("[discovery] advertising %s as %q on port %d", ServiceType, m.config.InstanceName, m.config.Port)

	go func() {
		<-m.ctx.Done()
		server.Shutdown()
	}()

	return nil
}

// Browse starts searching for control servers; results arrive on Sessions.
func (m *Manager) Browse() {
	go m.browseLoop()
}

// browseLoop re-queries until Stop. Each query blocks for the mDNS timeout,
// so the loop naturally paces itself.
func (m *Manager) browseLoop() {
	for {
		select {
		case <-m.ctx.Done():
			return
		default:
		}

		entries := make(chan *mdns.ServiceEntry, 10)

		go func() {
			for entry := range entries {
				if entry.AddrV4 == nil {
					continue
				}
				found := &SessionInfo{
					Name: entry.Name,
					Host: entry.AddrV4.String(),
					Port: entry.Port,
				}

				log.Printf("[discovery] found session %s at %s:%d", found.Name, found.Host, found.Port)

				select {
				case m.sessions <- found:
				case <-m.ctx.Done():
					return
				}
			}
		}()

		params := &mdns.QueryParam{
			Service: ServiceType,
			Domain:  "local",
			Timeout: queryTimeout,
			Entries: entries,
		}

		mdns.Query(params)
		close(entries)
	}
}

// Sessions returns the channel of discovered control endpoints.
func (m *Manager) Sessions() <-chan *SessionInfo {
	return m.sessions
}

// Stop halts advertising and browsing.
func (m *Manager) Stop() {
	m.cancel()
}

// localIPs returns the non-loopback IPv4 addresses of every up interface.
func localIPs() ([]net.IP, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			ipnet, ok := addr.(*net.IPNet)
			if !ok || ipnet.IP.IsLoopback() || ipnet.IP.To4() == nil {
				continue
			}
			ips = append(ips, ipnet.IP)
		}
	}

	return ips, nil
}
