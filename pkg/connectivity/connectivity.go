package connectivity

import (
	"context"
	"io"
	"log/slog"
	"net"
	"time"
)

const (
	DefaultProbeAddr    = "8.8.8.8:53"
	DefaultProbeTimeout = 1500 * time.Millisecond
	DefaultInterval     = 5 * time.Second
)

type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

type Config struct {
	ProbeAddr    string
	ProbeTimeout time.Duration
	Interval     time.Duration
	// HasNetwork reports whether an active network interface exists. Defaults
	// to inspecting the host interfaces.
	HasNetwork func() bool
	Dial       DialFunc
	Logger     *slog.Logger
}

// Observer derives a coarse online/offline state
type Observer struct {
	cfg Config
}

func New(cfg Config) *Observer {
	if cfg.ProbeAddr == "" {
		cfg.ProbeAddr = DefaultProbeAddr
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.HasNetwork == nil {
		cfg.HasNetwork = HasActiveInterface
	}
	if cfg.Dial == nil {
		var d net.Dialer
		cfg.Dial = d.DialContext
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Observer{cfg: cfg}
}

// Online reports whether a network interface is up and the probe address is
// reachable.
func (o *Observer) Online(ctx context.Context) bool {
	if !o.cfg.HasNetwork() {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.ProbeTimeout)
	defer cancel()
	conn, err := o.cfg.Dial(ctx, "tcp", o.cfg.ProbeAddr)
	if err != nil {
		o.cfg.Logger.LogAttrs(ctx, slog.LevelDebug, "Connectivity probe failed", slog.String("addr", o.cfg.ProbeAddr), slog.Any("error", err))
		return false
	}
	conn.Close()
	return true
}

// Observe starts checking connectivity every interval and emits the initial
// state and every change. The channel is closed when ctx is done.
func (o *Observer) Observe(ctx context.Context) <-chan bool {
	ch := make(chan bool, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(o.cfg.Interval)
		defer ticker.Stop()
		var (
			last  bool
			first = true
		)
		for {
			online := o.Online(ctx)
			if first || online != last {
				select {
				case ch <- online:
				case <-ctx.Done():
					return
				}
				first = false
				last = online
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	return ch
}

// HasActiveInterface reports whether any non-loopback interface is up and has
// a global unicast address.
func HasActiveInterface() bool {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if ok && ipNet.IP.IsGlobalUnicast() {
				return true
			}
		}
	}
	return false
}
