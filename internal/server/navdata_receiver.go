package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"golang.org/x/net/ipv4"

	"ardrone-svr/internal/observability"
	"ardrone-svr/internal/session"
	"ardrone-svr/internal/utilities"
)

// WakeByte: un byte 0x01 al puerto de navdata pone al dron a transmitir.
var WakeByte = []byte{0x01}

type ReceiverConfig struct {
	ListenAddr string // ":5554"
	DroneAddr  string // "192.168.1.1:5554"; destino del byte de wake-up
	Multicast  string // "224.1.1.1" o vacío
	Interface  string // interfaz para el join; vacío = la del sistema
	// WakeInterval: sin datos por este tiempo se reenvía el wake-up. 0 = 1s.
	WakeInterval time.Duration
	RawLogDir    string
}

// NavdataReceiver lee datagramas de navdata y los entrega al TelemetrySource
// registrado para la dirección de origen.
type NavdataReceiver struct {
	cfg   ReceiverConfig
	conn  *net.UDPConn
	drone *net.UDPAddr
	lg    *slog.Logger

	sources *xsync.MapOf[string, session.TelemetrySource]
	// fallback crea un TelemetrySource para orígenes no registrados; nil = descartar.
	fallback func(src string) session.TelemetrySource
}

func NewNavdataReceiver(cfg ReceiverConfig, lg *slog.Logger) (*NavdataReceiver, error) {
	if lg == nil {
		lg = slog.Default()
	}
	if cfg.WakeInterval <= 0 {
		cfg.WakeInterval = time.Second
	}
	laddr, err := net.ResolveUDPAddr("udp4", cfg.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("navdata listen addr: %w", err)
	}
	var drone *net.UDPAddr
	if cfg.DroneAddr != "" {
		if drone, err = net.ResolveUDPAddr("udp4", cfg.DroneAddr); err != nil {
			return nil, fmt.Errorf("navdata drone addr: %w", err)
		}
	}

	conn, err := net.ListenUDP("udp4", laddr)
	if err != nil {
		return nil, fmt.Errorf("error starting navdata listener: %w", err)
	}

	r := &NavdataReceiver{
		cfg:     cfg,
		conn:    conn,
		drone:   drone,
		lg:      lg.With("component", "navdata_rx"),
		sources: xsync.NewMapOf[string, session.TelemetrySource](),
	}

	if cfg.Multicast != "" {
		if err := r.joinGroup(); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return r, nil
}

func (r *NavdataReceiver) joinGroup() error {
	group := net.ParseIP(r.cfg.Multicast)
	if group == nil || !group.IsMulticast() {
		return fmt.Errorf("invalid multicast group %q", r.cfg.Multicast)
	}
	var ifi *net.Interface
	if r.cfg.Interface != "" {
		var err error
		if ifi, err = net.InterfaceByName(r.cfg.Interface); err != nil {
			return fmt.Errorf("multicast interface: %w", err)
		}
	}
	p := ipv4.NewPacketConn(r.conn)
	if err := p.JoinGroup(ifi, &net.UDPAddr{IP: group}); err != nil {
		return fmt.Errorf("join %s: %w", group, err)
	}
	r.lg.Info("joined multicast group", "group", group.String(), "iface", r.cfg.Interface)
	return nil
}

func (r *NavdataReceiver) LocalAddr() *net.UDPAddr {
	return r.conn.LocalAddr().(*net.UDPAddr)
}

// Register asocia los datagramas que vienen de addr ("ip:puerto") con src.
func (r *NavdataReceiver) Register(addr string, src session.TelemetrySource) {
	r.sources.Store(addr, src)
}

// SetFallback define cómo atender orígenes no registrados.
func (r *NavdataReceiver) SetFallback(fn func(src string) session.TelemetrySource) {
	r.fallback = fn
}

// Sources devuelve la cantidad de orígenes conocidos.
func (r *NavdataReceiver) Sources() int {
	return r.sources.Size()
}

func (r *NavdataReceiver) wake() {
	if r.drone == nil {
		return
	}
	if _, err := r.conn.WriteToUDP(WakeByte, r.drone); err != nil {
		r.lg.Warn("wake-up write failed", "drone", r.drone.String(), "err", err)
	}
}

// Run lee hasta que ctx se cancela. Cierra el socket al salir.
func (r *NavdataReceiver) Run(ctx context.Context) error {
	defer r.conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = r.conn.SetReadDeadline(time.Now()) })
	defer stop()

	r.lg.Info("navdata listening", "addr", r.conn.LocalAddr().String())
	r.wake()

	buffer := make([]byte, 4096)
	for {
		_ = r.conn.SetReadDeadline(time.Now().Add(r.cfg.WakeInterval))
		n, src, err := r.conn.ReadFromUDP(buffer)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				r.wake()
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			r.lg.Error("read error", "err", err)
			return err
		}
		if n == 0 {
			continue
		}

		data := make([]byte, n)
		copy(data, buffer[:n])
		r.handle(src.String(), data)
	}
}

func (r *NavdataReceiver) handle(src string, data []byte) {
	observability.NavdataDatagrams.Inc()
	if err := utilities.CreateRawLog(r.cfg.RawLogDir, "NAVDATA", src, data); err != nil {
		r.lg.Warn("raw log", "err", err)
	}

	ts, ok := r.sources.Load(src)
	if !ok {
		if r.fallback == nil {
			r.lg.Debug("datagram from unknown source dropped", "src", src, "len", len(data))
			return
		}
		ts, _ = r.sources.LoadOrCompute(src, func() session.TelemetrySource {
			r.lg.Info("new navdata source", "src", src)
			return r.fallback(src)
		})
	}

	// los errores ya se loguean y cuentan en el decodificador
	_, _ = ts.HandleNavdata(data)
}

func (r *NavdataReceiver) Close() error {
	return r.conn.Close()
}
