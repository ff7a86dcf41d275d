package server

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"ardrone-svr/internal/observability"
	"ardrone-svr/internal/session"
	"ardrone-svr/internal/utilities"
)

// DefaultTick es el periodo de transmisión del puerto de control.
const DefaultTick = 20 * time.Millisecond

// Controller es lo que el sender necesita de la sesión.
type Controller interface {
	session.CommandSink
	Land()
}

// Queued entrega los comandos en cola sin palabra de estado.
type Queued interface {
	QueuedDatagram() string
}

type SenderConfig struct {
	DroneAddr string // "192.168.1.1:5556"
	LocalAddr string // vacío = puerto efímero
	Tick      time.Duration
	RawLogDir string
}

// ControlSender escribe un datagrama AT por tick hacia el dron.
type ControlSender struct {
	cfg  SenderConfig
	conn *net.UDPConn
	ctl  Controller
	lg   *slog.Logger

	stopOnce sync.Once
}

func NewControlSender(cfg SenderConfig, ctl Controller, lg *slog.Logger) (*ControlSender, error) {
	if lg == nil {
		lg = slog.Default()
	}
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	raddr, err := net.ResolveUDPAddr("udp4", cfg.DroneAddr)
	if err != nil {
		return nil, fmt.Errorf("control drone addr: %w", err)
	}
	var laddr *net.UDPAddr
	if cfg.LocalAddr != "" {
		if laddr, err = net.ResolveUDPAddr("udp4", cfg.LocalAddr); err != nil {
			return nil, fmt.Errorf("control local addr: %w", err)
		}
	}
	conn, err := net.DialUDP("udp4", laddr, raddr)
	if err != nil {
		return nil, fmt.Errorf("error opening control socket: %w", err)
	}
	return &ControlSender{cfg: cfg, conn: conn, ctl: ctl, lg: lg.With("component", "control_tx")}, nil
}

// Run transmite en cada tick hasta que ctx se cancela; al salir aterriza,
// envía el último datagrama y cierra el socket.
func (s *ControlSender) Run(ctx context.Context) error {
	t := time.NewTicker(s.cfg.Tick)
	defer t.Stop()

	s.lg.Info("control sender started", "drone", s.cfg.DroneAddr, "tick", s.cfg.Tick.String())
	for {
		select {
		case <-ctx.Done():
			s.Stop()
			return nil
		case <-t.C:
			if err := s.Tick(); err != nil {
				s.lg.Warn("control write failed", "err", err)
			}
		}
	}
}

// Tick drena la sesión y escribe un datagrama.
func (s *ControlSender) Tick() error {
	return s.write(s.ctl.NextDatagram())
}

// Flush escribe solo los comandos en cola, sin REF ni PCMD, hasta vaciarla.
func (s *ControlSender) Flush(q Queued) (int, error) {
	sent := 0
	for {
		out := q.QueuedDatagram()
		if out == "" {
			return sent, nil
		}
		if err := s.write(out); err != nil {
			return sent, err
		}
		sent++
	}
}

func (s *ControlSender) write(out string) error {
	if err := utilities.CreateLog(s.cfg.RawLogDir, "CONTROL", utilities.Printable(out)); err != nil {
		s.lg.Warn("raw log", "err", err)
	}
	n, err := s.conn.Write([]byte(out))
	if err != nil {
		observability.SendErrors.Inc()
		return err
	}
	observability.DatagramsSent.Inc()
	observability.FrameBytes.Observe(float64(n))
	return nil
}

// Stop: aterrizar y luego cortar. No hay cancelación a mitad de maniobra.
func (s *ControlSender) Stop() {
	s.stopOnce.Do(func() {
		s.ctl.Land()
		if err := s.Tick(); err != nil {
			s.lg.Warn("final land datagram failed", "err", err)
		}
		_ = s.conn.Close()
		s.lg.Info("control sender stopped")
	})
}

// Close cierra el socket sin aterrizar (envíos puntuales desde la CLI).
func (s *ControlSender) Close() error {
	var err error
	s.stopOnce.Do(func() { err = s.conn.Close() })
	return err
}
