package link

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"ardrone-svr/internal/observability"
)

// Options del canal de configuración (TCP 5559).
type Options struct {
	Terminator  []byte        // nil = DefaultTerminator
	DialTimeout time.Duration // 0 = 3s
	IdleTimeout time.Duration // sin datos por este tiempo el volcado se da por terminado; 0 = 2s
	MaxBytes    int           // 0 = 1 MiB
	Retry       time.Duration // espera entre reconexiones en Run; 0 = 2s
}

func (o Options) withDefaults() Options {
	if o.Terminator == nil {
		o.Terminator = DefaultTerminator
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = 3 * time.Second
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = 2 * time.Second
	}
	if o.MaxBytes <= 0 {
		o.MaxBytes = 1 << 20
	}
	if o.Retry <= 0 {
		o.Retry = 2 * time.Second
	}
	return o
}

var ErrConfigTooLarge = errors.New("config dump exceeds size limit")

// FetchConfig abre el canal, acumula hasta el terminador, EOF o inactividad,
// y devuelve el texto recibido (sin terminador).
func FetchConfig(ctx context.Context, addr string, opts Options) (string, error) {
	opts = opts.withDefaults()

	d := net.Dialer{Timeout: opts.DialTimeout}
	c, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		observability.ConfigFetches.WithLabelValues("dial_error").Inc()
		return "", fmt.Errorf("config dial %s: %w", addr, err)
	}
	defer c.Close()

	stop := context.AfterFunc(ctx, func() { _ = c.SetReadDeadline(time.Now()) })
	defer stop()

	var buf ConfigBuffer
	chunk := make([]byte, 4096)
	for {
		_ = c.SetReadDeadline(time.Now().Add(opts.IdleTimeout))
		n, rerr := c.Read(chunk)
		if n > 0 {
			_, _ = buf.Write(chunk[:n])
			if dump, ok := buf.Next(opts.Terminator); ok {
				observability.ConfigFetches.WithLabelValues("ok").Inc()
				return string(dump), nil
			}
			if buf.Len() > opts.MaxBytes {
				observability.ConfigFetches.WithLabelValues("too_large").Inc()
				return "", ErrConfigTooLarge
			}
		}
		if rerr == nil {
			continue
		}
		if ctx.Err() != nil {
			observability.ConfigFetches.WithLabelValues("canceled").Inc()
			return buf.String(), ctx.Err()
		}
		var ne net.Error
		if errors.Is(rerr, io.EOF) || (errors.As(rerr, &ne) && ne.Timeout()) {
			observability.ConfigFetches.WithLabelValues("partial").Inc()
			return buf.String(), nil
		}
		observability.ConfigFetches.WithLabelValues("read_error").Inc()
		return buf.String(), fmt.Errorf("config read: %w", rerr)
	}
}

/* =======================================================================
                    CANAL PERSISTENTE CON RECONEXIÓN
======================================================================= */

// Link mantiene abierta la conexión de configuración y entrega cada volcado
// completo a los handlers registrados.
type Link struct {
	addr string
	opts Options
	buf  *ConfigBuffer
	lg   *slog.Logger

	mu       sync.Mutex
	conn     net.Conn
	handlers []func(dump string)
	last     string
}

// NewLink liga el canal a buf (normalmente el de la sesión).
func NewLink(addr string, buf *ConfigBuffer, opts Options, lg *slog.Logger) *Link {
	if buf == nil {
		buf = &ConfigBuffer{}
	}
	if lg == nil {
		lg = slog.Default()
	}
	return &Link{addr: addr, opts: opts.withDefaults(), buf: buf, lg: lg.With("component", "config_link")}
}

func (l *Link) OnDump(fn func(dump string)) {
	l.mu.Lock()
	l.handlers = append(l.handlers, fn)
	l.mu.Unlock()
}

// Last devuelve el último volcado completo recibido.
func (l *Link) Last() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.last
}

func (l *Link) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.conn != nil
}

// Run conecta, lee hasta que se caiga y reconecta, hasta que ctx se cancela.
func (l *Link) Run(ctx context.Context) {
	if l.addr == "" {
		l.lg.Info("config link disabled (no address configured)")
		return
	}
	for {
		d := net.Dialer{Timeout: l.opts.DialTimeout}
		c, err := d.DialContext(ctx, "tcp", l.addr)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.lg.Error("dial failed", "addr", l.addr, "err", err)
			if !sleepCtx(ctx, l.opts.Retry) {
				return
			}
			continue
		}

		l.setConn(c)
		l.lg.Info("connected", "remote", c.RemoteAddr().String())

		stop := context.AfterFunc(ctx, func() { _ = c.Close() })
		l.readLoop(c)
		stop()

		l.clearConn(c)
		if ctx.Err() != nil {
			return
		}
		l.lg.Warn("connection closed, reconnecting")
		if !sleepCtx(ctx, l.opts.Retry) {
			return
		}
	}
}

func (l *Link) setConn(c net.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.conn = c
}

func (l *Link) clearConn(c net.Conn) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == c {
		_ = l.conn.Close()
		l.conn = nil
	}
}

func (l *Link) readLoop(c net.Conn) {
	chunk := make([]byte, 4096)
	for {
		n, err := c.Read(chunk)
		if n > 0 {
			_, _ = l.buf.Write(chunk[:n])
			for {
				dump, ok := l.buf.Next(l.opts.Terminator)
				if !ok {
					break
				}
				l.deliver(string(dump))
			}
			if l.buf.Len() > l.opts.MaxBytes {
				l.lg.Warn("config buffer overflow, discarding", "bytes", l.buf.Len())
				l.buf.Reset()
			}
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				l.lg.Warn("read error", "err", err)
			}
			return
		}
	}
}

func (l *Link) deliver(dump string) {
	observability.ConfigFetches.WithLabelValues("ok").Inc()
	l.mu.Lock()
	l.last = dump
	hs := l.handlers
	l.mu.Unlock()

	l.lg.Info("config dump received", "bytes", len(dump))
	for _, h := range hs {
		h(dump)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
