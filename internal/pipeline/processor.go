package pipeline

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"ardrone-svr/internal/observability"
)

// Sink recibe cada snapshot aceptado (redis, grpc, kafka).
type Sink interface {
	Name() string
	Publish(ctx context.Context, s *Snapshot) error
}

// DefaultBacklog es la cantidad de snapshots que esperan publicación antes
// de empezar a descartar.
const DefaultBacklog = 64

// Processor arma el snapshot de cada frame aceptado y lo reparte a los sinks.
// El observador solo encola; la publicación ocurre en Run, fuera del camino
// de lectura de navdata. Con la cola llena el snapshot se descarta y se cuenta.
// Los errores de un sink se loguean y cuentan; nunca detienen el resto.
type Processor struct {
	sessionID string
	sinks     []Sink
	timeout   time.Duration
	lg        *slog.Logger
	last      atomic.Pointer[Snapshot]
	pending   chan *Snapshot
}

func NewProcessor(sessionID string, lg *slog.Logger, sinks ...Sink) *Processor {
	if lg == nil {
		lg = slog.Default()
	}
	return &Processor{
		sessionID: sessionID,
		sinks:     sinks,
		timeout:   2 * time.Second,
		lg:        lg.With("component", "pipeline"),
		pending:   make(chan *Snapshot, DefaultBacklog),
	}
}

// Observer adapta el processor al decodificador. Nunca bloquea.
func (p *Processor) Observer() Observer {
	return func(u Update) { p.Offer(u) }
}

// Offer registra el snapshot de u como el último y lo deja para publicar.
func (p *Processor) Offer(u Update) *Snapshot {
	snap := BuildSnapshot(p.sessionID, u)
	p.last.Store(snap)
	if len(p.sinks) == 0 {
		return snap
	}
	select {
	case p.pending <- snap:
	default:
		observability.SnapshotsDropped.Inc()
		p.lg.Warn("publish backlog full, snapshot dropped", "seq", snap.Sequence)
	}
	return snap
}

// Run publica los snapshots pendientes hasta que ctx se cancela.
func (p *Processor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap := <-p.pending:
			p.publish(ctx, snap)
		}
	}
}

func (p *Processor) publish(ctx context.Context, snap *Snapshot) {
	for _, s := range p.sinks {
		sctx, cancel := context.WithTimeout(ctx, p.timeout)
		err := s.Publish(sctx, snap)
		cancel()
		if err != nil {
			observability.SinkErrors.WithLabelValues(s.Name()).Inc()
			p.lg.Error("sink publish", "sink", s.Name(), "seq", snap.Sequence, "err", err)
		}
	}
}

// Last devuelve el último snapshot recibido, o nil.
func (p *Processor) Last() *Snapshot {
	return p.last.Load()
}
