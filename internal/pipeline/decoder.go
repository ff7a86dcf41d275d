package pipeline

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"ardrone-svr/internal/codec"
	"ardrone-svr/internal/codec/navflags"
	"ardrone-svr/internal/observability"
)

// Phase del decodificador: AwaitingFrame hasta el primer frame aceptado,
// luego HaveState para el resto de la sesión.
type Phase int32

const (
	AwaitingFrame Phase = iota
	HaveState
)

func (p Phase) String() string {
	if p == HaveState {
		return "have_state"
	}
	return "awaiting_frame"
}

type DecoderConfig struct {
	LengthMode codec.LengthMode
	// StrictChecksum descarta los frames con checksum inválido o ausente.
	StrictChecksum bool
}

// Update describe un frame aceptado.
type Update struct {
	Frame    *codec.NavFrame
	Demo     *codec.Demo
	Old      uint32
	New      uint32
	Changes  []string
	Checksum error // nil, ErrChecksumMismatch o ErrMissingChecksum
	At       time.Time
}

type Observer func(Update)

// Decoder aplica frames de navdata sobre el estado de una sesión.
type Decoder struct {
	cfg DecoderConfig
	lg  *slog.Logger

	state atomic.Uint32
	have  atomic.Bool

	apply sync.Mutex // serializa swap + cálculo de cambios

	obsMu     sync.RWMutex
	observers []Observer
}

func NewDecoder(cfg DecoderConfig, lg *slog.Logger) *Decoder {
	if lg == nil {
		lg = slog.Default()
	}
	return &Decoder{cfg: cfg, lg: lg.With("component", "navdata")}
}

// Subscribe registra un observador que se llama tras cada frame aceptado.
func (d *Decoder) Subscribe(o Observer) {
	d.obsMu.Lock()
	d.observers = append(d.observers, o)
	d.obsMu.Unlock()
}

// Decode parsea raw y, si el frame es aceptable, reemplaza el estado.
// Un frame rechazado deja el estado y la fase como estaban.
func (d *Decoder) Decode(raw []byte) (Update, error) {
	start := time.Now()
	defer observability.ObserveDecodeLatency(start)

	frame, err := codec.DecodeNavdata(raw, codec.DecodeOptions{LengthMode: d.cfg.LengthMode})
	if frame == nil {
		observability.DecodeErrors.WithLabelValues(codec.ErrorKind(err)).Inc()
		d.lg.Warn("navdata rejected", "err", err, "len", len(raw))
		return Update{}, err
	}

	if n := len(frame.Unknown); n > 0 {
		observability.UnknownOptions.Add(float64(n))
		d.lg.Debug("unknown navdata options skipped", "ids", frame.Unknown, "seq", frame.Sequence)
	}

	if err != nil {
		observability.DecodeErrors.WithLabelValues(codec.ErrorKind(err)).Inc()
		if d.cfg.StrictChecksum || !codec.IsAdvisory(err) {
			d.lg.Warn("navdata rejected", "err", err, "seq", frame.Sequence)
			return Update{}, err
		}
		d.lg.Warn("navdata checksum", "err", err, "seq", frame.Sequence)
	}

	u := Update{Frame: frame, New: frame.State, Checksum: err, At: start}
	if opt, ok := frame.Option(codec.OptionDemo); ok {
		if demo, derr := codec.DecodeDemo(opt.Payload); derr == nil {
			u.Demo = &demo
		} else {
			d.lg.Debug("demo option", "err", derr)
		}
	}

	d.apply.Lock()
	u.Old = d.state.Swap(frame.State)
	d.have.Store(true)
	d.apply.Unlock()

	u.Changes = StateChanges(u.Old, u.New)
	observability.FramesDecoded.Inc()
	for _, bit := range changedBits(u.Old, u.New) {
		observability.StateChanges.WithLabelValues(navflags.Names[bit]).Inc()
	}
	if len(u.Changes) > 0 {
		d.lg.Info("state changed", "seq", frame.Sequence, "changes", u.Changes)
	}

	d.obsMu.RLock()
	obs := d.observers
	d.obsMu.RUnlock()
	for _, o := range obs {
		o(u)
	}
	return u, nil
}

func (d *Decoder) State() uint32 { return d.state.Load() }

func (d *Decoder) Phase() Phase {
	if d.have.Load() {
		return HaveState
	}
	return AwaitingFrame
}

func (d *Decoder) IsFlying() bool { return navflags.Set(d.State(), navflags.Flying) }
func (d *Decoder) IsInBootstrap() bool { return navflags.Set(d.State(), navflags.NavdataBootstrap) }
func (d *Decoder) IsCommunicationsLost() bool { return navflags.Set(d.State(), navflags.ComLost) }
func (d *Decoder) IsAltitudeLimited() bool { return navflags.Set(d.State(), navflags.Altitude) }

/* =======================================================================
                        DIFF DE ESTADO
======================================================================= */

// StateChanges lista "{nombre} is now {0|1}" por cada bit con nombre que
// cambió entre old y cur, en orden de bit ascendente.
func StateChanges(old, cur uint32) []string {
	bits := changedBits(old, cur)
	if len(bits) == 0 {
		return nil
	}
	out := make([]string, 0, len(bits))
	for _, b := range bits {
		v := 0
		if navflags.Set(cur, b) {
			v = 1
		}
		out = append(out, fmt.Sprintf("%s is now %d", navflags.Names[b], v))
	}
	return out
}

func changedBits(old, cur uint32) []int {
	diff := old ^ cur
	if diff == 0 {
		return nil
	}
	var out []int
	for b := 0; b < navflags.Count; b++ {
		if diff&navflags.Mask(b) != 0 {
			out = append(out, b)
		}
	}
	return out
}
