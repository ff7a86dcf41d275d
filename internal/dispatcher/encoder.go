package dispatcher

import (
	"math"
	"sync"

	"ardrone-svr/internal/codec"
)

// Axes son los ejes "pegajosos" de PCMD: una vez fijados se retransmiten
// en cada ciclo hasta volver a cero. Al volver a cero se envía un único
// AT*PCMD en modo hover para que el dron deje de inclinarse.
type Axes struct {
	Phi   float32 `json:"phi"`
	Theta float32 `json:"theta"`
	Gaz   float32 `json:"gaz"`
	Yaw   float32 `json:"yaw"`
}

// Zero indica si los cuatro ejes están centrados.
func (a Axes) Zero() bool {
	return a.Phi == 0 && a.Theta == 0 && a.Gaz == 0 && a.Yaw == 0
}

func (a Axes) clamped() Axes {
	c := func(v float32) float32 {
		if v < -1 {
			return -1
		}
		if v > 1 {
			return 1
		}
		return v
	}
	return Axes{Phi: c(a.Phi), Theta: c(a.Theta), Gaz: c(a.Gaz), Yaw: c(a.Yaw)}
}

// Encoder convierte acciones en comandos AT con número de secuencia.
// Un mismo mutex protege la secuencia, la palabra de estado de REF y los ejes.
type Encoder struct {
	mu    sync.Mutex
	seq   uint32
	term  byte
	state uint32
	axes  Axes

	// recenter queda activo entre un cambio a ejes centrados y el PCMD de hover
	recenter bool
}

// EncoderOption ajusta un Encoder.
type EncoderOption func(*Encoder)

// WithTerminator cambia el terminador de línea (\r por defecto).
func WithTerminator(term byte) EncoderOption {
	return func(e *Encoder) { e.term = term }
}

func NewEncoder(opts ...EncoderOption) *Encoder {
	e := &Encoder{term: codec.TermCR}
	for _, o := range opts {
		o(e)
	}
	return e
}

// NextSequence devuelve 1 en la primera llamada y luego +1.
// Al desbordar vuelve a 1: el dron interpreta 1 como reinicio del contador.
func (e *Encoder) NextSequence() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nextLocked()
}

func (e *Encoder) nextLocked() uint32 {
	if e.seq == math.MaxUint32 {
		e.seq = 0
	}
	e.seq++
	return e.seq
}

// Format arma "{name}={seq},{data}{term}" con una secuencia nueva.
func (e *Encoder) Format(name, data string) string {
	seq := e.NextSequence()
	return codec.FormatCommand(name, seq, data, e.term)
}

func (e *Encoder) FormatMessage(m codec.Message) string {
	return e.Format(m.Name, m.Data)
}

/* =======================================================================
                        ESTADO PERSISTENTE (REF)
======================================================================= */

// Takeoff enciende el bit 9. No encola nada: el bit viaja en cada StateFrame.
func (e *Encoder) Takeoff() {
	e.mu.Lock()
	e.state |= codec.RefTakeoff
	e.mu.Unlock()
}

// Land apaga el bit 9.
func (e *Encoder) Land() {
	e.mu.Lock()
	e.state &^= codec.RefTakeoff
	e.mu.Unlock()
}

// Emergency enciende o apaga el bit 8 (corte de motores / reset de emergencia).
func (e *Encoder) Emergency(on bool) {
	e.mu.Lock()
	if on {
		e.state |= codec.RefEmergency
	} else {
		e.state &^= codec.RefEmergency
	}
	e.mu.Unlock()
}

// State devuelve la palabra de control actual (sin RefConst).
func (e *Encoder) State() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// StateFrame devuelve un AT*REF con la palabra de estado y secuencia nueva.
func (e *Encoder) StateFrame() string {
	e.mu.Lock()
	m := codec.Ref(e.state)
	seq := e.nextLocked()
	e.mu.Unlock()
	return codec.FormatCommand(m.Name, seq, m.Data, e.term)
}

/* =======================================================================
                        EJES PEGAJOSOS (PCMD)
======================================================================= */

// SetAxes fija los ejes, saturados a [-1, 1].
func (e *Encoder) SetAxes(a Axes) {
	e.mu.Lock()
	a = a.clamped()
	if a.Zero() {
		if !e.axes.Zero() {
			e.recenter = true
		}
	} else {
		e.recenter = false
	}
	e.axes = a
	e.mu.Unlock()
}

// Hover centra los cuatro ejes.
func (e *Encoder) Hover() {
	e.SetAxes(Axes{})
}

func (e *Encoder) Axes() Axes {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.axes
}

// SteerFrame devuelve el AT*PCMD de los ejes actuales. Con los ejes centrados
// devuelve "AT*PCMD={seq},0,0,0,0,0" una sola vez tras el cambio y luego "".
func (e *Encoder) SteerFrame() string {
	e.mu.Lock()
	a := e.axes
	var m codec.Message
	switch {
	case !a.Zero():
		m = codec.Pcmd(codec.PcmdProgressive, a.Phi, a.Theta, a.Gaz, a.Yaw)
	case e.recenter:
		e.recenter = false
		m = codec.Pcmd(0, 0, 0, 0, 0)
	default:
		e.mu.Unlock()
		return ""
	}
	seq := e.nextLocked()
	e.mu.Unlock()
	return codec.FormatCommand(m.Name, seq, m.Data, e.term)
}
