package session

import (
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"ardrone-svr/internal/codec"
	"ardrone-svr/internal/codec/navflags"
	"ardrone-svr/internal/dispatcher"
	"ardrone-svr/internal/link"
	"ardrone-svr/internal/observability"
	"ardrone-svr/internal/pipeline"
)

// CommandSink es el lado de control: acepta mensajes y entrega datagramas listos.
type CommandSink interface {
	Send(m codec.Message)
	NextDatagram() string
}

// TelemetrySource es el lado de navdata.
type TelemetrySource interface {
	HandleNavdata(raw []byte) (pipeline.Update, error)
	State() uint32
	Phase() pipeline.Phase
}

// CtrlConfigDump pide al dron que vuelque su configuración por el puerto TCP.
const CtrlConfigDump = 5

type Config struct {
	Terminator    byte
	MaxFrameBytes int
	Decoder       pipeline.DecoderConfig
	UserID        string // vacío = generado
	AppID         string // vacío = generado
}

// Session es una conexión lógica con un dron: contador y palabra de estado
// (encoder), cola de comandos, decodificador de navdata y buffer de config.
type Session struct {
	ID     string
	UserID string
	AppID  string

	enc    *dispatcher.Encoder
	queue  *dispatcher.Queue
	dec    *pipeline.Decoder
	config *link.ConfigBuffer
	sched  *dispatcher.Scheduler
	lg     *slog.Logger
}

var (
	_ CommandSink     = (*Session)(nil)
	_ TelemetrySource = (*Session)(nil)
	_ dispatcher.Sink = (*Session)(nil)
)

// shortID: los ids de CONFIG_IDS son 8 dígitos hex.
func shortID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

func New(cfg Config, lg *slog.Logger) *Session {
	if lg == nil {
		lg = slog.Default()
	}
	term := cfg.Terminator
	if term == 0 {
		term = codec.TermCR
	}
	s := &Session{
		ID:     shortID(),
		UserID: cfg.UserID,
		AppID:  cfg.AppID,
		config: &link.ConfigBuffer{},
		sched:  dispatcher.NewScheduler(),
	}
	if s.UserID == "" {
		s.UserID = shortID()
	}
	if s.AppID == "" {
		s.AppID = shortID()
	}
	s.lg = lg.With("session", s.ID)
	s.enc = dispatcher.NewEncoder(dispatcher.WithTerminator(term))
	s.queue = dispatcher.NewQueue(s.enc, cfg.MaxFrameBytes)
	s.dec = pipeline.NewDecoder(cfg.Decoder, s.lg)
	return s
}

func (s *Session) Encoder() *dispatcher.Encoder { return s.enc }
func (s *Session) Decoder() *pipeline.Decoder { return s.dec }
func (s *Session) ConfigBuffer() *link.ConfigBuffer { return s.config }

/* =======================================================================
                              CONTROL
======================================================================= */

// Enqueue secuencia el mensaje y lo agrega a la cola.
func (s *Session) Enqueue(m codec.Message) {
	s.queue.Push(s.enc.FormatMessage(m))
	observability.CommandsQueued.WithLabelValues(m.Name).Inc()
}

func (s *Session) Send(m codec.Message) { s.Enqueue(m) }

// Run ejecuta un comando con nombre del registro (respeta su intervalo mínimo).
func (s *Session) Run(name string, p dispatcher.Params) error {
	return s.sched.TrySchedule(name, p, s, s.lg)
}

func (s *Session) Takeoff() {
	s.enc.Takeoff()
	s.lg.Info("takeoff requested")
}

func (s *Session) Land() {
	s.enc.Land()
	s.lg.Info("land requested")
}

func (s *Session) Emergency(on bool) {
	s.enc.Emergency(on)
	s.lg.Warn("emergency bit", "on", on)
}

func (s *Session) Hover() {
	s.enc.Hover()
}

// Steer fija los ejes pegajosos; se retransmiten en cada tick hasta Hover.
func (s *Session) Steer(a dispatcher.Axes) {
	s.enc.SetAxes(a)
}

func (s *Session) SetOption(name, value string) {
	s.Enqueue(codec.Config(name, value))
}

func (s *Session) ResetTrim() {
	s.Enqueue(codec.Ftrim())
}

func (s *Session) Watchdog() {
	s.Enqueue(codec.Comwdg())
}

// Identify envía CONFIG_IDS con los ids de la sesión.
func (s *Session) Identify() {
	s.Enqueue(codec.ConfigIDs(s.ID, s.UserID, s.AppID))
}

// RequestConfig pide el volcado de configuración y limpia el buffer.
func (s *Session) RequestConfig() {
	s.config.Reset()
	s.Enqueue(codec.Ctrl(CtrlConfigDump, 0))
}

// NextDatagram es el tick de transmisión: REF + pendientes + PCMD.
func (s *Session) NextDatagram() string {
	out := s.queue.DrainForTransmission()
	observability.QueueDepth.Set(float64(s.queue.Len()))
	return out
}

// QueuedDatagram entrega solo los comandos en cola, sin la palabra de estado.
// Lo usan los envíos puntuales, que no deben pisar el REF de otra sesión.
func (s *Session) QueuedDatagram() string {
	out := s.queue.DrainQueued()
	observability.QueueDepth.Set(float64(s.queue.Len()))
	return out
}

// Pending devuelve la cantidad de comandos en cola.
func (s *Session) Pending() int { return s.queue.Len() }

/* =======================================================================
                              TELEMETRÍA
======================================================================= */

// HandleNavdata aplica un datagrama de navdata. Cuando el dron levanta el
// bit com_watchdog se responde con un AT*COMWDG.
func (s *Session) HandleNavdata(raw []byte) (pipeline.Update, error) {
	u, err := s.dec.Decode(raw)
	if err != nil {
		return u, err
	}
	if navflags.Set(u.New, navflags.ComWatchdog) && !navflags.Set(u.Old, navflags.ComWatchdog) {
		s.lg.Warn("communication watchdog raised, resetting")
		s.Watchdog()
	}
	return u, nil
}

func (s *Session) State() uint32 { return s.dec.State() }
func (s *Session) Phase() pipeline.Phase { return s.dec.Phase() }
