package dispatcher

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"ardrone-svr/internal/codec"
)

var (
	ErrUnknownCommand = errors.New("unknown command")
	ErrThrottled      = errors.New("command throttled")
)

/* =======================================================================
                        COMMAND DEFINITION
======================================================================= */

// Params son los argumentos con nombre de un comando (vienen de HTTP o CLI).
type Params map[string]string

func (p Params) Int(key string, def int) (int, error) {
	v, ok := p[key]
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("param %s: %w", key, err)
	}
	return n, nil
}

func (p Params) Float(key string, def float32) (float32, error) {
	v, ok := p[key]
	if !ok || v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 32)
	if err != nil {
		return 0, fmt.Errorf("param %s: %w", key, err)
	}
	return float32(f), nil
}

func (p Params) String(key, def string) string {
	if v, ok := p[key]; ok && v != "" {
		return v
	}
	return def
}

// Sink recibe los mensajes que arma un comando (la sesión los secuencia y encola).
type Sink interface {
	Enqueue(m codec.Message)
}

type Command struct {
	Name             string
	Description      string
	Build            func(p Params) (codec.Message, error)
	MinRetryInterval time.Duration
}

var (
	cmdMu    sync.RWMutex
	registry = map[string]Command{}
)

func RegisterCommand(c Command) {
	cmdMu.Lock()
	defer cmdMu.Unlock()
	registry[c.Name] = c
}

// Lookup devuelve el comando registrado con ese nombre.
func Lookup(name string) (Command, bool) {
	cmdMu.RLock()
	defer cmdMu.RUnlock()
	c, ok := registry[name]
	return c, ok
}

// Names lista los comandos registrados, ordenados.
func Names() []string {
	cmdMu.RLock()
	defer cmdMu.RUnlock()
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

/* =======================================================================
                     SCHEDULER (intervalo mínimo por comando)
======================================================================= */

type Scheduler struct {
	mu   sync.Mutex
	last map[string]time.Time
	now  func() time.Time
}

func NewScheduler() *Scheduler {
	return &Scheduler{last: make(map[string]time.Time), now: time.Now}
}

// TrySchedule arma el comando y lo entrega a sink si no viola MinRetryInterval.
func (s *Scheduler) TrySchedule(name string, p Params, sink Sink, lg *slog.Logger) error {
	cmd, ok := Lookup(name)
	if !ok {
		lg.Warn("unknown command", "cmd", name)
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	msg, err := cmd.Build(p)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	s.mu.Lock()
	now := s.now()
	if last, ok := s.last[name]; ok && cmd.MinRetryInterval > 0 && now.Sub(last) < cmd.MinRetryInterval {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s (retry in %s)", ErrThrottled, name, cmd.MinRetryInterval-now.Sub(last))
	}
	s.last[name] = now
	s.mu.Unlock()

	sink.Enqueue(msg)
	lg.Info("command queued", "cmd", name, "at", msg.Name)
	return nil
}

/* =======================================================================
                        BUILT-IN COMMANDS
======================================================================= */

func init() {
	RegisterCommand(Command{
		Name:             "ftrim",
		Description:      "flat trim; only valid on the ground",
		Build:            func(Params) (codec.Message, error) { return codec.Ftrim(), nil },
		MinRetryInterval: time.Second,
	})
	RegisterCommand(Command{
		Name:        "comwdg",
		Description: "reset the communication watchdog",
		Build:       func(Params) (codec.Message, error) { return codec.Comwdg(), nil },
	})
	RegisterCommand(Command{
		Name:        "anim",
		Description: "flight animation: animation, duration",
		Build: func(p Params) (codec.Message, error) {
			anim, err := p.Int("animation", 0)
			if err != nil {
				return codec.Message{}, err
			}
			d, err := p.Int("duration", 0)
			if err != nil {
				return codec.Message{}, err
			}
			return codec.Anim(anim, d), nil
		},
		MinRetryInterval: 500 * time.Millisecond,
	})
	RegisterCommand(Command{
		Name:        "led",
		Description: "LED animation: animation, frequency (Hz), duration (s)",
		Build: func(p Params) (codec.Message, error) {
			anim, err := p.Int("animation", 0)
			if err != nil {
				return codec.Message{}, err
			}
			freq, err := p.Float("frequency", 1)
			if err != nil {
				return codec.Message{}, err
			}
			d, err := p.Int("duration", 1)
			if err != nil {
				return codec.Message{}, err
			}
			return codec.Led(anim, freq, d), nil
		},
	})
	RegisterCommand(Command{
		Name:        "config",
		Description: "set a configuration key: name, value",
		Build: func(p Params) (codec.Message, error) {
			name := p.String("name", "")
			if name == "" {
				return codec.Message{}, errors.New("param name is required")
			}
			return codec.Config(name, p.String("value", "")), nil
		},
	})
	RegisterCommand(Command{
		Name:        "ctrl",
		Description: "control mode request: mode, reserved",
		Build: func(p Params) (codec.Message, error) {
			mode, err := p.Int("mode", 0)
			if err != nil {
				return codec.Message{}, err
			}
			reserved, err := p.Int("reserved", 0)
			if err != nil {
				return codec.Message{}, err
			}
			return codec.Ctrl(mode, reserved), nil
		},
	})
}
