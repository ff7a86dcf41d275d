package pipeline

import (
	"errors"
	"time"

	"ardrone-svr/internal/codec"
	"ardrone-svr/internal/codec/navflags"
)

// Snapshot es la vista del estado que se publica hacia redis, grpc y kafka.
type Snapshot struct {
	SessionID string `json:"session_id"`
	Datetime  string `json:"dt"`

	Sequence uint32         `json:"seq"`
	State    uint32         `json:"state"`
	Flags    map[string]int `json:"flags"`
	Phase    string         `json:"phase"`

	Flying       bool `json:"flying"`
	Bootstrap    bool `json:"bootstrap"`
	ComLost      bool `json:"com_lost"`
	AltitudeCtrl bool `json:"altitude_ctrl"`

	Demo     *codec.Demo `json:"demo,omitempty"`
	Changes  []string    `json:"changes,omitempty"`
	Checksum string      `json:"checksum"` // ok | mismatch | missing
}

func checksumStatus(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, codec.ErrMissingChecksum):
		return "missing"
	default:
		return "mismatch"
	}
}

func BuildSnapshot(sessionID string, u Update) *Snapshot {
	at := u.At
	if at.IsZero() {
		at = time.Now()
	}
	s := &Snapshot{
		SessionID:    sessionID,
		Datetime:     at.UTC().Format(time.RFC3339Nano),
		State:        u.New,
		Flags:        navflags.Map(u.New),
		Phase:        HaveState.String(),
		Flying:       navflags.Set(u.New, navflags.Flying),
		Bootstrap:    navflags.Set(u.New, navflags.NavdataBootstrap),
		ComLost:      navflags.Set(u.New, navflags.ComLost),
		AltitudeCtrl: navflags.Set(u.New, navflags.Altitude),
		Demo:         u.Demo,
		Changes:      u.Changes,
		Checksum:     checksumStatus(u.Checksum),
	}
	if u.Frame != nil {
		s.Sequence = u.Frame.Sequence
	}
	return s
}

// Fields convierte el snapshot a tipos que acepta structpb (sin slices ni mapas tipados).
func (s *Snapshot) Fields() map[string]any {
	flags := make(map[string]any, len(s.Flags))
	for k, v := range s.Flags {
		flags[k] = v
	}
	changes := make([]any, 0, len(s.Changes))
	for _, c := range s.Changes {
		changes = append(changes, c)
	}
	out := map[string]any{
		"session_id":    s.SessionID,
		"dt":            s.Datetime,
		"seq":           s.Sequence,
		"state":         s.State,
		"flags":         flags,
		"phase":         s.Phase,
		"flying":        s.Flying,
		"bootstrap":     s.Bootstrap,
		"com_lost":      s.ComLost,
		"altitude_ctrl": s.AltitudeCtrl,
		"changes":       changes,
		"checksum":      s.Checksum,
	}
	if s.Demo != nil {
		out["demo"] = map[string]any{
			"ctrl_state":  s.Demo.CtrlState,
			"battery_pct": s.Demo.BatteryPct,
			"theta":       s.Demo.Theta,
			"phi":         s.Demo.Phi,
			"psi":         s.Demo.Psi,
			"altitude_cm": s.Demo.AltitudeCm,
			"vx":          s.Demo.VelocityX,
			"vy":          s.Demo.VelocityY,
			"vz":          s.Demo.VelocityZ,
		}
	}
	return out
}
