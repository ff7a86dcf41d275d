package codec

// IDs de opción reconocidos en un frame de navdata.
const (
	OptionDemo           uint16 = 0
	OptionVisionDetected uint16 = 16
	OptionIphoneAngles   uint16 = 18
	OptionChecksum       uint16 = 0xFFFF
)

// NavdataHeaderTag es el tag que envía el firmware en la cabecera.
const NavdataHeaderTag uint32 = 0x55667788

// NavHeaderSize: header, drone_state, sequence, vision_flag (4 x uint32 LE).
const NavHeaderSize = 16

const optionHeaderSize = 4

var optionNames = map[uint16]string{
	OptionDemo:           "demo",
	OptionVisionDetected: "vision_detected",
	OptionIphoneAngles:   "iphone_angles",
	OptionChecksum:       "checksum",
}

// OptionName devuelve el nombre del tag o "" si no se reconoce.
func OptionName(id uint16) string {
	return optionNames[id]
}

// LengthMode define cómo se interpreta el campo length de una opción.
type LengthMode int

const (
	// LengthWords: length cuenta palabras de 16 bits del payload (payload = length*2 bytes).
	LengthWords LengthMode = iota
	// LengthBytesInclusive: length cuenta bytes incluyendo los 4 de id+length,
	// tal como aparece en las capturas del firmware.
	LengthBytesInclusive
)

func (m LengthMode) String() string {
	if m == LengthBytesInclusive {
		return "bytes"
	}
	return "words"
}

// ParseLengthMode acepta "words" o "bytes".
func ParseLengthMode(s string) (LengthMode, bool) {
	switch s {
	case "words", "":
		return LengthWords, true
	case "bytes":
		return LengthBytesInclusive, true
	}
	return LengthWords, false
}

type Option struct {
	ID      uint16 `json:"id"`
	Length  uint16 `json:"length"`
	Payload []byte `json:"payload,omitempty"`
}

type NavFrame struct {
	Header     uint32   `json:"header"`
	State      uint32   `json:"state"`
	Sequence   uint32   `json:"sequence"`
	VisionFlag uint32   `json:"vision_flag"`
	Options    []Option `json:"options"`
	Unknown    []uint16 `json:"unknown,omitempty"`

	HasChecksum      bool   `json:"has_checksum"`
	Checksum         uint32 `json:"checksum"`
	ComputedChecksum uint32 `json:"computed_checksum"`
}

// Option devuelve la primera opción con el id dado.
func (f *NavFrame) Option(id uint16) (Option, bool) {
	for _, o := range f.Options {
		if o.ID == id {
			return o, true
		}
	}
	return Option{}, false
}

// Demo es el contenido de la opción demo (los primeros 36 bytes).
type Demo struct {
	CtrlState  uint32  `json:"ctrl_state"`
	BatteryPct uint32  `json:"battery_pct"`
	Theta      float32 `json:"theta"` // mili-grados
	Phi        float32 `json:"phi"`
	Psi        float32 `json:"psi"`
	AltitudeCm int32   `json:"altitude_cm"`
	VelocityX  float32 `json:"vx"`
	VelocityY  float32 `json:"vy"`
	VelocityZ  float32 `json:"vz"`
}
