package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// Nombres de comandos AT reconocidos por el puerto de control.
const (
	CmdRef       = "AT*REF"
	CmdPcmd      = "AT*PCMD"
	CmdFtrim     = "AT*FTRIM"
	CmdConfig    = "AT*CONFIG"
	CmdConfigIDs = "AT*CONFIG_IDS"
	CmdCtrl      = "AT*CTRL"
	CmdComwdg    = "AT*COMWDG"
	CmdLed       = "AT*LED"
	CmdAnim      = "AT*ANIM"
)

// RefConst son los bits 18, 20, 22, 24 y 28, obligatorios en todo AT*REF.
// Del campo de control solo se usan los bits 8 (emergencia) y 9 (despegue).
const RefConst uint32 = 290717696

const (
	RefEmergency uint32 = 1 << 8
	RefTakeoff   uint32 = 1 << 9
)

// PcmdProgressive es el bit 0 de AT*PCMD: el dron procesa los ejes.
const PcmdProgressive uint32 = 1

// Terminadores de línea según la revisión del protocolo.
const (
	TermCR byte = '\r'
	TermLF byte = '\n'
)

var knownCommands = map[string]bool{
	CmdRef: true, CmdPcmd: true, CmdFtrim: true, CmdConfig: true, CmdConfigIDs: true,
	CmdCtrl: true, CmdComwdg: true, CmdLed: true, CmdAnim: true,
}

// Message es un comando AT sin secuencia: nombre y datos ya formateados.
type Message struct {
	Name string
	Data string
}

/* =======================================================================
                        BUILDERS (plantillas fijas)
======================================================================= */

// RefFlags aplica RefConst sin limpiar ningún bit del llamador.
func RefFlags(input uint32) uint32 {
	return input | RefConst
}

func Ref(input uint32) Message {
	return Message{Name: CmdRef, Data: strconv.FormatUint(uint64(RefFlags(input)), 10)}
}

// Pcmd satura cada eje a [-1, 1] y los envía como patrón binary32 con signo.
func Pcmd(flags uint32, phi, theta, gaz, yaw float32) Message {
	values := []string{strconv.FormatInt(int64(int32(flags)), 10)}
	for _, v := range []float32{phi, theta, gaz, yaw} {
		v = clamp(v, -1.0, 1.0)
		values = append(values, strconv.FormatInt(int64(FloatToInt32(v)), 10))
	}
	return Message{Name: CmdPcmd, Data: strings.Join(values, ",")}
}

// Config envía nombre y valor entre comillas, sin escapes: el firmware no los interpreta.
func Config(name, value string) Message {
	return Message{Name: CmdConfig, Data: quoteRaw(name) + "," + quoteRaw(value)}
}

func quoteRaw(s string) string { return "\"" + s + "\"" }

func ConfigIDs(session, user, app string) Message {
	return Message{Name: CmdConfigIDs, Data: session + "," + user + "," + app}
}

// Ctrl: el significado de reserved no está documentado; el firmware espera 0.
func Ctrl(mode, reserved int) Message {
	return Message{Name: CmdCtrl, Data: strconv.Itoa(mode) + "," + strconv.Itoa(reserved)}
}

func Anim(animation, duration int) Message {
	return Message{Name: CmdAnim, Data: strconv.Itoa(animation) + "," + strconv.Itoa(duration)}
}

func Led(animation int, frequency float32, duration int) Message {
	return Message{
		Name: CmdLed,
		Data: fmt.Sprintf("%d,%d,%d", animation, FloatToInt32(frequency), duration),
	}
}

func Ftrim() Message {
	return Message{Name: CmdFtrim}
}

func Comwdg() Message {
	return Message{Name: CmdComwdg}
}

// FormatCommand arma "{name}={seq},{data}{term}". Con data vacío queda "{name}={seq},{term}".
func FormatCommand(name string, seq uint32, data string, term byte) string {
	var sb strings.Builder
	sb.Grow(len(name) + len(data) + 13)
	sb.WriteString(name)
	sb.WriteByte('=')
	sb.WriteString(strconv.FormatUint(uint64(seq), 10))
	sb.WriteByte(',')
	sb.WriteString(data)
	sb.WriteByte(term)
	return sb.String()
}

/* =======================================================================
                        PARSER (decode_command)
======================================================================= */

// ATCommand es un comando AT ya parseado desde el cable.
type ATCommand struct {
	Name string
	Seq  uint32
	Args []string
}

// ParseCommand parsea una línea "AT*NAME=seq,arg,..." (con o sin terminador).
// Los argumentos entre comillas se devuelven sin comillas y pueden contener comas.
func ParseCommand(line string) (ATCommand, error) {
	line = strings.TrimRight(line, "\r\n")
	eq := strings.IndexByte(line, '=')
	if eq < 0 {
		return ATCommand{}, fmt.Errorf("%w: missing '=' in %q", ErrBadCommand, line)
	}
	name := line[:eq]
	if !strings.HasPrefix(name, "AT*") || len(name) <= 3 {
		return ATCommand{}, fmt.Errorf("%w: bad name %q", ErrBadCommand, name)
	}

	fields, err := splitArgs(line[eq+1:])
	if err != nil {
		return ATCommand{}, err
	}
	seq, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return ATCommand{}, fmt.Errorf("%w: bad sequence %q", ErrBadCommand, fields[0])
	}

	args := fields[1:]
	// "AT*FTRIM=5," deja un único argumento vacío: no hay datos
	if len(args) == 1 && args[0] == "" {
		args = nil
	}
	return ATCommand{Name: name, Seq: uint32(seq), Args: args}, nil
}

func splitArgs(s string) ([]string, error) {
	var (
		out    []string
		cur    strings.Builder
		quoted bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '"':
			quoted = !quoted
		case c == ',' && !quoted:
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	if quoted {
		return nil, fmt.Errorf("%w: unterminated quote in %q", ErrBadCommand, s)
	}
	return append(out, cur.String()), nil
}

// Known indica si el nombre pertenece al dialecto soportado.
func (c ATCommand) Known() bool {
	return knownCommands[c.Name]
}

// Int devuelve el argumento i como entero con signo de 32 bits.
func (c ATCommand) Int(i int) (int32, error) {
	if i >= len(c.Args) {
		return 0, fmt.Errorf("%w: %s has no argument %d", ErrBadCommand, c.Name, i)
	}
	n, err := strconv.ParseInt(c.Args[i], 10, 64)
	if err != nil || n < -1<<31 || n > 1<<32-1 {
		return 0, fmt.Errorf("%w: %s argument %d=%q", ErrBadCommand, c.Name, i, c.Args[i])
	}
	return int32(n), nil
}

// Uint devuelve el argumento i como uint32 (acepta la vista con signo).
func (c ATCommand) Uint(i int) (uint32, error) {
	n, err := c.Int(i)
	return uint32(n), err
}

// Float devuelve el argumento i reinterpretado como binary32.
func (c ATCommand) Float(i int) (float32, error) {
	n, err := c.Int(i)
	if err != nil {
		return 0, err
	}
	return Int32ToFloat(n), nil
}

// Format vuelve a armar el comando con su secuencia original.
func (c ATCommand) Format(term byte) string {
	data := append([]string(nil), c.Args...)
	if c.Name == CmdConfig && len(data) == 2 {
		data[0], data[1] = quoteRaw(data[0]), quoteRaw(data[1])
	}
	return FormatCommand(c.Name, c.Seq, strings.Join(data, ","), term)
}

// SplitDatagram separa un datagrama de control en comandos individuales.
// Acepta ambos terminadores; las líneas vacías se descartan.
func SplitDatagram(data []byte) []string {
	fields := strings.FieldsFunc(string(data), func(r rune) bool { return r == '\r' || r == '\n' })
	out := fields[:0]
	for _, f := range fields {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
