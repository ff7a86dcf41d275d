package link

import (
	"bytes"
	"sync"
)

// DefaultTerminator: en las capturas el volcado de configuración termina
// con un punto en una línea sola.
var DefaultTerminator = []byte("\n.\n")

// ConfigBuffer acumula lo que llega por el canal de configuración.
// No hace framing: el llamador decide cuándo llegó suficiente.
type ConfigBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// Write agrega p al final. Nunca falla.
func (b *ConfigBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// Bytes devuelve una copia del contenido.
func (b *ConfigBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Clone(b.buf.Bytes())
}

func (b *ConfigBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *ConfigBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Len()
}

func (b *ConfigBuffer) Reset() {
	b.mu.Lock()
	b.buf.Reset()
	b.mu.Unlock()
}

// Terminated indica si ya llegó term. Con term vacío nunca termina.
func (b *ConfigBuffer) Terminated(term []byte) bool {
	if len(term) == 0 {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return bytes.Contains(b.buf.Bytes(), term)
}

// Next extrae el primer volcado completo (sin el terminador) y deja en el
// buffer lo que haya llegado después.
func (b *ConfigBuffer) Next(term []byte) ([]byte, bool) {
	if len(term) == 0 {
		return nil, false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	dump, rest, ok := bytes.Cut(b.buf.Bytes(), term)
	if !ok {
		return nil, false
	}
	dump = bytes.Clone(dump)
	rest = bytes.Clone(rest)
	b.buf.Reset()
	b.buf.Write(rest)
	return dump, true
}
