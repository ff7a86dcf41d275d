package dispatcher

import (
	"strings"
	"sync"
)

// DefaultMaxFrameBytes es el tamaño máximo de un datagrama de control.
const DefaultMaxFrameBytes = 1024

// Queue es la cola FIFO de comandos ya formateados a la espera de envío.
// Push y Drain son atómicos entre sí; el orden de inserción se respeta.
type Queue struct {
	mu       sync.Mutex
	items    []string
	enc      *Encoder
	maxBytes int
}

// NewQueue crea una cola ligada a enc (para el frame de estado y los ejes).
// enc puede ser nil si solo se usa Drain.
func NewQueue(enc *Encoder, maxBytes int) *Queue {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFrameBytes
	}
	return &Queue{enc: enc, maxBytes: maxBytes}
}

// Push agrega un comando al final.
func (q *Queue) Push(cmd string) {
	q.mu.Lock()
	q.items = append(q.items, cmd)
	q.mu.Unlock()
}

// Len devuelve la cantidad de comandos pendientes.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain arma un datagrama que empieza con stateFrame y sigue con los comandos
// más viejos mientras el total no supere maxBytes. Un comando que no entra
// queda en la cola; nunca se corta. Si no entró ninguno y el primero por sí
// solo excede el presupuesto, se envía igual para que la cola no se trabe.
func (q *Queue) Drain(stateFrame string, maxBytes int) string {
	return q.drain(stateFrame, "", maxBytes)
}

// drain cierra el datagrama con tail, que nunca pasa por la cola y reserva
// su lugar dentro de maxBytes.
func (q *Queue) drain(head, tail string, maxBytes int) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var sb strings.Builder
	sb.WriteString(head)

	n := 0
	for n < len(q.items) {
		next := q.items[n]
		if sb.Len()+len(next)+len(tail) > maxBytes {
			if n == 0 {
				sb.WriteString(next)
				n++
			}
			break
		}
		sb.WriteString(next)
		n++
	}

	// liberar referencias de lo ya enviado
	for i := 0; i < n; i++ {
		q.items[i] = ""
	}
	q.items = q.items[n:]
	if len(q.items) == 0 {
		q.items = nil
	}
	sb.WriteString(tail)
	return sb.String()
}

// DrainQueued drena solo los comandos pendientes, sin REF ni PCMD.
// Devuelve "" si la cola está vacía.
func (q *Queue) DrainQueued() string {
	return q.Drain("", q.maxBytes)
}

// DrainForTransmission es el tick periódico: un AT*REF recién secuenciado,
// los comandos pendientes y al final el AT*PCMD de los ejes, si corresponde.
// El PCMD no se encola: con cola atrasada igual sale en este tick y nunca
// queda uno viejo detrás de un hover.
// Nunca devuelve "": sin comandos pendientes el REF solo sirve de keep-alive.
// Sin encoder no hay frame de estado y se drena solo la cola.
func (q *Queue) DrainForTransmission() string {
	if q.enc == nil {
		return q.DrainQueued()
	}
	// REF primero para que el PCMD lleve una secuencia mayor
	state := q.enc.StateFrame()
	return q.drain(state, q.enc.SteerFrame(), q.maxBytes)
}
