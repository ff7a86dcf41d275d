package codec

import (
	"encoding/binary"
	"fmt"
)

// checksumModulus: la suma se compara módulo 2^32 - 1.
const checksumModulus = 1<<32 - 1

// DecodeOptions ajusta las variantes del protocolo observadas entre firmwares.
type DecodeOptions struct {
	LengthMode LengthMode
}

// safeRead evita panic si el offset excede el buffer.
func safeRead(data []byte, offset, length int) ([]byte, error) {
	if offset < 0 || length < 0 || offset+length > len(data) {
		return nil, fmt.Errorf("%w: tried to read %d bytes at offset %d (len=%d)",
			ErrMalformedFrame, length, offset, len(data))
	}
	return data[offset : offset+length], nil
}

// DecodeNavdata parsea un datagrama de navdata.
//
// Errores fatales (el frame se descarta): ErrMalformedFrame y ErrZeroLengthOption.
// Errores de checksum (ErrChecksumMismatch, ErrMissingChecksum) devuelven el frame
// completo junto con el error; el llamador decide si lo aplica.
// Las opciones con id desconocido se saltan y quedan listadas en NavFrame.Unknown.
func DecodeNavdata(data []byte, opts DecodeOptions) (*NavFrame, error) {
	hdr, err := safeRead(data, 0, NavHeaderSize)
	if err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}

	frame := &NavFrame{
		Header:     binary.LittleEndian.Uint32(hdr[0:4]),
		State:      binary.LittleEndian.Uint32(hdr[4:8]),
		Sequence:   binary.LittleEndian.Uint32(hdr[8:12]),
		VisionFlag: binary.LittleEndian.Uint32(hdr[12:16]),
	}

	offset := NavHeaderSize
	for offset < len(data) {
		optStart := offset
		oh, err := safeRead(data, offset, optionHeaderSize)
		if err != nil {
			return nil, fmt.Errorf("option header: %w", err)
		}
		id := binary.LittleEndian.Uint16(oh[0:2])
		length := binary.LittleEndian.Uint16(oh[2:4])
		offset += optionHeaderSize

		if length == 0 {
			return nil, fmt.Errorf("%w: option %d at offset %d", ErrZeroLengthOption, id, optStart)
		}

		size := int(length) * 2
		if opts.LengthMode == LengthBytesInclusive {
			if length < optionHeaderSize {
				return nil, fmt.Errorf("%w: option %d declares %d bytes", ErrMalformedFrame, id, length)
			}
			size = int(length) - optionHeaderSize
		}

		payload, err := safeRead(data, offset, size)
		if err != nil {
			return nil, fmt.Errorf("option %d payload: %w", id, err)
		}
		offset += size

		if OptionName(id) == "" {
			frame.Unknown = append(frame.Unknown, id)
			continue
		}

		frame.Options = append(frame.Options, Option{
			ID:      id,
			Length:  length,
			Payload: append([]byte(nil), payload...),
		})

		if id == OptionChecksum {
			if len(payload) < 4 {
				return nil, fmt.Errorf("%w: checksum payload of %d bytes", ErrMalformedFrame, len(payload))
			}
			frame.HasChecksum = true
			frame.Checksum = binary.LittleEndian.Uint32(payload[0:4])
			frame.ComputedChecksum = Checksum(data[:optStart])
			// el checksum siempre es la última opción
			break
		}
	}

	if !frame.HasChecksum {
		return frame, ErrMissingChecksum
	}
	if uint64(frame.Checksum)%checksumModulus != uint64(frame.ComputedChecksum) {
		return frame, fmt.Errorf("%w: carried=%d computed=%d",
			ErrChecksumMismatch, frame.Checksum, frame.ComputedChecksum)
	}
	return frame, nil
}

// Checksum suma los bytes como enteros sin signo, módulo 2^32 - 1.
func Checksum(data []byte) uint32 {
	var sum uint64
	for _, b := range data {
		sum += uint64(b)
	}
	return uint32(sum % checksumModulus)
}

// DecodeDemo interpreta el payload de la opción demo.
func DecodeDemo(payload []byte) (Demo, error) {
	b, err := safeRead(payload, 0, 36)
	if err != nil {
		return Demo{}, fmt.Errorf("demo option: %w", err)
	}
	le := binary.LittleEndian
	return Demo{
		CtrlState:  le.Uint32(b[0:4]),
		BatteryPct: le.Uint32(b[4:8]),
		Theta:      BitsToFloat(le.Uint32(b[8:12])),
		Phi:        BitsToFloat(le.Uint32(b[12:16])),
		Psi:        BitsToFloat(le.Uint32(b[16:20])),
		AltitudeCm: int32(le.Uint32(b[20:24])),
		VelocityX:  BitsToFloat(le.Uint32(b[24:28])),
		VelocityY:  BitsToFloat(le.Uint32(b[28:32])),
		VelocityZ:  BitsToFloat(le.Uint32(b[32:36])),
	}, nil
}

// EncodeNavdata arma un datagrama de navdata con checksum correcto. Lo usan
// las pruebas y la herramienta de replay para generar tráfico sintético.
func EncodeNavdata(state, seq uint32, options []Option, mode LengthMode) []byte {
	out := make([]byte, NavHeaderSize, 64)
	le := binary.LittleEndian
	le.PutUint32(out[0:4], NavdataHeaderTag)
	le.PutUint32(out[4:8], state)
	le.PutUint32(out[8:12], seq)

	putOption := func(id uint16, payload []byte) {
		length := uint16(len(payload) / 2)
		if mode == LengthBytesInclusive {
			length = uint16(len(payload) + optionHeaderSize)
		}
		out = le.AppendUint16(out, id)
		out = le.AppendUint16(out, length)
		out = append(out, payload...)
	}
	for _, o := range options {
		putOption(o.ID, o.Payload)
	}
	putOption(OptionChecksum, le.AppendUint32(nil, Checksum(out)))
	return out
}
