package codec

import "errors"

// Taxonomía de errores del decodificador de navdata y del parser de comandos.
var (
	ErrMalformedFrame   = errors.New("malformed navdata frame")
	ErrUnknownOption    = errors.New("unknown navdata option")
	ErrZeroLengthOption = errors.New("navdata option with zero length")
	ErrChecksumMismatch = errors.New("navdata checksum mismatch")
	ErrMissingChecksum  = errors.New("navdata checksum option missing")
	ErrBadCommand       = errors.New("malformed AT command")
)

// ErrorKind devuelve una etiqueta corta para métricas y logs.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrMalformedFrame):
		return "malformed_frame"
	case errors.Is(err, ErrUnknownOption):
		return "unknown_option"
	case errors.Is(err, ErrZeroLengthOption):
		return "zero_length_option"
	case errors.Is(err, ErrChecksumMismatch):
		return "checksum_mismatch"
	case errors.Is(err, ErrMissingChecksum):
		return "missing_checksum"
	case errors.Is(err, ErrBadCommand):
		return "bad_command"
	default:
		return "other"
	}
}

// IsAdvisory indica si el error deja el frame utilizable (solo problemas de checksum).
func IsAdvisory(err error) bool {
	return errors.Is(err, ErrChecksumMismatch) || errors.Is(err, ErrMissingChecksum)
}
