package codec

import "math"

// FloatToBits reinterpreta el patrón IEEE-754 binary32 de f como uint32.
// No es un cast numérico: 0.5 -> 1056964608. NaN e Inf pasan bit a bit.
func FloatToBits(f float32) uint32 {
	return math.Float32bits(f)
}

// BitsToFloat es la inversa de FloatToBits.
func BitsToFloat(i uint32) float32 {
	return math.Float32frombits(i)
}

// FloatToInt32 devuelve la vista con signo que viaja en los comandos AT
// (p.ej. -0.5 -> -1090519040).
func FloatToInt32(f float32) int32 {
	return int32(math.Float32bits(f))
}

// Int32ToFloat es la inversa de FloatToInt32.
func Int32ToFloat(i int32) float32 {
	return math.Float32frombits(uint32(i))
}

// clamp satura v a [min, max]. Los valores exactamente en el límite pasan sin cambios.
func clamp(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}
