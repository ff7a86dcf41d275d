package navflags

// Bits del campo drone_state de la cabecera de navdata (firmware 1.x).
const (
	Flying            = 0  // 0 en tierra, 1 volando
	Video             = 1  // video habilitado
	Vision            = 2  // visión habilitada
	Control           = 3  // 0 control por ángulos euler, 1 por velocidad angular
	Altitude          = 4  // lazo de control de altitud activo
	UserFeedbackStart = 5  // botón start
	Command           = 6  // ACK de comando de control
	TrimCommand       = 7  // ACK de FTRIM
	TrimRunning       = 8  // trim en curso
	TrimResult        = 9  // 0 falló, 1 ok
	NavdataDemo       = 10 // 0 navdata completo, 1 solo demo
	NavdataBootstrap  = 11 // 1 = no se envían opciones (modo arranque)
	MotorsBrushed     = 12 // 0 brushless, 1 brushed
	ComLost           = 13 // comunicación perdida
	GyrosZero         = 14 // problema de hardware en giróscopos
	VbatLow           = 15 // batería baja
	VbatHigh          = 16 // batería alta
	TimerElapsed      = 17 // timer vencido
	NotEnoughPower    = 18 // potencia insuficiente para volar
	AnglesOutOfRange  = 19 // ángulos fuera de rango
	Wind              = 20 // demasiado viento
	Ultrasound        = 21 // sensor ultrasónico sordo
	Cutout            = 22 // detección de corte
	PicVersion        = 23 // versión de PIC ok
	ATCodecThreadOn   = 24 // hilo ATCodec activo
	NavdataThreadOn   = 25 // hilo navdata activo
	VideoThreadOn     = 26 // hilo video activo
	AcqThreadOn       = 27 // hilo de adquisición activo
	CtrlWatchdog      = 28 // retraso en la ejecución del control (> 5ms)
	ADCWatchdog       = 29 // retraso en uart2 dsr (> 5ms)
	ComWatchdog       = 30 // problema en el watchdog de comunicación
	Emergency         = 31 // aterrizaje de emergencia
)

// Count es la cantidad de bits con nombre.
const Count = 32

// Names indexa el nombre corto de cada bit por su posición.
var Names = [Count]string{
	Flying:            "flying",
	Video:             "video",
	Vision:            "vision",
	Control:           "control",
	Altitude:          "altitude",
	UserFeedbackStart: "user_feedback_start",
	Command:           "command",
	TrimCommand:       "trim_command",
	TrimRunning:       "trim_running",
	TrimResult:        "trim_result",
	NavdataDemo:       "navdata_demo",
	NavdataBootstrap:  "navdata_bootstrap",
	MotorsBrushed:     "motors_brushed",
	ComLost:           "com_lost",
	GyrosZero:         "gyros_zero",
	VbatLow:           "vbat_low",
	VbatHigh:          "vbat_high",
	TimerElapsed:      "timer_elapsed",
	NotEnoughPower:    "not_enough_power",
	AnglesOutOfRange:  "angles_out_of_range",
	Wind:              "wind",
	Ultrasound:        "ultrasound",
	Cutout:            "cutout",
	PicVersion:        "pic_version",
	ATCodecThreadOn:   "atcodec_thread_on",
	NavdataThreadOn:   "navdata_thread_on",
	VideoThreadOn:     "video_thread_on",
	AcqThreadOn:       "acq_thread_on",
	CtrlWatchdog:      "ctrl_watchdog",
	ADCWatchdog:       "adc_watchdog",
	ComWatchdog:       "com_watchdog",
	Emergency:         "emergency",
}

// Mask devuelve la máscara del bit.
func Mask(bit int) uint32 {
	return 1 << uint(bit)
}

// Set indica si el bit está encendido en state.
func Set(state uint32, bit int) bool {
	return state&Mask(bit) != 0
}

// Lookup busca un bit por nombre.
func Lookup(name string) (int, bool) {
	for i, n := range Names {
		if n == name {
			return i, true
		}
	}
	return 0, false
}

// Map expande el estado a nombre -> 0/1, útil para JSON y Redis.
func Map(state uint32) map[string]int {
	out := make(map[string]int, Count)
	for i, n := range Names {
		if Set(state, i) {
			out[n] = 1
		} else {
			out[n] = 0
		}
	}
	return out
}
