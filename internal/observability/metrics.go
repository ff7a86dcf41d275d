package observability

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	NavdataDatagrams = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ardrone_navdata_datagrams_total",
		Help: "Total de datagramas de navdata recibidos",
	})
	FramesDecoded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ardrone_frames_decoded_total",
		Help: "Frames de navdata aceptados (estado aplicado)",
	})
	DecodeErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ardrone_decode_errors_total",
		Help: "Errores al decodificar navdata por tipo",
	}, []string{"kind"})
	UnknownOptions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ardrone_unknown_options_total",
		Help: "Opciones de navdata con id desconocido (saltadas)",
	})
	StateChanges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ardrone_state_changes_total",
		Help: "Cambios detectados por bit de estado",
	}, []string{"flag"})
	CommandsQueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ardrone_commands_queued_total",
		Help: "Comandos AT encolados por nombre",
	}, []string{"cmd"})
	DatagramsSent = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ardrone_control_datagrams_sent_total",
		Help: "Datagramas de control enviados",
	})
	SendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ardrone_control_send_errors_total",
		Help: "Errores al escribir en el puerto de control",
	})
	FrameBytes = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ardrone_control_frame_bytes",
		Help:    "Tamaño de cada datagrama de control",
		Buckets: []float64{16, 32, 64, 128, 256, 512, 1024},
	})
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ardrone_command_queue_depth",
		Help: "Comandos pendientes tras el último drenado",
	})
	SinkErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ardrone_sink_errors_total",
		Help: "Errores de los destinos de snapshots (redis, grpc, kafka)",
	}, []string{"sink"})
	SnapshotsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ardrone_snapshots_dropped_total",
		Help: "Snapshots descartados por cola de publicación llena",
	})
	ConfigFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ardrone_config_fetches_total",
		Help: "Lecturas del canal de configuración por resultado",
	}, []string{"result"})
	DecodeLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ardrone_decode_latency_seconds",
		Help:    "Latencia de decodificación por frame",
		Buckets: prometheus.DefBuckets,
	})
)

func ObserveDecodeLatency(start time.Time) {
	DecodeLatency.Observe(time.Since(start).Seconds())
}

// MetricsHandler expone /metrics y /healthz.
func MetricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(200)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

// StartMetricsServer bloquea hasta que ctx se cancela.
func StartMetricsServer(ctx context.Context, port string) error {
	srv := &http.Server{Addr: ":" + port, Handler: MetricsHandler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
