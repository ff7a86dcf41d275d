package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ardrone-svr/internal/codec"
)

// EnvPrefix: las variables de entorno son ARDRONE_<flag> (ej. ARDRONE_DRONE_IP).
const EnvPrefix = "ardrone"

type Config struct {
	DroneIP     string
	ListenIP    string
	NavdataPort int
	ControlPort int
	ConfigPort  int
	Multicast   string
	Interface   string

	Tick           time.Duration
	Terminator     byte
	LengthMode     codec.LengthMode
	StrictChecksum bool
	MaxFrameBytes  int

	LogLevel    string
	RawLogDir   string
	MetricsPort string
	APIAddr     string

	RedisAddr string
	RedisDB   int
	RedisTTL  time.Duration

	GRPCServer string

	KafkaBrokers []string
	KafkaTopic   string
}

func (c Config) NavdataAddr() string { return net.JoinHostPort(c.DroneIP, strconv.Itoa(c.NavdataPort)) }
func (c Config) ControlAddr() string { return net.JoinHostPort(c.DroneIP, strconv.Itoa(c.ControlPort)) }
func (c Config) ConfigAddr() string { return net.JoinHostPort(c.DroneIP, strconv.Itoa(c.ConfigPort)) }
func (c Config) ListenAddr() string { return net.JoinHostPort(c.ListenIP, strconv.Itoa(c.NavdataPort)) }

// InitEnv carga .env y .env.local (si existen) y prepara viper para leer
// variables ARDRONE_*.
func InitEnv(v *viper.Viper) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// RegisterFlags agrega las flags persistentes de configuración a cmd.
func RegisterFlags(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.String("drone-ip", "192.168.1.1", "Address of the drone")
	f.String("listen-ip", "0.0.0.0", "Local address for the navdata listener")
	f.Int("navdata-port", 5554, "Navdata UDP port")
	f.Int("control-port", 5556, "AT command UDP port")
	f.Int("config-port", 5559, "Configuration TCP port")
	f.String("multicast", "", "Navdata multicast group to join (e.g. 224.1.1.1)")
	f.String("iface", "", "Network interface for the multicast join")

	f.Duration("tick", 20*time.Millisecond, "Control transmission period")
	f.String("terminator", "cr", "AT command line terminator (cr, lf)")
	f.String("length-mode", "words", "Navdata option length unit (words, bytes)")
	f.Bool("strict-checksum", false, "Reject navdata frames with a bad or missing checksum")
	f.Int("max-frame-bytes", 1024, "Maximum size of a control datagram")

	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("raw-log-dir", "", "Directory for raw datagram logs (empty = disabled)")
	f.String("metrics-port", "9000", "Port for /metrics and /healthz (empty = disabled)")
	f.String("api-addr", ":8080", "HTTP control API address (empty = disabled)")

	f.String("redis-addr", "", "Redis address for the live state mirror (empty = disabled)")
	f.Int("redis-db", 0, "Redis database")
	f.Duration("redis-ttl", 10*time.Minute, "TTL of the mirrored state keys")

	f.String("grpc-server", "", "gRPC forwarder address (empty = disabled)")

	f.String("kafka-brokers", "", "Comma-separated Kafka brokers (empty = disabled)")
	f.String("kafka-topic", "ardrone.state", "Kafka topic for state-change events")
}

// Load lee la configuración ya enlazada en v (flags, entorno, defaults).
func Load(v *viper.Viper) (Config, error) {
	c := Config{
		DroneIP:        v.GetString("drone-ip"),
		ListenIP:       v.GetString("listen-ip"),
		NavdataPort:    v.GetInt("navdata-port"),
		ControlPort:    v.GetInt("control-port"),
		ConfigPort:     v.GetInt("config-port"),
		Multicast:      v.GetString("multicast"),
		Interface:      v.GetString("iface"),
		Tick:           v.GetDuration("tick"),
		StrictChecksum: v.GetBool("strict-checksum"),
		MaxFrameBytes:  v.GetInt("max-frame-bytes"),
		LogLevel:       v.GetString("log-level"),
		RawLogDir:      v.GetString("raw-log-dir"),
		MetricsPort:    v.GetString("metrics-port"),
		APIAddr:        v.GetString("api-addr"),
		RedisAddr:      v.GetString("redis-addr"),
		RedisDB:        v.GetInt("redis-db"),
		RedisTTL:       v.GetDuration("redis-ttl"),
		GRPCServer:     v.GetString("grpc-server"),
		KafkaTopic:     v.GetString("kafka-topic"),
	}

	switch strings.ToLower(v.GetString("terminator")) {
	case "cr", "":
		c.Terminator = codec.TermCR
	case "lf":
		c.Terminator = codec.TermLF
	default:
		return c, fmt.Errorf("invalid terminator %q (expected cr or lf)", v.GetString("terminator"))
	}

	mode, ok := codec.ParseLengthMode(strings.ToLower(v.GetString("length-mode")))
	if !ok {
		return c, fmt.Errorf("invalid length-mode %q (expected words or bytes)", v.GetString("length-mode"))
	}
	c.LengthMode = mode

	if c.Tick <= 0 {
		return c, fmt.Errorf("tick must be positive, got %s", c.Tick)
	}
	if c.MaxFrameBytes <= 0 {
		return c, fmt.Errorf("max-frame-bytes must be positive, got %d", c.MaxFrameBytes)
	}
	if c.DroneIP == "" {
		return c, fmt.Errorf("drone-ip is required")
	}

	for _, b := range strings.Split(v.GetString("kafka-brokers"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			c.KafkaBrokers = append(c.KafkaBrokers, b)
		}
	}
	return c, nil
}
