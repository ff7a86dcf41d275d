package replay

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"ardrone-svr/internal/codec"
	"ardrone-svr/internal/pipeline"
)

type Kind string

const (
	KindNavdata Kind = "navdata"
	KindCommand Kind = "command"
)

// Event es un elemento reconocido dentro de la captura.
type Event struct {
	Time    time.Time
	Kind    Kind
	Command *codec.ATCommand
	Raw     string
	Update  *pipeline.Update
	Err     error
}

type Options struct {
	DroneIP     string // "192.168.1.1"
	NavdataPort uint16 // 5554
	ControlPort uint16 // 5556
}

func (o Options) withDefaults() Options {
	if o.DroneIP == "" {
		o.DroneIP = "192.168.1.1"
	}
	if o.NavdataPort == 0 {
		o.NavdataPort = 5554
	}
	if o.ControlPort == 0 {
		o.ControlPort = 5556
	}
	return o
}

type Stats struct {
	Packets  int `json:"packets"`
	Navdata  int `json:"navdata"`
	Commands int `json:"commands"`
	Errors   int `json:"errors"`
}

// Trace recorre una captura pcap: la navdata que sale del dron pasa por dec
// y los datagramas hacia el puerto de control se separan y parsean.
func Trace(r io.Reader, opts Options, dec *pipeline.Decoder, fn func(Event)) (Stats, error) {
	opts = opts.withDefaults()
	drone := net.ParseIP(opts.DroneIP)
	if drone == nil {
		return Stats{}, fmt.Errorf("invalid drone ip %q", opts.DroneIP)
	}

	pr, err := pcapgo.NewReader(r)
	if err != nil {
		return Stats{}, fmt.Errorf("opening capture: %w", err)
	}

	var st Stats
	src := gopacket.NewPacketSource(pr, pr.LinkType())
	for {
		pkt, err := src.NextPacket()
		if errors.Is(err, io.EOF) {
			return st, nil
		}
		if err != nil {
			return st, fmt.Errorf("reading capture: %w", err)
		}
		st.Packets++

		ip, _ := pkt.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		udp, _ := pkt.Layer(layers.LayerTypeUDP).(*layers.UDP)
		if ip == nil || udp == nil {
			continue
		}
		at := pkt.Metadata().Timestamp

		switch {
		case ip.SrcIP.Equal(drone) && uint16(udp.SrcPort) == opts.NavdataPort:
			st.Navdata++
			u, derr := dec.Decode(udp.Payload)
			ev := Event{Time: at, Kind: KindNavdata, Err: derr}
			if derr != nil {
				st.Errors++
			} else {
				ev.Update = &u
			}
			fn(ev)

		case ip.DstIP.Equal(drone) && uint16(udp.DstPort) == opts.ControlPort:
			for _, line := range codec.SplitDatagram(udp.Payload) {
				st.Commands++
				cmd, perr := codec.ParseCommand(line)
				ev := Event{Time: at, Kind: KindCommand, Raw: line, Err: perr}
				if perr != nil {
					st.Errors++
				} else {
					ev.Command = &cmd
				}
				fn(ev)
			}
		}
	}
}
