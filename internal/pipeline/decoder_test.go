package pipeline

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"ardrone-svr/internal/codec"
	"ardrone-svr/internal/codec/navflags"
	"ardrone-svr/internal/observability"
)

var bootupPacket = []byte("\x88wfUT\b\xCA\xCF\x01\x00\x00\x00\x00\x00\x00\x00\xFF\xFF\b\x00\xB0\x03\x00\x00")

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestStateChanges(t *testing.T) {
	tests := []struct {
		name     string
		old, cur uint32
		want     []string
	}{
		{"none", 0xFF, 0xFF, nil},
		// en la tabla del firmware el bit 9 es trim_result; flying es el bit 0
		{"bit 9 is trim_result not flying", 0, 1 << 9, []string{"trim_result is now 1"}},
		{"landing", 1, 0, []string{"flying is now 0"}},
		{"ascending order", 1 << 31, 1<<0 | 1<<13, []string{
			"flying is now 1", "com_lost is now 1", "emergency is now 0",
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StateChanges(tt.old, tt.cur); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("StateChanges = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodeDoesNotWaitForSinks(t *testing.T) {
	slow := &blockingSink{}
	p := NewProcessor("sess-2", quietLogger(), slow)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	d := NewDecoder(DecoderConfig{}, quietLogger())
	d.Subscribe(p.Observer())

	dropped := testutil.ToFloat64(observability.SnapshotsDropped)
	start := time.Now()
	for i := 0; i < DefaultBacklog+10; i++ {
		if _, err := d.Decode(codec.EncodeNavdata(1, uint32(i), nil, codec.LengthWords)); err != nil {
			t.Fatal(err)
		}
	}
	if el := time.Since(start); el > time.Second {
		t.Errorf("decoding took %s with a stuck sink", el)
	}
	if p.Last() == nil || p.Last().Sequence != DefaultBacklog+9 {
		t.Errorf("last = %+v", p.Last())
	}
	if testutil.ToFloat64(observability.SnapshotsDropped)-dropped < 1 {
		t.Error("overflow not counted as dropped")
	}
}

func TestDecodeBootstrap(t *testing.T) {
	d := NewDecoder(DecoderConfig{LengthMode: codec.LengthBytesInclusive}, quietLogger())
	if d.Phase() != AwaitingFrame {
		t.Fatal("initial phase")
	}
	if _, err := d.Decode(bootupPacket); err != nil {
		t.Fatal(err)
	}
	if d.Phase() != HaveState {
		t.Error("phase not advanced")
	}
	if !d.IsInBootstrap() {
		t.Error("IsInBootstrap = false right after boot-up packet")
	}
	if d.IsFlying() {
		t.Error("boot-up packet reports flying")
	}
}

func TestDecodeFlyingTransition(t *testing.T) {
	d := NewDecoder(DecoderConfig{}, quietLogger())

	var seen []Update
	d.Subscribe(func(u Update) { seen = append(seen, u) })

	if _, err := d.Decode(codec.EncodeNavdata(0, 1, nil, codec.LengthWords)); err != nil {
		t.Fatal(err)
	}
	u, err := d.Decode(codec.EncodeNavdata(navflags.Mask(navflags.Flying)|navflags.Mask(navflags.Altitude), 2, nil, codec.LengthWords))
	if err != nil {
		t.Fatal(err)
	}
	if !d.IsFlying() || !d.IsAltitudeLimited() || d.IsCommunicationsLost() {
		t.Errorf("predicates wrong for state %#x", d.State())
	}
	want := []string{"flying is now 1", "altitude is now 1"}
	if !reflect.DeepEqual(u.Changes, want) {
		t.Errorf("changes = %q", u.Changes)
	}
	if len(seen) != 2 || seen[1].Old != 0 || seen[1].New != 0x11 {
		t.Errorf("observer updates = %+v", seen)
	}
}

func TestDecodeRejectedFrameKeepsState(t *testing.T) {
	d := NewDecoder(DecoderConfig{}, quietLogger())
	if _, err := d.Decode(codec.EncodeNavdata(1<<navflags.ComLost, 1, nil, codec.LengthWords)); err != nil {
		t.Fatal(err)
	}

	zero := make([]byte, 20)
	binary.LittleEndian.PutUint32(zero[0:4], codec.NavdataHeaderTag)
	binary.LittleEndian.PutUint32(zero[4:8], 0xFFFFFFFF)

	before := testutil.ToFloat64(observability.DecodeErrors.WithLabelValues("zero_length_option"))
	if _, err := d.Decode(zero); !errors.Is(err, codec.ErrZeroLengthOption) {
		t.Fatalf("err = %v", err)
	}
	if _, err := d.Decode([]byte{1, 2, 3}); !errors.Is(err, codec.ErrMalformedFrame) {
		t.Fatalf("err = %v", err)
	}
	if d.State() != 1<<navflags.ComLost || !d.IsCommunicationsLost() {
		t.Errorf("state = %#x after rejected frames", d.State())
	}
	if d.Phase() != HaveState {
		t.Error("phase reverted")
	}
	if got := testutil.ToFloat64(observability.DecodeErrors.WithLabelValues("zero_length_option")); got != before+1 {
		t.Errorf("zero_length_option counter = %v, want %v", got, before+1)
	}
}

func TestDecodeChecksumPolicy(t *testing.T) {
	bad := codec.EncodeNavdata(1, 7, nil, codec.LengthWords)
	bad[len(bad)-1] ^= 0xFF

	t.Run("advisory", func(t *testing.T) {
		d := NewDecoder(DecoderConfig{}, quietLogger())
		u, err := d.Decode(bad)
		if err != nil {
			t.Fatalf("advisory mode returned %v", err)
		}
		if !errors.Is(u.Checksum, codec.ErrChecksumMismatch) || d.State() != 1 {
			t.Errorf("checksum=%v state=%#x", u.Checksum, d.State())
		}
	})
	t.Run("strict", func(t *testing.T) {
		d := NewDecoder(DecoderConfig{StrictChecksum: true}, quietLogger())
		if _, err := d.Decode(bad); !errors.Is(err, codec.ErrChecksumMismatch) {
			t.Fatalf("err = %v", err)
		}
		if d.Phase() != AwaitingFrame || d.State() != 0 {
			t.Error("strict mode applied a bad frame")
		}
	})
}

func TestDecodeDemoOption(t *testing.T) {
	demo := make([]byte, 36)
	binary.LittleEndian.PutUint32(demo[4:8], 64)
	raw := codec.EncodeNavdata(0, 3, []codec.Option{{ID: codec.OptionDemo, Payload: demo}}, codec.LengthWords)

	d := NewDecoder(DecoderConfig{}, quietLogger())
	u, err := d.Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if u.Demo == nil || u.Demo.BatteryPct != 64 {
		t.Errorf("demo = %+v", u.Demo)
	}
}

type recordSink struct {
	name string
	err  error
	got  chan *Snapshot
}

func newRecordSink(name string, err error) *recordSink {
	return &recordSink{name: name, err: err, got: make(chan *Snapshot, 8)}
}

func (s *recordSink) Name() string { return s.name }

func (s *recordSink) Publish(_ context.Context, snap *Snapshot) error {
	s.got <- snap
	return s.err
}

func (s *recordSink) next(t *testing.T) *Snapshot {
	t.Helper()
	select {
	case snap := <-s.got:
		return snap
	case <-time.After(3 * time.Second):
		t.Fatalf("sink %s got nothing", s.name)
		return nil
	}
}

// blockingSink no vuelve hasta que se cancela su contexto.
type blockingSink struct{ calls atomic.Int32 }

func (s *blockingSink) Name() string { return "blocking" }

func (s *blockingSink) Publish(ctx context.Context, _ *Snapshot) error {
	s.calls.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func TestProcessorFanOut(t *testing.T) {
	ok := newRecordSink("ok", nil)
	failing := newRecordSink("failing", errors.New("down"))
	p := NewProcessor("sess-1", quietLogger(), failing, ok)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	d := NewDecoder(DecoderConfig{}, quietLogger())
	d.Subscribe(p.Observer())

	if _, err := d.Decode(codec.EncodeNavdata(1, 42, nil, codec.LengthWords)); err != nil {
		t.Fatal(err)
	}
	if p.Last() == nil {
		t.Fatal("last snapshot not recorded synchronously")
	}
	failing.next(t)
	snap := ok.next(t)
	if snap.SessionID != "sess-1" || snap.Sequence != 42 || !snap.Flying || snap.Flags["flying"] != 1 {
		t.Errorf("snapshot = %+v", snap)
	}
	if snap.Checksum != "ok" || p.Last() != snap {
		t.Error("last snapshot not recorded")
	}
	deadline := time.Now().Add(3 * time.Second)
	for testutil.ToFloat64(observability.SinkErrors.WithLabelValues("failing")) < 1 {
		if time.Now().After(deadline) {
			t.Fatal("sink error not counted")
		}
		time.Sleep(5 * time.Millisecond)
	}

	f := snap.Fields()
	if f["seq"] != uint32(42) || f["flying"] != true {
		t.Errorf("fields = %v", f)
	}
}
