package codec

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

const refBits uint32 = 1<<18 | 1<<20 | 1<<22 | 1<<24 | 1<<28

func TestRef(t *testing.T) {
	if RefConst != refBits {
		t.Fatalf("RefConst = %d, want %d", RefConst, refBits)
	}
	if got := RefFlags(0); got != refBits {
		t.Errorf("RefFlags(0) = %d", got)
	}
	if got := RefFlags(1 << 8); got != refBits|1<<8 {
		t.Errorf("RefFlags(1<<8) = %d", got)
	}
	// los bits del llamador nunca se limpian
	if got := RefFlags(0xFFFFFFFF); got != 0xFFFFFFFF {
		t.Errorf("RefFlags(all) = %#x", got)
	}
	if m := Ref(RefTakeoff); m.Name != CmdRef || m.Data != "290718208" {
		t.Errorf("Ref(takeoff) = %+v", m)
	}
}

func TestTemplates(t *testing.T) {
	tests := []struct {
		name string
		got  Message
		want Message
	}{
		{"anim", Anim(1, 2), Message{CmdAnim, "1,2"}},
		{"config", Config("test_option_name", "asdf"), Message{CmdConfig, `"test_option_name","asdf"`}},
		{"config ids", ConfigIDs("1", "2", "3"), Message{CmdConfigIDs, "1,2,3"}},
		{"ctrl", Ctrl(1, 2), Message{CmdCtrl, "1,2"}},
		{"led", Led(1, 0.5, 5), Message{CmdLed, "1,1056964608,5"}},
		{"led blink", Led(2, 3, 4), Message{CmdLed, "2,1077936128,4"}},
		{"ftrim", Ftrim(), Message{CmdFtrim, ""}},
		{"comwdg", Comwdg(), Message{CmdComwdg, ""}},
		{"pcmd", Pcmd(1, -0.9, -0.5, 0.2, 0.7), Message{CmdPcmd, "1,-1083808154,-1090519040,1045220557,1060320051"}},
		{"pcmd clamp", Pcmd(1, -1.9, -1.5, 1.2, 1.7), Message{CmdPcmd, "1,-1082130432,-1082130432,1065353216,1065353216"}},
		{"pcmd bounds", Pcmd(0, -1, 1, 0, 0), Message{CmdPcmd, "0,-1082130432,1065353216,0,0"}},
		{"pcmd hover", Pcmd(0, 0, 0, 0, 0), Message{CmdPcmd, "0,0,0,0,0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %+v, want %+v", tt.got, tt.want)
			}
		})
	}
}

func TestFormatCommand(t *testing.T) {
	if got := FormatCommand("AT*FAKE", 1, "", TermCR); got != "AT*FAKE=1,\r" {
		t.Errorf("got %q", got)
	}
	if got := FormatCommand("AT*FAKE", 2, `"name","value"`, TermCR); got != "AT*FAKE=2,\"name\",\"value\"\r" {
		t.Errorf("got %q", got)
	}
	if got := FormatCommand(CmdRef, 7, "290717696", TermLF); got != "AT*REF=7,290717696\n" {
		t.Errorf("got %q", got)
	}
}

func TestParseCommandRoundTrip(t *testing.T) {
	t.Run("ref", func(t *testing.T) {
		m := Ref(RefEmergency)
		cmd, err := ParseCommand(FormatCommand(m.Name, 42, m.Data, TermCR))
		if err != nil {
			t.Fatal(err)
		}
		flags, err := cmd.Uint(0)
		if err != nil || cmd.Name != CmdRef || cmd.Seq != 42 || flags != RefFlags(RefEmergency) {
			t.Errorf("got %+v flags=%d err=%v", cmd, flags, err)
		}
	})

	t.Run("pcmd", func(t *testing.T) {
		m := Pcmd(1, 0.5, -0.25, 1.7, -1)
		cmd, err := ParseCommand(FormatCommand(m.Name, 3, m.Data, TermCR))
		if err != nil {
			t.Fatal(err)
		}
		if cmd.Name != CmdPcmd || len(cmd.Args) != 5 {
			t.Fatalf("got %+v", cmd)
		}
		want := []float32{0.5, -0.25, 1, -1}
		for i, w := range want {
			f, err := cmd.Float(i + 1)
			if err != nil || f != w {
				t.Errorf("axis %d = %v (%v), want %v", i, f, err, w)
			}
		}
		if flags, _ := cmd.Int(0); flags != 1 {
			t.Errorf("flags = %d", flags)
		}
	})

	t.Run("config", func(t *testing.T) {
		m := Config("general:navdata_demo", "TRUE,with comma")
		line := FormatCommand(m.Name, 9, m.Data, TermLF)
		cmd, err := ParseCommand(line)
		if err != nil {
			t.Fatal(err)
		}
		want := []string{"general:navdata_demo", "TRUE,with comma"}
		if cmd.Name != CmdConfig || cmd.Seq != 9 || !reflect.DeepEqual(cmd.Args, want) {
			t.Errorf("got %+v", cmd)
		}
		if back := cmd.Format(TermLF); back != line {
			t.Errorf("Format() = %q, want %q", back, line)
		}
	})

	t.Run("config without escapes", func(t *testing.T) {
		m := Config("general:ardrone_name", `my\drone`)
		if m.Data != `"general:ardrone_name","my\drone"` {
			t.Fatalf("data = %s", m.Data)
		}
		line := FormatCommand(m.Name, 3, m.Data, TermCR)
		cmd, err := ParseCommand(line)
		if err != nil {
			t.Fatal(err)
		}
		if len(cmd.Args) != 2 || cmd.Args[1] != `my\drone` {
			t.Errorf("args = %q", cmd.Args)
		}
		if back := cmd.Format(TermCR); back != line {
			t.Errorf("Format() = %q, want %q", back, line)
		}
	})

	t.Run("ctrl", func(t *testing.T) {
		m := Ctrl(4, 0)
		cmd, err := ParseCommand(FormatCommand(m.Name, 11, m.Data, TermCR))
		if err != nil {
			t.Fatal(err)
		}
		mode, _ := cmd.Int(0)
		reserved, _ := cmd.Int(1)
		if cmd.Name != CmdCtrl || mode != 4 || reserved != 0 || !cmd.Known() {
			t.Errorf("got %+v", cmd)
		}
	})

	t.Run("no data", func(t *testing.T) {
		cmd, err := ParseCommand("AT*FTRIM=5,\r")
		if err != nil {
			t.Fatal(err)
		}
		if cmd.Name != CmdFtrim || cmd.Seq != 5 || len(cmd.Args) != 0 {
			t.Errorf("got %+v", cmd)
		}
	})
}

func TestParseCommandErrors(t *testing.T) {
	bad := []string{"", "AT*REF", "REF=1,2", "AT*=1", "AT*REF=x,1", `AT*CONFIG=1,"open`}
	for _, line := range bad {
		if _, err := ParseCommand(line); !errors.Is(err, ErrBadCommand) {
			t.Errorf("ParseCommand(%q) err = %v", line, err)
		}
	}
	cmd, _ := ParseCommand("AT*REF=1,abc")
	if _, err := cmd.Int(0); !errors.Is(err, ErrBadCommand) {
		t.Errorf("Int() err = %v", err)
	}
	if _, err := cmd.Int(3); !errors.Is(err, ErrBadCommand) {
		t.Errorf("Int(3) err = %v", err)
	}
}

func TestSplitDatagram(t *testing.T) {
	got := SplitDatagram([]byte("AT*REF=1,290717696\rAT*PCMD=2,0,0,0,0,0\r\nAT*COMWDG=3,\n\r"))
	want := []string{"AT*REF=1,290717696", "AT*PCMD=2,0,0,0,0,0", "AT*COMWDG=3,"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %q", got)
	}
}

func FuzzParseCommand(f *testing.F) {
	f.Add("AT*REF=1,290717696\r")
	f.Add(`AT*CONFIG=3,"general:navdata_demo","TRUE"`)
	f.Add("AT*FTRIM=5,")
	f.Add(`AT*CONFIG=1,"open`)
	f.Add("=")

	f.Fuzz(func(t *testing.T, line string) {
		cmd, err := ParseCommand(line)
		if err != nil {
			if !errors.Is(err, ErrBadCommand) {
				t.Fatalf("err = %v, want ErrBadCommand", err)
			}
			return
		}
		if !strings.HasPrefix(cmd.Name, "AT*") {
			t.Fatalf("name = %q", cmd.Name)
		}
		for i := range cmd.Args {
			_, _ = cmd.Int(i)
		}
		_ = cmd.Format(TermCR)
	})
}
