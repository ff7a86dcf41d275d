package utilities

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestCreateLog(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	if err := CreateLog(dir, "NAVDATA", "first"); err != nil {
		t.Fatal(err)
	}
	if err := CreateRawLog(dir, "NAVDATA", "192.168.1.1:5554", []byte{0x88, 0x77}); err != nil {
		t.Fatal(err)
	}

	name := filepath.Join(dir, "NAVDATA_"+time.Now().Format("20060102")+".log")
	b, err := os.ReadFile(name)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %q", lines)
	}
	if !strings.HasSuffix(lines[0], " - first") || !strings.HasSuffix(lines[1], "192.168.1.1:5554 8877") {
		t.Errorf("content = %q", lines)
	}
}

func TestCreateLogDisabled(t *testing.T) {
	if err := CreateLog("", "X", "ignored"); err != nil {
		t.Error(err)
	}
}

func TestPrintable(t *testing.T) {
	if got := Printable("AT*REF=1,0\rAT*FTRIM=2,\n"); got != `AT*REF=1,0\rAT*FTRIM=2,\n` {
		t.Errorf("Printable = %q", got)
	}
}
