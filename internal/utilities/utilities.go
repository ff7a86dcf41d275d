package utilities

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// CreateLog agrega una línea al archivo diario {dir}/{prefix}_AAAAMMDD.log.
// Con dir vacío no hace nada.
func CreateLog(dir, prefix, message string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creando carpeta de logs: %w", err)
	}

	now := time.Now()
	filename := filepath.Join(dir, prefix+"_"+now.Format("20060102")+".log")
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("abriendo log: %w", err)
	}
	defer f.Close()

	line := now.Format("15:04:05.000") + " - " + message + "\n"
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("escribiendo log: %w", err)
	}
	return nil
}

// CreateRawLog guarda un datagrama binario en hex junto a su origen.
func CreateRawLog(dir, prefix, src string, data []byte) error {
	return CreateLog(dir, prefix, src+" "+hex.EncodeToString(data))
}

// Printable reemplaza los terminadores para que un datagrama AT quepa en una línea.
func Printable(s string) string {
	return strings.NewReplacer("\r", `\r`, "\n", `\n`).Replace(s)
}
