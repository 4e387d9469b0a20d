// Package publish — публикация поправки TCXO в файл для внешнего потребителя (chrony/ntpd refclock).
package publish

import (
	"fmt"
	"os"
	"path/filepath"
)

// Пути по умолчанию
const (
	DefaultPath     = "/run/tcxo"
	DefaultTempPath = "/run/.tcxo"
)

// File — публикуемое значение: запись во временный файл и атомарное переименование.
type File struct {
	Path     string
	TempPath string // пусто — "."+имя в том же каталоге
}

func (f File) temp() string {
	if f.TempPath != "" {
		return f.TempPath
	}
	dir, name := filepath.Split(f.Path)
	return filepath.Join(dir, "."+name)
}

// Format — текстовое представление значения
func Format(ppm float64) string {
	return fmt.Sprintf("%1.3f\n", ppm)
}

// Write публикует ppm. Читатель Path видит либо старое, либо новое значение целиком.
func (f File) Write(ppm float64) error {
	tmp := f.temp()
	if err := os.WriteFile(tmp, []byte(Format(ppm)), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, f.Path); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmp, f.Path, err)
	}
	return nil
}
