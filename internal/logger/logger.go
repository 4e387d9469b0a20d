// Package logger — единый вывод логов tcxo-sync с префиксом и учётом quiet/verbose.
package logger

import (
	"fmt"
	"io"
	"log"
	"strings"
)

const prefix = "tcxo-sync: "

// Quiet при true отключает информационные сообщения (Info); Error выводится всегда.
var Quiet bool

// Verbose включает отладочные сообщения (Debug).
var Verbose bool

// Info выводит сообщение с префиксом "tcxo-sync: ", если Quiet == false.
func Info(format string, args ...interface{}) {
	if Quiet {
		return
	}
	log.Printf(prefix+format, args...)
}

// Error выводит сообщение об ошибке с префиксом "tcxo-sync: " всегда.
func Error(format string, args ...interface{}) {
	log.Printf(prefix+format, args...)
}

// Debug — только при Verbose и не Quiet.
func Debug(format string, args ...interface{}) {
	if !Verbose || Quiet {
		return
	}
	log.Printf(prefix+format, args...)
}

// Table — построчная таблица фиксированной ширины (одна строка на цикл опроса).
type Table struct {
	W      io.Writer
	Widths []int
}

// Header печатает заголовок; ширина колонки не меньше длины названия.
func (t *Table) Header(names ...string) error {
	for i, n := range names {
		if i < len(t.Widths) && len(n) > t.Widths[i] {
			t.Widths[i] = len(n)
		}
	}
	return t.Row(names...)
}

// Row печатает строку; колонки выравниваются вправо.
func (t *Table) Row(cols ...string) error {
	var b strings.Builder
	for i, c := range cols {
		if i > 0 {
			b.WriteByte(' ')
		}
		w := 0
		if i < len(t.Widths) {
			w = t.Widths[i]
		}
		fmt.Fprintf(&b, "%*s", w, c)
	}
	b.WriteByte('\n')
	_, err := io.WriteString(t.W, b.String())
	return err
}
