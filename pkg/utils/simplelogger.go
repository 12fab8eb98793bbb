// Package utils предоставляет простой файловый логгер и мелкие хелперы.
//
// Логгер пишет в .log файл рядом с бинарником; формат — строка
// уровня плюс плоские key=value пары. Потокобезопасен.
package utils

import (
	"fmt"
	"os"
	"sync"
	"time"
)

var (
	logFile     *os.File
	logMutex    sync.Mutex
	initialized bool
)

// InitLogger открывает лог-файл opsdesk-YYYY-MM-DD-HH-MM.log
// в текущей директории. Повторный вызов — no-op.
func InitLogger() error {
	logMutex.Lock()
	defer logMutex.Unlock()

	if initialized {
		return nil
	}

	filename := fmt.Sprintf("opsdesk-%s.log", time.Now().Format("2006-01-02-15-04"))

	var err error
	logFile, err = os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	initialized = true

	// Мьютекс уже захвачен, поэтому не через Info
	writeLine(fmt.Sprintf("[%s] INFO: Logger initialized file=%s\n",
		time.Now().Format("2006-01-02 15:04:05"), filename))
	return nil
}

// Info - информационное сообщение.
func Info(msg string, keyvals ...any) {
	log("INFO", msg, keyvals...)
}

// Error - сообщение об ошибке.
func Error(msg string, keyvals ...any) {
	log("ERROR", msg, keyvals...)
}

// Debug - отладочное сообщение.
func Debug(msg string, keyvals ...any) {
	log("DEBUG", msg, keyvals...)
}

// Warn - предупреждение.
func Warn(msg string, keyvals ...any) {
	log("WARN", msg, keyvals...)
}

// log собирает строку формата
// [YYYY-MM-DD HH:MM:SS] LEVEL: message key1=value1 key2=value2
// и пишет её под мьютексом. Непарный последний keyval молча отбрасывается.
func log(level, msg string, keyvals ...any) {
	logMutex.Lock()
	defer logMutex.Unlock()

	if logFile == nil {
		return
	}

	line := fmt.Sprintf("[%s] %s: %s", time.Now().Format("2006-01-02 15:04:05"), level, msg)
	for i := 0; i+1 < len(keyvals); i += 2 {
		line += fmt.Sprintf(" %v=%v", keyvals[i], keyvals[i+1])
	}
	writeLine(line + "\n")
}

// writeLine пишет готовую строку в файл; при недоступном файле
// падает обратно на stderr. Вызывается только под logMutex.
func writeLine(line string) {
	if _, err := logFile.WriteString(line); err != nil {
		fmt.Fprintf(os.Stderr, "%s", line)
		fmt.Fprintf(os.Stderr, "[LOGGER ERROR: WriteString failed: %v]\n", err)
		return
	}
	if err := logFile.Sync(); err != nil {
		fmt.Fprintf(os.Stderr, "[LOGGER WARNING: Sync failed: %v]\n", err)
	}
}

// Close закрывает лог-файл. Вызывается через defer в main().
func Close() {
	logMutex.Lock()
	defer logMutex.Unlock()

	if logFile != nil {
		if err := logFile.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "[LOGGER WARNING: Close failed: %v]\n", err)
		}
		logFile = nil
	}
}
