// Package nlog is this module's logger: buffered, timestamped, with
// size-based rotation, grounded on the role the teacher's cmn/nlog package
// plays (an ambient logging facility every other package calls into,
// rather than the stdlib "log" package).
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/vecstore/vecstore/cmn/mono"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

var sevChar = [...]byte{'I', 'W', 'E'}

// MaxSize triggers rotation once a log file has grown past it.
var MaxSize int64 = 64 * 1024 * 1024

var (
	toStderr     bool
	alsoToStderr bool
	logDir       string
	title        string

	mu       sync.Mutex
	file     *os.File
	w        *bufio.Writer
	written  int64
	lastSevEmit [3]int64 // mono.NanoTime of the last emitted line per severity
)

func InitFlags(flset *flag.FlagSet) {
	flset.BoolVar(&toStderr, "logtostderr", false, "log to standard error instead of files")
	flset.BoolVar(&alsoToStderr, "alsologtostderr", false, "log to standard error as well as files")
	flset.StringVar(&logDir, "log_dir", "", "directory to write log files (empty: current directory)")
}

func SetLogDirRole(dir, _ string) { logDir = dir }
func SetTitle(s string)           { title = s }

func InfoDepth(depth int, args ...any)    { emit(sevInfo, depth+1, "", args...) }
func Infoln(args ...any)                  { emit(sevInfo, 1, "", args...) }
func Infof(format string, args ...any)    { emit(sevInfo, 1, format, args...) }
func Warningln(args ...any)               { emit(sevWarn, 1, "", args...) }
func Warningf(format string, args ...any) { emit(sevWarn, 1, format, args...) }
func ErrorDepth(depth int, args ...any)   { emit(sevErr, depth+1, "", args...) }
func Errorln(args ...any)                 { emit(sevErr, 1, "", args...) }
func Errorf(format string, args ...any)   { emit(sevErr, 1, format, args...) }

func emit(sev severity, depth int, format string, args ...any) {
	line := formatLine(sev, depth+1, format, args...)

	if toStderr || alsoToStderr || sev >= sevWarn {
		os.Stderr.WriteString(line)
	}
	if toStderr {
		return
	}

	mu.Lock()
	defer mu.Unlock()
	lastSevEmit[sev] = mono.NanoTime()
	ensureFileLocked()
	if w == nil {
		return
	}
	w.WriteString(line)
	written += int64(len(line))
	if written >= MaxSize {
		rotateLocked()
	}
}

func formatLine(sev severity, depth int, format string, args ...any) string {
	var b strings.Builder
	b.WriteByte(sevChar[sev])
	b.WriteByte(' ')
	b.WriteString(time.Now().Format("15:04:05.000000"))
	b.WriteByte(' ')
	if _, fn, ln, ok := runtime.Caller(depth + 1); ok {
		if idx := strings.LastIndexByte(fn, filepath.Separator); idx >= 0 {
			fn = fn[idx+1:]
		}
		fmt.Fprintf(&b, "%s:%d ", fn, ln)
	}
	if format == "" {
		fmt.Fprintln(&b, args...)
	} else {
		fmt.Fprintf(&b, format, args...)
		if !strings.HasSuffix(format, "\n") {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// under mu
func ensureFileLocked() {
	if file != nil {
		return
	}
	name := filepath.Join(logDir, sname()+".log")
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		os.Stderr.WriteString("nlog: " + err.Error() + "\n")
		return
	}
	file = f
	w = bufio.NewWriterSize(f, 32*1024)
	written = 0
	if title != "" {
		w.WriteString(title + "\n")
	}
}

// under mu
func rotateLocked() {
	if w != nil {
		w.Flush()
	}
	if file != nil {
		file.Close()
	}
	file = nil
	w = nil
	ensureFileLocked()
}

func sname() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("vecstore.%s.%d", host, os.Getpid())
}

func InfoLogName() string { return sname() + ".log" }
func ErrLogName() string  { return sname() + ".log" }

// Flush writes buffered lines to disk; pass true to also close and sync
// on process exit.
func Flush(exit ...bool) {
	mu.Lock()
	defer mu.Unlock()
	if w != nil {
		w.Flush()
	}
	if len(exit) > 0 && exit[0] && file != nil {
		file.Sync()
		file.Close()
		file = nil
		w = nil
	}
}

// Since returns how long it has been since the most recent line of any
// severity was emitted — used by the housekeeper-style periodic flush.
func Since() time.Duration {
	mu.Lock()
	defer mu.Unlock()
	var latest int64
	for _, t := range lastSevEmit {
		if t > latest {
			latest = t
		}
	}
	return mono.Since(latest)
}
