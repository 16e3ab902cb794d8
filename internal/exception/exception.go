// https://github.com/kestrel-os/kestrel
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package exception

import (
	"runtime"
	"runtime/goos"
	"time"

	"golang.org/x/time/rate"
)

// maxFrames bounds the backtrace the same way a symtab/DWARF walker
// bounds a frame-pointer walk: far enough to show the fault, not so
// far it wanders into garbage stack.
const maxFrames = 16

// Frame is one resolved return address. Function, File and Line come
// from the running binary's own line table; Offset is the distance
// from the function's entry point, standing in for what a DWARF walk
// would report as (symbol, offset) on a hosted kernel with no runtime
// symbol table of its own.
type Frame struct {
	PC       uintptr
	Function string
	File     string
	Line     int
	Offset   uintptr
}

// depth is a single shared recursion counter, not a true per-CPU one:
// a fault on one core while another core is already unwinding will
// still see depth > 1 and halt immediately rather than recursing.
var depth int

// reportLimiter throttles how often a full backtrace is printed, so a
// tight faulting loop cannot flood the console; it never affects
// whether the exception is thrown, only how much gets printed about it.
var reportLimiter = rate.NewLimiter(rate.Every(200*time.Millisecond), 3)

// Capture resolves pc and the frames above it against the kernel
// binary's own line table.
func Capture(pc uintptr) []Frame {
	frames := make([]Frame, 0, maxFrames)

	if fn := runtime.FuncForPC(pc); fn != nil {
		file, line := fn.FileLine(pc)
		frames = append(frames, Frame{
			PC:       pc,
			Function: fn.Name(),
			File:     file,
			Line:     line,
			Offset:   pc - fn.Entry(),
		})
	}

	var pcs [maxFrames]uintptr
	n := runtime.Callers(2, pcs[:])
	cf := runtime.CallersFrames(pcs[:n])

	for len(frames) < maxFrames {
		f, more := cf.Next()
		if f.PC == 0 {
			break
		}
		frames = append(frames, Frame{
			PC:       f.PC,
			Function: f.Function,
			File:     f.File,
			Line:     f.Line,
			Offset:   f.PC - f.Entry,
		})
		if !more {
			break
		}
	}

	return frames
}

func print1(f Frame) {
	print("\t", f.File, ":", f.Line, " ", f.Function, " +0x")
	printHex(uint64(f.Offset))
	print("\n")
}

func printHex(v uint64) {
	const digits = "0123456789abcdef"
	if v == 0 {
		print("0")
		return
	}
	var buf [16]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = digits[v&0xf]
		v >>= 4
	}
	print(string(buf[i:]))
}

// Throw reports an unhandled exception at pc and panics, so the
// caller's task wrapper can recover and drop just that task. depth
// guards against a fault occurring while the backtrace itself is
// being captured or printed: a second, re-entrant Throw halts the CPU
// outright rather than risk looping.
func Throw(pc uintptr) {
	depth++
	defer func() { depth-- }()

	if depth > 1 {
		print("exception: recursive panic, halting\n")
		goos.Exit(1)
		return
	}

	frames := Capture(pc)

	if reportLimiter.Allow() {
		print("panic: unhandled exception\n")
		for _, f := range frames {
			print1(f)
		}
	} else {
		print("panic: unhandled exception (backtrace rate-limited)\n")
	}

	panic("unhandled exception")
}
