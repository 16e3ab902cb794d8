// AMD64 processor support
// https://github.com/kestrel-os/kestrel
//
// Copyright (c) The TamaGo Authors. All Rights Reserved.
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package amd64

import (
	"github.com/kestrel-os/kestrel/amd64/idt"
	"github.com/kestrel-os/kestrel/internal/exception"
)

var (
	isr uintptr
	eip uintptr
)

func currentVectorNumber() (id int) {
	id = int(isr - irqHandlerAddr)

	if id >= 0 {
		id = id / callSize
	}

	return
}

// DefaultExceptionHandler dispatches a CPU exception (vectors 0-31) to
// whichever fixed handler was installed via idt.setFixed (page fault,
// double fault, general protection, ...). Vectors with no fixed
// handler fall through to the unwinder via exception.Throw, matching
// the teacher's print-then-throw behavior; a fixed handler that panics
// propagates its panic out of this function without reaching Throw.
func DefaultExceptionHandler() {
	vector := currentVectorNumber()

	if idt.Dispatch(vector) {
		return
	}

	// No fixed handler claimed this vector: this is an unrecoverable
	// exception.
	// exception.Throw carries its own recursion guard against a fault
	// occurring while it is still unwinding the previous one.
	print("exception: vector ", vector, " \n")
	exception.Throw(eip)
}

// SystemExceptionHandler holds the processor exception handler, initialized
// to DefaultExceptionHandler.
var SystemExceptionHandler = DefaultExceptionHandler

// EnableExceptions initializes handling of processor exceptions through
// DefaultExceptionHandler().
func (cpu *CPU) EnableExceptions() {
	// processor exceptions
	setIDT(0, 31)
}
