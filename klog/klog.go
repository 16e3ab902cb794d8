// Kestrel kernel
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package klog implements minimal leveled logging over the kernel serial
// console, in place of the `print`/`println` builtins used for one-off
// diagnostics elsewhere in the tree. It never allocates on the hot path
// above Info, since some call sites (interrupt handlers, panic) cannot
// rely on the heap.
package klog

import "sync"

// Level orders log severities from most to least verbose.
type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
)

func (l Level) String() string {
	switch l {
	case Debug:
		return "DEBUG"
	case Info:
		return "INFO"
	case Warn:
		return "WARN"
	case Error:
		return "ERROR"
	default:
		return "?"
	}
}

// Writer is the minimal sink klog writes bytes to; the serial UART driver
// satisfies this via its own Write method.
type Writer interface {
	Write(p []byte) (n int, err error)
}

var (
	mu     sync.Mutex
	sink   Writer
	filter = Info
)

// SetOutput directs log output to w. Called once during board init after
// the serial console is ready; before that, log calls are dropped.
func SetOutput(w Writer) {
	mu.Lock()
	sink = w
	mu.Unlock()
}

// SetLevel sets the minimum level that reaches the sink.
func SetLevel(l Level) {
	mu.Lock()
	filter = l
	mu.Unlock()
}

// KV is a single structured key=value pair appended to a log line.
type KV struct {
	Key string
	Val string
}

// F builds a KV pair; short name so call sites stay on one line.
func F(key, val string) KV { return KV{Key: key, Val: val} }

func write(l Level, subsystem, msg string, kvs []KV) {
	mu.Lock()
	defer mu.Unlock()

	if l < filter || sink == nil {
		return
	}

	buf := make([]byte, 0, 128)
	buf = append(buf, '[')
	buf = append(buf, l.String()...)
	buf = append(buf, "] "...)
	buf = append(buf, subsystem...)
	buf = append(buf, ": "...)
	buf = append(buf, msg...)

	for _, kv := range kvs {
		buf = append(buf, ' ')
		buf = append(buf, kv.Key...)
		buf = append(buf, '=')
		buf = append(buf, kv.Val...)
	}

	buf = append(buf, '\n')
	sink.Write(buf)
}

func Debugf(subsystem, msg string, kvs ...KV) { write(Debug, subsystem, msg, kvs) }
func Infof(subsystem, msg string, kvs ...KV)  { write(Info, subsystem, msg, kvs) }
func Warnf(subsystem, msg string, kvs ...KV)  { write(Warn, subsystem, msg, kvs) }
func Errorf(subsystem, msg string, kvs ...KV) { write(Error, subsystem, msg, kvs) }
