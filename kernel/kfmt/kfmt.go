// Package kfmt provides formatted output primitives that are safe to call
// from any kernel memory-management context. Output emitted before an output
// sink has been registered is captured by a ring buffer and replayed once a
// sink becomes available.
package kfmt

import "io"

var (
	// earlyBuffer captures Printf output generated before a call to
	// SetOutputSink registers a real output target.
	earlyBuffer ringBuffer

	// sink points to the io.Writer where Printf sends its output. While
	// nil, output is redirected to earlyBuffer.
	sink io.Writer

	trueBytes    = []byte("true")
	falseBytes   = []byte("false")
	errNoVerb    = []byte("%!(NOVERB)")
	errNoArg     = []byte("%!(MISSING)")
	errWrongType = []byte("%!(WRONGTYPE)")
)

// SetOutputSink sets the target for Printf calls to w and replays any output
// that accumulated in the early ring buffer. Passing nil reverts Printf to
// early-buffer mode.
func SetOutputSink(w io.Writer) {
	sink = w
	if w != nil {
		io.Copy(w, &earlyBuffer)
	}
}

// Printf formats its arguments and writes the result to the registered
// output sink or, if no sink is registered yet, to the early ring buffer.
//
// The implementation supports a subset of the fmt.Printf verbs:
//
//	%s  string or []byte contents
//	%d  integers, base 10
//	%x  integers, base 16 with lower-case digits
//	%t  booleans
//
// An optional decimal width may precede the verb. Values narrower than the
// width are left-padded: with zeroes for %x and with spaces otherwise.
func Printf(format string, args ...interface{}) {
	w := sink
	if w == nil {
		w = &earlyBuffer
	}
	Fprintf(w, format, args...)
}

// Fprintf behaves exactly like Printf but writes the formatted output to the
// supplied io.Writer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		nextArg int
		start   int
	)

	for i := 0; i < len(format); {
		if format[i] != '%' {
			i++
			continue
		}

		if start < i {
			writeBytes(w, []byte(format[start:i]))
		}

		// scan optional width followed by the verb
		i++
		width := 0
		for ; i < len(format) && format[i] >= '0' && format[i] <= '9'; i++ {
			width = width*10 + int(format[i]-'0')
		}

		if i == len(format) {
			writeBytes(w, errNoVerb)
			return
		}

		verb := format[i]
		i++
		start = i

		if verb == '%' {
			writeBytes(w, []byte{'%'})
			continue
		}

		if nextArg >= len(args) {
			writeBytes(w, errNoArg)
			continue
		}

		arg := args[nextArg]
		nextArg++

		switch verb {
		case 's':
			writeStringArg(w, arg, width)
		case 'd':
			writeIntArg(w, arg, 10, width)
		case 'x':
			writeIntArg(w, arg, 16, width)
		case 't':
			if b, ok := arg.(bool); ok {
				if b {
					writeBytes(w, trueBytes)
				} else {
					writeBytes(w, falseBytes)
				}
			} else {
				writeBytes(w, errWrongType)
			}
		default:
			writeBytes(w, errNoVerb)
		}
	}

	if start < len(format) {
		writeBytes(w, []byte(format[start:]))
	}
}

func writeBytes(w io.Writer, p []byte) {
	w.Write(p)
}

func writeStringArg(w io.Writer, arg interface{}, width int) {
	var p []byte
	switch v := arg.(type) {
	case string:
		p = []byte(v)
	case []byte:
		p = v
	default:
		writeBytes(w, errWrongType)
		return
	}

	pad(w, width-len(p), ' ')
	writeBytes(w, p)
}

func writeIntArg(w io.Writer, arg interface{}, base, width int) {
	var (
		v        uint64
		negative bool
	)

	switch val := arg.(type) {
	case int:
		v, negative = absolute(int64(val))
	case int8:
		v, negative = absolute(int64(val))
	case int16:
		v, negative = absolute(int64(val))
	case int32:
		v, negative = absolute(int64(val))
	case int64:
		v, negative = absolute(val)
	case uint:
		v = uint64(val)
	case uint8:
		v = uint64(val)
	case uint16:
		v = uint64(val)
	case uint32:
		v = uint64(val)
	case uint64:
		v = val
	case uintptr:
		v = uint64(val)
	default:
		writeBytes(w, errWrongType)
		return
	}

	// 20 digits cover a 64-bit value in base 10
	var buf [20]byte
	i := len(buf)
	for {
		i--
		d := byte(v % uint64(base))
		if d < 10 {
			buf[i] = '0' + d
		} else {
			buf[i] = 'a' + d - 10
		}
		v /= uint64(base)
		if v == 0 {
			break
		}
	}

	digits := len(buf) - i
	if negative {
		digits++
	}

	if base == 16 {
		if negative {
			writeBytes(w, []byte{'-'})
		}
		pad(w, width-digits, '0')
	} else {
		pad(w, width-digits, ' ')
		if negative {
			writeBytes(w, []byte{'-'})
		}
	}
	writeBytes(w, buf[i:])
}

func absolute(v int64) (uint64, bool) {
	if v < 0 {
		return uint64(-v), true
	}
	return uint64(v), false
}

func pad(w io.Writer, count int, b byte) {
	for ; count > 0; count-- {
		writeBytes(w, []byte{b})
	}
}
