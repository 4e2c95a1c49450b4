/*
Copyright 2025 YANDEX LLC.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package proc

import (
	"golang.org/x/sys/unix"
)

const rawLineSize = 256

// RawWriter writes single lines straight to a file descriptor with write(2).
// Nothing is buffered and each line is assembled in a fixed-size array, so it
// stays usable on the forced-exit path where the structured logger may not
// get a chance to flush.
type RawWriter struct {
	fd     int
	prefix string
}

func NewRawWriter(fd int, prefix string) *RawWriter {
	return &RawWriter{fd: fd, prefix: prefix}
}

// Line writes prefix, msg and a newline. Lines longer than the internal
// buffer are truncated.
func (w *RawWriter) Line(msg string) {
	var buf [rawLineSize]byte
	n := copy(buf[:], w.prefix)
	n += copy(buf[n:], msg)
	w.flush(buf[:], n)
}

// LineNum writes prefix, msg, the decimal value of num and a newline.
func (w *RawWriter) LineNum(msg string, num uint64) {
	var buf [rawLineSize]byte
	n := copy(buf[:], w.prefix)
	n += copy(buf[n:], msg)
	n += putUint(buf[n:], num)
	w.flush(buf[:], n)
}

func (w *RawWriter) flush(buf []byte, n int) {
	if n >= len(buf) {
		n = len(buf) - 1
	}
	buf[n] = '\n'
	// Errors are deliberately dropped: there is nowhere left to report them.
	_, _ = unix.Write(w.fd, buf[:n+1])
}

// putUint writes the decimal digits of num into dst and returns the number
// of bytes written. Digits that do not fit are dropped from the right.
func putUint(dst []byte, num uint64) int {
	var digits [20]byte
	i := len(digits)
	for {
		i--
		digits[i] = byte('0' + num%10)
		num /= 10
		if num == 0 {
			break
		}
	}
	return copy(dst, digits[i:])
}
