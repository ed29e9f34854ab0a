// Copyright (C) 2020 Markus L. Noga
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package logging

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sync"
)

// A log writer. Writes to the console, and optionally to a file.
// Does not add prefixes, or force newlines. Safe for concurrent use.
type Log struct {
	mutex   sync.Mutex
	console io.Writer
	file    *os.File
	buf     *bufio.Writer
}

// Creates a log writing to the given console writer only
func New(console io.Writer) *Log {
	return &Log{console: console}
}

// Enables logging to file in addition to the console. Closes any previous file
func (l *Log) AlsoToFile(fileName string) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	if err := l.closeFile(); err != nil {
		return err
	}
	f, err := os.OpenFile(fileName, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0666)
	if err != nil {
		return err
	}
	l.file, l.buf = f, bufio.NewWriter(f)
	return nil
}

func (l *Log) Write(p []byte) (n int, err error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	n, err = l.console.Write(p)
	if err != nil || l.buf == nil {
		return n, err
	}
	return l.buf.Write(p)
}

func (l *Log) Printf(format string, args ...interface{}) {
	fmt.Fprintf(l, format, args...)
}

// Flushes and closes the log file, if any
func (l *Log) Close() error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return l.closeFile()
}

func (l *Log) closeFile() error {
	if l.file == nil {
		return nil
	}
	err := l.buf.Flush()
	if cerr := l.file.Close(); err == nil {
		err = cerr
	}
	l.file, l.buf = nil, nil
	return err
}

// Logs the message, closes the log file and exits with status 1
func (l *Log) Fatalf(format string, args ...interface{}) {
	l.Printf(format, args...)
	l.Close()
	os.Exit(1)
}
