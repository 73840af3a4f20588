/*
 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

     https://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package log

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
)

type LogLevel int

const (
	LogPrefix     = "[usbtrace] "
	ErrorPrefix   = "[error] "
	WarningPrefix = "[warn] "
	InfoPrefix    = "[info] "
	DebugPrefix   = "[debug] "
	HelpLevels    = "Must be one of: error, warning, info, debug."
)

const (
	ErrorLevel LogLevel = iota
	WarningLevel
	InfoLevel
	DebugLevel
)

// Logger is a leveled logger. Each analysis run gets its own Logger so that
// diagnostics of concurrent runs never share state.
type Logger struct {
	level LogLevel
	out   io.Writer
	*log.Logger
}

var logger = New(os.Stderr, InfoLevel)

// New returns a logger writing messages up to the given level to out.
func New(out io.Writer, level LogLevel) *Logger {
	return &Logger{
		level:  level,
		out:    out,
		Logger: log.New(out, LogPrefix, log.LstdFlags),
	}
}

// Discard returns a logger that drops everything.
func Discard() *Logger {
	return New(io.Discard, ErrorLevel)
}

// Default returns the process wide logger configured by Init.
func Default() *Logger {
	return logger
}

func ParseLevel(strLevel string) (LogLevel, error) {
	levelMapping := map[string]LogLevel{
		"error":   ErrorLevel,
		"warning": WarningLevel,
		"info":    InfoLevel,
		"debug":   DebugLevel,
	}
	level, ok := levelMapping[strLevel]
	if !ok {
		return ErrorLevel, errors.New("Wrong log level. " + HelpLevels)
	}
	return level, nil
}

func SetLevel(strLevel string) error {
	level, err := ParseLevel(strLevel)
	if err != nil {
		return err
	}
	logger.level = level
	return nil
}

func Init(out io.Writer, strLevel string) {
	logger.SetOutput(out)
	logger.out = out
	if err := SetLevel(strLevel); err != nil {
		panic(err)
	}
}

// Level returns the current level of the logger.
func (l *Logger) Level() LogLevel {
	return l.level
}

// Writer returns the destination of the logger.
func (l *Logger) Writer() io.Writer {
	return l.out
}

// WithLevel returns a new logger sharing the destination of l.
func (l *Logger) WithLevel(level LogLevel) *Logger {
	return New(l.out, level)
}

func (l *Logger) Error(format string, v ...interface{}) {
	if l.level >= ErrorLevel {
		l.Println(fmt.Sprintf(ErrorPrefix+format, v...))
	}
}

func (l *Logger) Warning(format string, v ...interface{}) {
	if l.level >= WarningLevel {
		l.Println(fmt.Sprintf(WarningPrefix+format, v...))
	}
}

func (l *Logger) Info(format string, v ...interface{}) {
	if l.level >= InfoLevel {
		l.Println(fmt.Sprintf(InfoPrefix+format, v...))
	}
}

func (l *Logger) Debug(format string, v ...interface{}) {
	if l.level >= DebugLevel {
		l.Println(fmt.Sprintf(DebugPrefix+format, v...))
	}
}

func Error(format string, v ...interface{}) {
	logger.Error(format, v...)
}

func Warning(format string, v ...interface{}) {
	logger.Warning(format, v...)
}

func Info(format string, v ...interface{}) {
	logger.Info(format, v...)
}

func Debug(format string, v ...interface{}) {
	logger.Debug(format, v...)
}
