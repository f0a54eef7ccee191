// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// SetOutput configures logging output for standard loggers.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
	logrus.SetOutput(w)
}

// InternalFormatter formats internal log lines as
// "<time> [<level>] <message> key=value ..." with fields in key order.
type InternalFormatter struct{}

// Format implements logrus.Formatter.
func (f *InternalFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := entry.Buffer
	if b == nil {
		b = &bytes.Buffer{}
	}

	fmt.Fprintf(b, "%s [%s] %s", entry.Time.UTC().Format(time.RFC3339Nano), levelName(entry.Level), entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v := entry.Data[k]
		if err, isErr := v.(error); isErr {
			v = err.Error()
		}
		fmt.Fprintf(b, " %s=%v", k, v)
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

func levelName(level logrus.Level) string {
	switch level {
	case logrus.WarnLevel:
		return "WARN"
	case logrus.PanicLevel, logrus.FatalLevel:
		return "FATAL"
	}
	text, _ := level.MarshalText()
	return string(bytes.ToUpper(text))
}

// SetLevel parses and applies the log level. An unparsable level is reported
// and leaves the current level unchanged.
func SetLevel(level string) error {
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(parsed)
	return nil
}
