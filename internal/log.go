package internal

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/sirupsen/logrus"
)

// NewLogger returns the component logger used by the cache and its collaborators.
func NewLogger(prefix string) *logrus.Entry {
	return logrus.WithField("prefix", prefix)
}

// ConfigureLogging sets the level and output of the standard logrus logger.
func ConfigureLogging(level string, out io.Writer) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logrus.SetLevel(lvl)
	logrus.SetOutput(out)
	logrus.SetFormatter(&PrefixFormatter{})
	return nil
}

// PrefixFormatter renders entries as "<L> <time> [prefix] message key=value...".
type PrefixFormatter struct{}

// Format implements logrus.Formatter.
func (f *PrefixFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	buf := new(bytes.Buffer)
	prefix, _ := entry.Data["prefix"].(string)
	if prefix == "" {
		prefix = "ssoctl"
	}
	fmt.Fprintf(buf, "%s %s [%s] %s", levelLetter(entry.Level), FormatLogTime(entry.Time), prefix, entry.Message)

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		if k != "prefix" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(buf, " %s=%s", k, quoteIfNeeded(fmt.Sprint(entry.Data[k])))
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func levelLetter(level logrus.Level) string {
	switch level {
	case logrus.TraceLevel:
		return "T"
	case logrus.DebugLevel:
		return "D"
	case logrus.InfoLevel:
		return "I"
	case logrus.WarnLevel:
		return "W"
	case logrus.ErrorLevel:
		return "E"
	case logrus.FatalLevel:
		return "F"
	case logrus.PanicLevel:
		return "P"
	}
	return "U"
}

func quoteIfNeeded(s string) string {
	for _, r := range s {
		if r <= ' ' || r == '"' || r > '~' {
			return strconv.Quote(s)
		}
	}
	return s
}
