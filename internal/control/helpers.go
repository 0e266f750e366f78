package control

import (
	"fmt"
	"strconv"
	"strings"
)

// ACK error codes, numbered as in the MPD protocol
const (
	ackNotList = 1
	ackArg     = 2
	ackUnknown = 5
	ackNoExist = 50
	ackSystem  = 52
)

// ack formats a protocol error for command
func ack(code int, command, message string) string {
	return fmt.Sprintf("ACK [%d@0] {%s} %s\n", code, command, message)
}

// unquote strips optional double quotes around an argument
func unquote(arg string) string {
	if unquoted, err := strconv.Unquote(arg); err == nil {
		return unquoted
	}
	return arg
}

// field writes one "key: value" response line. Newlines in value would
// break the framing, so they are flattened.
func field(b *strings.Builder, key string, value any) {
	v := strings.ReplaceAll(fmt.Sprint(value), "\n", " ")
	fmt.Fprintf(b, "%s: %s\n", key, v)
}

func boolField(b bool) int {
	if b {
		return 1
	}
	return 0
}
