package vcli

import (
	"fmt"
	"strconv"
)

// Request represents a management command.
// Args are already tokenized: they are written as-is, separated by a single
// space, with only backslashes escaped.
type Request struct {
	// Command is the command name, e.g. "ping", "vcl.load" or "purge req.url".
	Command string

	// Args are the formatted arguments in wire order.
	Args []string
}

// NewRequest builds a request from a command name and arguments of any type.
// Arguments are formatted with their natural decimal or string
// representation. nil arguments are skipped, which lets callers pass optional
// values through unchanged.
func NewRequest(command string, args ...any) *Request {
	req := &Request{Command: command}
	if len(args) == 0 {
		return req
	}

	req.Args = make([]string, 0, len(args))
	for _, arg := range args {
		if arg == nil {
			continue
		}
		req.Args = append(req.Args, FormatArg(arg))
	}
	return req
}

// FormatArg returns the wire representation of a single argument.
func FormatArg(arg any) string {
	switch v := arg.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case int:
		return strconv.Itoa(v)
	case int8:
		return strconv.FormatInt(int64(v), 10)
	case int16:
		return strconv.FormatInt(int64(v), 10)
	case int32:
		return strconv.FormatInt(int64(v), 10)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case uint8:
		return strconv.FormatUint(uint64(v), 10)
	case uint16:
		return strconv.FormatUint(uint64(v), 10)
	case uint32:
		return strconv.FormatUint(uint64(v), 10)
	case uint64:
		return strconv.FormatUint(v, 10)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
