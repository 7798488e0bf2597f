package vcli

import "strconv"

// Status is the numeric status code of a response header.
type Status int

// Status codes returned by varnishd.
const (
	StatusSyntax        Status = 100
	StatusUnknown       Status = 101
	StatusUnimplemented Status = 102
	StatusTooFew        Status = 104
	StatusTooMany       Status = 105
	StatusParam         Status = 106
	StatusAuth          Status = 107 // authentication required, body holds the challenge
	StatusOK            Status = 200
	StatusTruncated     Status = 201
	StatusCant          Status = 300
	StatusComms         Status = 400
	StatusClose         Status = 500
)

var statusText = map[Status]string{
	StatusSyntax:        "syntax error",
	StatusUnknown:       "unknown request",
	StatusUnimplemented: "unimplemented",
	StatusTooFew:        "too few parameters",
	StatusTooMany:       "too many parameters",
	StatusParam:         "invalid parameter",
	StatusAuth:          "authentication required",
	StatusOK:            "ok",
	StatusTruncated:     "truncated",
	StatusCant:          "cannot comply",
	StatusComms:         "communication error",
	StatusClose:         "closing",
}

func (s Status) String() string {
	if text, ok := statusText[s]; ok {
		return strconv.Itoa(int(s)) + " " + text
	}
	return strconv.Itoa(int(s))
}

// Protocol delimiters
const (
	Newline   = "\n"
	Space     = " "
	Backslash = `\`
)

// Well-known commands
const (
	CmdPing   = "ping"
	CmdQuit   = "quit"
	CmdAuth   = "auth"
	CmdBanner = "banner"
)

// Limits
const (
	// MaxHeaderLength bounds the header line. The daemon pads it to 13 bytes.
	MaxHeaderLength = 64

	// MaxBodyLength rejects absurd declared lengths before allocating.
	MaxBodyLength = 64 << 20

	// ChallengeLength is the size of the authentication challenge.
	ChallengeLength = 32
)
