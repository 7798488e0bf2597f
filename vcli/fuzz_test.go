package vcli

import (
	"bufio"
	"bytes"
	"fmt"
	"strings"
	"testing"
)

// FuzzReadResponse fuzzes the ReadResponse function to find crashes and panics.
// Run with: go test -fuzz='^FuzzReadResponse$' -fuzztime=60s ./vcli
func FuzzReadResponse(f *testing.F) {
	// Valid responses
	f.Add([]byte("200 10\nPONG 12345\n"))
	f.Add([]byte("200 0\n\n"))
	f.Add([]byte("200 22      \nChild in state running\n"))
	f.Add([]byte("400 25\nVCL 'nonexistent' unknown\n"))
	f.Add([]byte("107 59\nabcdefghijklmnopqrstuvwxyzabcdef\n\nAuthentication required.\n\n"))
	f.Add([]byte("200 3\na\nb\n"))

	// Edge cases
	f.Add([]byte(""))
	f.Add([]byte("\n"))
	f.Add([]byte("200\n"))
	f.Add([]byte("200 abc\n"))
	f.Add([]byte("abc 10\n"))
	f.Add([]byte("200 -1\n"))
	f.Add([]byte("99 0\n\n"))
	f.Add([]byte("1000 0\n\n"))
	f.Add([]byte("200 5\nabc"))       // Truncated body
	f.Add([]byte("200 5\nhelloX"))    // Wrong terminator
	f.Add([]byte("200 1 extra\nx\n")) // Extra header field
	f.Add([]byte("200 999999999999\n"))

	f.Fuzz(func(t *testing.T, data []byte) {
		r := bufio.NewReader(bytes.NewReader(data))

		resp, err := ReadResponse(r)
		if err != nil {
			if resp != nil {
				t.Errorf("ReadResponse returned both response and error")
			}
			return
		}

		if resp.Status < 100 || resp.Status > 999 {
			t.Errorf("status out of range: %d", resp.Status)
		}

		// A parsed response must survive a format round trip
		formatted := fmt.Appendf(nil, "%d %d\n%s\n", int(resp.Status), len(resp.Body), resp.Body)

		again, err := ReadResponse(bufio.NewReader(bytes.NewReader(formatted)))
		if err != nil {
			t.Fatalf("re-reading formatted response: %v", err)
		}
		if again.Status != resp.Status || !bytes.Equal(again.Body, resp.Body) {
			t.Errorf("round trip mismatch: %+v != %+v", again, resp)
		}
	})
}

// FuzzWriteRequest checks that any argument is written on a single line.
func FuzzWriteRequest(f *testing.F) {
	f.Add("ping", "")
	f.Add("vcl.use", "boot")
	f.Add("purge.url", `\.jpg$`)
	f.Add("ban", "req.url ~ /")
	f.Add("param.set", "a\\\\b")

	f.Fuzz(func(t *testing.T, command, arg string) {
		if strings.Contains(command+arg, Newline) {
			t.Skip()
		}

		var buf bytes.Buffer
		if err := WriteRequest(&buf, NewRequest(command, arg)); err != nil {
			t.Fatal(err)
		}

		out := buf.Bytes()
		if bytes.Count(out, []byte{'\n'}) != 1 || out[len(out)-1] != '\n' {
			t.Errorf("request is not a single line: %q", out)
		}
		if want := strings.Count(command, Backslash) + 2*strings.Count(arg, Backslash); bytes.Count(out, []byte(Backslash)) != want {
			t.Errorf("backslashes not doubled: %q", out)
		}
	})
}
