// Package vcli provides a low-level wire protocol implementation for the
// Varnish management (CLI) protocol.
//
// This package is the foundation of the higher-level varnish client. It only
// deals with serialization and parsing; connection management, locking and
// reconnection are left to the caller.
//
// # Wire format
//
// A request is a single newline-terminated line:
//
//	<command> <arg1> <arg2> ...\n
//
// Literal backslashes in arguments are doubled. Whitespace is not quoted: the
// caller is responsible for tokenizing arguments.
//
// A response is a header line followed by a body:
//
//	<status> <length>\n
//	<length bytes of body>\n
//
// Status 200 denotes success. Any other status is a failure and the body
// carries a human-readable diagnostic.
//
// # Usage
//
//	req := vcli.NewRequest("vcl.use", "boot")
//	if err := vcli.WriteRequest(conn, req); err != nil {
//	    return err
//	}
//	resp, err := vcli.ReadResponse(bufio.NewReader(conn))
//	if err != nil {
//	    if vcli.ShouldCloseConnection(err) {
//	        conn.Close()
//	    }
//	    return err
//	}
//	if !resp.IsSuccess() {
//	    // resp.Status, resp.String()
//	}
//
// # Error Handling
//
//   - ParseError: malformed header or body terminator, CLOSE connection
//   - ConnectionError: network/I/O error, connection already broken
//
// A non-200 status is not a Go error at this level: it is reported through
// Response.Status.
package vcli
