// Package channel implements the byte stream between the line-editing engine
// and the shell-side query server.
//
// The stream is a pair of named pipes. Requests are line oriented:
//
//	VERB argument...\n
//
// A request whose argument contains a newline is framed instead:
//
//	REQ_LEN=<n>\nREQ_BODY=<n bytes>\n
//
// where the body is "VERB argument". Responses are always framed, since
// response bodies (such as completion lists) routinely contain newlines:
//
//	RESP_STATUS=<ok|unknown|error>\nRESP_LEN=<n>\nRESP_BODY=<n bytes>\n
package channel

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Status is the outcome of a request.
type Status string

// Possible values of Status.
const (
	StatusOK      Status = "ok"
	StatusUnknown Status = "unknown"
	StatusError   Status = "error"
)

const (
	reqLenPrefix     = "REQ_LEN="
	reqBodyPrefix    = "REQ_BODY="
	respStatusPrefix = "RESP_STATUS="
	respLenPrefix    = "RESP_LEN="
	respBodyPrefix   = "RESP_BODY="

	// Bodies larger than this are rejected, so that a corrupt length cannot
	// make the reader allocate arbitrary amounts of memory.
	maxBodyLen = 16 << 20
)

// ErrMalformed is wrapped by errors returned from ReadRequest and
// ReadResponse when the input does not follow the wire format. The stream can
// still be used after such an error.
var ErrMalformed = errors.New("malformed message")

// Request is a query from the engine to the shell.
type Request struct {
	Verb string
	Arg  string
}

// ParseRequest splits a request line into its verb and argument. The
// argument is everything after the first space.
func ParseRequest(line string) Request {
	verb, arg, _ := strings.Cut(line, " ")
	return Request{Verb: verb, Arg: arg}
}

func (r Request) String() string {
	if r.Arg == "" {
		return r.Verb
	}
	return r.Verb + " " + r.Arg
}

// ReadRequest reads one request.
func ReadRequest(br *bufio.Reader) (Request, error) {
	line, err := readLine(br)
	if err != nil {
		return Request{}, err
	}
	if !strings.HasPrefix(line, reqLenPrefix) {
		return ParseRequest(line), nil
	}
	body, err := readBody(br, line[len(reqLenPrefix):], reqBodyPrefix)
	if err != nil {
		return Request{}, err
	}
	return ParseRequest(body), nil
}

// WriteRequest writes one request, framing it if needed.
func WriteRequest(w io.Writer, req Request) error {
	s := req.String()
	var err error
	if strings.ContainsAny(s, "\r\n") || strings.HasPrefix(s, reqLenPrefix) {
		_, err = fmt.Fprintf(w, "%s%d\n%s%s\n", reqLenPrefix, len(s), reqBodyPrefix, s)
	} else {
		_, err = io.WriteString(w, s+"\n")
	}
	return err
}

// Response is the answer to a Request.
type Response struct {
	Status Status
	Body   string
}

// OK builds a successful response.
func OK(body string) Response { return Response{StatusOK, body} }

// Errorf builds an error response.
func Errorf(format string, args ...any) Response {
	return Response{StatusError, fmt.Sprintf(format, args...)}
}

// Unknown builds the response to an unrecognized verb.
func Unknown(verb string) Response {
	return Response{StatusUnknown, "unknown query: " + verb}
}

// Lines splits the body of a response into lines. An empty body has no lines.
func (r Response) Lines() []string {
	if r.Body == "" {
		return nil
	}
	return strings.Split(r.Body, "\n")
}

// WriteResponse writes one framed response.
func WriteResponse(w io.Writer, resp Response) error {
	_, err := fmt.Fprintf(w, "%s%s\n%s%d\n%s%s\n",
		respStatusPrefix, resp.Status, respLenPrefix, len(resp.Body), respBodyPrefix, resp.Body)
	return err
}

// ReadResponse reads one framed response.
func ReadResponse(br *bufio.Reader) (Response, error) {
	line, err := readLine(br)
	if err != nil {
		return Response{}, err
	}
	if !strings.HasPrefix(line, respStatusPrefix) {
		return Response{}, fmt.Errorf("%w: want %s, got %q", ErrMalformed, respStatusPrefix, line)
	}
	status := Status(line[len(respStatusPrefix):])
	line, err = readLine(br)
	if err != nil {
		return Response{}, err
	}
	if !strings.HasPrefix(line, respLenPrefix) {
		return Response{}, fmt.Errorf("%w: want %s, got %q", ErrMalformed, respLenPrefix, line)
	}
	body, err := readBody(br, line[len(respLenPrefix):], respBodyPrefix)
	if err != nil {
		return Response{}, err
	}
	return Response{status, body}, nil
}

// Reads "<bodyPrefix><n bytes>\n" where n is given by lenText.
func readBody(br *bufio.Reader, lenText, bodyPrefix string) (string, error) {
	n, err := strconv.Atoi(lenText)
	if err != nil || n < 0 || n > maxBodyLen {
		skipBodyLine(br, bodyPrefix)
		return "", fmt.Errorf("%w: bad length %q", ErrMalformed, lenText)
	}
	buf := make([]byte, len(bodyPrefix)+n+1)
	if _, err := io.ReadFull(br, buf); err != nil {
		return "", err
	}
	if string(buf[:len(bodyPrefix)]) != bodyPrefix || buf[len(buf)-1] != '\n' {
		return "", fmt.Errorf("%w: bad body frame %q", ErrMalformed, buf)
	}
	return string(buf[len(bodyPrefix) : len(buf)-1]), nil
}

// Consumes the body line that follows a bad length, so that the frame is
// dropped as a whole. Without a usable length the body is taken to end at the
// next newline. Nothing is consumed unless the next bytes start the body line;
// input that has not arrived yet is not waited for.
func skipBodyLine(br *bufio.Reader, bodyPrefix string) {
	n := min(br.Buffered(), len(bodyPrefix))
	if n == 0 {
		return
	}
	peeked, _ := br.Peek(n)
	if string(peeked) != bodyPrefix[:n] {
		return
	}
	// A partial prefix means the rest of the line is on its way.
	br.ReadString('\n')
}

func readLine(br *bufio.Reader) (string, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		if err == io.EOF && line != "" {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}
	return strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r"), nil
}
