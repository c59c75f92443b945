//go:build unix

package channel

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"golang.org/x/sys/unix"
)

const cacheTTL = 30 * time.Second

// Client is the engine side of a channel. It is safe for concurrent use; one
// request is in flight at a time.
//
// Answers to WHICH and COMPLETE are cached for a short while, since an engine
// typically asks the same question on every keystroke.
type Client struct {
	mu    sync.Mutex
	req   *os.File
	resp  *os.File
	br    *bufio.Reader
	cache *ttlcache.Cache[Request, Response]
}

// Dial connects to the server whose pipes are at reqPath and respPath. It
// fails instead of blocking when no server holds the request pipe open.
func Dial(reqPath, respPath string) (*Client, error) {
	req, err := openBlocking(reqPath, os.O_WRONLY)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", reqPath, err)
	}
	resp, err := openBlocking(respPath, os.O_RDONLY)
	if err != nil {
		req.Close()
		return nil, fmt.Errorf("connect to %s: %w", respPath, err)
	}
	cache := ttlcache.New[Request, Response](
		ttlcache.WithTTL[Request, Response](cacheTTL),
		ttlcache.WithDisableTouchOnHit[Request, Response](),
	)
	go cache.Start()
	return &Client{req: req, resp: resp, br: bufio.NewReader(resp), cache: cache}, nil
}

// Opens a pipe without waiting for the other end, then switches it back to
// blocking mode. Opening the write end fails with ENXIO when there is no
// reader.
func openBlocking(path string, flag int) (*os.File, error) {
	f, err := os.OpenFile(path, flag|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}
	if err := unix.SetNonblock(int(f.Fd()), false); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// Do sends a request and waits for its response.
func (c *Client) Do(r Request) (Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := WriteRequest(c.req, r); err != nil {
		return Response{}, err
	}
	return ReadResponse(c.br)
}

func (c *Client) cachedDo(r Request) (Response, error) {
	if item := c.cache.Get(r); item != nil {
		return item.Value(), nil
	}
	resp, err := c.Do(r)
	if err == nil && resp.Status == StatusOK {
		c.cache.Set(r, resp, ttlcache.DefaultTTL)
	}
	return resp, err
}

// Which resolves an executable name to its path in the shell; the path is
// empty when the name does not resolve.
func (c *Client) Which(name string) (string, error) {
	resp, err := c.cachedDo(Request{"WHICH", name})
	if err != nil {
		return "", err
	}
	return resp.Body, resp.err()
}

// Complete returns the shell's completion candidates for a partial word.
func (c *Client) Complete(partial string) ([]string, error) {
	resp, err := c.cachedDo(Request{"COMPLETE", partial})
	if err != nil {
		return nil, err
	}
	return resp.Lines(), resp.err()
}

// Var returns the value of a shell variable. The boolean is false when the
// variable is not set.
func (c *Client) Var(name string) (string, bool, error) {
	resp, err := c.Do(Request{"GET-VAR", name})
	if err != nil {
		return "", false, err
	}
	switch resp.Status {
	case StatusOK:
		return resp.Body, true, nil
	case StatusError:
		return "", false, nil
	default:
		return "", false, resp.err()
	}
}

// Ping checks that the server is alive.
func (c *Client) Ping() error {
	resp, err := c.Do(Request{Verb: "PING"})
	if err != nil {
		return err
	}
	return resp.err()
}

// SetCommand hands the final command back to the shell, with the cursor at
// its end.
func (c *Client) SetCommand(text string) error {
	resp, err := c.Do(Request{"SETCMD", text})
	if err != nil {
		return err
	}
	return resp.err()
}

// SetCommandAt is like SetCommand, but also sets the cursor, in bytes.
func (c *Client) SetCommandAt(cursor int, text string) error {
	resp, err := c.Do(Request{"SETCMD-AT", strconv.Itoa(cursor) + " " + text})
	if err != nil {
		return err
	}
	return resp.err()
}

// History returns history entries starting with prefix, newest first.
func (c *Client) History(prefix string) ([]string, error) {
	resp, err := c.Do(Request{"HISTORY", prefix})
	if err != nil {
		return nil, err
	}
	return resp.Lines(), resp.err()
}

// Cwd returns the shell's working directory.
func (c *Client) Cwd() (string, error) {
	resp, err := c.Do(Request{Verb: "CWD"})
	if err != nil {
		return "", err
	}
	return resp.Body, resp.err()
}

// Close disconnects from the server.
func (c *Client) Close() error {
	c.cache.Stop()
	err1 := c.req.Close()
	err2 := c.resp.Close()
	if err1 != nil {
		return err1
	}
	return err2
}

// ResponseError is returned by the typed Client methods when the server
// answers with a status other than ok.
type ResponseError struct {
	Response Response
}

func (e *ResponseError) Error() string {
	return fmt.Sprintf("%s: %s", e.Response.Status, e.Response.Body)
}

func (r Response) err() error {
	if r.Status == StatusOK {
		return nil
	}
	return &ResponseError{r}
}
