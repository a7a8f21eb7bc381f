package rpc

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	jsoniter "github.com/json-iterator/go"
)

// wire encodes envelopes; it honors the encoding/json tags and Marshaler
// implementations of the protocol types.
var wire = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrMalformed marks an inbound line that is not a request envelope.
var ErrMalformed = errors.New("malformed request")

// Conn carries newline-delimited JSON envelopes. Reads happen on one
// goroutine; writes are serialized so responses and events never interleave.
type Conn struct {
	r   *bufio.Reader
	mu  sync.Mutex
	w   io.Writer
	log *logger.Logger
}

func NewConn(r io.Reader, w io.Writer) *Conn {
	return &Conn{
		r:   bufio.NewReaderSize(r, 64*1024),
		w:   w,
		log: logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "conn")),
	}
}

// ReadRequest returns the next request. Blank lines are skipped; a line that
// does not decode yields an error wrapping ErrMalformed and the stream stays usable.
func (c *Conn) ReadRequest() (Request, error) {
	for {
		line, err := c.r.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			if err != nil {
				return Request{}, err
			}
			continue
		}

		var req Request
		if jerr := wire.Unmarshal(line, &req); jerr != nil {
			return Request{}, fmt.Errorf("%w: %v", ErrMalformed, jerr)
		}
		if req.Method == "" {
			return Request{}, fmt.Errorf("%w: missing method", ErrMalformed)
		}
		return req, nil
	}
}

// WriteResponse writes one response envelope.
func (c *Conn) WriteResponse(resp Response) error {
	return c.write(resp)
}

// Emit writes an event envelope; it implements Sink.
func (c *Conn) Emit(name string, payload any) {
	if err := c.write(Event{Name: name, Payload: payload}); err != nil {
		c.log.Warn("dropping event ", name, ": ", err)
	}
}

func (c *Conn) write(v any) error {
	data, err := wire.Marshal(v)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err = c.w.Write(data)
	return err
}
