package transport

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/danmuck/globalbehavior/internal/behavior"
)

var (
	ErrInvalidHello  = errors.New("transport: invalid hello")
	ErrHelloTooLarge = errors.New("transport: hello too large")
	ErrSelfLink      = errors.New("transport: peer reported our own context id")
)

const (
	maxHelloBytes    = 4 * 1024
	controlTypeHello = "context.hello"
)

// Hello is exchanged once in each direction when a TCP link opens. The origin
// is self-declared by the peer.
type Hello struct {
	ContextID string `json:"context_id"`
	Origin    string `json:"origin"`
}

func (h Hello) Validate() (behavior.ContextID, error) {
	id, err := behavior.ParseContextID(h.ContextID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidHello, err)
	}
	return id, nil
}

type controlEnvelope struct {
	Type  string `json:"type"`
	Hello *Hello `json:"hello,omitempty"`
}

func WriteHello(w io.Writer, h Hello) error {
	if _, err := h.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(controlEnvelope{Type: controlTypeHello, Hello: &h})
	if err != nil {
		return err
	}
	payload = append(payload, '\n')
	_, err = w.Write(payload)
	return err
}

func ReadHello(r *bufio.Reader) (Hello, error) {
	line, err := r.ReadSlice('\n')
	if err != nil {
		if errors.Is(err, bufio.ErrBufferFull) {
			return Hello{}, ErrHelloTooLarge
		}
		return Hello{}, err
	}
	if len(line) > maxHelloBytes {
		return Hello{}, ErrHelloTooLarge
	}
	var env controlEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return Hello{}, fmt.Errorf("%w: %v", ErrInvalidHello, err)
	}
	if env.Type != controlTypeHello || env.Hello == nil {
		return Hello{}, fmt.Errorf("%w: unexpected control type %q", ErrInvalidHello, env.Type)
	}
	if _, err := env.Hello.Validate(); err != nil {
		return Hello{}, err
	}
	return *env.Hello, nil
}
