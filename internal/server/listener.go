package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/echo/internal/shared"
)

const (
	// readBufferSize bounds how much of a request is read; the request line always fits.
	readBufferSize = 1000
	// connReadTimeout drops connections that never send a request, such as browser preconnects.
	connReadTimeout = 10 * time.Second
	// Failed accepts, such as running out of file descriptors, are retried after a growing pause.
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second

	successBody = "Client authorized. You can return to your terminal and close this window."
)

var (
	ErrListenerBind      = errors.New("unable to bind redirect listener")
	ErrMalformedCallback = errors.New("malformed callback request")
)

// Credentials is the authorization code and anti-forgery state captured from the redirect.
type Credentials struct {
	AuthCode  string
	CSRFToken string
}

// CallbackError describes why a redirect request was rejected.
type CallbackError struct {
	Reason string
}

func (e *CallbackError) Error() string {
	return fmt.Sprintf("%v: %s", ErrMalformedCallback, e.Reason)
}

func (e *CallbackError) Unwrap() error {
	return ErrMalformedCallback
}

func rejectf(format string, args ...any) *CallbackError {
	return &CallbackError{Reason: fmt.Sprintf(format, args...)}
}

// Listener accepts redirect requests on a bound loopback address.
type Listener struct {
	ln     net.Listener
	logger *log.Logger
}

// NewListener binds addr. A nil logger discards log output.
func NewListener(addr string, logger *log.Logger) (*Listener, error) {
	if logger == nil {
		logger = shared.DiscardLogger()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("%w on %s: %v", ErrListenerBind, addr, err)
	}

	return &Listener{ln: ln, logger: logger.With("addr", ln.Addr().String())}, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.ln.Addr()
}

// Close stops accepting connections.
func (l *Listener) Close() error {
	return l.ln.Close()
}

// Accept serves connections one at a time until a well-formed callback arrives, then closes the listener.
//
// Rejected requests are answered and logged without ending the loop. Cancelling ctx closes the
// listener and returns the context's error.
func (l *Listener) Accept(ctx context.Context) (*Credentials, error) {
	stop := context.AfterFunc(ctx, func() { l.ln.Close() })
	defer stop()

	l.logger.Info("listening for redirect")
	var delay time.Duration
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if errors.Is(err, net.ErrClosed) {
				return nil, err
			}

			delay = acceptBackoff(delay)
			l.logger.Warn("accept failed", "error", err, "retry", delay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		delay = 0

		creds, err := l.serve(conn)
		if err != nil {
			l.logger.Warn("rejected redirect request", "error", err)
			l.logger.Info("listening...")
			continue
		}

		l.logger.Info("retrieved credentials")
		l.ln.Close()
		return creds, nil
	}
}

// acceptBackoff doubles the previous delay between failed accepts, within [minAcceptDelay, maxAcceptDelay].
func acceptBackoff(prev time.Duration) time.Duration {
	if prev == 0 {
		return minAcceptDelay
	}
	return min(prev*2, maxAcceptDelay)
}

// serve answers a single connection.
func (l *Listener) serve(conn net.Conn) (*Credentials, error) {
	defer conn.Close()

	buf := make([]byte, readBufferSize)
	_ = conn.SetReadDeadline(time.Now().Add(connReadTimeout))
	n, err := conn.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		cbErr := rejectf("Unable to read request: %v", err)
		l.respond(conn, badRequest(cbErr.Reason))
		return nil, cbErr
	}

	creds, err := ParseCallback(buf[:n])
	if err != nil {
		var cbErr *CallbackError
		if errors.As(err, &cbErr) {
			l.respond(conn, badRequest(cbErr.Reason))
		}
		return nil, err
	}

	l.respond(conn, ok(successBody))
	return creds, nil
}

func (l *Listener) respond(conn net.Conn, response string) {
	if _, err := io.WriteString(conn, response); err != nil {
		l.logger.Warn("failed to write response", "error", err)
	}
}

// Listen binds addr, waits for one well-formed callback and shuts down.
func Listen(ctx context.Context, addr string, logger *log.Logger) (*Credentials, error) {
	l, err := NewListener(addr, logger)
	if err != nil {
		return nil, err
	}
	defer l.Close()

	return l.Accept(ctx)
}

// ParseCallback extracts the code and state query parameters from a raw HTTP request.
func ParseCallback(raw []byte) (*Credentials, error) {
	if !utf8.Valid(raw) {
		return nil, rejectf("Invalid UTF-8 sequence")
	}

	fields := strings.Fields(string(raw))
	if len(fields) < 2 {
		return nil, rejectf("Malformed request")
	}

	target, err := url.ParseRequestURI(fields[1])
	if err != nil {
		return nil, rejectf("Malformed request target: %v", err)
	}

	query, err := url.ParseQuery(target.RawQuery)
	if err != nil {
		return nil, rejectf("Malformed query string: %v", err)
	}

	if reason := query.Get("error"); reason != "" {
		return nil, rejectf("Authorization denied: %s", reason)
	}

	creds := &Credentials{AuthCode: query.Get("code"), CSRFToken: query.Get("state")}
	if creds.AuthCode == "" {
		return nil, rejectf("Missing code parameter")
	}
	if creds.CSRFToken == "" {
		return nil, rejectf("Missing state parameter")
	}

	return creds, nil
}

func ok(body string) string {
	return response("200 OK", body)
}

func badRequest(reason string) string {
	return response("400 Bad Request", "400 - Bad Request - "+reason)
}

func response(status, body string) string {
	return fmt.Sprintf(
		"HTTP/1.1 %s\r\nContent-Type: text/plain; charset=utf-8\r\nContent-Length: %d\r\nConnection: close\r\n\r\n%s",
		status, len(body), body,
	)
}
