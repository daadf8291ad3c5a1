// Package tlsproxy implements the HTTPS-CONNECT proxy port: it
// terminates a client's TLS connection using a CA-issued leaf
// certificate keyed by the requested SNI, then re-establishes TLS to
// the real upstream so the plaintext request/response can traverse
// the pipeline in between.
package tlsproxy

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/stacklok/codegate/internal/tlscert"
)

// Dispatcher hands a client's plaintext HTTP request (already
// decrypted from the intercepted TLS session) to the pipeline and
// writes the plaintext response back. It mirrors the same contract
// the clear-HTTP gateway front uses, so both ports drive identical
// pipeline semantics.
type Dispatcher interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

// Server accepts CONNECT tunnels, performs the SNI-keyed TLS
// interception handshake, and dispatches the decrypted traffic to a
// Dispatcher.
type Server struct {
	Addr       string
	Cache      *tlscert.Cache
	Dispatcher Dispatcher
	Log        zerolog.Logger

	// UpstreamTLSConfig configures the outbound TLS connection to the
	// real upstream host; nil uses the system trust store.
	UpstreamTLSConfig *tls.Config

	// ShouldIntercept reports whether host should be MITM'd and driven
	// through the pipeline. Hosts it rejects are passed through as an
	// opaque byte splice instead: CodeGate only needs plaintext for
	// configured provider endpoints, so tunneling a client's unrelated
	// HTTPS traffic (e.g. an OS update check) through the same CONNECT
	// port should not pay for a leaf cert the client won't be asked to
	// trust for that host anyway. A nil func intercepts every host.
	ShouldIntercept func(host string) bool

	ln net.Listener
}

// ListenAndServe accepts connections on Addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return fmt.Errorf("tlsproxy: listen on %s: %w", s.Addr, err)
	}
	s.ln = ln

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				s.Log.Warn().Err(err).Msg("tlsproxy accept failed")
				continue
			}
		}
		go s.handleConn(ctx, conn)
	}
}

// Close stops accepting new connections.
func (s *Server) Close() error {
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	br := bufio.NewReader(conn)
	req, err := http.ReadRequest(br)
	if err != nil {
		s.Log.Debug().Err(err).Msg("tlsproxy failed to read CONNECT request")
		return
	}
	if req.Method != http.MethodConnect {
		fmt.Fprintf(conn, "HTTP/1.1 405 Method Not Allowed\r\n\r\n")
		return
	}

	host, _, err := net.SplitHostPort(req.Host)
	if err != nil {
		host = req.Host
	}

	if _, err := fmt.Fprintf(conn, "HTTP/1.1 200 Connection Established\r\n\r\n"); err != nil {
		return
	}

	if s.ShouldIntercept != nil && !s.ShouldIntercept(host) {
		if err := s.passthrough(ctx, conn, req.Host); err != nil {
			s.Log.Debug().Err(err).Str("host", host).Msg("tlsproxy passthrough ended")
		}
		return
	}

	if err := s.interceptAndServe(ctx, conn, host); err != nil {
		s.Log.Debug().Err(err).Str("host", host).Msg("tlsproxy interception ended")
	}
}

// passthrough dials the tunnel target directly and splices raw bytes
// between it and the client without terminating TLS, for hosts
// ShouldIntercept excludes from inspection.
func (s *Server) passthrough(ctx context.Context, conn net.Conn, hostport string) error {
	upstream, err := (&net.Dialer{}).DialContext(ctx, "tcp", hostport)
	if err != nil {
		return fmt.Errorf("tlsproxy: dial upstream %s: %w", hostport, err)
	}
	defer upstream.Close()

	return splice(ctx, conn, upstream)
}

// interceptAndServe completes the client-facing TLS handshake using a
// CA-issued leaf for host, then serves plaintext HTTP requests read
// from that TLS session through the Dispatcher, opening its own TLS
// connection upstream as needed for each request's target.
func (s *Server) interceptAndServe(ctx context.Context, conn net.Conn, host string) error {
	leafCert, err := s.Cache.Get(ctx, host)
	if err != nil {
		return fmt.Errorf("tlsproxy: issue leaf for %s: %w", host, err)
	}

	tlsConn := tls.Server(conn, &tls.Config{
		Certificates: []tls.Certificate{*leafCert},
	})
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return fmt.Errorf("tlsproxy: client handshake for %s: %w", host, err)
	}
	defer tlsConn.Close()

	listener := &singleConnListener{conn: tlsConn}
	httpServer := &http.Server{
		Handler:      &upstreamRewriter{host: host, dispatcher: s.Dispatcher},
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
	}
	_ = httpServer.Serve(listener)
	return nil
}

// upstreamRewriter stamps the intercepted request with the real
// upstream host (CONNECT requests carry only the tunnel target, not a
// full URL) before handing it to the shared dispatcher.
type upstreamRewriter struct {
	host       string
	dispatcher Dispatcher
}

func (u *upstreamRewriter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	r.URL.Scheme = "https"
	r.URL.Host = u.host
	if r.Host == "" {
		r.Host = u.host
	}
	u.dispatcher.ServeHTTP(w, r)
}

// singleConnListener adapts a single already-accepted net.Conn into a
// net.Listener so http.Server can drive keep-alive requests over it.
type singleConnListener struct {
	conn net.Conn
	used bool
}

func (l *singleConnListener) Accept() (net.Conn, error) {
	if l.used {
		<-make(chan struct{}) // block forever; http.Server calls Close on shutdown
	}
	l.used = true
	return l.conn, nil
}

func (l *singleConnListener) Close() error   { return l.conn.Close() }
func (l *singleConnListener) Addr() net.Addr { return l.conn.LocalAddr() }

// splice bidirectionally copies bytes between two connections until
// either side closes or ctx is cancelled. Used by passthrough for
// tunneled hosts ShouldIntercept excludes from inspection.
func splice(ctx context.Context, a, b net.Conn) error {
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := io.Copy(a, b)
		return err
	})
	g.Go(func() error {
		_, err := io.Copy(b, a)
		return err
	})
	return g.Wait()
}
