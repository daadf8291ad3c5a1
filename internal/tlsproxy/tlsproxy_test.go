package tlsproxy

import (
	"bufio"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/codegate/internal/tlscert"
)

type echoDispatcher struct{}

func (echoDispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("X-Upstream-Host", r.URL.Host)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("hello from " + r.URL.Host))
}

func TestInterceptAndServeCompletesHandshakeAndDispatches(t *testing.T) {
	dir := t.TempDir()
	ca, err := tlscert.LoadOrGenerate(filepath.Join(dir, "ca.crt"), filepath.Join(dir, "ca.key"))
	require.NoError(t, err)
	cache := tlscert.NewCache(ca, nil, zerolog.Nop())

	srv := &Server{
		Addr:       "127.0.0.1:0",
		Cache:      cache,
		Dispatcher: echoDispatcher{},
		Log:        zerolog.Nop(),
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv.ln = ln

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.handleConn(ctx, conn)
		}
	}()

	client, err := net.DialTimeout("tcp", ln.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	defer client.Close()

	fmt.Fprintf(client, "CONNECT api.example.com:443 HTTP/1.1\r\nHost: api.example.com:443\r\n\r\n")
	br := bufio.NewReader(client)
	resp, err := http.ReadResponse(br, nil)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	certPool := x509.NewCertPool()
	require.True(t, certPool.AppendCertsFromPEM(ca.CertPEM()))

	tlsConn := tls.Client(client, &tls.Config{
		ServerName: "api.example.com",
		RootCAs:    certPool,
	})
	require.NoError(t, tlsConn.HandshakeContext(ctx))

	fmt.Fprintf(tlsConn, "GET /v1/chat/completions HTTP/1.1\r\nHost: api.example.com\r\nConnection: close\r\n\r\n")
	respBr := bufio.NewReader(tlsConn)
	httpResp, err := http.ReadResponse(respBr, nil)
	require.NoError(t, err)
	require.Equal(t, "api.example.com", httpResp.Header.Get("X-Upstream-Host"))

	body, err := io.ReadAll(httpResp.Body)
	require.NoError(t, err)
	require.Contains(t, string(body), "api.example.com")
}

func TestHandleConnPassesThroughHostsShouldInterceptRejects(t *testing.T) {
	upstreamLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer upstreamLn.Close()

	go func() {
		conn, err := upstreamLn.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buf := make([]byte, 5)
		_, _ = io.ReadFull(conn, buf)
		_, _ = conn.Write([]byte("world"))
	}()

	dir := t.TempDir()
	ca, err := tlscert.LoadOrGenerate(filepath.Join(dir, "ca.crt"), filepath.Join(dir, "ca.key"))
	require.NoError(t, err)
	cache := tlscert.NewCache(ca, nil, zerolog.Nop())

	srv := &Server{
		Addr:            "127.0.0.1:0",
		Cache:           cache,
		Dispatcher:      echoDispatcher{},
		Log:             zerolog.Nop(),
		ShouldIntercept: func(host string) bool { return false },
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	srv.ln = ln

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.handleConn(ctx, conn)
		}
	}()

	client, err := net.DialTimeout("tcp", ln.Addr().String(), 2*time.Second)
	require.NoError(t, err)
	defer client.Close()

	fmt.Fprintf(client, "CONNECT %s HTTP/1.1\r\nHost: %s\r\n\r\n", upstreamLn.Addr().String(), upstreamLn.Addr().String())
	br := bufio.NewReader(client)
	resp, err := http.ReadResponse(br, nil)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	_, err = client.Write([]byte("hello"))
	require.NoError(t, err)

	reply := make([]byte, 5)
	_, err = io.ReadFull(client, reply)
	require.NoError(t, err)
	require.Equal(t, "world", string(reply))
}
