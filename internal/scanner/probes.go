package scanner

import (
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/miekg/dns"
)

// connTimeout bounds every probe's connect-and-read/request cycle.
const connTimeout = 2500 * time.Millisecond

// rcvBufSize is how much of a banner a generic TCP/finger probe reads.
const rcvBufSize = 256

// scanTCPGeneric opens a TCP connection and returns whatever banner the
// peer sends unprompted.
func scanTCPGeneric(addr string, port int) (ok bool, response string) {
	if !validPort(port) {
		return false, fmt.Sprintf("invalid port %d", port)
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(addr, fmt.Sprint(port)), connTimeout)
	if err != nil {
		return false, err.Error()
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(connTimeout))
	buf := make([]byte, rcvBufSize)
	n, err := conn.Read(buf)
	if n == 0 && err != nil {
		return false, err.Error()
	}
	return true, string(buf[:n])
}

// scanFinger sends the finger protocol's "root\r\n" query and returns
// the reply.
func scanFinger(addr string, port int) (ok bool, response string) {
	if !validPort(port) {
		return false, fmt.Sprintf("invalid port %d", port)
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(addr, fmt.Sprint(port)), connTimeout)
	if err != nil {
		return false, err.Error()
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(connTimeout))
	if _, err := conn.Write([]byte("root\r\n")); err != nil {
		return false, err.Error()
	}

	buf := make([]byte, rcvBufSize)
	n, err := conn.Read(buf)
	if n == 0 && err != nil {
		return false, err.Error()
	}
	return true, string(buf[:n])
}

// scanTelnet reads whatever a telnet-alike service sends within the
// connect timeout; there is no well-known sentinel to wait for across
// implementations, so this simply drains what arrives before the
// deadline, up to rcvBufSize bytes.
func scanTelnet(addr string, port int) (ok bool, response string) {
	if !validPort(port) {
		return false, fmt.Sprintf("invalid port %d", port)
	}
	conn, err := net.DialTimeout("tcp", net.JoinHostPort(addr, fmt.Sprint(port)), connTimeout)
	if err != nil {
		return false, err.Error()
	}
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(connTimeout))
	buf := make([]byte, rcvBufSize)
	n := 0
	var err error
	for n < len(buf) && err == nil {
		var m int
		m, err = conn.Read(buf[n:])
		n += m
	}
	if n == 0 && err != nil {
		return false, err.Error()
	}
	return true, string(buf[:n])
}

// scanHTTP issues an HTTP HEAD / against addr:port, using https iff
// ssl is set, and returns the Server response header.
func scanHTTP(addr string, port int, hostname string, ssl bool) (ok bool, response string) {
	if !validPort(port) {
		return false, fmt.Sprintf("invalid port %d", port)
	}
	scheme := "http"
	if ssl {
		scheme = "https"
	}
	target := hostname
	if target == "" {
		target = addr
	}
	uri := fmt.Sprintf("%s://%s:%d/", scheme, target, port)

	client := &http.Client{
		Timeout: connTimeout,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, // nolint:gosec // banner-grabbing, not verifying identity
		},
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	req, err := http.NewRequest(http.MethodHead, uri, nil)
	if err != nil {
		return false, err.Error()
	}
	resp, err := client.Do(req)
	if err != nil {
		return false, err.Error()
	}
	defer func() { _, _ = io.Copy(io.Discard, resp.Body); _ = resp.Body.Close() }()

	return true, resp.Header.Get("Server")
}

// scanDNS queries addr:port directly for version.bind CHAOS TXT, the
// conventional way to fingerprint a nameserver's implementation.
func scanDNS(addr string, port int) (ok bool, response string) {
	if !validPort(port) {
		return false, fmt.Sprintf("invalid port %d", port)
	}
	msg := new(dns.Msg)
	msg.SetQuestion("version.bind.", dns.TypeTXT)
	msg.Question[0].Qclass = dns.ClassCHAOS

	client := &dns.Client{Timeout: connTimeout}
	reply, _, err := client.Exchange(msg, net.JoinHostPort(addr, fmt.Sprint(port)))
	if err != nil {
		return false, err.Error()
	}
	if len(reply.Answer) == 0 {
		return false, ""
	}
	if txt, isTXT := reply.Answer[0].(*dns.TXT); isTXT {
		return true, fmt.Sprint(txt.Txt)
	}
	return false, ""
}
