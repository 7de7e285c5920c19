package ssdp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	ServiceType   = "urn:hydrocore:service:ingest:1"
	multicastAddr = "239.255.255.250:1900"
)

// Server answers M-SEARCH probes so agents can find the ingestion URL
// without a hard-coded address.
type Server struct {
	ip   string
	port int
	usn  string
	log  zerolog.Logger
}

func NewServer(ip string, port int, log zerolog.Logger) *Server {
	return &Server{
		ip:   ip,
		port: port,
		usn:  uuid.NewSHA1(uuid.NameSpaceURL, []byte(fmt.Sprintf("hydrocore://%s:%d", ip, port))).String(),
		log:  log,
	}
}

// Start listens until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp4", multicastAddr)
	if err != nil {
		return err
	}

	conn, err := net.ListenMulticastUDP("udp4", nil, addr)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	s.log.Info().Str("location", s.location()).Msg("SSDP responder listening")

	buf := make([]byte, 1024)
	for {
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			continue
		}

		if st, ok := matches(string(buf[:n])); ok {
			s.respond(src, st)
		}
	}
}

// matches reports whether msg is an M-SEARCH we answer, and the ST to echo.
func matches(msg string) (string, bool) {
	lines := strings.Split(msg, "\r\n")
	if len(lines) == 0 || !strings.HasPrefix(strings.ToUpper(lines[0]), "M-SEARCH") {
		return "", false
	}
	for _, line := range lines[1:] {
		key, value, found := strings.Cut(line, ":")
		if !found || !strings.EqualFold(strings.TrimSpace(key), "ST") {
			continue
		}
		switch st := strings.TrimSpace(value); {
		case strings.EqualFold(st, "ssdp:all"):
			return ServiceType, true
		case strings.EqualFold(st, ServiceType), strings.EqualFold(st, "upnp:rootdevice"):
			return st, true
		}
		return "", false
	}
	return "", false
}

func (s *Server) location() string {
	return fmt.Sprintf("http://%s/api/sensors", net.JoinHostPort(s.ip, fmt.Sprint(s.port)))
}

func (s *Server) response(st string) string {
	return "HTTP/1.1 200 OK\r\n" +
		"CACHE-CONTROL: max-age=100\r\n" +
		"EXT:\r\n" +
		"LOCATION: " + s.location() + "\r\n" +
		"SERVER: hydrocore UPnP/1.1\r\n" +
		"ST: " + st + "\r\n" +
		"USN: uuid:" + s.usn + "::" + st + "\r\n\r\n"
}

func (s *Server) respond(dest *net.UDPAddr, st string) {
	conn, err := net.DialUDP("udp4", nil, dest)
	if err != nil {
		s.log.Debug().Err(err).Str("dest", dest.String()).Msg("SSDP reply failed")
		return
	}
	defer conn.Close()

	conn.Write([]byte(s.response(st)))
}

// LocalIP returns the first non-loopback IPv4 address of this host.
func LocalIP() string {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return ""
	}
	for _, address := range addrs {
		if ipnet, ok := address.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			if ipnet.IP.To4() != nil {
				return ipnet.IP.String()
			}
		}
	}
	return ""
}
