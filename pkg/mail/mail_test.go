package mail

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewSenderDefaults(t *testing.T) {
	s := NewSender(Config{Host: "smtp.example.com", Port: 587}, zap.NewNop().Sugar())
	assert.Equal(t, "smtp.example.com", s.GetHost())
	assert.Equal(t, 587, s.GetPort())

	impl, ok := s.(*sender)
	require.True(t, ok)
	assert.Equal(t, "noreply@itsm.local", impl.senderAddress)
	assert.Equal(t, "ITSM SLA Monitor", impl.senderName)
	assert.Equal(t, 3, impl.retryCount)
	assert.Equal(t, 100*time.Millisecond, impl.retryBackoff)
}

func TestNewSenderInsecure(t *testing.T) {
	s := NewSender(Config{Host: "relay", Port: 25, InsecureSkipVerify: true, SenderName: "Ops"}, zap.NewNop().Sugar())
	impl := s.(*sender)
	require.NotNil(t, impl.dialer.TLSConfig)
	assert.True(t, impl.dialer.TLSConfig.InsecureSkipVerify)
	assert.Equal(t, "Ops", impl.senderName)
}

func TestSenderSendFailsWithoutServer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	s := NewSender(Config{Host: "127.0.0.1", Port: port, RetryCount: 1, RetryBackoff: time.Millisecond}, zap.NewNop().Sugar())
	assert.Error(t, s.Send([]string{"oncall@example.com"}, "subject", "<p>body</p>"))
}

// startTestSMTPServer accepts a single message and records the DATA section.
func startTestSMTPServer(t *testing.T) (host string, port int, data func() string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		body strings.Builder
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer ln.Close()
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		fmt.Fprintf(conn, "220 localhost Test SMTP Service Ready\r\n")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			line = strings.TrimSpace(line)
			switch {
			case strings.HasPrefix(line, "EHLO"), strings.HasPrefix(line, "HELO"):
				fmt.Fprintf(conn, "250-localhost Hello\r\n250 OK\r\n")
			case strings.HasPrefix(line, "DATA"):
				fmt.Fprintf(conn, "354 End data with <CR><LF>.<CR><LF>\r\n")
				for {
					dline, derr := r.ReadString('\n')
					if derr != nil || strings.TrimSpace(dline) == "." {
						break
					}
					mu.Lock()
					body.WriteString(dline)
					mu.Unlock()
				}
				fmt.Fprintf(conn, "250 OK: queued as 12345\r\n")
			case strings.HasPrefix(line, "QUIT"):
				fmt.Fprintf(conn, "221 Bye\r\n")
				return
			default:
				fmt.Fprintf(conn, "250 OK\r\n")
			}
		}
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		wg.Wait()
	})

	return "127.0.0.1", ln.Addr().(*net.TCPAddr).Port, func() string {
		mu.Lock()
		defer mu.Unlock()
		return body.String()
	}
}

func TestSenderSendHappyPath(t *testing.T) {
	host, port, data := startTestSMTPServer(t)

	s := NewSender(Config{Host: host, Port: port, SenderAddress: "sla@example.com"}, zap.NewNop().Sugar())
	require.NoError(t, s.Send([]string{"oncall@example.com"}, "SLA violation", "<p>body</p>"))

	sent := data()
	assert.Contains(t, sent, "Subject: SLA violation")
	assert.Contains(t, sent, "sla@example.com")
}
