package sshexec_test

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"

	"golang.org/x/crypto/ssh"

	"github.com/waggle-sensor/registration-agent/internal/testutil"
)

// commandHandler answers one exec request with stdout and an exit status.
type commandHandler func(command string) (stdout string, status uint32)

// testServer is a minimal SSH server that only understands exec requests.
type testServer struct {
	addr    string
	hostKey testutil.KeyPair
}

// keyOnlyAuth accepts user with exactly the given public key.
func keyOnlyAuth(user string, key ssh.PublicKey) func(ssh.ConnMetadata, ssh.PublicKey) (*ssh.Permissions, error) {
	return func(conn ssh.ConnMetadata, offered ssh.PublicKey) (*ssh.Permissions, error) {
		if conn.User() == user && bytes.Equal(offered.Marshal(), key.Marshal()) {
			return nil, nil
		}
		return nil, errors.New("unauthorized")
	}
}

// certAuth accepts user certificates signed by ca.
func certAuth(ca ssh.PublicKey) func(ssh.ConnMetadata, ssh.PublicKey) (*ssh.Permissions, error) {
	checker := &ssh.CertChecker{
		IsUserAuthority: func(auth ssh.PublicKey) bool {
			return bytes.Equal(auth.Marshal(), ca.Marshal())
		},
	}
	return checker.Authenticate
}

func startTestServer(t *testing.T, auth func(ssh.ConnMetadata, ssh.PublicKey) (*ssh.Permissions, error), handler commandHandler) *testServer {
	t.Helper()

	hostKey := testutil.NewKeyPair(t)
	config := &ssh.ServerConfig{PublicKeyCallback: auth}
	config.AddHostKey(hostKey.Signer)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go serveConn(conn, config, handler)
		}
	}()

	return &testServer{addr: listener.Addr().String(), hostKey: hostKey}
}

func serveConn(conn net.Conn, config *ssh.ServerConfig, handler commandHandler) {
	defer conn.Close()

	serverConn, chans, reqs, err := ssh.NewServerConn(conn, config)
	if err != nil {
		return
	}
	defer serverConn.Close()
	go ssh.DiscardRequests(reqs)

	for newChannel := range chans {
		if newChannel.ChannelType() != "session" {
			newChannel.Reject(ssh.UnknownChannelType, "unsupported channel type")
			continue
		}
		channel, requests, err := newChannel.Accept()
		if err != nil {
			return
		}
		go serveSession(channel, requests, handler)
	}
}

func serveSession(channel ssh.Channel, requests <-chan *ssh.Request, handler commandHandler) {
	defer channel.Close()

	for req := range requests {
		if req.Type != "exec" {
			req.Reply(false, nil)
			continue
		}

		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			req.Reply(false, nil)
			return
		}
		req.Reply(true, nil)

		stdout, status := handler(payload.Command)
		io.WriteString(channel, stdout)
		if status != 0 {
			io.WriteString(channel.Stderr(), "registration failed")
		}
		channel.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
		return
	}
}
