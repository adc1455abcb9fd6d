package handoff

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/ssh"

	apperrors "github.com/shiplift-io/shiplift/internal/errors"
	"github.com/shiplift-io/shiplift/internal/logging"
)

const (
	connectTimeout = 10 * time.Second
	commandTimeout = 2 * time.Minute
)

// SSHNotifier hands off over SSH: it connects to the ready host, pulls
// the target image, replaces the running container, and disconnects.
type SSHNotifier struct {
	// PrivateKeyPath locates the PEM key used to authenticate.
	PrivateKeyPath string
	// HostKeyCallback verifies the remote host key. Nil accepts any
	// host key, which is the norm for freshly provisioned instances
	// whose key the client has never seen.
	HostKeyCallback ssh.HostKeyCallback
}

func NewSSHNotifier(privateKeyPath string) *SSHNotifier {
	return &SSHNotifier{PrivateKeyPath: privateKeyPath}
}

// Notify connects to the target host and runs the deployment commands
// in sequence. Any failing command aborts the handoff with
// HANDOFF_FAILED.
func (n *SSHNotifier) Notify(ctx context.Context, target Target) error {
	client, err := n.connect(ctx, target)
	if err != nil {
		return err
	}
	defer client.Close()

	for _, cmd := range deployCommands(target) {
		if err := runCommand(ctx, client, cmd); err != nil {
			return err
		}
	}

	logging.Info("handoff complete", "host", target.Host, "image", target.Image)
	return nil
}

func (n *SSHNotifier) connect(ctx context.Context, target Target) (*ssh.Client, error) {
	keyBytes, err := os.ReadFile(n.PrivateKeyPath)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeHandoffFailed, "failed to read private key").
			WithOperation("handoff")
	}
	signer, err := ssh.ParsePrivateKey(keyBytes)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeHandoffFailed, "failed to parse private key").
			WithOperation("handoff")
	}

	hostKeyCallback := n.HostKeyCallback
	if hostKeyCallback == nil {
		hostKeyCallback = ssh.InsecureIgnoreHostKey()
	}

	port := target.Port
	if port == 0 {
		port = 22
	}
	addr := fmt.Sprintf("%s:%d", target.Host, port)

	config := &ssh.ClientConfig{
		User:            target.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeyCallback,
		Timeout:         connectTimeout,
	}

	client, err := ssh.Dial("tcp", addr, config)
	if err != nil {
		return nil, apperrors.Wrapf(err, apperrors.CodeHandoffFailed, "failed to connect to %s", addr).
			WithOperation("handoff")
	}
	return client, nil
}

func runCommand(ctx context.Context, client *ssh.Client, cmd string) error {
	session, err := client.NewSession()
	if err != nil {
		return apperrors.Wrap(err, apperrors.CodeHandoffFailed, "failed to open session").
			WithOperation("handoff")
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	logging.Debug("running handoff command", "cmd", cmd)

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		return apperrors.Wrapf(ctx.Err(), apperrors.CodeHandoffFailed, "command %q timed out", cmd).
			WithOperation("handoff")
	case err := <-done:
		if err != nil {
			return apperrors.Wrapf(err, apperrors.CodeHandoffFailed,
				"command %q failed: %s", cmd, stderr.String()).
				WithOperation("handoff")
		}
	}
	return nil
}

// deployCommands composes the remote container replacement sequence.
// The stop and rm steps tolerate a missing container so first deploys
// and re-deploys share one path.
func deployCommands(target Target) []string {
	name := target.ContainerName
	if name == "" {
		name = "app"
	}
	return []string{
		fmt.Sprintf("docker pull %s", target.Image),
		fmt.Sprintf("docker stop %s || true", name),
		fmt.Sprintf("docker rm %s || true", name),
		fmt.Sprintf("docker run -d --name %s --restart unless-stopped %s", name, target.Image),
	}
}
