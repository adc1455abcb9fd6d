package handoff

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/shiplift-io/shiplift/internal/errors"
)

func TestDeployCommands(t *testing.T) {
	cmds := deployCommands(Target{
		Image:         "registry.example.com/app:v2",
		ContainerName: "web",
	})

	require.Len(t, cmds, 4)
	assert.Equal(t, "docker pull registry.example.com/app:v2", cmds[0])
	assert.Equal(t, "docker stop web || true", cmds[1])
	assert.Equal(t, "docker rm web || true", cmds[2])
	assert.Equal(t, "docker run -d --name web --restart unless-stopped registry.example.com/app:v2", cmds[3])
}

func TestDeployCommands_DefaultContainerName(t *testing.T) {
	cmds := deployCommands(Target{Image: "app:latest"})
	assert.Contains(t, cmds[3], "--name app ")
}

func TestSSHNotifier_MissingKey(t *testing.T) {
	n := NewSSHNotifier("/nonexistent/key.pem")

	err := n.Notify(context.Background(), Target{
		Host: "203.0.113.7",
		User: "ec2-user",
	})
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeHandoffFailed, apperrors.CodeOf(err))
}
