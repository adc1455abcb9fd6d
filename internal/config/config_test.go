package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/shiplift-io/shiplift/internal/errors"
)

const sampleConfig = `
environment: staging
region: us-east-1

backend:
  type: local
  settings:
    path: .shiplift/staging.state.json

provider:
  profile: deploy

resources:
  - type: aws:ec2.KeyPair
    name: deploy
    provider: aws
    properties:
      name: testkey
      public_key: "ssh-ed25519 AAAA..."

  - type: aws:ec2.SecurityGroup
    name: web
    provider: aws
    properties:
      name: web-sg
      ingress:
        - protocol: tcp
          from_port: 22
          to_port: 22
          cidr_blocks: ["0.0.0.0/0"]

  - type: aws:ec2.Instance
    name: web
    provider: aws
    properties:
      ami: ami-0953476d60561c955
      instance_type: t2.micro
      key_name: ref://aws:ec2.KeyPair/deploy/key_name
      security_group_ids:
        - ref://aws:ec2.SecurityGroup/web/id

outputs:
  - name: ec2_public_ip
    resource: aws:ec2.Instance.web
    attribute: public_ip

deploy:
  image: registry.example.com/app:v1
  ssh_user: ubuntu
  private_key_path: ~/.ssh/deploy.pem
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "shiplift.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	assert.Equal(t, "staging", cfg.Environment)
	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, "local", cfg.Backend.Type)
	require.Len(t, cfg.Resources, 3)
	assert.Equal(t, "aws:ec2.Instance.web", cfg.Resources[2].Address())
	require.Len(t, cfg.Outputs, 1)
	assert.Equal(t, "ec2_public_ip", cfg.Outputs[0].Name)
	assert.Equal(t, "registry.example.com/app:v1", cfg.Deploy.Image)
	assert.Equal(t, "ubuntu", cfg.Deploy.SSHUser)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "environment: staging\n"))
	require.NoError(t, err)

	assert.Equal(t, "us-east-1", cfg.Region)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "local", cfg.Backend.Type)
	assert.Equal(t, "app", cfg.Deploy.ContainerName)
	assert.Equal(t, "ec2-user", cfg.Deploy.SSHUser)
	assert.Equal(t, 22, cfg.Deploy.SSHPort)
	assert.Equal(t, 30*time.Second, cfg.Deploy.ReadinessTimeout())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConfigRead, apperrors.CodeOf(err))
}

func TestLoad_InvalidDeclaration(t *testing.T) {
	bad := `
environment: staging
resources:
  - type: aws:ec2.Instance
    name: web
    provider: aws
outputs:
  - name: ec2_public_ip
    resource: aws:ec2.Instance.missing
    attribute: public_ip
`
	_, err := Load(writeConfig(t, bad))
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeConfigValidation, apperrors.CodeOf(err))
}

func TestProviderSettings(t *testing.T) {
	cfg := &Config{Region: "eu-west-1", Provider: ProviderConfig{Profile: "deploy"}}
	assert.Equal(t, map[string]string{"region": "eu-west-1", "profile": "deploy"}, cfg.ProviderSettings())

	cfg = &Config{Region: "us-east-1"}
	assert.Equal(t, map[string]string{"region": "us-east-1"}, cfg.ProviderSettings())
}
