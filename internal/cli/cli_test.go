package cli

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shiplift-io/shiplift/internal/config"
	"github.com/shiplift-io/shiplift/internal/engine"
	apperrors "github.com/shiplift-io/shiplift/internal/errors"
	"github.com/shiplift-io/shiplift/internal/handoff"
	"github.com/shiplift-io/shiplift/internal/ir"
	"github.com/shiplift-io/shiplift/internal/provider"
	"github.com/shiplift-io/shiplift/internal/state"
	pkgprovider "github.com/shiplift-io/shiplift/pkg/provider"
)

func testComponents(t *testing.T) *runtimeComponents {
	t.Helper()

	cfg := &config.Config{
		Environment: "staging",
		Region:      "us-east-1",
		Backend: state.Config{
			Type:     "local",
			Settings: map[string]string{"path": filepath.Join(t.TempDir(), "staging.state.json")},
		},
		Resources: []*ir.Resource{
			{
				Type:     "local:compute.Instance",
				Name:     "web",
				Provider: "local",
				Properties: map[string]any{
					"image": "nginx:latest",
				},
			},
		},
		Outputs: []*ir.OutputSpec{
			{Name: "ec2_public_ip", Resource: "local:compute.Instance.web", Attribute: "public_ip"},
		},
	}

	backend, err := state.NewBackend(context.Background(), &cfg.Backend, cfg.Environment)
	require.NoError(t, err)

	return &runtimeComponents{
		cfg:     cfg,
		engine:  engine.New(provider.NewRegistry(cfg.ProviderSettings())),
		backend: backend,
	}
}

func TestApplyDeclaration_EndToEnd(t *testing.T) {
	rt := testComponents(t)
	ctx := context.Background()

	s, err := applyDeclaration(ctx, rt, true)
	require.NoError(t, err)
	require.Len(t, s.Resources, 1)
	assert.Equal(t, "127.0.0.1", s.Outputs["ec2_public_ip"])

	// State is persisted: a fresh read sees the applied resource and outputs.
	persisted, err := rt.backend.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, persisted.Serial)
	assert.Equal(t, "127.0.0.1", persisted.Outputs["ec2_public_ip"])

	// The lock was released: a second apply proceeds and is a no-op.
	s2, err := applyDeclaration(ctx, rt, true)
	require.NoError(t, err)
	assert.Equal(t, persisted.Serial, s2.Serial)
}

func TestApplyDeclaration_MissingOutput(t *testing.T) {
	rt := testComponents(t)
	rt.cfg.Outputs = []*ir.OutputSpec{
		{Name: "ec2_public_ip", Resource: "local:compute.Instance.web", Attribute: "nonexistent"},
	}
	ctx := context.Background()

	_, err := applyDeclaration(ctx, rt, true)
	require.Error(t, err)

	// The apply itself landed: state keeps the resource even though
	// output publication failed.
	persisted, readErr := rt.backend.Read(ctx)
	require.NoError(t, readErr)
	assert.Len(t, persisted.Resources, 1)
	assert.Empty(t, persisted.Outputs)
}

// failingWriteBackend fails every Write while delegating the rest.
type failingWriteBackend struct {
	state.Backend
}

func (f *failingWriteBackend) Write(ctx context.Context, s *ir.State) error {
	return errors.New("disk full")
}

// stuckProvider refuses deletion, forcing a destroy to fail mid-apply.
type stuckProvider struct{}

func (stuckProvider) Configure(ctx context.Context, settings map[string]string) error { return nil }

func (stuckProvider) Plan(ctx context.Context, req *pkgprovider.PlanRequest) (*pkgprovider.PlanResponse, error) {
	return &pkgprovider.PlanResponse{Action: ir.ActionNoOp}, nil
}

func (stuckProvider) Apply(ctx context.Context, req *pkgprovider.ApplyRequest) (*pkgprovider.ApplyResponse, error) {
	return &pkgprovider.ApplyResponse{}, nil
}

func (stuckProvider) Delete(ctx context.Context, req *pkgprovider.DeleteRequest) error {
	return apperrors.New(apperrors.CodeProviderRejected, "deletion protection enabled")
}

func TestDestroyState_ReportsApplyAndWriteErrors(t *testing.T) {
	rt := testComponents(t)
	ctx := context.Background()

	_, err := applyDeclaration(ctx, rt, true)
	require.NoError(t, err)

	// Destroy hits a provider that refuses deletion AND a backend that
	// cannot persist; neither failure may mask the other.
	reg := provider.NewRegistry(nil)
	reg.Register("local", stuckProvider{})
	rt.engine = engine.New(reg)
	rt.backend = &failingWriteBackend{Backend: rt.backend}

	err = destroyState(ctx, rt, true)
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeProviderRejected, apperrors.CodeOf(err))
	assert.ErrorContains(t, err, "also failed to persist state")
	assert.ErrorContains(t, err, "disk full")
}

type recordingNotifier struct {
	targets []handoff.Target
}

func (r *recordingNotifier) Notify(_ context.Context, target handoff.Target) error {
	r.targets = append(r.targets, target)
	return nil
}

func TestShip_Pipeline(t *testing.T) {
	rt := testComponents(t)

	// The local provider reports 127.0.0.1 as the public address, so a
	// loopback listener stands in for the instance's SSH daemon.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	port := ln.Addr().(*net.TCPAddr).Port

	rt.cfg.Deploy = config.DeployConfig{
		Image:                   "nginx:latest",
		ContainerName:           "app",
		SSHUser:                 "ec2-user",
		SSHPort:                 port,
		ReadinessTimeoutSeconds: 5,
	}

	notifier := &recordingNotifier{}
	require.NoError(t, ship(context.Background(), rt, notifier))

	require.Len(t, notifier.targets, 1)
	target := notifier.targets[0]
	assert.Equal(t, "127.0.0.1", target.Host)
	assert.Equal(t, port, target.Port)
	assert.Equal(t, "ec2-user", target.User)
	assert.Equal(t, "nginx:latest", target.Image)
}

func TestShip_NoImageSkipsHandoff(t *testing.T) {
	rt := testComponents(t)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	rt.cfg.Deploy = config.DeployConfig{
		SSHPort:                 ln.Addr().(*net.TCPAddr).Port,
		ReadinessTimeoutSeconds: 5,
	}

	notifier := &recordingNotifier{}
	require.NoError(t, ship(context.Background(), rt, notifier))
	assert.Empty(t, notifier.targets)
}

func TestActionSymbol(t *testing.T) {
	assert.Equal(t, "+", actionSymbol(ir.ActionCreate))
	assert.Equal(t, "-", actionSymbol(ir.ActionDelete))
	assert.Equal(t, "-/+", actionSymbol(ir.ActionReplace))
	assert.Equal(t, "~", actionSymbol(ir.ActionUpdate))
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "null", formatValue(nil))
	assert.Equal(t, `"nginx:latest"`, formatValue("nginx:latest"))
	assert.Equal(t, "42", formatValue(42))
}
