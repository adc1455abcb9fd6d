package cli

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/spf13/cobra"

	apperrors "github.com/shiplift-io/shiplift/internal/errors"
	"github.com/shiplift-io/shiplift/internal/handoff"
	"github.com/shiplift-io/shiplift/internal/readiness"
)

// publicIPOutput is the output every deployable declaration must
// expose: the address later pipeline stages and the handoff target.
const publicIPOutput = "ec2_public_ip"

var shipCmd = &cobra.Command{
	Use:   "ship",
	Short: "Apply, wait for readiness, and hand off the deployment",
	Long: `Runs the full deployment sequence: applies the declared state, reads
the instance address from outputs, waits for the host to accept SSH
connections, then connects and replaces the running container.

The readiness wait is bounded; a host that never comes up fails the
run rather than hanging the pipeline.`,
	RunE: runShip,
}

func runShip(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := setup(ctx)
	if err != nil {
		return err
	}

	return ship(ctx, rt, handoff.NewSSHNotifier(rt.cfg.Deploy.PrivateKeyPath))
}

func ship(ctx context.Context, rt *runtimeComponents, notifier handoff.Notifier) error {
	finalState, err := applyDeclaration(ctx, rt, true)
	if err != nil {
		return err
	}

	host, ok := finalState.Outputs[publicIPOutput]
	if !ok || host == "" {
		return apperrors.Newf(apperrors.CodeMissingOutput,
			"declaration does not expose a %s output; ship needs it to reach the host", publicIPOutput).
			WithOperation("ship")
	}
	if net.ParseIP(host) == nil {
		return apperrors.Newf(apperrors.CodeMissingOutput,
			"output %s is %q, not a valid IP address", publicIPOutput, host).
			WithOperation("ship")
	}

	deploy := rt.cfg.Deploy
	addr := net.JoinHostPort(host, strconv.Itoa(deploy.SSHPort))

	fmt.Printf("\nWaiting for %s to accept connections (up to %s)...\n", addr, deploy.ReadinessTimeout())
	gate := readiness.NewGate(deploy.ReadinessTimeout())
	if err := gate.Wait(ctx, addr); err != nil {
		return err
	}
	fmt.Println("Host is ready.")

	if deploy.Image == "" {
		fmt.Println("No deploy image configured; skipping handoff.")
		return nil
	}

	fmt.Printf("Handing off %s to %s@%s...\n", deploy.Image, deploy.SSHUser, host)
	if err := notifier.Notify(ctx, handoff.Target{
		Host:          host,
		Port:          deploy.SSHPort,
		User:          deploy.SSHUser,
		Image:         deploy.Image,
		ContainerName: deploy.ContainerName,
	}); err != nil {
		return err
	}

	fmt.Println("Ship complete.")
	return nil
}
