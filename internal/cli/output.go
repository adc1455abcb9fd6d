package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shiplift-io/shiplift/internal/outputs"
)

var outputJSON bool

var outputCmd = &cobra.Command{
	Use:   "output [name]",
	Short: "Show output values from state",
	Long: `Reads output values recorded by the last apply.

If no name is given, all outputs are displayed. If a name is given,
only that output's value is printed, suitable for shell substitution.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runOutput,
}

func init() {
	outputCmd.Flags().BoolVar(&outputJSON, "json", false, "Output in JSON format")
}

func runOutput(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	rt, err := setup(ctx)
	if err != nil {
		return err
	}

	s, err := rt.backend.Read(ctx)
	if err != nil {
		return err
	}

	if len(args) > 0 {
		name := args[0]
		val, ok := s.Outputs[name]
		if !ok {
			return fmt.Errorf("output %q not found", name)
		}
		if outputJSON {
			data, _ := json.Marshal(val)
			fmt.Println(string(data))
		} else {
			fmt.Println(val)
		}
		return nil
	}

	if len(s.Outputs) == 0 {
		fmt.Println("No outputs recorded.")
		return nil
	}

	if outputJSON {
		data, _ := json.MarshalIndent(s.Outputs, "", "  ")
		fmt.Println(string(data))
		return nil
	}
	for _, name := range outputs.Names(s.Outputs) {
		fmt.Printf("%s = %s\n", name, s.Outputs[name])
	}
	return nil
}
