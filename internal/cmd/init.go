package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thatjpcsguy/portman/internal/direnv"
)

// NewInitCmd creates the init command
func NewInitCmd() *cobra.Command {
	var (
		shell     bool
		useDirenv bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Show setup instructions",
		Long: `Shows how to wire portman into a project via direnv.

Examples:
  portman init
  portman init --direnv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if useDirenv {
				fmt.Println("Add to your .envrc:")
				fmt.Printf("%s\n", green(direnv.EnvrcSnippet()))
				return nil
			}

			if shell {
				fmt.Println("Direnv helper function:")
				fmt.Println(direnv.DirenvrcHelper())
				return nil
			}

			fmt.Println("Portman Setup")
			fmt.Println()
			fmt.Println("1. Install direnv if not already installed:")
			fmt.Printf("   %s\n", dim("brew install direnv  # macOS"))
			fmt.Printf("   %s\n", dim("apt install direnv   # Debian/Ubuntu"))
			fmt.Println()
			fmt.Println("2. Add to your project's .envrc:")
			fmt.Printf("   %s\n", green(`eval "$(portman export --auto)"`))
			fmt.Println()
			fmt.Println("3. Allow direnv:")
			fmt.Printf("   %s\n", dim("direnv allow"))
			fmt.Println()
			fmt.Println("4. Done! Ports will be allocated automatically.")
			fmt.Println()
			fmt.Printf("%s\n", dim("Tip: Run 'portman status' to see your allocations"))
			return nil
		},
	}

	cmd.Flags().BoolVar(&shell, "shell", false, "Output the direnvrc helper function")
	cmd.Flags().BoolVar(&useDirenv, "direnv", false, "Output the .envrc integration snippet")

	return cmd
}
