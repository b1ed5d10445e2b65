// routegrid - routing grid builder
// Reads solids from model files and scene scripts, encloses them in a cubic
// bounding volume and partitions it into a voxel grid of free and obstacle
// cells.
package main

import (
	"context"
	"io"
	"log"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"
)

var version = "dev"

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "routegrid",
		Short: "Build voxel routing grids around solid models",
		Long: `routegrid - routing grid builder

Loads STL, OBJ, glTF models and scene scripts, fuses them into one solid,
extends its bounding box into a cube and partitions the cube into a
dim x dim x dim grid of cells, marking the cells the solid occupies.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if verbose {
				log.SetOutput(cmd.ErrOrStderr())
			} else {
				log.SetOutput(io.Discard)
			}
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log progress to stderr")

	root.AddCommand(newBuildCmd(), newInfoCmd(), newGridsCmd())
	return root
}

func main() {
	if err := fang.Execute(context.Background(), newRootCmd(), fang.WithVersion(version)); err != nil {
		os.Exit(1)
	}
}
