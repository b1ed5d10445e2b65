package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/chazu/routegrid/pkg/geom"
	"github.com/chazu/routegrid/pkg/models"
	"github.com/chazu/routegrid/pkg/store"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <model.stl|model.obj|model.glb>",
		Short: "Display model information",
		Long:  "Display the format, triangle count and bounding box of a model file.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			info, err := os.Stat(path)
			if err != nil {
				return fmt.Errorf("cannot access file: %w", err)
			}
			format, _ := models.DetectFormat(path)
			m, err := models.Load(path)
			if err != nil {
				return fmt.Errorf("load model: %w", err)
			}
			b := geom.BoxFromArrays(m.Bounds())
			size := b.Size()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "File:       %s\n", filepath.Base(path))
			fmt.Fprintf(out, "Format:     %s\n", strings.ToUpper(string(format)))
			fmt.Fprintf(out, "Size:       %.2f KB\n", float64(info.Size())/1024)
			fmt.Fprintf(out, "Vertices:   %d\n", m.VertexCount())
			fmt.Fprintf(out, "Triangles:  %d\n", m.TriangleCount())
			fmt.Fprintf(out, "Bounds:     %v\n", b)
			fmt.Fprintf(out, "Dimensions: %.3f x %.3f x %.3f\n", size[0], size[1], size[2])
			return nil
		},
	}
}

func newGridsCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "grids",
		Short: "Inspect saved grids",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "routegrid.db", "Grid database path")

	list := &cobra.Command{
		Use:   "list",
		Short: "List saved grids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()
			records, err := s.List(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "no saved grids")
				return nil
			}
			for _, r := range records {
				fmt.Fprintln(out, r)
			}
			return nil
		},
	}

	var asJSON bool
	show := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a saved grid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("grid id %q: %w", args[0], err)
			}
			s, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()
			r, err := s.Get(cmd.Context(), id)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(r)
			}
			g, err := s.Load(cmd.Context(), id)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "ID:         %s\n", r.ID)
			fmt.Fprintf(out, "Name:       %s\n", r.Name)
			fmt.Fprintf(out, "Created:    %s\n", r.Created.Format("2006-01-02 15:04:05"))
			fmt.Fprintf(out, "Bounds:     %v\n", r.Raw)
			fmt.Fprintf(out, "Cube:       %v\n", r.Cube)
			fmt.Fprintf(out, "Grid:       %d^3, pitch %.4g\n", r.Dim, r.Pitch)
			fmt.Fprintf(out, "Stats:      %v\n", g.Stats())
			return nil
		},
	}
	show.Flags().BoolVar(&asJSON, "json", false, "Print the grid record as JSON")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a saved grid",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("grid id %q: %w", args[0], err)
			}
			s, err := store.Open(dbPath)
			if err != nil {
				return err
			}
			defer s.Close()
			if err := s.Delete(cmd.Context(), id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted:    %s\n", id)
			return nil
		},
	}

	cmd.AddCommand(list, show, del)
	return cmd
}
