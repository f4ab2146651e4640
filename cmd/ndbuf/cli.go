package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/born-ml/ndbuf/internal/buffer"
	"github.com/born-ml/ndbuf/internal/envconfig"
	"github.com/born-ml/ndbuf/internal/factory"
	"github.com/born-ml/ndbuf/internal/serialization"
)

// NewCLI builds the root command.
func NewCLI() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "ndbuf",
		Short:         "Inspect typed buffers and NDBF containers",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			if version, _ := cmd.Flags().GetBool("version"); version {
				versionHandler(cmd, args)
				return
			}
			cmd.Print(cmd.UsageString())
		},
	}
	rootCmd.Flags().BoolP("version", "v", false, "Show version information")

	rootCmd.AddCommand(
		newTypesCmd(),
		newInspectCmd(),
		newExportCmd(),
		newImportCmd(),
		newEnvCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newTable(w io.Writer, header []string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

func kind(dt buffer.DataType) string {
	switch {
	case dt.IsString():
		return "string"
	case dt.IsFloatingPoint():
		return "float"
	case dt == buffer.Bool:
		return "bool"
	case dt.IsSigned():
		return "signed"
	default:
		return "unsigned"
	}
}

// TypesHandler prints which factory operations cover each data type.
func TypesHandler(cmd *cobra.Command, _ []string) error {
	name, _ := cmd.Flags().GetString("backend")
	backend, err := factory.ParseBackend(name)
	if err != nil {
		return err
	}
	f := factory.New(backend)

	header := []string{"TYPE", "SIZE", "KIND"}
	for _, op := range factory.Operations {
		header = append(header, string(op))
	}

	data := make([][]string, 0, len(buffer.DataTypes))
	for _, dt := range buffer.DataTypes {
		row := []string{dt.String(), strconv.Itoa(dt.Size()), kind(dt)}
		for _, op := range factory.Operations {
			mark := "-"
			if f.Supports(op, dt) {
				mark = "yes"
			}
			row = append(row, mark)
		}
		data = append(data, row)
	}

	table := newTable(cmd.OutOrStdout(), header)
	table.AppendBulk(data)
	table.Render()
	return nil
}

func newTypesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "types",
		Short: "List data types and the factory operations that support them",
		Args:  cobra.NoArgs,
		RunE:  TypesHandler,
	}
	cmd.Flags().String("backend", factory.CPU.Name, "Backend whose capabilities to show (cpu, cuda)")
	return cmd
}

// loadBuffers opens a container. The returned function releases everything.
func loadBuffers(path string, mapped bool) (map[string]*buffer.Buffer, serialization.Header, func() error, error) {
	if mapped {
		r, err := serialization.NewMmapReader(path, serialization.ReaderOptions{})
		if err != nil {
			return nil, serialization.Header{}, nil, err
		}
		buffers, err := r.Buffers()
		if err != nil {
			_ = r.Close()
			return nil, serialization.Header{}, nil, err
		}
		release := func() error {
			errs := make([]error, 0, len(buffers)+1)
			for _, b := range buffers {
				errs = append(errs, b.Close())
			}
			return errors.Join(append(errs, r.Close())...)
		}
		return buffers, r.Header(), release, nil
	}

	r, err := serialization.Open(path)
	if err != nil {
		return nil, serialization.Header{}, nil, err
	}
	defer r.Close()
	buffers, err := r.ReadAll()
	if err != nil {
		return nil, serialization.Header{}, nil, err
	}
	return buffers, r.Header(), func() error { return nil }, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// inspectRow describes one buffer. Numeric buffers get summary statistics.
func inspectRow(name string, b *buffer.Buffer) ([]string, error) {
	row := []string{name, b.DataType().String(), strconv.Itoa(b.Length()), strconv.Itoa(b.ByteSize())}
	if b.DataType().IsString() {
		return append(row, "-", "-", "-", "-"), nil
	}
	s, err := b.Stats()
	if err != nil {
		return nil, err
	}
	return append(row, formatFloat(s.Min), formatFloat(s.Max), formatFloat(s.Mean), formatFloat(s.StdDev)), nil
}

// InspectHandler prints every buffer of a container with its statistics.
func InspectHandler(cmd *cobra.Command, args []string) error {
	mapped, _ := cmd.Flags().GetBool("mmap")
	buffers, header, release, err := loadBuffers(args[0], mapped)
	if err != nil {
		return err
	}
	defer func() {
		if err := release(); err != nil {
			slog.Warn("failed to release buffers", "error", err)
		}
	}()

	names := make([]string, 0, len(buffers))
	for name := range buffers {
		names = append(names, name)
	}
	sort.Strings(names)

	rows := make([][]string, len(names))
	var g errgroup.Group
	g.SetLimit(max(runtime.GOMAXPROCS(0)-1, 1))
	for i, name := range names {
		g.Go(func() error {
			row, err := inspectRow(name, buffers[name])
			if err != nil {
				return fmt.Errorf("buffer %q: %w", name, err)
			}
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "format v%d, written by ndbuf %s, %d buffers\n", header.FormatVersion, header.Version, len(names))
	keys := make([]string, 0, len(header.Metadata))
	for k := range header.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %s\n", k, header.Metadata[k])
	}
	fmt.Fprintln(w)

	table := newTable(w, []string{"NAME", "DTYPE", "LENGTH", "BYTES", "MIN", "MAX", "MEAN", "STDDEV"})
	table.AppendBulk(rows)
	table.Render()
	return nil
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Show the buffers stored in an NDBF container",
		Args:  cobra.ExactArgs(1),
		RunE:  InspectHandler,
	}
	cmd.Flags().Bool("mmap", false, "Map the file instead of copying buffers onto the heap")
	return cmd
}

// ExportHandler converts the numeric buffers of a container to SafeTensors.
func ExportHandler(cmd *cobra.Command, args []string) error {
	buffers, header, release, err := loadBuffers(args[0], false)
	if err != nil {
		return err
	}
	defer func() { _ = release() }()

	numeric := make(map[string]*buffer.Buffer, len(buffers))
	for name, b := range buffers {
		if b.DataType().IsString() {
			slog.Warn("skipping string buffer", "name", name, "dtype", b.DataType())
			continue
		}
		numeric[name] = b
	}

	if err := serialization.WriteSafeTensorsFile(args[1], numeric, header.Metadata); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "exported %d of %d buffers to %s\n", len(numeric), len(buffers), args[1])
	return nil
}

func newExportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "export FILE OUT",
		Short: "Export numeric buffers of an NDBF container as SafeTensors",
		Args:  cobra.ExactArgs(2),
		RunE:  ExportHandler,
	}
}

// ImportHandler converts a SafeTensors file into an NDBF container.
func ImportHandler(cmd *cobra.Command, args []string) error {
	buffers, metadata, err := serialization.ReadSafeTensorsFile(args[0])
	if err != nil {
		return err
	}
	if err := serialization.WriteFile(args[1], buffers, metadata); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "imported %d buffers to %s\n", len(buffers), args[1])
	return nil
}

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE OUT",
		Short: "Import a SafeTensors file as an NDBF container",
		Args:  cobra.ExactArgs(2),
		RunE:  ImportHandler,
	}
}

// EnvHandler prints the configuration variables and their current values.
func EnvHandler(cmd *cobra.Command, _ []string) error {
	vars := envconfig.AsMap()
	names := make([]string, 0, len(vars))
	for name := range vars {
		names = append(names, name)
	}
	sort.Strings(names)

	data := make([][]string, 0, len(names))
	for _, name := range names {
		v := vars[name]
		data = append(data, []string{v.Name, fmt.Sprintf("%v", v.Value), v.Description})
	}

	table := newTable(cmd.OutOrStdout(), []string{"NAME", "VALUE", "DESCRIPTION"})
	table.AppendBulk(data)
	table.Render()
	return nil
}

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show configuration environment variables",
		Args:  cobra.NoArgs,
		RunE:  EnvHandler,
	}
}

func versionHandler(cmd *cobra.Command, _ []string) {
	fmt.Fprintf(cmd.OutOrStdout(), "ndbuf version %s\n", serialization.Version)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		Run:   versionHandler,
	}
}
