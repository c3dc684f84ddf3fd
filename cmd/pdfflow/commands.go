package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/pdfflow/pkg/client"
	"github.com/dukex/pdfflow/pkg/editor"
	"github.com/dukex/pdfflow/pkg/events"
	"github.com/dukex/pdfflow/pkg/log"
	"github.com/dukex/pdfflow/pkg/models"
	"github.com/dukex/pdfflow/pkg/otelhelper"
	"github.com/dukex/pdfflow/pkg/registry"
	cli "github.com/urfave/cli/v3"
)

var errUsage = errors.New("invalid arguments")

// workspace bundles what every command needs to talk to the service.
type workspace struct {
	client   *client.Client
	session  *editor.Session
	out      io.Writer
	shutdown func()
}

func (w *workspace) Close() {
	_ = w.session.Close()
	w.shutdown()
}

func newWorkspace(ctx context.Context, command *cli.Command) (*workspace, error) {
	log.Setup(command.String("log-level"), "text")

	logger := log.WithModule("pdfflow")

	tracer, shutdown := otelhelper.NoopTracer(), func() {}

	if command.Bool("tracing") {
		t, stop, err := otelhelper.NewTracer(ctx, "pdfflow")
		if err != nil {
			logger.WarnContext(ctx, "Failed to initialize tracer, tracing disabled", "error", err)
		} else {
			tracer = t
			shutdown = func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()

				_ = stop(shutdownCtx)
			}
		}
	}

	catalog, err := registry.Load(logger)
	if err != nil {
		shutdown()

		return nil, err
	}

	c := client.New(command.String("service-url"),
		client.WithTimeout(command.Duration("timeout")),
		client.WithExecuteTimeout(command.Duration("execute-timeout")),
		client.WithTracer(tracer),
	)

	out := command.Root().Writer
	if out == nil {
		out = os.Stdout
	}

	session, err := editor.New(catalog, c,
		editor.WithLogger(logger),
		editor.OnNotice(func(n events.EditorNotice) {
			if n.Level == events.NoticeError || n.Level == events.NoticeWarning {
				fmt.Fprintf(os.Stderr, "[%s] %s\n", n.Level, n.Message)
			}
		}),
	)
	if err != nil {
		shutdown()

		return nil, err
	}

	return &workspace{client: c, session: session, out: out, shutdown: shutdown}, nil
}

func NodeTypesCommand() *cli.Command {
	return &cli.Command{
		Name:  "node-types",
		Usage: "List the node types the service offers",
		Action: func(ctx context.Context, command *cli.Command) error {
			ws, err := newWorkspace(ctx, command)
			if err != nil {
				return err
			}
			defer ws.Close()

			resp, err := ws.client.NodeTypes(ctx)
			if err != nil {
				return err
			}

			for _, def := range resp.NodeTypes {
				fmt.Fprintf(ws.out, "%-10s %-22s %s\n", def.Category, def.Type, def.Label)
			}

			fmt.Fprintf(ws.out, "%d node types\n", resp.Total)

			return nil
		},
	}
}

func ListCommand() *cli.Command {
	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "List saved workflows",
		Action: func(ctx context.Context, command *cli.Command) error {
			ws, err := newWorkspace(ctx, command)
			if err != nil {
				return err
			}
			defer ws.Close()

			summaries, err := ws.session.ListSaved(ctx)
			if err != nil {
				return err
			}

			if len(summaries) == 0 {
				fmt.Fprintln(ws.out, "no saved workflows")

				return nil
			}

			for _, s := range summaries {
				fmt.Fprintf(ws.out, "%s  %-30s %2d nodes  %s\n", s.ID, s.Name, s.NodeCount, s.UpdatedAt.Format(time.DateTime))
			}

			return nil
		},
	}
}

func ShowCommand() *cli.Command {
	return &cli.Command{
		Name:      "show",
		Usage:     "Print the nodes and connections of a saved workflow",
		ArgsUsage: "<workflow-id>",
		Action: func(ctx context.Context, command *cli.Command) error {
			if command.Args().Len() != 1 {
				return fmt.Errorf("%w: show takes one workflow id", errUsage)
			}

			ws, err := newWorkspace(ctx, command)
			if err != nil {
				return err
			}
			defer ws.Close()

			warnings, err := ws.session.Open(ctx, command.Args().First())
			if err != nil {
				return err
			}

			printGraph(ws.out, ws.session)

			for _, w := range warnings {
				fmt.Fprintln(ws.out, "warning:", w.String())
			}

			return nil
		},
	}
}

func NewCommand() *cli.Command {
	return &cli.Command{
		Name:  "new",
		Usage: "Create a workflow from a chain of node types",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "Workflow name"},
			&cli.StringFlag{Name: "description", Usage: "Workflow description"},
			&cli.StringSliceFlag{
				Name:     "chain",
				Usage:    "Node types connected in order, e.g. input_file,pdf_compress,output_save",
				Required: true,
			},
			&cli.StringSliceFlag{
				Name:  "set",
				Usage: "Parameter value as <step>.<param>=<value>, step being the 1-based chain position",
			},
			&cli.StringFlag{Name: "arrange", Usage: "Layout (auto, horizontal, vertical)", Value: string(editor.ArrangeAuto)},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			ws, err := newWorkspace(ctx, command)
			if err != nil {
				return err
			}
			defer ws.Close()

			nodes, err := buildChain(ctx, ws.session, command.StringSlice("chain"))
			if err != nil {
				return err
			}

			for _, assignment := range command.StringSlice("set") {
				if err := applyAssignment(ws.session, nodes, assignment); err != nil {
					return err
				}
			}

			if err := ws.session.Arrange(editor.ArrangeMode(command.String("arrange"))); err != nil {
				return err
			}

			id, err := ws.session.Save(ctx, command.String("name"), command.String("description"))
			if err != nil {
				return err
			}

			fmt.Fprintln(ws.out, id)

			return nil
		},
	}
}

func ImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Create a workflow with one file input per file feeding a save step, and run it",
		ArgsUsage: "<file>...",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Usage: "Workflow name"},
			&cli.StringFlag{Name: "download-dir", Usage: "Directory receiving the output files"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			if command.Args().Len() == 0 {
				return fmt.Errorf("%w: import needs at least one file", errUsage)
			}

			ws, err := newWorkspace(ctx, command)
			if err != nil {
				return err
			}
			defer ws.Close()

			files, closeFiles, err := openFiles(command.Args().Slice())
			if err != nil {
				return err
			}
			defer closeFiles()

			inputs, err := ws.session.ImportFiles(files)
			if err != nil {
				return err
			}

			sink, err := ws.session.AddNode("output_save", models.Position{})
			if err != nil {
				return err
			}

			// Every file input yields all uploads, so one edge carries them.
			if _, err := ws.session.Connect(ctx, inputs[0].ID, sink.ID, "", ""); err != nil {
				return err
			}

			if err := ws.session.Arrange(editor.ArrangeAuto); err != nil {
				return err
			}

			id, err := ws.session.Save(ctx, command.String("name"), "")
			if err != nil {
				return err
			}

			fmt.Fprintln(ws.out, "saved", id)

			return execute(ctx, ws, command.String("download-dir"))
		},
	}
}

func RunCommand() *cli.Command {
	return &cli.Command{
		Name:      "run",
		Aliases:   []string{"r"},
		Usage:     "Execute a saved workflow over local files",
		ArgsUsage: "<workflow-id> <file>...",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "download-dir", Usage: "Directory receiving the output files"},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			if command.Args().Len() < 2 {
				return fmt.Errorf("%w: run takes a workflow id and at least one file", errUsage)
			}

			ws, err := newWorkspace(ctx, command)
			if err != nil {
				return err
			}
			defer ws.Close()

			if _, err := ws.session.Open(ctx, command.Args().First()); err != nil {
				return err
			}

			files, closeFiles, err := openFiles(command.Args().Tail())
			if err != nil {
				return err
			}
			defer closeFiles()

			if err := ws.session.QueueFiles(files); err != nil {
				return err
			}

			return execute(ctx, ws, command.String("download-dir"))
		},
	}
}

func DeleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Aliases:   []string{"rm"},
		Usage:     "Delete a saved workflow",
		ArgsUsage: "<workflow-id>",
		Action: func(ctx context.Context, command *cli.Command) error {
			if command.Args().Len() != 1 {
				return fmt.Errorf("%w: delete takes one workflow id", errUsage)
			}

			ws, err := newWorkspace(ctx, command)
			if err != nil {
				return err
			}
			defer ws.Close()

			if err := ws.client.Delete(ctx, command.Args().First()); err != nil {
				return err
			}

			fmt.Fprintln(ws.out, "deleted", command.Args().First())

			return nil
		},
	}
}

func execute(ctx context.Context, ws *workspace, downloadDir string) error {
	result, err := ws.session.Execute(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(ws.out, "execution %s: %s\n", result.ExecutionID, result.Status)

	for id, r := range result.NodeResults {
		if r.Error != "" {
			fmt.Fprintf(ws.out, "  %s: %s (%s)\n", id, r.Status, r.Error)
		}
	}

	if !result.Success {
		return errors.New(result.Error)
	}

	for _, f := range result.OutputFiles {
		if downloadDir == "" {
			fmt.Fprintln(ws.out, "  output:", f)

			continue
		}

		local, err := ws.session.Download(ctx, f, downloadDir)
		if err != nil {
			return err
		}

		fmt.Fprintln(ws.out, "  downloaded:", local)
	}

	return nil
}

// buildChain adds one node per type and connects each to the next.
func buildChain(ctx context.Context, session *editor.Session, types []string) ([]*models.GraphNode, error) {
	nodes := make([]*models.GraphNode, 0, len(types))

	for i, nodeType := range types {
		node, err := session.AddNode(strings.TrimSpace(nodeType), models.Position{X: float64(i) * 250})
		if err != nil {
			return nil, err
		}

		if i > 0 {
			if _, err := session.Connect(ctx, nodes[i-1].ID, node.ID, "", ""); err != nil {
				return nil, err
			}
		}

		nodes = append(nodes, node)
	}

	return nodes, nil
}

// applyAssignment parses <step>.<param>=<value> and commits it.
func applyAssignment(session *editor.Session, nodes []*models.GraphNode, assignment string) error {
	target, value, ok := strings.Cut(assignment, "=")
	if !ok {
		return fmt.Errorf("%w: %q is not <step>.<param>=<value>", errUsage, assignment)
	}

	stepText, param, ok := strings.Cut(target, ".")
	if !ok {
		return fmt.Errorf("%w: %q is not <step>.<param>=<value>", errUsage, assignment)
	}

	step, err := strconv.Atoi(stepText)
	if err != nil || step < 1 || step > len(nodes) {
		return fmt.Errorf("%w: step %q is outside the chain", errUsage, stepText)
	}

	_, err = session.CommitParameter(nodes[step-1].ID, param, value)

	return err
}

func openFiles(paths []string) ([]client.File, func(), error) {
	files := make([]client.File, 0, len(paths))
	closers := make([]io.Closer, 0, len(paths))

	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			closeAll()

			return nil, nil, err
		}

		closers = append(closers, f)
		files = append(files, client.File{Name: filepath.Base(p), Reader: f})
	}

	return files, closeAll, nil
}

func printGraph(out io.Writer, session *editor.Session) {
	fmt.Fprintf(out, "%s (%s)\n", session.Name(), session.WorkflowID())

	for _, n := range session.Store().Nodes() {
		fmt.Fprintf(out, "  node %-28s %-18s %q at (%.0f, %.0f)\n", n.ID, n.Type, n.Label, n.Position.X, n.Position.Y)
	}

	for _, e := range session.Store().Edges() {
		fmt.Fprintf(out, "  edge %s -> %s\n", e.Source, e.Target)
	}
}
