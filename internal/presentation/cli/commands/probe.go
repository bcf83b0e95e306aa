package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	adapterMCP "github.com/jbctechsolutions/tokenpad/internal/adapters/mcp"
	domainMCP "github.com/jbctechsolutions/tokenpad/internal/domain/mcp"
	"github.com/jbctechsolutions/tokenpad/internal/domain/padding"
	"github.com/jbctechsolutions/tokenpad/internal/presentation/cli/output"
)

// probeFlags holds the flags for the probe command.
type probeFlags struct {
	Exec string
	Call string
	Args string
}

const probeHelp = `Commands:
  ping                            check the server is alive
  tools                           list the registered tools
  languages                       call get_supported_languages
  detect <text>                   call detect_language
  translate <src> <tgt> <text>    call translate_text
  call <tool> [json arguments]    call any tool
  help                            show this help
  quit                            leave the probe`

// NewProbeCmd creates the probe command.
func NewProbeCmd() *cobra.Command {
	var flags probeFlags

	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Talk to a tool server interactively",
		Long: `Open a JSON-RPC client session against a tool server and call its tools.

Without --exec the probe talks to an in-process server built from the
current configuration. With --exec it starts the given command and talks
to it over stdio. Responses are shown with filler removed, along with how
much filler they carried.`,
		Example: `  # Interactive session with the local configuration
  tokenpad probe

  # One-shot call against a separately started server
  tokenpad probe --exec "tokenpad serve" --call detect_language --args '{"text":"你好"}'`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProbe(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.Exec, "exec", "", "server command to start instead of the in-process server")
	cmd.Flags().StringVar(&flags.Call, "call", "", "call this tool once and exit")
	cmd.Flags().StringVar(&flags.Args, "args", "{}", "JSON arguments for --call")

	return cmd
}

func runProbe(cmd *cobra.Command, flags probeFlags) error {
	app := GetAppContext()
	if app == nil {
		return errNotInitialized
	}
	ctx := cmd.Context()
	formatter := app.Formatter

	client, closeFn, err := connectProbe(ctx, app, flags.Exec)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := client.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize failed: %w", err)
	}

	if flags.Call != "" {
		return probeCall(ctx, client, formatter, flags.Call, json.RawMessage(flags.Args))
	}

	info := client.GetProtocolInfo()
	formatter.Info("Connected to %s %s (protocol %s)", info.ServerName, info.ServerVersion, info.ProtocolVersion)
	formatter.Println("%s", formatter.Dim("Type 'help' for commands."))

	rl, err := readline.New("tokenpad> ")
	if err != nil {
		return fmt.Errorf("could not create readline: %w", err)
	}
	defer rl.Close()

	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			if line == "" {
				return nil
			}
			continue
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		quit, err := runProbeLine(ctx, client, formatter, line)
		if err != nil {
			formatter.Error("%s", err.Error())
		}
		if quit {
			return nil
		}
	}
}

// connectProbe returns a client and a function that disconnects it.
func connectProbe(ctx context.Context, app *AppContext, execLine string) (*adapterMCP.Client, func(), error) {
	if execLine != "" {
		fields := strings.Fields(execLine)
		if len(fields) == 0 {
			return nil, nil, errors.New("--exec needs a command")
		}
		client, err := adapterMCP.NewClient(ctx, domainMCP.ServerConfig{
			Name:    "probe",
			Command: fields[0],
			Args:    fields[1:],
		})
		if err != nil {
			return nil, nil, err
		}
		return client, func() { closeClient(client) }, nil
	}

	reqR, reqW := io.Pipe()
	respR, respW := io.Pipe()
	serveCtx, cancel := context.WithCancel(ctx)
	server := app.Container.Server()

	go func() {
		err := server.Serve(serveCtx, reqR, respW)
		respW.CloseWithError(err)
	}()

	client := adapterMCP.NewStreamClient(respR, reqW)
	return client, func() {
		closeClient(client)
		cancel()
	}, nil
}

func closeClient(c *adapterMCP.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = c.Close(ctx)
}

// runProbeLine executes one REPL command. It reports whether the session
// should end.
func runProbeLine(ctx context.Context, client *adapterMCP.Client, f *output.Formatter, line string) (bool, error) {
	verb, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch verb {
	case "":
		return false, nil
	case "quit", "exit":
		return true, nil
	case "help":
		f.Println("%s", probeHelp)
		return false, nil
	case "ping":
		res, err := client.Ping(ctx)
		if err != nil {
			return false, err
		}
		f.Success("%s %s at %s", res.Server, res.Status, res.Timestamp)
		return false, nil
	case "tools":
		tools, err := client.DiscoverTools(ctx)
		if err != nil {
			return false, err
		}
		data := output.TableData{Columns: []output.TableColumn{{Header: "TOOL"}, {Header: "DESCRIPTION"}}}
		for _, t := range tools {
			data.Rows = append(data.Rows, []string{t.Name(), t.Description()})
		}
		return false, f.Table(data)
	case "languages":
		return false, probeCall(ctx, client, f, adapterMCP.ToolGetSupportedLanguages, nil)
	case "detect":
		return false, probeCall(ctx, client, f, adapterMCP.ToolDetectLanguage, adapterMCP.DetectArgs{Text: rest})
	case "translate":
		parts := strings.SplitN(rest, " ", 3)
		if len(parts) < 3 {
			return false, errors.New("usage: translate <src> <tgt> <text>")
		}
		return false, probeCall(ctx, client, f, adapterMCP.ToolTranslateText, adapterMCP.TranslateArgs{
			SourceLanguage: parts[0],
			TargetLanguage: parts[1],
			Text:           parts[2],
		})
	case "call":
		name, args, _ := strings.Cut(rest, " ")
		if name == "" {
			return false, errors.New("usage: call <tool> [json arguments]")
		}
		var raw json.RawMessage
		if args = strings.TrimSpace(args); args != "" {
			raw = json.RawMessage(args)
		}
		return false, probeCall(ctx, client, f, name, raw)
	default:
		return false, fmt.Errorf("unknown command %q (try 'help')", verb)
	}
}

// probeCall calls a tool and prints its text without filler.
func probeCall(ctx context.Context, client *adapterMCP.Client, f *output.Formatter, name string, args any) error {
	if raw, ok := args.(json.RawMessage); ok && len(raw) > 0 && !json.Valid(raw) {
		return fmt.Errorf("arguments are not valid JSON: %s", raw)
	}

	res, err := client.CallTool(ctx, name, args)
	if err != nil {
		return err
	}

	text := res.TextContent()
	if f.Format() == output.FormatJSON {
		return f.JSON(map[string]any{
			"tool":   name,
			"text":   padding.StripFiller(text),
			"filler": padding.CountFiller(text),
		})
	}

	f.Println("%s", padding.StripFiller(text))
	f.Println("%s", f.Dim(fmt.Sprintf("[%d filler characters]", padding.CountFiller(text))))
	return nil
}
