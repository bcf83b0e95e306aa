package commands

import (
	"runtime"

	"github.com/spf13/cobra"

	domainMCP "github.com/jbctechsolutions/tokenpad/internal/domain/mcp"
)

// VersionInfo holds version information for JSON output.
type VersionInfo struct {
	Version         string `json:"version"`
	GitCommit       string `json:"git_commit"`
	BuildDate       string `json:"build_date"`
	ProtocolVersion string `json:"protocol_version"`
	ServerName      string `json:"server_name"`
	GoVersion       string `json:"go_version"`
	Platform        string `json:"platform"`
}

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	var short bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  `Display the version, protocol, build information, and platform details for tokenpad.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVersion(cmd, short)
		},
	}

	cmd.Flags().BoolVarP(&short, "short", "s", false, "print only the version number")

	return cmd
}

func runVersion(cmd *cobra.Command, short bool) error {
	formatter, err := newFormatter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	jsonOut := globalFlags.Output == "json"

	if short {
		if jsonOut {
			return formatter.JSON(map[string]string{"version": Version})
		}
		formatter.Println("%s", Version)
		return nil
	}

	info := VersionInfo{
		Version:         Version,
		GitCommit:       GitCommit,
		BuildDate:       BuildDate,
		ProtocolVersion: domainMCP.ProtocolVersion,
		ServerName:      domainMCP.ServerName,
		GoVersion:       runtime.Version(),
		Platform:        runtime.GOOS + "/" + runtime.GOARCH,
	}

	if jsonOut {
		return formatter.JSON(info)
	}

	formatter.Header("Tokenpad")
	formatter.Item("Version", info.Version)
	formatter.Item("Protocol", info.ProtocolVersion)
	formatter.Item("Server", info.ServerName)
	formatter.Item("Git Commit", info.GitCommit)
	formatter.Item("Build Date", info.BuildDate)
	formatter.Item("Go Version", info.GoVersion)
	formatter.Item("Platform", info.Platform)

	return nil
}
