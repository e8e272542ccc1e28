package cli

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

var versionVerbose bool

var versionCmd = &cobra.Command{
	Use:         "version",
	Short:       "Print the Mira version",
	Annotations: map[string]string{skipBootstrap: "true"},
	Run: func(cmd *cobra.Command, _ []string) {
		cmd.Printf("mira version %s\n", version)
		if versionVerbose {
			info, _ := debug.ReadBuildInfo()
			writeBuildInfo(cmd.OutOrStdout(), info)
		}
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionVerbose, "build", false, "also print Go version, platform and VCS revision")
	rootCmd.AddCommand(versionCmd)
}

// writeBuildInfo prints the toolchain and, when the binary was built from a
// checkout, the commit it was built from.
func writeBuildInfo(w io.Writer, info *debug.BuildInfo) {
	fmt.Fprintf(w, "  go:       %s\n", runtime.Version())
	fmt.Fprintf(w, "  platform: %s/%s\n", runtime.GOOS, runtime.GOARCH)
	if info == nil {
		return
	}

	var revision, modified string
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value
		}
	}
	if revision == "" {
		return
	}
	if len(revision) > 12 {
		revision = revision[:12]
	}
	if modified == "true" {
		revision += " (modified)"
	}
	fmt.Fprintf(w, "  commit:   %s\n", revision)
}
