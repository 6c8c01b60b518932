package main

import (
	"cmp"
	"encoding/json"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Set with -ldflags "-X main.version=... -X main.gitCommit=... -X main.buildDate=...".
var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := pflag.NewFlagSet("version", pflag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() > 0 {
		fmt.Fprintln(os.Stderr, "Usage: pointzerver version [--json]")
		return 1
	}

	info := currentVersionInfo()
	if *jsonOut {
		data, _ := json.MarshalIndent(info, "", "  ")
		fmt.Println(string(data))
		return 0
	}
	fmt.Printf("pointzerver %s (commit %s, built %s)\n", info.Version, info.Commit, info.BuildTime)
	return 0
}

// currentVersionInfo prefers ldflags values and falls back to the VCS
// stamps the Go toolchain embeds.
func currentVersionInfo() versionInfo {
	vcs := map[string]string{}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			vcs[s.Key] = s.Value
		}
	}

	info := versionInfo{
		Version:   cmp.Or(strings.TrimSpace(version), "0.0.0-dev"),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if commit := cmp.Or(known(gitCommit), vcs["vcs.revision"]); commit != "" {
		info.Commit = commit[:min(len(commit), 12)]
	}
	if t, err := time.Parse(time.RFC3339Nano, cmp.Or(known(buildDate), vcs["vcs.time"])); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func known(v string) string {
	v = strings.TrimSpace(v)
	if v == "unknown" {
		return ""
	}
	return v
}
