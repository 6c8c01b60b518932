package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/mattjoyce/pointzerver/internal/config"
	"github.com/mattjoyce/pointzerver/internal/doctor"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

func runConfigCheck(args []string) int {
	fs := pflag.NewFlagSet("check", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "Path to configuration file or directory")
	strict := fs.Bool("strict", false, "Treat warnings as errors")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, resolved, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config load error: %v\n", err)
		return 1
	}
	if resolved == "" {
		resolved = "(defaults)"
	}

	result := doctor.New(cfg, doctor.Env{LookPath: exec.LookPath, Getenv: os.Getenv}).Validate()

	if *jsonOut {
		out, err := doctor.FormatJSON(result)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(out)
	} else {
		fmt.Printf("Config: %s\n", resolved)
		fmt.Printf("  command port %d, discovery %s, status %s, input %s\n",
			cfg.Command.Port,
			enabledPort(cfg.Discovery.Enabled, cfg.Discovery.Port),
			enabledString(cfg.Status.Enabled, cfg.Status.Listen),
			cfg.Input.Backend,
		)
		fmt.Print(doctor.FormatHuman(result))
	}

	if !result.Valid || (*strict && len(result.Warnings) > 0) {
		return 1
	}
	return 0
}

func runConfigLock(args []string) int {
	fs := pflag.NewFlagSet("lock", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	target := *configPath
	if target == "" {
		discovered, err := config.DiscoverConfigDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to discover config: %v\n", err)
			return 1
		}
		target = discovered
	}

	// Parse rather than Load: an existing .checksums is stale by definition here.
	data, err := readConfigFile(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
		return 1
	}
	if _, err := config.Parse(data); err != nil {
		fmt.Fprintf(os.Stderr, "Refusing to lock invalid config: %v\n", err)
		return 1
	}

	path, err := config.Lock(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}
	fmt.Printf("Wrote %s\n", path)
	return 0
}

func readConfigFile(target string) ([]byte, error) {
	path, err := config.ResolvePath(target)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

func runConfigShow(args []string) int {
	fs := pflag.NewFlagSet("show", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output as JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	var data []byte
	if *jsonOut {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
		return 1
	}
	fmt.Print(string(data))
	if *jsonOut {
		fmt.Println()
	}
	return 0
}

func enabledPort(enabled bool, port int) string {
	if !enabled {
		return "off"
	}
	return fmt.Sprintf("port %d", port)
}

func enabledString(enabled bool, v string) string {
	if !enabled {
		return "off"
	}
	return v
}
