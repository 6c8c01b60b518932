package main

import (
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/mattjoyce/pointzerver/internal/config"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage()
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		return runSystemNoun(args)
	case "config":
		return runConfigNoun(args)

	// --- ROOT ACTIONS ---
	case "start":
		if hasHelpFlag(args) {
			printSystemStartHelp()
			return 0
		}
		return runStart(args)
	case "watch":
		if hasHelpFlag(args) {
			printWatchHelp()
			return 0
		}
		return runWatch(args)
	case "send":
		if hasHelpFlag(args) {
			printSendHelp()
			return 0
		}
		return runSend(args)
	case "discover":
		if hasHelpFlag(args) {
			printDiscoverHelp()
			return 0
		}
		return runDiscover(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

// loadConfig resolves --config (or discovers one) and loads it. With no
// config anywhere the built-in defaults are returned and path is empty.
func loadConfig(configPath string) (*config.Config, string, error) {
	if configPath == "" {
		discovered, err := config.DiscoverConfigDir()
		if errors.Is(err, config.ErrNoConfig) {
			return config.Defaults(), "", nil
		}
		if err != nil {
			return nil, "", err
		}
		configPath = discovered
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, configPath, err
	}
	return cfg, configPath, nil
}

// statusURL turns the status listen address into a client URL.
func statusURL(listen string) string {
	host, port, err := net.SplitHostPort(listen)
	if err != nil {
		return "http://" + listen
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, port)
}

func printUsage() {
	fmt.Print(`pointzerver - headless remote pointer and keyboard service

Usage:
  pointzerver <noun> <action> [flags]
  pointzerver <command> [flags]

System Commands:
  system start      Start the service in the foreground
  system status     Query the running service's status endpoint

Config Commands:
  config check      Validate configuration and integrity
  config lock       Record config checksums (.checksums)
  config show       Print the resolved configuration

Client Commands:
  start             Alias for 'system start'
  watch             Live status TUI
  send <json>       Send one command datagram
  discover          Broadcast a discovery probe and list answering services

General:
  version           Show version information
  help              Show this help message

Use 'pointzerver <noun> help' for resource-specific flags.
`)
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 {
		printSystemNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printSystemNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "start":
		if hasHelpFlag(actionArgs) {
			printSystemStartHelp()
			return 0
		}
		return runStart(actionArgs)
	case "status":
		if hasHelpFlag(actionArgs) {
			printSystemStatusHelp()
			return 0
		}
		return runSystemStatus(actionArgs)
	case "watch":
		if hasHelpFlag(actionArgs) {
			printWatchHelp()
			return 0
		}
		return runWatch(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", action)
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 {
		printConfigNounHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printConfigNounHelp(os.Stdout)
		return 0
	}

	action := args[0]
	actionArgs := args[1:]

	switch action {
	case "check":
		if hasHelpFlag(actionArgs) {
			printConfigCheckHelp()
			return 0
		}
		return runConfigCheck(actionArgs)
	case "lock":
		if hasHelpFlag(actionArgs) {
			printConfigLockHelp()
			return 0
		}
		return runConfigLock(actionArgs)
	case "show":
		if hasHelpFlag(actionArgs) {
			printConfigShowHelp()
			return 0
		}
		return runConfigShow(actionArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", action)
		return 1
	}
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

func printSystemNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: pointzerver system <action>")
	fmt.Fprintln(w, "Actions: start, status, watch")
}

func printConfigNounHelp(w *os.File) {
	fmt.Fprintln(w, "Usage: pointzerver config <action> [flags]")
	fmt.Fprintln(w, "Actions: check, lock, show")
}

func printSystemStartHelp() {
	fmt.Println("Usage: pointzerver system start [--config PATH]")
	fmt.Println("Start the service in the foreground. Without a config file the built-in defaults are used.")
}

func printSystemStatusHelp() {
	fmt.Println("Usage: pointzerver system status [--config PATH] [--url URL] [--json]")
	fmt.Println("Query GET /status on the running service.")
	fmt.Println("")
	fmt.Println("Exit codes:")
	fmt.Println("  0  Service answered")
	fmt.Println("  1  Service unreachable or returned an error")
}

func printWatchHelp() {
	fmt.Println("Usage: pointzerver watch [--config PATH] [--url URL]")
	fmt.Println()
	fmt.Println("Live TUI showing identity, receiver counters and the anomaly stream.")
	fmt.Println()
	fmt.Println("Keybindings:")
	fmt.Println("  q, Ctrl+C        Quit")
	fmt.Println("  ↑/↓, k/j         Scroll anomalies")
}

func printSendHelp() {
	fmt.Println("Usage: pointzerver send [--host HOST] [--port PORT] <json>")
	fmt.Println(`Validate and send one command datagram, e.g. '{"type":"move","dx":10,"dy":0}'.`)
}

func printDiscoverHelp() {
	fmt.Println("Usage: pointzerver discover [--port PORT] [--address ADDR] [--timeout DURATION] [--json]")
	fmt.Println("Broadcast a discovery probe and print every announcement received before the timeout.")
}

func printConfigCheckHelp() {
	fmt.Println("Usage: pointzerver config check [--config PATH] [--json]")
	fmt.Println("Validate configuration syntax, values and integrity.")
}

func printConfigLockHelp() {
	fmt.Println("Usage: pointzerver config lock [--config PATH]")
	fmt.Println("Write BLAKE3 checksums of the config file to .checksums next to it.")
}

func printConfigShowHelp() {
	fmt.Println("Usage: pointzerver config show [--config PATH] [--json]")
	fmt.Println("Print the resolved configuration with defaults applied.")
}
