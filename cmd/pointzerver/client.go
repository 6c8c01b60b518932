package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattjoyce/pointzerver/internal/config"
	"github.com/mattjoyce/pointzerver/internal/discovery"
	"github.com/mattjoyce/pointzerver/internal/netutil"
	"github.com/mattjoyce/pointzerver/internal/protocol"
	"github.com/mattjoyce/pointzerver/internal/tui/watch"
	"github.com/spf13/pflag"
)

func runSend(args []string) int {
	fs := pflag.NewFlagSet("send", pflag.ContinueOnError)
	host := fs.String("host", "127.0.0.1", "Service host")
	port := fs.IntP("port", "p", config.DefaultCommandPort, "Command port")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: pointzerver send [--host HOST] [--port PORT] <json>")
		return 1
	}

	cmd, err := protocol.Decode([]byte(fs.Arg(0)))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid command: %v\n", err)
		return 1
	}
	payload, err := protocol.Encode(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode command: %v\n", err)
		return 1
	}

	addr := net.JoinHostPort(*host, strconv.Itoa(*port))
	if err := sendDatagram(addr, payload); err != nil {
		fmt.Fprintf(os.Stderr, "Send failed: %v\n", err)
		return 1
	}
	fmt.Printf("sent %s to %s\n", cmd.Type, addr)
	return 0
}

func sendDatagram(addr string, payload []byte) error {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	_, err = conn.Write(payload)
	return err
}

func runDiscover(args []string) int {
	fs := pflag.NewFlagSet("discover", pflag.ContinueOnError)
	port := fs.IntP("port", "p", config.DefaultDiscoveryPort, "Discovery port")
	address := fs.String("address", "255.255.255.255", "Probe destination (broadcast or unicast)")
	timeout := fs.Duration("timeout", 2*time.Second, "How long to wait for announcements")
	jsonOut := fs.Bool("json", false, "Print announcements as JSON lines")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	anns, err := probe(context.Background(), net.JoinHostPort(*address, strconv.Itoa(*port)), *timeout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Discovery failed: %v\n", err)
		return 1
	}
	if len(anns) == 0 {
		fmt.Fprintln(os.Stderr, "No services answered")
		return 1
	}

	for _, a := range anns {
		if *jsonOut {
			b, _ := json.Marshal(a)
			fmt.Println(string(b))
			continue
		}
		fmt.Printf("%s  %s  %s:%d  %s\n", a.ID, a.Hostname, a.IP, a.CommandPort, a.Version)
	}
	return 0
}

// probe sends one discovery probe to dst and collects distinct
// announcements until timeout.
func probe(ctx context.Context, dst string, timeout time.Duration) ([]discovery.Announcement, error) {
	raddr, err := net.ResolveUDPAddr("udp4", dst)
	if err != nil {
		return nil, err
	}
	conn, err := netutil.ListenBroadcastUDP(ctx, "0.0.0.0:0")
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	if _, err := conn.WriteToUDP([]byte(`{"type":"discover"}`), raddr); err != nil {
		return nil, fmt.Errorf("send probe: %w", err)
	}
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []discovery.Announcement
	buf := make([]byte, 1024)
	for {
		n, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return out, nil
			}
			return out, err
		}
		var a discovery.Announcement
		if err := json.Unmarshal(buf[:n], &a); err != nil || a.Type != "announce" {
			continue
		}
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true
		out = append(out, a)
	}
}

func runSystemStatus(args []string) int {
	fs := pflag.NewFlagSet("status", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "Path to configuration file or directory")
	url := fs.String("url", "", "Status endpoint base URL (default from status.listen)")
	jsonOut := fs.Bool("json", false, "Output raw JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	base, err := resolveStatusURL(*configPath, *url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := watch.FetchStatus(ctx, base)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service unreachable at %s: %v\n", base, err)
		return 1
	}

	if *jsonOut {
		data, err := json.MarshalIndent(st, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	r := st.Receiver
	var b strings.Builder
	fmt.Fprintf(&b, "pointzerver %s (%s)\n", st.Version, st.InstanceID)
	fmt.Fprintf(&b, "host:           %s (%s)\n", st.Hostname, st.IP)
	fmt.Fprintf(&b, "command port:   %d\n", st.CommandPort)
	fmt.Fprintf(&b, "discovery port: %d\n", st.DiscoveryPort)
	fmt.Fprintf(&b, "input backend:  %s\n", st.InputBackend)
	fmt.Fprintf(&b, "uptime:         %s\n", time.Duration(st.UptimeSeconds)*time.Second)
	fmt.Fprintf(&b, "received:       %d (decode errors %d)\n", r.Received, r.DecodeErrors)
	fmt.Fprintf(&b, "dispatched:     %d (errors %d, slow %d)\n", r.Dispatched, r.DispatchErrors, r.SlowCommands)
	fmt.Fprintf(&b, "batches:        %d (last mean %dµs)\n", r.Batches, r.LastBatchMeanUS)
	fmt.Fprintf(&b, "app download:   %s\n", st.AppDownloadURL)
	fmt.Print(b.String())
	return 0
}

func runWatch(args []string) int {
	fs := pflag.NewFlagSet("watch", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "Path to configuration file or directory")
	url := fs.String("url", "", "Status endpoint base URL (default from status.listen)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	base, err := resolveStatusURL(*configPath, *url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	p := tea.NewProgram(watch.New(base))
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		return 1
	}
	return 0
}

func resolveStatusURL(configPath, override string) (string, error) {
	if override != "" {
		return override, nil
	}
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return "", err
	}
	return statusURL(cfg.Status.Listen), nil
}
