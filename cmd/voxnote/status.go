package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/itchyny/gojq"
	"golang.org/x/term"

	"github.com/roelfdiedericks/voxnote/internal/operations"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	stateStyles = map[operations.State]lipgloss.Style{
		operations.StateRunning:   lipgloss.NewStyle().Foreground(lipgloss.Color("86")),
		operations.StatePaused:    lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		operations.StateCompleted: lipgloss.NewStyle().Foreground(lipgloss.Color("82")),
		operations.StateFailed:    lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		operations.StateCancelled: lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
	}
)

// StatusCmd lists operations known to a running server.
type StatusCmd struct {
	Server string `help:"Server URL (default from config listen address)"`
	All    bool   `short:"a" help:"Include finished operations still in their grace period"`
	JSON   bool   `help:"Print JSON even on a terminal"`
	JQ     string `name:"jq" help:"Filter the JSON output with a jq expression"`
}

func (c *StatusCmd) Run(g *Globals, ctx context.Context) error {
	base := c.Server
	if base == "" {
		cfg, _, err := g.loadConfig()
		if err != nil {
			return err
		}
		listen := cfg.HTTP.Listen
		if strings.HasPrefix(listen, ":") {
			listen = "127.0.0.1" + listen
		}
		base = "http://" + listen
	}
	url := strings.TrimRight(base, "/") + "/api/operations"
	if !c.All {
		url += "?active=true"
	}

	raw, err := fetch(ctx, url)
	if err != nil {
		return err
	}

	if c.JQ != "" {
		out, err := executeJQ(c.JQ, raw)
		if err != nil {
			return err
		}
		fmt.Println(out)
		return nil
	}

	var snaps []operations.Snapshot
	if err := json.Unmarshal(raw, &snaps); err != nil {
		return fmt.Errorf("decode operations: %w", err)
	}
	if c.JSON || !term.IsTerminal(int(os.Stdout.Fd())) {
		return printJSON(os.Stdout, snaps)
	}
	fmt.Print(renderOperations(snaps, time.Now()))
	return nil
}

func fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("server not reachable: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func renderOperations(snaps []operations.Snapshot, now time.Time) string {
	if len(snaps) == 0 {
		return dimStyle.Render("no operations") + "\n"
	}
	cols := []string{"ID", "RECORDING", "TYPE", "STATE", "PROGRESS", "PROVIDER", "AGE"}
	rows := make([][]string, 0, len(snaps))
	for _, s := range snaps {
		id := s.ID
		if len(id) > 8 {
			id = id[:8]
		}
		provider := s.Provider
		if s.Error != "" {
			provider = s.Error
		}
		rows = append(rows, []string{
			id,
			s.RecordingID,
			string(s.Type),
			string(s.State),
			fmt.Sprintf("%3.0f%%", s.Progress*100),
			provider,
			now.Sub(s.CreatedAt).Round(time.Second).String(),
		})
	}

	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = lipgloss.Width(c)
	}
	for _, r := range rows {
		for i, v := range r {
			if w := lipgloss.Width(v); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	for i, c := range cols {
		b.WriteString(headerStyle.Width(widths[i] + 2).Render(c))
	}
	b.WriteString("\n")
	for n, r := range rows {
		for i, v := range r {
			style := lipgloss.NewStyle()
			if i == 3 {
				style = stateStyles[snaps[n].State]
			}
			b.WriteString(style.Width(widths[i] + 2).Render(v))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// executeJQ runs query over a JSON document and prints one result per line.
func executeJQ(query string, data []byte) (string, error) {
	var input any
	if err := json.Unmarshal(data, &input); err != nil {
		return "", fmt.Errorf("invalid JSON: %w", err)
	}
	parsed, err := gojq.Parse(query)
	if err != nil {
		return "", fmt.Errorf("invalid jq query: %w", err)
	}

	var lines []string
	iter := parsed.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			break
		}
		if err, isErr := v.(error); isErr {
			return "", fmt.Errorf("jq error: %w", err)
		}
		if s, ok := v.(string); ok {
			lines = append(lines, s)
			continue
		}
		b, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode result: %w", err)
		}
		lines = append(lines, string(b))
	}
	return strings.Join(lines, "\n"), nil
}
