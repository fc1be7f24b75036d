package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	baseURL string
	timeout time.Duration
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "timetable-ctl",
		Short:        "Operations client for a running timetable API",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&baseURL, "base-url", "http://localhost:8080/api/v1", "API base URL")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 60*time.Second, "request timeout")

	root.AddCommand(buildGenerateCmd())
	root.AddCommand(buildStatusCmd())
	root.AddCommand(buildAnalyzeCmd())
	root.AddCommand(buildExportCmd())
	return root
}

func buildGenerateCmd() *cobra.Command {
	var file string
	var async bool

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run a generation request from a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("read request file: %w", err)
			}
			path := "/timetables/generate"
			if async {
				path = "/jobs/generation"
			}
			body, err := postJSON(path, payload)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "request JSON file")
	cmd.Flags().BoolVar(&async, "async", false, "queue the run and return the job id")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func buildStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job-id>",
		Short: "Poll a queued generation run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := getBody("/jobs/generation/" + args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
}

func buildAnalyzeCmd() *cobra.Command {
	var term bool

	cmd := &cobra.Command{
		Use:   "analyze <id>",
		Short: "Re-run conflict analysis for a timetable (or a whole term with --term)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/timetables/" + args[0] + "/analysis"
			if term {
				path = "/terms/" + args[0] + "/analysis"
			}
			body, err := getBody(path)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), body)
		},
	}
	cmd.Flags().BoolVar(&term, "term", false, "treat the argument as a term id and sweep all versions")
	return cmd
}

func buildExportCmd() *cobra.Command {
	var format, output string

	cmd := &cobra.Command{
		Use:   "export <timetable-id>",
		Short: "Render and download a conflict report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := json.Marshal(map[string]string{"timetableId": args[0], "format": format})
			if err != nil {
				return err
			}
			body, err := postJSON("/exports", payload)
			if err != nil {
				return err
			}
			var envelope struct {
				Data struct {
					Token  string `json:"token"`
					Format string `json:"format"`
				} `json:"data"`
			}
			if err := json.Unmarshal(body, &envelope); err != nil {
				return fmt.Errorf("decode export response: %w", err)
			}
			if envelope.Data.Token == "" {
				return fmt.Errorf("no download token in response")
			}
			data, err := getBody("/exports/" + envelope.Data.Token)
			if err != nil {
				return err
			}
			name := output
			if name == "" {
				name = fmt.Sprintf("conflicts_%s.%s", args[0], envelope.Data.Format)
			}
			if err := os.WriteFile(name, data, 0o644); err != nil {
				return fmt.Errorf("write export: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "saved %s (%d bytes)\n", name, len(data))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "csv", "export format: csv or pdf")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default conflicts_<id>.<format>)")
	return cmd
}

func httpClient() *http.Client {
	return &http.Client{Timeout: timeout}
}

func postJSON(path string, payload []byte) ([]byte, error) {
	resp, err := httpClient().Post(baseURL+path, "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	return readResponse(resp)
}

func getBody(path string) ([]byte, error) {
	resp, err := httpClient().Get(baseURL + path)
	if err != nil {
		return nil, err
	}
	return readResponse(resp)
}

func readResponse(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close() //nolint:errcheck
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("request failed (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

func printJSON(w io.Writer, body []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, body, "", "  "); err != nil {
		_, werr := w.Write(body)
		return werr
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}
