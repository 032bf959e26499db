// File: cmd/run.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/actionwatch/api/schemas"
	"github.com/xkilldash9x/actionwatch/internal/browser"
	"github.com/xkilldash9x/actionwatch/internal/config"
	"github.com/xkilldash9x/actionwatch/internal/monitor"
	"github.com/xkilldash9x/actionwatch/internal/monitor/summary"
	"github.com/xkilldash9x/actionwatch/internal/observability"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	formatText = "text"
	formatJSON = "json"

	shutdownTimeout = 10 * time.Second
)

// actor performs the user-level actions the run command can monitor.
type actor interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Type(ctx context.Context, selector, text string) error
}

type runOptions struct {
	url      string
	click    string
	typeArg  string
	navigate string

	waitForSelector  string
	waitForText      string
	waitForCondition string
	timeout          time.Duration
	debounceMs       int

	format  string
	harFile string
	headed  bool
}

func newRunCmd(root *rootOptions) *cobra.Command {
	o := &runOptions{}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Loads a page, performs one action and reports its side effects",
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return o.validate()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMonitor(cmd.Context(), cmd.OutOrStdout(), root.cfg, o)
		},
	}

	flags := runCmd.Flags()
	flags.StringVar(&o.url, "url", "", "page to load before the action (required)")
	flags.StringVar(&o.click, "click", "", "click the element matching this CSS selector")
	flags.StringVar(&o.typeArg, "type", "", "type text into an element, as SELECTOR=TEXT")
	flags.StringVar(&o.navigate, "navigate", "", "navigate to this URL")
	flags.StringVar(&o.waitForSelector, "wait-for-selector", "", "wait until this CSS selector matches")
	flags.StringVar(&o.waitForText, "wait-for-text", "", "wait until the page body contains this text")
	flags.StringVar(&o.waitForCondition, "wait-for-condition", "", "wait until this JavaScript expression is truthy")
	flags.DurationVar(&o.timeout, "timeout", 0, "stabilization timeout (default from config)")
	flags.IntVar(&o.debounceMs, "debounce-ms", 0, "DOM quiet window in milliseconds (default from config)")
	flags.StringVarP(&o.format, "format", "f", formatText, "output format: text or json")
	flags.StringVar(&o.harFile, "har", "", "write the network log to this file as HAR")
	flags.BoolVar(&o.headed, "headed", false, "show the browser window")

	_ = runCmd.MarkFlagRequired("url")
	runCmd.MarkFlagsOneRequired("click", "type", "navigate")
	runCmd.MarkFlagsMutuallyExclusive("click", "type", "navigate")
	runCmd.MarkFlagsMutuallyExclusive("wait-for-selector", "wait-for-text", "wait-for-condition")

	return runCmd
}

func (o *runOptions) validate() error {
	if strings.TrimSpace(o.url) == "" {
		return fmt.Errorf("--url must not be empty")
	}
	switch o.format {
	case formatText, formatJSON:
	default:
		return fmt.Errorf("unsupported format %q (want %s or %s)", o.format, formatText, formatJSON)
	}
	if o.timeout < 0 {
		return fmt.Errorf("--timeout must not be negative")
	}
	if o.debounceMs < 0 {
		return fmt.Errorf("--debounce-ms must not be negative")
	}
	if o.typeArg != "" {
		if _, _, err := parseTypeArg(o.typeArg); err != nil {
			return err
		}
	}
	return nil
}

// monitorOptions maps the wait flags onto the monitor's per-action options.
func (o *runOptions) monitorOptions() monitor.Options {
	return monitor.Options{
		Timeout:          o.timeout,
		WaitForSelector:  o.waitForSelector,
		WaitForText:      o.waitForText,
		WaitForCondition: o.waitForCondition,
		DebounceMs:       o.debounceMs,
	}
}

// parseTypeArg splits SELECTOR=TEXT on the first '='. TEXT may be empty.
func parseTypeArg(arg string) (selector, text string, err error) {
	selector, text, ok := strings.Cut(arg, "=")
	selector = strings.TrimSpace(selector)
	if !ok || selector == "" {
		return "", "", fmt.Errorf("invalid --type value %q: expected SELECTOR=TEXT", arg)
	}
	return selector, text, nil
}

// buildAction turns the action flags into the function to monitor and its label.
func buildAction(a actor, o *runOptions) (monitor.ActionFunc, string, error) {
	switch {
	case o.click != "":
		selector := o.click
		return func(ctx context.Context) error {
			return a.Click(ctx, selector)
		}, fmt.Sprintf("click %s", selector), nil

	case o.typeArg != "":
		selector, text, err := parseTypeArg(o.typeArg)
		if err != nil {
			return nil, "", err
		}
		return func(ctx context.Context) error {
			return a.Type(ctx, selector, text)
		}, fmt.Sprintf("type %q into %s", text, selector), nil

	case o.navigate != "":
		target := o.navigate
		return func(ctx context.Context) error {
			return a.Navigate(ctx, target)
		}, fmt.Sprintf("navigate %s", target), nil
	}
	return nil, "", fmt.Errorf("one of --click, --type or --navigate is required")
}

func runMonitor(ctx context.Context, out io.Writer, cfg *config.Config, o *runOptions) error {
	logger := observability.GetLogger()
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	if o.headed {
		cfg.SetBrowserHeadless(false)
	}

	manager, err := browser.NewManager(ctx, logger, cfg.Browser(), cfg.Monitor().Stabilization.PollInterval)
	if err != nil {
		return fmt.Errorf("failed to start browser: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := manager.Shutdown(shutdownCtx); err != nil {
			logger.Warn("Browser shutdown incomplete", zap.Error(err))
		}
	}()

	page, err := manager.NewPage(ctx)
	if err != nil {
		return err
	}
	defer page.Close()

	if err := page.Navigate(ctx, o.url); err != nil {
		return fmt.Errorf("failed to load %s: %w", o.url, err)
	}

	action, label, err := buildAction(page, o)
	if err != nil {
		return err
	}

	result, err := monitor.New(page, cfg.Monitor(), logger).MonitorAction(ctx, label, action, o.monitorOptions())
	if err != nil {
		return err
	}

	if err := writeResult(out, result, o.format); err != nil {
		return err
	}

	if o.harFile != "" {
		if err := writeHAR(o.harFile, page.NetworkLog().HAR(Version)); err != nil {
			return err
		}
		logger.Info("Network log written", zap.String("path", o.harFile))
	}
	return nil
}

func writeResult(out io.Writer, result *schemas.MonitoredActionResult, format string) error {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(result, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode result: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	default:
		_, err := io.WriteString(out, summary.Summarize(result))
		return err
	}
}

func writeHAR(path string, har *schemas.HAR) error {
	expanded, err := config.ExpandPath(path)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(har, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode HAR: %w", err)
	}
	if err := os.WriteFile(expanded, data, 0644); err != nil {
		return fmt.Errorf("failed to write HAR file: %w", err)
	}
	return nil
}
