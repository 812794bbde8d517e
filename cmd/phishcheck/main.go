// Command phishcheck evaluates URLs and emails against the PhishGuard rules,
// locally with the built-in library (or a rule pack) or remotely over gRPC.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var version = "dev"

// errPhishing signals a phishing verdict; it maps to exit code 2.
var errPhishing = errors.New("phishing detected")

// cli carries the process dependencies so commands can run against buffers in tests.
type cli struct {
	v        *viper.Viper
	in       io.Reader
	out      io.Writer
	dialOpts []grpc.DialOption
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	c := &cli{
		v:        viper.New(),
		in:       os.Stdin,
		out:      os.Stdout,
		dialOpts: []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())},
	}
	err := newRootCmd(c).ExecuteContext(ctx)
	stop()

	os.Exit(exitCode(err, os.Stderr))
}

func exitCode(err error, stderr io.Writer) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, errPhishing):
		return 2
	default:
		fmt.Fprintln(stderr, errorStyle.Render("Error: "+err.Error())) //nolint:forbidigo // User-facing output
		return 1
	}
}

func newRootCmd(c *cli) *cobra.Command {
	var cfgFile string

	root := &cobra.Command{
		Use:   "phishcheck",
		Short: "Rule-based phishing detection for URLs and emails",
		Long: `phishcheck scores a URL or an email body against weighted heuristic rules
and reports which rules matched.

Exit status is 0 for a legitimate verdict, 2 for phishing and 1 on errors.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			return c.initConfig(cfgFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (default: $HOME/.config/phishcheck/config.yaml)")
	flags.String("rules", "", "rule pack file (YAML or JSON); defaults to the built-in rules")
	flags.Float64("threshold", 0.5, "score at or above which the verdict is phishing")
	flags.Float64("normalization", 0, "raw score divisor (0 = sum of all rule weights)")
	flags.StringP("output", "o", outputText, "output format (text, json)")
	flags.String("log-level", "warn", "log level (debug, info, warn, error)")

	for _, name := range []string{"rules", "threshold", "normalization", "output"} {
		_ = c.v.BindPFlag(name, flags.Lookup(name))
	}
	_ = c.v.BindPFlag("logging.level", flags.Lookup("log-level"))

	root.AddCommand(c.urlCmd())
	root.AddCommand(c.emailCmd())
	root.AddCommand(c.rulesCmd())
	root.AddCommand(c.remoteCmd())
	root.AddCommand(c.versionCmd())

	return root
}

func (c *cli) initConfig(cfgFile string) error {
	if cfgFile != "" {
		c.v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			c.v.AddConfigPath(fmt.Sprintf("%s/.config/phishcheck", home))
		}
		c.v.AddConfigPath(".")
		c.v.SetConfigName("config")
		c.v.SetConfigType("yaml")
	}

	c.v.SetEnvPrefix("PHISHCHECK")
	c.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	c.v.AutomaticEnv()

	if err := c.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	return setupLogging(c.v.GetString("logging.level"))
}

func setupLogging(level string) error {
	var slogLevel slog.Level
	if err := slogLevel.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level: %s", level)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})))
	return nil
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(_ *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(c.out, "phishcheck %s\n", version)
			return err
		},
	}
}
