package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	api "github.com/shiv122/ecsexec/api/v1"
	"github.com/shiv122/ecsexec/internal/awsconfig"
	"github.com/shiv122/ecsexec/internal/config"
	"github.com/shiv122/ecsexec/internal/history"
	"github.com/shiv122/ecsexec/internal/tlsconfig"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// TODO: Inject version at build time.
const version = "0.0.1"

// closeTimeout bounds the CloseSession call made when exec returns.
const closeTimeout = 5 * time.Second

var flagKeys = map[string]string{
	"server-host": "server.host",
	"server-port": "server.port",
	"tls-cert":    "tls.cert",
	"tls-key":     "tls.key",
	"tls-ca":      "tls.ca",
	"profile":     "aws.default_profile",
	"region":      "aws.default_region",
}

type cli struct {
	cfg     *config.Config
	history *history.Store
	client  api.SessionServiceClient
	conn    *grpc.ClientConn
}

func newCLI() *cli {
	return &cli{}
}

func (c *cli) rootCmd() *cobra.Command {
	var configFile string

	v := viper.New()

	command := &cobra.Command{
		Use:          "ecsexecctl",
		Short:        "CLI for opening shells in ECS containers through ecsexecd",
		Version:      version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.BindFlags(v, cmd.Flags(), flagKeys); err != nil {
				return err
			}

			cfg, err := config.Load(v, configFile)
			if err != nil {
				return err
			}

			c.cfg = cfg
			c.history = history.New(cfg.History.File, cfg.History.MaxItems)

			creds := insecure.NewCredentials()

			if cfg.TLS.Enabled() {
				tlsConfig, err := tlsconfig.SetupTLS(&tlsconfig.Config{
					CertPath:   cfg.TLS.Cert,
					KeyPath:    cfg.TLS.Key,
					CACertPath: cfg.TLS.CA,
					ServerName: cfg.Server.Host,
				})
				if err != nil {
					return err
				}

				creds = credentials.NewTLS(tlsConfig)
			}

			// The connection is established lazily, so local-only commands
			// never reach the server.
			c.conn, err = grpc.NewClient(
				cfg.Addr(),
				grpc.WithTransportCredentials(creds),
			)
			if err != nil {
				return err
			}

			c.client = api.NewSessionServiceClient(c.conn)

			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if c.conn == nil {
				return nil
			}

			// Connection needs to remain open for duration of any child commands.
			return c.conn.Close()
		},
	}

	command.AddCommand(
		c.profilesCmd(),
		c.historyCmd(),
		c.toolsCmd(),
		c.clustersCmd(),
		c.servicesCmd(),
		c.tasksCmd(),
		c.describeCmd(),
		c.loginCmd(),
		c.cancelLoginCmd(),
		c.execCmd(),
	)

	command.CompletionOptions.HiddenDefaultCmd = true

	d := config.Default()

	command.PersistentFlags().StringVar(&configFile, "config", "", "Path to config file")
	command.PersistentFlags().String("server-host", d.Server.Host, "Server hostname")
	command.PersistentFlags().Int("server-port", d.Server.Port, "Server port")
	command.PersistentFlags().String("tls-cert", "", "Path to client TLS certificate (enables mTLS)")
	command.PersistentFlags().String("tls-key", "", "Path to client TLS private key")
	command.PersistentFlags().String("tls-ca", "", "Path to CA certificate for mTLS")
	command.PersistentFlags().String("profile", d.AWS.DefaultProfile, "AWS profile")
	command.PersistentFlags().String("region", d.AWS.DefaultRegion, "AWS region")

	return command
}

func (c *cli) scope() api.Scope {
	return api.Scope{
		Profile: c.cfg.AWS.DefaultProfile,
		Region:  c.cfg.AWS.DefaultRegion,
	}
}

func (c *cli) profilesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "List profiles in the local AWS config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			profiles, err := awsconfig.ListProfiles(c.cfg.AWS.ConfigFile)
			if err != nil {
				return err
			}

			for _, p := range profiles {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}

			return nil
		},
	}
}

func (c *cli) historyCmd() *cobra.Command {
	command := &cobra.Command{
		Use:   "history",
		Short: "Manage recently used exec targets",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List recent exec targets, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			entries, err := c.history.List(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

			fmt.Fprintf(w, "ID\tPROFILE\tREGION\tCLUSTER\tTASK\tCONTAINER\tLAST USED\t\n")

			for _, e := range entries {
				fmt.Fprintf(
					w,
					"%s\t%s\t%s\t%s\t%s\t%s\t%s\t\n",
					e.ID,
					e.Profile,
					e.Region,
					e.Cluster,
					e.Task,
					e.Container,
					e.Timestamp.Local().Format(time.DateTime),
				)
			}

			return w.Flush()
		},
	}

	rm := &cobra.Command{
		Use:     "rm [flags] ENTRY_ID",
		Short:   "Remove an entry from history",
		Example: "  ecsexecctl history rm dev-eu-north-1-main-abc123-app-/bin/bash",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			removed, err := c.history.Delete(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if !removed {
				return errors.New("not found")
			}

			return nil
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove every entry from history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.history.Clear(cmd.Context())
		},
	}

	command.AddCommand(list, rm, clearCmd)

	return command
}

func (c *cli) toolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Check the tools the server needs are installed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.client.CheckTools(cmd.Context(), &structpb.Struct{})
			if err != nil {
				return mapError(err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)

			fmt.Fprintf(w, "TOOL\tINSTALLED\tVERSION\t\n")

			for _, tool := range api.Tools(resp) {
				fmt.Fprintf(w, "%s\t%t\t%s\t\n", tool.Name, tool.Installed, tool.Version)
			}

			return w.Flush()
		},
	}
}

func printLines(w io.Writer, lines []string) {
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
}

func (c *cli) clustersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clusters",
		Short: "List ECS clusters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.client.ListClusters(
				cmd.Context(),
				api.ListClustersRequest{Scope: c.scope()}.Struct(),
			)
			if err != nil {
				return mapError(err)
			}

			printLines(cmd.OutOrStdout(), api.Strings(resp))

			return nil
		},
	}
}

func (c *cli) servicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "services [flags] CLUSTER",
		Short:   "List services in a cluster",
		Example: "  ecsexecctl services main --profile dev",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.client.ListServices(
				cmd.Context(),
				api.ListServicesRequest{Scope: c.scope(), Cluster: args[0]}.Struct(),
			)
			if err != nil {
				return mapError(err)
			}

			printLines(cmd.OutOrStdout(), api.Strings(resp))

			return nil
		},
	}
}

func (c *cli) tasksCmd() *cobra.Command {
	var service string

	command := &cobra.Command{
		Use:     "tasks [flags] CLUSTER",
		Short:   "List tasks in a cluster",
		Example: "  ecsexecctl tasks main --service web",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.client.ListTasks(
				cmd.Context(),
				api.ListTasksRequest{
					Scope:   c.scope(),
					Cluster: args[0],
					Service: service,
				}.Struct(),
			)
			if err != nil {
				return mapError(err)
			}

			printLines(cmd.OutOrStdout(), api.Strings(resp))

			return nil
		},
	}

	command.Flags().StringVar(&service, "service", "", "Only list tasks of this service")

	return command
}

func (c *cli) describeCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "describe [flags] CLUSTER TASK",
		Short:   "Describe a task as JSON",
		Example: "  ecsexecctl describe main arn:aws:ecs:eu-north-1:123456789012:task/main/abc123",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.client.DescribeTasks(
				cmd.Context(),
				api.DescribeTasksRequest{
					Scope:   c.scope(),
					Cluster: args[0],
					Task:    args[1],
				}.Struct(),
			)
			if err != nil {
				return mapError(err)
			}

			out, err := json.MarshalIndent(resp.AsInterface(), "", "  ")
			if err != nil {
				return fmt.Errorf("encode description: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), string(out))

			return nil
		},
	}
}

func (c *cli) loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "login",
		Short:   "Sign in with AWS SSO on the server host",
		Example: "  ecsexecctl login --profile dev",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.client.Login(
				cmd.Context(),
				api.LoginRequest{Profile: c.cfg.AWS.DefaultProfile}.Struct(),
			)
			if err != nil {
				return mapError(err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), resp.GetStringValue())

			return nil
		},
	}
}

func (c *cli) cancelLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "cancel-login",
		Aliases: []string{"logout"},
		Short:   "Cancel an SSO login in progress",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := c.client.CancelLogin(
				cmd.Context(),
				api.LoginRequest{Profile: c.cfg.AWS.DefaultProfile}.Struct(),
			)
			if err != nil {
				return mapError(err)
			}

			if !resp.GetBoolValue() {
				fmt.Fprintln(cmd.OutOrStdout(), "No SSO login in progress")
				return nil
			}

			fmt.Fprintln(cmd.OutOrStdout(), "SSO login cancelled")

			return nil
		},
	}
}

func (c *cli) execCmd() *cobra.Command {
	var (
		shell       string
		fromHistory string
	)

	command := &cobra.Command{
		Use:   "exec [flags] CLUSTER TASK CONTAINER",
		Short: "Open an interactive shell in a container",
		Example: "  ecsexecctl exec main abc123 app --profile dev\n" +
			"  ecsexecctl exec --from-history dev-eu-north-1-main-abc123-app-/bin/bash",
		Args: func(cmd *cobra.Command, args []string) error {
			if fromHistory != "" {
				return cobra.NoArgs(cmd, args)
			}

			return cobra.ExactArgs(3)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := c.execTarget(cmd.Context(), args, shell, fromHistory)
			if err != nil {
				return err
			}

			return c.exec(cmd, target)
		},
	}

	command.Flags().StringVar(&shell, "shell", "", "Shell to run (server default if empty)")
	command.Flags().StringVar(&fromHistory, "from-history", "", "Reconnect to a target from history by id")

	return command
}

func (c *cli) execTarget(
	ctx context.Context,
	args []string,
	shell string,
	fromHistory string,
) (api.StartSessionRequest, error) {
	if fromHistory == "" {
		return api.StartSessionRequest{
			Scope:     c.scope(),
			Cluster:   args[0],
			Task:      args[1],
			Container: args[2],
			Shell:     shell,
		}, nil
	}

	entries, err := c.history.List(ctx)
	if err != nil {
		return api.StartSessionRequest{}, err
	}

	for _, e := range entries {
		if e.ID != fromHistory {
			continue
		}

		if shell == "" {
			shell = e.Shell
		}

		return api.StartSessionRequest{
			Scope:     api.Scope{Profile: e.Profile, Region: e.Region},
			Cluster:   e.Cluster,
			Task:      e.Task,
			Container: e.Container,
			Shell:     shell,
		}, nil
	}

	return api.StartSessionRequest{}, fmt.Errorf("history entry %q not found", fromHistory)
}

// exec runs an interactive session: it subscribes to the session's events,
// starts it once the subscription is ready and then relays stdin and output
// until the session exits.
func (c *cli) exec(cmd *cobra.Command, target api.StartSessionRequest) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	target.SessionID = uuid.NewString()

	stream, err := c.client.Watch(ctx, api.SessionRequest{SessionID: target.SessionID}.Struct())
	if err != nil {
		return mapError(err)
	}

	ready, err := stream.Recv()
	if err != nil {
		return mapError(err)
	}

	if kind := api.ParseWatchEvent(ready).Kind; kind != api.EventReady {
		return fmt.Errorf("unexpected first event %q", kind)
	}

	if _, err := c.client.StartSession(ctx, target.Struct()); err != nil {
		return mapError(err)
	}

	defer c.closeSession(cmd, target.SessionID)

	c.recordHistory(cmd, target)

	stdin := cmd.InOrStdin()

	if f, ok := stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		oldState, err := term.MakeRaw(int(f.Fd()))
		if err != nil {
			return fmt.Errorf("set raw terminal mode: %w", err)
		}

		defer term.Restore(int(f.Fd()), oldState)
	}

	go c.forwardInput(ctx, stdin, target.SessionID)

	for {
		msg, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || status.Code(err) == codes.Canceled {
				return nil
			}

			return mapError(err)
		}

		event := api.ParseWatchEvent(msg)

		switch event.Kind {
		case api.EventData:
			io.WriteString(cmd.OutOrStdout(), event.Payload)
		case api.EventError:
			io.WriteString(cmd.ErrOrStderr(), event.Payload)
		case api.EventExit:
			return nil
		}
	}
}

// forwardInput sends everything read from r to the session until r is
// exhausted or ctx is done.
func (c *cli) forwardInput(ctx context.Context, r io.Reader, sessionID string) {
	buf := make([]byte, 1024)

	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, sendErr := c.client.SendInput(ctx, api.SendInputRequest{
				SessionID: sessionID,
				Data:      buf[:n],
			}.Struct()); sendErr != nil {
				return
			}
		}

		if err != nil {
			return
		}
	}
}

func (c *cli) closeSession(cmd *cobra.Command, sessionID string) {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()

	if _, err := c.client.CloseSession(
		ctx,
		api.SessionRequest{SessionID: sessionID}.Struct(),
	); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "close session: %v\n", mapError(err))
	}
}

// recordHistory remembers target. Failing to do so doesn't fail the session.
func (c *cli) recordHistory(cmd *cobra.Command, target api.StartSessionRequest) {
	profile := target.Profile
	if profile == "" {
		profile = awsconfig.DefaultProfile
	}

	if _, err := c.history.Add(cmd.Context(), history.Entry{
		Profile:   profile,
		Region:    target.Region,
		Cluster:   target.Cluster,
		Task:      target.Task,
		Container: target.Container,
		Shell:     target.Shell,
	}); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "record history in %s: %v\n", c.history.Path(), err)
	}
}

// mapError translates gRPC errors to human-readable messages.
func mapError(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.NotFound:
		return errors.New("not found")
	case codes.PermissionDenied:
		return errors.New("permission denied")
	case codes.Unauthenticated:
		return errors.New("not authenticated")
	case codes.Unavailable:
		return errors.New("server unavailable")
	case codes.DeadlineExceeded:
		return fmt.Errorf("timed out: %s", st.Message())
	case codes.Canceled:
		return errors.New("cancelled")
	case codes.Internal:
		return errors.New("internal server error")
	default:
		return fmt.Errorf("%s", st.Message())
	}
}
