package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/kingrea/adaapt/internal/api"
	"github.com/kingrea/adaapt/internal/auth"
	"github.com/kingrea/adaapt/internal/chat"
	"github.com/kingrea/adaapt/internal/fakeapi"
	"github.com/kingrea/adaapt/internal/selection"
	"github.com/kingrea/adaapt/internal/upload"
)

var (
	loginEmail    string
	loginPassword string

	signup auth.Signup

	uploadDomain string

	askDomains []string

	mockPort    int
	mockLatency time.Duration
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in and store the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := modeContext()
		if err != nil {
			return err
		}
		if loginPassword == "" {
			loginPassword, err = prompt("Password: ")
			if err != nil {
				return err
			}
		}
		reqCtx, cancel := ctx.RequestContext()
		defer cancel()
		out, err := ctx.Auth.Login(reqCtx, loginEmail, loginPassword)
		if err != nil {
			if out.Message == "" {
				return err
			}
			return errors.New(out.Message)
		}
		color.Green(out.Message)
		return nil
	},
}

var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := modeContext()
		if err != nil {
			return err
		}
		if signup.Password == "" {
			signup.Password, err = prompt("Password: ")
			if err != nil {
				return err
			}
		}
		reqCtx, cancel := ctx.RequestContext()
		defer cancel()
		out, err := ctx.Auth.Register(reqCtx, signup)
		var missing *auth.MissingFieldsError
		switch {
		case errors.As(err, &missing):
			return fmt.Errorf("missing required flags: %s", strings.Join(missing.Fields, ", "))
		case err != nil && out.Message != "":
			return errors.New(out.Message)
		case err != nil:
			return err
		}
		color.Green(out.Message)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the stored session",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := modeContext()
		if err != nil {
			return err
		}
		if err := ctx.Auth.Logout(); err != nil {
			return err
		}
		fmt.Println(auth.MsgLoggedOut)
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in user",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := modeContext()
		if err != nil {
			return err
		}
		reqCtx, cancel := ctx.RequestContext()
		defer cancel()
		me, err := ctx.Client.Me(reqCtx)
		if err != nil {
			return err
		}
		bold := color.New(color.Bold)
		bold.Println(me.Email)
		fmt.Printf("  name:         %s\n", me.FullName)
		fmt.Printf("  organization: %s\n", me.Organization)
		fmt.Printf("  department:   %s\n", me.Department)
		fmt.Printf("  role:         %s\n", me.Role)
		fmt.Printf("  domains:      %s\n", strings.Join(me.AllowedDomains, ", "))
		return nil
	},
}

var domainsCmd = &cobra.Command{
	Use:   "domains",
	Short: "List the departments you can access",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := modeContext()
		if err != nil {
			return err
		}
		reqCtx, cancel := ctx.RequestContext()
		defer cancel()
		listing := ctx.Directory.ListAccessible(reqCtx)
		if listing.Degraded {
			color.Yellow(listing.Warning)
		}
		if len(listing.Domains) == 0 {
			fmt.Println(upload.MsgNoDomains)
			return nil
		}
		for _, d := range listing.Domains {
			fmt.Printf("%s  %-28s %s\n", d.ID, d.Name, d.Label())
		}
		return nil
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <file>",
	Short: "Upload a document into a department",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := modeContext()
		if err != nil {
			return err
		}
		reqCtx, cancel := ctx.RequestContext()
		defer cancel()
		listing := ctx.Directory.ListAccessible(reqCtx)
		if listing.Degraded {
			color.Yellow(listing.Warning)
		}

		id, err := resolveDomain(listing.Domains, uploadDomain)
		if err != nil {
			return err
		}
		wf := upload.New()
		wf.DomainsLoaded(listing.Domains, listing.Degraded)
		if err := wf.SelectDomain(id); err != nil {
			return fmt.Errorf("department %q: %w", uploadDomain, err)
		}
		f := upload.File{Path: args[0]}
		if info, err := os.Stat(args[0]); err == nil {
			f.Size = info.Size()
		}
		if err := wf.AttachFile(f); err != nil {
			return err
		}
		req, err := wf.Submit()
		if err != nil {
			return errors.New(wf.Message())
		}
		wf.Finish(upload.Send(reqCtx, ctx.Client, req))
		if !wf.Done() {
			return errors.New(wf.Message())
		}
		journal.Info("Uploaded %s from the command line", f.Name())
		color.Green(wf.Message())
		return nil
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask a question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, err := modeContext()
		if err != nil {
			return err
		}
		reqCtx, cancel := ctx.RequestContext()
		defer cancel()
		if len(askDomains) > 0 {
			listing := ctx.Directory.ListAccessible(reqCtx)
			if listing.Degraded {
				color.Yellow(listing.Warning)
			}
			ids := make([]string, 0, len(askDomains))
			for _, d := range askDomains {
				id, err := resolveDomain(listing.Domains, d)
				if err != nil {
					return err
				}
				ids = append(ids, id)
			}
			ctx.Chat.SetSelection(selection.NewSet(ids...))
		}
		reply, err := ctx.Chat.Submit(reqCtx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		printAnswer(reply)
		if reply.Failed() {
			return errors.New("no answer")
		}
		return nil
	},
}

var mockServerCmd = &cobra.Command{
	Use:   "mock-server",
	Short: "Run an in-memory knowledge service for local development",
	Long: fmt.Sprintf(`Serves every endpoint the client uses from in-memory fixtures.

Sign in as %s with password %q.`, fakeapi.DemoEmail, fakeapi.DemoPassword),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := fakeapi.DefaultSettings()
		if cmd.Flags().Changed("port") {
			settings.Port = mockPort
		}
		srv := fakeapi.NewServer(settings,
			fakeapi.WithLogger(logger.Named("fakeapi")),
			fakeapi.WithLatency(mockLatency),
		)
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := srv.Start(ctx); err != nil {
			return err
		}
		color.Cyan("Mock knowledge service listening on %s", srv.BaseURL())
		fmt.Printf("Point the client at it with --api-url %s\n", srv.BaseURL())
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	loginCmd.Flags().StringVarP(&loginEmail, "email", "e", "", "account email")
	loginCmd.Flags().StringVarP(&loginPassword, "password", "p", "", "account password (prompted when omitted)")
	_ = loginCmd.MarkFlagRequired("email")

	registerCmd.Flags().StringVar(&signup.Email, "email", "", "account email")
	registerCmd.Flags().StringVar(&signup.FullName, "name", "", "full name")
	registerCmd.Flags().StringVar(&signup.Organization, "organization", "", "organization")
	registerCmd.Flags().StringVar(&signup.Department, "department", "", "department")
	registerCmd.Flags().StringVar(&signup.Role, "role", "", "role")
	registerCmd.Flags().StringVar(&signup.Password, "password", "", "password (prompted when omitted)")
	registerCmd.Flags().StringVar(&signup.AllowedDomains, "domains", "", "comma-separated allowed domain names")

	uploadCmd.Flags().StringVarP(&uploadDomain, "domain", "d", "", "department id or name")
	_ = uploadCmd.MarkFlagRequired("domain")

	askCmd.Flags().StringSliceVarP(&askDomains, "domain", "d", nil, "restrict the question to these departments (id or name)")

	mockServerCmd.Flags().IntVar(&mockPort, "port", fakeapi.DefaultPort, "port to listen on")
	mockServerCmd.Flags().DurationVar(&mockLatency, "latency", 0, "delay added to every response")
}

// errUnknownDepartment is returned for a --domain value that matches no
// accessible department.
var errUnknownDepartment = errors.New("unknown department")

// resolveDomain maps an id, name or display name from the listing to its id.
func resolveDomain(listing []api.Domain, value string) (string, error) {
	value = strings.TrimSpace(value)
	for _, d := range listing {
		if d.ID == value || strings.EqualFold(d.Name, value) || strings.EqualFold(d.DisplayName, value) {
			return d.ID, nil
		}
	}
	return "", fmt.Errorf("%w %q (run `adaapt domains` to list them)", errUnknownDepartment, value)
}

func printAnswer(reply chat.Message) {
	renderAnswer(os.Stdout, reply)
}

func renderAnswer(w io.Writer, reply chat.Message) {
	if reply.Failed() {
		color.New(color.FgRed).Fprintln(w, reply.Answer.Error)
		return
	}
	out := reply.Answer.Answer
	if r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(100)); err == nil {
		if rendered, err := r.Render(out); err == nil {
			out = rendered
		}
	}
	fmt.Fprint(w, out)
	if len(reply.Answer.DomainsSearched) > 0 {
		color.New(color.Faint).Fprintf(w, "Searched: %s\n", strings.Join(reply.Answer.DomainsSearched, ", "))
	}
}

func prompt(label string) (string, error) {
	fmt.Fprint(os.Stderr, label)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}
