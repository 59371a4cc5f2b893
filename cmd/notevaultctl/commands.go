package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	httphandler "github.com/ericfisherdev/notevault/internal/adapter/driving/http"
)

const defaultAddr = "http://127.0.0.1:8080"

// cli carries the state shared by every subcommand.
type cli struct {
	addr   string
	token  string
	in     io.Reader
	out    io.Writer
	prompt *prompter
}

func (c *cli) client() *apiClient {
	return newAPIClient(c.addr, c.token)
}

// prompter returns the shared prompter. Prompts go to stderr so stdout stays
// usable in command substitution.
func (c *cli) prompter(cmd *cobra.Command) *prompter {
	if c.prompt == nil {
		c.prompt = newPrompter(c.in, cmd.ErrOrStderr())
	}
	return c.prompt
}

func (c *cli) requireToken() error {
	if c.token == "" {
		return errors.New("no session: run `notevaultctl unlock` and set NOTEVAULT_SESSION or pass --token")
	}
	return nil
}

func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	c := &cli{in: in, out: out}

	root := &cobra.Command{
		Use:           "notevaultctl",
		Short:         "notevaultctl manages a notevault server",
		Long:          `Unlock, lock and recover a notevault vault and work with its notes.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(os.Stderr)

	root.PersistentFlags().StringVar(&c.addr, "addr", envOr("NOTEVAULT_ADDR", defaultAddr), "server base URL")
	root.PersistentFlags().StringVar(&c.token, "token", os.Getenv("NOTEVAULT_SESSION"), "session token from unlock")

	root.AddCommand(
		newStatusCmd(c),
		newPinCmd(c),
		newUnlockCmd(c),
		newLockCmd(c),
		newRecoverCmd(c),
		newNotesCmd(c),
		newPendingCmd(c),
		newRemoteCmd(c),
	)
	return root
}

func newStatusCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether the vault is configured, unlocked or locked out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st httphandler.StatusResponse
			if err := c.client().do(cmd.Context(), http.MethodGet, "/api/v1/vault/status", nil, &st); err != nil {
				return err
			}

			state := color.GreenString("unlocked")
			switch {
			case !st.Configured:
				state = color.YellowString("no PIN set")
			case st.LockedOut:
				state = color.RedString("locked out for %s", time.Duration(st.LockoutSeconds)*time.Second)
			case !st.Unlocked:
				state = color.YellowString("locked")
			}

			w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Vault:\t%s\n", state)
			fmt.Fprintf(w, "Attempts left:\t%d\n", st.RemainingAttempts)
			fmt.Fprintf(w, "PIN length:\t%d\n", st.PinLength)
			remote := st.RemoteBackend
			if !st.RemoteConfigured {
				remote += " (not configured)"
			}
			fmt.Fprintf(w, "Store:\t%s\n", remote)
			if st.RemoteVersion != "" {
				fmt.Fprintf(w, "Synced version:\t%s\n", st.RemoteVersion)
			}
			if st.HasPendingWrite {
				fmt.Fprintf(w, "Pending write:\t%s\n", color.YellowString("yes"))
			}
			return w.Flush()
		},
	}
}

func newPinCmd(c *cli) *cobra.Command {
	pin := &cobra.Command{
		Use:   "pin",
		Short: "Manage the vault PIN",
	}
	pin.AddCommand(&cobra.Command{
		Use:   "set",
		Short: "Set the initial PIN",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := c.prompter(cmd).newPIN()
			if err != nil {
				return err
			}
			if err := c.client().do(cmd.Context(), http.MethodPost, "/api/v1/vault/pin", httphandler.PinRequest{Pin: p}, nil); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "PIN set")
			return nil
		},
	})
	return pin
}

func newUnlockCmd(c *cli) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "unlock",
		Short: "Unlock the vault and print a session token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := c.prompter(cmd).secret("PIN")
			if err != nil {
				return err
			}
			var sess httphandler.SessionResponse
			if err := c.client().do(cmd.Context(), http.MethodPost, "/api/v1/vault/unlock", httphandler.PinRequest{Pin: p}, &sess); err != nil {
				return err
			}
			if quiet {
				fmt.Fprintln(c.out, sess.Token)
				return nil
			}
			fmt.Fprintln(c.out, "Vault unlocked. Use the session with:")
			fmt.Fprintf(c.out, "  export NOTEVAULT_SESSION=%s\n", sess.Token)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the token")
	return cmd
}

func newLockCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "lock",
		Short: "End the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.requireToken(); err != nil {
				return err
			}
			if err := c.client().do(cmd.Context(), http.MethodPost, "/api/v1/vault/lock", nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Vault locked")
			return nil
		},
	}
}

func newRecoverCmd(c *cli) *cobra.Command {
	recoverCmd := &cobra.Command{
		Use:   "recover",
		Short: "Reset a forgotten PIN with an emailed code",
	}
	recoverCmd.AddCommand(
		&cobra.Command{
			Use:   "request",
			Short: "Send a reset code to the recovery address",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := c.client().do(cmd.Context(), http.MethodPost, "/api/v1/vault/recovery", nil, nil); err != nil {
					return err
				}
				fmt.Fprintln(c.out, "Reset code sent. It expires in 15 minutes.")
				return nil
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Consume a reset code and set a new PIN",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				code, err := c.prompter(cmd).secret("Reset code")
				if err != nil {
					return err
				}
				p, err := c.prompter(cmd).newPIN()
				if err != nil {
					return err
				}
				req := httphandler.ResetRequest{Code: strings.TrimSpace(code), Pin: p}
				if err := c.client().do(cmd.Context(), http.MethodPost, "/api/v1/vault/recovery/reset", req, nil); err != nil {
					return err
				}
				fmt.Fprintln(c.out, "PIN reset. Unlock with the new PIN.")
				return nil
			},
		},
	)
	return recoverCmd
}

func newNotesCmd(c *cli) *cobra.Command {
	notes := &cobra.Command{
		Use:   "notes",
		Short: "List, read and edit notes",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.requireToken()
		},
	}

	notes.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List notes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var list []httphandler.NoteResponse
			if err := c.client().do(cmd.Context(), http.MethodGet, "/api/v1/notes", nil, &list); err != nil {
				return err
			}
			printNotes(c.out, list)
			return nil
		},
	})

	notes.AddCommand(&cobra.Command{
		Use:   "show <id>",
		Short: "Print a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var n httphandler.NoteResponse
			if err := c.client().do(cmd.Context(), http.MethodGet, "/api/v1/notes/"+args[0], nil, &n); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "# %s\n\n%s\n", n.Title, n.Content)
			return nil
		},
	})

	var title, content string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a note; content is read from stdin when --content is omitted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := c.contentOrStdin(cmd, content)
			if err != nil {
				return err
			}
			var n httphandler.NoteResponse
			req := httphandler.NoteRequest{Title: title, Content: body}
			if err := c.client().do(cmd.Context(), http.MethodPost, "/api/v1/notes", req, &n); err != nil {
				return err
			}
			fmt.Fprintln(c.out, n.ID)
			return nil
		},
	}
	create.Flags().StringVar(&title, "title", "", "note title")
	create.Flags().StringVar(&content, "content", "", "note content")
	notes.AddCommand(create)

	var editTitle, editContent string
	edit := &cobra.Command{
		Use:   "edit <id>",
		Short: "Replace a note's title and content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var current httphandler.NoteResponse
			path := "/api/v1/notes/" + args[0]
			if err := c.client().do(cmd.Context(), http.MethodGet, path, nil, &current); err != nil {
				return err
			}
			req := httphandler.NoteRequest{Title: current.Title, Content: current.Content}
			if cmd.Flags().Changed("title") {
				req.Title = editTitle
			}
			if cmd.Flags().Changed("content") {
				req.Content = editContent
			}
			if err := c.client().do(cmd.Context(), http.MethodPut, path, req, nil); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Note saved")
			return nil
		},
	}
	edit.Flags().StringVar(&editTitle, "title", "", "new title")
	edit.Flags().StringVar(&editContent, "content", "", "new content")
	notes.AddCommand(edit)

	notes.AddCommand(&cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.client().do(cmd.Context(), http.MethodDelete, "/api/v1/notes/"+args[0], nil, nil); err != nil {
				return err
			}
			fmt.Fprintln(c.out, "Note deleted")
			return nil
		},
	})

	notes.AddCommand(&cobra.Command{
		Use:   "reload",
		Short: "Discard the server cache and read notes from the store",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var list []httphandler.NoteResponse
			if err := c.client().do(cmd.Context(), http.MethodPost, "/api/v1/notes/reload", nil, &list); err != nil {
				return err
			}
			printNotes(c.out, list)
			return nil
		},
	})
	return notes
}

func newPendingCmd(c *cli) *cobra.Command {
	pending := &cobra.Command{
		Use:   "pending",
		Short: "Inspect, retry or discard a write that failed to reach the store",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return c.requireToken()
		},
	}
	pending.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show the pending write",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				var pw httphandler.PendingResponse
				if err := c.client().do(cmd.Context(), http.MethodGet, "/api/v1/notes/pending", nil, &pw); err != nil {
					return err
				}
				w := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "Path:\t%s\n", pw.Path)
				fmt.Fprintf(w, "Reason:\t%s\n", pw.Reason)
				fmt.Fprintf(w, "Base version:\t%s\n", pw.BaseVersion)
				fmt.Fprintf(w, "Saved at:\t%s\n", pw.SavedAt)
				return w.Flush()
			},
		},
		&cobra.Command{
			Use:   "retry",
			Short: "Send the pending write again",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				var list []httphandler.NoteResponse
				if err := c.client().do(cmd.Context(), http.MethodPost, "/api/v1/notes/pending/retry", nil, &list); err != nil {
					return err
				}
				fmt.Fprintf(c.out, "Pending write applied (%d notes)\n", len(list))
				return nil
			},
		},
		&cobra.Command{
			Use:   "discard",
			Short: "Drop the pending write",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				if err := c.client().do(cmd.Context(), http.MethodDelete, "/api/v1/notes/pending", nil, nil); err != nil {
					return err
				}
				fmt.Fprintln(c.out, "Pending write discarded")
				return nil
			},
		},
	)
	return pending
}

func newRemoteCmd(c *cli) *cobra.Command {
	remote := &cobra.Command{
		Use:   "remote",
		Short: "Configure the remote store",
	}
	remote.AddCommand(&cobra.Command{
		Use:   "set-token",
		Short: "Validate and store the remote API token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.requireToken(); err != nil {
				return err
			}
			tok, err := c.prompter(cmd).secret("API token")
			if err != nil {
				return err
			}
			var res httphandler.TokenResponse
			if err := c.client().do(cmd.Context(), http.MethodPut, "/api/v1/remote/token", httphandler.TokenRequest{Token: tok}, &res); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Connected to %s as %s\n", res.Backend, res.Account)
			if !res.Persisted {
				fmt.Fprintln(c.out, color.YellowString("Token held in memory only; set NOTEVAULT_SECRET_KEY to persist it."))
			}
			return nil
		},
	})
	return remote
}

func (c *cli) contentOrStdin(cmd *cobra.Command, flagValue string) (string, error) {
	if cmd.Flags().Changed("content") {
		return flagValue, nil
	}
	data, err := io.ReadAll(c.in)
	if err != nil {
		return "", fmt.Errorf("read content: %w", err)
	}
	return string(data), nil
}

func printNotes(out io.Writer, list []httphandler.NoteResponse) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No notes")
		return
	}
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tUPDATED")
	for _, n := range list {
		fmt.Fprintf(w, "%s\t%s\t%s\n", n.ID, n.Title, n.UpdatedAt)
	}
	_ = w.Flush()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

