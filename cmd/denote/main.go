// Command denote is the command-line client of the DeNote API.
//
//	denote [-server URL] <command> [flags] [args]
//
// The session token is kept in $DENOTE_HOME/token (default
// ~/.config/denote/token).
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"denote/internal/client"
	"denote/internal/model"
)

const defaultServer = "http://localhost:8080"

type cli struct {
	server string
	store  *client.SessionStore
	stdout io.Writer
	stderr io.Writer
	// readPassword prompts for a password without echoing it.
	readPassword func(prompt string) (string, error)
	// confirm asks a yes/no question and defaults to no.
	confirm func(prompt string) (bool, error)
}

type command struct {
	usage string
	auth  bool
	run   func(c *cli, ctx context.Context, sess client.Session, args []string) error
}

var commands = map[string]command{
	"register":  {usage: "register <username>", run: (*cli).register},
	"login":     {usage: "login <username>", run: (*cli).login},
	"logout":    {usage: "logout", run: (*cli).logout},
	"dashboard": {usage: "dashboard", auth: true, run: (*cli).dashboard},
	"upload":    {usage: "upload -title T -subject S -branch B -sem N [-uploader U] <file.pdf>", auth: true, run: (*cli).upload},
	"notes":     {usage: "notes [-branch B] [-sem N] [-subject S]", auth: true, run: (*cli).notes},
	"note":      {usage: "note <id|cid>", auth: true, run: (*cli).note},
	"rate":      {usage: "rate <id> <0-5>", auth: true, run: (*cli).rate},
	"delete":    {usage: "delete [-y] <id>...", auth: true, run: (*cli).delete},
}

var commandOrder = []string{"register", "login", "logout", "dashboard", "upload", "notes", "note", "rate", "delete"}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	path, err := client.DefaultSessionPath()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	c := &cli{
		store:        client.NewSessionStore(path),
		stdout:       os.Stdout,
		stderr:       os.Stderr,
		readPassword: terminalPassword,
		confirm:      terminalConfirm,
	}
	os.Exit(c.run(ctx, os.Args[1:]))
}

func (c *cli) run(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("denote", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	server := os.Getenv("DENOTE_SERVER")
	if server == "" {
		server = defaultServer
	}
	fs.StringVar(&c.server, "server", server, "DeNote API base URL")
	fs.Usage = c.usage
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		c.usage()
		return 2
	}

	name := fs.Arg(0)
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(c.stderr, "unknown command %q\n", name)
		c.usage()
		return 2
	}

	sess, err := c.store.Load()
	if err != nil {
		fmt.Fprintln(c.stderr, err)
		return 1
	}
	if cmd.auth {
		if err := client.RequireAuth(sess); err != nil {
			fmt.Fprintf(c.stderr, "%v: run `denote login <username>`\n", err)
			return 1
		}
	}

	if err := cmd.run(c, ctx, sess, fs.Args()[1:]); err != nil {
		c.printError(err)
		return 1
	}
	return 0
}

func (c *cli) usage() {
	fmt.Fprintln(c.stderr, "usage: denote [-server URL] <command>")
	fmt.Fprintln(c.stderr, "\ncommands:")
	for _, name := range commandOrder {
		fmt.Fprintf(c.stderr, "  %s\n", commands[name].usage)
	}
}

func (c *cli) printError(err error) {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		fmt.Fprintln(c.stderr, "error:", apiErr.Message)
		if apiErr.Status == 401 {
			fmt.Fprintln(c.stderr, "your session may have expired: run `denote login <username>`")
		}
		return
	}
	fmt.Fprintln(c.stderr, "error:", err)
}

func (c *cli) api(sess client.Session) *client.Client {
	return client.New(c.server, sess.Token)
}

func (c *cli) register(ctx context.Context, sess client.Session, args []string) error {
	return c.authenticate(ctx, args, func(api *client.Client, username, password string) (*client.AuthResult, error) {
		return api.Register(ctx, username, password)
	})
}

func (c *cli) login(ctx context.Context, sess client.Session, args []string) error {
	return c.authenticate(ctx, args, func(api *client.Client, username, password string) (*client.AuthResult, error) {
		return api.Login(ctx, username, password)
	})
}

func (c *cli) authenticate(ctx context.Context, args []string, call func(*client.Client, string, string) (*client.AuthResult, error)) error {
	if len(args) != 1 {
		return errors.New("a username is required")
	}
	password, err := c.readPassword("Password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	res, err := call(client.New(c.server, ""), args[0], password)
	if err != nil {
		return err
	}
	if err := c.store.Save(client.Session{Token: res.Token, Username: res.User.Username}); err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Logged in as %s\n", res.User.Username)
	return nil
}

func (c *cli) logout(ctx context.Context, sess client.Session, args []string) error {
	if err := c.store.Clear(); err != nil {
		return err
	}
	fmt.Fprintln(c.stdout, "Logged out")
	return nil
}

func (c *cli) dashboard(ctx context.Context, sess client.Session, args []string) error {
	user, err := c.api(sess).Profile(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Welcome, %s\n", user.Username)
	fmt.Fprintf(c.stdout, "Member since %s\n\n", user.CreatedAt.Format("2 Jan 2006"))
	fmt.Fprintln(c.stdout, "  denote upload ...   share a PDF")
	fmt.Fprintln(c.stdout, "  denote notes ...    browse notes")
	fmt.Fprintln(c.stdout, "  denote logout       end the session")
	return nil
}

func (c *cli) upload(ctx context.Context, sess client.Session, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	title := fs.String("title", "", "note title")
	subject := fs.String("subject", "", "subject")
	branch := fs.String("branch", "", "branch")
	sem := fs.String("sem", "", "semester")
	uploader := fs.String("uploader", sess.Username, "uploader name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("exactly one file is required")
	}

	path := fs.Arg(0)
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	note, err := c.api(sess).UploadNote(ctx, client.Upload{
		Title:    *title,
		Subject:  *subject,
		Branch:   *branch,
		Sem:      *sem,
		Uploader: *uploader,
		Filename: filepath.Base(path),
		File:     f,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Uploaded %q\n  id:  %s\n  cid: %s\n", note.Title, note.ID, note.CID)
	return nil
}

func (c *cli) notes(ctx context.Context, sess client.Session, args []string) error {
	fs := flag.NewFlagSet("notes", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	var filter model.NoteFilter
	fs.StringVar(&filter.Branch, "branch", "", "filter by branch")
	fs.StringVar(&filter.Sem, "sem", "", "filter by semester")
	fs.StringVar(&filter.Subject, "subject", "", "filter by subject")
	if err := fs.Parse(args); err != nil {
		return err
	}

	notes, err := c.api(sess).ListNotes(ctx, filter)
	if err != nil {
		return err
	}
	if len(notes) == 0 {
		fmt.Fprintln(c.stdout, "No notes found")
		return nil
	}

	tw := tabwriter.NewWriter(c.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tSUBJECT\tBRANCH\tSEM\tRATING\tUPLOADER\tCID")
	for _, n := range notes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			n.ID, n.Title, n.Subject, n.Branch, n.Sem, stars(n.Rating), n.Uploader, n.CID)
	}
	return tw.Flush()
}

func (c *cli) note(ctx context.Context, sess client.Session, args []string) error {
	if len(args) != 1 {
		return errors.New("a note id or cid is required")
	}
	detail, err := c.api(sess).GetNote(ctx, args[0])
	if err != nil {
		return err
	}

	n := detail.Note
	tw := tabwriter.NewWriter(c.stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Title\t%s\n", n.Title)
	fmt.Fprintf(tw, "Subject\t%s\n", n.Subject)
	fmt.Fprintf(tw, "Branch\t%s\n", n.Branch)
	fmt.Fprintf(tw, "Semester\t%s\n", n.Sem)
	fmt.Fprintf(tw, "Uploader\t%s\n", n.Uploader)
	fmt.Fprintf(tw, "Rating\t%s\n", stars(n.Rating))
	fmt.Fprintf(tw, "Uploaded\t%s\n", n.CreatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(tw, "ID\t%s\n", n.ID)
	fmt.Fprintf(tw, "CID\t%s\n", n.CID)
	fmt.Fprintf(tw, "URL\t%s\n", detail.URL)
	return tw.Flush()
}

func (c *cli) rate(ctx context.Context, sess client.Session, args []string) error {
	if len(args) != 2 {
		return errors.New("usage: rate <id> <0-5>")
	}
	rating, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("rating must be a number: %q", args[1])
	}
	note, err := c.api(sess).RateNote(ctx, args[0], rating)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Rated %q %s\n", note.Title, stars(note.Rating))
	return nil
}

func (c *cli) delete(ctx context.Context, sess client.Session, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	fs.SetOutput(c.stderr)
	yes := fs.Bool("y", false, "delete without asking")
	if err := fs.Parse(args); err != nil {
		return err
	}
	ids := fs.Args()
	if len(ids) == 0 {
		return errors.New("at least one note id is required")
	}

	if !*yes {
		ok, err := c.confirm(fmt.Sprintf("Delete %d note(s)? [y/N] ", len(ids)))
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(c.stdout, "Nothing deleted")
			return nil
		}
	}

	deleted, err := c.api(sess).DeleteNotes(ctx, ids)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "Deleted %d of %d notes\n", deleted, len(ids))
	return nil
}

func stars(rating int) string {
	if rating < model.MinRating || rating > model.MaxRating {
		return strconv.Itoa(rating)
	}
	return strings.Repeat("★", rating) + strings.Repeat("☆", model.MaxRating-rating)
}

func terminalPassword(prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}
		return strings.TrimRight(line, "\r\n"), nil
	}
	fmt.Fprint(os.Stderr, prompt)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

var errConfirmNeedsTerminal = errors.New("refusing to delete without confirmation: pass -y")

func terminalConfirm(prompt string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, errConfirmNeedsTerminal
	}
	fmt.Fprint(os.Stderr, prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, err
	}
	return isYes(line), nil
}

func isYes(answer string) bool {
	switch strings.ToLower(strings.TrimSpace(answer)) {
	case "y", "yes":
		return true
	}
	return false
}
