package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"denote/internal/app"
	"denote/internal/auth"
	"denote/internal/config"
	apperr "denote/internal/errors"
	"denote/internal/logging"
	"denote/internal/service"
)

const passwordEnvVar = "DENOTE_SEED_PASSWORD"

var errNoPassword = errors.New("no password for the import user: pass -password, set " + passwordEnvVar + " or run from a terminal")

type importOptions struct {
	Dir      string
	Branch   string
	Sem      string
	Subject  string
	Uploader string
}

type importResult struct {
	Created int
	Skipped int
}

func main() {
	var (
		opts     importOptions
		username string
		password string
	)
	flag.StringVar(&opts.Dir, "dir", ".", "directory to import PDFs from")
	flag.StringVar(&opts.Branch, "branch", "", "branch of every imported note")
	flag.StringVar(&opts.Sem, "sem", "", "semester of every imported note")
	flag.StringVar(&opts.Subject, "subject", "", "subject of every imported note")
	flag.StringVar(&opts.Uploader, "uploader", "", "uploader label (default: the demo user)")
	flag.StringVar(&username, "user", "demo", "user the notes are imported as")
	flag.StringVar(&password, "password", "", "password of the import user (default: $"+passwordEnvVar+", else prompted)")
	flag.Parse()

	stdin := int(os.Stdin.Fd())
	password, err := importPassword(password, os.Getenv(passwordEnvVar), term.IsTerminal(stdin), func() (string, error) {
		fmt.Fprintf(os.Stderr, "Password for %s: ", username)
		raw, err := term.ReadPassword(stdin)
		fmt.Fprintln(os.Stderr)
		return string(raw), err
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("load config")
	}
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("init")
	}
	defer a.Close(ctx)

	identity, err := ensureUser(ctx, a.AuthService, username, password)
	if err != nil {
		logging.Fatal().Err(err).Str("user", username).Msg("import user")
	}
	if opts.Uploader == "" {
		opts.Uploader = identity.Username
	}

	res, err := importDir(ctx, a.NoteService, *identity, opts)
	if err != nil {
		logging.Fatal().Err(err).Msg("import")
	}
	logging.Info().Int("created", res.Created).Int("skipped", res.Skipped).Msg("import completed")
}

// importPassword picks the import user's password from the flag, then the
// environment, then an interactive prompt.
func importPassword(flagValue, envValue string, interactive bool, prompt func() (string, error)) (string, error) {
	switch {
	case flagValue != "":
		return flagValue, nil
	case envValue != "":
		return envValue, nil
	case !interactive:
		return "", errNoPassword
	}
	pw, err := prompt()
	if err != nil {
		return "", fmt.Errorf("read password: %w", err)
	}
	if pw == "" {
		return "", errNoPassword
	}
	return pw, nil
}

// ensureUser registers username, or logs in when it already exists.
func ensureUser(ctx context.Context, authService service.AuthService, username, password string) (*auth.Identity, error) {
	user, _, err := authService.Register(ctx, username, password)
	if errors.Is(err, apperr.ErrConflict) {
		_, user, err = authService.Login(ctx, username, password)
	}
	if err != nil {
		return nil, err
	}
	return &auth.Identity{UserID: user.ID, Username: user.Username}, nil
}

// importDir creates a note for every PDF under opts.Dir. Files the content
// store rejects are skipped; any other failure aborts the import.
func importDir(ctx context.Context, notes service.NoteService, owner auth.Identity, opts importOptions) (importResult, error) {
	var res importResult

	err := filepath.WalkDir(opts.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".pdf") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		note, err := notes.CreateNote(ctx, owner, service.NoteInput{
			Title:    titleFromFilename(d.Name()),
			Subject:  opts.Subject,
			Branch:   opts.Branch,
			Sem:      opts.Sem,
			Uploader: opts.Uploader,
		}, service.FileUpload{Name: d.Name(), Data: data})
		if errors.Is(err, apperr.ErrValidation) {
			logging.Warn().Err(err).Str("file", path).Msg("skipped")
			res.Skipped++
			return nil
		}
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}

		logging.Info().Str("file", path).Str("cid", note.CID).Msg("imported")
		res.Created++
		return nil
	})
	return res, err
}

// titleFromFilename turns "binary_search-trees.pdf" into "binary search trees".
func titleFromFilename(name string) string {
	title := strings.TrimSuffix(name, filepath.Ext(name))
	title = strings.NewReplacer("_", " ", "-", " ").Replace(title)
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return "untitled"
	}
	return title
}
