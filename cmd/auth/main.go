package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/aussiebroadwan/authkit/internal/auth/app"
	"github.com/aussiebroadwan/authkit/internal/auth/domain"
	"github.com/aussiebroadwan/authkit/internal/auth/service"
)

const usage = `usage: auth [command]

commands:
  serve                                   run the HTTP server (default)
  useradd -login NAME [-email ADDR]       create a password account
  clientadd -name NAME -redirect URI,...  register a relying party
  clients                                 list relying parties
`

var readPassword = term.ReadPassword

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	cmd, args := "serve", []string(nil)
	if len(os.Args) > 1 {
		cmd, args = os.Args[1], os.Args[2:]
	}

	switch cmd {
	case "serve":
		err = serve(cfg)
	case "useradd":
		err = withApp(cfg, func(a *app.Application) error { return userAdd(a, args) })
	case "clientadd":
		err = withApp(cfg, func(a *app.Application) error { return clientAdd(a, args) })
	case "clients":
		err = withApp(cfg, listClients)
	case "-h", "--help", "help":
		fmt.Print(usage)
		return
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("%s: %v", cmd, err)
	}
}

func serve(cfg app.Config) error {
	application, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	return application.Run()
}

func withApp(cfg app.Config, fn func(*app.Application) error) error {
	// Admin commands keep stdout for their own output.
	cfg.LogLevel = "warn"
	application, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer application.Close()
	return fn(application)
}

func userAdd(a *app.Application, args []string) error {
	fs := flag.NewFlagSet("useradd", flag.ContinueOnError)
	login := fs.String("login", "", "login name")
	email := fs.String("email", "", "email address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	password, err := promptPassword()
	if err != nil {
		return err
	}

	id, err := a.AddUser(context.Background(), service.Registration{
		LoginName: *login,
		Email:     *email,
		Password:  password,
	})
	if err != nil {
		return err
	}
	fmt.Printf("created user %s\n", id)
	return nil
}

func promptPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && (!errors.Is(err, io.EOF) || line == "") {
			return "", fmt.Errorf("read password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	first, err := readPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	fmt.Fprint(os.Stderr, "Repeat password: ")
	second, err := readPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	if string(first) != string(second) {
		return "", errors.New("passwords do not match")
	}
	return string(first), nil
}

func clientAdd(a *app.Application, args []string) error {
	fs := flag.NewFlagSet("clientadd", flag.ContinueOnError)
	name := fs.String("name", "", "display name")
	clientID := fs.String("id", "", "client_id (generated when empty)")
	redirects := fs.String("redirect", "", "comma separated redirect URIs")
	method := fs.String("auth-method", "client_secret_basic", "client_secret_basic, client_secret_post or client_secret_url")
	confidential := fs.Bool("confidential", true, "client keeps its secret server side")
	if err := fs.Parse(args); err != nil {
		return err
	}

	m, err := domain.ParseClientSecretMethod(*method)
	if err != nil {
		return err
	}

	var uris []string
	for _, u := range strings.Split(*redirects, ",") {
		if u = strings.TrimSpace(u); u != "" {
			uris = append(uris, u)
		}
	}

	c, secret, err := a.AddClient(context.Background(), service.NewClient{
		ClientID:     *clientID,
		Name:         *name,
		RedirectURIs: uris,
		Confidential: *confidential,
		AuthMethod:   m,
	})
	if err != nil {
		return err
	}
	fmt.Printf("client_id:     %s\nclient_secret: %s\nauth_method:   %s\n", c.ClientID, secret, c.AuthMethod)
	fmt.Println("the secret is not stored and cannot be shown again")
	return nil
}

func listClients(a *app.Application) error {
	clients, err := a.ListClients(context.Background())
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "CLIENT_ID\tNAME\tAUTH_METHOD\tREDIRECT_URIS")
	for _, c := range clients {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", c.ClientID, c.Name, c.AuthMethod, strings.Join(c.RedirectURIs, ","))
	}
	return w.Flush()
}
