package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"p2pexchange/cmd/internal/passphrase"
	"p2pexchange/crypto"
	"p2pexchange/gateway/auth"
)

const passphraseEnv = "P2P_KEYSTORE_PASSPHRASE"

var (
	ctlNow        = time.Now
	ctlHTTPClient = &http.Client{Timeout: 30 * time.Second}
	passphraseFor = func(path string) (string, error) {
		return passphrase.NewSource(passphraseEnv, filepath.Base(path)).Get()
	}
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func usage() string {
	return strings.Join([]string{
		"Usage: p2pctl <command> [flags]",
		"",
		"Commands:",
		"  keygen  --out FILE                       create an encrypted signing key",
		"  address --key FILE                       print the address of a key",
		"  get     [--url URL] PATH                 issue an unsigned read",
		"  post    [--url URL] --key FILE [--cosign FILE]... [--body JSON|@FILE] PATH",
		"                                           issue a signed write",
		"",
		"Keystore passphrases are read from " + passphraseEnv + " or prompted.",
	}, "\n")
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, usage())
		return 1
	}
	switch args[0] {
	case "keygen":
		return runKeygen(args[1:], stdout, stderr)
	case "address":
		return runAddress(args[1:], stdout, stderr)
	case "get":
		return runRequest(http.MethodGet, args[1:], stdout, stderr)
	case "post":
		return runRequest(http.MethodPost, args[1:], stdout, stderr)
	case "help", "-h", "--help":
		fmt.Fprintln(stdout, usage())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		fmt.Fprintln(stderr, usage())
		return 1
	}
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}

func printError(stderr io.Writer, format string, args ...any) int {
	fmt.Fprintf(stderr, "Error: "+format+"\n", args...)
	return 1
}

func runKeygen(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("keygen", stderr)
	out := fs.String("out", "", "keystore file to create")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*out) == "" {
		return printError(stderr, "--out is required")
	}
	if _, err := os.Stat(*out); err == nil {
		return printError(stderr, "%s already exists", *out)
	}
	pass, err := passphraseFor(*out)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return printError(stderr, "generate key: %v", err)
	}
	if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
		return printError(stderr, "write keystore: %v", err)
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return 0
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	pass, err := passphraseFor(path)
	if err != nil {
		return nil, err
	}
	key, err := crypto.LoadFromKeystore(path, pass)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return key, nil
}

func runAddress(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("address", stderr)
	keyPath := fs.String("key", "", "keystore file")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if strings.TrimSpace(*keyPath) == "" {
		return printError(stderr, "--key is required")
	}
	key, err := loadKey(*keyPath)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	fmt.Fprintln(stdout, key.PubKey().Address().String())
	return 0
}

type repeated []string

func (r *repeated) String() string { return strings.Join(*r, ",") }

func (r *repeated) Set(v string) error {
	*r = append(*r, v)
	return nil
}

func defaultURL() string {
	if v := strings.TrimSpace(os.Getenv("P2P_URL")); v != "" {
		return v
	}
	return "http://localhost:8080"
}

func runRequest(method string, args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet(strings.ToLower(method), stderr)
	base := fs.String("url", defaultURL(), "gateway base URL")
	var (
		keyPath string
		body    string
		cosign  repeated
	)
	if method == http.MethodPost {
		fs.StringVar(&keyPath, "key", "", "keystore of the caller")
		fs.Var(&cosign, "cosign", "keystore of an additional approving authority (repeatable)")
		fs.StringVar(&body, "body", "", "JSON request body, or @FILE")
	}
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() != 1 {
		return printError(stderr, "exactly one request path is required")
	}
	path := fs.Arg(0)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}

	payload, err := readBody(body)
	if err != nil {
		return printError(stderr, "%v", err)
	}
	req, err := http.NewRequest(method, strings.TrimRight(*base, "/")+path, bytes.NewReader(payload))
	if err != nil {
		return printError(stderr, "build request: %v", err)
	}
	if method == http.MethodPost {
		if strings.TrimSpace(keyPath) == "" {
			return printError(stderr, "--key is required")
		}
		req.Header.Set("Content-Type", "application/json")
		if err := signRequest(req, payload, append([]string{keyPath}, cosign...)); err != nil {
			return printError(stderr, "%v", err)
		}
	}

	res, err := ctlHTTPClient.Do(req)
	if err != nil {
		return printError(stderr, "request failed: %v", err)
	}
	defer res.Body.Close()
	if _, err := io.Copy(stdout, res.Body); err != nil {
		return printError(stderr, "read response: %v", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		fmt.Fprintf(stderr, "gateway returned %s\n", res.Status)
		return 2
	}
	return 0
}

func readBody(raw string) ([]byte, error) {
	switch {
	case raw == "":
		return nil, nil
	case strings.HasPrefix(raw, "@"):
		data, err := os.ReadFile(strings.TrimPrefix(raw, "@"))
		if err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return data, nil
	default:
		return []byte(raw), nil
	}
}

func signRequest(req *http.Request, payload []byte, keystores []string) error {
	if len(keystores) > auth.MaxSignatures {
		return errors.New("too many signers")
	}
	ts := strconv.FormatInt(ctlNow().Unix(), 10)
	req.Header.Set(auth.HeaderTimestamp, ts)
	for _, path := range keystores {
		key, err := loadKey(path)
		if err != nil {
			return err
		}
		sig, err := auth.Sign(key, req.Method, req.URL.EscapedPath(), ts, payload)
		if err != nil {
			return fmt.Errorf("sign with %s: %w", path, err)
		}
		req.Header.Add(auth.HeaderSignature, sig)
	}
	return nil
}
