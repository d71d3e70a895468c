package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"

	_ "github.com/joho/godotenv/autoload"

	"github.com/timelinesocial/timeline/server"
	"github.com/timelinesocial/timeline/sigauth"
	"github.com/timelinesocial/timeline/util/cliutil"

	"github.com/carlmjohnson/versioninfo"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "tlctl",
		Usage:   "command-line client for a timelined daemon",
		Version: versioninfo.Short(),
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "host",
				Usage:   "timelined server to send requests to",
				Value:   "http://localhost:8000",
				EnvVars: []string{"TIMELINE_HOST"},
			},
			&cli.StringFlag{
				Name:    "handle",
				Usage:   "handle to act as for signed operations",
				EnvVars: []string{"TIMELINE_HANDLE"},
			},
			&cli.StringFlag{
				Name:    "key",
				Usage:   "path to PEM private key (public key is read from <path>.pub)",
				Value:   "timeline.key",
				EnvVars: []string{"TIMELINE_KEY"},
			},
			&cli.StringFlag{
				Name:    "sig-alg",
				Usage:   "JWS algorithm of the key (ES256, RS256, EdDSA)",
				Value:   jwa.ES256.String(),
				EnvVars: []string{"TIMELINE_SIG_ALG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "log verbosity level (eg: warn, info, debug)",
				Value:   "warn",
				EnvVars: []string{"TIMELINE_LOG_LEVEL", "GO_LOG_LEVEL", "LOG_LEVEL"},
			},
		},
		Before: func(cctx *cli.Context) error {
			_, err := cliutil.SetupSlog(cliutil.LogOptions{
				LogLevel:  cctx.String("log-level"),
				LogFormat: "text",
				LogPath:   "-",
			})
			return err
		},
		Commands: []*cli.Command{
			&cli.Command{
				Name:   "keygen",
				Usage:  "generate a key pair, writing <key> and <key>.pub",
				Action: runKeygen,
			},
			&cli.Command{
				Name:      "sign",
				ArgsUsage: `<payload-json>`,
				Usage:     "print the compact JWS of a JSON payload",
				Action:    runSign,
			},
			&cli.Command{
				Name:   "register",
				Usage:  "register --handle with the public key of --key",
				Action: runRegister,
			},
			&cli.Command{
				Name:      "publish",
				ArgsUsage: `<content>`,
				Usage:     "publish a post",
				Action:    runPublish,
				Flags: []cli.Flag{
					&cli.StringSliceFlag{
						Name:    "topic",
						Aliases: []string{"t"},
						Usage:   "topic to tag the post with (repeatable)",
					},
				},
			},
			postRefCommand("like", "like a post"),
			postRefCommand("unlike", "take back a like"),
			postRefCommand("repost", "repost a post"),
			postRefCommand("unrepost", "take back a repost"),
			followCommand("follow", "follow a user"),
			followCommand("unfollow", "stop following a user"),
			getCommand("get", `<handle>`, "fetch a user record", "/"),
			getCommand("post", `<post-id>`, "fetch a post", "/post/"),
			getCommand("topic", `<topic>`, "list the posts tagged with a topic", "/topic/"),
			getCommand("timeline", `<handle>`, "fetch the aggregated timeline of a user", "/timeline/"),
		},
	}

	return app.Run(args)
}

func configAlg(cctx *cli.Context) (jwa.SignatureAlgorithm, error) {
	return sigauth.ParseAlgorithm(cctx.String("sig-alg"))
}

func runKeygen(cctx *cli.Context) error {
	alg, err := configAlg(cctx)
	if err != nil {
		return err
	}
	path := cctx.String("key")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("refusing to overwrite existing key: %s", path)
	}
	if _, err := cliutil.GenerateKeyToFile(path, alg); err != nil {
		return err
	}
	fmt.Printf("wrote %s and %s.pub\n", path, path)
	return nil
}

// signPayload signs a JSON-encodable payload with the configured private key.
func signPayload(cctx *cli.Context, payload any) (string, error) {
	alg, err := configAlg(cctx)
	if err != nil {
		return "", err
	}
	priv, err := cliutil.LoadKeyFromFile(cctx.String("key"), alg)
	if err != nil {
		return "", err
	}
	return sigauth.SignJSON(priv, alg, payload)
}

func runSign(cctx *cli.Context) error {
	s := cctx.Args().First()
	if s == "" {
		return fmt.Errorf("need to provide a JSON payload to sign")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(s), &payload); err != nil {
		return fmt.Errorf("payload is not a JSON object: %w", err)
	}
	sig, err := signPayload(cctx, payload)
	if err != nil {
		return err
	}
	fmt.Println(sig)
	return nil
}

func requireHandle(cctx *cli.Context) (string, error) {
	h := cctx.String("handle")
	if h == "" {
		return "", fmt.Errorf("--handle is required")
	}
	return h, nil
}

func runRegister(cctx *cli.Context) error {
	handle, err := requireHandle(cctx)
	if err != nil {
		return err
	}
	pub, err := os.ReadFile(cctx.String("key") + ".pub")
	if err != nil {
		return err
	}
	return doRequest(cctx, http.MethodPost, "/register", server.RegisterRequest{
		Handle:    handle,
		PublicKey: string(pub),
	})
}

func runPublish(cctx *cli.Context) error {
	handle, err := requireHandle(cctx)
	if err != nil {
		return err
	}
	content := strings.Join(cctx.Args().Slice(), " ")
	if content == "" {
		return fmt.Errorf("need to provide post content")
	}
	sig, err := signPayload(cctx, sigauth.PublishPayload{
		Content: content,
		Topics:  cctx.StringSlice("topic"),
	})
	if err != nil {
		return err
	}
	return doRequest(cctx, http.MethodPost, "/publish", server.SignedRequest{Handle: handle, Signature: sig})
}

func postRefCommand(name, usage string) *cli.Command {
	return &cli.Command{
		Name:      name,
		ArgsUsage: `<post-id>`,
		Usage:     usage,
		Action: func(cctx *cli.Context) error {
			handle, err := requireHandle(cctx)
			if err != nil {
				return err
			}
			id := cctx.Args().First()
			if id == "" {
				return fmt.Errorf("need to provide a post id")
			}
			sig, err := signPayload(cctx, sigauth.PostRefPayload{ID: id})
			if err != nil {
				return err
			}
			return doRequest(cctx, http.MethodPost, "/"+name, server.SignedRequest{Handle: handle, Signature: sig})
		},
	}
}

func followCommand(name, usage string) *cli.Command {
	return &cli.Command{
		Name:      name,
		ArgsUsage: `<handle>`,
		Usage:     usage,
		Action: func(cctx *cli.Context) error {
			handle, err := requireHandle(cctx)
			if err != nil {
				return err
			}
			to := cctx.Args().First()
			if to == "" {
				return fmt.Errorf("need to provide the handle to %s", name)
			}
			sig, err := signPayload(cctx, sigauth.FollowPayload{To: to})
			if err != nil {
				return err
			}
			return doRequest(cctx, http.MethodPost, "/"+name, server.SignedFollowRequest{From: handle, Signature: sig})
		},
	}
}

func getCommand(name, argsUsage, usage, prefix string) *cli.Command {
	return &cli.Command{
		Name:      name,
		ArgsUsage: argsUsage,
		Usage:     usage,
		Action: func(cctx *cli.Context) error {
			s := cctx.Args().First()
			if s == "" {
				return fmt.Errorf("need to provide %s", argsUsage)
			}
			return doRequest(cctx, http.MethodGet, prefix+url.PathEscape(s), nil)
		},
	}
}

// doRequest sends body (if any) as JSON and prints the indented response. Any status of 400 or above is an error.
func doRequest(cctx *cli.Context, method, path string, body any) error {
	ctx := cctx.Context
	if ctx == nil {
		ctx = context.Background()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}

	u := strings.TrimSuffix(cctx.String("host"), "/") + path
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "tlctl/"+versioninfo.Short())

	client := cliutil.NewHttpClient(slog.Default())
	// user and post reads answer 302, and an existing registration 303; show those as-is
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var out bytes.Buffer
	if err := json.Indent(&out, respBytes, "", "  "); err != nil {
		out.Reset()
		out.Write(respBytes)
	}
	fmt.Println(out.String())

	if resp.StatusCode >= 400 {
		return fmt.Errorf("request failed (HTTP %d)", resp.StatusCode)
	}
	return nil
}
