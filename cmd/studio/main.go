// Command studio is a terminal client for the studio API.
//
//	studio signup -email a@b.co -password Secret123
//	studio generate -token $STUDIO_TOKEN -prompt "a red fox" -style artistic -image fox.png
//	studio history -limit 10
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"studioapi/client"
	"studioapi/models"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const defaultServer = "http://localhost:3002"

func usage() {
	fmt.Fprintln(os.Stderr, "usage: studio <signup|login|generate|history> [flags]")
	os.Exit(2)
}

func main() {
	_ = godotenv.Load()
	if len(os.Args) < 2 {
		usage()
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	cmd, args := os.Args[1], os.Args[2:]
	fs := flag.NewFlagSet(cmd, flag.ExitOnError)
	server := fs.String("server", envOr("STUDIO_API_URL", defaultServer), "API base url")
	token := fs.String("token", os.Getenv("STUDIO_TOKEN"), "bearer token")

	var err error
	switch cmd {
	case "signup", "login":
		email := fs.String("email", "", "account email")
		password := fs.String("password", "", "account password")
		name := fs.String("name", "", "display name, signup only")
		fs.Parse(args)
		api := client.NewAPIClient(*server)
		var out *models.AuthOut
		if cmd == "signup" {
			out, err = api.Signup(context.Background(), *email, *password, *name)
		} else {
			out, err = api.Login(context.Background(), *email, *password)
		}
		if err == nil {
			printJSON(out)
		}
	case "generate":
		prompt := fs.String("prompt", "", "generation prompt")
		style := fs.String("style", string(models.StyleRealistic), "realistic, artistic, minimalist or vintage")
		image := fs.String("image", "", "path to a JPEG or PNG image")
		fs.Parse(args)
		api := client.NewAPIClient(*server)
		api.SetToken(*token)
		err = generate(api, logger, *prompt, models.Style(*style), *image)
	case "history":
		limit := fs.Int("limit", 0, "number of records, server default when 0")
		fs.Parse(args)
		api := client.NewAPIClient(*server)
		api.SetToken(*token)
		var out []models.GenerationOut
		out, err = api.ListGenerations(context.Background(), *limit)
		if err == nil {
			printJSON(out)
		}
	default:
		usage()
	}

	if err != nil {
		logger.Error("Request failed", zap.String("command", cmd), zap.Error(err))
		os.Exit(1)
	}
}

func generate(api *client.APIClient, logger *zap.Logger, prompt string, style models.Style, path string) error {
	image, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read image: %w", err)
	}

	controller := client.NewController(api)
	controller.OnChange = func(s client.Snapshot) {
		logger.Info("Generation state", zap.Stringer("state", s.State), zap.Int("retryCount", s.RetryCount))
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	defer signal.Stop(interrupt)
	go func() {
		if _, ok := <-interrupt; ok {
			controller.Abort()
		}
	}()

	snap := controller.Generate(context.Background(), client.GenerationRequest{
		Prompt:    prompt,
		Style:     style,
		ImageName: filepath.Base(path),
		Image:     image,
	})
	if snap.State != client.StateSucceeded {
		return fmt.Errorf("%s: %s", snap.State, snap.Err)
	}
	printJSON(snap.Result)
	return nil
}

func envOr(key string, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
