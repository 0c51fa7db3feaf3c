// Package main provides the trackd control CLI.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/trackd/internal/api/connect"
)

var (
	app    = kingpin.New("trackctl", "trackd control client")
	server = app.Flag("server", "Server address").Default("http://localhost:8080").String()
	token  = app.Flag("token", "Service token (or set TRACKD_TOKEN env)").Envar("TRACKD_TOKEN").String()

	// host signals
	startCmd       = app.Command("start", "Send a start command")
	mediaButtonCmd = app.Command("media-button", "Send a media-button start command")
	mediaButtonKey = mediaButtonCmd.Arg("key", "Media key (play, pause, play-pause, stop, next, previous, fast-forward, rewind)").Required().String()
	mediaButtonUp  = mediaButtonCmd.Flag("up", "Send the key-up edge").Bool()
	bindCmd        = app.Command("bind", "Request a binder")
	bindAction     = bindCmd.Arg("action", "Intent action").Default("connect").String()
	destroyCmd     = app.Command("destroy", "Destroy the service")
	taskRemovedCmd = app.Command("task-removed", "Signal removal of the application task")

	// player controls
	addCmd      = app.Command("add", "Add tracks to the queue")
	addRefs     = addCmd.Arg("refs", "Spotify track or playlist URLs, URIs or IDs").Strings()
	addID       = addCmd.Flag("id", "Local track ID").String()
	addURL      = addCmd.Flag("url", "Local track URL").String()
	addTitle    = addCmd.Flag("title", "Local track title").String()
	addArtist   = addCmd.Flag("artist", "Local track artist").Strings()
	addDuration = addCmd.Flag("duration", "Local track duration in seconds").Float64()
	playCmd     = app.Command("play", "Start or resume playback")
	pauseCmd    = app.Command("pause", "Pause playback")
	stopCmd     = app.Command("stop", "Stop playback")
	skipCmd     = app.Command("skip", "Skip to the next track")
	previousCmd = app.Command("previous", "Go back to the previous track")
	optionsCmd  = app.Command("options", "Update player options")
	optionsStop = optionsCmd.Flag("stop-with-app", "Stop playback when the application task is removed").IsSetByUser(&optionsStopSet).Bool()
	optionsJump = optionsCmd.Flag("jump-interval", "Jump interval in seconds").Float64()
	statusCmd   = app.Command("status", "Show the player state")

	// events
	subscribeCmd    = app.Command("subscribe", "Subscribe to service events")
	subscribeUI     = subscribeCmd.Flag("ui", "Attach as a UI while subscribed").Bool()
	subscribeEvents = subscribeCmd.Flag("event", "Only show this event (repeatable)").Strings()

	optionsStopSet bool
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	client := apiconnect.NewClient(http.DefaultClient, *server, *token)
	ctx := context.Background()

	var err error
	switch command {
	case startCmd.FullCommand():
		err = startCommand(ctx, client, apiconnect.StartCommandRequest{Action: "start"})
	case mediaButtonCmd.FullCommand():
		keyAction := "down"
		if *mediaButtonUp {
			keyAction = "up"
		}
		err = startCommand(ctx, client, apiconnect.StartCommandRequest{
			Action:    "media-button",
			Key:       *mediaButtonKey,
			KeyAction: keyAction,
		})
	case bindCmd.FullCommand():
		err = bind(ctx, client, *bindAction)
	case destroyCmd.FullCommand():
		err = done(client.Destroy(ctx), "Destroyed")
	case taskRemovedCmd.FullCommand():
		err = done(client.TaskRemoved(ctx), "Task removed")
	case addCmd.FullCommand():
		err = add(ctx, client)
	case playCmd.FullCommand():
		err = done(client.Play(ctx), "Playing")
	case pauseCmd.FullCommand():
		err = done(client.Pause(ctx), "Paused")
	case stopCmd.FullCommand():
		err = done(client.Stop(ctx), "Stopped")
	case skipCmd.FullCommand():
		err = done(client.Skip(ctx), "Skipped")
	case previousCmd.FullCommand():
		err = done(client.Previous(ctx), "Went back")
	case optionsCmd.FullCommand():
		err = updateOptions(ctx, client)
	case statusCmd.FullCommand():
		err = status(ctx, client)
	case subscribeCmd.FullCommand():
		err = subscribe(ctx, client)
	}

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func done(err error, message string) error {
	if err != nil {
		return err
	}
	fmt.Println(message)
	return nil
}

func startCommand(ctx context.Context, client *apiconnect.Client, req apiconnect.StartCommandRequest) error {
	res, err := client.StartCommand(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("Result: %v (service %v)\n", res["result"], res["state"])
	return nil
}

func bind(ctx context.Context, client *apiconnect.Client, action string) error {
	res, err := client.Bind(ctx, action)
	if err != nil {
		return err
	}
	fmt.Printf("Bound: %v, manager: %v\n", res["bound"], res["has_manager"])
	return nil
}

func add(ctx context.Context, client *apiconnect.Client) error {
	var tracks []apiconnect.TrackInput
	if *addID != "" {
		tracks = append(tracks, apiconnect.TrackInput{
			ID:          *addID,
			URL:         *addURL,
			Title:       *addTitle,
			Artists:     *addArtist,
			DurationSec: *addDuration,
		})
	}

	added, err := client.Add(ctx, tracks, *addRefs)
	if err != nil {
		return err
	}
	fmt.Printf("Added %d track(s)\n", added)
	return nil
}

func updateOptions(ctx context.Context, client *apiconnect.Client) error {
	var stopWithApp *bool
	if optionsStopSet {
		stopWithApp = optionsStop
	}
	if err := client.UpdateOptions(ctx, stopWithApp, *optionsJump); err != nil {
		return err
	}
	fmt.Println("Options updated")
	return nil
}

func status(ctx context.Context, client *apiconnect.Client) error {
	state, err := client.GetState(ctx)
	if err != nil {
		return err
	}

	fmt.Println("=== PLAYER STATUS ===")
	fmt.Printf("  Service: %v\n", state["service"])
	fmt.Printf("  State: %s\n", formatState(state["state"]))
	fmt.Printf("  Stop with app: %v\n", state["stop_with_app"])
	fmt.Printf("  Jump interval: %vs\n", state["jump_interval"])
	if t, ok := state["track"].(map[string]any); ok {
		printTrack(t)
	}
	return nil
}

func formatState(state any) string {
	switch state {
	case "playing":
		return "▶️  Playing"
	case "paused":
		return "⏸  Paused"
	case "buffering":
		return "⏳ Buffering"
	case "stopped":
		return "⏹  Stopped"
	case "none":
		return "Nothing loaded"
	default:
		return "❓ Unknown"
	}
}

func printTrack(t map[string]any) {
	fmt.Println("\nTrack Info:")
	fmt.Printf("  Track ID: %v\n", t["id"])
	fmt.Printf("  Title: %v\n", t["title"])
	fmt.Printf("  Artists: %v\n", t["artists"])
	fmt.Printf("  Album: %v\n", t["album"])
	fmt.Printf("  URL: %v\n", t["url"])
	fmt.Printf("  Duration: %vs\n", t["duration"])
}

func subscribe(ctx context.Context, client *apiconnect.Client) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Println("Subscribed to events. Press Ctrl+C to exit.")

	err := client.Subscribe(ctx, apiconnect.SubscribeRequest{
		UI:     *subscribeUI,
		Events: *subscribeEvents,
	}, func(event map[string]any) bool {
		printEvent(event)
		return true
	})
	if ctx.Err() != nil {
		fmt.Println("\nUnsubscribing...")
	}
	return err
}

func printEvent(event map[string]any) {
	if seq, ok := event["sequence_no"]; ok {
		fmt.Printf("\n[Sequence: %v] ", seq)
	} else {
		fmt.Print("\n")
	}
	fmt.Printf("=== %s ===\n", strings.ToUpper(fmt.Sprint(event["event"])))

	data, ok := event["data"].(map[string]any)
	if !ok {
		return
	}
	if t, ok := data["track"].(map[string]any); ok {
		printTrack(t)
		delete(data, "track")
	}

	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("  %s: %v\n", k, data[k])
	}
}
