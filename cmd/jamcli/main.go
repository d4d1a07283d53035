// Package main provides an interactive terminal client for jam sessions.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/alecthomas/kingpin/v2"
	"github.com/joho/godotenv"
	"github.com/valkey-io/valkey-go"

	"github.com/soundslot/jamsession/internal/app/controller"
	"github.com/soundslot/jamsession/internal/app/reaction"
	"github.com/soundslot/jamsession/internal/domain/jam"
	"github.com/soundslot/jamsession/internal/infra/config"
	"github.com/soundslot/jamsession/internal/infra/logger"
	"github.com/soundslot/jamsession/internal/store"
	"github.com/soundslot/jamsession/internal/store/memstore"
	"github.com/soundslot/jamsession/internal/store/valkeystore"
)

var (
	app        = kingpin.New("jamcli", "Jam session terminal client")
	configPath = app.Flag("config", "Path to config file (optional)").String()
	valkeyAddr = app.Flag("valkey", "Valkey address (empty: standalone in-memory session)").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()

	createCmd     = app.Command("create", "Create a new session and host it")
	createName    = createCmd.Arg("name", "Session name").Required().String()
	createNick    = createCmd.Arg("nickname", "Your nickname").Required().String()
	createPrivate = createCmd.Flag("private", "Require an access code to join").Bool()
	createMax     = createCmd.Flag("max", "Maximum participants").Default("0").Int()

	joinCmd    = app.Command("join", "Join an existing session by code")
	joinCode   = joinCmd.Arg("code", "Six character join code").Required().String()
	joinNick   = joinCmd.Arg("nickname", "Your nickname").Required().String()
	joinAccess = joinCmd.Flag("access-code", "Access code for private sessions").String()
)

// consoleRenderer prints reactions as they fly across other screens.
type consoleRenderer struct{}

func (consoleRenderer) Show(r reaction.Rendered) {
	fmt.Printf("  %s  %s reacted\n", r.Emoji, r.Nickname)
}

func (consoleRenderer) Remove(string) {}

func main() {
	_ = godotenv.Load()

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	level := "warn"
	if *verbose {
		level = "debug"
	}
	if err := logger.Init(logger.Config{Output: "stderr", Level: level}); err != nil {
		panic(err)
	}

	opts := controller.Options{Renderer: consoleRenderer{}}
	addr := *valkeyAddr
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		opts.Reaction = reaction.Config{
			Cooldown:      cfg.Reaction.Cooldown(),
			DisplayWindow: cfg.Reaction.DisplayWindow(),
			ResetInterval: cfg.Reaction.ResetInterval(),
		}
		if addr == "" {
			addr = cfg.Valkey.Addr
		}
	}

	st, cleanup, err := openStore(addr)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	ctx := context.Background()

	var ctrl *controller.Controller
	switch command {
	case createCmd.FullCommand():
		privacy := jam.PrivacyPublic
		if *createPrivate {
			privacy = jam.PrivacyPrivate
		}
		ctrl, err = controller.Create(ctx, st, *createName, *createNick, privacy, *createMax, opts)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		sess := ctrl.Session()
		fmt.Printf("Session %q created. Join code: %s\n", sess.Name, sess.Code)
		if sess.AccessCode != "" {
			fmt.Printf("Access code: %s\n", sess.AccessCode)
		}
	case joinCmd.FullCommand():
		ctrl, err = controller.Join(ctx, st, *joinCode, *joinNick, *joinAccess, opts)
		if err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Joined %q as %s\n", ctrl.Session().Name, ctrl.Self().Nickname)
	}
	defer ctrl.Close()

	repl(ctx, ctrl)
}

func openStore(addr string) (store.Store, func(), error) {
	if addr == "" {
		fmt.Println("Running standalone with an in-memory session store.")
		return memstore.New(), func() {}, nil
	}
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: []string{addr}})
	if err != nil {
		return nil, nil, err
	}
	return valkeystore.New(client), client.Close, nil
}

const replHelp = `Commands:
  add <track-id> <title...>   queue a track
  queue                       show the queue in play order
  vote <n>                    upvote the n-th queued track
  remove <n>                  remove the n-th queued track
  played <n>                  mark the n-th queued track as played
  who                         list participants
  react <emoji>               send a reaction (` + "🔥 ❤️ 👏 🎉 😍 🤘" + `)
  leave                       leave the session and quit
  help                        show this help`

func repl(ctx context.Context, ctrl *controller.Controller) {
	fmt.Println(replHelp)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		if !ctrl.Active() {
			fmt.Println("The session has ended.")
			return
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}

		switch fields[0] {
		case "add":
			if len(fields) < 3 {
				fmt.Println("Usage: add <track-id> <title...>")
				continue
			}
			trk := jam.Track{ID: fields[1], Title: strings.Join(fields[2:], " ")}
			if _, err := ctrl.AddTrack(ctx, trk); err != nil {
				fmt.Printf("Error: %v\n", err)
				continue
			}
			fmt.Printf("Queued %q\n", trk.Title)
		case "queue":
			printQueue(ctrl)
		case "vote":
			withItem(ctrl, fields, func(item jam.QueueItem) error {
				return ctrl.Queue().Vote(ctx, item.ID)
			})
		case "remove":
			withItem(ctrl, fields, func(item jam.QueueItem) error {
				return ctrl.Queue().Remove(ctx, item.ID)
			})
		case "played":
			withItem(ctrl, fields, func(item jam.QueueItem) error {
				return ctrl.Queue().MarkPlayed(ctx, item.ID)
			})
		case "who":
			printParticipants(ctx, ctrl)
		case "react":
			if len(fields) != 2 {
				fmt.Println("Usage: react <emoji>")
				continue
			}
			if err := ctrl.React(fields[1]); err != nil {
				fmt.Printf("Error: %v\n", err)
			}
		case "leave":
			if err := ctrl.Leave(ctx); err != nil {
				fmt.Printf("Error: %v\n", err)
			}
			fmt.Println("Left the session. Bye!")
			return
		case "help":
			fmt.Println(replHelp)
		default:
			fmt.Printf("Unknown command %q (try help)\n", fields[0])
		}
	}
}

// withItem resolves a 1-based queue index argument and applies fn to it.
func withItem(ctrl *controller.Controller, fields []string, fn func(jam.QueueItem) error) {
	if len(fields) != 2 {
		fmt.Println("Usage: " + fields[0] + " <n>")
		return
	}
	n, err := strconv.Atoi(fields[1])
	if err != nil {
		fmt.Println("Not a number:", fields[1])
		return
	}
	ordered := ctrl.Queue().Ordered()
	if n < 1 || n > len(ordered) {
		fmt.Printf("No queued track #%d (queue has %d)\n", n, len(ordered))
		return
	}
	if err := fn(ordered[n-1]); err != nil {
		fmt.Printf("Error: %v\n", err)
	}
}

func printQueue(ctrl *controller.Controller) {
	ordered := ctrl.Queue().Ordered()
	if len(ordered) == 0 {
		fmt.Println("The queue is empty.")
		return
	}
	for i, item := range ordered {
		fmt.Printf("%2d. %-30s  votes=%d  added by %s\n", i+1, item.Track.Title, item.Votes, item.AddedByName)
	}
}

func printParticipants(ctx context.Context, ctrl *controller.Controller) {
	members, err := ctrl.Participants(ctx)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	for _, m := range members {
		role := ""
		if m.IsHost {
			role = " (host)"
		}
		fmt.Printf("  %s%s\n", m.Nickname, role)
	}
}
