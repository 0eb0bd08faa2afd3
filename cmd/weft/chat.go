package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/go-go-golems/weft/pkg/chat"
	"github.com/go-go-golems/weft/pkg/events"
	"github.com/go-go-golems/weft/pkg/store"
	"github.com/go-go-golems/weft/pkg/streaming"
)

const chatTopic = "chat"

func NewChatCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat session",
		// bind at run time so sibling commands sharing a key (like --db)
		// don't steal the binding
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			return bindFlags(cmd, "model", "api-key", "base-url", "session", "db", "offline")
		},
		RunE: runChat,
	}

	cmd.Flags().String("model", "", "model to use")
	cmd.Flags().String("api-key", "", "OpenAI API key")
	cmd.Flags().String("base-url", "", "OpenAI-compatible API base URL")
	cmd.Flags().String("session", "default", "session id to load and save")
	cmd.Flags().String("db", "", "path to the sqlite session database (in-memory store if empty)")
	cmd.Flags().Bool("offline", false, "echo transport instead of OpenAI, for trying out the UI")

	return cmd
}

func runChat(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	router, err := events.NewEventRouter(events.WithVerbose(viper.GetString("log-level") == "trace"))
	if err != nil {
		return err
	}
	defer func() {
		_ = router.Close()
	}()

	sink := events.NewWatermillSink(router.Publisher, chatTopic)

	var session streaming.Session
	if viper.GetBool("offline") {
		scripted := streaming.NewScriptedSession(sink)
		session = scripted
		// reply to every dispatched send, including queue-drained ones
		router.AddHandler("echo", chatTopic, events.DispatchHandler(&echoDriver{session: scripted}))
	} else {
		session = streaming.NewOpenAISession(
			viper.GetString("api-key"),
			streaming.WithModel(viper.GetString("model")),
			streaming.WithBaseURL(viper.GetString("base-url")),
			streaming.WithSinks(sink),
		)
	}

	sessionStore, err := openSessionStore()
	if err != nil {
		return err
	}
	defer func() {
		_ = sessionStore.Close()
	}()

	sessionID := viper.GetString("session")
	controller := chat.NewController(session,
		chat.WithLogger(log.Logger),
		chat.WithStore(sessionStore),
		chat.WithSendOptions(streaming.SendOptions{
			Model:    viper.GetString("model"),
			Metadata: streaming.Metadata{SessionID: sessionID},
		}),
	)

	if err := controller.LoadSession(ctx, sessionID); err != nil {
		// a missing session just means we start fresh
		log.Debug().Err(err).Str("session_id", sessionID).Msg("starting with empty history")
	}

	router.AddHandler("controller", chatTopic, events.DispatchHandler(controller))
	router.AddHandler("printer", chatTopic, events.DispatchHandler(&printer{}))

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return router.Run(ctx)
	})
	eg.Go(func() error {
		defer cancel()
		<-router.Running()
		return repl(ctx, controller, sessionID)
	})

	return eg.Wait()
}

func openSessionStore() (store.SessionStore, error) {
	dbPath := viper.GetString("db")
	if dbPath == "" {
		return store.NewMemoryStore(), nil
	}
	return store.NewSQLiteStore(dbPath)
}

func repl(ctx context.Context, controller *chat.Controller, sessionID string) error {
	fmt.Println("weft chat. /help for commands, /quit to exit.")

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := handleCommand(ctx, controller, line, sessionID)
			if err != nil {
				fmt.Printf("error: %v\n", err)
			}
			if quit {
				return nil
			}
			continue
		}

		if err := controller.Send(ctx, line); err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		if controller.QueueLen() > 0 {
			fmt.Printf("(queued, %d waiting)\n", controller.QueueLen())
		}
	}
}

func handleCommand(ctx context.Context, controller *chat.Controller, line string, sessionID string) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		fmt.Println("/retry /edit <n> /prev /next /new /queue /unqueue <n> /stop /history /save /quit")
		return false, nil

	case "/retry":
		return false, controller.Retry(ctx)

	case "/edit":
		if len(fields) < 2 {
			return false, fmt.Errorf("usage: /edit <message number>")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return false, err
		}
		return false, editMessage(ctx, controller, n)

	case "/prev":
		if !controller.PrevBranch() {
			fmt.Println("no other branch")
		}
		return false, nil

	case "/next":
		if !controller.NextBranch() {
			fmt.Println("no other branch")
		}
		return false, nil

	case "/new":
		controller.NewChat()
		fmt.Println("new chat")
		return false, nil

	case "/queue":
		for i, entry := range controller.QueueEntries() {
			fmt.Printf("%d: %s\n", i, entry)
		}
		return false, nil

	case "/unqueue":
		if len(fields) < 2 {
			return false, fmt.Errorf("usage: /unqueue <index>")
		}
		n, err := strconv.Atoi(fields[1])
		if err != nil {
			return false, err
		}
		controller.RemoveQueued(n)
		return false, nil

	case "/stop":
		controller.Stop()
		return false, nil

	case "/history":
		printHistory(controller)
		return false, nil

	case "/save":
		if err := controller.SaveSession(ctx, sessionID); err != nil {
			return false, err
		}
		fmt.Printf("saved session %s\n", sessionID)
		return false, nil
	}

	return false, fmt.Errorf("unknown command %s", fields[0])
}

func editMessage(ctx context.Context, controller *chat.Controller, n int) error {
	display := controller.DisplayMessages()
	if n < 0 || n >= len(display) {
		return fmt.Errorf("no message %d", n)
	}

	text, err := controller.BeginEdit(display[n].ID)
	if err != nil {
		return err
	}
	fmt.Printf("editing: %s\nnew text> ", text)

	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		controller.CancelEdit()
		return scanner.Err()
	}
	newText := strings.TrimSpace(scanner.Text())
	if newText == "" {
		controller.CancelEdit()
		return nil
	}

	return controller.SubmitEdit(ctx, newText)
}

func printHistory(controller *chat.Controller) {
	for i, msg := range controller.DisplayMessages() {
		marker := ""
		if msg.Pending {
			marker = " (queued)"
		}
		if msg.Streaming {
			marker = " (streaming)"
		}
		fmt.Printf("%d %s%s\n", i, msg.View(), marker)
	}
	if err := controller.LastError(); err != nil {
		fmt.Printf("! %v\n", err)
	}
}

// echoDriver answers the scripted transport in offline mode. It reacts to
// the start event of each send, so queue-drained sends get a reply just
// like directly typed ones.
type echoDriver struct {
	session *streaming.ScriptedSession
}

func (d *echoDriver) HandleStart(_ context.Context, _ *events.EventStart) error {
	sent := d.session.Sent()
	if len(sent) == 0 {
		return nil
	}
	messages := sent[len(sent)-1].Messages
	reply := "you said: " + messages[len(messages)-1].Text

	go func() {
		for _, word := range strings.Fields(reply) {
			d.session.EmitDelta(word + " ")
		}
		d.session.Finish(reply)
	}()
	return nil
}

func (d *echoDriver) HandlePartial(_ context.Context, _ *events.EventPartial) error {
	return nil
}

func (d *echoDriver) HandleFinal(_ context.Context, _ *events.EventFinal) error {
	return nil
}

func (d *echoDriver) HandleInterrupt(_ context.Context, _ *events.EventInterrupt) error {
	return nil
}

func (d *echoDriver) HandleError(_ context.Context, _ *events.EventError) error {
	return nil
}

var _ events.Handler = (*echoDriver)(nil)

// printer renders stream events on stdout as they arrive.
type printer struct{}

func (p *printer) HandleStart(_ context.Context, _ *events.EventStart) error {
	return nil
}

func (p *printer) HandlePartial(_ context.Context, e *events.EventPartial) error {
	fmt.Print(e.Delta)
	return nil
}

func (p *printer) HandleFinal(_ context.Context, _ *events.EventFinal) error {
	fmt.Println()
	return nil
}

func (p *printer) HandleInterrupt(_ context.Context, _ *events.EventInterrupt) error {
	fmt.Println("\n(stopped)")
	return nil
}

func (p *printer) HandleError(_ context.Context, e *events.EventError) error {
	fmt.Printf("\nerror: %s\n", e.ErrorString)
	return nil
}

var _ events.Handler = (*printer)(nil)
