package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"sync"

	"peasurvey/internal/config"
	"peasurvey/internal/conversation"
	"peasurvey/internal/geo"
	"peasurvey/internal/service/ai"
	"peasurvey/internal/ui"
	"peasurvey/internal/worker"
)

const sessionID = "terminal"

func main() {
	cfg, err := config.Load(config.ConfigPath())
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	service, err := ai.NewService(ctx, cfg)
	if err != nil {
		var cfgErr *config.ConfigurationError
		if errors.As(err, &cfgErr) {
			_ = ui.RenderConfigError(os.Stderr)
			os.Exit(1)
		}
		log.Fatalf("init model client: %v", err)
	}

	var position geo.Holder
	if bias := cfg.StaticBias(); bias != nil {
		geo.Acquire(ctx, geo.StaticLocator{Bias: bias}, &position)
	} else if cfg.Geo.LookupURL != "" {
		geo.Acquire(ctx, &geo.IPLocator{URL: cfg.Geo.LookupURL}, &position)
	}

	sessions := conversation.NewRegistry(0, nil)
	manager := worker.NewManager(service, sessions, worker.Config{DefaultBias: position.Current})
	defer manager.Shutdown()

	var outMu sync.Mutex
	renderer := ui.TextRenderer{Out: os.Stdout}
	store := sessions.Get(ctx, sessionID)
	cancelSub := store.Subscribe(func(ev conversation.Event) {
		outMu.Lock()
		defer outMu.Unlock()
		switch ev.Type {
		case conversation.EventMessageAppended:
			_ = renderer.RenderMessage(ui.BuildMessage(*ev.Message))
		case conversation.EventLoadingChanged:
			if ev.Loading {
				fmt.Println("... " + ui.LoadingText)
			}
		}
	})
	defer cancelSub()

	outMu.Lock()
	_ = renderer.Render(ui.BuildView(store.Messages(), store.Loading(), position.Known()))
	fmt.Println("\nพิมพ์ /1 หรือ /2 เพื่อใช้ตัวอย่าง, /quit เพื่อออก")
	outMu.Unlock()

	reader := bufio.NewReader(os.Stdin)
	for {
		fmt.Print("> ")
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		query := strings.TrimSpace(line)
		switch {
		case query == "/quit" || query == "/exit":
			return
		case strings.HasPrefix(query, "/"):
			n, convErr := strconv.Atoi(strings.TrimPrefix(query, "/"))
			if convErr != nil || n < 1 || n > len(ui.SamplePrompts) {
				fmt.Println("unknown command")
				continue
			}
			query = ui.SamplePrompts[n-1]
		}
		if !ui.CanSubmit(query, store.Loading()) {
			continue
		}
		if _, err := manager.Submit(worker.QueryRequest{Context: ctx, SessionID: sessionID, Query: query}); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
}
