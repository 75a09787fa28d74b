package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/ticketry-io/ticketry/internal/config"
	"github.com/ticketry-io/ticketry/pkg/protocol"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(0)
	}

	switch os.Args[1] {
	case "chat":
		cmdChat(os.Args[2:])
	case "health":
		cmdHealth()
	case "sync":
		cmdSync()
	case "stats":
		cmdStats()
	case "tickets":
		if len(os.Args) < 3 {
			fmt.Fprintln(os.Stderr, "usage: ticketryctl tickets <list|show>")
			os.Exit(1)
		}
		switch os.Args[2] {
		case "list":
			cmdTicketsList(os.Args[3:])
		case "show":
			if len(os.Args) < 4 {
				fmt.Fprintln(os.Stderr, "usage: ticketryctl tickets show <key>")
				os.Exit(1)
			}
			cmdTicketsShow(os.Args[3])
		default:
			fmt.Fprintf(os.Stderr, "unknown tickets subcommand: %s\n", os.Args[2])
			os.Exit(1)
		}
	case "config":
		if len(os.Args) < 4 || os.Args[2] != "validate" {
			fmt.Fprintln(os.Stderr, "usage: ticketryctl config validate <path>")
			os.Exit(1)
		}
		cmdConfigValidate(os.Args[3])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// --- chat command ---

func cmdChat(args []string) {
	fs := flag.NewFlagSet("chat", flag.ExitOnError)
	question := fs.String("q", "", "Single question (omit for interactive)")
	conversation := fs.String("conversation", "", "Conversation id (minted by the server when empty)")
	fs.Parse(args)

	if *question != "" {
		resp, err := postChat(*conversation, *question)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		printChatResponse(resp)
		return
	}

	// Interactive: one conversation for the whole session, so
	// follow-ups like "update it" resolve against earlier turns.
	convID := *conversation
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("ticketry chat (ctrl-d to quit)")
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		resp, err := postChat(convID, line)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			continue
		}
		convID = resp.ConversationID
		printChatResponse(resp)
	}
}

func postChat(conversationID, question string) (*protocol.ChatResponse, error) {
	body, _ := json.Marshal(protocol.ChatRequest{
		ConversationID: conversationID,
		Question:       question,
	})
	raw, err := apiDo("POST", "/api/chat", body)
	if err != nil {
		return nil, err
	}
	var resp protocol.ChatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("bad response: %w", err)
	}
	return &resp, nil
}

func printChatResponse(resp *protocol.ChatResponse) {
	fmt.Println(resp.Message)
	if resp.Error != "" {
		fmt.Printf("(%s)\n", resp.Error)
	}
	fmt.Println()
}

// --- API client commands ---

func cmdHealth() {
	body, err := apiDo("GET", "/api/health", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(body))
}

func cmdSync() {
	body, err := apiDo("POST", "/api/sync", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(body))
}

func cmdStats() {
	body, err := apiDo("GET", "/api/stats", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(body))
}

func cmdTicketsList(args []string) {
	fs := flag.NewFlagSet("tickets list", flag.ExitOnError)
	limit := fs.Int("limit", 50, "Max results")
	fs.Parse(args)

	body, err := apiDo("GET", fmt.Sprintf("/api/tickets?limit=%d", *limit), nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	var tickets []protocol.Ticket
	json.Unmarshal(body, &tickets)
	for _, t := range tickets {
		fmt.Printf("%-12s %-12s %s\n", t.Key, t.Status, t.Summary)
	}
}

func cmdTicketsShow(key string) {
	body, err := apiDo("GET", "/api/tickets/"+key, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(prettyJSON(body))
}

func cmdConfigValidate(path string) {
	_, err := config.Load(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("config is valid")
}

// --- Helpers ---

func apiDo(method, path string, body []byte) ([]byte, error) {
	base := envOr("TICKETRY_API_URL", "http://localhost:8080")

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequest(method, base+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := os.Getenv("TICKETRY_API_KEY"); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: 90 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(raw))
	}
	return raw, nil
}

func prettyJSON(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printUsage() {
	fmt.Println("ticketryctl - ticketry management CLI")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  chat                 Chat with the assistant (-q for one-shot)")
	fmt.Println("  health               Check daemon health")
	fmt.Println("  sync                 Trigger a ticket sync")
	fmt.Println("  stats                Show index and session stats")
	fmt.Println("  tickets list         List cached tickets (--limit)")
	fmt.Println("  tickets show <key>   Show one cached ticket")
	fmt.Println("  config validate <p>  Validate config file")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  TICKETRY_API_URL   Daemon URL (default: http://localhost:8080)")
	fmt.Println("  TICKETRY_API_KEY   API key for authentication")
}
