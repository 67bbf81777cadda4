/*
Package main is a terminal client for the PingUp server.

It keeps one live subscription for the signed-in user, shows messages from the open
conversation inline and everything else as notices, and exposes the REST operations as
prompt commands.
*/
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/rs/zerolog"

	"pingup/internal/app/chat"
	"pingup/internal/app/graph"
	"pingup/internal/app/push"
	"pingup/internal/app/session"
	"pingup/internal/configs"
	"pingup/internal/pkg/auth/jwt"
	"pingup/internal/pkg/logx"
)

const requestTimeout = 10 * time.Second

type client struct {
	me      string
	api     *session.APIClient
	manager *session.Manager
}

// resolveToken returns TOKEN, or mints a development token from JWT_SECRET and USER_ID.
func resolveToken() (string, string, error) {
	if token := os.Getenv("TOKEN"); token != "" {
		secret := os.Getenv("JWT_SECRET")
		if secret == "" {
			return token, os.Getenv("USER_ID"), nil
		}
		payload, err := jwt.ParseToken(token, secret)
		if err != nil {
			return "", "", err
		}
		return token, payload.ID, nil
	}

	secret, userID := os.Getenv("JWT_SECRET"), os.Getenv("USER_ID")
	if secret == "" || userID == "" {
		return "", "", fmt.Errorf("set TOKEN, or JWT_SECRET and USER_ID to mint a development token")
	}

	token, err := jwt.GenerateToken(&jwt.Payload{
		ID:       userID,
		Username: getEnv("USERNAME", userID),
		FullName: os.Getenv("FULL_NAME"),
	}, secret, jwt.IdentityExpiration)
	return token, userID, err
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func printMessage(m chat.Message) {
	body := m.Text
	if m.Media != nil {
		body = strings.TrimSpace(body + " [" + m.Media.Type + "] " + m.Media.URL)
	}
	fmt.Printf("%s  <%s> %s\n", m.CreatedAt.Local().Format("15:04:05"), m.From, body)
}

func notice(ev session.Event) {
	switch ev.Type {
	case push.TypeNewMessage:
		if ev.Message == nil {
			break
		}
		from := ev.Message.From
		if ev.Message.FromUser != nil {
			from = ev.Message.FromUser.Username
		}
		fmt.Printf("\n[notice] new message from %s (chat %s)\n", from, ev.Message.From)
	case push.TypeConnectionRequest:
		if ev.User == nil {
			break
		}
		fmt.Printf("\n[notice] %s wants to connect (accept %s)\n", ev.User.Username, ev.User.ID)
	case push.TypeConnectionAccepted:
		if ev.User == nil {
			break
		}
		fmt.Printf("\n[notice] %s accepted your connection request\n", ev.User.Username)
	default:
		fmt.Printf("\n[notice] %s\n", ev.Type)
	}
}

func (c *client) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}

func (c *client) executor(input string) {
	input = strings.TrimSpace(input)
	if input == "" {
		return
	}

	args := strings.Fields(input)
	cmd := strings.ToLower(args[0])
	args = args[1:]

	ctx, cancel := c.ctx()
	defer cancel()

	var err error
	switch cmd {
	case "help":
		printHelp()
	case "network":
		err = c.network(ctx)
	case "status":
		if len(args) != 1 {
			fmt.Println("Usage: status <user_id>")
			return
		}
		var state graph.PairState
		state, err = c.api.Status(ctx, args[0])
		if err == nil {
			fmt.Printf("%s: %s\n", args[0], state)
		}
	case "follow", "unfollow", "connect", "accept", "decline":
		if len(args) != 1 {
			fmt.Printf("Usage: %s <user_id>\n", cmd)
			return
		}
		err = c.relationship(ctx, cmd, args[0])
		if err == nil {
			fmt.Printf("%s %s: ok\n", cmd, args[0])
		}
	case "chat":
		if len(args) != 1 {
			fmt.Println("Usage: chat <user_id>")
			return
		}
		err = c.openChat(ctx, args[0])
	case "leave":
		err = c.manager.Open(ctx, "", nil)
	case "send":
		err = c.send(ctx, args)
	case "recent":
		limit := 0
		if len(args) == 1 {
			limit, _ = strconv.Atoi(args[0])
		}
		err = c.recent(ctx, limit)
	case "exit", "quit":
		c.manager.Close()
		os.Exit(0)
	default:
		fmt.Println("Unknown command. Type 'help' for a list of commands.")
	}

	if err != nil {
		fmt.Println("Error:", err)
	}
}

func (c *client) relationship(ctx context.Context, action, userID string) error {
	switch action {
	case "follow":
		return c.api.Follow(ctx, userID)
	case "unfollow":
		return c.api.Unfollow(ctx, userID)
	case "connect":
		return c.api.Connect(ctx, userID)
	case "accept":
		return c.api.Accept(ctx, userID)
	default:
		return c.api.Decline(ctx, userID)
	}
}

func (c *client) network(ctx context.Context) error {
	n, err := c.api.Network(ctx)
	if err != nil {
		return err
	}

	sections := []struct {
		title string
		count int
		names func(i int) string
	}{
		{"Connections", len(n.Connections), func(i int) string { return n.Connections[i].Username + " (" + n.Connections[i].ID + ")" }},
		{"Followers", len(n.Followers), func(i int) string { return n.Followers[i].Username + " (" + n.Followers[i].ID + ")" }},
		{"Following", len(n.Following), func(i int) string { return n.Following[i].Username + " (" + n.Following[i].ID + ")" }},
		{"Pending requests", len(n.PendingConnections), func(i int) string {
			return n.PendingConnections[i].Username + " (" + n.PendingConnections[i].ID + ")"
		}},
	}
	for _, s := range sections {
		fmt.Printf("%s: %d\n", s.title, s.count)
		for i := 0; i < s.count; i++ {
			fmt.Printf("  - %s\n", s.names(i))
		}
	}
	return nil
}

func (c *client) openChat(ctx context.Context, peerID string) error {
	history, err := c.api.Conversation(ctx, peerID)
	if err != nil {
		return err
	}
	if err := c.manager.Open(ctx, peerID, history); err != nil {
		return err
	}

	fmt.Printf("=== chat with %s (%d messages) ===\n", peerID, len(history))
	for _, m := range c.manager.Transcript() {
		printMessage(m)
	}
	return nil
}

func (c *client) send(ctx context.Context, args []string) error {
	peer := c.manager.Peer()
	if peer == "" {
		return fmt.Errorf("no open conversation, use 'chat <user_id>' first")
	}
	text := strings.Join(args, " ")
	if text == "" {
		return fmt.Errorf("usage: send <text>")
	}

	view, err := c.api.Send(ctx, peer, text)
	if err != nil {
		return err
	}
	if c.manager.Append(view.Message) {
		printMessage(view.Message)
	}
	return nil
}

func (c *client) recent(ctx context.Context, limit int) error {
	messages, err := c.api.Recent(ctx, limit)
	if err != nil {
		return err
	}
	for _, m := range messages {
		seen := " "
		if !m.Seen {
			seen = "*"
		}
		fmt.Print(seen, " ")
		printMessage(m.Message)
	}
	return nil
}

func printHelp() {
	fmt.Println("\n=== PingUp CLI Help ===")
	rows := [][2]string{
		{"network", "List connections, followers, following and pending requests"},
		{"status <id>", "Show the connection state with a user"},
		{"follow <id>", "Follow a user"},
		{"unfollow <id>", "Remove every relation with a user"},
		{"connect <id>", "Send a connection request"},
		{"accept <id>", "Accept a user's connection request"},
		{"decline <id>", "Decline a user's connection request"},
		{"chat <id>", "Open the conversation with a user"},
		{"send <text>", "Send a message to the open conversation"},
		{"leave", "Close the open conversation"},
		{"recent [n]", "Show the latest received messages"},
		{"exit", "Close the session and quit"},
	}
	for _, r := range rows {
		fmt.Printf("%-20s : %s\n", r[0], r[1])
	}
}

func completer(d prompt.Document) []prompt.Suggest {
	if strings.Contains(d.TextBeforeCursor(), " ") {
		return []prompt.Suggest{}
	}
	s := []prompt.Suggest{
		{Text: "chat", Description: "Open a conversation"},
		{Text: "send", Description: "Send to the open conversation"},
		{Text: "leave", Description: "Close the conversation"},
		{Text: "recent", Description: "Latest received messages"},
		{Text: "network", Description: "Your network"},
		{Text: "status", Description: "Connection state"},
		{Text: "follow", Description: "Follow a user"},
		{Text: "unfollow", Description: "Remove every relation"},
		{Text: "connect", Description: "Request a connection"},
		{Text: "accept", Description: "Accept a request"},
		{Text: "decline", Description: "Decline a request"},
		{Text: "help", Description: "Show help"},
		{Text: "exit", Description: "Quit"},
	}
	return prompt.FilterHasPrefix(s, d.GetWordBeforeCursor(), true)
}

func main() {
	if err := configs.LoadEnvFile(".env"); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logx.InitWriter(os.Stderr, zerolog.WarnLevel)

	token, me, err := resolveToken()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	baseURL := strings.TrimRight(getEnv("PINGUP_URL", "http://localhost:8080"), "/")
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"

	c := &client{
		me:  me,
		api: session.NewAPIClient(baseURL, token),
	}
	c.manager = session.NewManager(
		&session.WebsocketDialer{URL: wsURL, Token: token},
		session.NotifierFunc(notice),
		session.WithTranscriptHook(func(_ string, m chat.Message) { printMessage(m) }),
	)

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	u, err := c.api.Sync(ctx)
	if err == nil {
		err = c.manager.Open(ctx, "", nil)
	}
	cancel()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	fmt.Printf("Welcome to PingUp, %s\n", u.Username)
	fmt.Println("Type 'help' to see available commands")

	p := prompt.New(
		c.executor,
		completer,
		prompt.OptionPrefix("> "),
		prompt.OptionLivePrefix(func() (string, bool) {
			if peer := c.manager.Peer(); peer != "" {
				return c.me + "@" + peer + "> ", true
			}
			return "", false
		}),
		prompt.OptionTitle("PingUp"),
		prompt.OptionHistory([]string{}),
	)
	p.Run()

	c.manager.Close()
}
