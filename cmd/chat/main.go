// Command chat is a terminal client for the CoursePilot WebSocket chat
// endpoint. It reads questions from stdin and prints the bot's answers.
package main

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gorilla/websocket"
)

func envOr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	url := envOr("CHAT_URL", "ws://localhost:8080/ws")
	if len(os.Args) > 1 {
		url = os.Args[1]
	}

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		logger.Error("connect failed", "url", url, "err", err)
		os.Exit(1)
	}
	defer conn.Close()

	fmt.Printf("connected to %s — ask about your course material (ctrl-D to quit)\n", url)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
		os.Exit(0)
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			continue
		}

		if err := conn.WriteMessage(websocket.TextMessage, []byte(question)); err != nil {
			logger.Error("send failed", "err", err)
			os.Exit(1)
		}
		_, reply, err := conn.ReadMessage()
		if err != nil {
			logger.Error("read failed", "err", err)
			os.Exit(1)
		}
		fmt.Println(string(reply))
	}
}
