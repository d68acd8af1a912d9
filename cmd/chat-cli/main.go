package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/pdfchat/backend/internal/chat"
	"github.com/pdfchat/backend/internal/stream"
)

func main() {
	var serverURL string
	var intervalMS int
	flag.StringVar(&serverURL, "server", "http://localhost:8080", "Base URL of the chat API server")
	flag.IntVar(&intervalMS, "interval", 15, "Typewriter reveal interval in milliseconds (0 disables pacing)")
	flag.Parse()

	typewriter := &stream.Typewriter{Interval: time.Duration(intervalMS) * time.Millisecond}
	client := &http.Client{}

	var messages []chat.Message

	fmt.Println("pdfchat - ask questions about your uploaded documents (ctrl-d to quit)")

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

		messages = append(messages, chat.Message{Role: "user", Content: question})

		answer, err := ask(client, serverURL, messages, typewriter)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			messages = messages[:len(messages)-1]
			continue
		}

		messages = append(messages, chat.Message{Role: "assistant", Content: answer})
	}

	fmt.Println()
}

// ask streams the answer through the typewriter pacer and returns the
// reconstructed full text.
func ask(client *http.Client, serverURL string, messages []chat.Message, typewriter *stream.Typewriter) (string, error) {
	body, err := json.Marshal(map[string]interface{}{
		"messages": messages,
		"stream":   true,
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequest(http.MethodPost, serverURL+"/api/v1/chat", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	// Rune-wise reads keep multi-byte characters intact across arbitrary
	// network chunk boundaries.
	fragments := make(chan string)
	go func() {
		defer close(fragments)
		reader := bufio.NewReader(resp.Body)
		for {
			r, _, err := reader.ReadRune()
			if err != nil {
				return
			}
			fragments <- string(r)
		}
	}()

	var answer strings.Builder
	for r := range typewriter.Run(context.Background(), fragments) {
		fmt.Printf("%c", r)
		answer.WriteRune(r)
	}
	fmt.Println()

	return answer.String(), nil
}
