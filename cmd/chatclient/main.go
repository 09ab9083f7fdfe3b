// Command chatclient is a console client for the chat relay. It answers the
// name prompt with the next console line, prints every server line and
// forwards everything typed until /quit or /exit.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cyberinferno/chatrelay/chatclient"
	"github.com/cyberinferno/chatrelay/config"
	"github.com/gookit/color"
)

var (
	systemStyle  = color.New(color.FgCyan)
	errorStyle   = color.New(color.FgRed, color.OpBold)
	privateStyle = color.New(color.FgMagenta)
	welcomeStyle = color.New(color.FgGreen, color.OpBold)
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chatclient: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}

	if !cfg.Color {
		color.Disable()
	}

	client := chatclient.NewClient(chatclient.DefaultConfig(cfg.ServerAddr))
	done := make(chan struct{})

	client.OnLine(func(e chatclient.LineEvent) {
		if e.Line == "ENTER_USERNAME" {
			fmt.Print("Enter your username: ")
			return
		}
		fmt.Println(render(e.Line))
	})
	client.OnConnectionState(func(e chatclient.ConnectionStateEvent) {
		if e.State == chatclient.Disconnected {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	})
	client.OnError(func(e chatclient.ErrorEvent) {
		fmt.Fprintln(os.Stderr, errorStyle.Render("connection error: "+e.Error.Error()))
	})

	if err := client.Connect(); err != nil {
		return fmt.Errorf("cannot reach %s: %w", cfg.ServerAddr, err)
	}
	defer client.Close()

	input := make(chan string)
	go func() {
		defer close(input)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			input <- scanner.Text()
		}
	}()

	for {
		select {
		case <-done:
			return nil
		case line, ok := <-input:
			if !ok {
				return nil
			}

			if err := client.Send(line); err != nil {
				return err
			}

			if isExit(line) {
				// Give the relay a moment to close its side first.
				select {
				case <-done:
				case <-time.After(time.Second):
				}
				return nil
			}
		}
	}
}

func isExit(line string) bool {
	line = strings.TrimSpace(line)
	return strings.EqualFold(line, "/quit") || strings.EqualFold(line, "/exit")
}

func render(line string) string {
	switch {
	case strings.HasPrefix(line, "ERROR "):
		return errorStyle.Render(line)
	case strings.HasPrefix(line, "WELCOME "):
		return welcomeStyle.Render(line)
	case strings.HasPrefix(line, "SERVER: "):
		return systemStyle.Render(line)
	case strings.Contains(line, " (private): "):
		return privateStyle.Render(line)
	default:
		return line
	}
}
