package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
)

// ConsoleNotifier prints notifications to a terminal.
type ConsoleNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleNotifier writes to out.
func NewConsoleNotifier(out io.Writer) *ConsoleNotifier {
	return &ConsoleNotifier{out: out}
}

func (c *ConsoleNotifier) Name() string    { return "console" }
func (c *ConsoleNotifier) IsEnabled() bool { return c.out != nil }

// Send prints a one-line summary, coloured by type.
func (c *ConsoleNotifier) Send(_ context.Context, n Notification) error {
	var paint func(format string, a ...interface{}) string
	switch n.Type {
	case NotificationTrade:
		paint = color.New(color.FgGreen, color.Bold).Sprintf
	case NotificationError:
		paint = color.New(color.FgRed, color.Bold).Sprintf
	default:
		paint = color.New(color.FgCyan).Sprintf
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "%s %s %s\n", n.Timestamp.Format("15:04:05"), paint("[%s]", n.Title), n.Message)
	return err
}
