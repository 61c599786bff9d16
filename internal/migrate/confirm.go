package migrate

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// PromptConfirmer asks on Out and reads a y/N answer from In.
type PromptConfirmer struct {
	In  io.Reader
	Out io.Writer
}

// Confirm blocks until a line is read. Only "y" or "yes" approve; EOF
// counts as no.
func (p PromptConfirmer) Confirm(prompt string) (bool, error) {
	if _, err := fmt.Fprintf(p.Out, "%s [y/N]: ", prompt); err != nil {
		return false, err
	}
	line, err := bufio.NewReader(p.In).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}

// AutoConfirm approves without asking, for --yes.
type AutoConfirm struct{}

// Confirm always approves.
func (AutoConfirm) Confirm(string) (bool, error) {
	return true, nil
}
