package logging

import (
	"bytes"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"

	"github.com/Ununp3ntium115/Velociraptor-scripts-sub002/json"
)

var (
	NoColor = !isatty.IsTerminal(os.Stderr.Fd())

	color_mu sync.Mutex

	tag_regex         = regexp.MustCompile(`<([a-z]+)>`)
	closing_tag_regex = regexp.MustCompile(`</>`)
	span_regex        = regexp.MustCompile(`<([a-z]+)>(.*?)</>`)

	styles = map[string]lipgloss.Style{
		"red":    lipgloss.NewStyle().Foreground(lipgloss.Color("9")),
		"green":  lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
		"yellow": lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
		"blue":   lipgloss.NewStyle().Foreground(lipgloss.Color("12")),
		"cyan":   lipgloss.NewStyle().Foreground(lipgloss.Color("14")),
		"bold":   lipgloss.NewStyle().Bold(true),
	}
)

func SetNoColor(value bool) {
	color_mu.Lock()
	defer color_mu.Unlock()
	NoColor = value
}

func noColor() bool {
	color_mu.Lock()
	defer color_mu.Unlock()
	return NoColor
}

type Formatter struct {
	component string
}

func (self *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	b := &bytes.Buffer{}

	levelText := strings.ToUpper(entry.Level.String())
	fmt.Fprintf(b, "[%s] %v %s ", levelText, entry.Time.Format(time.RFC3339),
		strings.TrimRight(entry.Message, "\r\n"))

	if len(entry.Data) > 0 {
		serialized, _ := json.Marshal(entry.Data)
		fmt.Fprintf(b, "%s", serialized)
	}

	line := normalize(b.String())
	if noColor() {
		line = clearTag(line)
	} else {
		line = render(line)
	}

	return []byte(line + "\n"), nil
}

// Balance opening and closing tags so a truncated message does not
// bleed colour into the next line.
func normalize(line string) string {
	opening_matches := tag_regex.FindAllString(line, -1)
	closing_matches := closing_tag_regex.FindAllString(line, -1)

	if len(opening_matches) > len(closing_matches) {
		for i := 0; i < len(opening_matches)-len(closing_matches); i++ {
			line += "</>"
		}
	} else if len(opening_matches) < len(closing_matches) {
		line = closing_tag_regex.ReplaceAllString(line, "")
	}

	return line
}

func render(line string) string {
	return span_regex.ReplaceAllStringFunc(line, func(match string) string {
		parts := span_regex.FindStringSubmatch(match)
		style, pres := styles[parts[1]]
		if !pres {
			return parts[2]
		}
		return style.Render(parts[2])
	})
}

func clearTag(message string) string {
	message = tag_regex.ReplaceAllString(message, "")
	return closing_tag_regex.ReplaceAllString(message, "")
}
