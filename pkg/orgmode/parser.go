package orgmode

import (
	"bufio"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/harrisonrobin/taskdeck/pkg/controller"
	"github.com/harrisonrobin/taskdeck/pkg/model"
)

// Entry is one TODO or DONE headline ready to be created on the service.
type Entry struct {
	Form controller.CreateForm
	Done bool
	Line int
}

var (
	headlineRegex = regexp.MustCompile(`^\*+\s+(TODO|DONE)\s+(?:\[#([A-Z])\]\s*)?(.*?)(?:\s+(:[\w@:]+:))?\s*$`)
	deadlineRegex = regexp.MustCompile(`DEADLINE:\s+<(\d{4}-\d{2}-\d{2})(?:\s+[A-Za-z]{2,3})?(?:\s+(\d{2}:\d{2}))?[^>]*>`)
	otherHeading  = regexp.MustCompile(`^\*+\s`)
	drawerRegex   = regexp.MustCompile(`^:[A-Z_]+:`)
	planningRegex = regexp.MustCompile(`^(SCHEDULED|DEADLINE|CLOSED):`)
)

var priorities = map[string]model.Priority{
	"A": model.PriorityCritical,
	"B": model.PriorityHigh,
	"C": model.PriorityMedium,
	"D": model.PriorityLow,
}

// ParseFile parses an Org-mode file.
func ParseFile(path string, loc *time.Location) ([]Entry, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return Parse(file, loc)
}

// Parse reads TODO and DONE headlines. A DEADLINE without a time is due at
// the end of that day in loc. Body text below a headline becomes the
// description; drawers and planning lines are skipped.
func Parse(r io.Reader, loc *time.Location) ([]Entry, error) {
	if loc == nil {
		loc = time.Local
	}
	scanner := bufio.NewScanner(r)
	var entries []Entry
	var current *Entry
	var body []string
	inDrawer := false

	flush := func() {
		if current == nil {
			return
		}
		current.Form.Description = strings.TrimSpace(strings.Join(body, "\n"))
		entries = append(entries, *current)
		current, body, inDrawer = nil, nil, false
	}

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()
		line := strings.TrimSpace(raw)

		if matches := headlineRegex.FindStringSubmatch(line); matches != nil {
			flush()
			current = &Entry{
				Form: controller.CreateForm{
					Name:     strings.TrimSpace(matches[3]),
					Priority: priorities[matches[2]],
				},
				Done: matches[1] == "DONE",
				Line: lineNo,
			}
			continue
		}
		if otherHeading.MatchString(line) {
			flush()
			continue
		}
		if current == nil {
			continue
		}

		if matches := deadlineRegex.FindStringSubmatch(line); matches != nil {
			if deadline, ok := parseDeadline(matches[1], matches[2], loc); ok {
				current.Form.Deadline = &deadline
			}
		}
		switch {
		case inDrawer:
			if line == ":END:" {
				inDrawer = false
			}
		case drawerRegex.MatchString(line):
			inDrawer = line != ":END:"
		case planningRegex.MatchString(line):
		default:
			body = append(body, line)
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func parseDeadline(date, clock string, loc *time.Location) (time.Time, bool) {
	if clock == "" {
		clock = "23:59"
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", date+" "+clock, loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
