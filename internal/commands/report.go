package commands

import (
	"fmt"
	"io"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Sternrassler/ghost-admin-tools/pkg/tasks"
)

var titleCaser = cases.Title(language.English)

// summary describes the final line of a command: one count per accumulator
// key, the first one carrying the noun, e.g. "Deleted 9 posts, skipped 1".
type summary struct {
	noun string
	keys []string

	// detail prints extra lines before the summary (optional)
	detail func(w io.Writer, rc *tasks.RunContext)
}

// report prints the error listing, the optional detail and the summary
// line. It returns ErrRunFailed when errors were recorded, or runErr when
// the run stopped without recording any (cancellation).
func (s summary) report(w io.Writer, rc *tasks.RunContext, runErr error) error {
	errs := rc.Errors()
	if len(errs) > 0 {
		fmt.Fprintf(w, "%s:\n", plural(len(errs), "error"))
		for _, e := range errs {
			fmt.Fprintf(w, "  - %v\n", e.Err)
		}
	}

	if s.detail != nil {
		s.detail(w, rc)
	}
	fmt.Fprintln(w, s.line(rc))

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrRunFailed, plural(len(errs), "error"))
	}
	return runErr
}

func (s summary) line(rc *tasks.RunContext) string {
	parts := make([]string, 0, len(s.keys))
	for i, key := range s.keys {
		n := count(rc, key)
		if i == 0 {
			parts = append(parts, fmt.Sprintf("%s %d %s", titleCaser.String(key), n, s.noun))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s %d", key, n))
	}
	return fmt.Sprintf("%s in %s", strings.Join(parts, ", "), rc.Elapsed().Round(time.Millisecond))
}

// count returns an int stored under key, or the length of the list under key.
func count(rc *tasks.RunContext, key string) int {
	if n, ok := tasks.Get[int](rc, key); ok {
		return n
	}
	return rc.Len(key)
}

func plural(n int, noun string) string {
	if n == 1 {
		return "1 " + noun
	}
	return fmt.Sprintf("%d %ss", n, noun)
}
