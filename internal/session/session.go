package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"meos/internal/domain"
)

// Answerer is the part of the retrieval engine a session drives.
type Answerer interface {
	Answer(ctx context.Context, query string, topK int) (domain.Answer, error)
}

// IsExit reports whether line is one of the exit sentinels, "exit" or
// "quit", in any case.
func IsExit(line string) bool {
	line = strings.TrimSpace(line)
	return strings.EqualFold(line, "exit") || strings.EqualFold(line, "quit")
}

// MaxQuestionBytes bounds a single input line. Longer lines are discarded
// and reported.
const MaxQuestionBytes = 1 << 20

// Session is a line-oriented question and answer loop. Each question blocks
// until its answer is printed.
type Session struct {
	svc     Answerer
	topK    int
	maxLine int

	// Banner is printed once before the first prompt.
	Banner      string
	ShowSources bool
}

func New(svc Answerer, topK int) *Session {
	return &Session{svc: svc, topK: topK, maxLine: MaxQuestionBytes, ShowSources: true}
}

// Run reads questions from in until an exit sentinel or end of input.
// A failed answer or an oversized line is reported on out and the loop
// continues.
func (s *Session) Run(ctx context.Context, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "Lumo is ready! Ask questions about your life data.")
	fmt.Fprint(out, "Type 'exit' to quit.\n\n")
	if s.Banner != "" {
		fmt.Fprintf(out, "%s\n\n", s.Banner)
	}

	for {
		fmt.Fprint(out, "You: ")
		raw, tooLong, err := readLine(reader, s.maxLine)
		if err != nil {
			fmt.Fprintln(out)
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if tooLong {
			fmt.Fprintf(out, "\nLumo: sorry, that question is too long (over %d bytes).\n\n", s.maxLine)
			continue
		}

		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if IsExit(line) {
			fmt.Fprintln(out, "Bye.")
			return nil
		}

		answer, err := s.svc.Answer(ctx, line, s.topK)
		if err != nil {
			fmt.Fprintf(out, "\nLumo: sorry, I could not answer that: %v\n\n", err)
			continue
		}

		fmt.Fprintf(out, "\nLumo: %s\n", answer.Text)
		if s.ShowSources {
			WriteSources(out, answer.Sources)
		}
		fmt.Fprintln(out)
	}
}

// readLine returns the next line without its terminator. A line longer than
// limit is consumed in full and reported as tooLong with no content.
func readLine(r *bufio.Reader, limit int) (line string, tooLong bool, err error) {
	var buf []byte
	for {
		frag, isPrefix, err := r.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) && (len(buf) > 0 || tooLong) {
				return string(buf), tooLong, nil
			}
			return "", false, err
		}

		if !tooLong {
			if len(buf)+len(frag) > limit {
				tooLong, buf = true, nil
			} else {
				buf = append(buf, frag...)
			}
		}
		if !isPrefix {
			return string(buf), tooLong, nil
		}
	}
}

// WriteSources lists cited chunks as "category · document#seq (score)".
func WriteSources(w io.Writer, sources []domain.SearchResult) {
	if len(sources) == 0 {
		fmt.Fprintln(w, "Sources: none")
		return
	}

	fmt.Fprintln(w, "Sources:")
	for _, src := range sources {
		fmt.Fprintf(w, "  - %s · %s (%.2f)\n", src.Chunk.Category, src.Chunk.ID, src.Score)
	}
}
