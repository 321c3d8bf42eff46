package shell

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/usmle-prep/quizengine/internal/domain/entities"
)

var errNoInput = errors.New("no answer given")

type lineResult struct {
	line string
	err  error
}

// lineReader reads input lines in the background so a prompt can give up
// when its context is cancelled.
type lineReader struct {
	lines chan lineResult
}

func newLineReader(ctx context.Context, in io.Reader) *lineReader {
	r := &lineReader{lines: make(chan lineResult)}

	go func() {
		defer close(r.lines)

		br := bufio.NewReader(in)
		for {
			line, err := br.ReadString('\n')
			res := lineResult{line: strings.TrimSpace(line)}
			if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
				res = lineResult{err: err}
			}

			select {
			case r.lines <- res:
			case <-ctx.Done():
				return
			}
			if res.err != nil {
				return
			}
		}
	}()

	return r
}

func (r *lineReader) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-r.lines:
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !ok {
			return "", io.EOF
		}
		return res.line, res.err
	}
}

func printQuestion(out io.Writer, number, total int, q entities.Question, limit time.Duration) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "Q%d/%d: %s\n", number, total, q.Text)
	if limit > 0 {
		fmt.Fprintf(out, "(%s to answer)\n", limit)
	}
	fmt.Fprintln(out)
	for i, o := range q.Options {
		fmt.Fprintf(out, "%c. %s\n", 'A'+i, o.Text)
	}
	fmt.Fprintln(out)
}

// promptAnswer returns the selected option id, or nil for a skip.
func promptAnswer(ctx context.Context, reader *lineReader, out io.Writer, options []entities.Option) (*string, error) {
	if len(options) == 0 {
		return nil, nil
	}
	maxLetter := byte('A' + len(options) - 1)

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fmt.Fprintf(out, "Your answer (A-%c or option text, S to skip): ", maxLetter)

		line, err := reader.readLine(ctx)
		if err != nil {
			return nil, err
		}

		answer := strings.ToUpper(line)
		if answer == "S" {
			return nil, nil
		}
		if len(answer) == 1 && answer[0] >= 'A' && answer[0] <= maxLetter {
			id := options[answer[0]-'A'].ID
			return &id, nil
		}
		if id, ok := matchOption(line, options); ok {
			return &id, nil
		}

		fmt.Fprintln(out, "Invalid answer.")
	}

	return nil, errNoInput
}

func promptCount(ctx context.Context, reader *lineReader, out io.Writer) (int, error) {
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fmt.Fprint(out, "Number of questions (1-40): ")
		line, err := reader.readLine(ctx)
		if err != nil {
			return 0, err
		}
		n, err := strconv.Atoi(line)
		if err == nil && n > 0 {
			return n, nil
		}
		fmt.Fprintln(out, "Please enter a positive number.")
	}
	return 0, errNoInput
}

func promptYesNo(ctx context.Context, reader *lineReader, out io.Writer, prompt string) (bool, error) {
	for {
		fmt.Fprint(out, prompt)
		line, err := reader.readLine(ctx)
		if err != nil {
			return false, err
		}
		switch strings.ToLower(line) {
		case "y", "yes":
			return true, nil
		case "n", "no":
			return false, nil
		default:
			fmt.Fprintln(out, "Please answer yes or no.")
		}
	}
}

func printFeedback(out io.Writer, q entities.Question, rec entities.AnswerRecord) {
	switch {
	case rec.IsCorrect:
		fmt.Fprintln(out, "Correct!")
	case rec.Skipped():
		fmt.Fprintf(out, "Skipped. Correct answer was %s\n", correctAnswerDisplay(q))
	default:
		fmt.Fprintf(out, "Wrong. Correct answer was %s\n", correctAnswerDisplay(q))
	}
	if q.Explanation != "" {
		fmt.Fprintln(out, q.Explanation)
	}
}

func correctAnswerDisplay(q entities.Question) string {
	for i, o := range q.Options {
		if o.ID == q.CorrectOptionID {
			return fmt.Sprintf("%c. %s", 'A'+i, o.Text)
		}
	}
	return "unknown"
}

// printSummary shows the result. persisted reports whether unsaved results
// outlive the process in a draft store.
func printSummary(out io.Writer, s *entities.SessionSummary, persisted bool) {
	if s == nil {
		return
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Correct: %d/%d (%s%%)\n",
		s.Session.CorrectAnswers,
		s.Session.TotalQuestions,
		strconv.FormatFloat(s.Accuracy(), 'f', 0, 64),
	)
	fmt.Fprintf(out, "Score: %d\n", s.Score)

	switch {
	case s.Saved:
	case persisted:
		fmt.Fprintln(out, "Results could not be saved. They will be retried later.")
	default:
		fmt.Fprintln(out, "Results could not be saved and will be lost on exit.")
	}
}
