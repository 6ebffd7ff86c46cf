package landmarks

import (
	"bufio"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrParse is matched by every *ParseError.
var ErrParse = errors.New("landmarks: malformed point line")

// ParseError describes a line that is not exactly two numeric tokens
type ParseError struct {
	Line int    // 1-based line number
	Text string // raw line content
	Err  error  // underlying cause, if any
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("landmarks: line %d %q: %v", e.Line, e.Text, e.Err)
	}
	return fmt.Sprintf("landmarks: line %d %q: expected two numeric values", e.Line, e.Text)
}

// Is makes errors.Is(err, ErrParse) true for any parse error.
func (e *ParseError) Is(target error) bool {
	return target == ErrParse
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Parse reads one "x y" point per line.
func Parse(r io.Reader) (Set, error) {
	var set Set
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Text()
		fields := strings.Fields(text)
		if len(fields) != 2 {
			return nil, &ParseError{Line: line, Text: text}
		}

		x, err := parseCoord(fields[0])
		if err != nil {
			return nil, &ParseError{Line: line, Text: text, Err: err}
		}
		y, err := parseCoord(fields[1])
		if err != nil {
			return nil, &ParseError{Line: line, Text: text, Err: err}
		}
		set = append(set, image.Pt(x, y))
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "read point set")
	}
	return set, nil
}

// parseCoord accepts integers and, for files written by float-oriented tools,
// decimals which are rounded to the nearest pixel. Coordinates must fit in an
// int32 so that area and bounds arithmetic cannot overflow.
func parseCoord(tok string) (int, error) {
	v, err := strconv.ParseInt(tok, 10, 32)
	if err == nil {
		return int(v), nil
	}
	if errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("coordinate %q out of range", tok)
	}

	f, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite coordinate %q", tok)
	}
	f = math.Round(f)
	if f < math.MinInt32 || f > math.MaxInt32 {
		return 0, fmt.Errorf("coordinate %q out of range", tok)
	}
	return int(f), nil
}

// ReadFile parses the point set stored at path
func ReadFile(path string) (Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open point set %s", path)
	}
	defer f.Close()

	set, err := Parse(f)
	if err != nil {
		return nil, errors.WithMessagef(err, "parse %s", path)
	}
	return set, nil
}

// Write emits the set in the format read by Parse.
func Write(w io.Writer, set Set) error {
	bw := bufio.NewWriter(w)
	for _, p := range set {
		if _, err := fmt.Fprintf(bw, "%d %d\n", p.X, p.Y); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// WriteFile writes the set to path, replacing any existing file
func WriteFile(path string, set Set) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "create point set %s", path)
	}
	if err := Write(f, set); err != nil {
		f.Close()
		return errors.Wrapf(err, "write point set %s", path)
	}
	return f.Close()
}
