package unl

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/timmy/parlsync/internal/logger"
)

// Mode selects how field-count mismatches are handled.
type Mode int

const (
	// Lenient rejects short rows and truncates long ones.
	Lenient Mode = iota
	// Strict rejects any row whose field count differs from the schema.
	Strict
)

func (m Mode) String() string {
	if m == Strict {
		return "strict"
	}
	return "lenient"
}

// RejectError reports a line that could not be projected onto its schema.
type RejectError struct {
	Table    string
	Line     int
	Expected int
	Got      int
	Reason   string
}

func (e *RejectError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s line %d: %s", e.Table, e.Line, e.Reason)
	}
	return fmt.Sprintf("%s line %d: expected %d fields, got %d", e.Table, e.Line, e.Expected, e.Got)
}

// Projector maps parsed fields onto named schemas.
type Projector struct {
	Mode Mode
}

// Project maps fields positionally onto schema. It never coerces values.
// Exported rows end with a delimiter, so Strict accepts one trailing NULL
// beyond the schema as the line terminator.
func (p Projector) Project(fields []*string, schema *Schema) (Record, error) {
	want, got := schema.Len(), len(fields)
	if p.Mode == Strict && got == want+1 && fields[want] == nil {
		got = want
	}
	if got < want || (p.Mode == Strict && got != want) {
		return Record{}, &RejectError{Table: schema.Name, Expected: want, Got: got}
	}
	return NewRecord(schema, fields, 0), nil
}

// Result is the outcome of projecting a whole file.
type Result struct {
	Table   string
	Records []Record
	Lines   int // non-blank lines seen
	Skipped int
}

// ProjectText parses and projects every line of a decoded file. Blank lines
// are ignored; rejected or unparseable lines are logged and counted as skipped.
func (p Projector) ProjectText(ctx context.Context, text string, schema *Schema) Result {
	res := Result{Table: schema.Name}
	for n, line := range strings.Split(text, "\n") {
		lineNo := n + 1
		rec, ok, err := p.projectLine(ctx, line, lineNo, schema)
		if !ok {
			continue
		}
		res.Lines++
		if err != nil {
			res.Skipped++
			logger.CtxWarn(ctx, "Skipping line: %v", err)
			continue
		}
		res.Records = append(res.Records, rec)
	}

	logger.With(logger.Fields{
		logger.FieldTable: schema.Name,
		logger.FieldCount: len(res.Records),
		"skipped":         res.Skipped,
	}).Info(ctx, "Parsed %s (%s)", schema.Name, p.Mode)
	return res
}

// projectLine handles one line; ok is false for blank lines.
func (p Projector) projectLine(ctx context.Context, line string, lineNo int, schema *Schema) (rec Record, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			ok = true
			err = &RejectError{Table: schema.Name, Line: lineNo, Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()

	fields := ParseLine(line)
	if len(fields) == 0 {
		return Record{}, false, nil
	}
	rec, err = p.Project(fields, schema)
	if err != nil {
		var rej *RejectError
		if errors.As(err, &rej) {
			rej.Line = lineNo
		}
		return Record{}, true, err
	}
	if len(fields) > schema.Len() {
		logger.CtxDebug(ctx, "%s line %d: ignoring %d extra fields", schema.Name, lineNo, len(fields)-schema.Len())
	}
	rec.line = lineNo
	return rec, true, nil
}
