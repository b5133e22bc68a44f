// Package unl reads the pipe-delimited UNL export format used by the
// Chamber of Deputies open-data archives.
package unl

import "strings"

const (
	Delimiter = '|'
	Escape    = '\\'

	// private-use code points standing in for escaped characters while splitting
	delimPlaceholder  = '\uE000'
	escapePlaceholder = '\uE001'
)

var restorer = strings.NewReplacer(
	string(delimPlaceholder), string(Delimiter),
	string(escapePlaceholder), string(Escape),
)

// ParseLine splits one UNL line into fields.
//
// `\|` yields a literal delimiter and `\\` a literal backslash; any other
// backslash is kept as is. Fields are trimmed and an empty field is returned
// as nil, the format's NULL. A blank line yields no fields at all.
func ParseLine(line string) []*string {
	if strings.TrimSpace(line) == "" {
		return nil
	}

	var b strings.Builder
	b.Grow(len(line))
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c == Escape && i+1 < len(line) {
			switch line[i+1] {
			case Delimiter:
				b.WriteRune(delimPlaceholder)
				i++
				continue
			case Escape:
				b.WriteRune(escapePlaceholder)
				i++
				continue
			}
		}
		b.WriteByte(c)
	}

	parts := strings.Split(b.String(), string(Delimiter))
	fields := make([]*string, len(parts))
	for i, part := range parts {
		v := strings.TrimSpace(restorer.Replace(part))
		if v == "" {
			continue
		}
		fields[i] = &v
	}
	return fields
}
