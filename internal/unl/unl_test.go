package unl

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func str(s string) *string { return &s }

func TestParseLine(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []*string
	}{
		{"plain", "a|b|c", []*string{str("a"), str("b"), str("c")}},
		{"escaped delimiter", `a\|b|c`, []*string{str("a|b"), str("c")}},
		{"escaped escape", `a\\|b`, []*string{str(`a\`), str("b")}},
		{"escaped escape then delimiter", `a\\\|b`, []*string{str(`a\|b`)}},
		{"lone backslash is literal", `C:\data|x`, []*string{str(`C:\data`), str("x")}},
		{"trailing backslash", `end\`, []*string{str(`end\`)}},
		{"empty fields are null", "1||  |x", []*string{str("1"), nil, nil, str("x")}},
		{"trimmed", "  a  |\tb\r", []*string{str("a"), str("b")}},
		{"trailing delimiter", "1|2|", []*string{str("1"), str("2"), nil}},
		{"blank", "  ", nil},
		{"empty", "", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLine(tt.line))
		})
	}
}

func TestParseLineFieldCount(t *testing.T) {
	for k := 0; k < 20; k++ {
		parts := make([]string, k+1)
		for i := range parts {
			parts[i] = fmt.Sprintf(`v%d\|\\`, i)
		}
		fields := ParseLine(strings.Join(parts, "|"))
		require.Len(t, fields, k+1)
		assert.Equal(t, `v0|\`, *fields[0])
	}
}

func TestProjectLenient(t *testing.T) {
	schema := NewSchema("t", "a", "b", "c")
	p := Projector{Mode: Lenient}

	_, err := p.Project([]*string{str("1"), str("2")}, schema)
	var rej *RejectError
	require.True(t, errors.As(err, &rej))
	assert.Equal(t, 3, rej.Expected)
	assert.Equal(t, 2, rej.Got)

	rec, err := p.Project([]*string{str("1"), nil, str("3"), str("4")}, schema)
	require.NoError(t, err)
	assert.Equal(t, "a=1 b=NULL c=3", rec.String())
	v, ok := rec.Get("c")
	assert.True(t, ok)
	assert.Equal(t, "3", v)
	_, ok = rec.Get("b")
	assert.False(t, ok)
	_, ok = rec.Get("missing")
	assert.False(t, ok)
}

func TestProjectStrict(t *testing.T) {
	schema := NewSchema("t", "a", "b")
	p := Projector{Mode: Strict}

	_, err := p.Project([]*string{str("1"), str("2"), str("3")}, schema)
	assert.Error(t, err)
	_, err = p.Project([]*string{str("1")}, schema)
	assert.Error(t, err)

	rec, err := p.Project([]*string{str("1"), str("2"), nil}, schema)
	require.NoError(t, err)
	assert.Equal(t, "a=1 b=2", rec.String())
}

func TestRecordIsDetachedFromInput(t *testing.T) {
	schema := NewSchema("t", "a")
	in := []*string{str("x")}
	rec := NewRecord(schema, in, 1)
	in[0] = str("y")
	v, _ := rec.Get("a")
	assert.Equal(t, "x", v)
}

func renderResult(res Result) []byte {
	var b strings.Builder
	for _, rec := range res.Records {
		fmt.Fprintf(&b, "line %d: %s\n", rec.Line(), rec)
	}
	fmt.Fprintf(&b, "lines=%d records=%d skipped=%d\n", res.Lines, len(res.Records), res.Skipped)
	return []byte(b.String())
}

func TestProjectTextGolden(t *testing.T) {
	data, err := os.ReadFile("testdata/osoby.unl")
	require.NoError(t, err)

	res := Projector{Mode: Lenient}.ProjectText(context.Background(), string(data), Osoby)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "osoby_lenient", renderResult(res))
}

func TestProjectTextStrict(t *testing.T) {
	data, err := os.ReadFile("testdata/osoby.unl")
	require.NoError(t, err)

	res := Projector{Mode: Strict}.ProjectText(context.Background(), string(data), Osoby)
	require.Len(t, res.Records, 2)
	assert.Equal(t, 2, res.Skipped)
	assert.Equal(t, 1, res.Records[0].Line())
	assert.Equal(t, 2, res.Records[1].Line())
}

func TestSchemaRegistry(t *testing.T) {
	s, ok := LookupSchema("hl_poslanec")
	require.True(t, ok)
	assert.Equal(t, []string{"id_hlasovani", "id_poslanec", "vysledek"}, s.Fields)

	_, ok = LookupSchema("unknown")
	assert.False(t, ok)

	names := SchemaNames()
	assert.Len(t, names, 21)
	assert.Contains(t, names, "osoby")
	assert.Contains(t, names, "tz")
}

func TestTableName(t *testing.T) {
	assert.Equal(t, "osoby", TableName("osoby.unl"))
	assert.Equal(t, "hl_poslanec", TableName("hl-2021ps/hl_poslanec.unl"))
	assert.Equal(t, "readme.txt", TableName("readme.txt"))
}

func TestCanonical(t *testing.T) {
	assert.Equal(t, "hl_hlasovani", Canonical("hl2021s"))
	assert.Equal(t, "hl_poslanec", Canonical("hl2021h1"))
	assert.Equal(t, "hl_poslanec", Canonical("hl2017h12"))
	assert.Equal(t, "hl2021x", Canonical("hl2021x"))
	assert.Equal(t, "osoby", Canonical("osoby"))
}

func TestRecordAccessors(t *testing.T) {
	schema := NewSchema("pair", "a", "b", "c")
	rec := NewRecord(schema, []*string{str("x"), nil}, 7)

	assert.Same(t, schema, rec.Schema())
	assert.Equal(t, 7, rec.Line())
	v, ok := rec.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "x", v)
	_, ok = rec.Get("b")
	assert.False(t, ok)
	_, ok = rec.Get("zz")
	assert.False(t, ok)
	assert.Equal(t, "a=x b=NULL c=NULL", rec.String())

	vals := rec.Values()
	require.Len(t, vals, 3)
	vals[0] = str("changed")
	v, _ = rec.Get("a")
	assert.Equal(t, "x", v)
}
