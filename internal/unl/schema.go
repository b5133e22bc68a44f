package unl

import (
	"regexp"
	"sort"
	"strings"
)

// Schema is a fixed positional mapping of field names for one table.
type Schema struct {
	Name   string
	Fields []string
	index  map[string]int
}

// NewSchema builds a schema; field order is the column order in the file.
func NewSchema(name string, fields ...string) *Schema {
	idx := make(map[string]int, len(fields))
	for i, f := range fields {
		idx[f] = i
	}
	return &Schema{Name: name, Fields: fields, index: idx}
}

// Len returns the number of fields.
func (s *Schema) Len() int { return len(s.Fields) }

// Index returns the position of a field.
func (s *Schema) Index(field string) (int, bool) {
	i, ok := s.index[field]
	return i, ok
}

var registry = map[string]*Schema{}

func register(s *Schema) *Schema {
	registry[s.Name] = s
	return s
}

// Tables published in the poslanci, hl-*, tisky and organy archives.
var (
	Osoby = register(NewSchema("osoby",
		"id_osoba", "pred", "prijmeni", "jmeno", "za", "narozeni", "pohlavi", "zmena", "umrti"))
	Poslanec = register(NewSchema("poslanec",
		"id_poslanec", "id_osoba", "id_kraj", "id_kandidatka", "id_organ",
		"web", "ulice", "obec", "psc", "email", "telefon", "fax", "psp_telefon", "facebook", "foto"))
	Zarazeni = register(NewSchema("zarazeni",
		"id_osoba", "id_of", "cl_funkce", "od_o", "do_o", "od_f", "do_f"))
	Omluvy = register(NewSchema("omluvy",
		"id_poslanec", "den", "od", "do"))
	Pkgps = register(NewSchema("pkgps",
		"id_poslanec", "adresa", "sirka", "delka"))
	OsobaExtra = register(NewSchema("osoba_extra",
		"id_osoba", "id_org", "typ", "obvod", "strana", "id_external"))

	HlHlasovani = register(NewSchema("hl_hlasovani",
		"id_hlasovani", "id_organ", "schuze", "cislo", "bod", "datum", "cas",
		"pro", "proti", "zdrzel", "nehlasoval", "prihlaseno", "kvorum",
		"druh_hlasovani", "vysledek", "nazev_dlouhy", "nazev_kratky"))
	HlPoslanec = register(NewSchema("hl_poslanec",
		"id_hlasovani", "id_poslanec", "vysledek"))

	Tisk = register(NewSchema("tisk",
		"id_tisk", "id_organ", "tisk", "nazev", "popis", "cislo_vlastni",
		"typ", "stav", "datum", "cislo_sbirky", "rok_sbirky", "url"))
	TiskStav = register(NewSchema("tisk_stav",
		"id_tisk", "stav", "datum"))

	Schuze = register(NewSchema("schuze",
		"id_organ", "schuze", "od_schuze", "do_schuze", "aktualizace"))
	SchuzeStav = register(NewSchema("schuze_stav",
		"id_organ", "schuze", "stav", "typ", "datum_stavu", "poznamka"))
	BodSchuze = register(NewSchema("bod_schuze",
		"id_organ", "schuze", "id_tisk", "bod", "uplny_naz", "poznamka", "id_typ", "rj"))

	Organy = register(NewSchema("organy",
		"id_organ", "organ_id_organ", "id_typ_organu", "zkratka", "nazev_organu_cz",
		"nazev_organu_en", "od_organ", "do_organ", "priorita", "cl_organ_base"))
	TypOrganu = register(NewSchema("typ_organu",
		"id_typ_org", "typ_id_typ_org", "nazev_typ_org_cz", "nazev_typ_org_en",
		"typ_org_obecny", "priorita"))
	Funkce = register(NewSchema("funkce",
		"id_funkce", "id_organ", "id_typ_funkce", "nazev_funkce_cz", "priorita"))
	TypFunkce = register(NewSchema("typ_funkce",
		"id_typ_funkce", "id_typ_org", "typ_funkce_cz", "typ_funkce_en", "priorita",
		"typ_funkce_obecny"))

	Stenozaznam = register(NewSchema("stenozaznam",
		"id_organ", "schuze", "den", "start", "stop", "turn"))
	Interpelace = register(NewSchema("interpelace",
		"id_interpelace", "id_organ", "poradove_cislo", "schuze", "datum",
		"typ_interpelace", "adresat", "nazev"))
	TzPoslanec = register(NewSchema("tz_poslanec",
		"id_poslanec", "id_tz", "funkce"))
	Tz = register(NewSchema("tz",
		"id_tz", "zkratka", "nazev", "id_organ"))
)

// LookupSchema returns the registered schema for a table name.
func LookupSchema(table string) (*Schema, bool) {
	s, ok := registry[table]
	return s, ok
}

// SchemaNames lists registered table names, sorted.
func SchemaNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TableName derives the table name from an archive entry name:
// "poslanci/osoby.unl" -> "osoby".
func TableName(filename string) string {
	if i := strings.LastIndexAny(filename, "/\\"); i >= 0 {
		filename = filename[i+1:]
	}
	return strings.TrimSuffix(filename, ".unl")
}

// Voting archives name their files after the term, e.g. hl2021s.unl for the
// divisions and hl2021h1.unl, hl2021h2.unl for the per-mandate votes.
var (
	votingSessionFile = regexp.MustCompile(`^hl\d{4}s$`)
	votingRecordFile  = regexp.MustCompile(`^hl\d{4}h\d+$`)
)

// Canonical maps a term-stamped table name onto its registered schema name.
// Other names are returned unchanged.
func Canonical(table string) string {
	switch {
	case votingSessionFile.MatchString(table):
		return HlHlasovani.Name
	case votingRecordFile.MatchString(table):
		return HlPoslanec.Name
	}
	return table
}
