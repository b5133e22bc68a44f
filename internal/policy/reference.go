package policy

import (
	"context"
	"embed"
	"fmt"

	"github.com/timmy/parlsync/internal/reconcile"
	"github.com/timmy/parlsync/internal/unl"
)

//go:embed seed/*.unl
var seedFS embed.FS

// Reference data is not published by the source; it ships with the binary
// as UNL files parsed like any other table.
var (
	PeriodSchema       = unl.NewSchema("volebni_obdobi", "cislo", "od", "do", "popis", "aktivni")
	PartySchema        = unl.NewSchema("strany", "zkratka", "nazev", "barva")
	ConstituencySchema = unl.NewSchema("kraje", "kod", "nazev", "sidlo")
)

// Seed is one embedded reference table and the policy that loads it.
type Seed struct {
	Schema *unl.Schema
	Policy reconcile.Policy
}

// Label is the ledger label for runs loading this seed.
func (s Seed) Label() string {
	return "reference:" + s.Schema.Name
}

// Seeds returns the reference tables in load order.
func (s *Set) Seeds() []Seed {
	return []Seed{
		{Schema: PeriodSchema, Policy: s.ElectoralPeriods},
		{Schema: PartySchema, Policy: s.Parties},
		{Schema: ConstituencySchema, Policy: s.Constituencies},
	}
}

// Records parses the embedded seed file.
func (s Seed) Records(ctx context.Context, proj unl.Projector) (unl.Result, error) {
	data, err := seedFS.ReadFile("seed/" + s.Schema.Name + ".unl")
	if err != nil {
		return unl.Result{}, fmt.Errorf("read seed %s: %w", s.Schema.Name, err)
	}
	return proj.ProjectText(ctx, string(data), s.Schema), nil
}

func electoralPeriods() reconcile.Policy {
	return reconcile.Policy{
		Kind:  KindElectoralPeriods,
		Table: "electoral_periods",
		Key: func(rec unl.Record) (reconcile.Key, error) {
			n, err := requiredInt(rec, "cislo")
			if err != nil {
				return nil, err
			}
			return singleKey("period_number", n), nil
		},
		Columns: func(rec unl.Record) (reconcile.Columns, error) {
			return reconcile.Columns{
				"start_date":  date(rec, "od", isoDate, czechDate),
				"end_date":    date(rec, "do", isoDate, czechDate),
				"description": text(rec, "popis"),
				"is_active":   flag(rec, "aktivni", false),
			}, nil
		},
	}
}

func parties() reconcile.Policy {
	return reconcile.Policy{
		Kind:  KindParties,
		Table: "parties",
		Key: func(rec unl.Record) (reconcile.Key, error) {
			short, ok := rec.Get("zkratka")
			if !ok {
				return nil, &reconcile.FieldError{Field: "zkratka", Err: errMissing}
			}
			return singleKey("short_name", short), nil
		},
		Columns: func(rec unl.Record) (reconcile.Columns, error) {
			return reconcile.Columns{
				"name":      text(rec, "nazev"),
				"color_hex": text(rec, "barva"),
			}, nil
		},
		InsertDefaults: reconcile.Columns{"is_active": true},
	}
}

func constituencies() reconcile.Policy {
	return reconcile.Policy{
		Kind:  KindConstituencies,
		Table: "constituencies",
		Key: func(rec unl.Record) (reconcile.Key, error) {
			code, ok := rec.Get("kod")
			if !ok {
				return nil, &reconcile.FieldError{Field: "kod", Err: errMissing}
			}
			return singleKey("code", code), nil
		},
		Columns: func(rec unl.Record) (reconcile.Columns, error) {
			return reconcile.Columns{
				"name":   text(rec, "nazev"),
				"region": text(rec, "sidlo"),
			}, nil
		},
	}
}
