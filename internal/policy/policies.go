// Package policy holds the reconcile policies for each ingested entity.
package policy

import (
	"fmt"

	"github.com/timmy/parlsync/internal/reconcile"
	"github.com/timmy/parlsync/internal/unl"
)

// Ledger kinds, one per entity table.
const (
	KindElectoralPeriods = "electoral_periods"
	KindParties          = "parties"
	KindConstituencies   = "constituencies"
	KindPersons          = "persons"
	KindMandates         = "mps"
	KindVotingSessions   = "voting_sessions"
	KindVoteRecords      = "vote_records"
	KindBills            = "bills"
)

// VoteCodes are the result codes published in hl_poslanec.vysledek across
// electoral periods. Anything else is rejected.
var VoteCodes = map[string]bool{
	"A": true, "B": true, "N": true, "C": true, "Z": true, "F": true,
	"@": true, "M": true, "W": true, "K": true, "X": true, "0": true,
}

// Options are the values the source does not carry itself.
type Options struct {
	ElectoralPeriod    int
	DefaultCommitteeID int
}

// DefaultOptions targets the current term and the chamber plenary body.
func DefaultOptions() Options {
	return Options{ElectoralPeriod: 9, DefaultCommitteeID: 165}
}

// Set is the complete policy set for one configuration.
type Set struct {
	ElectoralPeriods reconcile.Policy
	Parties          reconcile.Policy
	Constituencies   reconcile.Policy
	Persons          reconcile.Policy
	Mandates         reconcile.Policy
	VotingSessions   reconcile.Policy
	VoteRecords      reconcile.Policy
	Bills            reconcile.Policy

	byTable map[string]reconcile.Policy
}

// New builds the policy set.
func New(opts Options) *Set {
	s := &Set{
		ElectoralPeriods: electoralPeriods(),
		Parties:          parties(),
		Constituencies:   constituencies(),
		Persons:          persons(),
		Mandates:         mandates(opts),
		VotingSessions:   votingSessions(opts),
		VoteRecords:      voteRecords(),
		Bills:            bills(opts),
	}
	s.byTable = map[string]reconcile.Policy{
		unl.Osoby.Name:       s.Persons,
		unl.Poslanec.Name:    s.Mandates,
		unl.HlHlasovani.Name: s.VotingSessions,
		unl.HlPoslanec.Name:  s.VoteRecords,
		unl.Tisk.Name:        s.Bills,
	}
	return s
}

// ForTable returns the policy that ingests a source table.
func (s *Set) ForTable(table string) (reconcile.Policy, bool) {
	p, ok := s.byTable[table]
	return p, ok
}

func persons() reconcile.Policy {
	return reconcile.Policy{
		Kind:  KindPersons,
		Table: "persons",
		Key: func(rec unl.Record) (reconcile.Key, error) {
			id, err := requiredInt(rec, "id_osoba")
			if err != nil {
				return nil, err
			}
			return singleKey("id", id), nil
		},
		Columns: func(rec unl.Record) (reconcile.Columns, error) {
			return reconcile.Columns{
				"title_before": text(rec, "pred"),
				"first_name":   text(rec, "jmeno"),
				"last_name":    text(rec, "prijmeni"),
				"title_after":  text(rec, "za"),
				"birth_date":   date(rec, "narozeni", czechDate, isoDate),
				"death_date":   date(rec, "umrti", czechDate, isoDate),
				"gender":       text(rec, "pohlavi"),
			}, nil
		},
	}
}

// mandates leaves constituency_id and party_id unmapped so a later linking
// pass is never overwritten.
func mandates(opts Options) reconcile.Policy {
	return reconcile.Policy{
		Kind:  KindMandates,
		Table: "mps",
		Key: func(rec unl.Record) (reconcile.Key, error) {
			id, err := requiredInt(rec, "id_poslanec")
			if err != nil {
				return nil, err
			}
			return singleKey("id", id), nil
		},
		Columns: func(rec unl.Record) (reconcile.Columns, error) {
			personID, err := requiredInt(rec, "id_osoba")
			if err != nil {
				return nil, err
			}
			return reconcile.Columns{
				"person_id":               personID,
				"electoral_period_number": opts.ElectoralPeriod,
				"email":                   text(rec, "email"),
				"phone":                   text(rec, "telefon"),
				"office_phone":            text(rec, "psp_telefon"),
				"fax":                     text(rec, "fax"),
				"website":                 text(rec, "web"),
				"facebook":                text(rec, "facebook"),
				"street":                  text(rec, "ulice"),
				"city":                    text(rec, "obec"),
				"postal_code":             text(rec, "psc"),
				"photo_url":               text(rec, "foto"),
			}, nil
		},
		InsertDefaults: reconcile.Columns{"is_active": true},
	}
}

func votingSessions(opts Options) reconcile.Policy {
	return reconcile.Policy{
		Kind:  KindVotingSessions,
		Table: "voting_sessions",
		Key: func(rec unl.Record) (reconcile.Key, error) {
			id, err := requiredInt(rec, "id_hlasovani")
			if err != nil {
				return nil, err
			}
			return singleKey("id", id), nil
		},
		Columns: func(rec unl.Record) (reconcile.Columns, error) {
			return reconcile.Columns{
				"committee_id":   intOrDefault(rec, "id_organ", opts.DefaultCommitteeID),
				"session_number": intOrZero(rec, "schuze"),
				"vote_number":    intOrZero(rec, "cislo"),
				"agenda_item":    intOrZero(rec, "bod"),
				"vote_date":      date(rec, "datum", isoDate, czechDate),
				"vote_time":      clock(rec, "cas"),
				"votes_for":      intOrZero(rec, "pro"),
				"votes_against":  intOrZero(rec, "proti"),
				"abstentions":    intOrZero(rec, "zdrzel"),
				"did_not_vote":   intOrZero(rec, "nehlasoval"),
				"present_count":  intOrZero(rec, "prihlaseno"),
				"quorum":         intOrZero(rec, "kvorum"),
				"quorum_met":     present(rec, "kvorum"),
				"vote_type":      text(rec, "druh_hlasovani"),
				"result":         text(rec, "vysledek"),
				"title_long":     text(rec, "nazev_dlouhy"),
				"title_short":    text(rec, "nazev_kratky"),
			}, nil
		},
	}
}

func voteRecords() reconcile.Policy {
	return reconcile.Policy{
		Kind:  KindVoteRecords,
		Table: "vote_records",
		Key: func(rec unl.Record) (reconcile.Key, error) {
			sessionID, err := requiredInt(rec, "id_hlasovani")
			if err != nil {
				return nil, err
			}
			mandateID, err := requiredInt(rec, "id_poslanec")
			if err != nil {
				return nil, err
			}
			return reconcile.Key{
				{Name: "voting_session_id", Value: sessionID},
				{Name: "mp_id", Value: mandateID},
			}, nil
		},
		Columns: func(rec unl.Record) (reconcile.Columns, error) {
			code, ok := rec.Get("vysledek")
			if !ok {
				return nil, &reconcile.FieldError{Field: "vysledek", Err: errMissing}
			}
			if !VoteCodes[code] {
				return nil, &reconcile.FieldError{Field: "vysledek", Err: fmt.Errorf("unknown vote code %q", code)}
			}
			return reconcile.Columns{"vote_result": code}, nil
		},
	}
}

func bills(opts Options) reconcile.Policy {
	return reconcile.Policy{
		Kind:  KindBills,
		Table: "bills",
		Key: func(rec unl.Record) (reconcile.Key, error) {
			id, err := requiredInt(rec, "id_tisk")
			if err != nil {
				return nil, err
			}
			return singleKey("id", id), nil
		},
		Columns: func(rec unl.Record) (reconcile.Columns, error) {
			return reconcile.Columns{
				"committee_id":      intOrDefault(rec, "id_organ", opts.DefaultCommitteeID),
				"bill_number":       text(rec, "tisk"),
				"title":             text(rec, "nazev"),
				"description":       text(rec, "popis"),
				"own_number":        text(rec, "cislo_vlastni"),
				"bill_type":         text(rec, "typ"),
				"status":            text(rec, "stav"),
				"submitted_date":    date(rec, "datum", isoDate, czechDate),
				"collection_number": text(rec, "cislo_sbirky"),
				"collection_year":   optionalInt(rec, "rok_sbirky"),
				"url":               text(rec, "url"),
			}, nil
		},
	}
}
