package domain

import "time"

// ElectoralPeriod is one term of the chamber.
type ElectoralPeriod struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	PeriodNumber int        `gorm:"not null;uniqueIndex" json:"period_number"`
	StartDate    *time.Time `gorm:"type:date" json:"start_date,omitempty"`
	EndDate      *time.Time `gorm:"type:date" json:"end_date,omitempty"`
	Description  *string    `json:"description,omitempty"`
	IsActive     bool       `gorm:"not null;default:false" json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (ElectoralPeriod) TableName() string { return "electoral_periods" }

// Party is a political party or coalition.
type Party struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      *string   `json:"name,omitempty"`
	ShortName string    `gorm:"type:text;not null;uniqueIndex" json:"short_name"`
	ColorHex  *string   `gorm:"type:text" json:"color_hex,omitempty"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Party) TableName() string { return "parties" }

// Constituency is an electoral region.
type Constituency struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      *string   `json:"name,omitempty"`
	Code      string    `gorm:"type:text;not null;uniqueIndex" json:"code"`
	Region    *string   `json:"region,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Constituency) TableName() string { return "constituencies" }

// Person is anyone listed in the osoby table.
type Person struct {
	ID          int        `gorm:"primaryKey;autoIncrement:false" json:"id"`
	TitleBefore *string    `json:"title_before,omitempty"`
	FirstName   *string    `json:"first_name,omitempty"`
	LastName    *string    `gorm:"index" json:"last_name,omitempty"`
	TitleAfter  *string    `json:"title_after,omitempty"`
	BirthDate   *time.Time `gorm:"type:date" json:"birth_date,omitempty"`
	DeathDate   *time.Time `gorm:"type:date" json:"death_date,omitempty"`
	Gender      *string    `json:"gender,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Person) TableName() string { return "persons" }

// Mandate is a person's seat (poslanec) in one electoral period.
// Constituency and party stay NULL at ingestion; linking them is a separate concern.
type Mandate struct {
	ID                    int           `gorm:"primaryKey;autoIncrement:false" json:"id"`
	PersonID              int           `gorm:"not null;index" json:"person_id"`
	Person                *Person       `gorm:"foreignKey:PersonID" json:"-"`
	ConstituencyID        *uint         `json:"constituency_id,omitempty"`
	Constituency          *Constituency `gorm:"foreignKey:ConstituencyID" json:"-"`
	PartyID               *uint         `json:"party_id,omitempty"`
	Party                 *Party        `gorm:"foreignKey:PartyID" json:"-"`
	// ElectoralPeriodNumber names an electoral_periods row without a foreign
	// key: incremental syncs write mandates without reseeding the periods.
	ElectoralPeriodNumber int           `gorm:"not null;index" json:"electoral_period_number"`
	Email                 *string       `json:"email,omitempty"`
	Phone                 *string       `json:"phone,omitempty"`
	OfficePhone           *string       `json:"office_phone,omitempty"`
	Fax                   *string       `json:"fax,omitempty"`
	Website               *string       `json:"website,omitempty"`
	Facebook              *string       `json:"facebook,omitempty"`
	Street                *string       `json:"street,omitempty"`
	City                  *string       `json:"city,omitempty"`
	PostalCode            *string       `json:"postal_code,omitempty"`
	PhotoURL              *string       `json:"photo_url,omitempty"`
	IsActive              bool          `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt             time.Time     `json:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at"`
}

func (Mandate) TableName() string { return "mps" }

// VotingSession is one division (hlasovani) of a chamber body.
type VotingSession struct {
	ID            int        `gorm:"primaryKey;autoIncrement:false" json:"id"`
	CommitteeID   int        `gorm:"not null;default:165;index" json:"committee_id"`
	SessionNumber int        `gorm:"not null;default:0" json:"session_number"`
	VoteNumber    int        `gorm:"not null;default:0" json:"vote_number"`
	AgendaItem    int        `gorm:"not null;default:0" json:"agenda_item"`
	VoteDate      *time.Time `gorm:"type:date;index" json:"vote_date,omitempty"`
	VoteTime      *string    `gorm:"type:text" json:"vote_time,omitempty"` // HH:MM:SS
	VotesFor      int        `gorm:"not null;default:0" json:"votes_for"`
	VotesAgainst  int        `gorm:"not null;default:0" json:"votes_against"`
	Abstentions   int        `gorm:"not null;default:0" json:"abstentions"`
	DidNotVote    int        `gorm:"not null;default:0" json:"did_not_vote"`
	PresentCount  int        `gorm:"not null;default:0" json:"present_count"`
	Quorum        int        `gorm:"not null;default:0" json:"quorum"`
	QuorumMet     bool       `gorm:"not null;default:false" json:"quorum_met"`
	VoteType      *string    `json:"vote_type,omitempty"`
	Result        *string    `json:"result,omitempty"`
	TitleLong     *string    `json:"title_long,omitempty"`
	TitleShort    *string    `json:"title_short,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (VotingSession) TableName() string { return "voting_sessions" }

// VoteRecord is one mandate's vote in one session.
type VoteRecord struct {
	VotingSessionID int            `gorm:"primaryKey;autoIncrement:false" json:"voting_session_id"`
	VotingSession   *VotingSession `gorm:"foreignKey:VotingSessionID" json:"-"`
	MandateID       int            `gorm:"column:mp_id;primaryKey;autoIncrement:false;index" json:"mp_id"`
	Mandate         *Mandate       `gorm:"foreignKey:MandateID" json:"-"`
	VoteResult      string         `gorm:"type:text;not null" json:"vote_result"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

func (VoteRecord) TableName() string { return "vote_records" }

// Bill is a parliamentary print (tisk).
type Bill struct {
	ID               int        `gorm:"primaryKey;autoIncrement:false" json:"id"`
	CommitteeID      int        `gorm:"not null;default:165" json:"committee_id"`
	BillNumber       *string    `gorm:"index" json:"bill_number,omitempty"`
	Title            *string    `json:"title,omitempty"`
	Description      *string    `json:"description,omitempty"`
	OwnNumber        *string    `json:"own_number,omitempty"`
	BillType         *string    `json:"bill_type,omitempty"`
	Status           *string    `json:"status,omitempty"`
	SubmittedDate    *time.Time `gorm:"type:date" json:"submitted_date,omitempty"`
	CollectionNumber *string    `json:"collection_number,omitempty"`
	CollectionYear   *int       `json:"collection_year,omitempty"`
	URL              *string    `json:"url,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func (Bill) TableName() string { return "bills" }

// Models lists every table the store migrates, parents before children.
func Models() []interface{} {
	return []interface{}{
		&SyncRun{},
		&ElectoralPeriod{},
		&Party{},
		&Constituency{},
		&Person{},
		&Mandate{},
		&VotingSession{},
		&VoteRecord{},
		&Bill{},
	}
}
