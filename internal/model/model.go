package model

import (
	"database/sql"
	"errors"
	"time"

	"gorm.io/datatypes"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Caller{},
	&RFF{},
}

// Caller is a persisted signal event. Receivers holds the nested bearing
// list as JSON; the flat RFF1/Bearing1 pair is kept for older clients.
type Caller struct {
	ID        string          `json:"id" gorm:"primaryKey;size:64"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
	Channel   string          `json:"channel" gorm:"size:32"`
	RFF1      string          `json:"rff1" gorm:"size:64"`
	Bearing1  sql.NullFloat64 `json:"bearing1"`
	Receivers datatypes.JSON  `json:"receivers"`
	Fix       string          `json:"fix" gorm:"size:64"`
	StartRaw  string          `json:"starttime" gorm:"column:start_raw;size:64"`
	StartTime sql.NullTime    `json:"-" gorm:"index:idx_caller_start_time"` // parsed StartRaw, null when unparseable
	StopTime  string          `json:"stoptime" gorm:"size:64"`
}

func (*Caller) TableName() string {
	return "callers"
}

// RFF is a persisted receiver station.
type RFF struct {
	ID        string    `json:"id" gorm:"primaryKey;size:64"`
	CreatedAt time.Time `json:"createdAt"`
	Name      string    `json:"name" gorm:"size:128"`
	Lat       float64   `json:"lat"`
	Lng       float64   `json:"lng"`
}

func (*RFF) TableName() string {
	return "rffs"
}
