package models

import (
	"time"
)

// Family is the tenant every child, task, reward and goal belongs to
type Family struct {
	ID         int64     `db:"id" json:"id"`
	Name       string    `db:"name" json:"name"`
	LookupCode string    `db:"lookup_code" json:"lookup_code"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Child is a family member who owns a points account
type Child struct {
	ID        int64     `db:"id" json:"id"`
	FamilyID  int64     `db:"family_id" json:"family_id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// FamilyLookup is the public view of a family returned by the lookup endpoint
type FamilyLookup struct {
	FamilyID   int64    `json:"family_id"`
	Name       string   `json:"name"`
	ChildNames []string `json:"child_names"`
}
