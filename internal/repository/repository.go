package repository

import (
	"database/sql"
	"errors"
	"time"
)

var (
	// ErrNoRowsAffected signals that a scoped update or delete matched nothing
	ErrNoRowsAffected = errors.New("no rows affected")
	// ErrInsufficientPoints is returned when a deduction would make a balance negative
	ErrInsufficientPoints = errors.New("insufficient points")
	// ErrUserNotFound is returned when a points adjustment targets a missing user
	ErrUserNotFound = errors.New("user not found")
)

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func now() time.Time {
	return time.Now().UTC()
}

func nullString(s *string) sql.NullString {
	if s == nil || *s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
