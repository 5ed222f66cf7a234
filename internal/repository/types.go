package repository

import (
	"database/sql"
	"time"
)

type Repo struct {
	db *sql.DB
}

// Track is the immutable payload shared by queue and history rows.
type Track struct {
	Title     string `json:"title"`
	URL       string `json:"url"`
	Thumbnail string `json:"thumbnail,omitempty"`
	AddedBy   string `json:"addedBy"`
	AddedByID int64  `json:"addedById,omitempty"`
}

type QueueEntry struct {
	ID int64 `json:"id"`
	Track
	EnqueuedAt time.Time `json:"enqueuedAt"`
}

type HistoryEntry struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Thumbnail   string    `json:"thumbnail,omitempty"`
	RequestedBy string    `json:"requestedBy"`
	PlayedAt    time.Time `json:"playedAt"`
}

type User struct {
	ID           int64
	Username     string
	PasswordHash string
	Name         string
	Lastname     string
	Role         string
	CreatedAt    time.Time
}

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)
