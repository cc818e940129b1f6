package domain

import "time"

type RoomName string

// Message is immutable once appended to a room.
type Message struct {
	ID         string    `json:"id"`
	RoomName   RoomName  `json:"roomName"`
	AuthorID   UserID    `json:"userId"`
	AuthorName string    `json:"userName"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Member is a read-only view of a chat room member.
type Member struct {
	ID   UserID `json:"id"`
	Name string `json:"name"`
}

type RoomSummary struct {
	Name        RoomName `json:"name"`
	IsPrivate   bool     `json:"isPrivate"`
	CreatorID   UserID   `json:"creatorId"`
	MemberCount int      `json:"memberCount"`
	HasAccess   bool     `json:"hasAccess"`
}
