package models

import "time"

// Project is a registered working directory that quests run against.
// Guilds share the same shape.
type Project struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProjectListItem decorates a Project with derived listing data.
type ProjectListItem struct {
	Project
	// Valid reports whether Path is currently accessible.
	Valid bool `json:"valid"`
	// QuestCount is the number of quest folders stored for the project.
	QuestCount int `json:"questCount"`
}

// Guild is the newer name for a Project.
type Guild = Project

// GuildListItem is the newer name for a ProjectListItem.
type GuildListItem = ProjectListItem
