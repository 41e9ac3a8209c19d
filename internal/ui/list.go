package ui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/desertthunder/scrob/internal/models"
	"github.com/desertthunder/scrob/internal/shared"
)

var (
	_ list.Item = pendingItem{}
)

// pendingItem wraps [models.QueuedEvent] to implement [list.Item].
type pendingItem struct {
	event models.QueuedEvent
}

func (i pendingItem) FilterValue() string { return i.event.Artist + " " + i.event.Title }
func (i pendingItem) Title() string {
	return fmt.Sprintf("%s - %s", i.event.Artist, i.event.Title)
}
func (i pendingItem) Description() string {
	desc := fmt.Sprintf("%s • %s", shared.FormatDuration(i.event.DurationSeconds), shared.HumanTime(i.event.StartedAt))
	if i.event.Album != "" {
		desc = fmt.Sprintf("%s • %s", i.event.Album, desc)
	}
	if i.event.InvalidReason != "" {
		desc = fmt.Sprintf("%s • invalid: %s", desc, i.event.InvalidReason)
	}
	return desc
}

func pendingItems(events []models.QueuedEvent) []list.Item {
	items := make([]list.Item, len(events))
	for i, ev := range events {
		items[i] = pendingItem{event: ev}
	}
	return items
}
