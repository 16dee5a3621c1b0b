package timeline

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Zoom is the visible span of a timeline view.
type Zoom string

const (
	ZoomDay     Zoom = "day"
	ZoomWeek    Zoom = "week"
	ZoomMonth   Zoom = "month"
	ZoomQuarter Zoom = "quarter"
	ZoomYear    Zoom = "year"
)

// ParseZoom validates a zoom label. An empty label defaults to ZoomMonth.
func ParseZoom(value string) (Zoom, error) {
	switch z := Zoom(strings.ToLower(strings.TrimSpace(value))); z {
	case "":
		return ZoomMonth, nil
	case ZoomDay, ZoomWeek, ZoomMonth, ZoomQuarter, ZoomYear:
		return z, nil
	default:
		return "", fmt.Errorf("timeline: unknown zoom %q", value)
	}
}

// Item is one event placed on the timeline.
type Item struct {
	ID           string
	Title        string
	DepartmentID string
	Start        time.Time
	End          time.Time
}

// Block is a rendered group of one or more nearby items of a department.
type Block struct {
	DepartmentID string
	Start        time.Time
	End          time.Time
	Titles       []string
	ItemIDs      []string
}

// Merged reports whether the block represents more than one item.
func (b Block) Merged() bool {
	return len(b.ItemIDs) > 1
}

// Cluster groups items per department and greedily merges neighbours.
//
// At day zoom an item joins the current block only when it starts before or
// exactly at the block's end. At wider zooms it joins when it starts on the
// same calendar day (in the item's location) as the block's end.
func Cluster(items []Item, zoom Zoom) []Block {
	if len(items) == 0 {
		return nil
	}

	byDepartment := make(map[string][]Item)
	for _, item := range items {
		byDepartment[item.DepartmentID] = append(byDepartment[item.DepartmentID], item)
	}

	departments := make([]string, 0, len(byDepartment))
	for dept := range byDepartment {
		departments = append(departments, dept)
	}
	sort.Strings(departments)

	blocks := make([]Block, 0, len(items))
	for _, dept := range departments {
		group := byDepartment[dept]
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Start.Equal(group[j].Start) {
				return group[i].ID < group[j].ID
			}
			return group[i].Start.Before(group[j].Start)
		})

		current := newBlock(group[0])
		for _, item := range group[1:] {
			if near(current, item, zoom) {
				current.ItemIDs = append(current.ItemIDs, item.ID)
				current.Titles = append(current.Titles, item.Title)
				if item.End.After(current.End) {
					current.End = item.End
				}
				continue
			}
			blocks = append(blocks, current)
			current = newBlock(item)
		}
		blocks = append(blocks, current)
	}
	return blocks
}

func newBlock(item Item) Block {
	return Block{
		DepartmentID: item.DepartmentID,
		Start:        item.Start,
		End:          item.End,
		Titles:       []string{item.Title},
		ItemIDs:      []string{item.ID},
	}
}

func near(block Block, item Item, zoom Zoom) bool {
	if zoom == ZoomDay {
		return !item.Start.After(block.End)
	}
	if !item.Start.After(block.End) {
		return true
	}
	return sameDay(block.End, item.Start)
}

func sameDay(a, b time.Time) bool {
	b = b.In(a.Location())
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
