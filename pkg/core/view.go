// pkg/core/view.go
package core

// Point is a screen coordinate in board pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// PlayerViewState is the view-model of one player token and its dependents
// (health marker, popup, equipment labels).
type PlayerViewState struct {
	ID            string      `json:"id"`
	Slot          int         `json:"slot"`
	UserID        string      `json:"userId"`
	LocationName  string      `json:"locationName"`
	Damage        int         `json:"damage"`
	Alive         bool        `json:"alive"`
	Equipment     []Equipment `json:"equipment"`
	Color         string      `json:"color,omitempty"`
	AI            bool        `json:"ai,omitempty"`
	Position      Point       `json:"position"`
	StartPosition Point       `json:"startPosition"`
	HealthMarker  Point       `json:"healthMarker"`
	PopupAnchor   Point       `json:"popupAnchor"`
	PopupText     string      `json:"popupText"`
	Dimmed        bool        `json:"dimmed"`
	Opacity       float64     `json:"opacity"`
}

// Clone returns a deep copy.
func (p PlayerViewState) Clone() PlayerViewState {
	out := p
	out.Equipment = append([]Equipment(nil), p.Equipment...)
	if out.Equipment == nil {
		out.Equipment = []Equipment{}
	}
	return out
}

// ZoneCardState is the view-model of a zone card.
type ZoneCardState struct {
	ID          string  `json:"id"`
	Row         int     `json:"row"`
	Col         int     `json:"col"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Anchor      Point   `json:"anchor"`
	Angle       float64 `json:"angle"`
}

// SelfInfo is the viewer's own character box.
type SelfInfo struct {
	Name         string `json:"name"`
	Team         string `json:"team"`
	WinCondition string `json:"winCondition"`
	MaxDamage    int    `json:"maxDamage"`
	Special      string `json:"special"`
}

// Allegiance maps a character allegiance code to its team name.
func Allegiance(alleg int) string {
	switch alleg {
	case 0:
		return "Shadow"
	case 1:
		return "Neutral"
	default:
		return "Hunter"
	}
}

// NewSelfInfo builds the self info box from a character card.
func NewSelfInfo(c CharacterMeta) SelfInfo {
	special := c.Special
	if special == "" {
		special = "none"
	}
	return SelfInfo{
		Name:         c.Name,
		Team:         Allegiance(c.Alleg),
		WinCondition: c.WinCondDesc,
		MaxDamage:    c.MaxDamage,
		Special:      special,
	}
}

// BoardView is a read-only copy of the whole view-model after a ChangeSet.
// CharactersText is the body of the characters popup.
type BoardView struct {
	Seq            uint64            `json:"seq"`
	SelfID         string            `json:"selfId,omitempty"`
	Self           *SelfInfo         `json:"self,omitempty"`
	SelfSlots      []string          `json:"selfSlots"`
	Players        []PlayerViewState `json:"players"`
	Zones          []ZoneCardState   `json:"zones"`
	Characters     []CharacterMeta   `json:"characters"`
	CharactersText string            `json:"charactersText"`
	Popups         map[string]bool   `json:"popups"`
}
