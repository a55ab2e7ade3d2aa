package domain

type MapItemKind string

const (
	MapItemMarker MapItemKind = "MARKER"
	MapItemPath   MapItemKind = "PATH"
	MapItemZone   MapItemKind = "ZONE"
)

type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// MapItem is an annotation drawn on the monitoring map.
type MapItem struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Color       int           `json:"color"`
	Kind        MapItemKind   `json:"kind"`
	Coordinates []Coordinates `json:"coordinates"`
}
