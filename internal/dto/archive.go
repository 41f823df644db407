package dto

// ArchiveQuery mirrors GET /audit-archives filters.
type ArchiveQuery struct {
	Category       string
	RestaurantName string
	InspectorName  string
	DateFrom       string
	DateTo         string
	MinScore       *float64
	MaxScore       *float64
	Page           int
	PageSize       int
}

// ExportFile is a rendered archive document.
type ExportFile struct {
	Filename    string
	ContentType string
	Content     []byte
}
