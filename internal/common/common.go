package common

import "time"

// Shared constants to enforce DRY and avoid magic strings/numbers.

// HTTP headers and content types
const (
	HeaderAPIKey       = "X-API-Key" // #nosec G101 - header name constant, not a credential
	HeaderPrefer       = "Prefer"
	PreferRespondAsync = "respond-async"
	ContentTypeJSON    = "application/json"
)

// API paths
const (
	PathHealthz   = "/healthz"
	PathMechanic  = "/v1/mechanic"
	PathWorkLogs  = "/v1/worklogs"
	PathStats     = "/v1/stats"
	PathScans     = "/v1/scans"
	PathPhotos    = "/photos/"
	DayLayout     = "2006-01-02"
	FormFieldFile = "file"
)

// Defaults and limits
const (
	DefaultQueueCapacity   = 32
	DefaultWorkerCount     = 2
	SQLiteBusyTimeoutMS    = 5000
	DefaultCaptureInterval = 2500 * time.Millisecond
	DisplayTickInterval    = time.Second
)

// MIME types
const (
	MimeImagePNG  = "image/png"
	MimeImageJPEG = "image/jpeg"
	MimeImageJPG  = "image/jpg"
)

// Subdirectory and file names
const (
	PhotosDirName  = "photos"
	BlobsDirName   = "blobs"
	DatabaseName   = "autoscan.db"
	ConfigEnvVar   = "AUTOSCAN_CONFIG"
	DefaultCfgFile = "config.yaml"
)
