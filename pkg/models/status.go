package models

// URLStatus represents the frontier state of a URL in the database
type URLStatus string

const (
	URLStatusUnset    URLStatus = ""          // Zero value = unset/unknown
	URLStatusPending  URLStatus = "pending"   // Queued but not yet completed
	URLStatusAccepted URLStatus = "accepted"  // Processed and admitted into the corpus
	URLStatusRejected URLStatus = "rejected"  // Processed and filtered by the pipeline
	URLStatusFailure  URLStatus = "failure"   // Fetch or processing failed
	URLStatusNotFound URLStatus = "not_found" // URL not in database
	URLStatusDBError  URLStatus = "db_error"  // Database error occurred
)

// String implements fmt.Stringer for logging
func (s URLStatus) String() string {
	if s == "" {
		return "unset"
	}
	return string(s)
}

// IsValid returns true if the status is a known operational value
func (s URLStatus) IsValid() bool {
	switch s {
	case URLStatusPending, URLStatusAccepted, URLStatusRejected, URLStatusFailure:
		return true
	}
	return false
}

// IsComplete returns true once the URL needs no further work
func (s URLStatus) IsComplete() bool {
	switch s {
	case URLStatusAccepted, URLStatusRejected, URLStatusFailure:
		return true
	}
	return false
}
