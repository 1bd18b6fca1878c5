package strategy

import "fmt"

// ExtractionError is malformed or unexpected data: an item that cannot be
// parsed, or a base page missing the structure the strategy relies on.
type ExtractionError struct {
	Source string
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		if msg == "" {
			msg = e.Err.Error()
		} else {
			msg += ": " + e.Err.Error()
		}
	}
	if e.Source != "" {
		return fmt.Sprintf("extract %s: %s", e.Source, msg)
	}
	return "extract: " + msg
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// ProtocolUnavailable means a CMS API probe failed. The run fails without
// falling back to HTML scraping.
type ProtocolUnavailable struct {
	Protocol string
	URL      string
	Reason   string
	Err      error
}

func (e *ProtocolUnavailable) Error() string {
	msg := fmt.Sprintf("%s protocol unavailable at %s: %s", e.Protocol, e.URL, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ProtocolUnavailable) Unwrap() error {
	return e.Err
}
