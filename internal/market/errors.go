package market

import "fmt"

// APIError is a non-2xx response from the venue REST API. Status is the HTTP
// status code; Code is the venue's own error code (negative for Binance) and
// is zero when the body carried none.
type APIError struct {
	Status  int
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("venue API error: status %d, code %d: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("venue API error: status %d: %s", e.Status, e.Message)
}

// HTTPStatus returns the HTTP status code for severity classification.
func (e *APIError) HTTPStatus() int { return e.Status }

// VenueCode returns the venue error code for severity classification.
func (e *APIError) VenueCode() int { return e.Code }

// ErrUnknownSymbol is returned when a symbol is not listed on the venue.
type ErrUnknownSymbol struct {
	Symbol string
}

func (e *ErrUnknownSymbol) Error() string {
	return fmt.Sprintf("unknown symbol %s", e.Symbol)
}
