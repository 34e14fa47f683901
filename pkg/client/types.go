package client

import "encoding/json"

// Record is a generic record payload. Field access goes through the
// map; typed decoding is available via Decode.
type Record map[string]any

// Decode re-marshals the record into a typed struct.
func (r Record) Decode(out any) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// GetString returns the named field as a string, or "".
func (r Record) GetString(key string) string {
	v, _ := r[key].(string)
	return v
}

// ID returns the record's id field.
func (r Record) ID() string { return r.GetString("id") }

// ListResult is one page of a paginated listing.
type ListResult struct {
	Page       int      `json:"page"`
	PerPage    int      `json:"perPage"`
	TotalItems int      `json:"totalItems"`
	TotalPages int      `json:"totalPages"`
	Items      []Record `json:"items"`
}

// ListOptions narrows and shapes list requests.
type ListOptions struct {
	Filter    string
	Sort      string
	Expand    string
	Fields    string
	SkipTotal bool
	Query     map[string]string // extra raw query parameters
}

// AuthResult is the server response for every auth flow: the signed
// token plus the authenticated record.
type AuthResult struct {
	Token  string `json:"token"`
	Record Record `json:"record"`
}

// HealthCheck is the server health probe response.
type HealthCheck struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data"`
}
