package ir

// Call types recorded in offline messages.
const (
	CallTypeQuery  = "query"
	CallTypeUpdate = "update"
)

// Ingress is a signed query or update request ready for submission.
// RequestID is nil for queries.
type Ingress struct {
	CallType  string  `json:"call_type"`
	RequestID *string `json:"request_id"`
	Content   string  `json:"content"`
}

// RequestStatus is a signed read_state request polling an update's status.
type RequestStatus struct {
	CanisterID string `json:"canister_id"`
	RequestID  string `json:"request_id"`
	Content    string `json:"content"`
}

// Message pairs an ingress request with its status poll. RequestStatus
// is nil for queries.
type Message struct {
	Ingress       Ingress        `json:"ingress"`
	RequestStatus *RequestStatus `json:"request_status"`
}

// IsQuery reports whether the message carries a query.
func (m Message) IsQuery() bool {
	return m.Ingress.CallType == CallTypeQuery
}

// object converts the message into the generic form used by MarshalCanonical.
func (m Message) object() map[string]any {
	ingress := map[string]any{
		"call_type":  m.Ingress.CallType,
		"request_id": nil,
		"content":    m.Ingress.Content,
	}
	if m.Ingress.RequestID != nil {
		ingress["request_id"] = *m.Ingress.RequestID
	}
	obj := map[string]any{
		"ingress":        ingress,
		"request_status": nil,
	}
	if s := m.RequestStatus; s != nil {
		obj["request_status"] = map[string]any{
			"canister_id": s.CanisterID,
			"request_id":  s.RequestID,
			"content":     s.Content,
		}
	}
	return obj
}

// MarshalMessage renders m as canonical JSON.
func MarshalMessage(m Message) ([]byte, error) {
	return MarshalCanonical(m.object())
}
