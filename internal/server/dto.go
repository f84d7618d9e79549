package server

// CreateLeadRequest is the body of POST /v1/contacts. The stage goes in
// fields.status and defaults to the first stage of the funnel.
type CreateLeadRequest struct {
	ID         string         `json:"id,omitempty"`
	ChannelID  string         `json:"channel_id,omitempty"`
	Name       string         `json:"name,omitempty"`
	ExternalID string         `json:"external_id,omitempty"`
	Phone      string         `json:"phone,omitempty"`
	Email      string         `json:"email,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
	Fields     map[string]any `json:"fields,omitempty"`
}

type UpdateStatusRequest struct {
	Status string `json:"status" minLength:"1" example:"in_progress"`
}

type AIStatusRequest struct {
	Phone  string `json:"phone" minLength:"1" example:"+5511987654321"`
	Active bool   `json:"active"`
}

type DevLoginRequest struct {
	ActorID    string `json:"actor_id" example:"ana"`
	TTLSeconds int    `json:"ttl_seconds,omitempty" minimum:"0"`
}

type DevLoginResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}
