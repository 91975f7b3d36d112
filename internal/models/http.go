package models

// Request/response payloads for the HTTP surface.

type UploadResponse struct {
	Document *Document `json:"document"`
	Message  string    `json:"message"`
}

type DocumentListResponse struct {
	Documents []Document `json:"documents"`
	Count     int        `json:"count"`
	User      string     `json:"user"`
}

type ScopeResponse struct {
	User      string      `json:"user"`
	Role      Role        `json:"role"`
	Verticals VerticalSet `json:"verticals"`
}

type CreateSessionRequest struct {
	Title string `json:"title"`
}

type SessionListResponse struct {
	Sessions []ChatSession `json:"sessions"`
	Count    int           `json:"count"`
	User     string        `json:"user"`
}

type MessageRequest struct {
	Question string `json:"question"`
}

type TurnListResponse struct {
	Turns []Turn `json:"turns"`
	Count int    `json:"count"`
}

type HealthResponse struct {
	Status    string           `json:"status"`
	Verticals map[Vertical]int `json:"verticals,omitempty"`
}
